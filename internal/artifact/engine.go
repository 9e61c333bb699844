package artifact

import (
	"encoding/csv"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Column names expected in the three uploaded artifacts.
const (
	colDomain     = "domain"
	colTenantID   = "tenant_id"
	colAdminEmail = "admin_email"
	colTenantName = "name"
	colUsername   = "username"
	colPassword   = "password"
)

// DomainRow is one parsed row of the domain artifact.
type DomainRow struct {
	Name     string
	TenantID string
}

// TenantRow is one parsed row of the tenant artifact. Password is filled
// from the matched credential pair when one exists.
type TenantRow struct {
	ID         string
	AdminLogin string
	Name       string
	Password   string
}

// Summary carries the counts surfaced alongside a validation run.
type Summary struct {
	Domains            int `json:"domains"`
	Tenants            int `json:"tenants"`
	MatchedCredentials int `json:"matchedCredentials"`
	UnmatchedTenants   int `json:"unmatchedTenants"`
	LinkedDomains      int `json:"linkedDomains"`
	ExpectedMailboxes  int `json:"expectedMailboxes"`
}

// ValidationResult is the request-scoped outcome of cross-referencing the
// three artifacts. It is recomputed whenever any input changes and never
// persisted.
type ValidationResult struct {
	Valid    bool     `json:"valid"`
	Errors   []string `json:"errors"`
	Warnings []string `json:"warnings"`
	Summary  Summary  `json:"summary"`
}

// Parsed holds the reconciled rows used to seed a batch once validation
// passes.
type Parsed struct {
	Domains []DomainRow
	Tenants []TenantRow
}

// Engine cross-references the domain, tenant, and credential artifacts.
// Pure data reconciliation; no external calls.
type Engine struct {
	mailboxesPerTenant int
}

func NewEngine(mailboxesPerTenant int) (*Engine, error) {
	if mailboxesPerTenant < 1 {
		return nil, fmt.Errorf("mailboxes per tenant must be positive, got %d", mailboxesPerTenant)
	}
	return &Engine{mailboxesPerTenant: mailboxesPerTenant}, nil
}

// Validate parses the three artifacts and computes the match report.
// Errors make Valid false and block batch start; warnings are surfaced but
// do not block.
func (e *Engine) Validate(domainsCSV, tenantsCSV, credentialsCSV string) (*ValidationResult, *Parsed) {
	result := &ValidationResult{
		Errors:   []string{},
		Warnings: []string{},
	}

	domainRows := e.parseDomains(domainsCSV, result)
	tenantRows := e.parseTenants(tenantsCSV, result)
	credentials := e.parseCredentials(credentialsCSV, result)

	matched := matchCredentials(tenantRows, credentials, result)
	linked := linkDomains(domainRows, tenantRows, result)

	result.Summary = Summary{
		Domains:            len(domainRows),
		Tenants:            len(tenantRows),
		MatchedCredentials: matched,
		UnmatchedTenants:   len(tenantRows) - matched,
		LinkedDomains:      linked,
		ExpectedMailboxes:  len(tenantRows) * e.mailboxesPerTenant,
	}
	result.Valid = len(result.Errors) == 0

	return result, &Parsed{Domains: domainRows, Tenants: tenantRows}
}

func (e *Engine) parseDomains(content string, result *ValidationResult) []DomainRow {
	table, err := parseTable(content, []string{colDomain})
	if err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("domain list: %v", err))
		return nil
	}

	rows := make([]DomainRow, 0, len(table.rows))
	seen := make(map[string]bool, len(table.rows))
	for _, raw := range table.rows {
		name := strings.ToLower(table.cell(raw, colDomain))
		if name == "" {
			continue
		}
		if seen[name] {
			result.Errors = append(result.Errors, fmt.Sprintf("domain list: duplicate domain %q", name))
			continue
		}
		seen[name] = true
		rows = append(rows, DomainRow{
			Name:     name,
			TenantID: strings.ToLower(table.cell(raw, colTenantID)),
		})
	}
	return rows
}

func (e *Engine) parseTenants(content string, result *ValidationResult) []TenantRow {
	table, err := parseTable(content, []string{colTenantID, colAdminEmail})
	if err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("tenant list: %v", err))
		return nil
	}

	rows := make([]TenantRow, 0, len(table.rows))
	for _, raw := range table.rows {
		id := strings.ToLower(table.cell(raw, colTenantID))
		login := strings.ToLower(table.cell(raw, colAdminEmail))
		if id == "" && login == "" {
			continue
		}
		if _, err := uuid.Parse(id); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("tenant list: tenant id %q is not a well-formed GUID", id))
			continue
		}
		rows = append(rows, TenantRow{
			ID:         id,
			AdminLogin: login,
			Name:       table.cell(raw, colTenantName),
		})
	}
	return rows
}

func (e *Engine) parseCredentials(content string, result *ValidationResult) map[string]string {
	table, err := parseTable(content, []string{colUsername, colPassword})
	if err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("credentials list: %v", err))
		return nil
	}

	credentials := make(map[string]string, len(table.rows))
	for _, raw := range table.rows {
		username := strings.ToLower(table.cell(raw, colUsername))
		if username == "" {
			continue
		}
		credentials[username] = table.cell(raw, colPassword)
	}
	return credentials
}

// matchCredentials fills each tenant's password by case-insensitive
// username equality against the admin login. Unmatched tenants are
// warnings, not errors: manual credential entry remains possible.
func matchCredentials(tenants []TenantRow, credentials map[string]string, result *ValidationResult) int {
	matched := 0
	for i := range tenants {
		password, ok := credentials[tenants[i].AdminLogin]
		if !ok {
			result.Warnings = append(result.Warnings,
				fmt.Sprintf("no credential matched tenant login %q", tenants[i].AdminLogin))
			continue
		}
		tenants[i].Password = password
		matched++
	}
	return matched
}

func linkDomains(domains []DomainRow, tenants []TenantRow, result *ValidationResult) int {
	tenantIDs := make(map[string]bool, len(tenants))
	for _, t := range tenants {
		tenantIDs[t.ID] = true
	}

	linked := 0
	for _, d := range domains {
		if d.TenantID == "" {
			result.Warnings = append(result.Warnings,
				fmt.Sprintf("domain %q has no tenant link", d.Name))
			continue
		}
		if !tenantIDs[d.TenantID] {
			result.Warnings = append(result.Warnings,
				fmt.Sprintf("domain %q references unknown tenant %q", d.Name, d.TenantID))
			continue
		}
		linked++
	}
	return linked
}

type table struct {
	columns map[string]int
	rows    [][]string
}

func (t *table) cell(row []string, column string) string {
	idx, ok := t.columns[column]
	if !ok || idx >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[idx])
}

// parseTable reads a CSV artifact tolerating blank lines, surrounding
// whitespace, and ragged rows. Header matching is case-insensitive.
func parseTable(content string, required []string) (*table, error) {
	reader := csv.NewReader(strings.NewReader(content))
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("malformed CSV: %w", err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("missing header row")
	}

	columns := make(map[string]int, len(records[0]))
	for i, name := range records[0] {
		columns[strings.ToLower(strings.TrimSpace(name))] = i
	}
	for _, name := range required {
		if _, ok := columns[name]; !ok {
			return nil, fmt.Errorf("missing required column %q", name)
		}
	}

	rows := make([][]string, 0, len(records)-1)
	for _, record := range records[1:] {
		if isBlankRow(record) {
			continue
		}
		rows = append(rows, record)
	}

	return &table{columns: columns, rows: rows}, nil
}

func isBlankRow(record []string) bool {
	for _, cell := range record {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}
