package artifact

import (
	"strings"
	"testing"
)

const (
	tenantA = "0f8fad5b-d9cb-469f-a165-70867728950e"
	tenantB = "7c9e6679-7425-40de-944b-e07fc1f90ae7"
)

func cleanArtifacts() (string, string, string) {
	domains := `domain,tenant_id
alpha.com,` + tenantA + `
bravo.com,` + tenantA + `
charlie.com,` + tenantB + `
`
	tenants := `tenant_id,admin_email,name
` + tenantA + `,admin@alpha.com,Alpha LLC
` + tenantB + `,admin@charlie.com,Charlie LLC
`
	credentials := `username,password
admin@alpha.com,pw-one
admin@charlie.com,pw-two
`
	return domains, tenants, credentials
}

func TestValidateCleanBatch(t *testing.T) {
	t.Parallel()

	engine, err := NewEngine(50)
	if err != nil {
		t.Fatalf("NewEngine() error = %v", err)
	}

	domains, tenants, credentials := cleanArtifacts()
	result, parsed := engine.Validate(domains, tenants, credentials)

	if !result.Valid {
		t.Fatalf("Valid = false, errors = %v", result.Errors)
	}
	if len(result.Errors) != 0 || len(result.Warnings) != 0 {
		t.Fatalf("errors = %v, warnings = %v, want none", result.Errors, result.Warnings)
	}
	if result.Summary.Domains != 3 || result.Summary.Tenants != 2 {
		t.Fatalf("summary = %+v, want 3 domains and 2 tenants", result.Summary)
	}
	if result.Summary.ExpectedMailboxes != 100 {
		t.Fatalf("expected mailboxes = %d, want 100", result.Summary.ExpectedMailboxes)
	}
	if result.Summary.MatchedCredentials != 2 || result.Summary.LinkedDomains != 3 {
		t.Fatalf("summary = %+v, want full matching", result.Summary)
	}

	if len(parsed.Tenants) != 2 {
		t.Fatalf("parsed tenants = %d, want 2", len(parsed.Tenants))
	}
	if parsed.Tenants[0].Password != "pw-one" {
		t.Fatalf("tenant password = %q, want matched credential", parsed.Tenants[0].Password)
	}
}

func TestValidateToleratesBlankLinesAndWhitespace(t *testing.T) {
	t.Parallel()

	engine, _ := NewEngine(50)
	domains := "domain,tenant_id\n\n  ALPHA.COM  ," + tenantA + "\n\n"
	tenants := "tenant_id,admin_email\n" + strings.ToUpper(tenantA) + ", ADMIN@Alpha.com \n"
	credentials := "username,password\n Admin@alpha.com ,pw\n"

	result, parsed := engine.Validate(domains, tenants, credentials)
	if !result.Valid {
		t.Fatalf("Valid = false, errors = %v", result.Errors)
	}
	if parsed.Domains[0].Name != "alpha.com" {
		t.Fatalf("domain = %q, want lowercased trimmed name", parsed.Domains[0].Name)
	}
	if result.Summary.MatchedCredentials != 1 {
		t.Fatalf("matched credentials = %d, want case-insensitive match", result.Summary.MatchedCredentials)
	}
}

func TestValidateDuplicateDomainBlocks(t *testing.T) {
	t.Parallel()

	engine, _ := NewEngine(50)
	domains := "domain\nalpha.com\nalpha.com\n"
	_, tenants, credentials := cleanArtifacts()

	result, _ := engine.Validate(domains, tenants, credentials)
	if result.Valid {
		t.Fatal("Valid = true, duplicate domain must block batch start")
	}
	if len(result.Errors) != 1 || !strings.Contains(result.Errors[0], "duplicate") {
		t.Fatalf("errors = %v, want duplicate domain error", result.Errors)
	}
}

func TestValidateMalformedTenantGUIDBlocks(t *testing.T) {
	t.Parallel()

	engine, _ := NewEngine(50)
	domains, _, credentials := cleanArtifacts()
	tenants := "tenant_id,admin_email\nnot-a-guid,admin@alpha.com\n"

	result, _ := engine.Validate(domains, tenants, credentials)
	if result.Valid {
		t.Fatal("Valid = true, malformed GUID must block batch start")
	}
}

func TestValidateMissingColumnBlocks(t *testing.T) {
	t.Parallel()

	engine, _ := NewEngine(50)
	_, tenants, credentials := cleanArtifacts()

	result, _ := engine.Validate("hostname\nalpha.com\n", tenants, credentials)
	if result.Valid {
		t.Fatal("Valid = true, missing required column must block batch start")
	}
	if len(result.Errors) == 0 || !strings.Contains(result.Errors[0], "domain") {
		t.Fatalf("errors = %v, want missing column error", result.Errors)
	}
}

func TestValidateUnmatchedCredentialIsWarning(t *testing.T) {
	t.Parallel()

	engine, _ := NewEngine(50)
	domains, tenants, _ := cleanArtifacts()
	credentials := "username,password\nadmin@alpha.com,pw-one\n"

	result, parsed := engine.Validate(domains, tenants, credentials)
	if !result.Valid {
		t.Fatalf("Valid = false, unmatched credential must not block: %v", result.Errors)
	}
	if len(result.Warnings) != 1 {
		t.Fatalf("warnings = %v, want one unmatched-tenant warning", result.Warnings)
	}
	if result.Summary.UnmatchedTenants != 1 {
		t.Fatalf("unmatched tenants = %d, want 1", result.Summary.UnmatchedTenants)
	}
	if parsed.Tenants[1].Password != "" {
		t.Fatalf("unmatched tenant password = %q, want empty", parsed.Tenants[1].Password)
	}
}

func TestValidateUnlinkedDomainIsWarning(t *testing.T) {
	t.Parallel()

	engine, _ := NewEngine(50)
	_, tenants, credentials := cleanArtifacts()
	domains := "domain,tenant_id\nalpha.com,\nbravo.com," + tenantA + "\n"

	result, _ := engine.Validate(domains, tenants, credentials)
	if !result.Valid {
		t.Fatalf("Valid = false, unlinked domain must not block: %v", result.Errors)
	}
	if result.Summary.LinkedDomains != 1 {
		t.Fatalf("linked domains = %d, want 1", result.Summary.LinkedDomains)
	}
	found := false
	for _, w := range result.Warnings {
		if strings.Contains(w, "no tenant link") {
			found = true
		}
	}
	if !found {
		t.Fatalf("warnings = %v, want no-tenant-link warning", result.Warnings)
	}
}
