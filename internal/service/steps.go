package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/wbklx250-ops/provision-engine/internal/domain"
	"github.com/wbklx250-ops/provision-engine/internal/provider"
	"github.com/wbklx250-ops/provision-engine/internal/ratelimit"
	"github.com/wbklx250-ops/provision-engine/internal/repository"
)

// Rate limiter service keys, one per external collaborator.
const (
	serviceDNS       = "dns"
	serviceMailbox   = "mailbox"
	serviceSequencer = "sequencer"
)

// StepExecutor is one pipeline stage. Items enumerates the units of work
// for a batch; RunItem performs exactly one external call per item. The
// orchestrator owns the loop so pause and retry semantics stay in one
// place.
type StepExecutor interface {
	Name() string
	Order() int
	HumanGated() bool
	Items(ctx context.Context, batch *domain.Batch) ([]domain.StepItem, error)
	RunItem(ctx context.Context, batch *domain.Batch, item domain.StepItem) domain.ItemOutcome
}

// StepDeps carries the collaborators shared by the step executors.
type StepDeps struct {
	Provision          repository.ProvisionRepository
	DNS                provider.DNSProvider
	Mailbox            provider.MailboxProvider
	Jobs               *JobService
	RateLimiter        ratelimit.RateLimiter
	MailboxesPerTenant int
}

// NewStepExecutors builds the pipeline in step order.
func NewStepExecutors(deps StepDeps) ([]StepExecutor, error) {
	if deps.Provision == nil {
		return nil, fmt.Errorf("provision repository is required")
	}
	if deps.DNS == nil {
		return nil, fmt.Errorf("dns provider is required")
	}
	if deps.Mailbox == nil {
		return nil, fmt.Errorf("mailbox provider is required")
	}
	if deps.Jobs == nil {
		return nil, fmt.Errorf("job service is required")
	}
	if deps.RateLimiter == nil {
		return nil, fmt.Errorf("rate limiter is required")
	}
	if deps.MailboxesPerTenant < 1 {
		deps.MailboxesPerTenant = 1
	}

	return []StepExecutor{
		&zoneCreationStep{deps: deps},
		&nameserverUpdateStep{deps: deps},
		&nameserverCheckStep{deps: deps},
		&dnsRecordsStep{deps: deps},
		&firstLoginStep{deps: deps},
		&domainSetupStep{deps: deps},
		&mailboxCreationStep{deps: deps},
		&smtpEnablementStep{deps: deps},
		&credentialExportStep{deps: deps},
		&sequencerUploadStep{deps: deps},
	}, nil
}

func domainItems(ctx context.Context, deps StepDeps, batch *domain.Batch) ([]domain.StepItem, error) {
	domains, err := deps.Provision.ListDomains(ctx, batch.ID)
	if err != nil {
		return nil, err
	}

	items := make([]domain.StepItem, 0, len(domains))
	for _, d := range domains {
		items = append(items, domain.StepItem{Kind: domain.ItemKindDomain, Name: d.Name, Ref: d.ID})
	}
	return items, nil
}

type zoneCreationStep struct {
	deps StepDeps
}

func (s *zoneCreationStep) Name() string     { return domain.StepName(domain.StepZoneCreation) }
func (s *zoneCreationStep) Order() int       { return domain.StepZoneCreation }
func (s *zoneCreationStep) HumanGated() bool { return false }

func (s *zoneCreationStep) Items(ctx context.Context, batch *domain.Batch) ([]domain.StepItem, error) {
	return domainItems(ctx, s.deps, batch)
}

func (s *zoneCreationStep) RunItem(ctx context.Context, batch *domain.Batch, item domain.StepItem) domain.ItemOutcome {
	if err := s.deps.RateLimiter.Wait(ctx, serviceDNS); err != nil {
		return domain.FailedItem(err)
	}

	zoneID, err := s.deps.DNS.CreateZone(ctx, item.Name)
	if err != nil {
		return domain.FailedItem(err)
	}

	if err := s.deps.Provision.SetDomainZone(ctx, item.Ref, zoneID); err != nil {
		return domain.FailedItem(err)
	}

	return domain.CompletedItem(fmt.Sprintf("zone %s created", zoneID))
}

type nameserverUpdateStep struct {
	deps StepDeps
}

func (s *nameserverUpdateStep) Name() string     { return domain.StepName(domain.StepNameserverUpdate) }
func (s *nameserverUpdateStep) Order() int       { return domain.StepNameserverUpdate }
func (s *nameserverUpdateStep) HumanGated() bool { return true }

func (s *nameserverUpdateStep) Items(ctx context.Context, batch *domain.Batch) ([]domain.StepItem, error) {
	return domainItems(ctx, s.deps, batch)
}

func (s *nameserverUpdateStep) RunItem(ctx context.Context, batch *domain.Batch, item domain.StepItem) domain.ItemOutcome {
	d, err := s.deps.Provision.GetDomainByName(ctx, batch.ID, item.Name)
	if err != nil {
		return domain.FailedItem(err)
	}
	if d.ZoneID == "" {
		return domain.FailedItem(fmt.Errorf("domain %s has no zone yet", item.Name))
	}

	if err := s.deps.RateLimiter.Wait(ctx, serviceDNS); err != nil {
		return domain.FailedItem(err)
	}

	pair, err := s.deps.DNS.Nameservers(ctx, d.ZoneID)
	if err != nil {
		return domain.FailedItem(err)
	}

	if err := s.deps.Provision.SetDomainNameservers(ctx, d.ID, pair[0], pair[1]); err != nil {
		return domain.FailedItem(err)
	}

	return domain.CompletedItem(fmt.Sprintf("nameservers %s, %s", pair[0], pair[1]))
}

type nameserverCheckStep struct {
	deps StepDeps
}

func (s *nameserverCheckStep) Name() string     { return domain.StepName(domain.StepNameserverCheck) }
func (s *nameserverCheckStep) Order() int       { return domain.StepNameserverCheck }
func (s *nameserverCheckStep) HumanGated() bool { return false }

func (s *nameserverCheckStep) Items(ctx context.Context, batch *domain.Batch) ([]domain.StepItem, error) {
	return domainItems(ctx, s.deps, batch)
}

func (s *nameserverCheckStep) RunItem(ctx context.Context, batch *domain.Batch, item domain.StepItem) domain.ItemOutcome {
	d, err := s.deps.Provision.GetDomainByName(ctx, batch.ID, item.Name)
	if err != nil {
		return domain.FailedItem(err)
	}
	if !d.HasNameservers() {
		return domain.FailedItem(fmt.Errorf("domain %s has no nameserver pair assigned", item.Name))
	}

	if err := s.deps.RateLimiter.Wait(ctx, serviceDNS); err != nil {
		return domain.FailedItem(err)
	}

	propagated, err := s.deps.DNS.CheckPropagation(ctx, d.Name, [2]string{d.Nameserver1, d.Nameserver2})
	if err != nil {
		return domain.FailedItem(err)
	}
	if !propagated {
		return domain.FailedItem(fmt.Errorf("nameservers for %s not propagated yet", item.Name))
	}

	return domain.CompletedItem("nameservers propagated")
}

type dnsRecordsStep struct {
	deps StepDeps
}

func (s *dnsRecordsStep) Name() string     { return domain.StepName(domain.StepDNSRecords) }
func (s *dnsRecordsStep) Order() int       { return domain.StepDNSRecords }
func (s *dnsRecordsStep) HumanGated() bool { return false }

func (s *dnsRecordsStep) Items(ctx context.Context, batch *domain.Batch) ([]domain.StepItem, error) {
	return domainItems(ctx, s.deps, batch)
}

func (s *dnsRecordsStep) RunItem(ctx context.Context, batch *domain.Batch, item domain.StepItem) domain.ItemOutcome {
	d, err := s.deps.Provision.GetDomainByName(ctx, batch.ID, item.Name)
	if err != nil {
		return domain.FailedItem(err)
	}
	if d.ZoneID == "" {
		return domain.FailedItem(fmt.Errorf("domain %s has no zone yet", item.Name))
	}

	if err := s.deps.RateLimiter.Wait(ctx, serviceDNS); err != nil {
		return domain.FailedItem(err)
	}

	if err := s.deps.DNS.CreateRecords(ctx, d.ZoneID, d.Name); err != nil {
		return domain.FailedItem(err)
	}

	return domain.CompletedItem("sending records created")
}

type firstLoginStep struct {
	deps StepDeps
}

func (s *firstLoginStep) Name() string     { return domain.StepName(domain.StepFirstLogin) }
func (s *firstLoginStep) Order() int       { return domain.StepFirstLogin }
func (s *firstLoginStep) HumanGated() bool { return false }

func (s *firstLoginStep) Items(ctx context.Context, batch *domain.Batch) ([]domain.StepItem, error) {
	tenants, err := s.deps.Provision.ListTenants(ctx, batch.ID)
	if err != nil {
		return nil, err
	}

	items := make([]domain.StepItem, 0, len(tenants))
	for _, t := range tenants {
		items = append(items, domain.StepItem{Kind: domain.ItemKindTenant, Name: t.AdminLogin, Ref: t.ID})
	}
	return items, nil
}

func (s *firstLoginStep) RunItem(ctx context.Context, batch *domain.Batch, item domain.StepItem) domain.ItemOutcome {
	tenant, err := findTenant(ctx, s.deps, batch.ID, item.Ref)
	if err != nil {
		return domain.FailedItem(err)
	}
	if tenant.AdminPassword == "" {
		return domain.FailedItem(fmt.Errorf("tenant %s has no matched credential", item.Name))
	}

	if err := s.deps.RateLimiter.Wait(ctx, serviceMailbox); err != nil {
		return domain.FailedItem(err)
	}

	if err := s.deps.Mailbox.VerifyLogin(ctx, tenant.AdminLogin, tenant.AdminPassword); err != nil {
		return domain.FailedItem(err)
	}

	return domain.CompletedItem("admin login verified")
}

type domainSetupStep struct {
	deps StepDeps
}

func (s *domainSetupStep) Name() string     { return domain.StepName(domain.StepDomainSetup) }
func (s *domainSetupStep) Order() int       { return domain.StepDomainSetup }
func (s *domainSetupStep) HumanGated() bool { return false }

// Items covers only domains linked to a tenant; unlinked domains have
// nothing to set up on the mailbox platform.
func (s *domainSetupStep) Items(ctx context.Context, batch *domain.Batch) ([]domain.StepItem, error) {
	domains, err := s.deps.Provision.ListDomains(ctx, batch.ID)
	if err != nil {
		return nil, err
	}

	items := make([]domain.StepItem, 0, len(domains))
	for _, d := range domains {
		if d.TenantID == nil {
			continue
		}
		items = append(items, domain.StepItem{Kind: domain.ItemKindDomain, Name: d.Name, Ref: d.ID})
	}
	return items, nil
}

func (s *domainSetupStep) RunItem(ctx context.Context, batch *domain.Batch, item domain.StepItem) domain.ItemOutcome {
	d, err := s.deps.Provision.GetDomainByName(ctx, batch.ID, item.Name)
	if err != nil {
		return domain.FailedItem(err)
	}
	if d.TenantID == nil {
		return domain.FailedItem(fmt.Errorf("domain %s is not linked to a tenant", item.Name))
	}

	if err := s.deps.RateLimiter.Wait(ctx, serviceMailbox); err != nil {
		return domain.FailedItem(err)
	}

	if err := s.deps.Mailbox.AddDomain(ctx, *d.TenantID, d.Name); err != nil {
		return domain.FailedItem(err)
	}

	return domain.CompletedItem("domain added to tenant")
}

type mailboxCreationStep struct {
	deps StepDeps
}

func (s *mailboxCreationStep) Name() string     { return domain.StepName(domain.StepMailboxCreation) }
func (s *mailboxCreationStep) Order() int       { return domain.StepMailboxCreation }
func (s *mailboxCreationStep) HumanGated() bool { return false }

// Items enumerates mailboxesPerTenant addresses per tenant, spread
// round-robin over the tenant's linked domains. Tenants without a linked
// domain contribute no items.
func (s *mailboxCreationStep) Items(ctx context.Context, batch *domain.Batch) ([]domain.StepItem, error) {
	domains, err := s.deps.Provision.ListDomains(ctx, batch.ID)
	if err != nil {
		return nil, err
	}
	tenants, err := s.deps.Provision.ListTenants(ctx, batch.ID)
	if err != nil {
		return nil, err
	}

	byTenant := make(map[string][]string)
	for _, d := range domains {
		if d.TenantID == nil {
			continue
		}
		byTenant[*d.TenantID] = append(byTenant[*d.TenantID], d.Name)
	}

	var items []domain.StepItem
	for _, t := range tenants {
		linked := byTenant[t.ID]
		if len(linked) == 0 {
			continue
		}
		for i := 0; i < s.deps.MailboxesPerTenant; i++ {
			email := fmt.Sprintf("outreach%02d@%s", i+1, linked[i%len(linked)])
			items = append(items, domain.StepItem{Kind: domain.ItemKindMailbox, Name: email, Ref: t.ID})
		}
	}
	return items, nil
}

func (s *mailboxCreationStep) RunItem(ctx context.Context, batch *domain.Batch, item domain.StepItem) domain.ItemOutcome {
	if err := s.deps.RateLimiter.Wait(ctx, serviceMailbox); err != nil {
		return domain.FailedItem(err)
	}

	password := generateMailboxPassword()

	if err := s.deps.Mailbox.CreateMailbox(ctx, item.Ref, item.Name, password); err != nil {
		return domain.FailedItem(err)
	}

	credential := &domain.MailboxCredential{
		ID:       uuid.NewString(),
		BatchID:  batch.ID,
		TenantID: item.Ref,
		Email:    strings.ToLower(item.Name),
		Password: password,
	}
	if err := s.deps.Provision.SaveCredential(ctx, credential); err != nil {
		return domain.FailedItem(err)
	}

	return domain.CompletedItem("mailbox created")
}

type smtpEnablementStep struct {
	deps StepDeps
}

func (s *smtpEnablementStep) Name() string     { return domain.StepName(domain.StepSMTPEnablement) }
func (s *smtpEnablementStep) Order() int       { return domain.StepSMTPEnablement }
func (s *smtpEnablementStep) HumanGated() bool { return false }

func (s *smtpEnablementStep) Items(ctx context.Context, batch *domain.Batch) ([]domain.StepItem, error) {
	return credentialItems(ctx, s.deps, batch)
}

func (s *smtpEnablementStep) RunItem(ctx context.Context, batch *domain.Batch, item domain.StepItem) domain.ItemOutcome {
	if err := s.deps.RateLimiter.Wait(ctx, serviceMailbox); err != nil {
		return domain.FailedItem(err)
	}

	if err := s.deps.Mailbox.EnableSMTPAuth(ctx, item.Ref, item.Name); err != nil {
		return domain.FailedItem(err)
	}

	return domain.CompletedItem("smtp auth enabled")
}

type credentialExportStep struct {
	deps StepDeps
}

func (s *credentialExportStep) Name() string     { return domain.StepName(domain.StepCredentialExport) }
func (s *credentialExportStep) Order() int       { return domain.StepCredentialExport }
func (s *credentialExportStep) HumanGated() bool { return false }

func (s *credentialExportStep) Items(ctx context.Context, batch *domain.Batch) ([]domain.StepItem, error) {
	credentials, err := s.deps.Provision.ListCredentials(ctx, batch.ID)
	if err != nil {
		return nil, err
	}

	items := make([]domain.StepItem, 0, len(credentials))
	for _, c := range credentials {
		items = append(items, domain.StepItem{Kind: domain.ItemKindMailbox, Name: c.Email, Ref: c.ID})
	}
	return items, nil
}

// RunItem marks the credential exported. No external call: exported rows
// are what the sequencer upload job reads.
func (s *credentialExportStep) RunItem(ctx context.Context, batch *domain.Batch, item domain.StepItem) domain.ItemOutcome {
	if err := s.deps.Provision.MarkCredentialExported(ctx, item.Ref); err != nil {
		return domain.FailedItem(err)
	}
	return domain.CompletedItem("credential exported")
}

type sequencerUploadStep struct {
	deps StepDeps
}

func (s *sequencerUploadStep) Name() string     { return domain.StepName(domain.StepSequencerUpload) }
func (s *sequencerUploadStep) Order() int       { return domain.StepSequencerUpload }
func (s *sequencerUploadStep) HumanGated() bool { return false }

// Items is the single job submission for the batch.
func (s *sequencerUploadStep) Items(ctx context.Context, batch *domain.Batch) ([]domain.StepItem, error) {
	return []domain.StepItem{
		{Kind: domain.ItemKindBatch, Name: "sequencer upload job", Ref: batch.ID},
	}, nil
}

func (s *sequencerUploadStep) RunItem(ctx context.Context, batch *domain.Batch, item domain.StepItem) domain.ItemOutcome {
	if batch.SequencerAccountID == nil || strings.TrimSpace(*batch.SequencerAccountID) == "" {
		return domain.FailedItem(fmt.Errorf("batch has no sequencer account configured"))
	}

	job, err := s.deps.Jobs.Submit(ctx, domain.JobSpec{
		Kind:               domain.JobKindSequencerUpload,
		BatchID:            batch.ID,
		SequencerAccountID: *batch.SequencerAccountID,
		SkipExisting:       true,
	})
	if err != nil {
		return domain.FailedItem(err)
	}

	return domain.CompletedItem(fmt.Sprintf("background job %s submitted", job.ID))
}

func credentialItems(ctx context.Context, deps StepDeps, batch *domain.Batch) ([]domain.StepItem, error) {
	credentials, err := deps.Provision.ListCredentials(ctx, batch.ID)
	if err != nil {
		return nil, err
	}

	items := make([]domain.StepItem, 0, len(credentials))
	for _, c := range credentials {
		items = append(items, domain.StepItem{Kind: domain.ItemKindMailbox, Name: c.Email, Ref: c.TenantID})
	}
	return items, nil
}

func findTenant(ctx context.Context, deps StepDeps, batchID, tenantID string) (*domain.Tenant, error) {
	tenants, err := deps.Provision.ListTenants(ctx, batchID)
	if err != nil {
		return nil, err
	}
	for i := range tenants {
		if tenants[i].ID == tenantID {
			return &tenants[i], nil
		}
	}
	return nil, fmt.Errorf("%w: tenant %s", domain.ErrNotFound, tenantID)
}

// generateMailboxPassword returns an unguessable one-off password. UUIDs
// are random enough here and keep the dependency surface flat.
func generateMailboxPassword() string {
	return "Mb-" + strings.ReplaceAll(uuid.NewString(), "-", "")[:20]
}
