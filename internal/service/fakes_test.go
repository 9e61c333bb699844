package service

import (
	"context"
	"fmt"
	"sync"

	"github.com/wbklx250-ops/provision-engine/internal/domain"
	"github.com/wbklx250-ops/provision-engine/internal/queue"
)

type memBatchRepo struct {
	mu      sync.Mutex
	batches map[string]*domain.Batch
}

func newMemBatchRepo() *memBatchRepo {
	return &memBatchRepo{batches: make(map[string]*domain.Batch)}
}

func (r *memBatchRepo) Create(ctx context.Context, b *domain.Batch) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := *b
	r.batches[b.ID] = &copied
	return nil
}

func (r *memBatchRepo) GetByID(ctx context.Context, id string) (*domain.Batch, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.batches[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	copied := *b
	return &copied, nil
}

func (r *memBatchRepo) UpdateState(ctx context.Context, id string, status domain.BatchStatus, currentStep int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.batches[id]
	if !ok {
		return domain.ErrNotFound
	}
	b.Status = status
	b.CurrentStep = currentStep
	b.Version++
	return nil
}

type stepKey struct {
	batchID string
	step    int
}

type itemKey struct {
	batchID string
	step    int
	item    string
}

type memStepRepo struct {
	mu      sync.Mutex
	records map[stepKey]*domain.StepRecord
	items   map[itemKey]*domain.StepItemResult
}

func newMemStepRepo() *memStepRepo {
	return &memStepRepo{
		records: make(map[stepKey]*domain.StepRecord),
		items:   make(map[itemKey]*domain.StepItemResult),
	}
}

func (r *memStepRepo) UpsertRecord(ctx context.Context, record *domain.StepRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := *record
	r.records[stepKey{record.BatchID, record.StepNumber}] = &copied
	return nil
}

func (r *memStepRepo) GetRecord(ctx context.Context, batchID string, step int) (*domain.StepRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	record, ok := r.records[stepKey{batchID, step}]
	if !ok {
		return nil, domain.ErrNotFound
	}
	copied := *record
	return &copied, nil
}

func (r *memStepRepo) ListRecords(ctx context.Context, batchID string) ([]domain.StepRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var records []domain.StepRecord
	for step := domain.FirstStep; step <= domain.LastStep; step++ {
		if record, ok := r.records[stepKey{batchID, step}]; ok {
			records = append(records, *record)
		}
	}
	return records, nil
}

func (r *memStepRepo) SetRecordStatus(ctx context.Context, batchID string, step int, status domain.StepStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	record, ok := r.records[stepKey{batchID, step}]
	if !ok {
		return domain.ErrNotFound
	}
	record.Status = status
	return nil
}

func (r *memStepRepo) IncrementCounters(ctx context.Context, batchID string, step, completedDelta, failedDelta int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	record, ok := r.records[stepKey{batchID, step}]
	if !ok {
		return domain.ErrNotFound
	}
	record.Completed += completedDelta
	record.Failed += failedDelta
	return nil
}

func (r *memStepRepo) SaveItemResult(ctx context.Context, result *domain.StepItemResult) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := *result
	r.items[itemKey{result.BatchID, result.StepNumber, result.ItemName}] = &copied
	return nil
}

func (r *memStepRepo) ListItemResults(ctx context.Context, batchID string, step int) ([]domain.StepItemResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var results []domain.StepItemResult
	for key, result := range r.items {
		if key.batchID == batchID && key.step == step {
			results = append(results, *result)
		}
	}
	return results, nil
}

func (r *memStepRepo) ListItemsByOutcome(ctx context.Context, batchID string, step int, outcome domain.ItemOutcomeStatus) ([]domain.StepItemResult, error) {
	all, _ := r.ListItemResults(ctx, batchID, step)
	var results []domain.StepItemResult
	for _, result := range all {
		if result.Outcome == outcome {
			results = append(results, result)
		}
	}
	return results, nil
}

func (r *memStepRepo) Reset(ctx context.Context, batchID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for key := range r.records {
		if key.batchID == batchID {
			delete(r.records, key)
		}
	}
	for key := range r.items {
		if key.batchID == batchID {
			delete(r.items, key)
		}
	}
	return nil
}

type memActivityRepo struct {
	mu      sync.Mutex
	entries []domain.ActivityLogEntry
}

func newMemActivityRepo() *memActivityRepo {
	return &memActivityRepo{}
}

func (r *memActivityRepo) Append(ctx context.Context, entry *domain.ActivityLogEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, *entry)
	return nil
}

func (r *memActivityRepo) ListByBatch(ctx context.Context, batchID string, limit int) ([]domain.ActivityLogEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var entries []domain.ActivityLogEntry
	for i := len(r.entries) - 1; i >= 0; i-- {
		if r.entries[i].BatchID == batchID {
			entries = append(entries, r.entries[i])
		}
		if limit > 0 && len(entries) >= limit {
			break
		}
	}
	return entries, nil
}

type memProvisionRepo struct {
	mu          sync.Mutex
	domains     []domain.ProvisionDomain
	tenants     []domain.Tenant
	credentials []domain.MailboxCredential
}

func newMemProvisionRepo() *memProvisionRepo {
	return &memProvisionRepo{}
}

func (r *memProvisionRepo) CreateDomains(ctx context.Context, domains []*domain.ProvisionDomain) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, d := range domains {
		r.domains = append(r.domains, *d)
	}
	return nil
}

func (r *memProvisionRepo) ListDomains(ctx context.Context, batchID string) ([]domain.ProvisionDomain, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.ProvisionDomain
	for _, d := range r.domains {
		if d.BatchID == batchID {
			out = append(out, d)
		}
	}
	return out, nil
}

func (r *memProvisionRepo) GetDomainByName(ctx context.Context, batchID, name string) (*domain.ProvisionDomain, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.domains {
		if r.domains[i].BatchID == batchID && r.domains[i].Name == name {
			copied := r.domains[i]
			return &copied, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (r *memProvisionRepo) SetDomainZone(ctx context.Context, id, zoneID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.domains {
		if r.domains[i].ID == id {
			r.domains[i].ZoneID = zoneID
			return nil
		}
	}
	return domain.ErrNotFound
}

func (r *memProvisionRepo) SetDomainNameservers(ctx context.Context, id, ns1, ns2 string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.domains {
		if r.domains[i].ID == id {
			r.domains[i].Nameserver1 = ns1
			r.domains[i].Nameserver2 = ns2
			return nil
		}
	}
	return domain.ErrNotFound
}

func (r *memProvisionRepo) CreateTenants(ctx context.Context, tenants []*domain.Tenant) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range tenants {
		r.tenants = append(r.tenants, *t)
	}
	return nil
}

func (r *memProvisionRepo) ListTenants(ctx context.Context, batchID string) ([]domain.Tenant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Tenant
	for _, t := range r.tenants {
		if t.BatchID == batchID {
			out = append(out, t)
		}
	}
	return out, nil
}

func (r *memProvisionRepo) SaveCredential(ctx context.Context, credential *domain.MailboxCredential) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.credentials {
		if r.credentials[i].BatchID == credential.BatchID && r.credentials[i].Email == credential.Email {
			r.credentials[i].Password = credential.Password
			r.credentials[i].TenantID = credential.TenantID
			return nil
		}
	}
	r.credentials = append(r.credentials, *credential)
	return nil
}

func (r *memProvisionRepo) GetCredentialByEmail(ctx context.Context, email string) (*domain.MailboxCredential, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.credentials {
		if r.credentials[i].Email == email {
			copied := r.credentials[i]
			return &copied, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (r *memProvisionRepo) ListCredentials(ctx context.Context, batchID string) ([]domain.MailboxCredential, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.MailboxCredential
	for _, c := range r.credentials {
		if c.BatchID == batchID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (r *memProvisionRepo) ListExportedCredentials(ctx context.Context, batchID string) ([]domain.MailboxCredential, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.MailboxCredential
	for _, c := range r.credentials {
		if c.BatchID == batchID && c.Exported {
			out = append(out, c)
		}
	}
	return out, nil
}

func (r *memProvisionRepo) MarkCredentialExported(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.credentials {
		if r.credentials[i].ID == id {
			r.credentials[i].Exported = true
			return nil
		}
	}
	return domain.ErrNotFound
}

type memJobRepo struct {
	mu      sync.Mutex
	jobs    map[string]*domain.BackgroundJob
	results []domain.JobItemResult
}

func newMemJobRepo() *memJobRepo {
	return &memJobRepo{jobs: make(map[string]*domain.BackgroundJob)}
}

func (r *memJobRepo) Create(ctx context.Context, job *domain.BackgroundJob) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := *job
	r.jobs[job.ID] = &copied
	return nil
}

func (r *memJobRepo) GetByID(ctx context.Context, id string) (*domain.BackgroundJob, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	copied := *job
	return &copied, nil
}

func (r *memJobRepo) SetStatus(ctx context.Context, id string, status domain.JobStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[id]
	if !ok {
		return domain.ErrNotFound
	}
	job.Status = status
	return nil
}

func (r *memJobRepo) IncrementCounter(ctx context.Context, id string, outcome domain.JobItemOutcome) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[id]
	if !ok {
		return domain.ErrNotFound
	}
	switch outcome {
	case domain.JobItemSucceeded:
		job.Succeeded++
	case domain.JobItemFailed:
		job.Failed++
	case domain.JobItemSkipped:
		job.Skipped++
	default:
		return domain.ErrValidation
	}
	return nil
}

func (r *memJobRepo) AppendItemResult(ctx context.Context, result *domain.JobItemResult) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.results = append(r.results, *result)
	return nil
}

func (r *memJobRepo) ListItemResults(ctx context.Context, jobID string, limit int) ([]domain.JobItemResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.JobItemResult
	for _, result := range r.results {
		if result.JobID == jobID {
			out = append(out, result)
		}
	}
	return out, nil
}

func (r *memJobRepo) FinalizeIfDone(ctx context.Context, id string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[id]
	if !ok {
		return false, domain.ErrNotFound
	}
	if job.Status != domain.JobStatusRunning {
		return false, nil
	}
	if job.Succeeded+job.Failed+job.Skipped < job.Total {
		return false, nil
	}
	job.Status = domain.JobStatusCompleted
	return true, nil
}

type memUploadRepo struct {
	mu       sync.Mutex
	uploaded map[string]bool
}

func newMemUploadRepo() *memUploadRepo {
	return &memUploadRepo{uploaded: make(map[string]bool)}
}

func uploadKey(accountID, email string) string {
	return accountID + "|" + email
}

func (r *memUploadRepo) Exists(ctx context.Context, accountID, email string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.uploaded[uploadKey(accountID, email)], nil
}

func (r *memUploadRepo) Record(ctx context.Context, upload *domain.SequencerUpload) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.uploaded[uploadKey(upload.SequencerAccountID, upload.Email)] = true
	return nil
}

type fakePublisher struct {
	mu        sync.Mutex
	messages  []queue.JobItemMessage
	err       error
	publishFn func(ctx context.Context, queueName string, msg queue.JobItemMessage) error
}

func (p *fakePublisher) Publish(ctx context.Context, queueName string, msg queue.JobItemMessage) error {
	p.mu.Lock()
	if p.err != nil {
		p.mu.Unlock()
		return p.err
	}
	p.messages = append(p.messages, msg)
	p.mu.Unlock()

	if p.publishFn != nil {
		return p.publishFn(ctx, queueName, msg)
	}
	return nil
}

func (p *fakePublisher) Close() error { return nil }

func (p *fakePublisher) published() []queue.JobItemMessage {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]queue.JobItemMessage, len(p.messages))
	copy(out, p.messages)
	return out
}

type fakeSequencer struct {
	mu          sync.Mutex
	validateFn  func(ctx context.Context, accountID string) error
	uploadFn    func(ctx context.Context, accountID, email, password string) error
	uploadCalls int
}

func (f *fakeSequencer) ValidateCredentials(ctx context.Context, accountID string) error {
	if f.validateFn != nil {
		return f.validateFn(ctx, accountID)
	}
	return nil
}

func (f *fakeSequencer) UploadAccount(ctx context.Context, accountID, email, password string) error {
	f.mu.Lock()
	f.uploadCalls++
	f.mu.Unlock()
	if f.uploadFn != nil {
		return f.uploadFn(ctx, accountID, email, password)
	}
	return nil
}

func (f *fakeSequencer) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.uploadCalls
}

type fakeDNS struct {
	createZoneFn       func(ctx context.Context, domainName string) (string, error)
	nameserversFn      func(ctx context.Context, zoneID string) ([2]string, error)
	checkPropagationFn func(ctx context.Context, domainName string, nameservers [2]string) (bool, error)
	createRecordsFn    func(ctx context.Context, zoneID, domainName string) error
	deleteZoneFn       func(ctx context.Context, domainName string) error
}

func (f *fakeDNS) CreateZone(ctx context.Context, domainName string) (string, error) {
	if f.createZoneFn != nil {
		return f.createZoneFn(ctx, domainName)
	}
	return "zone-" + domainName, nil
}

func (f *fakeDNS) Nameservers(ctx context.Context, zoneID string) ([2]string, error) {
	if f.nameserversFn != nil {
		return f.nameserversFn(ctx, zoneID)
	}
	return [2]string{"ns1.host.net", "ns2.host.net"}, nil
}

func (f *fakeDNS) CheckPropagation(ctx context.Context, domainName string, nameservers [2]string) (bool, error) {
	if f.checkPropagationFn != nil {
		return f.checkPropagationFn(ctx, domainName, nameservers)
	}
	return true, nil
}

func (f *fakeDNS) CreateRecords(ctx context.Context, zoneID, domainName string) error {
	if f.createRecordsFn != nil {
		return f.createRecordsFn(ctx, zoneID, domainName)
	}
	return nil
}

func (f *fakeDNS) DeleteZone(ctx context.Context, domainName string) error {
	if f.deleteZoneFn != nil {
		return f.deleteZoneFn(ctx, domainName)
	}
	return nil
}

type fakeMailbox struct {
	verifyLoginFn   func(ctx context.Context, login, password string) error
	addDomainFn     func(ctx context.Context, tenantID, domainName string) error
	createMailboxFn func(ctx context.Context, tenantID, email, password string) error
	enableSMTPFn    func(ctx context.Context, tenantID, email string) error
	removeDomainFn  func(ctx context.Context, domainName string) error
}

func (f *fakeMailbox) VerifyLogin(ctx context.Context, login, password string) error {
	if f.verifyLoginFn != nil {
		return f.verifyLoginFn(ctx, login, password)
	}
	return nil
}

func (f *fakeMailbox) AddDomain(ctx context.Context, tenantID, domainName string) error {
	if f.addDomainFn != nil {
		return f.addDomainFn(ctx, tenantID, domainName)
	}
	return nil
}

func (f *fakeMailbox) CreateMailbox(ctx context.Context, tenantID, email, password string) error {
	if f.createMailboxFn != nil {
		return f.createMailboxFn(ctx, tenantID, email, password)
	}
	return nil
}

func (f *fakeMailbox) EnableSMTPAuth(ctx context.Context, tenantID, email string) error {
	if f.enableSMTPFn != nil {
		return f.enableSMTPFn(ctx, tenantID, email)
	}
	return nil
}

func (f *fakeMailbox) RemoveDomain(ctx context.Context, domainName string) error {
	if f.removeDomainFn != nil {
		return f.removeDomainFn(ctx, domainName)
	}
	return nil
}

type fakeRateLimiter struct{}

func (fakeRateLimiter) Allow(ctx context.Context, service string) (bool, error) { return true, nil }
func (fakeRateLimiter) Wait(ctx context.Context, service string) error          { return nil }

// testStep is a scriptable executor that records which items ran.
type testStep struct {
	order int
	gated bool
	items []domain.StepItem

	mu    sync.Mutex
	ran   []string
	runFn func(item domain.StepItem) domain.ItemOutcome
}

func (s *testStep) Name() string     { return fmt.Sprintf("test step %d", s.order) }
func (s *testStep) Order() int       { return s.order }
func (s *testStep) HumanGated() bool { return s.gated }

func (s *testStep) Items(ctx context.Context, batch *domain.Batch) ([]domain.StepItem, error) {
	return s.items, nil
}

func (s *testStep) RunItem(ctx context.Context, batch *domain.Batch, item domain.StepItem) domain.ItemOutcome {
	s.mu.Lock()
	s.ran = append(s.ran, item.Name)
	s.mu.Unlock()
	if s.runFn != nil {
		return s.runFn(item)
	}
	return domain.CompletedItem("ok")
}

func (s *testStep) ranItems() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.ran))
	copy(out, s.ran)
	return out
}
