package service

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"testing"

	"go.uber.org/zap"

	"github.com/wbklx250-ops/provision-engine/internal/domain"
	"github.com/wbklx250-ops/provision-engine/internal/provider"
	"github.com/wbklx250-ops/provision-engine/internal/queue"
)

type workerFixture struct {
	worker    *JobWorker
	jobs      *memJobRepo
	uploads   *memUploadRepo
	provision *memProvisionRepo
	sequencer *fakeSequencer
	dns       *fakeDNS
	mailbox   *fakeMailbox
}

type noopConsumer struct{}

func (noopConsumer) Consume(ctx context.Context, queueName string, handler queue.MessageHandler) error {
	<-ctx.Done()
	return nil
}

func (noopConsumer) Close() error { return nil }

type recordingConsumer struct {
	mu     sync.Mutex
	queues []string
}

func (c *recordingConsumer) Consume(ctx context.Context, queueName string, handler queue.MessageHandler) error {
	c.mu.Lock()
	c.queues = append(c.queues, queueName)
	c.mu.Unlock()
	<-ctx.Done()
	return nil
}

func (c *recordingConsumer) Close() error { return nil }

func (c *recordingConsumer) consumed() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.queues))
	copy(out, c.queues)
	sort.Strings(out)
	return out
}

func newWorkerFixture(t *testing.T) *workerFixture {
	t.Helper()

	f := &workerFixture{
		jobs:      newMemJobRepo(),
		uploads:   newMemUploadRepo(),
		provision: newMemProvisionRepo(),
		sequencer: &fakeSequencer{},
		dns:       &fakeDNS{},
		mailbox:   &fakeMailbox{},
	}

	worker, err := NewJobWorker(
		f.jobs, f.uploads, f.provision,
		f.dns, f.mailbox, f.sequencer,
		noopConsumer{}, fakeRateLimiter{}, 2, zap.NewNop(),
	)
	if err != nil {
		t.Fatalf("NewJobWorker() error = %v", err)
	}
	f.worker = worker
	return f
}

func (f *workerFixture) seedUploadJob(t *testing.T, jobID string, emails []string) []queue.JobItemMessage {
	t.Helper()
	ctx := context.Background()

	for i, email := range emails {
		err := f.provision.SaveCredential(ctx, &domain.MailboxCredential{
			ID:       fmt.Sprintf("%s-cred-%d", jobID, i),
			BatchID:  "batch-1",
			TenantID: testTenantOne,
			Email:    email,
			Password: "pw",
			Exported: true,
		})
		if err != nil {
			t.Fatalf("SaveCredential() error = %v", err)
		}
	}

	if err := f.jobs.Create(ctx, &domain.BackgroundJob{
		ID:           jobID,
		Kind:         domain.JobKindSequencerUpload,
		Status:       domain.JobStatusRunning,
		SkipExisting: true,
		Total:        len(emails),
	}); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	messages := make([]queue.JobItemMessage, 0, len(emails))
	for _, email := range emails {
		messages = append(messages, queue.JobItemMessage{
			JobID:              jobID,
			Kind:               domain.JobKindSequencerUpload,
			ItemName:           email,
			SequencerAccountID: "acct-1",
			SkipExisting:       true,
		})
	}
	return messages
}

func TestSkipExistingIsIdempotent(t *testing.T) {
	t.Parallel()

	f := newWorkerFixture(t)
	ctx := context.Background()

	emails := make([]string, 0, 10)
	for i := 0; i < 10; i++ {
		emails = append(emails, fmt.Sprintf("rep%02d@alpha.com", i))
	}
	messages := f.seedUploadJob(t, "job-1", emails)

	// Two mailboxes were already uploaded to this account in a prior run.
	for _, email := range emails[:2] {
		err := f.uploads.Record(ctx, &domain.SequencerUpload{
			ID: "prior-" + email, SequencerAccountID: "acct-1", Email: email,
		})
		if err != nil {
			t.Fatalf("Record() error = %v", err)
		}
	}

	for _, msg := range messages {
		if err := f.worker.processMessage(ctx, msg); err != nil {
			t.Fatalf("processMessage(%s) error = %v", msg.ItemName, err)
		}
	}

	job, err := f.jobs.GetByID(ctx, "job-1")
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if job.Skipped != 2 {
		t.Fatalf("skipped = %d, want 2", job.Skipped)
	}
	if job.Succeeded != 8 {
		t.Fatalf("succeeded = %d, want 8", job.Succeeded)
	}
	if got := f.sequencer.calls(); got > 8 {
		t.Fatalf("upload calls = %d, want at most 8", got)
	}
	if job.Status != domain.JobStatusCompleted {
		t.Fatalf("job status = %s, want completed", job.Status)
	}

	// A full resubmission uploads nothing new.
	for _, email := range emails[2:] {
		exists, err := f.uploads.Exists(ctx, "acct-1", email)
		if err != nil {
			t.Fatalf("Exists() error = %v", err)
		}
		if !exists {
			t.Fatalf("upload history missing %s", email)
		}
	}
}

func TestUploadPermanentFailureRecordsFailedItem(t *testing.T) {
	t.Parallel()

	f := newWorkerFixture(t)
	ctx := context.Background()

	messages := f.seedUploadJob(t, "job-1", []string{"rep@alpha.com"})
	f.sequencer.uploadFn = func(ctx context.Context, accountID, email, password string) error {
		return &provider.ProviderError{StatusCode: http.StatusBadRequest, Message: "mailbox rejected"}
	}

	if err := f.worker.processMessage(ctx, messages[0]); err != nil {
		t.Fatalf("processMessage() error = %v", err)
	}

	job, _ := f.jobs.GetByID(ctx, "job-1")
	if job.Failed != 1 {
		t.Fatalf("failed = %d, want 1", job.Failed)
	}
	if job.Status != domain.JobStatusCompleted {
		t.Fatalf("job status = %s, want completed (item failure never fails the job)", job.Status)
	}

	results, _ := f.jobs.ListItemResults(ctx, "job-1", 0)
	if len(results) != 1 || results[0].Outcome != domain.JobItemFailed {
		t.Fatalf("results = %+v, want one failed item result", results)
	}
}

func TestUploadTransientFailureRequeues(t *testing.T) {
	t.Parallel()

	f := newWorkerFixture(t)
	ctx := context.Background()

	messages := f.seedUploadJob(t, "job-1", []string{"rep@alpha.com"})
	f.sequencer.uploadFn = func(ctx context.Context, accountID, email, password string) error {
		return &provider.ProviderError{StatusCode: http.StatusBadGateway, Message: "upstream flapped", Transient: true}
	}

	if err := f.worker.processMessage(ctx, messages[0]); err == nil {
		t.Fatal("processMessage() error = nil, want transient error for requeue")
	}

	job, _ := f.jobs.GetByID(ctx, "job-1")
	if job.Succeeded != 0 || job.Failed != 0 || job.Skipped != 0 {
		t.Fatalf("counters moved on a transient failure: %+v", job)
	}
	if job.Status != domain.JobStatusRunning {
		t.Fatalf("job status = %s, want still running", job.Status)
	}
}

func TestDomainRemovalItem(t *testing.T) {
	t.Parallel()

	f := newWorkerFixture(t)
	ctx := context.Background()

	var deletedZones, removedDomains []string
	f.dns.deleteZoneFn = func(ctx context.Context, domainName string) error {
		deletedZones = append(deletedZones, domainName)
		return nil
	}
	f.mailbox.removeDomainFn = func(ctx context.Context, domainName string) error {
		removedDomains = append(removedDomains, domainName)
		return nil
	}

	if err := f.jobs.Create(ctx, &domain.BackgroundJob{
		ID:     "job-2",
		Kind:   domain.JobKindDomainRemoval,
		Status: domain.JobStatusRunning,
		Total:  1,
	}); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	err := f.worker.processMessage(ctx, queue.JobItemMessage{
		JobID:    "job-2",
		Kind:     domain.JobKindDomainRemoval,
		ItemName: "alpha.com",
	})
	if err != nil {
		t.Fatalf("processMessage() error = %v", err)
	}

	if len(deletedZones) != 1 || deletedZones[0] != "alpha.com" {
		t.Fatalf("deleted zones = %v, want [alpha.com]", deletedZones)
	}
	if len(removedDomains) != 1 || removedDomains[0] != "alpha.com" {
		t.Fatalf("removed domains = %v, want [alpha.com]", removedDomains)
	}

	job, _ := f.jobs.GetByID(ctx, "job-2")
	if job.Succeeded != 1 || job.Status != domain.JobStatusCompleted {
		t.Fatalf("job = %+v, want one success and completed", job)
	}
}

func TestDroppedItemForUnknownJob(t *testing.T) {
	t.Parallel()

	f := newWorkerFixture(t)

	err := f.worker.processMessage(context.Background(), queue.JobItemMessage{
		JobID:    "no-such-job",
		Kind:     domain.JobKindDomainRemoval,
		ItemName: "alpha.com",
	})
	if err != nil {
		t.Fatalf("processMessage() error = %v, want nil (drop, not requeue)", err)
	}
}

func TestStartConsumesEveryWorkQueue(t *testing.T) {
	t.Parallel()

	consumer := &recordingConsumer{}
	worker, err := NewJobWorker(
		newMemJobRepo(), newMemUploadRepo(), newMemProvisionRepo(),
		&fakeDNS{}, &fakeMailbox{}, &fakeSequencer{},
		consumer, fakeRateLimiter{}, 1, zap.NewNop(),
	)
	if err != nil {
		t.Fatalf("NewJobWorker() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := worker.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	// A single-worker deployment still gets a consumer on every job
	// queue; otherwise one job kind would never drain.
	want := queue.WorkQueueNames()
	sort.Strings(want)
	got := consumer.consumed()
	if len(got) != len(want) {
		t.Fatalf("consumed queues = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("consumed queues = %v, want %v", got, want)
		}
	}
}
