package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/wbklx250-ops/provision-engine/internal/domain"
	"github.com/wbklx250-ops/provision-engine/internal/observability"
	"github.com/wbklx250-ops/provision-engine/internal/provider"
	"github.com/wbklx250-ops/provision-engine/internal/queue"
	"github.com/wbklx250-ops/provision-engine/internal/ratelimit"
	"github.com/wbklx250-ops/provision-engine/internal/repository"
)

const minJobConcurrency = 1

// JobWorker consumes job item messages and records terminal outcomes.
// Transient provider failures are requeued; permanent ones become failed
// item outcomes. Partial item failure never fails the job.
type JobWorker struct {
	jobs        repository.JobRepository
	uploads     repository.UploadHistoryRepository
	provision   repository.ProvisionRepository
	dns         provider.DNSProvider
	mailbox     provider.MailboxProvider
	sequencer   provider.Sequencer
	consumer    queue.Consumer
	rateLimiter ratelimit.RateLimiter
	logger      *zap.Logger
	metrics     *observability.Metrics
	concurrency int
	now         func() time.Time
}

func NewJobWorker(
	jobs repository.JobRepository,
	uploads repository.UploadHistoryRepository,
	provision repository.ProvisionRepository,
	dns provider.DNSProvider,
	mailbox provider.MailboxProvider,
	sequencer provider.Sequencer,
	consumer queue.Consumer,
	rateLimiter ratelimit.RateLimiter,
	concurrency int,
	logger *zap.Logger,
) (*JobWorker, error) {
	if jobs == nil || uploads == nil || provision == nil {
		return nil, fmt.Errorf("all repositories are required")
	}
	if dns == nil || mailbox == nil || sequencer == nil {
		return nil, fmt.Errorf("all providers are required")
	}
	if consumer == nil {
		return nil, fmt.Errorf("queue consumer is required")
	}
	if rateLimiter == nil {
		return nil, fmt.Errorf("rate limiter is required")
	}
	if concurrency < minJobConcurrency {
		concurrency = minJobConcurrency
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &JobWorker{
		jobs:        jobs,
		uploads:     uploads,
		provision:   provision,
		dns:         dns,
		mailbox:     mailbox,
		sequencer:   sequencer,
		consumer:    consumer,
		rateLimiter: rateLimiter,
		logger:      logger,
		concurrency: concurrency,
		now:         time.Now,
	}, nil
}

// SetMetrics wires the metrics collectors. Optional.
func (w *JobWorker) SetMetrics(m *observability.Metrics) {
	w.metrics = m
}

// Start consumes both job queues until context cancellation.
func (w *JobWorker) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	queueNames := queue.WorkQueueNames()
	if len(queueNames) == 0 {
		return fmt.Errorf("no work queues configured")
	}

	// Round-robin assignment, but never fewer consumers than queues: a
	// single-worker deployment must still drain every job kind.
	workers := w.concurrency
	if workers < len(queueNames) {
		workers = len(queueNames)
	}

	g, groupCtx := errgroup.WithContext(ctx)
	for i := 0; i < workers; i++ {
		queueName := queueNames[i%len(queueNames)]
		workerID := i + 1

		g.Go(func() error {
			w.logger.Info("job worker started",
				zap.Int("workerId", workerID),
				zap.String("queue", queueName),
			)

			err := w.consumer.Consume(groupCtx, queueName, w.processMessage)
			if err != nil {
				w.logger.Error("job worker stopped with error",
					zap.Int("workerId", workerID),
					zap.String("queue", queueName),
					zap.Error(err),
				)
				return err
			}

			w.logger.Info("job worker stopped",
				zap.Int("workerId", workerID),
				zap.String("queue", queueName),
			)
			return nil
		})
	}

	return g.Wait()
}

// processMessage handles one job item end to end. Returning an error
// requeues the delivery; recording a failed outcome acks it.
func (w *JobWorker) processMessage(ctx context.Context, msg queue.JobItemMessage) error {
	job, err := w.jobs.GetByID(ctx, msg.JobID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			w.logger.Warn("job not found, dropping item",
				zap.String("jobId", msg.JobID),
				zap.String("item", msg.ItemName),
			)
			return nil
		}
		return fmt.Errorf("failed to load job: %w", err)
	}
	if job.Status.IsTerminal() {
		return nil
	}

	kindName := msg.Kind.String()
	if w.metrics != nil {
		w.metrics.IncJobWorkerInFlight(kindName)
		defer w.metrics.DecJobWorkerInFlight(kindName)
	}

	var outcome domain.JobItemOutcome
	var message string

	switch msg.Kind {
	case domain.JobKindSequencerUpload:
		outcome, message, err = w.uploadItem(ctx, msg)
	case domain.JobKindDomainRemoval:
		outcome, message, err = w.removeItem(ctx, msg)
	default:
		w.logger.Warn("unsupported job kind, dropping item", zap.String("kind", kindName))
		return nil
	}
	if err != nil {
		return err
	}

	return w.recordOutcome(ctx, msg, outcome, message)
}

func (w *JobWorker) uploadItem(ctx context.Context, msg queue.JobItemMessage) (domain.JobItemOutcome, string, error) {
	if msg.SkipExisting {
		exists, err := w.uploads.Exists(ctx, msg.SequencerAccountID, msg.ItemName)
		if err != nil {
			return "", "", fmt.Errorf("failed to check upload history: %w", err)
		}
		if exists {
			return domain.JobItemSkipped, "already uploaded to this account", nil
		}
	}

	credential, err := w.provision.GetCredentialByEmail(ctx, msg.ItemName)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.JobItemFailed, "no exported credential for this mailbox", nil
		}
		return "", "", err
	}

	if err := w.rateLimiter.Wait(ctx, serviceSequencer); err != nil {
		return "", "", err
	}

	if err := w.sequencer.UploadAccount(ctx, msg.SequencerAccountID, credential.Email, credential.Password); err != nil {
		if provider.IsTransient(err) {
			return "", "", err
		}
		return domain.JobItemFailed, err.Error(), nil
	}

	upload := &domain.SequencerUpload{
		ID:                 uuid.NewString(),
		SequencerAccountID: msg.SequencerAccountID,
		Email:              credential.Email,
		CreatedAt:          w.now(),
	}
	if err := w.uploads.Record(ctx, upload); err != nil {
		return "", "", fmt.Errorf("failed to record upload: %w", err)
	}

	return domain.JobItemSucceeded, "uploaded", nil
}

func (w *JobWorker) removeItem(ctx context.Context, msg queue.JobItemMessage) (domain.JobItemOutcome, string, error) {
	if err := w.rateLimiter.Wait(ctx, serviceDNS); err != nil {
		return "", "", err
	}

	if err := w.dns.DeleteZone(ctx, msg.ItemName); err != nil {
		if provider.IsTransient(err) {
			return "", "", err
		}
		return domain.JobItemFailed, fmt.Sprintf("zone deletion failed: %v", err), nil
	}

	if err := w.rateLimiter.Wait(ctx, serviceMailbox); err != nil {
		return "", "", err
	}

	if err := w.mailbox.RemoveDomain(ctx, msg.ItemName); err != nil {
		if provider.IsTransient(err) {
			return "", "", err
		}
		return domain.JobItemFailed, fmt.Sprintf("mailbox platform removal failed: %v", err), nil
	}

	return domain.JobItemSucceeded, "removed", nil
}

func (w *JobWorker) recordOutcome(ctx context.Context, msg queue.JobItemMessage, outcome domain.JobItemOutcome, message string) error {
	if err := w.jobs.IncrementCounter(ctx, msg.JobID, outcome); err != nil {
		return fmt.Errorf("failed to update job counters: %w", err)
	}

	result := &domain.JobItemResult{
		ID:        uuid.NewString(),
		JobID:     msg.JobID,
		ItemName:  msg.ItemName,
		Outcome:   outcome,
		Message:   message,
		CreatedAt: w.now(),
	}
	if err := w.jobs.AppendItemResult(ctx, result); err != nil {
		w.logger.Error("failed to append job item result",
			zap.String("jobId", msg.JobID),
			zap.String("item", msg.ItemName),
			zap.Error(err),
		)
	}

	if w.metrics != nil {
		w.metrics.IncJobItem(msg.Kind.String(), string(outcome))
	}

	done, err := w.jobs.FinalizeIfDone(ctx, msg.JobID)
	if err != nil {
		return fmt.Errorf("failed to finalize job: %w", err)
	}
	if done {
		w.logger.Info("background job completed", zap.String("jobId", msg.JobID))
	}

	return nil
}
