package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/wbklx250-ops/provision-engine/internal/domain"
	"github.com/wbklx250-ops/provision-engine/internal/provider"
	"github.com/wbklx250-ops/provision-engine/internal/queue"
	"github.com/wbklx250-ops/provision-engine/internal/repository"
)

// JobView pairs a job with its stored per-item results.
type JobView struct {
	Job     *domain.BackgroundJob
	Results []domain.JobItemResult
}

// JobService submits and reads background jobs. Target credentials are
// validated synchronously on submit: an invalid account means the job
// never starts and the caller hears about it immediately.
type JobService struct {
	jobs      repository.JobRepository
	provision repository.ProvisionRepository
	sequencer provider.Sequencer
	publisher queue.Publisher
	logger    *zap.Logger
	now       func() time.Time
}

func NewJobService(
	jobs repository.JobRepository,
	provision repository.ProvisionRepository,
	sequencer provider.Sequencer,
	publisher queue.Publisher,
	logger *zap.Logger,
) (*JobService, error) {
	if jobs == nil {
		return nil, fmt.Errorf("job repository is required")
	}
	if provision == nil {
		return nil, fmt.Errorf("provision repository is required")
	}
	if sequencer == nil {
		return nil, fmt.Errorf("sequencer provider is required")
	}
	if publisher == nil {
		return nil, fmt.Errorf("queue publisher is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &JobService{
		jobs:      jobs,
		provision: provision,
		sequencer: sequencer,
		publisher: publisher,
		logger:    logger,
		now:       time.Now,
	}, nil
}

// Submit validates the job spec, resolves its items, persists the job, and
// publishes one message per item. Returns the running job.
func (s *JobService) Submit(ctx context.Context, spec domain.JobSpec) (*domain.BackgroundJob, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	if err := spec.Validate(); err != nil {
		return nil, err
	}

	if spec.Kind == domain.JobKindSequencerUpload {
		if err := s.sequencer.ValidateCredentials(ctx, spec.SequencerAccountID); err != nil {
			return nil, fmt.Errorf("%w: sequencer account rejected: %v", domain.ErrValidation, err)
		}
	}

	items, err := s.resolveItems(ctx, spec)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, fmt.Errorf("%w: job has no items", domain.ErrValidation)
	}

	// Created running, not pending: workers may record the last item's
	// outcome before Submit returns, and finalization only matches a
	// running job.
	job := &domain.BackgroundJob{
		ID:           uuid.NewString(),
		Kind:         spec.Kind,
		Status:       domain.JobStatusRunning,
		SkipExisting: spec.SkipExisting,
		Total:        len(items),
	}
	if spec.BatchID != "" {
		batchID := spec.BatchID
		job.BatchID = &batchID
	}
	if spec.SequencerAccountID != "" {
		accountID := spec.SequencerAccountID
		job.SequencerAccountID = &accountID
	}

	if err := s.jobs.Create(ctx, job); err != nil {
		return nil, fmt.Errorf("failed to create job: %w", err)
	}

	queueName := queue.QueueName(spec.Kind)
	for _, item := range items {
		msg := queue.JobItemMessage{
			JobID:              job.ID,
			Kind:               spec.Kind,
			ItemName:           item,
			SequencerAccountID: spec.SequencerAccountID,
			SkipExisting:       spec.SkipExisting,
		}
		if err := s.publisher.Publish(ctx, queueName, msg); err != nil {
			if setErr := s.jobs.SetStatus(ctx, job.ID, domain.JobStatusFailed); setErr != nil {
				s.logger.Error("failed to mark job failed after publish error",
					zap.String("jobId", job.ID), zap.Error(setErr))
			}
			return nil, fmt.Errorf("failed to enqueue job items: %w", err)
		}
	}

	s.logger.Info("background job submitted",
		zap.String("jobId", job.ID),
		zap.String("kind", spec.Kind.String()),
		zap.Int("items", len(items)),
	)

	return job, nil
}

// Get returns the job and its bounded per-item results.
func (s *JobService) Get(ctx context.Context, jobID string) (*JobView, error) {
	job, err := s.jobs.GetByID(ctx, jobID)
	if err != nil {
		return nil, err
	}

	results, err := s.jobs.ListItemResults(ctx, jobID, 0)
	if err != nil {
		return nil, err
	}

	return &JobView{Job: job, Results: results}, nil
}

// resolveItems turns a spec into concrete item names. Upload jobs without
// explicit items read the batch's exported credentials.
func (s *JobService) resolveItems(ctx context.Context, spec domain.JobSpec) ([]string, error) {
	if len(spec.Items) > 0 {
		items := make([]string, 0, len(spec.Items))
		for _, item := range spec.Items {
			trimmed := strings.ToLower(strings.TrimSpace(item))
			if trimmed != "" {
				items = append(items, trimmed)
			}
		}
		return items, nil
	}

	credentials, err := s.provision.ListExportedCredentials(ctx, spec.BatchID)
	if err != nil {
		return nil, err
	}

	items := make([]string, 0, len(credentials))
	for _, c := range credentials {
		items = append(items, c.Email)
	}
	return items, nil
}
