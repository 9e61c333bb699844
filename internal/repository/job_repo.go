package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/wbklx250-ops/provision-engine/internal/domain"
)

// maxJobItemResults bounds stored per-item results. The counters on the job
// row stay authoritative once the bound is reached.
const maxJobItemResults = 500

type JobRepository interface {
	Create(ctx context.Context, job *domain.BackgroundJob) error
	GetByID(ctx context.Context, id string) (*domain.BackgroundJob, error)
	SetStatus(ctx context.Context, id string, status domain.JobStatus) error
	IncrementCounter(ctx context.Context, id string, outcome domain.JobItemOutcome) error
	AppendItemResult(ctx context.Context, result *domain.JobItemResult) error
	ListItemResults(ctx context.Context, jobID string, limit int) ([]domain.JobItemResult, error)
	FinalizeIfDone(ctx context.Context, id string) (bool, error)
}

type GormJobRepo struct {
	db *gorm.DB
}

func NewGormJobRepo(db *gorm.DB) *GormJobRepo {
	return &GormJobRepo{db: db}
}

func (r *GormJobRepo) Create(ctx context.Context, job *domain.BackgroundJob) error {
	if job == nil {
		return domain.ErrValidation
	}
	return r.db.WithContext(ctx).Create(job).Error
}

func (r *GormJobRepo) GetByID(ctx context.Context, id string) (*domain.BackgroundJob, error) {
	var job domain.BackgroundJob
	err := r.db.WithContext(ctx).First(&job, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &job, nil
}

func (r *GormJobRepo) SetStatus(ctx context.Context, id string, status domain.JobStatus) error {
	result := r.db.WithContext(ctx).
		Model(&domain.BackgroundJob{}).
		Where("id = ?", id).
		Update("status", status)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// IncrementCounter bumps the counter matching the outcome atomically so
// concurrent workers never lose updates.
func (r *GormJobRepo) IncrementCounter(ctx context.Context, id string, outcome domain.JobItemOutcome) error {
	var column string
	switch outcome {
	case domain.JobItemSucceeded:
		column = "succeeded"
	case domain.JobItemFailed:
		column = "failed"
	case domain.JobItemSkipped:
		column = "skipped"
	default:
		return fmt.Errorf("%w: invalid job item outcome %q", domain.ErrValidation, outcome)
	}

	result := r.db.WithContext(ctx).
		Model(&domain.BackgroundJob{}).
		Where("id = ?", id).
		Update(column, gorm.Expr(column+" + 1"))
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *GormJobRepo) AppendItemResult(ctx context.Context, result *domain.JobItemResult) error {
	if result == nil {
		return domain.ErrValidation
	}

	var stored int64
	if err := r.db.WithContext(ctx).
		Model(&domain.JobItemResult{}).
		Where("job_id = ?", result.JobID).
		Count(&stored).Error; err != nil {
		return err
	}
	if stored >= maxJobItemResults {
		return nil
	}

	return r.db.WithContext(ctx).Create(result).Error
}

func (r *GormJobRepo) ListItemResults(ctx context.Context, jobID string, limit int) ([]domain.JobItemResult, error) {
	if limit < 1 || limit > maxJobItemResults {
		limit = maxJobItemResults
	}

	var results []domain.JobItemResult
	err := r.db.WithContext(ctx).
		Where("job_id = ?", jobID).
		Order("created_at ASC").
		Limit(limit).
		Find(&results).Error
	if err != nil {
		return nil, err
	}
	return results, nil
}

// FinalizeIfDone marks a running job completed once every item has a
// terminal outcome. The guard lives in the WHERE clause so only one of the
// racing workers performs the transition.
func (r *GormJobRepo) FinalizeIfDone(ctx context.Context, id string) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&domain.BackgroundJob{}).
		Where("id = ? AND status = ? AND succeeded + failed + skipped >= total", id, domain.JobStatusRunning).
		Update("status", domain.JobStatusCompleted)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}
