package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/wbklx250-ops/provision-engine/internal/domain"
)

type StepRepository interface {
	UpsertRecord(ctx context.Context, record *domain.StepRecord) error
	GetRecord(ctx context.Context, batchID string, step int) (*domain.StepRecord, error)
	ListRecords(ctx context.Context, batchID string) ([]domain.StepRecord, error)
	SetRecordStatus(ctx context.Context, batchID string, step int, status domain.StepStatus) error
	IncrementCounters(ctx context.Context, batchID string, step, completedDelta, failedDelta int) error
	SaveItemResult(ctx context.Context, result *domain.StepItemResult) error
	ListItemResults(ctx context.Context, batchID string, step int) ([]domain.StepItemResult, error)
	ListItemsByOutcome(ctx context.Context, batchID string, step int, outcome domain.ItemOutcomeStatus) ([]domain.StepItemResult, error)
	Reset(ctx context.Context, batchID string) error
}

type GormStepRepo struct {
	db *gorm.DB
}

func NewGormStepRepo(db *gorm.DB) *GormStepRepo {
	return &GormStepRepo{db: db}
}

func (r *GormStepRepo) UpsertRecord(ctx context.Context, record *domain.StepRecord) error {
	if record == nil {
		return domain.ErrValidation
	}
	if err := record.Validate(); err != nil {
		return err
	}

	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "batch_id"}, {Name: "step_number"}},
			DoUpdates: clause.AssignmentColumns([]string{"status", "completed", "failed", "total", "updated_at"}),
		}).
		Create(record).Error
}

func (r *GormStepRepo) GetRecord(ctx context.Context, batchID string, step int) (*domain.StepRecord, error) {
	var record domain.StepRecord
	err := r.db.WithContext(ctx).
		First(&record, "batch_id = ? AND step_number = ?", batchID, step).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &record, nil
}

func (r *GormStepRepo) ListRecords(ctx context.Context, batchID string) ([]domain.StepRecord, error) {
	var records []domain.StepRecord
	err := r.db.WithContext(ctx).
		Where("batch_id = ?", batchID).
		Order("step_number ASC").
		Find(&records).Error
	if err != nil {
		return nil, err
	}
	return records, nil
}

func (r *GormStepRepo) SetRecordStatus(ctx context.Context, batchID string, step int, status domain.StepStatus) error {
	result := r.db.WithContext(ctx).
		Model(&domain.StepRecord{}).
		Where("batch_id = ? AND step_number = ?", batchID, step).
		Update("status", status)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// IncrementCounters bumps the shared counters atomically so concurrent item
// goroutines never lose updates.
func (r *GormStepRepo) IncrementCounters(ctx context.Context, batchID string, step, completedDelta, failedDelta int) error {
	if completedDelta == 0 && failedDelta == 0 {
		return nil
	}

	result := r.db.WithContext(ctx).
		Model(&domain.StepRecord{}).
		Where("batch_id = ? AND step_number = ?", batchID, step).
		Updates(map[string]any{
			"completed": gorm.Expr("completed + ?", completedDelta),
			"failed":    gorm.Expr("failed + ?", failedDelta),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// SaveItemResult records the last outcome for a (batch, step, item) triple,
// overwriting any earlier attempt.
func (r *GormStepRepo) SaveItemResult(ctx context.Context, result *domain.StepItemResult) error {
	if result == nil {
		return domain.ErrValidation
	}
	if err := result.Validate(); err != nil {
		return err
	}

	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "batch_id"}, {Name: "step_number"}, {Name: "item_name"}},
			DoUpdates: clause.AssignmentColumns([]string{"item_kind", "outcome", "message", "updated_at"}),
		}).
		Create(result).Error
}

func (r *GormStepRepo) ListItemResults(ctx context.Context, batchID string, step int) ([]domain.StepItemResult, error) {
	var results []domain.StepItemResult
	err := r.db.WithContext(ctx).
		Where("batch_id = ? AND step_number = ?", batchID, step).
		Order("item_name ASC").
		Find(&results).Error
	if err != nil {
		return nil, err
	}
	return results, nil
}

func (r *GormStepRepo) ListItemsByOutcome(ctx context.Context, batchID string, step int, outcome domain.ItemOutcomeStatus) ([]domain.StepItemResult, error) {
	var results []domain.StepItemResult
	err := r.db.WithContext(ctx).
		Where("batch_id = ? AND step_number = ? AND outcome = ?", batchID, step, outcome).
		Order("item_name ASC").
		Find(&results).Error
	if err != nil {
		return nil, err
	}
	return results, nil
}

// Reset removes all step records and item results for a batch ahead of a
// rerun from step one.
func (r *GormStepRepo) Reset(ctx context.Context, batchID string) error {
	if err := r.db.WithContext(ctx).
		Where("batch_id = ?", batchID).
		Delete(&domain.StepItemResult{}).Error; err != nil {
		return err
	}

	return r.db.WithContext(ctx).
		Where("batch_id = ?", batchID).
		Delete(&domain.StepRecord{}).Error
}
