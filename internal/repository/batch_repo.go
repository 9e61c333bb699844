package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/wbklx250-ops/provision-engine/internal/domain"
)

type BatchRepository interface {
	Create(ctx context.Context, b *domain.Batch) error
	GetByID(ctx context.Context, id string) (*domain.Batch, error)
	UpdateState(ctx context.Context, id string, status domain.BatchStatus, currentStep int) error
}

type GormBatchRepo struct {
	db *gorm.DB
}

func NewGormBatchRepo(db *gorm.DB) *GormBatchRepo {
	return &GormBatchRepo{db: db}
}

func (r *GormBatchRepo) Create(ctx context.Context, b *domain.Batch) error {
	if b == nil {
		return domain.ErrValidation
	}
	return r.db.WithContext(ctx).Create(b).Error
}

func (r *GormBatchRepo) GetByID(ctx context.Context, id string) (*domain.Batch, error) {
	var batch domain.Batch
	err := r.db.WithContext(ctx).First(&batch, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &batch, nil
}

// UpdateState persists the batch status and current step and bumps the
// version counter so pollers can detect the change.
func (r *GormBatchRepo) UpdateState(ctx context.Context, id string, status domain.BatchStatus, currentStep int) error {
	result := r.db.WithContext(ctx).
		Model(&domain.Batch{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":       status,
			"current_step": currentStep,
			"version":      gorm.Expr("version + 1"),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}
