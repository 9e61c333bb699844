package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/wbklx250-ops/provision-engine/internal/domain"
)

const (
	defaultActivityLimit = 50
	maxActivityLimit     = 200
)

type ActivityRepository interface {
	Append(ctx context.Context, entry *domain.ActivityLogEntry) error
	ListByBatch(ctx context.Context, batchID string, limit int) ([]domain.ActivityLogEntry, error)
}

type GormActivityRepo struct {
	db *gorm.DB
}

func NewGormActivityRepo(db *gorm.DB) *GormActivityRepo {
	return &GormActivityRepo{db: db}
}

func (r *GormActivityRepo) Append(ctx context.Context, entry *domain.ActivityLogEntry) error {
	if entry == nil {
		return domain.ErrValidation
	}
	return r.db.WithContext(ctx).Create(entry).Error
}

// ListByBatch returns the most recent entries first.
func (r *GormActivityRepo) ListByBatch(ctx context.Context, batchID string, limit int) ([]domain.ActivityLogEntry, error) {
	if limit < 1 {
		limit = defaultActivityLimit
	}
	limit = min(limit, maxActivityLimit)

	var entries []domain.ActivityLogEntry
	err := r.db.WithContext(ctx).
		Where("batch_id = ?", batchID).
		Order("created_at DESC").
		Limit(limit).
		Find(&entries).Error
	if err != nil {
		return nil, err
	}
	return entries, nil
}
