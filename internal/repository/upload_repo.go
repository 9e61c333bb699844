package repository

import (
	"context"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/wbklx250-ops/provision-engine/internal/domain"
)

// UploadHistoryRepository is the dedup source for sequencer uploads. The
// key is (sequencer account id, email): the same mailbox uploaded to a
// different account is a distinct upload.
type UploadHistoryRepository interface {
	Exists(ctx context.Context, accountID, email string) (bool, error)
	Record(ctx context.Context, upload *domain.SequencerUpload) error
}

type GormUploadHistoryRepo struct {
	db *gorm.DB
}

func NewGormUploadHistoryRepo(db *gorm.DB) *GormUploadHistoryRepo {
	return &GormUploadHistoryRepo{db: db}
}

func (r *GormUploadHistoryRepo) Exists(ctx context.Context, accountID, email string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&domain.SequencerUpload{}).
		Where("sequencer_account_id = ? AND email = ?", accountID, strings.ToLower(strings.TrimSpace(email))).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *GormUploadHistoryRepo) Record(ctx context.Context, upload *domain.SequencerUpload) error {
	if upload == nil {
		return domain.ErrValidation
	}

	upload.Email = strings.ToLower(strings.TrimSpace(upload.Email))

	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "sequencer_account_id"}, {Name: "email"}},
			DoNothing: true,
		}).
		Create(upload).Error
}
