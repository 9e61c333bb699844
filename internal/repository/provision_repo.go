package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/wbklx250-ops/provision-engine/internal/domain"
)

type ProvisionRepository interface {
	CreateDomains(ctx context.Context, domains []*domain.ProvisionDomain) error
	ListDomains(ctx context.Context, batchID string) ([]domain.ProvisionDomain, error)
	GetDomainByName(ctx context.Context, batchID, name string) (*domain.ProvisionDomain, error)
	SetDomainZone(ctx context.Context, id, zoneID string) error
	SetDomainNameservers(ctx context.Context, id, ns1, ns2 string) error

	CreateTenants(ctx context.Context, tenants []*domain.Tenant) error
	ListTenants(ctx context.Context, batchID string) ([]domain.Tenant, error)

	SaveCredential(ctx context.Context, credential *domain.MailboxCredential) error
	GetCredentialByEmail(ctx context.Context, email string) (*domain.MailboxCredential, error)
	ListCredentials(ctx context.Context, batchID string) ([]domain.MailboxCredential, error)
	ListExportedCredentials(ctx context.Context, batchID string) ([]domain.MailboxCredential, error)
	MarkCredentialExported(ctx context.Context, id string) error
}

type GormProvisionRepo struct {
	db *gorm.DB
}

func NewGormProvisionRepo(db *gorm.DB) *GormProvisionRepo {
	return &GormProvisionRepo{db: db}
}

func (r *GormProvisionRepo) CreateDomains(ctx context.Context, domains []*domain.ProvisionDomain) error {
	if len(domains) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).CreateInBatches(domains, 100).Error
}

func (r *GormProvisionRepo) ListDomains(ctx context.Context, batchID string) ([]domain.ProvisionDomain, error) {
	var domains []domain.ProvisionDomain
	err := r.db.WithContext(ctx).
		Where("batch_id = ?", batchID).
		Order("name ASC").
		Find(&domains).Error
	if err != nil {
		return nil, err
	}
	return domains, nil
}

func (r *GormProvisionRepo) GetDomainByName(ctx context.Context, batchID, name string) (*domain.ProvisionDomain, error) {
	var d domain.ProvisionDomain
	err := r.db.WithContext(ctx).
		First(&d, "batch_id = ? AND name = ?", batchID, name).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func (r *GormProvisionRepo) SetDomainZone(ctx context.Context, id, zoneID string) error {
	result := r.db.WithContext(ctx).
		Model(&domain.ProvisionDomain{}).
		Where("id = ?", id).
		Update("zone_id", zoneID)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *GormProvisionRepo) SetDomainNameservers(ctx context.Context, id, ns1, ns2 string) error {
	result := r.db.WithContext(ctx).
		Model(&domain.ProvisionDomain{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"nameserver1": ns1,
			"nameserver2": ns2,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *GormProvisionRepo) CreateTenants(ctx context.Context, tenants []*domain.Tenant) error {
	if len(tenants) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).CreateInBatches(tenants, 100).Error
}

func (r *GormProvisionRepo) ListTenants(ctx context.Context, batchID string) ([]domain.Tenant, error) {
	var tenants []domain.Tenant
	err := r.db.WithContext(ctx).
		Where("batch_id = ?", batchID).
		Order("admin_login ASC").
		Find(&tenants).Error
	if err != nil {
		return nil, err
	}
	return tenants, nil
}

// SaveCredential upserts on (batch_id, email) so a rerun replaces the old
// password instead of tripping the unique index.
func (r *GormProvisionRepo) SaveCredential(ctx context.Context, credential *domain.MailboxCredential) error {
	if credential == nil {
		return domain.ErrValidation
	}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "batch_id"}, {Name: "email"}},
			DoUpdates: clause.AssignmentColumns([]string{"tenant_id", "password", "updated_at"}),
		}).
		Create(credential).Error
}

func (r *GormProvisionRepo) GetCredentialByEmail(ctx context.Context, email string) (*domain.MailboxCredential, error) {
	var credential domain.MailboxCredential
	err := r.db.WithContext(ctx).
		Order("updated_at DESC").
		First(&credential, "email = ?", email).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &credential, nil
}

func (r *GormProvisionRepo) ListCredentials(ctx context.Context, batchID string) ([]domain.MailboxCredential, error) {
	var credentials []domain.MailboxCredential
	err := r.db.WithContext(ctx).
		Where("batch_id = ?", batchID).
		Order("email ASC").
		Find(&credentials).Error
	if err != nil {
		return nil, err
	}
	return credentials, nil
}

func (r *GormProvisionRepo) ListExportedCredentials(ctx context.Context, batchID string) ([]domain.MailboxCredential, error) {
	var credentials []domain.MailboxCredential
	err := r.db.WithContext(ctx).
		Where("batch_id = ? AND exported = ?", batchID, true).
		Order("email ASC").
		Find(&credentials).Error
	if err != nil {
		return nil, err
	}
	return credentials, nil
}

func (r *GormProvisionRepo) MarkCredentialExported(ctx context.Context, id string) error {
	result := r.db.WithContext(ctx).
		Model(&domain.MailboxCredential{}).
		Where("id = ?", id).
		Update("exported", true)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}
