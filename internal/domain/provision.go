package domain

import (
	"fmt"
	"strings"
	"time"
)

// ProvisionDomain is one domain row seeded from the domain artifact and
// mutated as provisioning steps progress.
type ProvisionDomain struct {
	ID      string `gorm:"type:uuid;primaryKey"`
	BatchID string `gorm:"type:uuid;not null"`
	Name    string `gorm:"type:varchar(255);not null"`
	ZoneID  string `gorm:"type:varchar(255)"`
	// Ordered nameserver pair assigned by the DNS host. Order matters:
	// registrars display and compare the pair as given.
	Nameserver1 string  `gorm:"type:varchar(255)"`
	Nameserver2 string  `gorm:"type:varchar(255)"`
	TenantID    *string `gorm:"type:uuid"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// HasNameservers reports whether the DNS host has assigned a pair yet.
func (d *ProvisionDomain) HasNameservers() bool {
	return d.Nameserver1 != "" && d.Nameserver2 != ""
}

func (d *ProvisionDomain) Validate() error {
	if strings.TrimSpace(d.Name) == "" {
		return fmt.Errorf("%w: domain name is required", ErrValidation)
	}
	if !strings.Contains(d.Name, ".") {
		return fmt.Errorf("%w: %q is not a domain name", ErrValidation, d.Name)
	}
	return nil
}

// Tenant is one hosted-mailbox tenant seeded from the tenant artifact.
// AdminPassword comes from the matched credential pair and may be empty
// when no credential matched (manual entry remains possible).
type Tenant struct {
	ID            string `gorm:"type:uuid;primaryKey"`
	BatchID       string `gorm:"type:uuid;not null"`
	Name          string `gorm:"type:varchar(255)"`
	AdminLogin    string `gorm:"type:varchar(255);not null"`
	AdminPassword string `gorm:"type:varchar(255)"`
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

func (t *Tenant) Validate() error {
	if strings.TrimSpace(t.ID) == "" {
		return fmt.Errorf("%w: tenant id is required", ErrValidation)
	}
	if strings.TrimSpace(t.AdminLogin) == "" {
		return fmt.Errorf("%w: tenant admin login is required", ErrValidation)
	}
	return nil
}

// MailboxCredential is one provisioned mailbox with its generated password.
// Rows are created by the mailbox creation step and marked exported by the
// credential export step; exported rows feed sequencer uploads.
type MailboxCredential struct {
	ID        string `gorm:"type:uuid;primaryKey"`
	BatchID   string `gorm:"type:uuid;not null"`
	TenantID  string `gorm:"type:uuid;not null"`
	Email     string `gorm:"type:varchar(255);not null"`
	Password  string `gorm:"type:varchar(255);not null"`
	Exported  bool   `gorm:"not null;default:false"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

// SequencerUpload is one row of upload history. Uniqueness is on
// (sequencer account id, email): the same mailbox uploaded to a different
// sequencer account is a distinct upload.
type SequencerUpload struct {
	ID                 string `gorm:"type:uuid;primaryKey"`
	SequencerAccountID string `gorm:"type:varchar(255);not null"`
	Email              string `gorm:"type:varchar(255);not null"`
	CreatedAt          time.Time
}
