package migrations

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"gorm.io/gorm"

	"github.com/wbklx250-ops/provision-engine/internal/domain"
)

func Migrate(db *gorm.DB) error {
	m := gormigrate.New(db, gormigrate.DefaultOptions, []*gormigrate.Migration{
		createBatchesTable(),
		createStepTables(),
		createActivityLogTable(),
		createProvisionTables(),
		createJobTables(),
		createSequencerUploadsTable(),
	})

	return m.Migrate()
}

func createBatchesTable() *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: "000001_create_batches",
		Migrate: func(tx *gorm.DB) error {
			if err := tx.AutoMigrate(&domain.Batch{}); err != nil {
				return err
			}
			return tx.Exec(`CREATE INDEX IF NOT EXISTS idx_batches_status_created ON batches (status, created_at)`).Error
		},
		Rollback: func(tx *gorm.DB) error {
			return tx.Migrator().DropTable(&domain.Batch{})
		},
	}
}

func createStepTables() *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: "000002_create_step_records",
		Migrate: func(tx *gorm.DB) error {
			if err := tx.AutoMigrate(&domain.StepRecord{}, &domain.StepItemResult{}); err != nil {
				return err
			}
			indexes := []string{
				`CREATE INDEX IF NOT EXISTS idx_step_records_batch_status ON step_records (batch_id, status)`,
				`CREATE INDEX IF NOT EXISTS idx_step_item_results_outcome ON step_item_results (batch_id, step_number, outcome)`,
			}
			for _, sql := range indexes {
				if err := tx.Exec(sql).Error; err != nil {
					return err
				}
			}
			return nil
		},
		Rollback: func(tx *gorm.DB) error {
			return tx.Migrator().DropTable(&domain.StepItemResult{}, &domain.StepRecord{})
		},
	}
}

func createActivityLogTable() *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: "000003_create_activity_log",
		Migrate: func(tx *gorm.DB) error {
			if err := tx.AutoMigrate(&domain.ActivityLogEntry{}); err != nil {
				return err
			}
			return tx.Exec(`CREATE INDEX IF NOT EXISTS idx_activity_batch_created ON activity_log_entries (batch_id, created_at DESC)`).Error
		},
		Rollback: func(tx *gorm.DB) error {
			return tx.Migrator().DropTable(&domain.ActivityLogEntry{})
		},
	}
}

func createProvisionTables() *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: "000004_create_provision_tables",
		Migrate: func(tx *gorm.DB) error {
			if err := tx.AutoMigrate(&domain.ProvisionDomain{}, &domain.Tenant{}, &domain.MailboxCredential{}); err != nil {
				return err
			}
			indexes := []string{
				`CREATE UNIQUE INDEX IF NOT EXISTS idx_provision_domains_batch_name ON provision_domains (batch_id, name)`,
				`CREATE INDEX IF NOT EXISTS idx_tenants_batch_id ON tenants (batch_id)`,
				`CREATE UNIQUE INDEX IF NOT EXISTS idx_mailbox_credentials_batch_email ON mailbox_credentials (batch_id, email)`,
				`CREATE INDEX IF NOT EXISTS idx_mailbox_credentials_exported ON mailbox_credentials (batch_id, exported)`,
			}
			for _, sql := range indexes {
				if err := tx.Exec(sql).Error; err != nil {
					return err
				}
			}
			return nil
		},
		Rollback: func(tx *gorm.DB) error {
			return tx.Migrator().DropTable(&domain.MailboxCredential{}, &domain.Tenant{}, &domain.ProvisionDomain{})
		},
	}
}

func createJobTables() *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: "000005_create_background_jobs",
		Migrate: func(tx *gorm.DB) error {
			if err := tx.AutoMigrate(&domain.BackgroundJob{}, &domain.JobItemResult{}); err != nil {
				return err
			}
			indexes := []string{
				`CREATE INDEX IF NOT EXISTS idx_background_jobs_status ON background_jobs (status, created_at)`,
				`CREATE INDEX IF NOT EXISTS idx_job_item_results_job_id ON job_item_results (job_id, created_at)`,
			}
			for _, sql := range indexes {
				if err := tx.Exec(sql).Error; err != nil {
					return err
				}
			}
			return nil
		},
		Rollback: func(tx *gorm.DB) error {
			return tx.Migrator().DropTable(&domain.JobItemResult{}, &domain.BackgroundJob{})
		},
	}
}

func createSequencerUploadsTable() *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: "000006_create_sequencer_uploads",
		Migrate: func(tx *gorm.DB) error {
			if err := tx.AutoMigrate(&domain.SequencerUpload{}); err != nil {
				return err
			}
			return tx.Exec(`CREATE UNIQUE INDEX IF NOT EXISTS idx_sequencer_uploads_account_email ON sequencer_uploads (sequencer_account_id, email)`).Error
		},
		Rollback: func(tx *gorm.DB) error {
			return tx.Migrator().DropTable(&domain.SequencerUpload{})
		},
	}
}
