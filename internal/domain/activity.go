package domain

import "time"

// ActivityStatus is the phase recorded by an activity log entry.
type ActivityStatus string

const (
	ActivityStarted   ActivityStatus = "started"
	ActivityCompleted ActivityStatus = "completed"
	ActivityFailed    ActivityStatus = "failed"
)

func (s ActivityStatus) String() string { return string(s) }

// ActivityLogEntry is an immutable audit record. Entries are only ever
// appended; ordering is the append order.
type ActivityLogEntry struct {
	ID         string         `gorm:"type:uuid;primaryKey"`
	BatchID    string         `gorm:"type:uuid;not null"`
	StepNumber int            `gorm:"not null"`
	StepName   string         `gorm:"type:varchar(64);not null"`
	ItemKind   ItemKind       `gorm:"type:varchar(20);not null"`
	ItemName   string         `gorm:"type:varchar(255);not null"`
	Status     ActivityStatus `gorm:"type:varchar(20);not null"`
	Message    string         `gorm:"type:text"`
	CreatedAt  time.Time
}
