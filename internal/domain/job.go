package domain

import (
	"fmt"
	"strings"
	"time"
)

// JobKind identifies the class of a background job.
type JobKind string

const (
	JobKindSequencerUpload JobKind = "sequencer_upload"
	JobKindDomainRemoval   JobKind = "domain_removal"
)

func (k JobKind) String() string { return string(k) }

func (k JobKind) IsValid() bool {
	return k == JobKindSequencerUpload || k == JobKindDomainRemoval
}

func ParseJobKindFromString(s string) (JobKind, error) {
	k := JobKind(strings.ToLower(strings.TrimSpace(s)))
	if !k.IsValid() {
		return "", fmt.Errorf("%w: invalid job kind %q", ErrValidation, s)
	}
	return k, nil
}

// JobStatus represents the lifecycle state of a background job.
type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
)

func (s JobStatus) String() string { return string(s) }

func (s JobStatus) IsValid() bool {
	switch s {
	case JobStatusPending, JobStatusRunning, JobStatusCompleted, JobStatusFailed:
		return true
	}
	return false
}

// IsTerminal reports whether the job will receive no further updates.
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// BackgroundJob is an independently tracked bulk operation driven by the
// worker pool, outside the strict step sequence. Partial item failure never
// fails the job; failed means the job could not start at all.
type BackgroundJob struct {
	ID                 string    `gorm:"type:uuid;primaryKey"`
	Kind               JobKind   `gorm:"type:varchar(30);not null"`
	Status             JobStatus `gorm:"type:varchar(20);not null"`
	BatchID            *string   `gorm:"type:uuid"`
	SequencerAccountID *string   `gorm:"type:varchar(255)"`
	SkipExisting       bool      `gorm:"not null;default:false"`
	Total              int       `gorm:"not null;default:0"`
	Succeeded          int       `gorm:"not null;default:0"`
	Failed             int       `gorm:"not null;default:0"`
	Skipped            int       `gorm:"not null;default:0"`
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// TerminalItems is the number of items with a recorded terminal outcome.
func (j *BackgroundJob) TerminalItems() int {
	return j.Succeeded + j.Failed + j.Skipped
}

// JobItemOutcome is the terminal result of one job item.
type JobItemOutcome string

const (
	JobItemSucceeded JobItemOutcome = "succeeded"
	JobItemFailed    JobItemOutcome = "failed"
	JobItemSkipped   JobItemOutcome = "skipped"
)

func (o JobItemOutcome) String() string { return string(o) }

// JobItemResult records the outcome of a single job item.
type JobItemResult struct {
	ID       string         `gorm:"type:uuid;primaryKey"`
	JobID    string         `gorm:"type:uuid;not null"`
	ItemName string         `gorm:"type:varchar(255);not null"`
	Outcome  JobItemOutcome `gorm:"type:varchar(20);not null"`
	Message  string         `gorm:"type:text"`
	CreatedAt time.Time
}

// JobSpec describes a job submission.
type JobSpec struct {
	Kind               JobKind
	BatchID            string
	SequencerAccountID string
	SkipExisting       bool
	// Items are explicit item names (domain names for removal jobs).
	// Empty for sequencer uploads seeded from a batch's exported
	// credentials.
	Items []string
}

func (s *JobSpec) Validate() error {
	if !s.Kind.IsValid() {
		return fmt.Errorf("%w: invalid job kind %q", ErrValidation, s.Kind)
	}
	switch s.Kind {
	case JobKindSequencerUpload:
		if strings.TrimSpace(s.SequencerAccountID) == "" {
			return fmt.Errorf("%w: sequencer account id is required", ErrValidation)
		}
		if strings.TrimSpace(s.BatchID) == "" && len(s.Items) == 0 {
			return fmt.Errorf("%w: batch id or explicit items are required", ErrValidation)
		}
	case JobKindDomainRemoval:
		if len(s.Items) == 0 {
			return fmt.Errorf("%w: at least one domain is required", ErrValidation)
		}
	}
	return nil
}
