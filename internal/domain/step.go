package domain

import (
	"fmt"
	"strings"
	"time"
)

// Pipeline step numbers. Steps run strictly in order; only explicit retry
// or rerun actions may revisit an earlier step.
const (
	FirstStep = 1
	LastStep  = 10

	StepZoneCreation     = 1
	StepNameserverUpdate = 2
	StepNameserverCheck  = 3
	StepDNSRecords       = 4
	StepFirstLogin       = 5
	StepDomainSetup      = 6
	StepMailboxCreation  = 7
	StepSMTPEnablement   = 8
	StepCredentialExport = 9
	StepSequencerUpload  = 10
)

var stepNames = map[int]string{
	StepZoneCreation:     "zone creation",
	StepNameserverUpdate: "nameserver update",
	StepNameserverCheck:  "nameserver propagation check",
	StepDNSRecords:       "dns record creation",
	StepFirstLogin:       "first login",
	StepDomainSetup:      "provider domain setup",
	StepMailboxCreation:  "mailbox creation",
	StepSMTPEnablement:   "smtp enablement",
	StepCredentialExport: "credential export",
	StepSequencerUpload:  "sequencer upload",
}

// StepName returns the human-readable name for a pipeline step.
func StepName(step int) string {
	if name, ok := stepNames[step]; ok {
		return name
	}
	return "unknown"
}

// StepStatus represents the processing state of one step of a batch.
type StepStatus string

const (
	StepStatusPending   StepStatus = "pending"
	StepStatusRunning   StepStatus = "running"
	StepStatusCompleted StepStatus = "completed"
	StepStatusFailed    StepStatus = "failed"
	StepStatusSkipped   StepStatus = "skipped"
)

func (s StepStatus) String() string { return string(s) }

func (s StepStatus) IsValid() bool {
	switch s {
	case StepStatusPending, StepStatusRunning, StepStatusCompleted, StepStatusFailed, StepStatusSkipped:
		return true
	}
	return false
}

// IsTerminal reports whether a later step may start after this one.
func (s StepStatus) IsTerminal() bool {
	return s == StepStatusCompleted || s == StepStatusFailed || s == StepStatusSkipped
}

// StepRecord tracks per-item progress for one (batch, step) pair.
type StepRecord struct {
	BatchID    string     `gorm:"type:uuid;primaryKey"`
	StepNumber int        `gorm:"primaryKey"`
	Status     StepStatus `gorm:"type:varchar(20);not null"`
	Completed  int        `gorm:"not null;default:0"`
	Failed     int        `gorm:"not null;default:0"`
	Total      int        `gorm:"not null;default:0"`
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

func (r *StepRecord) Validate() error {
	if r.StepNumber < FirstStep || r.StepNumber > LastStep {
		return fmt.Errorf("%w: step number %d out of range", ErrValidation, r.StepNumber)
	}
	if !r.Status.IsValid() {
		return fmt.Errorf("%w: invalid step status %q", ErrValidation, r.Status)
	}
	if r.Completed+r.Failed > r.Total {
		return fmt.Errorf("%w: step counters exceed total (%d+%d > %d)",
			ErrValidation, r.Completed, r.Failed, r.Total)
	}
	return nil
}

// ItemKind classifies what a step item refers to.
type ItemKind string

const (
	ItemKindDomain  ItemKind = "domain"
	ItemKindTenant  ItemKind = "tenant"
	ItemKindMailbox ItemKind = "mailbox"
	ItemKindBatch   ItemKind = "batch"
)

func (k ItemKind) String() string { return string(k) }

func (k ItemKind) IsValid() bool {
	switch k {
	case ItemKindDomain, ItemKindTenant, ItemKindMailbox, ItemKindBatch:
		return true
	}
	return false
}

// StepItem is one unit of work within a step. Name is the dedup/retry key
// within the step; Ref holds the backing entity id when one exists.
type StepItem struct {
	Kind ItemKind
	Name string
	Ref  string
}

// ItemOutcomeStatus is the terminal result of one item attempt.
type ItemOutcomeStatus string

const (
	ItemCompleted ItemOutcomeStatus = "completed"
	ItemFailed    ItemOutcomeStatus = "failed"
)

func (s ItemOutcomeStatus) IsValid() bool {
	return s == ItemCompleted || s == ItemFailed
}

// ItemOutcome is the result of running one step item.
type ItemOutcome struct {
	Status  ItemOutcomeStatus
	Message string
}

// CompletedItem builds a successful outcome.
func CompletedItem(message string) ItemOutcome {
	return ItemOutcome{Status: ItemCompleted, Message: message}
}

// FailedItem builds a failed outcome from an error.
func FailedItem(err error) ItemOutcome {
	msg := "unknown failure"
	if err != nil {
		msg = err.Error()
	}
	return ItemOutcome{Status: ItemFailed, Message: msg}
}

// StepItemResult is the last recorded outcome for a (batch, step, item)
// triple. Retry-failed re-targets exactly the rows with a failed outcome;
// resume skips rows with a completed outcome.
type StepItemResult struct {
	BatchID    string            `gorm:"type:uuid;primaryKey"`
	StepNumber int               `gorm:"primaryKey"`
	ItemName   string            `gorm:"type:varchar(255);primaryKey"`
	ItemKind   ItemKind          `gorm:"type:varchar(20);not null"`
	Outcome    ItemOutcomeStatus `gorm:"type:varchar(20);not null"`
	Message    string            `gorm:"type:text"`
	UpdatedAt  time.Time
}

func (r *StepItemResult) Validate() error {
	if strings.TrimSpace(r.ItemName) == "" {
		return fmt.Errorf("%w: item name is required", ErrValidation)
	}
	if !r.Outcome.IsValid() {
		return fmt.Errorf("%w: invalid item outcome %q", ErrValidation, r.Outcome)
	}
	return nil
}
