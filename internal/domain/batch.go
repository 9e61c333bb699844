package domain

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// BatchStatus represents the lifecycle state of a provisioning batch.
type BatchStatus string

const (
	BatchStatusActive    BatchStatus = "active"
	BatchStatusPaused    BatchStatus = "paused"
	BatchStatusCompleted BatchStatus = "completed"
	BatchStatusError     BatchStatus = "error"
)

func (s BatchStatus) String() string { return string(s) }

func (s BatchStatus) IsValid() bool {
	switch s {
	case BatchStatusActive, BatchStatusPaused, BatchStatusCompleted, BatchStatusError:
		return true
	}
	return false
}

func ParseBatchStatusFromString(s string) (BatchStatus, error) {
	st := BatchStatus(strings.ToLower(strings.TrimSpace(s)))
	if !st.IsValid() {
		return "", fmt.Errorf("%w: invalid batch status %q", ErrValidation, s)
	}
	return st, nil
}

// BatchEvent is a requested transition on a batch.
type BatchEvent string

const (
	// EventGate pauses the batch after a human-gated step finishes its
	// automated portion.
	EventGate BatchEvent = "gate"
	// EventConfirm resumes a batch paused at the human-gated step.
	EventConfirm BatchEvent = "confirm"
	EventPause   BatchEvent = "pause"
	EventResume  BatchEvent = "resume"
	// EventFail is raised when a step finishes with zero successful items.
	EventFail BatchEvent = "fail"
	// EventRetry re-activates a batch in error for a retry-failed run.
	EventRetry    BatchEvent = "retry"
	EventRerun    BatchEvent = "rerun"
	EventComplete BatchEvent = "complete"
)

// BatchTransition is one allowed edge of the batch state machine.
type BatchTransition struct {
	Event BatchEvent
	Src   BatchStatus
	Dst   BatchStatus
}

// BatchTransitions is the full transition table. A completed batch is
// immutable except for rerun-all.
var BatchTransitions = []BatchTransition{
	{Event: EventGate, Src: BatchStatusActive, Dst: BatchStatusPaused},
	{Event: EventConfirm, Src: BatchStatusPaused, Dst: BatchStatusActive},
	{Event: EventPause, Src: BatchStatusActive, Dst: BatchStatusPaused},
	{Event: EventResume, Src: BatchStatusPaused, Dst: BatchStatusActive},
	{Event: EventFail, Src: BatchStatusActive, Dst: BatchStatusError},
	{Event: EventFail, Src: BatchStatusPaused, Dst: BatchStatusError},
	{Event: EventRetry, Src: BatchStatusError, Dst: BatchStatusActive},
	{Event: EventRerun, Src: BatchStatusError, Dst: BatchStatusActive},
	{Event: EventRerun, Src: BatchStatusCompleted, Dst: BatchStatusActive},
	{Event: EventRerun, Src: BatchStatusPaused, Dst: BatchStatusActive},
	{Event: EventComplete, Src: BatchStatusActive, Dst: BatchStatusCompleted},
}

// TransitionValidator checks whether an event is allowed from the current
// batch status and returns the destination status.
type TransitionValidator interface {
	Apply(ctx context.Context, current BatchStatus, event BatchEvent) (BatchStatus, error)
}

// TransitionError reports a disallowed batch transition.
type TransitionError struct {
	Event   BatchEvent
	Current BatchStatus
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("event %q is not allowed while batch is %q", e.Event, e.Current)
}

func (e *TransitionError) Unwrap() error { return ErrConflict }

// Batch is one end-to-end provisioning run over a set of domains and
// hosted-mailbox tenants.
type Batch struct {
	ID          string      `gorm:"type:uuid;primaryKey"`
	Name        string      `gorm:"type:varchar(255);not null"`
	Description string      `gorm:"type:text"`
	CurrentStep int         `gorm:"not null;default:1"`
	Status      BatchStatus `gorm:"type:varchar(20);not null"`
	// Version increases on every orchestrator mutation so pollers can
	// detect staleness without locking.
	Version     int64   `gorm:"not null;default:0"`
	RedirectURL *string `gorm:"type:varchar(512)"`
	// SequencerAccountID is the sending-platform account the final upload
	// step targets. Optional; without it step ten fails its single item.
	SequencerAccountID  *string `gorm:"type:varchar(255)"`
	DomainsArtifact     string  `gorm:"type:varchar(255);not null"`
	TenantsArtifact     string  `gorm:"type:varchar(255);not null"`
	CredentialsArtifact string  `gorm:"type:varchar(255);not null"`
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

func (b *Batch) Validate() error {
	if strings.TrimSpace(b.Name) == "" {
		return fmt.Errorf("%w: batch name is required", ErrValidation)
	}
	if b.CurrentStep < FirstStep || b.CurrentStep > LastStep {
		return fmt.Errorf("%w: current step %d out of range", ErrValidation, b.CurrentStep)
	}
	if !b.Status.IsValid() {
		return fmt.Errorf("%w: invalid batch status %q", ErrValidation, b.Status)
	}
	return nil
}
