package queue

import (
	"fmt"
	"strings"

	"github.com/wbklx250-ops/provision-engine/internal/domain"
)

// JobItemMessage is the broker payload for one background job item.
type JobItemMessage struct {
	JobID              string         `json:"jobId"`
	Kind               domain.JobKind `json:"kind"`
	ItemName           string         `json:"itemName"`
	SequencerAccountID string         `json:"sequencerAccountId,omitempty"`
	SkipExisting       bool           `json:"skipExisting,omitempty"`
}

func (m JobItemMessage) Validate() error {
	if strings.TrimSpace(m.JobID) == "" {
		return fmt.Errorf("jobId is required")
	}
	if !m.Kind.IsValid() {
		return fmt.Errorf("invalid job kind %q", m.Kind)
	}
	if strings.TrimSpace(m.ItemName) == "" {
		return fmt.Errorf("itemName is required")
	}
	if m.Kind == domain.JobKindSequencerUpload && strings.TrimSpace(m.SequencerAccountID) == "" {
		return fmt.Errorf("sequencerAccountId is required for upload items")
	}
	return nil
}
