package queue

import (
	"context"
	"fmt"

	"github.com/wbklx250-ops/provision-engine/internal/domain"
)

// Publisher publishes job item messages to a queue.
type Publisher interface {
	Publish(ctx context.Context, queue string, msg JobItemMessage) error
	Close() error
}

// MessageHandler handles a consumed queue message.
type MessageHandler func(ctx context.Context, msg JobItemMessage) error

// Consumer consumes job item messages from a queue.
type Consumer interface {
	Consume(ctx context.Context, queue string, handler MessageHandler) error
	Close() error
}

var supportedKinds = []domain.JobKind{
	domain.JobKindSequencerUpload,
	domain.JobKindDomainRemoval,
}

// QueueName returns the work queue name for a job kind, e.g.
// jobs.sequencer_upload.
func QueueName(kind domain.JobKind) string {
	return fmt.Sprintf("jobs.%s", kind)
}

// DLQName returns the dead-letter queue name for a job kind, e.g.
// dlq.jobs.sequencer_upload.
func DLQName(kind domain.JobKind) string {
	return fmt.Sprintf("dlq.%s", QueueName(kind))
}

// WorkQueueNames returns all job work queues.
func WorkQueueNames() []string {
	queues := make([]string, 0, len(supportedKinds))
	for _, kind := range supportedKinds {
		queues = append(queues, QueueName(kind))
	}
	return queues
}

// DLQNames returns all dead-letter queues.
func DLQNames() []string {
	queues := make([]string, 0, len(supportedKinds))
	for _, kind := range supportedKinds {
		queues = append(queues, DLQName(kind))
	}
	return queues
}
