package ratelimit

import "context"

// RateLimiter throttles calls per external service (dns, mailbox,
// sequencer). External collaborators are rate-limited on their side;
// waiting here keeps per-item failures from being wasted on 429s.
type RateLimiter interface {
	Allow(ctx context.Context, service string) (bool, error)
	Wait(ctx context.Context, service string) error
}
