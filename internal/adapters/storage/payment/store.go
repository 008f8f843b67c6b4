package payment

import (
	"context"
	"time"
)

// Store defines the interface for the payment event dedup window.
type Store interface {
	// MarkSeen records an event id and reports whether it was fresh.
	// Check-and-mark is a single atomic operation: of N concurrent calls
	// with the same id, exactly one observes fresh=true.
	MarkSeen(ctx context.Context, eventID string, receivedAt time.Time) (bool, error)

	// Forget removes a mark so a redelivery can be reprocessed (used when
	// applying an event fails on infrastructure, not protocol).
	Forget(ctx context.Context, eventID string) error

	// PurgeBefore drops marks older than the cutoff. After a purge an
	// unknown event id is treated as new.
	PurgeBefore(ctx context.Context, cutoff time.Time) (int, error)
}
