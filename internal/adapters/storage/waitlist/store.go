package waitlist

import (
	"context"
	"time"

	domain "enrollment/internal/domain/waitlist"
)

// Store defines the interface for waitlist persistence.
// All lifecycle changes are compare-and-set so concurrent promotions and
// claims cannot both win the same entry.
type Store interface {
	Append(ctx context.Context, e domain.Entry) error
	GetByID(ctx context.Context, id string) (domain.Entry, error)
	GetByToken(ctx context.Context, workshopID, token string) (domain.Entry, error)
	ListByStatus(ctx context.Context, workshopID, status string) ([]domain.Entry, error)

	// NextPosition returns MAX(position)+1 for the workshop. Positions are
	// never renumbered for existing entries.
	NextPosition(ctx context.Context, workshopID string) (int, error)

	// HeadWaiting returns the earliest entry with status=waiting, or
	// domain.ErrNotFound.
	HeadWaiting(ctx context.Context, workshopID string) (domain.Entry, error)

	// Offer transitions id from waiting to claim_offered with the token.
	Offer(ctx context.Context, id, token string, expiresAt time.Time) (bool, error)

	// MarkClaimed transitions id from claim_offered to claimed, keeping the
	// token for audit.
	MarkClaimed(ctx context.Context, id string) (bool, error)

	// MarkExpired transitions id from claim_offered to expired, clearing
	// the token.
	MarkExpired(ctx context.Context, id string) (bool, error)

	// Requeue rolls id back to waiting at its original position, clearing
	// the token.
	Requeue(ctx context.Context, id string) (bool, error)

	// ListExpiredOffers returns claim_offered entries across all workshops
	// whose expiry is at or before now.
	ListExpiredOffers(ctx context.Context, now time.Time) ([]domain.Entry, error)
}
