package enrollment

import (
	"context"

	domain "enrollment/internal/domain/enrollment"
)

// Store defines the interface for enrollment persistence.
// Status changes go through compare-and-set updates so that a lost race is
// observable (zero rows affected) instead of silently overwriting state.
type Store interface {
	Create(ctx context.Context, e domain.Enrollment) error
	GetByID(ctx context.Context, id string) (domain.Enrollment, error)
	GetByReference(ctx context.Context, paymentRef string) (domain.Enrollment, error)
	ListByWorkshop(ctx context.Context, workshopID string) ([]domain.Enrollment, error)

	// CountHoldingSeats returns the number of enrollments in
	// {pending, completed} for the workshop.
	CountHoldingSeats(ctx context.Context, workshopID string) (int, error)

	// UpdateStatus transitions id from one status to another; returns true
	// only if the row was in the expected status.
	UpdateStatus(ctx context.Context, id, from, to string) (bool, error)

	// MarkRefunded sets status=refunded and the refund reference, only if
	// the row is completed and has no refund reference yet.
	MarkRefunded(ctx context.Context, id, refundRef string) (bool, error)

	// SetPaymentReference attaches the checkout reference, only if none is
	// set yet.
	SetPaymentReference(ctx context.Context, id, paymentRef string) (bool, error)
}
