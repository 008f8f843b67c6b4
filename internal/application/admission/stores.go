package admission

import (
	"context"
	"time"

	enrollmentDomain "enrollment/internal/domain/enrollment"
	waitlistDomain "enrollment/internal/domain/waitlist"
	workshopDomain "enrollment/internal/domain/workshop"
)

// WorkshopStore defines the workshop persistence needed by the admission core.
type WorkshopStore interface {
	GetByID(ctx context.Context, id string) (workshopDomain.Workshop, error)
}

// EnrollmentStore defines the enrollment persistence needed by the admission core.
type EnrollmentStore interface {
	Create(ctx context.Context, e enrollmentDomain.Enrollment) error
	GetByID(ctx context.Context, id string) (enrollmentDomain.Enrollment, error)
	GetByReference(ctx context.Context, paymentRef string) (enrollmentDomain.Enrollment, error)
	CountHoldingSeats(ctx context.Context, workshopID string) (int, error)
	UpdateStatus(ctx context.Context, id, from, to string) (bool, error)
	MarkRefunded(ctx context.Context, id, refundRef string) (bool, error)
	SetPaymentReference(ctx context.Context, id, paymentRef string) (bool, error)
}

// WaitlistStore defines the waitlist persistence needed by the admission core.
type WaitlistStore interface {
	Append(ctx context.Context, e waitlistDomain.Entry) error
	GetByToken(ctx context.Context, workshopID, token string) (waitlistDomain.Entry, error)
	NextPosition(ctx context.Context, workshopID string) (int, error)
	HeadWaiting(ctx context.Context, workshopID string) (waitlistDomain.Entry, error)
	Offer(ctx context.Context, id, token string, expiresAt time.Time) (bool, error)
	MarkClaimed(ctx context.Context, id string) (bool, error)
	MarkExpired(ctx context.Context, id string) (bool, error)
	Requeue(ctx context.Context, id string) (bool, error)
	ListExpiredOffers(ctx context.Context, now time.Time) ([]waitlistDomain.Entry, error)
}

// DedupStore defines the payment event dedup window persistence.
type DedupStore interface {
	MarkSeen(ctx context.Context, eventID string, receivedAt time.Time) (bool, error)
	Forget(ctx context.Context, eventID string) error
	PurgeBefore(ctx context.Context, cutoff time.Time) (int, error)
}

// Notifier delivers customer notifications. Calls are fire-and-forget from
// the core's perspective: implementations log failures and never return
// them, so a dropped email cannot roll back a state transition.
type Notifier interface {
	EnrollmentConfirmed(ctx context.Context, e enrollmentDomain.Enrollment, w workshopDomain.Workshop)
	ClaimOffered(ctx context.Context, entry waitlistDomain.Entry, w workshopDomain.Workshop)
	RefundIssued(ctx context.Context, e enrollmentDomain.Enrollment, w workshopDomain.Workshop)
}

// noopNotifier is used when no notifier is configured.
type noopNotifier struct{}

func (noopNotifier) EnrollmentConfirmed(context.Context, enrollmentDomain.Enrollment, workshopDomain.Workshop) {
}
func (noopNotifier) ClaimOffered(context.Context, waitlistDomain.Entry, workshopDomain.Workshop) {}
func (noopNotifier) RefundIssued(context.Context, enrollmentDomain.Enrollment, workshopDomain.Workshop) {
}
