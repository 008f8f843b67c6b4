package admission

import (
	"context"
	"log/slog"

	enrollmentDomain "enrollment/internal/domain/enrollment"
)

// CapacityLedger is the authoritative seat counter per workshop. The count
// is a read model over enrollments in {pending, completed}, never separately
// persisted, so it can only drift from truth between a snapshot read and the
// next locked operation.
type CapacityLedger struct {
	workshops   WorkshopStore
	enrollments EnrollmentStore
	locks       *keyedMutex
}

// NewCapacityLedger creates a ledger over the given stores. Components that
// share per-workshop state must share the same lock registry.
func NewCapacityLedger(workshops WorkshopStore, enrollments EnrollmentStore, locks *keyedMutex) *CapacityLedger {
	return &CapacityLedger{workshops: workshops, enrollments: enrollments, locks: locks}
}

// Reserve atomically checks capacity and, if a seat is free, runs create to
// persist the pending enrollment inside the same critical section. Capacity
// is re-read on every call because an administrator may change it at any
// time.
// PRE: create inserts exactly one enrollment in {pending}
// POST: On ReserveReserved the enrollment exists and counts against
// capacity; two concurrent calls can never both take the last seat
func (l *CapacityLedger) Reserve(ctx context.Context, workshopID string, create func(ctx context.Context) error) (ReserveOutcome, error) {
	unlock := l.locks.lock(workshopID)
	defer unlock()
	return l.reserveLocked(ctx, workshopID, create)
}

// reserveLocked is Reserve without lock acquisition, for callers already
// inside the workshop's critical section (claim accept).
func (l *CapacityLedger) reserveLocked(ctx context.Context, workshopID string, create func(ctx context.Context) error) (ReserveOutcome, error) {
	w, err := l.workshops.GetByID(ctx, workshopID)
	if err != nil {
		return "", err
	}
	if !w.Unlimited() {
		used, err := l.enrollments.CountHoldingSeats(ctx, workshopID)
		if err != nil {
			return "", err
		}
		if used >= w.Capacity {
			return ReserveNoCapacity, nil
		}
	}
	if err := create(ctx); err != nil {
		return "", err
	}
	return ReserveReserved, nil
}

// Release frees the seat held by a pending enrollment by failing it.
// Completed enrollments leave the count through the refunded transition
// instead. Idempotent per enrollment: the compare-and-set no longer matches
// once the seat is released, so a repeat call is a no-op.
// POST: Returns true iff this call freed the seat
func (l *CapacityLedger) Release(ctx context.Context, enrollmentID string) (bool, error) {
	e, err := l.enrollments.GetByID(ctx, enrollmentID)
	if err != nil {
		return false, err
	}

	unlock := l.locks.lock(e.WorkshopID)
	defer unlock()

	ok, err := l.enrollments.UpdateStatus(ctx, e.ID, enrollmentDomain.StatusPending, enrollmentDomain.StatusFailed)
	if err != nil {
		return false, err
	}
	if ok {
		slog.Info("ledger_event", "event", "seat_released", "enrollment_id", e.ID, "workshop_id", e.WorkshopID)
	}
	return ok, nil
}

// Remaining returns a lock-free snapshot of free seats. It may be stale by
// the time the caller acts on it; admission decisions go through Reserve.
func (l *CapacityLedger) Remaining(ctx context.Context, workshopID string) (Remaining, error) {
	w, err := l.workshops.GetByID(ctx, workshopID)
	if err != nil {
		return Remaining{}, err
	}
	if w.Unlimited() {
		return Remaining{Unlimited: true}, nil
	}
	used, err := l.enrollments.CountHoldingSeats(ctx, workshopID)
	if err != nil {
		return Remaining{}, err
	}
	seats := w.Capacity - used
	if seats < 0 {
		seats = 0
	}
	return Remaining{Seats: seats}, nil
}
