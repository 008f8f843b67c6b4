package admission

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	paymentAdapter "enrollment/internal/adapters/payment"
	enrollmentDomain "enrollment/internal/domain/enrollment"
)

// RefundCoordinator applies a refund to exactly one enrollment, exactly
// once. Guards run under the workshop lock; an in-flight set keeps a second
// concurrent command for the same enrollment away from the provider while
// the first call is on the wire.
type RefundCoordinator struct {
	enrollments EnrollmentStore
	workshops   WorkshopStore
	provider    paymentAdapter.Provider
	queue       *WaitlistQueue
	notifier    Notifier
	locks       *keyedMutex

	mu       sync.Mutex
	inFlight map[string]struct{}
}

// Refund refunds an enrollment. amountCents = 0 requests a full refund; any
// amount in (0, original] is passed to the provider, and the enrollment is
// marked fully refunded either way.
// PRE: enrollmentID is non-empty
// POST: At most one provider call ever happens per enrollment; concurrent
// duplicates observe RefundAlreadyRefunded
func (r *RefundCoordinator) Refund(ctx context.Context, enrollmentID string, amountCents int64, reason string) (RefundResult, error) {
	e, err := r.enrollments.GetByID(ctx, enrollmentID)
	if err != nil {
		if errors.Is(err, enrollmentDomain.ErrNotFound) {
			return RefundResult{Status: RefundNoPaymentRecord}, nil
		}
		return RefundResult{}, err
	}

	unlock := r.locks.lock(e.WorkshopID)

	// Re-read under the lock; the snapshot above may have raced a webhook.
	e, err = r.enrollments.GetByID(ctx, enrollmentID)
	if err != nil {
		unlock()
		return RefundResult{}, err
	}

	switch {
	case e.Status == enrollmentDomain.StatusRefunded:
		unlock()
		return RefundResult{Status: RefundAlreadyRefunded, RefundReference: e.RefundReference}, nil
	case e.Status != enrollmentDomain.StatusCompleted || e.PaymentReference == "":
		unlock()
		return RefundResult{Status: RefundNoPaymentRecord}, nil
	case amountCents < 0 || amountCents > e.AmountCents:
		unlock()
		return RefundResult{Status: RefundInvalidAmount}, nil
	}

	if !r.begin(e.ID) {
		// Another refund command for this enrollment is mid-provider-call.
		unlock()
		return RefundResult{Status: RefundAlreadyRefunded}, nil
	}
	// The workshop lock is not held across the provider call; the in-flight
	// mark covers the gap.
	unlock()

	// Record-only mode without a provider: the money moves out of band.
	refundRef := "manual-" + e.ID
	if r.provider != nil {
		refundRef, err = r.provider.CreateRefund(ctx, e.PaymentReference, amountCents, reason, "refund-"+e.ID)
		if err != nil {
			r.end(e.ID)
			slog.Error("refund_provider_failed", "error", err, "enrollment_id", e.ID)
			return RefundResult{Status: RefundProviderError, Err: err}, nil
		}
	}

	unlock = r.locks.lock(e.WorkshopID)
	ok, err := r.enrollments.MarkRefunded(ctx, e.ID, refundRef)
	unlock()
	r.end(e.ID)
	if err != nil {
		return RefundResult{}, err
	}
	if !ok {
		// A refund_issued webhook for our own provider call landed first;
		// the refund is recorded, nothing to re-apply.
		existing, gerr := r.enrollments.GetByID(ctx, enrollmentID)
		if gerr == nil {
			return RefundResult{Status: RefundAlreadyRefunded, RefundReference: existing.RefundReference}, nil
		}
		return RefundResult{Status: RefundAlreadyRefunded}, nil
	}

	slog.Info("enrollment_event", "event", "refunded", "enrollment_id", e.ID,
		"workshop_id", e.WorkshopID, "refund_reference", refundRef, "amount_cents", amountCents)

	e.Status = enrollmentDomain.StatusRefunded
	e.RefundReference = refundRef
	if w, werr := r.workshops.GetByID(ctx, e.WorkshopID); werr == nil {
		r.notifier.RefundIssued(ctx, e, w)
	}

	// The seat is free now; promotion runs with no locks held.
	if _, _, perr := r.queue.PromoteHead(ctx, e.WorkshopID); perr != nil {
		slog.Error("waitlist_promote_failed", "error", perr, "workshop_id", e.WorkshopID)
	}

	return RefundResult{Status: RefundSuccess, RefundReference: refundRef}, nil
}

// begin marks an enrollment's refund as in flight.
// POST: Returns false if a refund for the id is already in flight
func (r *RefundCoordinator) begin(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, busy := r.inFlight[id]; busy {
		return false
	}
	r.inFlight[id] = struct{}{}
	return true
}

// end clears the in-flight mark.
func (r *RefundCoordinator) end(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.inFlight, id)
}
