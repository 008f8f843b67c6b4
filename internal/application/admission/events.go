package admission

import (
	"context"
	"errors"
	"log/slog"
	"time"

	enrollmentDomain "enrollment/internal/domain/enrollment"
	paymentDomain "enrollment/internal/domain/payment"
	workshopDomain "enrollment/internal/domain/workshop"
)

// PaymentEventProcessor ingests the provider's event feed, deduplicates it,
// and drives the enrollment state machine. Delivery is at-least-once; the
// dedup mark plus compare-and-set transitions give exactly-once application.
type PaymentEventProcessor struct {
	dedup       DedupStore
	enrollments EnrollmentStore
	workshops   WorkshopStore
	queue       *WaitlistQueue
	notifier    Notifier
	locks       *keyedMutex
	now         func() time.Time
	generateID  func() string
}

// Handle processes one payment event.
// PRE: ev came off the transport and passes Validate
// POST: Exactly one of the four outcomes; duplicate deliveries of the same
// event id produce no second side effect
func (p *PaymentEventProcessor) Handle(ctx context.Context, ev paymentDomain.Event) (EventOutcome, error) {
	if err := ev.Validate(); err != nil {
		return "", err
	}

	receivedAt := ev.ReceivedAt
	if receivedAt.IsZero() {
		receivedAt = p.now()
	}

	// Check-and-mark is atomic in the store; of N concurrent deliveries of
	// the same event id, exactly one proceeds.
	fresh, err := p.dedup.MarkSeen(ctx, ev.ID, receivedAt)
	if err != nil {
		return "", err
	}
	if !fresh {
		slog.Info("payment_event", "event", "duplicate_ignored", "event_id", ev.ID, "type", ev.Type)
		return EventDuplicateIgnored, nil
	}

	outcome, err := p.apply(ctx, ev)
	if err != nil {
		// Infrastructure failure, not a protocol outcome: unmark so the
		// transport's redelivery can retry.
		if ferr := p.dedup.Forget(ctx, ev.ID); ferr != nil {
			slog.Error("payment_event_unmark_failed", "error", ferr, "event_id", ev.ID)
		}
		return "", err
	}
	return outcome, nil
}

// apply resolves the enrollment and performs the legal transition, if any.
func (p *PaymentEventProcessor) apply(ctx context.Context, ev paymentDomain.Event) (EventOutcome, error) {
	e, err := p.enrollments.GetByReference(ctx, ev.PaymentReference)
	missing := errors.Is(err, enrollmentDomain.ErrNotFound)
	if err != nil && !missing {
		return "", err
	}

	switch ev.Type {
	case paymentDomain.TypeCheckoutCompleted:
		if missing {
			e, err = p.createPendingFromEvent(ctx, ev)
			if err != nil {
				return "", err
			}
			if e.ID == "" {
				return EventNoMatchingEnrollment, nil
			}
		}
		return p.complete(ctx, e)

	case paymentDomain.TypePaymentFailed:
		if missing {
			return EventNoMatchingEnrollment, nil
		}
		return p.fail(ctx, e)

	case paymentDomain.TypeRefundIssued:
		if missing {
			return EventNoMatchingEnrollment, nil
		}
		return p.refund(ctx, e, ev)
	}
	return "", paymentDomain.ErrUnknownEventType
}

// complete finalizes the seat reservation that Reserve already counted; it
// never reserves a second seat.
func (p *PaymentEventProcessor) complete(ctx context.Context, e enrollmentDomain.Enrollment) (EventOutcome, error) {
	unlock := p.locks.lock(e.WorkshopID)
	ok, err := p.enrollments.UpdateStatus(ctx, e.ID, enrollmentDomain.StatusPending, enrollmentDomain.StatusCompleted)
	unlock()
	if err != nil {
		return "", err
	}
	if !ok {
		slog.Warn("payment_event", "event", "illegal_transition", "enrollment_id", e.ID,
			"status", e.Status, "attempted", enrollmentDomain.StatusCompleted)
		return EventIllegalTransition, nil
	}

	e.Status = enrollmentDomain.StatusCompleted
	slog.Info("enrollment_event", "event", "completed", "enrollment_id", e.ID, "workshop_id", e.WorkshopID)

	if w, werr := p.workshops.GetByID(ctx, e.WorkshopID); werr == nil {
		p.notifier.EnrollmentConfirmed(ctx, e, w)
	} else {
		slog.Error("confirmation_notify_skipped", "error", werr, "enrollment_id", e.ID)
	}
	return EventApplied, nil
}

// fail moves a pending enrollment to failed and offers the freed seat to the
// waitlist head.
func (p *PaymentEventProcessor) fail(ctx context.Context, e enrollmentDomain.Enrollment) (EventOutcome, error) {
	unlock := p.locks.lock(e.WorkshopID)
	ok, err := p.enrollments.UpdateStatus(ctx, e.ID, enrollmentDomain.StatusPending, enrollmentDomain.StatusFailed)
	unlock()
	if err != nil {
		return "", err
	}
	if !ok {
		slog.Warn("payment_event", "event", "illegal_transition", "enrollment_id", e.ID,
			"status", e.Status, "attempted", enrollmentDomain.StatusFailed)
		return EventIllegalTransition, nil
	}

	slog.Info("enrollment_event", "event", "failed", "enrollment_id", e.ID, "workshop_id", e.WorkshopID)

	// Promotion runs after the workshop lock above is released.
	if _, _, err := p.queue.PromoteHead(ctx, e.WorkshopID); err != nil {
		slog.Error("waitlist_promote_failed", "error", err, "workshop_id", e.WorkshopID)
	}
	return EventApplied, nil
}

// refund applies a provider-issued refund. If the RefundCoordinator already
// recorded this refund, the compare-and-set misses and the event lands as an
// illegal transition rather than a second application.
func (p *PaymentEventProcessor) refund(ctx context.Context, e enrollmentDomain.Enrollment, ev paymentDomain.Event) (EventOutcome, error) {
	refundRef := ev.RefundReference
	if refundRef == "" {
		refundRef = "evt-" + ev.ID
	}

	unlock := p.locks.lock(e.WorkshopID)
	ok, err := p.enrollments.MarkRefunded(ctx, e.ID, refundRef)
	unlock()
	if err != nil {
		return "", err
	}
	if !ok {
		slog.Warn("payment_event", "event", "illegal_transition", "enrollment_id", e.ID,
			"status", e.Status, "attempted", enrollmentDomain.StatusRefunded)
		return EventIllegalTransition, nil
	}

	e.Status = enrollmentDomain.StatusRefunded
	e.RefundReference = refundRef
	slog.Info("enrollment_event", "event", "refunded", "enrollment_id", e.ID,
		"workshop_id", e.WorkshopID, "refund_reference", refundRef)

	if w, werr := p.workshops.GetByID(ctx, e.WorkshopID); werr == nil {
		p.notifier.RefundIssued(ctx, e, w)
	}

	if _, _, err := p.queue.PromoteHead(ctx, e.WorkshopID); err != nil {
		slog.Error("waitlist_promote_failed", "error", err, "workshop_id", e.WorkshopID)
	}
	return EventApplied, nil
}

// createPendingFromEvent creates the pending enrollment for a completed
// checkout whose record was never persisted by the caller that initiated it.
// The customer has already paid, so the record is created even when the
// workshop is past capacity; the oversell is surfaced in the log.
// POST: Returns a zero-ID enrollment when the event metadata cannot identify
// a workshop
func (p *PaymentEventProcessor) createPendingFromEvent(ctx context.Context, ev paymentDomain.Event) (enrollmentDomain.Enrollment, error) {
	if ev.WorkshopID == "" {
		slog.Warn("payment_event", "event", "unresolvable_checkout", "event_id", ev.ID,
			"payment_reference", ev.PaymentReference)
		return enrollmentDomain.Enrollment{}, nil
	}

	unlock := p.locks.lock(ev.WorkshopID)
	defer unlock()

	w, err := p.workshops.GetByID(ctx, ev.WorkshopID)
	if err != nil {
		if errors.Is(err, workshopDomain.ErrNotFound) {
			slog.Warn("payment_event", "event", "unknown_workshop", "event_id", ev.ID,
				"workshop_id", ev.WorkshopID)
			return enrollmentDomain.Enrollment{}, nil
		}
		return enrollmentDomain.Enrollment{}, err
	}

	if !w.Unlimited() {
		used, cerr := p.enrollments.CountHoldingSeats(ctx, ev.WorkshopID)
		if cerr == nil && used >= w.Capacity {
			slog.Warn("enrollment_over_capacity", "workshop_id", ev.WorkshopID,
				"capacity", w.Capacity, "event_id", ev.ID)
		}
	}

	e := enrollmentDomain.Enrollment{
		ID:         p.generateID(),
		WorkshopID: ev.WorkshopID,
		Customer: enrollmentDomain.Customer{
			Name:  ev.CustomerName,
			Email: ev.CustomerEmail,
		},
		AmountCents:      ev.AmountCents,
		Currency:         ev.Currency,
		PricingOption:    ev.PricingOption,
		Status:           enrollmentDomain.StatusPending,
		PaymentReference: ev.PaymentReference,
		CreatedAt:        p.now(),
	}
	if err := p.enrollments.Create(ctx, e); err != nil {
		return enrollmentDomain.Enrollment{}, err
	}

	slog.Info("enrollment_event", "event", "created_from_webhook", "enrollment_id", e.ID,
		"workshop_id", ev.WorkshopID, "payment_reference", ev.PaymentReference)
	return e, nil
}
