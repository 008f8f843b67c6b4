package admission

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	paymentAdapter "enrollment/internal/adapters/payment"
	enrollmentDomain "enrollment/internal/domain/enrollment"
	paymentDomain "enrollment/internal/domain/payment"
	waitlistDomain "enrollment/internal/domain/waitlist"
	workshopDomain "enrollment/internal/domain/workshop"
)

// Config carries the admission core's policy knobs. Claim TTL and dedup
// retention are business parameters, not protocol constants.
type Config struct {
	ClaimTTL       time.Duration // how long a promoted customer may claim
	DedupRetention time.Duration // how long payment event ids are remembered
}

// Deps holds the admission core's collaborators. Provider and Notifier may
// be nil: checkout/refund then run in record-only mode and notifications are
// dropped.
type Deps struct {
	WorkshopStore   WorkshopStore
	EnrollmentStore EnrollmentStore
	WaitlistStore   WaitlistStore
	DedupStore      DedupStore
	Provider        paymentAdapter.Provider
	Notifier        Notifier

	// Injectable for tests; defaulted when nil.
	Now           func() time.Time
	GenerateID    func() string
	GenerateToken func() (string, error)
}

// Core composes the capacity ledger, waitlist queue, payment event processor
// and refund coordinator behind the four admission commands. It exclusively
// owns the write path to enrollment and waitlist status.
type Core struct {
	cfg         Config
	workshops   WorkshopStore
	enrollments EnrollmentStore
	waitlist    WaitlistStore
	provider    paymentAdapter.Provider
	notifier    Notifier
	locks       *keyedMutex
	now         func() time.Time
	generateID  func() string

	Ledger  *CapacityLedger
	Queue   *WaitlistQueue
	Events  *PaymentEventProcessor
	Refunds *RefundCoordinator
}

// EnrollInput carries input for RequestEnrollment.
type EnrollInput struct {
	WorkshopID    string
	Customer      enrollmentDomain.Customer
	PricingOption string
}

// NewCore wires the admission components around one shared per-workshop
// lock registry.
// PRE: stores are non-nil; cfg TTL/retention are positive
// POST: Returns a ready-to-use core
func NewCore(cfg Config, deps Deps) *Core {
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	generateID := deps.GenerateID
	if generateID == nil {
		generateID = func() string { return uuid.New().String() }
	}
	generateToken := deps.GenerateToken
	if generateToken == nil {
		generateToken = randomToken
	}
	notifier := deps.Notifier
	if notifier == nil {
		notifier = noopNotifier{}
	}

	locks := newKeyedMutex()

	c := &Core{
		cfg:         cfg,
		workshops:   deps.WorkshopStore,
		enrollments: deps.EnrollmentStore,
		waitlist:    deps.WaitlistStore,
		provider:    deps.Provider,
		notifier:    notifier,
		locks:       locks,
		now:         now,
		generateID:  generateID,
	}

	c.Ledger = NewCapacityLedger(deps.WorkshopStore, deps.EnrollmentStore, locks)
	c.Queue = &WaitlistQueue{
		entries:       deps.WaitlistStore,
		workshops:     deps.WorkshopStore,
		notifier:      notifier,
		locks:         locks,
		claimTTL:      cfg.ClaimTTL,
		now:           now,
		generateID:    generateID,
		generateToken: generateToken,
	}
	c.Events = &PaymentEventProcessor{
		dedup:       deps.DedupStore,
		enrollments: deps.EnrollmentStore,
		workshops:   deps.WorkshopStore,
		queue:       c.Queue,
		notifier:    notifier,
		locks:       locks,
		now:         now,
		generateID:  generateID,
	}
	c.Refunds = &RefundCoordinator{
		enrollments: deps.EnrollmentStore,
		workshops:   deps.WorkshopStore,
		provider:    deps.Provider,
		queue:       c.Queue,
		notifier:    notifier,
		locks:       locks,
		inFlight:    make(map[string]struct{}),
	}
	return c
}

// RequestEnrollment attempts to reserve a seat; on a full workshop the
// customer is waitlisted (when enabled) or rejected.
// PRE: input customer has name and email
// POST: Exactly one of reserved / waitlisted / rejected; a reserved result
// has a pending enrollment counted against capacity
func (c *Core) RequestEnrollment(ctx context.Context, input EnrollInput) (EnrollResult, error) {
	w, err := c.workshops.GetByID(ctx, input.WorkshopID)
	if err != nil {
		return EnrollResult{}, err
	}
	if err := input.Customer.Validate(); err != nil {
		return EnrollResult{}, err
	}

	var enr enrollmentDomain.Enrollment
	outcome, err := c.Ledger.Reserve(ctx, w.ID, func(ctx context.Context) error {
		enr = enrollmentDomain.Enrollment{
			ID:            c.generateID(),
			WorkshopID:    w.ID,
			Customer:      input.Customer,
			AmountCents:   w.PriceCents,
			Currency:      w.Currency,
			PricingOption: input.PricingOption,
			Status:        enrollmentDomain.StatusPending,
			CreatedAt:     c.now(),
		}
		if verr := enr.Validate(); verr != nil {
			return verr
		}
		return c.enrollments.Create(ctx, enr)
	})
	if err != nil {
		return EnrollResult{}, err
	}

	if outcome == ReserveNoCapacity {
		if !w.WaitlistEnabled {
			slog.Info("enrollment_event", "event", "rejected_full", "workshop_id", w.ID)
			return EnrollResult{Status: EnrollRejected}, nil
		}
		entry, err := c.Queue.Enqueue(ctx, w.ID, input.Customer)
		if err != nil {
			return EnrollResult{}, err
		}
		return EnrollResult{Status: EnrollWaitlisted, Position: entry.Position}, nil
	}

	slog.Info("enrollment_event", "event", "seat_reserved", "enrollment_id", enr.ID, "workshop_id", w.ID)

	url, err := c.startCheckout(ctx, w, enr)
	if err != nil {
		return EnrollResult{}, err
	}
	return EnrollResult{Status: EnrollReserved, EnrollmentID: enr.ID, CheckoutURL: url}, nil
}

// OnPaymentEvent delegates to the payment event processor.
func (c *Core) OnPaymentEvent(ctx context.Context, ev paymentDomain.Event) (EventOutcome, error) {
	return c.Events.Handle(ctx, ev)
}

// OnRefundRequested delegates to the refund coordinator, which also releases
// the seat and promotes the waitlist on success.
func (c *Core) OnRefundRequested(ctx context.Context, enrollmentID string, amountCents int64, reason string) (RefundResult, error) {
	return c.Refunds.Refund(ctx, enrollmentID, amountCents, reason)
}

// OnClaimLink consumes a waitlist claim token. Token acceptance and the seat
// reservation run in one critical section, so the offered seat cannot be
// taken by a competing enrollment between the two.
// POST: Accepted creates a pending enrollment for the claimed customer; a
// capacity race rolls the entry back to waiting at its original position
func (c *Core) OnClaimLink(ctx context.Context, workshopID, token string) (ClaimResult, error) {
	w, err := c.workshops.GetByID(ctx, workshopID)
	if err != nil {
		if errors.Is(err, workshopDomain.ErrNotFound) {
			return ClaimResult{Status: ClaimInvalid}, nil
		}
		return ClaimResult{}, err
	}

	unlock := c.locks.lock(workshopID)

	entry, err := c.waitlist.GetByToken(ctx, workshopID, token)
	if err != nil {
		unlock()
		if errors.Is(err, waitlistDomain.ErrNotFound) {
			return ClaimResult{Status: ClaimInvalid}, nil
		}
		return ClaimResult{}, err
	}

	now := c.now()
	switch {
	case entry.Status == waitlistDomain.StatusClaimed:
		unlock()
		return ClaimResult{Status: ClaimAlreadyClaimed, Entry: entry}, nil
	case entry.Status != waitlistDomain.StatusClaimOffered:
		unlock()
		return ClaimResult{Status: ClaimInvalid, Entry: entry}, nil
	case entry.OfferExpired(now):
		// Lazy expiry agrees with the sweep on the same instant.
		if _, err := c.waitlist.MarkExpired(ctx, entry.ID); err != nil {
			unlock()
			return ClaimResult{}, err
		}
		unlock()
		slog.Info("waitlist_event", "event", "claim_expired_lazily", "entry_id", entry.ID, "workshop_id", workshopID)
		if _, _, err := c.Queue.PromoteHead(ctx, workshopID); err != nil {
			slog.Error("waitlist_promote_failed", "error", err, "workshop_id", workshopID)
		}
		return ClaimResult{Status: ClaimExpired, Entry: entry}, nil
	}

	ok, err := c.waitlist.MarkClaimed(ctx, entry.ID)
	if err != nil {
		unlock()
		return ClaimResult{}, err
	}
	if !ok {
		unlock()
		return ClaimResult{Status: ClaimInvalid, Entry: entry}, nil
	}
	entry.Status = waitlistDomain.StatusClaimed

	var enr enrollmentDomain.Enrollment
	outcome, err := c.Ledger.reserveLocked(ctx, workshopID, func(ctx context.Context) error {
		enr = enrollmentDomain.Enrollment{
			ID:          c.generateID(),
			WorkshopID:  workshopID,
			Customer:    entry.Customer,
			AmountCents: w.PriceCents,
			Currency:    w.Currency,
			Status:      enrollmentDomain.StatusPending,
			CreatedAt:   now,
		}
		if verr := enr.Validate(); verr != nil {
			return verr
		}
		return c.enrollments.Create(ctx, enr)
	})
	if err != nil {
		if _, rerr := c.waitlist.Requeue(ctx, entry.ID); rerr != nil {
			slog.Error("waitlist_requeue_failed", "error", rerr, "entry_id", entry.ID)
		}
		unlock()
		return ClaimResult{}, err
	}
	if outcome == ReserveNoCapacity {
		// Race with an administrator lowering capacity: back to waiting at
		// the original position, never re-appended.
		if _, rerr := c.waitlist.Requeue(ctx, entry.ID); rerr != nil {
			slog.Error("waitlist_requeue_failed", "error", rerr, "entry_id", entry.ID)
		}
		unlock()
		entry.Status = waitlistDomain.StatusWaiting
		slog.Info("waitlist_event", "event", "claim_requeued", "entry_id", entry.ID, "workshop_id", workshopID)
		return ClaimResult{Status: ClaimNoCapacity, Entry: entry}, nil
	}
	unlock()

	slog.Info("waitlist_event", "event", "claim_accepted", "entry_id", entry.ID,
		"workshop_id", workshopID, "enrollment_id", enr.ID)

	url, err := c.startCheckout(ctx, w, enr)
	if err != nil {
		// The seat is already released; put the claimant back at their
		// original position so the failure costs them nothing.
		if _, rerr := c.waitlist.Requeue(ctx, entry.ID); rerr != nil {
			slog.Error("waitlist_requeue_failed", "error", rerr, "entry_id", entry.ID)
		} else {
			slog.Info("waitlist_event", "event", "claim_requeued", "entry_id", entry.ID, "workshop_id", workshopID)
		}
		return ClaimResult{}, err
	}
	return ClaimResult{Status: ClaimAccepted, Entry: entry, EnrollmentID: enr.ID, CheckoutURL: url}, nil
}

// startCheckout opens a provider checkout session for a freshly reserved
// enrollment and attaches its reference. A provider failure fails the
// enrollment, freeing the seat.
func (c *Core) startCheckout(ctx context.Context, w workshopDomain.Workshop, enr enrollmentDomain.Enrollment) (string, error) {
	if c.provider == nil {
		return "", nil
	}

	co, err := c.provider.CreateCheckout(ctx, paymentAdapter.CheckoutRequest{
		EnrollmentID:  enr.ID,
		WorkshopID:    w.ID,
		WorkshopTitle: w.Title,
		Customer:      enr.Customer,
		AmountCents:   enr.AmountCents,
		Currency:      enr.Currency,
		PricingOption: enr.PricingOption,
	})
	if err != nil {
		if released, rerr := c.Ledger.Release(ctx, enr.ID); rerr != nil {
			slog.Error("checkout_rollback_failed", "error", rerr, "enrollment_id", enr.ID)
		} else if released {
			slog.Info("enrollment_event", "event", "checkout_failed_released", "enrollment_id", enr.ID)
		}
		return "", err
	}

	ok, err := c.enrollments.SetPaymentReference(ctx, enr.ID, co.Reference)
	if err != nil {
		return "", err
	}
	if !ok {
		slog.Warn("enrollment_event", "event", "reference_conflict", "enrollment_id", enr.ID)
	}
	return co.URL, nil
}
