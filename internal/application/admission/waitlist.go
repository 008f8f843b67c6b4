package admission

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"time"

	enrollmentDomain "enrollment/internal/domain/enrollment"
	waitlistDomain "enrollment/internal/domain/waitlist"
)

// WaitlistQueue manages the per-workshop FIFO of waiting customers and the
// claim-token lifecycle of offered seats.
type WaitlistQueue struct {
	entries       WaitlistStore
	workshops     WorkshopStore
	notifier      Notifier
	locks         *keyedMutex
	claimTTL      time.Duration
	now           func() time.Time
	generateID    func() string
	generateToken func() (string, error)
}

// Enqueue appends a customer at the tail of the workshop's waitlist.
// PRE: customer has been validated
// POST: Entry persisted with status=waiting and the next monotonic position
func (q *WaitlistQueue) Enqueue(ctx context.Context, workshopID string, customer enrollmentDomain.Customer) (waitlistDomain.Entry, error) {
	unlock := q.locks.lock(workshopID)
	defer unlock()

	pos, err := q.entries.NextPosition(ctx, workshopID)
	if err != nil {
		return waitlistDomain.Entry{}, err
	}

	e := waitlistDomain.Entry{
		ID:         q.generateID(),
		WorkshopID: workshopID,
		Customer:   customer,
		Position:   pos,
		Status:     waitlistDomain.StatusWaiting,
		CreatedAt:  q.now(),
	}
	if err := e.Validate(); err != nil {
		return waitlistDomain.Entry{}, err
	}
	if err := q.entries.Append(ctx, e); err != nil {
		return waitlistDomain.Entry{}, err
	}

	slog.Info("waitlist_event", "event", "enqueued", "workshop_id", workshopID,
		"entry_id", e.ID, "position", e.Position)
	return e, nil
}

// PromoteHead offers the freed seat to the earliest waiting entry, issuing a
// single-use claim token with the configured TTL. Callers invoke it once per
// freed seat, after releasing any workshop lock they hold.
// POST: Returns (entry, true) with the claim offer sent, or (_, false) when
// the waitlist is empty
func (q *WaitlistQueue) PromoteHead(ctx context.Context, workshopID string) (waitlistDomain.Entry, bool, error) {
	unlock := q.locks.lock(workshopID)
	e, ok, err := q.promoteHeadLocked(ctx, workshopID)
	unlock()
	if err != nil || !ok {
		return waitlistDomain.Entry{}, false, err
	}

	if w, werr := q.workshops.GetByID(ctx, workshopID); werr == nil {
		q.notifier.ClaimOffered(ctx, e, w)
	} else {
		slog.Error("waitlist_notify_skipped", "error", werr, "workshop_id", workshopID)
	}
	return e, true, nil
}

// promoteHeadLocked selects and offers the head entry inside the workshop's
// critical section. The waiting -> claim_offered compare-and-set guarantees
// two concurrent promotions never offer the same entry.
func (q *WaitlistQueue) promoteHeadLocked(ctx context.Context, workshopID string) (waitlistDomain.Entry, bool, error) {
	head, err := q.entries.HeadWaiting(ctx, workshopID)
	if err != nil {
		if err == waitlistDomain.ErrNotFound {
			return waitlistDomain.Entry{}, false, nil
		}
		return waitlistDomain.Entry{}, false, err
	}

	token, err := q.generateToken()
	if err != nil {
		return waitlistDomain.Entry{}, false, err
	}
	expiresAt := q.now().Add(q.claimTTL)

	ok, err := q.entries.Offer(ctx, head.ID, token, expiresAt)
	if err != nil {
		return waitlistDomain.Entry{}, false, err
	}
	if !ok {
		return waitlistDomain.Entry{}, false, nil
	}

	head.Status = waitlistDomain.StatusClaimOffered
	head.ClaimToken = token
	head.ClaimExpiresAt = expiresAt

	slog.Info("waitlist_event", "event", "claim_offered", "workshop_id", workshopID,
		"entry_id", head.ID, "position", head.Position, "expires_at", expiresAt)
	return head, true, nil
}

// ExpireSweep expires every outstanding claim offer whose TTL has passed and
// offers each freed seat to the next waiting entry. The lazy check at claim
// time compares against the same claim_expires_at instant, so the two can
// never disagree about whether a token is live.
// POST: Returns the number of offers expired
func (q *WaitlistQueue) ExpireSweep(ctx context.Context, now time.Time) (int, error) {
	due, err := q.entries.ListExpiredOffers(ctx, now)
	if err != nil {
		return 0, err
	}

	expired := 0
	for _, e := range due {
		unlock := q.locks.lock(e.WorkshopID)
		ok, err := q.entries.MarkExpired(ctx, e.ID)
		unlock()
		if err != nil {
			return expired, err
		}
		if !ok {
			continue // claimed or requeued since the listing
		}
		expired++
		slog.Info("waitlist_event", "event", "claim_expired", "workshop_id", e.WorkshopID,
			"entry_id", e.ID, "position", e.Position)

		// The seat reverts to being available; offer it to the next entry.
		if _, _, err := q.PromoteHead(ctx, e.WorkshopID); err != nil {
			slog.Error("waitlist_promote_failed", "error", err, "workshop_id", e.WorkshopID)
		}
	}
	return expired, nil
}

// randomToken returns a 64-character hex token from crypto/rand.
func randomToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate claim token: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
