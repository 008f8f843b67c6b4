package waitlist

import (
	"errors"
	"time"

	"enrollment/internal/domain/enrollment"
)

// Status constants for the waitlist entry lifecycle.
const (
	StatusWaiting      = "waiting"
	StatusClaimOffered = "claim_offered"
	StatusClaimed      = "claimed"
	StatusExpired      = "expired"
	StatusCancelled    = "cancelled"
)

// Domain errors
var (
	ErrNotFound     = errors.New("waitlist entry not found")
	ErrNotWaiting   = errors.New("waitlist entry is not waiting")
	ErrNotOffered   = errors.New("waitlist entry has no outstanding claim offer")
	ErrClaimExpired = errors.New("claim offer has expired")
)

// Entry holds state for one waitlisted customer.
// INVARIANT: Position is monotonic per workshop and never renumbered;
// ClaimToken and ClaimExpiresAt are set only while Status = claim_offered.
type Entry struct {
	ID             string
	WorkshopID     string
	Customer       enrollment.Customer
	Position       int
	Status         string
	ClaimToken     string
	ClaimExpiresAt time.Time
	CreatedAt      time.Time
}

// Validate checks if the Entry has valid data.
// PRE: Entry struct is initialized
// POST: Returns error if validation fails, nil otherwise
func (e *Entry) Validate() error {
	if e.WorkshopID == "" {
		return errors.New("waitlist workshop id is required")
	}
	if err := e.Customer.Validate(); err != nil {
		return err
	}
	if e.Position <= 0 {
		return errors.New("waitlist position must be positive")
	}
	switch e.Status {
	case StatusWaiting, StatusClaimOffered, StatusClaimed, StatusExpired, StatusCancelled:
	default:
		return errors.New("invalid waitlist status")
	}
	if e.Status == StatusClaimOffered && (e.ClaimToken == "" || e.ClaimExpiresAt.IsZero()) {
		return errors.New("claim offer requires token and expiry")
	}
	return nil
}

// Offer transitions the entry to claim_offered with a single-use token.
// PRE: Status is waiting, token non-empty
// POST: Status is claim_offered, ClaimToken and ClaimExpiresAt set
func (e *Entry) Offer(token string, expiresAt time.Time) error {
	if e.Status != StatusWaiting {
		return ErrNotWaiting
	}
	if token == "" {
		return errors.New("claim token is required")
	}
	e.Status = StatusClaimOffered
	e.ClaimToken = token
	e.ClaimExpiresAt = expiresAt
	return nil
}

// OfferExpired reports whether an outstanding offer has passed its TTL.
// The sweep and the lazy check at claim time both compare against the same
// ClaimExpiresAt instant, so a token can never be claimed after being swept.
// INVARIANT: no fields mutated
func (e *Entry) OfferExpired(now time.Time) bool {
	return e.Status == StatusClaimOffered && !now.Before(e.ClaimExpiresAt)
}

// Claim transitions an offered entry to claimed.
// PRE: Status is claim_offered and now < ClaimExpiresAt
// POST: Status is claimed
func (e *Entry) Claim(now time.Time) error {
	if e.Status != StatusClaimOffered {
		return ErrNotOffered
	}
	if e.OfferExpired(now) {
		return ErrClaimExpired
	}
	e.Status = StatusClaimed
	return nil
}

// Expire transitions an offered entry to expired.
// PRE: Status is claim_offered
// POST: Status is expired, token cleared; the entry is never re-offered
func (e *Entry) Expire() error {
	if e.Status != StatusClaimOffered {
		return ErrNotOffered
	}
	e.Status = StatusExpired
	e.ClaimToken = ""
	e.ClaimExpiresAt = time.Time{}
	return nil
}

// Requeue rolls a claimed or offered entry back to waiting at its original
// position (used when the seat reservation at claim time loses a race).
// PRE: Status is claim_offered or claimed
// POST: Status is waiting, token cleared, Position unchanged
func (e *Entry) Requeue() error {
	if e.Status != StatusClaimOffered && e.Status != StatusClaimed {
		return ErrNotOffered
	}
	e.Status = StatusWaiting
	e.ClaimToken = ""
	e.ClaimExpiresAt = time.Time{}
	return nil
}
