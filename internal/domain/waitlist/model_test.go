package waitlist

import (
	"testing"
	"time"

	"enrollment/internal/domain/enrollment"
)

var baseTime = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func waitingEntry() Entry {
	return Entry{
		ID:         "wl-001",
		WorkshopID: "ws-001",
		Customer:   enrollment.Customer{Name: "Tane Rewi", Email: "tane@example.com"},
		Position:   1,
		Status:     StatusWaiting,
		CreatedAt:  baseTime,
	}
}

// TestOffer_FromWaiting tests the waiting -> claim_offered transition.
func TestOffer_FromWaiting(t *testing.T) {
	e := waitingEntry()
	expires := baseTime.Add(48 * time.Hour)
	if err := e.Offer("tok-abc", expires); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if e.Status != StatusClaimOffered {
		t.Errorf("expected status=claim_offered, got %s", e.Status)
	}
	if e.ClaimToken != "tok-abc" || !e.ClaimExpiresAt.Equal(expires) {
		t.Errorf("offer fields not set: token=%s expires=%v", e.ClaimToken, e.ClaimExpiresAt)
	}
}

// TestOffer_FromOffered tests that a live offer cannot be re-offered.
func TestOffer_FromOffered(t *testing.T) {
	e := waitingEntry()
	if err := e.Offer("tok-abc", baseTime.Add(time.Hour)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := e.Offer("tok-def", baseTime.Add(time.Hour)); err != ErrNotWaiting {
		t.Errorf("expected ErrNotWaiting, got %v", err)
	}
}

// TestOfferExpired_Boundary tests that expiry triggers exactly at the
// deadline instant, not after it.
func TestOfferExpired_Boundary(t *testing.T) {
	e := waitingEntry()
	expires := baseTime.Add(48 * time.Hour)
	if err := e.Offer("tok-abc", expires); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if e.OfferExpired(expires.Add(-time.Nanosecond)) {
		t.Error("offer expired before deadline")
	}
	if !e.OfferExpired(expires) {
		t.Error("offer not expired at deadline")
	}
	if !e.OfferExpired(expires.Add(time.Hour)) {
		t.Error("offer not expired after deadline")
	}
}

// TestClaim_BeforeExpiry tests a successful claim inside the TTL.
func TestClaim_BeforeExpiry(t *testing.T) {
	e := waitingEntry()
	expires := baseTime.Add(48 * time.Hour)
	if err := e.Offer("tok-abc", expires); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := e.Claim(baseTime.Add(time.Hour)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if e.Status != StatusClaimed {
		t.Errorf("expected status=claimed, got %s", e.Status)
	}
}

// TestClaim_AfterExpiry tests that an overdue claim is rejected.
func TestClaim_AfterExpiry(t *testing.T) {
	e := waitingEntry()
	expires := baseTime.Add(48 * time.Hour)
	if err := e.Offer("tok-abc", expires); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := e.Claim(expires); err != ErrClaimExpired {
		t.Errorf("expected ErrClaimExpired, got %v", err)
	}
}

// TestClaim_NotOffered tests that a waiting entry cannot be claimed.
func TestClaim_NotOffered(t *testing.T) {
	e := waitingEntry()
	if err := e.Claim(baseTime); err != ErrNotOffered {
		t.Errorf("expected ErrNotOffered, got %v", err)
	}
}

// TestExpire_ClearsToken tests the claim_offered -> expired transition.
func TestExpire_ClearsToken(t *testing.T) {
	e := waitingEntry()
	if err := e.Offer("tok-abc", baseTime.Add(time.Hour)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := e.Expire(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if e.Status != StatusExpired || e.ClaimToken != "" {
		t.Errorf("expected expired entry with cleared token, got status=%s token=%s", e.Status, e.ClaimToken)
	}
}

// TestRequeue_KeepsPosition tests rolling a claimed entry back to waiting.
func TestRequeue_KeepsPosition(t *testing.T) {
	e := waitingEntry()
	e.Position = 7
	if err := e.Offer("tok-abc", baseTime.Add(time.Hour)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := e.Claim(baseTime); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := e.Requeue(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if e.Status != StatusWaiting || e.Position != 7 {
		t.Errorf("expected waiting at position 7, got status=%s position=%d", e.Status, e.Position)
	}
	if e.ClaimToken != "" {
		t.Errorf("expected cleared token, got %s", e.ClaimToken)
	}
}

// TestValidate_OfferRequiresToken tests the claim offer invariant.
func TestValidate_OfferRequiresToken(t *testing.T) {
	e := waitingEntry()
	e.Status = StatusClaimOffered
	if err := e.Validate(); err == nil {
		t.Error("expected error for offer without token")
	}
}
