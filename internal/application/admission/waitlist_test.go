package admission

import (
	"context"
	"testing"
	"time"

	waitlistDomain "enrollment/internal/domain/waitlist"
)

// TestEnqueue_FIFOPositions tests monotonic position assignment.
func TestEnqueue_FIFOPositions(t *testing.T) {
	f := newFixture(smallWorkshop("ws-1", 1, true))
	ctx := context.Background()

	for i, name := range []string{"first", "second", "third"} {
		e, err := f.core.Queue.Enqueue(ctx, "ws-1", customer(name))
		if err != nil {
			t.Fatalf("Enqueue failed: %v", err)
		}
		if e.Position != i+1 {
			t.Errorf("expected position %d for %s, got %d", i+1, name, e.Position)
		}
		if e.Status != waitlistDomain.StatusWaiting {
			t.Errorf("expected waiting status, got %s", e.Status)
		}
	}
}

// TestPromoteHead_OffersEarliest tests that promotion picks the lowest
// position and issues a token with the configured TTL.
func TestPromoteHead_OffersEarliest(t *testing.T) {
	f := newFixture(smallWorkshop("ws-1", 1, true))
	ctx := context.Background()

	first, _ := f.core.Queue.Enqueue(ctx, "ws-1", customer("first"))
	f.core.Queue.Enqueue(ctx, "ws-1", customer("second"))

	entry, ok, err := f.core.Queue.PromoteHead(ctx, "ws-1")
	if err != nil {
		t.Fatalf("PromoteHead failed: %v", err)
	}
	if !ok {
		t.Fatal("expected a promotion")
	}
	if entry.ID != first.ID {
		t.Errorf("expected head %s promoted, got %s", first.ID, entry.ID)
	}
	if entry.Status != waitlistDomain.StatusClaimOffered || entry.ClaimToken == "" {
		t.Errorf("expected claim offer with token, got %+v", entry)
	}
	want := fixedTime.Add(48 * time.Hour)
	if !entry.ClaimExpiresAt.Equal(want) {
		t.Errorf("expected expiry %v, got %v", want, entry.ClaimExpiresAt)
	}
	if f.notifier.offeredCount() != 1 {
		t.Errorf("expected 1 claim offer notification, got %d", f.notifier.offeredCount())
	}
}

// TestPromoteHead_EmptyQueue tests promotion on an empty waitlist.
func TestPromoteHead_EmptyQueue(t *testing.T) {
	f := newFixture(smallWorkshop("ws-1", 1, true))

	_, ok, err := f.core.Queue.PromoteHead(context.Background(), "ws-1")
	if err != nil {
		t.Fatalf("PromoteHead failed: %v", err)
	}
	if ok {
		t.Error("expected no promotion from empty queue")
	}
	if f.notifier.offeredCount() != 0 {
		t.Error("expected no notification")
	}
}

// TestPromoteHead_SkipsOffered tests that an outstanding offer blocks a
// second promotion of the same entry but not of later entries.
func TestPromoteHead_SkipsOffered(t *testing.T) {
	f := newFixture(smallWorkshop("ws-1", 1, true))
	ctx := context.Background()

	f.core.Queue.Enqueue(ctx, "ws-1", customer("first"))
	second, _ := f.core.Queue.Enqueue(ctx, "ws-1", customer("second"))

	if _, ok, _ := f.core.Queue.PromoteHead(ctx, "ws-1"); !ok {
		t.Fatal("expected first promotion")
	}
	entry, ok, err := f.core.Queue.PromoteHead(ctx, "ws-1")
	if err != nil {
		t.Fatalf("PromoteHead failed: %v", err)
	}
	if !ok || entry.ID != second.ID {
		t.Errorf("expected second entry promoted, got ok=%v entry=%s", ok, entry.ID)
	}
}

// TestExpireSweep_PromotesNext tests that expiring an overdue offer passes
// the seat down the queue.
func TestExpireSweep_PromotesNext(t *testing.T) {
	f := newFixture(smallWorkshop("ws-1", 1, true))
	ctx := context.Background()

	first, _ := f.core.Queue.Enqueue(ctx, "ws-1", customer("first"))
	second, _ := f.core.Queue.Enqueue(ctx, "ws-1", customer("second"))

	if _, ok, _ := f.core.Queue.PromoteHead(ctx, "ws-1"); !ok {
		t.Fatal("expected promotion")
	}

	// Sweep exactly at the deadline: the offer is expired, not grace-period'd
	expired, err := f.core.Queue.ExpireSweep(ctx, fixedTime.Add(48*time.Hour))
	if err != nil {
		t.Fatalf("ExpireSweep failed: %v", err)
	}
	if expired != 1 {
		t.Fatalf("expected 1 expired offer, got %d", expired)
	}

	if got := f.waitlist.get(first.ID); got.Status != waitlistDomain.StatusExpired {
		t.Errorf("expected first entry expired, got %s", got.Status)
	}
	if got := f.waitlist.get(second.ID); got.Status != waitlistDomain.StatusClaimOffered {
		t.Errorf("expected second entry offered, got %s", got.Status)
	}
	if f.notifier.offeredCount() != 2 {
		t.Errorf("expected 2 offer notifications, got %d", f.notifier.offeredCount())
	}
}

// TestExpireSweep_NothingDue tests a sweep with no overdue offers.
func TestExpireSweep_NothingDue(t *testing.T) {
	f := newFixture(smallWorkshop("ws-1", 1, true))
	ctx := context.Background()

	f.core.Queue.Enqueue(ctx, "ws-1", customer("first"))
	if _, ok, _ := f.core.Queue.PromoteHead(ctx, "ws-1"); !ok {
		t.Fatal("expected promotion")
	}

	expired, err := f.core.Queue.ExpireSweep(ctx, fixedTime.Add(47*time.Hour))
	if err != nil {
		t.Fatalf("ExpireSweep failed: %v", err)
	}
	if expired != 0 {
		t.Errorf("expected no expiry before the deadline, got %d", expired)
	}
}

// TestExpireSweep_ChainsThroughQueue tests repeated sweeps walking the whole
// queue as each offer lapses unclaimed.
func TestExpireSweep_ChainsThroughQueue(t *testing.T) {
	f := newFixture(smallWorkshop("ws-1", 1, true))
	ctx := context.Background()

	var ids []string
	for _, name := range []string{"a", "b", "c"} {
		e, err := f.core.Queue.Enqueue(ctx, "ws-1", customer(name))
		if err != nil {
			t.Fatalf("Enqueue failed: %v", err)
		}
		ids = append(ids, e.ID)
	}
	if _, ok, _ := f.core.Queue.PromoteHead(ctx, "ws-1"); !ok {
		t.Fatal("expected promotion")
	}

	// Each sweep runs far past every deadline, so the fresh offer made
	// during sweep N is already overdue at sweep N+1.
	deadline := fixedTime.Add(1000 * time.Hour)
	for i := 0; i < 3; i++ {
		if _, err := f.core.Queue.ExpireSweep(ctx, deadline); err != nil {
			t.Fatalf("ExpireSweep failed: %v", err)
		}
	}

	for _, id := range ids {
		if got := f.waitlist.get(id); got.Status != waitlistDomain.StatusExpired {
			t.Errorf("expected entry %s expired, got %s", id, got.Status)
		}
	}
}
