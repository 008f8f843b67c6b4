package workshop

import (
	"context"
	"database/sql"
	"testing"

	_ "modernc.org/sqlite"

	"enrollment/internal/adapters/storage"
	domain "enrollment/internal/domain/workshop"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("failed to open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := storage.InitDB(db); err != nil {
		t.Fatalf("InitDB failed: %v", err)
	}
	return NewSQLiteStore(db)
}

// TestSaveAndGetByID tests round-tripping a workshop.
func TestSaveAndGetByID(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	w := domain.Workshop{
		ID:              "ws-1",
		Title:           "Sourdough Basics",
		Description:     "A hands-on introduction to **sourdough** baking.",
		Capacity:        8,
		WaitlistEnabled: true,
		PriceCents:      4500,
		Currency:        "nzd",
		CreatedAt:       "2026-03-01T12:00:00Z",
	}
	if err := store.Save(ctx, w); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	got, err := store.GetByID(ctx, "ws-1")
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if got.Title != w.Title || got.Capacity != 8 || !got.WaitlistEnabled {
		t.Errorf("workshop not round-tripped: %+v", got)
	}
	if got.Unlimited() {
		t.Error("capacity 8 reported as unlimited")
	}
}

// TestGetByID_NotFound tests the sentinel error.
func TestGetByID_NotFound(t *testing.T) {
	store := newTestStore(t)
	if _, err := store.GetByID(context.Background(), "missing"); err != domain.ErrNotFound {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

// TestSave_UpdatesCapacity tests the upsert path an administrator uses to
// change capacity.
func TestSave_UpdatesCapacity(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	w := domain.Workshop{ID: "ws-1", Title: "Knife Skills", Capacity: 12, Currency: "nzd", CreatedAt: "2026-03-01T12:00:00Z"}
	if err := store.Save(ctx, w); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	w.Capacity = 4
	if err := store.Save(ctx, w); err != nil {
		t.Fatalf("second Save failed: %v", err)
	}

	got, err := store.GetByID(ctx, "ws-1")
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if got.Capacity != 4 {
		t.Errorf("expected capacity 4 after update, got %d", got.Capacity)
	}
}

// TestList_Ordered tests listing in creation order.
func TestList_Ordered(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	times := []string{"2026-03-02T12:00:00Z", "2026-03-01T12:00:00Z"}
	for i, id := range []string{"ws-later", "ws-earlier"} {
		w := domain.Workshop{ID: id, Title: id, Currency: "nzd", CreatedAt: times[i]}
		if err := store.Save(ctx, w); err != nil {
			t.Fatalf("Save failed: %v", err)
		}
	}

	list, err := store.List(ctx)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(list) != 2 || list[0].ID != "ws-earlier" {
		t.Errorf("unexpected list order: %+v", list)
	}
}
