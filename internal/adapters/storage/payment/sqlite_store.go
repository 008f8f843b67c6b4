package payment

import (
	"context"
	"time"

	"enrollment/internal/adapters/storage"
)

const (
	// The fraction is fixed-width so stored timestamps compare correctly
	// as strings in received_at < ? queries.
	dateLayout = "2006-01-02T15:04:05.000000000Z07:00"
)

// SQLiteStore implements the dedup Store interface using SQLite.
// The event_id primary key makes check-and-mark a single atomic insert.
type SQLiteStore struct {
	db storage.SQLDB
}

// NewSQLiteStore creates a new payment event dedup store.
func NewSQLiteStore(db storage.SQLDB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

// MarkSeen inserts the event id if it is new.
// POST: Returns true iff the id was not already recorded
func (s *SQLiteStore) MarkSeen(ctx context.Context, eventID string, receivedAt time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO payment_event_seen (event_id, received_at) VALUES (?, ?)`,
		eventID, receivedAt.Format(dateLayout))
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

// Forget removes the mark for an event id.
// POST: A redelivery of the id will be treated as fresh
func (s *SQLiteStore) Forget(ctx context.Context, eventID string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM payment_event_seen WHERE event_id = ?`, eventID)
	return err
}

// PurgeBefore removes marks received before the cutoff.
// POST: Returns the number of marks removed
func (s *SQLiteStore) PurgeBefore(ctx context.Context, cutoff time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM payment_event_seen WHERE received_at < ?`, cutoff.Format(dateLayout))
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}
