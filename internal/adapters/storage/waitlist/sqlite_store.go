package waitlist

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"enrollment/internal/adapters/storage"
	domain "enrollment/internal/domain/waitlist"
)

const (
	// The fraction is fixed-width so stored timestamps compare correctly
	// as strings in claim_expires_at <= ? queries.
	dateLayout = "2006-01-02T15:04:05.000000000Z07:00"
)

// SQLiteStore implements the waitlist Store interface using SQLite.
type SQLiteStore struct {
	db storage.SQLDB
}

// NewSQLiteStore creates a new waitlist store.
func NewSQLiteStore(db storage.SQLDB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

// Append inserts a new entry at the tail of the workshop's queue.
// PRE: entity has been validated, Position assigned via NextPosition
// POST: Entity is persisted; the (workshop_id, position) unique constraint
// rejects a position race
func (s *SQLiteStore) Append(ctx context.Context, e domain.Entry) error {
	expiresAt := ""
	if !e.ClaimExpiresAt.IsZero() {
		expiresAt = e.ClaimExpiresAt.Format(dateLayout)
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO waitlist_entry (id, workshop_id, customer_name, customer_email, customer_phone,
		   position, status, claim_token, claim_expires_at, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.WorkshopID, e.Customer.Name, e.Customer.Email, e.Customer.Phone,
		e.Position, e.Status, e.ClaimToken, expiresAt, e.CreatedAt.Format(dateLayout))
	return err
}

// GetByID retrieves an entry by its ID.
// PRE: id is non-empty
// POST: Returns the entry or domain.ErrNotFound
func (s *SQLiteStore) GetByID(ctx context.Context, id string) (domain.Entry, error) {
	row := s.db.QueryRowContext(ctx, selectColumns+` WHERE id = ?`, id)
	e, err := scanEntry(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Entry{}, domain.ErrNotFound
	}
	return e, err
}

// GetByToken retrieves an entry by its claim token within a workshop.
// PRE: token is non-empty
// POST: Returns the entry or domain.ErrNotFound
func (s *SQLiteStore) GetByToken(ctx context.Context, workshopID, token string) (domain.Entry, error) {
	row := s.db.QueryRowContext(ctx,
		selectColumns+` WHERE workshop_id = ? AND claim_token = ?`, workshopID, token)
	e, err := scanEntry(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Entry{}, domain.ErrNotFound
	}
	return e, err
}

// ListByStatus returns entries for a workshop in FIFO position order.
func (s *SQLiteStore) ListByStatus(ctx context.Context, workshopID, status string) ([]domain.Entry, error) {
	rows, err := s.db.QueryContext(ctx,
		selectColumns+` WHERE workshop_id = ? AND status = ? ORDER BY position ASC`,
		workshopID, status)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanEntries(rows)
}

// NextPosition returns the next tail position for the workshop.
// POST: Returns MAX(position)+1, starting at 1 for an empty queue
func (s *SQLiteStore) NextPosition(ctx context.Context, workshopID string) (int, error) {
	var pos int
	err := s.db.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(position), 0) + 1 FROM waitlist_entry WHERE workshop_id = ?`,
		workshopID).Scan(&pos)
	return pos, err
}

// HeadWaiting returns the earliest waiting entry for the workshop.
// POST: Returns the entry with the lowest position, or domain.ErrNotFound
func (s *SQLiteStore) HeadWaiting(ctx context.Context, workshopID string) (domain.Entry, error) {
	row := s.db.QueryRowContext(ctx,
		selectColumns+` WHERE workshop_id = ? AND status = ? ORDER BY position ASC LIMIT 1`,
		workshopID, domain.StatusWaiting)
	e, err := scanEntry(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Entry{}, domain.ErrNotFound
	}
	return e, err
}

// Offer performs the waiting -> claim_offered compare-and-set.
// PRE: token is non-empty
// POST: Returns true iff the row was waiting
func (s *SQLiteStore) Offer(ctx context.Context, id, token string, expiresAt time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE waitlist_entry SET status = ?, claim_token = ?, claim_expires_at = ?
		 WHERE id = ? AND status = ?`,
		domain.StatusClaimOffered, token, expiresAt.Format(dateLayout),
		id, domain.StatusWaiting)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

// MarkClaimed performs the claim_offered -> claimed compare-and-set.
// POST: Returns true iff the row held an outstanding offer
func (s *SQLiteStore) MarkClaimed(ctx context.Context, id string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE waitlist_entry SET status = ? WHERE id = ? AND status = ?`,
		domain.StatusClaimed, id, domain.StatusClaimOffered)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

// MarkExpired performs the claim_offered -> expired compare-and-set.
// POST: Returns true iff the row held an outstanding offer; token cleared
func (s *SQLiteStore) MarkExpired(ctx context.Context, id string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE waitlist_entry SET status = ?, claim_token = '', claim_expires_at = ''
		 WHERE id = ? AND status = ?`,
		domain.StatusExpired, id, domain.StatusClaimOffered)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

// Requeue rolls an offered or claimed entry back to waiting.
// POST: Returns true iff the row was claim_offered or claimed; Position is
// untouched so the entry keeps its place in the queue
func (s *SQLiteStore) Requeue(ctx context.Context, id string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE waitlist_entry SET status = ?, claim_token = '', claim_expires_at = ''
		 WHERE id = ? AND status IN (?, ?)`,
		domain.StatusWaiting, id, domain.StatusClaimOffered, domain.StatusClaimed)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

// ListExpiredOffers returns all outstanding offers past their expiry.
// POST: Returns claim_offered entries with claim_expires_at <= now
func (s *SQLiteStore) ListExpiredOffers(ctx context.Context, now time.Time) ([]domain.Entry, error) {
	rows, err := s.db.QueryContext(ctx,
		selectColumns+` WHERE status = ? AND claim_expires_at != '' AND claim_expires_at <= ?
		 ORDER BY workshop_id, position ASC`,
		domain.StatusClaimOffered, now.Format(dateLayout))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanEntries(rows)
}

const selectColumns = `SELECT id, workshop_id, customer_name, customer_email, customer_phone,
	position, status, claim_token, claim_expires_at, created_at
	FROM waitlist_entry`

// scanEntry scans a row into an Entry using the given scan function.
func scanEntry(scan func(dest ...any) error) (domain.Entry, error) {
	var e domain.Entry
	var expiresAt, createdAt string
	err := scan(&e.ID, &e.WorkshopID, &e.Customer.Name, &e.Customer.Email, &e.Customer.Phone,
		&e.Position, &e.Status, &e.ClaimToken, &expiresAt, &createdAt)
	if err != nil {
		return domain.Entry{}, err
	}
	if expiresAt != "" {
		e.ClaimExpiresAt, _ = time.Parse(dateLayout, expiresAt)
	}
	e.CreatedAt, _ = time.Parse(dateLayout, createdAt)
	return e, nil
}

// scanEntries scans multiple rows into a slice of Entries.
func scanEntries(rows *sql.Rows) ([]domain.Entry, error) {
	var entries []domain.Entry
	for rows.Next() {
		e, err := scanEntry(rows.Scan)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
