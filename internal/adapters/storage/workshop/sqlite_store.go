package workshop

import (
	"context"
	"database/sql"
	"errors"

	"enrollment/internal/adapters/storage"
	domain "enrollment/internal/domain/workshop"
)

// SQLiteStore implements the workshop Store interface using SQLite.
type SQLiteStore struct {
	db storage.SQLDB
}

// NewSQLiteStore creates a new workshop store.
func NewSQLiteStore(db storage.SQLDB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

// Save persists a workshop to the database.
// PRE: entity has been validated
// POST: Entity is persisted (insert or update)
func (s *SQLiteStore) Save(ctx context.Context, w domain.Workshop) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO workshop (id, title, description, capacity, waitlist_enabled, price_cents, currency, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		   title=excluded.title, description=excluded.description,
		   capacity=excluded.capacity, waitlist_enabled=excluded.waitlist_enabled,
		   price_cents=excluded.price_cents, currency=excluded.currency`,
		w.ID, w.Title, w.Description, w.Capacity, boolToInt(w.WaitlistEnabled),
		w.PriceCents, w.Currency, w.CreatedAt)
	return err
}

// GetByID retrieves a workshop by its ID.
// PRE: id is non-empty
// POST: Returns the workshop or domain.ErrNotFound
func (s *SQLiteStore) GetByID(ctx context.Context, id string) (domain.Workshop, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, title, description, capacity, waitlist_enabled, price_cents, currency, created_at
		 FROM workshop WHERE id = ?`, id)
	w, err := scanWorkshop(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Workshop{}, domain.ErrNotFound
	}
	return w, err
}

// List returns all workshops ordered by creation time.
func (s *SQLiteStore) List(ctx context.Context) ([]domain.Workshop, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, title, description, capacity, waitlist_enabled, price_cents, currency, created_at
		 FROM workshop ORDER BY created_at ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var workshops []domain.Workshop
	for rows.Next() {
		w, err := scanWorkshop(rows.Scan)
		if err != nil {
			return nil, err
		}
		workshops = append(workshops, w)
	}
	return workshops, rows.Err()
}

// scanWorkshop scans a row into a Workshop using the given scan function.
func scanWorkshop(scan func(dest ...any) error) (domain.Workshop, error) {
	var w domain.Workshop
	var waitlistEnabled int
	err := scan(&w.ID, &w.Title, &w.Description, &w.Capacity, &waitlistEnabled,
		&w.PriceCents, &w.Currency, &w.CreatedAt)
	if err != nil {
		return domain.Workshop{}, err
	}
	w.WaitlistEnabled = waitlistEnabled != 0
	return w, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
