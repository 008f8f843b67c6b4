package storage

import (
	"context"
	"database/sql"
	"fmt"
)

// SQLDB is the database interface used by all stores.
// *sql.DB satisfies this interface; tests may substitute a wrapper.
type SQLDB interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error)
}

// Compile-time check that *sql.DB satisfies SQLDB.
var _ SQLDB = (*sql.DB)(nil)

// InitDB initializes the database schema.
// PRE: db is a valid database connection
// POST: All tables are created, WAL mode enabled
func InitDB(db *sql.DB) error {
	// Enable WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return fmt.Errorf("failed to enable WAL mode: %w", err)
	}
	// Enable foreign key enforcement
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		return fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	// Create tables. Enrollment and waitlist rows carry enough state to
	// rebuild the admission state machine on restart; only the payment
	// event dedup window is rebuilt conservatively.
	schema := `
	CREATE TABLE IF NOT EXISTS workshop (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		capacity INTEGER NOT NULL DEFAULT 0,
		waitlist_enabled INTEGER NOT NULL DEFAULT 0,
		price_cents INTEGER NOT NULL DEFAULT 0,
		currency TEXT NOT NULL DEFAULT 'usd',
		created_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS enrollment (
		id TEXT PRIMARY KEY,
		workshop_id TEXT NOT NULL,
		customer_name TEXT NOT NULL,
		customer_email TEXT NOT NULL,
		customer_phone TEXT NOT NULL DEFAULT '',
		amount_cents INTEGER NOT NULL DEFAULT 0,
		currency TEXT NOT NULL DEFAULT 'usd',
		pricing_option TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL,
		payment_reference TEXT NOT NULL DEFAULT '',
		refund_reference TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL,
		FOREIGN KEY (workshop_id) REFERENCES workshop(id)
	);

	CREATE UNIQUE INDEX IF NOT EXISTS idx_enrollment_workshop_reference
		ON enrollment(workshop_id, payment_reference)
		WHERE payment_reference != '';

	CREATE INDEX IF NOT EXISTS idx_enrollment_status
		ON enrollment(workshop_id, status);

	CREATE TABLE IF NOT EXISTS waitlist_entry (
		id TEXT PRIMARY KEY,
		workshop_id TEXT NOT NULL,
		customer_name TEXT NOT NULL,
		customer_email TEXT NOT NULL,
		customer_phone TEXT NOT NULL DEFAULT '',
		position INTEGER NOT NULL,
		status TEXT NOT NULL,
		claim_token TEXT NOT NULL DEFAULT '',
		claim_expires_at TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL,
		FOREIGN KEY (workshop_id) REFERENCES workshop(id),
		UNIQUE (workshop_id, position)
	);

	CREATE TABLE IF NOT EXISTS payment_event_seen (
		event_id TEXT PRIMARY KEY,
		received_at TEXT NOT NULL
	);
	`

	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}

	return nil
}
