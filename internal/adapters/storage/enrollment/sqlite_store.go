package enrollment

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"enrollment/internal/adapters/storage"
	domain "enrollment/internal/domain/enrollment"
)

const (
	dateLayout = "2006-01-02T15:04:05.999999999Z07:00"
)

// SQLiteStore implements the enrollment Store interface using SQLite.
type SQLiteStore struct {
	db storage.SQLDB
}

// NewSQLiteStore creates a new enrollment store.
func NewSQLiteStore(db storage.SQLDB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

// Create inserts a new enrollment.
// PRE: entity has been validated
// POST: Entity is persisted; the (workshop_id, payment_reference) unique
// index rejects a duplicate reference
func (s *SQLiteStore) Create(ctx context.Context, e domain.Enrollment) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO enrollment (id, workshop_id, customer_name, customer_email, customer_phone,
		   amount_cents, currency, pricing_option, status, payment_reference, refund_reference, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.WorkshopID, e.Customer.Name, e.Customer.Email, e.Customer.Phone,
		e.AmountCents, e.Currency, e.PricingOption, e.Status,
		e.PaymentReference, e.RefundReference, e.CreatedAt.Format(dateLayout))
	return err
}

// GetByID retrieves an enrollment by its ID.
// PRE: id is non-empty
// POST: Returns the enrollment or domain.ErrNotFound
func (s *SQLiteStore) GetByID(ctx context.Context, id string) (domain.Enrollment, error) {
	row := s.db.QueryRowContext(ctx, selectColumns+` WHERE id = ?`, id)
	e, err := scanEnrollment(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Enrollment{}, domain.ErrNotFound
	}
	return e, err
}

// GetByReference retrieves an enrollment by its payment reference.
// PRE: paymentRef is non-empty
// POST: Returns the enrollment or domain.ErrNotFound
func (s *SQLiteStore) GetByReference(ctx context.Context, paymentRef string) (domain.Enrollment, error) {
	row := s.db.QueryRowContext(ctx, selectColumns+` WHERE payment_reference = ?`, paymentRef)
	e, err := scanEnrollment(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Enrollment{}, domain.ErrNotFound
	}
	return e, err
}

// ListByWorkshop returns all enrollments for a workshop ordered by creation.
func (s *SQLiteStore) ListByWorkshop(ctx context.Context, workshopID string) ([]domain.Enrollment, error) {
	rows, err := s.db.QueryContext(ctx,
		selectColumns+` WHERE workshop_id = ? ORDER BY created_at ASC`, workshopID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var enrollments []domain.Enrollment
	for rows.Next() {
		e, err := scanEnrollment(rows.Scan)
		if err != nil {
			return nil, err
		}
		enrollments = append(enrollments, e)
	}
	return enrollments, rows.Err()
}

// CountHoldingSeats counts enrollments currently occupying a seat.
// POST: Returns count of rows in {pending, completed}
func (s *SQLiteStore) CountHoldingSeats(ctx context.Context, workshopID string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM enrollment WHERE workshop_id = ? AND status IN (?, ?)`,
		workshopID, domain.StatusPending, domain.StatusCompleted).Scan(&count)
	return count, err
}

// UpdateStatus performs a compare-and-set status transition.
// PRE: from and to are valid statuses
// POST: Returns true iff the row existed with status=from and was updated
func (s *SQLiteStore) UpdateStatus(ctx context.Context, id, from, to string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE enrollment SET status = ? WHERE id = ? AND status = ?`, to, id, from)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

// MarkRefunded atomically flips a completed enrollment to refunded.
// PRE: refundRef is non-empty
// POST: Returns true iff the row was completed with no refund reference;
// the refund reference is never overwritten
func (s *SQLiteStore) MarkRefunded(ctx context.Context, id, refundRef string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE enrollment SET status = ?, refund_reference = ?
		 WHERE id = ? AND status = ? AND refund_reference = ''`,
		domain.StatusRefunded, refundRef, id, domain.StatusCompleted)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

// SetPaymentReference attaches the provider checkout reference exactly once.
// PRE: paymentRef is non-empty
// POST: Returns true iff the row had no reference yet
func (s *SQLiteStore) SetPaymentReference(ctx context.Context, id, paymentRef string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE enrollment SET payment_reference = ?
		 WHERE id = ? AND payment_reference = ''`, paymentRef, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

const selectColumns = `SELECT id, workshop_id, customer_name, customer_email, customer_phone,
	amount_cents, currency, pricing_option, status, payment_reference, refund_reference, created_at
	FROM enrollment`

// scanEnrollment scans a row into an Enrollment using the given scan function.
func scanEnrollment(scan func(dest ...any) error) (domain.Enrollment, error) {
	var e domain.Enrollment
	var createdAt string
	err := scan(&e.ID, &e.WorkshopID, &e.Customer.Name, &e.Customer.Email, &e.Customer.Phone,
		&e.AmountCents, &e.Currency, &e.PricingOption, &e.Status,
		&e.PaymentReference, &e.RefundReference, &createdAt)
	if err != nil {
		return domain.Enrollment{}, err
	}
	e.CreatedAt, _ = time.Parse(dateLayout, createdAt)
	return e, nil
}
