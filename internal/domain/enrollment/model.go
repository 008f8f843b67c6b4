package enrollment

import (
	"errors"
	"strings"
	"time"
)

// Status constants for the enrollment lifecycle.
// Legal transitions: pending -> completed, pending -> failed,
// completed -> refunded. Nothing else.
const (
	StatusPending   = "pending"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
	StatusRefunded  = "refunded"
)

// Domain errors
var (
	ErrNotFound          = errors.New("enrollment not found")
	ErrIllegalTransition = errors.New("illegal enrollment status transition")
	ErrAlreadyRefunded   = errors.New("enrollment already refunded")
)

// Customer identifies the person enrolling.
type Customer struct {
	Name  string
	Email string
	Phone string
}

// Validate checks customer contact details.
// PRE: Customer struct is populated
// POST: Returns error if validation fails, nil otherwise
func (c *Customer) Validate() error {
	if strings.TrimSpace(c.Name) == "" {
		return errors.New("customer name cannot be empty")
	}
	if !strings.Contains(c.Email, "@") {
		return errors.New("customer email must be valid")
	}
	return nil
}

// Enrollment holds state for one seat purchase.
// INVARIANT: at most one enrollment per (WorkshopID, PaymentReference);
// RefundReference is set iff Status = refunded and is immutable once set.
type Enrollment struct {
	ID               string
	WorkshopID       string
	Customer         Customer
	AmountCents      int64
	Currency         string
	PricingOption    string
	Status           string
	PaymentReference string // opaque provider reference (checkout session id)
	RefundReference  string // set only when refunded
	CreatedAt        time.Time
}

// Validate checks if the Enrollment has valid data.
// PRE: Enrollment struct is initialized
// POST: Returns error if validation fails, nil otherwise
func (e *Enrollment) Validate() error {
	if e.WorkshopID == "" {
		return errors.New("enrollment workshop id is required")
	}
	if err := e.Customer.Validate(); err != nil {
		return err
	}
	if e.AmountCents < 0 {
		return errors.New("enrollment amount cannot be negative")
	}
	switch e.Status {
	case StatusPending, StatusCompleted, StatusFailed, StatusRefunded:
	default:
		return errors.New("status must be 'pending', 'completed', 'failed', or 'refunded'")
	}
	if e.RefundReference != "" && e.Status != StatusRefunded {
		return errors.New("refund reference requires refunded status")
	}
	return nil
}

// HoldsSeat returns true while the enrollment counts against capacity.
// INVARIANT: Status field is not mutated
func (e *Enrollment) HoldsSeat() bool {
	return e.Status == StatusPending || e.Status == StatusCompleted
}

// CanTransition reports whether moving to the given status is legal.
// INVARIANT: mirrors the state machine above; no fields mutated
func (e *Enrollment) CanTransition(to string) bool {
	switch {
	case e.Status == StatusPending && to == StatusCompleted:
		return true
	case e.Status == StatusPending && to == StatusFailed:
		return true
	case e.Status == StatusCompleted && to == StatusRefunded:
		return true
	}
	return false
}

// Complete marks the enrollment as paid.
// PRE: Status is pending
// POST: Status is completed
func (e *Enrollment) Complete() error {
	if !e.CanTransition(StatusCompleted) {
		return ErrIllegalTransition
	}
	e.Status = StatusCompleted
	return nil
}

// Fail marks the enrollment as failed.
// PRE: Status is pending
// POST: Status is failed, seat no longer held
func (e *Enrollment) Fail() error {
	if !e.CanTransition(StatusFailed) {
		return ErrIllegalTransition
	}
	e.Status = StatusFailed
	return nil
}

// Refund marks the enrollment as refunded with the provider's reference.
// PRE: Status is completed, refundRef is non-empty
// POST: Status is refunded, RefundReference set exactly once
func (e *Enrollment) Refund(refundRef string) error {
	if e.Status == StatusRefunded {
		return ErrAlreadyRefunded
	}
	if !e.CanTransition(StatusRefunded) {
		return ErrIllegalTransition
	}
	if refundRef == "" {
		return errors.New("refund reference is required")
	}
	e.Status = StatusRefunded
	e.RefundReference = refundRef
	return nil
}
