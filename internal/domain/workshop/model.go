package workshop

import (
	"errors"
	"strings"
)

// Max length constants for user-editable fields.
const (
	MaxTitleLength = 200
)

// UnlimitedCapacity means the workshop never fills up.
const UnlimitedCapacity = 0

// Domain errors
var (
	ErrNotFound = errors.New("workshop not found")
)

// Workshop holds state for a bookable workshop.
// Capacity is re-read on every admission decision because an administrator
// may change it at any time.
type Workshop struct {
	ID              string
	Title           string
	Description     string // markdown, rendered into confirmation emails
	Capacity        int    // 0 = unlimited
	WaitlistEnabled bool
	PriceCents      int64
	Currency        string
	CreatedAt       string
}

// Validate checks if the Workshop has valid data.
// PRE: Workshop struct is initialized
// POST: Returns error if validation fails, nil otherwise
func (w *Workshop) Validate() error {
	if strings.TrimSpace(w.Title) == "" {
		return errors.New("workshop title cannot be empty")
	}
	if len(w.Title) > MaxTitleLength {
		return errors.New("workshop title cannot exceed 200 characters")
	}
	if w.Capacity < 0 {
		return errors.New("workshop capacity cannot be negative")
	}
	if w.PriceCents < 0 {
		return errors.New("workshop price cannot be negative")
	}
	if w.Currency == "" {
		return errors.New("workshop currency is required")
	}
	return nil
}

// Unlimited returns true if the workshop has no seat limit.
// INVARIANT: Capacity field is not mutated
func (w *Workshop) Unlimited() bool {
	return w.Capacity == UnlimitedCapacity
}
