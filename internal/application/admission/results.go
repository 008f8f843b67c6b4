package admission

import waitlistDomain "enrollment/internal/domain/waitlist"

// ReserveOutcome is the result of a seat reservation attempt.
type ReserveOutcome string

const (
	ReserveReserved   ReserveOutcome = "reserved"
	ReserveNoCapacity ReserveOutcome = "no_capacity"
)

// Remaining is a lock-free snapshot of free seats; it may be stale by the
// time a caller acts on it.
type Remaining struct {
	Unlimited bool
	Seats     int
}

// EventOutcome is the result of processing one payment event.
type EventOutcome string

const (
	EventApplied              EventOutcome = "applied"
	EventDuplicateIgnored     EventOutcome = "duplicate_ignored"
	EventNoMatchingEnrollment EventOutcome = "no_matching_enrollment"
	EventIllegalTransition    EventOutcome = "illegal_transition"
)

// RefundStatus is the result of a refund command.
type RefundStatus string

const (
	RefundSuccess         RefundStatus = "success"
	RefundAlreadyRefunded RefundStatus = "already_refunded"
	RefundNoPaymentRecord RefundStatus = "no_payment_record"
	RefundInvalidAmount   RefundStatus = "invalid_amount"
	RefundProviderError   RefundStatus = "provider_error"
)

// RefundResult carries the outcome of a refund command.
type RefundResult struct {
	Status          RefundStatus
	RefundReference string
	Err             error // set only for provider_error
}

// ClaimStatus is the result of a waitlist claim attempt.
type ClaimStatus string

const (
	ClaimAccepted       ClaimStatus = "accepted"
	ClaimExpired        ClaimStatus = "expired"
	ClaimInvalid        ClaimStatus = "invalid"
	ClaimAlreadyClaimed ClaimStatus = "already_claimed"
	// ClaimNoCapacity means the token was valid but the seat was gone by
	// claim time (capacity lowered); the entry is back on the waitlist at
	// its original position.
	ClaimNoCapacity ClaimStatus = "no_capacity"
)

// ClaimResult carries the outcome of a waitlist claim attempt.
type ClaimResult struct {
	Status       ClaimStatus
	Entry        waitlistDomain.Entry
	EnrollmentID string
	CheckoutURL  string
}

// EnrollStatus is the result of an enrollment request.
type EnrollStatus string

const (
	EnrollReserved   EnrollStatus = "reserved"
	EnrollWaitlisted EnrollStatus = "waitlisted"
	EnrollRejected   EnrollStatus = "rejected"
)

// EnrollResult carries the outcome of an enrollment request.
type EnrollResult struct {
	Status       EnrollStatus
	EnrollmentID string
	CheckoutURL  string
	Position     int // waitlist position when Status = waitlisted
}
