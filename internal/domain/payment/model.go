package payment

import (
	"errors"
	"time"
)

// Event type constants matching the provider's event feed.
const (
	TypeCheckoutCompleted = "checkout_completed"
	TypeRefundIssued      = "refund_issued"
	TypePaymentFailed     = "payment_failed"
)

// Domain errors
var (
	ErrUnknownEventType = errors.New("unknown payment event type")
)

// Event is one externally-delivered payment event. Delivery is at-least-once
// with no ordering guarantee across enrollments; events are kept only inside
// the dedup retention window.
type Event struct {
	ID               string // unique per the provider, dedup key
	Type             string
	PaymentReference string // checkout session / payment-intent id
	RefundReference  string // set on refund_issued
	AmountCents      int64
	Currency         string

	// Checkout metadata, present on checkout_completed. Lets the processor
	// create the pending enrollment if the record that initiated checkout
	// was never persisted.
	WorkshopID    string
	CustomerName  string
	CustomerEmail string
	PricingOption string

	ReceivedAt time.Time
}

// Validate checks if the Event has valid data.
// PRE: Event struct is populated from the transport
// POST: Returns error if validation fails, nil otherwise
func (e *Event) Validate() error {
	if e.ID == "" {
		return errors.New("payment event id is required")
	}
	switch e.Type {
	case TypeCheckoutCompleted, TypeRefundIssued, TypePaymentFailed:
	default:
		return ErrUnknownEventType
	}
	if e.PaymentReference == "" {
		return errors.New("payment reference is required")
	}
	return nil
}
