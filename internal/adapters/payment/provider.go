package payment

import (
	"context"
	"errors"

	"enrollment/internal/domain/enrollment"
)

// Domain errors
var (
	// ErrIgnoredEventType marks a provider event the admission core has no
	// transition for (e.g. invoice events). Acknowledged, never retried.
	ErrIgnoredEventType = errors.New("ignored payment event type")
)

// CheckoutRequest carries what the provider needs to open a checkout session.
type CheckoutRequest struct {
	EnrollmentID  string
	WorkshopID    string
	WorkshopTitle string
	Customer      enrollment.Customer
	AmountCents   int64
	Currency      string
	PricingOption string
}

// Checkout is the provider's handle for a started checkout.
type Checkout struct {
	Reference string // opaque payment reference stored on the enrollment
	URL       string // where the customer completes payment
}

// Provider is the interface for the external payment provider. Only the
// checkout session creation and refund API are consumed; the provider's
// event feed arrives separately through the webhook ingress.
type Provider interface {
	CreateCheckout(ctx context.Context, req CheckoutRequest) (Checkout, error)

	// CreateRefund refunds the payment behind the given reference and
	// returns the provider's refund reference. amountCents = 0 refunds the
	// full amount. idempotencyKey makes retries safe on the provider side.
	CreateRefund(ctx context.Context, paymentReference string, amountCents int64, reason, idempotencyKey string) (string, error)
}
