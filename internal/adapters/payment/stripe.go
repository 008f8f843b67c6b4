package payment

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/client"
	"github.com/stripe/stripe-go/v82/webhook"

	domain "enrollment/internal/domain/payment"
)

// Metadata keys attached to checkout sessions and refunds so webhook events
// can be matched back to enrollments.
const (
	metaWorkshopID       = "workshop_id"
	metaCustomerName     = "customer_name"
	metaPricingOption    = "pricing_option"
	metaPaymentReference = "payment_reference"
)

// StripeProvider implements Provider against the Stripe API.
type StripeProvider struct {
	api        *client.API
	successURL string
	cancelURL  string
}

// NewStripeProvider creates a provider with the given secret key.
// PRE: apiKey is a Stripe secret key; URLs are absolute
// POST: Returns a ready-to-use provider
func NewStripeProvider(apiKey, successURL, cancelURL string) *StripeProvider {
	api := &client.API{}
	api.Init(apiKey, nil)
	return &StripeProvider{api: api, successURL: successURL, cancelURL: cancelURL}
}

// CreateCheckout opens a Stripe Checkout session for one seat.
// PRE: req has a positive amount and a valid customer email
// POST: Returns the session id as the payment reference and the hosted URL
func (p *StripeProvider) CreateCheckout(ctx context.Context, req CheckoutRequest) (Checkout, error) {
	params := &stripe.CheckoutSessionParams{
		Mode:          stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL:    stripe.String(p.successURL),
		CancelURL:     stripe.String(p.cancelURL),
		CustomerEmail: stripe.String(req.Customer.Email),
		LineItems: []*stripe.CheckoutSessionLineItemParams{{
			Quantity: stripe.Int64(1),
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency:   stripe.String(req.Currency),
				UnitAmount: stripe.Int64(req.AmountCents),
				ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
					Name: stripe.String(req.WorkshopTitle),
				},
			},
		}},
	}
	params.Context = ctx
	params.SetIdempotencyKey("checkout-" + req.EnrollmentID)
	params.AddMetadata(metaWorkshopID, req.WorkshopID)
	params.AddMetadata(metaCustomerName, req.Customer.Name)
	params.AddMetadata(metaPricingOption, req.PricingOption)

	sess, err := p.api.CheckoutSessions.New(params)
	if err != nil {
		return Checkout{}, fmt.Errorf("stripe checkout create failed: %w", err)
	}

	slog.Info("stripe_checkout_created", "session_id", sess.ID, "workshop_id", req.WorkshopID)
	return Checkout{Reference: sess.ID, URL: sess.URL}, nil
}

// CreateRefund refunds the payment behind a checkout session.
// The session is resolved to its payment intent; the refund carries the
// session id in metadata so the refund webhook can be matched back.
// PRE: paymentReference is a checkout session id
// POST: Returns the Stripe refund id; no state is changed on failure
func (p *StripeProvider) CreateRefund(ctx context.Context, paymentReference string, amountCents int64, reason, idempotencyKey string) (string, error) {
	sessParams := &stripe.CheckoutSessionParams{}
	sessParams.Context = ctx
	sess, err := p.api.CheckoutSessions.Get(paymentReference, sessParams)
	if err != nil {
		return "", fmt.Errorf("stripe session lookup failed: %w", err)
	}
	if sess.PaymentIntent == nil {
		return "", fmt.Errorf("stripe session %s has no payment intent", paymentReference)
	}

	params := &stripe.RefundParams{
		PaymentIntent: stripe.String(sess.PaymentIntent.ID),
		Reason:        stripe.String(string(stripe.RefundReasonRequestedByCustomer)),
	}
	params.Context = ctx
	if amountCents > 0 {
		params.Amount = stripe.Int64(amountCents)
	}
	if idempotencyKey != "" {
		params.SetIdempotencyKey(idempotencyKey)
	}
	params.AddMetadata(metaPaymentReference, paymentReference)

	refund, err := p.api.Refunds.New(params)
	if err != nil {
		return "", fmt.Errorf("stripe refund failed: %w", err)
	}

	slog.Info("stripe_refund_created", "refund_id", refund.ID, "payment_reference", paymentReference, "reason", reason)
	return refund.ID, nil
}

// checkoutSessionPayload is the slice of the checkout.session object we need.
type checkoutSessionPayload struct {
	ID             string            `json:"id"`
	AmountTotal    int64             `json:"amount_total"`
	Currency       string            `json:"currency"`
	Metadata       map[string]string `json:"metadata"`
	CustomerEmail  string            `json:"customer_email"`
	CustomerDetail struct {
		Email string `json:"email"`
		Name  string `json:"name"`
	} `json:"customer_details"`
}

// refundPayload is the slice of the refund object we need.
type refundPayload struct {
	ID            string            `json:"id"`
	Amount        int64             `json:"amount"`
	Currency      string            `json:"currency"`
	PaymentIntent string            `json:"payment_intent"`
	Metadata      map[string]string `json:"metadata"`
}

// ParseWebhook verifies a Stripe webhook signature and maps the event to the
// admission core's event model.
// PRE: payload is the raw request body, sigHeader is Stripe-Signature
// POST: Returns a validated event, or ErrIgnoredEventType for event types
// the core has no transition for
func ParseWebhook(payload []byte, sigHeader, secret string, now time.Time) (domain.Event, error) {
	ev, err := webhook.ConstructEvent(payload, sigHeader, secret)
	if err != nil {
		return domain.Event{}, fmt.Errorf("stripe webhook verification failed: %w", err)
	}
	return mapStripeEvent(ev, now)
}

// mapStripeEvent translates a Stripe event into a domain payment event.
func mapStripeEvent(ev stripe.Event, now time.Time) (domain.Event, error) {
	out := domain.Event{ID: ev.ID, ReceivedAt: now}

	switch ev.Type {
	case "checkout.session.completed":
		var sess checkoutSessionPayload
		if err := json.Unmarshal(ev.Data.Raw, &sess); err != nil {
			return domain.Event{}, fmt.Errorf("decode checkout session: %w", err)
		}
		out.Type = domain.TypeCheckoutCompleted
		out.PaymentReference = sess.ID
		out.AmountCents = sess.AmountTotal
		out.Currency = sess.Currency
		out.WorkshopID = sess.Metadata[metaWorkshopID]
		out.CustomerName = sess.Metadata[metaCustomerName]
		out.PricingOption = sess.Metadata[metaPricingOption]
		out.CustomerEmail = sess.CustomerEmail
		if out.CustomerEmail == "" {
			out.CustomerEmail = sess.CustomerDetail.Email
		}
		if out.CustomerName == "" {
			out.CustomerName = sess.CustomerDetail.Name
		}

	case "checkout.session.expired", "checkout.session.async_payment_failed":
		var sess checkoutSessionPayload
		if err := json.Unmarshal(ev.Data.Raw, &sess); err != nil {
			return domain.Event{}, fmt.Errorf("decode checkout session: %w", err)
		}
		out.Type = domain.TypePaymentFailed
		out.PaymentReference = sess.ID

	case "refund.created", "refund.updated":
		var ref refundPayload
		if err := json.Unmarshal(ev.Data.Raw, &ref); err != nil {
			return domain.Event{}, fmt.Errorf("decode refund: %w", err)
		}
		out.Type = domain.TypeRefundIssued
		out.RefundReference = ref.ID
		out.AmountCents = ref.Amount
		out.Currency = ref.Currency
		out.PaymentReference = ref.Metadata[metaPaymentReference]
		if out.PaymentReference == "" {
			out.PaymentReference = ref.PaymentIntent
		}

	default:
		return domain.Event{}, ErrIgnoredEventType
	}

	if err := out.Validate(); err != nil {
		return domain.Event{}, err
	}
	return out, nil
}
