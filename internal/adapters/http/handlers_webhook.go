package web

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	paymentAdapter "enrollment/internal/adapters/payment"
	"enrollment/internal/application/admission"
	paymentDomain "enrollment/internal/domain/payment"
)

// maxWebhookBody bounds the payment event payload size.
const maxWebhookBody = 1 << 20 // 1 MB

// handlePaymentEvents handles POST /api/payment-events.
//
// With a webhook secret configured the body must be a Stripe webhook payload
// with a valid Stripe-Signature header. Without one (development, tests) the
// body is a plain JSON event.
//
// The response status is the transport contract: 2xx tells the provider to
// stop redelivering, anything else invites a retry. Protocol outcomes
// (duplicate, no matching enrollment, illegal transition) are final and
// must not be retried, so they map to 2xx/422, never 5xx.
func handlePaymentEvents(w http.ResponseWriter, r *http.Request) {
	if r.Method != "POST" {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	payload, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		http.Error(w, "unreadable body", http.StatusBadRequest)
		return
	}

	var ev paymentDomain.Event
	if options.WebhookSecret != "" {
		ev, err = paymentAdapter.ParseWebhook(payload, r.Header.Get("Stripe-Signature"), options.WebhookSecret, time.Now())
		if err != nil {
			if errors.Is(err, paymentAdapter.ErrIgnoredEventType) {
				writeJSON(w, http.StatusOK, map[string]string{"status": "ignored"})
				return
			}
			slog.Warn("webhook_rejected", "error", err.Error(), "ip", r.RemoteAddr)
			http.Error(w, "invalid webhook", http.StatusBadRequest)
			return
		}
	} else {
		ev, err = decodeGenericEvent(payload)
		if err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}
	}

	outcome, err := core.OnPaymentEvent(r.Context(), ev)
	if err != nil {
		if errors.Is(err, paymentDomain.ErrUnknownEventType) {
			http.Error(w, "unknown event type", http.StatusBadRequest)
			return
		}
		internalError(w, err)
		return
	}

	switch outcome {
	case admission.EventApplied:
		writeJSON(w, http.StatusOK, map[string]string{"status": "applied"})
	case admission.EventDuplicateIgnored:
		writeJSON(w, http.StatusOK, map[string]string{"status": "duplicate_ignored"})
	case admission.EventNoMatchingEnrollment:
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"status": "no_matching_enrollment"})
	default:
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"status": "illegal_transition"})
	}
}

// decodeGenericEvent parses the unsigned development/test event shape.
func decodeGenericEvent(payload []byte) (paymentDomain.Event, error) {
	var req struct {
		ID               string `json:"id"`
		Type             string `json:"type"`
		PaymentReference string `json:"payment_reference"`
		RefundReference  string `json:"refund_reference"`
		AmountCents      int64  `json:"amount_cents"`
		Currency         string `json:"currency"`
		WorkshopID       string `json:"workshop_id"`
		CustomerName     string `json:"customer_name"`
		CustomerEmail    string `json:"customer_email"`
		PricingOption    string `json:"pricing_option"`
	}
	if err := jsonUnmarshalStrict(payload, &req); err != nil {
		return paymentDomain.Event{}, err
	}
	return paymentDomain.Event{
		ID:               req.ID,
		Type:             req.Type,
		PaymentReference: req.PaymentReference,
		RefundReference:  req.RefundReference,
		AmountCents:      req.AmountCents,
		Currency:         req.Currency,
		WorkshopID:       req.WorkshopID,
		CustomerName:     req.CustomerName,
		CustomerEmail:    req.CustomerEmail,
		PricingOption:    req.PricingOption,
	}, nil
}
