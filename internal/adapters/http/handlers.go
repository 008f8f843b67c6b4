package web

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"enrollment/internal/application/admission"
	"enrollment/internal/application/orchestrators"
	enrollmentDomain "enrollment/internal/domain/enrollment"
	workshopDomain "enrollment/internal/domain/workshop"
)

// generateID creates a new UUID string.
func generateID() string {
	return uuid.New().String()
}

// refundRetryBackoff is the pause before the single retry of a refund whose
// provider call failed. Variable so tests can zero it.
var refundRetryBackoff = time.Second

// internalError logs the real error and returns a generic message to the client.
// This prevents leaking internal details per OWASP A05.
func internalError(w http.ResponseWriter, err error) {
	slog.Error("internal_error", "error", err.Error())
	http.Error(w, "internal server error", http.StatusInternalServerError)
}

// strictDecode decodes JSON from the request body, rejecting unknown fields.
func strictDecode(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

// jsonUnmarshalStrict unmarshals JSON bytes, rejecting unknown fields.
func jsonUnmarshalStrict(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// requireOperator checks the X-Operator-Key header against the configured
// bcrypt hash. Endpoints behind it are disabled when no hash is configured.
func requireOperator(w http.ResponseWriter, r *http.Request) bool {
	if options.OperatorKeyHash == "" {
		http.Error(w, "operator endpoints disabled", http.StatusForbidden)
		return false
	}
	key := r.Header.Get("X-Operator-Key")
	if key == "" || bcrypt.CompareHashAndPassword([]byte(options.OperatorKeyHash), []byte(key)) != nil {
		slog.Warn("operator_auth_failed", "path", r.URL.Path, "ip", r.RemoteAddr)
		http.Error(w, "Forbidden", http.StatusForbidden)
		return false
	}
	return true
}

func registerRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/enroll", handleEnroll)
	mux.HandleFunc("/api/payment-events", handlePaymentEvents)
	mux.HandleFunc("/api/refund", handleRefund)
	mux.HandleFunc("/api/workshops", handleWorkshops)
	mux.HandleFunc("/api/workshops/remaining", handleRemaining)
	mux.HandleFunc("/api/workshops/export", handleExport)
	mux.HandleFunc("/waitlist/claim", handleClaim)
}

// handleEnroll handles POST /api/enroll.
// POST: 201 with a reserved or waitlisted result; 409 when the workshop is
// full and has no waitlist
func handleEnroll(w http.ResponseWriter, r *http.Request) {
	if r.Method != "POST" {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req struct {
		WorkshopID    string `json:"workshop_id"`
		Name          string `json:"name"`
		Email         string `json:"email"`
		Phone         string `json:"phone"`
		PricingOption string `json:"pricing_option"`
	}
	if err := strictDecode(r, &req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	customer := enrollmentDomain.Customer{
		Name:  req.Name,
		Email: req.Email,
		Phone: req.Phone,
	}
	if err := customer.Validate(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	result, err := core.RequestEnrollment(r.Context(), admission.EnrollInput{
		WorkshopID:    req.WorkshopID,
		Customer:      customer,
		PricingOption: req.PricingOption,
	})
	if err != nil {
		if errors.Is(err, workshopDomain.ErrNotFound) {
			http.Error(w, "workshop not found", http.StatusNotFound)
			return
		}
		internalError(w, err)
		return
	}

	switch result.Status {
	case admission.EnrollReserved:
		writeJSON(w, http.StatusCreated, map[string]any{
			"status":        "reserved",
			"enrollment_id": result.EnrollmentID,
			"checkout_url":  result.CheckoutURL,
		})
	case admission.EnrollWaitlisted:
		writeJSON(w, http.StatusCreated, map[string]any{
			"status":   "waitlisted",
			"position": result.Position,
		})
	default:
		writeJSON(w, http.StatusConflict, map[string]any{"status": "rejected"})
	}
}

// handleRefund handles POST /api/refund (operator only).
func handleRefund(w http.ResponseWriter, r *http.Request) {
	if r.Method != "POST" {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if !requireOperator(w, r) {
		return
	}

	var req struct {
		EnrollmentID string `json:"enrollment_id"`
		AmountCents  int64  `json:"amount_cents"`
		Reason       string `json:"reason"`
	}
	if err := strictDecode(r, &req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.EnrollmentID == "" {
		http.Error(w, "enrollment_id is required", http.StatusBadRequest)
		return
	}

	result, err := core.OnRefundRequested(r.Context(), req.EnrollmentID, req.AmountCents, req.Reason)
	if err != nil {
		internalError(w, err)
		return
	}
	if result.Status == admission.RefundProviderError {
		// The provider call is idempotent per enrollment, so one retry is
		// safe before surfacing the failure.
		slog.Warn("refund_retrying", "enrollment_id", req.EnrollmentID, "error", result.Err)
		time.Sleep(refundRetryBackoff)
		result, err = core.OnRefundRequested(r.Context(), req.EnrollmentID, req.AmountCents, req.Reason)
		if err != nil {
			internalError(w, err)
			return
		}
	}

	switch result.Status {
	case admission.RefundSuccess:
		writeJSON(w, http.StatusOK, map[string]any{
			"status":           "refunded",
			"refund_reference": result.RefundReference,
		})
	case admission.RefundAlreadyRefunded:
		writeJSON(w, http.StatusOK, map[string]any{
			"status":           "already_refunded",
			"refund_reference": result.RefundReference,
		})
	case admission.RefundNoPaymentRecord:
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{"status": "no_payment_record"})
	case admission.RefundInvalidAmount:
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{"status": "invalid_amount"})
	default:
		writeJSON(w, http.StatusBadGateway, map[string]any{"status": "provider_error"})
	}
}

// handleWorkshops handles GET (list) and POST (create, operator only) for
// /api/workshops.
func handleWorkshops(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case "GET":
		workshops, err := stores.WorkshopStore.List(r.Context())
		if err != nil {
			internalError(w, err)
			return
		}
		type item struct {
			ID              string `json:"id"`
			Title           string `json:"title"`
			Description     string `json:"description"`
			Capacity        int    `json:"capacity"`
			WaitlistEnabled bool   `json:"waitlist_enabled"`
			PriceCents      int64  `json:"price_cents"`
			Currency        string `json:"currency"`
		}
		items := make([]item, 0, len(workshops))
		for _, ws := range workshops {
			items = append(items, item{
				ID:              ws.ID,
				Title:           ws.Title,
				Description:     ws.Description,
				Capacity:        ws.Capacity,
				WaitlistEnabled: ws.WaitlistEnabled,
				PriceCents:      ws.PriceCents,
				Currency:        ws.Currency,
			})
		}
		writeJSON(w, http.StatusOK, items)

	case "POST":
		if !requireOperator(w, r) {
			return
		}
		var req struct {
			Title           string `json:"title"`
			Description     string `json:"description"`
			Capacity        int    `json:"capacity"`
			WaitlistEnabled bool   `json:"waitlist_enabled"`
			PriceCents      int64  `json:"price_cents"`
			Currency        string `json:"currency"`
		}
		if err := strictDecode(r, &req); err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}
		ws := workshopDomain.Workshop{
			ID:              generateID(),
			Title:           req.Title,
			Description:     req.Description,
			Capacity:        req.Capacity,
			WaitlistEnabled: req.WaitlistEnabled,
			PriceCents:      req.PriceCents,
			Currency:        req.Currency,
		}
		if err := ws.Validate(); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if err := stores.WorkshopStore.Save(r.Context(), ws); err != nil {
			internalError(w, err)
			return
		}
		slog.Info("workshop_event", "event", "created", "workshop_id", ws.ID, "title", ws.Title)
		writeJSON(w, http.StatusCreated, map[string]string{"id": ws.ID})

	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// handleRemaining handles GET /api/workshops/remaining?id=...
func handleRemaining(w http.ResponseWriter, r *http.Request) {
	if r.Method != "GET" {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	id := r.URL.Query().Get("id")
	if id == "" {
		http.Error(w, "missing id", http.StatusBadRequest)
		return
	}

	remaining, err := core.Ledger.Remaining(r.Context(), id)
	if err != nil {
		if errors.Is(err, workshopDomain.ErrNotFound) {
			http.Error(w, "workshop not found", http.StatusNotFound)
			return
		}
		internalError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"unlimited": remaining.Unlimited,
		"seats":     remaining.Seats,
	})
}

// handleExport handles GET /api/workshops/export?id=... (operator only),
// streaming the workshop's enrollments as CSV.
func handleExport(w http.ResponseWriter, r *http.Request) {
	if r.Method != "GET" {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if !requireOperator(w, r) {
		return
	}
	id := r.URL.Query().Get("id")
	if id == "" {
		http.Error(w, "missing id", http.StatusBadRequest)
		return
	}

	deps := orchestrators.ExportEnrollmentsDeps{
		EnrollmentStore: stores.EnrollmentStore,
		WorkshopStore:   stores.WorkshopStore,
	}
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="enrollments.csv"`)
	if err := orchestrators.ExecuteExportEnrollments(r.Context(), deps, id, w); err != nil {
		if errors.Is(err, workshopDomain.ErrNotFound) {
			http.Error(w, "workshop not found", http.StatusNotFound)
			return
		}
		slog.Error("export_failed", "error", err.Error(), "workshop_id", id)
	}
}
