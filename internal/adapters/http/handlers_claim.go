package web

import (
	"bytes"
	"errors"
	"html/template"
	"log/slog"
	"net/http"

	"github.com/gorilla/csrf"
	"github.com/yuin/goldmark"
	goldmarkHTML "github.com/yuin/goldmark/renderer/html"

	"enrollment/internal/application/admission"
	workshopDomain "enrollment/internal/domain/workshop"
)

// mdRenderer is a goldmark instance configured for safe HTML output.
// Raw HTML in markdown input is escaped (WithUnsafe is NOT set), preventing XSS.
var mdRenderer = goldmark.New(
	goldmark.WithRendererOptions(
		goldmarkHTML.WithHardWraps(),
	),
)

var claimFormTmpl = template.Must(template.New("claim_form").Parse(`<!DOCTYPE html>
<html>
<head><title>Claim your seat</title></head>
<body>
<h1>{{.Title}}</h1>
<div>{{.Description}}</div>
<p>A seat is being held for you. Confirm below to claim it.</p>
<form method="POST" action="/waitlist/claim">
  <input type="hidden" name="workshop" value="{{.WorkshopID}}">
  <input type="hidden" name="token" value="{{.Token}}">
  {{.CSRFField}}
  <button type="submit">Claim my seat</button>
</form>
</body>
</html>`))

var claimResultTmpl = template.Must(template.New("claim_result").Parse(`<!DOCTYPE html>
<html>
<head><title>{{.Heading}}</title></head>
<body>
<h1>{{.Heading}}</h1>
<p>{{.Message}}</p>
</body>
</html>`))

// renderDescription converts workshop markdown into embeddable HTML.
func renderDescription(md string) template.HTML {
	var buf bytes.Buffer
	if err := mdRenderer.Convert([]byte(md), &buf); err != nil {
		return template.HTML(template.HTMLEscapeString(md))
	}
	return template.HTML(buf.String())
}

// handleClaim handles the waitlist claim link.
//
// GET renders a confirmation form so that mail client prefetchers following
// the link cannot consume the single-use token. POST consumes it.
func handleClaim(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case "GET":
		handleClaimForm(w, r)
	case "POST":
		handleClaimSubmit(w, r)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func handleClaimForm(w http.ResponseWriter, r *http.Request) {
	workshopID := r.URL.Query().Get("workshop")
	token := r.URL.Query().Get("token")
	if workshopID == "" || token == "" {
		http.Error(w, "missing workshop or token", http.StatusBadRequest)
		return
	}

	ws, err := stores.WorkshopStore.GetByID(r.Context(), workshopID)
	if err != nil {
		if errors.Is(err, workshopDomain.ErrNotFound) {
			http.NotFound(w, r)
			return
		}
		internalError(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	err = claimFormTmpl.Execute(w, map[string]any{
		"Title":       ws.Title,
		"Description": renderDescription(ws.Description),
		"WorkshopID":  ws.ID,
		"Token":       token,
		"CSRFField":   csrf.TemplateField(r),
	})
	if err != nil {
		slog.Error("claim_form_render_failed", "error", err.Error())
	}
}

func handleClaimSubmit(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "malformed form", http.StatusBadRequest)
		return
	}
	workshopID := r.FormValue("workshop")
	token := r.FormValue("token")
	if workshopID == "" || token == "" {
		http.Error(w, "missing workshop or token", http.StatusBadRequest)
		return
	}

	result, err := core.OnClaimLink(r.Context(), workshopID, token)
	if err != nil {
		internalError(w, err)
		return
	}

	switch result.Status {
	case admission.ClaimAccepted:
		if result.CheckoutURL != "" {
			http.Redirect(w, r, result.CheckoutURL, http.StatusSeeOther)
			return
		}
		renderClaimResult(w, http.StatusOK, "Seat claimed",
			"Your seat is reserved. Check your email for what happens next.")
	case admission.ClaimExpired:
		renderClaimResult(w, http.StatusGone, "Offer expired",
			"This claim link has expired and the seat has been offered to the next person in line.")
	case admission.ClaimAlreadyClaimed:
		renderClaimResult(w, http.StatusOK, "Already claimed",
			"This seat has already been claimed. If that was you, you're all set.")
	case admission.ClaimNoCapacity:
		renderClaimResult(w, http.StatusConflict, "Seat no longer available",
			"The seat was taken before you could claim it. You're still on the waitlist at your original spot.")
	default:
		renderClaimResult(w, http.StatusNotFound, "Invalid claim link",
			"This claim link isn't valid. It may have been cancelled or already used.")
	}
}

func renderClaimResult(w http.ResponseWriter, status int, heading, message string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	err := claimResultTmpl.Execute(w, map[string]string{"Heading": heading, "Message": message})
	if err != nil {
		slog.Error("claim_result_render_failed", "error", err.Error())
	}
}
