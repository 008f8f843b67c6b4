package notify

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"log/slog"
	"strings"

	"github.com/yuin/goldmark"
	goldmarkHTML "github.com/yuin/goldmark/renderer/html"

	"enrollment/internal/adapters/email"
	enrollmentDomain "enrollment/internal/domain/enrollment"
	waitlistDomain "enrollment/internal/domain/waitlist"
	workshopDomain "enrollment/internal/domain/workshop"
)

// mdRenderer renders workshop description markdown for email bodies. Raw
// HTML in markdown input is escaped (WithUnsafe is NOT set).
var mdRenderer = goldmark.New(
	goldmark.WithRendererOptions(
		goldmarkHTML.WithHardWraps(),
	),
)

// EmailNotifier satisfies the admission core's Notifier using the email
// sender. Every method is fire-and-forget: failures are logged and never
// surfaced, so a dropped email cannot roll back a state transition.
type EmailNotifier struct {
	sender  email.Sender
	from    string
	replyTo string
	baseURL string // absolute base for claim links
}

// NewEmailNotifier creates a notifier over the given sender.
// PRE: sender is non-nil; baseURL is absolute without trailing slash
// POST: Returns a ready-to-use notifier
func NewEmailNotifier(sender email.Sender, from, replyTo, baseURL string) *EmailNotifier {
	return &EmailNotifier{sender: sender, from: from, replyTo: replyTo, baseURL: baseURL}
}

// EnrollmentConfirmed emails the customer that their seat is confirmed.
func (n *EmailNotifier) EnrollmentConfirmed(ctx context.Context, e enrollmentDomain.Enrollment, w workshopDomain.Workshop) {
	body := fmt.Sprintf(
		`<p>Hi %s,</p>
<p>Your enrollment in <strong>%s</strong> is confirmed.</p>
%s
<p>Amount paid: %s</p>
<p>See you there!</p>`,
		template.HTMLEscapeString(e.Customer.Name),
		template.HTMLEscapeString(w.Title),
		renderMarkdown(w.Description),
		formatAmount(e.AmountCents, e.Currency))

	n.send(ctx, e.Customer.Email, "You're enrolled: "+w.Title, body)
}

// ClaimOffered emails a promoted waitlist customer their time-bounded claim
// link.
func (n *EmailNotifier) ClaimOffered(ctx context.Context, entry waitlistDomain.Entry, w workshopDomain.Workshop) {
	link := fmt.Sprintf("%s/waitlist/claim?workshop=%s&token=%s", n.baseURL, entry.WorkshopID, entry.ClaimToken)
	body := fmt.Sprintf(
		`<p>Hi %s,</p>
<p>A seat has opened up in <strong>%s</strong> and it's your turn on the waitlist.</p>
<p><a href="%s">Claim your seat</a> before %s. After that the seat goes to the next person in line.</p>
%s`,
		template.HTMLEscapeString(entry.Customer.Name),
		template.HTMLEscapeString(w.Title),
		link,
		entry.ClaimExpiresAt.Format("Mon, 2 Jan 2006 15:04 MST"),
		renderMarkdown(w.Description))

	n.send(ctx, entry.Customer.Email, "A seat opened up: "+w.Title, body)
}

// RefundIssued emails the customer that their payment was refunded.
func (n *EmailNotifier) RefundIssued(ctx context.Context, e enrollmentDomain.Enrollment, w workshopDomain.Workshop) {
	body := fmt.Sprintf(
		`<p>Hi %s,</p>
<p>Your enrollment in <strong>%s</strong> has been refunded.</p>
<p>The refund should appear on your statement within a few business days (reference %s).</p>`,
		template.HTMLEscapeString(e.Customer.Name),
		template.HTMLEscapeString(w.Title),
		template.HTMLEscapeString(e.RefundReference))

	n.send(ctx, e.Customer.Email, "Refund issued: "+w.Title, body)
}

// send dispatches one email, logging failure instead of returning it.
func (n *EmailNotifier) send(ctx context.Context, to, subject, body string) {
	res, err := n.sender.Send(ctx, email.SendRequest{
		To:      []string{to},
		From:    n.from,
		Subject: subject,
		HTML:    body,
		ReplyTo: n.replyTo,
	})
	if err != nil {
		slog.Error("notify_send_failed", "error", err, "to", to, "subject", subject)
		return
	}
	slog.Info("notify_sent", "to", to, "subject", subject, "message_id", res.MessageID)
}

// renderMarkdown converts workshop description markdown to HTML, falling
// back to escaped text on a render error.
func renderMarkdown(md string) string {
	if md == "" {
		return ""
	}
	var buf bytes.Buffer
	if err := mdRenderer.Convert([]byte(md), &buf); err != nil {
		return "<p>" + template.HTMLEscapeString(md) + "</p>"
	}
	return buf.String()
}

// formatAmount renders cents as a currency string, e.g. "USD 25.00".
func formatAmount(cents int64, currency string) string {
	return fmt.Sprintf("%s %d.%02d", strings.ToUpper(currency), cents/100, cents%100)
}
