package mailer

import (
	"fmt"
	"html"
	"strings"

	"github.com/solatis/stagedoor/internal/types"
)

// Placeholders for optional fields the visitor left empty.
const (
	notProvided  = "Not provided"
	notSpecified = "Not specified"
)

// buildMessage renders the full RFC 5322 message: headers plus a
// multipart/alternative body carrying the plain-text block and an HTML
// rendering of the same content.
func buildMessage(req types.DeliveryRequest, from, to, messageID string) []byte {
	text := buildBody(req.Values)
	htmlBody := strings.ReplaceAll(html.EscapeString(text), "\n", "<br>")

	const boundary = "stagedoor-alt-boundary"

	var b strings.Builder
	writeHeader := func(name, value string) {
		b.WriteString(name)
		b.WriteString(": ")
		b.WriteString(value)
		b.WriteString("\r\n")
	}

	writeHeader("From", fmt.Sprintf("%q <%s>", fromName, from))
	writeHeader("To", to)
	writeHeader("Reply-To", req.Values.Email)
	writeHeader("Subject", req.Subject)
	writeHeader("Message-Id", messageID)
	writeHeader("MIME-Version", "1.0")
	writeHeader("Content-Type", fmt.Sprintf("multipart/alternative; boundary=%q", boundary))
	b.WriteString("\r\n")

	part := func(contentType, body string) {
		b.WriteString("--" + boundary + "\r\n")
		b.WriteString("Content-Type: " + contentType + "\r\n\r\n")
		b.WriteString(body)
		b.WriteString("\r\n")
	}
	part("text/plain; charset=UTF-8", text)
	part("text/html; charset=UTF-8", htmlBody)
	b.WriteString("--" + boundary + "--\r\n")

	return []byte(b.String())
}

// buildBody renders the plain-text submission summary.
func buildBody(v types.FormValues) string {
	website := v.Website
	if strings.TrimSpace(website) == "" {
		website = notProvided
	}
	heard := v.HeardFrom
	if strings.TrimSpace(heard) == "" {
		heard = notSpecified
	}

	lines := []string{
		"New Contact Form Submission",
		"",
		"Name: " + v.FullName,
		"Email: " + v.Email,
		"Website: " + website,
		"How did you hear about us: " + heard,
		"",
		"Message:",
		v.Ideas,
		"",
		"---",
		"Sent from the portfolio contact form",
	}
	return strings.Join(lines, "\n")
}
