// Package email parses plain-text mail into the canonical document form.
// Parsing is best-effort: headerless input is treated as a body-only
// message, never as malformed, because free text is indistinguishable from a
// mail body.
package email

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/mail"
	"strings"

	"github.com/kirillkom/docrouter/internal/core/domain"
)

type Parser struct{}

func New() *Parser {
	return &Parser{}
}

func (p *Parser) Parse(_ context.Context, raw *domain.RawInput) (*domain.CanonicalDocument, error) {
	text := strings.TrimSpace(string(raw.Data))
	if text == "" {
		return nil, domain.WrapError(domain.ErrParseEmpty, "parse email", errEmptyBody)
	}

	doc := &domain.CanonicalDocument{Format: domain.FormatEmail, Source: raw}

	msg, err := mail.ReadMessage(bytes.NewReader(raw.Data))
	if err != nil {
		// No parseable header block: body-only email.
		doc.Text = normalizeBody(text)
	} else {
		extractHeaders(msg, &doc.Fields)
		body, readErr := io.ReadAll(msg.Body)
		if readErr == nil {
			doc.Text = normalizeBody(string(body))
		}
	}

	if doc.Contentless() {
		return nil, domain.WrapError(domain.ErrParseEmpty, "parse email", errEmptyBody)
	}

	// Subject carries classification signal; fold it into the text so the
	// classifier sees one plain-text view.
	if doc.Fields.Subject != nil && *doc.Fields.Subject != "" {
		if doc.Text == "" {
			doc.Text = *doc.Fields.Subject
		} else {
			doc.Text = *doc.Fields.Subject + "\n" + doc.Text
		}
	}

	return doc, nil
}

var errEmptyBody = errors.New("no message content")

func extractHeaders(msg *mail.Message, fields *domain.DocumentFields) {
	if from := msg.Header.Get("From"); from != "" {
		sender := from
		if addr, err := mail.ParseAddress(from); err == nil {
			sender = addr.Address
		}
		fields.Sender = &sender
	}
	if to := msg.Header.Get("To"); to != "" {
		recipient := to
		if addr, err := mail.ParseAddress(to); err == nil {
			recipient = addr.Address
		}
		fields.Recipient = &recipient
	}
	if subject := strings.TrimSpace(msg.Header.Get("Subject")); subject != "" {
		fields.Subject = &subject
	}
	if date, err := msg.Header.Date(); err == nil {
		utc := date.UTC()
		fields.Date = &utc
	}
}

const signatureDelimiter = "-- "

// normalizeBody strips quoted-reply chains and the trailing signature,
// best-effort.
func normalizeBody(body string) string {
	var kept []string
	for _, line := range strings.Split(body, "\n") {
		trimmed := strings.TrimRight(line, "\r")
		if trimmed == signatureDelimiter {
			break
		}
		if isQuotedReply(trimmed) {
			continue
		}
		kept = append(kept, trimmed)
	}
	return strings.TrimSpace(strings.Join(kept, "\n"))
}

func isQuotedReply(line string) bool {
	stripped := strings.TrimSpace(line)
	if strings.HasPrefix(stripped, ">") {
		return true
	}
	lower := strings.ToLower(stripped)
	if strings.HasPrefix(lower, "on ") && strings.HasSuffix(lower, "wrote:") {
		return true
	}
	if strings.HasPrefix(lower, "-----original message-----") {
		return true
	}
	return false
}
