// Package jsondoc parses JSON payloads schema-tolerantly: any valid JSON
// value is accepted, well-known keys become structured fields, and whatever
// is left over is retained as serialized free-form text.
package jsondoc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/kirillkom/docrouter/internal/core/domain"
)

type Parser struct{}

func New() *Parser {
	return &Parser{}
}

func (p *Parser) Parse(_ context.Context, raw *domain.RawInput) (*domain.CanonicalDocument, error) {
	var value any
	if err := json.Unmarshal(raw.Data, &value); err != nil {
		return nil, domain.WrapError(domain.ErrParseMalformed, "parse json", err)
	}

	doc := &domain.CanonicalDocument{Format: domain.FormatJSON, Source: raw}

	obj, ok := value.(map[string]any)
	if !ok {
		// Non-object values carry no mappable structure; keep them as
		// free-form text.
		doc.Text = serializeFallback(value)
	} else {
		leftover := mapKnownFields(obj, &doc.Fields)
		doc.Text = serializeFallback(leftover)
	}

	if doc.Contentless() {
		return nil, domain.WrapError(domain.ErrParseEmpty, "parse json", errors.New("no content in json value"))
	}
	return doc, nil
}

// Key aliases mapped into structured fields, checked in order.
var (
	senderKeys    = []string{"sender", "from", "email"}
	recipientKeys = []string{"recipient", "to"}
	subjectKeys   = []string{"subject", "title", "event"}
	amountKeys    = []string{"amount", "total", "amount_due"}
	currencyKeys  = []string{"currency"}
	dateKeys      = []string{"date", "due_date", "timestamp"}
)

// mapKnownFields moves well-known keys into fields and returns the rest.
func mapKnownFields(obj map[string]any, fields *domain.DocumentFields) map[string]any {
	leftover := make(map[string]any, len(obj))
	for k, v := range obj {
		leftover[strings.ToLower(k)] = v
	}

	if s, ok := takeString(leftover, senderKeys); ok {
		fields.Sender = &s
	}
	if s, ok := takeString(leftover, recipientKeys); ok {
		fields.Recipient = &s
	}
	if s, ok := takeString(leftover, subjectKeys); ok {
		fields.Subject = &s
	}
	if f, ok := takeNumber(leftover, amountKeys); ok {
		fields.Amount = &f
	}
	if s, ok := takeString(leftover, currencyKeys); ok {
		fields.Currency = &s
	}
	if t, ok := takeDate(leftover, dateKeys); ok {
		fields.Date = &t
	}
	return leftover
}

func takeString(obj map[string]any, keys []string) (string, bool) {
	for _, k := range keys {
		v, ok := obj[k]
		if !ok {
			continue
		}
		s, ok := v.(string)
		if !ok || strings.TrimSpace(s) == "" {
			continue
		}
		delete(obj, k)
		return strings.TrimSpace(s), true
	}
	return "", false
}

func takeNumber(obj map[string]any, keys []string) (float64, bool) {
	for _, k := range keys {
		v, ok := obj[k]
		if !ok {
			continue
		}
		switch n := v.(type) {
		case float64:
			delete(obj, k)
			return n, true
		case string:
			if f, err := strconv.ParseFloat(strings.TrimSpace(n), 64); err == nil {
				delete(obj, k)
				return f, true
			}
		}
	}
	return 0, false
}

var dateLayouts = []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02"}

func takeDate(obj map[string]any, keys []string) (time.Time, bool) {
	for _, k := range keys {
		v, ok := obj[k]
		if !ok {
			continue
		}
		s, ok := v.(string)
		if !ok {
			continue
		}
		for _, layout := range dateLayouts {
			if t, err := time.Parse(layout, strings.TrimSpace(s)); err == nil {
				delete(obj, k)
				return t.UTC(), true
			}
		}
	}
	return time.Time{}, false
}

// serializeFallback renders leftover content as deterministic "key: value"
// lines so the classifier sees stable text for identical input.
func serializeFallback(value any) string {
	obj, ok := value.(map[string]any)
	if !ok {
		return strings.TrimSpace(scalarText(value))
	}
	if len(obj) == 0 {
		return ""
	}

	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		if b.Len() > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(k)
		b.WriteString(": ")
		b.WriteString(scalarText(obj[k]))
	}
	return b.String()
}

func scalarText(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	default:
		encoded, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(encoded)
	}
}
