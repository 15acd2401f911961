// Package pdf extracts the text layer of PDF documents. A structurally
// broken PDF is malformed; a valid PDF with no text layer (a scanned image)
// is an expected condition routed to manual review, not a defect.
package pdf

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/kirillkom/docrouter/internal/core/domain"
)

type Parser struct{}

func New() *Parser {
	return &Parser{}
}

func (p *Parser) Parse(_ context.Context, raw *domain.RawInput) (*domain.CanonicalDocument, error) {
	text, err := extractText(raw.Data)
	if err != nil {
		return nil, domain.WrapError(domain.ErrParseMalformed, "parse pdf", err)
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return nil, domain.WrapError(domain.ErrNoExtractableText, "parse pdf",
			errors.New("document has no text layer"))
	}

	return &domain.CanonicalDocument{
		Format: domain.FormatPDF,
		Text:   text,
		Source: raw,
	}, nil
}

// extractText reads every page's text content. The pdf library panics on
// some corrupt inputs; those are reported as ordinary errors here.
func extractText(data []byte) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("pdf reader panic: %v", r)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("open pdf: %w", err)
	}

	plain, err := reader.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("extract text layer: %w", err)
	}

	var b strings.Builder
	if _, err := io.Copy(&b, plain); err != nil {
		return "", fmt.Errorf("read text layer: %w", err)
	}
	return b.String(), nil
}
