// Package detector reports the canonical format of raw input. Detection is
// pure and never fails: anything it cannot place is FormatUnknown, which the
// orchestrator treats as a routing decision, not an error.
package detector

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"strings"

	"github.com/kirillkom/docrouter/internal/core/domain"
)

var extensionTable = map[string]domain.FormatTag{
	".json": domain.FormatJSON,
	".eml":  domain.FormatEmail,
	".txt":  domain.FormatEmail,
	".pdf":  domain.FormatPDF,
}

var mimeTable = map[string]domain.FormatTag{
	"application/json": domain.FormatJSON,
	"application/pdf":  domain.FormatPDF,
	"message/rfc822":   domain.FormatEmail,
	"text/plain":       domain.FormatEmail,
}

var pdfMagic = []byte("%PDF-")

// Email header names accepted as evidence that a bare text blob is mail.
var emailHeaderPrefixes = []string{"from:", "return-path:", "received:", "subject:", "delivered-to:"}

type Detector struct{}

func New() *Detector {
	return &Detector{}
}

// Detect applies, in priority order: the filename extension table, the
// declared MIME type, then content sniffing. Empty input is always Unknown.
func (d *Detector) Detect(raw *domain.RawInput) domain.FormatTag {
	if raw.Empty() {
		return domain.FormatUnknown
	}

	if raw.Filename != "" {
		ext := strings.ToLower(filepath.Ext(raw.Filename))
		if tag, ok := extensionTable[ext]; ok {
			return tag
		}
	}

	if raw.MimeType != "" {
		// Parameters like "; charset=utf-8" are not part of the table.
		mime := strings.ToLower(strings.TrimSpace(strings.SplitN(raw.MimeType, ";", 2)[0]))
		if tag, ok := mimeTable[mime]; ok {
			return tag
		}
	}

	return sniff(raw.Data)
}

func sniff(data []byte) domain.FormatTag {
	if bytes.HasPrefix(data, pdfMagic) {
		return domain.FormatPDF
	}

	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return domain.FormatUnknown
	}
	if (trimmed[0] == '{' || trimmed[0] == '[' || trimmed[0] == '"') && json.Valid(trimmed) {
		return domain.FormatJSON
	}

	head := strings.ToLower(string(firstLine(trimmed)))
	for _, prefix := range emailHeaderPrefixes {
		if strings.HasPrefix(head, prefix) {
			return domain.FormatEmail
		}
	}

	return domain.FormatUnknown
}

func firstLine(data []byte) []byte {
	if i := bytes.IndexByte(data, '\n'); i >= 0 {
		return bytes.TrimRight(data[:i], "\r")
	}
	return data
}
