package domain

import "time"

// FormatTag identifies the canonical format of a raw document.
type FormatTag string

const (
	FormatEmail   FormatTag = "email"
	FormatJSON    FormatTag = "json"
	FormatPDF     FormatTag = "pdf"
	FormatUnknown FormatTag = "unknown"
)

// RawInput is the immutable ingested payload. Filename and MimeType are
// hints from the caller and may be empty.
type RawInput struct {
	Data     []byte
	Filename string
	MimeType string
}

func (r *RawInput) Empty() bool {
	return r == nil || len(r.Data) == 0
}

// DocumentFields holds the structured fields a parser managed to extract.
// Absent fields stay nil; parsers never default them.
type DocumentFields struct {
	Sender    *string    `json:"sender,omitempty"`
	Recipient *string    `json:"recipient,omitempty"`
	Subject   *string    `json:"subject,omitempty"`
	Amount    *float64   `json:"amount,omitempty"`
	Currency  *string    `json:"currency,omitempty"`
	Date      *time.Time `json:"date,omitempty"`
}

// CanonicalDocument is the format-independent representation produced by
// parsing. Source is borrowed from the pipeline run; the run owns it.
type CanonicalDocument struct {
	Format FormatTag
	Text   string
	Fields DocumentFields
	Source *RawInput
}

// EmptyDocument is the representation for structurally valid but contentless
// input. It still flows through classification and comes out Unclassified.
func EmptyDocument(format FormatTag, source *RawInput) *CanonicalDocument {
	return &CanonicalDocument{Format: format, Source: source}
}

func (d *CanonicalDocument) Contentless() bool {
	return d == nil || (d.Text == "" && d.Fields == DocumentFields{})
}
