package detector

import (
	"testing"

	"github.com/kirillkom/docrouter/internal/core/domain"
)

func TestDetectByExtension(t *testing.T) {
	cases := []struct {
		filename string
		want     domain.FormatTag
	}{
		{"invoice.json", domain.FormatJSON},
		{"message.eml", domain.FormatEmail},
		{"notes.txt", domain.FormatEmail},
		{"scan.PDF", domain.FormatPDF},
	}
	d := New()
	for _, tc := range cases {
		got := d.Detect(&domain.RawInput{Data: []byte("x"), Filename: tc.filename})
		if got != tc.want {
			t.Errorf("Detect(%s) = %s, want %s", tc.filename, got, tc.want)
		}
	}
}

func TestDetectByMimeType(t *testing.T) {
	d := New()
	got := d.Detect(&domain.RawInput{Data: []byte("x"), MimeType: "application/json; charset=utf-8"})
	if got != domain.FormatJSON {
		t.Fatalf("expected json from mime type, got %s", got)
	}
	got = d.Detect(&domain.RawInput{Data: []byte("x"), Filename: "noextension", MimeType: "message/rfc822"})
	if got != domain.FormatEmail {
		t.Fatalf("expected email from mime type, got %s", got)
	}
}

func TestDetectExtensionWinsOverMimeType(t *testing.T) {
	d := New()
	got := d.Detect(&domain.RawInput{Data: []byte("x"), Filename: "doc.pdf", MimeType: "application/json"})
	if got != domain.FormatPDF {
		t.Fatalf("expected extension to take priority, got %s", got)
	}
}

func TestDetectBySniffing(t *testing.T) {
	cases := []struct {
		name string
		data string
		want domain.FormatTag
	}{
		{"pdf magic", "%PDF-1.7 rest", domain.FormatPDF},
		{"json object", `  {"amount": 12}`, domain.FormatJSON},
		{"json array", `[1, 2, 3]`, domain.FormatJSON},
		{"email headers", "From: a@example.com\r\nSubject: hi\r\n\r\nbody", domain.FormatEmail},
		{"subject first", "Subject: reminder\n\nbody", domain.FormatEmail},
		{"invalid json braces", `{"broken`, domain.FormatUnknown},
		{"plain prose", "just some words", domain.FormatUnknown},
		{"binary", "\x00\x01\x02\x03", domain.FormatUnknown},
	}
	d := New()
	for _, tc := range cases {
		got := d.Detect(&domain.RawInput{Data: []byte(tc.data)})
		if got != tc.want {
			t.Errorf("%s: Detect = %s, want %s", tc.name, got, tc.want)
		}
	}
}

func TestDetectEmptyInputIsUnknown(t *testing.T) {
	d := New()
	if got := d.Detect(&domain.RawInput{}); got != domain.FormatUnknown {
		t.Fatalf("expected unknown for empty input, got %s", got)
	}
	if got := d.Detect(&domain.RawInput{Data: []byte{}, Filename: "doc.pdf"}); got != domain.FormatUnknown {
		t.Fatalf("expected unknown for empty data regardless of hints, got %s", got)
	}
}

func TestDetectIsDeterministic(t *testing.T) {
	d := New()
	raw := &domain.RawInput{Data: []byte(`{"k":"v"}`)}
	first := d.Detect(raw)
	for i := 0; i < 10; i++ {
		if got := d.Detect(raw); got != first {
			t.Fatalf("detection changed between calls: %s then %s", first, got)
		}
	}
}
