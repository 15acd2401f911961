package localfs

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
)

func TestSaveAndOpenRoundTrip(t *testing.T) {
	s, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	if err := s.Save(context.Background(), "run-1_doc.eml", bytes.NewBufferString("hello")); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	reader, err := s.Open(context.Background(), "run-1_doc.eml")
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer reader.Close()

	raw, err := io.ReadAll(reader)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(raw) != "hello" {
		t.Fatalf("expected hello, got %q", raw)
	}
}

func TestSaveConfinesKeyToBaseDir(t *testing.T) {
	dir := t.TempDir()
	s, err := New(dir)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	if err := s.Save(context.Background(), "../escape.txt", bytes.NewBufferString("x")); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "escape.txt")); err != nil {
		t.Fatalf("expected file inside base dir: %v", err)
	}
	if _, err := os.Stat(filepath.Join(filepath.Dir(dir), "escape.txt")); err == nil {
		t.Fatalf("expected no file outside base dir")
	}
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) {
	return 0, errors.New("source broke")
}

func TestSaveRemovesPartialFileOnError(t *testing.T) {
	dir := t.TempDir()
	s, err := New(dir)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	if err := s.Save(context.Background(), "partial.bin", failingReader{}); err == nil {
		t.Fatalf("expected error from failing reader")
	}
	if _, err := os.Stat(filepath.Join(dir, "partial.bin")); err == nil {
		t.Fatalf("expected partial file removed")
	}
}
