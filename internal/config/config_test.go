package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/kirillkom/docrouter/internal/core/domain"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Service != "docrouter" {
		t.Fatalf("expected default service name, got %s", cfg.Service)
	}
	if cfg.Pipeline.ConfidenceThreshold != 0.7 {
		t.Fatalf("expected default threshold 0.7, got %f", cfg.Pipeline.ConfidenceThreshold)
	}
	if cfg.Retry.MaxAttempts != 3 {
		t.Fatalf("expected default retry attempts 3, got %d", cfg.Retry.MaxAttempts)
	}
	if cfg.Dispatch.Mode != "loopback" {
		t.Fatalf("expected default loopback dispatch, got %s", cfg.Dispatch.Mode)
	}
}

func TestLoadYAMLFileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	raw := `
service: docrouter-staging
pipeline:
  confidence_threshold: 0.8
  worker_concurrency: 8
retry:
  initial_backoff: 500ms
  max_backoff: 5s
dispatch:
  mode: http
  targets:
    flag-and-freeze: http://fraud.internal/hook
`
	if err := os.WriteFile(path, []byte(raw), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Service != "docrouter-staging" {
		t.Fatalf("expected service from file, got %s", cfg.Service)
	}
	if cfg.Pipeline.ConfidenceThreshold != 0.8 {
		t.Fatalf("expected threshold 0.8, got %f", cfg.Pipeline.ConfidenceThreshold)
	}
	if cfg.Retry.InitialBackoff.Std() != 500*time.Millisecond {
		t.Fatalf("expected duration parsed, got %v", cfg.Retry.InitialBackoff.Std())
	}
	if cfg.Dispatch.Targets["flag-and-freeze"] == "" {
		t.Fatalf("expected dispatch target from file")
	}
	// Untouched keys keep their defaults.
	if cfg.API.Port != "8080" {
		t.Fatalf("expected default api port preserved, got %s", cfg.API.Port)
	}
}

func TestLoadEnvOverridesFile(t *testing.T) {
	t.Setenv("CONFIDENCE_THRESHOLD", "0.9")
	t.Setenv("API_PORT", "9999")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Pipeline.ConfidenceThreshold != 0.9 {
		t.Fatalf("expected env threshold 0.9, got %f", cfg.Pipeline.ConfidenceThreshold)
	}
	if cfg.API.Port != "9999" {
		t.Fatalf("expected env port, got %s", cfg.API.Port)
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	cases := map[string]string{
		"threshold out of range": "pipeline:\n  confidence_threshold: 1.5\n",
		"zero workers":           "pipeline:\n  worker_concurrency: 0\n",
		"bad dispatch mode":      "dispatch:\n  mode: pigeon\n",
		"http without targets":   "dispatch:\n  mode: http\n",
		"unknown override":       "dispatch:\n  routing_overrides:\n    gossip: queue-manual-review\n",
	}
	for name, raw := range cases {
		path := filepath.Join(t.TempDir(), "config.yaml")
		if err := os.WriteFile(path, []byte(raw), 0o600); err != nil {
			t.Fatalf("%s: write config: %v", name, err)
		}
		_, err := Load(path)
		if !domain.IsKind(err, domain.ErrConfigInvalid) {
			t.Errorf("%s: expected ErrConfigInvalid, got %v", name, err)
		}
	}
}

func TestLoadMissingFileIsInvalid(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if !domain.IsKind(err, domain.ErrConfigInvalid) {
		t.Fatalf("expected ErrConfigInvalid for missing file, got %v", err)
	}
}

func TestManagerReloadSwapsSnapshot(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("pipeline:\n  confidence_threshold: 0.6\n"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	mgr, err := NewManager(path)
	if err != nil {
		t.Fatalf("NewManager() error = %v", err)
	}
	if got := mgr.Current().Pipeline.ConfidenceThreshold; got != 0.6 {
		t.Fatalf("expected initial threshold 0.6, got %f", got)
	}

	if err := os.WriteFile(path, []byte("pipeline:\n  confidence_threshold: 0.85\n"), 0o600); err != nil {
		t.Fatalf("rewrite config: %v", err)
	}
	if err := mgr.Reload(); err != nil {
		t.Fatalf("Reload() error = %v", err)
	}
	if got := mgr.Current().Pipeline.ConfidenceThreshold; got != 0.85 {
		t.Fatalf("expected reloaded threshold 0.85, got %f", got)
	}
}

func TestManagerKeepsSnapshotOnFailedReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("service: docrouter\n"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	mgr, err := NewManager(path)
	if err != nil {
		t.Fatalf("NewManager() error = %v", err)
	}

	if err := os.WriteFile(path, []byte("pipeline:\n  worker_concurrency: 0\n"), 0o600); err != nil {
		t.Fatalf("rewrite config: %v", err)
	}
	if err := mgr.Reload(); err == nil {
		t.Fatalf("expected reload error for invalid config")
	}
	if got := mgr.Current().Service; got != "docrouter" {
		t.Fatalf("expected previous snapshot kept, got service %s", got)
	}
}
