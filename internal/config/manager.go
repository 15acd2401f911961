package config

import (
	"log/slog"
	"sync/atomic"
)

// Manager holds the current configuration snapshot. Current is read at run
// start; an in-flight run keeps the snapshot it started with, while a Reload
// becomes visible to every run started afterwards.
type Manager struct {
	path    string
	current atomic.Pointer[Config]
}

func NewManager(path string) (*Manager, error) {
	m := &Manager{path: path}
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}
	m.current.Store(&cfg)
	return m, nil
}

func (m *Manager) Current() Config {
	return *m.current.Load()
}

// Reload re-reads the configuration from its sources. On error the previous
// snapshot stays in effect and the error is returned.
func (m *Manager) Reload() error {
	cfg, err := Load(m.path)
	if err != nil {
		return err
	}
	m.current.Store(&cfg)
	slog.Info("config_reloaded", "path", m.path)
	return nil
}
