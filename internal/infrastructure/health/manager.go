// Package health aggregates liveness checks for the broker process: venue
// adapter reachability, the strategy cash gate and uncertain mode are the
// usual registrations.
package health

import (
	"encoding/json"
	"net/http"
	"sync"

	"live_broker/internal/core"
)

type Manager struct {
	logger core.ILogger
	mu     sync.RWMutex
	checks map[string]func() error
}

func NewManager(logger core.ILogger) *Manager {
	m := &Manager{checks: make(map[string]func() error)}
	if logger != nil {
		m.logger = logger.WithField("component", "health")
	}
	return m
}

// Register adds a named check. A nil error from the check means healthy.
func (m *Manager) Register(component string, check func() error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.checks[component] = check
}

// Status runs every check and returns the per-component verdicts.
func (m *Manager) Status() map[string]string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	status := make(map[string]string, len(m.checks))
	for component, check := range m.checks {
		if err := check(); err != nil {
			status[component] = "unhealthy: " + err.Error()
		} else {
			status[component] = "healthy"
		}
	}
	return status
}

// Healthy reports whether every registered check passes.
func (m *Manager) Healthy() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, check := range m.checks {
		if err := check(); err != nil {
			return false
		}
	}
	return true
}

// Handler serves the aggregate status as JSON, 503 when any check fails.
func (m *Manager) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		status := m.Status()
		code := http.StatusOK
		for _, v := range status {
			if v != "healthy" {
				code = http.StatusServiceUnavailable
				break
			}
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		if err := json.NewEncoder(w).Encode(status); err != nil && m.logger != nil {
			m.logger.Warn("Failed to write health response", "error", err)
		}
	}
}
