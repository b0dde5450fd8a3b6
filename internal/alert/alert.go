// Package alert fans operator-visible broker events out to notification
// channels. The manager implements core.IAlarm and is injected into the
// broker; there is no process-wide singleton.
package alert

import (
	"context"
	"sync"
	"time"

	"live_broker/internal/core"
	"live_broker/pkg/concurrency"
)

type Level string

const (
	Info     Level = "INFO"
	Warning  Level = "WARNING"
	Error    Level = "ERROR"
	Critical Level = "CRITICAL"
)

type Payload struct {
	Level     Level
	Title     string
	Message   string
	Timestamp time.Time
	Fields    map[string]string
}

type Channel interface {
	Send(ctx context.Context, alert Payload) error
	Name() string
}

// Manager dispatches alerts to every registered channel. Delivery is async
// on a worker pool so the trading path never blocks on a webhook.
type Manager struct {
	channels []Channel
	pool     *concurrency.WorkerPool
	logger   core.ILogger
	mu       sync.RWMutex
}

func NewManager(pool *concurrency.WorkerPool, logger core.ILogger) *Manager {
	return &Manager{
		channels: make([]Channel, 0),
		pool:     pool,
		logger:   logger.WithField("component", "alert_manager"),
	}
}

func (m *Manager) AddChannel(ch Channel) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.channels = append(m.channels, ch)
	m.logger.Info("Added alert channel", "name", ch.Name())
}

// Alarm implements core.IAlarm. Broker severities map onto alert levels;
// anything the broker raises is at least Warning.
func (m *Manager) Alarm(ctx context.Context, severity core.AlarmSeverity, title, message string, fields map[string]string) {
	level := Warning
	switch severity {
	case core.AlarmError:
		level = Error
	case core.AlarmCritical:
		level = Critical
	}
	m.Send(ctx, level, title, message, fields)
}

func (m *Manager) Send(ctx context.Context, level Level, title, message string, fields map[string]string) {
	payload := Payload{
		Level:     level,
		Title:     title,
		Message:   message,
		Timestamp: time.Now(),
		Fields:    fields,
	}

	m.logger.Info("Triggering alert", "title", title, "level", level)

	m.mu.RLock()
	channels := make([]Channel, len(m.channels))
	copy(channels, m.channels)
	m.mu.RUnlock()

	for _, ch := range channels {
		ch := ch
		deliver := func() {
			timeoutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := ch.Send(timeoutCtx, payload); err != nil {
				m.logger.Error("Failed to send alert", "channel", ch.Name(), "error", err)
			}
		}
		if m.pool != nil {
			if err := m.pool.Submit(deliver); err != nil {
				m.logger.Error("Alert pool full, dropping alert", "channel", ch.Name(), "title", title)
			}
		} else {
			deliver()
		}
	}
}
