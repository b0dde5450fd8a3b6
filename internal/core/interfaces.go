// Package core defines the interfaces and normalized types shared across the
// live broker.
package core

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// IAdapter is the contract a venue driver must expose to the broker core.
// Every call is atomic from the core's perspective and may fail with a
// transient or permanent error. None of them is invoked while the broker
// holds its ledger lock, except SubmitOrder, which is held across the
// submission and the matching reservation on purpose.
type IAdapter interface {
	// FetchCash returns authoritative settled cash.
	FetchCash(ctx context.Context) (decimal.Decimal, error)
	// FetchPosition returns the settled holding for symbol.
	FetchPosition(ctx context.Context, symbol string) (*Position, error)
	// FetchPrice returns the last known mark price. Adapters fall back to
	// close/last/mid when the live tick is invalid.
	FetchPrice(ctx context.Context, symbol string) (decimal.Decimal, error)
	// FetchPendingOrders returns the authoritative pending snapshot.
	FetchPendingOrders(ctx context.Context) ([]*PendingOrder, error)
	// SubmitOrder submits one order. A nil handle without error means the
	// venue rejected the order at submit time.
	SubmitOrder(ctx context.Context, symbol string, side OrderSide, size, referencePrice decimal.Decimal) (*OrderHandle, error)
	// TranslateRawStatus normalizes an asynchronous raw status event.
	TranslateRawStatus(raw interface{}) (*OrderHandle, error)

	IsLiveMode() bool
	Capabilities() CapabilitySet
}

// IStrategyNotifier receives core-to-strategy notifications. Supplied at
// construction so the dependency stays unidirectional.
type IStrategyNotifier interface {
	// OnDeferredCleared fires when the broker's queues fully drained and a
	// stale strategy-side virtual placeholder should be released.
	OnDeferredCleared()
}

// AlarmSeverity ranks operator notifications. Warning marks degraded but
// self-correcting behavior, Error marks abandoned work, Critical marks
// states needing immediate operator attention.
type AlarmSeverity string

const (
	AlarmWarning  AlarmSeverity = "warning"
	AlarmError    AlarmSeverity = "error"
	AlarmCritical AlarmSeverity = "critical"
)

// IAlarm is the notification channel for operator-visible failures.
type IAlarm interface {
	Alarm(ctx context.Context, severity AlarmSeverity, title, message string, fields map[string]string)
}

// Clock returns the current time. Injected so every time check in the broker
// is testable; no call site reads the wall clock directly.
type Clock func() time.Time

// ILogger defines the interface for logging
type ILogger interface {
	Debug(msg string, fields ...interface{})
	Info(msg string, fields ...interface{})
	Warn(msg string, fields ...interface{})
	Error(msg string, fields ...interface{})
	Fatal(msg string, fields ...interface{})
	WithField(key string, value interface{}) ILogger
	WithFields(fields map[string]interface{}) ILogger
}
