package telemetry

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metric names
const (
	MetricOrdersSubmittedTotal  = "live_broker_orders_submitted_total"
	MetricOrdersRejectedTotal   = "live_broker_orders_rejected_total"
	MetricOrdersDeferredTotal   = "live_broker_orders_deferred_total"
	MetricRetriesQueuedTotal    = "live_broker_retries_queued_total"
	MetricSnapshotFailuresTotal = "live_broker_snapshot_failures_total"
	MetricStaleResetsTotal      = "live_broker_stale_resets_total"
	MetricVirtualSpent          = "live_broker_virtual_spent"
	MetricDeferredDepth         = "live_broker_deferred_depth"
	MetricActiveBuys            = "live_broker_active_buys"
	MetricUncertainMode         = "live_broker_uncertain_mode"
)

// BrokerMetrics holds initialized instruments for the broker core.
type BrokerMetrics struct {
	OrdersSubmittedTotal  metric.Int64Counter
	OrdersRejectedTotal   metric.Int64Counter
	OrdersDeferredTotal   metric.Int64Counter
	RetriesQueuedTotal    metric.Int64Counter
	SnapshotFailuresTotal metric.Int64Counter
	StaleResetsTotal      metric.Int64Counter
	VirtualSpent          metric.Float64ObservableGauge
	DeferredDepth         metric.Int64ObservableGauge
	ActiveBuys            metric.Int64ObservableGauge
	UncertainMode         metric.Int64ObservableGauge

	// State for observable gauges
	mu            sync.RWMutex
	virtualSpent  float64
	deferredDepth int64
	activeBuys    int64
	uncertain     int64
}

var (
	globalBrokerMetrics *BrokerMetrics
	brokerInitOnce      sync.Once
)

// GetBrokerMetrics returns the singleton broker metrics holder.
func GetBrokerMetrics() *BrokerMetrics {
	brokerInitOnce.Do(func() {
		globalBrokerMetrics = &BrokerMetrics{}
	})
	return globalBrokerMetrics
}

// InitMetrics initializes instruments using the meter
func (m *BrokerMetrics) InitMetrics(meter metric.Meter) error {
	var err error

	m.OrdersSubmittedTotal, err = meter.Int64Counter(MetricOrdersSubmittedTotal,
		metric.WithDescription("Total orders submitted to the venue"))
	if err != nil {
		return err
	}

	m.OrdersRejectedTotal, err = meter.Int64Counter(MetricOrdersRejectedTotal,
		metric.WithDescription("Total venue-level order rejections"))
	if err != nil {
		return err
	}

	m.OrdersDeferredTotal, err = meter.Int64Counter(MetricOrdersDeferredTotal,
		metric.WithDescription("Total BUY intents parked on the deferred queue"))
	if err != nil {
		return err
	}

	m.RetriesQueuedTotal, err = meter.Int64Counter(MetricRetriesQueuedTotal,
		metric.WithDescription("Total buffered rejection retries queued"))
	if err != nil {
		return err
	}

	m.SnapshotFailuresTotal, err = meter.Int64Counter(MetricSnapshotFailuresTotal,
		metric.WithDescription("Total pending snapshot fetch failures"))
	if err != nil {
		return err
	}

	m.StaleResetsTotal, err = meter.Int64Counter(MetricStaleResetsTotal,
		metric.WithDescription("Total stale-state resets (day rollover or long gap)"))
	if err != nil {
		return err
	}

	m.VirtualSpent, err = meter.Float64ObservableGauge(MetricVirtualSpent,
		metric.WithDescription("Current virtual-spent reservation total"),
		metric.WithFloat64Callback(func(ctx context.Context, obs metric.Float64Observer) error {
			m.mu.RLock()
			defer m.mu.RUnlock()
			obs.Observe(m.virtualSpent)
			return nil
		}))
	if err != nil {
		return err
	}

	m.DeferredDepth, err = meter.Int64ObservableGauge(MetricDeferredDepth,
		metric.WithDescription("Current deferred BUY queue depth"),
		metric.WithInt64Callback(func(ctx context.Context, obs metric.Int64Observer) error {
			m.mu.RLock()
			defer m.mu.RUnlock()
			obs.Observe(m.deferredDepth)
			return nil
		}))
	if err != nil {
		return err
	}

	m.ActiveBuys, err = meter.Int64ObservableGauge(MetricActiveBuys,
		metric.WithDescription("Number of BUY orders currently tracked as in flight"),
		metric.WithInt64Callback(func(ctx context.Context, obs metric.Int64Observer) error {
			m.mu.RLock()
			defer m.mu.RUnlock()
			obs.Observe(m.activeBuys)
			return nil
		}))
	if err != nil {
		return err
	}

	m.UncertainMode, err = meter.Int64ObservableGauge(MetricUncertainMode,
		metric.WithDescription("Uncertain mode state (1=active, 0=normal)"),
		metric.WithInt64Callback(func(ctx context.Context, obs metric.Int64Observer) error {
			m.mu.RLock()
			defer m.mu.RUnlock()
			obs.Observe(m.uncertain)
			return nil
		}))
	if err != nil {
		return err
	}

	return nil
}

// AddSubmitted records one venue submission for the given side.
func (m *BrokerMetrics) AddSubmitted(ctx context.Context, side string) {
	if m.OrdersSubmittedTotal != nil {
		m.OrdersSubmittedTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("side", side)))
	}
}

// AddRejected records one venue-level rejection.
func (m *BrokerMetrics) AddRejected(ctx context.Context) {
	if m.OrdersRejectedTotal != nil {
		m.OrdersRejectedTotal.Add(ctx, 1)
	}
}

// AddDeferred records one parked BUY intent.
func (m *BrokerMetrics) AddDeferred(ctx context.Context) {
	if m.OrdersDeferredTotal != nil {
		m.OrdersDeferredTotal.Add(ctx, 1)
	}
}

// AddRetryQueued records one buffered rejection retry.
func (m *BrokerMetrics) AddRetryQueued(ctx context.Context) {
	if m.RetriesQueuedTotal != nil {
		m.RetriesQueuedTotal.Add(ctx, 1)
	}
}

// AddSnapshotFailure records one snapshot fetch failure.
func (m *BrokerMetrics) AddSnapshotFailure(ctx context.Context) {
	if m.SnapshotFailuresTotal != nil {
		m.SnapshotFailuresTotal.Add(ctx, 1)
	}
}

// AddStaleReset records one stale-state reset.
func (m *BrokerMetrics) AddStaleReset(ctx context.Context) {
	if m.StaleResetsTotal != nil {
		m.StaleResetsTotal.Add(ctx, 1)
	}
}

// SetGauges updates the observable gauge state.
func (m *BrokerMetrics) SetGauges(virtualSpent float64, deferredDepth, activeBuys int64, uncertain bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.virtualSpent = virtualSpent
	m.deferredDepth = deferredDepth
	m.activeBuys = activeBuys
	if uncertain {
		m.uncertain = 1
	} else {
		m.uncertain = 0
	}
}
