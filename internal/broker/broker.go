// Package broker implements the live broker core: it translates high-level
// target intents into concrete lotted submissions, tracks reservations
// against settled cash, and self-heals local order state against
// authoritative venue snapshots.
package broker

import (
	"context"
	"sync"
	"time"

	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/retrypolicy"
	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"

	"live_broker/internal/config"
	"live_broker/internal/core"
	"live_broker/internal/ledger"
	"live_broker/internal/symbols"
	"live_broker/internal/tracker"
	"live_broker/pkg/concurrency"
	"live_broker/pkg/retry"
	"live_broker/pkg/telemetry"
)

// Broker is the live broker core. One mutex (the ledger lock) serializes
// every mutation of the ledger, the tracker tables, the risk-lock set and
// the mode deadlines. Adapter reads (cash, price, position, snapshot) are
// never performed while the lock is held; SubmitOrder is the one exception,
// held across the submission and its matching reservation so the pair is
// atomic with respect to other intents.
type Broker struct {
	adapter  core.IAdapter
	logger   core.ILogger
	alarm    core.IAlarm            // optional
	notifier core.IStrategyNotifier // optional
	hookPool *concurrency.WorkerPool
	metrics  *telemetry.BrokerMetrics
	cfg      config.BrokerConfig
	now      core.Clock

	mu      sync.Mutex
	ledger  *ledger.Ledger
	tracker *tracker.Tracker
	memory  *tracker.StateMemory

	riskLocked map[string]struct{}

	// Uncertain mode
	uncertainUntil    time.Time
	snapshotFailCount int
	snapshotFailSince time.Time

	// Pending-sell hysteresis
	sellEmptyCount      int
	sellEmptySince      time.Time
	lastSnapshotNoSells bool

	// Time anchors
	datetime          time.Time
	lastSetDatetime   time.Time
	lastSelfHeal      time.Time
	lastSnapshotAt    time.Time
	lastReplayAt      time.Time
	backlogEmptySince time.Time
	deferredNotified  bool

	snapshotExec failsafe.Executor[[]*core.PendingOrder]

	// Fed timestamps from the injected clock via AllowN, never the wall
	// clock.
	uncertainLimiter *rate.Limiter
}

// New builds a broker core over the given venue adapter. Commission and
// slippage feed the ledger's safety multiplier.
func New(adapter core.IAdapter, cfg config.BrokerConfig, commissionRate, slippageRate decimal.Decimal, logger core.ILogger) *Broker {
	cfg.ApplyDefaults()

	snapshotPolicy := retrypolicy.NewBuilder[[]*core.PendingOrder]().
		WithMaxRetries(cfg.SnapshotRetries - 1).
		WithDelay(cfg.SnapshotRetrySleep()).
		Build()

	return &Broker{
		adapter:          adapter,
		logger:           logger.WithField("component", "broker"),
		cfg:              cfg,
		now:              time.Now,
		ledger:           ledger.New(commissionRate, slippageRate),
		tracker:          tracker.New(),
		memory:           tracker.NewStateMemory(cfg.StateMemoryMaxItems, cfg.StateMemoryTTL()),
		riskLocked:       make(map[string]struct{}),
		snapshotExec:     failsafe.With(snapshotPolicy),
		uncertainLimiter: rate.NewLimiter(rate.Every(30*time.Second), 1),
	}
}

// SetClock replaces the time source. Every time check in the broker reads
// this clock, never the wall clock directly.
func (b *Broker) SetClock(now core.Clock) {
	b.now = now
}

// SetAlarm wires the operator notification channel.
func (b *Broker) SetAlarm(alarm core.IAlarm) {
	b.alarm = alarm
}

// SetNotifier wires the core-to-strategy callback interface.
func (b *Broker) SetNotifier(n core.IStrategyNotifier) {
	b.notifier = n
}

// SetHookPool wires the worker pool used for the sell-filled hook. Without
// a pool the hook is skipped and replay is driven by the caller.
func (b *Broker) SetHookPool(pool *concurrency.WorkerPool) {
	b.hookPool = pool
}

// SetMetrics wires the telemetry instrument holder.
func (b *Broker) SetMetrics(m *telemetry.BrokerMetrics) {
	b.metrics = m
}

// LockForRisk blocks all BUY legs for any rendering of symbol. SELLs are
// never blocked.
func (b *Broker) LockForRisk(symbol string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.riskLocked[symbol] = struct{}{}
	b.logger.Info("Risk-locked symbol", "symbol", symbol)
}

// UnlockForRisk releases a risk lock.
func (b *Broker) UnlockForRisk(symbol string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for locked := range b.riskLocked {
		if symbols.Match(locked, symbol) {
			delete(b.riskLocked, locked)
		}
	}
	b.logger.Info("Risk-unlocked symbol", "symbol", symbol)
}

func (b *Broker) riskLockedFor(symbol string) bool {
	for locked := range b.riskLocked {
		if symbols.Match(locked, symbol) {
			return true
		}
	}
	return false
}

// GetCash returns adapter cash minus virtual spent. The adapter call is
// made outside the lock; the lock covers only the subtraction. An adapter
// failure opens the cash-degraded window and falls back to last known cash.
func (b *Broker) GetCash(ctx context.Context) decimal.Decimal {
	cash, err := b.adapter.FetchCash(ctx)
	now := b.now()

	b.mu.Lock()
	defer b.mu.Unlock()
	if err != nil {
		b.ledger.MarkCashDegraded(now.Add(b.cfg.CashDegradedTTL()))
		b.logger.Warn("Cash fetch failed, entering degraded window", "error", err)
		return b.ledger.Available(b.ledger.LastKnownCash())
	}
	b.ledger.SetLastKnownCash(cash)
	return b.ledger.Available(cash)
}

// GetRebalanceCash returns GetCash additionally reduced by reservations for
// parked intents (buffered retries and value-mode deferred buys), so a
// rebalance pass cannot double-commit cash already promised to the queues.
func (b *Broker) GetRebalanceCash(ctx context.Context) decimal.Decimal {
	available := b.GetCash(ctx)

	b.mu.Lock()
	defer b.mu.Unlock()
	for _, r := range b.tracker.Retries() {
		available = available.Sub(b.ledger.Reservation(r.NewSize, r.Price))
	}
	for _, d := range b.tracker.DeferredPeek() {
		if d.Mode == core.IntentTargetValue {
			available = available.Sub(d.Target.Mul(b.ledger.SafetyMultiplier()))
		}
	}
	return available
}

// SyncBalance refreshes the ledger's last known cash with bounded retry.
func (b *Broker) SyncBalance(ctx context.Context) error {
	var cash decimal.Decimal
	policy := retry.Policy{
		MaxAttempts:    3,
		InitialBackoff: 100 * time.Millisecond,
		MaxBackoff:     time.Second,
	}
	err := retry.Do(ctx, policy, retry.Always, func() error {
		var ferr error
		cash, ferr = b.adapter.FetchCash(ctx)
		return ferr
	})

	now := b.now()
	b.mu.Lock()
	defer b.mu.Unlock()
	if err != nil {
		b.ledger.MarkCashDegraded(now.Add(b.cfg.CashDegradedTTL()))
		b.logger.Error("Balance sync failed", "error", err)
		return err
	}
	b.ledger.SetLastKnownCash(cash)
	b.ledger.ResetDegraded()
	return nil
}

// PreStrategyCheck is the strategy fast-fail gate. It returns false while
// the cash input is degraded.
func (b *Broker) PreStrategyCheck() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return !b.ledger.CashDegraded(b.now())
}

// HasDeferredOrders reports whether any BUY intents are parked.
func (b *Broker) HasDeferredOrders() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.tracker.HasDeferred()
}

// HasRuntimeBacklog reports whether any in-flight state exists at all.
func (b *Broker) HasRuntimeBacklog() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.tracker.HasBacklog()
}

// HasPendingOrder reports whether an order for symbol is known to be in
// flight, filtered by side when non-empty. The answer is tri-state: nil
// means the broker cannot currently know (uncertain mode, no local
// evidence).
func (b *Broker) HasPendingOrder(symbol string, side core.OrderSide) *bool {
	yes, no := true, false
	now := b.now()

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.tracker.HasPendingFor(symbol, side) {
		return &yes
	}
	if b.uncertainLocked(now) {
		if b.memory.PendingForSymbol(symbol, side) {
			return &yes
		}
		return nil
	}
	return &no
}

// VirtualSpent exposes the current reservation total.
func (b *Broker) VirtualSpent() decimal.Decimal {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.ledger.VirtualSpent()
}

// InUncertainMode reports whether the uncertain window is open.
func (b *Broker) InUncertainMode() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.uncertainLocked(b.now())
}

// ForceResetState is the operator rescue hatch: it drops every queue and
// reservation so the next self-heal rebuilds from the venue snapshot.
func (b *Broker) ForceResetState() error {
	b.mu.Lock()
	b.resetStateLocked()
	b.mu.Unlock()
	b.logger.Warn("Forced state reset")
	return nil
}

func (b *Broker) uncertainLocked(now time.Time) bool {
	return now.Before(b.uncertainUntil)
}

func (b *Broker) resetStateLocked() {
	b.tracker.Reset()
	b.memory.Reset()
	b.ledger.Reset()
	b.uncertainUntil = time.Time{}
	b.snapshotFailCount = 0
	b.snapshotFailSince = time.Time{}
	b.sellEmptyCount = 0
	b.sellEmptySince = time.Time{}
	b.lastSnapshotNoSells = false
	b.backlogEmptySince = time.Time{}
	b.deferredNotified = false
	b.updateGaugesLocked()
}

func (b *Broker) updateGaugesLocked() {
	if b.metrics == nil {
		return
	}
	spent, _ := b.ledger.VirtualSpent().Float64()
	b.metrics.SetGauges(
		spent,
		int64(b.tracker.DeferredCount()),
		int64(b.tracker.ActiveBuyCount()),
		b.uncertainLocked(b.now()),
	)
}

func (b *Broker) alarmEvent(ctx context.Context, severity core.AlarmSeverity, title, message string, fields map[string]string) {
	if b.alarm == nil {
		return
	}
	b.alarm.Alarm(ctx, severity, title, message, fields)
}
