package broker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"live_broker/internal/config"
	"live_broker/internal/core"
	"live_broker/internal/logging"
	"live_broker/internal/mock"
)

func dec(f float64) decimal.Decimal { return decimal.NewFromFloat(f) }

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock(t time.Time) *fakeClock { return &fakeClock{t: t} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type recordingAlarm struct {
	mu         sync.Mutex
	titles     []string
	severities map[string]core.AlarmSeverity
}

func (r *recordingAlarm) Alarm(_ context.Context, severity core.AlarmSeverity, title, _ string, _ map[string]string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.titles = append(r.titles, title)
	if r.severities == nil {
		r.severities = make(map[string]core.AlarmSeverity)
	}
	r.severities[title] = severity
}

func (r *recordingAlarm) Titles() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.titles))
	copy(out, r.titles)
	return out
}

func (r *recordingAlarm) Severity(title string) core.AlarmSeverity {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.severities[title]
}

type recordingNotifier struct {
	mu      sync.Mutex
	cleared int
}

func (r *recordingNotifier) OnDeferredCleared() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cleared++
}

func (r *recordingNotifier) Cleared() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cleared
}

func newTestBroker(t *testing.T) (*Broker, *mock.Adapter, *fakeClock, *recordingAlarm) {
	t.Helper()
	adapter := mock.NewAdapter()
	cfg := config.DefaultBrokerConfig()
	cfg.SnapshotRetries = 1 // no in-test retry sleeps

	b := New(adapter, cfg, dec(0.0003), dec(0.001), logging.Nop())
	clock := newFakeClock(time.Date(2026, 3, 2, 9, 30, 0, 0, time.UTC))
	b.SetClock(clock.Now)
	alarm := &recordingAlarm{}
	b.SetAlarm(alarm)
	return b, adapter, clock, alarm
}

// A BUY that cannot be funded while a SELL is in flight parks behind the
// sell, returns a virtual placeholder, and replays once the proceeds land.
func TestDeferredBuyWaitsForSellProceeds(t *testing.T) {
	b, adapter, _, _ := newTestBroker(t)
	ctx := context.Background()

	adapter.SetCash(dec(100))
	adapter.SetPrice("SHSE.600000", dec(10))
	adapter.SetPrice("SHSE.600519", dec(10))
	adapter.SetPosition("SHSE.600000", dec(1000))

	sell := b.SmartSell(ctx, "SHSE.600000", dec(500), dec(10))
	require.NotNil(t, sell)
	require.Equal(t, 1, adapter.SubmittedCount())

	h := b.OrderTargetValue(ctx, "SHSE.600519", dec(1000))
	require.NotNil(t, h)
	assert.True(t, h.IsVirtualDeferred())
	assert.Equal(t, core.DeferredVirtualID, h.ID)
	assert.Equal(t, 1, adapter.SubmittedCount(), "no BUY may reach the venue yet")
	assert.True(t, b.HasDeferredOrders())

	// Sell fills; proceeds settle.
	b.OnOrderStatus(ctx, mock.Fill(sell, dec(10)))
	adapter.SetCash(dec(5000))
	require.NoError(t, b.SyncBalance(ctx))

	b.ProcessDeferredOrders(ctx, false)

	require.Equal(t, 2, adapter.SubmittedCount())
	buy := adapter.Submitted()[1]
	assert.Equal(t, core.SideBuy, buy.Side)
	assert.True(t, buy.Size.Equal(dec(100)), "got %s", buy.Size)
	assert.False(t, b.HasDeferredOrders())
}

// An asynchronous rejection refunds the reservation, buffers a downgraded
// retry, and releases it only after the snapshot proves the source is gone.
// Redelivered rejection events are idempotent.
func TestRejectionDowngradeAndRelease(t *testing.T) {
	b, adapter, clock, _ := newTestBroker(t)
	ctx := context.Background()

	adapter.SetCash(dec(100000))
	adapter.SetPrice("SHSE.600000", dec(10))

	h := b.OrderTargetValue(ctx, "SHSE.600000", dec(2000))
	require.NotNil(t, h)
	require.True(t, h.Size.Equal(dec(200)))
	assert.True(t, b.VirtualSpent().IsPositive())

	b.OnOrderStatus(ctx, mock.Reject(h))
	assert.True(t, b.VirtualSpent().IsZero(), "rejection must refund the reservation")
	assert.True(t, b.HasRuntimeBacklog())
	assert.Equal(t, 1, adapter.SubmittedCount(), "retry must not submit before confirmation")

	// Redelivery of the same terminal event is a no-op.
	b.OnOrderStatus(ctx, mock.Reject(h))

	// Snapshot shows the rejected order is gone; the retry releases at
	// original size minus one lot.
	clock.Advance(5 * time.Second)
	b.SelfHeal(ctx)

	require.Equal(t, 2, adapter.SubmittedCount())
	retry := adapter.Submitted()[1]
	assert.Equal(t, core.SideBuy, retry.Side)
	assert.True(t, retry.Size.Equal(dec(100)), "got %s", retry.Size)
	assert.True(t, b.VirtualSpent().IsPositive(), "released retry re-reserves")
}

// Repeated rejections step the size down one lot per attempt and abandon
// the order after the configured number of downgrades.
func TestRejectionRetryIsBounded(t *testing.T) {
	b, adapter, clock, alarm := newTestBroker(t)
	ctx := context.Background()

	adapter.SetCash(dec(25000))
	adapter.SetPrice("SHSE.600000", dec(10))

	h := b.OrderTargetValue(ctx, "SHSE.600000", dec(20000))
	require.NotNil(t, h)
	require.True(t, h.Size.Equal(dec(2000)))

	sizes := []decimal.Decimal{h.Size}
	for i := 0; i < 3; i++ {
		last := adapter.Submitted()[adapter.SubmittedCount()-1]
		b.OnOrderStatus(ctx, mock.Reject(last))
		clock.Advance(5 * time.Second)
		b.SelfHeal(ctx)
		if adapter.SubmittedCount() == len(sizes) {
			break
		}
		sizes = append(sizes, adapter.Submitted()[adapter.SubmittedCount()-1].Size)
	}

	require.Len(t, sizes, 4, "three downgrades then stop")
	for i := 1; i < len(sizes); i++ {
		assert.True(t, sizes[i].LessThan(sizes[i-1]), "sizes must strictly shrink")
		assert.True(t, sizes[i].Mod(dec(100)).IsZero(), "every retry stays lot-aligned")
	}

	// Fourth rejection exceeds the downgrade budget.
	last := adapter.Submitted()[adapter.SubmittedCount()-1]
	b.OnOrderStatus(ctx, mock.Reject(last))
	clock.Advance(5 * time.Second)
	b.SelfHeal(ctx)

	assert.Equal(t, 4, adapter.SubmittedCount(), "abandoned order must not resubmit")
	assert.False(t, b.HasRuntimeBacklog())
	assert.True(t, b.VirtualSpent().IsZero())
	assert.Contains(t, alarm.Titles(), "BUY abandoned")
	assert.Equal(t, core.AlarmError, alarm.Severity("BUY abandoned"))
}

// A throttled heartbeat that never fetches a snapshot must not count as a
// snapshot failure against buffered retries; only attempted fetches do.
func TestRetrySnapshotFailCountsOnlyAttemptedFetches(t *testing.T) {
	b, adapter, clock, _ := newTestBroker(t)
	ctx := context.Background()

	adapter.SetCash(dec(100000))
	adapter.SetPrice("SHSE.600000", dec(10))
	h := b.OrderTargetValue(ctx, "SHSE.600000", dec(2000))
	require.NotNil(t, h)
	b.OnOrderStatus(ctx, mock.Reject(h))

	// Keep the source order visible so the retry stays buffered.
	adapter.SetPending(&core.PendingOrder{
		ID:            h.ID,
		Symbol:        "SHSE.600000",
		Side:          core.SideBuy,
		RemainingSize: h.Size,
	})
	clock.Advance(5 * time.Second)
	b.SelfHeal(ctx)
	require.Equal(t, 1, b.tracker.RetryCount())
	assert.Equal(t, 0, b.tracker.Retries()[0].SnapshotFails)

	// Throttled tick: below the snapshot min interval, nothing fetched.
	clock.Advance(1500 * time.Millisecond)
	b.SelfHeal(ctx)
	assert.Equal(t, 0, b.tracker.Retries()[0].SnapshotFails)

	// A fetch that actually fails does count.
	adapter.SetSnapshotErr(errors.New("venue query timeout"))
	clock.Advance(5 * time.Second)
	b.SelfHeal(ctx)
	assert.Equal(t, 1, b.tracker.Retries()[0].SnapshotFails)
}

// Consecutive snapshot failures open uncertain mode: new BUYs park, replay
// is suppressed, and pending-order queries degrade to "unknown".
func TestUncertainModeParksBuys(t *testing.T) {
	b, adapter, clock, alarm := newTestBroker(t)
	ctx := context.Background()

	adapter.SetCash(dec(100000))
	adapter.SetPrice("SHSE.600000", dec(10))
	adapter.SetPrice("SHSE.600519", dec(10))

	h := b.OrderTargetValue(ctx, "SHSE.600000", dec(2000))
	require.NotNil(t, h)

	adapter.SetSnapshotErr(errors.New("venue query timeout"))
	for i := 0; i < 3; i++ {
		clock.Advance(30 * time.Second)
		b.SelfHeal(ctx)
	}
	require.True(t, b.InUncertainMode())
	assert.Contains(t, alarm.Titles(), "Uncertain mode")
	assert.Equal(t, core.AlarmCritical, alarm.Severity("Uncertain mode"))

	parked := b.OrderTargetPercent(ctx, "SHSE.600519", dec(0.1))
	require.NotNil(t, parked)
	assert.True(t, parked.IsVirtualDeferred())
	assert.Equal(t, 1, adapter.SubmittedCount())

	// Replay stays suppressed while uncertain.
	b.ProcessDeferredOrders(ctx, false)
	assert.Equal(t, 1, adapter.SubmittedCount())

	// Tri-state visibility: the live buy is known, the parked symbol is not.
	yes := b.HasPendingOrder("600000", core.SideBuy)
	require.NotNil(t, yes)
	assert.True(t, *yes)
	assert.Nil(t, b.HasPendingOrder("SHSE.600519", core.SideBuy))

	// TTL expires and the snapshot recovers; the parked intent replays.
	adapter.SetSnapshotErr(nil)
	adapter.SetPending(&core.PendingOrder{
		ID:            h.ID,
		Symbol:        "SHSE.600000",
		Side:          core.SideBuy,
		RemainingSize: h.Size,
	})
	clock.Advance(61 * time.Second)
	b.SelfHeal(ctx)

	require.False(t, b.InUncertainMode())
	require.Equal(t, 2, adapter.SubmittedCount())
	replayed := adapter.Submitted()[1]
	assert.Equal(t, "SHSE.600519", replayed.Symbol)
	assert.True(t, replayed.Size.Equal(dec(1000)), "got %s", replayed.Size)

	no := b.HasPendingOrder("SHSE.300750", core.SideBuy)
	require.NotNil(t, no)
	assert.False(t, *no)
}

// Crossing a calendar-day boundary with leftover in-flight state resets the
// queues and reservations before they poison the new session.
func TestDayRolloverResetsStaleState(t *testing.T) {
	b, adapter, clock, alarm := newTestBroker(t)
	ctx := context.Background()

	day1 := time.Date(2026, 3, 2, 15, 0, 0, 0, time.UTC)
	b.SetDatetime(ctx, day1)

	adapter.SetCash(dec(100000))
	adapter.SetPrice("SHSE.600000", dec(10))
	h := b.OrderTargetValue(ctx, "SHSE.600000", dec(2000))
	require.NotNil(t, h)
	require.True(t, b.VirtualSpent().IsPositive())
	require.True(t, b.HasRuntimeBacklog())

	day2 := day1.Add(18 * time.Hour)
	clock.Advance(18 * time.Hour)
	b.SetDatetime(ctx, day2)

	assert.True(t, b.VirtualSpent().IsZero())
	assert.False(t, b.HasRuntimeBacklog())
	assert.False(t, b.InUncertainMode())
	assert.Contains(t, alarm.Titles(), "Stale state reset")
}

// Same-day heartbeats never reset, even with backlog present.
func TestSameDayHeartbeatKeepsState(t *testing.T) {
	b, adapter, clock, _ := newTestBroker(t)
	ctx := context.Background()

	t0 := time.Date(2026, 3, 2, 9, 30, 0, 0, time.UTC)
	b.SetDatetime(ctx, t0)

	adapter.SetCash(dec(100000))
	adapter.SetPrice("SHSE.600000", dec(10))
	require.NotNil(t, b.OrderTargetValue(ctx, "SHSE.600000", dec(2000)))
	adapter.SetPending(&core.PendingOrder{
		ID:            adapter.Submitted()[0].ID,
		Symbol:        "SHSE.600000",
		Side:          core.SideBuy,
		RemainingSize: dec(200),
	})

	clock.Advance(30 * time.Second)
	b.SetDatetime(ctx, t0.Add(30*time.Second))

	assert.True(t, b.HasRuntimeBacklog())
	assert.True(t, b.VirtualSpent().IsPositive())
}

// Pending sells missing from the venue snapshot are cleared only after the
// hysteresis thresholds (count and wall-clock window) are both met.
func TestPendingSellClearHysteresis(t *testing.T) {
	b, adapter, clock, alarm := newTestBroker(t)
	ctx := context.Background()

	adapter.SetPrice("SHSE.600000", dec(10))
	adapter.SetPosition("SHSE.600000", dec(1000))
	sell := b.SmartSell(ctx, "SHSE.600000", dec(500), dec(10))
	require.NotNil(t, sell)

	// First empty snapshot: below both thresholds.
	clock.Advance(5 * time.Second)
	b.SelfHeal(ctx)
	got := b.HasPendingOrder("SHSE.600000", core.SideSell)
	require.NotNil(t, got)
	assert.True(t, *got, "one empty snapshot must not clear")

	// Second empty snapshot past the window: cleared.
	clock.Advance(25 * time.Second)
	b.SelfHeal(ctx)
	got = b.HasPendingOrder("SHSE.600000", core.SideSell)
	require.NotNil(t, got)
	assert.False(t, *got)
	assert.Contains(t, alarm.Titles(), "Pending sells cleared")
}

// A snapshot that names its sell ids reconciles by exact set difference,
// with no hysteresis needed.
func TestSellReconcileWithIDsIsExact(t *testing.T) {
	b, adapter, clock, _ := newTestBroker(t)
	ctx := context.Background()

	adapter.SetPrice("SHSE.600000", dec(10))
	adapter.SetPosition("SHSE.600000", dec(1000))
	s1 := b.SmartSell(ctx, "SHSE.600000", dec(200), dec(10))
	s2 := b.SmartSell(ctx, "SHSE.600000", dec(300), dec(10))
	require.NotNil(t, s1)
	require.NotNil(t, s2)

	adapter.SetPending(&core.PendingOrder{
		ID:            s2.ID,
		Symbol:        "SHSE.600000",
		Side:          core.SideSell,
		RemainingSize: dec(300),
	})
	clock.Advance(5 * time.Second)
	b.SelfHeal(ctx)

	got := b.HasPendingOrder("SHSE.600000", core.SideSell)
	require.NotNil(t, got)
	assert.True(t, *got, "the surviving sell must remain tracked")
	b.OnOrderStatus(ctx, mock.Fill(s2, dec(10)))
	got = b.HasPendingOrder("SHSE.600000", core.SideSell)
	require.NotNil(t, got)
	assert.False(t, *got, "the ghost sell must have been dropped")
}

// Re-issuing the same target is a no-op while the first order is in
// flight: local in-flight size counts toward the expected position.
func TestRepeatTargetingDoesNotDouble(t *testing.T) {
	b, adapter, _, _ := newTestBroker(t)
	ctx := context.Background()

	adapter.SetCash(dec(100000))
	adapter.SetPrice("SHSE.600000", dec(10))

	h := b.OrderTargetPercent(ctx, "SHSE.600000", dec(0.5))
	require.NotNil(t, h)
	assert.True(t, h.Size.Equal(dec(5000)), "got %s", h.Size)

	again := b.OrderTargetPercent(ctx, "SHSE.600000", dec(0.5))
	assert.Nil(t, again)
	assert.Equal(t, 1, adapter.SubmittedCount())
}

// Cancel and fill both refund the reservation exactly once.
func TestReservationRefundOnTerminal(t *testing.T) {
	b, adapter, _, _ := newTestBroker(t)
	ctx := context.Background()

	adapter.SetCash(dec(100000))
	adapter.SetPrice("SHSE.600000", dec(10))

	h := b.OrderTargetValue(ctx, "SHSE.600000", dec(2000))
	require.NotNil(t, h)
	spent := b.VirtualSpent()
	require.True(t, spent.IsPositive())

	b.OnOrderStatus(ctx, mock.Fill(h, dec(10)))
	assert.True(t, b.VirtualSpent().IsZero())

	// Redelivered fill must not drive virtual_spent negative.
	b.OnOrderStatus(ctx, mock.Fill(h, dec(10)))
	assert.True(t, b.VirtualSpent().IsZero())
}

// A risk lock suppresses BUY legs under any alias while SELLs pass.
func TestRiskLockBlocksBuysOnly(t *testing.T) {
	b, adapter, _, _ := newTestBroker(t)
	ctx := context.Background()

	adapter.SetCash(dec(100000))
	adapter.SetPrice("600000", dec(10))
	adapter.SetPosition("600000", dec(1000))

	b.LockForRisk("SHSE.600000")

	assert.Nil(t, b.OrderTargetPercent(ctx, "600000", dec(0.5)))
	assert.Equal(t, 0, adapter.SubmittedCount())

	sell := b.SmartSell(ctx, "600000", dec(500), dec(10))
	assert.NotNil(t, sell)

	b.UnlockForRisk("600000")
	buy := b.SmartBuy(ctx, "600000", dec(100), dec(10))
	assert.NotNil(t, buy)
}

// Full liquidation passes odd lots through; partial sells floor to the lot.
func TestOddLotLiquidation(t *testing.T) {
	b, adapter, _, _ := newTestBroker(t)
	ctx := context.Background()

	adapter.SetCash(dec(0))
	adapter.SetPrice("SHSE.600000", dec(10))
	adapter.SetPosition("SHSE.600000", dec(850))

	h := b.OrderTargetValue(ctx, "SHSE.600000", dec(0))
	require.NotNil(t, h)
	assert.Equal(t, core.SideSell, h.Side)
	assert.True(t, h.Size.Equal(dec(850)), "full liquidation keeps the odd lot")

	adapter.SetPosition("SHSE.600000", dec(850))
	partial := b.SmartSell(ctx, "SHSE.600000", dec(250), dec(10))
	require.NotNil(t, partial)
	assert.True(t, partial.Size.Equal(dec(200)), "partial sells floor to the lot")
}

// An active buy absent from consecutive snapshots is refunded as a ghost.
func TestGhostBuyRefund(t *testing.T) {
	b, adapter, clock, _ := newTestBroker(t)
	ctx := context.Background()

	adapter.SetCash(dec(100000))
	adapter.SetPrice("SHSE.600000", dec(10))
	require.NotNil(t, b.OrderTargetValue(ctx, "SHSE.600000", dec(2000)))
	require.True(t, b.VirtualSpent().IsPositive())

	clock.Advance(21 * time.Second)
	b.SelfHeal(ctx)
	assert.True(t, b.VirtualSpent().IsPositive(), "first miss must not refund")

	clock.Advance(21 * time.Second)
	b.SelfHeal(ctx)
	assert.True(t, b.VirtualSpent().IsZero())
	assert.False(t, b.HasRuntimeBacklog())
}

// Once every queue drains and stays empty past the grace window, the
// strategy notifier fires exactly once.
func TestDeferredPlaceholderReclaim(t *testing.T) {
	b, adapter, clock, _ := newTestBroker(t)
	ctx := context.Background()
	notifier := &recordingNotifier{}
	b.SetNotifier(notifier)

	adapter.SetCash(dec(100000))
	adapter.SetPrice("SHSE.600000", dec(10))
	h := b.OrderTargetValue(ctx, "SHSE.600000", dec(2000))
	require.NotNil(t, h)

	b.OnOrderStatus(ctx, mock.Fill(h, dec(10)))
	require.False(t, b.HasRuntimeBacklog())

	clock.Advance(2 * time.Second)
	b.SelfHeal(ctx)
	assert.Equal(t, 0, notifier.Cleared(), "grace window not yet elapsed")

	clock.Advance(6 * time.Second)
	b.SelfHeal(ctx)
	assert.Equal(t, 1, notifier.Cleared())

	clock.Advance(6 * time.Second)
	b.SelfHeal(ctx)
	assert.Equal(t, 1, notifier.Cleared(), "notifier fires once per drain")
}

// Cash-feed failure degrades the strategy gate and falls back to last
// known cash until a sync succeeds.
func TestCashDegradedWindow(t *testing.T) {
	b, adapter, _, _ := newTestBroker(t)
	ctx := context.Background()

	adapter.SetCash(dec(5000))
	require.True(t, b.GetCash(ctx).Equal(dec(5000)))
	assert.True(t, b.PreStrategyCheck())

	adapter.SetCashErr(errors.New("connection reset"))
	got := b.GetCash(ctx)
	assert.True(t, got.Equal(dec(5000)), "degraded reads fall back to last known cash")
	assert.False(t, b.PreStrategyCheck())

	adapter.SetCashErr(nil)
	adapter.SetCash(dec(7000))
	require.NoError(t, b.SyncBalance(ctx))
	assert.True(t, b.PreStrategyCheck())
	assert.True(t, b.GetCash(ctx).Equal(dec(7000)))
}

// GetRebalanceCash subtracts reservations already promised to parked
// intents so a rebalance pass cannot double-commit.
func TestRebalanceCashSubtractsParkedIntents(t *testing.T) {
	b, adapter, _, _ := newTestBroker(t)
	ctx := context.Background()

	adapter.SetCash(dec(10000))
	adapter.SetPrice("SHSE.600000", dec(10))
	adapter.SetPrice("SHSE.600519", dec(10))
	adapter.SetPosition("SHSE.600000", dec(1000))

	sell := b.SmartSell(ctx, "SHSE.600000", dec(500), dec(10))
	require.NotNil(t, sell)
	adapter.SetCash(dec(100))
	parked := b.OrderTargetValue(ctx, "SHSE.600519", dec(1000))
	require.NotNil(t, parked)
	require.True(t, parked.IsVirtualDeferred())

	got := b.GetRebalanceCash(ctx)
	plain := b.GetCash(ctx)
	assert.True(t, got.LessThan(plain),
		"rebalance cash %s must be below plain cash %s", got, plain)
}

// Cash-capped downgrade: an unfundable BUY with no sells in flight shrinks
// to what available cash covers instead of deferring.
func TestBuyDowngradesToAvailableCash(t *testing.T) {
	b, adapter, _, _ := newTestBroker(t)
	ctx := context.Background()

	adapter.SetCash(dec(5000))
	adapter.SetPrice("SHSE.600000", dec(10))

	h := b.OrderTargetValue(ctx, "SHSE.600000", dec(100000))
	require.NotNil(t, h)
	assert.False(t, h.IsVirtualDeferred())
	// 5000 / (10 * multiplier) = 498.x -> floored to 400.
	assert.True(t, h.Size.Equal(dec(400)), "got %s", h.Size)
	assert.False(t, b.HasDeferredOrders())
}

func TestForceResetState(t *testing.T) {
	b, adapter, _, _ := newTestBroker(t)
	ctx := context.Background()

	adapter.SetCash(dec(100000))
	adapter.SetPrice("SHSE.600000", dec(10))
	require.NotNil(t, b.OrderTargetValue(ctx, "SHSE.600000", dec(2000)))
	require.True(t, b.HasRuntimeBacklog())

	require.NoError(t, b.ForceResetState())
	assert.False(t, b.HasRuntimeBacklog())
	assert.True(t, b.VirtualSpent().IsZero())
}
