package broker

import (
	"context"
	"time"

	"github.com/failsafe-go/failsafe-go"

	"live_broker/internal/core"
	"live_broker/internal/tracker"
)

// SelfHeal is the heartbeat maintenance pass: snapshot fetch (throttled,
// outside the lock), three-phase reconciliation, uncertain-mode accounting
// and gated deferred replay. Safe to call on every heartbeat; internal
// throttles keep the venue load bounded.
func (b *Broker) SelfHeal(ctx context.Context) {
	b.selfHeal(ctx, false)
}

func (b *Broker) selfHeal(ctx context.Context, force bool) {
	now := b.now()

	b.mu.Lock()
	if !force && !b.lastSelfHeal.IsZero() && now.Sub(b.lastSelfHeal) < b.cfg.SelfHealMinInterval() {
		b.mu.Unlock()
		return
	}
	b.lastSelfHeal = now
	needSnapshot := b.tracker.HasBacklog() &&
		(b.lastSnapshotAt.IsZero() || now.Sub(b.lastSnapshotAt) >= b.cfg.SnapshotMinInterval())
	b.mu.Unlock()

	var snap []*core.PendingOrder
	snapOK := false
	enteredUncertain := false
	if needSnapshot {
		fetched, err := b.fetchSnapshot(ctx)
		now = b.now()

		b.mu.Lock()
		if err != nil {
			b.snapshotFailCount++
			if b.snapshotFailSince.IsZero() {
				b.snapshotFailSince = now
			}
			if b.metrics != nil {
				b.metrics.AddSnapshotFailure(ctx)
			}
			b.logger.Warn("Pending-order snapshot failed",
				"consecutive_fails", b.snapshotFailCount, "error", err)
			if b.snapshotFailCount >= b.cfg.UncertainFails && !b.uncertainLocked(now) {
				b.uncertainUntil = now.Add(b.cfg.UncertainTTL())
				enteredUncertain = true
			}
		} else {
			snap = fetched
			snapOK = true
			b.lastSnapshotAt = now
			b.snapshotFailCount = 0
			b.snapshotFailSince = time.Time{}
		}
	} else {
		b.mu.Lock()
	}

	b.reconcileLocked(ctx, snap, snapOK, needSnapshot, now)

	// Heartbeat replay requires positive evidence that sell proceeds have
	// settled: the latest snapshot showed no pending sells, the local set
	// agrees, and the broker is not uncertain.
	var replayable []*tracker.DeferredBuy
	if b.tracker.HasDeferred() &&
		!b.uncertainLocked(now) &&
		!b.tracker.HasPendingSells() &&
		b.lastSnapshotNoSells &&
		(b.lastReplayAt.IsZero() || now.Sub(b.lastReplayAt) >= b.cfg.DeferredReplayInterval()) {
		replayable = b.tracker.DrainDeferred()
		b.lastReplayAt = now
	}

	suppressed := b.uncertainLocked(now) && b.tracker.HasDeferred()
	deferredDepth := b.tracker.DeferredCount()
	b.updateGaugesLocked()
	b.mu.Unlock()

	if enteredUncertain {
		b.logger.Error("Entering uncertain mode, BUY intents will be parked",
			"ttl", b.cfg.UncertainTTL().String())
		b.alarmEvent(ctx, core.AlarmCritical, "Uncertain mode",
			"Consecutive snapshot failures; order state cannot be verified",
			map[string]string{"ttl": b.cfg.UncertainTTL().String()})
	}
	if suppressed && b.uncertainLimiter.AllowN(now, 1) {
		b.logger.Warn("Deferred replay suppressed by uncertain mode", "deferred", deferredDepth)
	}

	if len(replayable) > 0 {
		b.dispatchDeferred(ctx, replayable)
	}
}

// ProcessDeferredOrders replays the deferred queue now. With
// assumeSellCleared the pending-sell and uncertain gates are bypassed: the
// caller (the sell-filled hook, or a strategy that just observed its sells
// fill) asserts the blocking condition is resolved. Replayed intents that
// still cannot proceed simply park themselves again.
func (b *Broker) ProcessDeferredOrders(ctx context.Context, assumeSellCleared bool) {
	now := b.now()

	b.mu.Lock()
	if !b.tracker.HasDeferred() {
		b.mu.Unlock()
		return
	}
	if !assumeSellCleared && (b.uncertainLocked(now) || b.tracker.HasPendingSells()) {
		b.mu.Unlock()
		return
	}
	entries := b.tracker.DrainDeferred()
	b.lastReplayAt = now
	b.updateGaugesLocked()
	b.mu.Unlock()

	b.dispatchDeferred(ctx, entries)
}

// dispatchDeferred replays parked intents through the full translation
// path, so price, NAV, risk locks and cash are all re-evaluated at dispatch
// time. Transient failures re-queue with an incremented fail count; policy
// drops (risk lock, zero delta) are final.
func (b *Broker) dispatchDeferred(ctx context.Context, entries []*tracker.DeferredBuy) {
	for _, d := range entries {
		_, err := b.orderTarget(ctx, d.Symbol, d.Mode, d.Target)
		if err == nil {
			continue
		}
		d.FailCount++
		b.logger.Warn("Deferred replay failed, re-queued",
			"symbol", d.Symbol, "fail_count", d.FailCount, "error", err)
		b.mu.Lock()
		b.tracker.PushDeferred(d, false)
		b.updateGaugesLocked()
		b.mu.Unlock()
	}
}

// fetchSnapshot pulls the authoritative pending-order list with bounded
// retry. Never called with the ledger lock held.
func (b *Broker) fetchSnapshot(ctx context.Context) ([]*core.PendingOrder, error) {
	return b.snapshotExec.GetWithExecution(func(_ failsafe.Execution[[]*core.PendingOrder]) ([]*core.PendingOrder, error) {
		return b.adapter.FetchPendingOrders(ctx)
	})
}
