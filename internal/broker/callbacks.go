package broker

import (
	"context"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"live_broker/internal/core"
	"live_broker/internal/tracker"
)

// OnOrderStatus ingests one venue status event, already normalized into an
// OrderHandle by the adapter's TranslateRawStatus. Events are idempotent: a
// terminal state already recorded in the order-state memory is a no-op, so
// venue redeliveries cannot double-refund or double-retry.
func (b *Broker) OnOrderStatus(ctx context.Context, h *core.OrderHandle) {
	if h == nil || h.IsVirtualDeferred() {
		return
	}
	now := b.now()

	// Memory is written before the ledger lock; HasPendingOrder reads it
	// during uncertain mode without touching the tracker.
	prev := b.memory.Observe(h, now)
	if !h.IsTerminal() {
		return
	}
	if prev != nil && prev.Terminal {
		b.logger.Debug("Duplicate terminal event ignored", "order_id", h.ID)
		return
	}

	b.mu.Lock()
	switch h.Side {
	case core.SideBuy:
		b.onBuyTerminalLocked(ctx, h, now)
	case core.SideSell:
		b.onSellTerminalLocked(ctx, h)
	}
	b.updateGaugesLocked()
	b.mu.Unlock()

	if h.Side == core.SideSell && h.Completed {
		b.scheduleSellFilledHook()
	}
}

func (b *Broker) onBuyTerminalLocked(ctx context.Context, h *core.OrderHandle, now time.Time) {
	rec := b.tracker.PopActiveBuy(h.ID)
	if rec != nil {
		// The reservation is refunded in full on every terminal state; a
		// fill converts it into position, a cancel or reject releases it.
		b.ledger.Refund(b.ledger.Reservation(rec.Size, rec.Price))
	}

	switch {
	case h.Completed:
		b.logger.Info("BUY filled",
			"order_id", h.ID, "symbol", h.Symbol,
			"filled", h.FilledSize, "avg_price", h.AvgPrice)
	case h.Canceled:
		b.logger.Info("BUY canceled", "order_id", h.ID, "symbol", h.Symbol)
		b.releaseRetryLocked(ctx, h.ID, now)
	case h.Rejected:
		if b.metrics != nil {
			b.metrics.AddRejected(ctx)
		}
		if rec == nil {
			b.logger.Warn("Rejection for unknown BUY", "order_id", h.ID, "symbol", h.Symbol)
			return
		}
		b.queueRejectionRetryLocked(ctx, rec, now)
	}
}

func (b *Broker) onSellTerminalLocked(ctx context.Context, h *core.OrderHandle) {
	b.tracker.RemovePendingSell(h.ID)

	switch {
	case h.Completed:
		b.logger.Info("SELL filled",
			"order_id", h.ID, "symbol", h.Symbol,
			"filled", h.FilledSize, "avg_price", h.AvgPrice)
	case h.Canceled, h.Rejected:
		// Deferred buys were parked against cash this sell was expected to
		// free. That cash is not coming, so the plan is stale.
		if n := b.tracker.ClearDeferred(); n > 0 {
			b.logger.Warn("Cleared deferred buys after failed SELL",
				"order_id", h.ID, "symbol", h.Symbol, "cleared", n)
			b.alarmEvent(ctx, core.AlarmWarning, "Deferred buys dropped",
				"A pending SELL failed; parked BUY intents were discarded",
				map[string]string{"symbol": h.Symbol, "cleared": strconv.Itoa(n)})
		}
	}
}

// queueRejectionRetryLocked downsizes a rejected BUY and parks it until the
// snapshot confirms the source order is really gone. The first downgrade is
// cash-derived, later ones step down one lot each; after the configured
// number of downgrades the order is abandoned.
func (b *Broker) queueRejectionRetryLocked(ctx context.Context, rec *tracker.ActiveBuy, now time.Time) {
	if rec.Retries >= b.cfg.MaxRejectionDowngrades {
		b.logger.Warn("BUY abandoned after max rejection downgrades",
			"order_id", rec.OrderID, "symbol", rec.Symbol, "retries", rec.Retries)
		b.alarmEvent(ctx, core.AlarmError, "BUY abandoned",
			"Order kept rejecting after repeated downgrades",
			map[string]string{"symbol": rec.Symbol, "order_id": rec.OrderID})
		return
	}

	lot := decimal.NewFromInt(rec.LotSize)
	if rec.LotSize <= 0 {
		lot = decimal.NewFromInt(b.cfg.LotSize)
	}
	sizeCap := rec.Size.Sub(lot)

	cashNow := b.ledger.Available(b.ledger.LastKnownCash())
	newSize := cashNow.Div(rec.Price.Mul(b.ledger.SafetyMultiplier()))
	if newSize.GreaterThan(sizeCap) {
		newSize = sizeCap
	}
	if !newSize.IsPositive() {
		newSize = sizeCap
	}
	newSize = b.floorLot(newSize)
	if !newSize.IsPositive() {
		b.logger.Warn("BUY rejection not retryable, downgrade rounds to zero",
			"order_id", rec.OrderID, "symbol", rec.Symbol)
		return
	}

	b.tracker.AddRetry(&tracker.BufferedRetry{
		SourceID: rec.OrderID,
		Symbol:   rec.Symbol,
		NewSize:  newSize,
		Price:    rec.Price,
		LotSize:  rec.LotSize,
		Attempt:  rec.Retries + 1,
		QueuedAt: now,
	})
	if b.metrics != nil {
		b.metrics.AddRetryQueued(ctx)
	}
	b.logger.Warn("BUY rejected, downgraded retry buffered",
		"order_id", rec.OrderID, "symbol", rec.Symbol,
		"old_size", rec.Size, "new_size", newSize, "attempt", rec.Retries+1)
}

// releaseRetryLocked resubmits a buffered retry once its source order is
// confirmed canceled. During uncertain mode the release is gated by
// configuration: the cancel event itself is proof the order is gone, so the
// default is to release rather than deadlock the retry behind a snapshot
// that keeps failing.
func (b *Broker) releaseRetryLocked(ctx context.Context, sourceID string, now time.Time) {
	if b.uncertainLocked(now) &&
		b.cfg.ReleaseRetryOnCancelInUncertain != nil &&
		!*b.cfg.ReleaseRetryOnCancelInUncertain {
		return
	}
	r := b.tracker.PopRetry(sourceID)
	if r == nil {
		return
	}
	b.submitRetryLocked(ctx, r)
}

// submitRetryLocked turns a buffered retry into a live order. Submission
// failure re-buffers the retry for the next self-heal pass.
func (b *Broker) submitRetryLocked(ctx context.Context, r *tracker.BufferedRetry) {
	h, err := b.submitBuyLocked(ctx, r.Symbol, r.NewSize, r.Price, r.Attempt)
	if err != nil || h == nil {
		r.SubmitFails++
		b.tracker.AddRetry(r)
		b.logger.Warn("Retry submission failed, re-buffered",
			"source_id", r.SourceID, "symbol", r.Symbol,
			"submit_fails", r.SubmitFails, "error", err)
		return
	}
	b.logger.Info("Buffered retry released",
		"source_id", r.SourceID, "order_id", h.ID,
		"symbol", r.Symbol, "size", r.NewSize, "attempt", r.Attempt)
}

// scheduleSellFilledHook runs balance sync plus an unconditional deferred
// replay off the callback goroutine. A filled sell is direct evidence that
// cash was freed, so the replay does not wait for snapshot confirmation.
func (b *Broker) scheduleSellFilledHook() {
	if b.hookPool == nil {
		return
	}
	b.hookPool.Submit(func() {
		ctx := context.Background()
		if err := b.SyncBalance(ctx); err != nil {
			b.logger.Warn("Sell-filled hook balance sync failed", "error", err)
		}
		b.ProcessDeferredOrders(ctx, true)
	})
}
