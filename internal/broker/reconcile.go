package broker

import (
	"context"
	"strconv"
	"time"

	"live_broker/internal/core"
	"live_broker/internal/symbols"
)

// reconcileLocked aligns the local tables with one venue snapshot. The
// snapshot is authoritative when present and id-bearing; anything weaker
// (no snapshot, entries without ids) degrades each phase toward abstention
// rather than toward clearing local state. attempted distinguishes a fetch
// that failed from a tick that never fetched (throttled, no backlog).
func (b *Broker) reconcileLocked(ctx context.Context, snap []*core.PendingOrder, snapOK, attempted bool, now time.Time) {
	b.reconcileSellsLocked(ctx, snap, snapOK, now)
	b.reconcileBuysLocked(snap, snapOK, now)
	b.reconcileRetriesLocked(ctx, snap, snapOK, attempted, now)
	b.reconcilePlaceholderLocked(now)
}

// Phase 1: pending sells. With ids, the set difference is exact. Without
// any snapshot sells, local entries are cleared only after the configured
// number of consecutive empty snapshots over a minimum wall-clock window.
func (b *Broker) reconcileSellsLocked(ctx context.Context, snap []*core.PendingOrder, snapOK bool, now time.Time) {
	if !snapOK {
		return
	}

	var snapSells []*core.PendingOrder
	for _, p := range snap {
		if p.Side == core.SideSell && p.RemainingSize.IsPositive() {
			snapSells = append(snapSells, p)
		}
	}

	if len(snapSells) > 0 {
		b.lastSnapshotNoSells = false
		b.sellEmptyCount = 0
		b.sellEmptySince = time.Time{}

		allIDs := true
		keep := make(map[string]struct{}, len(snapSells))
		for _, p := range snapSells {
			if p.ID == "" {
				allIDs = false
				break
			}
			keep[p.ID] = struct{}{}
		}
		if !allIDs {
			// Venue reports sells but cannot name them; abstain.
			return
		}
		if dropped := b.tracker.RetainPendingSells(keep); dropped > 0 {
			b.logger.Info("Reconciled ghost pending sells", "dropped", dropped)
		}
		return
	}

	b.lastSnapshotNoSells = true
	if !b.tracker.HasPendingSells() {
		b.sellEmptyCount = 0
		b.sellEmptySince = time.Time{}
		return
	}

	b.sellEmptyCount++
	if b.sellEmptySince.IsZero() {
		b.sellEmptySince = now
	}
	if b.sellEmptyCount >= b.cfg.SellClearEmptySnapshots &&
		now.Sub(b.sellEmptySince) >= b.cfg.SellClearEmptyWindow() {
		n := b.tracker.ClearPendingSells()
		b.sellEmptyCount = 0
		b.sellEmptySince = time.Time{}
		b.logger.Warn("Cleared pending sells missing from venue snapshots", "cleared", n)
		b.alarmEvent(ctx, core.AlarmWarning, "Pending sells cleared",
			"Local pending sells were absent from consecutive venue snapshots",
			map[string]string{"cleared": strconv.Itoa(n)})
	}
}

// Phase 2: active buys. A buy absent from the snapshot is a ghost whose
// reservation is leaking; it is refunded only after per-order hysteresis on
// both snapshot count and age, so a just-submitted order racing the
// snapshot is never cleared.
func (b *Broker) reconcileBuysLocked(snap []*core.PendingOrder, snapOK bool, now time.Time) {
	if !snapOK {
		return
	}

	snapIDs := make(map[string]struct{})
	var anonBuySyms []symbols.AliasSet
	for _, p := range snap {
		if p.ID != "" {
			snapIDs[p.ID] = struct{}{}
		} else if p.Side == core.SideBuy {
			anonBuySyms = append(anonBuySyms, symbols.Aliases(p.Symbol))
		}
	}

	for _, rec := range b.tracker.ActiveBuys() {
		seen := false
		if _, ok := snapIDs[rec.OrderID]; ok {
			seen = true
		} else {
			recAliases := symbols.Aliases(rec.Symbol)
			for _, anon := range anonBuySyms {
				if recAliases.Intersects(anon) {
					seen = true
					break
				}
			}
		}

		if seen {
			rec.MissCount = 0
			rec.FirstMissAt = time.Time{}
			continue
		}

		rec.MissCount++
		if rec.FirstMissAt.IsZero() {
			rec.FirstMissAt = now
		}
		window := b.cfg.BuyClearEmptyWindow()
		if rec.MissCount >= b.cfg.BuyClearEmptySnapshots &&
			now.Sub(rec.FirstMissAt) >= window &&
			now.Sub(rec.CreatedAt) >= window {
			b.tracker.PopActiveBuy(rec.OrderID)
			b.ledger.Refund(b.ledger.Reservation(rec.Size, rec.Price))
			b.logger.Warn("Refunded ghost active buy",
				"order_id", rec.OrderID, "symbol", rec.Symbol, "size", rec.Size)
		}
	}
}

// Phase 3: buffered retries. Each retry waits for the snapshot to prove its
// source order is gone; a source still pending only warns (once) after the
// configured timeout, never force-releases.
func (b *Broker) reconcileRetriesLocked(ctx context.Context, snap []*core.PendingOrder, snapOK, attempted bool, now time.Time) {
	for _, r := range b.tracker.Retries() {
		if !snapOK {
			if attempted {
				r.SnapshotFails++
			}
			continue
		}

		pending := false
		for _, p := range snap {
			if p.ID != "" {
				if p.ID == r.SourceID {
					pending = true
					break
				}
				continue
			}
			// Anonymous entry: conservatively treat a same-symbol BUY as
			// possibly being the source order.
			if p.Side == core.SideBuy && symbols.Match(p.Symbol, r.Symbol) {
				pending = true
				break
			}
		}

		if pending {
			if !r.Warned && now.Sub(r.QueuedAt) >= b.cfg.RetryWarnTimeout() {
				r.Warned = true
				b.logger.Warn("Buffered retry stuck behind live source order",
					"source_id", r.SourceID, "symbol", r.Symbol,
					"queued_for", now.Sub(r.QueuedAt).String())
			}
			continue
		}

		// Snapshot is definitive: the source order is gone. During
		// uncertain mode, still require a remembered terminal event.
		if b.uncertainLocked(now) && !b.memory.TerminalFor(r.SourceID) {
			continue
		}
		if popped := b.tracker.PopRetry(r.SourceID); popped != nil {
			b.submitRetryLocked(ctx, popped)
		}
	}
}

// Phase 4: deferred placeholder reclamation. Once no backlog of any kind
// remains for the grace window, the strategy is told its deferred
// placeholders can be forgotten.
func (b *Broker) reconcilePlaceholderLocked(now time.Time) {
	if b.tracker.HasBacklog() {
		b.backlogEmptySince = time.Time{}
		b.deferredNotified = false
		return
	}
	if b.backlogEmptySince.IsZero() {
		b.backlogEmptySince = now
		return
	}
	if b.deferredNotified || now.Sub(b.backlogEmptySince) < b.cfg.DeferredClearGrace() {
		return
	}
	b.deferredNotified = true
	if b.notifier != nil {
		b.notifier.OnDeferredCleared()
	}
	b.logger.Info("Deferred placeholders reclaimed")
}
