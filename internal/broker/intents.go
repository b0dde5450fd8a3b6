package broker

import (
	"context"

	"github.com/shopspring/decimal"

	"live_broker/internal/core"
	"live_broker/internal/tracker"
	apperrors "live_broker/pkg/errors"
)

// OrderTargetPercent moves the holding of symbol toward fraction of NAV.
// Intent methods never surface errors to the strategy: every failure is
// logged (and alarmed where it matters) and reported as a nil handle.
func (b *Broker) OrderTargetPercent(ctx context.Context, symbol string, fraction decimal.Decimal) *core.OrderHandle {
	h, err := b.orderTarget(ctx, symbol, core.IntentTargetPercent, fraction)
	if err != nil {
		b.logger.Warn("Target-percent intent dropped", "symbol", symbol, "error", err)
	}
	return h
}

// OrderTargetValue moves the holding of symbol toward an absolute value.
func (b *Broker) OrderTargetValue(ctx context.Context, symbol string, value decimal.Decimal) *core.OrderHandle {
	h, err := b.orderTarget(ctx, symbol, core.IntentTargetValue, value)
	if err != nil {
		b.logger.Warn("Target-value intent dropped", "symbol", symbol, "error", err)
	}
	return h
}

// orderTarget is the shared translation path. Adapter reads happen before
// the lock; the delta computation, policy gates and submission happen under
// one lock hold so the expected position cannot drift mid-decision.
func (b *Broker) orderTarget(ctx context.Context, symbol string, mode core.IntentMode, target decimal.Decimal) (*core.OrderHandle, error) {
	price, err := b.adapter.FetchPrice(ctx, symbol)
	if err != nil {
		return nil, err
	}
	if !price.IsPositive() {
		b.logger.Info("Skipping intent on non-positive price", "symbol", symbol, "price", price)
		return nil, apperrors.ErrInvalidPrice
	}

	pos, err := b.adapter.FetchPosition(ctx, symbol)
	if err != nil {
		return nil, err
	}
	settled := decimal.Zero
	if pos != nil {
		settled = pos.Size
	}

	cash, err := b.adapter.FetchCash(ctx)
	if err != nil {
		now := b.now()
		b.mu.Lock()
		b.ledger.MarkCashDegraded(now.Add(b.cfg.CashDegradedTTL()))
		b.mu.Unlock()
		return nil, err
	}

	var expected decimal.Decimal
	switch mode {
	case core.IntentTargetPercent:
		nav := cash.Add(settled.Mul(price))
		expected = nav.Mul(target).Div(price)
	case core.IntentTargetValue:
		expected = target.Div(price)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.ledger.SetLastKnownCash(cash)

	expectedSize := settled.
		Add(b.tracker.ActiveBuySizeFor(symbol)).
		Sub(b.tracker.PendingSellSizeFor(symbol))
	delta := expected.Sub(expectedSize)

	switch {
	case delta.IsPositive():
		if b.riskLockedFor(symbol) {
			b.logger.Info("BUY leg suppressed by risk lock", "symbol", symbol)
			return nil, nil
		}
		origin := &tracker.DeferredBuy{Mode: mode, Symbol: symbol, Target: target, CreatedAt: b.now()}
		return b.buyLocked(ctx, symbol, delta, price, cash, origin)
	case delta.IsNegative():
		return b.sellLocked(ctx, symbol, delta.Neg(), price, settled)
	default:
		return nil, nil
	}
}

// SmartBuy submits a sized BUY directly, bypassing target translation but
// keeping every safety gate. Parked intents from this path replay as
// value-mode targets.
func (b *Broker) SmartBuy(ctx context.Context, symbol string, size, price decimal.Decimal) *core.OrderHandle {
	if !price.IsPositive() || !size.IsPositive() {
		return nil
	}
	cash, err := b.adapter.FetchCash(ctx)
	if err != nil {
		now := b.now()
		b.mu.Lock()
		b.ledger.MarkCashDegraded(now.Add(b.cfg.CashDegradedTTL()))
		b.mu.Unlock()
		b.logger.Warn("Direct BUY dropped, cash unavailable", "symbol", symbol, "error", err)
		return nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.ledger.SetLastKnownCash(cash)
	if b.riskLockedFor(symbol) {
		b.logger.Info("BUY leg suppressed by risk lock", "symbol", symbol)
		return nil
	}
	origin := &tracker.DeferredBuy{
		Mode:      core.IntentTargetValue,
		Symbol:    symbol,
		Target:    size.Mul(price),
		CreatedAt: b.now(),
	}
	h, err := b.buyLocked(ctx, symbol, size, price, cash, origin)
	if err != nil {
		b.logger.Warn("Direct BUY dropped", "symbol", symbol, "error", err)
	}
	return h
}

// SmartSell submits a sized SELL directly. SELLs are never deferred and
// never risk-gated.
func (b *Broker) SmartSell(ctx context.Context, symbol string, size, price decimal.Decimal) *core.OrderHandle {
	if !price.IsPositive() || !size.IsPositive() {
		return nil
	}
	pos, err := b.adapter.FetchPosition(ctx, symbol)
	if err != nil {
		b.logger.Warn("Direct SELL dropped, position unavailable", "symbol", symbol, "error", err)
		return nil
	}
	settled := decimal.Zero
	if pos != nil {
		settled = pos.Size
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	h, err := b.sellLocked(ctx, symbol, size, price, settled)
	if err != nil {
		b.logger.Warn("Direct SELL dropped", "symbol", symbol, "error", err)
	}
	return h
}

// buyLocked applies the BUY gates in order: uncertain deferral, cash
// sufficiency (with pending-sell deferral or cash-capped downgrade), lot
// rounding, then submission plus reservation as one atomic step.
func (b *Broker) buyLocked(ctx context.Context, symbol string, size, price, cash decimal.Decimal, origin *tracker.DeferredBuy) (*core.OrderHandle, error) {
	now := b.now()

	if b.uncertainLocked(now) {
		b.tracker.PushDeferred(origin, true)
		if b.metrics != nil {
			b.metrics.AddDeferred(ctx)
		}
		b.logger.Warn("BUY parked, broker in uncertain mode",
			"symbol", symbol, "size", size, "deferred", b.tracker.DeferredCount())
		b.updateGaugesLocked()
		return core.NewDeferredHandle(symbol), nil
	}

	required := b.ledger.Reservation(size, price)
	available := b.ledger.Available(cash)
	downgraded := false
	if available.LessThan(required) {
		if b.tracker.HasPendingSells() {
			// Sells in flight will free cash; park and let the replay path
			// re-derive the size once the proceeds land.
			b.tracker.PushDeferred(origin, false)
			if b.metrics != nil {
				b.metrics.AddDeferred(ctx)
			}
			b.logger.Info("BUY parked behind pending sells",
				"symbol", symbol, "required", required, "available", available)
			b.updateGaugesLocked()
			return core.NewDeferredHandle(symbol), nil
		}
		if !available.IsPositive() {
			b.logger.Warn("BUY dropped, no available cash", "symbol", symbol, "available", available)
			return nil, nil
		}
		size = available.Div(price.Mul(b.ledger.SafetyMultiplier()))
		downgraded = true
	}

	lotted := b.floorLot(size)
	if !lotted.IsPositive() {
		if downgraded {
			b.logger.Warn("BUY dropped, available cash below one lot",
				"symbol", symbol, "available", available)
			return nil, nil
		}
		if size.IsPositive() {
			b.alarmEvent(ctx, core.AlarmWarning, "Lot size too coarse",
				"BUY intent rounds to zero at the configured lot size",
				map[string]string{"symbol": symbol, "raw_size": size.String()})
			return nil, apperrors.ErrLotTooCoarse
		}
		return nil, nil
	}

	return b.submitBuyLocked(ctx, symbol, lotted, price, 0)
}

// submitBuyLocked performs the one adapter call allowed under the lock:
// the submission and its virtual-spent reservation must be atomic so a
// concurrent intent cannot spend the same cash.
func (b *Broker) submitBuyLocked(ctx context.Context, symbol string, size, price decimal.Decimal, retries int) (*core.OrderHandle, error) {
	h, err := b.adapter.SubmitOrder(ctx, symbol, core.SideBuy, size, price)
	if err != nil {
		return nil, err
	}
	if h == nil || h.Rejected {
		if b.metrics != nil {
			b.metrics.AddRejected(ctx)
		}
		b.alarmEvent(ctx, core.AlarmError, "BUY rejected at submission",
			"Venue refused the order synchronously",
			map[string]string{"symbol": symbol, "size": size.String()})
		return nil, apperrors.ErrOrderRejected
	}

	submitted := size
	if h.Size.IsPositive() {
		submitted = h.Size
	}
	b.tracker.AddActiveBuy(&tracker.ActiveBuy{
		OrderID:   h.ID,
		Symbol:    symbol,
		Size:      submitted,
		Price:     price,
		LotSize:   b.cfg.LotSize,
		Retries:   retries,
		CreatedAt: b.now(),
	})
	b.ledger.Reserve(b.ledger.Reservation(submitted, price))
	if b.metrics != nil {
		b.metrics.AddSubmitted(ctx, string(core.SideBuy))
	}
	b.logger.Info("BUY submitted",
		"symbol", symbol, "order_id", h.ID, "size", submitted, "price", price,
		"virtual_spent", b.ledger.VirtualSpent())
	b.updateGaugesLocked()
	return h, nil
}

// sellLocked clamps to the settled position, floors to the lot (except for
// an odd-lot full liquidation) and submits.
func (b *Broker) sellLocked(ctx context.Context, symbol string, size, price, settled decimal.Decimal) (*core.OrderHandle, error) {
	if !settled.IsPositive() {
		b.logger.Info("SELL dropped, nothing settled", "symbol", symbol)
		return nil, nil
	}

	var sellSize decimal.Decimal
	if size.GreaterThanOrEqual(settled) {
		// Full liquidation passes the exact settled size through so odd
		// lots can be closed out.
		sellSize = settled
	} else {
		sellSize = b.floorLot(size)
		if !sellSize.IsPositive() {
			return nil, nil
		}
	}

	h, err := b.adapter.SubmitOrder(ctx, symbol, core.SideSell, sellSize, price)
	if err != nil {
		return nil, err
	}
	if h == nil || h.Rejected {
		if b.metrics != nil {
			b.metrics.AddRejected(ctx)
		}
		b.alarmEvent(ctx, core.AlarmError, "SELL rejected at submission",
			"Venue refused the order synchronously",
			map[string]string{"symbol": symbol, "size": sellSize.String()})
		return nil, apperrors.ErrOrderRejected
	}

	submitted := sellSize
	if h.Size.IsPositive() {
		submitted = h.Size
	}
	b.tracker.AddPendingSell(&tracker.PendingSell{
		OrderID:   h.ID,
		Symbol:    symbol,
		Size:      submitted,
		CreatedAt: b.now(),
	})
	if b.metrics != nil {
		b.metrics.AddSubmitted(ctx, string(core.SideSell))
	}
	b.logger.Info("SELL submitted",
		"symbol", symbol, "order_id", h.ID, "size", submitted, "price", price)
	return h, nil
}

// floorLot rounds size down to a whole number of lots. Venues with
// fractional lots take the raw size.
func (b *Broker) floorLot(size decimal.Decimal) decimal.Decimal {
	if b.adapter.Capabilities().SupportsFractionalLots {
		return size
	}
	lot := decimal.NewFromInt(b.cfg.LotSize)
	return size.Div(lot).Floor().Mul(lot)
}
