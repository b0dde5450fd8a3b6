// Package mock provides an in-memory venue adapter for tests and the demo
// binary. Every input is scriptable: cash, positions, prices, the pending
// snapshot, and submit behavior.
package mock

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"live_broker/internal/core"

	apperrors "live_broker/pkg/errors"
)

// Adapter implements core.IAdapter for testing.
type Adapter struct {
	mu sync.RWMutex

	cash      decimal.Decimal
	positions map[string]*core.Position
	prices    map[string]decimal.Decimal
	pending   []*core.PendingOrder

	cashErr     error
	priceErr    error
	positionErr error
	snapshotErr error

	// When set, the next submissions fail: rejectNext returns a nil handle
	// (venue-level rejection), submitErr returns the error itself.
	rejectNext int
	submitErr  error

	submitted    []*core.OrderHandle
	capabilities core.CapabilitySet
	live         bool
}

func NewAdapter() *Adapter {
	return &Adapter{
		cash:      decimal.Zero,
		positions: make(map[string]*core.Position),
		prices:    make(map[string]decimal.Decimal),
		capabilities: core.CapabilitySet{
			SupportsOrderID:      true,
			SupportsBatchPending: true,
		},
		live: true,
	}
}

// Scripting surface

func (a *Adapter) SetCash(cash decimal.Decimal) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.cash = cash
}

func (a *Adapter) SetCashErr(err error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.cashErr = err
}

func (a *Adapter) SetPosition(symbol string, size decimal.Decimal) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.positions[symbol] = &core.Position{
		Size:          size,
		AvailableSize: size,
		AvgPrice:      a.prices[symbol],
	}
}

func (a *Adapter) SetPrice(symbol string, price decimal.Decimal) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.prices[symbol] = price
}

func (a *Adapter) SetPending(pending ...*core.PendingOrder) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.pending = pending
}

func (a *Adapter) SetSnapshotErr(err error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.snapshotErr = err
}

// RejectNext makes the next n submissions fail as venue-level rejections.
func (a *Adapter) RejectNext(n int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.rejectNext = n
}

func (a *Adapter) SetSubmitErr(err error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.submitErr = err
}

func (a *Adapter) SetCapabilities(caps core.CapabilitySet) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.capabilities = caps
}

// Submitted returns a copy of every accepted submission, in order.
func (a *Adapter) Submitted() []*core.OrderHandle {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make([]*core.OrderHandle, len(a.submitted))
	copy(out, a.submitted)
	return out
}

func (a *Adapter) SubmittedCount() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.submitted)
}

// core.IAdapter

func (a *Adapter) FetchCash(ctx context.Context) (decimal.Decimal, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.cashErr != nil {
		return decimal.Zero, a.cashErr
	}
	return a.cash, nil
}

func (a *Adapter) FetchPosition(ctx context.Context, symbol string) (*core.Position, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.positionErr != nil {
		return nil, a.positionErr
	}
	if pos, ok := a.positions[symbol]; ok {
		cp := *pos
		return &cp, nil
	}
	return &core.Position{Size: decimal.Zero, AvailableSize: decimal.Zero}, nil
}

func (a *Adapter) FetchPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.priceErr != nil {
		return decimal.Zero, a.priceErr
	}
	if price, ok := a.prices[symbol]; ok {
		return price, nil
	}
	return decimal.Zero, fmt.Errorf("%w: no price for %s", apperrors.ErrInvalidPrice, symbol)
}

func (a *Adapter) FetchPendingOrders(ctx context.Context) ([]*core.PendingOrder, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.snapshotErr != nil {
		return nil, a.snapshotErr
	}
	out := make([]*core.PendingOrder, len(a.pending))
	copy(out, a.pending)
	return out, nil
}

func (a *Adapter) SubmitOrder(ctx context.Context, symbol string, side core.OrderSide, size, referencePrice decimal.Decimal) (*core.OrderHandle, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.submitErr != nil {
		return nil, a.submitErr
	}
	if a.rejectNext > 0 {
		a.rejectNext--
		return nil, nil
	}

	handle := &core.OrderHandle{
		ID:       uuid.NewString(),
		Symbol:   symbol,
		Side:     side,
		Size:     size,
		Pending:  true,
		Accepted: true,
	}
	a.submitted = append(a.submitted, handle)
	return handle, nil
}

func (a *Adapter) TranslateRawStatus(raw interface{}) (*core.OrderHandle, error) {
	if h, ok := raw.(*core.OrderHandle); ok {
		return h, nil
	}
	return nil, fmt.Errorf("untranslatable raw status %T", raw)
}

func (a *Adapter) IsLiveMode() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.live
}

func (a *Adapter) Capabilities() core.CapabilitySet {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.capabilities
}

// Event helpers for tests and the demo binary.

// Fill builds a completed handle for a previously accepted submission.
func Fill(h *core.OrderHandle, avgPrice decimal.Decimal) *core.OrderHandle {
	return &core.OrderHandle{
		ID:         h.ID,
		Symbol:     h.Symbol,
		Side:       h.Side,
		Size:       h.Size,
		Completed:  true,
		FilledSize: h.Size,
		AvgPrice:   avgPrice,
		Value:      h.Size.Mul(avgPrice),
	}
}

// Cancel builds a canceled handle for a previously accepted submission.
func Cancel(h *core.OrderHandle) *core.OrderHandle {
	return &core.OrderHandle{
		ID:       h.ID,
		Symbol:   h.Symbol,
		Side:     h.Side,
		Size:     h.Size,
		Canceled: true,
	}
}

// Reject builds a rejected handle for a previously accepted submission.
func Reject(h *core.OrderHandle) *core.OrderHandle {
	return &core.OrderHandle{
		ID:       h.ID,
		Symbol:   h.Symbol,
		Side:     h.Side,
		Size:     h.Size,
		Rejected: true,
	}
}
