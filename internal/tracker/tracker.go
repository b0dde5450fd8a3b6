// Package tracker holds the broker's in-flight order bookkeeping: the
// active-buy table, the pending-sell set, buffered rejection retries and the
// deferred-buy queue. The tracker is plain data mutated only under the
// broker's ledger lock; only the order-state memory locks for itself.
package tracker

import (
	"time"

	"github.com/shopspring/decimal"

	"live_broker/internal/core"
	"live_broker/internal/symbols"
)

// ActiveBuy is one locally-known in-flight BUY and its reservation inputs.
type ActiveBuy struct {
	OrderID   string
	Symbol    string
	Size      decimal.Decimal
	Price     decimal.Decimal
	LotSize   int64
	Retries   int
	CreatedAt time.Time

	// Snapshot hysteresis
	MissCount   int
	FirstMissAt time.Time
}

// PendingSell is one locally-known in-flight SELL.
type PendingSell struct {
	OrderID   string
	Symbol    string
	Size      decimal.Decimal
	CreatedAt time.Time
}

// BufferedRetry is a downgraded BUY waiting for its source order's terminal
// state to be confirmed before resubmission.
type BufferedRetry struct {
	SourceID string
	Symbol   string
	NewSize  decimal.Decimal
	Price    decimal.Decimal
	LotSize  int64
	Attempt  int
	QueuedAt time.Time

	SnapshotFails int
	SubmitFails   int
	Warned        bool
}

// DeferredBuy is a parked BUY intent, replayed through the intent translator
// so price, NAV and risk locks are re-checked at dispatch time.
type DeferredBuy struct {
	Mode      core.IntentMode
	Symbol    string
	Target    decimal.Decimal
	CreatedAt time.Time
	FailCount int
}

// Tracker owns the four in-flight tables.
type Tracker struct {
	activeBuys   map[string]*ActiveBuy
	pendingSells map[string]*PendingSell
	retries      map[string]*BufferedRetry
	deferred     []*DeferredBuy
}

func New() *Tracker {
	return &Tracker{
		activeBuys:   make(map[string]*ActiveBuy),
		pendingSells: make(map[string]*PendingSell),
		retries:      make(map[string]*BufferedRetry),
	}
}

// Active buys

func (t *Tracker) AddActiveBuy(rec *ActiveBuy) {
	t.activeBuys[rec.OrderID] = rec
}

func (t *Tracker) PopActiveBuy(orderID string) *ActiveBuy {
	rec, ok := t.activeBuys[orderID]
	if !ok {
		return nil
	}
	delete(t.activeBuys, orderID)
	return rec
}

func (t *Tracker) ActiveBuys() []*ActiveBuy {
	out := make([]*ActiveBuy, 0, len(t.activeBuys))
	for _, rec := range t.activeBuys {
		out = append(out, rec)
	}
	return out
}

func (t *Tracker) ActiveBuyCount() int {
	return len(t.activeBuys)
}

// ActiveBuySizeFor sums in-flight BUY size for any rendering of symbol.
func (t *Tracker) ActiveBuySizeFor(symbol string) decimal.Decimal {
	aliases := symbols.Aliases(symbol)
	total := decimal.Zero
	for _, rec := range t.activeBuys {
		if aliases.Intersects(symbols.Aliases(rec.Symbol)) {
			total = total.Add(rec.Size)
		}
	}
	return total
}

// Pending sells

func (t *Tracker) AddPendingSell(rec *PendingSell) {
	t.pendingSells[rec.OrderID] = rec
}

func (t *Tracker) RemovePendingSell(orderID string) *PendingSell {
	rec, ok := t.pendingSells[orderID]
	if !ok {
		return nil
	}
	delete(t.pendingSells, orderID)
	return rec
}

func (t *Tracker) HasPendingSells() bool {
	return len(t.pendingSells) > 0
}

func (t *Tracker) PendingSells() []*PendingSell {
	out := make([]*PendingSell, 0, len(t.pendingSells))
	for _, rec := range t.pendingSells {
		out = append(out, rec)
	}
	return out
}

func (t *Tracker) ClearPendingSells() int {
	n := len(t.pendingSells)
	t.pendingSells = make(map[string]*PendingSell)
	return n
}

// RetainPendingSells keeps only ids present in keep and returns how many
// entries were dropped. Used for precise set-difference reconciliation when
// the snapshot carries ids.
func (t *Tracker) RetainPendingSells(keep map[string]struct{}) int {
	dropped := 0
	for id := range t.pendingSells {
		if _, ok := keep[id]; !ok {
			delete(t.pendingSells, id)
			dropped++
		}
	}
	return dropped
}

// PendingSellSizeFor sums in-flight SELL size for any rendering of symbol.
func (t *Tracker) PendingSellSizeFor(symbol string) decimal.Decimal {
	aliases := symbols.Aliases(symbol)
	total := decimal.Zero
	for _, rec := range t.pendingSells {
		if aliases.Intersects(symbols.Aliases(rec.Symbol)) {
			total = total.Add(rec.Size)
		}
	}
	return total
}

// HasPendingFor reports whether any in-flight order matches symbol, filtered
// by side when side is non-empty.
func (t *Tracker) HasPendingFor(symbol string, side core.OrderSide) bool {
	aliases := symbols.Aliases(symbol)
	if side == "" || side == core.SideBuy {
		for _, rec := range t.activeBuys {
			if aliases.Intersects(symbols.Aliases(rec.Symbol)) {
				return true
			}
		}
	}
	if side == "" || side == core.SideSell {
		for _, rec := range t.pendingSells {
			if aliases.Intersects(symbols.Aliases(rec.Symbol)) {
				return true
			}
		}
	}
	return false
}

// Buffered retries

func (t *Tracker) AddRetry(r *BufferedRetry) {
	t.retries[r.SourceID] = r
}

func (t *Tracker) PopRetry(sourceID string) *BufferedRetry {
	r, ok := t.retries[sourceID]
	if !ok {
		return nil
	}
	delete(t.retries, sourceID)
	return r
}

func (t *Tracker) Retries() []*BufferedRetry {
	out := make([]*BufferedRetry, 0, len(t.retries))
	for _, r := range t.retries {
		out = append(out, r)
	}
	return out
}

func (t *Tracker) RetryCount() int {
	return len(t.retries)
}

// Deferred buys

// PushDeferred parks a BUY intent. When dedupe is set, an existing entry for
// the same symbol is replaced so only the most recent target survives.
func (t *Tracker) PushDeferred(d *DeferredBuy, dedupe bool) {
	if dedupe {
		for i, existing := range t.deferred {
			if symbols.Match(existing.Symbol, d.Symbol) {
				t.deferred[i] = d
				return
			}
		}
	}
	t.deferred = append(t.deferred, d)
}

// DrainDeferred removes and returns the whole queue in FIFO order.
func (t *Tracker) DrainDeferred() []*DeferredBuy {
	out := t.deferred
	t.deferred = nil
	return out
}

// DeferredPeek returns the queue without draining it.
func (t *Tracker) DeferredPeek() []*DeferredBuy {
	return t.deferred
}

func (t *Tracker) DeferredCount() int {
	return len(t.deferred)
}

func (t *Tracker) HasDeferred() bool {
	return len(t.deferred) > 0
}

func (t *Tracker) ClearDeferred() int {
	n := len(t.deferred)
	t.deferred = nil
	return n
}

// HasBacklog reports whether any in-flight state exists at all.
func (t *Tracker) HasBacklog() bool {
	return len(t.activeBuys) > 0 || len(t.pendingSells) > 0 ||
		len(t.retries) > 0 || len(t.deferred) > 0
}

// Reset drops every table.
func (t *Tracker) Reset() {
	t.activeBuys = make(map[string]*ActiveBuy)
	t.pendingSells = make(map[string]*PendingSell)
	t.retries = make(map[string]*BufferedRetry)
	t.deferred = nil
}
