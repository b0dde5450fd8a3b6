// Package ledger tracks uncommitted BUY reservations against settled cash.
// The ledger is plain data: it does no locking of its own and is mutated
// only while the broker holds its ledger lock.
package ledger

import (
	"time"

	"github.com/shopspring/decimal"
)

// safetyFloor is the absolute floor added on top of commission and slippage
// when overestimating buy cost. Overestimating makes tight-cash rejections
// rare at the cost of slightly underusing cash.
var safetyFloor = decimal.NewFromFloat(0.002)

// Ledger is the virtual cash ledger.
type Ledger struct {
	virtualSpent      decimal.Decimal
	safetyMultiplier  decimal.Decimal
	lastKnownCash     decimal.Decimal
	cashDegradedUntil time.Time
}

// New builds a ledger with safety multiplier 1 + commission + slippage + 0.002.
func New(commissionRate, slippageRate decimal.Decimal) *Ledger {
	return &Ledger{
		virtualSpent:     decimal.Zero,
		safetyMultiplier: decimal.NewFromInt(1).Add(commissionRate).Add(slippageRate).Add(safetyFloor),
		lastKnownCash:    decimal.Zero,
	}
}

// SafetyMultiplier returns the cost-overestimation factor. Derived once at
// construction; safe to read without the ledger lock.
func (l *Ledger) SafetyMultiplier() decimal.Decimal {
	return l.safetyMultiplier
}

// Reservation computes size × price × safety multiplier.
func (l *Ledger) Reservation(size, price decimal.Decimal) decimal.Decimal {
	return size.Mul(price).Mul(l.safetyMultiplier)
}

// Reserve adds a reservation to virtual spent.
func (l *Ledger) Reserve(amount decimal.Decimal) {
	l.virtualSpent = l.virtualSpent.Add(amount)
}

// Refund subtracts a reservation from virtual spent, clamped at zero.
func (l *Ledger) Refund(amount decimal.Decimal) {
	l.virtualSpent = l.virtualSpent.Sub(amount)
	if l.virtualSpent.IsNegative() {
		l.virtualSpent = decimal.Zero
	}
}

// VirtualSpent returns the current reservation total.
func (l *Ledger) VirtualSpent() decimal.Decimal {
	return l.virtualSpent
}

// Available returns realCash minus virtual spent.
func (l *Ledger) Available(realCash decimal.Decimal) decimal.Decimal {
	return realCash.Sub(l.virtualSpent)
}

// SetLastKnownCash records the most recent authoritative cash value.
func (l *Ledger) SetLastKnownCash(cash decimal.Decimal) {
	l.lastKnownCash = cash
}

// LastKnownCash returns the most recent authoritative cash value.
func (l *Ledger) LastKnownCash() decimal.Decimal {
	return l.lastKnownCash
}

// MarkCashDegraded opens the fast-fail window for unreliable cash input.
func (l *Ledger) MarkCashDegraded(until time.Time) {
	l.cashDegradedUntil = until
}

// CashDegraded reports whether the degraded window is still open.
func (l *Ledger) CashDegraded(now time.Time) bool {
	return now.Before(l.cashDegradedUntil)
}

// ResetDegraded closes the degraded window.
func (l *Ledger) ResetDegraded() {
	l.cashDegradedUntil = time.Time{}
}

// Reset zeroes virtual spent and closes the degraded window. Last known cash
// survives a reset; the broker is rebuilt from snapshots, not from zero.
func (l *Ledger) Reset() {
	l.virtualSpent = decimal.Zero
	l.cashDegradedUntil = time.Time{}
}
