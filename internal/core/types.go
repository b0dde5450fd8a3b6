package core

import (
	"time"

	"github.com/shopspring/decimal"
)

// OrderSide is the direction of an order.
type OrderSide string

const (
	SideBuy  OrderSide = "BUY"
	SideSell OrderSide = "SELL"
)

// DeferredVirtualID is the sentinel id returned for a parked BUY. Strategies
// that store the most recent handle as a local lock see it as still pending.
const DeferredVirtualID = "DEFERRED_VIRTUAL_ID"

// OrderHandle is the normalized representation of one submission and its
// lifecycle, produced by the venue adapter. Exactly one terminal predicate
// (Completed, Canceled, Rejected) may hold; Pending and Accepted may overlap
// while the order is pre-submitted.
type OrderHandle struct {
	ID     string
	Symbol string
	Side   OrderSide

	// Size as accepted by the venue at submit time. Zero when the venue
	// does not echo it back; callers fall back to the pre-submit size.
	Size decimal.Decimal

	Pending   bool
	Accepted  bool
	Completed bool
	Canceled  bool
	Rejected  bool

	// Fill summary, valid once Completed or a partial fill was observed.
	FilledSize decimal.Decimal
	AvgPrice   decimal.Decimal
	Value      decimal.Decimal
	Commission decimal.Decimal
}

// IsTerminal reports whether the handle reached a final state.
func (h *OrderHandle) IsTerminal() bool {
	return h.Completed || h.Canceled || h.Rejected
}

// IsVirtualDeferred reports whether this is the parked-BUY sentinel.
func (h *OrderHandle) IsVirtualDeferred() bool {
	return h.ID == DeferredVirtualID
}

// NewDeferredHandle builds the virtual placeholder handle for a parked BUY.
func NewDeferredHandle(symbol string) *OrderHandle {
	return &OrderHandle{
		ID:      DeferredVirtualID,
		Symbol:  symbol,
		Side:    SideBuy,
		Pending: true,
	}
}

// Position is the settled holding for one symbol.
type Position struct {
	Size          decimal.Decimal
	AvgPrice      decimal.Decimal
	AvailableSize decimal.Decimal
}

// PendingOrder is one entry of the authoritative pending snapshot. ID may be
// empty when the venue does not expose ids on the pending endpoint.
type PendingOrder struct {
	ID            string
	Symbol        string
	Side          OrderSide
	RemainingSize decimal.Decimal
}

// CapabilitySet declares what a venue adapter can do. The broker dispatches
// on the declared set and falls back to conservative behavior when a
// capability is absent.
type CapabilitySet struct {
	SupportsOrderID        bool
	SupportsBatchPending   bool
	SupportsFractionalLots bool
}

// IntentMode identifies which intent entry point originated a deferred BUY,
// so a replay re-checks price, NAV and risk locks through the same path.
type IntentMode string

const (
	IntentTargetPercent IntentMode = "target_percent"
	IntentTargetValue   IntentMode = "target_value"
)

// StateMemo is the last-observed state of an order id, kept as a bounded
// fallback for when the broker snapshot is unavailable.
type StateMemo struct {
	Symbol    string
	Side      OrderSide
	Terminal  bool
	Pending   bool
	UpdatedAt time.Time
}
