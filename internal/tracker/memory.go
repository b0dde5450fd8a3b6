package tracker

import (
	"sync"
	"time"

	"live_broker/internal/core"
	"live_broker/internal/symbols"
)

// StateMemory is the bounded map from order id to its last-observed state.
// It is written by the callback path before the ledger lock is taken, so it
// carries its own lock. Eviction is LRU by UpdatedAt plus a hard TTL.
type StateMemory struct {
	maxItems int
	ttl      time.Duration

	mu    sync.RWMutex
	memos map[string]*core.StateMemo
}

func NewStateMemory(maxItems int, ttl time.Duration) *StateMemory {
	return &StateMemory{
		maxItems: maxItems,
		ttl:      ttl,
		memos:    make(map[string]*core.StateMemo),
	}
}

// Observe records the latest state for an order and returns the previous
// memo, if any. Callers use the previous memo to detect duplicate terminal
// events.
func (m *StateMemory) Observe(h *core.OrderHandle, now time.Time) *core.StateMemo {
	m.mu.Lock()
	defer m.mu.Unlock()

	prev := m.memos[h.ID]
	m.memos[h.ID] = &core.StateMemo{
		Symbol:    h.Symbol,
		Side:      h.Side,
		Terminal:  h.IsTerminal(),
		Pending:   h.Pending,
		UpdatedAt: now,
	}
	m.pruneLocked(now)
	return prev
}

// Lookup returns the memo for an order id.
func (m *StateMemory) Lookup(orderID string) *core.StateMemo {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.memos[orderID]
}

// TerminalFor reports whether memory shows the order id as terminal.
func (m *StateMemory) TerminalFor(orderID string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	memo, ok := m.memos[orderID]
	return ok && memo.Terminal
}

// PendingForSymbol reports whether memory shows any non-terminal order for a
// rendering of symbol, filtered by side when non-empty. Used as the fallback
// when the snapshot carries ids the broker cannot attribute.
func (m *StateMemory) PendingForSymbol(symbol string, side core.OrderSide) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	aliases := symbols.Aliases(symbol)
	for _, memo := range m.memos {
		if memo.Terminal || !memo.Pending {
			continue
		}
		if side != "" && memo.Side != side {
			continue
		}
		if aliases.Intersects(symbols.Aliases(memo.Symbol)) {
			return true
		}
	}
	return false
}

func (m *StateMemory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.memos)
}

// Reset drops every memo.
func (m *StateMemory) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.memos = make(map[string]*core.StateMemo)
}

func (m *StateMemory) pruneLocked(now time.Time) {
	for id, memo := range m.memos {
		if now.Sub(memo.UpdatedAt) > m.ttl {
			delete(m.memos, id)
		}
	}
	// Evict the least recently updated entries past the size bound.
	for len(m.memos) > m.maxItems {
		oldestID := ""
		var oldest time.Time
		for id, memo := range m.memos {
			if oldestID == "" || memo.UpdatedAt.Before(oldest) {
				oldestID = id
				oldest = memo.UpdatedAt
			}
		}
		delete(m.memos, oldestID)
	}
}
