package broker

import (
	"context"
	"time"

	"live_broker/internal/core"
)

// SetDatetime advances the broker's injected time anchor, normally on every
// strategy bar or heartbeat. Crossing into a new calendar day, or jumping
// past the long-gap threshold, with stale in-flight state left over is
// treated as a restart: queues and reservations from the previous session
// are dropped before they can poison today's accounting. A self-heal pass
// runs after every call.
func (b *Broker) SetDatetime(ctx context.Context, t time.Time) {
	b.mu.Lock()
	stale := b.tracker.HasBacklog() || b.ledger.VirtualSpent().IsPositive()
	rollover := !b.datetime.IsZero() && beforeDay(b.datetime, t)
	longGap := !b.lastSetDatetime.IsZero() && t.Sub(b.lastSetDatetime) > b.cfg.LongGap()

	didReset := false
	if (rollover || longGap) && stale {
		b.resetStateLocked()
		didReset = true
	}
	b.datetime = t
	b.lastSetDatetime = t
	b.mu.Unlock()

	if didReset {
		if b.metrics != nil {
			b.metrics.AddStaleReset(ctx)
		}
		b.logger.Warn("Stale session state reset",
			"rollover", rollover, "long_gap", longGap, "datetime", t)
		b.alarmEvent(ctx, core.AlarmError, "Stale state reset",
			"In-flight state from a previous session was discarded",
			map[string]string{"datetime": t.Format(time.RFC3339)})
	}

	b.SelfHeal(ctx)
}

// Datetime returns the last injected time anchor.
func (b *Broker) Datetime() time.Time {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.datetime
}

// beforeDay reports whether a's calendar date precedes b's.
func beforeDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	if ay != by {
		return ay < by
	}
	if am != bm {
		return am < bm
	}
	return ad < bd
}
