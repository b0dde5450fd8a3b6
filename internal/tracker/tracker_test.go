package tracker

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"live_broker/internal/core"
)

func dec(f float64) decimal.Decimal { return decimal.NewFromFloat(f) }

func TestActiveBuyLifecycle(t *testing.T) {
	tr := New()
	tr.AddActiveBuy(&ActiveBuy{OrderID: "b1", Symbol: "SHSE.600000", Size: dec(200), Price: dec(10)})
	tr.AddActiveBuy(&ActiveBuy{OrderID: "b2", Symbol: "AAPL", Size: dec(50), Price: dec(150)})

	assert.Equal(t, 2, tr.ActiveBuyCount())
	// Alias-aware size aggregation.
	assert.True(t, tr.ActiveBuySizeFor("600000").Equal(dec(200)))
	assert.True(t, tr.ActiveBuySizeFor("MSFT").IsZero())

	rec := tr.PopActiveBuy("b1")
	assert.NotNil(t, rec)
	assert.Nil(t, tr.PopActiveBuy("b1"))
	assert.Equal(t, 1, tr.ActiveBuyCount())
}

func TestPendingSellSetDifference(t *testing.T) {
	tr := New()
	tr.AddPendingSell(&PendingSell{OrderID: "s1", Symbol: "AAPL", Size: dec(100)})
	tr.AddPendingSell(&PendingSell{OrderID: "s2", Symbol: "AAPL", Size: dec(50)})
	tr.AddPendingSell(&PendingSell{OrderID: "s3", Symbol: "QQQ", Size: dec(10)})

	dropped := tr.RetainPendingSells(map[string]struct{}{"s2": {}})
	assert.Equal(t, 2, dropped)
	assert.True(t, tr.HasPendingSells())
	assert.True(t, tr.PendingSellSizeFor("AAPL.SMART").Equal(dec(50)))
}

func TestHasPendingFor(t *testing.T) {
	tr := New()
	tr.AddActiveBuy(&ActiveBuy{OrderID: "b1", Symbol: "AAPL", Size: dec(100)})
	tr.AddPendingSell(&PendingSell{OrderID: "s1", Symbol: "QQQ", Size: dec(10)})

	assert.True(t, tr.HasPendingFor("AAPL", core.SideBuy))
	assert.False(t, tr.HasPendingFor("AAPL", core.SideSell))
	assert.True(t, tr.HasPendingFor("QQQ.ISLAND", ""))
	assert.False(t, tr.HasPendingFor("MSFT", ""))
}

func TestDeferredDedupeKeepsNewestTarget(t *testing.T) {
	tr := New()
	tr.PushDeferred(&DeferredBuy{Mode: core.IntentTargetPercent, Symbol: "AAPL", Target: dec(0.3)}, true)
	tr.PushDeferred(&DeferredBuy{Mode: core.IntentTargetPercent, Symbol: "AAPL.SMART", Target: dec(0.5)}, true)
	tr.PushDeferred(&DeferredBuy{Mode: core.IntentTargetValue, Symbol: "QQQ", Target: dec(1000)}, true)

	assert.Equal(t, 2, tr.DeferredCount())
	drained := tr.DrainDeferred()
	assert.True(t, drained[0].Target.Equal(dec(0.5)))
	assert.Equal(t, 0, tr.DeferredCount())
}

func TestDeferredWithoutDedupeAppends(t *testing.T) {
	tr := New()
	tr.PushDeferred(&DeferredBuy{Symbol: "AAPL", Target: dec(1)}, false)
	tr.PushDeferred(&DeferredBuy{Symbol: "AAPL", Target: dec(2)}, false)
	assert.Equal(t, 2, tr.DeferredCount())
}

func TestBacklogAndReset(t *testing.T) {
	tr := New()
	assert.False(t, tr.HasBacklog())

	tr.AddRetry(&BufferedRetry{SourceID: "b9", Symbol: "AAPL", NewSize: dec(100)})
	assert.True(t, tr.HasBacklog())
	assert.Equal(t, 1, tr.RetryCount())

	tr.Reset()
	assert.False(t, tr.HasBacklog())
	assert.Nil(t, tr.PopRetry("b9"))
}
