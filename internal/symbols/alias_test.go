package symbols

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMatch(t *testing.T) {
	cases := []struct {
		a, b string
		want bool
	}{
		{"AAPL", "AAPL.SMART", true},
		{"aapl", "AAPL", true},
		{"QQQ.ISLAND", "QQQ", true},
		{"QQQ.ISLAND", "AAPL.ISLAND", false},
		{"SHSE.600000", "600000", true},
		{"SHSE.600000", "SZSE.600000", true},
		{"SHSE.600000", "SHSE.600001", false},
		{"00700", "700", true},
		{"00700", "HKEX.00700", true},
		{"EUR.USD", "EURUSD", true},
		{"EUR.USD", "EUR.GBP", false},
		{"AAPL", "MSFT", false},
		{"600000", "600001", false},
	}

	for _, tc := range cases {
		assert.Equal(t, tc.want, Match(tc.a, tc.b), "%s vs %s", tc.a, tc.b)
	}
}

func TestMatchIsSymmetric(t *testing.T) {
	pairs := [][2]string{
		{"AAPL", "AAPL.SMART"},
		{"SHSE.600000", "600000"},
		{"EUR.USD", "EURUSD"},
		{"QQQ", "MSFT"},
	}
	for _, p := range pairs {
		assert.Equal(t, Match(p[0], p[1]), Match(p[1], p[0]), "%v", p)
	}
}

// Alias sets must be closed under composition: re-aliasing any generated
// token stays inside the original set.
func TestAliasesClosedUnderComposition(t *testing.T) {
	for _, sym := range []string{"AAPL.SMART", "SHSE.600000", "00700", "EUR.USD", "QQQ.ISLAND"} {
		set := Aliases(sym)
		for token := range set {
			for derived := range Aliases(token) {
				assert.True(t, set.Has(derived),
					"token %q of %q produced %q outside the set", token, sym, derived)
			}
		}
	}
}

// The bare base currency must not leak into a forex pair's alias set:
// EUR.USD and EUR.GBP are distinct instruments.
func TestForexAliasOmitsBareCurrency(t *testing.T) {
	set := Aliases("EUR.USD")
	assert.True(t, set.Has("EURUSD"))
	assert.False(t, set.Has("EUR"))
	assert.False(t, set.Has("USD"))

	assert.False(t, Match("EUR.USD", "EUR.GBP"))
	assert.False(t, Match("EURUSD", "EURGBP"))
	assert.True(t, Match("EUR.USD", "EURUSD"))
}

func TestAliasesEmptyInput(t *testing.T) {
	assert.Empty(t, Aliases(""))
	assert.False(t, Match("", "AAPL"))
}
