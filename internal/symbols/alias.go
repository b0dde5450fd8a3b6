// Package symbols resolves the different venue renderings of one logical
// instrument (AAPL vs AAPL.SMART, SHSE.600000 vs 600000, 00700 vs 700,
// EUR.USD vs EURUSD) into alias sets. Two symbols refer to the same
// instrument iff their alias sets intersect.
package symbols

import "strings"

// AliasSet is the set of equivalent tokens for one symbol rendering.
type AliasSet map[string]struct{}

// Has reports whether token is in the set.
func (a AliasSet) Has(token string) bool {
	_, ok := a[token]
	return ok
}

// Intersects reports whether the two sets share any token.
func (a AliasSet) Intersects(other AliasSet) bool {
	if len(other) < len(a) {
		a, other = other, a
	}
	for token := range a {
		if other.Has(token) {
			return true
		}
	}
	return false
}

// Aliases computes the alias set for one rendering. The set is closed under
// composition: every generated token aliases back into the same set.
func Aliases(symbol string) AliasSet {
	set := make(AliasSet)
	raw := strings.ToUpper(strings.TrimSpace(symbol))
	if raw == "" {
		return set
	}
	add := func(token string) {
		if token != "" {
			set[token] = struct{}{}
		}
	}

	add(raw)
	if isDigits(raw) {
		add(stripLeadingZeros(raw))
		return set
	}

	segments := strings.Split(raw, ".")
	if len(segments) == 1 {
		return set
	}

	// Forex pair rendering: EUR.USD also trades as EURUSD. Only the
	// concatenation aliases; the bare base currency does not, or EUR.USD
	// and EUR.GBP would cross-match.
	if len(segments) == 2 && len(segments[0]) == 3 && len(segments[1]) == 3 &&
		isAlpha(segments[0]) && isAlpha(segments[1]) {
		add(segments[0] + segments[1])
		return set
	}

	// A numeric segment is the ticker and any alphabetic first segment is an
	// exchange prefix (SHSE.600000). Otherwise the first segment is the base
	// ticker and later alphabetic segments are venue suffixes (AAPL.SMART,
	// QQQ.ISLAND), which must not alias.
	numericTail := false
	for _, seg := range segments[1:] {
		if isDigits(seg) {
			numericTail = true
			add(seg)
			add(stripLeadingZeros(seg))
		}
	}
	if !numericTail || isDigits(segments[0]) {
		add(segments[0])
		if isDigits(segments[0]) {
			add(stripLeadingZeros(segments[0]))
		}
	}

	return set
}

// Match reports whether two renderings refer to the same instrument.
func Match(a, b string) bool {
	return Aliases(a).Intersects(Aliases(b))
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func isAlpha(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < 'A' || r > 'Z' {
			return false
		}
	}
	return true
}

func stripLeadingZeros(s string) string {
	trimmed := strings.TrimLeft(s, "0")
	if trimmed == "" {
		return "0"
	}
	return trimmed
}
