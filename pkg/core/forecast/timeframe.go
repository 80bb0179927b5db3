package forecast

import (
	"regexp"
	"strconv"
	"strings"
)

var timeframePattern = regexp.MustCompile(`next (\d+) (years?|months?)`)

// ParseTimeframe reads "next N months|years" from text and returns the
// horizon in months. Unmatched text yields def. Horizons beyond limit, including
// numbers too large to parse, are clamped to limit; limit <= 0 disables the bound.
func ParseTimeframe(text string, def, limit int) int {
	m := timeframePattern.FindStringSubmatch(strings.ToLower(text))
	if m == nil {
		return def
	}
	perUnit := 1
	if strings.HasPrefix(m[2], "year") {
		perUnit = 12
	}

	n, err := strconv.Atoi(m[1])
	if err != nil {
		// Only a range error is possible after the \d+ match.
		if limit > 0 {
			return limit
		}
		return def
	}
	if n < 1 {
		return def
	}
	if limit > 0 && n > limit/perUnit {
		return limit
	}
	return n * perUnit
}
