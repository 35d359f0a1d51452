package rate

import (
	"strconv"
	"strings"
	"time"
)

// ParseWindow converts a window string of the form "30s", "15m", "2h", or
// "7d" into a duration. Only the single-letter suffixes s/m/h/d are accepted.
// Any other shape — empty string, missing or garbled suffix, non-numeric
// prefix, internal whitespace — returns fallback rather than an error: a
// misconfigured window must never take the limiter down.
func ParseWindow(s string, fallback time.Duration) time.Duration {
	s = strings.TrimSpace(s)
	if len(s) < 2 {
		return fallback
	}

	var unit time.Duration
	switch s[len(s)-1] {
	case 's':
		unit = time.Second
	case 'm':
		unit = time.Minute
	case 'h':
		unit = time.Hour
	case 'd':
		unit = 24 * time.Hour
	default:
		return fallback
	}

	n, err := strconv.Atoi(s[:len(s)-1])
	if err != nil || n <= 0 {
		return fallback
	}

	return time.Duration(n) * unit
}
