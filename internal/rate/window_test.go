package rate

import (
	"testing"
	"time"
)

func TestParseWindowUnits(t *testing.T) {
	fallback := time.Minute

	cases := []struct {
		in   string
		want time.Duration
	}{
		{"30s", 30 * time.Second},
		{"1m", time.Minute},
		{"15m", 15 * time.Minute},
		{"2h", 2 * time.Hour},
		{"1d", 24 * time.Hour},
		{" 60s ", 60 * time.Second},
	}

	for _, tc := range cases {
		if got := ParseWindow(tc.in, fallback); got != tc.want {
			t.Fatalf("ParseWindow(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestParseWindowFallback(t *testing.T) {
	fallback := 5 * time.Minute

	for _, in := range []string{"", "s", "60", "60x", "abc", "-5s", "0m", "1.5h"} {
		if got := ParseWindow(in, fallback); got != fallback {
			t.Fatalf("ParseWindow(%q) = %v, want fallback %v", in, got, fallback)
		}
	}
}
