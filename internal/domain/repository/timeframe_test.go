package repository

import (
	"testing"
	"time"
)

func TestNormalizeTimeframe(t *testing.T) {
	tests := []struct {
		in   string
		want Timeframe
		dur  time.Duration
	}{
		{"1m", TF1m, time.Minute},
		{"5m", TF5m, 5 * time.Minute},
		{"1h", TF1h, time.Hour},
		{"", TF1h, time.Hour},
		{"1s", TF1h, time.Hour},
	}
	for _, tt := range tests {
		got := NormalizeTimeframe(tt.in)
		if got != tt.want || got.Duration() != tt.dur {
			t.Fatalf("NormalizeTimeframe(%q) = %q (%v)", tt.in, got, got.Duration())
		}
	}
}
