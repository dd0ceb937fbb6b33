package indicators

import (
	"math"
	"testing"

	"QuantDesk/internal/domain/models"
)

func closeTo(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

func candlesFromCloses(closes ...float64) []models.Candle {
	out := make([]models.Candle, len(closes))
	for i, c := range closes {
		out[i] = models.Candle{Time: int64(i) * 60_000, Open: c, High: c, Low: c, Close: c, Volume: 1}
	}
	return out
}

func TestShortHistoryFallbacks(t *testing.T) {
	prices := []float64{101, 102, 103}

	if got := SMA(prices, 20); got != 103 {
		t.Fatalf("SMA fallback = %v, want last price", got)
	}
	if got := EMA(prices, 12); got != 103 {
		t.Fatalf("EMA fallback = %v, want last price", got)
	}
	if got := RSI(prices, 14); got != 50 {
		t.Fatalf("RSI fallback = %v, want 50", got)
	}
	if got := MACD(prices, 12, 26, 9); got != (MACDResult{}) {
		t.Fatalf("MACD fallback = %+v, want zeros", got)
	}
	if got := Volatility(candlesFromCloses(prices...), 14); got != 0 {
		t.Fatalf("Volatility fallback = %v, want 0", got)
	}
	if got := SMA(nil, 5); got != 0 {
		t.Fatalf("SMA of empty = %v", got)
	}
	if EMASeries(prices, 5) != nil {
		t.Fatalf("EMASeries should be nil for short input")
	}
}

func TestSMAAndEMA(t *testing.T) {
	prices := []float64{1, 2, 3, 4, 5}
	if got := SMA(prices, 3); !closeTo(got, 4) {
		t.Fatalf("SMA = %v, want 4", got)
	}
	// seed 2, k = 0.5 -> 3 -> 4
	if got := EMA(prices, 3); !closeTo(got, 4) {
		t.Fatalf("EMA = %v, want 4", got)
	}
	series := EMASeries(prices, 3)
	if len(series) != len(prices) || !closeTo(series[2], 2) || !closeTo(series[3], 3) {
		t.Fatalf("unexpected EMA series %v", series)
	}
}

func TestRSI(t *testing.T) {
	tests := []struct {
		name   string
		prices []float64
		period int
		want   float64
	}{
		{"all gains", []float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16}, 14, 100},
		{"flat", []float64{5, 5, 5, 5}, 3, 100},
		{"all losses", []float64{5, 4, 3, 2}, 3, 0},
		{"mixed", []float64{1, 3, 2}, 2, 100 - 100.0/3},
		{"balanced", []float64{1, 2, 1}, 2, 50},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := RSI(tt.prices, tt.period)
			if !closeTo(got, tt.want) {
				t.Fatalf("RSI = %v, want %v", got, tt.want)
			}
			if got < 0 || got > 100 || math.IsNaN(got) {
				t.Fatalf("RSI out of range: %v", got)
			}
		})
	}
}

func TestMACD(t *testing.T) {
	flat := make([]float64, 40)
	for i := range flat {
		flat[i] = 100
	}
	if got := MACD(flat, 12, 26, 9); !closeTo(got.MACD, 0) || !closeTo(got.Histogram, 0) {
		t.Fatalf("flat MACD = %+v", got)
	}

	rising := make([]float64, 60)
	for i := range rising {
		rising[i] = 100 + float64(i)
	}
	got := MACD(rising, 12, 26, 9)
	if got.MACD <= 0 {
		t.Fatalf("rising MACD line should be positive, got %+v", got)
	}
	if !closeTo(got.Histogram, got.MACD-got.Signal) {
		t.Fatalf("histogram mismatch %+v", got)
	}

	// exactly slow bars: one MACD value, signal falls back to it
	short := rising[:26]
	got = MACD(short, 12, 26, 9)
	if !closeTo(got.Signal, got.MACD) || !closeTo(got.Histogram, 0) {
		t.Fatalf("short MACD signal should equal line, got %+v", got)
	}
}

func TestVolatility(t *testing.T) {
	if got := Volatility(candlesFromCloses(100, 110, 99), 2); math.Abs(got-10) > 1e-6 {
		t.Fatalf("Volatility = %v, want 10", got)
	}
	if got := Volatility(candlesFromCloses(100, 100, 100, 100), 3); got != 0 {
		t.Fatalf("flat volatility = %v", got)
	}
}

func TestTrendStrength(t *testing.T) {
	c := candlesFromCloses(90, 100, 110)
	// SMA 100, close 110
	if got := TrendStrength(c, 3); !closeTo(got, 10) {
		t.Fatalf("TrendStrength = %v, want 10", got)
	}
	if got := TrendStrength(nil, 20); got != 0 {
		t.Fatalf("TrendStrength(nil) = %v", got)
	}
	if got := TrendStrength(candlesFromCloses(0, 0, 0), 3); got != 0 {
		t.Fatalf("zero SMA should give 0, got %v", got)
	}
}

func TestCompute(t *testing.T) {
	closes := make([]float64, 40)
	for i := range closes {
		closes[i] = 100 + float64(i)*0.5
	}
	s := Compute(candlesFromCloses(closes...))
	if s.CandleCount != 40 || s.Price != closes[39] {
		t.Fatalf("unexpected snapshot %+v", s)
	}
	if s.RSI != 100 {
		t.Fatalf("monotonic rise should give RSI 100, got %v", s.RSI)
	}
	if s.TrendStrength <= 0 {
		t.Fatalf("expected positive trend, got %v", s.TrendStrength)
	}
}

func TestMACDHistogramSeriesMatchesPrefixes(t *testing.T) {
	prices := make([]float64, 80)
	for i := range prices {
		prices[i] = 100 + 5*math.Sin(float64(i)*0.3) + 0.2*float64(i)
	}
	series := MACDHistogramSeries(prices, 12, 26, 9)
	if len(series) != len(prices) {
		t.Fatalf("length %d, want %d", len(series), len(prices))
	}
	for i := range prices {
		want := MACD(prices[:i+1], 12, 26, 9).Histogram
		if math.Abs(series[i]-want) > 1e-9 {
			t.Fatalf("index %d: series %v, prefix %v", i, series[i], want)
		}
	}
}
