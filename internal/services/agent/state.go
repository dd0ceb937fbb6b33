package agent

import (
	"fmt"
	"strconv"
	"strings"

	"QuantDesk/internal/domain/models"
	"QuantDesk/internal/services/indicators"
)

const (
	// shorter histories give the neutral state
	minStateCandles = 27

	priceLookback  = 5
	volumeLookback = 10
)

// State is the clamped feature vector the agent observes.
type State struct {
	PriceChange   float64 `json:"priceChange"`
	RSI           float64 `json:"rsi"`
	MACDSignal    int     `json:"macdSignal"`
	VolumeChange  float64 `json:"volumeChange"`
	TrendStrength float64 `json:"trendStrength"`
	Volatility    float64 `json:"volatility"`
}

// NeutralState is returned when there is not enough history.
func NeutralState() State { return State{RSI: 50} }

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func pctChange(from, to float64) float64 {
	if from == 0 {
		return 0
	}
	return (to - from) / from * 100
}

// ExtractState derives the feature vector from the trailing candles.
func ExtractState(candles []models.Candle) State {
	n := len(candles)
	if n < minStateCandles {
		return NeutralState()
	}
	closes := models.Closes(candles)

	var s State
	s.PriceChange = clamp(pctChange(closes[n-1-priceLookback], closes[n-1]), -10, 10)
	s.RSI = indicators.RSI(closes, indicators.DefaultRSIPeriod)

	macd := indicators.MACD(closes, indicators.DefaultMACDFast, indicators.DefaultMACDSlow, indicators.DefaultMACDSignal)
	switch {
	case macd.Histogram > 0:
		s.MACDSignal = 1
	case macd.Histogram < 0:
		s.MACDSignal = -1
	}

	var avgVol float64
	for _, c := range candles[n-1-volumeLookback : n-1] {
		avgVol += c.Volume
	}
	avgVol /= volumeLookback
	s.VolumeChange = clamp(pctChange(avgVol, candles[n-1].Volume), -100, 100)

	s.TrendStrength = clamp(indicators.TrendStrength(candles, indicators.DefaultTrendPeriod), -10, 10)
	s.Volatility = clamp(indicators.Volatility(candles, indicators.DefaultVolatilityPeriod), 0, 10)
	return s
}

// StateKey is the discretized state used to index the Q-table.
type StateKey struct {
	Price      int8
	RSI        int8
	MACD       int8
	Volume     int8
	Trend      int8
	Volatility int8
}

// Key buckets every feature into a small level.
func (s State) Key() StateKey {
	var k StateKey
	switch {
	case s.PriceChange < -2:
		k.Price = -2
	case s.PriceChange < -0.5:
		k.Price = -1
	case s.PriceChange <= 0.5:
		k.Price = 0
	case s.PriceChange <= 2:
		k.Price = 1
	default:
		k.Price = 2
	}

	switch {
	case s.RSI < 30:
		k.RSI = 0
	case s.RSI < 45:
		k.RSI = 1
	case s.RSI < 55:
		k.RSI = 2
	case s.RSI < 70:
		k.RSI = 3
	default:
		k.RSI = 4
	}

	k.MACD = int8(s.MACDSignal)

	switch {
	case s.VolumeChange < -20:
		k.Volume = -1
	case s.VolumeChange > 20:
		k.Volume = 1
	}

	switch {
	case s.TrendStrength < -1:
		k.Trend = -1
	case s.TrendStrength > 1:
		k.Trend = 1
	}

	switch {
	case s.Volatility < 1:
		k.Volatility = 0
	case s.Volatility < 3:
		k.Volatility = 1
	default:
		k.Volatility = 2
	}
	return k
}

// String renders the key as "p|r|m|v|t|s" for checkpoints and APIs.
func (k StateKey) String() string {
	return fmt.Sprintf("%d|%d|%d|%d|%d|%d", k.Price, k.RSI, k.MACD, k.Volume, k.Trend, k.Volatility)
}

// ParseStateKey is the inverse of StateKey.String.
func ParseStateKey(s string) (StateKey, error) {
	parts := strings.Split(s, "|")
	if len(parts) != 6 {
		return StateKey{}, fmt.Errorf("state key %q: want 6 fields, got %d", s, len(parts))
	}
	var levels [6]int8
	for i, p := range parts {
		v, err := strconv.ParseInt(strings.TrimSpace(p), 10, 8)
		if err != nil {
			return StateKey{}, fmt.Errorf("state key %q: %w", s, err)
		}
		levels[i] = int8(v)
	}
	return StateKey{
		Price:      levels[0],
		RSI:        levels[1],
		MACD:       levels[2],
		Volume:     levels[3],
		Trend:      levels[4],
		Volatility: levels[5],
	}, nil
}
