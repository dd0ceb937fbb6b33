// Package indicators holds stateless technical indicators over price and
// candle series. Short histories never fail: every function degrades to a
// documented neutral value so warm-up periods do not cascade into errors.
package indicators

import (
	"math"

	"github.com/markcheno/go-talib"

	"QuantDesk/internal/domain/models"
)

const (
	DefaultRSIPeriod        = 14
	DefaultMACDFast         = 12
	DefaultMACDSlow         = 26
	DefaultMACDSignal       = 9
	DefaultVolatilityPeriod = 14
	DefaultTrendPeriod      = 20
	DefaultSMAPeriod        = 20

	neutralRSI = 50.0
)

// MACDResult is the latest MACD line, signal line and histogram.
type MACDResult struct {
	MACD      float64 `json:"macd"`
	Signal    float64 `json:"signal"`
	Histogram float64 `json:"histogram"`
}

func last(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	return xs[len(xs)-1]
}

// SMA returns the simple moving average of the last period prices.
// With fewer than period prices it returns the last price.
func SMA(prices []float64, period int) float64 {
	if period <= 0 || len(prices) < period {
		return last(prices)
	}
	return last(talib.Sma(prices[len(prices)-period:], period))
}

// EMA returns the SMA-seeded exponential moving average over the whole series.
// With fewer than period prices it returns the last price.
func EMA(prices []float64, period int) float64 {
	if period <= 0 || len(prices) < period {
		return last(prices)
	}
	return last(talib.Ema(prices, period))
}

// EMASeries returns the EMA aligned to the input; entries before period-1 are zero.
// Returns nil when the series is shorter than period.
func EMASeries(prices []float64, period int) []float64 {
	if period <= 0 || len(prices) < period {
		return nil
	}
	return talib.Ema(prices, period)
}

// RSI computes the relative strength index from the average gain and
// average loss of the most recent period deltas.
func RSI(prices []float64, period int) float64 {
	if period <= 0 || len(prices) < period+1 {
		return neutralRSI
	}
	var gain, loss float64
	for i := len(prices) - period; i < len(prices); i++ {
		delta := prices[i] - prices[i-1]
		if delta > 0 {
			gain += delta
		} else {
			loss -= delta
		}
	}
	avgGain := gain / float64(period)
	avgLoss := loss / float64(period)
	if avgLoss == 0 {
		return 100
	}
	rs := avgGain / avgLoss
	return 100 - 100/(1+rs)
}

// MACD builds the MACD line across the whole series so the signal line is a
// proper EMA of MACD values rather than of the tail only.
func MACD(prices []float64, fast, slow, signal int) MACDResult {
	if fast <= 0 || slow <= 0 || signal <= 0 || len(prices) < slow || len(prices) < fast {
		return MACDResult{}
	}
	fastSeries := EMASeries(prices, fast)
	slowSeries := EMASeries(prices, slow)

	line := make([]float64, 0, len(prices)-slow+1)
	for i := slow - 1; i < len(prices); i++ {
		line = append(line, fastSeries[i]-slowSeries[i])
	}
	macd := last(line)
	sig := EMA(line, signal)
	return MACDResult{MACD: macd, Signal: sig, Histogram: macd - sig}
}

// MACDHistogramSeries returns, for every index i, the histogram MACD would
// report for prices[:i+1]. EMAs are causal, so one pass over the full
// series matches the per-prefix values.
func MACDHistogramSeries(prices []float64, fast, slow, signal int) []float64 {
	out := make([]float64, len(prices))
	if fast <= 0 || slow <= 0 || signal <= 0 || len(prices) < slow || len(prices) < fast {
		return out
	}
	fastSeries := EMASeries(prices, fast)
	slowSeries := EMASeries(prices, slow)

	line := make([]float64, 0, len(prices)-slow+1)
	for i := slow - 1; i < len(prices); i++ {
		line = append(line, fastSeries[i]-slowSeries[i])
	}
	sig := EMASeries(line, signal)
	for j := signal - 1; j < len(line) && sig != nil; j++ {
		out[slow-1+j] = line[j] - sig[j]
	}
	return out
}

// Returns computes one-bar simple returns r_t = (C_t - C_{t-1}) / C_{t-1}.
// Non-positive prior closes produce a zero return.
func Returns(candles []models.Candle) []float64 {
	if len(candles) < 2 {
		return nil
	}
	out := make([]float64, 0, len(candles)-1)
	for i := 1; i < len(candles); i++ {
		prev := candles[i-1].Close
		if prev <= 0 {
			out = append(out, 0)
			continue
		}
		out = append(out, (candles[i].Close-prev)/prev)
	}
	return out
}

// Volatility is the population standard deviation of the trailing period
// one-bar returns, scaled by 100.
func Volatility(candles []models.Candle, period int) float64 {
	if period <= 1 || len(candles) < period+1 {
		return 0
	}
	rets := Returns(candles[len(candles)-period-1:])
	sd := last(talib.StdDev(rets, period, 1))
	if math.IsNaN(sd) {
		return 0
	}
	return sd * 100
}

// TrendStrength is the percentage deviation of the last close from its
// trailing SMA.
func TrendStrength(candles []models.Candle, period int) float64 {
	if len(candles) == 0 {
		return 0
	}
	closes := models.Closes(candles)
	sma := SMA(closes, period)
	if sma == 0 {
		return 0
	}
	return (last(closes) - sma) / sma * 100
}
