package indicators

import "QuantDesk/internal/domain/models"

// Snapshot bundles the indicator values callers usually want for the latest bar.
type Snapshot struct {
	Price         float64    `json:"price"`
	SMA20         float64    `json:"sma20"`
	EMA12         float64    `json:"ema12"`
	EMA26         float64    `json:"ema26"`
	RSI           float64    `json:"rsi"`
	MACD          MACDResult `json:"macd"`
	Volatility    float64    `json:"volatility"`
	TrendStrength float64    `json:"trendStrength"`
	CandleCount   int        `json:"candleCount"`
}

// Compute evaluates the default indicator set over candles.
func Compute(candles []models.Candle) Snapshot {
	closes := models.Closes(candles)
	return Snapshot{
		Price:         last(closes),
		SMA20:         SMA(closes, DefaultSMAPeriod),
		EMA12:         EMA(closes, DefaultMACDFast),
		EMA26:         EMA(closes, DefaultMACDSlow),
		RSI:           RSI(closes, DefaultRSIPeriod),
		MACD:          MACD(closes, DefaultMACDFast, DefaultMACDSlow, DefaultMACDSignal),
		Volatility:    Volatility(candles, DefaultVolatilityPeriod),
		TrendStrength: TrendStrength(candles, DefaultTrendPeriod),
		CandleCount:   len(candles),
	}
}
