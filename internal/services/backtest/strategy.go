package backtest

import (
	"time"

	"QuantDesk/internal/domain/models"
	"QuantDesk/internal/services/indicators"
	"QuantDesk/internal/services/smc"
)

// bars of history handed to the structure analyzer
const smcWindow = 20

// signaler answers buy/sell/hold for bar i using candles[:i+1] only.
type signaler func(i int) models.Action

func (e *Engine) signaler(candles []models.Candle) signaler {
	closes := models.Closes(candles)
	o := e.opts

	rsi := func(i int) models.Action {
		r := indicators.RSI(closes[:i+1], o.RSIPeriod)
		switch {
		case r < o.RSIBuy:
			return models.ActionBuy
		case r > o.RSISell:
			return models.ActionSell
		}
		return models.ActionHold
	}

	// first bar with a defined histogram; earlier entries are zero fill
	histStart := o.MACDSlow + o.MACDSignal - 2
	var hist []float64
	macd := func(i int) models.Action {
		if hist == nil {
			hist = indicators.MACDHistogramSeries(closes, o.MACDFast, o.MACDSlow, o.MACDSignal)
		}
		if i-1 < histStart {
			return models.ActionHold
		}
		prev, cur := hist[i-1], hist[i]
		switch {
		case prev < 0 && cur > 0:
			return models.ActionBuy
		case prev > 0 && cur < 0:
			return models.ActionSell
		}
		return models.ActionHold
	}

	sma := func(i int) models.Action {
		if i < 1 {
			return models.ActionHold
		}
		prevPrice, cur := closes[i-1], closes[i]
		prevSMA := indicators.SMA(closes[:i], o.SMAPeriod)
		curSMA := indicators.SMA(closes[:i+1], o.SMAPeriod)
		switch {
		case prevPrice < prevSMA && cur > curSMA:
			return models.ActionBuy
		case prevPrice > prevSMA && cur < curSMA:
			return models.ActionSell
		}
		return models.ActionHold
	}

	switch o.Strategy {
	case StrategyRSI:
		return rsi
	case StrategyMACD:
		return macd
	case StrategySMA:
		return sma
	case StrategySMC:
		analyzer := smc.NewAnalyzer()
		return func(i int) models.Action {
			start := max(0, i-smcWindow+1)
			// kill zones follow the bar clock so replays stay deterministic
			at := time.UnixMilli(candles[i].Time).UTC()
			return smc.GenerateSignal(analyzer.AnalyzeAt(candles[start:i+1], at)).Action
		}
	default:
		return func(i int) models.Action {
			var buys, sells int
			for _, vote := range []models.Action{rsi(i), macd(i), sma(i)} {
				switch vote {
				case models.ActionBuy:
					buys++
				case models.ActionSell:
					sells++
				}
			}
			switch {
			case buys >= 2:
				return models.ActionBuy
			case sells >= 2:
				return models.ActionSell
			}
			return models.ActionHold
		}
	}
}
