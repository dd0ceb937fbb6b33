// Package backtest replays rule-based strategies over historical candles
// and reports trades, an equity curve and summary statistics.
package backtest

import (
	"errors"
	"fmt"
	"math"

	"github.com/markcheno/go-talib"

	"QuantDesk/internal/domain/models"
)

const (
	MinCandles = 50

	warmupBars     = 30
	equityInterval = 5
)

var ErrInvalidCapital = errors.New("initial capital must be positive")

// exit reasons
const (
	ReasonSignal     = "signal"
	ReasonStopLoss   = "stop_loss"
	ReasonTakeProfit = "take_profit"
	ReasonEndOfData  = "end_of_data"
)

// Trade is one fill. PnL fields are set on sells only.
type Trade struct {
	Type     models.Action `json:"type"`
	Time     int64         `json:"time"`
	Price    float64       `json:"price"`
	Quantity float64       `json:"quantity"`
	PnL      float64       `json:"pnl,omitempty"`
	PnLPct   float64       `json:"pnlPct,omitempty"`
	Reason   string        `json:"reason"`
}

// EquityPoint is a sample of the account value.
type EquityPoint struct {
	Time   int64   `json:"time"`
	Equity float64 `json:"equity"`
}

// Result is the outcome of one run.
type Result struct {
	Symbol             string        `json:"symbol"`
	Strategy           Strategy      `json:"strategy"`
	Options            Options       `json:"options"`
	Candles            int           `json:"candles"`
	StartTime          int64         `json:"startTime"`
	EndTime            int64         `json:"endTime"`
	InitialCapital     float64       `json:"initialCapital"`
	FinalCapital       float64       `json:"finalCapital"`
	TotalReturn        float64       `json:"totalReturn"`
	TotalTrades        int           `json:"totalTrades"`
	WinningTrades      int           `json:"winningTrades"`
	LosingTrades       int           `json:"losingTrades"`
	WinRate            float64       `json:"winRate"`
	GrossProfit        float64       `json:"grossProfit"`
	GrossLoss          float64       `json:"grossLoss"`
	ProfitFactor       float64       `json:"profitFactor"`
	MaxDrawdown        float64       `json:"maxDrawdown"`
	SharpeRatio        float64       `json:"sharpeRatio"`
	SharpeRatioPrecise float64       `json:"sharpeRatioPrecise"`
	Trades             []Trade       `json:"trades"`
	EquityCurve        []EquityPoint `json:"equityCurve"`
}

// Engine runs one strategy configuration. It holds no per-run state.
type Engine struct {
	opts Options
}

// New fills defaults and validates opts.
func New(opts Options) (*Engine, error) {
	o, err := opts.normalize()
	if err != nil {
		return nil, err
	}
	return &Engine{opts: o}, nil
}

func (e *Engine) Options() Options { return e.opts }

// RunBacktest is the one-shot form of New followed by Run.
func RunBacktest(candles []models.Candle, strategy, symbol string, initialCapital float64, opts Options) (Result, error) {
	opts.Strategy = Strategy(strategy)
	e, err := New(opts)
	if err != nil {
		return Result{}, err
	}
	return e.Run(candles, symbol, initialCapital)
}

// Run replays candles bar by bar. Signals only see history up to the
// current bar; an open position is checked for stop-loss, then
// take-profit, then a sell signal, and is force-closed on the last bar.
func (e *Engine) Run(candles []models.Candle, symbol string, initialCapital float64) (Result, error) {
	n := len(candles)
	if n < MinCandles {
		return Result{}, fmt.Errorf("%w: backtest needs %d, got %d", ErrInsufficientCandles, MinCandles, n)
	}
	if initialCapital <= 0 {
		return Result{}, ErrInvalidCapital
	}

	res := Result{
		Symbol:         symbol,
		Strategy:       e.opts.Strategy,
		Options:        e.opts,
		Candles:        n,
		StartTime:      candles[0].Time,
		EndTime:        candles[n-1].Time,
		InitialCapital: initialCapital,
		Trades:         []Trade{},
		EquityCurve:    []EquityPoint{},
	}
	signal := e.signaler(candles)

	capital, units, entry := initialCapital, 0.0, 0.0
	peak := initialCapital
	barEquity := make([]float64, 0, n-warmupBars)

	sell := func(c models.Candle, reason string) {
		proceeds := units * c.Close
		pnl := proceeds - units*entry
		res.Trades = append(res.Trades, Trade{
			Type:     models.ActionSell,
			Time:     c.Time,
			Price:    c.Close,
			Quantity: units,
			PnL:      pnl,
			PnLPct:   (c.Close - entry) / entry * 100,
			Reason:   reason,
		})
		capital, units, entry = proceeds, 0, 0
	}

	for i := warmupBars; i < n; i++ {
		c := candles[i]
		price := c.Close
		last := i == n-1

		if units > 0 {
			change := (price - entry) / entry * 100
			switch {
			case change <= -e.opts.StopLossPct:
				sell(c, ReasonStopLoss)
			case change >= e.opts.TakeProfitPct:
				sell(c, ReasonTakeProfit)
			case last:
				sell(c, ReasonEndOfData)
			case signal(i) == models.ActionSell:
				sell(c, ReasonSignal)
			}
		} else if !last && price > 0 && signal(i) == models.ActionBuy {
			units, entry = capital/price, price
			res.Trades = append(res.Trades, Trade{
				Type:     models.ActionBuy,
				Time:     c.Time,
				Price:    price,
				Quantity: units,
				Reason:   ReasonSignal,
			})
			capital = 0
		}

		equity := capital + units*price
		barEquity = append(barEquity, equity)
		if equity > peak {
			peak = equity
		}
		if dd := (peak - equity) / peak * 100; dd > res.MaxDrawdown {
			res.MaxDrawdown = dd
		}
		if i%equityInterval == 0 || last {
			res.EquityCurve = append(res.EquityCurve, EquityPoint{Time: c.Time, Equity: equity})
		}
	}

	res.FinalCapital = capital
	res.TotalReturn = (capital - initialCapital) / initialCapital * 100
	summarize(&res)

	curve := make([]float64, len(res.EquityCurve))
	for i, p := range res.EquityCurve {
		curve[i] = p.Equity
	}
	res.SharpeRatio = sharpe(curve)
	res.SharpeRatioPrecise = sharpe(barEquity)
	return res, nil
}

// summarize fills the trade statistics from completed sells.
func summarize(res *Result) {
	for _, t := range res.Trades {
		if t.Type != models.ActionSell {
			continue
		}
		res.TotalTrades++
		switch {
		case t.PnL > 0:
			res.WinningTrades++
			res.GrossProfit += t.PnL
		case t.PnL < 0:
			res.LosingTrades++
			res.GrossLoss -= t.PnL
		}
	}
	if res.TotalTrades > 0 {
		res.WinRate = float64(res.WinningTrades) / float64(res.TotalTrades) * 100
	}
	// no losses means an unbounded ratio; report 0 instead
	if res.GrossLoss > 0 {
		res.ProfitFactor = res.GrossProfit / res.GrossLoss
	}
}

// sharpe annualizes mean/stdev of the step returns of an equity series by sqrt(252).
func sharpe(equity []float64) float64 {
	if len(equity) < 3 {
		return 0
	}
	rets := make([]float64, 0, len(equity)-1)
	for i := 1; i < len(equity); i++ {
		if equity[i-1] == 0 {
			continue
		}
		rets = append(rets, (equity[i]-equity[i-1])/equity[i-1])
	}
	if len(rets) < 2 {
		return 0
	}
	// population stdev; talib reports 0 for vanishing variance
	sd := talib.StdDev(rets, len(rets), 1)[len(rets)-1]
	if sd == 0 || math.IsNaN(sd) {
		return 0
	}
	mean := talib.Sma(rets, len(rets))[len(rets)-1]
	return mean / sd * math.Sqrt(252)
}
