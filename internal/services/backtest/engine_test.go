package backtest

import (
	"errors"
	"math"
	"reflect"
	"testing"

	"QuantDesk/internal/domain/models"
)

func fromCloses(closes []float64) []models.Candle {
	out := make([]models.Candle, len(closes))
	prev := closes[0]
	for i, c := range closes {
		out[i] = models.Candle{
			Time:   int64(i) * 3_600_000,
			Open:   prev,
			High:   math.Max(prev, c) * 1.002,
			Low:    math.Min(prev, c) * 0.998,
			Close:  c,
			Volume: 1000,
		}
		prev = c
	}
	return out
}

// fixture100 is a trending series with two overlapping cycles.
func fixture100() []models.Candle {
	closes := make([]float64, 100)
	for i := range closes {
		x := float64(i)
		closes[i] = 100 + 0.15*x + 6*math.Sin(x*0.25) + 2*math.Sin(x*1.1)
	}
	return fromCloses(closes)
}

func TestRunRejectsShortSeries(t *testing.T) {
	_, err := RunBacktest(fixture100()[:49], "sma", "BTCUSDT", 10000, Options{})
	if !errors.Is(err, ErrInsufficientCandles) {
		t.Fatalf("expected ErrInsufficientCandles, got %v", err)
	}
	if _, err := RunBacktest(fixture100()[:50], "sma", "BTCUSDT", 10000, Options{}); err != nil {
		t.Fatalf("50 candles should run: %v", err)
	}
	if _, err := RunBacktest(fixture100(), "sma", "BTCUSDT", 0, Options{}); !errors.Is(err, ErrInvalidCapital) {
		t.Fatalf("expected ErrInvalidCapital, got %v", err)
	}
}

func TestFlatSeriesHasNoTrades(t *testing.T) {
	closes := make([]float64, 80)
	for i := range closes {
		closes[i] = 100
	}
	candles := fromCloses(closes)

	for _, st := range Strategies {
		t.Run(string(st), func(t *testing.T) {
			res, err := RunBacktest(candles, string(st), "FLAT", 10000, Options{})
			if err != nil {
				t.Fatal(err)
			}
			if res.TotalTrades != 0 || len(res.Trades) != 0 {
				t.Fatalf("expected no trades, got %+v", res.Trades)
			}
			if res.MaxDrawdown != 0 || res.FinalCapital != 10000 || res.SharpeRatio != 0 || res.ProfitFactor != 0 {
				t.Fatalf("unexpected stats %+v", res)
			}
		})
	}
}

func TestDeterministicResults(t *testing.T) {
	candles := fixture100()
	for _, st := range Strategies {
		t.Run(string(st), func(t *testing.T) {
			a, err := RunBacktest(candles, string(st), "ETHUSDT", 10000, Options{})
			if err != nil {
				t.Fatal(err)
			}
			b, err := RunBacktest(candles, string(st), "ETHUSDT", 10000, Options{})
			if err != nil {
				t.Fatal(err)
			}
			if !reflect.DeepEqual(a, b) {
				t.Fatalf("runs differ:\n%+v\n%+v", a, b)
			}
		})
	}
}

func TestSMAUptrendScenario(t *testing.T) {
	// +0.5%/bar drift with a 2% cyclical shock
	closes := []float64{100}
	for i := 1; i < 60; i++ {
		closes = append(closes, closes[i-1]*(1+0.005+0.02*math.Sin(float64(i)*0.3)))
	}

	res, err := RunBacktest(fromCloses(closes), "sma", "SOLUSDT", 10000, Options{SMAPeriod: 20})
	if err != nil {
		t.Fatal(err)
	}
	if res.TotalTrades < 1 {
		t.Fatalf("expected at least one completed trade, got %+v", res.Trades)
	}
	if res.FinalCapital <= res.InitialCapital {
		t.Fatalf("expected profit, final capital %v", res.FinalCapital)
	}
	if res.Trades[0].Type != models.ActionBuy || res.Trades[1].Reason != ReasonTakeProfit {
		t.Fatalf("unexpected trades %+v", res.Trades)
	}
}

func TestWarmupIsNotACrossing(t *testing.T) {
	// accelerating rise: histogram and price stay above their references
	// from the first defined bar on, so nothing ever crosses
	closes := make([]float64, 90)
	for i := range closes {
		x := float64(i)
		closes[i] = 100 + 0.01*x*x
	}
	candles := fromCloses(closes)

	tests := []struct {
		strategy string
		opts     Options
	}{
		{"macd", Options{}},
		{"sma", Options{SMAPeriod: 40}},
	}
	for _, tt := range tests {
		res, err := RunBacktest(candles, tt.strategy, "X", 10000, tt.opts)
		if err != nil {
			t.Fatal(err)
		}
		if len(res.Trades) != 0 {
			t.Fatalf("%s: expected no trades, got %+v", tt.strategy, res.Trades)
		}
	}
}

func TestStopLoss(t *testing.T) {
	closes := make([]float64, 60)
	for i := range closes {
		closes[i] = 100
		if i >= 30 {
			closes[i] = 100 * math.Pow(0.99, float64(i-29))
		}
	}
	res, err := RunBacktest(fromCloses(closes), "rsi", "X", 10000, Options{})
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Trades) < 2 {
		t.Fatalf("expected trades, got %+v", res.Trades)
	}
	buy, sell := res.Trades[0], res.Trades[1]
	if buy.Type != models.ActionBuy || buy.Time != 30*3_600_000 {
		t.Fatalf("unexpected entry %+v", buy)
	}
	if sell.Reason != ReasonStopLoss || sell.Time != 33*3_600_000 || sell.PnL >= 0 {
		t.Fatalf("unexpected exit %+v", sell)
	}
	if res.LosingTrades == 0 || res.WinningTrades != 0 || res.ProfitFactor != 0 || res.MaxDrawdown <= 0 {
		t.Fatalf("unexpected stats %+v", res)
	}
}

func TestTakeProfit(t *testing.T) {
	closes := make([]float64, 60)
	for i := range closes {
		switch {
		case i < 30:
			closes[i] = 100
		case i == 30:
			closes[i] = 99
		default:
			closes[i] = closes[i-1] * 1.015
		}
	}
	res, err := RunBacktest(fromCloses(closes), "rsi", "X", 10000, Options{RSISell: 90})
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Trades) != 2 {
		t.Fatalf("expected one round trip, got %+v", res.Trades)
	}
	sell := res.Trades[1]
	if sell.Reason != ReasonTakeProfit || sell.Time != 33*3_600_000 || sell.PnLPct < 4 {
		t.Fatalf("unexpected exit %+v", sell)
	}
	if res.WinRate != 100 || res.ProfitFactor != 0 || res.TotalReturn <= 4 {
		t.Fatalf("unexpected stats %+v", res)
	}
}

func TestEquityCurveSampling(t *testing.T) {
	res, err := RunBacktest(fixture100(), "combined", "X", 10000, Options{})
	if err != nil {
		t.Fatal(err)
	}
	// bars 30..99: multiples of five plus the final bar
	if len(res.EquityCurve) != 15 {
		t.Fatalf("expected 15 samples, got %d", len(res.EquityCurve))
	}
	if res.EquityCurve[0].Time != 30*3_600_000 || res.EquityCurve[14].Time != 99*3_600_000 {
		t.Fatalf("unexpected sample times %+v", res.EquityCurve)
	}
	if got := res.EquityCurve[14].Equity; math.Abs(got-res.FinalCapital) > 1e-9 {
		t.Fatalf("last sample %v differs from final capital %v", got, res.FinalCapital)
	}
}

func TestSummarize(t *testing.T) {
	res := Result{Trades: []Trade{
		{Type: models.ActionBuy},
		{Type: models.ActionSell, PnL: 30},
		{Type: models.ActionBuy},
		{Type: models.ActionSell, PnL: -10},
	}}
	summarize(&res)
	if res.TotalTrades != 2 || res.WinRate != 50 || res.ProfitFactor != 3 || res.GrossLoss != 10 {
		t.Fatalf("unexpected stats %+v", res)
	}

	winsOnly := Result{Trades: []Trade{{Type: models.ActionSell, PnL: 5}}}
	summarize(&winsOnly)
	if winsOnly.ProfitFactor != 0 || winsOnly.WinRate != 100 {
		t.Fatalf("infinite profit factor should collapse to 0, got %+v", winsOnly)
	}
}

func TestSharpe(t *testing.T) {
	if got := sharpe([]float64{100, 100, 100, 100}); got != 0 {
		t.Fatalf("flat curve sharpe = %v", got)
	}
	if got := sharpe([]float64{100}); got != 0 {
		t.Fatalf("single point sharpe = %v", got)
	}
	if got := sharpe([]float64{100, 110, 99, 108.9}); got <= 0 {
		t.Fatalf("net positive curve should have positive sharpe, got %v", got)
	}
}

func TestParseStrategyAndOptions(t *testing.T) {
	if st, err := ParseStrategy(" SMC "); err != nil || st != StrategySMC {
		t.Fatalf("ParseStrategy = %q, %v", st, err)
	}
	if _, err := ParseStrategy("momentum"); !errors.Is(err, ErrUnknownStrategy) {
		t.Fatalf("expected ErrUnknownStrategy, got %v", err)
	}
	if _, err := New(Options{Strategy: "momentum"}); !errors.Is(err, ErrUnknownStrategy) {
		t.Fatalf("expected ErrUnknownStrategy, got %v", err)
	}
	if _, err := New(Options{Strategy: StrategyMACD, MACDFast: 30, MACDSlow: 26}); !errors.Is(err, ErrInvalidOptions) {
		t.Fatalf("expected ErrInvalidOptions, got %v", err)
	}

	e, err := New(Options{Strategy: StrategyRSI, RSIPeriod: 7})
	if err != nil {
		t.Fatal(err)
	}
	o := e.Options()
	if o.RSIPeriod != 7 || o.RSIBuy != 30 || o.RSISell != 70 || o.SMAPeriod != 20 || o.StopLossPct != 2 || o.TakeProfitPct != 4 {
		t.Fatalf("defaults not applied: %+v", o)
	}
	if d := DefaultOptions(); d.Strategy != StrategyCombined || d.MACDSlow != 26 {
		t.Fatalf("unexpected defaults %+v", d)
	}
}
