package backtest

import (
	"errors"
	"fmt"
	"strings"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
)

var (
	ErrInsufficientCandles = errors.New("insufficient candles")
	ErrUnknownStrategy     = errors.New("unknown strategy")
	ErrInvalidOptions      = errors.New("invalid backtest options")
)

var validate = validator.New()

// Strategy names a signal policy.
type Strategy string

const (
	StrategyRSI      Strategy = "rsi"
	StrategyMACD     Strategy = "macd"
	StrategySMA      Strategy = "sma"
	StrategyCombined Strategy = "combined"
	StrategySMC      Strategy = "smc"
)

// Strategies lists every supported policy.
var Strategies = []Strategy{StrategyRSI, StrategyMACD, StrategySMA, StrategyCombined, StrategySMC}

// ParseStrategy accepts any casing and surrounding whitespace.
func ParseStrategy(s string) (Strategy, error) {
	st := Strategy(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Strategies {
		if st == known {
			return st, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownStrategy, s)
}

// Options tune a backtest. Zero fields take the documented defaults.
type Options struct {
	Strategy      Strategy `yaml:"strategy" json:"strategy" default:"combined"`
	RSIPeriod     int      `yaml:"rsi_period" json:"rsiPeriod" default:"14" validate:"gte=2"`
	RSIBuy        float64  `yaml:"rsi_buy" json:"rsiBuy" default:"30" validate:"gt=0,lt=100"`
	RSISell       float64  `yaml:"rsi_sell" json:"rsiSell" default:"70" validate:"gt=0,lt=100,gtfield=RSIBuy"`
	MACDFast      int      `yaml:"macd_fast" json:"macdFast" default:"12" validate:"gte=1"`
	MACDSlow      int      `yaml:"macd_slow" json:"macdSlow" default:"26" validate:"gtfield=MACDFast"`
	MACDSignal    int      `yaml:"macd_signal" json:"macdSignal" default:"9" validate:"gte=1"`
	SMAPeriod     int      `yaml:"sma_period" json:"smaPeriod" default:"20" validate:"gte=2"`
	StopLossPct   float64  `yaml:"stop_loss_pct" json:"stopLossPct" default:"2" validate:"gt=0,lt=100"`
	TakeProfitPct float64  `yaml:"take_profit_pct" json:"takeProfitPct" default:"4" validate:"gt=0"`
}

// DefaultOptions returns the defaults for the combined strategy.
func DefaultOptions() Options {
	var o Options
	_ = defaults.Set(&o)
	return o
}

// normalize fills defaults, canonicalizes the strategy and validates.
func (o Options) normalize() (Options, error) {
	if err := defaults.Set(&o); err != nil {
		return o, fmt.Errorf("%w: %v", ErrInvalidOptions, err)
	}
	st, err := ParseStrategy(string(o.Strategy))
	if err != nil {
		return o, err
	}
	o.Strategy = st
	if err := validate.Struct(o); err != nil {
		return o, fmt.Errorf("%w: %v", ErrInvalidOptions, err)
	}
	return o, nil
}
