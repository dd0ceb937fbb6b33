package smc

import (
	"math"
	"time"

	"QuantDesk/internal/domain/models"
)

// bias scoring weights
const (
	structurePoints  = 30.0
	orderBlockPoints = 10.0
	gapPoints        = 8.0
	sweepPoints      = 15.0

	biasMargin     = 1.2
	maxConfidence  = 95.0
	neutralConfCap = 50.0
)

// Analyzer runs the detectors and scores a directional bias.
// The zero value is not usable; construct with NewAnalyzer.
type Analyzer struct {
	now func() time.Time
}

// Option configures an Analyzer.
type Option func(*Analyzer)

// WithClock replaces the wall clock used for kill-zone evaluation.
func WithClock(now func() time.Time) Option {
	return func(a *Analyzer) {
		if now != nil {
			a.now = now
		}
	}
}

func NewAnalyzer(opts ...Option) *Analyzer {
	a := &Analyzer{now: time.Now}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Analyze evaluates candles with kill zones taken from the analyzer clock.
func (a *Analyzer) Analyze(candles []models.Candle) Analysis {
	return a.AnalyzeAt(candles, a.now())
}

// AnalyzeAt evaluates candles with kill zones taken at the given instant.
func (a *Analyzer) AnalyzeAt(candles []models.Candle, now time.Time) Analysis {
	res := Analysis{
		Structure:       ClassifyStructure(candles),
		FairValueGaps:   DetectFairValueGaps(candles),
		OrderBlocks:     DetectOrderBlocks(candles),
		LiquiditySweeps: DetectLiquiditySweeps(candles),
	}.WithKillZonesAt(now)
	if n := len(candles); n > 0 {
		res.Price = candles[n-1].Close
		res.Time = candles[n-1].Time
	}

	res.BullishScore, res.BearishScore = score(res)
	res.Bias, res.Confidence = decideBias(res.BullishScore, res.BearishScore)
	return res
}

// Signal is shorthand for GenerateSignal(a.Analyze(candles)).
func (a *Analyzer) Signal(candles []models.Candle) Signal {
	return GenerateSignal(a.Analyze(candles))
}

func score(a Analysis) (bull, bear float64) {
	switch a.Structure {
	case StructureBullish:
		bull += structurePoints
	case StructureBearish:
		bear += structurePoints
	}
	for _, ob := range a.OrderBlocks {
		if ob.Tested {
			continue
		}
		if ob.Type == Bullish {
			bull += orderBlockPoints
		} else {
			bear += orderBlockPoints
		}
	}
	for _, g := range a.FairValueGaps {
		if g.Filled {
			continue
		}
		if g.Type == Bullish {
			bull += gapPoints
		} else {
			bear += gapPoints
		}
	}
	for _, s := range a.LiquiditySweeps {
		if !s.Reversal {
			continue
		}
		// taking sell-side liquidity and reversing is a bullish tell
		if s.Type == SellSide {
			bull += sweepPoints
		} else {
			bear += sweepPoints
		}
	}
	return bull, bear
}

func decideBias(bull, bear float64) (Bias, float64) {
	switch {
	case bull > bear*biasMargin:
		return BiasLong, math.Min(bull, maxConfidence)
	case bear > bull*biasMargin:
		return BiasShort, math.Min(bear, maxConfidence)
	default:
		return BiasNeutral, math.Min(math.Max(bull, bear), neutralConfCap)
	}
}
