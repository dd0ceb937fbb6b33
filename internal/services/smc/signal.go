package smc

import (
	"fmt"
	"math"
	"strings"

	"QuantDesk/internal/domain/models"
)

const (
	killZoneBoost    = 1.2
	minActConfidence = 60.0
	holdConfCap      = 40.0
	fallbackStopPct  = 0.02
	rewardRisk       = 2.0
)

// GenerateSignal turns an analysis into buy, sell or hold. Acting needs a
// directional bias and confidence of at least 60 after the kill-zone boost.
func GenerateSignal(a Analysis) Signal {
	conf := a.Confidence
	sig := Signal{Bias: a.Bias, Entry: a.Price}
	if a.ActiveKillZone != nil {
		conf = math.Min(conf*killZoneBoost, maxConfidence)
		sig.KillZone = a.ActiveKillZone.Name
	}

	if conf < minActConfidence || a.Bias == BiasNeutral {
		sig.Action = models.ActionHold
		sig.Confidence = math.Min(conf, holdConfCap)
		sig.Reason = fmt.Sprintf("%s bias with %.1f confidence, %s structure: no trade", a.Bias, conf, a.Structure)
		return sig
	}

	dir := Bullish
	sig.Action = models.ActionBuy
	if a.Bias == BiasShort {
		dir = Bearish
		sig.Action = models.ActionSell
	}
	sig.Confidence = conf

	stop, why := pickArtifact(a, dir)
	reasons := []string{fmt.Sprintf("%s structure, %s bias %.1f", a.Structure, a.Bias, conf)}
	if why != "" {
		reasons = append(reasons, why)
	}
	if sig.KillZone != "" {
		reasons = append(reasons, "inside "+sig.KillZone+" kill zone")
	}
	sig.Reason = strings.Join(reasons, "; ")

	price := a.Price
	if dir == Bullish {
		if stop <= 0 || stop >= price {
			stop = price * (1 - fallbackStopPct)
		}
		sig.StopLoss = stop
		sig.TakeProfit = price + rewardRisk*(price-stop)
	} else {
		if stop <= price {
			stop = price * (1 + fallbackStopPct)
		}
		sig.StopLoss = stop
		sig.TakeProfit = price - rewardRisk*(stop-price)
	}
	return sig
}

// pickArtifact returns the protective level and description of the most
// recent unused artifact pointing in dir. Order blocks win over gaps, gaps
// over sweeps.
func pickArtifact(a Analysis, dir Direction) (float64, string) {
	for i := len(a.OrderBlocks) - 1; i >= 0; i-- {
		ob := a.OrderBlocks[i]
		if ob.Tested || ob.Type != dir {
			continue
		}
		desc := fmt.Sprintf("untested %s order block %.4f-%.4f", dir, ob.Low, ob.High)
		if dir == Bullish {
			return ob.Low, desc
		}
		return ob.High, desc
	}
	for i := len(a.FairValueGaps) - 1; i >= 0; i-- {
		g := a.FairValueGaps[i]
		if g.Filled || g.Type != dir {
			continue
		}
		desc := fmt.Sprintf("unfilled %s fair value gap %.4f-%.4f", dir, g.Bottom, g.Top)
		if dir == Bullish {
			return g.Bottom, desc
		}
		return g.Top, desc
	}
	want := SellSide
	if dir == Bearish {
		want = BuySide
	}
	for i := len(a.LiquiditySweeps) - 1; i >= 0; i-- {
		s := a.LiquiditySweeps[i]
		if !s.Reversal || s.Type != want {
			continue
		}
		return s.SweepPrice, fmt.Sprintf("%s liquidity swept at %.4f and reversed", strings.ReplaceAll(string(s.Type), "_", "-"), s.Level)
	}
	return 0, ""
}
