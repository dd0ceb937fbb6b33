package smc

import (
	"sort"

	"QuantDesk/internal/domain/models"
)

// DetectFairValueGaps scans every three-candle window for an untraded gap
// larger than 0.1% of the middle close. Filled is judged once against the
// candle after the window.
func DetectFairValueGaps(candles []models.Candle) []FairValueGap {
	var gaps []FairValueGap
	for i := 2; i < len(candles); i++ {
		first, mid, third := candles[i-2], candles[i-1], candles[i]
		minSize := mid.Close * priceThreshold

		var gap FairValueGap
		switch {
		case third.Low > first.High:
			gap = FairValueGap{Type: Bullish, Top: third.Low, Bottom: first.High}
		case first.Low > third.High:
			gap = FairValueGap{Type: Bearish, Top: first.Low, Bottom: third.High}
		default:
			continue
		}
		gap.Size = gap.Top - gap.Bottom
		if gap.Size <= minSize {
			continue
		}
		gap.Time = mid.Time
		gap.Index = i - 1

		if i+1 < len(candles) {
			next := candles[i+1]
			if gap.Type == Bullish {
				gap.Filled = next.Low <= gap.Bottom
			} else {
				gap.Filled = next.High >= gap.Top
			}
		}
		gaps = append(gaps, gap)
	}
	return keepLast(gaps, maxArtifacts)
}

// DetectOrderBlocks finds decisive candles (body over half the range) that
// turn against the net body move of the two candles before them.
func DetectOrderBlocks(candles []models.Candle) []OrderBlock {
	var blocks []OrderBlock
	for i := 2; i < len(candles); i++ {
		c := candles[i]
		rng := c.Range()
		if rng <= 0 || c.Body()/rng <= 0.5 {
			continue
		}
		prior := (candles[i-2].Close - candles[i-2].Open) + (candles[i-1].Close - candles[i-1].Open)

		var block OrderBlock
		switch {
		case c.Bullish() && prior < 0:
			block.Type = Bullish
		case c.Close < c.Open && prior > 0:
			block.Type = Bearish
		default:
			continue
		}
		block.High, block.Low = c.High, c.Low
		block.Time, block.Index = c.Time, i

		if i+1 < len(candles) {
			next := candles[i+1]
			if block.Type == Bullish {
				block.Tested = next.Low <= block.High
			} else {
				block.Tested = next.High >= block.Low
			}
		}
		blocks = append(blocks, block)
	}
	return keepLast(blocks, maxArtifacts)
}

// DetectLiquiditySweeps locates swing highs and lows and, for each, the
// first later candle that runs the level by more than 0.1%.
func DetectLiquiditySweeps(candles []models.Candle) []LiquiditySweep {
	var sweeps []LiquiditySweep
	for j := 1; j < len(candles)-1; j++ {
		prev, c, next := candles[j-1], candles[j], candles[j+1]

		if c.High > prev.High && c.High > next.High {
			if s, ok := findSweep(candles, j, c.High, BuySide); ok {
				sweeps = append(sweeps, s)
			}
		}
		if c.Low < prev.Low && c.Low < next.Low {
			if s, ok := findSweep(candles, j, c.Low, SellSide); ok {
				sweeps = append(sweeps, s)
			}
		}
	}
	sort.SliceStable(sweeps, func(a, b int) bool { return sweeps[a].Index < sweeps[b].Index })
	return keepLast(sweeps, maxArtifacts)
}

func findSweep(candles []models.Candle, swing int, level float64, side SweepSide) (LiquiditySweep, bool) {
	for k := swing + 1; k < len(candles); k++ {
		c := candles[k]
		var price float64
		if side == BuySide {
			if c.High <= level*(1+priceThreshold) {
				continue
			}
			price = c.High
		} else {
			if c.Low >= level*(1-priceThreshold) {
				continue
			}
			price = c.Low
		}

		s := LiquiditySweep{Type: side, Level: level, SweepPrice: price, Time: c.Time, Index: k}
		if k+1 < len(candles) {
			after := candles[k+1].Close
			if side == BuySide {
				s.Reversal = after < level
			} else {
				s.Reversal = after > level
			}
		}
		return s, true
	}
	return LiquiditySweep{}, false
}

// ClassifyStructure compares highs and lows four bars apart across the
// trailing 20 candles. One side must outscore the other by 1.3x.
func ClassifyStructure(candles []models.Candle) Structure {
	const (
		window = 20
		stride = 4
		margin = 1.3
	)
	w := candles
	if len(w) > window {
		w = w[len(w)-window:]
	}

	var bull, bear float64
	for i := stride; i < len(w); i += stride {
		cur, ref := w[i], w[i-stride]
		if cur.High > ref.High {
			bull++
		} else if cur.High < ref.High {
			bear++
		}
		if cur.Low > ref.Low {
			bull++
		} else if cur.Low < ref.Low {
			bear++
		}
	}

	switch {
	case bull > bear*margin:
		return StructureBullish
	case bear > bull*margin:
		return StructureBearish
	default:
		return StructureRanging
	}
}
