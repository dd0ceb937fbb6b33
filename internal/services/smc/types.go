// Package smc derives market-structure ("smart money") artifacts from a
// candle series and folds them into a directional bias and trade signal.
package smc

import "QuantDesk/internal/domain/models"

// Direction tags bullish or bearish artifacts.
type Direction string

const (
	Bullish Direction = "bullish"
	Bearish Direction = "bearish"
)

// SweepSide tells which resting liquidity a sweep took.
type SweepSide string

const (
	BuySide  SweepSide = "buy_side"
	SellSide SweepSide = "sell_side"
)

// Structure is the coarse swing classification of recent price action.
type Structure string

const (
	StructureBullish Structure = "bullish"
	StructureBearish Structure = "bearish"
	StructureRanging Structure = "ranging"
)

// Bias is the directional conclusion of an analysis.
type Bias string

const (
	BiasLong    Bias = "long"
	BiasShort   Bias = "short"
	BiasNeutral Bias = "neutral"
)

const (
	maxArtifacts = 10

	// minimum gap or pierce, as a fraction of price
	priceThreshold = 0.001
)

// FairValueGap is a three-candle imbalance. Index and Time refer to the middle candle.
type FairValueGap struct {
	Type   Direction `json:"type"`
	Top    float64   `json:"top"`
	Bottom float64   `json:"bottom"`
	Size   float64   `json:"size"`
	Time   int64     `json:"time"`
	Index  int       `json:"index"`
	Filled bool      `json:"filled"`
}

// OrderBlock is a decisive candle that reversed a short prior move.
type OrderBlock struct {
	Type   Direction `json:"type"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Time   int64     `json:"time"`
	Index  int       `json:"index"`
	Tested bool      `json:"tested"`
}

// LiquiditySweep records the first candle that ran a swing level.
type LiquiditySweep struct {
	Type       SweepSide `json:"type"`
	Level      float64   `json:"level"`
	SweepPrice float64   `json:"sweepPrice"`
	Time       int64     `json:"time"`
	Index      int       `json:"index"`
	Reversal   bool      `json:"reversal"`
}

// KillZone is a UTC session window [StartHour, EndHour).
type KillZone struct {
	Name      string `json:"name"`
	StartHour int    `json:"startHour"`
	EndHour   int    `json:"endHour"`
	Active    bool   `json:"active"`
}

// Analysis is the full result of one structure pass.
type Analysis struct {
	Price           float64          `json:"price"`
	Time            int64            `json:"time"`
	Structure       Structure        `json:"structure"`
	Bias            Bias             `json:"bias"`
	Confidence      float64          `json:"confidence"`
	BullishScore    float64          `json:"bullishScore"`
	BearishScore    float64          `json:"bearishScore"`
	FairValueGaps   []FairValueGap   `json:"fairValueGaps"`
	OrderBlocks     []OrderBlock     `json:"orderBlocks"`
	LiquiditySweeps []LiquiditySweep `json:"liquiditySweeps"`
	KillZones       []KillZone       `json:"killZones"`
	ActiveKillZone  *KillZone        `json:"activeKillZone,omitempty"`
}

// Signal is the actionable output derived from an Analysis.
type Signal struct {
	Action     models.Action `json:"action"`
	Confidence float64       `json:"confidence"`
	Bias       Bias          `json:"bias"`
	Reason     string        `json:"reason"`
	Entry      float64       `json:"entry"`
	StopLoss   float64       `json:"stopLoss,omitempty"`
	TakeProfit float64       `json:"takeProfit,omitempty"`
	KillZone   string        `json:"killZone,omitempty"`
}

func keepLast[T any](items []T, n int) []T {
	if len(items) <= n {
		return items
	}
	return append([]T(nil), items[len(items)-n:]...)
}
