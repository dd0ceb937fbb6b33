package usecase

import (
	"context"
	"fmt"
	"time"

	"QuantDesk/internal/domain/models"
	domrepo "QuantDesk/internal/domain/repository"
	"QuantDesk/internal/services/agent"
	xutil "QuantDesk/pkg/util"
)

const maxCandleRange = 10000

// CandlesUseCase serves raw candle history for charting and offline backtests.
type CandlesUseCase struct {
	store domrepo.CandleSource
}

func NewCandlesUseCase(store domrepo.CandleSource) *CandlesUseCase {
	return &CandlesUseCase{store: store}
}

type GetCandlesParams struct {
	Symbol    string
	From      time.Time
	To        time.Time
	Timeframe domrepo.Timeframe
	Limit     int
}

type GetCandlesResult struct {
	Symbol    string          `json:"symbol"`
	Timeframe string          `json:"timeframe"`
	From      time.Time       `json:"from"`
	To        time.Time       `json:"to"`
	Count     int             `json:"count"`
	Candles   []models.Candle `json:"candles"`
}

// GetCandles returns candles in [From, To] aligned to the timeframe, keeping
// the newest Limit bars when the range holds more.
func (uc *CandlesUseCase) GetCandles(ctx context.Context, p GetCandlesParams) (*GetCandlesResult, error) {
	if p.Symbol == "" {
		return nil, fmt.Errorf("symbol required")
	}
	if p.From.After(p.To) {
		return nil, fmt.Errorf("from must be <= to")
	}
	if p.Limit <= 0 || p.Limit > maxCandleRange {
		p.Limit = maxCandleRange
	}
	symbol := agent.NormalizeSymbol(p.Symbol)
	from, to := xutil.AlignRange(p.From, p.To, p.Timeframe.Duration())

	candles, err := uc.store.GetCandles(ctx, symbol, from, to, p.Timeframe)
	if err != nil {
		return nil, fmt.Errorf("get candles: %w", err)
	}
	if len(candles) > p.Limit {
		candles = candles[len(candles)-p.Limit:]
	}

	return &GetCandlesResult{
		Symbol:    symbol,
		Timeframe: string(p.Timeframe),
		From:      from,
		To:        to,
		Count:     len(candles),
		Candles:   candles,
	}, nil
}
