package repository

import (
	"context"
	"errors"
	"time"

	"QuantDesk/internal/domain/models"
	"QuantDesk/internal/services/agent"
	"QuantDesk/internal/services/backtest"
	"QuantDesk/internal/services/smc"
)

var ErrCheckpointNotFound = errors.New("checkpoint not found")

// CandleSource provides read-only access to OHLCV history, oldest first.
type CandleSource interface {
	GetCandles(ctx context.Context, symbol string, from, to time.Time, tf Timeframe) ([]models.Candle, error)
	GetLatestNCandles(ctx context.Context, symbol string, n int, tf Timeframe) ([]models.Candle, error)
}

// CheckpointStore persists agent snapshots between restarts.
type CheckpointStore interface {
	Save(ctx context.Context, cp agent.Checkpoint) error
	Load(ctx context.Context, symbol string) (agent.Checkpoint, error)
	Delete(ctx context.Context, symbol string) error
	List(ctx context.Context) ([]string, error)
}

// SignalPublisher fans decisions out to downstream consumers.
type SignalPublisher interface {
	PublishSignal(ctx context.Context, symbol string, tf Timeframe, sig smc.Signal) error
	PublishBacktest(ctx context.Context, res *backtest.Result) error
	Close() error
}

type Metrics interface {
	RecordSignal(symbol, action string)
	RecordPrediction(symbol, action string)
	RecordEpisode(symbol string, reward, epsilon float64, states int)
	RecordBacktest(strategy string, totalReturn float64)
	RecordError(kind string)
	RecordLastPrice(symbol string, price float64)
	RecordLatency(op string, seconds float64)
}
