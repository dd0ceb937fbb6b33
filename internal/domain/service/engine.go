package service

import (
	"context"
	"time"

	"QuantDesk/internal/domain/models"
	domrepo "QuantDesk/internal/domain/repository"
	"QuantDesk/internal/services/agent"
	"QuantDesk/internal/services/backtest"
	"QuantDesk/internal/services/indicators"
	"QuantDesk/internal/services/smc"
)

// Engine is the decision engine as seen by transports.
type Engine interface {
	Indicators(ctx context.Context, symbol string, n int, tf domrepo.Timeframe) (indicators.Snapshot, error)
	Structure(ctx context.Context, symbol string, n int, tf domrepo.Timeframe) (smc.Analysis, error)
	Signal(ctx context.Context, symbol string, n int, tf domrepo.Timeframe) (smc.Signal, error)
	KillZones(at time.Time) []smc.KillZone

	Backtest(ctx context.Context, req models.BacktestRequest) (*backtest.Result, error)

	Train(ctx context.Context, symbol string, req models.TrainRequest) ([]agent.EpisodeResult, error)
	Predict(ctx context.Context, symbol string, n int, tf domrepo.Timeframe) (agent.Prediction, error)
	AgentStats(symbol string) (agent.Stats, error)
	ResetAgent(symbol string) error
	QTable(symbol string) (map[string]agent.QValues, error)
	LoadQTable(symbol string, values map[string]agent.QValues) error
	UpdateAgentConfig(symbol string, req models.AgentConfigRequest) (agent.Config, error)
	SaveCheckpoint(ctx context.Context, symbol string) (agent.Checkpoint, error)
	RestoreCheckpoint(ctx context.Context, symbol string) (agent.Stats, error)
	Agents(ctx context.Context) (AgentList, error)
}

// AgentList separates live agents from ones only present as checkpoints.
type AgentList struct {
	Active      []string `json:"active"`
	Checkpoints []string `json:"checkpoints"`
}
