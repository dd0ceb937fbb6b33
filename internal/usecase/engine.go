package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"QuantDesk/internal/domain/models"
	domrepo "QuantDesk/internal/domain/repository"
	domsvc "QuantDesk/internal/domain/service"
	icache "QuantDesk/internal/service/cache"
	"QuantDesk/internal/services/agent"
	"QuantDesk/internal/services/backtest"
	"QuantDesk/internal/services/indicators"
	"QuantDesk/internal/services/smc"
	applogger "QuantDesk/pkg/logger"
)

var (
	ErrNoCandles     = errors.New("no candles for symbol")
	ErrAgentNotFound = errors.New("agent not found")
)

// EngineConfig carries the engine section of the app config.
type EngineConfig struct {
	InitialCapital   float64
	Backtest         backtest.Options
	AnalysisCacheTTL time.Duration
	AutoCheckpoint   bool
	PublishTimeout   time.Duration
}

// EngineService orchestrates candle source, analysis cores, agents,
// checkpoint persistence and signal publication.
type EngineService struct {
	candles   domrepo.CandleSource
	agents    *agent.Registry
	analyzer  *smc.Analyzer
	store     domrepo.CheckpointStore
	publisher domrepo.SignalPublisher
	metrics   domrepo.Metrics
	analyses  *icache.TTLCache[smc.Analysis]
	cfg       EngineConfig
	l         *applogger.Logger
	now       func() time.Time
}

var _ domsvc.Engine = (*EngineService)(nil)

func NewEngineService(
	candles domrepo.CandleSource,
	agents *agent.Registry,
	store domrepo.CheckpointStore,
	publisher domrepo.SignalPublisher,
	metrics domrepo.Metrics,
	cfg EngineConfig,
	l *applogger.Logger,
) *EngineService {
	if l == nil {
		l = applogger.Nop()
	}
	if cfg.PublishTimeout <= 0 {
		cfg.PublishTimeout = 5 * time.Second
	}
	if cfg.InitialCapital <= 0 {
		cfg.InitialCapital = 10000
	}
	return &EngineService{
		candles:   candles,
		agents:    agents,
		analyzer:  smc.NewAnalyzer(),
		store:     store,
		publisher: publisher,
		metrics:   metrics,
		analyses:  icache.NewTTLCache[smc.Analysis](cfg.AnalysisCacheTTL),
		cfg:       cfg,
		l:         l,
		now:       time.Now,
	}
}

// latest fetches the newest n candles, oldest first.
func (s *EngineService) latest(ctx context.Context, symbol string, n int, tf domrepo.Timeframe) ([]models.Candle, error) {
	start := s.now()
	cs, err := s.candles.GetLatestNCandles(ctx, symbol, n, tf)
	s.metrics.RecordLatency("candle_source", time.Since(start).Seconds())
	if err != nil {
		s.metrics.RecordError("candle_source")
		return nil, fmt.Errorf("load candles %s/%s: %w", symbol, tf, err)
	}
	if len(cs) == 0 {
		return nil, fmt.Errorf("%s/%s: %w", symbol, tf, ErrNoCandles)
	}
	s.metrics.RecordLastPrice(symbol, cs[len(cs)-1].Close)
	return cs, nil
}

func (s *EngineService) Indicators(ctx context.Context, symbol string, n int, tf domrepo.Timeframe) (indicators.Snapshot, error) {
	symbol = agent.NormalizeSymbol(symbol)
	cs, err := s.latest(ctx, symbol, n, tf)
	if err != nil {
		return indicators.Snapshot{}, err
	}
	return indicators.Compute(cs), nil
}

func analysisKey(symbol string, tf domrepo.Timeframe, n int) string {
	return fmt.Sprintf("%s:%s:%d", symbol, tf, n)
}

// Structure returns the market-structure analysis, served from the
// analysis cache while it is fresh. Kill zones always reflect the current clock.
func (s *EngineService) Structure(ctx context.Context, symbol string, n int, tf domrepo.Timeframe) (smc.Analysis, error) {
	symbol = agent.NormalizeSymbol(symbol)
	key := analysisKey(symbol, tf, n)
	if a, ok := s.analyses.Get(key); ok {
		return a.WithKillZonesAt(s.now()), nil
	}
	s.l.Debug("analysis cache miss", applogger.String("key", key))

	cs, err := s.latest(ctx, symbol, n, tf)
	if err != nil {
		return smc.Analysis{}, err
	}
	start := s.now()
	a := s.analyzer.AnalyzeAt(cs, s.now())
	s.metrics.RecordLatency("smc_analyze", time.Since(start).Seconds())
	s.analyses.Set(key, a)
	return a, nil
}

// Signal derives a trading signal from the structure analysis and publishes it.
func (s *EngineService) Signal(ctx context.Context, symbol string, n int, tf domrepo.Timeframe) (smc.Signal, error) {
	symbol = agent.NormalizeSymbol(symbol)
	a, err := s.Structure(ctx, symbol, n, tf)
	if err != nil {
		return smc.Signal{}, err
	}
	sig := smc.GenerateSignal(a)
	s.metrics.RecordSignal(symbol, string(sig.Action))

	pctx, cancel := context.WithTimeout(ctx, s.cfg.PublishTimeout)
	defer cancel()
	if err := s.publisher.PublishSignal(pctx, symbol, tf, sig); err != nil {
		// publication is best effort; the caller still gets the signal
		s.metrics.RecordError("publish_signal")
		s.l.Warn("signal publish failed", applogger.String("symbol", symbol), applogger.Error(err))
	}
	return sig, nil
}

func (s *EngineService) KillZones(at time.Time) []smc.KillZone {
	if at.IsZero() {
		at = s.now()
	}
	return smc.KillZones(at.UTC())
}

// Backtest replays either the candles in the request or the newest
// req.Limit candles from the source.
func (s *EngineService) Backtest(ctx context.Context, req models.BacktestRequest) (*backtest.Result, error) {
	symbol := agent.NormalizeSymbol(req.Symbol)
	tf := domrepo.NormalizeTimeframe(req.TF)

	cs := req.Candles
	if len(cs) == 0 {
		var err error
		if cs, err = s.latest(ctx, symbol, req.Limit, tf); err != nil {
			return nil, err
		}
	}

	opts := s.cfg.Backtest
	if req.StopLossPct > 0 {
		opts.StopLossPct = req.StopLossPct
	}
	if req.TakeProfitPct > 0 {
		opts.TakeProfitPct = req.TakeProfitPct
	}
	if req.RSIPeriod > 0 {
		opts.RSIPeriod = req.RSIPeriod
	}
	if req.SMAPeriod > 0 {
		opts.SMAPeriod = req.SMAPeriod
	}
	if req.RSIBuy > 0 {
		opts.RSIBuy = req.RSIBuy
	}
	if req.RSISell > 0 {
		opts.RSISell = req.RSISell
	}
	if req.MACDFast > 0 {
		opts.MACDFast = req.MACDFast
	}
	if req.MACDSlow > 0 {
		opts.MACDSlow = req.MACDSlow
	}
	if req.MACDSignal > 0 {
		opts.MACDSignal = req.MACDSignal
	}
	capital := req.InitialCapital
	if capital <= 0 {
		capital = s.cfg.InitialCapital
	}

	start := s.now()
	res, err := backtest.RunBacktest(cs, req.Strategy, symbol, capital, opts)
	s.metrics.RecordLatency("backtest", time.Since(start).Seconds())
	if err != nil {
		return nil, err
	}
	s.metrics.RecordBacktest(string(res.Strategy), res.TotalReturn)
	s.l.Info("backtest finished",
		applogger.String("symbol", symbol),
		applogger.String("strategy", string(res.Strategy)),
		applogger.Int("candles", res.Candles),
		applogger.Int("trades", res.TotalTrades),
		applogger.Float64("return_pct", res.TotalReturn),
	)

	pctx, cancel := context.WithTimeout(ctx, s.cfg.PublishTimeout)
	defer cancel()
	if err := s.publisher.PublishBacktest(pctx, &res); err != nil {
		s.metrics.RecordError("publish_backtest")
		s.l.Warn("backtest publish failed", applogger.String("symbol", symbol), applogger.Error(err))
	}
	return &res, nil
}

// Train runs req.Episodes episodes over one candle window. The agent is
// created on first use.
func (s *EngineService) Train(ctx context.Context, symbol string, req models.TrainRequest) ([]agent.EpisodeResult, error) {
	symbol = agent.NormalizeSymbol(symbol)
	tf := domrepo.NormalizeTimeframe(req.TF)

	cs := req.Candles
	if len(cs) == 0 {
		var err error
		if cs, err = s.latest(ctx, symbol, req.Limit, tf); err != nil {
			return nil, err
		}
	}
	if len(cs) < agent.MinTrainCandles {
		return nil, fmt.Errorf("%w: training needs %d, got %d", agent.ErrInsufficientCandles, agent.MinTrainCandles, len(cs))
	}
	capital := req.InitialCapital
	if capital <= 0 {
		capital = s.cfg.InitialCapital
	}
	episodes := max(req.Episodes, 1)

	a := s.agents.Get(symbol)
	results := make([]agent.EpisodeResult, 0, episodes)
	start := s.now()
	for i := 0; i < episodes; i++ {
		if err := ctx.Err(); err != nil {
			return results, err
		}
		res, err := a.Train(cs, capital)
		if err != nil {
			return results, err
		}
		s.metrics.RecordEpisode(symbol, res.TotalReward, res.ExplorationRate, res.StatesLearned)
		results = append(results, res)
	}
	s.metrics.RecordLatency("train", time.Since(start).Seconds())

	last := results[len(results)-1]
	s.l.Info("agent trained",
		applogger.String("symbol", symbol),
		applogger.Int("episodes", episodes),
		applogger.Int("episode", last.Episode),
		applogger.Float64("reward", last.TotalReward),
		applogger.Float64("epsilon", last.ExplorationRate),
		applogger.Int("states", last.StatesLearned),
	)

	if s.cfg.AutoCheckpoint {
		if _, err := s.SaveCheckpoint(ctx, symbol); err != nil {
			s.metrics.RecordError("auto_checkpoint")
			s.l.Warn("auto checkpoint failed", applogger.String("symbol", symbol), applogger.Error(err))
		}
	}
	return results, nil
}

// Predict returns the greedy action for the newest bar. An agent that was
// never trained answers with an untrained prediction.
func (s *EngineService) Predict(ctx context.Context, symbol string, n int, tf domrepo.Timeframe) (agent.Prediction, error) {
	symbol = agent.NormalizeSymbol(symbol)
	cs, err := s.latest(ctx, symbol, n, tf)
	if err != nil {
		return agent.Prediction{}, err
	}
	p, err := s.agents.Get(symbol).Predict(cs)
	if err != nil {
		return agent.Prediction{}, err
	}
	s.metrics.RecordPrediction(symbol, string(p.Action))
	return p, nil
}

func (s *EngineService) lookup(symbol string) (*agent.Agent, error) {
	a, ok := s.agents.Lookup(symbol)
	if !ok {
		return nil, fmt.Errorf("%s: %w", agent.NormalizeSymbol(symbol), ErrAgentNotFound)
	}
	return a, nil
}

func (s *EngineService) AgentStats(symbol string) (agent.Stats, error) {
	a, err := s.lookup(symbol)
	if err != nil {
		return agent.Stats{}, err
	}
	return a.Stats(), nil
}

func (s *EngineService) ResetAgent(symbol string) error {
	a, err := s.lookup(symbol)
	if err != nil {
		return err
	}
	a.Reset()
	s.l.Info("agent reset", applogger.String("symbol", agent.NormalizeSymbol(symbol)))
	return nil
}

func (s *EngineService) QTable(symbol string) (map[string]agent.QValues, error) {
	a, err := s.lookup(symbol)
	if err != nil {
		return nil, err
	}
	return a.QTable(), nil
}

func (s *EngineService) LoadQTable(symbol string, values map[string]agent.QValues) error {
	return s.agents.Get(symbol).LoadQTable(values)
}

// UpdateAgentConfig merges the non-nil fields of req into the agent config.
// An unknown symbol starts from the registry defaults and its agent is only
// created once the merged config validates.
func (s *EngineService) UpdateAgentConfig(symbol string, req models.AgentConfigRequest) (agent.Config, error) {
	cfg := s.agents.Config()
	if a, ok := s.agents.Lookup(symbol); ok {
		cfg = a.Config()
	}
	current := cfg
	setIf(&cfg.LearningRate, req.LearningRate)
	setIf(&cfg.DiscountFactor, req.DiscountFactor)
	setIf(&cfg.ExplorationRate, req.ExplorationRate)
	setIf(&cfg.ExplorationDecay, req.ExplorationDecay)
	setIf(&cfg.MinExploration, req.MinExploration)
	setIf(&cfg.BatchSize, req.BatchSize)
	setIf(&cfg.MemorySize, req.MemorySize)
	if err := cfg.Validate(); err != nil {
		return current, err
	}
	a := s.agents.Get(symbol)
	if err := a.SetConfig(cfg); err != nil {
		return a.Config(), err
	}
	return cfg, nil
}

func setIf[T any](dst *T, v *T) {
	if v != nil {
		*dst = *v
	}
}

func (s *EngineService) SaveCheckpoint(ctx context.Context, symbol string) (agent.Checkpoint, error) {
	a, err := s.lookup(symbol)
	if err != nil {
		return agent.Checkpoint{}, err
	}
	cp := a.Checkpoint()
	cp.Symbol = agent.NormalizeSymbol(symbol)
	cp.SavedAt = s.now().UTC()
	if err := s.store.Save(ctx, cp); err != nil {
		s.metrics.RecordError("checkpoint_save")
		return agent.Checkpoint{}, err
	}
	return cp, nil
}

// RestoreCheckpoint loads the stored checkpoint into the symbol's agent,
// creating the agent if needed.
func (s *EngineService) RestoreCheckpoint(ctx context.Context, symbol string) (agent.Stats, error) {
	cp, err := s.store.Load(ctx, symbol)
	if err != nil {
		return agent.Stats{}, err
	}
	a := s.agents.Get(symbol)
	if err := a.Restore(cp); err != nil {
		return agent.Stats{}, err
	}
	s.l.Info("agent restored",
		applogger.String("symbol", cp.Symbol),
		applogger.Int("episodes", cp.Episodes),
		applogger.Int("states", len(cp.QTable)),
	)
	return a.Stats(), nil
}

func (s *EngineService) Agents(ctx context.Context) (domsvc.AgentList, error) {
	saved, err := s.store.List(ctx)
	if err != nil {
		return domsvc.AgentList{}, err
	}
	return domsvc.AgentList{Active: s.agents.Symbols(), Checkpoints: saved}, nil
}

// RestoreAll loads every stored checkpoint. Used once at startup.
func (s *EngineService) RestoreAll(ctx context.Context) int {
	saved, err := s.store.List(ctx)
	if err != nil {
		s.l.Warn("list checkpoints failed", applogger.Error(err))
		return 0
	}
	restored := 0
	for _, symbol := range saved {
		if _, err := s.RestoreCheckpoint(ctx, symbol); err != nil {
			s.l.Warn("restore checkpoint failed", applogger.String("symbol", symbol), applogger.Error(err))
			continue
		}
		restored++
	}
	return restored
}

// SaveAll checkpoints every live agent. Used on shutdown.
func (s *EngineService) SaveAll(ctx context.Context) {
	for _, symbol := range s.agents.Symbols() {
		if _, err := s.SaveCheckpoint(ctx, symbol); err != nil {
			s.l.Warn("checkpoint on shutdown failed", applogger.String("symbol", symbol), applogger.Error(err))
		}
	}
}
