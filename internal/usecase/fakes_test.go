package usecase

import (
	"context"
	"errors"
	"math"
	"sort"
	"sync"
	"time"

	"QuantDesk/internal/domain/models"
	domrepo "QuantDesk/internal/domain/repository"
	"QuantDesk/internal/services/agent"
	"QuantDesk/internal/services/backtest"
	"QuantDesk/internal/services/smc"
	applogger "QuantDesk/pkg/logger"
)

func series(n int) []models.Candle {
	out := make([]models.Candle, n)
	prev := 100.0
	for i := range out {
		x := float64(i)
		c := 100 + 0.1*x + 5*math.Sin(x*0.3)
		out[i] = models.Candle{
			Time:   int64(i) * 3_600_000,
			Open:   prev,
			High:   math.Max(prev, c) + 0.5,
			Low:    math.Min(prev, c) - 0.5,
			Close:  c,
			Volume: 1000 + 100*math.Cos(x*0.2),
		}
		prev = c
	}
	return out
}

type fakeCandles struct {
	mu    sync.Mutex
	data  map[string][]models.Candle
	err   error
	calls int
}

func (f *fakeCandles) GetCandles(_ context.Context, symbol string, from, to time.Time, _ domrepo.Timeframe) ([]models.Candle, error) {
	if f.err != nil {
		return nil, f.err
	}
	var out []models.Candle
	for _, c := range f.data[symbol] {
		if c.Time >= from.UnixMilli() && c.Time <= to.UnixMilli() {
			out = append(out, c)
		}
	}
	return out, nil
}

func (f *fakeCandles) GetLatestNCandles(_ context.Context, symbol string, n int, _ domrepo.Timeframe) ([]models.Candle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	cs := f.data[symbol]
	if len(cs) > n {
		cs = cs[len(cs)-n:]
	}
	return cs, nil
}

type memStore struct {
	mu  sync.Mutex
	cps map[string]agent.Checkpoint
}

func newMemStore() *memStore { return &memStore{cps: map[string]agent.Checkpoint{}} }

func (m *memStore) Save(_ context.Context, cp agent.Checkpoint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cps[cp.Symbol] = cp
	return nil
}

func (m *memStore) Load(_ context.Context, symbol string) (agent.Checkpoint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp, ok := m.cps[agent.NormalizeSymbol(symbol)]
	if !ok {
		return agent.Checkpoint{}, domrepo.ErrCheckpointNotFound
	}
	return cp, nil
}

func (m *memStore) Delete(_ context.Context, symbol string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.cps, symbol)
	return nil
}

func (m *memStore) List(context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.cps))
	for k := range m.cps {
		out = append(out, k)
	}
	sort.Strings(out)
	return out, nil
}

type fakePublisher struct {
	mu        sync.Mutex
	signals   []smc.Signal
	backtests []*backtest.Result
	fail      bool
}

func (p *fakePublisher) PublishSignal(_ context.Context, _ string, _ domrepo.Timeframe, sig smc.Signal) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fail {
		return errors.New("broker down")
	}
	p.signals = append(p.signals, sig)
	return nil
}

func (p *fakePublisher) PublishBacktest(_ context.Context, res *backtest.Result) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fail {
		return errors.New("broker down")
	}
	p.backtests = append(p.backtests, res)
	return nil
}

func (p *fakePublisher) Close() error { return nil }

type fakeMetrics struct {
	mu       sync.Mutex
	episodes int
	errors   map[string]int
}

func (m *fakeMetrics) RecordSignal(string, string)     {}
func (m *fakeMetrics) RecordPrediction(string, string) {}
func (m *fakeMetrics) RecordEpisode(string, float64, float64, int) {
	m.mu.Lock()
	m.episodes++
	m.mu.Unlock()
}
func (m *fakeMetrics) RecordBacktest(string, float64)  {}
func (m *fakeMetrics) RecordLastPrice(string, float64) {}
func (m *fakeMetrics) RecordLatency(string, float64)   {}
func (m *fakeMetrics) RecordError(kind string) {
	m.mu.Lock()
	if m.errors == nil {
		m.errors = map[string]int{}
	}
	m.errors[kind]++
	m.mu.Unlock()
}

type harness struct {
	svc     *EngineService
	candles *fakeCandles
	store   *memStore
	pub     *fakePublisher
	metrics *fakeMetrics
}

func newHarness(cfg EngineConfig) *harness {
	reg, err := agent.NewRegistry(agent.DefaultConfig(), agent.WithSeed(7))
	if err != nil {
		panic(err)
	}
	if cfg.Backtest == (backtest.Options{}) {
		cfg.Backtest = backtest.DefaultOptions()
	}
	h := &harness{
		candles: &fakeCandles{data: map[string][]models.Candle{"BTCUSDT": series(300)}},
		store:   newMemStore(),
		pub:     &fakePublisher{},
		metrics: &fakeMetrics{},
	}
	h.svc = NewEngineService(h.candles, reg, h.store, h.pub, h.metrics, cfg, applogger.Nop())
	return h
}
