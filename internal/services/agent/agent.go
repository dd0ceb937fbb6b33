// Package agent implements a tabular Q-learning trader with experience
// replay. One Agent owns its Q-table and replay buffer; a Registry hands
// out one Agent per symbol.
package agent

import (
	"fmt"
	"math"
	"math/rand"
	"sync"
	"time"

	"QuantDesk/internal/domain/models"
)

const (
	MinTrainCandles   = 50
	MinPredictCandles = 30

	// bars of history behind every decision during an episode
	episodeWindow = 30

	buyHeldWeight  = 0.5
	holdLongWeight = 0.8
	holdFlatReward = -0.01
	sellFlatReward = -0.1
)

// ActionCounts tallies the decisions of one episode.
type ActionCounts struct {
	Buy  int `json:"buy"`
	Sell int `json:"sell"`
	Hold int `json:"hold"`
}

func (c *ActionCounts) add(a models.Action) {
	switch a {
	case models.ActionBuy:
		c.Buy++
	case models.ActionSell:
		c.Sell++
	default:
		c.Hold++
	}
}

// EpisodeResult summarizes one training episode.
type EpisodeResult struct {
	Episode         int          `json:"episode"`
	Steps           int          `json:"steps"`
	Actions         ActionCounts `json:"actions"`
	InitialCapital  float64      `json:"initialCapital"`
	FinalCapital    float64      `json:"finalCapital"`
	PnL             float64      `json:"pnl"`
	PnLPct          float64      `json:"pnlPct"`
	Trades          int          `json:"trades"`
	WinningTrades   int          `json:"winningTrades"`
	WinRate         float64      `json:"winRate"`
	MaxDrawdown     float64      `json:"maxDrawdown"`
	TotalReward     float64      `json:"totalReward"`
	ExplorationRate float64      `json:"explorationRate"`
	StatesLearned   int          `json:"statesLearned"`
}

// Prediction is a greedy decision for the latest bar.
type Prediction struct {
	Action     models.Action `json:"action"`
	Confidence float64       `json:"confidence"`
	QValues    QValues       `json:"qValues"`
	State      State         `json:"state"`
	StateKey   string        `json:"stateKey"`
}

// Stats is the agent's learning progress.
type Stats struct {
	TotalEpisodes   int     `json:"totalEpisodes"`
	TotalReward     float64 `json:"totalReward"`
	ExplorationRate float64 `json:"explorationRate"`
	StatesLearned   int     `json:"statesLearned"`
	MemoryUsed      int     `json:"memoryUsed"`
	Config          Config  `json:"config"`
}

// Checkpoint is everything needed to restore an agent across restarts.
type Checkpoint struct {
	Symbol          string             `json:"symbol"`
	Config          Config             `json:"config"`
	ExplorationRate float64            `json:"explorationRate"`
	Episodes        int                `json:"episodes"`
	TotalReward     float64            `json:"totalReward"`
	QTable          map[string]QValues `json:"qTable"`
	SavedAt         time.Time          `json:"savedAt"`
}

// Option configures an Agent.
type Option func(*Agent)

// WithSeed makes exploration and replay sampling reproducible.
func WithSeed(seed int64) Option {
	return func(a *Agent) {
		a.rng = rand.New(rand.NewSource(seed))
	}
}

// Agent is safe for concurrent use; public methods serialize on an internal mutex.
type Agent struct {
	mu          sync.Mutex
	cfg         Config
	epsilon     float64
	q           *QTable
	memory      *ReplayBuffer
	rng         *rand.Rand
	episodes    int
	totalReward float64
}

func New(cfg Config, opts ...Option) (*Agent, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	a := &Agent{
		cfg:     cfg,
		epsilon: cfg.ExplorationRate,
		q:       NewQTable(),
		memory:  NewReplayBuffer(cfg.MemorySize),
		rng:     rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

func (a *Agent) Config() Config {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.cfg
}

// SetConfig swaps the hyperparameters. The live exploration rate is kept
// unless the starting rate changed, and never drops below the new floor.
func (a *Agent) SetConfig(cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	if cfg.ExplorationRate != a.cfg.ExplorationRate {
		a.epsilon = cfg.ExplorationRate
	}
	a.epsilon = math.Min(math.Max(a.epsilon, cfg.MinExploration), cfg.ExplorationRate)
	a.cfg = cfg
	a.memory.Resize(cfg.MemorySize)
	return nil
}

// SelectAction picks an action for state; explore enables epsilon-greedy.
func (a *Agent) SelectAction(state State, explore bool) models.Action {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.selectAction(state.Key(), explore)
}

func (a *Agent) selectAction(k StateKey, explore bool) models.Action {
	if explore && a.rng.Float64() < a.epsilon {
		return models.Actions[a.rng.Intn(len(models.Actions))]
	}
	return a.q.Get(k).Best()
}

// Predict returns the greedy action for the latest bar. The state is read
// from the trailing episode window so it lands on the keys Train fills.
func (a *Agent) Predict(candles []models.Candle) (Prediction, error) {
	if len(candles) < MinPredictCandles {
		return Prediction{}, fmt.Errorf("%w: predict needs %d, got %d", ErrInsufficientCandles, MinPredictCandles, len(candles))
	}
	state := ExtractState(candles[len(candles)-episodeWindow:])
	key := state.Key()

	a.mu.Lock()
	defer a.mu.Unlock()

	qv := a.q.Get(key)
	action := a.selectAction(key, false)

	var sum float64
	for _, v := range qv {
		sum += math.Abs(v)
	}
	conf := 1.0 / 3
	if sum > 0 {
		conf = math.Abs(qv[action.Index()]) / sum
	}
	return Prediction{Action: action, Confidence: conf, QValues: qv, State: state, StateKey: key.String()}, nil
}

// Train runs one simulated trading episode over candles and learns from it.
// Failed preconditions leave the agent untouched.
func (a *Agent) Train(candles []models.Candle, initialCapital float64) (EpisodeResult, error) {
	n := len(candles)
	if n < MinTrainCandles {
		return EpisodeResult{}, fmt.Errorf("%w: training needs %d, got %d", ErrInsufficientCandles, MinTrainCandles, n)
	}
	if initialCapital <= 0 {
		return EpisodeResult{}, ErrInvalidCapital
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	res := EpisodeResult{InitialCapital: initialCapital}
	capital, units, entry := initialCapital, 0.0, 0.0
	peak := initialCapital

	closePosition := func(price float64) float64 {
		proceeds := units * price
		pnlPct := pctChange(entry, price)
		res.Trades++
		if price > entry {
			res.WinningTrades++
		}
		capital, units, entry = proceeds, 0, 0
		return pnlPct
	}

	for i := episodeWindow; i < n-1; i++ {
		key := ExtractState(candles[i-episodeWindow+1 : i+1]).Key()
		nextKey := ExtractState(candles[i-episodeWindow+2 : i+2]).Key()
		action := a.selectAction(key, true)

		price := candles[i].Close
		forward := pctChange(price, candles[i+1].Close)

		var reward float64
		switch action {
		case models.ActionBuy:
			if units == 0 && price > 0 {
				units, entry, capital = capital/price, price, 0
				reward = forward
			} else {
				reward = buyHeldWeight * forward
			}
		case models.ActionSell:
			if units > 0 {
				reward = closePosition(price)
			} else {
				reward = sellFlatReward
			}
		default:
			if units > 0 {
				reward = holdLongWeight * forward
			} else {
				reward = holdFlatReward
			}
		}
		res.Actions.add(action)
		res.Steps++
		res.TotalReward += reward

		a.memory.Push(Experience{State: key, Action: action, Reward: reward, NextState: nextKey, Done: i == n-2})
		a.learn()

		equity := capital + units*price
		peak = math.Max(peak, equity)
		if peak > 0 {
			res.MaxDrawdown = math.Max(res.MaxDrawdown, (peak-equity)/peak*100)
		}
	}

	if units > 0 {
		closePosition(candles[n-1].Close)
		peak = math.Max(peak, capital)
		res.MaxDrawdown = math.Max(res.MaxDrawdown, (peak-capital)/peak*100)
	}

	a.epsilon = math.Max(a.cfg.MinExploration, a.epsilon*a.cfg.ExplorationDecay)
	a.episodes++
	a.totalReward += res.TotalReward

	res.Episode = a.episodes
	res.FinalCapital = capital
	res.PnL = capital - initialCapital
	res.PnLPct = pctChange(initialCapital, capital)
	if res.Trades > 0 {
		res.WinRate = float64(res.WinningTrades) / float64(res.Trades) * 100
	}
	res.ExplorationRate = a.epsilon
	res.StatesLearned = a.q.Len()
	return res, nil
}

// learn applies one Q-learning update per sampled transition. It is a
// no-op until the buffer holds a full batch.
func (a *Agent) learn() {
	batch := a.memory.Sample(a.cfg.BatchSize, a.rng)
	for _, e := range batch {
		qv := a.q.Get(e.State)
		target := e.Reward
		if !e.Done {
			target += a.cfg.DiscountFactor * a.q.Get(e.NextState).Max()
		}
		idx := e.Action.Index()
		qv[idx] += a.cfg.LearningRate * (target - qv[idx])
		a.q.Set(e.State, qv)
	}
}

func (a *Agent) Stats() Stats {
	a.mu.Lock()
	defer a.mu.Unlock()
	return Stats{
		TotalEpisodes:   a.episodes,
		TotalReward:     a.totalReward,
		ExplorationRate: a.epsilon,
		StatesLearned:   a.q.Len(),
		MemoryUsed:      a.memory.Len(),
		Config:          a.cfg,
	}
}

// QTable exports the table keyed by StateKey.String.
func (a *Agent) QTable() map[string]QValues {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.q.Export()
}

// LoadQTable replaces the table. Episode counters and epsilon are untouched.
func (a *Agent) LoadQTable(values map[string]QValues) error {
	t, err := ImportQTable(values)
	if err != nil {
		return err
	}
	a.mu.Lock()
	a.q = t
	a.mu.Unlock()
	return nil
}

// Checkpoint snapshots the agent. The replay buffer is not included.
func (a *Agent) Checkpoint() Checkpoint {
	a.mu.Lock()
	defer a.mu.Unlock()
	return Checkpoint{
		Config:          a.cfg,
		ExplorationRate: a.epsilon,
		Episodes:        a.episodes,
		TotalReward:     a.totalReward,
		QTable:          a.q.Export(),
	}
}

// Restore replaces the agent state with cp and empties the replay buffer.
func (a *Agent) Restore(cp Checkpoint) error {
	if err := cp.Config.Validate(); err != nil {
		return err
	}
	t, err := ImportQTable(cp.QTable)
	if err != nil {
		return err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.cfg = cp.Config
	a.epsilon = math.Min(math.Max(cp.ExplorationRate, cp.Config.MinExploration), cp.Config.ExplorationRate)
	a.episodes = cp.Episodes
	a.totalReward = cp.TotalReward
	a.q = t
	a.memory = NewReplayBuffer(cp.Config.MemorySize)
	return nil
}

// Reset forgets everything learned and restores the starting exploration rate.
func (a *Agent) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.q = NewQTable()
	a.memory = NewReplayBuffer(a.cfg.MemorySize)
	a.episodes = 0
	a.totalReward = 0
	a.epsilon = a.cfg.ExplorationRate
}
