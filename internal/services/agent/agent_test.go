package agent

import (
	"errors"
	"math"
	"math/rand"
	"sync"
	"testing"

	"QuantDesk/internal/domain/models"
)

func series(n int) []models.Candle {
	out := make([]models.Candle, n)
	for i := range out {
		c := 100*(1+0.002*float64(i)) + 2*math.Sin(float64(i)*0.7)
		o := c - 0.5*math.Cos(float64(i)*0.7)
		out[i] = models.Candle{
			Time:   int64(i) * 60_000,
			Open:   o,
			High:   math.Max(o, c) + 0.3,
			Low:    math.Min(o, c) - 0.3,
			Close:  c,
			Volume: 1000 + 200*math.Sin(float64(i)*1.3),
		}
	}
	return out
}

func newTestAgent(t *testing.T) *Agent {
	t.Helper()
	a, err := New(DefaultConfig(), WithSeed(42))
	if err != nil {
		t.Fatalf("new agent: %v", err)
	}
	return a
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	want := Config{
		LearningRate:     0.1,
		DiscountFactor:   0.95,
		ExplorationRate:  1.0,
		ExplorationDecay: 0.995,
		MinExploration:   0.01,
		BatchSize:        32,
		MemorySize:       10000,
	}
	if cfg != want {
		t.Fatalf("DefaultConfig() = %+v", cfg)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name string
		mut  func(*Config)
	}{
		{"zero learning rate", func(c *Config) { c.LearningRate = 0 }},
		{"discount above one", func(c *Config) { c.DiscountFactor = 1.5 }},
		{"memory below batch", func(c *Config) { c.MemorySize = 8 }},
		{"floor above start", func(c *Config) { c.MinExploration = 0.5; c.ExplorationRate = 0.2 }},
		{"zero batch", func(c *Config) { c.BatchSize = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mut(&cfg)
			if err := cfg.Validate(); !errors.Is(err, ErrInvalidConfig) {
				t.Fatalf("expected ErrInvalidConfig, got %v", err)
			}
		})
	}
}

func TestTrainCandleThreshold(t *testing.T) {
	a := newTestAgent(t)

	_, err := a.Train(series(49), 10000)
	if !errors.Is(err, ErrInsufficientCandles) {
		t.Fatalf("expected ErrInsufficientCandles, got %v", err)
	}
	if st := a.Stats(); st.TotalEpisodes != 0 || st.ExplorationRate != 1 || st.StatesLearned != 0 || st.MemoryUsed != 0 {
		t.Fatalf("failed training mutated the agent: %+v", st)
	}

	res, err := a.Train(series(50), 10000)
	if err != nil {
		t.Fatalf("train on 50 candles: %v", err)
	}
	if res.Episode != 1 || res.Steps != 19 {
		t.Fatalf("unexpected episode %+v", res)
	}
	if got := res.Actions.Buy + res.Actions.Sell + res.Actions.Hold; got != res.Steps {
		t.Fatalf("action counts %+v do not add up to %d", res.Actions, res.Steps)
	}
	if res.FinalCapital <= 0 || math.Abs(res.PnL-(res.FinalCapital-10000)) > 1e-9 {
		t.Fatalf("unexpected capital %+v", res)
	}
}

func TestTrainRejectsBadCapital(t *testing.T) {
	a := newTestAgent(t)
	if _, err := a.Train(series(60), 0); !errors.Is(err, ErrInvalidCapital) {
		t.Fatalf("expected ErrInvalidCapital, got %v", err)
	}
	if a.Stats().TotalEpisodes != 0 {
		t.Fatalf("episode counted on failure")
	}
}

func TestExplorationDecayLaw(t *testing.T) {
	a := newTestAgent(t)
	cfg := a.Config()
	candles := series(60)

	for n := 1; n <= 20; n++ {
		if _, err := a.Train(candles, 10000); err != nil {
			t.Fatalf("episode %d: %v", n, err)
		}
		want := math.Max(cfg.MinExploration, cfg.ExplorationRate*math.Pow(cfg.ExplorationDecay, float64(n)))
		if got := a.Stats().ExplorationRate; math.Abs(got-want) > 1e-12 {
			t.Fatalf("after %d episodes epsilon = %v, want %v", n, got, want)
		}
	}
}

func TestExplorationFloor(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ExplorationDecay = 0.5
	cfg.MinExploration = 0.2
	a, err := New(cfg, WithSeed(1))
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 5; i++ {
		if _, err := a.Train(series(55), 1000); err != nil {
			t.Fatal(err)
		}
	}
	if got := a.Stats().ExplorationRate; got != 0.2 {
		t.Fatalf("epsilon = %v, want floor 0.2", got)
	}
}

func TestResetRestoresStartingState(t *testing.T) {
	a := newTestAgent(t)
	for i := 0; i < 3; i++ {
		if _, err := a.Train(series(80), 10000); err != nil {
			t.Fatal(err)
		}
	}
	if st := a.Stats(); st.TotalEpisodes != 3 || st.StatesLearned == 0 {
		t.Fatalf("expected learning before reset, got %+v", st)
	}

	a.Reset()
	st := a.Stats()
	if st.TotalEpisodes != 0 || st.TotalReward != 0 || st.ExplorationRate != 1.0 || st.StatesLearned != 0 || st.MemoryUsed != 0 {
		t.Fatalf("unexpected stats after reset: %+v", st)
	}
}

func TestPredict(t *testing.T) {
	a := newTestAgent(t)

	if _, err := a.Predict(series(29)); !errors.Is(err, ErrInsufficientCandles) {
		t.Fatalf("expected ErrInsufficientCandles, got %v", err)
	}

	p, err := a.Predict(series(30))
	if err != nil {
		t.Fatalf("predict: %v", err)
	}
	if p.Action != models.ActionBuy || math.Abs(p.Confidence-1.0/3) > 1e-12 {
		t.Fatalf("untrained agent should pick buy at 1/3, got %+v", p)
	}

	key := p.State.Key()
	if err := a.LoadQTable(map[string]QValues{key.String(): {-1, 3, 0}}); err != nil {
		t.Fatal(err)
	}
	p, err = a.Predict(series(30))
	if err != nil {
		t.Fatal(err)
	}
	if p.Action != models.ActionSell || math.Abs(p.Confidence-0.75) > 1e-12 {
		t.Fatalf("expected sell at 0.75, got %+v", p)
	}
}

func TestPredictUsesTrainedKeys(t *testing.T) {
	a := newTestAgent(t)
	candles := series(200)
	for i := 0; i < 30; i++ {
		if _, err := a.Train(candles, 10000); err != nil {
			t.Fatalf("train episode %d: %v", i, err)
		}
	}

	// the last window Train decides on ends at the second to last bar
	history := candles[:199]
	p, err := a.Predict(history)
	if err != nil {
		t.Fatal(err)
	}
	if want := ExtractState(history[len(history)-episodeWindow:]).Key().String(); p.StateKey != want {
		t.Fatalf("predict key %s, want trailing window key %s", p.StateKey, want)
	}
	if _, ok := a.QTable()[p.StateKey]; !ok {
		t.Fatalf("predict key %s was never learned", p.StateKey)
	}
	if p.QValues == (QValues{}) {
		t.Fatalf("expected learned q-values for %s", p.StateKey)
	}

	// a longer history reads the same trailing window
	long, err := a.Predict(candles[100:199])
	if err != nil {
		t.Fatal(err)
	}
	if long.StateKey != p.StateKey {
		t.Fatalf("key depends on history length: %s vs %s", long.StateKey, p.StateKey)
	}
}

func TestSelectActionTies(t *testing.T) {
	a := newTestAgent(t)
	s := NeutralState()
	k := s.Key()

	tests := []struct {
		q    QValues
		want models.Action
	}{
		{QValues{0, 0, 0}, models.ActionBuy},
		{QValues{0, 1, 1}, models.ActionSell},
		{QValues{-1, -1, 0}, models.ActionHold},
		{QValues{2, 2, 1}, models.ActionBuy},
	}
	for _, tt := range tests {
		a.q.Set(k, tt.q)
		if got := a.SelectAction(s, false); got != tt.want {
			t.Fatalf("q=%v: got %s, want %s", tt.q, got, tt.want)
		}
	}
}

func TestSetConfig(t *testing.T) {
	a := newTestAgent(t)
	for i := 0; i < 60; i++ {
		a.memory.Push(Experience{Reward: float64(i)})
	}

	cfg := a.Config()
	cfg.BatchSize = 8
	cfg.MemorySize = 16
	if err := a.SetConfig(cfg); err != nil {
		t.Fatalf("set config: %v", err)
	}
	if a.memory.Len() != 16 || a.memory.Cap() != 16 {
		t.Fatalf("buffer not resized: len %d cap %d", a.memory.Len(), a.memory.Cap())
	}
	if items := a.memory.Items(); items[0].Reward != 44 || items[15].Reward != 59 {
		t.Fatalf("resize should keep newest items, got %v..%v", items[0].Reward, items[15].Reward)
	}

	bad := cfg
	bad.LearningRate = 2
	if err := a.SetConfig(bad); !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig, got %v", err)
	}
	if a.Config() != cfg {
		t.Fatalf("invalid config was applied")
	}

	cfg.ExplorationRate = 0.3
	if err := a.SetConfig(cfg); err != nil {
		t.Fatal(err)
	}
	if got := a.Stats().ExplorationRate; got != 0.3 {
		t.Fatalf("new starting rate should apply, got %v", got)
	}
}

func TestCheckpointRoundTrip(t *testing.T) {
	a := newTestAgent(t)
	for i := 0; i < 4; i++ {
		if _, err := a.Train(series(90), 5000); err != nil {
			t.Fatal(err)
		}
	}
	cp := a.Checkpoint()

	b := newTestAgent(t)
	if err := b.Restore(cp); err != nil {
		t.Fatalf("restore: %v", err)
	}
	sa, sb := a.Stats(), b.Stats()
	if sa.TotalEpisodes != sb.TotalEpisodes || sa.ExplorationRate != sb.ExplorationRate || sa.StatesLearned != sb.StatesLearned {
		t.Fatalf("restored stats differ: %+v vs %+v", sa, sb)
	}
	if sb.MemoryUsed != 0 {
		t.Fatalf("restore should start with an empty buffer")
	}

	cp.QTable["bogus"] = QValues{}
	if err := b.Restore(cp); err == nil {
		t.Fatalf("expected error for malformed key")
	}
}

func TestStateKeyRoundTrip(t *testing.T) {
	k := StateKey{Price: -2, RSI: 4, MACD: -1, Volume: 1, Trend: -1, Volatility: 2}
	if k.String() != "-2|4|-1|1|-1|2" {
		t.Fatalf("unexpected key string %q", k.String())
	}
	got, err := ParseStateKey(k.String())
	if err != nil || got != k {
		t.Fatalf("ParseStateKey = %+v, %v", got, err)
	}
	for _, bad := range []string{"", "1|2|3", "a|0|0|0|0|0", "1|2|3|4|5|999"} {
		if _, err := ParseStateKey(bad); err == nil {
			t.Fatalf("expected error for %q", bad)
		}
	}
}

func TestStateBuckets(t *testing.T) {
	tests := []struct {
		s    State
		want StateKey
	}{
		{NeutralState(), StateKey{RSI: 2}},
		{State{PriceChange: -3, RSI: 20, MACDSignal: -1, VolumeChange: -50, TrendStrength: -5, Volatility: 0.5}, StateKey{-2, 0, -1, -1, -1, 0}},
		{State{PriceChange: 0.8, RSI: 65, MACDSignal: 1, VolumeChange: 30, TrendStrength: 2, Volatility: 5}, StateKey{1, 3, 1, 1, 1, 2}},
		{State{PriceChange: -1, RSI: 40, VolumeChange: 10, TrendStrength: 0.5, Volatility: 2}, StateKey{-1, 1, 0, 0, 0, 1}},
		{State{PriceChange: 9, RSI: 80}, StateKey{Price: 2, RSI: 4}},
	}
	for _, tt := range tests {
		if got := tt.s.Key(); got != tt.want {
			t.Fatalf("%+v.Key() = %+v, want %+v", tt.s, got, tt.want)
		}
	}
}

func TestExtractState(t *testing.T) {
	if got := ExtractState(series(26)); got != NeutralState() {
		t.Fatalf("short history should be neutral, got %+v", got)
	}
	s := ExtractState(series(120))
	if s.PriceChange < -10 || s.PriceChange > 10 || s.VolumeChange < -100 || s.VolumeChange > 100 ||
		s.TrendStrength < -10 || s.TrendStrength > 10 || s.Volatility < 0 || s.Volatility > 10 ||
		s.RSI < 0 || s.RSI > 100 {
		t.Fatalf("state out of range: %+v", s)
	}

	spike := series(40)
	spike[39].Volume = 1e9
	spike[39].Close = spike[34].Close * 2
	s = ExtractState(spike)
	if s.VolumeChange != 100 || s.PriceChange != 10 {
		t.Fatalf("expected clamped extremes, got %+v", s)
	}
}

func TestReplayBuffer(t *testing.T) {
	b := NewReplayBuffer(3)
	rng := rand.New(rand.NewSource(7))
	if b.Sample(1, rng) != nil {
		t.Fatalf("empty buffer should not sample")
	}
	for i := 0; i < 5; i++ {
		b.Push(Experience{Reward: float64(i)})
	}
	items := b.Items()
	if len(items) != 3 || items[0].Reward != 2 || items[2].Reward != 4 {
		t.Fatalf("FIFO eviction broken: %+v", items)
	}
	if b.Sample(4, rng) != nil {
		t.Fatalf("oversized sample should be nil")
	}
	sample := b.Sample(3, rng)
	seen := map[float64]bool{}
	for _, e := range sample {
		seen[e.Reward] = true
	}
	if len(seen) != 3 {
		t.Fatalf("sample should be without replacement: %+v", sample)
	}
}

func TestQTableGetDoesNotInsert(t *testing.T) {
	q := NewQTable()
	if v := q.Get(StateKey{Price: 1}); v != (QValues{}) {
		t.Fatalf("unseen state should be zero, got %v", v)
	}
	if q.Len() != 0 {
		t.Fatalf("Get inserted an entry")
	}
}

func TestRegistry(t *testing.T) {
	r, err := NewRegistry(DefaultConfig(), WithSeed(3))
	if err != nil {
		t.Fatal(err)
	}
	a := r.Get(" btcusdt ")
	if b := r.Get("BTCUSDT"); a != b {
		t.Fatalf("symbol keys should be case-normalized")
	}
	if c := r.Get("ETHUSDT"); c == a {
		t.Fatalf("different symbols must not share an agent")
	}
	if got := r.Symbols(); len(got) != 2 || got[0] != "BTCUSDT" || got[1] != "ETHUSDT" {
		t.Fatalf("unexpected symbols %v", got)
	}
	if _, ok := r.Lookup("solusdt"); ok {
		t.Fatalf("lookup should not create")
	}
	if !r.Remove("ethusdt") || r.Remove("ethusdt") {
		t.Fatalf("remove semantics broken")
	}

	var wg sync.WaitGroup
	agents := make([]*Agent, 16)
	for i := range agents {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			agents[i] = r.Get("xrpusdt")
		}(i)
	}
	wg.Wait()
	for _, x := range agents[1:] {
		if x != agents[0] {
			t.Fatalf("concurrent Get created duplicate agents")
		}
	}

	bad := DefaultConfig()
	bad.BatchSize = 0
	if _, err := NewRegistry(bad); !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig, got %v", err)
	}
}
