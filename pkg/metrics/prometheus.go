package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements repository.Metrics using Prometheus.
type Recorder struct {
	signals        *prometheus.CounterVec
	predictions    *prometheus.CounterVec
	episodes       *prometheus.CounterVec
	episodeReward  *prometheus.GaugeVec
	exploration    *prometheus.GaugeVec
	statesLearned  *prometheus.GaugeVec
	backtests      *prometheus.CounterVec
	backtestReturn *prometheus.HistogramVec
	errorsTotal    *prometheus.CounterVec
	lastPrice      *prometheus.GaugeVec
	latency        *prometheus.HistogramVec
}

// New registers the engine metrics on the default registry.
func New() *Recorder {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry registers the engine metrics on reg.
func NewWithRegistry(reg prometheus.Registerer) *Recorder {
	f := promauto.With(reg)
	return &Recorder{
		signals: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "quantdesk_signals_total",
				Help: "SMC signals generated by action",
			},
			[]string{"symbol", "action"},
		),
		predictions: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "quantdesk_agent_predictions_total",
				Help: "Agent predictions served by action",
			},
			[]string{"symbol", "action"},
		),
		episodes: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "quantdesk_agent_episodes_total",
				Help: "Training episodes completed",
			},
			[]string{"symbol"},
		),
		episodeReward: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "quantdesk_agent_episode_reward",
				Help: "Total reward of the last training episode",
			},
			[]string{"symbol"},
		),
		exploration: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "quantdesk_agent_exploration_rate",
				Help: "Current epsilon of the agent",
			},
			[]string{"symbol"},
		),
		statesLearned: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "quantdesk_agent_states_learned",
				Help: "Distinct states in the Q-table",
			},
			[]string{"symbol"},
		),
		backtests: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "quantdesk_backtests_total",
				Help: "Backtests run by strategy",
			},
			[]string{"strategy"},
		),
		backtestReturn: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "quantdesk_backtest_return_percent",
				Help:    "Total return of completed backtests",
				Buckets: []float64{-50, -20, -10, -5, -1, 0, 1, 5, 10, 20, 50, 100},
			},
			[]string{"strategy"},
		),
		errorsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "quantdesk_errors_total",
				Help: "Total number of errors encountered",
			},
			[]string{"type"},
		),
		lastPrice: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "quantdesk_last_price",
				Help: "Last analysed close for a symbol",
			},
			[]string{"symbol"},
		),
		latency: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "quantdesk_operation_duration_seconds",
				Help:    "Duration of operations in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
	}
}

func (r *Recorder) RecordSignal(symbol, action string) {
	r.signals.WithLabelValues(symbol, action).Inc()
}

func (r *Recorder) RecordPrediction(symbol, action string) {
	r.predictions.WithLabelValues(symbol, action).Inc()
}

// RecordEpisode records one finished training episode and the agent state after it.
func (r *Recorder) RecordEpisode(symbol string, reward, epsilon float64, states int) {
	r.episodes.WithLabelValues(symbol).Inc()
	r.episodeReward.WithLabelValues(symbol).Set(reward)
	r.exploration.WithLabelValues(symbol).Set(epsilon)
	r.statesLearned.WithLabelValues(symbol).Set(float64(states))
}

func (r *Recorder) RecordBacktest(strategy string, totalReturn float64) {
	r.backtests.WithLabelValues(strategy).Inc()
	r.backtestReturn.WithLabelValues(strategy).Observe(totalReturn)
}

// RecordError records an error occurrence.
func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

// RecordLastPrice records the last price for a symbol.
func (r *Recorder) RecordLastPrice(symbol string, price float64) {
	r.lastPrice.WithLabelValues(symbol).Set(price)
}

// RecordLatency records operation latency in seconds.
func (r *Recorder) RecordLatency(op string, seconds float64) {
	r.latency.WithLabelValues(op).Observe(seconds)
}
