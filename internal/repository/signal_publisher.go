package repository

import (
	"context"
	"time"

	domrepo "QuantDesk/internal/domain/repository"
	"QuantDesk/internal/services/backtest"
	"QuantDesk/internal/services/smc"
)

// eventProducer is the subset of pkg/kafka.Producer used here.
type eventProducer interface {
	Publish(ctx context.Context, topic string, key []byte, value interface{}) error
	Close() error
}

// SignalEvent is the message published for every generated signal.
type SignalEvent struct {
	Symbol    string     `json:"symbol"`
	Timeframe string     `json:"timeframe"`
	Signal    smc.Signal `json:"signal"`
	Timestamp time.Time  `json:"timestamp"`
}

// BacktestEvent is a backtest summary without trades and equity curve.
type BacktestEvent struct {
	Symbol       string            `json:"symbol"`
	Strategy     backtest.Strategy `json:"strategy"`
	Candles      int               `json:"candles"`
	TotalReturn  float64           `json:"totalReturn"`
	TotalTrades  int               `json:"totalTrades"`
	WinRate      float64           `json:"winRate"`
	MaxDrawdown  float64           `json:"maxDrawdown"`
	SharpeRatio  float64           `json:"sharpeRatio"`
	ProfitFactor float64           `json:"profitFactor"`
	Timestamp    time.Time         `json:"timestamp"`
}

// KafkaSignalPublisher publishes keyed by symbol so one symbol's events stay ordered.
type KafkaSignalPublisher struct {
	producer      eventProducer
	signalTopic   string
	backtestTopic string
	now           func() time.Time
}

func NewKafkaSignalPublisher(p eventProducer, signalTopic, backtestTopic string) *KafkaSignalPublisher {
	return &KafkaSignalPublisher{
		producer:      p,
		signalTopic:   signalTopic,
		backtestTopic: backtestTopic,
		now:           time.Now,
	}
}

func (p *KafkaSignalPublisher) PublishSignal(ctx context.Context, symbol string, tf domrepo.Timeframe, sig smc.Signal) error {
	ev := SignalEvent{Symbol: symbol, Timeframe: string(tf), Signal: sig, Timestamp: p.now().UTC()}
	return p.producer.Publish(ctx, p.signalTopic, []byte(symbol), ev)
}

func (p *KafkaSignalPublisher) PublishBacktest(ctx context.Context, res *backtest.Result) error {
	ev := BacktestEvent{
		Symbol:       res.Symbol,
		Strategy:     res.Strategy,
		Candles:      res.Candles,
		TotalReturn:  res.TotalReturn,
		TotalTrades:  res.TotalTrades,
		WinRate:      res.WinRate,
		MaxDrawdown:  res.MaxDrawdown,
		SharpeRatio:  res.SharpeRatio,
		ProfitFactor: res.ProfitFactor,
		Timestamp:    p.now().UTC(),
	}
	return p.producer.Publish(ctx, p.backtestTopic, []byte(res.Symbol), ev)
}

func (p *KafkaSignalPublisher) Close() error {
	return p.producer.Close()
}

// NopSignalPublisher drops everything. Used when Kafka is disabled.
type NopSignalPublisher struct{}

func (NopSignalPublisher) PublishSignal(context.Context, string, domrepo.Timeframe, smc.Signal) error {
	return nil
}

func (NopSignalPublisher) PublishBacktest(context.Context, *backtest.Result) error { return nil }

func (NopSignalPublisher) Close() error { return nil }
