package di

import (
	"context"
	"fmt"
	"time"

	"QuantDesk/internal/domain/repository"
	"QuantDesk/internal/handler/api"
	internalrepo "QuantDesk/internal/repository"
	"QuantDesk/internal/service/ratelimit"
	"QuantDesk/internal/services/agent"
	"QuantDesk/internal/services/backtest"
	"QuantDesk/internal/usecase"
	"QuantDesk/pkg/cache"
	pkgch "QuantDesk/pkg/clickhouse"
	"QuantDesk/pkg/config"
	xhttp "QuantDesk/pkg/http"
	pkgkafka "QuantDesk/pkg/kafka"
	applogger "QuantDesk/pkg/logger"
	"QuantDesk/pkg/metrics"
	"QuantDesk/pkg/queue"
	"QuantDesk/pkg/server"
)

const startupTimeout = 10 * time.Second

// ProvideLogger builds the application logger from the log section.
func ProvideLogger(cfg *config.Config) (*applogger.Logger, error) {
	l, err := applogger.New(&applogger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		Output:     cfg.Log.Output,
		TimeFormat: cfg.Log.TimeFormat,
	})
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	return l.With(applogger.String("env", cfg.Environment)), nil
}

// ProvideMetrics registers the engine metrics on the default registry.
func ProvideMetrics() repository.Metrics {
	return metrics.New()
}

// ProvideRedis connects to Redis when enabled and returns nil otherwise.
// The connection is closed through the cache built on top of it.
func ProvideRedis(cfg *config.Config, l *applogger.Logger) (*cache.RedisCache, error) {
	if !cfg.Redis.Enabled {
		l.Info("redis disabled, using in-memory cache and queue")
		return nil, nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), startupTimeout)
	defer cancel()
	rc, err := cache.NewRedisCache(ctx,
		cache.WithRedisAddr(cfg.Redis.Host, cfg.Redis.Port),
		cache.WithRedisAuth(cfg.Redis.Password, cfg.Redis.DB),
		cache.WithRedisPool(cfg.Redis.PoolSize, 2, 30*time.Second),
		cache.WithRedisPrefix(cfg.Redis.Prefix),
	)
	if err != nil {
		return nil, fmt.Errorf("redis: %w", err)
	}
	l.Info("redis connected", applogger.String("host", cfg.Redis.Host), applogger.Int("port", cfg.Redis.Port))
	return rc, nil
}

// ProvideCache fronts Redis with a small in-process layer, or falls back
// to a memory cache when Redis is disabled.
func ProvideCache(rc *cache.RedisCache, l *applogger.Logger) (cache.Service, func()) {
	var c cache.Service
	if rc == nil {
		c = cache.NewMemoryCache(cache.WithMemoryMaxSize(10000))
	} else {
		c = cache.NewLayeredCache(rc, cache.WithLayeredMemory(1000, 30*time.Second))
	}
	return c, func() {
		if err := c.Close(); err != nil {
			l.Warn("cache close error", applogger.Error(err))
		}
	}
}

// ProvideClickHouseClient opens the candle database.
func ProvideClickHouseClient(cfg *config.Config, l *applogger.Logger) (*pkgch.Client, func(), error) {
	ctx, cancel := context.WithTimeout(context.Background(), startupTimeout)
	defer cancel()
	client, err := pkgch.NewClient(ctx,
		pkgch.WithAddr(cfg.ClickHouse.Host, cfg.ClickHouse.Port),
		pkgch.WithDatabase(cfg.ClickHouse.Database),
		pkgch.WithCredentials(cfg.ClickHouse.User, cfg.ClickHouse.Password),
		pkgch.WithMaxConnections(10, 5),
		pkgch.WithHTTP(cfg.ClickHouse.UseHTTP),
		pkgch.WithTimeouts(cfg.ClickHouse.DialTimeout, cfg.ClickHouse.ReadTimeout),
		pkgch.WithMaxExecutionTime(cfg.ClickHouse.MaxExecutionTime),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("clickhouse client: %w", err)
	}
	l.Info("clickhouse connected", applogger.String("database", client.Database()))
	cleanup := func() {
		if err := client.Close(); err != nil {
			l.Warn("clickhouse close error", applogger.Error(err))
		}
	}
	return client, cleanup, nil
}

// ProvideCandleSource reads candles from ClickHouse.
func ProvideCandleSource(ch *pkgch.Client, l *applogger.Logger) repository.CandleSource {
	store := internalrepo.NewCHCandleStore(ch)
	store.SetLogger(l)
	return store
}

// ProvideKafkaProducer creates the event producer, or nil when Kafka is
// disabled. The signal publisher owns closing it.
func ProvideKafkaProducer(cfg *config.Config, l *applogger.Logger) (*pkgkafka.Producer, error) {
	if !cfg.Kafka.Enabled {
		return nil, nil
	}
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithCompression(cfg.Kafka.Compression),
		pkgkafka.WithRequiredAcks(cfg.Kafka.RequiredAcks),
		pkgkafka.WithBatchSize(cfg.Kafka.Producer.BatchSize),
		pkgkafka.WithBatchBytes(cfg.Kafka.Producer.BatchBytes),
		pkgkafka.WithBatchTimeout(cfg.Kafka.Producer.BatchTimeout),
		pkgkafka.WithTimeouts(cfg.Kafka.Producer.WriteTimeout, cfg.Kafka.Producer.ReadTimeout),
		pkgkafka.WithMaxAttempts(cfg.Kafka.Producer.MaxAttempts),
		pkgkafka.WithAsync(cfg.Kafka.Producer.Async),
		pkgkafka.WithDefaultTopic(cfg.Kafka.SignalTopic),
		pkgkafka.WithHashByKey(true),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}
	l.Info("kafka producer ready", applogger.Strings("brokers", cfg.Kafka.Brokers))
	return producer, nil
}

// ProvideSignalPublisher publishes to Kafka when a producer exists.
func ProvideSignalPublisher(cfg *config.Config, p *pkgkafka.Producer, l *applogger.Logger) (repository.SignalPublisher, func()) {
	if p == nil {
		return internalrepo.NopSignalPublisher{}, func() {}
	}
	pub := internalrepo.NewKafkaSignalPublisher(p, cfg.Kafka.SignalTopic, cfg.Kafka.BacktestTopic)
	return pub, func() {
		if err := pub.Close(); err != nil {
			l.Warn("kafka producer close error", applogger.Error(err))
		}
	}
}

// ProvideErrorDigest ships repeated warn/error lines to the log topic.
// Returns nil unless both log.digest and Kafka are enabled.
func ProvideErrorDigest(cfg *config.Config, l *applogger.Logger, p *pkgkafka.Producer) *applogger.ErrorDigest {
	if !cfg.Log.Digest || p == nil {
		return nil
	}
	d := applogger.NewErrorDigest(applogger.DigestConfig{
		Interval:  cfg.Log.DigestInterval,
		Topic:     cfg.Kafka.LogTopic,
		Publisher: p,
	})
	l.AttachDigest(d)
	return d
}

// ProvideCheckpointStore keeps agent checkpoints in the cache.
func ProvideCheckpointStore(cfg *config.Config, c cache.Service, l *applogger.Logger) repository.CheckpointStore {
	return internalrepo.NewCacheCheckpointStore(c, cfg.Engine.CheckpointTTL, l)
}

// ProvideAgentRegistry validates the agent hyperparameters once at startup.
func ProvideAgentRegistry(cfg *config.Config) (*agent.Registry, error) {
	a := cfg.Engine.Agent
	reg, err := agent.NewRegistry(agent.Config{
		LearningRate:     a.LearningRate,
		DiscountFactor:   a.DiscountFactor,
		ExplorationRate:  a.ExplorationRate,
		ExplorationDecay: a.ExplorationDecay,
		MinExploration:   a.MinExploration,
		BatchSize:        a.BatchSize,
		MemorySize:       a.MemorySize,
	})
	if err != nil {
		return nil, fmt.Errorf("engine.agent: %w", err)
	}
	return reg, nil
}

// ProvideEngineConfig maps the engine section onto the use case config.
func ProvideEngineConfig(cfg *config.Config) (usecase.EngineConfig, error) {
	opts := backtest.DefaultOptions()
	bt := cfg.Engine.Backtest
	st, err := backtest.ParseStrategy(bt.Strategy)
	if err != nil {
		return usecase.EngineConfig{}, fmt.Errorf("engine.backtest: %w", err)
	}
	opts.Strategy = st
	if bt.StopLossPct > 0 {
		opts.StopLossPct = bt.StopLossPct
	}
	if bt.TakeProfitPct > 0 {
		opts.TakeProfitPct = bt.TakeProfitPct
	}
	if _, err := backtest.New(opts); err != nil {
		return usecase.EngineConfig{}, fmt.Errorf("engine.backtest: %w", err)
	}
	return usecase.EngineConfig{
		InitialCapital:   cfg.Engine.InitialCapital,
		Backtest:         opts,
		AnalysisCacheTTL: cfg.Engine.AnalysisCacheTTL,
		AutoCheckpoint:   cfg.Engine.AutoCheckpoint,
		PublishTimeout:   cfg.Kafka.Producer.WriteTimeout,
	}, nil
}

func ProvideEngineService(
	candles repository.CandleSource,
	agents *agent.Registry,
	store repository.CheckpointStore,
	publisher repository.SignalPublisher,
	m repository.Metrics,
	ecfg usecase.EngineConfig,
	l *applogger.Logger,
) *usecase.EngineService {
	return usecase.NewEngineService(candles, agents, store, publisher, m, ecfg, l.With(applogger.String("component", "engine")))
}

func ProvideOverview(engine *usecase.EngineService) *usecase.OverviewUseCase {
	return usecase.NewOverviewUseCase(engine)
}

func ProvideCandles(candles repository.CandleSource) *usecase.CandlesUseCase {
	return usecase.NewCandlesUseCase(candles)
}

// ProvideQueue uses Redis when it is connected so queued jobs survive restarts.
func ProvideQueue(cfg *config.Config, rc *cache.RedisCache, l *applogger.Logger) queue.Queue {
	qcfg := queue.QueueConfig{
		Workers:    cfg.Queue.Workers,
		QueueSize:  cfg.Queue.Size,
		RetryLimit: cfg.Queue.RetryLimit,
		RetryDelay: cfg.Queue.RetryDelay,
	}
	ql := l.With(applogger.String("component", "queue"))
	if rc == nil {
		return queue.NewMemoryQueue(ql, qcfg)
	}
	return queue.NewRedisQueue(ql, qcfg, rc.Client(), queue.WithKeyPrefix(cfg.Redis.Prefix+":queue"))
}

// ProvideTrainJobs registers the training job on q.
func ProvideTrainJobs(cfg *config.Config, engine *usecase.EngineService, q queue.Queue, c cache.Service, l *applogger.Logger) *usecase.TrainJobsUseCase {
	jobs := usecase.NewTrainJobsUseCase(engine, q, c, cfg.Queue.JobTTL, cfg.Queue.RetryLimit, l)
	q.RegisterJob(jobs.Job())
	return jobs
}

func ProvideLimiter(cfg *config.Config) *ratelimit.Limiter {
	return ratelimit.New(cfg.Engine.RateLimit.RPS, cfg.Engine.RateLimit.Burst)
}

func ProvideHandler(
	l *applogger.Logger,
	engine *usecase.EngineService,
	overview *usecase.OverviewUseCase,
	candles *usecase.CandlesUseCase,
	jobs *usecase.TrainJobsUseCase,
	limiter *ratelimit.Limiter,
) *api.EngineEchoHandler {
	return api.NewEngineEchoHandler(l, engine, overview, candles, jobs, limiter)
}

func ProvideHTTPServer(cfg *config.Config, h *api.EngineEchoHandler, l *applogger.Logger) *xhttp.Server {
	opts := []xhttp.ServerOption{
		xhttp.WithPort(cfg.Server.Port),
		xhttp.WithTimeouts(cfg.Server.ReadTimeout, cfg.Server.WriteTimeout, cfg.Server.ShutdownTimeout),
	}
	if cfg.Metrics.Enabled {
		opts = append(opts, xhttp.WithMetricsPath(cfg.Metrics.Path))
	}
	return xhttp.NewServer(h, l, opts...)
}

func ProvideApp(
	cfg *config.Config,
	l *applogger.Logger,
	srv *xhttp.Server,
	engine *usecase.EngineService,
	digest *applogger.ErrorDigest,
	q queue.Queue,
) *server.App {
	return server.New(cfg, l, srv, engine, digest != nil, q)
}
