package config

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Environment string `yaml:"environment" default:"development"`
	Server      struct {
		Port            int           `yaml:"port" default:"8080"`
		ReadTimeout     time.Duration `yaml:"read_timeout" default:"15s"`
		WriteTimeout    time.Duration `yaml:"write_timeout" default:"60s"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout" default:"10s"`
	} `yaml:"server"`
	Metrics struct {
		Enabled bool   `yaml:"enabled"`
		Path    string `yaml:"path" default:"/metrics"`
	} `yaml:"metrics"`
	Log struct {
		Level      string `yaml:"level" default:"info"`
		Format     string `yaml:"format" default:"json"`
		Output     string `yaml:"output" default:"stdout"`
		TimeFormat string `yaml:"time_format"`
		// publish a digest of warn/error lines to kafka.log_topic
		Digest         bool          `yaml:"digest"`
		DigestInterval time.Duration `yaml:"digest_interval" default:"30s"`
	} `yaml:"log"`
	ClickHouse struct {
		Host             string        `yaml:"host" default:"localhost"`
		Port             int           `yaml:"port" default:"9000"`
		Database         string        `yaml:"database" default:"quantdesk"`
		User             string        `yaml:"user" default:"default"`
		Password         string        `yaml:"password"`
		UseHTTP          bool          `yaml:"use_http"`
		DialTimeout      time.Duration `yaml:"dial_timeout" default:"5s"`
		ReadTimeout      time.Duration `yaml:"read_timeout" default:"30s"`
		WriteTimeout     time.Duration `yaml:"write_timeout" default:"30s"`
		MaxExecutionTime time.Duration `yaml:"max_execution_time" default:"30s"`
	} `yaml:"clickhouse"`
	Redis struct {
		Enabled  bool   `yaml:"enabled"`
		Host     string `yaml:"host" default:"localhost"`
		Port     int    `yaml:"port" default:"6379"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		PoolSize int    `yaml:"pool_size" default:"10"`
		Prefix   string `yaml:"prefix" default:"quantdesk"`
	} `yaml:"redis"`
	Kafka struct {
		Enabled       bool     `yaml:"enabled"`
		Brokers       []string `yaml:"brokers" default:"[\"localhost:9092\"]"`
		SignalTopic   string   `yaml:"signal_topic" default:"quantdesk.signals"`
		BacktestTopic string   `yaml:"backtest_topic" default:"quantdesk.backtests"`
		LogTopic      string   `yaml:"log_topic" default:"quantdesk.logs"`
		RequiredAcks  int      `yaml:"required_acks" default:"-1"`
		Compression   string   `yaml:"compression" default:"snappy"`
		Producer      struct {
			MaxAttempts  int           `yaml:"max_attempts" default:"3"`
			BatchSize    int           `yaml:"batch_size" default:"100"`
			BatchBytes   int           `yaml:"batch_bytes" default:"1048576"`
			BatchTimeout time.Duration `yaml:"batch_timeout" default:"50ms"`
			WriteTimeout time.Duration `yaml:"write_timeout" default:"10s"`
			ReadTimeout  time.Duration `yaml:"read_timeout" default:"10s"`
			Async        bool          `yaml:"async"`
		} `yaml:"producer"`
	} `yaml:"kafka"`
	// background training jobs; backed by Redis when redis.enabled
	Queue struct {
		Workers    int           `yaml:"workers" default:"2"`
		Size       int           `yaml:"size" default:"64"`
		RetryLimit int           `yaml:"retry_limit" default:"2"`
		RetryDelay time.Duration `yaml:"retry_delay" default:"10s"`
		JobTTL     time.Duration `yaml:"job_ttl" default:"24h"`
	} `yaml:"queue"`
	Engine struct {
		Timeframe        string        `yaml:"timeframe" default:"1h"`
		Lookback         int           `yaml:"lookback" default:"500"`
		InitialCapital   float64       `yaml:"initial_capital" default:"10000"`
		AnalysisCacheTTL time.Duration `yaml:"analysis_cache_ttl" default:"30s"`
		CheckpointTTL    time.Duration `yaml:"checkpoint_ttl" default:"720h"`
		// save a checkpoint after every training call
		AutoCheckpoint bool `yaml:"auto_checkpoint"`
		Agent          struct {
			LearningRate     float64 `yaml:"learning_rate" default:"0.1"`
			DiscountFactor   float64 `yaml:"discount_factor" default:"0.95"`
			ExplorationRate  float64 `yaml:"exploration_rate" default:"1.0"`
			ExplorationDecay float64 `yaml:"exploration_decay" default:"0.995"`
			MinExploration   float64 `yaml:"min_exploration" default:"0.01"`
			BatchSize        int     `yaml:"batch_size" default:"32"`
			MemorySize       int     `yaml:"memory_size" default:"10000"`
		} `yaml:"agent"`
		Backtest struct {
			Strategy      string  `yaml:"strategy" default:"combined"`
			StopLossPct   float64 `yaml:"stop_loss_pct" default:"2"`
			TakeProfitPct float64 `yaml:"take_profit_pct" default:"4"`
		} `yaml:"backtest"`
		RateLimit struct {
			RPS   float64 `yaml:"rps" default:"2"`
			Burst int     `yaml:"burst" default:"5"`
		} `yaml:"rate_limit"`
	} `yaml:"engine"`
}

// Load reads a YAML configuration file and fills unset fields with defaults.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(b)
}

// Parse decodes YAML bytes, applies defaults and validates.
func Parse(b []byte) (*Config, error) {
	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := defaults.Set(&c); err != nil {
		return nil, fmt.Errorf("apply defaults: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return &c, nil
}

// LoadWithEnv loads config from YAML and overrides with environment variables.
func LoadWithEnv(path string) (*Config, error) {
	c, err := Load(path)
	if err != nil {
		return nil, err
	}
	if err := c.applyEnv(); err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

func (c *Config) applyEnv() error {
	if v := os.Getenv("CLICKHOUSE_HOST"); v != "" {
		c.ClickHouse.Host = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		host, port, err := net.SplitHostPort(v)
		if err != nil {
			return fmt.Errorf("REDIS_ADDR: %w", err)
		}
		p, err := strconv.Atoi(port)
		if err != nil {
			return fmt.Errorf("REDIS_ADDR port: %w", err)
		}
		c.Redis.Host, c.Redis.Port, c.Redis.Enabled = host, p, true
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("KAFKA_TOPIC"); v != "" {
		c.Kafka.SignalTopic = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	return nil
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Environment == "" {
		return fmt.Errorf("environment is required")
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port out of range: %d", c.Server.Port)
	}
	switch c.Engine.Timeframe {
	case "1m", "5m", "1h":
	default:
		return fmt.Errorf("engine.timeframe must be 1m, 5m or 1h, got '%s'", c.Engine.Timeframe)
	}
	if c.Engine.Lookback < 50 {
		return fmt.Errorf("engine.lookback must be at least 50, got %d", c.Engine.Lookback)
	}
	if c.Engine.InitialCapital <= 0 {
		return fmt.Errorf("engine.initial_capital must be positive")
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka.brokers cannot be empty when kafka is enabled")
	}
	if c.Queue.Workers <= 0 || c.Queue.Size <= 0 || c.Queue.RetryLimit < 0 {
		return fmt.Errorf("queue needs positive workers and size and a non-negative retry_limit")
	}
	if c.Engine.RateLimit.RPS <= 0 || c.Engine.RateLimit.Burst <= 0 {
		return fmt.Errorf("engine.rate_limit needs positive rps and burst")
	}
	return nil
}
