package agent

import (
	"errors"
	"fmt"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
)

var (
	ErrInsufficientCandles = errors.New("insufficient candles")
	ErrInvalidConfig       = errors.New("invalid agent config")
	ErrInvalidCapital      = errors.New("initial capital must be positive")
)

var validate = validator.New()

// Config holds the agent hyperparameters. It is treated as an immutable
// value: callers replace it whole through Agent.SetConfig.
type Config struct {
	LearningRate     float64 `yaml:"learning_rate" json:"learningRate" default:"0.1" validate:"gt=0,lte=1"`
	DiscountFactor   float64 `yaml:"discount_factor" json:"discountFactor" default:"0.95" validate:"gte=0,lte=1"`
	ExplorationRate  float64 `yaml:"exploration_rate" json:"explorationRate" default:"1.0" validate:"gte=0,lte=1"`
	ExplorationDecay float64 `yaml:"exploration_decay" json:"explorationDecay" default:"0.995" validate:"gt=0,lte=1"`
	MinExploration   float64 `yaml:"min_exploration" json:"minExploration" default:"0.01" validate:"gte=0,lte=1"`
	BatchSize        int     `yaml:"batch_size" json:"batchSize" default:"32" validate:"gte=1"`
	MemorySize       int     `yaml:"memory_size" json:"memorySize" default:"10000" validate:"gte=1,gtefield=BatchSize"`
}

// DefaultConfig returns the documented hyperparameter defaults.
func DefaultConfig() Config {
	var cfg Config
	_ = defaults.Set(&cfg)
	return cfg
}

// Validate checks ranges and that the replay memory can hold one batch.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if c.MinExploration > c.ExplorationRate {
		return fmt.Errorf("%w: min exploration %.4f above exploration rate %.4f", ErrInvalidConfig, c.MinExploration, c.ExplorationRate)
	}
	return nil
}
