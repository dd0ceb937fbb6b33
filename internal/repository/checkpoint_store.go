package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	domrepo "QuantDesk/internal/domain/repository"
	"QuantDesk/internal/services/agent"
	"QuantDesk/pkg/cache"
	applogger "QuantDesk/pkg/logger"
)

const (
	checkpointPrefix = "agent:checkpoint"
	checkpointLock   = "agent:checkpoint-lock"
	lockTTL          = 10 * time.Second
)

var ErrCheckpointBusy = errors.New("checkpoint save already in progress")

// CacheCheckpointStore keeps agent checkpoints in a cache.Service, Redis in
// production and the in-memory cache when Redis is disabled.
type CacheCheckpointStore struct {
	cache cache.Service
	ttl   time.Duration
	l     *applogger.Logger
}

func NewCacheCheckpointStore(c cache.Service, ttl time.Duration, l *applogger.Logger) *CacheCheckpointStore {
	if l == nil {
		l = applogger.Nop()
	}
	return &CacheCheckpointStore{cache: c, ttl: ttl, l: l}
}

func checkpointKey(symbol string) string {
	return cache.GenerateKey(checkpointPrefix, agent.NormalizeSymbol(symbol))
}

// Save writes cp under its symbol. Concurrent saves of one symbol are
// rejected with ErrCheckpointBusy rather than interleaved.
func (s *CacheCheckpointStore) Save(ctx context.Context, cp agent.Checkpoint) error {
	symbol := agent.NormalizeSymbol(cp.Symbol)
	if symbol == "" {
		return fmt.Errorf("checkpoint without symbol")
	}
	lockKey := cache.GenerateKey(checkpointLock, symbol)
	ok, err := s.cache.TryLock(ctx, lockKey, lockTTL)
	if err != nil {
		return fmt.Errorf("lock checkpoint %s: %w", symbol, err)
	}
	if !ok {
		return fmt.Errorf("%s: %w", symbol, ErrCheckpointBusy)
	}
	defer func() {
		if err := s.cache.Unlock(ctx, lockKey); err != nil {
			s.l.Warn("checkpoint unlock failed", applogger.String("symbol", symbol), applogger.Error(err))
		}
	}()

	cp.Symbol = symbol
	if err := s.cache.Set(ctx, checkpointKey(symbol), cp, s.ttl); err != nil {
		return fmt.Errorf("save checkpoint %s: %w", symbol, err)
	}
	s.l.Info("checkpoint saved",
		applogger.String("symbol", symbol),
		applogger.Int("states", len(cp.QTable)),
		applogger.Int("episodes", cp.Episodes),
	)
	return nil
}

func (s *CacheCheckpointStore) Load(ctx context.Context, symbol string) (agent.Checkpoint, error) {
	cp, err := cache.GetTyped[agent.Checkpoint](ctx, s.cache, checkpointKey(symbol))
	if errors.Is(err, cache.ErrCacheMiss) {
		s.l.Debug("checkpoint miss", applogger.String("symbol", symbol))
		return agent.Checkpoint{}, fmt.Errorf("%s: %w", agent.NormalizeSymbol(symbol), domrepo.ErrCheckpointNotFound)
	}
	if err != nil {
		return agent.Checkpoint{}, fmt.Errorf("load checkpoint: %w", err)
	}
	return cp, nil
}

func (s *CacheCheckpointStore) Delete(ctx context.Context, symbol string) error {
	return s.cache.Delete(ctx, checkpointKey(symbol))
}

// List returns the symbols that have a stored checkpoint.
func (s *CacheCheckpointStore) List(ctx context.Context) ([]string, error) {
	keys, err := s.cache.Keys(ctx, cache.BuildPattern(checkpointPrefix+":"))
	if err != nil {
		return nil, fmt.Errorf("list checkpoints: %w", err)
	}
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, strings.TrimPrefix(k, checkpointPrefix+":"))
	}
	return out, nil
}
