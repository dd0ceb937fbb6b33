package usecase

import (
	"context"
	"fmt"
	"sync"
	"time"

	domrepo "QuantDesk/internal/domain/repository"
	"QuantDesk/internal/services/agent"
	"QuantDesk/internal/services/indicators"
	"QuantDesk/internal/services/smc"
)

// Overview bundles indicators, the structure signal and the agent
// prediction for one symbol. Parts that fail are reported in Errors.
type Overview struct {
	Symbol     string               `json:"symbol"`
	Timeframe  string               `json:"timeframe"`
	Timestamp  time.Time            `json:"timestamp"`
	Indicators *indicators.Snapshot `json:"indicators,omitempty"`
	Signal     *smc.Signal          `json:"signal,omitempty"`
	Prediction *agent.Prediction    `json:"prediction,omitempty"`
	Errors     map[string]string    `json:"errors,omitempty"`
}

// OverviewUseCase fans out to the engine concurrently under one timeout.
type OverviewUseCase struct {
	engine  *EngineService
	timeout time.Duration
}

func NewOverviewUseCase(engine *EngineService) *OverviewUseCase {
	return &OverviewUseCase{engine: engine, timeout: 10 * time.Second}
}

func (uc *OverviewUseCase) Get(ctx context.Context, symbol string, n int, tf domrepo.Timeframe) (*Overview, error) {
	if symbol == "" {
		return nil, fmt.Errorf("symbol required")
	}
	ctx, cancel := context.WithTimeout(ctx, uc.timeout)
	defer cancel()

	res := &Overview{
		Symbol:    agent.NormalizeSymbol(symbol),
		Timeframe: string(tf),
		Timestamp: uc.engine.now().UTC(),
		Errors:    map[string]string{},
	}

	type item struct {
		name string
		val  interface{}
		err  error
	}
	ch := make(chan item, 3)
	var wg sync.WaitGroup

	wg.Add(3)
	go func() {
		defer wg.Done()
		v, err := uc.engine.Indicators(ctx, symbol, n, tf)
		ch <- item{"indicators", v, err}
	}()
	go func() {
		defer wg.Done()
		v, err := uc.engine.Signal(ctx, symbol, n, tf)
		ch <- item{"signal", v, err}
	}()
	go func() {
		defer wg.Done()
		v, err := uc.engine.Predict(ctx, symbol, n, tf)
		ch <- item{"prediction", v, err}
	}()
	go func() { wg.Wait(); close(ch) }()

	var firstErr error
	for it := range ch {
		if it.err != nil {
			res.Errors[it.name] = it.err.Error()
			if firstErr == nil {
				firstErr = it.err
			}
			continue
		}
		switch v := it.val.(type) {
		case indicators.Snapshot:
			res.Indicators = &v
		case smc.Signal:
			res.Signal = &v
		case agent.Prediction:
			res.Prediction = &v
		}
	}

	if len(res.Errors) == 3 {
		return nil, fmt.Errorf("overview %s: %w", res.Symbol, firstErr)
	}
	if len(res.Errors) == 0 {
		res.Errors = nil
	}
	return res, nil
}
