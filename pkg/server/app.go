package server

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"QuantDesk/pkg/config"
	xhttp "QuantDesk/pkg/http"
	applogger "QuantDesk/pkg/logger"
)

// Engine is the part of the engine the lifecycle drives: checkpoints are
// restored before serving and saved after the listener stops.
type Engine interface {
	RestoreAll(ctx context.Context) int
	SaveAll(ctx context.Context)
}

// Worker is a background component started with the app, such as the job queue.
type Worker interface {
	Start() error
	Stop(ctx context.Context) error
}

// App encapsulates the application lifecycle. Infrastructure clients are
// closed by the cleanup returned from dependency wiring.
type App struct {
	cfg     *config.Config
	l       *applogger.Logger
	http    *xhttp.Server
	engine  Engine
	workers []Worker
	// flush the log digest last so shutdown warnings are shipped too
	digest bool
}

func New(cfg *config.Config, l *applogger.Logger, srv *xhttp.Server, engine Engine, digest bool, workers ...Worker) *App {
	if l == nil {
		l = applogger.Nop()
	}
	return &App{cfg: cfg, l: l, http: srv, engine: engine, workers: workers, digest: digest}
}

// Run starts the application and blocks until SIGINT or SIGTERM.
func (a *App) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return a.RunContext(ctx)
}

// RunContext serves until ctx is cancelled, then shuts down gracefully.
func (a *App) RunContext(ctx context.Context) error {
	restoreCtx, cancel := context.WithTimeout(ctx, a.cfg.Server.ShutdownTimeout)
	n := a.engine.RestoreAll(restoreCtx)
	cancel()
	a.l.Info("agents restored", applogger.Int("count", n))

	for i, w := range a.workers {
		if err := w.Start(); err != nil {
			a.stopWorkers(a.workers[:i])
			return fmt.Errorf("start worker: %w", err)
		}
	}

	if err := a.http.Start(); err != nil {
		a.stopWorkers(a.workers)
		return err
	}
	a.l.Info("quantdesk started",
		applogger.Int("port", a.cfg.Server.Port),
		applogger.String("timeframe", a.cfg.Engine.Timeframe))

	<-ctx.Done()
	a.l.Info("shutdown signal received")
	return a.shutdown()
}

func (a *App) shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
	defer cancel()

	var firstErr error
	if err := a.http.Stop(ctx); err != nil {
		a.l.Error("http shutdown error", applogger.Error(err))
		firstErr = err
	}
	a.stopWorkers(a.workers)
	a.engine.SaveAll(ctx)

	a.l.Info("shutdown complete")
	if a.digest {
		a.l.DetachDigest()
	}
	return firstErr
}

func (a *App) stopWorkers(ws []Worker) {
	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
	defer cancel()
	for i := len(ws) - 1; i >= 0; i-- {
		if err := ws[i].Stop(ctx); err != nil {
			a.l.Warn("worker stop error", applogger.Error(err))
		}
	}
}
