package server

import (
	"context"
	"errors"
	"testing"
	"time"

	"QuantDesk/pkg/config"
	xhttp "QuantDesk/pkg/http"
	applogger "QuantDesk/pkg/logger"
)

type fakeEngine struct {
	restored, saved int
}

func (f *fakeEngine) RestoreAll(context.Context) int { f.restored++; return 2 }
func (f *fakeEngine) SaveAll(context.Context)        { f.saved++ }

type fakeWorker struct {
	startErr         error
	started, stopped bool
}

func (w *fakeWorker) Start() error {
	if w.startErr != nil {
		return w.startErr
	}
	w.started = true
	return nil
}

func (w *fakeWorker) Stop(context.Context) error { w.stopped = true; return nil }

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.Parse([]byte("server:\n  shutdown_timeout: 2s\n"))
	if err != nil {
		t.Fatal(err)
	}
	return cfg
}

func TestRunContextLifecycle(t *testing.T) {
	cfg := testConfig(t)
	srv := xhttp.NewServer(nil, applogger.Nop(), xhttp.WithHost("127.0.0.1"), xhttp.WithPort(0))
	eng := &fakeEngine{}
	w := &fakeWorker{}
	app := New(cfg, nil, srv, eng, false, w)

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(20*time.Millisecond, cancel)
	if err := app.RunContext(ctx); err != nil {
		t.Fatalf("run: %v", err)
	}
	if eng.restored != 1 || eng.saved != 1 {
		t.Fatalf("expected one restore and one save, got %+v", eng)
	}
	if !w.started || !w.stopped {
		t.Fatalf("worker not cycled: %+v", w)
	}
}

func TestRunContextStopsStartedWorkersOnFailure(t *testing.T) {
	cfg := testConfig(t)
	srv := xhttp.NewServer(nil, applogger.Nop(), xhttp.WithHost("127.0.0.1"), xhttp.WithPort(0))
	first := &fakeWorker{}
	second := &fakeWorker{startErr: errors.New("redis ping: refused")}
	app := New(cfg, nil, srv, &fakeEngine{}, false, first, second)

	if err := app.RunContext(context.Background()); err == nil {
		t.Fatal("expected start error")
	}
	if !first.stopped || second.stopped {
		t.Fatalf("unexpected worker state first=%+v second=%+v", first, second)
	}
}
