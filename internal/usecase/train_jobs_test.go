package usecase

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"QuantDesk/internal/domain/models"
	"QuantDesk/internal/services/agent"
	"QuantDesk/pkg/cache"
)

type scriptedTrainer struct {
	errs  []error
	calls int
}

func (s *scriptedTrainer) Train(_ context.Context, _ string, req models.TrainRequest) ([]agent.EpisodeResult, error) {
	s.calls++
	if len(s.errs) > 0 {
		err := s.errs[0]
		s.errs = s.errs[1:]
		if err != nil {
			return nil, err
		}
	}
	return make([]agent.EpisodeResult, req.Episodes), nil
}

type recordingQueue struct {
	payloads []interface{}
	err      error
}

func (q *recordingQueue) Enqueue(_ context.Context, msgType string, payload interface{}) error {
	if q.err != nil {
		return q.err
	}
	if msgType != TrainJobType {
		return fmt.Errorf("unexpected type %s", msgType)
	}
	q.payloads = append(q.payloads, payload)
	return nil
}

func newJobs(t *testing.T, tr *scriptedTrainer, q *recordingQueue, retryLimit int) *TrainJobsUseCase {
	t.Helper()
	mc := cache.NewMemoryCache()
	t.Cleanup(func() { _ = mc.Close() })
	return NewTrainJobsUseCase(tr, q, mc, time.Hour, retryLimit, nil)
}

func TestTrainJobLifecycle(t *testing.T) {
	ctx := context.Background()
	tr := &scriptedTrainer{}
	q := &recordingQueue{}
	uc := newJobs(t, tr, q, 2)

	st, err := uc.Submit(ctx, " btcusdt ", models.TrainRequest{Episodes: 3})
	if err != nil {
		t.Fatal(err)
	}
	if st.State != JobQueued || st.Symbol != "BTCUSDT" || st.ID == "" || len(q.payloads) != 1 {
		t.Fatalf("unexpected submit result %+v", st)
	}

	if err := uc.Job().Handle(ctx, q.payloads[0]); err != nil {
		t.Fatalf("handle: %v", err)
	}
	got, err := uc.Status(ctx, st.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.State != JobDone || len(got.Results) != 3 || got.Attempts != 1 {
		t.Fatalf("unexpected final status %+v", got)
	}
}

func TestTrainJobPermanentFailure(t *testing.T) {
	ctx := context.Background()
	tr := &scriptedTrainer{errs: []error{fmt.Errorf("%w: short", agent.ErrInsufficientCandles)}}
	q := &recordingQueue{}
	uc := newJobs(t, tr, q, 3)

	st, _ := uc.Submit(ctx, "ETHUSDT", models.TrainRequest{Episodes: 1})
	if err := uc.Job().Handle(ctx, q.payloads[0]); err != nil {
		t.Fatalf("permanent failures must not be retried, got %v", err)
	}
	got, _ := uc.Status(ctx, st.ID)
	if got.State != JobFailed || got.Error == "" {
		t.Fatalf("expected failed job, got %+v", got)
	}
}

func TestTrainJobTransientFailureRetriesThenFails(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("clickhouse unavailable")
	tr := &scriptedTrainer{errs: []error{boom, boom}}
	q := &recordingQueue{}
	uc := newJobs(t, tr, q, 1)

	st, _ := uc.Submit(ctx, "SOLUSDT", models.TrainRequest{Episodes: 1})
	job := uc.Job()

	if err := job.Handle(ctx, q.payloads[0]); !errors.Is(err, boom) {
		t.Fatalf("expected retryable error, got %v", err)
	}
	if got, _ := uc.Status(ctx, st.ID); got.State != JobQueued || got.Attempts != 1 {
		t.Fatalf("expected job back in queue, got %+v", got)
	}

	if err := job.Handle(ctx, q.payloads[0]); err != nil {
		t.Fatalf("last attempt should settle the job, got %v", err)
	}
	if got, _ := uc.Status(ctx, st.ID); got.State != JobFailed || got.Attempts != 2 {
		t.Fatalf("expected failed job after retries, got %+v", got)
	}
}

func TestTrainJobSubmitErrors(t *testing.T) {
	ctx := context.Background()
	q := &recordingQueue{err: errors.New("queue: full")}
	uc := newJobs(t, &scriptedTrainer{}, q, 0)

	st, err := uc.Submit(ctx, "BTCUSDT", models.TrainRequest{})
	if err == nil {
		t.Fatal("expected enqueue error")
	}
	if _, err := uc.Status(ctx, st.ID); !errors.Is(err, ErrJobNotFound) {
		t.Fatalf("failed submit should leave no status, got %v", err)
	}
	if _, err := uc.Status(ctx, "nope"); !errors.Is(err, ErrJobNotFound) {
		t.Fatalf("expected ErrJobNotFound, got %v", err)
	}
}
