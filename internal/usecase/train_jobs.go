package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"QuantDesk/internal/domain/models"
	"QuantDesk/internal/services/agent"
	"QuantDesk/pkg/cache"
	applogger "QuantDesk/pkg/logger"
	"QuantDesk/pkg/queue"

	"github.com/google/uuid"
)

const TrainJobType = "agent.train"

var ErrJobNotFound = errors.New("training job not found")

type JobState string

const (
	JobQueued  JobState = "queued"
	JobRunning JobState = "running"
	JobDone    JobState = "done"
	JobFailed  JobState = "failed"
)

// TrainJobStatus is what clients poll after submitting a training job.
type TrainJobStatus struct {
	ID        string                `json:"id"`
	Symbol    string                `json:"symbol"`
	State     JobState              `json:"state"`
	Episodes  int                   `json:"episodes"`
	Attempts  int                   `json:"attempts"`
	Results   []agent.EpisodeResult `json:"results,omitempty"`
	Error     string                `json:"error,omitempty"`
	CreatedAt time.Time             `json:"createdAt"`
	UpdatedAt time.Time             `json:"updatedAt"`
}

type trainJobPayload struct {
	ID      string              `json:"id"`
	Symbol  string              `json:"symbol"`
	Request models.TrainRequest `json:"request"`
}

type trainer interface {
	Train(ctx context.Context, symbol string, req models.TrainRequest) ([]agent.EpisodeResult, error)
}

type enqueuer interface {
	Enqueue(ctx context.Context, msgType string, payload interface{}) error
}

// TrainJobsUseCase runs training in the background through a queue and
// keeps job status in the cache.
type TrainJobsUseCase struct {
	engine trainer
	queue  enqueuer
	status cache.Service
	ttl    time.Duration
	// handler runs allowed per job, matching the queue retry limit
	maxAttempts int
	l           *applogger.Logger
	now         func() time.Time
}

func NewTrainJobsUseCase(engine trainer, q enqueuer, status cache.Service, ttl time.Duration, retryLimit int, l *applogger.Logger) *TrainJobsUseCase {
	if l == nil {
		l = applogger.Nop()
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &TrainJobsUseCase{
		engine:      engine,
		queue:       q,
		status:      status,
		ttl:         ttl,
		maxAttempts: max(retryLimit, 0) + 1,
		l:           l,
		now:         time.Now,
	}
}

func jobKey(id string) string { return cache.GenerateKey("job:train", id) }

// Submit records a queued job and enqueues it.
func (uc *TrainJobsUseCase) Submit(ctx context.Context, symbol string, req models.TrainRequest) (TrainJobStatus, error) {
	now := uc.now().UTC()
	st := TrainJobStatus{
		ID:        uuid.NewString(),
		Symbol:    agent.NormalizeSymbol(symbol),
		State:     JobQueued,
		Episodes:  max(req.Episodes, 1),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := uc.save(ctx, st); err != nil {
		return st, err
	}
	p := trainJobPayload{ID: st.ID, Symbol: st.Symbol, Request: req}
	if err := uc.queue.Enqueue(ctx, TrainJobType, p); err != nil {
		_ = uc.status.Delete(ctx, jobKey(st.ID))
		return st, fmt.Errorf("enqueue training job: %w", err)
	}
	uc.l.Info("training job queued", applogger.String("id", st.ID), applogger.String("symbol", st.Symbol))
	return st, nil
}

// Status returns the last recorded state of a job.
func (uc *TrainJobsUseCase) Status(ctx context.Context, id string) (TrainJobStatus, error) {
	st, err := cache.GetTyped[TrainJobStatus](ctx, uc.status, jobKey(id))
	if errors.Is(err, cache.ErrCacheMiss) {
		return st, fmt.Errorf("%s: %w", id, ErrJobNotFound)
	}
	return st, err
}

func (uc *TrainJobsUseCase) save(ctx context.Context, st TrainJobStatus) error {
	if err := uc.status.Set(ctx, jobKey(st.ID), st, uc.ttl); err != nil {
		return fmt.Errorf("save job status: %w", err)
	}
	return nil
}

// Job returns the queue handler that executes submitted jobs.
func (uc *TrainJobsUseCase) Job() queue.Job { return trainJob{uc: uc} }

type trainJob struct{ uc *TrainJobsUseCase }

func (trainJob) Name() string { return "agent-train" }
func (trainJob) Type() string { return TrainJobType }

// Handle trains and records the outcome. Errors caused by the request
// itself fail the job for good; anything else is returned so the queue
// retries it.
func (j trainJob) Handle(ctx context.Context, raw interface{}) error {
	uc := j.uc
	p, err := queue.ParsePayload[trainJobPayload](raw)
	if err != nil {
		return err
	}

	st, err := uc.Status(ctx, p.ID)
	if err != nil {
		// status expired or was never written; rebuild it from the payload
		st = TrainJobStatus{ID: p.ID, Symbol: p.Symbol, Episodes: max(p.Request.Episodes, 1), CreatedAt: uc.now().UTC()}
	}
	st.State = JobRunning
	st.Attempts++
	st.UpdatedAt = uc.now().UTC()
	if err := uc.save(ctx, st); err != nil {
		uc.l.Warn("job status not saved", applogger.String("id", st.ID), applogger.Error(err))
	}

	results, err := uc.engine.Train(ctx, p.Symbol, p.Request)
	st.UpdatedAt = uc.now().UTC()
	st.Results = results
	if err == nil {
		st.State = JobDone
		st.Error = ""
		return uc.save(ctx, st)
	}

	st.Error = err.Error()
	if permanent(err) || st.Attempts >= uc.maxAttempts {
		st.State = JobFailed
		uc.l.Warn("training job failed", applogger.String("id", st.ID), applogger.Error(err))
		return uc.save(ctx, st)
	}
	st.State = JobQueued
	if serr := uc.save(ctx, st); serr != nil {
		uc.l.Warn("job status not saved", applogger.String("id", st.ID), applogger.Error(serr))
	}
	return err
}

func permanent(err error) bool {
	return errors.Is(err, ErrNoCandles) ||
		errors.Is(err, agent.ErrInsufficientCandles) ||
		errors.Is(err, agent.ErrInvalidCapital) ||
		errors.Is(err, agent.ErrInvalidConfig)
}
