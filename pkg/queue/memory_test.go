package queue

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type payload struct {
	Symbol string `json:"symbol"`
}

type flakyJob struct {
	mu       sync.Mutex
	failures int
	seen     []string
	done     chan struct{}
}

func (j *flakyJob) Name() string { return "flaky" }
func (j *flakyJob) Type() string { return "test.flaky" }

func (j *flakyJob) Handle(_ context.Context, raw interface{}) error {
	p, err := ParsePayload[payload](raw)
	if err != nil {
		return err
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	j.seen = append(j.seen, p.Symbol)
	if j.failures > 0 {
		j.failures--
		return errors.New("transient")
	}
	close(j.done)
	return nil
}

func newTestQueue(t *testing.T, cfg QueueConfig) *MemoryQueue {
	t.Helper()
	q := NewMemoryQueue(nil, cfg)
	t.Cleanup(func() { _ = q.Stop(context.Background()) })
	return q
}

func TestMemoryQueueRetriesUntilSuccess(t *testing.T) {
	q := newTestQueue(t, QueueConfig{Workers: 2, RetryLimit: 3, RetryDelay: 5 * time.Millisecond})
	job := &flakyJob{failures: 2, done: make(chan struct{})}
	q.RegisterJob(job)
	if err := q.Start(); err != nil {
		t.Fatal(err)
	}

	if err := q.Enqueue(context.Background(), "test.flaky", payload{Symbol: "BTCUSDT"}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	select {
	case <-job.done:
	case <-time.After(2 * time.Second):
		t.Fatal("job never succeeded")
	}

	job.mu.Lock()
	defer job.mu.Unlock()
	if len(job.seen) != 3 || job.seen[2] != "BTCUSDT" {
		t.Fatalf("expected three attempts, got %v", job.seen)
	}
	if len(q.DeadLetters()) != 0 {
		t.Fatalf("unexpected dead letters")
	}
}

func TestMemoryQueueDeadLetters(t *testing.T) {
	q := newTestQueue(t, QueueConfig{RetryLimit: 1, RetryDelay: time.Millisecond})
	job := &flakyJob{failures: 10, done: make(chan struct{})}
	q.RegisterJob(job)
	if err := q.Start(); err != nil {
		t.Fatal(err)
	}
	if err := q.Enqueue(context.Background(), "test.flaky", payload{Symbol: "ETHUSDT"}); err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for len(q.DeadLetters()) == 0 {
		if time.Now().After(deadline) {
			t.Fatal("message never dead-lettered")
		}
		time.Sleep(5 * time.Millisecond)
	}
	if dl := q.DeadLetters()[0]; dl.Attempts != 1 || dl.Type != "test.flaky" {
		t.Fatalf("unexpected dead letter %+v", dl)
	}
}

func TestMemoryQueueEnqueueErrors(t *testing.T) {
	q := newTestQueue(t, QueueConfig{QueueSize: 1})
	if err := q.Enqueue(context.Background(), "test.flaky", nil); !errors.Is(err, ErrNotRunning) {
		t.Fatalf("expected ErrNotRunning, got %v", err)
	}
	if err := q.Start(); err != nil {
		t.Fatal(err)
	}
	if err := q.Start(); err == nil {
		t.Fatal("second start should fail")
	}
	if err := q.Enqueue(context.Background(), "missing", nil); !errors.Is(err, ErrUnknownJob) {
		t.Fatalf("expected ErrUnknownJob, got %v", err)
	}
}

func TestParsePayload(t *testing.T) {
	p, err := ParsePayload[payload]([]byte(`{"symbol":"SOLUSDT"}`))
	if err != nil || p.Symbol != "SOLUSDT" {
		t.Fatalf("ParsePayload = %+v, %v", p, err)
	}
	if p, err := ParsePayload[payload](payload{Symbol: "X"}); err != nil || p.Symbol != "X" {
		t.Fatalf("value payload = %+v, %v", p, err)
	}
	if _, err := ParsePayload[payload](42); err == nil {
		t.Fatal("expected error for int payload")
	}
}
