package queue

import (
	"context"
	"fmt"
	"sync"
	"time"

	"QuantDesk/pkg/logger"
)

// MemoryQueue is an in-process queue backed by a buffered channel. Used
// when Redis is not configured; pending messages are lost on restart.
type MemoryQueue struct {
	registry
	config QueueConfig

	msgs    chan Message
	wg      sync.WaitGroup
	stateMu sync.RWMutex
	running bool
	ctx     context.Context
	cancel  context.CancelFunc

	deadMu sync.Mutex
	dead   []Message
}

func NewMemoryQueue(l *logger.Logger, cfg QueueConfig) *MemoryQueue {
	cfg = cfg.withDefaults()
	ctx, cancel := context.WithCancel(context.Background())
	return &MemoryQueue{
		registry: newRegistry(l),
		config:   cfg,
		msgs:     make(chan Message, cfg.QueueSize),
		ctx:      ctx,
		cancel:   cancel,
	}
}

func (q *MemoryQueue) Start() error {
	q.stateMu.Lock()
	defer q.stateMu.Unlock()
	if q.running {
		return fmt.Errorf("queue already running")
	}
	q.running = true
	for i := 0; i < q.config.Workers; i++ {
		q.wg.Add(1)
		go q.worker(i)
	}
	q.logger.Info("memory queue started", logger.Int("workers", q.config.Workers))
	return nil
}

func (q *MemoryQueue) Enqueue(_ context.Context, msgType string, payload interface{}) error {
	q.stateMu.RLock()
	defer q.stateMu.RUnlock()
	if !q.running {
		return ErrNotRunning
	}
	if _, ok := q.lookup(msgType); !ok {
		return fmt.Errorf("%w: %s", ErrUnknownJob, msgType)
	}
	msg, err := newMessage(msgType, payload)
	if err != nil {
		return err
	}
	select {
	case q.msgs <- msg:
		return nil
	default:
		return ErrQueueFull
	}
}

func (q *MemoryQueue) worker(id int) {
	defer q.wg.Done()
	for {
		select {
		case <-q.ctx.Done():
			q.logger.Debug("queue worker stopping", logger.Int("worker_id", id))
			return
		case msg := <-q.msgs:
			switch q.run(q.ctx, msg, q.config.RetryLimit) {
			case outcomeRetry:
				msg.Attempts++
				q.scheduleRetry(msg)
			case outcomeDead:
				q.deadMu.Lock()
				q.dead = append(q.dead, msg)
				q.deadMu.Unlock()
			}
		}
	}
}

func (q *MemoryQueue) scheduleRetry(msg Message) {
	q.wg.Add(1)
	go func() {
		defer q.wg.Done()
		t := time.NewTimer(q.config.RetryDelay)
		defer t.Stop()
		select {
		case <-q.ctx.Done():
		case <-t.C:
			select {
			case q.msgs <- msg:
			case <-q.ctx.Done():
			}
		}
	}()
}

// DeadLetters returns messages that exhausted their retries.
func (q *MemoryQueue) DeadLetters() []Message {
	q.deadMu.Lock()
	defer q.deadMu.Unlock()
	return append([]Message(nil), q.dead...)
}

func (q *MemoryQueue) Stop(ctx context.Context) error {
	q.stateMu.Lock()
	if !q.running {
		q.stateMu.Unlock()
		return nil
	}
	q.running = false
	q.cancel()
	q.stateMu.Unlock()

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()
	select {
	case <-ctx.Done():
		return fmt.Errorf("timeout: %w", ctx.Err())
	case <-done:
		q.logger.Info("memory queue stopped")
		return nil
	}
}

var _ Queue = (*MemoryQueue)(nil)
