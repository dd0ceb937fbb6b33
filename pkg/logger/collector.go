package logger

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"
)

// Publisher ships a digest batch somewhere, typically a Kafka topic.
type Publisher interface {
	PublishMessage(ctx context.Context, topic string, payload interface{}) error
}

type DigestConfig struct {
	Interval  time.Duration // flush period
	MaxKeys   int           // flush early once this many distinct entries are pending
	Topic     string
	Publisher Publisher
}

// DigestEntry is one distinct warn/error line with its repeat count.
type DigestEntry struct {
	Level     string                 `json:"level"`
	Message   string                 `json:"message"`
	Fields    map[string]interface{} `json:"fields,omitempty"`
	Caller    string                 `json:"caller"`
	Count     int                    `json:"count"`
	FirstSeen time.Time              `json:"first_seen"`
	LastSeen  time.Time              `json:"last_seen"`
}

// ErrorDigest folds repeated warn/error lines into counted entries and
// publishes them periodically.
type ErrorDigest struct {
	cfg     DigestConfig
	mu      sync.Mutex
	pending map[string]*DigestEntry
	stop    chan struct{}
	wg      sync.WaitGroup
	once    sync.Once
}

func NewErrorDigest(cfg DigestConfig) *ErrorDigest {
	if cfg.Interval <= 0 {
		cfg.Interval = 30 * time.Second
	}
	if cfg.MaxKeys <= 0 {
		cfg.MaxKeys = 100
	}
	d := &ErrorDigest{
		cfg:     cfg,
		pending: make(map[string]*DigestEntry),
		stop:    make(chan struct{}),
	}
	d.wg.Add(1)
	go d.loop()
	return d
}

func (d *ErrorDigest) Add(level, msg, caller string, fields map[string]interface{}) {
	now := time.Now()
	key := digestKey(level, msg, caller, fields)

	d.mu.Lock()
	defer d.mu.Unlock()
	if e, ok := d.pending[key]; ok {
		e.Count++
		e.LastSeen = now
	} else {
		d.pending[key] = &DigestEntry{
			Level: level, Message: msg, Fields: fields, Caller: caller,
			Count: 1, FirstSeen: now, LastSeen: now,
		}
	}
	if len(d.pending) >= d.cfg.MaxKeys {
		d.flushLocked()
	}
}

// Pending returns the number of distinct entries not yet published.
func (d *ErrorDigest) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.pending)
}

func digestKey(level, msg, caller string, fields map[string]interface{}) string {
	raw, _ := json.Marshal(struct {
		L, M, C string
		F       map[string]interface{}
	}{level, msg, caller, fields})
	sum := sha256.Sum256(raw)
	return fmt.Sprintf("%x", sum[:12])
}

func (d *ErrorDigest) loop() {
	defer d.wg.Done()
	ticker := time.NewTicker(d.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			d.mu.Lock()
			d.flushLocked()
			d.mu.Unlock()
		case <-d.stop:
			d.mu.Lock()
			d.flushLocked()
			d.mu.Unlock()
			return
		}
	}
}

// flushLocked hands the pending batch to the publisher. Caller holds mu.
func (d *ErrorDigest) flushLocked() {
	if len(d.pending) == 0 {
		return
	}
	batch := make([]DigestEntry, 0, len(d.pending))
	for _, e := range d.pending {
		batch = append(batch, *e)
	}
	sort.Slice(batch, func(i, j int) bool { return batch[i].Count > batch[j].Count })
	d.pending = make(map[string]*DigestEntry)

	if d.cfg.Publisher == nil {
		return
	}
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := d.cfg.Publisher.PublishMessage(ctx, d.cfg.Topic, batch); err != nil {
			// the logger itself is the one failing here
			fmt.Fprintf(os.Stderr, "error digest publish failed: %v\n", err)
		}
	}()
}

// Close flushes what is pending and waits for in-flight publishes.
func (d *ErrorDigest) Close() {
	d.once.Do(func() {
		close(d.stop)
		d.wg.Wait()
	})
}
