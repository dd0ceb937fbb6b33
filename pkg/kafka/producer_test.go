package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/segmentio/kafka-go"
)

type recordingWriter struct {
	msgs   []kafka.Message
	err    error
	closed bool
}

func (w *recordingWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *recordingWriter) Close() error {
	w.closed = true
	return nil
}

func TestPublishEncodesPayloads(t *testing.T) {
	w := &recordingWriter{}
	p := newProducer(w, "snappy", "quantdesk.signals")
	ctx := context.Background()

	if err := p.Publish(ctx, "", []byte("BTCUSDT"), map[string]float64{"confidence": 72}); err != nil {
		t.Fatal(err)
	}
	if err := p.PublishMessage(ctx, "quantdesk.logs", "raw text"); err != nil {
		t.Fatal(err)
	}
	if len(w.msgs) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(w.msgs))
	}

	first := w.msgs[0]
	if first.Topic != "quantdesk.signals" || string(first.Key) != "BTCUSDT" {
		t.Fatalf("unexpected routing %+v", first)
	}
	var decoded map[string]float64
	if err := json.Unmarshal(first.Value, &decoded); err != nil || decoded["confidence"] != 72 {
		t.Fatalf("unexpected value %s", first.Value)
	}
	if w.msgs[1].Topic != "quantdesk.logs" || string(w.msgs[1].Value) != "raw text" {
		t.Fatalf("unexpected second message %+v", w.msgs[1])
	}

	_ = p.Close()
	if !w.closed {
		t.Fatalf("writer not closed")
	}
}

func TestPublishErrors(t *testing.T) {
	ctx := context.Background()
	p := newProducer(&recordingWriter{}, "snappy", "")
	if err := p.PublishMessage(ctx, "", "x"); !errors.Is(err, ErrNoTopic) {
		t.Fatalf("expected ErrNoTopic, got %v", err)
	}

	boom := errors.New("broker down")
	p = newProducer(&recordingWriter{err: boom}, "snappy", "t")
	if err := p.PublishMessage(ctx, "", "x"); !errors.Is(err, boom) {
		t.Fatalf("expected wrapped writer error, got %v", err)
	}
	if err := p.PublishBatch(ctx, "t", nil); err != nil {
		t.Fatalf("empty batch should be a no-op, got %v", err)
	}
	if _, err := NewProducer(); err == nil {
		t.Fatalf("expected error without brokers")
	}
}
