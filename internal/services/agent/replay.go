package agent

import (
	"math/rand"

	"QuantDesk/internal/domain/models"
)

// Experience is one stored transition.
type Experience struct {
	State     StateKey
	Action    models.Action
	Reward    float64
	NextState StateKey
	Done      bool
}

// ReplayBuffer is a bounded FIFO ring; pushing into a full buffer evicts the oldest item.
type ReplayBuffer struct {
	items []Experience
	head  int
	size  int
}

func NewReplayBuffer(capacity int) *ReplayBuffer {
	if capacity < 1 {
		capacity = 1
	}
	return &ReplayBuffer{items: make([]Experience, capacity)}
}

func (b *ReplayBuffer) Len() int { return b.size }

func (b *ReplayBuffer) Cap() int { return len(b.items) }

func (b *ReplayBuffer) Push(e Experience) {
	idx := (b.head + b.size) % len(b.items)
	b.items[idx] = e
	if b.size < len(b.items) {
		b.size++
		return
	}
	b.head = (b.head + 1) % len(b.items)
}

// Items returns the contents oldest first.
func (b *ReplayBuffer) Items() []Experience {
	out := make([]Experience, b.size)
	for i := 0; i < b.size; i++ {
		out[i] = b.items[(b.head+i)%len(b.items)]
	}
	return out
}

// Sample draws n distinct transitions. It returns nil while the buffer
// holds fewer than n items.
func (b *ReplayBuffer) Sample(n int, rng *rand.Rand) []Experience {
	if n <= 0 || b.size < n {
		return nil
	}
	perm := rng.Perm(b.size)
	out := make([]Experience, n)
	for i := 0; i < n; i++ {
		out[i] = b.items[(b.head+perm[i])%len(b.items)]
	}
	return out
}

// Resize changes the capacity, keeping the newest items.
func (b *ReplayBuffer) Resize(capacity int) {
	if capacity < 1 {
		capacity = 1
	}
	if capacity == len(b.items) {
		return
	}
	items := b.Items()
	if len(items) > capacity {
		items = items[len(items)-capacity:]
	}
	b.items = make([]Experience, capacity)
	copy(b.items, items)
	b.head = 0
	b.size = len(items)
}

func (b *ReplayBuffer) Clear() {
	b.items = make([]Experience, len(b.items))
	b.head, b.size = 0, 0
}
