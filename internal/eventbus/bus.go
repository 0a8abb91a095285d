// Package eventbus is a small in-memory fan-out for lifecycle signals.
package eventbus

import (
	"sync"
	"time"
)

// Event is a lightweight signal used to decouple components.
//
// Contract:
//   - Publish never blocks.
//   - Slow subscribers drop events (bounded backpressure).
type Event struct {
	Type string
	Time time.Time
	Data map[string]any
}

type Bus interface {
	Publish(e Event)
	Subscribe(buffer int) (ch <-chan Event, unsubscribe func())
}

// New returns an in-memory fan-out bus that also remembers the last
// historySize events (0 disables history).
//
// It does not own any background goroutines.
func New(historySize int) *MemBus {
	if historySize < 0 {
		historySize = 0
	}
	return &MemBus{subs: map[uint64]chan Event{}, histMax: historySize}
}

type MemBus struct {
	mu      sync.Mutex
	subs    map[uint64]chan Event
	seq     uint64
	dropped uint64

	hist    []Event
	histMax int
}

func (b *MemBus) Publish(e Event) {
	if e.Time.IsZero() {
		e.Time = time.Now()
	}

	// Sends happen under the lock so unsubscribe can never close a channel mid-send;
	// every send is non-blocking.
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.histMax > 0 {
		if len(b.hist) == b.histMax {
			copy(b.hist, b.hist[1:])
			b.hist = b.hist[:len(b.hist)-1]
		}
		b.hist = append(b.hist, e)
	}
	for _, ch := range b.subs {
		select {
		case ch <- e:
		default:
			b.dropped++
		}
	}
}

func (b *MemBus) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 8
	}
	ch := make(chan Event, buffer)

	b.mu.Lock()
	b.seq++
	id := b.seq
	b.subs[id] = ch
	b.mu.Unlock()

	var once sync.Once
	unsub := func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			close(ch)
			b.mu.Unlock()
		})
	}
	return ch, unsub
}

// Recent returns up to n of the most recent events, oldest first.
func (b *MemBus) Recent(n int) []Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	if n <= 0 || n > len(b.hist) {
		n = len(b.hist)
	}
	out := make([]Event, n)
	copy(out, b.hist[len(b.hist)-n:])
	return out
}

// Dropped reports how many deliveries were skipped because a subscriber was full.
func (b *MemBus) Dropped() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dropped
}
