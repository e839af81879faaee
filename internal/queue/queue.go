package queue

import (
	"fmt"

	"github.com/quantloop/qloop/internal/feed"
)

// Policy selects what happens on enqueue when the queue is full.
type Policy string

const (
	// DropNewest rejects the incoming event. Default.
	DropNewest Policy = "drop_newest"
	// DropOldest evicts the head to make room for the incoming event.
	DropOldest Policy = "drop_oldest"
)

// ParsePolicy validates a configured policy string. Empty means DropNewest.
func ParsePolicy(s string) (Policy, error) {
	switch Policy(s) {
	case "", DropNewest:
		return DropNewest, nil
	case DropOldest:
		return DropOldest, nil
	default:
		return "", fmt.Errorf("unknown backpressure policy %q", s)
	}
}

// Sample is one queue-depth observation, taken on every enqueue/dequeue
// transition at the given virtual time.
type Sample struct {
	At    int64
	Depth int
}

// Queue is the bounded FIFO between ingestion and decision. Strict arrival
// order, no priority reordering. Not safe for concurrent use; each symbol
// lane owns its queue.
type Queue struct {
	capacity    int
	policy      Policy
	items       []feed.Event
	drops       uint64
	activations uint64
	maxDepth    int
	onSample    func(Sample)
}

// New returns a queue of the given capacity. Capacity must be positive.
func New(capacity int, policy Policy, onSample func(Sample)) (*Queue, error) {
	if capacity <= 0 {
		return nil, fmt.Errorf("queue capacity must be positive, got %d", capacity)
	}
	if policy != DropNewest && policy != DropOldest {
		return nil, fmt.Errorf("unknown backpressure policy %q", policy)
	}
	return &Queue{capacity: capacity, policy: policy, onSample: onSample}, nil
}

// Enqueue appends ev, applying the backpressure policy when full. Returns
// true when ev was accepted into the queue. The backpressure-activation
// counter increments once per enqueue that hits the drop branch; exactly one
// event is dropped either way.
func (q *Queue) Enqueue(ev feed.Event, now int64) bool {
	accepted := true
	if len(q.items) >= q.capacity {
		q.activations++
		q.drops++
		if q.policy == DropNewest {
			accepted = false
		} else {
			q.items = q.items[1:] // evict head
			q.items = append(q.items, ev)
		}
	} else {
		q.items = append(q.items, ev)
	}
	q.observe(now)
	return accepted
}

// Dequeue removes and returns the head event. The second return is false
// when the queue is empty, which signals the driver to advance the clock.
func (q *Queue) Dequeue(now int64) (feed.Event, bool) {
	if len(q.items) == 0 {
		return feed.Event{}, false
	}
	ev := q.items[0]
	q.items = q.items[1:]
	q.observe(now)
	return ev, true
}

func (q *Queue) observe(now int64) {
	d := len(q.items)
	if d > q.maxDepth {
		q.maxDepth = d
	}
	if q.onSample != nil {
		q.onSample(Sample{At: now, Depth: d})
	}
}

// Depth returns the current number of queued events.
func (q *Queue) Depth() int { return len(q.items) }

// Drops returns how many events were dropped under backpressure.
func (q *Queue) Drops() uint64 { return q.drops }

// Activations returns how many enqueues hit the drop branch.
func (q *Queue) Activations() uint64 { return q.activations }

// MaxDepth returns the highest depth observed.
func (q *Queue) MaxDepth() int { return q.maxDepth }
