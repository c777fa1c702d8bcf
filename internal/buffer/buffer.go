// Package buffer holds collected trajectories between the rollout workers and
// the trainer: a bounded hand-off queue served over HTTP, and the trainer's
// episode store that windows are sampled from.
package buffer

import (
	"sync"
	"time"

	"github.com/pkg/errors"
)

// Policy decides which end of the queue Dequeue takes from.
type Policy string

const (
	PolicyFIFO      Policy = "fifo"      // oldest first
	PolicyFreshness Policy = "freshness" // newest first
)

func ParsePolicy(s string) (Policy, error) {
	switch p := Policy(s); p {
	case PolicyFIFO, PolicyFreshness:
		return p, nil
	}
	return "", errors.Errorf("policy must be %q or %q, got %q", PolicyFIFO, PolicyFreshness, s)
}

type Item struct {
	Trajectory Trajectory
	EnqueuedAt time.Time
}

type ReplayBuffer struct {
	mu       sync.Mutex
	items    []Item
	capacity int
	policy   Policy
}

var (
	ErrBufferFull  = errors.New("buffer is full")
	ErrBufferEmpty = errors.New("buffer is empty")
)

func NewReplayBuffer(capacity int, policy string) (*ReplayBuffer, error) {
	if capacity <= 0 {
		return nil, errors.New("capacity must be greater than zero")
	}
	p, err := ParsePolicy(policy)
	if err != nil {
		return nil, err
	}
	return &ReplayBuffer{
		items:    make([]Item, 0, capacity),
		capacity: capacity,
		policy:   p,
	}, nil
}

func (rb *ReplayBuffer) Enqueue(item Item) error {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	if len(rb.items) >= rb.capacity {
		return ErrBufferFull
	}
	rb.items = append(rb.items, item)
	return nil
}

func (rb *ReplayBuffer) Dequeue() (Item, error) {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	return rb.dequeueLocked()
}

// DequeueBatch removes up to n items in policy order. It returns
// ErrBufferEmpty only when nothing could be taken.
func (rb *ReplayBuffer) DequeueBatch(n int) ([]Item, error) {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	if n > len(rb.items) {
		n = len(rb.items)
	}
	if n <= 0 {
		return nil, ErrBufferEmpty
	}
	out := make([]Item, 0, n)
	for i := 0; i < n; i++ {
		item, err := rb.dequeueLocked()
		if err != nil {
			return nil, err
		}
		out = append(out, item)
	}
	return out, nil
}

func (rb *ReplayBuffer) dequeueLocked() (Item, error) {
	if len(rb.items) == 0 {
		return Item{}, ErrBufferEmpty
	}

	switch rb.policy {
	case PolicyFIFO:
		item := rb.items[0]
		rb.items = rb.items[1:]
		return item, nil
	case PolicyFreshness:
		item := rb.items[len(rb.items)-1]
		rb.items = rb.items[:len(rb.items)-1]
		return item, nil
	default:
		return Item{}, errors.Errorf("unknown policy %q", rb.policy)
	}
}

func (rb *ReplayBuffer) Capacity() int {
	return rb.capacity
}

func (rb *ReplayBuffer) Policy() Policy {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	return rb.policy
}

func (rb *ReplayBuffer) SetPolicy(policy string) error {
	p, err := ParsePolicy(policy)
	if err != nil {
		return err
	}

	rb.mu.Lock()
	defer rb.mu.Unlock()

	rb.policy = p
	return nil
}

func (rb *ReplayBuffer) Size() int {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	return len(rb.items)
}

func (rb *ReplayBuffer) Stats() Stats {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	return Stats{QueueLength: len(rb.items), Capacity: rb.capacity, Policy: rb.policy}
}
