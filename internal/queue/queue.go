// Package queue implements the bounded sample queue shared between one
// producer callback and one consumer callback.
//
// A Queue never blocks beyond its own mutex, never allocates after
// construction and never grows. Pushing into a full queue evicts the oldest
// sample. Reads copy a window of the oldest samples; whether the window is
// removed afterwards depends on the queue's Policy.
package queue

import (
	"errors"
	"sync"
	"sync/atomic"
)

// DefaultCapacity is the per-channel capacity in samples.
const DefaultCapacity = 1024

// ErrInvalidCapacity is returned by New for a non-positive capacity.
var ErrInvalidCapacity = errors.New("queue capacity must be positive")

// Policy selects what a read does to the samples it returns.
type Policy int

const (
	// PolicyPeek leaves read samples in place. The window only advances when
	// the producer evicts old samples from a full queue.
	PolicyPeek Policy = iota
	// PolicyConsume removes every sample it returns.
	PolicyConsume
)

func (p Policy) String() string {
	switch p {
	case PolicyPeek:
		return "peek"
	case PolicyConsume:
		return "consume"
	default:
		return "unknown"
	}
}

// ParsePolicy maps a config string onto a Policy.
func ParsePolicy(s string) (Policy, error) {
	switch s {
	case "", "peek":
		return PolicyPeek, nil
	case "consume":
		return PolicyConsume, nil
	default:
		return PolicyPeek, errors.New("unknown queue policy: " + s)
	}
}

// Stats is a point-in-time snapshot of a queue's counters.
type Stats struct {
	Len        int    `json:"len"`
	Capacity   int    `json:"capacity"`
	Pushed     uint64 `json:"pushed"`
	Evicted    uint64 `json:"evicted"`
	Reads      uint64 `json:"reads"`
	ShortReads uint64 `json:"short_reads"`
}

// Queue is a fixed-capacity circular buffer of float32 samples.
type Queue struct {
	mu     sync.Mutex
	buf    []float32
	head   int // index of the oldest sample
	length int
	policy Policy

	pushed     atomic.Uint64
	evicted    atomic.Uint64
	reads      atomic.Uint64
	shortReads atomic.Uint64
}

// New allocates a queue holding at most capacity samples.
func New(capacity int, policy Policy) (*Queue, error) {
	if capacity <= 0 {
		return nil, ErrInvalidCapacity
	}
	return &Queue{
		buf:    make([]float32, capacity),
		policy: policy,
	}, nil
}

// Cap returns the fixed capacity.
func (q *Queue) Cap() int { return len(q.buf) }

// Policy returns the read policy chosen at construction.
func (q *Queue) Policy() Policy { return q.policy }

// Len returns the number of samples currently held.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.length
}

// Push appends one sample, evicting the oldest one when the queue is full.
func (q *Queue) Push(sample float32) {
	q.mu.Lock()
	q.push(sample)
	q.mu.Unlock()
	q.pushed.Add(1)
}

// PushPair appends a left/right pair under a single lock acquisition.
func (q *Queue) PushPair(left, right float32) {
	q.mu.Lock()
	q.push(left)
	q.push(right)
	q.mu.Unlock()
	q.pushed.Add(2)
}

// PushSlice appends samples in order. Only the last Cap() samples survive
// when len(samples) exceeds the capacity.
func (q *Queue) PushSlice(samples []float32) {
	q.mu.Lock()
	for _, s := range samples {
		q.push(s)
	}
	q.mu.Unlock()
	q.pushed.Add(uint64(len(samples)))
}

// push must be called with mu held.
func (q *Queue) push(sample float32) {
	c := len(q.buf)
	if q.length == c {
		q.buf[q.head] = sample
		q.head++
		if q.head == c {
			q.head = 0
		}
		q.evicted.Add(1)
		return
	}
	tail := q.head + q.length
	if tail >= c {
		tail -= c
	}
	q.buf[tail] = sample
	q.length++
}

// ReadWindow copies the oldest min(len(dst), Len()) samples into the trailing
// slots of dst and returns how many were copied. The leading
// len(dst)-n slots are not written; the caller decides what goes there.
func (q *Queue) ReadWindow(dst []float32) int {
	want := len(dst)
	q.mu.Lock()
	n := q.length
	if n > want {
		n = want
	}
	out := dst[want-n:]
	c := len(q.buf)
	first := c - q.head
	if first > n {
		first = n
	}
	copy(out, q.buf[q.head:q.head+first])
	copy(out[first:], q.buf[:n-first])
	if q.policy == PolicyConsume {
		q.head += n
		if q.head >= c {
			q.head -= c
		}
		q.length -= n
	}
	q.mu.Unlock()

	q.reads.Add(1)
	if n < want {
		q.shortReads.Add(1)
	}
	return n
}

// Reset drops every sample without touching the counters.
func (q *Queue) Reset() {
	q.mu.Lock()
	q.head = 0
	q.length = 0
	q.mu.Unlock()
}

// Stats returns the current counters.
func (q *Queue) Stats() Stats {
	return Stats{
		Len:        q.Len(),
		Capacity:   len(q.buf),
		Pushed:     q.pushed.Load(),
		Evicted:    q.evicted.Load(),
		Reads:      q.reads.Load(),
		ShortReads: q.shortReads.Load(),
	}
}
