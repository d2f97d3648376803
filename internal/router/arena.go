package router

import (
	"fmt"
	"sync/atomic"

	"github.com/audiolibrelab/xlrbridge/internal/channel"
	"github.com/audiolibrelab/xlrbridge/internal/queue"
	"github.com/audiolibrelab/xlrbridge/internal/route"
)

// Arena owns every channel queue of a session. Callbacks hold the arena
// only through route.Handle lookups and see nothing once it is released.
type Arena struct {
	queues   [len(channel.Directions)][]*queue.Queue
	released atomic.Bool
}

func newArena(tables [len(channel.Directions)]*channel.Table, capacity int, policy queue.Policy) (*Arena, error) {
	a := &Arena{}
	for _, d := range channel.Directions {
		t := tables[d]
		qs := make([]*queue.Queue, t.Len())
		for _, id := range t.All() {
			q, err := queue.New(capacity, policy)
			if err != nil {
				return nil, fmt.Errorf("%s/%s queue: %w", d, t.Label(id), err)
			}
			qs[id] = q
		}
		a.queues[d] = qs
	}
	return a, nil
}

// Queue implements route.Store.
func (a *Arena) Queue(h route.Handle) (*queue.Queue, bool) {
	if a.released.Load() {
		return nil, false
	}
	if h.Direction < 0 || int(h.Direction) >= len(a.queues) {
		return nil, false
	}
	qs := a.queues[h.Direction]
	if h.Channel < 0 || int(h.Channel) >= len(qs) {
		return nil, false
	}
	return qs[h.Channel], true
}

// Released reports whether release has run.
func (a *Arena) Released() bool { return a.released.Load() }

// release flags the arena and drops buffered audio. Counters survive for
// the final stats.
func (a *Arena) release() {
	if a.released.Swap(true) {
		return
	}
	for _, qs := range a.queues {
		for _, q := range qs {
			q.Reset()
		}
	}
}

func (a *Arena) stats(h route.Handle) queue.Stats {
	return a.queues[h.Direction][h.Channel].Stats()
}
