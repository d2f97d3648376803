package router

import (
	"github.com/audiolibrelab/xlrbridge/internal/channel"
	"github.com/audiolibrelab/xlrbridge/internal/queue"
	"github.com/audiolibrelab/xlrbridge/internal/route"
)

// ChannelStats describes one channel queue.
type ChannelStats struct {
	Direction string      `json:"direction"`
	Channel   string      `json:"channel"`
	Offset    int         `json:"offset"`
	Queue     queue.Stats `json:"queue"`
}

// UnitStats describes one registered callback.
type UnitStats struct {
	Unit      string `json:"unit"`
	Direction string `json:"direction"`
	Channel   string `json:"channel"`
	Role      string `json:"role"`
	Calls     uint64 `json:"calls"`
	Failures  uint64 `json:"failures"`
	// Released counts invocations that arrived after the queues were freed.
	Released uint64 `json:"released"`
}

// Stats is a point-in-time snapshot of the router.
type Stats struct {
	State string `json:"state"`
	// QueuesReleased is set once the arena has been freed.
	QueuesReleased bool           `json:"queues_released"`
	Channels       []ChannelStats `json:"channels"`
	Units          []UnitStats    `json:"units"`
}

// Stats snapshots every counter. Counters are read atomically and are not
// mutually consistent.
func (r *Router) Stats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()

	st := Stats{State: r.State().String()}
	if r.arena != nil {
		st.QueuesReleased = r.arena.Released()
		for _, d := range channel.Directions {
			t := r.tables[d]
			for _, id := range t.All() {
				st.Channels = append(st.Channels, ChannelStats{
					Direction: d.String(),
					Channel:   t.Label(id),
					Offset:    t.BaseOffset(id),
					Queue:     r.arena.stats(route.Handle{Direction: d, Channel: id}),
				})
			}
		}
	}
	for _, reg := range r.regs {
		st.Units = append(st.Units, UnitStats{
			Unit:      reg.unit.Name(),
			Direction: reg.direction.String(),
			Channel:   reg.label,
			Role:      reg.role.String(),
			Calls:     reg.calls.Load(),
			Failures:  reg.failures.Load(),
			Released:  reg.released.Load(),
		})
	}
	return st
}
