// Package router wires the per-channel queues of both directions to the
// host units that feed and drain them, and drives the session lifecycle.
//
// The router never starts goroutines. It installs callbacks; the host calls
// them on its own threads.
package router

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"go.uber.org/multierr"

	"github.com/audiolibrelab/xlrbridge/internal/channel"
	"github.com/audiolibrelab/xlrbridge/internal/host"
	"github.com/audiolibrelab/xlrbridge/internal/queue"
	"github.com/audiolibrelab/xlrbridge/internal/route"
)

var (
	// ErrState is returned for a lifecycle call the current state forbids.
	ErrState = errors.New("invalid router state")
	// ErrRegistration is returned when a callback cannot be registered.
	ErrRegistration = errors.New("callback registration failed")
)

// State is the lifecycle position of a router.
type State int32

const (
	StateUnconfigured State = iota
	StateWired
	StateRunning
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateUnconfigured:
		return "unconfigured"
	case StateWired:
		return "wired"
	case StateRunning:
		return "running"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Options configure queue sizing and underrun handling.
type Options struct {
	Capacity  int
	Policy    queue.Policy
	Filler    queue.Filler
	MaxFrames int
	Logger    *slog.Logger
}

// Binding is the set of units of one direction.
type Binding struct {
	Table *channel.Table
	// Wide is the hardware unit: playback for the capture direction,
	// capture for the render direction.
	Wide host.Unit
	// Endpoints holds one unit per channel, indexed by channel.ID.
	Endpoints []host.Unit
}

// Bindings holds both directions.
type Bindings struct {
	Capture Binding
	Render  Binding
}

func (b *Bindings) of(d channel.Direction) *Binding {
	if d == channel.Capture {
		return &b.Capture
	}
	return &b.Render
}

// registration is one installed callback.
type registration struct {
	direction channel.Direction
	channel   channel.ID
	wide      bool
	label     string
	role      host.Role
	unit      host.Unit
	process   host.Callback

	calls    atomic.Uint64
	failures atomic.Uint64
	released atomic.Uint64
}

func (g *registration) callback(frames int, buf []float32) error {
	g.calls.Add(1)
	err := g.process(frames, buf)
	if err != nil {
		g.failures.Add(1)
		if errors.Is(err, route.ErrReleased) {
			g.released.Add(1)
		}
	}
	return err
}

// Router owns both direction bindings for one session.
type Router struct {
	mu      sync.Mutex
	state   atomic.Int32
	opts    Options
	log     *slog.Logger
	tables  [len(channel.Directions)]*channel.Table
	arena   *Arena
	regs    []*registration
	started int

	// afterRelease runs right after the arena is released.
	afterRelease func()
}

// New returns an unconfigured router.
func New(opts Options) *Router {
	if opts.Capacity <= 0 {
		opts.Capacity = queue.DefaultCapacity
	}
	if opts.MaxFrames <= 0 {
		opts.MaxFrames = route.DefaultMaxFrames
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Router{opts: opts, log: log}
}

// State returns the current lifecycle state.
func (r *Router) State() State { return State(r.state.Load()) }

func (r *Router) setState(s State) {
	r.state.Store(int32(s))
	r.log.Debug("Router state changed", "state", s.String())
}

// Wire allocates every queue, builds the demultiplexers and multiplexers and
// registers them with their units. Any failure is fatal: the router ends up
// stopped with nothing registered left usable.
func (r *Router) Wire(b Bindings) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if s := r.State(); s != StateUnconfigured {
		return fmt.Errorf("%w: wire from %s", ErrState, s)
	}

	if err := r.wire(&b); err != nil {
		if r.arena != nil {
			r.releaseLocked()
		}
		r.setState(StateStopped)
		return err
	}

	r.setState(StateWired)
	r.log.Info("Router wired", "queues", r.tables[channel.Capture].Len()+r.tables[channel.Render].Len(),
		"units", len(r.regs), "capacity", r.opts.Capacity, "policy", r.opts.Policy.String(), "filler", r.opts.Filler.String())
	return nil
}

func (r *Router) wire(b *Bindings) error {
	for _, d := range channel.Directions {
		bd := b.of(d)
		if bd.Table == nil {
			return fmt.Errorf("%w: %s direction has no channel table", ErrRegistration, d)
		}
		if err := bd.Table.Validate(); err != nil {
			return fmt.Errorf("%w: %v", ErrRegistration, err)
		}
		if bd.Table.Direction() != d {
			return fmt.Errorf("%w: %s binding carries a %s table", ErrRegistration, d, bd.Table.Direction())
		}
		if bd.Wide == nil {
			return fmt.Errorf("%w: %s direction has no hardware unit", ErrRegistration, d)
		}
		if len(bd.Endpoints) != bd.Table.Len() {
			return fmt.Errorf("%w: %s direction has %d endpoint units for %d channels",
				ErrRegistration, d, len(bd.Endpoints), bd.Table.Len())
		}
		r.tables[d] = bd.Table
	}

	arena, err := newArena(r.tables, r.opts.Capacity, r.opts.Policy)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRegistration, err)
	}
	r.arena = arena

	rops := route.Options{Filler: r.opts.Filler, MaxFrames: r.opts.MaxFrames}

	// Endpoints first, then hardware: this is also the start order.
	for _, d := range channel.Directions {
		bd := b.of(d)
		for _, id := range bd.Table.All() {
			h := route.Handle{Direction: d, Channel: id}
			reg := &registration{
				direction: d,
				channel:   id,
				label:     bd.Table.Label(id),
				unit:      bd.Endpoints[id],
			}
			if d == channel.Capture {
				reg.role = host.RoleCapture
				reg.process = route.NewEndpointDemux(h, arena).Process
			} else {
				reg.role = host.RoleRender
				reg.process = route.NewEndpointMux(h, arena, rops).Process
			}
			if err := r.register(reg, channel.SlotsPerChannel); err != nil {
				return err
			}
		}
	}

	for _, d := range channel.Directions {
		bd := b.of(d)
		reg := &registration{direction: d, wide: true, label: "hardware", unit: bd.Wide}
		if d == channel.Capture {
			reg.role = host.RoleRender
			reg.process = route.NewWideMux(bd.Table, arena, rops).Process
		} else {
			reg.role = host.RoleCapture
			reg.process = route.NewWideDemux(bd.Table, arena).Process
		}
		if err := r.register(reg, bd.Table.Width()); err != nil {
			return err
		}
	}
	return nil
}

func (r *Router) register(reg *registration, width int) error {
	if reg.unit == nil {
		return fmt.Errorf("%w: %s/%s has no unit", ErrRegistration, reg.direction, reg.label)
	}
	if got := reg.unit.Format().Channels; got != width {
		return fmt.Errorf("%w: %s is %d channels wide, want %d", ErrRegistration, reg.unit.Name(), got, width)
	}
	if err := reg.unit.SetCallback(reg.callback); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrRegistration, reg.unit.Name(), err)
	}
	r.regs = append(r.regs, reg)
	r.log.Debug("Registered callback", "unit", reg.unit.Name(), "direction", reg.direction.String(),
		"channel", reg.label, "role", reg.role.String())
	return nil
}

// Start starts every registered unit. If one fails, the ones already
// started are stopped again and the router is stopped.
func (r *Router) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if s := r.State(); s != StateWired {
		return fmt.Errorf("%w: start from %s", ErrState, s)
	}

	for _, reg := range r.regs {
		if err := reg.unit.Start(); err != nil {
			startErr := fmt.Errorf("start %s: %w", reg.unit.Name(), err)
			stopErr := r.stopUnitsLocked()
			r.releaseLocked()
			r.setState(StateStopped)
			return multierr.Append(startErr, stopErr)
		}
		r.started++
	}

	r.setState(StateRunning)
	r.log.Info("Router running", "units", r.started)
	return nil
}

// Stop halts every started unit in reverse start order and only then
// releases the queues. Stop is idempotent.
func (r *Router) Stop() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch r.State() {
	case StateStopped:
		return nil
	case StateUnconfigured:
		r.setState(StateStopped)
		return nil
	}

	err := r.stopUnitsLocked()
	r.releaseLocked()
	r.setState(StateStopped)
	if err != nil {
		r.log.Warn("Router stopped with errors", "error", err)
	} else {
		r.log.Info("Router stopped")
	}
	return err
}

func (r *Router) stopUnitsLocked() error {
	var err error
	for i := r.started - 1; i >= 0; i-- {
		reg := r.regs[i]
		if e := reg.unit.Stop(); e != nil {
			err = multierr.Append(err, fmt.Errorf("stop %s: %w", reg.unit.Name(), e))
		}
	}
	r.started = 0
	return err
}

func (r *Router) releaseLocked() {
	r.arena.release()
	if r.afterRelease != nil {
		r.afterRelease()
	}
}
