package offline

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/benbjohnson/clock"

	"github.com/audiolibrelab/xlrbridge/internal/host"
)

var _ host.Unit = (*unit)(nil)

type unit struct {
	host   *Host
	name   string
	role   host.Role
	format host.StreamFormat

	// src holds a looping capture source; nil means silence.
	src      []float32
	pos      int
	sinkPath string

	mu      sync.Mutex
	cb      host.Callback
	buf     []float32
	sink    *sink
	running bool
	closed  bool
	ticks   int
	lastErr error
	quit    chan struct{}
	done    chan struct{}
}

func (u *unit) Name() string              { return u.name }
func (u *unit) Format() host.StreamFormat { return u.format }

func (u *unit) SetCallback(cb host.Callback) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.running || u.closed {
		return fmt.Errorf("%w: set callback on %s", host.ErrUnitState, u.name)
	}
	u.cb = cb
	return nil
}

func (u *unit) Start() error {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.closed || u.cb == nil {
		return fmt.Errorf("%w: start %s", host.ErrUnitState, u.name)
	}
	if u.running {
		return nil
	}
	if u.sinkPath != "" && u.sink == nil {
		s, err := newSink(u.host.opts.Fs, u.sinkPath, u.format, u.host.opts.PeriodFrames)
		if err != nil {
			return err
		}
		u.sink = s
	}
	u.running = true
	u.lastErr = nil

	if c := u.host.opts.Clock; c != nil {
		u.quit = make(chan struct{})
		u.done = make(chan struct{})
		go u.loop(c, u.quit, u.done)
	}
	return nil
}

func (u *unit) loop(c clock.Clock, quit, done chan struct{}) {
	defer close(done)
	t := c.Ticker(u.host.Period())
	defer t.Stop()
	for {
		select {
		case <-quit:
			return
		case <-t.C:
			u.tick()
		}
	}
}

// tick runs one period. The unit lock is held across the callback so Stop
// cannot return while an invocation is in flight.
func (u *unit) tick() {
	u.mu.Lock()
	defer u.mu.Unlock()
	if !u.running {
		return
	}

	frames := u.host.opts.PeriodFrames
	buf := u.buf
	if u.role == host.RoleCapture {
		u.fillFromSource(buf)
	} else {
		clear(buf)
	}

	if err := u.cb(frames, buf); err != nil {
		// Only this unit stops; the rest of the session carries on.
		u.running = false
		u.lastErr = err
		slog.Warn("Unit callback failed, unit stopped", "unit", u.name, "error", err)
		return
	}
	u.ticks++

	if u.role == host.RoleRender && u.sink != nil {
		if err := u.sink.write(buf); err != nil {
			u.running = false
			u.lastErr = err
			slog.Error("Failed to record render output", "unit", u.name, "error", err)
		}
	}
}

func (u *unit) fillFromSource(buf []float32) {
	if len(u.src) == 0 {
		clear(buf)
		return
	}
	for i := range buf {
		buf[i] = u.src[u.pos]
		u.pos++
		if u.pos == len(u.src) {
			u.pos = 0
		}
	}
}

// Stop waits for the pacing goroutine and any in-flight tick.
func (u *unit) Stop() error {
	u.mu.Lock()
	wasRunning := u.running
	u.running = false
	quit, done := u.quit, u.done
	u.quit, u.done = nil, nil
	u.mu.Unlock()

	if quit != nil {
		close(quit)
		<-done
	}
	if wasRunning {
		slog.Debug("Stopped offline unit", "unit", u.name)
	}
	return nil
}

func (u *unit) Close() error {
	if err := u.Stop(); err != nil {
		return err
	}
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.closed {
		return nil
	}
	u.closed = true
	if u.sink != nil {
		err := u.sink.close()
		u.sink = nil
		if err != nil {
			return fmt.Errorf("close recording of %s: %w", u.name, err)
		}
	}
	return nil
}

// Ticks reports how many periods completed successfully.
func (u *unit) Ticks() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.ticks
}

// Err returns the callback failure that stopped the unit, if any.
func (u *unit) Err() error {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.lastErr
}
