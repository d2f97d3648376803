package malgo

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"unsafe"

	"github.com/gen2brain/malgo"

	"github.com/audiolibrelab/xlrbridge/internal/host"
)

var _ host.Unit = (*unit)(nil)

type unit struct {
	name   string
	role   host.Role
	format host.StreamFormat
	dev    *malgo.Device

	cb atomic.Pointer[host.Callback]

	mu      sync.Mutex
	running bool
	closed  bool
	// failed is set by the first callback error; the unit then stops itself.
	failed atomic.Bool
}

func (u *unit) Name() string              { return u.name }
func (u *unit) Format() host.StreamFormat { return u.format }

func (u *unit) SetCallback(cb host.Callback) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.running || u.closed {
		return fmt.Errorf("%w: set callback on %s", host.ErrUnitState, u.name)
	}
	u.cb.Store(&cb)
	return nil
}

func (u *unit) Start() error {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.closed || u.cb.Load() == nil {
		return fmt.Errorf("%w: start %s", host.ErrUnitState, u.name)
	}
	if u.running {
		return nil
	}
	if err := u.dev.Start(); err != nil {
		return fmt.Errorf("failed to start %s: %w", u.name, err)
	}
	u.running = true
	return nil
}

// Stop blocks until miniaudio's worker thread has left the data callback.
func (u *unit) Stop() error {
	u.mu.Lock()
	defer u.mu.Unlock()
	if !u.running {
		return nil
	}
	u.running = false
	if err := u.dev.Stop(); err != nil {
		return fmt.Errorf("failed to stop %s: %w", u.name, err)
	}
	return nil
}

func (u *unit) Close() error {
	err := u.Stop()
	u.mu.Lock()
	defer u.mu.Unlock()
	if !u.closed {
		u.closed = true
		u.dev.Uninit()
	}
	return err
}

// onData runs on miniaudio's real-time thread.
func (u *unit) onData(output, input []byte, frameCount uint32) {
	if u.failed.Load() {
		return
	}
	cbp := u.cb.Load()
	if cbp == nil {
		return
	}
	raw := output
	if u.role == host.RoleCapture {
		raw = input
	}
	if len(raw) == 0 {
		return
	}
	buf := unsafe.Slice((*float32)(unsafe.Pointer(&raw[0])), len(raw)/4)
	if err := (*cbp)(int(frameCount), buf); err != nil {
		if u.failed.CompareAndSwap(false, true) {
			// miniaudio forbids stopping a device from its own callback.
			go func() {
				slog.Error("Unit callback failed, stopping unit", "unit", u.name, "error", err)
				_ = u.Stop()
			}()
		}
	}
}
