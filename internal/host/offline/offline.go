// Package offline implements host.Host without audio hardware. Capture units
// play WAV files from an input directory (or silence), render units record
// what they are handed into WAV files in an output directory.
//
// Units are paced by a clock ticker when a clock is configured. Without one
// they only advance when Step is called, which makes runs deterministic.
package offline

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/spf13/afero"
	"go.uber.org/multierr"

	"github.com/audiolibrelab/xlrbridge/internal/host"
)

// DefaultHardwareName names the simulated hardware device.
const DefaultHardwareName = "GoXLR"

var _ host.Host = (*Host)(nil)

// Options configure the offline host.
type Options struct {
	SampleRate   int
	PeriodFrames int
	InputDir     string
	OutputDir    string
	// HardwareName names the simulated hardware; it must match the
	// descriptor name when one is set.
	HardwareName string
	Fs           afero.Fs
	// Clock paces running units. Nil means Step drives them.
	Clock clock.Clock
}

// Host is the offline host.
type Host struct {
	opts Options

	mu      sync.Mutex
	claimed map[string]bool
	units   []*unit
	seen    map[string]*device
}

type device struct {
	name     string
	uid      string
	hardware bool
}

func (d *device) Name() string { return d.name }
func (d *device) UID() string  { return d.uid }

// New returns an offline host.
func New(opts Options) *Host {
	if opts.SampleRate <= 0 {
		opts.SampleRate = 48000
	}
	if opts.PeriodFrames <= 0 {
		opts.PeriodFrames = 480
	}
	if opts.HardwareName == "" {
		opts.HardwareName = DefaultHardwareName
	}
	if opts.Fs == nil {
		opts.Fs = afero.NewOsFs()
	}
	return &Host{
		opts:    opts,
		claimed: make(map[string]bool),
		seen:    make(map[string]*device),
	}
}

// Period is the wall time one Step represents.
func (h *Host) Period() time.Duration {
	return time.Duration(h.opts.PeriodFrames) * time.Second / time.Duration(h.opts.SampleRate)
}

// FindHardware resolves the simulated device. Any descriptor matches unless
// it names a different device.
func (h *Host) FindHardware(ctx context.Context, d host.Descriptor) (host.Device, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if d.Name != "" && !strings.Contains(strings.ToLower(h.opts.HardwareName), strings.ToLower(d.Name)) {
		return nil, fmt.Errorf("%w: %s", host.ErrDeviceNotFound, d.Name)
	}
	return h.remember(&device{name: h.opts.HardwareName, uid: d.String(), hardware: true}), nil
}

// FindEndpoint resolves any identifier; offline endpoints always exist.
func (h *Host) FindEndpoint(ctx context.Context, uid string) (host.Device, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if uid == "" {
		return nil, fmt.Errorf("%w: empty endpoint id", host.ErrDeviceNotFound)
	}
	return h.remember(&device{name: uid, uid: uid}), nil
}

func (h *Host) remember(d *device) *device {
	h.mu.Lock()
	defer h.mu.Unlock()
	if prev, ok := h.seen[d.uid]; ok {
		return prev
	}
	h.seen[d.uid] = d
	return d
}

// Claim grants exclusive access once per device.
func (h *Host) Claim(ctx context.Context, dev host.Device) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.claimed[dev.UID()] {
		return fmt.Errorf("%w: %s already claimed", host.ErrAccessDenied, dev.Name())
	}
	h.claimed[dev.UID()] = true
	return nil
}

// OpenUnit builds a unit for one direction of dev. Capture units load their
// WAV file here so format mismatches surface before anything starts.
func (h *Host) OpenUnit(dev host.Device, role host.Role, f host.StreamFormat) (host.Unit, error) {
	d, ok := dev.(*device)
	if !ok {
		return nil, fmt.Errorf("%w: foreign device %s", host.ErrDeviceNotFound, dev.Name())
	}
	if f.SampleRate != h.opts.SampleRate {
		return nil, fmt.Errorf("%w: %s runs at %d Hz, asked for %d", host.ErrFormatRejected, d.name, h.opts.SampleRate, f.SampleRate)
	}
	if f.Channels <= 0 {
		return nil, fmt.Errorf("%w: %d channels", host.ErrFormatRejected, f.Channels)
	}

	u := &unit{
		host:   h,
		name:   fmt.Sprintf("%s/%s", d.name, role),
		role:   role,
		format: f,
		buf:    make([]float32, h.opts.PeriodFrames*f.Channels),
	}

	file := fileName(d, role)
	switch role {
	case host.RoleCapture:
		if h.opts.InputDir != "" {
			src, err := loadSource(h.opts.Fs, filepath.Join(h.opts.InputDir, file), f)
			if err != nil {
				return nil, err
			}
			u.src = src
		}
	default:
		if h.opts.OutputDir != "" {
			u.sinkPath = filepath.Join(h.opts.OutputDir, file)
		}
	}

	h.mu.Lock()
	h.units = append(h.units, u)
	h.mu.Unlock()

	slog.Debug("Opened offline unit", "unit", u.name, "format", f.String(), "file", file, "source", u.src != nil)
	return u, nil
}

// fileName maps a device and role to the WAV file backing it.
func fileName(d *device, role host.Role) string {
	base := strings.NewReplacer("::", "_", "/", "_", " ", "_", ":", "_").Replace(d.name)
	if d.hardware {
		return fmt.Sprintf("%s-%s.wav", base, role)
	}
	return base + ".wav"
}

// Step invokes every running unit once, capture units first.
func (h *Host) Step() {
	h.mu.Lock()
	units := append([]*unit(nil), h.units...)
	h.mu.Unlock()

	for _, role := range []host.Role{host.RoleCapture, host.RoleRender} {
		for _, u := range units {
			if u.role == role {
				u.tick()
			}
		}
	}
}

// Devices lists the hardware, every endpoint resolved so far and every WAV
// file waiting in the input directory.
func (h *Host) Devices(ctx context.Context) ([]host.DeviceInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := []host.DeviceInfo{{Name: h.opts.HardwareName, UID: h.opts.HardwareName, Capture: true, Render: true}}

	h.mu.Lock()
	for _, d := range h.seen {
		if !d.hardware {
			out = append(out, host.DeviceInfo{Name: d.name, UID: d.uid, Capture: true, Render: true})
		}
	}
	h.mu.Unlock()

	if h.opts.InputDir != "" {
		files, err := afero.Glob(h.opts.Fs, filepath.Join(h.opts.InputDir, "*.wav"))
		if err != nil {
			return nil, fmt.Errorf("list input files: %w", err)
		}
		for _, f := range files {
			out = append(out, host.DeviceInfo{Name: filepath.Base(f), UID: f, Capture: true})
		}
	}
	sort.SliceStable(out[1:], func(i, j int) bool { return out[i+1].Name < out[j+1].Name })
	return out, nil
}

// Close stops and closes every unit, flushing recorded files.
func (h *Host) Close() error {
	h.mu.Lock()
	units := h.units
	h.units = nil
	h.mu.Unlock()

	var err error
	for _, u := range units {
		err = multierr.Append(err, u.Close())
	}
	return err
}
