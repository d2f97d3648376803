// Package malgo implements host.Host on top of miniaudio through
// github.com/gen2brain/malgo. Every unit is its own single-direction
// miniaudio device so each one carries exactly one callback.
package malgo

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/gen2brain/malgo"
	"github.com/spf13/afero"

	"github.com/audiolibrelab/xlrbridge/internal/host"
	"github.com/audiolibrelab/xlrbridge/internal/host/usbid"
)

var _ host.Host = (*Host)(nil)

// Options configure the backend.
type Options struct {
	// PeriodFrames is the requested callback size; zero lets miniaudio pick.
	PeriodFrames int
	// Trace forwards miniaudio's own log lines at debug level.
	Trace bool
	// Fs and ProcRoot locate the kernel's sound card listing.
	Fs       afero.Fs
	ProcRoot string
}

// Host is a miniaudio context plus the devices claimed through it.
type Host struct {
	ctx   *malgo.AllocatedContext
	opts  Options
	cards *usbid.Scanner

	mu      sync.Mutex
	claimed map[string]bool
	units   []*unit
}

// device is a named group of playback and capture endpoints.
type device struct {
	name     string
	uid      string
	playback *malgo.DeviceInfo
	capture  *malgo.DeviceInfo
}

func (d *device) Name() string { return d.name }
func (d *device) UID() string  { return d.uid }

// New initializes a miniaudio context with the platform's default backends.
func New(opts Options) (*Host, error) {
	var onLog malgo.LogProc
	if opts.Trace {
		onLog = func(message string) {
			slog.Debug("miniaudio", "message", strings.TrimSpace(message))
		}
	}
	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, onLog)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize audio context: %w", err)
	}
	return &Host{
		ctx:     ctx,
		opts:    opts,
		cards:   usbid.NewScanner(opts.Fs, opts.ProcRoot),
		claimed: make(map[string]bool),
	}, nil
}

func (h *Host) enumerate() (playback, capture []malgo.DeviceInfo, err error) {
	playback, err = h.ctx.Devices(malgo.Playback)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to list playback devices: %w", err)
	}
	capture, err = h.ctx.Devices(malgo.Capture)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to list capture devices: %w", err)
	}
	return playback, capture, nil
}

// group collects the playback and capture entries whose name satisfies match.
func group(name, uid string, playback, capture []malgo.DeviceInfo, match func(string) bool) (*device, bool) {
	d := &device{name: name, uid: uid}
	for i := range playback {
		if match(playback[i].Name()) {
			d.playback = &playback[i]
			if d.name == "" {
				d.name = playback[i].Name()
			}
			break
		}
	}
	for i := range capture {
		if match(capture[i].Name()) {
			d.capture = &capture[i]
			if d.name == "" {
				d.name = capture[i].Name()
			}
			break
		}
	}
	return d, d.playback != nil || d.capture != nil
}

// FindHardware resolves d through the USB id of the sound card when the
// kernel exposes one, falling back to the descriptor name.
func (h *Host) FindHardware(ctx context.Context, d host.Descriptor) (host.Device, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	playback, capture, err := h.enumerate()
	if err != nil {
		return nil, err
	}

	needle := strings.ToLower(d.Name)
	uid := d.String()
	if card, err := h.cards.Find(d); err == nil {
		slog.Debug("Resolved hardware by usb id", "card", card.String())
		needle = strings.ToLower(card.ID)
		uid = card.ALSAName()
	} else {
		slog.Debug("USB id lookup failed", "descriptor", d.String(), "error", err)
	}
	if needle == "" {
		return nil, fmt.Errorf("%w: %s", host.ErrDeviceNotFound, d)
	}

	dev, ok := group("", uid, playback, capture, func(name string) bool {
		return strings.Contains(strings.ToLower(name), needle)
	})
	if !ok {
		return nil, fmt.Errorf("%w: %s", host.ErrDeviceNotFound, d)
	}
	return dev, nil
}

// FindEndpoint resolves a virtual endpoint whose device name is uid.
func (h *Host) FindEndpoint(ctx context.Context, uid string) (host.Device, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	playback, capture, err := h.enumerate()
	if err != nil {
		return nil, err
	}
	dev, ok := group(uid, uid, playback, capture, func(name string) bool {
		return name == uid || strings.HasPrefix(name, uid)
	})
	if !ok {
		return nil, fmt.Errorf("%w: endpoint %s", host.ErrDeviceNotFound, uid)
	}
	return dev, nil
}

// Claim marks dev for exclusive share mode. miniaudio only acquires the
// device when a unit is opened, so a denial surfaces from OpenUnit.
func (h *Host) Claim(ctx context.Context, dev host.Device) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	h.mu.Lock()
	h.claimed[dev.UID()] = true
	h.mu.Unlock()
	return nil
}

// OpenUnit initializes a miniaudio device for one direction of dev.
func (h *Host) OpenUnit(dev host.Device, role host.Role, f host.StreamFormat) (host.Unit, error) {
	d, ok := dev.(*device)
	if !ok {
		return nil, fmt.Errorf("%w: foreign device %s", host.ErrDeviceNotFound, dev.Name())
	}

	h.mu.Lock()
	exclusive := h.claimed[d.uid]
	h.mu.Unlock()

	u := &unit{
		name:   fmt.Sprintf("%s/%s", d.name, role),
		role:   role,
		format: f,
	}

	var cfg malgo.DeviceConfig
	switch role {
	case host.RoleCapture:
		if d.capture == nil {
			return nil, fmt.Errorf("%w: %s has no capture side", host.ErrDeviceNotFound, d.name)
		}
		cfg = malgo.DefaultDeviceConfig(malgo.Capture)
		cfg.Capture.DeviceID = d.capture.ID.Pointer()
		cfg.Capture.Format = malgo.FormatF32
		cfg.Capture.Channels = uint32(f.Channels)
		if exclusive {
			cfg.Capture.ShareMode = malgo.Exclusive
		}
	default:
		if d.playback == nil {
			return nil, fmt.Errorf("%w: %s has no playback side", host.ErrDeviceNotFound, d.name)
		}
		cfg = malgo.DefaultDeviceConfig(malgo.Playback)
		cfg.Playback.DeviceID = d.playback.ID.Pointer()
		cfg.Playback.Format = malgo.FormatF32
		cfg.Playback.Channels = uint32(f.Channels)
		if exclusive {
			cfg.Playback.ShareMode = malgo.Exclusive
		}
	}
	cfg.SampleRate = uint32(f.SampleRate)
	cfg.PeriodSizeInFrames = uint32(h.opts.PeriodFrames)
	cfg.Alsa.NoMMap = 1

	md, err := malgo.InitDevice(h.ctx.Context, cfg, malgo.DeviceCallbacks{Data: u.onData})
	if err != nil {
		if exclusive {
			return nil, fmt.Errorf("%w: %s: %v", host.ErrAccessDenied, u.name, err)
		}
		return nil, fmt.Errorf("%w: %s %s: %v", host.ErrFormatRejected, u.name, f, err)
	}
	if err := checkFormat(md, role, f); err != nil {
		md.Uninit()
		return nil, fmt.Errorf("%w: %s: %v", host.ErrFormatRejected, u.name, err)
	}
	u.dev = md

	h.mu.Lock()
	h.units = append(h.units, u)
	h.mu.Unlock()

	slog.Debug("Opened unit", "unit", u.name, "format", f.String(), "exclusive", exclusive)
	return u, nil
}

func checkFormat(md *malgo.Device, role host.Role, f host.StreamFormat) error {
	var format malgo.FormatType
	var channels uint32
	if role == host.RoleCapture {
		format, channels = md.CaptureFormat(), md.CaptureChannels()
	} else {
		format, channels = md.PlaybackFormat(), md.PlaybackChannels()
	}
	if format != malgo.FormatF32 {
		return fmt.Errorf("device format %d is not f32", format)
	}
	if int(channels) != f.Channels {
		return fmt.Errorf("device has %d channels, want %d", channels, f.Channels)
	}
	if int(md.SampleRate()) != f.SampleRate {
		return fmt.Errorf("device runs at %d Hz, want %d", md.SampleRate(), f.SampleRate)
	}
	return nil
}

// Devices lists playback and capture devices merged by name.
func (h *Host) Devices(ctx context.Context) ([]host.DeviceInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	playback, capture, err := h.enumerate()
	if err != nil {
		return nil, err
	}
	var out []host.DeviceInfo
	index := make(map[string]int)
	add := func(infos []malgo.DeviceInfo, render bool) {
		for i := range infos {
			name := infos[i].Name()
			j, ok := index[name]
			if !ok {
				j = len(out)
				index[name] = j
				out = append(out, host.DeviceInfo{Name: name, UID: infos[i].ID.String()})
			}
			if render {
				out[j].Render = true
			} else {
				out[j].Capture = true
			}
		}
	}
	add(playback, true)
	add(capture, false)
	return out, nil
}

// Close releases every unit opened through the host, then the context.
func (h *Host) Close() error {
	h.mu.Lock()
	units := h.units
	h.units = nil
	h.mu.Unlock()

	for _, u := range units {
		_ = u.Close()
	}
	if err := h.ctx.Uninit(); err != nil {
		return fmt.Errorf("failed to uninitialize audio context: %w", err)
	}
	h.ctx.Free()
	return nil
}
