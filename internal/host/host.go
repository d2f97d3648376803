// Package host defines the boundary between the router and the host audio
// subsystem: device discovery, exclusive access, stream format negotiation
// and callback registration.
package host

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrDeviceNotFound is returned when discovery cannot resolve a device.
	ErrDeviceNotFound = errors.New("device not found")
	// ErrAccessDenied is returned when exclusive access cannot be granted.
	ErrAccessDenied = errors.New("exclusive access denied")
	// ErrFormatRejected is returned when a stream format cannot be applied.
	ErrFormatRejected = errors.New("stream format rejected")
	// ErrUnitState is returned for lifecycle calls in the wrong order.
	ErrUnitState = errors.New("unit in wrong state")
)

// Callback is the shape of every function registered with a unit. It receives
// the number of frames and the interleaved sample buffer for those frames.
type Callback func(frames int, buf []float32) error

// Role tells a unit whether its callback consumes or produces samples.
type Role int

const (
	// RoleCapture units hand captured samples to the callback.
	RoleCapture Role = iota
	// RoleRender units ask the callback to fill the buffer they will play.
	RoleRender
)

func (r Role) String() string {
	if r == RoleCapture {
		return "capture"
	}
	return "render"
}

// Descriptor identifies a physical device.
type Descriptor struct {
	VendorID   uint16
	ProductIDs []uint16
	// Name, when set, must appear in the device name.
	Name string
}

// Matches reports whether vendor/product belong to the descriptor.
func (d Descriptor) Matches(vendor, product uint16) bool {
	if vendor != d.VendorID {
		return false
	}
	for _, p := range d.ProductIDs {
		if p == product {
			return true
		}
	}
	return false
}

func (d Descriptor) String() string {
	return fmt.Sprintf("%04x:%v", d.VendorID, d.ProductIDs)
}

// Device is an opaque handle produced by discovery.
type Device interface {
	// Name is the human-readable device name.
	Name() string
	// UID is the stable identifier the device was resolved by.
	UID() string
}

// StreamFormat is the negotiated format of one unit. Samples are always
// packed 32-bit float.
type StreamFormat struct {
	SampleRate int
	Channels   int
}

func (f StreamFormat) String() string {
	return fmt.Sprintf("%d Hz f32 x%d", f.SampleRate, f.Channels)
}

// Unit is one direction of one device with a single callback slot.
type Unit interface {
	// Name identifies the unit in logs.
	Name() string
	// Format returns the negotiated stream format.
	Format() StreamFormat
	// SetCallback installs cb. It must be called before Start.
	SetCallback(cb Callback) error
	// Start begins invoking the callback.
	Start() error
	// Stop halts the unit. When Stop returns no invocation is in flight and
	// none will follow.
	Stop() error
	// Close releases the unit.
	Close() error
}

// Host is the host audio subsystem.
type Host interface {
	// FindHardware resolves the physical device matching d.
	FindHardware(ctx context.Context, d Descriptor) (Device, error)
	// FindEndpoint resolves a virtual endpoint by identifier.
	FindEndpoint(ctx context.Context, uid string) (Device, error)
	// Claim acquires exclusive access to dev.
	Claim(ctx context.Context, dev Device) error
	// OpenUnit negotiates f and returns the unit for role on dev.
	OpenUnit(dev Device, role Role, f StreamFormat) (Unit, error)
	// Devices lists everything the host can see, for diagnostics.
	Devices(ctx context.Context) ([]DeviceInfo, error)
	// Close releases host resources.
	Close() error
}

// DeviceInfo is a row of the device listing.
type DeviceInfo struct {
	Name    string `json:"name"`
	UID     string `json:"uid"`
	Capture bool   `json:"capture"`
	Render  bool   `json:"render"`
}
