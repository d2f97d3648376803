// Package route implements the demultiplexers and multiplexers that move
// samples between wide interleaved hardware frames and per-channel queues.
//
// Every Process method has the host callback shape: it receives a frame
// count and an interleaved buffer and reports success or failure. Process
// methods never allocate and never block beyond a single queue's lock.
package route

import (
	"errors"

	"github.com/audiolibrelab/xlrbridge/internal/channel"
	"github.com/audiolibrelab/xlrbridge/internal/queue"
)

var (
	// ErrBufferLength is returned when a host buffer does not hold exactly
	// frames times the stream width samples.
	ErrBufferLength = errors.New("buffer length does not match frame count")
	// ErrFrameCount is returned when a host asks for more frames than the
	// multiplexer preallocated.
	ErrFrameCount = errors.New("frame count exceeds preallocated maximum")
	// ErrReleased is returned when a callback fires after its queues were
	// released.
	ErrReleased = errors.New("channel queues released")
)

// Handle names one channel queue.
type Handle struct {
	Direction channel.Direction
	Channel   channel.ID
}

// Store resolves handles to queues. Queue reports false once the store has
// been released.
type Store interface {
	Queue(h Handle) (*queue.Queue, bool)
}

// Options tune the multiplexers.
type Options struct {
	// Filler is applied to the part of a window the queue could not fill.
	Filler queue.Filler
	// MaxFrames bounds the frames per callback a wide multiplexer accepts.
	MaxFrames int
}

// DefaultMaxFrames is used when Options.MaxFrames is zero.
const DefaultMaxFrames = 4096

func handlesFor(t *channel.Table) []Handle {
	ids := t.All()
	hs := make([]Handle, len(ids))
	for i, id := range ids {
		hs[i] = Handle{Direction: t.Direction(), Channel: id}
	}
	return hs
}

func offsetsFor(t *channel.Table) []int {
	ids := t.All()
	offs := make([]int, len(ids))
	for i, id := range ids {
		offs[i] = t.BaseOffset(id)
	}
	return offs
}

// resolve fills qs from hs, failing as soon as one handle is released.
func resolve(s Store, hs []Handle, qs []*queue.Queue) error {
	for i, h := range hs {
		q, ok := s.Queue(h)
		if !ok {
			return ErrReleased
		}
		qs[i] = q
	}
	return nil
}
