package route

import (
	"github.com/audiolibrelab/xlrbridge/internal/channel"
	"github.com/audiolibrelab/xlrbridge/internal/queue"
)

// WideDemux splits wide hardware frames across every channel queue of a
// direction.
type WideDemux struct {
	width   int
	store   Store
	handles []Handle
	offsets []int
	queues  []*queue.Queue
}

// NewWideDemux builds the demultiplexer for table t.
func NewWideDemux(t *channel.Table, s Store) *WideDemux {
	hs := handlesFor(t)
	return &WideDemux{
		width:   t.Width(),
		store:   s,
		handles: hs,
		offsets: offsetsFor(t),
		queues:  make([]*queue.Queue, len(hs)),
	}
}

// Process pushes the two samples of every channel, frame by frame.
func (d *WideDemux) Process(frames int, buf []float32) error {
	if frames < 0 || len(buf) != frames*d.width {
		return ErrBufferLength
	}
	if err := resolve(d.store, d.handles, d.queues); err != nil {
		return err
	}
	for f := 0; f < frames; f++ {
		base := f * d.width
		for i, q := range d.queues {
			at := base + d.offsets[i]
			q.PushPair(buf[at], buf[at+1])
		}
	}
	return nil
}

// EndpointDemux feeds one endpoint's stereo stream into its channel queue.
type EndpointDemux struct {
	store  Store
	handle Handle
}

// NewEndpointDemux builds the demultiplexer for the endpoint carrying h.
func NewEndpointDemux(h Handle, s Store) *EndpointDemux {
	return &EndpointDemux{store: s, handle: h}
}

// Process pushes every sample of the endpoint buffer in order.
func (d *EndpointDemux) Process(frames int, buf []float32) error {
	if frames < 0 || len(buf) != frames*channel.SlotsPerChannel {
		return ErrBufferLength
	}
	q, ok := d.store.Queue(d.handle)
	if !ok {
		return ErrReleased
	}
	q.PushSlice(buf)
	return nil
}
