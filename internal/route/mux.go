package route

import (
	"github.com/audiolibrelab/xlrbridge/internal/channel"
	"github.com/audiolibrelab/xlrbridge/internal/queue"
)

// WideMux interleaves every channel queue of a direction into wide frames.
type WideMux struct {
	width     int
	maxFrames int
	filler    queue.Filler
	store     Store
	handles   []Handle
	offsets   []int
	queues    []*queue.Queue
	windows   [][]float32
	holds     []queue.Hold
}

// NewWideMux builds the multiplexer for table t. Scratch windows for
// opts.MaxFrames frames are allocated here, not in Process.
func NewWideMux(t *channel.Table, s Store, opts Options) *WideMux {
	if opts.MaxFrames <= 0 {
		opts.MaxFrames = DefaultMaxFrames
	}
	hs := handlesFor(t)
	windows := make([][]float32, len(hs))
	for i := range windows {
		windows[i] = make([]float32, opts.MaxFrames*channel.SlotsPerChannel)
	}
	return &WideMux{
		width:     t.Width(),
		maxFrames: opts.MaxFrames,
		filler:    opts.Filler,
		store:     s,
		handles:   hs,
		offsets:   offsetsFor(t),
		queues:    make([]*queue.Queue, len(hs)),
		windows:   windows,
		holds:     make([]queue.Hold, len(hs)),
	}
}

// Process reads a window of frames*2 samples from every channel and writes
// it at the channel's offset in each wide frame. Slots the queue could not
// fill get the filler; with FillNone they keep the host's content.
func (m *WideMux) Process(frames int, buf []float32) error {
	if frames < 0 || len(buf) != frames*m.width {
		return ErrBufferLength
	}
	if frames > m.maxFrames {
		return ErrFrameCount
	}
	if err := resolve(m.store, m.handles, m.queues); err != nil {
		return err
	}

	n := frames * channel.SlotsPerChannel
	for i, q := range m.queues {
		win := m.windows[i][:n]
		start := n - q.ReadWindow(win)
		if start > 0 && m.filler != queue.FillNone {
			m.filler.Fill(win[:start], &m.holds[i])
			start = 0
		}
		off := m.offsets[i]
		for s := start; s < n; s++ {
			buf[(s>>1)*m.width+off+(s&1)] = win[s]
		}
		if n-start >= channel.SlotsPerChannel {
			m.holds[i].Remember(win)
		}
	}
	return nil
}

// EndpointMux fills one endpoint's stereo render buffer from its queue.
type EndpointMux struct {
	store  Store
	handle Handle
	filler queue.Filler
	hold   queue.Hold
}

// NewEndpointMux builds the multiplexer for the endpoint carrying h.
func NewEndpointMux(h Handle, s Store, opts Options) *EndpointMux {
	return &EndpointMux{store: s, handle: h, filler: opts.Filler}
}

// Process reads frames*2 samples into buf. On underrun the queued samples
// land in the trailing slots and the leading slots get the filler.
func (m *EndpointMux) Process(frames int, buf []float32) error {
	n := frames * channel.SlotsPerChannel
	if frames < 0 || len(buf) != n {
		return ErrBufferLength
	}
	q, ok := m.store.Queue(m.handle)
	if !ok {
		return ErrReleased
	}
	got := q.ReadWindow(buf)
	if got < n {
		m.filler.Fill(buf[:n-got], &m.hold)
	}
	if got > 0 {
		m.hold.Remember(buf)
	}
	return nil
}
