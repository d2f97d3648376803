package route

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/audiolibrelab/xlrbridge/internal/channel"
	"github.com/audiolibrelab/xlrbridge/internal/queue"
)

// mapStore is a Store backed by a plain map.
type mapStore struct {
	queues   map[Handle]*queue.Queue
	released bool
}

func newMapStore(t *testing.T, tables ...*channel.Table) *mapStore {
	t.Helper()
	s := &mapStore{queues: make(map[Handle]*queue.Queue)}
	for _, tbl := range tables {
		for _, id := range tbl.All() {
			q, err := queue.New(queue.DefaultCapacity, queue.PolicyPeek)
			require.NoError(t, err)
			s.queues[Handle{tbl.Direction(), id}] = q
		}
	}
	return s
}

func (s *mapStore) Queue(h Handle) (*queue.Queue, bool) {
	if s.released {
		return nil, false
	}
	q, ok := s.queues[h]
	return q, ok
}

func (s *mapStore) contents(h Handle) []float32 {
	q := s.queues[h]
	out := make([]float32, q.Len())
	q.ReadWindow(out)
	return out
}

func TestWideDemux_OffsetMapping(t *testing.T) {
	t.Parallel()

	tbl := channel.For(channel.Capture)
	store := newMapStore(t, tbl)
	demux := NewWideDemux(tbl, store)

	// a0 a1 b0 b1 c0 c1 d0 d1 e0 e1
	frame := []float32{0.10, 0.11, 0.20, 0.21, 0.30, 0.31, 0.40, 0.41, 0.50, 0.51}
	require.NoError(t, demux.Process(1, frame))

	assert.Equal(t, []float32{0.20, 0.21}, store.contents(Handle{channel.Capture, channel.Game}))
	assert.Equal(t, []float32{0.50, 0.51}, store.contents(Handle{channel.Capture, channel.Sample}))
}

func TestWideDemux_RenderSkipsUnroutedSlots(t *testing.T) {
	t.Parallel()

	tbl := channel.For(channel.Render)
	store := newMapStore(t, tbl)
	demux := NewWideDemux(tbl, store)

	frames := 2
	buf := make([]float32, frames*channel.RenderWidth)
	for i := range buf {
		buf[i] = float32(i)
	}
	require.NoError(t, demux.Process(frames, buf))

	assert.Equal(t, []float32{2, 3, 23, 24}, store.contents(Handle{channel.Render, channel.ChatMic}))
	assert.Equal(t, []float32{0, 1, 21, 22}, store.contents(Handle{channel.Render, channel.StreamMix}))
}

func TestWideRoundTrip(t *testing.T) {
	t.Parallel()

	tbl := channel.For(channel.Capture)
	store := newMapStore(t, tbl)
	demux := NewWideDemux(tbl, store)
	mux := NewWideMux(tbl, store, Options{Filler: queue.FillSilence})

	const frames = 64
	in := make([]float32, frames*tbl.Width())
	for i := range in {
		in[i] = float32(i) / 1000
	}
	require.NoError(t, demux.Process(frames, in))

	out := make([]float32, len(in))
	require.NoError(t, mux.Process(frames, out))
	assert.Equal(t, in, out)
}

func TestEndpointRoundTrip(t *testing.T) {
	t.Parallel()

	tbl := channel.For(channel.Render)
	store := newMapStore(t, tbl)
	h := Handle{channel.Render, channel.Sampler}
	demux := NewEndpointDemux(h, store)
	mux := NewEndpointMux(h, store, Options{})

	in := []float32{1, -1, 0.5, -0.5, 0.25, -0.25}
	require.NoError(t, demux.Process(3, in))

	out := make([]float32, len(in))
	require.NoError(t, mux.Process(3, out))
	assert.Equal(t, in, out)
}

func TestEndpointToWide(t *testing.T) {
	t.Parallel()

	tbl := channel.For(channel.Capture)
	store := newMapStore(t, tbl)
	mux := NewWideMux(tbl, store, Options{Filler: queue.FillSilence})

	chat := NewEndpointDemux(Handle{channel.Capture, channel.Chat}, store)
	require.NoError(t, chat.Process(2, []float32{1, 2, 3, 4}))

	out := make([]float32, 2*tbl.Width())
	require.NoError(t, mux.Process(2, out))

	want := make([]float32, len(out))
	want[4], want[5] = 1, 2
	want[14], want[15] = 3, 4
	assert.Equal(t, want, out)
}

func TestEndpointMux_UnderrunLeavesHead(t *testing.T) {
	t.Parallel()

	tbl := channel.For(channel.Render)
	store := newMapStore(t, tbl)
	h := Handle{channel.Render, channel.ChatMic}
	store.queues[h].PushSlice([]float32{7, 8, 9})

	mux := NewEndpointMux(h, store, Options{Filler: queue.FillNone})
	buf := []float32{-1, -1, -1, -1, -1, -1, -1, -1}
	require.NoError(t, mux.Process(4, buf))

	assert.Equal(t, []float32{-1, -1, -1, -1, -1, 7, 8, 9}, buf)
}

func TestEndpointMux_UnderrunSilence(t *testing.T) {
	t.Parallel()

	tbl := channel.For(channel.Render)
	store := newMapStore(t, tbl)
	h := Handle{channel.Render, channel.ChatMic}
	store.queues[h].PushSlice([]float32{7, 8})

	mux := NewEndpointMux(h, store, Options{Filler: queue.FillSilence})
	buf := []float32{-1, -1, -1, -1}
	require.NoError(t, mux.Process(2, buf))
	assert.Equal(t, []float32{0, 0, 7, 8}, buf)
}

func TestWideMux_FillNoneKeepsHostContent(t *testing.T) {
	t.Parallel()

	tbl := channel.For(channel.Capture)
	store := newMapStore(t, tbl)
	store.queues[Handle{channel.Capture, channel.System}].PushSlice([]float32{5, 6})

	mux := NewWideMux(tbl, store, Options{Filler: queue.FillNone, MaxFrames: 8})
	buf := make([]float32, 2*tbl.Width())
	for i := range buf {
		buf[i] = -1
	}
	require.NoError(t, mux.Process(2, buf))

	// System underran by one frame: frame 0 keeps host content, frame 1 carries the pair.
	assert.Equal(t, float32(-1), buf[0])
	assert.Equal(t, float32(-1), buf[1])
	assert.Equal(t, float32(5), buf[10])
	assert.Equal(t, float32(6), buf[11])
	// Game never produced anything.
	assert.Equal(t, float32(-1), buf[12])
}

func TestWideMux_HoldRepeatsLastPair(t *testing.T) {
	t.Parallel()

	tbl := channel.For(channel.Capture)
	store := newMapStore(t, tbl)
	q, err := queue.New(4, queue.PolicyConsume)
	require.NoError(t, err)
	h := Handle{channel.Capture, channel.Music}
	store.queues[h] = q

	mux := NewWideMux(tbl, store, Options{Filler: queue.FillHold, MaxFrames: 8})
	q.PushSlice([]float32{0.1, 0.2, 0.3, 0.4})

	buf := make([]float32, 2*tbl.Width())
	require.NoError(t, mux.Process(2, buf))
	assert.Equal(t, float32(0.3), buf[tbl.Width()+6])

	// Queue drained by the consume policy: the next call holds 0.3/0.4.
	require.NoError(t, mux.Process(2, buf))
	assert.Equal(t, float32(0.3), buf[6])
	assert.Equal(t, float32(0.4), buf[7])
	assert.Equal(t, float32(0.3), buf[tbl.Width()+6])
	assert.Equal(t, float32(0.4), buf[tbl.Width()+7])
}

func TestProcess_BufferLength(t *testing.T) {
	t.Parallel()

	tbl := channel.For(channel.Capture)
	store := newMapStore(t, tbl)
	h := Handle{channel.Capture, channel.Game}

	assert.ErrorIs(t, NewWideDemux(tbl, store).Process(2, make([]float32, 19)), ErrBufferLength)
	assert.ErrorIs(t, NewWideMux(tbl, store, Options{}).Process(1, make([]float32, 11)), ErrBufferLength)
	assert.ErrorIs(t, NewEndpointDemux(h, store).Process(2, make([]float32, 3)), ErrBufferLength)
	assert.ErrorIs(t, NewEndpointMux(h, store, Options{}).Process(1, make([]float32, 4)), ErrBufferLength)
}

func TestWideMux_FrameCount(t *testing.T) {
	t.Parallel()

	tbl := channel.For(channel.Capture)
	store := newMapStore(t, tbl)
	mux := NewWideMux(tbl, store, Options{MaxFrames: 4})

	assert.ErrorIs(t, mux.Process(5, make([]float32, 5*tbl.Width())), ErrFrameCount)
}

func TestProcess_Released(t *testing.T) {
	t.Parallel()

	tbl := channel.For(channel.Render)
	store := newMapStore(t, tbl)
	store.released = true
	h := Handle{channel.Render, channel.ChatMic}

	assert.ErrorIs(t, NewWideDemux(tbl, store).Process(1, make([]float32, tbl.Width())), ErrReleased)
	assert.ErrorIs(t, NewWideMux(tbl, store, Options{}).Process(1, make([]float32, tbl.Width())), ErrReleased)
	assert.ErrorIs(t, NewEndpointDemux(h, store).Process(1, make([]float32, 2)), ErrReleased)
	assert.ErrorIs(t, NewEndpointMux(h, store, Options{}).Process(1, make([]float32, 2)), ErrReleased)
}

func TestProcess_DoesNotAllocate(t *testing.T) {
	tbl := channel.For(channel.Capture)
	store := newMapStore(t, tbl)
	demux := NewWideDemux(tbl, store)
	mux := NewWideMux(tbl, store, Options{Filler: queue.FillHold, MaxFrames: 256})
	buf := make([]float32, 256*tbl.Width())

	allocs := testing.AllocsPerRun(50, func() {
		_ = demux.Process(256, buf)
		_ = mux.Process(256, buf)
	})
	assert.Zero(t, allocs)
}
