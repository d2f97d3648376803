package queue

import "errors"

// Filler decides what a consumer writes into the head of a window the queue
// could not fill. The queue never applies it itself.
type Filler int

const (
	// FillNone leaves whatever the destination already holds.
	FillNone Filler = iota
	// FillSilence writes zeros.
	FillSilence
	// FillHold repeats the last value emitted on each stereo slot.
	FillHold
)

func (f Filler) String() string {
	switch f {
	case FillNone:
		return "none"
	case FillSilence:
		return "silence"
	case FillHold:
		return "hold"
	default:
		return "unknown"
	}
}

// ParseFiller maps a config string onto a Filler.
func ParseFiller(s string) (Filler, error) {
	switch s {
	case "", "none":
		return FillNone, nil
	case "silence":
		return FillSilence, nil
	case "hold":
		return FillHold, nil
	default:
		return FillNone, errors.New("unknown filler: " + s)
	}
}

// Hold remembers the last left/right pair a consumer emitted. The zero value
// holds silence.
type Hold struct {
	last [2]float32
}

// Fill writes the filler into head, an interleaved stereo region starting on
// a left slot.
func (f Filler) Fill(head []float32, h *Hold) {
	switch f {
	case FillSilence:
		clear(head)
	case FillHold:
		for i := range head {
			head[i] = h.last[i&1]
		}
	}
}

// Remember records the last pair of an interleaved stereo window.
func (h *Hold) Remember(window []float32) {
	n := len(window)
	if n < 2 {
		return
	}
	h.last[0] = window[n-2]
	h.last[1] = window[n-1]
}
