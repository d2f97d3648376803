// Package channel holds the static logical channel tables for both routing
// directions.
package channel

import (
	"fmt"
)

// Direction is one of the two routing directions.
type Direction int

const (
	// Capture carries audio from the virtual endpoints to the hardware.
	Capture Direction = iota
	// Render carries audio from the hardware to the virtual endpoints.
	Render
)

// Directions lists both directions in setup order.
var Directions = [...]Direction{Capture, Render}

func (d Direction) String() string {
	switch d {
	case Capture:
		return "capture"
	case Render:
		return "render"
	default:
		return "unknown"
	}
}

// endpointSuffix is the suffix of the virtual endpoint's identifier. A
// capture-direction endpoint is an input device from the host's point of view.
func (d Direction) endpointSuffix() string {
	if d == Capture {
		return "Input"
	}
	return "Output"
}

// ID identifies a logical channel within its direction's table.
type ID int

// Capture direction channels.
const (
	System ID = iota
	Game
	Chat
	Music
	Sample
)

// Render direction channels.
const (
	StreamMix ID = iota
	ChatMic
	Sampler
)

// Wide frame widths of the hardware streams.
const (
	CaptureWidth = 10
	RenderWidth  = 21
)

// SlotsPerChannel is the number of interleaved samples a channel occupies.
const SlotsPerChannel = 2

// Entry describes one logical channel.
type Entry struct {
	ID     ID
	Label  string
	Offset int
}

// Table maps the channels of one direction onto their wide-frame offsets.
type Table struct {
	direction Direction
	width     int
	entries   []Entry
}

var captureTable = Table{
	direction: Capture,
	width:     CaptureWidth,
	entries: []Entry{
		{System, "System", 0},
		{Game, "Game", 2},
		{Chat, "Chat", 4},
		{Music, "Music", 6},
		{Sample, "Sample", 8},
	},
}

var renderTable = Table{
	direction: Render,
	width:     RenderWidth,
	entries: []Entry{
		{StreamMix, "StreamMix", 0},
		{ChatMic, "ChatMic", 2},
		{Sampler, "Sampler", 4},
	},
}

// For returns the built-in table of a direction.
func For(d Direction) *Table {
	if d == Capture {
		return &captureTable
	}
	return &renderTable
}

// NewTable builds a table from entries whose IDs must equal their index.
// It is used for alternative device layouts and in tests.
func NewTable(d Direction, width int, entries []Entry) (*Table, error) {
	t := &Table{direction: d, width: width, entries: append([]Entry(nil), entries...)}
	if err := t.Validate(); err != nil {
		return nil, err
	}
	return t, nil
}

// Direction returns the table's direction.
func (t *Table) Direction() Direction { return t.direction }

// Width returns the number of interleaved samples in one wide frame.
func (t *Table) Width() int { return t.width }

// Len returns the number of channels.
func (t *Table) Len() int { return len(t.entries) }

// All returns the channel IDs in table order.
func (t *Table) All() []ID {
	ids := make([]ID, len(t.entries))
	for i, e := range t.entries {
		ids[i] = e.ID
	}
	return ids
}

// Entries returns a copy of the table rows.
func (t *Table) Entries() []Entry {
	return append([]Entry(nil), t.entries...)
}

// BaseOffset returns the left-sample offset of id inside a wide frame.
func (t *Table) BaseOffset(id ID) int { return t.entries[id].Offset }

// Label returns the human-readable name of id.
func (t *Table) Label(id ID) string { return t.entries[id].Label }

// Lookup finds a channel by label.
func (t *Table) Lookup(label string) (ID, bool) {
	for _, e := range t.entries {
		if e.Label == label {
			return e.ID, true
		}
	}
	return 0, false
}

// EndpointUID returns the identifier of the virtual endpoint carrying id,
// e.g. "GoXLR::Chat::Input".
func (t *Table) EndpointUID(prefix string, id ID) string {
	return fmt.Sprintf("%s::%s::%s", prefix, t.Label(id), t.direction.endpointSuffix())
}

// Validate checks that IDs are dense, offsets lie inside the frame and no two
// channels share a slot.
func (t *Table) Validate() error {
	if t.width < SlotsPerChannel {
		return fmt.Errorf("%s table: width %d too small", t.direction, t.width)
	}
	used := make([]bool, t.width)
	for i, e := range t.entries {
		if int(e.ID) != i {
			return fmt.Errorf("%s table: entry %d has id %d", t.direction, i, e.ID)
		}
		if e.Label == "" {
			return fmt.Errorf("%s table: entry %d has no label", t.direction, i)
		}
		if e.Offset < 0 || e.Offset+1 >= t.width {
			return fmt.Errorf("%s table: %s offset %d outside frame of width %d", t.direction, e.Label, e.Offset, t.width)
		}
		for s := e.Offset; s < e.Offset+SlotsPerChannel; s++ {
			if used[s] {
				return fmt.Errorf("%s table: %s overlaps slot %d", t.direction, e.Label, s)
			}
			used[s] = true
		}
	}
	return nil
}
