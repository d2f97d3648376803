// Package usbid resolves USB audio interfaces to ALSA cards by reading the
// usbid and id files the kernel exposes under /proc/asound.
package usbid

import (
	"fmt"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/afero"

	"github.com/audiolibrelab/xlrbridge/internal/host"
)

// DefaultRoot is where the kernel publishes sound card information.
const DefaultRoot = "/proc/asound"

// Card is one USB sound card.
type Card struct {
	Index   int    `json:"index"`
	ID      string `json:"id"`
	Vendor  uint16 `json:"vendor"`
	Product uint16 `json:"product"`
}

// ALSAName returns the hw device name of the card's first PCM.
func (c Card) ALSAName() string {
	return fmt.Sprintf("hw:%d,0", c.Index)
}

func (c Card) String() string {
	return fmt.Sprintf("card%d %s (%04x:%04x)", c.Index, c.ID, c.Vendor, c.Product)
}

// Scanner reads card information from a filesystem.
type Scanner struct {
	fs   afero.Fs
	root string
}

// NewScanner returns a scanner over fs rooted at root. An empty root means
// DefaultRoot.
func NewScanner(fs afero.Fs, root string) *Scanner {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	if root == "" {
		root = DefaultRoot
	}
	return &Scanner{fs: fs, root: root}
}

// Cards lists every card that has a usbid file, ordered by index.
// Cards that are not USB devices are skipped.
func (s *Scanner) Cards() ([]Card, error) {
	dirs, err := afero.Glob(s.fs, filepath.Join(s.root, "card*"))
	if err != nil {
		return nil, fmt.Errorf("glob %s: %w", s.root, err)
	}

	var cards []Card
	for _, dir := range dirs {
		idx, err := strconv.Atoi(strings.TrimPrefix(filepath.Base(dir), "card"))
		if err != nil {
			continue
		}
		raw, err := afero.ReadFile(s.fs, filepath.Join(dir, "usbid"))
		if err != nil {
			continue
		}
		vendor, product, err := ParseUSBID(string(raw))
		if err != nil {
			return nil, fmt.Errorf("card%d: %w", idx, err)
		}
		c := Card{Index: idx, Vendor: vendor, Product: product}
		if id, err := afero.ReadFile(s.fs, filepath.Join(dir, "id")); err == nil {
			c.ID = strings.TrimSpace(string(id))
		}
		cards = append(cards, c)
	}
	sort.Slice(cards, func(i, j int) bool { return cards[i].Index < cards[j].Index })
	return cards, nil
}

// Find returns the first card matching d.
func (s *Scanner) Find(d host.Descriptor) (Card, error) {
	cards, err := s.Cards()
	if err != nil {
		return Card{}, err
	}
	for _, c := range cards {
		if !d.Matches(c.Vendor, c.Product) {
			continue
		}
		if d.Name != "" && !strings.Contains(strings.ToLower(c.ID), strings.ToLower(d.Name)) {
			continue
		}
		return c, nil
	}
	return Card{}, fmt.Errorf("%w: no sound card with usb id %s", host.ErrDeviceNotFound, d)
}

// ParseUSBID parses the "vvvv:pppp" form of a usbid file.
func ParseUSBID(s string) (vendor, product uint16, err error) {
	v, p, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok {
		return 0, 0, fmt.Errorf("malformed usb id %q", s)
	}
	vv, err := strconv.ParseUint(v, 16, 16)
	if err != nil {
		return 0, 0, fmt.Errorf("vendor in %q: %w", s, err)
	}
	pp, err := strconv.ParseUint(p, 16, 16)
	if err != nil {
		return 0, 0, fmt.Errorf("product in %q: %w", s, err)
	}
	return uint16(vv), uint16(pp), nil
}
