package offline

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/spf13/afero"

	"github.com/audiolibrelab/xlrbridge/internal/host"
)

const sinkBitDepth = 16

// loadSource decodes a whole WAV file into interleaved float32 samples. A
// missing file is not an error; the unit then produces silence.
func loadSource(fs afero.Fs, path string, f host.StreamFormat) ([]float32, error) {
	file, err := fs.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer file.Close()

	dec := wav.NewDecoder(file)
	if !dec.IsValidFile() {
		return nil, fmt.Errorf("%w: %s is not a wav file", host.ErrFormatRejected, path)
	}
	pcm, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	if pcm.Format == nil || pcm.Format.NumChannels != f.Channels || pcm.Format.SampleRate != f.SampleRate {
		return nil, fmt.Errorf("%w: %s is %d ch at %d Hz, want %s",
			host.ErrFormatRejected, path, dec.NumChans, dec.SampleRate, f)
	}

	scale := float32(int64(1) << (uint(dec.BitDepth) - 1))
	out := make([]float32, len(pcm.Data))
	for i, v := range pcm.Data {
		out[i] = float32(v) / scale
	}
	return out, nil
}

// sink streams 16-bit PCM into a WAV file.
type sink struct {
	file afero.File
	enc  *wav.Encoder
	pcm  *audio.IntBuffer
}

func newSink(fs afero.Fs, path string, f host.StreamFormat, frames int) (*sink, error) {
	if err := fs.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create output directory for %s: %w", path, err)
	}
	file, err := fs.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", path, err)
	}
	return &sink{
		file: file,
		enc:  wav.NewEncoder(file, f.SampleRate, sinkBitDepth, f.Channels, 1),
		pcm: &audio.IntBuffer{
			Format:         &audio.Format{NumChannels: f.Channels, SampleRate: f.SampleRate},
			Data:           make([]int, frames*f.Channels),
			SourceBitDepth: sinkBitDepth,
		},
	}, nil
}

func (s *sink) write(samples []float32) error {
	s.pcm.Data = s.pcm.Data[:len(samples)]
	for i, v := range samples {
		if v > 1 {
			v = 1
		} else if v < -1 {
			v = -1
		}
		s.pcm.Data[i] = int(v * 32767)
	}
	return s.enc.Write(s.pcm)
}

func (s *sink) close() error {
	err := s.enc.Close()
	if cerr := s.file.Close(); err == nil {
		err = cerr
	}
	return err
}
