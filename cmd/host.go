package cmd

import (
	"fmt"
	"log/slog"

	"github.com/benbjohnson/clock"
	"github.com/spf13/afero"

	"github.com/audiolibrelab/xlrbridge/internal/config"
	"github.com/audiolibrelab/xlrbridge/internal/host"
	"github.com/audiolibrelab/xlrbridge/internal/host/malgo"
	"github.com/audiolibrelab/xlrbridge/internal/host/offline"
	"github.com/audiolibrelab/xlrbridge/internal/host/usbid"
)

// openHost builds the host backend named by cfg.Audio.Backend. "auto" tries
// the device backend and falls back to the offline one.
func openHost(cfg *config.Config) (host.Host, error) {
	switch host.DetermineBackend(cfg.Audio.Backend) {
	case host.BackendTypeOffline:
		return newOfflineHost(cfg), nil
	case host.BackendTypeAuto:
		h, err := newMalgoHost(cfg)
		if err != nil {
			slog.Warn("Audio device backend unavailable, falling back to offline", "error", err)
			return newOfflineHost(cfg), nil
		}
		return h, nil
	default:
		h, err := newMalgoHost(cfg)
		if err != nil {
			return nil, err
		}
		return h, nil
	}
}

func newMalgoHost(cfg *config.Config) (*malgo.Host, error) {
	h, err := malgo.New(malgo.Options{
		PeriodFrames: cfg.Audio.PeriodFrames,
		Trace:        traceBackend,
		Fs:           afero.NewOsFs(),
		ProcRoot:     usbid.DefaultRoot,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open %s backend: %w", host.BackendTypeMalgo, err)
	}
	slog.Debug("Using audio device backend", "backend", host.BackendTypeMalgo)
	return h, nil
}

func newOfflineHost(cfg *config.Config) *offline.Host {
	slog.Debug("Using offline backend",
		"input_dir", cfg.Offline.InputDir,
		"output_dir", cfg.Offline.OutputDir,
		"period_frames", cfg.Audio.PeriodFrames)
	return offline.New(offline.Options{
		SampleRate:   cfg.Audio.SampleRate,
		PeriodFrames: cfg.Audio.PeriodFrames,
		InputDir:     cfg.Offline.InputDir,
		OutputDir:    cfg.Offline.OutputDir,
		HardwareName: cfg.Hardware.Name,
		Fs:           afero.NewOsFs(),
		Clock:        clock.New(),
	})
}
