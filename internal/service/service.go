package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/multierr"

	"github.com/audiolibrelab/xlrbridge/internal/channel"
	"github.com/audiolibrelab/xlrbridge/internal/config"
	"github.com/audiolibrelab/xlrbridge/internal/host"
	"github.com/audiolibrelab/xlrbridge/internal/observe"
	"github.com/audiolibrelab/xlrbridge/internal/router"
)

// Service is one routing session between the hardware and its endpoints.
type Service interface {
	// Start runs discovery, claims the hardware, opens every unit and starts
	// the router. A failure is a *SetupError and leaves nothing running.
	Start(ctx context.Context) error
	// Stop halts the router and closes every unit. It is idempotent.
	Stop() error

	ID() string
	GetStatus() Status
	Stats() router.Stats
	// Ready returns nil while the router is running.
	Ready(ctx context.Context) error
	GetConfig() *config.Config
	GetLastError() string
}

// Status is the operator view of a session.
type Status struct {
	SessionID string       `json:"session_id"`
	State     string       `json:"state"`
	Profile   string       `json:"profile"`
	Hardware  string       `json:"hardware,omitempty"`
	StartedAt *time.Time   `json:"started_at,omitempty"`
	Uptime    string       `json:"uptime,omitempty"`
	LastError string       `json:"last_error,omitempty"`
	Router    router.Stats `json:"router"`
}

// Option customizes a session.
type Option func(*BridgeService) error

// WithMeterProvider exports session and router metrics through mp.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(s *BridgeService) error {
		m, err := observe.NewMetrics(mp, s)
		if err != nil {
			return fmt.Errorf("failed to create metrics: %w", err)
		}
		s.metrics = m
		return nil
	}
}

// WithSessionID overrides the generated session identifier.
func WithSessionID(id string) Option {
	return func(s *BridgeService) error {
		if _, err := uuid.Parse(id); err != nil {
			return fmt.Errorf("invalid session id %q: %w", id, err)
		}
		s.id = id
		return nil
	}
}

// WithTables replaces the built-in channel tables.
func WithTables(capture, render *channel.Table) Option {
	return func(s *BridgeService) error {
		if capture.Direction() != channel.Capture || render.Direction() != channel.Render {
			return errors.New("tables passed in the wrong direction")
		}
		s.tables[channel.Capture] = capture
		s.tables[channel.Render] = render
		return nil
	}
}

// BridgeService is the Service implementation.
type BridgeService struct {
	id      string
	cfg     *config.Config
	host    host.Host
	router  *router.Router
	metrics *observe.Metrics
	tables  [len(channel.Directions)]*channel.Table

	mu        sync.Mutex
	units     []host.Unit
	hardware  string
	startedAt time.Time

	// Error tracking
	lastError      string
	lastErrorMutex sync.RWMutex
}

// New creates an idle session over h.
func New(cfg *config.Config, h host.Host, opts ...Option) (*BridgeService, error) {
	s := &BridgeService{
		id:   uuid.NewString(),
		cfg:  cfg,
		host: h,
	}
	for _, d := range channel.Directions {
		s.tables[d] = channel.For(d)
	}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	s.router = router.New(router.Options{
		Capacity:  cfg.Queue.Capacity,
		Policy:    cfg.QueuePolicy(),
		Filler:    cfg.QueueFiller(),
		MaxFrames: cfg.Audio.MaxFrames,
		Logger:    slog.Default().With("session", s.id),
	})
	return s, nil
}

func (s *BridgeService) ID() string { return s.id }

func (s *BridgeService) GetConfig() *config.Config { return s.cfg }

// Stats snapshots the router counters.
func (s *BridgeService) Stats() router.Stats { return s.router.Stats() }

func (s *BridgeService) descriptor() host.Descriptor { return descriptorFor(s.cfg) }

func descriptorFor(cfg *config.Config) host.Descriptor {
	return host.Descriptor{
		VendorID:   cfg.Hardware.VendorID,
		ProductIDs: cfg.Hardware.ProductIDs,
		Name:       cfg.Hardware.Name,
	}
}

// Start implements Service.
func (s *BridgeService) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.clearLastError()
	log := slog.With("session", s.id)
	log.Info("Starting session", "profile", s.cfg.Profile, "hardware", s.descriptor().String())

	if err := s.setup(ctx); err != nil {
		var se *SetupError
		if errors.As(err, &se) && s.metrics != nil {
			s.metrics.RecordSetupFailure(ctx, string(se.Stage))
		}
		// A failed session is spent whichever stage failed.
		cerr := multierr.Append(s.router.Stop(), s.closeUnitsLocked())
		if cerr != nil {
			log.Warn("Cleanup after failed setup reported errors", "error", cerr)
		}
		s.setLastError(err.Error())
		log.Error("Session setup failed", "error", err)
		return err
	}

	s.startedAt = time.Now()
	if s.metrics != nil {
		s.metrics.SessionsStarted.Add(ctx, 1)
	}
	log.Info("Session running", "units", len(s.units))
	return nil
}

func (s *BridgeService) setup(ctx context.Context) error {
	if s.router.State() != router.StateUnconfigured {
		return setupErr(StageRegistration, fmt.Errorf("%w: session already used", router.ErrState))
	}

	hw, err := s.host.FindHardware(ctx, s.descriptor())
	if err != nil {
		return setupErr(StageDiscovery, err)
	}
	s.hardware = hw.Name()

	var endpoints [len(channel.Directions)][]host.Device
	for _, d := range channel.Directions {
		t := s.tables[d]
		for _, id := range t.All() {
			uid := t.EndpointUID(s.cfg.Endpoints.Prefix, id)
			dev, err := s.host.FindEndpoint(ctx, uid)
			if err != nil {
				return setupErr(StageDiscovery, err)
			}
			endpoints[d] = append(endpoints[d], dev)
		}
	}

	if s.cfg.Hardware.ExclusiveAccess() {
		if err := s.host.Claim(ctx, hw); err != nil {
			return setupErr(StageClaim, err)
		}
	}

	rate := s.cfg.Audio.SampleRate
	open := func(dev host.Device, role host.Role, channels int) (host.Unit, error) {
		u, err := s.host.OpenUnit(dev, role, host.StreamFormat{SampleRate: rate, Channels: channels})
		if err != nil {
			stage := StageFormat
			if errors.Is(err, host.ErrAccessDenied) {
				stage = StageClaim
			}
			return nil, setupErr(stage, err)
		}
		s.units = append(s.units, u)
		return u, nil
	}

	var b router.Bindings
	b.Capture.Table = s.tables[channel.Capture]
	b.Render.Table = s.tables[channel.Render]

	// Endpoints feeding the capture direction are read from; endpoints of
	// the render direction are played to.
	for _, dev := range endpoints[channel.Capture] {
		u, err := open(dev, host.RoleCapture, channel.SlotsPerChannel)
		if err != nil {
			return err
		}
		b.Capture.Endpoints = append(b.Capture.Endpoints, u)
	}
	for _, dev := range endpoints[channel.Render] {
		u, err := open(dev, host.RoleRender, channel.SlotsPerChannel)
		if err != nil {
			return err
		}
		b.Render.Endpoints = append(b.Render.Endpoints, u)
	}
	if b.Capture.Wide, err = open(hw, host.RoleRender, b.Capture.Table.Width()); err != nil {
		return err
	}
	if b.Render.Wide, err = open(hw, host.RoleCapture, b.Render.Table.Width()); err != nil {
		return err
	}

	if err := s.router.Wire(b); err != nil {
		return setupErr(StageRegistration, err)
	}
	if err := s.router.Start(); err != nil {
		return setupErr(StageStart, err)
	}
	return nil
}

// Stop implements Service.
func (s *BridgeService) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := s.router.Stop()
	err = multierr.Append(err, s.closeUnitsLocked())
	if s.metrics != nil {
		err = multierr.Append(err, s.metrics.Close())
	}
	if err != nil {
		s.setLastError(err.Error())
		slog.Warn("Session stopped with errors", "session", s.id, "error", err)
		return err
	}
	slog.Info("Session stopped", "session", s.id)
	return nil
}

func (s *BridgeService) closeUnitsLocked() error {
	var err error
	for i := len(s.units) - 1; i >= 0; i-- {
		if e := s.units[i].Close(); e != nil {
			err = multierr.Append(err, fmt.Errorf("close %s: %w", s.units[i].Name(), e))
		}
	}
	s.units = nil
	return err
}

// Ready implements Service.
func (s *BridgeService) Ready(context.Context) error {
	if st := s.router.State(); st != router.StateRunning {
		return fmt.Errorf("router is %s", st)
	}
	return nil
}

// GetStatus implements Service.
func (s *BridgeService) GetStatus() Status {
	st := Status{
		SessionID: s.id,
		State:     s.router.State().String(),
		Profile:   s.cfg.Profile,
		LastError: s.GetLastError(),
		Router:    s.router.Stats(),
	}
	s.mu.Lock()
	st.Hardware = s.hardware
	if !s.startedAt.IsZero() {
		t := s.startedAt
		st.StartedAt = &t
		if st.State == router.StateRunning.String() {
			st.Uptime = time.Since(t).Round(time.Second).String()
		}
	}
	s.mu.Unlock()
	return st
}

// GetLastError returns the last error message
func (s *BridgeService) GetLastError() string {
	s.lastErrorMutex.RLock()
	defer s.lastErrorMutex.RUnlock()
	return s.lastError
}

func (s *BridgeService) setLastError(err string) {
	s.lastErrorMutex.Lock()
	defer s.lastErrorMutex.Unlock()
	s.lastError = err
}

func (s *BridgeService) clearLastError() {
	s.lastErrorMutex.Lock()
	defer s.lastErrorMutex.Unlock()
	s.lastError = ""
}
