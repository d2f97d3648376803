package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/audiolibrelab/xlrbridge/internal/config"
	"github.com/audiolibrelab/xlrbridge/internal/router"
	"github.com/audiolibrelab/xlrbridge/internal/service"
)

type fakeService struct {
	cfg     *config.Config
	running bool
}

func (f *fakeService) Start(context.Context) error { f.running = true; return nil }
func (f *fakeService) Stop() error                 { f.running = false; return nil }
func (f *fakeService) ID() string                  { return "test-session" }
func (f *fakeService) GetConfig() *config.Config   { return f.cfg }
func (f *fakeService) GetLastError() string        { return "" }
func (f *fakeService) Stats() router.Stats {
	return router.Stats{State: f.state(), Units: []router.UnitStats{{Unit: "GoXLR/render", Calls: 7}}}
}

func (f *fakeService) state() string {
	if f.running {
		return "running"
	}
	return "stopped"
}

func (f *fakeService) Ready(context.Context) error {
	if !f.running {
		return errors.New("router is stopped")
	}
	return nil
}

func (f *fakeService) GetStatus() service.Status {
	return service.Status{SessionID: f.ID(), State: f.state(), Hardware: "GoXLR", Uptime: "1s", Router: f.Stats()}
}

func newTestServer(running bool) (*Server, *fakeService) {
	cfg := config.Default()
	cfg.Profile = "default"
	svc := &fakeService{cfg: cfg, running: running}
	return New(svc, "127.0.0.1:0"), svc
}

func get(t *testing.T, s *Server, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestHandleStatus(t *testing.T) {
	s, _ := newTestServer(true)
	rec := get(t, s, "/status")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var resp StatusResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Status != "running" {
		t.Errorf("Status = %q, want running", resp.Status)
	}
	if resp.Session.SessionID != "test-session" {
		t.Errorf("SessionID = %q", resp.Session.SessionID)
	}
	if !strings.Contains(resp.Message, "GoXLR") {
		t.Errorf("Message = %q, want hardware name", resp.Message)
	}
}

func TestHandleChannels(t *testing.T) {
	s, _ := newTestServer(true)
	rec := get(t, s, "/api/channels")

	var resp ChannelsResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.CaptureWidth != 10 || resp.RenderWidth != 21 {
		t.Errorf("widths = %d/%d, want 10/21", resp.CaptureWidth, resp.RenderWidth)
	}
	if len(resp.Channels) != 8 {
		t.Fatalf("got %d channels, want 8", len(resp.Channels))
	}
	first := resp.Channels[0]
	if first.Channel != "System" || first.Endpoint != "GoXLR::System::Input" {
		t.Errorf("first channel = %+v", first)
	}
	last := resp.Channels[len(resp.Channels)-1]
	if last.Channel != "Sampler" || last.Offset != 4 || last.Endpoint != "GoXLR::Sampler::Output" {
		t.Errorf("last channel = %+v", last)
	}
}

func TestHandleStats(t *testing.T) {
	s, _ := newTestServer(true)
	rec := get(t, s, "/api/stats")

	var st router.Stats
	if err := json.NewDecoder(rec.Body).Decode(&st); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(st.Units) != 1 || st.Units[0].Calls != 7 {
		t.Errorf("units = %+v", st.Units)
	}
}

func TestHandleConfig(t *testing.T) {
	s, _ := newTestServer(true)
	rec := get(t, s, "/api/config")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"profile":"default"`) {
		t.Errorf("body = %s", rec.Body.String())
	}
}

func TestReadyzFollowsRouter(t *testing.T) {
	s, svc := newTestServer(true)
	if rec := get(t, s, "/readyz"); rec.Code != http.StatusOK {
		t.Errorf("readyz running = %d, want 200", rec.Code)
	}
	_ = svc.Stop()
	if rec := get(t, s, "/readyz"); rec.Code != http.StatusServiceUnavailable {
		t.Errorf("readyz stopped = %d, want 503", rec.Code)
	}
	if rec := get(t, s, "/healthz"); rec.Code != http.StatusOK {
		t.Errorf("healthz = %d, want 200", rec.Code)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	s, _ := newTestServer(true)
	rec := get(t, s, "/metrics")
	if rec.Code != http.StatusOK {
		t.Errorf("metrics = %d, want 200", rec.Code)
	}
}

func TestIndexAndUnknownPath(t *testing.T) {
	s, _ := newTestServer(false)
	if rec := get(t, s, "/"); !strings.Contains(rec.Body.String(), "test-session") {
		t.Errorf("index body = %q", rec.Body.String())
	}
	if rec := get(t, s, "/nope"); rec.Code != http.StatusNotFound {
		t.Errorf("unknown path = %d, want 404", rec.Code)
	}
}

func TestRun_ShutsDownOnCancel(t *testing.T) {
	s, _ := newTestServer(true)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run returned %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
