package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/audiolibrelab/xlrbridge/internal/channel"
	"github.com/audiolibrelab/xlrbridge/internal/config"
	"github.com/audiolibrelab/xlrbridge/internal/health"
	"github.com/audiolibrelab/xlrbridge/internal/service"
)

const shutdownTimeout = 5 * time.Second

// Server exposes the status of a routing session over HTTP.
type Server struct {
	service service.Service
	cfg     *config.Config
	addr    string
	mux     *http.ServeMux
}

// StatusResponse represents the JSON response for the status endpoint
type StatusResponse struct {
	Status  string         `json:"status"`
	Message string         `json:"message,omitempty"`
	Session service.Status `json:"session"`
}

// ChannelInfo describes one routed channel
type ChannelInfo struct {
	Direction string `json:"direction"`
	Channel   string `json:"channel"`
	Offset    int    `json:"offset"`
	Endpoint  string `json:"endpoint"`
}

// ChannelsResponse represents the JSON response for the channels endpoint
type ChannelsResponse struct {
	CaptureWidth int           `json:"capture_width"`
	RenderWidth  int           `json:"render_width"`
	Channels     []ChannelInfo `json:"channels"`
}

// New creates a server for svc listening on addr.
func New(svc service.Service, addr string) *Server {
	s := &Server{
		service: svc,
		cfg:     svc.GetConfig(),
		addr:    addr,
		mux:     http.NewServeMux(),
	}

	s.mux.HandleFunc("GET /{$}", s.handleIndex)
	s.mux.HandleFunc("GET /status", s.handleStatus)
	s.mux.HandleFunc("GET /api/stats", s.handleStats)
	s.mux.HandleFunc("GET /api/channels", s.handleChannels)
	s.mux.HandleFunc("GET /api/config", s.handleConfig)
	s.mux.Handle("GET /metrics", promhttp.Handler())
	health.New(health.Check{Name: "router", Probe: svc.Ready}).Register(s.mux)
	return s
}

// Handler returns the routing table, for tests and embedding.
func (s *Server) Handler() http.Handler { return s.mux }

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.addr, err)
	}

	slog.Info("Starting xlrbridge status server",
		"addr", ln.Addr().String(),
		"local_url", fmt.Sprintf("http://%s:%d", getLocalIP(), ln.Addr().(*net.TCPAddr).Port))

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	slog.Info("Status server stopped")
	return nil
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	fmt.Fprintf(w, "xlrbridge session %s\n\n", s.service.ID())
	for _, p := range []string{"/status", "/api/stats", "/api/channels", "/api/config", "/healthz", "/readyz", "/metrics"} {
		fmt.Fprintln(w, p)
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	st := s.service.GetStatus()
	writeJSON(w, http.StatusOK, StatusResponse{
		Status:  st.State,
		Message: generateStatusMessage(st),
		Session: st,
	})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.service.Stats())
}

func (s *Server) handleChannels(w http.ResponseWriter, r *http.Request) {
	resp := ChannelsResponse{
		CaptureWidth: channel.For(channel.Capture).Width(),
		RenderWidth:  channel.For(channel.Render).Width(),
	}
	for _, d := range channel.Directions {
		t := channel.For(d)
		for _, id := range t.All() {
			resp.Channels = append(resp.Channels, ChannelInfo{
				Direction: d.String(),
				Channel:   t.Label(id),
				Offset:    t.BaseOffset(id),
				Endpoint:  t.EndpointUID(s.cfg.Endpoints.Prefix, id),
			})
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) {
	if s.cfg == nil {
		s.sendErrorResponse(w, http.StatusNotFound, "No configuration loaded")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"profile":     s.cfg.Profile,
		"config":      s.cfg,
		"inheritance": s.cfg.Inheritance,
	})
}

func generateStatusMessage(st service.Status) string {
	switch {
	case st.LastError != "":
		return st.LastError
	case st.State == "running":
		return fmt.Sprintf("Routing on %s for %s", st.Hardware, st.Uptime)
	case st.State == "stopped":
		return "Session stopped"
	default:
		return "Session not started"
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

// sendErrorResponse logs the error and sends a JSON error response to the client
func (s *Server) sendErrorResponse(w http.ResponseWriter, statusCode int, errorMsg string, logContext ...any) {
	logFields := []any{"error_message", errorMsg, "status_code", statusCode}
	logFields = append(logFields, logContext...)
	slog.Error("Sending error response to client", logFields...)

	writeJSON(w, statusCode, map[string]any{
		"success": false,
		"error":   errorMsg,
	})
}

func getLocalIP() string {
	// Try to connect to a remote address to determine local IP
	conn, err := net.Dial("udp", "8.8.8.8:80")
	if err != nil {
		return "localhost"
	}
	defer conn.Close()

	localAddr := conn.LocalAddr().(*net.UDPAddr)
	return localAddr.IP.String()
}
