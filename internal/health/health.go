// Package health serves liveness and readiness probes for a routing session.
//
// /healthz answers 200 while the process can serve HTTP. /readyz answers 200
// only when every registered check passes; for xlrbridge that means the
// router has reached and stays in the running state.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"time"
)

// checkTimeout bounds a single readiness check.
const checkTimeout = 2 * time.Second

// Check is a named readiness probe.
type Check struct {
	Name  string
	Probe func(ctx context.Context) error
}

type report struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// Handler evaluates a fixed list of checks.
type Handler struct {
	checks []Check
}

// New returns a handler over checks, evaluated in order.
func New(checks ...Check) *Handler {
	return &Handler{checks: append([]Check(nil), checks...)}
}

// Healthz always reports ok.
func (h *Handler) Healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, report{Status: "ok"})
}

// Readyz reports 503 as soon as one check fails.
func (h *Handler) Readyz(w http.ResponseWriter, r *http.Request) {
	rep := report{Status: "ok", Checks: make(map[string]string, len(h.checks))}
	code := http.StatusOK

	for _, c := range h.checks {
		ctx, cancel := context.WithTimeout(r.Context(), checkTimeout)
		err := c.Probe(ctx)
		cancel()
		if err != nil {
			rep.Checks[c.Name] = "fail: " + err.Error()
			rep.Status = "fail"
			code = http.StatusServiceUnavailable
			continue
		}
		rep.Checks[c.Name] = "ok"
	}
	writeJSON(w, code, rep)
}

// Register mounts both probes on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", h.Healthz)
	mux.HandleFunc("GET /readyz", h.Readyz)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
