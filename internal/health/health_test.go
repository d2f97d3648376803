package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func decode(t *testing.T, rec *httptest.ResponseRecorder) report {
	t.Helper()
	var body report
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode JSON: %v", err)
	}
	return body
}

func TestHealthz(t *testing.T) {
	rec := httptest.NewRecorder()
	New().Healthz(rec, httptest.NewRequest("GET", "/healthz", nil))

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json; charset=utf-8" {
		t.Errorf("Content-Type = %q", ct)
	}
	if body := decode(t, rec); body.Status != "ok" {
		t.Errorf("status = %q, want ok", body.Status)
	}
}

func TestReadyz(t *testing.T) {
	tests := []struct {
		name     string
		routerUp bool
		wantCode int
		want     string
	}{
		{"running", true, http.StatusOK, "ok"},
		{"stopped", false, http.StatusServiceUnavailable, "fail"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := New(
				Check{Name: "process", Probe: func(context.Context) error { return nil }},
				Check{Name: "router", Probe: func(context.Context) error {
					if !tt.routerUp {
						return errors.New("router is stopped")
					}
					return nil
				}},
			)
			rec := httptest.NewRecorder()
			h.Readyz(rec, httptest.NewRequest("GET", "/readyz", nil))

			if rec.Code != tt.wantCode {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantCode)
			}
			body := decode(t, rec)
			if body.Status != tt.want {
				t.Errorf("status = %q, want %q", body.Status, tt.want)
			}
			if body.Checks["process"] != "ok" {
				t.Errorf("process check = %q, want ok", body.Checks["process"])
			}
			if !tt.routerUp && body.Checks["router"] != "fail: router is stopped" {
				t.Errorf("router check = %q", body.Checks["router"])
			}
		})
	}
}

func TestRegister(t *testing.T) {
	mux := http.NewServeMux()
	New().Register(mux)

	for _, path := range []string{"/healthz", "/readyz"} {
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, httptest.NewRequest("GET", path, nil))
		if rec.Code != http.StatusOK {
			t.Errorf("%s: status = %d, want 200", path, rec.Code)
		}
	}
}
