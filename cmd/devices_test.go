package cmd

import (
	"testing"

	"github.com/audiolibrelab/xlrbridge/internal/host"
)

func TestBackendList(t *testing.T) {
	if got, want := backendList(), "malgo, offline"; got != want {
		t.Errorf("backendList() = %q, want %q", got, want)
	}
}

func TestDirections(t *testing.T) {
	tests := []struct {
		in   host.DeviceInfo
		want string
	}{
		{host.DeviceInfo{Capture: true, Render: true}, " capture+render"},
		{host.DeviceInfo{Capture: true}, " capture"},
		{host.DeviceInfo{Render: true}, " render"},
		{host.DeviceInfo{}, ""},
	}
	for _, tc := range tests {
		if got := directions(tc.in); got != tc.want {
			t.Errorf("directions(%+v) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
