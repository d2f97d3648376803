package host

import "testing"

func TestDescriptorMatches(t *testing.T) {
	d := Descriptor{VendorID: 0x1220, ProductIDs: []uint16{0x8fe0, 0x8fe4}}

	tests := []struct {
		vendor, product uint16
		want            bool
	}{
		{0x1220, 0x8fe0, true},
		{0x1220, 0x8fe4, true},
		{0x1220, 0x8fe1, false},
		{0x1221, 0x8fe0, false},
	}
	for _, tc := range tests {
		if got := d.Matches(tc.vendor, tc.product); got != tc.want {
			t.Errorf("Matches(%04x, %04x) = %v, want %v", tc.vendor, tc.product, got, tc.want)
		}
	}
}

func TestDetermineBackend(t *testing.T) {
	tests := map[string]BackendType{
		"":        BackendTypeAuto,
		"auto":    BackendTypeAuto,
		" AUTO ":  BackendTypeAuto,
		"malgo":   BackendTypeMalgo,
		"Offline": BackendTypeOffline,
		"jack":    BackendTypeMalgo,
	}
	for in, want := range tests {
		if got := DetermineBackend(in); got != want {
			t.Errorf("DetermineBackend(%q) = %s, want %s", in, got, want)
		}
	}
}
