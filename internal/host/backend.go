package host

import "strings"

// BackendType names a host implementation.
type BackendType string

const (
	BackendTypeMalgo   BackendType = "malgo"
	BackendTypeOffline BackendType = "offline"
	BackendTypeAuto    BackendType = "auto"
)

// DetermineBackend maps a config value onto a backend type. An empty value
// means auto; unknown values select the real device backend.
func DetermineBackend(name string) BackendType {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "offline":
		return BackendTypeOffline
	case "auto", "":
		return BackendTypeAuto
	default:
		return BackendTypeMalgo
	}
}

// GetAvailableBackends lists the backends compiled into this binary.
func GetAvailableBackends() []BackendType {
	return []BackendType{BackendTypeMalgo, BackendTypeOffline}
}
