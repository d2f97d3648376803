package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func createTempConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "xlrbridge.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("Failed to write temp config: %v", err)
	}
	return path
}

const sampleConfig = `
active_profile: studio
globals:
  offline:
    output_dir: /srv/xlr/out
profiles:
  default:
    audio:
      backend: malgo
    queue:
      capacity: 2048
      filler: silence
  studio:
    queue:
      policy: consume
    hardware:
      product_ids: [0x8fe4]
      exclusive: false
  lab:
    audio:
      backend: offline
      period_frames: 256
    offline:
      input_dir: ~/lab/in
`

func TestMergeConfigs_SelectionAndFallback(t *testing.T) {
	base := Default()
	profile := &Config{
		Audio: AudioConfig{SampleRate: 44100},
		Queue: QueueConfig{Filler: "hold"},
	}

	result := mergeConfigs(base, profile)

	if result.Audio.SampleRate != 44100 {
		t.Errorf("Expected sample rate 44100, got %d", result.Audio.SampleRate)
	}
	if result.Audio.Backend != "auto" {
		t.Errorf("Expected backend 'auto' from base, got %s", result.Audio.Backend)
	}
	if result.Queue.Filler != "hold" || result.Queue.Policy != "peek" {
		t.Errorf("Queue incorrect: got %+v", result.Queue)
	}
	if result.Inheritance["audio.sample_rate"] != profileSpecific {
		t.Errorf("audio.sample_rate should be profile-specific, got %s", result.Inheritance["audio.sample_rate"])
	}
	if result.Inheritance["audio.backend"] != inherited {
		t.Errorf("audio.backend should be inherited, got %s", result.Inheritance["audio.backend"])
	}
}

func TestMergeConfigs_DoesNotShareProductIDs(t *testing.T) {
	base := Default()
	result := mergeConfigs(base, nil)
	result.Hardware.ProductIDs[0] = 0xdead

	if base.Hardware.ProductIDs[0] != 0x8fe0 {
		t.Errorf("merge aliased base product ids: %x", base.Hardware.ProductIDs)
	}
}

func TestMergeConfigs_ExclusiveOverride(t *testing.T) {
	off := false
	result := mergeConfigs(Default(), &Config{Hardware: HardwareConfig{Exclusive: &off}})
	if result.Hardware.ExclusiveAccess() {
		t.Error("Expected exclusive access to be disabled by profile")
	}
	if !Default().Hardware.ExclusiveAccess() {
		t.Error("Expected exclusive access by default")
	}
}

func TestLoadWithProfile_NoFile(t *testing.T) {
	cfg, err := LoadWithProfile("", "")
	if err != nil {
		t.Fatalf("LoadWithProfile failed: %v", err)
	}
	if cfg.Profile != "default" || cfg.Audio.SampleRate != 48000 || cfg.Endpoints.Prefix != "GoXLR" {
		t.Errorf("Unexpected defaults: %+v", cfg)
	}
	if cfg.Hardware.VendorID != 0x1220 {
		t.Errorf("Expected vendor 0x1220, got %#x", cfg.Hardware.VendorID)
	}
}

func TestLoadWithProfile_ActiveProfile(t *testing.T) {
	path := createTempConfig(t, sampleConfig)

	cfg, err := LoadWithProfile(path, "")
	if err != nil {
		t.Fatalf("LoadWithProfile failed: %v", err)
	}
	if cfg.Profile != "studio" {
		t.Errorf("Expected studio profile, got %s", cfg.Profile)
	}
	// From the default profile.
	if cfg.Audio.Backend != "malgo" || cfg.Queue.Capacity != 2048 || cfg.Queue.Filler != "silence" {
		t.Errorf("default profile not inherited: %+v", cfg)
	}
	if cfg.Queue.Policy != "consume" {
		t.Errorf("Expected consume policy, got %s", cfg.Queue.Policy)
	}
	if len(cfg.Hardware.ProductIDs) != 1 || cfg.Hardware.ProductIDs[0] != 0x8fe4 {
		t.Errorf("Expected mini product id, got %x", cfg.Hardware.ProductIDs)
	}
	if cfg.Hardware.ExclusiveAccess() {
		t.Error("Expected exclusive access disabled")
	}
	if cfg.Offline.OutputDir != "/srv/xlr/out" || cfg.Inheritance["offline.output_dir"] != global {
		t.Errorf("global output dir not applied: %s (%s)", cfg.Offline.OutputDir, cfg.Inheritance["offline.output_dir"])
	}
	if cfg.Inheritance["queue.capacity"] != inherited {
		t.Errorf("queue.capacity should be inherited, got %s", cfg.Inheritance["queue.capacity"])
	}
}

func TestLoadWithProfile_ExplicitProfile(t *testing.T) {
	path := createTempConfig(t, sampleConfig)

	cfg, err := LoadWithProfile(path, "lab")
	if err != nil {
		t.Fatalf("LoadWithProfile failed: %v", err)
	}
	if cfg.Audio.Backend != "offline" || cfg.Audio.PeriodFrames != 256 {
		t.Errorf("lab profile not applied: %+v", cfg.Audio)
	}
	home, _ := os.UserHomeDir()
	if cfg.Offline.InputDir != filepath.Join(home, "lab", "in") {
		t.Errorf("Expected expanded input dir, got %s", cfg.Offline.InputDir)
	}
}

func TestLoadWithProfile_EnvSelectsProfile(t *testing.T) {
	path := createTempConfig(t, sampleConfig)
	t.Setenv("XLRBRIDGE_ACTIVE_PROFILE", "lab")

	cfg, err := LoadWithProfile(path, "")
	if err != nil {
		t.Fatalf("LoadWithProfile failed: %v", err)
	}
	if cfg.Profile != "lab" {
		t.Errorf("Expected lab profile from environment, got %s", cfg.Profile)
	}
}

func TestLoadWithProfile_UnknownProfile(t *testing.T) {
	path := createTempConfig(t, sampleConfig)

	_, err := LoadWithProfile(path, "missing")
	if err == nil || !strings.Contains(err.Error(), "'missing' not found") {
		t.Errorf("Expected not found error, got %v", err)
	}
}

func TestValidateConfigurationFormat(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{"no profiles", "active_profile: x\n", "profiles section is required"},
		{"bad policy", "profiles:\n  default:\n    queue:\n      policy: drain\n", "queue.policy"},
		{"bad filler", "profiles:\n  default:\n    queue:\n      filler: noise\n", "queue.filler"},
		{"negative capacity", "profiles:\n  default:\n    queue:\n      capacity: -1\n", "queue.capacity"},
		{"valid", "profiles:\n  default:\n    queue:\n      filler: hold\n", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ValidateConfigurationFormat(createTempConfig(t, tt.content))
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"defaults", func(c *Config) {}, ""},
		{"backend", func(c *Config) { c.Audio.Backend = "jack" }, "audio.backend"},
		{"period beyond max", func(c *Config) { c.Audio.PeriodFrames = 8192 }, "audio.period_frames"},
		{"period fills queue", func(c *Config) { c.Audio.PeriodFrames = 512 }, ""},
		{"period beyond queue", func(c *Config) { c.Audio.PeriodFrames = 513 }, "queue.capacity"},
		{"small queue", func(c *Config) { c.Queue.Capacity = 256 }, "queue.capacity"},
		{"vendor", func(c *Config) { c.Hardware.VendorID = 0 }, "hardware.vendor_id"},
		{"products", func(c *Config) { c.Hardware.ProductIDs = nil }, "hardware.product_ids"},
		{"prefix", func(c *Config) { c.Endpoints.Prefix = "a::b" }, "endpoints.prefix"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Default()
			tt.mutate(c)
			err := c.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestUpdateActiveProfile(t *testing.T) {
	path := createTempConfig(t, sampleConfig)

	if err := UpdateActiveProfile(path, "lab"); err != nil {
		t.Fatalf("UpdateActiveProfile failed: %v", err)
	}
	root, err := ValidateConfigurationFormat(path)
	if err != nil {
		t.Fatalf("re-read failed: %v", err)
	}
	if root.ActiveProfile != "lab" {
		t.Errorf("Expected active profile lab, got %s", root.ActiveProfile)
	}

	if err := UpdateActiveProfile(path, "nope"); err == nil {
		t.Error("Expected error for unknown profile")
	}
}

func TestExpandPath(t *testing.T) {
	home, _ := os.UserHomeDir()
	if got := expandPath("~/x"); got != filepath.Join(home, "x") {
		t.Errorf("expandPath(~/x) = %s", got)
	}
	if got := expandPath("/abs"); got != "/abs" {
		t.Errorf("expandPath(/abs) = %s", got)
	}
}
