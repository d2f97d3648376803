package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"github.com/audiolibrelab/xlrbridge/internal/channel"
	"github.com/audiolibrelab/xlrbridge/internal/queue"
)

// EnvPrefix prefixes every environment override, e.g. XLRBRIDGE_ACTIVE_PROFILE.
const EnvPrefix = "XLRBRIDGE"

const (
	inherited       = "inherited"
	profileSpecific = "profile-specific"
	global          = "global"
)

type GlobalsConfig struct {
	Offline OfflineConfig `mapstructure:"offline" yaml:"offline"`
	Server  ServerConfig  `mapstructure:"server" yaml:"server"`
}

type RootConfig struct {
	ActiveProfile string             `mapstructure:"active_profile" yaml:"active_profile"`
	Globals       *GlobalsConfig     `mapstructure:"globals,omitempty" yaml:"globals,omitempty"`
	Profiles      map[string]*Config `mapstructure:"profiles" yaml:"profiles"`
}

type Config struct {
	Audio     AudioConfig     `mapstructure:"audio" yaml:"audio"`
	Queue     QueueConfig     `mapstructure:"queue" yaml:"queue"`
	Hardware  HardwareConfig  `mapstructure:"hardware" yaml:"hardware"`
	Endpoints EndpointsConfig `mapstructure:"endpoints" yaml:"endpoints"`
	Offline   OfflineConfig   `mapstructure:"offline" yaml:"offline"`
	Server    ServerConfig    `mapstructure:"server" yaml:"server"`

	// Profile is the name the config was resolved from.
	Profile string `mapstructure:"-" yaml:"-" json:"-"`
	// Inheritance records, per dotted key, where each value came from.
	Inheritance map[string]string `mapstructure:"-" yaml:"-" json:"-"`
}

type AudioConfig struct {
	SampleRate   int    `mapstructure:"sample_rate" yaml:"sample_rate"`
	Backend      string `mapstructure:"backend" yaml:"backend"` // "malgo", "offline", "auto"
	MaxFrames    int    `mapstructure:"max_frames" yaml:"max_frames"`
	PeriodFrames int    `mapstructure:"period_frames" yaml:"period_frames"`
}

type QueueConfig struct {
	Capacity int    `mapstructure:"capacity" yaml:"capacity"`
	Policy   string `mapstructure:"policy" yaml:"policy"` // "peek", "consume"
	Filler   string `mapstructure:"filler" yaml:"filler"` // "none", "silence", "hold"
}

type HardwareConfig struct {
	VendorID   uint16   `mapstructure:"vendor_id" yaml:"vendor_id"`
	ProductIDs []uint16 `mapstructure:"product_ids" yaml:"product_ids"`
	Name       string   `mapstructure:"name" yaml:"name"`
	Exclusive  *bool    `mapstructure:"exclusive" yaml:"exclusive,omitempty"`
}

// ExclusiveAccess reports whether the hardware should be claimed. Unset
// means yes.
func (h HardwareConfig) ExclusiveAccess() bool {
	return h.Exclusive == nil || *h.Exclusive
}

type EndpointsConfig struct {
	Prefix string `mapstructure:"prefix" yaml:"prefix"`
}

type OfflineConfig struct {
	InputDir  string `mapstructure:"input_dir" yaml:"input_dir"`
	OutputDir string `mapstructure:"output_dir" yaml:"output_dir"`
}

type ServerConfig struct {
	Listen string `mapstructure:"listen" yaml:"listen"`
}

// Default returns the built-in configuration for a GoXLR or GoXLR Mini.
func Default() *Config {
	return &Config{
		Audio: AudioConfig{
			SampleRate:   48000,
			Backend:      "auto",
			MaxFrames:    4096,
			PeriodFrames: 480,
		},
		Queue: QueueConfig{
			Capacity: queue.DefaultCapacity,
			Policy:   queue.PolicyPeek.String(),
			Filler:   queue.FillNone.String(),
		},
		Hardware: HardwareConfig{
			VendorID:   0x1220,
			ProductIDs: []uint16{0x8fe0, 0x8fe4},
		},
		Endpoints: EndpointsConfig{Prefix: "GoXLR"},
		Offline: OfflineConfig{
			InputDir:  filepath.Join(os.Getenv("HOME"), "Audio", "xlrbridge", "in"),
			OutputDir: filepath.Join(os.Getenv("HOME"), "Audio", "xlrbridge", "out"),
		},
	}
}

// DefaultPath is where the config file lives when --config is not given.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "xlrbridge.yaml"
	}
	return filepath.Join(home, ".config", "xlrbridge.yaml")
}

// LoadWithProfile resolves profile (or the active one) from configFile. An
// empty configFile, or a default path that does not exist, yields the
// built-in defaults.
func LoadWithProfile(configFile, profile string) (*Config, error) {
	if configFile == "" {
		cfg := mergeConfigs(Default(), nil)
		cfg.Profile = "default"
		return cfg, finalize(cfg)
	}

	rootConfig, err := ValidateConfigurationFormat(configFile)
	if err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	name := profile
	if name == "" {
		name = rootConfig.ActiveProfile
	}
	if name == "" {
		name = "default"
	}

	selected, exists := rootConfig.Profiles[name]
	if !exists && name != "default" {
		return nil, fmt.Errorf("configuration profile '%s' not found", name)
	}

	// Selection & Fallback: built-in defaults, then the default profile,
	// then the selected one.
	base := Default()
	if def, ok := rootConfig.Profiles["default"]; ok && name != "default" {
		base = mergeConfigs(base, def)
	}
	cfg := mergeConfigs(base, selected)
	cfg.Profile = name

	// Globals take precedence over every profile.
	if g := rootConfig.Globals; g != nil {
		if g.Offline.InputDir != "" {
			cfg.Offline.InputDir = g.Offline.InputDir
			cfg.Inheritance["offline.input_dir"] = global
		}
		if g.Offline.OutputDir != "" {
			cfg.Offline.OutputDir = g.Offline.OutputDir
			cfg.Inheritance["offline.output_dir"] = global
		}
		if g.Server.Listen != "" {
			cfg.Server.Listen = g.Server.Listen
			cfg.Inheritance["server.listen"] = global
		}
	}

	if err := finalize(cfg); err != nil {
		return nil, fmt.Errorf("profile '%s': %w", name, err)
	}
	return cfg, nil
}

func finalize(cfg *Config) error {
	cfg.Offline.InputDir = expandPath(cfg.Offline.InputDir)
	cfg.Offline.OutputDir = expandPath(cfg.Offline.OutputDir)
	return cfg.Validate()
}

// UpdateActiveProfile rewrites active_profile in configFile.
func UpdateActiveProfile(configFile, name string) error {
	if configFile == "" {
		return fmt.Errorf("no config file specified")
	}

	v := viper.New()
	v.SetConfigFile(configFile)
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("error reading config file %s: %w", configFile, err)
	}

	var root RootConfig
	if err := v.Unmarshal(&root); err != nil {
		return fmt.Errorf("error unmarshaling config: %w", err)
	}
	if _, ok := root.Profiles[name]; !ok && name != "default" {
		return fmt.Errorf("configuration profile '%s' not found", name)
	}

	v.Set("active_profile", name)
	if err := v.WriteConfig(); err != nil {
		return fmt.Errorf("error writing config file %s: %w", configFile, err)
	}
	return nil
}

// mergeConfigs overlays every field profile sets onto base and records
// where each value came from.
func mergeConfigs(base, profile *Config) *Config {
	result := &Config{Inheritance: make(map[string]string)}
	if base != nil {
		result.Audio = base.Audio
		result.Queue = base.Queue
		result.Hardware = base.Hardware
		result.Hardware.ProductIDs = append([]uint16(nil), base.Hardware.ProductIDs...)
		result.Endpoints = base.Endpoints
		result.Offline = base.Offline
		result.Server = base.Server
	}
	for _, k := range Keys() {
		result.Inheritance[k] = inherited
	}
	if profile == nil {
		return result
	}

	set := func(key string) { result.Inheritance[key] = profileSpecific }

	if profile.Audio.SampleRate != 0 {
		result.Audio.SampleRate = profile.Audio.SampleRate
		set("audio.sample_rate")
	}
	if profile.Audio.Backend != "" {
		result.Audio.Backend = profile.Audio.Backend
		set("audio.backend")
	}
	if profile.Audio.MaxFrames != 0 {
		result.Audio.MaxFrames = profile.Audio.MaxFrames
		set("audio.max_frames")
	}
	if profile.Audio.PeriodFrames != 0 {
		result.Audio.PeriodFrames = profile.Audio.PeriodFrames
		set("audio.period_frames")
	}

	if profile.Queue.Capacity != 0 {
		result.Queue.Capacity = profile.Queue.Capacity
		set("queue.capacity")
	}
	if profile.Queue.Policy != "" {
		result.Queue.Policy = profile.Queue.Policy
		set("queue.policy")
	}
	if profile.Queue.Filler != "" {
		result.Queue.Filler = profile.Queue.Filler
		set("queue.filler")
	}

	if profile.Hardware.VendorID != 0 {
		result.Hardware.VendorID = profile.Hardware.VendorID
		set("hardware.vendor_id")
	}
	if len(profile.Hardware.ProductIDs) > 0 {
		result.Hardware.ProductIDs = append([]uint16(nil), profile.Hardware.ProductIDs...)
		set("hardware.product_ids")
	}
	if profile.Hardware.Name != "" {
		result.Hardware.Name = profile.Hardware.Name
		set("hardware.name")
	}
	if profile.Hardware.Exclusive != nil {
		v := *profile.Hardware.Exclusive
		result.Hardware.Exclusive = &v
		set("hardware.exclusive")
	}

	if profile.Endpoints.Prefix != "" {
		result.Endpoints.Prefix = profile.Endpoints.Prefix
		set("endpoints.prefix")
	}
	if profile.Offline.InputDir != "" {
		result.Offline.InputDir = profile.Offline.InputDir
		set("offline.input_dir")
	}
	if profile.Offline.OutputDir != "" {
		result.Offline.OutputDir = profile.Offline.OutputDir
		set("offline.output_dir")
	}
	if profile.Server.Listen != "" {
		result.Server.Listen = profile.Server.Listen
		set("server.listen")
	}
	return result
}

// Keys lists every profile key in display order.
func Keys() []string {
	return []string{
		"audio.sample_rate", "audio.backend", "audio.max_frames", "audio.period_frames",
		"queue.capacity", "queue.policy", "queue.filler",
		"hardware.vendor_id", "hardware.product_ids", "hardware.name", "hardware.exclusive",
		"endpoints.prefix",
		"offline.input_dir", "offline.output_dir",
		"server.listen",
	}
}

// Validate checks a resolved config.
func (c *Config) Validate() error {
	if c.Audio.SampleRate <= 0 {
		return fmt.Errorf("audio.sample_rate must be > 0, got: %d", c.Audio.SampleRate)
	}
	switch c.Audio.Backend {
	case "malgo", "offline", "auto":
	default:
		return fmt.Errorf("audio.backend must be 'malgo', 'offline' or 'auto', got: %s", c.Audio.Backend)
	}
	if c.Audio.MaxFrames <= 0 {
		return fmt.Errorf("audio.max_frames must be > 0, got: %d", c.Audio.MaxFrames)
	}
	if c.Audio.PeriodFrames <= 0 || c.Audio.PeriodFrames > c.Audio.MaxFrames {
		return fmt.Errorf("audio.period_frames must be in 1..%d, got: %d", c.Audio.MaxFrames, c.Audio.PeriodFrames)
	}

	if c.Queue.Capacity <= 0 {
		return fmt.Errorf("queue.capacity must be > 0, got: %d", c.Queue.Capacity)
	}
	// A stereo queue must hold one whole period or every read comes up short.
	if need := channel.SlotsPerChannel * c.Audio.PeriodFrames; need > c.Queue.Capacity {
		return fmt.Errorf("queue.capacity must hold one period (%d samples for audio.period_frames %d), got: %d",
			need, c.Audio.PeriodFrames, c.Queue.Capacity)
	}
	if _, err := queue.ParsePolicy(c.Queue.Policy); err != nil {
		return fmt.Errorf("queue.policy: %w", err)
	}
	if _, err := queue.ParseFiller(c.Queue.Filler); err != nil {
		return fmt.Errorf("queue.filler: %w", err)
	}

	if c.Hardware.VendorID == 0 {
		return fmt.Errorf("hardware.vendor_id is required")
	}
	if len(c.Hardware.ProductIDs) == 0 {
		return fmt.Errorf("hardware.product_ids cannot be empty")
	}

	if c.Endpoints.Prefix == "" {
		return fmt.Errorf("endpoints.prefix is required")
	}
	if strings.Contains(c.Endpoints.Prefix, "::") {
		return fmt.Errorf("endpoints.prefix must not contain '::', got: %s", c.Endpoints.Prefix)
	}
	return nil
}

// QueuePolicy returns the parsed read policy. Call after Validate.
func (c *Config) QueuePolicy() queue.Policy {
	p, _ := queue.ParsePolicy(c.Queue.Policy)
	return p
}

// QueueFiller returns the parsed underrun filler. Call after Validate.
func (c *Config) QueueFiller() queue.Filler {
	f, _ := queue.ParseFiller(c.Queue.Filler)
	return f
}

// ValidateConfigurationFormat reads configFile and checks every profile in it.
func ValidateConfigurationFormat(configFile string) (*RootConfig, error) {
	v := viper.New()
	v.SetConfigFile(configFile)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("error reading config file %s: %w", configFile, err)
	}

	var rootConfig RootConfig
	if err := v.Unmarshal(&rootConfig); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	// Unmarshal does not consult the environment for this key.
	if active := v.GetString("active_profile"); active != "" {
		rootConfig.ActiveProfile = active
	}

	if len(rootConfig.Profiles) == 0 {
		return nil, fmt.Errorf("profiles section is required")
	}
	for name, p := range rootConfig.Profiles {
		if p == nil {
			rootConfig.Profiles[name] = &Config{}
			continue
		}
		if err := validateProfile(p); err != nil {
			return nil, fmt.Errorf("invalid profile '%s': %w", name, err)
		}
	}
	return &rootConfig, nil
}

// validateProfile checks the fields a profile sets; unset ones are inherited.
func validateProfile(p *Config) error {
	if p.Audio.SampleRate < 0 {
		return fmt.Errorf("audio.sample_rate must be > 0, got: %d", p.Audio.SampleRate)
	}
	if p.Queue.Capacity < 0 {
		return fmt.Errorf("queue.capacity must be > 0, got: %d", p.Queue.Capacity)
	}
	if p.Queue.Policy != "" {
		if _, err := queue.ParsePolicy(p.Queue.Policy); err != nil {
			return fmt.Errorf("queue.policy: %w", err)
		}
	}
	if p.Queue.Filler != "" {
		if _, err := queue.ParseFiller(p.Queue.Filler); err != nil {
			return fmt.Errorf("queue.filler: %w", err)
		}
	}
	return nil
}

func expandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		homeDir, _ := os.UserHomeDir()
		return filepath.Join(homeDir, path[2:])
	}
	return path
}
