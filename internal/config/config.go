// Package config manages cosmic-connectd's configuration using koanf/v2.
//
// Supports YAML files, environment variables, and a layered default base.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// -------------------------------------------------------------------------
// Configuration Structures
// -------------------------------------------------------------------------

// Config holds the complete daemon configuration.
type Config struct {
	Identity  IdentityConfig  `koanf:"identity"`
	State     StateConfig     `koanf:"state"`
	Discovery DiscoveryConfig `koanf:"discovery"`
	Transport TransportConfig `koanf:"transport"`
	Pairing   PairingConfig   `koanf:"pairing"`
	Recovery  RecoveryConfig  `koanf:"recovery"`
	API       APIConfig       `koanf:"api"`
	Metrics   MetricsConfig   `koanf:"metrics"`
	Log       LogConfig       `koanf:"log"`
	Plugins   PluginsConfig   `koanf:"plugins"`
}

// IdentityConfig describes how this host presents itself to peers.
type IdentityConfig struct {
	// DeviceName is advertised in the identity packet's deviceName field.
	DeviceName string `koanf:"device_name"`
	// DeviceType is one of phone, tablet, desktop, laptop, tv.
	DeviceType string `koanf:"device_type"`
}

// StateConfig locates the per-user persistent state directory (§6.3):
// certs/, trusted_peers.json, devices.json, retry_queue.json.
type StateConfig struct {
	Root string `koanf:"root"`
}

// DiscoveryConfig configures UDP broadcast discovery.
type DiscoveryConfig struct {
	// Port is the UDP discovery port, also the default TCP listen port.
	Port int `koanf:"port"`
	// BroadcastInterval is how often the identity packet is rebroadcast.
	BroadcastInterval time.Duration `koanf:"broadcast_interval"`
	// PeerTimeout is how long a peer may go unheard from before it times out.
	PeerTimeout time.Duration `koanf:"peer_timeout"`
}

// TransportConfig configures transport selection and limits.
type TransportConfig struct {
	// Preference is one of "tcp", "bluetooth", "tcp_first", "bluetooth_first".
	Preference       string `koanf:"preference"`
	MaxPacketSize    int    `koanf:"max_packet_size"`
	BluetoothEnabled bool   `koanf:"bluetooth_enabled"`
}

// PairingConfig configures the pairing ceremony timers.
type PairingConfig struct {
	Timeout time.Duration `koanf:"timeout"`
}

// RecoveryConfig configures the reconnection and retry-queue policy.
type RecoveryConfig struct {
	InitialDelay  time.Duration `koanf:"initial_delay"`
	MaxDelay      time.Duration `koanf:"max_delay"`
	MaxAttempts   int           `koanf:"max_retry_attempts"`
	RetryInterval time.Duration `koanf:"retry_interval"`
}

// APIConfig configures the external D-Bus control surface.
type APIConfig struct {
	Enabled bool `koanf:"enabled"`
}

// MetricsConfig holds the Prometheus metrics endpoint configuration.
type MetricsConfig struct {
	Addr string `koanf:"addr"`
	Path string `koanf:"path"`
}

// LogConfig holds the logging configuration.
type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// PluginsConfig holds the global and per-device plugin enable/disable map.
// A device override wins over the global default (spec §4.7).
type PluginsConfig struct {
	Enabled map[string]bool            `koanf:"enabled"`
	Devices map[string]map[string]bool `koanf:"devices"`
}

// IsEnabled reports whether pluginName is enabled for deviceID, applying
// the device-override-wins-over-global-default rule.
func (p PluginsConfig) IsEnabled(deviceID, pluginName string) bool {
	if overrides, ok := p.Devices[deviceID]; ok {
		if v, ok := overrides[pluginName]; ok {
			return v
		}
	}
	return p.Enabled[pluginName]
}

// -------------------------------------------------------------------------
// Defaults
// -------------------------------------------------------------------------

// DefaultStateRoot returns "$XDG_CONFIG_HOME/cosmic-connectd" or
// "$HOME/.config/cosmic-connectd" if XDG_CONFIG_HOME is unset.
func DefaultStateRoot() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "cosmic-connectd")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".cosmic-connectd"
	}
	return filepath.Join(home, ".config", "cosmic-connectd")
}

// DefaultConfig returns a Config populated with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Identity: IdentityConfig{
			DeviceName: "cosmic-connectd",
			DeviceType: "desktop",
		},
		State: StateConfig{
			Root: DefaultStateRoot(),
		},
		Discovery: DiscoveryConfig{
			Port:              1716,
			BroadcastInterval: 5 * time.Second,
			PeerTimeout:       30 * time.Second,
		},
		Transport: TransportConfig{
			Preference:       "tcp",
			MaxPacketSize:    1 << 20,
			BluetoothEnabled: false,
		},
		Pairing: PairingConfig{
			Timeout: 30 * time.Second,
		},
		Recovery: RecoveryConfig{
			InitialDelay:  1 * time.Second,
			MaxDelay:      60 * time.Second,
			MaxAttempts:   5,
			RetryInterval: 5 * time.Second,
		},
		API: APIConfig{
			Enabled: true,
		},
		Metrics: MetricsConfig{
			Addr: ":9760",
			Path: "/metrics",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		Plugins: PluginsConfig{
			Enabled: map[string]bool{
				"ping":    true,
				"battery": true,
			},
		},
	}
}

// -------------------------------------------------------------------------
// Loader
// -------------------------------------------------------------------------

// envPrefix is the environment variable prefix for daemon configuration.
// Variables are named CCONNECTD_<section>_<key>, e.g. CCONNECTD_LOG_LEVEL.
const envPrefix = "CCONNECTD_"

// Load reads configuration from a YAML file at path, overlays environment
// variable overrides (CCONNECTD_ prefix), and merges on top of
// DefaultConfig(). A missing file at path is not an error: defaults and
// env overrides still apply. Missing fields inherit defaults.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	defaults := DefaultConfig()
	if err := loadDefaults(k, defaults); err != nil {
		return nil, fmt.Errorf("load config defaults: %w", err)
	}

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
				return nil, fmt.Errorf("load config from %s: %w", path, err)
			}
		} else if !os.IsNotExist(err) {
			return nil, fmt.Errorf("stat config %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(envPrefix, ".", envKeyMapper), nil); err != nil {
		return nil, fmt.Errorf("load env overrides: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}

// envKeyMapper transforms CCONNECTD_LOG_LEVEL -> log.level.
func envKeyMapper(s string) string {
	s = strings.TrimPrefix(s, envPrefix)
	s = strings.ToLower(s)
	return strings.ReplaceAll(s, "_", ".")
}

// loadDefaults marshals the default config into koanf as the base layer.
func loadDefaults(k *koanf.Koanf, defaults *Config) error {
	defaultMap := map[string]any{
		"identity.device_name":         defaults.Identity.DeviceName,
		"identity.device_type":         defaults.Identity.DeviceType,
		"state.root":                   defaults.State.Root,
		"discovery.port":               defaults.Discovery.Port,
		"discovery.broadcast_interval": defaults.Discovery.BroadcastInterval.String(),
		"discovery.peer_timeout":       defaults.Discovery.PeerTimeout.String(),
		"transport.preference":         defaults.Transport.Preference,
		"transport.max_packet_size":    defaults.Transport.MaxPacketSize,
		"transport.bluetooth_enabled":  defaults.Transport.BluetoothEnabled,
		"pairing.timeout":              defaults.Pairing.Timeout.String(),
		"recovery.initial_delay":       defaults.Recovery.InitialDelay.String(),
		"recovery.max_delay":           defaults.Recovery.MaxDelay.String(),
		"recovery.max_retry_attempts":  defaults.Recovery.MaxAttempts,
		"recovery.retry_interval":      defaults.Recovery.RetryInterval.String(),
		"api.enabled":                  defaults.API.Enabled,
		"metrics.addr":                 defaults.Metrics.Addr,
		"metrics.path":                 defaults.Metrics.Path,
		"log.level":                    defaults.Log.Level,
		"log.format":                   defaults.Log.Format,
	}

	for key, val := range defaultMap {
		if err := k.Set(key, val); err != nil {
			return fmt.Errorf("set default %s: %w", key, err)
		}
	}

	for plugin, enabled := range defaults.Plugins.Enabled {
		if err := k.Set("plugins.enabled."+plugin, enabled); err != nil {
			return fmt.Errorf("set default plugins.enabled.%s: %w", plugin, err)
		}
	}

	return nil
}

// -------------------------------------------------------------------------
// Validation
// -------------------------------------------------------------------------

// Validation errors.
var (
	ErrEmptyDeviceName       = errors.New("identity.device_name must not be empty")
	ErrInvalidDeviceType     = errors.New("identity.device_type must be one of phone, tablet, desktop, laptop, tv")
	ErrEmptyStateRoot        = errors.New("state.root must not be empty")
	ErrInvalidPort           = errors.New("discovery.port must be between 1 and 65535")
	ErrInvalidPreference     = errors.New("transport.preference must be one of tcp, bluetooth, tcp_first, bluetooth_first")
	ErrInvalidPairingTimeout = errors.New("pairing.timeout must be > 0")
	ErrInvalidRetryAttempts  = errors.New("recovery.max_retry_attempts must be >= 1")
)

// ValidDeviceTypes lists the recognized device type strings.
var ValidDeviceTypes = map[string]bool{
	"phone": true, "tablet": true, "desktop": true, "laptop": true, "tv": true,
}

// ValidPreferences lists the recognized transport preference strings.
var ValidPreferences = map[string]bool{
	"tcp": true, "bluetooth": true, "tcp_first": true, "bluetooth_first": true,
}

// Validate checks the configuration for logical errors.
func Validate(cfg *Config) error {
	if cfg.Identity.DeviceName == "" {
		return ErrEmptyDeviceName
	}
	if !ValidDeviceTypes[cfg.Identity.DeviceType] {
		return ErrInvalidDeviceType
	}
	if cfg.State.Root == "" {
		return ErrEmptyStateRoot
	}
	if cfg.Discovery.Port < 1 || cfg.Discovery.Port > 65535 {
		return ErrInvalidPort
	}
	if !ValidPreferences[cfg.Transport.Preference] {
		return ErrInvalidPreference
	}
	if cfg.Pairing.Timeout <= 0 {
		return ErrInvalidPairingTimeout
	}
	if cfg.Recovery.MaxAttempts < 1 {
		return ErrInvalidRetryAttempts
	}
	return nil
}

// -------------------------------------------------------------------------
// Log Level Parsing
// -------------------------------------------------------------------------

// ParseLogLevel maps a configuration log level string to the corresponding
// slog.Level. Unknown values default to slog.LevelInfo.
func ParseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
