// Package config handles notifd configuration loading.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

func parseDurationSeconds(s string) (float64, error) {
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("parse duration %q: %w", s, err)
	}
	return d.Seconds(), nil
}

// AsDuration converts d to a [time.Duration].
func (d Duration) AsDuration() time.Duration {
	return time.Duration(d.Seconds * float64(time.Second))
}

// DefaultSearchPaths returns the config file search order.
// An explicit path (from -config flag) is checked first.
// Then: ./notifd.yaml, ~/.config/notifd/notifd.yaml, /config/notifd.yaml,
// /etc/notifd/notifd.yaml.
func DefaultSearchPaths() []string {
	paths := []string{"notifd.yaml"}

	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "notifd", "notifd.yaml"))
	}

	paths = append(paths, "/config/notifd.yaml") // Container convention
	paths = append(paths, "/etc/notifd/notifd.yaml")
	return paths
}

// searchPathsFunc is indirected so tests can avoid discovering real
// config files on the developer/deploy machine.
var searchPathsFunc = DefaultSearchPaths

// FindConfig locates a config file. If explicit is non-empty, it must exist.
// Otherwise, searches searchPathsFunc() and returns the first that exists.
// Returns the path found, or an error if nothing was found.
func FindConfig(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	paths := searchPathsFunc()
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}

	return "", fmt.Errorf("no config file found (searched: %v)", paths)
}

// Config holds all notifd configuration.
type Config struct {
	Socket    SocketConfig    `yaml:"socket"`
	Rotation  RotationConfig  `yaml:"rotation"`
	Audit     AuditConfig     `yaml:"audit"`
	WebAdmin  WebAdminConfig  `yaml:"webadmin"`
	MQTT      MQTTBridgeConfig `yaml:"mqtt"`
	LogLevel  string          `yaml:"log_level"`
}

// SocketConfig defines the notification-client Unix socket.
type SocketConfig struct {
	// Path to the listening socket. Empty means "$HOME/.notifd/notifd.sock".
	Path string `yaml:"path"`
	// SystemWide switches the default path and mode to the system-wide
	// convention (mode 0660 instead of 0600).
	SystemWide bool `yaml:"system_wide"`
}

// RotationConfig defines the rotation thread's timing and the
// sessions it manages. The rotation thread has no way to discover
// sessions on its own (spec.md §4.6 assumes a session-management
// control plane this rework doesn't implement — see DESIGN.md), so
// every session it should rotate must be declared here.
type RotationConfig struct {
	// CheckPendingInterval is how often a CheckPendingRotation job
	// reschedules itself while a rotation is pending at the relay.
	CheckPendingInterval Duration `yaml:"check_pending_interval"`
	// Sessions lists the sessions the rotation thread registers and
	// subscribes to SessionConsumedSize notifications for at startup.
	Sessions []SessionConfig `yaml:"sessions"`
}

// SessionConfig declares one session for the rotation thread to
// track: its initial SessionConsumedSize threshold and the byte
// step the threshold advances by after each edge-arm fire.
type SessionConfig struct {
	ID                     string `yaml:"id"`
	ConsumedThresholdBytes uint64 `yaml:"consumed_threshold_bytes"`
	RotateSizeBytes        uint64 `yaml:"rotate_size_bytes"`
}

// AuditConfig defines the observability audit log (internal/audit).
type AuditConfig struct {
	Enabled bool   `yaml:"enabled"`
	DBPath  string `yaml:"db_path"`
}

// WebAdminConfig defines the local admin dashboard (internal/webadmin).
type WebAdminConfig struct {
	Enabled bool   `yaml:"enabled"`
	Address string `yaml:"address"` // default: "127.0.0.1:9100"
}

// MQTTBridgeConfig defines the optional MQTT notification bridge
// (internal/mqttbridge).
type MQTTBridgeConfig struct {
	Enabled  bool     `yaml:"enabled"`
	BrokerURL string  `yaml:"broker_url"`
	ClientID string   `yaml:"client_id"`
	Username string   `yaml:"username"`
	Password string   `yaml:"password"`
	// Conditions lists the serialized trigger names whose notifications
	// should be bridged onto MQTT. Empty means "bridge none".
	Conditions []string `yaml:"conditions"`
}

// Duration wraps time.Duration for YAML serialization as a string
// like "30s" rather than a raw nanosecond integer.
type Duration struct {
	Seconds float64 `yaml:"-"`
}

// UnmarshalYAML implements yaml.Unmarshaler, accepting duration strings
// such as "5m" or "30s".
func (d *Duration) UnmarshalYAML(unmarshal func(any) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	parsed, err := parseDurationSeconds(s)
	if err != nil {
		return err
	}
	d.Seconds = parsed
	return nil
}

// Load reads configuration from a YAML file, expands environment
// variables, applies defaults for any unset fields, and validates
// the result. After Load returns successfully, all fields are usable
// without additional nil/empty checks.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// Expand environment variables (e.g., ${HOME}, ${MQTT_PASSWORD}).
	expanded := os.ExpandEnv(string(data))

	cfg := &Config{}
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, err
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

// applyDefaults fills in zero-value fields with sensible defaults.
// Called automatically by Load. After this, callers can read any field
// without checking for empty strings or zero values.
func (c *Config) applyDefaults() {
	if c.Socket.Path == "" {
		if c.Socket.SystemWide {
			c.Socket.Path = "/var/run/notifd/notifd.sock"
		} else if home, err := os.UserHomeDir(); err == nil {
			c.Socket.Path = filepath.Join(home, ".notifd", "notifd.sock")
		}
	}
	if c.Rotation.CheckPendingInterval.Seconds == 0 {
		c.Rotation.CheckPendingInterval.Seconds = 5
	}
	if c.Audit.Enabled && c.Audit.DBPath == "" {
		c.Audit.DBPath = "./notifd-audit.db"
	}
	if c.WebAdmin.Enabled && c.WebAdmin.Address == "" {
		c.WebAdmin.Address = "127.0.0.1:9100"
	}
	for i := range c.Rotation.Sessions {
		sess := &c.Rotation.Sessions[i]
		if sess.ConsumedThresholdBytes == 0 {
			sess.ConsumedThresholdBytes = defaultConsumedThresholdBytes
		}
		if sess.RotateSizeBytes == 0 {
			sess.RotateSizeBytes = sess.ConsumedThresholdBytes
		}
	}
}

// defaultConsumedThresholdBytes is the initial SessionConsumedSize
// threshold assumed for a declared session that doesn't set one.
const defaultConsumedThresholdBytes = 64 * 1024 * 1024

// Validate checks that the configuration is internally consistent.
// It runs after applyDefaults, so it can assume defaults are populated.
// Returns an error describing the first problem found, or nil.
func (c *Config) Validate() error {
	if c.Socket.Path == "" {
		return fmt.Errorf("socket.path could not be resolved (no HOME and none configured)")
	}
	if c.MQTT.Enabled && c.MQTT.BrokerURL == "" {
		return fmt.Errorf("mqtt.broker_url required when mqtt.enabled is true")
	}
	for i, sess := range c.Rotation.Sessions {
		if sess.ID == "" {
			return fmt.Errorf("rotation.sessions[%d].id must not be empty", i)
		}
	}
	if c.LogLevel != "" {
		if _, err := ParseLogLevel(c.LogLevel); err != nil {
			return err
		}
	}
	return nil
}

// Default returns a default configuration suitable for local development.
// All defaults are already applied.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}
