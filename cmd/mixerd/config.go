package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/BurntSushi/toml"

	"mixerd/profile"
)

// Config is the top-level TOML configuration for the mixerd daemon.
//
// The config file is the primary configuration surface; flags exist for small
// overrides and for environments where a file is awkward. Keep defaults and
// validation centralized so the rest of the code can assume a well-formed
// config.
type Config struct {
	Device   DeviceConfig   `toml:"device"`
	Profiles ProfilesConfig `toml:"profiles"`
	IPC      IPCConfig      `toml:"ipc"`
	HTTP     HTTPConfig     `toml:"http"`
	Notify   NotifyConfig   `toml:"notifications"`
	Logging  LoggingConfig  `toml:"logging"`
}

type DeviceConfig struct {
	// PollIntervalMS is the input sampling cadence (buttons, faders,
	// encoders).
	PollIntervalMS int `toml:"poll_interval_ms"`

	// HoldDurationMS is how long a mute button must stay down to force
	// mute-to-all.
	HoldDurationMS int `toml:"hold_duration_ms"`

	// ReconnectMinMS / ReconnectMaxMS bound the reattach backoff after a
	// disconnect.
	ReconnectMinMS int `toml:"reconnect_min_ms"`
	ReconnectMaxMS int `toml:"reconnect_max_ms"`
}

type ProfilesConfig struct {
	Directory string `toml:"directory"`
	Active    string `toml:"active"`

	// Autosave persists the active profile a short while after the last
	// change; disabled, changes live only until save-profile is requested.
	Autosave        bool `toml:"autosave"`
	AutosaveDelayMS int  `toml:"autosave_delay_ms"`
}

type IPCConfig struct {
	SocketPath string `toml:"socket_path"`
	LockPath   string `toml:"lock_path"`
}

type HTTPConfig struct {
	// ListenAddr serves the status WebSocket; empty disables the listener.
	ListenAddr string `toml:"listen_addr"`
}

type NotifyConfig struct {
	Enabled bool `toml:"enabled"`
}

type LoggingConfig struct {
	Level string `toml:"level"`
}

// NewLogger builds the daemon's slog logger for the configured level. An
// unrecognised level is an error rather than a silent downgrade; it is the
// one Logging field, so this doubles as its validation.
func (c LoggingConfig) NewLogger() (*slog.Logger, error) {
	var level slog.Level
	switch strings.ToLower(c.Level) {
	case "error":
		level = slog.LevelError
	case "warn", "warning":
		level = slog.LevelWarn
	case "info":
		level = slog.LevelInfo
	case "debug":
		level = slog.LevelDebug
	default:
		return nil, fmt.Errorf("logging.level %q: must be error, warn, info or debug", c.Level)
	}
	handler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	return slog.New(handler), nil
}

// DefaultConfig returns a fully-populated Config with defaults.
func DefaultConfig() Config {
	return Config{
		Device: DeviceConfig{
			PollIntervalMS: 20,
			HoldDurationMS: 500,
			ReconnectMinMS: 1000,
			ReconnectMaxMS: 300000,
		},
		Profiles: ProfilesConfig{
			Directory:       "~/.config/mixerd/profiles",
			Active:          "default",
			Autosave:        true,
			AutosaveDelayMS: 2000,
		},
		IPC: IPCConfig{
			SocketPath: "/tmp/mixerd.sock",
			LockPath:   "/tmp/mixerd.lock",
		},
		HTTP: HTTPConfig{
			ListenAddr: "127.0.0.1:14564",
		},
		Notify: NotifyConfig{
			Enabled: true,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// LoadConfigFile reads and parses a TOML config file. Unknown keys are
// rejected to catch typos.
func LoadConfigFile(path string) (Config, error) {
	if path == "" {
		return Config{}, errors.New("config path is empty")
	}

	cfg := DefaultConfig()
	md, err := toml.DecodeFile(profile.ExpandPath(path), &cfg)
	if err != nil {
		return Config{}, fmt.Errorf("decode config toml: %w", err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return Config{}, fmt.Errorf("decode config toml: unknown keys: %s", strings.Join(keys, ", "))
	}
	return cfg, nil
}

// FlagOverrides applies flag values on top of a loaded config. Each override
// is applied only when its pointer is non-nil.
type FlagOverrides struct {
	ProfileDir    *string
	ActiveProfile *string
	IPCSocketPath *string
	HTTPAddr      *string
	NotifyEnabled *bool
	LogLevel      *string
}

// Apply merges the overrides into cfg.
func (o FlagOverrides) Apply(cfg *Config) {
	if cfg == nil {
		return
	}
	if o.ProfileDir != nil {
		cfg.Profiles.Directory = *o.ProfileDir
	}
	if o.ActiveProfile != nil {
		cfg.Profiles.Active = *o.ActiveProfile
	}
	if o.IPCSocketPath != nil {
		cfg.IPC.SocketPath = *o.IPCSocketPath
	}
	if o.HTTPAddr != nil {
		cfg.HTTP.ListenAddr = *o.HTTPAddr
	}
	if o.NotifyEnabled != nil {
		cfg.Notify.Enabled = *o.NotifyEnabled
	}
	if o.LogLevel != nil {
		cfg.Logging.Level = *o.LogLevel
	}
}

// Validate checks config invariants and returns a user-friendly error. It is
// intended to be called after defaults + file + overrides are applied.
func (c *Config) Validate() error {
	if c.Device.PollIntervalMS <= 0 || c.Device.PollIntervalMS > 1000 {
		return errors.New("device.poll_interval_ms must be between 1 and 1000")
	}
	if c.Device.HoldDurationMS <= 0 {
		return errors.New("device.hold_duration_ms must be > 0")
	}
	if c.Device.ReconnectMinMS <= 0 {
		return errors.New("device.reconnect_min_ms must be > 0")
	}
	if c.Device.ReconnectMaxMS < c.Device.ReconnectMinMS {
		return errors.New("device.reconnect_max_ms must be >= device.reconnect_min_ms")
	}

	if c.Profiles.Directory == "" {
		return errors.New("profiles.directory must not be empty")
	}
	if c.Profiles.Active == "" {
		return errors.New("profiles.active must not be empty")
	}
	if strings.ContainsAny(c.Profiles.Active, "/\\") {
		return errors.New("profiles.active must be a bare name, not a path")
	}
	if c.Profiles.Autosave && c.Profiles.AutosaveDelayMS <= 0 {
		return errors.New("profiles.autosave_delay_ms must be > 0 when autosave is enabled")
	}

	if c.IPC.SocketPath == "" {
		return errors.New("ipc.socket_path must not be empty")
	}
	if c.IPC.LockPath == "" {
		return errors.New("ipc.lock_path must not be empty")
	}

	if c.Logging.Level == "" {
		return errors.New("logging.level must not be empty")
	}

	return nil
}

// findConfigFile returns the first existing config file among the standard
// locations, or empty when none exists.
func findConfigFile() string {
	candidates := []string{
		"~/.config/mixerd/config.toml",
		"/etc/mixerd/config.toml",
	}
	for _, c := range candidates {
		if _, err := os.Stat(profile.ExpandPath(c)); err == nil {
			return c
		}
	}
	return ""
}
