package main

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
}

func TestLoadConfigFileMergesOntoDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	doc := `
[profiles]
active = "stream"

[logging]
level = "debug"
`
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadConfigFile(path)
	if err != nil {
		t.Fatalf("LoadConfigFile: %v", err)
	}
	if cfg.Profiles.Active != "stream" {
		t.Errorf("active profile %q, want stream", cfg.Profiles.Active)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("log level %q, want debug", cfg.Logging.Level)
	}
	// Untouched sections keep defaults.
	if cfg.IPC.SocketPath != "/tmp/mixerd.sock" {
		t.Errorf("socket path %q, want default", cfg.IPC.SocketPath)
	}
	if cfg.Device.PollIntervalMS != 20 {
		t.Errorf("poll interval %d, want default 20", cfg.Device.PollIntervalMS)
	}
}

func TestLoadConfigFileRejectsUnknownKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte("[profiles]\nactiev = \"x\"\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadConfigFile(path); err == nil {
		t.Fatal("expected an error for a misspelled key")
	}
}

func TestFlagOverridesApply(t *testing.T) {
	cfg := DefaultConfig()
	dir := "/srv/profiles"
	level := "warn"
	FlagOverrides{ProfileDir: &dir, LogLevel: &level}.Apply(&cfg)

	if cfg.Profiles.Directory != dir {
		t.Errorf("profile dir %q, want %q", cfg.Profiles.Directory, dir)
	}
	if cfg.Logging.Level != level {
		t.Errorf("log level %q, want %q", cfg.Logging.Level, level)
	}
	// Untouched fields survive.
	if cfg.Profiles.Active != "default" {
		t.Errorf("active profile %q, want default", cfg.Profiles.Active)
	}
}

func TestNewLoggerAcceptsKnownLevels(t *testing.T) {
	for _, level := range []string{"error", "warn", "warning", "info", "debug", "DEBUG"} {
		if _, err := (LoggingConfig{Level: level}).NewLogger(); err != nil {
			t.Errorf("%s: %v", level, err)
		}
	}
	if _, err := (LoggingConfig{Level: "verbose"}).NewLogger(); err == nil {
		t.Error("expected an error for an unknown level")
	}
}

func TestValidateCatchesBadValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero poll interval", func(c *Config) { c.Device.PollIntervalMS = 0 }},
		{"hold duration", func(c *Config) { c.Device.HoldDurationMS = 0 }},
		{"backoff order", func(c *Config) { c.Device.ReconnectMaxMS = c.Device.ReconnectMinMS - 1 }},
		{"profile path", func(c *Config) { c.Profiles.Active = "../evil" }},
		{"empty socket", func(c *Config) { c.IPC.SocketPath = "" }},
		{"autosave delay", func(c *Config) { c.Profiles.AutosaveDelayMS = 0 }},
	}
	for _, tc := range cases {
		cfg := DefaultConfig()
		tc.mutate(&cfg)
		if err := cfg.Validate(); err == nil {
			t.Errorf("%s: expected an error", tc.name)
		}
	}
}
