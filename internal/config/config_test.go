package config

import (
	"os"
	"path/filepath"
	"testing"
)

type testOptions struct {
	Config       string
	Host         string   `toml:"server.host" env:"HOST"`
	Port         int      `toml:"server.port" env:"PORT"`
	Debug        bool     `toml:"server.debug" env:"DEBUG"`
	CorsOrigins  []string `toml:"server.cors_origins" env:"CORS_ORIGINS"`
	LoggingLevel string   `toml:"logging.level" env:"LOGGING_LEVEL"`
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "rovercam.toml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadFromTOML(t *testing.T) {
	path := writeConfig(t, `
[server]
host = "10.0.0.5"
port = 8080
debug = true
cors_origins = ["http://a", "http://b"]

[logging]
level = "debug"
`)

	opts := testOptions{Config: path, Host: "0.0.0.0", Port: 5000}
	if err := Load(&opts, nil); err != nil {
		t.Fatalf("Load: %v", err)
	}

	if opts.Host != "10.0.0.5" || opts.Port != 8080 || !opts.Debug {
		t.Errorf("opts = %+v", opts)
	}
	if len(opts.CorsOrigins) != 2 || opts.CorsOrigins[0] != "http://a" {
		t.Errorf("CorsOrigins = %v", opts.CorsOrigins)
	}
	if opts.LoggingLevel != "debug" {
		t.Errorf("LoggingLevel = %q", opts.LoggingLevel)
	}
}

func TestLoadMissingFileKeepsDefaults(t *testing.T) {
	opts := testOptions{Config: "/nonexistent/rovercam.toml", Host: "0.0.0.0", Port: 5000}
	if err := Load(&opts, nil); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if opts.Host != "0.0.0.0" || opts.Port != 5000 {
		t.Errorf("defaults clobbered: %+v", opts)
	}
}

func TestLoadBadTOML(t *testing.T) {
	path := writeConfig(t, "[[[not toml")
	opts := testOptions{Config: path}
	if err := Load(&opts, nil); err == nil {
		t.Fatal("Load accepted unparsable TOML")
	}
}

func TestEnvOverridesTOML(t *testing.T) {
	path := writeConfig(t, `
[server]
port = 8080
`)
	t.Setenv("ROVERCAM_PORT", "9000")
	t.Setenv("ROVERCAM_CORS_ORIGINS", "http://x, http://y")

	opts := testOptions{Config: path}
	if err := Load(&opts, nil); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if opts.Port != 9000 {
		t.Errorf("Port = %d, want env to win over TOML", opts.Port)
	}
	if len(opts.CorsOrigins) != 2 || opts.CorsOrigins[1] != "http://y" {
		t.Errorf("CorsOrigins = %v", opts.CorsOrigins)
	}
}

func TestFlagName(t *testing.T) {
	tests := []struct{ in, want string }{
		{"Port", "port"},
		{"LoggingLevel", "logging-level"},
		{"CorsOrigins", "cors-origins"},
		{"Host", "host"},
	}
	for _, tt := range tests {
		if got := flagName(tt.in); got != tt.want {
			t.Errorf("flagName(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestLoadLogging(t *testing.T) {
	path := writeConfig(t, `
[logging]
level = "warn"
format = "json"
camera = "debug"
session = "error"
`)

	cfg := LoadLogging(path)
	if cfg.Level != "warn" || cfg.Format != "json" {
		t.Errorf("cfg = %+v", cfg)
	}
	if cfg.Modules["camera"] != "debug" || cfg.Modules["session"] != "error" {
		t.Errorf("Modules = %v", cfg.Modules)
	}
}

func TestLoadLoggingDefaults(t *testing.T) {
	cfg := LoadLogging("")
	if cfg.Level != "info" || cfg.Format != "text" {
		t.Errorf("cfg = %+v", cfg)
	}
	cfg = LoadLogging("/nonexistent.toml")
	if cfg.Level != "info" {
		t.Errorf("missing file should yield defaults, got %+v", cfg)
	}
}
