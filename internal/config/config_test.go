// ABOUTME: Tests for configuration loading and parsing
// ABOUTME: Covers YAML and TOML loading, env var expansion, defaults, and validation

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return path
}

func TestLoad_YAML(t *testing.T) {
	path := writeConfig(t, "config.yaml", `
backend: matrix
guild: "!space:example.org"
timezone: "Asia/Tokyo"

matrix:
  homeserver: "https://matrix.example.org"
  user_id: "@timekeeper:example.org"
  access_token: "syt_token"

channels:
  data: "tk-data"

limits:
  today: 20
  report: 2000

defaults:
  tasks:
    - name: "Study"
      style: "primary"
    - name: "Work"

dedupe:
  ttl: "30s"
  max_size: 50

logging:
  level: "debug"
  format: "json"
  file: "/tmp/timekeeper.log"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Backend != BackendMatrix {
		t.Errorf("Backend = %q, want %q", cfg.Backend, BackendMatrix)
	}
	if cfg.Matrix.AccessToken != "syt_token" {
		t.Errorf("Matrix.AccessToken = %q, want %q", cfg.Matrix.AccessToken, "syt_token")
	}
	if cfg.Channels.Data != "tk-data" {
		t.Errorf("Channels.Data = %q, want %q", cfg.Channels.Data, "tk-data")
	}
	if cfg.Limits.Today != 20 || cfg.Limits.Report != 2000 {
		t.Errorf("Limits = %+v, want today=20 report=2000", cfg.Limits)
	}
	if len(cfg.Defaults.Tasks) != 2 || cfg.Defaults.Tasks[1].Name != "Work" {
		t.Errorf("Defaults.Tasks = %+v", cfg.Defaults.Tasks)
	}
	if cfg.Dedupe.TTL != 30*time.Second {
		t.Errorf("Dedupe.TTL = %v, want %v", cfg.Dedupe.TTL, 30*time.Second)
	}
	if cfg.Location == nil || cfg.Location.String() != "Asia/Tokyo" {
		t.Errorf("Location = %v, want Asia/Tokyo", cfg.Location)
	}
	if cfg.Logging.Format != "json" {
		t.Errorf("Logging.Format = %q, want json", cfg.Logging.Format)
	}
}

func TestLoad_TOML(t *testing.T) {
	path := writeConfig(t, "config.toml", `
backend = "sqlite"
guild = "home"

[database]
path = "/var/lib/timekeeper/tk.db"

[[defaults.tasks]]
name = "Reading"
style = "success"

[bridge]
command_prefix = "?"
allowed_users = ["@alice:example.org"]
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Database.Path != "/var/lib/timekeeper/tk.db" {
		t.Errorf("Database.Path = %q", cfg.Database.Path)
	}
	if len(cfg.Defaults.Tasks) != 1 || cfg.Defaults.Tasks[0].Style != "success" {
		t.Errorf("Defaults.Tasks = %+v", cfg.Defaults.Tasks)
	}
	if cfg.Bridge.CommandPrefix != "?" {
		t.Errorf("Bridge.CommandPrefix = %q, want ?", cfg.Bridge.CommandPrefix)
	}
	if len(cfg.Bridge.AllowedUsers) != 1 {
		t.Errorf("Bridge.AllowedUsers = %v", cfg.Bridge.AllowedUsers)
	}
}

func TestLoad_Defaults(t *testing.T) {
	path := writeConfig(t, "config.yaml", `guild: "home"`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Backend != BackendSQLite {
		t.Errorf("Backend = %q, want sqlite", cfg.Backend)
	}
	if cfg.Database.Path != "./timekeeper.db" {
		t.Errorf("Database.Path = %q, want ./timekeeper.db", cfg.Database.Path)
	}
	if cfg.Dedupe.TTL != 10*time.Minute {
		t.Errorf("Dedupe.TTL = %v, want 10m", cfg.Dedupe.TTL)
	}
	if cfg.Bridge.CommandPrefix != "!" {
		t.Errorf("Bridge.CommandPrefix = %q, want !", cfg.Bridge.CommandPrefix)
	}
	if cfg.Metrics.Path != "/metrics" {
		t.Errorf("Metrics.Path = %q, want /metrics", cfg.Metrics.Path)
	}
	if cfg.Location == nil {
		t.Error("Location is nil")
	}
}

func TestLoad_EnvVarExpansion(t *testing.T) {
	t.Setenv("TK_TEST_TOKEN", "secret-token")
	t.Setenv("TK_TEST_GUILD", "expanded-guild")

	path := writeConfig(t, "config.yaml", `
backend: matrix
guild: "${TK_TEST_GUILD}"
matrix:
  homeserver: "https://matrix.example.org"
  user_id: "@bot:example.org"
  access_token: "${TK_TEST_TOKEN}"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Matrix.AccessToken != "secret-token" {
		t.Errorf("Matrix.AccessToken = %q, want secret-token", cfg.Matrix.AccessToken)
	}
	if cfg.Guild != "expanded-guild" {
		t.Errorf("Guild = %q, want expanded-guild", cfg.Guild)
	}
}

func TestLoad_FileNotFound(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	if err == nil {
		t.Fatal("Load() expected error for missing file")
	}
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{"missing guild", `backend: memory`, "guild is required"},
		{"unknown backend", "guild: g\nbackend: redis", "backend must be one of"},
		{"matrix without homeserver", "guild: g\nbackend: matrix", "matrix.homeserver is required"},
		{"matrix bad scheme", "guild: g\nbackend: matrix\nmatrix:\n  homeserver: ftp://x\n  user_id: u\n  access_token: t", "http or https"},
		{"matrix without token", "guild: g\nbackend: matrix\nmatrix:\n  homeserver: https://x\n  user_id: u", "matrix.access_token is required"},
		{"bad ttl", "guild: g\ndedupe:\n  ttl: soon", "parsing dedupe.ttl"},
		{"zero ttl", "guild: g\ndedupe:\n  ttl: 0s", "dedupe.ttl must be positive"},
		{"bad timezone", "guild: g\ntimezone: Mars/Olympus", "loading timezone"},
		{"negative limit", "guild: g\nlimits:\n  today: -1", "limits.today must not be negative"},
		{"blank default task", "guild: g\ndefaults:\n  tasks:\n    - style: primary", "defaults.tasks[0].name is required"},
		{"bad log format", "guild: g\nlogging:\n  format: xml", "logging.format"},
		{"bad yaml", "guild: [", "parsing config file"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.content), false)
			if err == nil {
				t.Fatalf("Parse() expected error containing %q", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Parse() error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestTemplate_Parses(t *testing.T) {
	cfg, err := Parse([]byte(Template), false)
	if err != nil {
		t.Fatalf("Parse(Template) error = %v", err)
	}
	if cfg.Backend != BackendSQLite {
		t.Errorf("Backend = %q, want sqlite", cfg.Backend)
	}
	if len(cfg.Defaults.Tasks) == 0 {
		t.Error("template has no default tasks")
	}
}
