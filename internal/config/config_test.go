package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/talgya/tidewater/internal/economy"
	"github.com/talgya/tidewater/internal/engine"
)

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tidewater.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestDefaultsMatchEngine(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got := cfg.Settings(); got != engine.DefaultSettings() {
		t.Errorf("Settings() = %+v, want %+v", got, engine.DefaultSettings())
	}
	if got := cfg.SchedulerCadence(); got != engine.DefaultCadence() {
		t.Errorf("SchedulerCadence() = %+v", got)
	}
	if lvl, _ := cfg.Level(); lvl != slog.LevelInfo {
		t.Errorf("Level() = %v", lvl)
	}
}

func TestLoadFile(t *testing.T) {
	path := writeFile(t, `
port: 9090
log_level: debug
offline: true
game:
  grid_size: 12
  starting_resources: {fish: 300, tourism: 100, energy: 50}
  freshness: 10m
cadence:
  tick: 5m
  bulletins: 0s
llm:
  model: claude-test
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Port != 9090 || !cfg.Offline || cfg.LLM.Model != "claude-test" {
		t.Errorf("cfg = %+v", cfg)
	}
	s := cfg.Settings()
	if s.GridSize != 12 || s.Freshness != 10*time.Minute {
		t.Errorf("settings = %+v", s)
	}
	if s.StartingResources != (economy.Resources{Fish: 300, Tourism: 100, Energy: 50}) {
		t.Errorf("starting resources = %v", s.StartingResources)
	}
	// Unset fields keep their defaults.
	if s.EventLimit != 20 || s.PredictionDays != 1 {
		t.Errorf("defaults lost: %+v", s)
	}
	c := cfg.SchedulerCadence()
	if c.Tick != 5*time.Minute || c.Bulletins != 0 || c.Storms != 15*time.Minute {
		t.Errorf("cadence = %+v", c)
	}
	if lvl, _ := cfg.Level(); lvl != slog.LevelDebug {
		t.Errorf("Level() = %v", lvl)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "sk-test")
	t.Setenv("TIDEWATER_ADMIN_KEY", "admin")
	t.Setenv("TIDEWATER_DB", "/tmp/tw.db")
	t.Setenv("TIDEWATER_PORT", "7070")
	t.Setenv("TIDEWATER_OFFLINE", "true")
	t.Setenv("CORS_ORIGINS", "https://a.example.com, ,https://b.example.com")

	cfg, err := Load(writeFile(t, "port: 9090\ndb_path: from-file.db\n"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.LLM.APIKey != "sk-test" || cfg.AdminKey != "admin" {
		t.Errorf("keys = %q %q", cfg.LLM.APIKey, cfg.AdminKey)
	}
	if cfg.DBPath != "/tmp/tw.db" || cfg.Port != 7070 || !cfg.Offline {
		t.Errorf("cfg = %+v", cfg)
	}
	if len(cfg.CORSOrigins) != 2 || cfg.CORSOrigins[1] != "https://b.example.com" {
		t.Errorf("origins = %q", cfg.CORSOrigins)
	}
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name string
		body string
		env  map[string]string
		want string
	}{
		{"bad yaml", "port: [", nil, "parse config"},
		{"bad port", "port: 70000", nil, "port 70000"},
		{"bad level", "log_level: loud", nil, "log_level"},
		{"zero grid", "game: {grid_size: 0}", nil, "grid_size"},
		{"negative cadence", "cadence: {tick: -1m}", nil, "cadence.tick"},
		{"bad env port", "", map[string]string{"TIDEWATER_PORT": "eighty"}, "TIDEWATER_PORT"},
		{"bad env offline", "", map[string]string{"TIDEWATER_OFFLINE": "maybe"}, "TIDEWATER_OFFLINE"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load(writeFile(t, tt.body))
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("err = %v, want mention of %q", err, tt.want)
			}
		})
	}

	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("missing file accepted")
	}
}
