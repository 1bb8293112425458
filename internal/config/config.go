// Package config loads server settings from an optional YAML file and then
// applies environment overrides.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/talgya/tidewater/internal/economy"
	"github.com/talgya/tidewater/internal/engine"
	"github.com/talgya/tidewater/internal/llm"
)

// Config is everything the server needs to start.
type Config struct {
	DBPath      string   `yaml:"db_path"`
	Port        int      `yaml:"port"`
	AdminKey    string   `yaml:"admin_key"`
	CORSOrigins []string `yaml:"cors_origins"`
	LogLevel    string   `yaml:"log_level"`

	// Offline swaps NOAA for the synthetic tide generator.
	Offline bool  `yaml:"offline"`
	Seed    int64 `yaml:"seed"`

	NOAATimeout  time.Duration `yaml:"noaa_timeout"`
	BulletinRate int           `yaml:"bulletin_rate"` // on-demand bulletins per IP per hour

	Game    Game    `yaml:"game"`
	Cadence Cadence `yaml:"cadence"`
	LLM     LLM     `yaml:"llm"`
}

// Game holds the gameplay rules.
type Game struct {
	GridSize          int               `yaml:"grid_size"`
	StartingResources economy.Resources `yaml:"starting_resources"`
	Freshness         time.Duration     `yaml:"freshness"`
	HistoryWindow     time.Duration     `yaml:"history_window"`
	PredictionDays    int               `yaml:"prediction_days"`
	RefreshDays       int               `yaml:"refresh_days"`
	ProviderTimeout   time.Duration     `yaml:"provider_timeout"`
	EventLimit        int               `yaml:"event_limit"`
}

// Cadence holds how often each scheduled task runs. Zero disables a task.
type Cadence struct {
	Tick        time.Duration `yaml:"tick"`
	Storms      time.Duration `yaml:"storms"`
	Bulletins   time.Duration `yaml:"bulletins"`
	Predictions time.Duration `yaml:"predictions"`
}

// LLM configures the bulletin writer. The API key only comes from the
// environment.
type LLM struct {
	APIKey       string `yaml:"-"`
	Model        string `yaml:"model"`
	MaxPerMinute int    `yaml:"max_per_minute"`
}

// Default returns the built-in configuration.
func Default() Config {
	s := engine.DefaultSettings()
	c := engine.DefaultCadence()
	return Config{
		DBPath:       "data/tidewater.db",
		Port:         8080,
		LogLevel:     "info",
		Seed:         42,
		NOAATimeout:  30 * time.Second,
		BulletinRate: 30,
		Game: Game{
			GridSize:          s.GridSize,
			StartingResources: s.StartingResources,
			Freshness:         s.Freshness,
			HistoryWindow:     s.HistoryWindow,
			PredictionDays:    s.PredictionDays,
			RefreshDays:       s.RefreshDays,
			ProviderTimeout:   s.ProviderTimeout,
			EventLimit:        s.EventLimit,
		},
		Cadence: Cadence{
			Tick:        c.Tick,
			Storms:      c.Storms,
			Bulletins:   c.Bulletins,
			Predictions: c.Predictions,
		},
		LLM: LLM{
			Model:        llm.DefaultModel,
			MaxPerMinute: 20,
		},
	}
}

// Load reads the defaults, then path (if non-empty), then the environment.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	if v := os.Getenv("ANTHROPIC_API_KEY"); v != "" {
		c.LLM.APIKey = v
	}
	if v := os.Getenv("TIDEWATER_ADMIN_KEY"); v != "" {
		c.AdminKey = v
	}
	if v := os.Getenv("TIDEWATER_DB"); v != "" {
		c.DBPath = v
	}
	if v := os.Getenv("TIDEWATER_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("TIDEWATER_PORT: %w", err)
		}
		c.Port = port
	}
	if v := os.Getenv("TIDEWATER_OFFLINE"); v != "" {
		offline, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("TIDEWATER_OFFLINE: %w", err)
		}
		c.Offline = offline
	}
	if v := os.Getenv("CORS_ORIGINS"); v != "" {
		c.CORSOrigins = nil
		for _, origin := range strings.Split(v, ",") {
			if origin = strings.TrimSpace(origin); origin != "" {
				c.CORSOrigins = append(c.CORSOrigins, origin)
			}
		}
	}
	return nil
}

// Validate rejects settings the game cannot run with.
func (c Config) Validate() error {
	var errs []error
	if c.DBPath == "" {
		errs = append(errs, errors.New("db_path is required"))
	}
	if c.Port <= 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("port %d out of range", c.Port))
	}
	if _, err := c.Level(); err != nil {
		errs = append(errs, err)
	}
	if c.Game.GridSize <= 0 {
		errs = append(errs, fmt.Errorf("game.grid_size must be positive, got %d", c.Game.GridSize))
	}
	if r := c.Game.StartingResources; r.Fish < 0 || r.Tourism < 0 || r.Energy < 0 {
		errs = append(errs, fmt.Errorf("game.starting_resources must not be negative, got %s", r))
	}
	if c.Game.PredictionDays < 1 || c.Game.RefreshDays < 1 {
		errs = append(errs, errors.New("game.prediction_days and game.refresh_days must be at least 1"))
	}
	if c.Game.HistoryWindow <= 0 {
		errs = append(errs, errors.New("game.history_window must be positive"))
	}
	for name, d := range map[string]time.Duration{
		"tick": c.Cadence.Tick, "storms": c.Cadence.Storms,
		"bulletins": c.Cadence.Bulletins, "predictions": c.Cadence.Predictions,
	} {
		if d < 0 {
			errs = append(errs, fmt.Errorf("cadence.%s must not be negative", name))
		}
	}
	return errors.Join(errs...)
}

// Level parses LogLevel.
func (c Config) Level() (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return 0, fmt.Errorf("log_level %q: %w", c.LogLevel, err)
	}
	return l, nil
}

// Settings converts the gameplay section for the engine.
func (c Config) Settings() engine.Settings {
	return engine.Settings{
		GridSize:          c.Game.GridSize,
		StartingResources: c.Game.StartingResources,
		Freshness:         c.Game.Freshness,
		HistoryWindow:     c.Game.HistoryWindow,
		PredictionDays:    c.Game.PredictionDays,
		RefreshDays:       c.Game.RefreshDays,
		ProviderTimeout:   c.Game.ProviderTimeout,
		EventLimit:        c.Game.EventLimit,
	}
}

// SchedulerCadence converts the cadence section for the engine.
func (c Config) SchedulerCadence() engine.Cadence {
	return engine.Cadence{
		Tick:        c.Cadence.Tick,
		Storms:      c.Cadence.Storms,
		Bulletins:   c.Cadence.Bulletins,
		Predictions: c.Cadence.Predictions,
	}
}
