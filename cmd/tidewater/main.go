// Command tidewater runs the tide-driven coastal city game server.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/talgya/tidewater/internal/api"
	"github.com/talgya/tidewater/internal/config"
	"github.com/talgya/tidewater/internal/economy"
	"github.com/talgya/tidewater/internal/engine"
	"github.com/talgya/tidewater/internal/llm"
	"github.com/talgya/tidewater/internal/noaa"
	"github.com/talgya/tidewater/internal/persistence"
)

func main() {
	var configPath string

	rootCmd := &cobra.Command{
		Use:   "tidewater",
		Short: "Tide-driven coastal city building game server",
		Long: `Tidewater couples player cities to real NOAA tide stations. Water levels
modulate fishing and tourism output, and unusual high tides raise storm
surge warnings.`,
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "YAML config file")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the scheduler",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(configPath)
		},
	}

	seedCmd := &cobra.Command{
		Use:   "seed",
		Short: "Load stations and the building catalog into the database",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withGame(configPath, func(ctx context.Context, g *engine.Game) error {
				stations, err := g.Stations(ctx)
				if err != nil {
					return err
				}
				types, err := g.BuildingTypes(ctx)
				if err != nil {
					return err
				}
				fmt.Printf("Seeded %d stations and %d building types.\n", len(stations), len(types))
				return nil
			})
		},
	}

	var bulletins bool
	tickCmd := &cobra.Command{
		Use:   "tick",
		Short: "Run one resource tick and storm check for every city, then exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withGame(configPath, func(ctx context.Context, g *engine.Game) error {
				log := slog.Default().With("cycle", uuid.NewString())
				ctx = engine.WithLogger(ctx, log)

				ids, err := g.CityIDs(ctx)
				if err != nil {
					return err
				}
				r := g.RunCycle(ctx, ids)
				fmt.Printf("Ticked %d cities (%d failed), %d new storms (%d checks failed).\n",
					r.Ticked, r.TickFailures, r.StormsCreated, r.StormFailures)

				if bulletins {
					posted, failed := g.GenerateBulletins(ctx, ids)
					fmt.Printf("Posted %d bulletins (%d failed).\n", posted, failed)
				}
				return nil
			})
		},
	}
	tickCmd.Flags().BoolVar(&bulletins, "bulletins", false, "also post a mayoral bulletin to every city")

	rootCmd.AddCommand(serveCmd, seedCmd, tickCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// setup loads config, installs the logger and opens the database.
func setup(configPath string) (config.Config, *persistence.DB, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return config.Config{}, nil, err
	}
	level, _ := cfg.Level()
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level})))

	if dir := filepath.Dir(cfg.DBPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return config.Config{}, nil, fmt.Errorf("create data dir: %w", err)
		}
	}
	db, err := persistence.Open(cfg.DBPath)
	if err != nil {
		return config.Config{}, nil, fmt.Errorf("open database: %w", err)
	}
	slog.Info("database opened", "path", cfg.DBPath)
	return cfg, db, nil
}

// newGame wires the tide provider and the bulletin writer, then seeds the
// store.
func newGame(ctx context.Context, cfg config.Config, db *persistence.DB, notifier engine.Notifier) (*engine.Game, error) {
	var tides engine.TideProvider
	if cfg.Offline {
		tides = noaa.NewSynthetic(cfg.Seed)
		slog.Warn("offline mode: using synthetic tides", "seed", cfg.Seed)
	} else {
		tides = noaa.NewClient(cfg.NOAATimeout)
	}

	writer := llm.NewClient(cfg.LLM.APIKey, cfg.LLM.Model, cfg.LLM.MaxPerMinute)
	if writer.Enabled() {
		slog.Info("LLM bulletins enabled", "model", cfg.LLM.Model)
	} else {
		slog.Warn("ANTHROPIC_API_KEY not set, bulletins will use fallback text")
	}

	opts := []engine.Option{engine.WithSettings(cfg.Settings())}
	if notifier != nil {
		opts = append(opts, engine.WithNotifier(notifier))
	}
	g := engine.New(db, tides, llm.NewComposer(writer), opts...)

	catalog, err := economy.DefaultCatalog()
	if err != nil {
		return nil, err
	}
	if err := g.Seed(ctx, noaa.Stations(), catalog); err != nil {
		return nil, err
	}
	return g, nil
}

// withGame runs fn against a freshly wired game and closes the database.
func withGame(configPath string, fn func(context.Context, *engine.Game) error) error {
	cfg, db, err := setup(configPath)
	if err != nil {
		return err
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, err := newGame(ctx, cfg, db, nil)
	if err != nil {
		return err
	}
	return fn(ctx, g)
}

func serve(configPath string) error {
	cfg, db, err := setup(configPath)
	if err != nil {
		return err
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	hub := api.NewHub()
	go hub.Run(ctx)

	g, err := newGame(ctx, cfg, db, hub)
	if err != nil {
		return err
	}

	if cfg.AdminKey == "" {
		slog.Warn("TIDEWATER_ADMIN_KEY not set, admin endpoints will be disabled")
	}

	sched := engine.NewScheduler(g, cfg.SchedulerCadence())
	server := &api.Server{
		Game:         g,
		Scheduler:    sched,
		Hub:          hub,
		Port:         cfg.Port,
		AdminKey:     cfg.AdminKey,
		Origins:      cfg.CORSOrigins,
		BulletinRate: cfg.BulletinRate,
	}
	server.Start()

	fmt.Printf("\nTidewater is up: http://localhost:%d/api/status\n", cfg.Port)
	fmt.Println("Scheduler running... (Ctrl+C to stop)")

	sched.Run(ctx)
	slog.Info("shutting down")

	shutdownCtx, done := context.WithTimeout(context.Background(), 10*time.Second)
	defer done()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP shutdown failed", "error", err)
	}
	fmt.Println("Tidewater stopped.")
	return nil
}
