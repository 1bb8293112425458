// Package engine runs the tide economy: station and prediction handling,
// city and building management, the periodic resource tick, storm surge
// checks and mayoral bulletins, plus the scheduler that drives them.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/talgya/tidewater/internal/city"
	"github.com/talgya/tidewater/internal/economy"
	"github.com/talgya/tidewater/internal/llm"
	"github.com/talgya/tidewater/internal/persistence"
	"github.com/talgya/tidewater/internal/tide"
)

// Rejections surfaced to players and API clients.
var (
	ErrStationNotFound       = errors.New("tide station not found")
	ErrCityNotFound          = errors.New("city not found")
	ErrBuildingTypeNotFound  = errors.New("building type not found")
	ErrBuildingNotFound      = errors.New("building not found")
	ErrEventNotFound         = errors.New("event not found")
	ErrStormNotFound         = errors.New("storm not found")
	ErrPositionOccupied      = errors.New("position already occupied")
	ErrOutOfBounds           = errors.New("position outside the city grid")
	ErrInsufficientResources = errors.New("insufficient resources")
	ErrInvalidCity           = errors.New("invalid city")
)

// TideProvider supplies current water levels and high/low predictions.
type TideProvider interface {
	CurrentHeight(ctx context.Context, stationID string) (tide.Sample, error)
	Predictions(ctx context.Context, stationID string, start time.Time, days int) ([]tide.Sample, error)
}

// Notifier is told about every event appended to a city's log.
type Notifier interface {
	Publish(e city.Event)
}

// Settings are the gameplay knobs.
type Settings struct {
	GridSize          int
	StartingResources economy.Resources
	Freshness         time.Duration // how old a reading may be and still count as current
	HistoryWindow     time.Duration // trailing window averaged by the storm check
	PredictionDays    int           // look-ahead for gameplay decisions
	RefreshDays       int           // look-ahead for the daily prediction refresh
	ProviderTimeout   time.Duration
	EventLimit        int
}

// DefaultSettings returns the standard game rules.
func DefaultSettings() Settings {
	return Settings{
		GridSize:          10,
		StartingResources: economy.Resources{Fish: 200, Tourism: 200, Energy: 200},
		Freshness:         30 * time.Minute,
		HistoryWindow:     7 * 24 * time.Hour,
		PredictionDays:    1,
		RefreshDays:       3,
		ProviderTimeout:   30 * time.Second,
		EventLimit:        20,
	}
}

// Game wires the store, the tide provider and the bulletin composer into
// the operations players and the scheduler invoke.
type Game struct {
	store    persistence.Store
	tides    TideProvider
	composer *llm.Composer
	notifier Notifier
	settings Settings
	now      func() time.Time

	cityLocks    keyedMutex[int64]
	stationLocks keyedMutex[string]
}

// Option customises a Game.
type Option func(*Game)

// WithNotifier registers a listener for new city events.
func WithNotifier(n Notifier) Option { return func(g *Game) { g.notifier = n } }

// WithSettings overrides the default game rules.
func WithSettings(s Settings) Option { return func(g *Game) { g.settings = s } }

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option { return func(g *Game) { g.now = now } }

// New creates a Game. A nil composer yields template bulletins.
func New(store persistence.Store, tides TideProvider, composer *llm.Composer, opts ...Option) *Game {
	g := &Game{
		store:    store,
		tides:    tides,
		composer: composer,
		settings: DefaultSettings(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Settings returns the active game rules.
func (g *Game) Settings() Settings { return g.settings }

// Seed loads the built-in stations and, when the catalog is empty, the
// building types. Building types are read-only after the first seed.
func (g *Game) Seed(ctx context.Context, stations []tide.Station, catalog []economy.BuildingType) error {
	for _, st := range stations {
		if err := g.store.SaveStation(ctx, st); err != nil {
			return fmt.Errorf("seed station %s: %w", st.ID, err)
		}
	}

	existing, err := g.store.ListBuildingTypes(ctx)
	if err != nil {
		return fmt.Errorf("list building types: %w", err)
	}
	if len(existing) > 0 {
		slog.Debug("building catalog already seeded", "types", len(existing))
		return nil
	}
	for _, bt := range catalog {
		if _, err := g.store.SaveBuildingType(ctx, bt); err != nil {
			return fmt.Errorf("seed building type %s: %w", bt.Kind, err)
		}
	}
	slog.Info("seeded game data", "stations", len(stations), "building_types", len(catalog))
	return nil
}

// addEvent appends to a city's log and notifies listeners.
func (g *Game) addEvent(ctx context.Context, e city.Event) (city.Event, error) {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = g.now()
	}
	saved, err := g.store.AddEvent(ctx, e)
	if err != nil {
		return city.Event{}, fmt.Errorf("add %s event: %w", e.Type, err)
	}
	if g.notifier != nil {
		g.notifier.Publish(saved)
	}
	return saved, nil
}

// providerCtx bounds a tide provider call.
func (g *Game) providerCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if g.settings.ProviderTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, g.settings.ProviderTimeout)
}

// mapNotFound converts a store miss into the given domain error.
func mapNotFound(err, domain error) error {
	if errors.Is(err, persistence.ErrNotFound) {
		return domain
	}
	return err
}

// keyedMutex hands out one mutex per key.
type keyedMutex[K comparable] struct {
	mu    sync.Mutex
	locks map[K]*sync.Mutex
}

func (k *keyedMutex[K]) lock(key K) func() {
	k.mu.Lock()
	if k.locks == nil {
		k.locks = make(map[K]*sync.Mutex)
	}
	m, ok := k.locks[key]
	if !ok {
		m = &sync.Mutex{}
		k.locks[key] = m
	}
	k.mu.Unlock()

	m.Lock()
	return m.Unlock
}
