package engine

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/talgya/tidewater/internal/city"
	"github.com/talgya/tidewater/internal/economy"
	"github.com/talgya/tidewater/internal/llm"
	"github.com/talgya/tidewater/internal/storm"
)

type loggerKey struct{}

// WithLogger attaches a logger, typically carrying a cycle id, to ctx.
func WithLogger(ctx context.Context, l *slog.Logger) context.Context {
	return context.WithValue(ctx, loggerKey{}, l)
}

func logger(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(loggerKey{}).(*slog.Logger); ok {
		return l
	}
	return slog.Default()
}

// CycleResult summarises one pass over a set of cities.
type CycleResult struct {
	Ticked        int `json:"ticked"`
	TickFailures  int `json:"tickFailures"`
	StormsCreated int `json:"stormsCreated"`
	StormFailures int `json:"stormFailures"`
}

// TickCity credits one tick of production at the current water level.
func (g *Game) TickCity(ctx context.Context, cityID int64) (economy.Resources, error) {
	c, err := g.City(ctx, cityID)
	if err != nil {
		return economy.Resources{}, err
	}
	level, err := g.CurrentHeight(ctx, c.StationID)
	if err != nil {
		return economy.Resources{}, err
	}

	// Only the credit holds the city.
	unlock := g.cityLocks.lock(cityID)
	defer unlock()
	buildings, err := g.store.ListBuildings(ctx, cityID)
	if err != nil {
		return economy.Resources{}, fmt.Errorf("list buildings: %w", err)
	}

	produced := economy.Produce(city.Types(buildings), level.Height)
	if _, err := g.store.CreditCity(ctx, cityID, produced, g.now()); err != nil {
		return economy.Resources{}, fmt.Errorf("credit city: %w", err)
	}
	return produced, nil
}

// TickCities ticks each city in turn. A failing city is logged and skipped.
func (g *Game) TickCities(ctx context.Context, cityIDs []int64) (ticked, failed int) {
	log := logger(ctx)
	for _, id := range cityIDs {
		if ctx.Err() != nil {
			break
		}
		produced, err := g.TickCity(ctx, id)
		if err != nil {
			failed++
			log.Error("resource tick failed", "city", id, "error", err)
			continue
		}
		ticked++
		log.Debug("resources produced", "city", id,
			"fish", produced.Fish, "tourism", produced.Tourism, "energy", produced.Energy)
	}
	return ticked, failed
}

// CheckStorm runs surge detection for a station. When a surge is found and
// no storm is active, a storm is recorded and every city at the station is
// notified. It reports whether a storm was created.
func (g *Game) CheckStorm(ctx context.Context, stationID string) (storm.Event, bool, error) {
	unlock := g.stationLocks.lock(stationID)
	defer unlock()

	now := g.now()
	preds, err := g.Predictions(ctx, stationID, g.settings.PredictionDays)
	if err != nil {
		return storm.Event{}, false, err
	}
	history, err := g.store.SamplesBetween(ctx, stationID, now.Add(-g.settings.HistoryWindow), now)
	if err != nil {
		return storm.Event{}, false, fmt.Errorf("tide history for %s: %w", stationID, err)
	}

	surge, ok := storm.Detect(preds, history, now)
	if !ok {
		return storm.Event{}, false, nil
	}

	ev, created, err := g.store.CreateStormIfNoneActive(ctx, storm.Plan(stationID, surge, now), now)
	if err != nil || !created {
		return ev, false, err
	}

	logger(ctx).Warn("storm surge detected", "station", stationID, "storm", ev.ID,
		"severity", ev.Severity, "peak", surge.Peak.Height, "threshold", surge.Threshold)

	cities, err := g.store.ListCitiesByStation(ctx, stationID)
	if err != nil {
		return ev, true, fmt.Errorf("notify storm %d: %w", ev.ID, err)
	}
	for _, c := range cities {
		_, err := g.addEvent(ctx, city.Event{
			CityID:  c.ID,
			Type:    city.EventStormSurge,
			Title:   ev.Title,
			Message: ev.Description,
			Data:    city.EventData(map[string]int64{"stormEventId": ev.ID}),
		})
		if err != nil {
			logger(ctx).Error("storm notification failed", "city", c.ID, "storm", ev.ID, "error", err)
		}
	}
	return ev, true, nil
}

// CheckStorms checks each distinct station among the given cities.
func (g *Game) CheckStorms(ctx context.Context, cityIDs []int64) (created, failed int) {
	log := logger(ctx)
	seen := make(map[string]bool)
	for _, id := range cityIDs {
		if ctx.Err() != nil {
			break
		}
		c, err := g.City(ctx, id)
		if err != nil {
			failed++
			log.Error("storm check failed", "city", id, "error", err)
			continue
		}
		if seen[c.StationID] {
			continue
		}
		seen[c.StationID] = true

		if _, ok, err := g.CheckStorm(ctx, c.StationID); err != nil {
			failed++
			log.Error("storm check failed", "station", c.StationID, "error", err)
		} else if ok {
			created++
		}
	}
	return created, failed
}

// GenerateBulletin composes a mayoral bulletin for a city and records it
// as an event. Generator problems never fail the call.
func (g *Game) GenerateBulletin(ctx context.Context, cityID int64) (city.Event, error) {
	c, err := g.City(ctx, cityID)
	if err != nil {
		return city.Event{}, err
	}
	st, err := g.Station(ctx, c.StationID)
	if err != nil {
		return city.Event{}, err
	}
	buildings, err := g.store.ListBuildings(ctx, cityID)
	if err != nil {
		return city.Event{}, fmt.Errorf("list buildings: %w", err)
	}
	preds, err := g.Predictions(ctx, c.StationID, 1)
	if err != nil {
		return city.Event{}, err
	}
	active, err := g.store.ActiveStorms(ctx, c.StationID, g.now())
	if err != nil {
		return city.Event{}, fmt.Errorf("active storms: %w", err)
	}

	b := g.composer.Compose(ctx, llm.BuildContext(c, st, buildings, preds, active))

	return g.addEvent(ctx, city.Event{
		CityID:  cityID,
		Type:    city.EventBulletin,
		Title:   b.Title,
		Message: b.Message,
		Data: city.EventData(map[string]any{
			"tone":     b.Tone,
			"fallback": b.Fallback,
		}),
	})
}

// GenerateBulletins composes a bulletin for each city, skipping failures.
func (g *Game) GenerateBulletins(ctx context.Context, cityIDs []int64) (posted, failed int) {
	log := logger(ctx)
	for _, id := range cityIDs {
		if ctx.Err() != nil {
			break
		}
		if _, err := g.GenerateBulletin(ctx, id); err != nil {
			failed++
			log.Error("bulletin failed", "city", id, "error", err)
			continue
		}
		posted++
	}
	return posted, failed
}

// RunCycle ticks resources and then checks storms for the given cities.
func (g *Game) RunCycle(ctx context.Context, cityIDs []int64) CycleResult {
	var r CycleResult
	r.Ticked, r.TickFailures = g.TickCities(ctx, cityIDs)
	r.StormsCreated, r.StormFailures = g.CheckStorms(ctx, cityIDs)
	return r
}

// CityIDs lists the ids of every city, the usual target of a cycle.
func (g *Game) CityIDs(ctx context.Context) ([]int64, error) {
	cities, err := g.store.ListCities(ctx)
	if err != nil {
		return nil, err
	}
	ids := make([]int64, len(cities))
	for i, c := range cities {
		ids[i] = c.ID
	}
	return ids, nil
}

// StationIDs lists the ids of every station.
func (g *Game) StationIDs(ctx context.Context) ([]string, error) {
	stations, err := g.store.ListStations(ctx)
	if err != nil {
		return nil, err
	}
	ids := make([]string, len(stations))
	for i, st := range stations {
		ids[i] = st.ID
	}
	return ids, nil
}

// ResolveStorm ends a storm early.
func (g *Game) ResolveStorm(ctx context.Context, id int64) (storm.Event, error) {
	ev, err := g.store.ResolveStorm(ctx, id)
	if err != nil {
		return storm.Event{}, mapNotFound(err, ErrStormNotFound)
	}
	slog.Info("storm resolved", "storm", id, "station", ev.StationID)
	return ev, nil
}

// ResolveExpiredStorms marks storms whose window has passed.
func (g *Game) ResolveExpiredStorms(ctx context.Context) (int, error) {
	return g.store.ResolveExpiredStorms(ctx, g.now())
}
