package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/talgya/tidewater/internal/persistence"
	"github.com/talgya/tidewater/internal/storm"
	"github.com/talgya/tidewater/internal/tide"
)

// StationReport is a station with its current water and the day ahead.
type StationReport struct {
	Station     tide.Station  `json:"station"`
	Current     tide.Sample   `json:"currentLevel"`
	Predictions []tide.Sample `json:"predictions"`
	NextHigh    *tide.Sample  `json:"nextHighTide"`
	NextLow     *tide.Sample  `json:"nextLowTide"`
	Trend       tide.Level    `json:"trend"`
	Impact      tide.Impact   `json:"tideImpact"`
}

// Stations lists every known station.
func (g *Game) Stations(ctx context.Context) ([]tide.Station, error) {
	return g.store.ListStations(ctx)
}

// Station looks a station up.
func (g *Game) Station(ctx context.Context, stationID string) (tide.Station, error) {
	st, err := g.store.GetStation(ctx, stationID)
	if err != nil {
		return tide.Station{}, mapNotFound(err, ErrStationNotFound)
	}
	return st, nil
}

// StationReport returns a station with its current level, the next day of
// predictions and the next high and low.
func (g *Game) StationReport(ctx context.Context, stationID string) (StationReport, error) {
	st, err := g.Station(ctx, stationID)
	if err != nil {
		return StationReport{}, err
	}

	current, err := g.CurrentHeight(ctx, stationID)
	if err != nil {
		return StationReport{}, err
	}
	preds, err := g.Predictions(ctx, stationID, g.settings.PredictionDays)
	if err != nil {
		return StationReport{}, err
	}

	now := g.now()
	r := StationReport{
		Station:     st,
		Current:     current,
		Predictions: preds,
		Trend:       tide.Trend(preds, now),
		Impact:      tide.Assess(current.Height),
	}
	if high, ok := tide.Next(preds, tide.KindHigh, now); ok {
		r.NextHigh = &high
	}
	if low, ok := tide.Next(preds, tide.KindLow, now); ok {
		r.NextLow = &low
	}
	return r, nil
}

// CurrentHeight returns the station's current reading: a stored observation
// younger than the freshness window, else a fresh poll of the provider
// (which is recorded), else the latest stored observation of any age, else
// a zero reading. Only store failures are returned as errors.
func (g *Game) CurrentHeight(ctx context.Context, stationID string) (tide.Sample, error) {
	now := g.now()

	latest, err := g.store.LatestObserved(ctx, stationID)
	haveLatest := err == nil
	if err != nil && !errors.Is(err, persistence.ErrNotFound) {
		return tide.Sample{}, fmt.Errorf("latest observation for %s: %w", stationID, err)
	}
	if haveLatest && now.Sub(latest.Time) <= g.settings.Freshness {
		return latest, nil
	}

	pctx, cancel := g.providerCtx(ctx)
	polled, perr := g.tides.CurrentHeight(pctx, stationID)
	cancel()
	if perr == nil {
		polled.StationID = stationID
		polled.Prediction = false
		polled.Kind = tide.KindUnmarked
		if polled.Time.IsZero() {
			polled.Time = now
		}
		if err := g.store.SaveSamples(ctx, []tide.Sample{polled}); err != nil {
			return tide.Sample{}, fmt.Errorf("save reading for %s: %w", stationID, err)
		}
		return polled, nil
	}

	slog.Warn("current water level unavailable", "station", stationID, "error", perr)
	if haveLatest {
		return latest, nil
	}
	return tide.Sample{StationID: stationID, Time: now}, nil
}

// Predictions returns high/low predictions in [now, now+days]. Stored
// predictions for the window are used when any exist; otherwise they are
// fetched from the provider and recorded. A provider failure yields an
// empty list.
func (g *Game) Predictions(ctx context.Context, stationID string, days int) ([]tide.Sample, error) {
	if days < 1 {
		days = 1
	}
	now := g.now()
	end := now.AddDate(0, 0, days)

	stored, err := g.store.PredictionsBetween(ctx, stationID, now, end)
	if err != nil {
		return nil, fmt.Errorf("stored predictions for %s: %w", stationID, err)
	}
	if len(stored) > 0 {
		return stored, nil
	}

	fetched, err := g.fetchPredictions(ctx, stationID, now, days)
	if err != nil {
		slog.Warn("tide predictions unavailable", "station", stationID, "error", err)
		return []tide.Sample{}, nil
	}
	if err := g.store.SaveSamples(ctx, fetched); err != nil {
		return nil, fmt.Errorf("save predictions for %s: %w", stationID, err)
	}

	window := make([]tide.Sample, 0, len(fetched))
	for _, p := range fetched {
		if !p.Time.Before(now) && !p.Time.After(end) {
			window = append(window, p)
		}
	}
	return window, nil
}

func (g *Game) fetchPredictions(ctx context.Context, stationID string, start time.Time, days int) ([]tide.Sample, error) {
	pctx, cancel := g.providerCtx(ctx)
	defer cancel()
	preds, err := g.tides.Predictions(pctx, stationID, start, days)
	if err != nil {
		return nil, err
	}
	for i := range preds {
		preds[i].StationID = stationID
		preds[i].Prediction = true
	}
	tide.SortByTime(preds)
	return preds, nil
}

// History returns every stored sample for the station in the last days.
func (g *Game) History(ctx context.Context, stationID string, days int) ([]tide.Sample, error) {
	if days < 1 {
		days = int(g.settings.HistoryWindow / (24 * time.Hour))
	}
	now := g.now()
	return g.store.SamplesBetween(ctx, stationID, now.AddDate(0, 0, -days), now)
}

// ActiveStorms returns the station's current storms.
func (g *Game) ActiveStorms(ctx context.Context, stationID string) ([]storm.Event, error) {
	return g.store.ActiveStorms(ctx, stationID, g.now())
}

// RefreshPredictions fetches the refresh window for each station and
// records it. Already stored predictions are skipped by the store. A failing
// station is logged and does not stop the others.
func (g *Game) RefreshPredictions(ctx context.Context, stationIDs []string) int {
	refreshed := 0
	for _, id := range stationIDs {
		if ctx.Err() != nil {
			break
		}
		preds, err := g.fetchPredictions(ctx, id, g.now(), g.settings.RefreshDays)
		if err != nil {
			slog.Warn("prediction refresh failed", "station", id, "error", err)
			continue
		}
		if err := g.store.SaveSamples(ctx, preds); err != nil {
			slog.Error("prediction refresh not saved", "station", id, "error", err)
			continue
		}
		refreshed++
		slog.Debug("predictions refreshed", "station", id, "samples", len(preds))
	}
	return refreshed
}
