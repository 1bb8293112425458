package engine

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/talgya/tidewater/internal/city"
	"github.com/talgya/tidewater/internal/economy"
	"github.com/talgya/tidewater/internal/tide"
)

func TestTickCity(t *testing.T) {
	tests := []struct {
		name   string
		kind   economy.BuildingKind
		height float64
		want   economy.Resources
	}{
		{"fishing dock at high water", economy.FishingDock, 5.0, economy.Resources{Fish: 21}},
		{"beach resort at low water", economy.BeachResort, 1.0, economy.Resources{Tourism: 23}},
		{"fishing dock at mid water", economy.FishingDock, 3.0, economy.Resources{Fish: 15}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			ctx := context.Background()
			f.tides.height = tt.height
			c := f.city(t, stationID)
			if _, err := f.game.PlaceBuilding(ctx, c.ID, f.types[tt.kind].ID, city.Position{}); err != nil {
				t.Fatalf("PlaceBuilding: %v", err)
			}
			before, _ := f.game.City(ctx, c.ID)

			got, err := f.game.TickCity(ctx, c.ID)
			if err != nil {
				t.Fatalf("TickCity: %v", err)
			}
			if got != tt.want {
				t.Errorf("produced %v, want %v", got, tt.want)
			}
			after, _ := f.game.City(ctx, c.ID)
			if after.Resources != before.Resources.Add(tt.want) {
				t.Errorf("stockpile %v -> %v", before.Resources, after.Resources)
			}
			if !after.LastUpdated.Equal(now) {
				t.Errorf("LastUpdated = %v", after.LastUpdated)
			}
		})
	}
}

func TestTickCityWithoutBuildings(t *testing.T) {
	f := newFixture(t)
	f.tides.height = 5.9
	c := f.city(t, stationID)
	got, err := f.game.TickCity(context.Background(), c.ID)
	if err != nil {
		t.Fatalf("TickCity: %v", err)
	}
	if !got.IsZero() {
		t.Errorf("produced %v, want zero", got)
	}
}

func TestTickCitiesSkipsFailures(t *testing.T) {
	f := newFixture(t)
	a := f.city(t, stationID)
	b := f.city(t, "8443970")

	ticked, failed := f.game.TickCities(context.Background(), []int64{a.ID, 999, b.ID})
	if ticked != 2 || failed != 1 {
		t.Errorf("ticked=%d failed=%d, want 2 and 1", ticked, failed)
	}
}

func TestCurrentHeight(t *testing.T) {
	ctx := context.Background()

	t.Run("fresh observation is used", func(t *testing.T) {
		f := newFixture(t)
		f.store.SaveSamples(ctx, []tide.Sample{{StationID: stationID, Time: now.Add(-10 * time.Minute), Height: 4.4}})
		got, err := f.game.CurrentHeight(ctx, stationID)
		if err != nil || got.Height != 4.4 {
			t.Errorf("CurrentHeight = %+v, %v", got, err)
		}
		if f.tides.currentCalls != 0 {
			t.Errorf("provider polled %d times", f.tides.currentCalls)
		}
	})

	t.Run("stale observation triggers a poll that is recorded", func(t *testing.T) {
		f := newFixture(t)
		f.tides.height = 2.2
		f.store.SaveSamples(ctx, []tide.Sample{{StationID: stationID, Time: now.Add(-2 * time.Hour), Height: 4.4}})
		got, err := f.game.CurrentHeight(ctx, stationID)
		if err != nil || got.Height != 2.2 {
			t.Errorf("CurrentHeight = %+v, %v", got, err)
		}
		latest, _ := f.store.LatestObserved(ctx, stationID)
		if latest.Height != 2.2 {
			t.Errorf("poll not recorded, latest = %+v", latest)
		}
	})

	t.Run("provider failure falls back to the stale observation", func(t *testing.T) {
		f := newFixture(t)
		f.tides.heightErr = errors.New("timeout")
		f.store.SaveSamples(ctx, []tide.Sample{{StationID: stationID, Time: now.Add(-5 * time.Hour), Height: 1.1}})
		got, err := f.game.CurrentHeight(ctx, stationID)
		if err != nil || got.Height != 1.1 {
			t.Errorf("CurrentHeight = %+v, %v", got, err)
		}
	})

	t.Run("nothing known yields zero", func(t *testing.T) {
		f := newFixture(t)
		f.tides.heightErr = errors.New("timeout")
		got, err := f.game.CurrentHeight(ctx, stationID)
		if err != nil || got.Height != 0 {
			t.Errorf("CurrentHeight = %+v, %v", got, err)
		}
	})
}

func TestPredictionsAreCached(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.tides.preds = []tide.Sample{
		{Time: now.Add(-3 * time.Hour), Height: 5.0, Kind: tide.KindHigh},
		{Time: now.Add(3 * time.Hour), Height: 0.4, Kind: tide.KindLow},
		{Time: now.Add(9 * time.Hour), Height: 5.3, Kind: tide.KindHigh},
	}

	first, err := f.game.Predictions(ctx, stationID, 1)
	if err != nil {
		t.Fatalf("Predictions: %v", err)
	}
	if len(first) != 2 {
		t.Fatalf("len = %d, want 2 in window", len(first))
	}
	second, _ := f.game.Predictions(ctx, stationID, 1)
	if len(second) != 2 {
		t.Errorf("cached len = %d", len(second))
	}
	if f.tides.predCalls != 1 {
		t.Errorf("provider called %d times, want 1", f.tides.predCalls)
	}

	report, err := f.game.StationReport(ctx, stationID)
	if err != nil {
		t.Fatalf("StationReport: %v", err)
	}
	if report.NextLow == nil || report.NextLow.Height != 0.4 {
		t.Errorf("NextLow = %+v", report.NextLow)
	}
	if report.NextHigh == nil || report.NextHigh.Height != 5.3 {
		t.Errorf("NextHigh = %+v", report.NextHigh)
	}
	if report.Trend != tide.LevelFalling {
		t.Errorf("Trend = %s, want falling", report.Trend)
	}
}

func TestPredictionsProviderFailure(t *testing.T) {
	f := newFixture(t)
	f.tides.predErr = errors.New("down")
	got, err := f.game.Predictions(context.Background(), stationID, 1)
	if err != nil {
		t.Fatalf("Predictions: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("got %d predictions, want none", len(got))
	}
}

func surgeFixture(t *testing.T) *fixture {
	t.Helper()
	f := newFixture(t)
	history := []tide.Sample{
		{StationID: stationID, Time: now.Add(-48 * time.Hour), Height: 4.0, Kind: tide.KindHigh, Prediction: true},
		{StationID: stationID, Time: now.Add(-24 * time.Hour), Height: 4.0, Kind: tide.KindHigh, Prediction: true},
		{StationID: stationID, Time: now.Add(-18 * time.Hour), Height: 0.5, Kind: tide.KindLow, Prediction: true},
	}
	if err := f.store.SaveSamples(context.Background(), history); err != nil {
		t.Fatal(err)
	}
	f.tides.preds = []tide.Sample{
		{Time: now.Add(3 * time.Hour), Height: 5.5, Kind: tide.KindHigh},
		{Time: now.Add(9 * time.Hour), Height: 0.2, Kind: tide.KindLow},
		{Time: now.Add(15 * time.Hour), Height: 6.1, Kind: tide.KindHigh},
	}
	return f
}

func TestCheckStormIsIdempotent(t *testing.T) {
	f := surgeFixture(t)
	ctx := context.Background()
	a := f.city(t, stationID)
	b := f.city(t, stationID)
	other := f.city(t, "8443970")

	ev, created, err := f.game.CheckStorm(ctx, stationID)
	if err != nil || !created {
		t.Fatalf("first check = %v, %v", created, err)
	}
	if ev.Severity != 4 {
		t.Errorf("Severity = %d, want 4", ev.Severity)
	}
	if !ev.EndTime.Equal(now.Add(21 * time.Hour)) {
		t.Errorf("EndTime = %v, want peak + 6h", ev.EndTime)
	}
	if !strings.Contains(ev.Description, "6.1 ft") {
		t.Errorf("Description = %q", ev.Description)
	}

	_, created, err = f.game.CheckStorm(ctx, stationID)
	if err != nil || created {
		t.Fatalf("second check = %v, %v", created, err)
	}
	active, _ := f.game.ActiveStorms(ctx, stationID)
	if len(active) != 1 {
		t.Errorf("active storms = %d, want 1", len(active))
	}

	for _, c := range []city.City{a, b} {
		events, _ := f.game.Events(ctx, c.ID, 0)
		storms := 0
		for _, e := range events {
			if e.Type == city.EventStormSurge {
				storms++
			}
		}
		if storms != 1 {
			t.Errorf("city %d got %d storm events, want 1", c.ID, storms)
		}
	}
	events, _ := f.game.Events(ctx, other.ID, 0)
	for _, e := range events {
		if e.Type == city.EventStormSurge {
			t.Error("city at another station was warned")
		}
	}
}

func TestCheckStormsGroupsByStation(t *testing.T) {
	f := surgeFixture(t)
	a := f.city(t, stationID)
	b := f.city(t, stationID)

	created, failed := f.game.CheckStorms(context.Background(), []int64{a.ID, b.ID, 999})
	if created != 1 || failed != 1 {
		t.Errorf("created=%d failed=%d, want 1 and 1", created, failed)
	}
}

func TestCityReportShowsThreats(t *testing.T) {
	f := surgeFixture(t)
	ctx := context.Background()
	f.tides.height = 4.2
	c := f.city(t, stationID)
	if _, _, err := f.game.CheckStorm(ctx, stationID); err != nil {
		t.Fatal(err)
	}

	r, err := f.game.CityReport(ctx, c.ID)
	if err != nil {
		t.Fatalf("CityReport: %v", err)
	}
	if len(r.Storms) != 1 {
		t.Fatalf("storms = %d, want 1", len(r.Storms))
	}
	// severity 4 at 4.2 ft: round(4 * 5 * 1.3) = 26
	if r.Storms[0].DamagePotential != 26 {
		t.Errorf("DamagePotential = %d, want 26", r.Storms[0].DamagePotential)
	}
	if r.Impact.Level != tide.LevelHigh {
		t.Errorf("Impact.Level = %s", r.Impact.Level)
	}
	if !r.Production.IsZero() {
		t.Errorf("Production = %v, want zero without buildings", r.Production)
	}
}

func TestResolveStorms(t *testing.T) {
	f := surgeFixture(t)
	ctx := context.Background()
	ev, _, err := f.game.CheckStorm(ctx, stationID)
	if err != nil {
		t.Fatal(err)
	}

	resolved, err := f.game.ResolveStorm(ctx, ev.ID)
	if err != nil || !resolved.Resolved {
		t.Fatalf("ResolveStorm = %+v, %v", resolved, err)
	}
	if _, err := f.game.ResolveStorm(ctx, 999); !errors.Is(err, ErrStormNotFound) {
		t.Errorf("unknown storm err = %v", err)
	}

	// Resolution frees the station for a new storm.
	_, created, _ := f.game.CheckStorm(ctx, stationID)
	if !created {
		t.Error("no storm after resolution")
	}
}

func TestGenerateBulletinFallback(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c := f.city(t, stationID)

	ev, err := f.game.GenerateBulletin(ctx, c.ID)
	if err != nil {
		t.Fatalf("GenerateBulletin: %v", err)
	}
	if ev.Type != city.EventBulletin || ev.Title != "Mayoral Update" {
		t.Errorf("event = %+v", ev)
	}
	if !strings.Contains(ev.Message, "Harborview") {
		t.Errorf("Message = %q", ev.Message)
	}
	if _, err := f.game.GenerateBulletin(ctx, 999); !errors.Is(err, ErrCityNotFound) {
		t.Errorf("unknown city err = %v", err)
	}
}

func TestRunCycle(t *testing.T) {
	f := surgeFixture(t)
	ctx := context.Background()
	c := f.city(t, stationID)

	r := f.game.RunCycle(ctx, []int64{c.ID})
	if r.Ticked != 1 || r.StormsCreated != 1 || r.TickFailures != 0 || r.StormFailures != 0 {
		t.Errorf("RunCycle = %+v", r)
	}
}

func TestSchedulerStep(t *testing.T) {
	f := surgeFixture(t)
	ctx := context.Background()
	c := f.city(t, stationID)

	s := NewScheduler(f.game, DefaultCadence())
	s.step(ctx, now)

	status := s.Status()
	for _, task := range []string{TaskTick, TaskStorms, TaskBulletins, TaskPredictions} {
		if _, ok := status[task]; !ok {
			t.Errorf("task %s did not run", task)
		}
	}
	if status[TaskTick].Cycle != status[TaskBulletins].Cycle {
		t.Error("tasks of one pass carry different cycle ids")
	}

	events, _ := f.game.Events(ctx, c.ID, 0)
	var order []city.EventType
	for i := len(events) - 1; i >= 0; i-- {
		order = append(order, events[i].Type)
	}
	want := []city.EventType{city.EventWelcome, city.EventStormSurge, city.EventBulletin}
	if len(order) != len(want) {
		t.Fatalf("events = %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Errorf("events = %v, want %v", order, want)
			break
		}
	}

	// Nothing is due a minute later.
	s.step(ctx, now.Add(time.Minute))
	if got := s.Status()[TaskTick].At; !got.Equal(now) {
		t.Errorf("tick re-ran at %v", got)
	}

	// The tick and the storm check are due again after fifteen minutes.
	s.step(ctx, now.Add(15*time.Minute))
	st := s.Status()
	if !st[TaskTick].At.Equal(now.Add(15*time.Minute)) || !st[TaskBulletins].At.Equal(now) {
		t.Errorf("status after 15m = %+v", st)
	}
}

func TestSchedulerStopBeforeRun(t *testing.T) {
	s := NewScheduler(newFixture(t).game, Cadence{})
	s.Stop()
}

func TestSchedulerRunStops(t *testing.T) {
	f := newFixture(t)
	s := NewScheduler(f.game, Cadence{Tick: time.Hour})
	s.Interval = 10 * time.Millisecond

	done := make(chan struct{})
	go func() {
		s.Run(context.Background())
		close(done)
	}()

	deadline := time.After(2 * time.Second)
	for {
		if _, ok := s.Status()[TaskTick]; ok {
			break
		}
		select {
		case <-deadline:
			t.Fatal("tick never ran")
		case <-time.After(5 * time.Millisecond):
		}
	}
	s.Stop()
	<-done
}
