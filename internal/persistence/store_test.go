package persistence

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/talgya/tidewater/internal/city"
	"github.com/talgya/tidewater/internal/economy"
	"github.com/talgya/tidewater/internal/storm"
	"github.com/talgya/tidewater/internal/tide"
)

var base = time.Date(2025, 11, 27, 12, 0, 0, 0, time.UTC)

// forEachStore runs fn against the SQLite store and the in-memory store.
func forEachStore(t *testing.T, fn func(t *testing.T, s Store)) {
	t.Helper()
	t.Run("sqlite", func(t *testing.T) {
		db, err := Open(":memory:")
		if err != nil {
			t.Fatalf("Open: %v", err)
		}
		defer db.Close()
		fn(t, db)
	})
	t.Run("memory", func(t *testing.T) {
		fn(t, NewMemory())
	})
}

func seedCatalog(t *testing.T, s Store) map[economy.BuildingKind]economy.BuildingType {
	t.Helper()
	catalog, err := economy.DefaultCatalog()
	if err != nil {
		t.Fatalf("DefaultCatalog: %v", err)
	}
	out := make(map[economy.BuildingKind]economy.BuildingType)
	for _, bt := range catalog {
		saved, err := s.SaveBuildingType(context.Background(), bt)
		if err != nil {
			t.Fatalf("SaveBuildingType(%s): %v", bt.Kind, err)
		}
		out[saved.Kind] = saved
	}
	return out
}

func newCity(t *testing.T, s Store, res economy.Resources) city.City {
	t.Helper()
	c, err := s.CreateCity(context.Background(), city.City{
		OwnerID: 1, Name: "Harborview", StationID: "9414290",
		Resources: res, LastUpdated: base, CreatedAt: base,
	})
	if err != nil {
		t.Fatalf("CreateCity: %v", err)
	}
	return c
}

func TestStations(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		st := tide.Station{ID: "9414290", Name: "San Francisco, CA", State: "California",
			Latitude: 37.8063, Longitude: -122.4659, TimezoneOffset: "-8"}
		if err := s.SaveStation(ctx, st); err != nil {
			t.Fatalf("SaveStation: %v", err)
		}
		got, err := s.GetStation(ctx, "9414290")
		if err != nil {
			t.Fatalf("GetStation: %v", err)
		}
		if got != st {
			t.Errorf("GetStation = %+v, want %+v", got, st)
		}
		if _, err := s.GetStation(ctx, "0000000"); !errors.Is(err, ErrNotFound) {
			t.Errorf("unknown station err = %v, want ErrNotFound", err)
		}
		list, _ := s.ListStations(ctx)
		if len(list) != 1 {
			t.Errorf("ListStations len = %d, want 1", len(list))
		}
	})
}

func TestSamplesDedupeWithinMillisecond(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		at := base.Add(-time.Hour + 250*time.Microsecond)
		for i := 0; i < 2; i++ {
			err := s.SaveSamples(ctx, []tide.Sample{{StationID: "9414290", Time: at, Height: 2.4}})
			if err != nil {
				t.Fatalf("SaveSamples %d: %v", i, err)
			}
		}
		got, _ := s.SamplesBetween(ctx, "9414290", base.Add(-2*time.Hour), base)
		if len(got) != 1 {
			t.Errorf("stored %d samples, want 1", len(got))
		}
	})
}

func TestSamplesDedupeAndRange(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		samples := []tide.Sample{
			{StationID: "9414290", Time: base.Add(-2 * time.Hour), Height: 1.2},
			{StationID: "9414290", Time: base.Add(-time.Hour), Height: 2.4},
			{StationID: "9414290", Time: base.Add(3 * time.Hour), Height: 5.6, Kind: tide.KindHigh, Prediction: true},
			{StationID: "9414290", Time: base.Add(9 * time.Hour), Height: 0.3, Kind: tide.KindLow, Prediction: true},
			{StationID: "8443970", Time: base.Add(-time.Hour), Height: 9.9},
		}
		if err := s.SaveSamples(ctx, samples); err != nil {
			t.Fatalf("SaveSamples: %v", err)
		}
		// Second save of the same window must not duplicate rows.
		if err := s.SaveSamples(ctx, samples); err != nil {
			t.Fatalf("SaveSamples again: %v", err)
		}

		all, err := s.SamplesBetween(ctx, "9414290", base.Add(-24*time.Hour), base.Add(24*time.Hour))
		if err != nil {
			t.Fatalf("SamplesBetween: %v", err)
		}
		if len(all) != 4 {
			t.Fatalf("SamplesBetween len = %d, want 4", len(all))
		}
		for i := 1; i < len(all); i++ {
			if all[i].Time.Before(all[i-1].Time) {
				t.Fatal("samples not ordered by time")
			}
		}

		preds, _ := s.PredictionsBetween(ctx, "9414290", base, base.Add(24*time.Hour))
		if len(preds) != 2 || preds[0].Kind != tide.KindHigh {
			t.Errorf("PredictionsBetween = %+v", preds)
		}

		latest, err := s.LatestObserved(ctx, "9414290")
		if err != nil {
			t.Fatalf("LatestObserved: %v", err)
		}
		if latest.Height != 2.4 || !latest.Time.Equal(base.Add(-time.Hour)) {
			t.Errorf("LatestObserved = %+v", latest)
		}
		if _, err := s.LatestObserved(ctx, "9447130"); !errors.Is(err, ErrNotFound) {
			t.Errorf("LatestObserved(unknown) err = %v", err)
		}
	})
}

func TestPlaceBuilding(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		types := seedCatalog(t, s)
		c := newCity(t, s, economy.Resources{Fish: 200, Tourism: 200, Energy: 200})
		dock := types[economy.FishingDock]

		b, updated, err := s.PlaceBuilding(ctx, city.Building{
			CityID: c.ID, TypeID: dock.ID, Position: city.Position{X: 2, Y: 3},
			Health: city.MaxHealth, Type: dock,
		}, base)
		if err != nil {
			t.Fatalf("PlaceBuilding: %v", err)
		}
		if b.ID == 0 {
			t.Error("building id not assigned")
		}
		want := c.Resources.Sub(dock.Cost)
		if updated.Resources != want {
			t.Errorf("resources = %v, want %v", updated.Resources, want)
		}

		_, _, err = s.PlaceBuilding(ctx, city.Building{
			CityID: c.ID, TypeID: dock.ID, Position: city.Position{X: 2, Y: 3}, Type: dock,
		}, base)
		if !errors.Is(err, ErrPositionOccupied) {
			t.Errorf("same cell err = %v, want ErrPositionOccupied", err)
		}

		got, err := s.GetBuilding(ctx, b.ID)
		if err != nil {
			t.Fatalf("GetBuilding: %v", err)
		}
		if got.Type.Kind != economy.FishingDock || got.Position != (city.Position{X: 2, Y: 3}) {
			t.Errorf("GetBuilding = %+v", got)
		}

		if err := s.RemoveBuilding(ctx, b.ID); err != nil {
			t.Fatalf("RemoveBuilding: %v", err)
		}
		if err := s.RemoveBuilding(ctx, b.ID); !errors.Is(err, ErrNotFound) {
			t.Errorf("second remove err = %v", err)
		}
		after, _ := s.GetCity(ctx, c.ID)
		if after.Resources != want {
			t.Errorf("removal refunded resources: %v", after.Resources)
		}
	})
}

func TestPlaceBuildingInsufficientLeavesCityUntouched(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		types := seedCatalog(t, s)
		poor := economy.Resources{Fish: 10, Tourism: 10, Energy: 10}
		c := newCity(t, s, poor)
		plant := types[economy.PowerPlant]

		_, _, err := s.PlaceBuilding(ctx, city.Building{
			CityID: c.ID, TypeID: plant.ID, Position: city.Position{X: 0, Y: 0}, Type: plant,
		}, base)
		if !errors.Is(err, ErrInsufficientResources) {
			t.Fatalf("err = %v, want ErrInsufficientResources", err)
		}
		got, _ := s.GetCity(ctx, c.ID)
		if got.Resources != poor {
			t.Errorf("resources changed to %v", got.Resources)
		}
		list, _ := s.ListBuildings(ctx, c.ID)
		if len(list) != 0 {
			t.Errorf("buildings = %d, want 0", len(list))
		}
	})
}

func TestCreditCityFloorsAtZero(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		c := newCity(t, s, economy.Resources{Fish: 5, Tourism: 5, Energy: 5})
		later := base.Add(15 * time.Minute)

		got, err := s.CreditCity(ctx, c.ID, economy.Resources{Fish: 10, Tourism: -3, Energy: -20}, later)
		if err != nil {
			t.Fatalf("CreditCity: %v", err)
		}
		want := economy.Resources{Fish: 15, Tourism: 2, Energy: 0}
		if got.Resources != want {
			t.Errorf("resources = %v, want %v", got.Resources, want)
		}
		if !got.LastUpdated.Equal(later) {
			t.Errorf("LastUpdated = %v, want %v", got.LastUpdated, later)
		}
		if _, err := s.CreditCity(ctx, 999, economy.Resources{}, later); !errors.Is(err, ErrNotFound) {
			t.Errorf("unknown city err = %v", err)
		}
	})
}

func TestEvents(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		c := newCity(t, s, economy.Resources{})
		for i := range 3 {
			_, err := s.AddEvent(ctx, city.Event{
				CityID: c.ID, Type: city.EventBulletin, Title: "t", Message: "m",
				CreatedAt: base.Add(time.Duration(i) * time.Minute),
			})
			if err != nil {
				t.Fatalf("AddEvent: %v", err)
			}
		}
		list, err := s.ListEvents(ctx, c.ID, 2)
		if err != nil {
			t.Fatalf("ListEvents: %v", err)
		}
		if len(list) != 2 {
			t.Fatalf("ListEvents len = %d, want 2", len(list))
		}
		if !list[0].CreatedAt.After(list[1].CreatedAt) {
			t.Error("events not newest first")
		}
		if string(list[0].Data) != "{}" {
			t.Errorf("Data = %s, want {}", list[0].Data)
		}
		if err := s.MarkEventRead(ctx, list[0].ID); err != nil {
			t.Fatalf("MarkEventRead: %v", err)
		}
		again, _ := s.ListEvents(ctx, c.ID, 1)
		if !again[0].Read {
			t.Error("event not marked read")
		}
		if err := s.MarkEventRead(ctx, 12345); !errors.Is(err, ErrNotFound) {
			t.Errorf("unknown event err = %v", err)
		}
	})
}

func TestStormLifecycle(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		ev := storm.Event{
			StationID: "9414290", StartTime: base, EndTime: base.Add(12 * time.Hour),
			Severity: 4, Title: storm.Title, Description: "d",
		}

		created, ok, err := s.CreateStormIfNoneActive(ctx, ev, base)
		if err != nil || !ok {
			t.Fatalf("first create = %v, %v", ok, err)
		}
		dup, ok, err := s.CreateStormIfNoneActive(ctx, ev, base.Add(time.Hour))
		if err != nil {
			t.Fatalf("second create: %v", err)
		}
		if ok || dup.ID != created.ID {
			t.Errorf("second create made a new storm: %+v", dup)
		}

		active, _ := s.ActiveStorms(ctx, "9414290", base.Add(time.Hour))
		if len(active) != 1 {
			t.Fatalf("active = %d, want 1", len(active))
		}
		if n, _ := s.ResolveExpiredStorms(ctx, base.Add(time.Hour)); n != 0 {
			t.Errorf("resolved %d storms before expiry", n)
		}
		if n, _ := s.ResolveExpiredStorms(ctx, base.Add(13*time.Hour)); n != 1 {
			t.Errorf("resolved %d storms after expiry, want 1", n)
		}
		got, err := s.GetStorm(ctx, created.ID)
		if err != nil || !got.Resolved {
			t.Errorf("GetStorm = %+v, %v", got, err)
		}

		// Once resolved a new storm may be recorded.
		_, ok, _ = s.CreateStormIfNoneActive(ctx, ev, base.Add(time.Hour))
		if !ok {
			t.Error("storm not created after resolution")
		}
		if _, err := s.ResolveStorm(ctx, 9999); !errors.Is(err, ErrNotFound) {
			t.Errorf("ResolveStorm(unknown) err = %v", err)
		}
	})
}
