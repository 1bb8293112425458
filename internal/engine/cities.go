package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/talgya/tidewater/internal/city"
	"github.com/talgya/tidewater/internal/economy"
	"github.com/talgya/tidewater/internal/persistence"
	"github.com/talgya/tidewater/internal/storm"
	"github.com/talgya/tidewater/internal/tide"
)

// CityReport is a city with everything its dashboard shows.
type CityReport struct {
	City       city.City         `json:"city"`
	Station    tide.Station      `json:"station"`
	TideLevel  tide.Sample       `json:"tideLevel"`
	Impact     tide.Impact       `json:"tideImpact"`
	Production economy.Resources `json:"production"`
	Buildings  []city.Building   `json:"buildings"`
	Storms     []StormThreat     `json:"activeStorms"`
}

// StormThreat is an active storm with the damage it could do at the
// current water level.
type StormThreat struct {
	storm.Event
	DamagePotential int `json:"damagePotential"`
}

// CreateCity founds a city at a station and posts a welcome event.
func (g *Game) CreateCity(ctx context.Context, ownerID int64, name, stationID string) (city.City, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return city.City{}, fmt.Errorf("%w: name is required", ErrInvalidCity)
	}
	st, err := g.Station(ctx, stationID)
	if err != nil {
		return city.City{}, err
	}

	now := g.now()
	c, err := g.store.CreateCity(ctx, city.City{
		OwnerID:     ownerID,
		Name:        name,
		StationID:   st.ID,
		Resources:   g.settings.StartingResources,
		LastUpdated: now,
		CreatedAt:   now,
	})
	if err != nil {
		return city.City{}, fmt.Errorf("create city: %w", err)
	}

	_, err = g.addEvent(ctx, city.Event{
		CityID:  c.ID,
		Type:    city.EventWelcome,
		Title:   "Welcome to your new coastal city!",
		Message: fmt.Sprintf("You've established %s at %s. Build wisely with the tides!", c.Name, st.Name),
		Data:    city.EventData(nil),
	})
	if err != nil {
		return city.City{}, err
	}

	slog.Info("city founded", "city", c.ID, "name", c.Name, "station", st.ID, "owner", ownerID)
	return c, nil
}

// City looks a city up.
func (g *Game) City(ctx context.Context, id int64) (city.City, error) {
	c, err := g.store.GetCity(ctx, id)
	if err != nil {
		return city.City{}, mapNotFound(err, ErrCityNotFound)
	}
	return c, nil
}

// Cities lists one player's cities.
func (g *Game) Cities(ctx context.Context, ownerID int64) ([]city.City, error) {
	return g.store.ListCitiesByOwner(ctx, ownerID)
}

// AllCities lists every city.
func (g *Game) AllCities(ctx context.Context) ([]city.City, error) {
	return g.store.ListCities(ctx)
}

// CityReport returns a city with its station, current tide, the production
// one tick would yield now and the active storms threatening it.
func (g *Game) CityReport(ctx context.Context, id int64) (CityReport, error) {
	c, err := g.City(ctx, id)
	if err != nil {
		return CityReport{}, err
	}
	st, err := g.Station(ctx, c.StationID)
	if err != nil {
		return CityReport{}, err
	}
	level, err := g.CurrentHeight(ctx, c.StationID)
	if err != nil {
		return CityReport{}, err
	}
	buildings, err := g.store.ListBuildings(ctx, c.ID)
	if err != nil {
		return CityReport{}, fmt.Errorf("list buildings: %w", err)
	}
	active, err := g.store.ActiveStorms(ctx, c.StationID, g.now())
	if err != nil {
		return CityReport{}, fmt.Errorf("active storms: %w", err)
	}

	threats := make([]StormThreat, len(active))
	for i, s := range active {
		threats[i] = StormThreat{
			Event:           s,
			DamagePotential: tide.StormDamagePotential(s.Severity, level.Height),
		}
	}

	return CityReport{
		City:       c,
		Station:    st,
		TideLevel:  level,
		Impact:     tide.Assess(level.Height),
		Production: economy.Produce(city.Types(buildings), level.Height),
		Buildings:  buildings,
		Storms:     threats,
	}, nil
}

// BuildingTypes returns the catalog.
func (g *Game) BuildingTypes(ctx context.Context) ([]economy.BuildingType, error) {
	return g.store.ListBuildingTypes(ctx)
}

// Buildings lists a city's buildings.
func (g *Game) Buildings(ctx context.Context, cityID int64) ([]city.Building, error) {
	if _, err := g.City(ctx, cityID); err != nil {
		return nil, err
	}
	return g.store.ListBuildings(ctx, cityID)
}

// PlaceBuilding pays for and places a building, then posts a construction
// event. Rejected placements change nothing.
func (g *Game) PlaceBuilding(ctx context.Context, cityID, typeID int64, pos city.Position) (city.Building, error) {
	if pos.X < 0 || pos.Y < 0 || pos.X >= g.settings.GridSize || pos.Y >= g.settings.GridSize {
		return city.Building{}, fmt.Errorf("%w: (%d,%d) on a %dx%d grid",
			ErrOutOfBounds, pos.X, pos.Y, g.settings.GridSize, g.settings.GridSize)
	}
	bt, err := g.store.GetBuildingType(ctx, typeID)
	if err != nil {
		return city.Building{}, mapNotFound(err, ErrBuildingTypeNotFound)
	}

	unlock := g.cityLocks.lock(cityID)
	b, _, err := g.store.PlaceBuilding(ctx, city.Building{
		CityID:   cityID,
		TypeID:   bt.ID,
		Position: pos,
		Health:   city.MaxHealth,
		Type:     bt,
	}, g.now())
	unlock()

	switch {
	case errors.Is(err, persistence.ErrNotFound):
		return city.Building{}, ErrCityNotFound
	case errors.Is(err, persistence.ErrPositionOccupied):
		return city.Building{}, ErrPositionOccupied
	case errors.Is(err, persistence.ErrInsufficientResources):
		return city.Building{}, fmt.Errorf("%w: %s costs %s", ErrInsufficientResources, bt.Name, bt.Cost)
	case err != nil:
		return city.Building{}, fmt.Errorf("place building: %w", err)
	}

	_, err = g.addEvent(ctx, city.Event{
		CityID:  cityID,
		Type:    city.EventConstructed,
		Title:   fmt.Sprintf("New %s Constructed", bt.Name),
		Message: fmt.Sprintf("Your new %s has been built and is now operational.", bt.Name),
		Data:    city.EventData(map[string]int64{"buildingId": b.ID}),
	})
	if err != nil {
		return city.Building{}, err
	}

	slog.Info("building placed", "city", cityID, "building", b.ID, "type", bt.Kind, "x", pos.X, "y", pos.Y)
	return b, nil
}

// RemoveBuilding demolishes a building. Its cost is not refunded.
func (g *Game) RemoveBuilding(ctx context.Context, id int64) error {
	b, err := g.store.GetBuilding(ctx, id)
	if err != nil {
		return mapNotFound(err, ErrBuildingNotFound)
	}
	unlock := g.cityLocks.lock(b.CityID)
	defer unlock()
	if err := g.store.RemoveBuilding(ctx, id); err != nil {
		return mapNotFound(err, ErrBuildingNotFound)
	}
	slog.Info("building removed", "city", b.CityID, "building", id)
	return nil
}

// Events returns a city's newest events. A non-positive limit uses the
// configured default.
func (g *Game) Events(ctx context.Context, cityID int64, limit int) ([]city.Event, error) {
	if limit <= 0 {
		limit = g.settings.EventLimit
	}
	if _, err := g.City(ctx, cityID); err != nil {
		return nil, err
	}
	return g.store.ListEvents(ctx, cityID, limit)
}

// MarkEventRead flags an event as read.
func (g *Game) MarkEventRead(ctx context.Context, id int64) error {
	if err := g.store.MarkEventRead(ctx, id); err != nil {
		return mapNotFound(err, ErrEventNotFound)
	}
	return nil
}
