package persistence

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/talgya/tidewater/internal/city"
	"github.com/talgya/tidewater/internal/economy"
	"github.com/talgya/tidewater/internal/storm"
	"github.com/talgya/tidewater/internal/tide"
)

// Memory is an in-process Store. It keeps the same semantics as DB and is
// used by tests and by offline demo runs.
type Memory struct {
	mu sync.Mutex

	stations  map[string]tide.Station
	samples   []tide.Sample
	types     []economy.BuildingType
	cities    []city.City
	buildings []city.Building
	events    []city.Event
	storms    []storm.Event

	nextID int64
}

var _ Store = (*Memory)(nil)

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{stations: make(map[string]tide.Station)}
}

func (m *Memory) id() int64 {
	m.nextID++
	return m.nextID
}

// ListStations returns every station ordered by name.
func (m *Memory) ListStations(_ context.Context) ([]tide.Station, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]tide.Station, 0, len(m.stations))
	for _, st := range m.stations {
		out = append(out, st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// GetStation returns one station or ErrNotFound.
func (m *Memory) GetStation(_ context.Context, stationID string) (tide.Station, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.stations[stationID]
	if !ok {
		return tide.Station{}, fmt.Errorf("station %s: %w", stationID, ErrNotFound)
	}
	return st, nil
}

// SaveStation inserts or replaces a station.
func (m *Memory) SaveStation(_ context.Context, st tide.Station) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stations[st.ID] = st
	return nil
}

// SaveSamples records samples, skipping any already stored for the same
// station, millisecond and prediction flag.
func (m *Memory) SaveSamples(_ context.Context, samples []tide.Sample) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range samples {
		s.Time = s.Time.UTC().Truncate(time.Millisecond)
		dup := false
		for _, have := range m.samples {
			if have.StationID == s.StationID && have.Prediction == s.Prediction && have.Time.Equal(s.Time) {
				dup = true
				break
			}
		}
		if dup {
			continue
		}
		s.ID = m.id()
		m.samples = append(m.samples, s)
	}
	return nil
}

// LatestObserved returns the newest observed (non-prediction) sample.
func (m *Memory) LatestObserved(_ context.Context, stationID string) (tide.Sample, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var best tide.Sample
	found := false
	for _, s := range m.samples {
		if s.StationID != stationID || s.Prediction {
			continue
		}
		if !found || s.Time.After(best.Time) {
			best, found = s, true
		}
	}
	if !found {
		return tide.Sample{}, fmt.Errorf("observed sample for %s: %w", stationID, ErrNotFound)
	}
	return best, nil
}

func (m *Memory) between(stationID string, start, end time.Time, predictionsOnly bool) []tide.Sample {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []tide.Sample
	for _, s := range m.samples {
		if s.StationID != stationID || (predictionsOnly && !s.Prediction) {
			continue
		}
		if s.Time.Before(start) || s.Time.After(end) {
			continue
		}
		out = append(out, s)
	}
	tide.SortByTime(out)
	return out
}

// SamplesBetween returns a station's samples in [start, end] ordered by time.
func (m *Memory) SamplesBetween(_ context.Context, stationID string, start, end time.Time) ([]tide.Sample, error) {
	return m.between(stationID, start, end, false), nil
}

// PredictionsBetween is SamplesBetween restricted to predictions.
func (m *Memory) PredictionsBetween(_ context.Context, stationID string, start, end time.Time) ([]tide.Sample, error) {
	return m.between(stationID, start, end, true), nil
}

// ListBuildingTypes returns the catalog.
func (m *Memory) ListBuildingTypes(_ context.Context) ([]economy.BuildingType, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]economy.BuildingType(nil), m.types...), nil
}

// GetBuildingType returns one catalog entry or ErrNotFound.
func (m *Memory) GetBuildingType(_ context.Context, id int64) (economy.BuildingType, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, bt := range m.types {
		if bt.ID == id {
			return bt, nil
		}
	}
	return economy.BuildingType{}, fmt.Errorf("building type %d: %w", id, ErrNotFound)
}

// SaveBuildingType validates and stores a catalog entry.
func (m *Memory) SaveBuildingType(_ context.Context, bt economy.BuildingType) (economy.BuildingType, error) {
	if err := bt.Validate(); err != nil {
		return economy.BuildingType{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, have := range m.types {
		if have.Kind == bt.Kind {
			return economy.BuildingType{}, fmt.Errorf("building type %s already stored", bt.Kind)
		}
	}
	bt.ID = m.id()
	m.types = append(m.types, bt)
	return bt, nil
}

// CreateCity stores a new city and assigns its id.
func (m *Memory) CreateCity(_ context.Context, c city.City) (city.City, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c.ID = m.id()
	m.cities = append(m.cities, c)
	return c, nil
}

func (m *Memory) cityIndex(id int64) int {
	for i, c := range m.cities {
		if c.ID == id {
			return i
		}
	}
	return -1
}

// GetCity returns one city or ErrNotFound.
func (m *Memory) GetCity(_ context.Context, id int64) (city.City, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	i := m.cityIndex(id)
	if i < 0 {
		return city.City{}, fmt.Errorf("city %d: %w", id, ErrNotFound)
	}
	return m.cities[i], nil
}

func (m *Memory) filterCities(keep func(city.City) bool) []city.City {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []city.City{}
	for _, c := range m.cities {
		if keep(c) {
			out = append(out, c)
		}
	}
	return out
}

// ListCities returns every city.
func (m *Memory) ListCities(_ context.Context) ([]city.City, error) {
	return m.filterCities(func(city.City) bool { return true }), nil
}

// ListCitiesByOwner returns the cities owned by a user.
func (m *Memory) ListCitiesByOwner(_ context.Context, ownerID int64) ([]city.City, error) {
	return m.filterCities(func(c city.City) bool { return c.OwnerID == ownerID }), nil
}

// ListCitiesByStation returns the cities bound to a station.
func (m *Memory) ListCitiesByStation(_ context.Context, stationID string) ([]city.City, error) {
	return m.filterCities(func(c city.City) bool { return c.StationID == stationID }), nil
}

// CreditCity adds delta to a city's stockpile, flooring each resource at zero.
func (m *Memory) CreditCity(_ context.Context, id int64, delta economy.Resources, at time.Time) (city.City, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	i := m.cityIndex(id)
	if i < 0 {
		return city.City{}, fmt.Errorf("city %d: %w", id, ErrNotFound)
	}
	c := &m.cities[i]
	c.Resources = c.Resources.Add(delta).Floor()
	c.LastUpdated = at
	return *c, nil
}

// ListBuildings returns a city's buildings.
func (m *Memory) ListBuildings(_ context.Context, cityID int64) ([]city.Building, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []city.Building{}
	for _, b := range m.buildings {
		if b.CityID == cityID {
			out = append(out, b)
		}
	}
	return out, nil
}

// GetBuilding returns one building or ErrNotFound.
func (m *Memory) GetBuilding(_ context.Context, id int64) (city.Building, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, b := range m.buildings {
		if b.ID == id {
			return b, nil
		}
	}
	return city.Building{}, fmt.Errorf("building %d: %w", id, ErrNotFound)
}

// PlaceBuilding checks the cell and the stockpile, debits the cost and
// stores the building in one step.
func (m *Memory) PlaceBuilding(_ context.Context, b city.Building, at time.Time) (city.Building, city.City, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	i := m.cityIndex(b.CityID)
	if i < 0 {
		return city.Building{}, city.City{}, fmt.Errorf("city %d: %w", b.CityID, ErrNotFound)
	}
	for _, have := range m.buildings {
		if have.CityID == b.CityID && have.Position == b.Position {
			return city.Building{}, city.City{}, ErrPositionOccupied
		}
	}
	c := &m.cities[i]
	if !c.Resources.CanAfford(b.Type.Cost) {
		return city.Building{}, city.City{}, ErrInsufficientResources
	}
	c.Resources = c.Resources.Sub(b.Type.Cost)
	c.LastUpdated = at

	b.ID = m.id()
	b.CreatedAt = at
	m.buildings = append(m.buildings, b)
	return b, *c, nil
}

// RemoveBuilding deletes a building without refunding its cost.
func (m *Memory) RemoveBuilding(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, b := range m.buildings {
		if b.ID == id {
			m.buildings = append(m.buildings[:i], m.buildings[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("building %d: %w", id, ErrNotFound)
}

// AddEvent records a city event.
func (m *Memory) AddEvent(_ context.Context, e city.Event) (city.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(e.Data) == 0 {
		e.Data = city.EventData(nil)
	}
	e.ID = m.id()
	m.events = append(m.events, e)
	return e, nil
}

// ListEvents returns a city's events, newest first. A negative limit
// returns them all.
func (m *Memory) ListEvents(_ context.Context, cityID int64, limit int) ([]city.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []city.Event{}
	for _, e := range m.events {
		if e.CityID == cityID {
			out = append(out, e)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if limit >= 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// MarkEventRead flags an event as read.
func (m *Memory) MarkEventRead(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.events {
		if m.events[i].ID == id {
			m.events[i].Read = true
			return nil
		}
	}
	return fmt.Errorf("event %d: %w", id, ErrNotFound)
}

// GetStorm returns one storm or ErrNotFound.
func (m *Memory) GetStorm(_ context.Context, id int64) (storm.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.storms {
		if s.ID == id {
			return s, nil
		}
	}
	return storm.Event{}, fmt.Errorf("storm %d: %w", id, ErrNotFound)
}

func (m *Memory) activeLocked(stationID string, now time.Time) []storm.Event {
	out := []storm.Event{}
	for _, s := range m.storms {
		if s.StationID == stationID && s.ActiveAt(now) {
			out = append(out, s)
		}
	}
	return out
}

// ActiveStorms returns the station's unresolved storms covering now.
func (m *Memory) ActiveStorms(_ context.Context, stationID string, now time.Time) ([]storm.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.activeLocked(stationID, now), nil
}

// CreateStormIfNoneActive stores ev unless the station already has an
// active storm, which is returned instead.
func (m *Memory) CreateStormIfNoneActive(_ context.Context, ev storm.Event, now time.Time) (storm.Event, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if active := m.activeLocked(ev.StationID, now); len(active) > 0 {
		return active[0], false, nil
	}
	ev.ID = m.id()
	m.storms = append(m.storms, ev)
	return ev, true, nil
}

// ResolveStorm marks a storm resolved.
func (m *Memory) ResolveStorm(_ context.Context, id int64) (storm.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.storms {
		if m.storms[i].ID == id {
			m.storms[i].Resolved = true
			return m.storms[i], nil
		}
	}
	return storm.Event{}, fmt.Errorf("storm %d: %w", id, ErrNotFound)
}

// ResolveExpiredStorms resolves storms whose window ended before now.
func (m *Memory) ResolveExpiredStorms(_ context.Context, now time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for i := range m.storms {
		if !m.storms[i].Resolved && m.storms[i].EndTime.Before(now) {
			m.storms[i].Resolved = true
			n++
		}
	}
	return n, nil
}
