package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/talgya/tidewater/internal/city"
	"github.com/talgya/tidewater/internal/economy"
	"github.com/talgya/tidewater/internal/storm"
	"github.com/talgya/tidewater/internal/tide"
)

var (
	// ErrNotFound is returned when a looked-up row does not exist.
	ErrNotFound = errors.New("not found")

	// ErrPositionOccupied rejects a placement on a taken grid cell.
	ErrPositionOccupied = errors.New("position already occupied")

	// ErrInsufficientResources rejects a placement the city cannot pay for.
	ErrInsufficientResources = errors.New("insufficient resources")
)

// Store is the game's repository. DB is the SQLite implementation and
// Memory an in-process one for tests and demos.
type Store interface {
	ListStations(ctx context.Context) ([]tide.Station, error)
	GetStation(ctx context.Context, stationID string) (tide.Station, error)
	SaveStation(ctx context.Context, st tide.Station) error

	// SaveSamples records samples, skipping any already stored for the same
	// station, timestamp and prediction flag.
	SaveSamples(ctx context.Context, samples []tide.Sample) error
	// LatestObserved returns the most recent non-prediction sample.
	LatestObserved(ctx context.Context, stationID string) (tide.Sample, error)
	// SamplesBetween returns every sample in [start, end], oldest first.
	SamplesBetween(ctx context.Context, stationID string, start, end time.Time) ([]tide.Sample, error)
	// PredictionsBetween returns prediction samples in [start, end], oldest first.
	PredictionsBetween(ctx context.Context, stationID string, start, end time.Time) ([]tide.Sample, error)

	ListBuildingTypes(ctx context.Context) ([]economy.BuildingType, error)
	GetBuildingType(ctx context.Context, id int64) (economy.BuildingType, error)
	SaveBuildingType(ctx context.Context, bt economy.BuildingType) (economy.BuildingType, error)

	CreateCity(ctx context.Context, c city.City) (city.City, error)
	GetCity(ctx context.Context, id int64) (city.City, error)
	ListCities(ctx context.Context) ([]city.City, error)
	ListCitiesByOwner(ctx context.Context, ownerID int64) ([]city.City, error)
	ListCitiesByStation(ctx context.Context, stationID string) ([]city.City, error)
	// CreditCity adds delta to the stockpile (flooring each entry at zero)
	// and stamps LastUpdated, in one atomic step.
	CreditCity(ctx context.Context, id int64, delta economy.Resources, at time.Time) (city.City, error)

	ListBuildings(ctx context.Context, cityID int64) ([]city.Building, error)
	GetBuilding(ctx context.Context, id int64) (city.Building, error)
	// PlaceBuilding checks the cell is free and the city can pay, deducts the
	// cost and inserts the building, all or nothing.
	PlaceBuilding(ctx context.Context, b city.Building, at time.Time) (city.Building, city.City, error)
	RemoveBuilding(ctx context.Context, id int64) error

	AddEvent(ctx context.Context, e city.Event) (city.Event, error)
	ListEvents(ctx context.Context, cityID int64, limit int) ([]city.Event, error)
	MarkEventRead(ctx context.Context, id int64) error

	GetStorm(ctx context.Context, id int64) (storm.Event, error)
	ActiveStorms(ctx context.Context, stationID string, now time.Time) ([]storm.Event, error)
	// CreateStormIfNoneActive inserts ev unless the station already has an
	// active storm at now. It reports whether a storm was created.
	CreateStormIfNoneActive(ctx context.Context, ev storm.Event, now time.Time) (storm.Event, bool, error)
	ResolveStorm(ctx context.Context, id int64) (storm.Event, error)
	// ResolveExpiredStorms marks storms whose window ended before now.
	ResolveExpiredStorms(ctx context.Context, now time.Time) (int, error)
}
