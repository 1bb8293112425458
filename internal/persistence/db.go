// Package persistence provides SQLite-based game state storage.
package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/talgya/tidewater/internal/city"
	"github.com/talgya/tidewater/internal/economy"
	"github.com/talgya/tidewater/internal/storm"
	"github.com/talgya/tidewater/internal/tide"
)

// DB wraps a SQLite connection for game state persistence.
type DB struct {
	conn *sqlx.DB
}

var _ Store = (*DB)(nil)

// Open opens or creates a SQLite database at the given path.
// Use ":memory:" for a throwaway database.
func Open(path string) (*DB, error) {
	dsn := path
	if path != ":memory:" {
		dsn = path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"
	}
	conn, err := sqlx.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	// SQLite has a single writer; one connection also keeps :memory: shared.
	conn.SetMaxOpenConns(1)

	db := &DB{conn: conn}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return db, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

func (db *DB) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS tide_stations (
		station_id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		state TEXT NOT NULL DEFAULT '',
		latitude REAL NOT NULL,
		longitude REAL NOT NULL,
		timezone_offset TEXT NOT NULL DEFAULT ''
	);

	CREATE TABLE IF NOT EXISTS tide_data (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		station_id TEXT NOT NULL,
		ts INTEGER NOT NULL,
		height REAL NOT NULL,
		type TEXT NOT NULL DEFAULT '',
		prediction INTEGER NOT NULL DEFAULT 0,
		UNIQUE (station_id, ts, prediction)
	);

	CREATE TABLE IF NOT EXISTS building_types (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		type TEXT NOT NULL UNIQUE,
		name TEXT NOT NULL,
		description TEXT NOT NULL,
		icon TEXT NOT NULL DEFAULT '',
		cost_fish INTEGER NOT NULL,
		cost_tourism INTEGER NOT NULL,
		cost_energy INTEGER NOT NULL,
		prod_fish INTEGER NOT NULL,
		prod_tourism INTEGER NOT NULL,
		prod_energy INTEGER NOT NULL,
		protection INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS cities (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id INTEGER NOT NULL,
		name TEXT NOT NULL,
		station_id TEXT NOT NULL,
		fish INTEGER NOT NULL,
		tourism INTEGER NOT NULL,
		energy INTEGER NOT NULL,
		last_updated INTEGER NOT NULL,
		created_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS buildings (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		city_id INTEGER NOT NULL,
		building_type_id INTEGER NOT NULL,
		pos_x INTEGER NOT NULL,
		pos_y INTEGER NOT NULL,
		health INTEGER NOT NULL DEFAULT 100,
		created_at INTEGER NOT NULL,
		UNIQUE (city_id, pos_x, pos_y)
	);

	CREATE TABLE IF NOT EXISTS events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		city_id INTEGER NOT NULL,
		type TEXT NOT NULL,
		title TEXT NOT NULL,
		message TEXT NOT NULL,
		data TEXT NOT NULL DEFAULT '{}',
		read INTEGER NOT NULL DEFAULT 0,
		created_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS storm_events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		station_id TEXT NOT NULL,
		start_time INTEGER NOT NULL,
		end_time INTEGER NOT NULL,
		severity INTEGER NOT NULL,
		title TEXT NOT NULL,
		description TEXT NOT NULL,
		resolved INTEGER NOT NULL DEFAULT 0
	);

	CREATE INDEX IF NOT EXISTS idx_tide_data_station_ts ON tide_data(station_id, ts);
	CREATE INDEX IF NOT EXISTS idx_cities_user ON cities(user_id);
	CREATE INDEX IF NOT EXISTS idx_cities_station ON cities(station_id);
	CREATE INDEX IF NOT EXISTS idx_buildings_city ON buildings(city_id);
	CREATE INDEX IF NOT EXISTS idx_events_city ON events(city_id, id);
	CREATE INDEX IF NOT EXISTS idx_storm_events_station ON storm_events(station_id, resolved);
	`
	_, err := db.conn.Exec(schema)
	return err
}

// Timestamps are stored as unix milliseconds so range filters compare integers.
func toMillis(t time.Time) int64 { return t.UnixMilli() }

func fromMillis(ms int64) time.Time { return time.UnixMilli(ms).UTC() }

func notFound(err error, what string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s: %w", what, ErrNotFound)
	}
	return fmt.Errorf("%s: %w", what, err)
}

// ── Stations ────────────────────────────────────────────────────────

type stationRow struct {
	StationID      string  `db:"station_id"`
	Name           string  `db:"name"`
	State          string  `db:"state"`
	Latitude       float64 `db:"latitude"`
	Longitude      float64 `db:"longitude"`
	TimezoneOffset string  `db:"timezone_offset"`
}

func (r stationRow) station() tide.Station {
	return tide.Station{
		ID:             r.StationID,
		Name:           r.Name,
		State:          r.State,
		Latitude:       r.Latitude,
		Longitude:      r.Longitude,
		TimezoneOffset: r.TimezoneOffset,
	}
}

// ListStations returns every known station ordered by name.
func (db *DB) ListStations(ctx context.Context) ([]tide.Station, error) {
	var rows []stationRow
	if err := db.conn.SelectContext(ctx, &rows, "SELECT * FROM tide_stations ORDER BY name"); err != nil {
		return nil, fmt.Errorf("list stations: %w", err)
	}
	out := make([]tide.Station, len(rows))
	for i, r := range rows {
		out[i] = r.station()
	}
	return out, nil
}

// GetStation looks a station up by its NOAA id.
func (db *DB) GetStation(ctx context.Context, stationID string) (tide.Station, error) {
	var r stationRow
	if err := db.conn.GetContext(ctx, &r, "SELECT * FROM tide_stations WHERE station_id = ?", stationID); err != nil {
		return tide.Station{}, notFound(err, "station "+stationID)
	}
	return r.station(), nil
}

// SaveStation inserts or replaces a station.
func (db *DB) SaveStation(ctx context.Context, st tide.Station) error {
	_, err := db.conn.ExecContext(ctx, `INSERT OR REPLACE INTO tide_stations
		(station_id, name, state, latitude, longitude, timezone_offset)
		VALUES (?, ?, ?, ?, ?, ?)`,
		st.ID, st.Name, st.State, st.Latitude, st.Longitude, st.TimezoneOffset,
	)
	if err != nil {
		return fmt.Errorf("save station %s: %w", st.ID, err)
	}
	return nil
}

// ── Tide samples ────────────────────────────────────────────────────

type sampleRow struct {
	ID         int64   `db:"id"`
	StationID  string  `db:"station_id"`
	TS         int64   `db:"ts"`
	Height     float64 `db:"height"`
	Type       string  `db:"type"`
	Prediction bool    `db:"prediction"`
}

func (r sampleRow) sample() tide.Sample {
	return tide.Sample{
		ID:         r.ID,
		StationID:  r.StationID,
		Time:       fromMillis(r.TS),
		Height:     r.Height,
		Kind:       tide.Kind(r.Type),
		Prediction: r.Prediction,
	}
}

func samplesFrom(rows []sampleRow) []tide.Sample {
	out := make([]tide.Sample, len(rows))
	for i, r := range rows {
		out[i] = r.sample()
	}
	return out
}

// SaveSamples appends samples, ignoring duplicates.
func (db *DB) SaveSamples(ctx context.Context, samples []tide.Sample) error {
	if len(samples) == 0 {
		return nil
	}

	tx, err := db.conn.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PreparexContext(ctx, `INSERT OR IGNORE INTO tide_data
		(station_id, ts, height, type, prediction) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, s := range samples {
		if _, err := stmt.ExecContext(ctx, s.StationID, toMillis(s.Time), s.Height, string(s.Kind), s.Prediction); err != nil {
			return fmt.Errorf("insert sample %s@%s: %w", s.StationID, s.Time.Format(time.RFC3339), err)
		}
	}

	return tx.Commit()
}

// LatestObserved returns the newest non-prediction sample for a station.
func (db *DB) LatestObserved(ctx context.Context, stationID string) (tide.Sample, error) {
	var r sampleRow
	err := db.conn.GetContext(ctx, &r, `SELECT * FROM tide_data
		WHERE station_id = ? AND prediction = 0
		ORDER BY ts DESC LIMIT 1`, stationID)
	if err != nil {
		return tide.Sample{}, notFound(err, "observed sample for "+stationID)
	}
	return r.sample(), nil
}

// SamplesBetween returns all samples in [start, end], oldest first.
func (db *DB) SamplesBetween(ctx context.Context, stationID string, start, end time.Time) ([]tide.Sample, error) {
	var rows []sampleRow
	err := db.conn.SelectContext(ctx, &rows, `SELECT * FROM tide_data
		WHERE station_id = ? AND ts >= ? AND ts <= ?
		ORDER BY ts`, stationID, toMillis(start), toMillis(end))
	if err != nil {
		return nil, fmt.Errorf("samples for %s: %w", stationID, err)
	}
	return samplesFrom(rows), nil
}

// PredictionsBetween returns prediction samples in [start, end], oldest first.
func (db *DB) PredictionsBetween(ctx context.Context, stationID string, start, end time.Time) ([]tide.Sample, error) {
	var rows []sampleRow
	err := db.conn.SelectContext(ctx, &rows, `SELECT * FROM tide_data
		WHERE station_id = ? AND prediction = 1 AND ts >= ? AND ts <= ?
		ORDER BY ts`, stationID, toMillis(start), toMillis(end))
	if err != nil {
		return nil, fmt.Errorf("predictions for %s: %w", stationID, err)
	}
	return samplesFrom(rows), nil
}

// ── Building types ──────────────────────────────────────────────────

type buildingTypeRow struct {
	ID          int64  `db:"id"`
	Type        string `db:"type"`
	Name        string `db:"name"`
	Description string `db:"description"`
	Icon        string `db:"icon"`
	CostFish    int    `db:"cost_fish"`
	CostTourism int    `db:"cost_tourism"`
	CostEnergy  int    `db:"cost_energy"`
	ProdFish    int    `db:"prod_fish"`
	ProdTourism int    `db:"prod_tourism"`
	ProdEnergy  int    `db:"prod_energy"`
	Protection  int    `db:"protection"`
}

func (r buildingTypeRow) buildingType() economy.BuildingType {
	return economy.BuildingType{
		ID:          r.ID,
		Kind:        economy.BuildingKind(r.Type),
		Name:        r.Name,
		Description: r.Description,
		Icon:        r.Icon,
		Cost:        economy.Resources{Fish: r.CostFish, Tourism: r.CostTourism, Energy: r.CostEnergy},
		Production:  economy.Resources{Fish: r.ProdFish, Tourism: r.ProdTourism, Energy: r.ProdEnergy},
		Protection:  r.Protection,
	}
}

// ListBuildingTypes returns the catalog in insertion order.
func (db *DB) ListBuildingTypes(ctx context.Context) ([]economy.BuildingType, error) {
	var rows []buildingTypeRow
	if err := db.conn.SelectContext(ctx, &rows, "SELECT * FROM building_types ORDER BY id"); err != nil {
		return nil, fmt.Errorf("list building types: %w", err)
	}
	out := make([]economy.BuildingType, len(rows))
	for i, r := range rows {
		out[i] = r.buildingType()
	}
	return out, nil
}

// GetBuildingType looks a catalog entry up by id.
func (db *DB) GetBuildingType(ctx context.Context, id int64) (economy.BuildingType, error) {
	var r buildingTypeRow
	if err := db.conn.GetContext(ctx, &r, "SELECT * FROM building_types WHERE id = ?", id); err != nil {
		return economy.BuildingType{}, notFound(err, fmt.Sprintf("building type %d", id))
	}
	return r.buildingType(), nil
}

// SaveBuildingType validates and inserts a catalog entry.
func (db *DB) SaveBuildingType(ctx context.Context, bt economy.BuildingType) (economy.BuildingType, error) {
	if err := bt.Validate(); err != nil {
		return economy.BuildingType{}, err
	}
	res, err := db.conn.ExecContext(ctx, `INSERT INTO building_types
		(type, name, description, icon, cost_fish, cost_tourism, cost_energy,
		 prod_fish, prod_tourism, prod_energy, protection)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		string(bt.Kind), bt.Name, bt.Description, bt.Icon,
		bt.Cost.Fish, bt.Cost.Tourism, bt.Cost.Energy,
		bt.Production.Fish, bt.Production.Tourism, bt.Production.Energy,
		bt.Protection,
	)
	if err != nil {
		return economy.BuildingType{}, fmt.Errorf("insert building type %s: %w", bt.Kind, err)
	}
	bt.ID, err = res.LastInsertId()
	return bt, err
}

// ── Cities ──────────────────────────────────────────────────────────

type cityRow struct {
	ID          int64  `db:"id"`
	UserID      int64  `db:"user_id"`
	Name        string `db:"name"`
	StationID   string `db:"station_id"`
	Fish        int    `db:"fish"`
	Tourism     int    `db:"tourism"`
	Energy      int    `db:"energy"`
	LastUpdated int64  `db:"last_updated"`
	CreatedAt   int64  `db:"created_at"`
}

func (r cityRow) city() city.City {
	return city.City{
		ID:          r.ID,
		OwnerID:     r.UserID,
		Name:        r.Name,
		StationID:   r.StationID,
		Resources:   economy.Resources{Fish: r.Fish, Tourism: r.Tourism, Energy: r.Energy},
		LastUpdated: fromMillis(r.LastUpdated),
		CreatedAt:   fromMillis(r.CreatedAt),
	}
}

func (db *DB) selectCities(ctx context.Context, query string, args ...any) ([]city.City, error) {
	var rows []cityRow
	if err := db.conn.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("list cities: %w", err)
	}
	out := make([]city.City, len(rows))
	for i, r := range rows {
		out[i] = r.city()
	}
	return out, nil
}

// CreateCity inserts a city and returns it with its id.
func (db *DB) CreateCity(ctx context.Context, c city.City) (city.City, error) {
	res, err := db.conn.ExecContext(ctx, `INSERT INTO cities
		(user_id, name, station_id, fish, tourism, energy, last_updated, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		c.OwnerID, c.Name, c.StationID,
		c.Resources.Fish, c.Resources.Tourism, c.Resources.Energy,
		toMillis(c.LastUpdated), toMillis(c.CreatedAt),
	)
	if err != nil {
		return city.City{}, fmt.Errorf("insert city %q: %w", c.Name, err)
	}
	c.ID, err = res.LastInsertId()
	return c, err
}

// GetCity looks a city up by id.
func (db *DB) GetCity(ctx context.Context, id int64) (city.City, error) {
	return getCity(ctx, db.conn, id)
}

func getCity(ctx context.Context, q sqlx.QueryerContext, id int64) (city.City, error) {
	var r cityRow
	if err := sqlx.GetContext(ctx, q, &r, "SELECT * FROM cities WHERE id = ?", id); err != nil {
		return city.City{}, notFound(err, fmt.Sprintf("city %d", id))
	}
	return r.city(), nil
}

// ListCities returns every city.
func (db *DB) ListCities(ctx context.Context) ([]city.City, error) {
	return db.selectCities(ctx, "SELECT * FROM cities ORDER BY id")
}

// ListCitiesByOwner returns one player's cities.
func (db *DB) ListCitiesByOwner(ctx context.Context, ownerID int64) ([]city.City, error) {
	return db.selectCities(ctx, "SELECT * FROM cities WHERE user_id = ? ORDER BY id", ownerID)
}

// ListCitiesByStation returns the cities founded at a station.
func (db *DB) ListCitiesByStation(ctx context.Context, stationID string) ([]city.City, error) {
	return db.selectCities(ctx, "SELECT * FROM cities WHERE station_id = ? ORDER BY id", stationID)
}

// CreditCity adds delta to a city's stockpile, never letting an entry drop
// below zero.
func (db *DB) CreditCity(ctx context.Context, id int64, delta economy.Resources, at time.Time) (city.City, error) {
	tx, err := db.conn.BeginTxx(ctx, nil)
	if err != nil {
		return city.City{}, err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `UPDATE cities SET
		fish = MAX(0, fish + ?),
		tourism = MAX(0, tourism + ?),
		energy = MAX(0, energy + ?),
		last_updated = ?
		WHERE id = ?`,
		delta.Fish, delta.Tourism, delta.Energy, toMillis(at), id)
	if err != nil {
		return city.City{}, fmt.Errorf("credit city %d: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return city.City{}, fmt.Errorf("city %d: %w", id, ErrNotFound)
	}

	c, err := getCity(ctx, tx, id)
	if err != nil {
		return city.City{}, err
	}
	return c, tx.Commit()
}

// ── Buildings ───────────────────────────────────────────────────────

type buildingRow struct {
	ID             int64 `db:"id"`
	CityID         int64 `db:"city_id"`
	BuildingTypeID int64 `db:"building_type_id"`
	PosX           int   `db:"pos_x"`
	PosY           int   `db:"pos_y"`
	Health         int   `db:"health"`
	CreatedAt      int64 `db:"created_at"`
	buildingTypeRow
}

const buildingSelect = `SELECT
	b.id, b.city_id, b.building_type_id, b.pos_x, b.pos_y, b.health, b.created_at,
	t.type, t.name, t.description, t.icon,
	t.cost_fish, t.cost_tourism, t.cost_energy,
	t.prod_fish, t.prod_tourism, t.prod_energy, t.protection
	FROM buildings b JOIN building_types t ON t.id = b.building_type_id`

func (r buildingRow) building() city.Building {
	bt := r.buildingTypeRow.buildingType()
	bt.ID = r.BuildingTypeID
	return city.Building{
		ID:        r.ID,
		CityID:    r.CityID,
		TypeID:    r.BuildingTypeID,
		Position:  city.Position{X: r.PosX, Y: r.PosY},
		Health:    r.Health,
		CreatedAt: fromMillis(r.CreatedAt),
		Type:      bt,
	}
}

// ListBuildings returns a city's buildings with their resolved types.
func (db *DB) ListBuildings(ctx context.Context, cityID int64) ([]city.Building, error) {
	var rows []buildingRow
	if err := db.conn.SelectContext(ctx, &rows, buildingSelect+" WHERE b.city_id = ? ORDER BY b.id", cityID); err != nil {
		return nil, fmt.Errorf("list buildings for city %d: %w", cityID, err)
	}
	out := make([]city.Building, len(rows))
	for i, r := range rows {
		out[i] = r.building()
	}
	return out, nil
}

// GetBuilding looks a building up by id.
func (db *DB) GetBuilding(ctx context.Context, id int64) (city.Building, error) {
	var r buildingRow
	if err := db.conn.GetContext(ctx, &r, buildingSelect+" WHERE b.id = ?", id); err != nil {
		return city.Building{}, notFound(err, fmt.Sprintf("building %d", id))
	}
	return r.building(), nil
}

// PlaceBuilding pays for and inserts a building in one transaction.
func (db *DB) PlaceBuilding(ctx context.Context, b city.Building, at time.Time) (city.Building, city.City, error) {
	tx, err := db.conn.BeginTxx(ctx, nil)
	if err != nil {
		return city.Building{}, city.City{}, err
	}
	defer tx.Rollback()

	c, err := getCity(ctx, tx, b.CityID)
	if err != nil {
		return city.Building{}, city.City{}, err
	}

	var taken int
	if err := tx.GetContext(ctx, &taken,
		"SELECT COUNT(*) FROM buildings WHERE city_id = ? AND pos_x = ? AND pos_y = ?",
		b.CityID, b.X, b.Y); err != nil {
		return city.Building{}, city.City{}, fmt.Errorf("check position: %w", err)
	}
	if taken > 0 {
		return city.Building{}, city.City{}, ErrPositionOccupied
	}

	cost := b.Type.Cost
	if !c.Resources.CanAfford(cost) {
		return city.Building{}, city.City{}, ErrInsufficientResources
	}
	c.Resources = c.Resources.Sub(cost)
	c.LastUpdated = at

	if _, err := tx.ExecContext(ctx,
		"UPDATE cities SET fish = ?, tourism = ?, energy = ?, last_updated = ? WHERE id = ?",
		c.Resources.Fish, c.Resources.Tourism, c.Resources.Energy, toMillis(at), c.ID); err != nil {
		return city.Building{}, city.City{}, fmt.Errorf("deduct cost: %w", err)
	}

	b.CreatedAt = at
	res, err := tx.ExecContext(ctx, `INSERT INTO buildings
		(city_id, building_type_id, pos_x, pos_y, health, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		b.CityID, b.TypeID, b.X, b.Y, b.Health, toMillis(at))
	if err != nil {
		return city.Building{}, city.City{}, fmt.Errorf("insert building: %w", err)
	}
	if b.ID, err = res.LastInsertId(); err != nil {
		return city.Building{}, city.City{}, err
	}

	if err := tx.Commit(); err != nil {
		return city.Building{}, city.City{}, err
	}
	return b, c, nil
}

// RemoveBuilding deletes a building. Nothing is refunded.
func (db *DB) RemoveBuilding(ctx context.Context, id int64) error {
	res, err := db.conn.ExecContext(ctx, "DELETE FROM buildings WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("remove building %d: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("building %d: %w", id, ErrNotFound)
	}
	return nil
}

// ── Events ──────────────────────────────────────────────────────────

type eventRow struct {
	ID        int64  `db:"id"`
	CityID    int64  `db:"city_id"`
	Type      string `db:"type"`
	Title     string `db:"title"`
	Message   string `db:"message"`
	Data      string `db:"data"`
	Read      bool   `db:"read"`
	CreatedAt int64  `db:"created_at"`
}

func (r eventRow) event() city.Event {
	return city.Event{
		ID:        r.ID,
		CityID:    r.CityID,
		Type:      city.EventType(r.Type),
		Title:     r.Title,
		Message:   r.Message,
		Data:      []byte(r.Data),
		Read:      r.Read,
		CreatedAt: fromMillis(r.CreatedAt),
	}
}

// AddEvent appends a notification to a city's log.
func (db *DB) AddEvent(ctx context.Context, e city.Event) (city.Event, error) {
	if len(e.Data) == 0 {
		e.Data = city.EventData(nil)
	}
	res, err := db.conn.ExecContext(ctx, `INSERT INTO events
		(city_id, type, title, message, data, read, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.CityID, string(e.Type), e.Title, e.Message, string(e.Data), e.Read, toMillis(e.CreatedAt))
	if err != nil {
		return city.Event{}, fmt.Errorf("insert event for city %d: %w", e.CityID, err)
	}
	e.ID, err = res.LastInsertId()
	return e, err
}

// ListEvents returns a city's newest events first.
func (db *DB) ListEvents(ctx context.Context, cityID int64, limit int) ([]city.Event, error) {
	var rows []eventRow
	err := db.conn.SelectContext(ctx, &rows,
		"SELECT * FROM events WHERE city_id = ? ORDER BY created_at DESC, id DESC LIMIT ?",
		cityID, limit)
	if err != nil {
		return nil, fmt.Errorf("list events for city %d: %w", cityID, err)
	}
	out := make([]city.Event, len(rows))
	for i, r := range rows {
		out[i] = r.event()
	}
	return out, nil
}

// MarkEventRead flips an event's read flag.
func (db *DB) MarkEventRead(ctx context.Context, id int64) error {
	res, err := db.conn.ExecContext(ctx, "UPDATE events SET read = 1 WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("mark event %d read: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("event %d: %w", id, ErrNotFound)
	}
	return nil
}

// ── Storms ──────────────────────────────────────────────────────────

type stormRow struct {
	ID          int64  `db:"id"`
	StationID   string `db:"station_id"`
	StartTime   int64  `db:"start_time"`
	EndTime     int64  `db:"end_time"`
	Severity    int    `db:"severity"`
	Title       string `db:"title"`
	Description string `db:"description"`
	Resolved    bool   `db:"resolved"`
}

func (r stormRow) storm() storm.Event {
	return storm.Event{
		ID:          r.ID,
		StationID:   r.StationID,
		StartTime:   fromMillis(r.StartTime),
		EndTime:     fromMillis(r.EndTime),
		Severity:    r.Severity,
		Title:       r.Title,
		Description: r.Description,
		Resolved:    r.Resolved,
	}
}

const activeStormQuery = `SELECT * FROM storm_events
	WHERE station_id = ? AND resolved = 0 AND start_time <= ? AND end_time >= ?
	ORDER BY id`

// GetStorm looks a storm up by id.
func (db *DB) GetStorm(ctx context.Context, id int64) (storm.Event, error) {
	var r stormRow
	if err := db.conn.GetContext(ctx, &r, "SELECT * FROM storm_events WHERE id = ?", id); err != nil {
		return storm.Event{}, notFound(err, fmt.Sprintf("storm %d", id))
	}
	return r.storm(), nil
}

// ActiveStorms returns the station's storms that are unresolved and whose
// window contains now.
func (db *DB) ActiveStorms(ctx context.Context, stationID string, now time.Time) ([]storm.Event, error) {
	var rows []stormRow
	ms := toMillis(now)
	if err := db.conn.SelectContext(ctx, &rows, activeStormQuery, stationID, ms, ms); err != nil {
		return nil, fmt.Errorf("active storms for %s: %w", stationID, err)
	}
	out := make([]storm.Event, len(rows))
	for i, r := range rows {
		out[i] = r.storm()
	}
	return out, nil
}

// CreateStormIfNoneActive performs the active-storm check and the insert in
// one transaction.
func (db *DB) CreateStormIfNoneActive(ctx context.Context, ev storm.Event, now time.Time) (storm.Event, bool, error) {
	tx, err := db.conn.BeginTxx(ctx, nil)
	if err != nil {
		return storm.Event{}, false, err
	}
	defer tx.Rollback()

	var existing []stormRow
	ms := toMillis(now)
	if err := tx.SelectContext(ctx, &existing, activeStormQuery, ev.StationID, ms, ms); err != nil {
		return storm.Event{}, false, fmt.Errorf("check active storms: %w", err)
	}
	if len(existing) > 0 {
		return existing[0].storm(), false, nil
	}

	res, err := tx.ExecContext(ctx, `INSERT INTO storm_events
		(station_id, start_time, end_time, severity, title, description, resolved)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		ev.StationID, toMillis(ev.StartTime), toMillis(ev.EndTime),
		ev.Severity, ev.Title, ev.Description, ev.Resolved)
	if err != nil {
		return storm.Event{}, false, fmt.Errorf("insert storm: %w", err)
	}
	if ev.ID, err = res.LastInsertId(); err != nil {
		return storm.Event{}, false, err
	}

	if err := tx.Commit(); err != nil {
		return storm.Event{}, false, err
	}
	slog.Debug("storm recorded", "station", ev.StationID, "storm", ev.ID, "severity", ev.Severity)
	return ev, true, nil
}

// ResolveStorm marks a storm resolved.
func (db *DB) ResolveStorm(ctx context.Context, id int64) (storm.Event, error) {
	res, err := db.conn.ExecContext(ctx, "UPDATE storm_events SET resolved = 1 WHERE id = ?", id)
	if err != nil {
		return storm.Event{}, fmt.Errorf("resolve storm %d: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return storm.Event{}, fmt.Errorf("storm %d: %w", id, ErrNotFound)
	}
	return db.GetStorm(ctx, id)
}

// ResolveExpiredStorms marks every unresolved storm whose window has passed.
func (db *DB) ResolveExpiredStorms(ctx context.Context, now time.Time) (int, error) {
	res, err := db.conn.ExecContext(ctx,
		"UPDATE storm_events SET resolved = 1 WHERE resolved = 0 AND end_time < ?", toMillis(now))
	if err != nil {
		return 0, fmt.Errorf("resolve expired storms: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}
