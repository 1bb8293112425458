// Package city defines player cities, their placed buildings and the
// notification log attached to each city.
package city

import (
	"encoding/json"
	"time"

	"github.com/talgya/tidewater/internal/economy"
)

// City is a player's settlement founded at a tide station.
type City struct {
	ID          int64             `json:"id"`
	OwnerID     int64             `json:"userId"`
	Name        string            `json:"name"`
	StationID   string            `json:"stationId"`
	Resources   economy.Resources `json:"resources"`
	LastUpdated time.Time         `json:"lastUpdated"`
	CreatedAt   time.Time         `json:"createdAt"`
}

// Position is a cell on the city grid.
type Position struct {
	X int `json:"posX"`
	Y int `json:"posY"`
}

// Building is a placed instance of a building type.
type Building struct {
	ID        int64                `json:"id"`
	CityID    int64                `json:"cityId"`
	TypeID    int64                `json:"buildingTypeId"`
	Position                       // grid cell, unique per city
	Health    int                  `json:"health"` // 0-100
	CreatedAt time.Time            `json:"createdAt"`
	Type      economy.BuildingType `json:"type"`
}

// MaxHealth is the health of a freshly built building.
const MaxHealth = 100

// Types returns the building type of each building, one entry per building.
func Types(buildings []Building) []economy.BuildingType {
	out := make([]economy.BuildingType, len(buildings))
	for i, b := range buildings {
		out[i] = b.Type
	}
	return out
}

// CountByKind tallies buildings per kind.
func CountByKind(buildings []Building) map[economy.BuildingKind]int {
	counts := make(map[economy.BuildingKind]int)
	for _, b := range buildings {
		counts[b.Type.Kind]++
	}
	return counts
}

// Occupied reports whether any building sits at pos.
func Occupied(buildings []Building, pos Position) bool {
	for _, b := range buildings {
		if b.Position == pos {
			return true
		}
	}
	return false
}

// EventType tags a notification.
type EventType string

const (
	EventWelcome     EventType = "welcome"
	EventConstructed EventType = "building_constructed"
	EventStormSurge  EventType = "storm_surge"
	EventBulletin    EventType = "mayoral_bulletin"
)

// Event is an entry in a city's append-only notification log. Only the read
// flag ever changes after it is recorded.
type Event struct {
	ID        int64           `json:"id"`
	CityID    int64           `json:"cityId"`
	Type      EventType       `json:"type"`
	Title     string          `json:"title"`
	Message   string          `json:"message"`
	Data      json.RawMessage `json:"data,omitempty"`
	Read      bool            `json:"read"`
	CreatedAt time.Time       `json:"createdAt"`
}

// EventData marshals a payload for Event.Data. Nil yields an empty object.
func EventData(v any) json.RawMessage {
	if v == nil {
		return json.RawMessage(`{}`)
	}
	data, err := json.Marshal(v)
	if err != nil {
		return json.RawMessage(`{}`)
	}
	return data
}
