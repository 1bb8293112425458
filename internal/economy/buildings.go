package economy

import (
	_ "embed"
	"fmt"

	"gopkg.in/yaml.v3"
)

// BuildingKind is the fixed set of things a player can build.
type BuildingKind string

const (
	FishingDock BuildingKind = "fishing_dock"
	BeachResort BuildingKind = "beach_resort"
	Lighthouse  BuildingKind = "lighthouse"
	Seawall     BuildingKind = "seawall"
	House       BuildingKind = "house"
	PowerPlant  BuildingKind = "power_plant"
)

// AllBuildingKinds lists every kind in catalog order.
func AllBuildingKinds() []BuildingKind {
	return []BuildingKind{FishingDock, BeachResort, Lighthouse, Seawall, House, PowerPlant}
}

// Valid reports whether k is a known building kind.
func (k BuildingKind) Valid() bool {
	for _, known := range AllBuildingKinds() {
		if k == known {
			return true
		}
	}
	return false
}

// BuildingType is static reference data: what a building costs, what it
// yields each tick, and how much storm protection it offers.
type BuildingType struct {
	ID          int64        `json:"id" yaml:"-"`
	Kind        BuildingKind `json:"type" yaml:"kind"`
	Name        string       `json:"name" yaml:"name"`
	Description string       `json:"description" yaml:"description"`
	Icon        string       `json:"icon" yaml:"icon"`
	Cost        Resources    `json:"cost" yaml:"cost"`
	Production  Resources    `json:"production" yaml:"production"`
	Protection  int          `json:"protection" yaml:"protection"`
}

// Validate checks a catalog entry as it enters the system.
func (bt BuildingType) Validate() error {
	if !bt.Kind.Valid() {
		return fmt.Errorf("unknown building kind %q", bt.Kind)
	}
	if bt.Name == "" {
		return fmt.Errorf("building %s: missing name", bt.Kind)
	}
	if bt.Cost.Fish < 0 || bt.Cost.Tourism < 0 || bt.Cost.Energy < 0 {
		return fmt.Errorf("building %s: negative cost %s", bt.Kind, bt.Cost)
	}
	if bt.Protection < 0 {
		return fmt.Errorf("building %s: negative protection %d", bt.Kind, bt.Protection)
	}
	return nil
}

//go:embed catalog.yaml
var defaultCatalog []byte

type catalogFile struct {
	Buildings []BuildingType `yaml:"buildings"`
}

// DefaultCatalog returns the built-in building types.
func DefaultCatalog() ([]BuildingType, error) {
	return ParseCatalog(defaultCatalog)
}

// ParseCatalog decodes and validates a YAML building catalog.
// Each kind may appear at most once.
func ParseCatalog(data []byte) ([]BuildingType, error) {
	var f catalogFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("decode catalog: %w", err)
	}
	if len(f.Buildings) == 0 {
		return nil, fmt.Errorf("catalog has no buildings")
	}

	seen := make(map[BuildingKind]bool, len(f.Buildings))
	for _, bt := range f.Buildings {
		if err := bt.Validate(); err != nil {
			return nil, err
		}
		if seen[bt.Kind] {
			return nil, fmt.Errorf("duplicate building kind %q", bt.Kind)
		}
		seen[bt.Kind] = true
	}
	return f.Buildings, nil
}
