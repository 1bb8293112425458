package economy

import (
	"strings"
	"testing"
)

func catalogByKind(t *testing.T) map[BuildingKind]BuildingType {
	t.Helper()
	types, err := DefaultCatalog()
	if err != nil {
		t.Fatalf("DefaultCatalog() error = %v", err)
	}
	byKind := make(map[BuildingKind]BuildingType, len(types))
	for _, bt := range types {
		byKind[bt.Kind] = bt
	}
	return byKind
}

func TestProduceNoBuildings(t *testing.T) {
	for _, h := range []float64{-1, 0, 1.0, 2.75, 5.0, 9.0} {
		if got := Produce(nil, h); !got.IsZero() {
			t.Errorf("Produce(nil, %v) = %s, want all zero", h, got)
		}
	}
}

func TestProduceScenarios(t *testing.T) {
	cat := catalogByKind(t)

	tests := []struct {
		name      string
		buildings []BuildingKind
		height    float64
		want      Resources
	}{
		{"fishing dock at high water", []BuildingKind{FishingDock}, 5.0, Resources{Fish: 21, Tourism: 0, Energy: 0}},
		{"beach resort at low water", []BuildingKind{BeachResort}, 1.0, Resources{Fish: 0, Tourism: 23, Energy: 0}},
		{"fishing dock at mid tide", []BuildingKind{FishingDock}, 2.75, Resources{Fish: 15}},
		{"fish bonus capped at half", []BuildingKind{FishingDock}, 9.0, Resources{Fish: 23}},
		{"power plant upkeep floors at zero", []BuildingKind{PowerPlant}, 2.75, Resources{Energy: 20}},
		{"seawall alone", []BuildingKind{Seawall}, 1.0, Resources{}},
		{
			"mixed city",
			[]BuildingKind{FishingDock, FishingDock, BeachResort, PowerPlant, House},
			2.75,
			Resources{Fish: 25, Tourism: 10, Energy: 12},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var types []BuildingType
			for _, k := range tt.buildings {
				types = append(types, cat[k])
			}
			if got := Produce(types, tt.height); got != tt.want {
				t.Errorf("Produce() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestProduceNeverNegative(t *testing.T) {
	heavy := BuildingType{Kind: PowerPlant, Production: Resources{Fish: -40, Tourism: -40, Energy: -40}}
	for h := -2.0; h <= 8.0; h += 0.25 {
		got := Produce([]BuildingType{heavy, heavy}, h)
		if got.Fish < 0 || got.Tourism < 0 || got.Energy < 0 {
			t.Fatalf("Produce at %.2f = %s, has negative field", h, got)
		}
	}
}

func TestTideBonus(t *testing.T) {
	fish, tourism := TideBonus(5.0)
	if fish < 0.428 || fish > 0.429 || tourism != 0 {
		t.Errorf("TideBonus(5.0) = %v, %v", fish, tourism)
	}
	fish, tourism = TideBonus(1.0)
	if fish != 0 || tourism != 0.5 {
		t.Errorf("TideBonus(1.0) = %v, %v, want 0, 0.5", fish, tourism)
	}
	fish, tourism = TideBonus(-5)
	if fish != 0 || tourism != 0.5 {
		t.Errorf("TideBonus(-5) = %v, %v, want 0, 0.5", fish, tourism)
	}
}

func TestDefaultCatalog(t *testing.T) {
	cat := catalogByKind(t)
	if len(cat) != len(AllBuildingKinds()) {
		t.Fatalf("catalog has %d kinds, want %d", len(cat), len(AllBuildingKinds()))
	}
	dock := cat[FishingDock]
	if dock.Production != (Resources{Fish: 15, Tourism: 0, Energy: -2}) {
		t.Errorf("fishing dock production = %s", dock.Production)
	}
	if cat[Seawall].Protection != 25 {
		t.Errorf("seawall protection = %d, want 25", cat[Seawall].Protection)
	}
}

func TestParseCatalogRejectsBadEntries(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{"unknown kind", "buildings:\n  - {kind: castle, name: Castle}\n", "unknown building kind"},
		{"negative cost", "buildings:\n  - {kind: house, name: House, cost: {fish: -1}}\n", "negative cost"},
		{"negative protection", "buildings:\n  - {kind: house, name: House, protection: -3}\n", "negative protection"},
		{"duplicate", "buildings:\n  - {kind: house, name: A}\n  - {kind: house, name: B}\n", "duplicate"},
		{"empty", "buildings: []\n", "no buildings"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseCatalog([]byte(tt.yaml))
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("ParseCatalog() error = %v, want containing %q", err, tt.want)
			}
		})
	}
}

func TestResourcesArithmetic(t *testing.T) {
	r := Resources{Fish: 10, Tourism: 5, Energy: 1}
	cost := Resources{Fish: 4, Tourism: 5, Energy: 2}
	if r.CanAfford(cost) {
		t.Error("CanAfford should fail on energy")
	}
	if got := r.Sub(cost).Floor(); got != (Resources{Fish: 6}) {
		t.Errorf("Sub().Floor() = %s", got)
	}
}
