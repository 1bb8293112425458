// Package economy provides the city resource bundle, the building catalog and
// the tide-modulated production model.
package economy

import "fmt"

// Resources is a city's stockpile of the three tide economy resources.
// The same shape carries building costs and per-tick production, where
// entries may be negative (upkeep).
type Resources struct {
	Fish    int `json:"fish" yaml:"fish" db:"fish"`
	Tourism int `json:"tourism" yaml:"tourism" db:"tourism"`
	Energy  int `json:"energy" yaml:"energy" db:"energy"`
}

// Add returns r + o.
func (r Resources) Add(o Resources) Resources {
	return Resources{
		Fish:    r.Fish + o.Fish,
		Tourism: r.Tourism + o.Tourism,
		Energy:  r.Energy + o.Energy,
	}
}

// Sub returns r - o.
func (r Resources) Sub(o Resources) Resources {
	return Resources{
		Fish:    r.Fish - o.Fish,
		Tourism: r.Tourism - o.Tourism,
		Energy:  r.Energy - o.Energy,
	}
}

// Floor clamps every entry at zero. A stockpile can never owe resources.
func (r Resources) Floor() Resources {
	return Resources{
		Fish:    max(0, r.Fish),
		Tourism: max(0, r.Tourism),
		Energy:  max(0, r.Energy),
	}
}

// CanAfford reports whether the stockpile covers cost in every resource.
func (r Resources) CanAfford(cost Resources) bool {
	return r.Fish >= cost.Fish && r.Tourism >= cost.Tourism && r.Energy >= cost.Energy
}

// IsZero reports whether all entries are zero.
func (r Resources) IsZero() bool {
	return r == Resources{}
}

func (r Resources) String() string {
	return fmt.Sprintf("fish=%d tourism=%d energy=%d", r.Fish, r.Tourism, r.Energy)
}
