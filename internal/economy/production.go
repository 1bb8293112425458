// Tide-modulated production: high water boosts the catch, low water fills the
// beaches. This is the formula that actually moves stockpiles; the percent
// effects in package tide are display only.
package economy

import "math"

const (
	fishTideThreshold    = 3.5 // ft above which fishing earns a bonus
	tourismTideThreshold = 2.0 // ft below which tourism earns a bonus
	maxTideBonus         = 0.5
)

// TideBonus returns the fractional fish and tourism bonuses at a height.
func TideBonus(height float64) (fish, tourism float64) {
	fish = math.Min(maxTideBonus, math.Max(0, (height-fishTideThreshold)/fishTideThreshold))
	tourism = math.Min(maxTideBonus, math.Max(0, (tourismTideThreshold-height)/tourismTideThreshold))
	return fish, tourism
}

// Produce computes one tick of production for a city whose placed buildings
// have the given types (one entry per building). The result is never
// negative: upkeep can cancel output but never drains the stockpile.
func Produce(buildings []BuildingType, height float64) Resources {
	var sum Resources
	for _, bt := range buildings {
		sum = sum.Add(bt.Production)
	}

	fishBonus, tourismBonus := TideBonus(height)

	fish := float64(sum.Fish)
	tourism := float64(sum.Tourism)
	return Resources{
		Fish:    max(0, int(math.Round(fish+fishBonus*fish))),
		Tourism: max(0, int(math.Round(tourism+tourismBonus*tourism))),
		Energy:  max(0, sum.Energy),
	}
}
