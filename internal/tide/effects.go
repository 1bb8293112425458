package tide

import "math"

// Level classifies a tide height for display.
type Level string

const (
	LevelHigh    Level = "high"
	LevelLow     Level = "low"
	LevelNormal  Level = "normal"
	LevelRising  Level = "rising"
	LevelFalling Level = "falling"
)

// Display thresholds, in feet.
const (
	classifyHigh = 4.0
	classifyLow  = 1.5

	fishingThreshold = 3.5
	tourismThreshold = 2.0
	effectSpan       = 1.5

	maxFishingBonus   = 30
	maxFishingPenalty = 15
	maxTourismBonus   = 25
	maxTourismPenalty = 10

	extremeHigh = 5.5
	extremeLow  = 0.5
	maxSeverity = 3
)

// floorEps absorbs binary noise so that exact decimal steps such as
// (0.5-0.1)/0.2 floor to the intended integer.
const floorEps = 1e-9

// Impact is the display-side summary of what a tide height means for a city.
type Impact struct {
	Height        float64 `json:"height"`
	Level         Level   `json:"tideType"`
	FishingEffect int     `json:"fishingEffect"` // percent
	TourismEffect int     `json:"tourismEffect"` // percent
	Extreme       Extreme `json:"extreme"`
	Description   string  `json:"description"`
}

// Extreme describes an exceptionally high or low tide.
type Extreme struct {
	IsExtreme bool  `json:"isExtreme"`
	Level     Level `json:"type"`
	Severity  int   `json:"severityLevel"` // 0-3
}

// Assess bundles every display effect for a height.
func Assess(height float64) Impact {
	return Impact{
		Height:        height,
		Level:         Classify(height),
		FishingEffect: FishingEffect(height),
		TourismEffect: TourismEffect(height),
		Extreme:       IsExtreme(height),
		Description:   Describe(height),
	}
}

// Classify labels a height as high, low or normal.
func Classify(height float64) Level {
	switch {
	case height >= classifyHigh:
		return LevelHigh
	case height <= classifyLow:
		return LevelLow
	}
	return LevelNormal
}

// FishingEffect is the percent change to fishing shown to the player.
// High water helps, low water hurts.
func FishingEffect(height float64) int {
	switch {
	case height > fishingThreshold:
		return int(math.Round(math.Min(maxFishingBonus, (height-fishingThreshold)/effectSpan*maxFishingBonus)))
	case height < tourismThreshold:
		return -int(math.Round(math.Min(maxFishingPenalty, (tourismThreshold-height)/2.0*maxFishingPenalty)))
	}
	return 0
}

// TourismEffect is the percent change to tourism shown to the player.
// Low water opens the beaches, high water closes them.
func TourismEffect(height float64) int {
	switch {
	case height < tourismThreshold:
		return int(math.Round(math.Min(maxTourismBonus, (tourismThreshold-height)/effectSpan*maxTourismBonus)))
	case height > fishingThreshold:
		return -int(math.Round(math.Min(maxTourismPenalty, (height-fishingThreshold)/effectSpan*maxTourismPenalty)))
	}
	return 0
}

// IsExtreme reports whether a height is exceptional and how severe it is.
func IsExtreme(height float64) Extreme {
	if height >= extremeHigh {
		sev := int(math.Floor((height-extremeHigh)/0.5 + floorEps))
		return Extreme{IsExtreme: true, Level: LevelHigh, Severity: min(maxSeverity, sev)}
	}
	if height <= extremeLow {
		sev := int(math.Floor((extremeLow-height)/0.2 + floorEps))
		return Extreme{IsExtreme: true, Level: LevelLow, Severity: min(maxSeverity, sev)}
	}
	return Extreme{Level: LevelNormal}
}

// StormDamagePotential estimates how hard a storm of the given severity (1-5)
// hits at this water level.
func StormDamagePotential(severity int, height float64) int {
	multiplier := 1.0
	switch {
	case height >= 5.0:
		multiplier = 1.5
	case height >= 4.0:
		multiplier = 1.3
	case height >= 3.0:
		multiplier = 1.1
	}
	return int(math.Round(float64(severity*5) * multiplier))
}

// Describe gives a short human label for a height.
func Describe(height float64) string {
	switch {
	case height >= 5.5:
		return "Extreme High Tide"
	case height >= 4.5:
		return "Very High Tide"
	case height >= 3.5:
		return "High Tide"
	case height >= 2.0:
		return "Medium Tide"
	case height >= 1.0:
		return "Low Tide"
	}
	return "Very Low Tide"
}
