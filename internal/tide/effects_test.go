package tide

import (
	"testing"
	"time"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		height float64
		want   Level
	}{
		{4.0, LevelHigh},
		{6.2, LevelHigh},
		{1.5, LevelLow},
		{-0.4, LevelLow},
		{2.75, LevelNormal},
		{3.99, LevelNormal},
		{1.51, LevelNormal},
	}

	for _, tt := range tests {
		if got := Classify(tt.height); got != tt.want {
			t.Errorf("Classify(%v) = %s, want %s", tt.height, got, tt.want)
		}
	}
}

func TestFishingEffect(t *testing.T) {
	tests := []struct {
		height float64
		want   int
	}{
		{2.75, 0},
		{3.5, 0},
		{2.0, 0},
		{4.0, 10},
		{5.0, 30},
		{6.0, 30},
		{1.0, -8},
		{0.0, -15},
		{-3.0, -15},
	}

	for _, tt := range tests {
		if got := FishingEffect(tt.height); got != tt.want {
			t.Errorf("FishingEffect(%v) = %d, want %d", tt.height, got, tt.want)
		}
	}
}

func TestTourismEffect(t *testing.T) {
	tests := []struct {
		height float64
		want   int
	}{
		{2.75, 0},
		{1.0, 17},
		{0.5, 25},
		{0.0, 25},
		{4.25, -5},
		{5.0, -10},
		{7.0, -10},
	}

	for _, tt := range tests {
		if got := TourismEffect(tt.height); got != tt.want {
			t.Errorf("TourismEffect(%v) = %d, want %d", tt.height, got, tt.want)
		}
	}
}

func TestEffectsStayWithinCaps(t *testing.T) {
	for h := 0.0; h <= 6.0; h += 0.01 {
		if f := FishingEffect(h); f < -15 || f > 30 {
			t.Fatalf("FishingEffect(%.2f) = %d, outside [-15, 30]", h, f)
		}
		if tr := TourismEffect(h); tr < -10 || tr > 25 {
			t.Fatalf("TourismEffect(%.2f) = %d, outside [-10, 25]", h, tr)
		}
	}
}

func TestIsExtreme(t *testing.T) {
	tests := []struct {
		height   float64
		extreme  bool
		level    Level
		severity int
	}{
		{5.5, true, LevelHigh, 0},
		{6.0, true, LevelHigh, 1},
		{9.0, true, LevelHigh, 3},
		{0.5, true, LevelLow, 0},
		{0.1, true, LevelLow, 2},
		{-2.0, true, LevelLow, 3},
		{3.0, false, LevelNormal, 0},
	}

	for _, tt := range tests {
		got := IsExtreme(tt.height)
		if got.IsExtreme != tt.extreme || got.Level != tt.level || got.Severity != tt.severity {
			t.Errorf("IsExtreme(%v) = %+v, want extreme=%v level=%s severity=%d",
				tt.height, got, tt.extreme, tt.level, tt.severity)
		}
	}
}

func TestStormDamagePotential(t *testing.T) {
	tests := []struct {
		severity int
		height   float64
		want     int
	}{
		{1, 2.0, 5},
		{2, 3.0, 11},
		{4, 4.0, 26},
		{5, 5.0, 38},
		{5, 8.0, 38},
	}

	for _, tt := range tests {
		if got := StormDamagePotential(tt.severity, tt.height); got != tt.want {
			t.Errorf("StormDamagePotential(%d, %v) = %d, want %d", tt.severity, tt.height, got, tt.want)
		}
	}
}

func TestDescribe(t *testing.T) {
	tests := []struct {
		height float64
		want   string
	}{
		{5.6, "Extreme High Tide"},
		{4.6, "Very High Tide"},
		{3.6, "High Tide"},
		{2.5, "Medium Tide"},
		{1.2, "Low Tide"},
		{0.3, "Very Low Tide"},
	}

	for _, tt := range tests {
		if got := Describe(tt.height); got != tt.want {
			t.Errorf("Describe(%v) = %q, want %q", tt.height, got, tt.want)
		}
	}
}

func TestAssess(t *testing.T) {
	impact := Assess(5.0)
	if impact.Level != LevelHigh {
		t.Errorf("Level = %s, want high", impact.Level)
	}
	if impact.FishingEffect != 30 || impact.TourismEffect != -10 {
		t.Errorf("effects = %d/%d, want 30/-10", impact.FishingEffect, impact.TourismEffect)
	}
	if impact.Extreme.IsExtreme {
		t.Error("5.0 ft should not be extreme")
	}
}

func TestNextAndTrend(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	samples := []Sample{
		{Time: now.Add(-2 * time.Hour), Kind: KindHigh, Height: 4.1},
		{Time: now.Add(3 * time.Hour), Kind: KindLow, Height: 0.8},
		{Time: now.Add(9 * time.Hour), Kind: KindHigh, Height: 4.6},
		{Time: now.Add(15 * time.Hour), Kind: KindLow, Height: 0.2},
	}

	high, ok := Next(samples, KindHigh, now)
	if !ok || high.Height != 4.6 {
		t.Errorf("Next high = %+v (ok=%v), want 4.6", high, ok)
	}
	low, ok := Next(samples, KindLow, now)
	if !ok || low.Height != 0.8 {
		t.Errorf("Next low = %+v (ok=%v), want 0.8", low, ok)
	}

	if got := Trend(samples, now); got != LevelFalling {
		t.Errorf("Trend = %s, want falling", got)
	}
	if got := Trend(samples, now.Add(4*time.Hour)); got != LevelRising {
		t.Errorf("Trend after low = %s, want rising", got)
	}
	if got := Trend(samples, now.Add(24*time.Hour)); got != LevelNormal {
		t.Errorf("Trend with no upcoming extrema = %s, want normal", got)
	}

	if h, _ := Highest(samples, KindHigh); h.Height != 4.6 {
		t.Errorf("Highest = %v, want 4.6", h.Height)
	}
	if l, _ := Lowest(samples, KindLow); l.Height != 0.2 {
		t.Errorf("Lowest = %v, want 0.2", l.Height)
	}
}
