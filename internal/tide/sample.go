// Package tide holds tide stations, tide samples and the pure calculator that
// turns a tide height into gameplay effects.
package tide

import (
	"fmt"
	"sort"
	"strconv"
	"time"
)

// Kind tags a sample as a local extremum of the tide curve.
type Kind string

const (
	KindHigh     Kind = "H"
	KindLow      Kind = "L"
	KindUnmarked Kind = ""
)

// Station is a tide-monitoring station a city can be founded at.
type Station struct {
	ID             string  `json:"stationId"`
	Name           string  `json:"name"`
	State          string  `json:"state,omitempty"`
	Latitude       float64 `json:"latitude"`
	Longitude      float64 `json:"longitude"`
	TimezoneOffset string  `json:"timezoneOffset,omitempty"`
}

// Location returns the station's fixed local zone, or UTC when the offset
// is unknown.
func (s Station) Location() *time.Location {
	hours, err := strconv.ParseFloat(s.TimezoneOffset, 64)
	if err != nil {
		return time.UTC
	}
	return time.FixedZone(fmt.Sprintf("UTC%+g", hours), int(hours*3600))
}

// Sample is one recorded water level. Immutable once recorded.
type Sample struct {
	ID         int64     `json:"id,omitempty"`
	StationID  string    `json:"stationId"`
	Time       time.Time `json:"timestamp"`
	Height     float64   `json:"height"` // feet relative to MLLW
	Kind       Kind      `json:"type,omitempty"`
	Prediction bool      `json:"prediction"`
}

// SortByTime orders samples chronologically in place.
func SortByTime(samples []Sample) {
	sort.SliceStable(samples, func(i, j int) bool {
		return samples[i].Time.Before(samples[j].Time)
	})
}

// OfKind returns the samples tagged with kind, preserving order.
func OfKind(samples []Sample, kind Kind) []Sample {
	var out []Sample
	for _, s := range samples {
		if s.Kind == kind {
			out = append(out, s)
		}
	}
	return out
}

// Next returns the earliest sample of the given kind strictly after now.
func Next(samples []Sample, kind Kind, now time.Time) (Sample, bool) {
	var best Sample
	found := false
	for _, s := range samples {
		if s.Kind != kind || !s.Time.After(now) {
			continue
		}
		if !found || s.Time.Before(best.Time) {
			best = s
			found = true
		}
	}
	return best, found
}

// Highest returns the tallest sample of the given kind.
func Highest(samples []Sample, kind Kind) (Sample, bool) {
	var best Sample
	found := false
	for _, s := range samples {
		if s.Kind != kind {
			continue
		}
		if !found || s.Height > best.Height {
			best = s
			found = true
		}
	}
	return best, found
}

// Lowest returns the shallowest sample of the given kind.
func Lowest(samples []Sample, kind Kind) (Sample, bool) {
	var best Sample
	found := false
	for _, s := range samples {
		if s.Kind != kind {
			continue
		}
		if !found || s.Height < best.Height {
			best = s
			found = true
		}
	}
	return best, found
}

// Trend reports whether the water is rising or falling at now, judged by
// which extremum comes next. Without upcoming extrema it returns LevelNormal.
func Trend(samples []Sample, now time.Time) Level {
	high, okHigh := Next(samples, KindHigh, now)
	low, okLow := Next(samples, KindLow, now)
	switch {
	case okHigh && (!okLow || high.Time.Before(low.Time)):
		return LevelRising
	case okLow:
		return LevelFalling
	}
	return LevelNormal
}
