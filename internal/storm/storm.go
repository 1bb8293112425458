// Package storm detects storm surges from tide predictions and describes the
// storm events they raise.
package storm

import (
	"fmt"
	"math"
	"time"

	"github.com/talgya/tidewater/internal/tide"
)

const (
	// SurgeFactor is how far above the trailing average high a predicted
	// high must reach to count as a surge.
	SurgeFactor = 1.3

	// HistoryWindow is the default trailing window of samples to average.
	HistoryWindow = 7 * 24 * time.Hour

	// Aftermath is how long a storm stays active past the surge peak.
	Aftermath = 6 * time.Hour

	MinSeverity = 1
	MaxSeverity = 5

	Title = "Storm Surge Warning"
)

// Event is a storm affecting every city at a station.
type Event struct {
	ID          int64     `json:"id"`
	StationID   string    `json:"stationId"`
	StartTime   time.Time `json:"startTime"`
	EndTime     time.Time `json:"endTime"`
	Severity    int       `json:"severity"` // 1-5
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Resolved    bool      `json:"resolved"`
}

// ActiveAt reports whether the storm is unresolved and now lies in its window.
func (e Event) ActiveAt(now time.Time) bool {
	return !e.Resolved && !now.Before(e.StartTime) && !now.After(e.EndTime)
}

// Surge is the outcome of a positive detection.
type Surge struct {
	AverageHigh float64     // mean of historical highs
	Threshold   float64     // AverageHigh * SurgeFactor
	Peak        tide.Sample // highest qualifying prediction
	Qualifying  int         // number of predictions above threshold
}

// Detect compares upcoming high-tide predictions with the average of the
// historical highs. It reports a surge when any future high prediction
// exceeds that average by SurgeFactor. Without historical highs nothing
// can be detected.
func Detect(predictions, history []tide.Sample, now time.Time) (Surge, bool) {
	highs := tide.OfKind(history, tide.KindHigh)
	if len(highs) == 0 || len(predictions) == 0 {
		return Surge{}, false
	}

	total := 0.0
	for _, h := range highs {
		total += h.Height
	}
	avg := total / float64(len(highs))
	surge := Surge{AverageHigh: avg, Threshold: avg * SurgeFactor}

	for _, p := range predictions {
		if p.Kind != tide.KindHigh || !p.Time.After(now) || p.Height <= surge.Threshold {
			continue
		}
		if surge.Qualifying == 0 || p.Height > surge.Peak.Height {
			surge.Peak = p
		}
		surge.Qualifying++
	}
	return surge, surge.Qualifying > 0
}

// Severity maps a predicted surge height to the 1-5 storm scale.
func Severity(height float64) int {
	sev := int(math.Floor(height / 1.5))
	return max(MinSeverity, min(MaxSeverity, sev))
}

// Plan builds the storm event a surge raises. The storm starts now and ends
// Aftermath after the peak.
func Plan(stationID string, s Surge, now time.Time) Event {
	return Event{
		StationID: stationID,
		StartTime: now,
		EndTime:   s.Peak.Time.Add(Aftermath),
		Severity:  Severity(s.Peak.Height),
		Title:     Title,
		Description: fmt.Sprintf(
			"Unusually high tides of %.1f ft expected. Prepare for potential coastal flooding.",
			s.Peak.Height),
	}
}
