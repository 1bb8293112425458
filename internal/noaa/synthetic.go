package noaa

import (
	"context"
	"hash/fnv"
	"math"
	"time"

	opensimplex "github.com/ojrac/opensimplex-go"

	"github.com/talgya/tidewater/internal/tide"
)

// Principal semidiurnal constituents.
const (
	periodM2 = 12.4206 // hours, lunar
	periodS2 = 12.0    // hours, solar

	step = 6 * time.Minute
)

// Synthetic is an offline tide model: an M2/S2 harmonic tide per station
// with an occasional simplex-noise surge on top. The same seed and clock
// always yield the same water.
type Synthetic struct {
	noise opensimplex.Noise
	now   func() time.Time
}

// NewSynthetic returns a synthetic provider seeded with seed.
func NewSynthetic(seed int64) *Synthetic {
	return &Synthetic{
		noise: opensimplex.NewNormalized(seed),
		now:   time.Now,
	}
}

type harmonics struct {
	mean, ampM2, ampS2 float64
	phaseM2, phaseS2   float64
	offset             float64 // noise-space coordinate per station
}

func stationHarmonics(stationID string) harmonics {
	h := fnv.New64a()
	h.Write([]byte(stationID))
	v := h.Sum64()

	frac := func(shift uint) float64 { return float64((v>>shift)&0xffff) / 0xffff }
	return harmonics{
		mean:    2.5 + frac(0)*1.5,
		ampM2:   1.8 + frac(16)*1.2,
		ampS2:   0.3 + frac(32)*0.4,
		phaseM2: frac(48) * 2 * math.Pi,
		phaseS2: frac(8) * 2 * math.Pi,
		offset:  frac(24) * 1000,
	}
}

// heightAt returns the modelled water level in feet above MLLW.
func (s *Synthetic) heightAt(h harmonics, t time.Time) float64 {
	hours := float64(t.Unix()) / 3600
	level := h.mean +
		h.ampM2*math.Cos(2*math.Pi*hours/periodM2+h.phaseM2) +
		h.ampS2*math.Cos(2*math.Pi*hours/periodS2+h.phaseS2)

	// Surge: slow fractal noise that only bites above 0.7.
	n := octaveNoise(s.noise, hours/72, h.offset, 3, 1, 0.5)
	if n > 0.7 {
		level += (n - 0.7) * 12
	}
	return math.Max(0, level)
}

// CurrentHeight returns the modelled level at the current six-minute mark.
func (s *Synthetic) CurrentHeight(_ context.Context, stationID string) (tide.Sample, error) {
	at := s.now().UTC().Truncate(step)
	return tide.Sample{
		StationID: stationID,
		Time:      at,
		Height:    round3(s.heightAt(stationHarmonics(stationID), at)),
	}, nil
}

// Predictions returns the highs and lows of the model for days whole days
// from start's calendar date.
func (s *Synthetic) Predictions(_ context.Context, stationID string, start time.Time, days int) ([]tide.Sample, error) {
	if days < 1 {
		days = 1
	}
	h := stationHarmonics(stationID)
	from := start.UTC().Truncate(24 * time.Hour)
	to := from.AddDate(0, 0, days+1)

	var out []tide.Sample
	prev := s.heightAt(h, from.Add(-step))
	cur := s.heightAt(h, from)
	for t := from; t.Before(to); t = t.Add(step) {
		next := s.heightAt(h, t.Add(step))
		var kind tide.Kind
		switch {
		case cur > prev && cur >= next:
			kind = tide.KindHigh
		case cur < prev && cur <= next:
			kind = tide.KindLow
		}
		if kind != tide.KindUnmarked {
			out = append(out, tide.Sample{
				StationID:  stationID,
				Time:       t,
				Height:     round3(cur),
				Kind:       kind,
				Prediction: true,
			})
		}
		prev, cur = cur, next
	}
	if len(out) == 0 {
		return nil, ErrNoData
	}
	return out, nil
}

func round3(v float64) float64 { return math.Round(v*1000) / 1000 }

// octaveNoise layers several frequencies of simplex noise into [0, 1].
func octaveNoise(noise opensimplex.Noise, x, y float64, octaves int, frequency, persistence float64) float64 {
	total := 0.0
	amplitude := 1.0
	maxVal := 0.0

	for i := 0; i < octaves; i++ {
		total += noise.Eval2(x*frequency, y*frequency) * amplitude
		maxVal += amplitude
		amplitude *= persistence
		frequency *= 2
	}

	return total / maxVal
}
