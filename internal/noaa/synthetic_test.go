package noaa

import (
	"context"
	"testing"
	"time"

	"github.com/talgya/tidewater/internal/tide"
)

func TestSyntheticPredictions(t *testing.T) {
	s := NewSynthetic(42)
	start := time.Date(2025, 11, 27, 0, 0, 0, 0, time.UTC)

	got, err := s.Predictions(context.Background(), "9414290", start, 1)
	if err != nil {
		t.Fatalf("Predictions() error = %v", err)
	}

	// Two days of a semidiurnal tide carry roughly four extremes a day.
	highs := tide.OfKind(got, tide.KindHigh)
	lows := tide.OfKind(got, tide.KindLow)
	if len(highs) < 3 || len(lows) < 3 {
		t.Fatalf("highs=%d lows=%d, want at least 3 each", len(highs), len(lows))
	}

	for i, p := range got {
		if !p.Prediction || p.StationID != "9414290" {
			t.Errorf("sample %d = %+v", i, p)
		}
		if p.Height < 0 {
			t.Errorf("negative height %v", p.Height)
		}
		if i > 0 && !p.Time.After(got[i-1].Time) {
			t.Error("predictions not strictly ordered")
		}
		if i > 0 && p.Kind == got[i-1].Kind {
			t.Errorf("extremes do not alternate at %d", i)
		}
	}
}

func TestSyntheticIsDeterministic(t *testing.T) {
	at := time.Date(2025, 11, 27, 12, 3, 0, 0, time.UTC)
	a, b := NewSynthetic(7), NewSynthetic(7)
	a.now = func() time.Time { return at }
	b.now = func() time.Time { return at }

	ha, _ := a.CurrentHeight(context.Background(), "8443970")
	hb, _ := b.CurrentHeight(context.Background(), "8443970")
	if ha != hb {
		t.Errorf("same seed gave %+v and %+v", ha, hb)
	}
	if !ha.Time.Equal(time.Date(2025, 11, 27, 12, 0, 0, 0, time.UTC)) {
		t.Errorf("Time = %v, want six-minute mark", ha.Time)
	}
	if ha.Prediction || ha.Kind != tide.KindUnmarked {
		t.Errorf("current reading = %+v", ha)
	}

	other, _ := a.CurrentHeight(context.Background(), "9414290")
	if other.Height == ha.Height {
		t.Log("two stations share a height; harmonics may coincide")
	}
}
