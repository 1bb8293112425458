// Mayoral bulletins: a short in-character update for one city, composed by
// the LLM when available and by template otherwise.
package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/talgya/tidewater/internal/city"
	"github.com/talgya/tidewater/internal/economy"
	"github.com/talgya/tidewater/internal/storm"
	"github.com/talgya/tidewater/internal/tide"
)

// Tone steers the voice of a bulletin.
type Tone string

const (
	ToneConcerned   Tone = "concerned"
	ToneExcited     Tone = "excited"
	ToneOptimistic  Tone = "optimistic"
	ToneInformative Tone = "informative"
)

const (
	excitedHigh   = 5.0 // ft; a day high above this lifts the catch
	optimisticLow = 1.0 // ft; a day low below this fills the beaches

	maxTitleChars   = 39
	maxMessageWords = 199

	fallbackTitle = "Mayoral Update"
)

// TidePoint is a notable tide of the day, formatted for the prompt.
type TidePoint struct {
	Time   string `json:"time"`   // station-local clock time, "3:04 PM"
	Height string `json:"height"` // feet, one decimal

	feet float64
}

func newTidePoint(s tide.Sample, loc *time.Location) *TidePoint {
	return &TidePoint{
		Time:   s.Time.In(loc).Format("3:04 PM"),
		Height: strconv.FormatFloat(s.Height, 'f', 1, 64),
		feet:   s.Height,
	}
}

// StormBrief summarises the active storm for the prompt.
type StormBrief struct {
	Title       string `json:"title"`
	Severity    int    `json:"severity"`
	Description string `json:"description"`
}

// Context is everything the composer knows about a city.
type Context struct {
	CityName    string                       `json:"cityName"`
	StationName string                       `json:"stationName"`
	Resources   economy.Resources            `json:"resources"`
	Buildings   map[economy.BuildingKind]int `json:"buildings"`
	HighestTide *TidePoint                   `json:"highestTide"`
	LowestTide  *TidePoint                   `json:"lowestTide"`
	Storm       *StormBrief                  `json:"stormEvent"`
}

// BuildContext assembles a bulletin context from a city, its station, its
// buildings, the day's predictions and the station's active storms.
func BuildContext(c city.City, st tide.Station, buildings []city.Building, day []tide.Sample, active []storm.Event) Context {
	bc := Context{
		CityName:    c.Name,
		StationName: st.Name,
		Resources:   c.Resources,
		Buildings:   city.CountByKind(buildings),
	}
	loc := st.Location()
	if high, ok := tide.Highest(day, tide.KindHigh); ok {
		bc.HighestTide = newTidePoint(high, loc)
	}
	if low, ok := tide.Lowest(day, tide.KindLow); ok {
		bc.LowestTide = newTidePoint(low, loc)
	}
	if len(active) > 0 {
		s := active[0]
		bc.Storm = &StormBrief{Title: s.Title, Severity: s.Severity, Description: s.Description}
	}
	return bc
}

// SelectTone picks the bulletin voice. An active storm wins, then an
// exceptional high, then an exceptional low.
func SelectTone(bc Context) Tone {
	switch {
	case bc.Storm != nil:
		return ToneConcerned
	case bc.HighestTide != nil && bc.HighestTide.feet > excitedHigh:
		return ToneExcited
	case bc.LowestTide != nil && bc.LowestTide.feet < optimisticLow:
		return ToneOptimistic
	}
	return ToneInformative
}

// Bulletin is a composed mayoral update.
type Bulletin struct {
	Title    string `json:"title"`
	Message  string `json:"message"`
	Tone     Tone   `json:"tone"`
	Fallback bool   `json:"fallback"`
}

// Generator writes a bulletin for a context in the requested tone.
type Generator interface {
	Compose(ctx context.Context, bc Context, tone Tone) (Bulletin, error)
}

// Composer turns a context into a bulletin. It never fails: any generator
// problem yields a template bulletin naming the city.
type Composer struct {
	gen Generator
}

// NewComposer wraps gen. A nil generator always produces templates.
func NewComposer(gen Generator) *Composer {
	return &Composer{gen: gen}
}

// Compose selects a tone and asks the generator for a bulletin.
func (c *Composer) Compose(ctx context.Context, bc Context) Bulletin {
	tone := SelectTone(bc)
	if c == nil || c.gen == nil {
		return unavailable(bc.CityName, tone)
	}

	b, err := c.gen.Compose(ctx, bc, tone)
	switch {
	case errors.Is(err, ErrDisabled):
		return unavailable(bc.CityName, tone)
	case err != nil:
		slog.Warn("bulletin generation failed", "city", bc.CityName, "error", err)
		return failed(bc.CityName, tone)
	}

	if b.Title == "" {
		b.Title = fallbackTitle
	}
	if b.Message == "" {
		b.Message = unavailable(bc.CityName, tone).Message
	}
	b.Title = clipChars(b.Title, maxTitleChars)
	b.Message = clipWords(b.Message, maxMessageWords)
	b.Tone = tone
	return b
}

func unavailable(cityName string, tone Tone) Bulletin {
	return Bulletin{
		Title:    fallbackTitle,
		Message:  fmt.Sprintf("Citizens of %s, our tide conditions are changing! Monitor our resources carefully.", cityName),
		Tone:     tone,
		Fallback: true,
	}
}

func failed(cityName string, tone Tone) Bulletin {
	return Bulletin{
		Title: fallbackTitle,
		Message: fmt.Sprintf("Citizens of %s, our tide conditions continue to affect our city's productivity. "+
			"Please check the tide schedule and adjust your activities accordingly.", cityName),
		Tone:     tone,
		Fallback: true,
	}
}

func clipChars(s string, n int) string {
	r := []rune(strings.TrimSpace(s))
	if len(r) <= n {
		return string(r)
	}
	return strings.TrimSpace(string(r[:n]))
}

func clipWords(s string, n int) string {
	words := strings.Fields(s)
	if len(words) <= n {
		return strings.TrimSpace(s)
	}
	return strings.Join(words[:n], " ") + "..."
}

const bulletinSystem = `You are a coastal city mayor who provides updates about tide conditions and their impact on the city.
Your tone is %s. The city's economy is based on fishing (boosted by high tides) and tourism (boosted by low tides).
Respond with only a JSON object {"title": "...", "message": "..."}: a brief title (under 40 characters) and a message (under 200 words). No other text.`

// Compose implements Generator over the Messages API.
func (c *Client) Compose(ctx context.Context, bc Context, tone Tone) (Bulletin, error) {
	data, err := json.MarshalIndent(bc, "", "  ")
	if err != nil {
		return Bulletin{}, fmt.Errorf("marshal context: %w", err)
	}
	prompt := fmt.Sprintf("Generate a mayoral bulletin for the citizens of %s based on this data:\n%s", bc.CityName, data)

	text, err := c.Complete(ctx, fmt.Sprintf(bulletinSystem, tone), prompt, 600)
	if err != nil {
		return Bulletin{}, err
	}
	return parseBulletin(text)
}

// parseBulletin extracts the JSON object from a reply, tolerating code
// fences or chatter around it.
func parseBulletin(text string) (Bulletin, error) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end < start {
		return Bulletin{}, fmt.Errorf("no JSON object in reply: %q", clipChars(text, 80))
	}
	var b Bulletin
	if err := json.Unmarshal([]byte(text[start:end+1]), &b); err != nil {
		return Bulletin{}, fmt.Errorf("decode bulletin: %w", err)
	}
	return b, nil
}
