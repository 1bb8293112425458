// Package noaa provides tide data from the NOAA CO-OPS API, an offline
// synthetic tide model with the same shape, and the built-in station list.
package noaa

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/talgya/tidewater/internal/tide"
)

const (
	defaultBaseURL = "https://api.tidesandcurrents.noaa.gov/api/prod/datagetter"
	application    = "Tidewater"

	// NOAA returns minute-resolution timestamps in this layout.
	timeLayout = "2006-01-02 15:04"
)

// ErrNoData is returned when NOAA answers without any usable samples.
var ErrNoData = errors.New("no tide data")

// Client fetches water levels and high/low predictions from NOAA CO-OPS.
// Responses are cached briefly and repeated failures back off.
type Client struct {
	baseURL    string
	httpClient *http.Client

	mu          sync.Mutex
	cache       map[string]cached
	cacheTTL    time.Duration
	lastFailAt  time.Time
	failBackoff time.Duration
}

type cached struct {
	samples []tide.Sample
	at      time.Time
}

// NewClient creates a NOAA client with the given request timeout.
func NewClient(timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL:    defaultBaseURL,
		httpClient: &http.Client{Timeout: timeout},
		cache:      make(map[string]cached),
		cacheTTL:   5 * time.Minute,
	}
}

// CurrentHeight returns the latest observed water level at a station.
func (c *Client) CurrentHeight(ctx context.Context, stationID string) (tide.Sample, error) {
	params := url.Values{}
	params.Add("date", "latest")
	params.Add("product", "water_level")

	samples, err := c.fetch(ctx, stationID, params, false)
	if err != nil {
		return tide.Sample{}, err
	}
	return samples[len(samples)-1], nil
}

// Predictions returns high/low predictions covering days whole days from
// start's calendar date.
func (c *Client) Predictions(ctx context.Context, stationID string, start time.Time, days int) ([]tide.Sample, error) {
	if days < 1 {
		days = 1
	}
	start = start.UTC()
	params := url.Values{}
	params.Add("begin_date", start.Format("20060102"))
	params.Add("end_date", start.AddDate(0, 0, days).Format("20060102"))
	params.Add("product", "predictions")
	params.Add("interval", "hilo")

	return c.fetch(ctx, stationID, params, true)
}

func (c *Client) fetch(ctx context.Context, stationID string, params url.Values, prediction bool) ([]tide.Sample, error) {
	params.Add("station", stationID)
	params.Add("datum", "MLLW")
	params.Add("time_zone", "gmt")
	params.Add("units", "english")
	params.Add("format", "json")
	params.Add("application", application)
	key := params.Encode()

	c.mu.Lock()
	defer c.mu.Unlock()

	if hit, ok := c.cache[key]; ok && time.Since(hit.at) < c.cacheTTL {
		return hit.samples, nil
	}

	// Back off on repeated failures, up to 10 minutes.
	if c.failBackoff > 0 && time.Since(c.lastFailAt) < c.failBackoff {
		return nil, fmt.Errorf("noaa backoff (%s remaining)", c.failBackoff-time.Since(c.lastFailAt))
	}

	samples, err := c.request(ctx, stationID, key, prediction)
	if err != nil {
		c.lastFailAt = time.Now()
		if c.failBackoff == 0 {
			c.failBackoff = time.Minute
		} else if c.failBackoff < 10*time.Minute {
			c.failBackoff *= 2
		}
		return nil, err
	}

	c.cache[key] = cached{samples: samples, at: time.Now()}
	c.failBackoff = 0
	return samples, nil
}

func (c *Client) request(ctx context.Context, stationID, query string, prediction bool) ([]tide.Sample, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+query, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch tide data: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read tide response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("noaa API error %d: %s", resp.StatusCode, truncate(string(body), 200))
	}

	var payload response
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("decode tide response: %w", err)
	}
	if payload.Error != nil {
		return nil, fmt.Errorf("station %s: %s: %w", stationID, payload.Error.Message, ErrNoData)
	}

	points := payload.Data
	if prediction {
		points = payload.Predictions
	}

	samples := make([]tide.Sample, 0, len(points))
	for _, p := range points {
		at, err := time.ParseInLocation(timeLayout, p.Time, time.UTC)
		if err != nil {
			continue
		}
		height, err := strconv.ParseFloat(p.Value, 64)
		if err != nil {
			continue
		}
		samples = append(samples, tide.Sample{
			StationID:  stationID,
			Time:       at,
			Height:     height,
			Kind:       tide.Kind(p.Type),
			Prediction: prediction,
		})
	}
	if len(samples) == 0 {
		return nil, fmt.Errorf("station %s: %w", stationID, ErrNoData)
	}

	slog.Debug("noaa fetched", "station", stationID, "prediction", prediction, "samples", len(samples))
	return samples, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// CO-OPS datagetter response. Water levels arrive under "data",
// predictions under "predictions"; values are strings.
type response struct {
	Metadata struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	} `json:"metadata"`
	Data        []point `json:"data"`
	Predictions []point `json:"predictions"`
	Error       *struct {
		Message string `json:"message"`
	} `json:"error"`
}

type point struct {
	Time  string `json:"t"`
	Value string `json:"v"`
	Type  string `json:"type"`
}
