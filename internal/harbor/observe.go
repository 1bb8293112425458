// Package harbor is the operator client for a running tidewater server. The
// Observer reads public state; the Actor drives the admin endpoints.
package harbor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/talgya/tidewater/internal/city"
	"github.com/talgya/tidewater/internal/engine"
	"github.com/talgya/tidewater/internal/tide"
)

// Status mirrors GET /api/status.
type Status struct {
	Name     string                    `json:"name"`
	Uptime   string                    `json:"uptime"`
	Cities   int                       `json:"cities"`
	Stations int                       `json:"stations"`
	Tasks    map[string]engine.TaskRun `json:"tasks"`
}

// APIError is a non-2xx answer from the server.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("server answered %d: %s", e.StatusCode, e.Message)
}

// Observer fetches game state from the API.
type Observer struct {
	BaseURL    string
	HTTPClient *http.Client
}

// NewObserver creates an Observer targeting the given API base URL.
func NewObserver(baseURL string) *Observer {
	return &Observer{
		BaseURL: baseURL,
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// Status fetches the server summary.
func (o *Observer) Status(ctx context.Context) (Status, error) {
	var s Status
	err := do(ctx, o.HTTPClient, http.MethodGet, o.BaseURL+"/api/status", "", &s)
	return s, err
}

// Stations lists the tide stations.
func (o *Observer) Stations(ctx context.Context) ([]tide.Station, error) {
	var out []tide.Station
	err := do(ctx, o.HTTPClient, http.MethodGet, o.BaseURL+"/api/stations", "", &out)
	return out, err
}

// Station fetches a station with its current level and next tides.
func (o *Observer) Station(ctx context.Context, id string) (engine.StationReport, error) {
	var r engine.StationReport
	err := do(ctx, o.HTTPClient, http.MethodGet, o.BaseURL+"/api/stations/"+id, "", &r)
	return r, err
}

// City fetches a city dashboard.
func (o *Observer) City(ctx context.Context, id int64) (engine.CityReport, error) {
	var r engine.CityReport
	err := do(ctx, o.HTTPClient, http.MethodGet, o.BaseURL+"/api/cities/"+strconv.FormatInt(id, 10), "", &r)
	return r, err
}

// Events fetches a city's newest events. A non-positive limit uses the
// server default.
func (o *Observer) Events(ctx context.Context, cityID int64, limit int) ([]city.Event, error) {
	url := o.BaseURL + "/api/cities/" + strconv.FormatInt(cityID, 10) + "/events"
	if limit > 0 {
		url += "?limit=" + strconv.Itoa(limit)
	}
	var out []city.Event
	err := do(ctx, o.HTTPClient, http.MethodGet, url, "", &out)
	return out, err
}

// WaitReady polls the status endpoint with exponential backoff until it
// answers or ctx ends.
func (o *Observer) WaitReady(ctx context.Context) error {
	backoff := 500 * time.Millisecond
	const maxBackoff = 30 * time.Second
	for {
		_, err := o.Status(ctx)
		if err == nil {
			return nil
		}
		slog.Info("tidewater not ready, retrying", "backoff", backoff, "error", err)
		select {
		case <-ctx.Done():
			return fmt.Errorf("wait for API: %w", ctx.Err())
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}

// do sends a request and decodes a JSON answer into out. An empty token
// sends no Authorization header.
func do(ctx context.Context, client *http.Client, method, url, token string, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, url, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, url, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{StatusCode: resp.StatusCode, Message: string(body)}
		var payload struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(body, &payload) == nil && payload.Error != "" {
			apiErr.Message = payload.Error
		}
		return apiErr
	}
	if out == nil || len(body) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// IsNotFound reports whether err is a 404 from the server.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}
