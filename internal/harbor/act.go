package harbor

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/talgya/tidewater/internal/engine"
	"github.com/talgya/tidewater/internal/storm"
)

// CycleRun is the answer to POST /api/admin/cycle.
type CycleRun struct {
	Cycle  string             `json:"cycle"`
	Result engine.CycleResult `json:"result"`
}

// Actor calls the admin endpoints with the bearer admin key.
type Actor struct {
	BaseURL    string
	AdminKey   string
	HTTPClient *http.Client
}

// NewActor creates an Actor targeting the given API base URL with admin auth.
func NewActor(baseURL, adminKey string) *Actor {
	return &Actor{
		BaseURL:  baseURL,
		AdminKey: adminKey,
		HTTPClient: &http.Client{
			Timeout: 2 * time.Minute,
		},
	}
}

var errNoAdminKey = errors.New("admin key is required")

// RunCycle triggers a resource tick and storm check for every city.
func (a *Actor) RunCycle(ctx context.Context) (CycleRun, error) {
	var run CycleRun
	if a.AdminKey == "" {
		return run, errNoAdminKey
	}
	err := do(ctx, a.HTTPClient, http.MethodPost, a.BaseURL+"/api/admin/cycle", a.AdminKey, &run)
	return run, err
}

// ResolveStorm ends a storm early.
func (a *Actor) ResolveStorm(ctx context.Context, id int64) (storm.Event, error) {
	var ev storm.Event
	if a.AdminKey == "" {
		return ev, errNoAdminKey
	}
	url := a.BaseURL + "/api/admin/storms/" + strconv.FormatInt(id, 10) + "/resolve"
	err := do(ctx, a.HTTPClient, http.MethodPost, url, a.AdminKey, &ev)
	return ev, err
}
