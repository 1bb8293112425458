// Package api serves the game over HTTP. Player endpoints are open; the
// admin endpoints under /api/admin require the bearer admin key.
package api

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/talgya/tidewater/internal/city"
	"github.com/talgya/tidewater/internal/engine"
)

const (
	defaultUserID = 1
	maxDays       = 30
	maxBodyBytes  = 1 << 20
)

// Server serves the game over HTTP.
type Server struct {
	Game      *engine.Game
	Scheduler *engine.Scheduler // optional; reported by /api/status
	Hub       *Hub              // optional; without it live sockets are refused
	Port      int
	AdminKey  string   // bearer token for admin endpoints; empty disables them
	Origins   []string // extra CORS origins

	// BulletinRate caps on-demand bulletins per client IP per hour.
	BulletinRate int

	started time.Time
	srv     *http.Server
}

// Handler builds the routed, CORS-wrapped handler.
func (s *Server) Handler() http.Handler {
	if s.started.IsZero() {
		s.started = time.Now()
	}
	rate := s.BulletinRate
	if rate <= 0 {
		rate = 30
	}
	bulletinLimiter := NewRateLimiter(rate, time.Hour)

	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/status", s.handleStatus)

	mux.HandleFunc("GET /api/stations", s.handleStations)
	mux.HandleFunc("GET /api/stations/{stationID}", s.handleStation)
	mux.HandleFunc("GET /api/stations/{stationID}/tides", s.handleTides)
	mux.HandleFunc("GET /api/stations/{stationID}/history", s.handleHistory)
	mux.HandleFunc("GET /api/stations/{stationID}/storms", s.handleStationStorms)

	mux.HandleFunc("GET /api/building-types", s.handleBuildingTypes)

	mux.HandleFunc("GET /api/cities", s.handleCities)
	mux.HandleFunc("POST /api/cities", s.handleCreateCity)
	mux.HandleFunc("GET /api/cities/{id}", s.handleCity)
	mux.HandleFunc("GET /api/cities/{id}/buildings", s.handleBuildings)
	mux.HandleFunc("POST /api/cities/{id}/buildings", s.handlePlaceBuilding)
	mux.HandleFunc("DELETE /api/buildings/{id}", s.handleRemoveBuilding)
	mux.HandleFunc("GET /api/cities/{id}/events", s.handleEvents)
	mux.HandleFunc("PATCH /api/events/{id}/read", s.handleMarkRead)
	mux.HandleFunc("POST /api/cities/{id}/bulletin", RateLimitMiddleware(bulletinLimiter, s.handleBulletin))
	mux.HandleFunc("GET /api/cities/{id}/live", s.handleLive)

	mux.HandleFunc("POST /api/admin/cycle", s.adminOnly(s.handleCycle))
	mux.HandleFunc("POST /api/admin/storms/{id}/resolve", s.adminOnly(s.handleResolveStorm))

	return corsMiddleware(s.Origins, mux)
}

// Start begins serving in a goroutine.
func (s *Server) Start() {
	addr := fmt.Sprintf(":%d", s.Port)
	s.srv = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	slog.Info("HTTP API starting", "addr", addr, "admin_auth", s.AdminKey != "", "live", s.Hub != nil)

	go func() {
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("HTTP server error", "error", err)
		}
	}()
}

// Shutdown stops accepting requests and waits for in-flight ones.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	return s.srv.Shutdown(ctx)
}

// corsMiddleware adds CORS headers for allowed frontend origins. Localhost
// dev servers are always allowed.
func corsMiddleware(origins []string, next http.Handler) http.Handler {
	allowed := map[string]bool{
		"http://localhost:5173": true,
		"http://localhost:4173": true,
		"http://localhost:3000": true,
	}
	for _, origin := range origins {
		if origin = strings.TrimSpace(origin); origin != "" {
			allowed[origin] = true
		}
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if allowed[origin] {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PATCH, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
			w.Header().Add("Vary", "Origin")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) checkBearerToken(r *http.Request) bool {
	token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	return ok && subtle.ConstantTimeCompare([]byte(token), []byte(s.AdminKey)) == 1
}

// adminOnly requires the bearer admin key.
func (s *Server) adminOnly(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.AdminKey == "" {
			writeError(w, http.StatusForbidden, "admin endpoints disabled (no TIDEWATER_ADMIN_KEY set)")
			return
		}
		if !s.checkBearerToken(r) {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next(w, r)
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	cities, err := s.Game.AllCities(ctx)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	stations, err := s.Game.Stations(ctx)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	status := map[string]any{
		"name":     "Tidewater",
		"uptime":   time.Since(s.started).Round(time.Second).String(),
		"cities":   len(cities),
		"stations": len(stations),
	}
	if s.Scheduler != nil {
		status["tasks"] = s.Scheduler.Status()
	}
	writeJSON(w, http.StatusOK, status)
}

func (s *Server) handleStations(w http.ResponseWriter, r *http.Request) {
	stations, err := s.Game.Stations(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stations)
}

func (s *Server) handleStation(w http.ResponseWriter, r *http.Request) {
	report, err := s.Game.StationReport(r.Context(), r.PathValue("stationID"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleTides(w http.ResponseWriter, r *http.Request) {
	days, ok := queryInt(w, r, "days", 1, 1, maxDays)
	if !ok {
		return
	}
	ctx := r.Context()
	stationID := r.PathValue("stationID")
	if _, err := s.Game.Station(ctx, stationID); err != nil {
		s.fail(w, r, err)
		return
	}
	preds, err := s.Game.Predictions(ctx, stationID, days)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"stationId": stationID, "days": days, "predictions": preds})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	days, ok := queryInt(w, r, "days", 7, 1, maxDays)
	if !ok {
		return
	}
	ctx := r.Context()
	stationID := r.PathValue("stationID")
	if _, err := s.Game.Station(ctx, stationID); err != nil {
		s.fail(w, r, err)
		return
	}
	samples, err := s.Game.History(ctx, stationID, days)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"stationId": stationID, "days": days, "samples": samples})
}

func (s *Server) handleStationStorms(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	stationID := r.PathValue("stationID")
	if _, err := s.Game.Station(ctx, stationID); err != nil {
		s.fail(w, r, err)
		return
	}
	storms, err := s.Game.ActiveStorms(ctx, stationID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, storms)
}

func (s *Server) handleBuildingTypes(w http.ResponseWriter, r *http.Request) {
	types, err := s.Game.BuildingTypes(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, types)
}

func (s *Server) handleCities(w http.ResponseWriter, r *http.Request) {
	userID, ok := queryInt(w, r, "userId", defaultUserID, 1, math.MaxInt32)
	if !ok {
		return
	}
	cities, err := s.Game.Cities(r.Context(), int64(userID))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, cities)
}

func (s *Server) handleCreateCity(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name      string `json:"name"`
		StationID string `json:"stationId"`
		UserID    int64  `json:"userId"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if req.UserID == 0 {
		req.UserID = defaultUserID
	}
	c, err := s.Game.CreateCity(r.Context(), req.UserID, req.Name, req.StationID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

func (s *Server) handleCity(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	report, err := s.Game.CityReport(r.Context(), id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleBuildings(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	buildings, err := s.Game.Buildings(r.Context(), id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, buildings)
}

func (s *Server) handlePlaceBuilding(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req struct {
		BuildingTypeID int64 `json:"buildingTypeId"`
		PosX           *int  `json:"posX"`
		PosY           *int  `json:"posY"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if req.PosX == nil || req.PosY == nil {
		writeError(w, http.StatusBadRequest, "posX and posY are required")
		return
	}
	b, err := s.Game.PlaceBuilding(r.Context(), id, req.BuildingTypeID, city.Position{X: *req.PosX, Y: *req.PosY})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, b)
}

func (s *Server) handleRemoveBuilding(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := s.Game.RemoveBuilding(r.Context(), id); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	limit, ok := queryInt(w, r, "limit", s.Game.Settings().EventLimit, 1, 200)
	if !ok {
		return
	}
	events, err := s.Game.Events(r.Context(), id, limit)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, events)
}

func (s *Server) handleMarkRead(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := s.Game.MarkEventRead(r.Context(), id); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleBulletin(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	e, err := s.Game.GenerateBulletin(r.Context(), id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, e)
}

func (s *Server) handleLive(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if s.Hub == nil {
		writeError(w, http.StatusServiceUnavailable, "live events disabled")
		return
	}
	if _, err := s.Game.City(r.Context(), id); err != nil {
		s.fail(w, r, err)
		return
	}
	s.Hub.serve(w, r, id)
}

func (s *Server) handleCycle(w http.ResponseWriter, r *http.Request) {
	cycle := uuid.NewString()
	log := slog.Default().With("cycle", cycle)
	ctx := engine.WithLogger(r.Context(), log)

	ids, err := s.Game.CityIDs(ctx)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	result := s.Game.RunCycle(ctx, ids)
	log.Info("manual cycle complete", "cities", len(ids),
		"ticked", result.Ticked, "storms", result.StormsCreated)
	writeJSON(w, http.StatusOK, map[string]any{"cycle": cycle, "result": result})
}

func (s *Server) handleResolveStorm(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	ev, err := s.Game.ResolveStorm(r.Context(), id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ev)
}

// statusFor maps engine rejections to HTTP statuses. Anything else is a 500.
func statusFor(err error) int {
	switch {
	case errors.Is(err, engine.ErrStationNotFound),
		errors.Is(err, engine.ErrCityNotFound),
		errors.Is(err, engine.ErrBuildingTypeNotFound),
		errors.Is(err, engine.ErrBuildingNotFound),
		errors.Is(err, engine.ErrEventNotFound),
		errors.Is(err, engine.ErrStormNotFound):
		return http.StatusNotFound
	case errors.Is(err, engine.ErrPositionOccupied),
		errors.Is(err, engine.ErrOutOfBounds),
		errors.Is(err, engine.ErrInsufficientResources),
		errors.Is(err, engine.ErrInvalidCity):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

// fail writes err as a JSON error. Internal errors are logged and hidden.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	code := statusFor(err)
	if code == http.StatusInternalServerError {
		slog.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		writeError(w, code, "internal error")
		return
	}
	writeError(w, code, err.Error())
}

func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "invalid id")
		return 0, false
	}
	return id, true
}

// queryInt reads an optional integer query parameter within [lo, hi].
func queryInt(w http.ResponseWriter, r *http.Request, name string, def, lo, hi int) (int, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < lo || n > hi {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("%s must be an integer between %d and %d", name, lo, hi))
		return 0, false
	}
	return n, true
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}

func writeJSON(w http.ResponseWriter, code int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(data); err != nil {
		slog.Warn("write response", "error", err)
	}
}
