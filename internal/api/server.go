// Package api provides the HTTP API for watching and steering the gear scene.
// GET endpoints are public (read-only observation).
// POST endpoints on the control plane require a bearer token.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/gorilla/websocket"
	"github.com/jbeda/geom"

	"github.com/talgya/gearworks/internal/engine"
	"github.com/talgya/gearworks/internal/entropy"
	"github.com/talgya/gearworks/internal/gear"
	"github.com/talgya/gearworks/internal/persistence"
	"github.com/talgya/gearworks/internal/scene"
)

const (
	maxStreamConns  = 8
	maxSpeed        = 100
	defaultSVGWidth = 800
	maxSVGWidth     = 4096
	pingInterval    = 15 * time.Second
	writeWait       = 10 * time.Second
)

// Server serves the scene over HTTP.
type Server struct {
	Sim      *Sim
	Eng      *engine.Engine
	DB       *persistence.DB // Optional; snapshot and scene endpoints need it.
	Port     int
	AdminKey string // Bearer token for POST control endpoints. Empty = control disabled.

	// Seeds supplies seeds for resets that do not name one; nil uses crypto/rand.
	Seeds *entropy.Client

	// PlaceLimit bounds gear placements per client; nil uses 60 per minute.
	PlaceLimit *RateLimiter

	// Active stream connection count (atomic).
	streamConns int32
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Handler returns the routed API with CORS applied.
func (s *Server) Handler() http.Handler {
	limiter := s.PlaceLimit
	if limiter == nil {
		limiter = NewRateLimiter(60, time.Minute)
	}

	mux := http.NewServeMux()

	// Public endpoints (GET, read-only).
	mux.HandleFunc("/api/v1/status", s.handleStatus)
	mux.HandleFunc("/api/v1/gears", RateLimitMiddleware(limiter, s.handleGears, http.MethodPost))
	mux.HandleFunc("/api/v1/scene.svg", s.handleSVG)
	mux.HandleFunc("/api/v1/scenes", s.handleScenes)
	mux.HandleFunc("/api/v1/stream", s.handleStream)

	// Control endpoints (POST requires bearer token).
	mux.HandleFunc("/api/v1/speed", s.adminOnly(s.handleSpeed))
	mux.HandleFunc("/api/v1/params", s.adminOnly(s.handleParams))
	mux.HandleFunc("/api/v1/reset", s.adminOnly(s.handleReset))
	mux.HandleFunc("/api/v1/restore", s.adminOnly(s.handleRestore))
	mux.HandleFunc("/api/v1/snapshot", s.adminOnly(s.handleSnapshot))

	return corsMiddleware(mux)
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.Port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	slog.Info("HTTP API starting", "addr", srv.Addr, "admin_auth", s.AdminKey != "")

	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()

	select {
	case err := <-errc:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	slog.Info("HTTP API stopped")
	return nil
}

// corsMiddleware adds CORS headers for allowed frontend origins.
// Set CORS_ORIGINS env var to a comma-separated list of allowed origins.
// Localhost dev servers are always allowed.
func corsMiddleware(next http.Handler) http.Handler {
	allowedOrigins := map[string]bool{
		"http://localhost:5173": true,
		"http://localhost:3000": true,
	}
	if env := os.Getenv("CORS_ORIGINS"); env != "" {
		for _, origin := range strings.Split(env, ",") {
			origin = strings.TrimSpace(origin)
			if origin != "" {
				allowedOrigins[origin] = true
			}
		}
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if allowedOrigins[origin] {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) checkBearerToken(r *http.Request) bool {
	auth := r.Header.Get("Authorization")
	return strings.HasPrefix(auth, "Bearer ") && strings.TrimPrefix(auth, "Bearer ") == s.AdminKey
}

// adminOnly wraps a handler to require bearer token auth on POST requests.
// GET requests pass through (for endpoints that support both GET and POST).
func (s *Server) adminOnly(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			if s.AdminKey == "" {
				http.Error(w, "control endpoints disabled (no admin key set)", http.StatusForbidden)
				return
			}
			if !s.checkBearerToken(r) {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
		}
		next(w, r)
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	frame := s.Sim.CurrentFrame()
	writeJSON(w, http.StatusOK, map[string]any{
		"name":        "gearworks",
		"frame":       frame,
		"sim_time":    engine.FrameTime(frame, s.Eng.Interval),
		"speed":       s.Eng.Speed(),
		"paused":      s.Eng.Speed() == 0,
		"shape":       s.Sim.Shape(),
		"seed":        s.Sim.Seed(),
		"gear_count":  s.Sim.GearCount(),
		"subscribers": s.Sim.Subscribers(),
	})
}

// handleGears lists gears on GET and places a companion on POST.
func (s *Server) handleGears(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, s.Sim.Gears())
	case http.MethodPost:
		var req struct {
			X *float64 `json:"x"`
			Y *float64 `json:"y"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid json", http.StatusBadRequest)
			return
		}
		if req.X == nil || req.Y == nil {
			http.Error(w, "x and y are required", http.StatusBadRequest)
			return
		}
		info, err := s.Sim.Place(geom.Coord{X: *req.X, Y: *req.Y})
		if err != nil {
			writeJSON(w, placementStatus(err), map[string]string{"error": err.Error()})
			return
		}
		slog.Debug("gear placed", "index", info.Index, "parent", info.Parent, "periods", info.PeriodsCount)
		writeJSON(w, http.StatusCreated, info)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

// placementStatus maps a rejected placement to a response code. Geometry
// that cannot mesh is the client's input, not a server failure.
func placementStatus(err error) int {
	if errors.Is(err, scene.ErrOverlap) || errors.Is(err, gear.ErrNoMesh) || errors.Is(err, gear.ErrDegenerate) {
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}

func (s *Server) handleSVG(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	width := defaultSVGWidth
	if v := r.URL.Query().Get("width"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > maxSVGWidth {
			http.Error(w, fmt.Sprintf("width must be 1-%d", maxSVGWidth), http.StatusBadRequest)
			return
		}
		width = n
	}
	w.Header().Set("Content-Type", "image/svg+xml")
	if err := s.Sim.WriteSVG(w, width); err != nil {
		slog.Error("svg render failed", "error", err)
	}
}

func (s *Server) handleScenes(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.DB == nil {
		http.Error(w, "database not available", http.StatusServiceUnavailable)
		return
	}
	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		limit = min(n, 200)
	}
	records, err := s.DB.ListScenes(limit)
	if err != nil {
		slog.Error("list scenes failed", "error", err)
		http.Error(w, "list failed", http.StatusInternalServerError)
		return
	}

	type sceneEntry struct {
		ID        string    `json:"id"`
		CreatedAt time.Time `json:"created_at"`
		Age       string    `json:"age"`
		Shape     string    `json:"shape"`
		Seed      int64     `json:"seed"`
		GearCount int       `json:"gear_count"`
	}
	out := make([]sceneEntry, 0, len(records))
	for _, rec := range records {
		out = append(out, sceneEntry{
			ID:        rec.ID,
			CreatedAt: rec.CreatedAt,
			Age:       humanize.Time(rec.CreatedAt),
			Shape:     string(rec.Shape),
			Seed:      rec.Seed,
			GearCount: rec.GearCount,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleSpeed(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodPost {
		var req struct {
			Speed float64 `json:"speed"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid json", http.StatusBadRequest)
			return
		}
		if req.Speed < 0 || req.Speed > maxSpeed {
			http.Error(w, fmt.Sprintf("speed must be 0-%d", maxSpeed), http.StatusBadRequest)
			return
		}
		s.Eng.SetSpeed(req.Speed)
		slog.Info("speed changed", "speed", req.Speed)
	}

	writeJSON(w, http.StatusOK, map[string]float64{"speed": s.Eng.Speed()})
}

func (s *Server) handleParams(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodPost {
		p := s.Sim.Params()
		if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
			http.Error(w, "invalid json", http.StatusBadRequest)
			return
		}
		if err := s.Sim.SetParams(p); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		slog.Info("params changed", "shape", p.Shape, "style", p.DisplayStyle, "teeth", p.ShowTeeth)
	}
	writeJSON(w, http.StatusOK, s.Sim.Params())
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req struct {
		Shape string `json:"shape"`
		Seed  *int64 `json:"seed"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}

	shape := s.Sim.Params().EffectiveShape()
	if req.Shape != "" {
		parsed, err := scene.ParseShape(req.Shape)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		shape = parsed
	}
	var seed int64
	if req.Seed != nil {
		seed = *req.Seed
	} else {
		seed = s.Seeds.Seed()
	}

	if err := s.Sim.Reset(shape, seed); err != nil {
		slog.Error("reset failed", "shape", shape, "seed", seed, "error", err)
		http.Error(w, "reset failed", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"shape":      shape,
		"seed":       seed,
		"gear_count": s.Sim.GearCount(),
	})
}

func (s *Server) handleRestore(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.DB == nil {
		http.Error(w, "database not available", http.StatusServiceUnavailable)
		return
	}
	var req struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ID == "" {
		http.Error(w, "id is required", http.StatusBadRequest)
		return
	}

	rec, err := s.DB.LoadScene(req.ID)
	if errors.Is(err, persistence.ErrNotFound) {
		http.Error(w, "scene not found", http.StatusNotFound)
		return
	}
	if err != nil {
		slog.Error("load scene failed", "id", req.ID, "error", err)
		http.Error(w, "load failed", http.StatusInternalServerError)
		return
	}
	restored, err := s.DB.Restore(rec, s.Sim.Viewport())
	if err != nil {
		slog.Error("restore failed", "id", req.ID, "error", err)
		http.Error(w, "restore failed", http.StatusInternalServerError)
		return
	}
	s.Sim.Replace(restored, rec.Shape, rec.Seed)
	slog.Info("scene restored", "id", rec.ID, "gears", len(restored.Gears()))
	writeJSON(w, http.StatusOK, map[string]any{
		"id":         rec.ID,
		"gear_count": len(restored.Gears()),
	})
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.DB == nil {
		http.Error(w, "database not available", http.StatusServiceUnavailable)
		return
	}

	rec, err := s.Sim.Snapshot(s.DB)
	if err != nil {
		slog.Error("snapshot save failed", "error", err)
		http.Error(w, "snapshot failed", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"id":      rec.ID,
		"frame":   s.Sim.CurrentFrame(),
		"message": "snapshot saved",
	})
}

// handleStream upgrades to a websocket and pushes one Frame message per
// engine frame. Limits concurrent connections.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	current := atomic.AddInt32(&s.streamConns, 1)
	if current > maxStreamConns {
		atomic.AddInt32(&s.streamConns, -1)
		http.Error(w, "too many stream connections", http.StatusServiceUnavailable)
		return
	}
	defer atomic.AddInt32(&s.streamConns, -1)

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Debug("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	subID, ch := s.Sim.Subscribe()
	defer s.Sim.Unsubscribe(subID)
	slog.Info("stream client connected", "sub_id", subID)

	// Clients never send data; reading surfaces close frames and pongs.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					slog.Debug("stream read error", "sub_id", subID, "error", err)
				}
				return
			}
		}
	}()

	ping := time.NewTicker(pingInterval)
	defer ping.Stop()

	for {
		select {
		case f, ok := <-ch:
			if !ok {
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(f); err != nil {
				slog.Debug("stream write failed", "sub_id", subID, "error", err)
				return
			}
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		case <-closed:
			slog.Info("stream client disconnected", "sub_id", subID)
			return
		case <-r.Context().Done():
			return
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.Encode(data)
}
