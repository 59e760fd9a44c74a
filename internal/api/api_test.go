package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jbeda/geom"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talgya/gearworks/internal/engine"
	"github.com/talgya/gearworks/internal/gear"
	"github.com/talgya/gearworks/internal/persistence"
	"github.com/talgya/gearworks/internal/polar"
	"github.com/talgya/gearworks/internal/scene"
)

const testKey = "secret"

func newServer(t *testing.T, db *persistence.DB) *Server {
	t.Helper()
	curve, err := polar.Ellipse(0.2, 0.1)
	require.NoError(t, err)
	main, err := gear.Create(geom.Coord{}, curve)
	require.NoError(t, err)
	s, err := scene.New(main, scene.ViewportFor(1))
	require.NoError(t, err)
	return &Server{
		Sim:      NewSim(s, scene.DefaultParams(), scene.ShapeEllipse, 7),
		Eng:      engine.NewEngine(),
		DB:       db,
		AdminKey: testKey,
	}
}

func do(t *testing.T, h http.Handler, method, path, body, key string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if key != "" {
		req.Header.Set("Authorization", "Bearer "+key)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestStatus(t *testing.T) {
	srv := newServer(t, nil)
	srv.Sim.Advance(3, 50*time.Millisecond)

	rec := do(t, srv.Handler(), http.MethodGet, "/api/v1/status", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	status := decode[map[string]any](t, rec)
	assert.Equal(t, float64(3), status["frame"])
	assert.Equal(t, "ellipse", status["shape"])
	assert.Equal(t, float64(1), status["gear_count"])
	assert.Equal(t, float64(1), status["speed"])
}

func TestGears(t *testing.T) {
	srv := newServer(t, nil)
	h := srv.Handler()

	rec := do(t, h, http.MethodPost, "/api/v1/gears", `{"x":0.4,"y":0}`, "")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	placed := decode[GearInfo](t, rec)
	assert.Equal(t, 1, placed.Index)
	assert.Equal(t, 0, placed.Parent)
	assert.Equal(t, -1, placed.Orientation)
	require.NotNil(t, placed.Closure)
	assert.True(t, placed.Closure.Converged)

	rec = do(t, h, http.MethodPost, "/api/v1/gears", `{"x":0,"y":0}`, "")
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, decode[map[string]string](t, rec)["error"], "no meshing gear")

	rec = do(t, h, http.MethodPost, "/api/v1/gears", `{"x":0.4}`, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = do(t, h, http.MethodPost, "/api/v1/gears", `{`, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = do(t, h, http.MethodDelete, "/api/v1/gears", "", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)

	rec = do(t, h, http.MethodGet, "/api/v1/gears", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	gears := decode[[]GearInfo](t, rec)
	require.Len(t, gears, 2)
	assert.Equal(t, -1, gears[0].Parent)
	assert.Nil(t, gears[0].Closure)
	assert.InDelta(t, placed.X, gears[1].X, 1e-12)
}

func TestPlacementStatus(t *testing.T) {
	assert.Equal(t, http.StatusUnprocessableEntity, placementStatus(scene.ErrOverlap))
	assert.Equal(t, http.StatusUnprocessableEntity, placementStatus(gear.ErrNoMesh))
	assert.Equal(t, http.StatusInternalServerError, placementStatus(assert.AnError))
}

func TestGearsRateLimited(t *testing.T) {
	srv := newServer(t, nil)
	srv.PlaceLimit = NewRateLimiter(1, time.Minute)
	h := srv.Handler()

	rec := do(t, h, http.MethodPost, "/api/v1/gears", `{"x":0.4,"y":0}`, "")
	assert.Equal(t, http.StatusCreated, rec.Code)
	rec = do(t, h, http.MethodPost, "/api/v1/gears", `{"x":-0.4,"y":0}`, "")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))

	// Reads are never limited.
	rec = do(t, h, http.MethodGet, "/api/v1/gears", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestSVGEndpoint(t *testing.T) {
	srv := newServer(t, nil)
	h := srv.Handler()

	rec := do(t, h, http.MethodGet, "/api/v1/scene.svg?width=300", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/svg+xml", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Body.String(), `width="300"`)
	assert.Contains(t, rec.Body.String(), "<title>ellipse</title>")

	rec = do(t, h, http.MethodGet, "/api/v1/scene.svg?width=abc", "", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = do(t, h, http.MethodGet, "/api/v1/scene.svg?width=0", "", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAdminAuth(t *testing.T) {
	srv := newServer(t, nil)
	h := srv.Handler()

	rec := do(t, h, http.MethodPost, "/api/v1/speed", `{"speed":2}`, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	rec = do(t, h, http.MethodPost, "/api/v1/speed", `{"speed":2}`, "wrong")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, 1.0, srv.Eng.Speed())

	rec = do(t, h, http.MethodPost, "/api/v1/speed", `{"speed":2}`, testKey)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 2.0, srv.Eng.Speed())

	rec = do(t, h, http.MethodPost, "/api/v1/speed", `{"speed":-1}`, testKey)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodGet, "/api/v1/speed", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, map[string]float64{"speed": 2}, decode[map[string]float64](t, rec))

	srv.AdminKey = ""
	rec = do(t, srv.Handler(), http.MethodPost, "/api/v1/speed", `{"speed":3}`, testKey)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestParams(t *testing.T) {
	srv := newServer(t, nil)
	h := srv.Handler()

	rec := do(t, h, http.MethodPost, "/api/v1/params", `{"show_teeth":true,"teeth_size":"large"}`, testKey)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	p := srv.Sim.Params()
	assert.True(t, p.ShowTeeth)
	assert.Equal(t, scene.TeethLarge, p.TeethSize)
	assert.Equal(t, scene.ShapeEllipse, p.Shape, "unspecified fields are kept")

	rec = do(t, h, http.MethodPost, "/api/v1/params", `{"display_style":"glow"}`, testKey)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, scene.StyleFlat, srv.Sim.Params().DisplayStyle)
}

func TestReset(t *testing.T) {
	if testing.Short() {
		t.Skip("random scene population is slow")
	}
	srv := newServer(t, nil)
	h := srv.Handler()

	rec := do(t, h, http.MethodPost, "/api/v1/reset", `{"shape":"square","seed":5}`, testKey)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, scene.ShapeSquare, srv.Sim.Shape())
	assert.Equal(t, int64(5), srv.Sim.Seed())
	assert.GreaterOrEqual(t, srv.Sim.GearCount(), 1)

	rec = do(t, h, http.MethodPost, "/api/v1/reset", `{"shape":"blob"}`, testKey)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSnapshotAndRestore(t *testing.T) {
	db, err := persistence.Open(filepath.Join(t.TempDir(), "gears.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	srv := newServer(t, db)
	h := srv.Handler()
	_, err = srv.Sim.Place(geom.Coord{X: 0.4})
	require.NoError(t, err)
	srv.Sim.Advance(12, time.Second)

	rec := do(t, h, http.MethodPost, "/api/v1/snapshot", "", testKey)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	id := decode[map[string]any](t, rec)["id"].(string)

	frame, err := db.GetMeta("frame")
	require.NoError(t, err)
	assert.Equal(t, "12", frame)

	rec = do(t, h, http.MethodGet, "/api/v1/scenes", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[[]map[string]any](t, rec)
	require.Len(t, list, 1)
	assert.Equal(t, id, list[0]["id"])
	assert.Equal(t, float64(2), list[0]["gear_count"])
	assert.NotEmpty(t, list[0]["age"])

	_, err = srv.Sim.Place(geom.Coord{X: -0.4})
	require.NoError(t, err)
	require.Equal(t, 3, srv.Sim.GearCount())

	rec = do(t, h, http.MethodPost, "/api/v1/restore", `{"id":"`+id+`"}`, testKey)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, 2, srv.Sim.GearCount())

	rec = do(t, h, http.MethodPost, "/api/v1/restore", `{"id":"nope"}`, testKey)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestNoDatabase(t *testing.T) {
	h := newServer(t, nil).Handler()
	assert.Equal(t, http.StatusServiceUnavailable, do(t, h, http.MethodPost, "/api/v1/snapshot", "", testKey).Code)
	assert.Equal(t, http.StatusServiceUnavailable, do(t, h, http.MethodGet, "/api/v1/scenes", "", "").Code)
}

func TestCORS(t *testing.T) {
	h := newServer(t, nil).Handler()
	req := httptest.NewRequest(http.MethodOptions, "/api/v1/status", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "http://localhost:5173", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestStream(t *testing.T) {
	srv := newServer(t, nil)
	_, err := srv.Sim.Place(geom.Coord{X: 0.4})
	require.NoError(t, err)

	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	u := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/v1/stream"
	conn, _, err := websocket.DefaultDialer.Dial(u, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return srv.Sim.Subscribers() == 1 }, time.Second, 5*time.Millisecond)
	srv.Sim.Advance(1, 100*time.Millisecond)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var f Frame
	require.NoError(t, conn.ReadJSON(&f))
	assert.Equal(t, uint64(1), f.Frame)
	require.Len(t, f.Rotations, 2)
	assert.Greater(t, f.Rotations[0], 0.0)

	conn.Close()
	require.Eventually(t, func() bool { return srv.Sim.Subscribers() == 0 }, time.Second, 5*time.Millisecond)
}

func TestRateLimiter(t *testing.T) {
	now := time.Unix(1000, 0)
	rl := NewRateLimiter(2, time.Minute)
	rl.now = func() time.Time { return now }

	assert.True(t, rl.Allow("a"))
	assert.True(t, rl.Allow("a"))
	assert.False(t, rl.Allow("a"))
	assert.True(t, rl.Allow("b"))
	assert.Equal(t, 60, rl.RetryAfter("a"))
	assert.Equal(t, 0, rl.RetryAfter("c"))

	now = now.Add(time.Minute)
	assert.True(t, rl.Allow("a"))
}

func TestRetryAfterRoundsUp(t *testing.T) {
	start := time.Unix(1000, 0)
	now := start
	rl := NewRateLimiter(1, time.Minute)
	rl.now = func() time.Time { return now }
	require.True(t, rl.Allow("a"))

	cases := []struct {
		elapsed time.Duration
		want    int
	}{
		{0, 60},
		{30 * time.Second, 30},
		{30*time.Second + time.Millisecond, 30},
		{59*time.Second + 500*time.Millisecond, 1},
		{time.Minute, 0},
		{2 * time.Minute, 0},
	}
	for _, tc := range cases {
		now = start.Add(tc.elapsed)
		assert.Equal(t, tc.want, rl.RetryAfter("a"), "after %v", tc.elapsed)
	}
}

func TestClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "[::1]:5555"
	assert.Equal(t, "::1", clientIP(req))

	req.Header.Set("X-Forwarded-For", "10.0.0.1, 10.0.0.2")
	assert.Equal(t, "10.0.0.1", clientIP(req))
}
