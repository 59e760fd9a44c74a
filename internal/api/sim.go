package api

import (
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/jbeda/geom"

	"github.com/talgya/gearworks/internal/gear"
	"github.com/talgya/gearworks/internal/persistence"
	"github.com/talgya/gearworks/internal/render"
	"github.com/talgya/gearworks/internal/scene"
)

// subscriberBuffer is the number of frames a slow stream client may lag
// behind before frames are dropped for it.
const subscriberBuffer = 8

// Frame is the per-frame state pushed to stream subscribers.
type Frame struct {
	Frame     uint64    `json:"frame"`
	Rotations []float64 `json:"rotations"`
}

// GearInfo describes one gear of the running scene.
type GearInfo struct {
	Index        int       `json:"index"`
	Parent       int       `json:"parent"` // -1 for the main gear
	X            float64   `json:"x"`
	Y            float64   `json:"y"`
	Orientation  int       `json:"orientation"`
	PeriodsCount int       `json:"periods_count"`
	MinRadius    float64   `json:"min_radius"`
	MaxRadius    float64   `json:"max_radius"`
	Rotation     float64   `json:"rotation"`
	Closure      *gear.Fit `json:"closure,omitempty"`
}

// Sim owns the running scene. The engine advances it from its own goroutine
// while HTTP handlers read and modify it.
type Sim struct {
	mu     sync.RWMutex
	scene  *scene.Scene
	params scene.Params
	shape  scene.Shape
	seed   int64
	frame  uint64

	subMu   sync.Mutex
	subs    map[int]chan Frame
	nextSub int
}

// NewSim wraps a scene that was built from the given shape and seed.
func NewSim(s *scene.Scene, params scene.Params, shape scene.Shape, seed int64) *Sim {
	return &Sim{
		scene:  s,
		params: params,
		shape:  shape,
		seed:   seed,
		subs:   make(map[int]chan Frame),
	}
}

// Advance moves the scene forward by dt and publishes the new rotations.
func (s *Sim) Advance(frame uint64, dt time.Duration) {
	s.mu.Lock()
	s.scene.Update(dt, s.params)
	s.frame = frame
	gears := s.scene.Gears()
	f := Frame{Frame: frame, Rotations: make([]float64, len(gears))}
	for i, g := range gears {
		f.Rotations[i] = g.Rotation()
	}
	s.mu.Unlock()

	s.broadcast(f)
}

func (s *Sim) broadcast(f Frame) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	for _, ch := range s.subs {
		select {
		case ch <- f:
		default:
		}
	}
}

// Subscribe registers a frame listener. Frames are dropped, never queued
// without bound, when the listener falls behind.
func (s *Sim) Subscribe() (int, <-chan Frame) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	id := s.nextSub
	s.nextSub++
	ch := make(chan Frame, subscriberBuffer)
	s.subs[id] = ch
	return id, ch
}

// Unsubscribe removes a listener and closes its channel.
func (s *Sim) Unsubscribe(id int) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	if ch, ok := s.subs[id]; ok {
		close(ch)
		delete(s.subs, id)
	}
}

// Subscribers returns the number of registered listeners.
func (s *Sim) Subscribers() int {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	return len(s.subs)
}

// CurrentFrame returns the last frame the scene was advanced to.
func (s *Sim) CurrentFrame() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.frame
}

// Shape returns the shape the running scene was generated from.
func (s *Sim) Shape() scene.Shape {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.shape
}

// Viewport returns the visible area of the scene.
func (s *Sim) Viewport() geom.Rect {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.scene.Viewport()
}

// Seed returns the seed the running scene was generated from.
func (s *Sim) Seed() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.seed
}

// Params returns a copy of the current controls.
func (s *Sim) Params() scene.Params {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.params
}

// SetParams replaces the controls. The shape control only takes effect on
// the next Reset.
func (s *Sim) SetParams(p scene.Params) error {
	if err := p.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	s.params = p
	s.mu.Unlock()
	return nil
}

// Place adds a companion at a point of the plane.
func (s *Sim) Place(p geom.Coord) (GearInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, err := s.scene.Place(p)
	if err != nil {
		return GearInfo{}, err
	}
	return s.info(g), nil
}

// Reset replaces the scene with a randomly populated one.
func (s *Sim) Reset(shape scene.Shape, seed int64) error {
	s.mu.RLock()
	viewport := s.scene.Viewport()
	s.mu.RUnlock()

	next, err := scene.Random(shape, viewport, seed)
	if err != nil {
		return fmt.Errorf("reset %s/%d: %w", shape, seed, err)
	}

	s.mu.Lock()
	s.scene = next
	s.shape = shape
	s.seed = seed
	s.mu.Unlock()
	slog.Info("scene reset", "shape", shape, "seed", seed, "gears", len(next.Gears()))
	return nil
}

// Replace swaps in an already built scene, such as one restored from the
// database.
func (s *Sim) Replace(next *scene.Scene, shape scene.Shape, seed int64) {
	s.mu.Lock()
	s.scene = next
	s.shape = shape
	s.seed = seed
	s.mu.Unlock()
}

// Gears describes every gear, main gear first.
func (s *Sim) Gears() []GearInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()
	gears := s.scene.Gears()
	out := make([]GearInfo, len(gears))
	for i, g := range gears {
		out[i] = s.info(g)
	}
	return out
}

// GearCount returns the number of gears in the scene.
func (s *Sim) GearCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.scene.Gears())
}

func (s *Sim) info(g *gear.Gear) GearInfo {
	info := GearInfo{
		Index:        s.scene.Index(g),
		Parent:       -1,
		X:            g.Center().X,
		Y:            g.Center().Y,
		Orientation:  g.Orientation(),
		PeriodsCount: g.PeriodsCount(),
		MinRadius:    g.MinRadius(),
		MaxRadius:    g.MaxRadius(),
		Rotation:     g.Rotation(),
	}
	if !g.IsRoot() {
		info.Parent = s.scene.Index(g.Parent())
		fit := g.Closure()
		info.Closure = &fit
	}
	return info
}

// WriteSVG renders the scene at its current rotation.
func (s *Sim) WriteSVG(w io.Writer, width int) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	opts := render.OptionsFromParams(s.scene.Viewport(), width, s.params)
	opts.Title = string(s.shape)
	return render.SVG(w, s.scene.Gears(), opts)
}

// Snapshot stores the scene layout and the current frame.
func (s *Sim) Snapshot(db *persistence.DB) (persistence.SceneRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, err := db.SaveScene(s.scene, s.shape, s.seed)
	if err != nil {
		return rec, err
	}
	if err := db.SaveMeta("frame", fmt.Sprint(s.frame)); err != nil {
		return rec, err
	}
	if err := db.SaveMeta("scene", rec.ID); err != nil {
		return rec, err
	}
	return rec, nil
}
