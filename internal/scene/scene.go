// Package scene lays gears out on a plane: one root gear at the origin and
// any number of companions, each driven by the gear closest to where it was
// requested.
package scene

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/jbeda/geom"

	"github.com/talgya/gearworks/internal/gear"
)

// ErrOverlap is returned when a companion would intersect a gear other
// than its driver.
var ErrOverlap = errors.New("gear overlaps an existing gear")

// Scene owns every gear it holds. Secondary gears are kept in insertion
// order, so a driver always precedes the gears it drives.
type Scene struct {
	main      *gear.Gear
	secondary []*gear.Gear
	viewport  geom.Rect
}

// New creates a scene around a root gear.
func New(main *gear.Gear, viewport geom.Rect) (*Scene, error) {
	if main == nil || !main.IsRoot() {
		return nil, errors.New("scene main gear must be a root gear")
	}
	return &Scene{main: main, viewport: viewport}, nil
}

// Viewport returns the visible area of the scene.
func (s *Scene) Viewport() geom.Rect { return s.viewport }

// ViewportFor returns a viewport centered on the origin covering at least
// [-1, 1] on both axes, widened along the longer side of the given aspect
// ratio (width / height).
func ViewportFor(aspect float64) geom.Rect {
	if !(aspect > 0) {
		aspect = 1
	}
	hx := math.Max(1, aspect)
	hy := math.Max(1, 1/aspect)
	return geom.Rect{Min: geom.Coord{X: -hx, Y: -hy}, Max: geom.Coord{X: hx, Y: hy}}
}

// PointAt maps fractional viewport coordinates in [0, 1] to the plane.
func (s *Scene) PointAt(fx, fy float64) geom.Coord {
	return geom.Coord{
		X: s.viewport.Min.X + fx*s.viewport.Width(),
		Y: s.viewport.Min.Y + fy*s.viewport.Height(),
	}
}

// Main returns the root gear.
func (s *Scene) Main() *gear.Gear { return s.main }

// Secondary returns the companions in insertion order.
func (s *Scene) Secondary() []*gear.Gear {
	out := make([]*gear.Gear, len(s.secondary))
	copy(out, s.secondary)
	return out
}

// Gears returns every gear, main first.
func (s *Scene) Gears() []*gear.Gear {
	out := make([]*gear.Gear, 0, len(s.secondary)+1)
	out = append(out, s.main)
	return append(out, s.secondary...)
}

// Index returns the position of g in Gears, or -1.
func (s *Scene) Index(g *gear.Gear) int {
	for i, other := range s.Gears() {
		if other == g {
			return i
		}
	}
	return -1
}

// Bounds returns the box enclosing every gear's envelope.
func (s *Scene) Bounds() geom.Rect {
	bounds := geom.NilRect()
	for _, g := range s.Gears() {
		bounds.ExpandToContainRect(g.Bounds())
	}
	return bounds
}

// ClosestGear returns the gear whose outer envelope is nearest to p.
func (s *Scene) ClosestGear(p geom.Coord) *gear.Gear {
	closest := s.main
	lowest := p.DistanceFrom(closest.Center()) - closest.MaxRadius()

	for _, g := range s.secondary {
		d := p.DistanceFrom(g.Center()) - g.MaxRadius()
		if d < lowest {
			closest = g
			lowest = d
		}
	}
	return closest
}

// TryBuildGear builds, without placing it, a companion of the closest gear
// toward p. It fails when no companion fits there or when the companion's
// envelope would touch any gear other than its driver.
func (s *Scene) TryBuildGear(p geom.Coord) (*gear.Gear, error) {
	closest := s.ClosestGear(p)

	g, err := gear.Slave(p, closest)
	if err != nil {
		slog.Debug("no gear at point", "x", p.X, "y", p.Y, "error", err)
		return nil, err
	}

	for _, other := range s.Gears() {
		if other == closest {
			continue
		}
		margin := g.Center().DistanceFrom(other.Center()) - g.MaxRadius() - other.MaxRadius()
		if margin <= 0 {
			return nil, fmt.Errorf("%w: at (%.3f, %.3f)", ErrOverlap, g.Center().X, g.Center().Y)
		}
	}
	return g, nil
}

// Place builds a companion toward p and adds it to the scene.
func (s *Scene) Place(p geom.Coord) (*gear.Gear, error) {
	g, err := s.TryBuildGear(p)
	if err != nil {
		return nil, err
	}
	s.secondary = append(s.secondary, g)
	return g, nil
}

// Attach adds an already built companion. Its driver must be in the scene.
func (s *Scene) Attach(g *gear.Gear) error {
	if g.IsRoot() {
		return errors.New("attach: gear has no driver")
	}
	if s.Index(g.Parent()) < 0 {
		return errors.New("attach: driver is not part of the scene")
	}
	s.secondary = append(s.secondary, g)
	return nil
}

// RotationDelta returns how far the main gear turns during dt at the given
// speed: 5 radians per second at speed 1.
func RotationDelta(dt time.Duration, speed float64) float64 {
	ms := float64(dt) / float64(time.Millisecond)
	return 5 * ms * speed / 1000
}

// Update advances the scene by dt: the main gear turns, then every
// companion follows its driver.
func (s *Scene) Update(dt time.Duration, params Params) {
	// New only accepts root gears, which always rotate.
	_ = s.main.Rotate(RotationDelta(dt, params.RotationSpeed))
	for _, g := range s.secondary {
		g.Update()
	}
}
