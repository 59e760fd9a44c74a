// Package gear implements the meshing engine: gears whose pitch curves are
// periodic polar curves, companion (driven) gears synthesized to roll without
// slipping against a driver, and the arc-length coupling that turns a
// driver's rotation into its dependents' rotations.
package gear

import (
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/jbeda/geom"

	"github.com/talgya/gearworks/internal/polar"
)

const (
	// Margin is the minimum clearance between a driver's outer radius and
	// the center distance of a companion.
	Margin = 0.01

	// CenterRadius is the radius of the axle drawn at every gear center.
	// Companions thinner than a few axles are useless in a scene.
	CenterRadius = 0.015
)

var (
	ErrNoMesh           = errors.New("no meshing gear at this location")
	ErrDegenerate       = errors.New("degenerate meshing geometry")
	ErrCoincidentCenter = errors.New("companion center coincides with driver center")
	ErrDrivenRotation   = errors.New("cannot rotate a driven gear")
)

// Segment is a pair of consecutive rays of one period.
type Segment struct {
	From          polar.Ray `json:"from"`
	To            polar.Ray `json:"to"`
	DeltaAngle    float64   `json:"delta_angle"`    // Shortest step from From to To, in (0, π)
	DeltaDistance float64   `json:"delta_distance"` // Chord length
}

// Gear is a rigid pitch curve turning around a fixed center. Only its
// rotation changes after construction.
type Gear struct {
	center       geom.Coord
	periodRays   []polar.Ray
	periodsCount int
	orientation  int // +1 or -1; alternates between a driver and its companions

	periodAngle    float64
	periodSegments []Segment
	periodSurface  float64 // Σ DeltaDistance over one period
	periodSweep    float64 // Σ DeltaAngle over one period, == periodAngle for a closed period
	phase          float64 // Angle of the first period ray
	minRadius      float64
	maxRadius      float64

	rotation float64
	parent   *Gear // Driver; nil for root gears. Not owned.
	fit      Fit

	outlineMu sync.Mutex
	outlines  map[SurfaceType][]geom.Coord
}

// Create builds a root gear: independently driven, rotating in the positive
// sense.
func Create(center geom.Coord, curve polar.PolarCurve) (*Gear, error) {
	if err := curve.Validate(); err != nil {
		return nil, fmt.Errorf("create gear: %w", err)
	}
	return newGear(center, curve.PeriodRays, curve.PeriodsCount, 1), nil
}

func newGear(center geom.Coord, periodRays []polar.Ray, periodsCount, orientation int) *Gear {
	g := &Gear{
		center:       center,
		periodRays:   make([]polar.Ray, len(periodRays)),
		periodsCount: periodsCount,
		orientation:  orientation,
		periodAngle:  polar.TwoPi / float64(periodsCount),
		minRadius:    math.Inf(1),
		maxRadius:    math.Inf(-1),
	}

	for i, ray := range periodRays {
		ray.Angle = polar.NormalizeAngle(ray.Angle)
		g.periodRays[i] = ray
		g.minRadius = math.Min(g.minRadius, ray.Radius)
		g.maxRadius = math.Max(g.maxRadius, ray.Radius)
	}
	g.phase = g.periodRays[0].Angle

	g.periodSegments = make([]Segment, len(g.periodRays))
	for i, current := range g.periodRays {
		var next polar.Ray
		if i+1 < len(g.periodRays) {
			next = g.periodRays[i+1]
		} else {
			// Close the period on the first ray of the next one.
			first := g.periodRays[0]
			next = polar.Ray{
				Angle:  polar.NormalizeAngle(first.Angle + float64(g.orientation)*g.periodAngle),
				Radius: first.Radius,
			}
		}

		seg := Segment{
			From:          current,
			To:            next,
			DeltaAngle:    polar.DeltaAngle(current, next),
			DeltaDistance: polar.Distance(current, next),
		}
		g.periodSegments[i] = seg
		g.periodSurface += seg.DeltaDistance
		g.periodSweep += seg.DeltaAngle
	}

	return g
}

// Center returns the fixed rotation axis.
func (g *Gear) Center() geom.Coord { return g.center }

// MinRadius returns the smallest pitch radius.
func (g *Gear) MinRadius() float64 { return g.minRadius }

// MaxRadius returns the largest pitch radius.
func (g *Gear) MaxRadius() float64 { return g.maxRadius }

// Rotation returns the current rotation in [0, 2π).
func (g *Gear) Rotation() float64 { return g.rotation }

// Orientation returns +1 or -1. Meshing gears have opposite orientations.
func (g *Gear) Orientation() int { return g.orientation }

// PeriodsCount returns how many periods tile a revolution.
func (g *Gear) PeriodsCount() int { return g.periodsCount }

// PeriodAngle returns 2π / PeriodsCount.
func (g *Gear) PeriodAngle() float64 { return g.periodAngle }

// PeriodSurface returns the chord length of one period.
func (g *Gear) PeriodSurface() float64 { return g.periodSurface }

// Parent returns the driver, or nil for a root gear.
func (g *Gear) Parent() *Gear { return g.parent }

// IsRoot reports whether the gear is driven externally.
func (g *Gear) IsRoot() bool { return g.parent == nil }

// Closure returns how the companion period was fitted. Zero for root gears.
func (g *Gear) Closure() Fit { return g.fit }

// PeriodRays returns a copy of the rays of one period, in traversal order.
func (g *Gear) PeriodRays() []polar.Ray {
	rays := make([]polar.Ray, len(g.periodRays))
	copy(rays, g.periodRays)
	return rays
}

// Segments returns a copy of the segments of one period.
func (g *Gear) Segments() []Segment {
	segs := make([]Segment, len(g.periodSegments))
	copy(segs, g.periodSegments)
	return segs
}

// Rays returns the whole outline, period after period in traversal order.
func (g *Gear) Rays() []polar.Ray {
	rays := make([]polar.Ray, 0, len(g.periodRays)*g.periodsCount)
	for k := 0; k < g.periodsCount; k++ {
		offset := float64(g.orientation*k) * g.periodAngle
		for _, r := range g.periodRays {
			rays = append(rays, r.Rotate(offset))
		}
	}
	return rays
}

// Bounds returns the bounding square of the gear's circular envelope.
func (g *Gear) Bounds() geom.Rect {
	return geom.Rect{
		Min: geom.Coord{X: g.center.X - g.maxRadius, Y: g.center.Y - g.maxRadius},
		Max: geom.Coord{X: g.center.X + g.maxRadius, Y: g.center.Y + g.maxRadius},
	}
}

func (g *Gear) String() string {
	kind := "root"
	if g.parent != nil {
		kind = "driven"
	}
	return fmt.Sprintf("Gear(%s, center=(%.3f, %.3f), periods=%d, radius=[%.3f, %.3f])",
		kind, g.center.X, g.center.Y, g.periodsCount, g.minRadius, g.maxRadius)
}

// finite reports whether every derived quantity is a real number.
func (g *Gear) finite() bool {
	values := []float64{g.center.X, g.center.Y, g.periodSurface, g.periodSweep, g.minRadius, g.maxRadius}
	for _, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return g.periodSurface > 0 && g.periodSweep > 0 && g.minRadius > 0
}
