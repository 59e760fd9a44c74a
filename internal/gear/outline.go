// Outline geometry derived from the pitch curve: the smooth outline and
// trapezoid teeth walked along it by arc length. Outlines are computed on
// first use and kept for the life of the gear.
package gear

import (
	"fmt"
	"math"
	"strings"

	"github.com/jbeda/geom"

	"github.com/talgya/gearworks/internal/polar"
)

// SurfaceType selects how a gear's rim is drawn.
type SurfaceType int

const (
	Smooth SurfaceType = iota
	TeethSmall
	TeethMedium
	TeethLarge
)

const teethSamplesPerTooth = 8

var surfaceNames = [...]string{"smooth", "small", "medium", "large"}

func (s SurfaceType) String() string {
	if s < 0 || int(s) >= len(surfaceNames) {
		return fmt.Sprintf("SurfaceType(%d)", int(s))
	}
	return surfaceNames[s]
}

// ParseSurfaceType accepts the names returned by String.
func ParseSurfaceType(name string) (SurfaceType, error) {
	for i, n := range surfaceNames {
		if strings.EqualFold(n, name) {
			return SurfaceType(i), nil
		}
	}
	return Smooth, fmt.Errorf("unknown surface type %q", name)
}

// toothLength is the nominal arc length of one tooth and its gap.
func (s SurfaceType) toothLength() float64 {
	switch s {
	case TeethSmall:
		return 0.008
	case TeethMedium:
		return 0.015
	case TeethLarge:
		return 0.03
	}
	return 0
}

// Outline returns the closed rim of the gear in its own frame, unrotated.
// The returned slice is shared; callers must not modify it.
func (g *Gear) Outline(kind SurfaceType) []geom.Coord {
	g.outlineMu.Lock()
	defer g.outlineMu.Unlock()

	if g.outlines == nil {
		g.outlines = make(map[SurfaceType][]geom.Coord)
	}
	if pts, ok := g.outlines[kind]; ok {
		return pts
	}

	var pts []geom.Coord
	if length := kind.toothLength(); length > 0 {
		pts = g.teethOutline(length)
	} else {
		pts = g.smoothOutline()
	}
	g.outlines[kind] = pts
	return pts
}

// WorldOutline returns Outline(kind) rotated by the current rotation and
// moved to the gear center.
func (g *Gear) WorldOutline(kind SurfaceType) []geom.Coord {
	local := g.Outline(kind)
	sin, cos := math.Sincos(g.rotation)
	world := make([]geom.Coord, len(local))
	for i, p := range local {
		world[i] = geom.Coord{
			X: g.center.X + p.X*cos - p.Y*sin,
			Y: g.center.Y + p.X*sin + p.Y*cos,
		}
	}
	return world
}

func (g *Gear) smoothOutline() []geom.Coord {
	rays := g.Rays()
	pts := make([]geom.Coord, len(rays))
	for i, r := range rays {
		pts[i] = r.Point()
	}
	return pts
}

func (g *Gear) teethOutline(length float64) []geom.Coord {
	teeth := math.Max(1, math.Round(g.periodSurface/length))
	pitch := g.periodSurface / teeth
	height := 0.5 * pitch

	// Companions turn the other way; shifting them half a tooth puts their
	// teeth in the driver's gaps.
	phase := 0.0
	if g.orientation < 0 {
		phase = 0.5
	}

	step := pitch / teethSamplesPerTooth
	var period []geom.Coord
	walked := 0.0
	for _, seg := range g.periodSegments {
		samples := max(1, int(math.Ceil(seg.DeltaDistance/step)))
		from, to := seg.From.Point(), seg.To.Point()
		chord := to.Minus(from)
		normal := polar.Normal(seg.From, seg.To)

		for i := 0; i < samples; i++ {
			f := float64(i) / float64(samples)
			u := (walked+f*seg.DeltaDistance)/pitch + phase
			p := from.Plus(chord.Times(f))
			period = append(period, p.Plus(normal.Times(height*toothProfile(u))))
		}
		walked += seg.DeltaDistance
	}

	pts := make([]geom.Coord, 0, len(period)*g.periodsCount)
	for k := 0; k < g.periodsCount; k++ {
		sin, cos := math.Sincos(float64(g.orientation*k) * g.periodAngle)
		for _, p := range period {
			pts = append(pts, geom.Coord{X: p.X*cos - p.Y*sin, Y: p.X*sin + p.Y*cos})
		}
	}
	return pts
}

// toothProfile is a trapezoid over one tooth pitch, in [-0.5, 0.5]:
// root, rising flank, tip, falling flank, root. Shifting u by half a pitch
// negates it.
func toothProfile(u float64) float64 {
	u -= math.Floor(u)
	switch {
	case u < 0.2:
		return -0.5
	case u < 0.3:
		return -0.5 + (u-0.2)/0.1
	case u < 0.7:
		return 0.5
	case u < 0.8:
		return 0.5 - (u-0.7)/0.1
	}
	return -0.5
}
