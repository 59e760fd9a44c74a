// Rotation coupling. A driven gear's rotation is a function of its driver's:
// the arc length rolled along the driver's pitch curve equals the arc length
// rolled along the driven one.
package gear

import (
	"fmt"
	"math"

	"github.com/talgya/gearworks/internal/polar"
)

// Rotate turns a root gear by delta radians. Driven gears only move through
// Update.
func (g *Gear) Rotate(delta float64) error {
	if g.parent != nil {
		return ErrDrivenRotation
	}
	g.rotation = polar.NormalizeAngle(g.rotation + delta)
	return nil
}

// Update recomputes a driven gear's rotation from its driver's current
// rotation. The driver must be up to date. No-op for root gears.
func (g *Gear) Update() {
	m := g.parent
	if m == nil {
		return
	}

	bearing := math.Atan2(g.center.Y-m.center.Y, g.center.X-m.center.X)

	// How far the contact point has travelled along the driver's rays.
	progress := polar.NormalizeAngle(float64(m.orientation) * (bearing - m.rotation - m.phase))
	surface := m.surfaceAt(progress)
	theta := g.progressAt(surface)

	// The driven contact faces the driver, at bearing + π in world space.
	g.rotation = polar.NormalizeAngle(bearing + math.Pi - g.phase - float64(g.orientation)*theta)
}

// surfaceAt returns the chord length walked from the first period ray to the
// given progress angle, in traversal order. Whole periods count as
// periodSurface each.
func (g *Gear) surfaceAt(progress float64) float64 {
	progress = math.Max(0, progress)
	periods := math.Floor(progress / g.periodAngle)
	local := (progress - periods*g.periodAngle) * g.periodSweep / g.periodAngle

	cumAngle, cumSurface := 0.0, 0.0
	for _, seg := range g.periodSegments {
		next := cumAngle + seg.DeltaAngle
		if next >= local {
			partial := 0.0
			if seg.DeltaAngle > 0 {
				partial = (local - cumAngle) / seg.DeltaAngle * seg.DeltaDistance
			}
			return periods*g.periodSurface + cumSurface + partial
		}
		cumAngle = next
		cumSurface += seg.DeltaDistance
	}
	return (periods + 1) * g.periodSurface
}

// progressAt is the inverse of surfaceAt.
func (g *Gear) progressAt(surface float64) float64 {
	periods := math.Floor(surface / g.periodSurface)
	local := math.Min(surface-periods*g.periodSurface, g.periodSurface)

	cumAngle, cumSurface := 0.0, 0.0
	for _, seg := range g.periodSegments {
		next := cumSurface + seg.DeltaDistance
		if next >= local {
			partial := 0.0
			if seg.DeltaDistance > 0 {
				partial = (local - cumSurface) / seg.DeltaDistance * seg.DeltaAngle
			}
			return periods*g.periodAngle + (cumAngle+partial)*g.periodAngle/g.periodSweep
		}
		cumSurface = next
		cumAngle += seg.DeltaAngle
	}
	panic(fmt.Sprintf("gear: surface %v walks past the period (period surface %v)", surface, g.periodSurface))
}

// RadiusAt returns the pitch radius in the gear's own frame at localAngle,
// interpolated linearly between the surrounding rays.
func (g *Gear) RadiusAt(localAngle float64) float64 {
	progress := polar.NormalizeAngle(float64(g.orientation) * (localAngle - g.phase))
	periods := math.Floor(progress / g.periodAngle)
	local := (progress - periods*g.periodAngle) * g.periodSweep / g.periodAngle

	cumAngle := 0.0
	for _, seg := range g.periodSegments {
		next := cumAngle + seg.DeltaAngle
		if next >= local {
			f := 0.0
			if seg.DeltaAngle > 0 {
				f = (local - cumAngle) / seg.DeltaAngle
			}
			return seg.From.Radius + f*(seg.To.Radius-seg.From.Radius)
		}
		cumAngle = next
	}
	return g.periodRays[0].Radius
}
