package polar

import (
	"errors"
	"fmt"
	"math"
)

// ErrInvalidCurve is returned when a curve breaks the tiling invariant.
var ErrInvalidCurve = errors.New("invalid polar curve")

// PolarCurve is one period of a pitch curve plus the number of periods that
// tile a full revolution.
type PolarCurve struct {
	PeriodRays   []Ray `json:"period_rays"`
	PeriodsCount int   `json:"periods_count"`
}

// PeriodAngle returns the angular extent of one period.
func (c PolarCurve) PeriodAngle() float64 {
	return TwoPi / float64(c.PeriodsCount)
}

// Validate checks that the period rays tile [0, 2π) once replicated:
// at least one period, positive radii, and angles strictly increasing
// within [0, PeriodAngle).
func (c PolarCurve) Validate() error {
	if c.PeriodsCount < 1 {
		return fmt.Errorf("%w: periods count %d", ErrInvalidCurve, c.PeriodsCount)
	}
	if len(c.PeriodRays) == 0 {
		return fmt.Errorf("%w: no rays", ErrInvalidCurve)
	}

	periodAngle := c.PeriodAngle()
	prev := -1.0
	for i, ray := range c.PeriodRays {
		if math.IsNaN(ray.Radius) || math.IsInf(ray.Radius, 0) || ray.Radius <= 0 {
			return fmt.Errorf("%w: ray %d has radius %v", ErrInvalidCurve, i, ray.Radius)
		}
		if math.IsNaN(ray.Angle) || ray.Angle < 0 || ray.Angle >= periodAngle {
			return fmt.Errorf("%w: ray %d angle %v outside [0, %v)", ErrInvalidCurve, i, ray.Angle, periodAngle)
		}
		if ray.Angle <= prev {
			return fmt.Errorf("%w: ray %d angle %v not increasing", ErrInvalidCurve, i, ray.Angle)
		}
		if i > 0 && ray.Angle-prev >= math.Pi {
			return fmt.Errorf("%w: gap of %v before ray %d", ErrInvalidCurve, ray.Angle-prev, i)
		}
		prev = ray.Angle
	}

	// Segments must take the short way around, including the one that
	// closes the period on the next period's first ray.
	if gap := c.PeriodRays[0].Angle + periodAngle - prev; gap >= math.Pi {
		return fmt.Errorf("%w: closing gap of %v", ErrInvalidCurve, gap)
	}
	return nil
}

// Rays returns the full revolution: the period rays replicated at every
// period offset, in increasing angle order.
func (c PolarCurve) Rays() []Ray {
	periodAngle := c.PeriodAngle()
	rays := make([]Ray, 0, len(c.PeriodRays)*c.PeriodsCount)
	for k := 0; k < c.PeriodsCount; k++ {
		offset := float64(k) * periodAngle
		for _, r := range c.PeriodRays {
			rays = append(rays, Ray{Angle: r.Angle + offset, Radius: r.Radius})
		}
	}
	return rays
}

// Bounds returns the smallest and largest radius of the curve.
func (c PolarCurve) Bounds() (minRadius, maxRadius float64) {
	minRadius = math.Inf(1)
	maxRadius = math.Inf(-1)
	for _, r := range c.PeriodRays {
		minRadius = math.Min(minRadius, r.Radius)
		maxRadius = math.Max(maxRadius, r.Radius)
	}
	return minRadius, maxRadius
}

// Clone returns a deep copy.
func (c PolarCurve) Clone() PolarCurve {
	rays := make([]Ray, len(c.PeriodRays))
	copy(rays, c.PeriodRays)
	return PolarCurve{PeriodRays: rays, PeriodsCount: c.PeriodsCount}
}
