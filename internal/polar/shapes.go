// Shape generators. Every generator samples one period of a closed curve in
// polar form around the gear center and reports how many periods tile the
// full revolution.
package polar

import (
	"errors"
	"fmt"
	"math"
)

// ErrInvalidShape is returned for out-of-range generator parameters.
var ErrInvalidShape = errors.New("invalid shape parameters")

const (
	ellipsePeriodSteps = 30
	circlePeriodsCount = 60
	polygonPeriodSteps = 30
	offPolygonSideRays = 40
	offCircleRays      = 120
	heartRays          = 120
)

// Ellipse builds an ellipse with semi-axes a (along x) and b.
// Two periods of 30 rays each.
func Ellipse(a, b float64) (PolarCurve, error) {
	if a <= 0 || b <= 0 {
		return PolarCurve{}, fmt.Errorf("%w: ellipse axes %v, %v", ErrInvalidShape, a, b)
	}

	const periodsCount = 2
	rays := make([]Ray, 0, ellipsePeriodSteps)
	for i := 0; i < ellipsePeriodSteps; i++ {
		angle := math.Pi * float64(i) / ellipsePeriodSteps
		bc := b * math.Cos(angle)
		as := a * math.Sin(angle)
		rays = append(rays, Ray{
			Angle:  angle,
			Radius: a * b / math.Sqrt(bc*bc+as*as),
		})
	}
	return PolarCurve{PeriodRays: rays, PeriodsCount: periodsCount}, nil
}

// Circle builds a circle as 60 identical periods of two rays.
func Circle(radius float64) (PolarCurve, error) {
	if radius <= 0 {
		return PolarCurve{}, fmt.Errorf("%w: circle radius %v", ErrInvalidShape, radius)
	}

	raysCount := 2 * circlePeriodsCount
	rays := make([]Ray, 0, 2)
	for i := 0; i < 2; i++ {
		rays = append(rays, Ray{
			Angle:  TwoPi * float64(i) / float64(raysCount),
			Radius: radius,
		})
	}
	return PolarCurve{PeriodRays: rays, PeriodsCount: circlePeriodsCount}, nil
}

// Polygon builds a regular polygon with the given circumradius and a vertex
// on the positive x axis. One period per side.
func Polygon(radius float64, sides int) (PolarCurve, error) {
	if radius <= 0 || sides < 3 {
		return PolarCurve{}, fmt.Errorf("%w: polygon radius %v, sides %d", ErrInvalidShape, radius, sides)
	}

	periodAngle := TwoPi / float64(sides)
	half := periodAngle / 2
	apothem := radius * math.Cos(half)

	rays := make([]Ray, 0, polygonPeriodSteps)
	for i := 0; i < polygonPeriodSteps; i++ {
		angle := periodAngle * float64(i) / polygonPeriodSteps
		rays = append(rays, Ray{
			Angle:  angle,
			Radius: apothem / math.Cos(angle-half),
		})
	}
	return PolarCurve{PeriodRays: rays, PeriodsCount: sides}, nil
}

// OffCircle builds a circle of the given radius seen from a point shifted by
// offset along the x axis. The symmetry is lost, so there is a single period.
func OffCircle(radius, offset float64) (PolarCurve, error) {
	if radius <= 0 || offset < 0 || offset >= radius {
		return PolarCurve{}, fmt.Errorf("%w: off-circle radius %v, offset %v", ErrInvalidShape, radius, offset)
	}

	rays := make([]Ray, 0, offCircleRays)
	for i := 0; i < offCircleRays; i++ {
		angle := TwoPi * float64(i) / offCircleRays
		sin, cos := math.Sincos(angle)
		// |O + r·u| = radius with O = (offset, 0).
		r := -offset*cos + math.Sqrt(radius*radius-offset*offset*sin*sin)
		rays = append(rays, Ray{Angle: angle, Radius: r})
	}
	return PolarCurve{PeriodRays: rays, PeriodsCount: 1}, nil
}

// OffPolygon builds a regular polygon seen from a point shifted along the
// x axis by shift times the inradius. shift must be in [0, 1).
func OffPolygon(radius float64, sides int, shift float64) (PolarCurve, error) {
	if radius <= 0 || sides < 3 || shift < 0 || shift >= 1 {
		return PolarCurve{}, fmt.Errorf("%w: off-polygon radius %v, sides %d, shift %v", ErrInvalidShape, radius, sides, shift)
	}

	vertices := make([][2]float64, sides)
	for j := range vertices {
		sin, cos := math.Sincos(TwoPi * float64(j) / float64(sides))
		vertices[j] = [2]float64{radius * cos, radius * sin}
	}
	origin := [2]float64{shift * radius * math.Cos(math.Pi/float64(sides)), 0}

	count := sides * offPolygonSideRays
	rays := make([]Ray, 0, count)
	for i := 0; i < count; i++ {
		angle := TwoPi * float64(i) / float64(count)
		r, ok := castToPolygon(origin, angle, vertices)
		if !ok {
			return PolarCurve{}, fmt.Errorf("%w: no polygon edge hit at angle %v", ErrInvalidShape, angle)
		}
		rays = append(rays, Ray{Angle: angle, Radius: r})
	}
	return PolarCurve{PeriodRays: rays, PeriodsCount: 1}, nil
}

// castToPolygon returns the distance from origin to the polygon boundary in
// the given direction. origin must lie inside the polygon.
func castToPolygon(origin [2]float64, angle float64, vertices [][2]float64) (float64, bool) {
	const eps = 1e-12
	uy, ux := math.Sincos(angle)

	best := math.Inf(1)
	for j := range vertices {
		a := vertices[j]
		b := vertices[(j+1)%len(vertices)]
		ex, ey := b[0]-a[0], b[1]-a[1]
		wx, wy := a[0]-origin[0], a[1]-origin[1]

		denom := ux*ey - uy*ex
		if math.Abs(denom) < eps {
			continue
		}
		t := (wx*ey - wy*ex) / denom
		s := (wx*uy - wy*ux) / denom
		if t > eps && s >= -eps && s <= 1+eps && t < best {
			best = t
		}
	}
	return best, !math.IsInf(best, 1)
}

// Heart builds a rounded heart with its tip toward +y (screen down).
// The classic polar heart has a zero radius at the dent; a constant bias
// keeps every radius strictly positive.
func Heart(size float64) (PolarCurve, error) {
	if size <= 0 {
		return PolarCurve{}, fmt.Errorf("%w: heart size %v", ErrInvalidShape, size)
	}

	rays := make([]Ray, 0, heartRays)
	for i := 0; i < heartRays; i++ {
		angle := TwoPi * float64(i) / heartRays
		sin, cos := math.Sincos(angle)
		r := 2 + 2*sin - sin*math.Sqrt(math.Abs(cos))/(1.4-sin)
		rays = append(rays, Ray{Angle: angle, Radius: size * (r + 0.5)})
	}
	return PolarCurve{PeriodRays: rays, PeriodsCount: 1}, nil
}
