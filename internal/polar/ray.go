package polar

import (
	"fmt"
	"math"

	"github.com/jbeda/geom"
)

// Ray is a point of a pitch curve in polar form, relative to the gear center.
type Ray struct {
	Angle  float64 `json:"angle"`  // Radians, normalized into [0, 2π)
	Radius float64 `json:"radius"` // Always > 0
}

// Point returns the Cartesian position of the ray's endpoint.
func (r Ray) Point() geom.Coord {
	return geom.Coord{
		X: r.Radius * math.Cos(r.Angle),
		Y: r.Radius * math.Sin(r.Angle),
	}
}

// Rotate returns the ray turned by delta radians.
func (r Ray) Rotate(delta float64) Ray {
	return Ray{Angle: NormalizeAngle(r.Angle + delta), Radius: r.Radius}
}

func (r Ray) String() string {
	return fmt.Sprintf("(%.4f rad, %.4f)", r.Angle, r.Radius)
}

// DeltaAngle returns the shortest angle between two rays.
func DeltaAngle(r1, r2 Ray) float64 {
	return AngleDifference(r1.Angle, r2.Angle)
}

// DistanceSquared returns the squared chord length between two ray endpoints
// (law of cosines).
func DistanceSquared(r1, r2 Ray) float64 {
	delta := DeltaAngle(r1, r2)
	return r1.Radius*r1.Radius + r2.Radius*r2.Radius - 2*r1.Radius*r2.Radius*math.Cos(delta)
}

// Distance returns the chord length between two ray endpoints.
func Distance(r1, r2 Ray) float64 {
	d2 := DistanceSquared(r1, r2)
	if d2 < 0 {
		// Rounding on nearly coincident rays.
		return 0
	}
	return math.Sqrt(d2)
}

// Normal returns the unit normal of the chord between two rays, pointing away
// from the origin. Coincident endpoints have no chord; the bisecting
// direction is returned instead.
func Normal(r1, r2 Ray) geom.Coord {
	p1 := r1.Point()
	p2 := r2.Point()
	chord := p2.Minus(p1)
	mid := p1.Plus(p2).Times(0.5)

	if chord.Magnitude() == 0 {
		if mid.Magnitude() == 0 {
			return geom.Coord{X: 1, Y: 0}
		}
		return mid.Unit()
	}

	n := geom.Coord{X: -chord.Y, Y: chord.X}.Unit()
	if n.X*mid.X+n.Y*mid.Y < 0 {
		n = n.Times(-1)
	}
	return n
}
