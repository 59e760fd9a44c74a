// Central gear shapes and the curve each one is built from.
package scene

import (
	"fmt"
	"math/rand"

	"github.com/talgya/gearworks/internal/polar"
)

// Shape names the pitch curve of a scene's main gear.
type Shape string

const (
	ShapeEllipse     Shape = "ellipse"
	ShapeHeart       Shape = "heart"
	ShapeTriangle    Shape = "triangle"
	ShapeSquare      Shape = "square"
	ShapePentagon    Shape = "pentagon"
	ShapeRandom      Shape = "random"
	ShapeCircle      Shape = "circle"
	ShapeOffCircle   Shape = "off-circle"
	ShapeOffTriangle Shape = "off-triangle"
	ShapeOffSquare   Shape = "off-square"
	ShapeOffPentagon Shape = "off-pentagon"
)

// GearSize is the nominal radius of a scene's main gear.
const GearSize = 0.1

var shapes = []Shape{
	ShapeEllipse, ShapeHeart, ShapeTriangle, ShapeSquare, ShapePentagon, ShapeRandom,
	ShapeCircle, ShapeOffCircle, ShapeOffTriangle, ShapeOffSquare, ShapeOffPentagon,
}

// Shapes lists every known shape.
func Shapes() []Shape {
	out := make([]Shape, len(shapes))
	copy(out, shapes)
	return out
}

// ParseShape validates a shape name.
func ParseShape(name string) (Shape, error) {
	for _, s := range shapes {
		if string(s) == name {
			return s, nil
		}
	}
	return "", fmt.Errorf("unknown shape %q", name)
}

func (s Shape) String() string { return string(s) }

// Shifted returns the off-center variant of circles and regular polygons.
// Other shapes have no such variant and are returned unchanged.
func (s Shape) Shifted() Shape {
	switch s {
	case ShapeCircle:
		return ShapeOffCircle
	case ShapeTriangle:
		return ShapeOffTriangle
	case ShapeSquare:
		return ShapeOffSquare
	case ShapePentagon:
		return ShapeOffPentagon
	}
	return s
}

// BuildCurve builds the pitch curve for shape at the given size. Shapes
// with free parameters draw them from rng.
func BuildCurve(shape Shape, size float64, rng *rand.Rand) (polar.PolarCurve, error) {
	switch shape {
	case ShapeEllipse:
		return polar.Ellipse(size, between(rng, 0.2, 0.6)*size)
	case ShapeHeart:
		return polar.Heart(0.17 * size)
	case ShapeOffCircle:
		return polar.OffCircle(size, between(rng, 0.3, 0.9)*size)
	case ShapeTriangle:
		return polar.Polygon(size, 3)
	case ShapeSquare:
		return polar.Polygon(size, 4)
	case ShapePentagon:
		return polar.Polygon(size, 5)
	case ShapeOffTriangle:
		return polar.OffPolygon(size, 3, 0.6)
	case ShapeOffSquare:
		return polar.OffPolygon(size, 4, 0.6)
	case ShapeOffPentagon:
		return polar.OffPolygon(size, 5, 0.6)
	case ShapeCircle:
		return polar.Circle(size)
	case ShapeRandom:
		return polar.Random(size, rng.Int63())
	}
	return polar.PolarCurve{}, fmt.Errorf("build curve: unknown shape %q", shape)
}

func between(rng *rand.Rand, lo, hi float64) float64 {
	return lo + (hi-lo)*rng.Float64()
}
