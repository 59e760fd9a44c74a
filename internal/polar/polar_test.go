package polar

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeAngle(t *testing.T) {
	inputs := []float64{0, 1, -1, math.Pi, -math.Pi, TwoPi, -TwoPi, 7.5, -7.5, 100.25, -100.25, 1e-17, -1e-17}
	for _, a := range inputs {
		got := NormalizeAngle(a)
		assert.GreaterOrEqual(t, got, 0.0, "input %v", a)
		assert.Less(t, got, TwoPi, "input %v", a)

		for k := -3; k <= 3; k++ {
			shifted := NormalizeAngle(a + TwoPi*float64(k))
			// Compare on the circle: 0 and 2π-ε are neighbours.
			assert.InDelta(t, 0, AngleDifference(got, shifted), 1e-9, "input %v, k %d", a, k)
		}
	}

	assert.InDelta(t, math.Pi, NormalizeAngle(-math.Pi), 1e-12)
	assert.InDelta(t, TwoPi-1, NormalizeAngle(-1), 1e-12)
	assert.Equal(t, 0.0, NormalizeAngle(TwoPi))
}

func TestAngleDifference(t *testing.T) {
	tests := []struct {
		a, b float64
		want float64
	}{
		{0, 1, 1},
		{1, 0, 1},
		{0, math.Pi, math.Pi},
		{0.1, TwoPi - 0.1, 0.2},
		{TwoPi - 0.1, 0.1, 0.2},
		{-0.5, 0.5, 1},
		{3, 3, 0},
	}
	for _, tt := range tests {
		assert.InDelta(t, tt.want, AngleDifference(tt.a, tt.b), 1e-12, "AngleDifference(%v, %v)", tt.a, tt.b)
	}

	for a := -7.0; a < 7; a += 0.37 {
		for b := -7.0; b < 7; b += 0.53 {
			d := AngleDifference(a, b)
			assert.GreaterOrEqual(t, d, 0.0)
			assert.LessOrEqual(t, d, math.Pi)
			assert.InDelta(t, d, AngleDifference(b, a), 1e-12)
		}
	}
}

func TestDistance(t *testing.T) {
	r1 := Ray{Angle: 0, Radius: 3}
	r2 := Ray{Angle: math.Pi / 2, Radius: 4}
	assert.InDelta(t, 5, Distance(r1, r2), 1e-12)
	assert.InDelta(t, 5, Distance(r2, r1), 1e-12)

	// Same direction: radial difference.
	assert.InDelta(t, 1, Distance(Ray{Angle: 1, Radius: 2}, Ray{Angle: 1, Radius: 3}), 1e-12)
	assert.Equal(t, 0.0, Distance(Ray{Angle: 1, Radius: 2}, Ray{Angle: 1, Radius: 2}))

	// Matches the Cartesian distance.
	a := Ray{Angle: 0.3, Radius: 1.7}
	b := Ray{Angle: 5.9, Radius: 0.4}
	assert.InDelta(t, a.Point().DistanceFrom(b.Point()), Distance(a, b), 1e-12)
}

func TestNormal(t *testing.T) {
	// Chord from (1,0) to (0,1): outward normal is (√2/2, √2/2).
	n := Normal(Ray{Angle: 0, Radius: 1}, Ray{Angle: math.Pi / 2, Radius: 1})
	assert.InDelta(t, math.Sqrt2/2, n.X, 1e-12)
	assert.InDelta(t, math.Sqrt2/2, n.Y, 1e-12)

	// Order of the rays does not flip the direction.
	n = Normal(Ray{Angle: math.Pi / 2, Radius: 1}, Ray{Angle: 0, Radius: 1})
	assert.InDelta(t, math.Sqrt2/2, n.X, 1e-12)
	assert.InDelta(t, math.Sqrt2/2, n.Y, 1e-12)

	for _, pair := range [][2]Ray{
		{{Angle: 2, Radius: 0.5}, {Angle: 2.2, Radius: 0.7}},
		{{Angle: 6.2, Radius: 1}, {Angle: 0.1, Radius: 1.3}},
		{{Angle: 4, Radius: 2}, {Angle: 4, Radius: 2}},
	} {
		n := Normal(pair[0], pair[1])
		assert.InDelta(t, 1, n.Magnitude(), 1e-12)
		mid := pair[0].Point().Plus(pair[1].Point()).Times(0.5)
		assert.GreaterOrEqual(t, n.X*mid.X+n.Y*mid.Y, 0.0)
	}
}

func TestGeneratorsTile(t *testing.T) {
	builders := map[string]func() (PolarCurve, error){
		"ellipse":      func() (PolarCurve, error) { return Ellipse(0.2, 0.1) },
		"circle":       func() (PolarCurve, error) { return Circle(0.1) },
		"triangle":     func() (PolarCurve, error) { return Polygon(0.1, 3) },
		"pentagon":     func() (PolarCurve, error) { return Polygon(0.1, 5) },
		"off-circle":   func() (PolarCurve, error) { return OffCircle(0.1, 0.06) },
		"off-square":   func() (PolarCurve, error) { return OffPolygon(0.1, 4, 0.6) },
		"heart":        func() (PolarCurve, error) { return Heart(0.017) },
		"random":       func() (PolarCurve, error) { return Random(0.1, 42) },
		"random-other": func() (PolarCurve, error) { return Random(0.1, 7) },
	}

	for name, build := range builders {
		t.Run(name, func(t *testing.T) {
			curve, err := build()
			require.NoError(t, err)
			require.NoError(t, curve.Validate())

			rays := curve.Rays()
			require.Len(t, rays, len(curve.PeriodRays)*curve.PeriodsCount)
			assert.Equal(t, 0.0, rays[0].Angle)
			for i := 1; i < len(rays); i++ {
				assert.Greater(t, rays[i].Angle, rays[i-1].Angle, "ray %d", i)
				assert.Less(t, rays[i].Angle-rays[i-1].Angle, math.Pi, "ray %d", i)
			}
			assert.Less(t, rays[len(rays)-1].Angle, TwoPi)

			minR, maxR := curve.Bounds()
			assert.Greater(t, minR, 0.0)
			assert.GreaterOrEqual(t, maxR, minR)
		})
	}
}

func TestGeneratorShapes(t *testing.T) {
	ellipse, err := Ellipse(0.2, 0.1)
	require.NoError(t, err)
	minR, maxR := ellipse.Bounds()
	assert.InDelta(t, 0.2, maxR, 1e-12)
	assert.InDelta(t, 0.1, minR, 1e-12)
	assert.Equal(t, 2, ellipse.PeriodsCount)

	square, err := Polygon(1, 4)
	require.NoError(t, err)
	assert.InDelta(t, 1, square.PeriodRays[0].Radius, 1e-12)
	minR, _ = square.Bounds()
	assert.InDelta(t, math.Sqrt2/2, minR, 1e-12)

	off, err := OffCircle(1, 0.5)
	require.NoError(t, err)
	minR, maxR = off.Bounds()
	assert.InDelta(t, 0.5, minR, 1e-12)
	assert.InDelta(t, 1.5, maxR, 1e-12)

	a, err := Random(0.1, 3)
	require.NoError(t, err)
	b, err := Random(0.1, 3)
	require.NoError(t, err)
	assert.Equal(t, a, b)
	minR, maxR = a.Bounds()
	assert.GreaterOrEqual(t, minR, 0.06-1e-12)
	assert.LessOrEqual(t, maxR, 0.14+1e-12)
}

func TestGeneratorErrors(t *testing.T) {
	_, err := Ellipse(0, 1)
	assert.ErrorIs(t, err, ErrInvalidShape)
	_, err = Polygon(1, 2)
	assert.ErrorIs(t, err, ErrInvalidShape)
	_, err = OffCircle(1, 1)
	assert.ErrorIs(t, err, ErrInvalidShape)
	_, err = OffPolygon(1, 4, 1)
	assert.ErrorIs(t, err, ErrInvalidShape)
	_, err = Heart(-1)
	assert.ErrorIs(t, err, ErrInvalidShape)
	_, err = Random(0, 1)
	assert.ErrorIs(t, err, ErrInvalidShape)
}

func TestValidateAcceptsNarrowGaps(t *testing.T) {
	triangle := PolarCurve{PeriodRays: []Ray{{Angle: 0, Radius: 1}}, PeriodsCount: 3}
	assert.NoError(t, triangle.Validate())

	wrapped := PolarCurve{PeriodRays: []Ray{{Angle: 0, Radius: 1}, {Angle: 3, Radius: 2}, {Angle: 6, Radius: 1}}, PeriodsCount: 1}
	assert.NoError(t, wrapped.Validate())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name  string
		curve PolarCurve
	}{
		{"no periods", PolarCurve{PeriodRays: []Ray{{Angle: 0, Radius: 1}}, PeriodsCount: 0}},
		{"no rays", PolarCurve{PeriodsCount: 1}},
		{"zero radius", PolarCurve{PeriodRays: []Ray{{Angle: 0, Radius: 0}}, PeriodsCount: 1}},
		{"outside period", PolarCurve{PeriodRays: []Ray{{Angle: 0, Radius: 1}, {Angle: 4, Radius: 1}}, PeriodsCount: 2}},
		{"unordered", PolarCurve{PeriodRays: []Ray{{Angle: 1, Radius: 1}, {Angle: 0.5, Radius: 1}}, PeriodsCount: 1}},
		{"wide closing gap", PolarCurve{PeriodRays: []Ray{{Angle: 0, Radius: 1}, {Angle: 0.1, Radius: 1}}, PeriodsCount: 1}},
		{"wide inner gap", PolarCurve{PeriodRays: []Ray{{Angle: 0, Radius: 1}, {Angle: 3.5, Radius: 1}, {Angle: 6, Radius: 1}}, PeriodsCount: 1}},
		{"single ray half turn", PolarCurve{PeriodRays: []Ray{{Angle: 0, Radius: 1}}, PeriodsCount: 2}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, tt.curve.Validate(), ErrInvalidCurve)
		})
	}
}
