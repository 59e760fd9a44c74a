// Random pitch curves from layered simplex noise sampled around a circle, so
// the curve closes on itself.
package polar

import (
	"fmt"
	"math"

	opensimplex "github.com/ojrac/opensimplex-go"
)

const (
	randomRays        = 100
	randomOctaves     = 3
	randomFrequency   = 0.9
	randomPersistence = 0.5
)

// Random builds a single-period blob whose radius varies in
// [0.6, 1.4]·size. The same seed always yields the same curve.
func Random(size float64, seed int64) (PolarCurve, error) {
	if size <= 0 {
		return PolarCurve{}, fmt.Errorf("%w: random size %v", ErrInvalidShape, size)
	}

	noise := opensimplex.NewNormalized(seed)

	rays := make([]Ray, 0, randomRays)
	for i := 0; i < randomRays; i++ {
		angle := TwoPi * float64(i) / randomRays
		sin, cos := math.Sincos(angle)
		n := octaveNoise(noise, cos, sin, randomOctaves, randomFrequency, randomPersistence)
		rays = append(rays, Ray{Angle: angle, Radius: size * (0.6 + 0.8*n)})
	}
	return PolarCurve{PeriodRays: rays, PeriodsCount: 1}, nil
}

// octaveNoise generates fractal noise by layering multiple frequencies.
func octaveNoise(noise opensimplex.Noise, x, y float64, octaves int, frequency, persistence float64) float64 {
	total := 0.0
	amplitude := 1.0
	maxVal := 0.0

	for i := 0; i < octaves; i++ {
		total += noise.Eval2(x*frequency, y*frequency) * amplitude
		maxVal += amplitude
		amplitude *= persistence
		frequency *= 2
	}

	return total / maxVal
}
