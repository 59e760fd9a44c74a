// Package polar provides the polar-form pitch curve model: angle helpers,
// rays (angle, radius) around a gear center, periodic curves and the shape
// generators that produce them.
package polar

import "math"

// TwoPi is a full revolution in radians.
const TwoPi = 2 * math.Pi

// makeAnglePositive shifts a negative angle up by whole turns.
// Ceiling-based so that the result is never negative.
func makeAnglePositive(angle float64) float64 {
	if angle < 0 {
		angle += TwoPi * math.Ceil(-angle/TwoPi)
	}
	return angle
}

// NormalizeAngle maps any angle into [0, 2π).
func NormalizeAngle(angle float64) float64 {
	angle = math.Mod(makeAnglePositive(angle), TwoPi)
	// Mod can round up to exactly 2π for inputs a hair below a whole turn.
	if angle >= TwoPi {
		angle = 0
	}
	return angle
}

// AngleDifference returns the unsigned shortest angular distance between two
// angles, always in [0, π]. It is symmetric in its arguments.
func AngleDifference(a1, a2 float64) float64 {
	diff := NormalizeAngle(a2 - a1)
	if diff > math.Pi {
		diff = TwoPi - diff
	}
	return diff
}
