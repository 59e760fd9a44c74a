// Companion synthesis: given a driver, build the pitch curve of a gear that
// rolls against it without slipping at a fixed center distance.
package gear

import (
	"fmt"
	"log/slog"
	"math"

	"github.com/jbeda/geom"

	"github.com/talgya/gearworks/internal/polar"
)

const (
	maxFitIterations    = 200
	fitStep             = 0.5
	acosTolerance       = 1e-9
	coincidentTolerance = 1e-12
)

// Fit describes how a companion's period was closed.
type Fit struct {
	Distance     float64 `json:"distance"`      // Center distance
	Period       float64 `json:"period"`        // Fractional number of companion periods per revolution
	TargetPeriod int     `json:"target_period"` // ceil(Period)
	Error        float64 `json:"error"`         // TargetPeriod - Period, the residual closure error
	Iterations   int     `json:"iterations"`
	Converged    bool    `json:"converged"`
}

type trial struct {
	distance     float64
	periodRays   []polar.Ray
	period       float64
	targetPeriod int
	error        float64
}

// companionPeriod walks one period of the driver and lays down the matching
// rays of a gear at the given center distance. Each driver segment maps to a
// companion step of equal chord length whose endpoints sit at distance - r
// from the companion center.
func companionPeriod(distance float64, master *Gear) (trial, error) {
	rays := make([]polar.Ray, 0, len(master.periodSegments))
	angle := 0.0

	for i, seg := range master.periodSegments {
		r1 := distance - seg.From.Radius
		r2 := distance - seg.To.Radius
		if !(r1 > 0 && r2 > 0) {
			return trial{}, fmt.Errorf("%w: segment %d has non-positive companion radius at distance %v", ErrDegenerate, i, distance)
		}
		rays = append(rays, polar.Ray{Angle: angle, Radius: r1})

		cos := (r1*r1 + r2*r2 - seg.DeltaDistance*seg.DeltaDistance) / (2 * r1 * r2)
		switch {
		case math.IsNaN(cos) || cos > 1+acosTolerance || cos < -1-acosTolerance:
			return trial{}, fmt.Errorf("%w: segment %d cannot be closed at distance %v (cos %v)", ErrDegenerate, i, distance, cos)
		case cos > 1:
			cos = 1
		case cos < -1:
			cos = -1
		}
		angle += math.Acos(cos)
	}

	if !(angle > 0) {
		return trial{}, fmt.Errorf("%w: companion period sweeps no angle at distance %v", ErrDegenerate, distance)
	}

	if master.orientation > 0 {
		for i := range rays {
			rays[i].Angle = math.Pi - rays[i].Angle
		}
	}

	period := polar.TwoPi / angle
	target := math.Ceil(period)
	return trial{
		distance:     distance,
		periodRays:   rays,
		period:       period,
		targetPeriod: int(target),
		error:        target - period,
	}, nil
}

// fittingDistance searches for the center distance at which the companion
// period divides the revolution an integral number of times. The distance
// grows by a fixed step until a trial overshoots, then the bracket is
// bisected. The best trial found is returned even when the budget runs out.
func fittingDistance(idealDistance float64, master *Gear) (Fit, error) {
	tooLow, err := companionPeriod(idealDistance, master)
	if err != nil {
		return Fit{}, err
	}

	var tooHigh *trial
	iterations := 1
	converged := tooLow.error == 0

	for !converged && iterations < maxFitIterations {
		next := tooLow.distance + fitStep
		if tooHigh != nil {
			next = 0.5 * (tooLow.distance + tooHigh.distance)
		}
		if next == tooLow.distance || (tooHigh != nil && next == tooHigh.distance) {
			// Bracket collapsed to adjacent floats.
			converged = true
			break
		}

		current, err := companionPeriod(next, master)
		if err != nil {
			return Fit{}, err
		}
		iterations++

		if current.targetPeriod > tooLow.targetPeriod || current.error > tooLow.error {
			tooHigh = &current
		} else {
			tooLow = current
			converged = tooLow.error == 0
		}
	}

	return Fit{
		Distance:     tooLow.distance,
		Period:       tooLow.period,
		TargetPeriod: tooLow.targetPeriod,
		Error:        tooLow.error,
		Iterations:   iterations,
		Converged:    converged,
	}, nil
}

// Slave builds a companion of master whose center lies on the ray from
// master's center toward idealCenter, at the nearest distance that closes
// the companion's period. Every failure wraps ErrNoMesh.
func Slave(idealCenter geom.Coord, master *Gear) (*Gear, error) {
	offset := idealCenter.Minus(master.center)
	requested := offset.Magnitude()
	if math.IsNaN(requested) || requested < coincidentTolerance {
		return nil, fmt.Errorf("%w: %w", ErrNoMesh, ErrCoincidentCenter)
	}

	idealDistance := math.Max(master.maxRadius+Margin, requested)
	fit, err := fittingDistance(idealDistance, master)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNoMesh, err)
	}

	companion, err := companionPeriod(fit.Distance, master)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNoMesh, err)
	}

	direction := offset.Times(1 / requested)
	center := master.center.Plus(direction.Times(fit.Distance))

	g := newGear(center, companion.periodRays, companion.targetPeriod, -master.orientation)
	g.parent = master
	g.fit = fit
	if !g.finite() {
		return nil, fmt.Errorf("%w: %w: non-finite companion at distance %v", ErrNoMesh, ErrDegenerate, fit.Distance)
	}

	slog.Debug("companion fitted",
		"distance", fit.Distance,
		"periods", fit.TargetPeriod,
		"error", fit.Error,
		"iterations", fit.Iterations,
		"converged", fit.Converged,
	)

	g.Update()
	return g, nil
}

// distanceTolerance bounds how far a center may sit from the distance it is
// rebuilt at, relative to that distance.
const distanceTolerance = 1e-9

// SlaveAt rebuilds a companion of master at a distance that was already
// fitted, typically the Closure().Distance of a gear made by Slave. No search
// runs, so the same master and distance always give the same gear. center
// must lie at that distance from master. Every failure wraps ErrNoMesh.
func SlaveAt(center geom.Coord, distance float64, master *Gear) (*Gear, error) {
	actual := center.DistanceFrom(master.center)
	if math.IsNaN(actual) || actual < coincidentTolerance {
		return nil, fmt.Errorf("%w: %w", ErrNoMesh, ErrCoincidentCenter)
	}
	if math.IsNaN(distance) || math.Abs(actual-distance) > distanceTolerance*math.Max(1, distance) {
		return nil, fmt.Errorf("%w: center is %v from its driver, not %v", ErrNoMesh, actual, distance)
	}

	companion, err := companionPeriod(distance, master)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNoMesh, err)
	}

	g := newGear(center, companion.periodRays, companion.targetPeriod, -master.orientation)
	g.parent = master
	g.fit = Fit{
		Distance:     distance,
		Period:       companion.period,
		TargetPeriod: companion.targetPeriod,
		Error:        companion.error,
		Converged:    companion.error == 0,
	}
	if !g.finite() {
		return nil, fmt.Errorf("%w: %w: non-finite companion at distance %v", ErrNoMesh, ErrDegenerate, distance)
	}

	g.Update()
	return g, nil
}
