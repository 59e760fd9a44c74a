// Random scene population: scatter placement attempts over the viewport and
// keep the best of a few candidate layouts.
package scene

import (
	"errors"
	"fmt"
	"log/slog"
	"math/rand"

	"github.com/jbeda/geom"

	"github.com/talgya/gearworks/internal/gear"
)

const (
	randomCandidates  = 6
	randomAttempts    = 300
	randomMaxRadius   = 0.3
	randomMinAxleRoom = 1.2
)

// Random builds a scene around a main gear of the given shape and fills it
// with companions at random points. The same seed yields the same scene.
func Random(shape Shape, viewport geom.Rect, seed int64) (*Scene, error) {
	rng := rand.New(rand.NewSource(seed))

	var best *Scene
	for i := 0; i < randomCandidates; i++ {
		candidate, err := randomCandidate(shape, viewport, rng)
		if err != nil {
			return nil, err
		}
		if best == nil || len(candidate.secondary) > len(best.secondary) {
			best = candidate
		}
	}

	slog.Debug("random scene built", "shape", shape, "seed", seed, "gears", len(best.secondary)+1)
	return best, nil
}

func randomCandidate(shape Shape, viewport geom.Rect, rng *rand.Rand) (*Scene, error) {
	curve, err := BuildCurve(shape, GearSize, rng)
	if err != nil {
		return nil, err
	}
	main, err := gear.Create(geom.Coord{}, curve)
	if err != nil {
		return nil, fmt.Errorf("random scene: %w", err)
	}
	s, err := New(main, viewport)
	if err != nil {
		return nil, err
	}

	for i := 0; i < randomAttempts; i++ {
		p := geom.Coord{
			X: between(rng, viewport.Min.X, viewport.Max.X),
			Y: between(rng, viewport.Min.Y, viewport.Max.Y),
		}
		if s.insideGear(p) {
			continue
		}

		g, err := s.TryBuildGear(p)
		if err != nil {
			if errors.Is(err, gear.ErrNoMesh) || errors.Is(err, ErrOverlap) {
				continue
			}
			return nil, err
		}
		if g.MinRadius() > randomMinAxleRoom*gear.CenterRadius && g.MaxRadius() < randomMaxRadius {
			s.secondary = append(s.secondary, g)
		}
	}
	return s, nil
}

func (s *Scene) insideGear(p geom.Coord) bool {
	for _, g := range s.Gears() {
		if p.DistanceFrom(g.Center()) < g.MinRadius() {
			return true
		}
	}
	return false
}
