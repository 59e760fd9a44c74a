package main

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/talgya/gearworks/internal/scene"
)

func TestCellPoint(t *testing.T) {
	vp := viewportFor(80, 20)
	assert.InDelta(t, 2.0, vp.Width(), 1e-12, "80x20 cells are square on screen")
	assert.InDelta(t, 2.0, vp.Height(), 1e-12)

	p := cellPoint(vp, 80, 20, 0, 0)
	assert.InDelta(t, -1+0.5/80*2, p.X, 1e-12)
	assert.InDelta(t, -1+0.5/20*2, p.Y, 1e-12)

	p = cellPoint(vp, 80, 20, 79, 19)
	assert.InDelta(t, 1-0.5/80*2, p.X, 1e-12)
	assert.InDelta(t, 1-0.5/20*2, p.Y, 1e-12)
}

func TestNextShape(t *testing.T) {
	shapes := scene.Shapes()
	s := shapes[0]
	for range shapes {
		s = nextShape(s)
	}
	assert.Equal(t, shapes[0], s)
	assert.Equal(t, shapes[0], nextShape("unknown"))
}

func TestNextTeeth(t *testing.T) {
	show, size := false, scene.TeethMedium
	var seen []scene.TeethSize
	for i := 0; i < 4; i++ {
		show, size = nextTeeth(show, size)
		if show {
			seen = append(seen, size)
		}
	}
	assert.False(t, show)
	assert.Equal(t, []scene.TeethSize{scene.TeethSmall, scene.TeethMedium, scene.TeethLarge}, seen)
}
