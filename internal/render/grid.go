// Terminal rendering: gears sampled onto a character grid.
package render

import (
	"strings"

	"github.com/gdamore/tcell/v2"
	"github.com/jbeda/geom"

	"github.com/talgya/gearworks/internal/gear"
)

// Cell runes.
const (
	RuneEmpty  = ' '
	RuneMain   = '@'
	RuneCW     = '+' // Companion turning with orientation +1
	RuneCCW    = 'o' // Companion turning with orientation -1
	RuneCenter = 'X'
)

// Grid is a row-major character raster of a scene.
type Grid struct {
	Cols, Rows int
	Cells      []rune
}

// At returns the rune at column x, row y.
func (g Grid) At(x, y int) rune {
	return g.Cells[y*g.Cols+x]
}

func (g Grid) String() string {
	var b strings.Builder
	for y := 0; y < g.Rows; y++ {
		b.WriteString(string(g.Cells[y*g.Cols : (y+1)*g.Cols]))
		b.WriteByte('\n')
	}
	return b.String()
}

// Rasterize samples every cell center of a cols×rows grid spanning the
// viewport against the gears' rotated outlines. The first gear is the main
// gear; later gears are drawn over earlier ones.
func Rasterize(gears []*gear.Gear, viewport geom.Rect, cols, rows int, kind gear.SurfaceType) Grid {
	grid := Grid{Cols: cols, Rows: rows, Cells: make([]rune, cols*rows)}
	for i := range grid.Cells {
		grid.Cells[i] = RuneEmpty
	}
	if cols <= 0 || rows <= 0 {
		return grid
	}

	cw := viewport.Width() / float64(cols)
	ch := viewport.Height() / float64(rows)

	for i, g := range gears {
		r := RuneCCW
		switch {
		case i == 0:
			r = RuneMain
		case g.Orientation() > 0:
			r = RuneCW
		}

		outline := g.WorldOutline(kind)
		bounds := g.Bounds()
		x0, x1 := cellRange(bounds.Min.X, bounds.Max.X, viewport.Min.X, cw, cols)
		y0, y1 := cellRange(bounds.Min.Y, bounds.Max.Y, viewport.Min.Y, ch, rows)
		for y := y0; y <= y1; y++ {
			for x := x0; x <= x1; x++ {
				p := geom.Coord{
					X: viewport.Min.X + (float64(x)+0.5)*cw,
					Y: viewport.Min.Y + (float64(y)+0.5)*ch,
				}
				if insidePolygon(p, outline) {
					grid.Cells[y*cols+x] = r
				}
			}
		}
	}

	for _, g := range gears {
		c := g.Center()
		x := int((c.X - viewport.Min.X) / cw)
		y := int((c.Y - viewport.Min.Y) / ch)
		if x >= 0 && x < cols && y >= 0 && y < rows {
			grid.Cells[y*cols+x] = RuneCenter
		}
	}
	return grid
}

// cellRange returns the cells overlapping [lo, hi], clamped to the grid.
func cellRange(lo, hi, origin, size float64, n int) (int, int) {
	first := int((lo-origin)/size) - 1
	last := int((hi-origin)/size) + 1
	return max(first, 0), min(last, n-1)
}

// insidePolygon is the even-odd rule.
func insidePolygon(p geom.Coord, poly []geom.Coord) bool {
	inside := false
	j := len(poly) - 1
	for i := range poly {
		a, b := poly[i], poly[j]
		if (a.Y > p.Y) != (b.Y > p.Y) {
			x := a.X + (p.Y-a.Y)/(b.Y-a.Y)*(b.X-a.X)
			if p.X < x {
				inside = !inside
			}
		}
		j = i
	}
	return inside
}

// Palette maps grid runes to terminal styles.
type Palette map[rune]tcell.Style

// DefaultPalette colors gears the way the SVG output does.
func DefaultPalette() Palette {
	return Palette{
		RuneMain:   tcell.StyleDefault.Foreground(tcell.ColorOrange),
		RuneCW:     tcell.StyleDefault.Foreground(tcell.ColorRed),
		RuneCCW:    tcell.StyleDefault.Foreground(tcell.ColorRed),
		RuneCenter: tcell.StyleDefault.Foreground(tcell.ColorGreen),
	}
}

// Blit copies the grid onto the screen's top-left corner. Runes missing
// from the palette use the default style.
func (g Grid) Blit(screen tcell.Screen, palette Palette) {
	for y := 0; y < g.Rows; y++ {
		for x := 0; x < g.Cols; x++ {
			r := g.Cells[y*g.Cols+x]
			style, ok := palette[r]
			if !ok {
				style = tcell.StyleDefault
			}
			screen.SetContent(x, y, r, nil, style)
		}
	}
}
