// Package render draws gears: as SVG documents for the web API and as
// character grids for terminals.
package render

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/ajstarks/svgo"
	"github.com/jbeda/geom"

	"github.com/talgya/gearworks/internal/gear"
	"github.com/talgya/gearworks/internal/scene"
)

const (
	gearColor     = "red"
	gearMainColor = "#FF6A00"
	flatAxis      = "#333333"
	outlineAxis   = "green"
)

// SVGOptions controls SVG output.
type SVGOptions struct {
	Viewport geom.Rect        // World area mapped onto the canvas
	Width    int              // Canvas width in pixels; height follows the viewport aspect
	Surface  gear.SurfaceType // Rim drawn for every gear
	Flat     bool             // Filled gears; outlined otherwise
	ShowRays bool             // Lines from each center to every period start
	Title    string
}

// OptionsFromParams derives SVG options from the display controls.
func OptionsFromParams(viewport geom.Rect, width int, params scene.Params) SVGOptions {
	return SVGOptions{
		Viewport: viewport,
		Width:    width,
		Surface:  params.SurfaceType(),
		Flat:     params.DisplayStyle != scene.StyleOutline,
		ShowRays: params.ShowRays,
	}
}

// SVG writes the gears at their current rotation. The first gear is drawn
// as the main gear.
func SVG(w io.Writer, gears []*gear.Gear, opts SVGOptions) error {
	if opts.Width <= 0 {
		return fmt.Errorf("svg: width %d", opts.Width)
	}
	vw, vh := opts.Viewport.Width(), opts.Viewport.Height()
	if !(vw > 0 && vh > 0) {
		return fmt.Errorf("svg: empty viewport %v", opts.Viewport)
	}

	scale := float64(opts.Width) / vw
	height := int(vh*scale + 0.5)
	toPixel := func(p geom.Coord) geom.Coord {
		return geom.Coord{X: (p.X - opts.Viewport.Min.X) * scale, Y: (p.Y - opts.Viewport.Min.Y) * scale}
	}

	ew := &errWriter{w: w}
	canvas := svg.New(ew)
	canvas.Start(opts.Width, height)
	if opts.Title != "" {
		canvas.Title(opts.Title)
	}

	fillOpacity, strokeWidth, axis := "0.7", "0", flatAxis
	if !opts.Flat {
		fillOpacity, strokeWidth, axis = "0.4", f64s(0.004*scale), outlineAxis
	}

	for i, g := range gears {
		color := gearColor
		if i == 0 {
			color = gearMainColor
		}
		canvas.Path(outlinePath(g.WorldOutline(opts.Surface), toPixel),
			fmt.Sprintf("fill:%s;fill-opacity:%s;stroke:%s;stroke-width:%s", color, fillOpacity, color, strokeWidth))
	}

	if opts.ShowRays {
		canvas.Gstyle(fmt.Sprintf("stroke:%s;stroke-width:%s", axis, f64s(0.006*scale)))
		for _, g := range gears {
			c := toPixel(g.Center())
			for _, p := range periodStarts(g) {
				end := toPixel(p)
				canvas.Path(fmt.Sprintf("M%s %s L%s %s", f64s(c.X), f64s(c.Y), f64s(end.X), f64s(end.Y)))
			}
		}
		canvas.Gend()
	}

	axleRadius := int(gear.CenterRadius*scale + 0.5)
	for _, g := range gears {
		c := toPixel(g.Center())
		canvas.Circle(int(c.X+0.5), int(c.Y+0.5), axleRadius, "fill:"+axis)
	}

	canvas.End()
	return ew.err
}

// periodStarts returns, in world space, the first ray of every period.
func periodStarts(g *gear.Gear) []geom.Coord {
	rays := g.Rays()
	perPeriod := len(rays) / g.PeriodsCount()
	starts := make([]geom.Coord, 0, g.PeriodsCount())
	for k := 0; k < g.PeriodsCount(); k++ {
		p := rays[k*perPeriod].Rotate(g.Rotation()).Point()
		starts = append(starts, g.Center().Plus(p))
	}
	return starts
}

func outlinePath(pts []geom.Coord, toPixel func(geom.Coord) geom.Coord) string {
	var b strings.Builder
	for i, p := range pts {
		q := toPixel(p)
		if i == 0 {
			b.WriteString("M")
		} else {
			b.WriteString(" L")
		}
		b.WriteString(f64s(q.X))
		b.WriteString(" ")
		b.WriteString(f64s(q.Y))
	}
	b.WriteString(" Z")
	return b.String()
}

func f64s(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}

// errWriter keeps the first write error; svgo does not report them.
type errWriter struct {
	w   io.Writer
	err error
}

func (e *errWriter) Write(p []byte) (int, error) {
	if e.err != nil {
		return len(p), nil
	}
	if _, err := e.w.Write(p); err != nil {
		e.err = err
	}
	return len(p), nil
}
