// Command gearterm animates a gear scene in the terminal. Clicking places a
// companion gear driven by the nearest gear.
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/jbeda/geom"

	"github.com/talgya/gearworks/internal/engine"
	"github.com/talgya/gearworks/internal/entropy"
	"github.com/talgya/gearworks/internal/render"
	"github.com/talgya/gearworks/internal/scene"
)

// cellAspect is the height of a terminal cell in units of its width.
const cellAspect = 2.0

const help = "click: add gear  r: reshuffle  s: shape  c: shift center  t: teeth  space: pause  +/-: speed  q: quit"

type viewer struct {
	screen  tcell.Screen
	eng     *engine.Engine
	scene   *scene.Scene
	params  scene.Params
	seed    int64
	status  string
	palette render.Palette
}

func main() {
	shapeName := flag.String("shape", string(scene.ShapeEllipse), "main gear shape")
	seed := flag.Int64("seed", 0, "scene seed (0 draws one)")
	logPath := flag.String("log", "", "write debug logs to this file")
	flag.Parse()

	if err := setupLogging(*logPath); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	shape, err := scene.ParseShape(*shapeName)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	if *seed == 0 {
		*seed = entropy.CryptoSeed()
	}

	screen, err := tcell.NewScreen()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if err := screen.Init(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer screen.Fini()
	screen.EnableMouse()

	v := &viewer{
		screen:  screen,
		eng:     engine.NewEngine(),
		params:  scene.DefaultParams(),
		seed:    *seed,
		palette: render.DefaultPalette(),
	}
	v.params.Shape = shape
	v.eng.OnFrame = func(_ uint64, dt time.Duration) {
		v.scene.Update(dt, v.params)
	}
	if err := v.reset(); err != nil {
		screen.Fini()
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	v.loop()
}

// setupLogging keeps the terminal clean: logs go to a file or nowhere.
func setupLogging(path string) error {
	if path == "" {
		slog.SetDefault(slog.New(slog.NewTextHandler(io.Discard, nil)))
		return nil
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(f, &slog.HandlerOptions{Level: slog.LevelDebug})))
	return nil
}

func (v *viewer) loop() {
	events := make(chan tcell.Event, 100)
	go func() {
		for {
			ev := v.screen.PollEvent()
			if ev == nil {
				return
			}
			events <- ev
		}
	}()

	ticker := time.NewTicker(v.eng.Interval)
	defer ticker.Stop()
	last := time.Now()

	for {
		select {
		case ev := <-events:
			if !v.handle(ev) {
				return
			}
		case now := <-ticker.C:
			elapsed := now.Sub(last)
			last = now
			if speed := v.eng.Speed(); speed > 0 {
				v.eng.Step(time.Duration(float64(elapsed) * speed))
			}
			v.draw()
		}
	}
}

// handle applies one input event and reports whether to keep running.
func (v *viewer) handle(ev tcell.Event) bool {
	switch ev := ev.(type) {
	case *tcell.EventResize:
		v.screen.Sync()
	case *tcell.EventMouse:
		if ev.Buttons()&tcell.Button1 == 0 {
			return true
		}
		x, y := ev.Position()
		cols, rows := v.canvasSize()
		if y >= rows {
			return true
		}
		v.place(cellPoint(viewportFor(cols, rows), cols, rows, x, y))
	case *tcell.EventKey:
		switch ev.Key() {
		case tcell.KeyEscape, tcell.KeyCtrlC:
			return false
		case tcell.KeyRune:
			return v.key(ev.Rune())
		}
	}
	return true
}

func (v *viewer) key(r rune) bool {
	switch r {
	case 'q':
		return false
	case 'r':
		v.seed++
		v.resetOrReport()
	case 's':
		v.params.Shape = nextShape(v.params.Shape)
		v.resetOrReport()
	case 'c':
		v.params.ShiftCenter = !v.params.ShiftCenter
		v.resetOrReport()
	case 't':
		v.params.ShowTeeth, v.params.TeethSize = nextTeeth(v.params.ShowTeeth, v.params.TeethSize)
	case ' ':
		if v.eng.Speed() > 0 {
			v.eng.SetSpeed(0)
		} else {
			v.eng.SetSpeed(1)
		}
	case '+', '=':
		v.eng.SetSpeed(min(v.eng.Speed()*2, 64))
	case '-':
		v.eng.SetSpeed(v.eng.Speed() / 2)
	}
	return true
}

func (v *viewer) resetOrReport() {
	if err := v.reset(); err != nil {
		v.status = err.Error()
	}
}

func (v *viewer) reset() error {
	cols, rows := v.canvasSize()
	shape := v.params.EffectiveShape()
	s, err := scene.Random(shape, viewportFor(cols, rows), v.seed)
	if err != nil {
		return err
	}
	v.scene = s
	v.status = fmt.Sprintf("%s, seed %d, %d gears", shape, v.seed, len(s.Gears()))
	return nil
}

func (v *viewer) place(p geom.Coord) {
	g, err := v.scene.Place(p)
	switch {
	case errors.Is(err, scene.ErrOverlap):
		v.status = "overlaps another gear"
	case err != nil:
		v.status = "no gear fits there"
	default:
		v.status = fmt.Sprintf("gear %d: %d periods", v.scene.Index(g), g.PeriodsCount())
	}
}

// canvasSize leaves the bottom line for the status bar.
func (v *viewer) canvasSize() (int, int) {
	cols, rows := v.screen.Size()
	return cols, max(rows-1, 1)
}

func (v *viewer) draw() {
	cols, rows := v.canvasSize()
	grid := render.Rasterize(v.scene.Gears(), viewportFor(cols, rows), cols, rows, v.params.SurfaceType())
	v.screen.Clear()
	grid.Blit(v.screen, v.palette)

	line := fmt.Sprintf(" %s | x%.2f | %s ", v.status, v.eng.Speed(), help)
	for i, r := range []rune(line) {
		if i >= cols {
			break
		}
		v.screen.SetContent(i, rows, r, nil, tcell.StyleDefault.Reverse(true))
	}
	v.screen.Show()
}

// viewportFor fits the scene viewport to a character canvas, taking the
// tall cells into account.
func viewportFor(cols, rows int) geom.Rect {
	return scene.ViewportFor(float64(cols) / (float64(rows) * cellAspect))
}

// cellPoint maps the center of a character cell to the plane.
func cellPoint(viewport geom.Rect, cols, rows, x, y int) geom.Coord {
	return geom.Coord{
		X: viewport.Min.X + (float64(x)+0.5)/float64(cols)*viewport.Width(),
		Y: viewport.Min.Y + (float64(y)+0.5)/float64(rows)*viewport.Height(),
	}
}

func nextShape(s scene.Shape) scene.Shape {
	shapes := scene.Shapes()
	for i, candidate := range shapes {
		if candidate == s {
			return shapes[(i+1)%len(shapes)]
		}
	}
	return shapes[0]
}

// nextTeeth cycles smooth, small, medium, large.
func nextTeeth(show bool, size scene.TeethSize) (bool, scene.TeethSize) {
	if !show {
		return true, scene.TeethSmall
	}
	switch size {
	case scene.TeethSmall:
		return true, scene.TeethMedium
	case scene.TeethMedium:
		return true, scene.TeethLarge
	}
	return false, scene.TeethMedium
}
