// Command gearsim runs a gear scene headless and serves it over HTTP.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/jbeda/geom"
	"github.com/mattn/go-isatty"
	"golang.org/x/sync/errgroup"

	"github.com/talgya/gearworks/internal/api"
	"github.com/talgya/gearworks/internal/config"
	"github.com/talgya/gearworks/internal/engine"
	"github.com/talgya/gearworks/internal/entropy"
	"github.com/talgya/gearworks/internal/persistence"
	"github.com/talgya/gearworks/internal/scene"
)

func main() {
	configPath := flag.String("config", "", "YAML configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	level, _ := cfg.Level()
	slog.SetDefault(newLogger(level))

	if err := run(cfg); err != nil {
		slog.Error("gearsim stopped with error", "error", err)
		os.Exit(1)
	}
}

// newLogger writes text to terminals and JSON everywhere else.
func newLogger(level slog.Level) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}
	if isatty.IsTerminal(os.Stdout.Fd()) || isatty.IsCygwinTerminal(os.Stdout.Fd()) {
		return slog.New(slog.NewTextHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, opts))
}

func run(cfg config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	seeds := entropy.NewClient(cfg.RandomOrgKey)
	seed := cfg.Seed
	if seed == 0 {
		seed = seeds.Seed()
	}
	viewport := scene.ViewportFor(cfg.Aspect)

	// ── Database ──────────────────────────────────────────────────────
	var db *persistence.DB
	if cfg.DBPath != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0o755); err != nil {
			return err
		}
		var err error
		db, err = persistence.Open(cfg.DBPath)
		if err != nil {
			return err
		}
		defer db.Close()
		slog.Info("database opened", "path", cfg.DBPath)
	}

	// ── Load or Generate Scene ───────────────────────────────────────
	shape := cfg.Params.EffectiveShape()
	var startFrame uint64
	var s *scene.Scene
	if db != nil && cfg.RestoreLatest {
		rec, restored, frame, err := latest(db, viewport)
		switch {
		case errors.Is(err, persistence.ErrNotFound):
			slog.Info("no saved scene found, generating a new one")
		case err != nil:
			slog.Warn("saved scene could not be restored, generating a new one", "error", err)
		default:
			s, shape, seed, startFrame = restored, rec.Shape, rec.Seed, frame
			slog.Info("scene restored", "id", rec.ID, "saved", humanize.Time(rec.CreatedAt), "frame", frame)
		}
	}
	if s == nil {
		slog.Info("populating scene", "shape", shape, "seed", seed)
		var err error
		s, err = scene.Random(shape, viewport, seed)
		if err != nil {
			return err
		}
	}
	slog.Info("scene ready", "shape", shape, "seed", seed, "gears", humanize.Comma(int64(len(s.Gears()))))

	// ── Simulation ────────────────────────────────────────────────────
	sim := api.NewSim(s, cfg.Params, shape, seed)

	eng := engine.NewEngine()
	eng.Interval = cfg.FrameInterval
	eng.SetSpeed(cfg.Speed)
	eng.SetFrame(startFrame)
	eng.OnFrame = sim.Advance

	if cfg.AdminKey == "" {
		slog.Warn(config.AdminKeyEnv + " not set, control endpoints will be disabled")
	}
	server := &api.Server{
		Sim:        sim,
		Eng:        eng,
		DB:         db,
		Port:       cfg.Port,
		AdminKey:   cfg.AdminKey,
		Seeds:      seeds,
		PlaceLimit: api.NewRateLimiter(cfg.PlacementLimit, time.Minute),
	}

	fmt.Printf("\n%s gears turning (%s, seed %d).\n", humanize.Comma(int64(len(s.Gears()))), shape, seed)
	fmt.Printf("API: http://localhost:%d/api/v1/status\n", cfg.Port)
	if startFrame > 0 {
		fmt.Printf("Resuming from frame %s (%s)\n", humanize.Comma(int64(startFrame)), engine.FrameTime(startFrame, eng.Interval))
	}
	fmt.Println("Starting simulation... (Ctrl+C to stop)")

	// ── Start ─────────────────────────────────────────────────────────
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		eng.Run(gctx)
		return nil
	})
	g.Go(func() error { return server.ListenAndServe(gctx) })
	if db != nil && cfg.SnapshotEvery > 0 {
		g.Go(func() error {
			snapshotLoop(gctx, sim, db, cfg.SnapshotEvery)
			return nil
		})
	}
	err := g.Wait()

	// Final save on shutdown.
	if db != nil {
		slog.Info("final save...")
		if _, serr := sim.Snapshot(db); serr != nil {
			slog.Error("final save failed", "error", serr)
		}
	}
	slog.Info("simulation stopped", "frames", humanize.Comma(int64(eng.Frame())))
	return err
}

// latest restores the scene named by the "scene" meta key.
func latest(db *persistence.DB, viewport geom.Rect) (persistence.SceneRecord, *scene.Scene, uint64, error) {
	id, err := db.GetMeta("scene")
	if err != nil {
		return persistence.SceneRecord{}, nil, 0, err
	}
	rec, err := db.LoadScene(id)
	if err != nil {
		return rec, nil, 0, err
	}
	s, err := db.Restore(rec, viewport)
	if err != nil {
		return rec, nil, 0, err
	}
	var frame uint64
	if v, err := db.GetMeta("frame"); err == nil {
		frame, _ = strconv.ParseUint(v, 10, 64)
	}
	return rec, s, frame, nil
}

func snapshotLoop(ctx context.Context, sim *api.Sim, db *persistence.DB, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := sim.Snapshot(db); err != nil {
				slog.Error("periodic save failed", "error", err)
			}
		}
	}
}
