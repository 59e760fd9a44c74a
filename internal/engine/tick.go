// Package engine provides the frame loop that drives a scene forward.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync/atomic"
	"time"
)

// DefaultInterval is the wall-clock time between frames: 60 frames a second.
const DefaultInterval = time.Second / 60

// pausePoll is how often a paused engine checks for a new speed.
const pausePoll = 100 * time.Millisecond

// Engine calls OnFrame at a fixed interval with the elapsed time scaled by
// the speed multiplier. Speed and Frame may be read and set from other
// goroutines while Run is active.
type Engine struct {
	Interval time.Duration // Wall-clock time between frames

	// OnFrame runs on the engine goroutine with the scaled time since the
	// previous frame.
	OnFrame func(frame uint64, dt time.Duration)

	frame atomic.Uint64
	speed atomic.Uint64 // math.Float64bits of the multiplier; 0 = paused
}

// NewEngine creates an engine at real-time speed.
func NewEngine() *Engine {
	e := &Engine{Interval: DefaultInterval}
	e.SetSpeed(1)
	return e
}

// Frame returns how many frames have run.
func (e *Engine) Frame() uint64 { return e.frame.Load() }

// SetFrame restarts the frame counter, e.g. when resuming a saved scene.
func (e *Engine) SetFrame(frame uint64) { e.frame.Store(frame) }

// Speed returns the time multiplier: 1.0 = real-time, 0 = paused.
func (e *Engine) Speed() float64 { return math.Float64frombits(e.speed.Load()) }

// SetSpeed changes the time multiplier. Negative values pause.
func (e *Engine) SetSpeed(speed float64) {
	if math.IsNaN(speed) || speed < 0 {
		speed = 0
	}
	e.speed.Store(math.Float64bits(speed))
}

// Run drives frames until ctx is done.
func (e *Engine) Run(ctx context.Context) {
	slog.Info("frame engine started", "frame", e.Frame(), "speed", e.Speed(), "interval", e.Interval)

	last := time.Now()
	for {
		speed := e.Speed()
		if speed <= 0 {
			// Paused; time spent here does not count toward the next frame.
			if !sleep(ctx, pausePoll) {
				break
			}
			last = time.Now()
			continue
		}

		start := time.Now()
		elapsed := start.Sub(last)
		last = start

		e.Step(time.Duration(float64(elapsed) * speed))

		// Sleep for the remainder of the frame interval.
		if spent := time.Since(start); spent < e.Interval {
			if !sleep(ctx, e.Interval-spent) {
				break
			}
		} else if ctx.Err() != nil {
			break
		}
	}

	slog.Info("frame engine stopped", "frame", e.Frame())
}

// Step runs a single frame synchronously with the given (already scaled)
// elapsed time.
func (e *Engine) Step(dt time.Duration) {
	frame := e.frame.Add(1)
	if e.OnFrame != nil {
		e.OnFrame(frame, dt)
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// FrameTime formats a frame count as elapsed wall time at the given interval.
func FrameTime(frame uint64, interval time.Duration) string {
	total := time.Duration(frame) * interval
	minutes := int(total / time.Minute)
	seconds := (total % time.Minute).Seconds()
	return fmt.Sprintf("%d:%06.3f", minutes, seconds)
}
