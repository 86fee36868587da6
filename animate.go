package main

import (
	"context"
	"math"
	"sync"
	"time"
)

const (
	defaultFrameRate = 60.0
	// Per-point delays are shortened so frame jitter does not stretch the
	// animation past its target duration.
	animationDelayFactor = 0.8
)

// FrameClock paces animation ticks.
type FrameClock interface {
	// NextFrame blocks until the next frame is due and returns its
	// timestamp relative to the clock's origin.
	NextFrame(ctx context.Context) (time.Duration, error)
}

// tickerClock delivers frames in wall-clock time.
type tickerClock struct {
	interval time.Duration
	start    time.Time
}

func newTickerClock(fps float64) *tickerClock {
	if fps <= 0 {
		fps = defaultFrameRate
	}
	return &tickerClock{
		interval: time.Duration(float64(time.Second) / fps),
		start:    time.Now(),
	}
}

func (c *tickerClock) NextFrame(ctx context.Context) (time.Duration, error) {
	timer := time.NewTimer(c.interval)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return 0, ctx.Err()
	case now := <-timer.C:
		return now.Sub(c.start), nil
	}
}

// stepClock advances a virtual timestamp by a fixed step on every frame
// and never sleeps. Video export uses it so output does not depend on how
// fast frames are produced.
type stepClock struct {
	mu   sync.Mutex
	step time.Duration
	now  time.Duration
}

func newStepClock(fps float64) *stepClock {
	if fps <= 0 {
		fps = defaultFrameRate
	}
	return &stepClock{step: time.Duration(float64(time.Second) / fps)}
}

func (c *stepClock) NextFrame(ctx context.Context) (time.Duration, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now += c.step
	return c.now, nil
}

// --- Animation ---

type animationState int

const (
	animationIdle animationState = iota
	animationRunning
	animationCompleted
	animationCancelled
)

func (s animationState) String() string {
	switch s {
	case animationIdle:
		return "idle"
	case animationRunning:
		return "running"
	case animationCompleted:
		return "completed"
	case animationCancelled:
		return "cancelled"
	}
	return "unknown"
}

// animation reveals a projected path progressively over duration.
type animation struct {
	points   []Pixel
	duration time.Duration
	clock    FrameClock
	// draw strokes one batch, starting at the last point already drawn.
	// It returns false if the batch was dropped because the pass is gone.
	draw func(batch []Pixel) bool
	// idle, if set, runs on ticks that draw nothing. It returns false
	// once the pass is gone.
	idle func() bool

	state  animationState
	cursor int
}

func (a *animation) run(ctx context.Context) error {
	a.state = animationRunning
	if len(a.points) < 2 {
		a.state = animationCompleted
		return nil
	}

	delay := float64(a.duration) / float64(len(a.points)) * animationDelayFactor
	a.cursor = 1

	var lastAddedAt time.Duration
	started := false
	for a.cursor < len(a.points) {
		ts, err := a.clock.NextFrame(ctx)
		if err != nil {
			a.state = animationCancelled
			return err
		}

		n := 0
		switch {
		case !started:
			// First frame for this route: just one segment.
			n = 1
			started = true
			lastAddedAt = ts
		case delay <= 0:
			n = len(a.points)
		default:
			elapsed := float64(ts - lastAddedAt)
			if elapsed >= delay {
				n = int(math.Ceil(elapsed / delay))
				lastAddedAt = ts
			}
		}
		if n == 0 {
			if a.idle != nil && !a.idle() {
				a.state = animationCancelled
				return context.Canceled
			}
			continue
		}

		end := min(a.cursor+n, len(a.points))
		if !a.draw(a.points[a.cursor-1 : end]) {
			a.state = animationCancelled
			return context.Canceled
		}
		a.cursor = end
	}

	a.state = animationCompleted
	return nil
}
