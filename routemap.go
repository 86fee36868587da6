package main

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"sync"
	"time"
)

var ErrCancelled = errors.New("drawing cancelled")

// --- Structs ---

type RenderOptions struct {
	// Thickness multiplies the base line width of 1/1000 of the canvas width.
	Thickness float64
	PathColor color.Color
	// BgColor is nil for a transparent background.
	BgColor color.Color
	// MapResolution is the pixel density per degree of longitude, before
	// scaling and clamping to MaxWidth.
	MapResolution float64
	// PathResolution is the fraction of waypoints drawn, in (0, 1].
	PathResolution float64
	// AnimationDuration is the reveal time per route; 0 draws instantly.
	AnimationDuration time.Duration
	MaxWidth          int
}

func DefaultRenderOptions() RenderOptions {
	return RenderOptions{
		Thickness:         0.5,
		PathColor:         color.NRGBA{R: 0, G: 0, B: 0, A: 64},
		MapResolution:     0.5,
		PathResolution:    1,
		AnimationDuration: 750 * time.Millisecond,
		MaxWidth:          maxWidthPx,
	}
}

func (o RenderOptions) Validate() error {
	if err := validatePathResolution(o.PathResolution); err != nil {
		return err
	}
	if o.Thickness < 0 {
		return fmt.Errorf("invalid thickness %v: must not be negative", o.Thickness)
	}
	if o.AnimationDuration < 0 {
		return fmt.Errorf("invalid animation duration %v: must not be negative", o.AnimationDuration)
	}
	if o.PathColor == nil {
		return errors.New("path color is required")
	}
	return nil
}

type MapOption func(*RouteMap)

// WithOnDone registers a callback receiving the realized canvas size once
// a pass finishes or is cancelled. It receives nil when no canvas is attached.
func WithOnDone(fn func(res *Resolution)) MapOption {
	return func(m *RouteMap) { m.onDone = fn }
}

// WithOnFrame registers a callback receiving a copy of the canvas on every
// animation tick, whether or not the tick drew anything, and after every
// instantly drawn route.
func WithOnFrame(fn func(img image.Image)) MapOption {
	return func(m *RouteMap) { m.onFrame = fn }
}

func WithOnRouteDone(fn func(route Route)) MapOption {
	return func(m *RouteMap) { m.onRouteDone = fn }
}

// RouteMap draws routes onto an attached canvas. It owns the canvas for
// the duration of a pass: starting a new pass or calling Cancel stops all
// earlier passes before anything else touches the canvas.
type RouteMap struct {
	clock       FrameClock
	onDone      func(res *Resolution)
	onFrame     func(img image.Image)
	onRouteDone func(route Route)

	mu       sync.Mutex // guards canvas and passes
	canvas   Canvas
	passes   map[uint64]context.CancelFunc
	nextPass uint64
}

func NewRouteMap(clock FrameClock, opts ...MapOption) *RouteMap {
	if clock == nil {
		clock = newTickerClock(defaultFrameRate)
	}
	m := &RouteMap{
		clock:  clock,
		passes: make(map[uint64]context.CancelFunc),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *RouteMap) Attach(c Canvas) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cancelLocked()
	m.canvas = c
}

// Detach unmounts the canvas, cancelling any pass drawing on it.
func (m *RouteMap) Detach() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cancelLocked()
	m.canvas = nil
}

// Cancel stops every pass in progress. It is safe to call when nothing is
// running. Once it returns, no cancelled pass touches the canvas again.
func (m *RouteMap) Cancel() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cancelLocked()
}

func (m *RouteMap) cancelLocked() {
	for id, cancel := range m.passes {
		cancel()
		delete(m.passes, id)
	}
}

// Render starts a new pass drawing routes, in order, onto a canvas sized
// for bounds. Invalid options or bounds fail before the canvas is touched.
// Without an attached canvas the pass is a no-op returning a nil resolution.
// A cancelled pass returns the canvas resolution together with ErrCancelled.
func (m *RouteMap) Render(ctx context.Context, routes []Route, bounds GeoBounds, opts RenderOptions) (*Resolution, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	size, err := CanvasSize(bounds, opts.MapResolution, opts.MaxWidth)
	if err != nil {
		return nil, err
	}

	passCtx, id, ok := m.beginPass(ctx, size, opts.BgColor)
	if !ok {
		m.done(nil)
		return nil, nil
	}
	defer m.endPass(id)

	lineWidth := strokeWidth(size.Width, opts.Thickness)
	draw := func(batch []Pixel) bool {
		return m.stroke(passCtx, batch, lineWidth, opts.PathColor)
	}

	for _, route := range routes {
		wps := sampleWaypoints(route.Waypoints, opts.PathResolution)
		pts := projectAll(wps, bounds, size.Width, size.Height)

		var err error
		if opts.AnimationDuration == 0 {
			if !draw(pts) {
				err = context.Canceled
				if passCtx.Err() != nil {
					err = passCtx.Err()
				}
			}
		} else {
			anim := &animation{points: pts, duration: opts.AnimationDuration, clock: m.clock, draw: draw}
			if m.onFrame != nil {
				anim.idle = func() bool { return m.emitFrame(passCtx) }
			}
			err = anim.run(passCtx)
		}
		if err != nil {
			if !m.attached() {
				m.done(nil)
				return nil, nil
			}
			m.done(&size)
			return &size, fmt.Errorf("%w: %w", ErrCancelled, err)
		}

		if m.onRouteDone != nil {
			m.onRouteDone(route)
		}
	}

	m.done(&size)
	return &size, nil
}

func (m *RouteMap) beginPass(ctx context.Context, size Resolution, bg color.Color) (context.Context, uint64, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.cancelLocked()
	if m.canvas == nil {
		return nil, 0, false
	}

	m.canvas.Resize(size.Width, size.Height)
	m.canvas.Clear()
	if bg != nil {
		m.canvas.Fill(bg)
	}

	passCtx, cancel := context.WithCancel(ctx)
	m.nextPass++
	m.passes[m.nextPass] = cancel
	return passCtx, m.nextPass, true
}

func (m *RouteMap) endPass(id uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cancel, ok := m.passes[id]; ok {
		cancel()
		delete(m.passes, id)
	}
}

// stroke draws one batch unless the pass has been cancelled. The context is
// checked under the canvas lock so a concurrent Cancel either happens
// before the check or waits for the stroke to finish.
func (m *RouteMap) stroke(ctx context.Context, pts []Pixel, lineWidth float64, c color.Color) bool {
	m.mu.Lock()
	if ctx.Err() != nil || m.canvas == nil {
		m.mu.Unlock()
		return false
	}
	m.canvas.StrokePath(pts, lineWidth, c)
	var snap image.Image
	if m.onFrame != nil {
		snap = m.canvas.Snapshot()
	}
	m.mu.Unlock()

	if snap != nil {
		m.onFrame(snap)
	}
	return true
}

// emitFrame repeats the current canvas as a frame for a tick that drew
// nothing, so recorded frames stay one per clock tick.
func (m *RouteMap) emitFrame(ctx context.Context) bool {
	m.mu.Lock()
	if ctx.Err() != nil || m.canvas == nil {
		m.mu.Unlock()
		return false
	}
	snap := m.canvas.Snapshot()
	m.mu.Unlock()

	m.onFrame(snap)
	return true
}

func (m *RouteMap) attached() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.canvas != nil
}

func (m *RouteMap) done(res *Resolution) {
	if m.onDone != nil {
		m.onDone(res)
	}
}
