package main

import (
	"context"
	"errors"
	"image"
	"image/color"
	"testing"
	"time"
)

// chanClock delivers a frame whenever the test sends a timestamp.
type chanClock struct {
	ticks chan time.Duration
}

func (c *chanClock) NextFrame(ctx context.Context) (time.Duration, error) {
	select {
	case <-ctx.Done():
		return 0, ctx.Err()
	case ts := <-c.ticks:
		return ts, nil
	}
}

func scenarioOptions() RenderOptions {
	opts := DefaultRenderOptions()
	opts.MapResolution = 1
	opts.MaxWidth = 1000
	opts.AnimationDuration = 0
	return opts
}

func scenarioRoute() Route {
	return Route{ID: "1", Name: "Loop", Waypoints: []Coordinate{{Lat: 37.0, Lon: -122.0}, {Lat: 37.1, Lon: -122.1}}}
}

func TestRenderScenario(t *testing.T) {
	canvas := &recordCanvas{}
	clock := &scriptedClock{step: time.Millisecond}
	var reported *Resolution
	m := NewRouteMap(clock, WithOnDone(func(res *Resolution) { reported = res }))
	m.Attach(canvas)

	opts := scenarioOptions()
	res, err := m.Render(context.Background(), []Route{scenarioRoute()}, bayArea, opts)
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	want := Resolution{Width: 1000, Height: 1000}
	if res == nil || *res != want {
		t.Fatalf("resolution = %v, want %v", res, want)
	}
	if reported == nil || *reported != want {
		t.Errorf("OnDone reported %v, want %v", reported, want)
	}

	if len(canvas.strokes) != 1 {
		t.Fatalf("got %d strokes, want 1", len(canvas.strokes))
	}
	s := canvas.strokes[0]
	wantPts := []Pixel{{X: 500, Y: 500}, {X: 450, Y: 450}}
	if len(s.pts) != 2 || s.pts[0] != wantPts[0] || s.pts[1] != wantPts[1] {
		t.Errorf("stroke points = %v, want %v", s.pts, wantPts)
	}
	if s.lineWidth != 0.5 {
		t.Errorf("line width = %v, want 0.5", s.lineWidth)
	}
	if clock.calls != 0 {
		t.Errorf("instant render scheduled %d frames", clock.calls)
	}
	if canvas.width != 1000 || canvas.height != 1000 || canvas.clears != 1 {
		t.Errorf("canvas %dx%d cleared %d times", canvas.width, canvas.height, canvas.clears)
	}
}

func TestRenderPaintsBackground(t *testing.T) {
	canvas := &recordCanvas{}
	m := NewRouteMap(&scriptedClock{step: time.Millisecond})
	m.Attach(canvas)

	opts := scenarioOptions()
	if _, err := m.Render(context.Background(), nil, bayArea, opts); err != nil {
		t.Fatal(err)
	}
	if len(canvas.fills) != 0 {
		t.Errorf("transparent background was filled %d times", len(canvas.fills))
	}

	opts.BgColor = color.White
	if _, err := m.Render(context.Background(), nil, bayArea, opts); err != nil {
		t.Fatal(err)
	}
	if len(canvas.fills) != 1 || canvas.fills[0] != color.White {
		t.Errorf("fills = %v, want [white]", canvas.fills)
	}
}

func TestRenderInvalidPathResolutionLeavesCanvasUntouched(t *testing.T) {
	canvas := &recordCanvas{width: 10, height: 10}
	m := NewRouteMap(&scriptedClock{step: time.Millisecond})
	m.Attach(canvas)

	for _, res := range []float64{0, 1.5} {
		opts := scenarioOptions()
		opts.PathResolution = res
		out, err := m.Render(context.Background(), []Route{scenarioRoute()}, bayArea, opts)
		if !errors.Is(err, ErrInvalidPathResolution) {
			t.Errorf("pathResolution %v: err = %v, want ErrInvalidPathResolution", res, err)
		}
		if out != nil {
			t.Errorf("pathResolution %v: resolution = %v, want nil", res, out)
		}
	}
	if canvas.clears != 0 || len(canvas.strokes) != 0 || canvas.width != 10 {
		t.Errorf("canvas was touched: clears=%d strokes=%d width=%d", canvas.clears, len(canvas.strokes), canvas.width)
	}
}

func TestRenderRejectsDegenerateBounds(t *testing.T) {
	canvas := &recordCanvas{}
	m := NewRouteMap(&scriptedClock{step: time.Millisecond})
	m.Attach(canvas)

	flat := GeoBounds{LeftLon: -122, RightLon: -122, UpperLat: 38, LowerLat: 36}
	if _, err := m.Render(context.Background(), []Route{scenarioRoute()}, flat, scenarioOptions()); !errors.Is(err, ErrDegenerateBounds) {
		t.Errorf("err = %v, want ErrDegenerateBounds", err)
	}
	if canvas.clears != 0 {
		t.Error("canvas was cleared")
	}
}

func TestRenderWithoutCanvas(t *testing.T) {
	called := false
	var reported *Resolution
	m := NewRouteMap(&scriptedClock{step: time.Millisecond}, WithOnDone(func(res *Resolution) {
		called = true
		reported = res
	}))

	res, err := m.Render(context.Background(), []Route{scenarioRoute()}, bayArea, scenarioOptions())
	if err != nil || res != nil {
		t.Errorf("Render without canvas = %v, %v; want nil, nil", res, err)
	}
	if !called || reported != nil {
		t.Errorf("OnDone called=%v with %v, want nil resolution", called, reported)
	}
}

func TestRenderRoutesInOrder(t *testing.T) {
	canvas := &recordCanvas{}
	var done []string
	m := NewRouteMap(&scriptedClock{step: 50 * time.Millisecond}, WithOnRouteDone(func(r Route) { done = append(done, r.ID) }))
	m.Attach(canvas)

	routes := []Route{
		{ID: "a", Waypoints: []Coordinate{{Lat: 37, Lon: -122}, {Lat: 37.2, Lon: -122.2}, {Lat: 37.4, Lon: -122.4}}},
		{ID: "b", Waypoints: []Coordinate{{Lat: 36.5, Lon: -121.5}, {Lat: 36.6, Lon: -121.6}}},
	}
	opts := scenarioOptions()
	opts.AnimationDuration = 100 * time.Millisecond
	if _, err := m.Render(context.Background(), routes, bayArea, opts); err != nil {
		t.Fatalf("Render: %v", err)
	}

	if len(done) != 2 || done[0] != "a" || done[1] != "b" {
		t.Errorf("routes finished in order %v, want [a b]", done)
	}
	// Every stroke of route a comes before the single stroke of route b.
	last := canvas.strokes[len(canvas.strokes)-1]
	if last.pts[0] != (Pixel{X: 750, Y: 750}) {
		t.Errorf("last stroke starts at %v, want route b's first point", last.pts[0])
	}
	for _, s := range canvas.strokes[:len(canvas.strokes)-1] {
		if s.pts[0].X < 750 {
			continue
		}
		t.Errorf("stroke %v of route b drawn before route a finished", s.pts)
	}
}

func TestRenderZeroDurationSchedulesNoFrames(t *testing.T) {
	canvas := &recordCanvas{}
	clock := &scriptedClock{step: time.Millisecond}
	m := NewRouteMap(clock)
	m.Attach(canvas)

	routes := []Route{scenarioRoute(), scenarioRoute(), scenarioRoute()}
	if _, err := m.Render(context.Background(), routes, bayArea, scenarioOptions()); err != nil {
		t.Fatal(err)
	}
	if clock.calls != 0 {
		t.Errorf("clock ticked %d times", clock.calls)
	}
	if len(canvas.strokes) != 3 {
		t.Errorf("got %d strokes, want one per route", len(canvas.strokes))
	}
}

func TestCancelStopsDrawing(t *testing.T) {
	canvas := &recordCanvas{}
	var m *RouteMap
	clock := &scriptedClock{
		step: 20 * time.Millisecond,
		beforeFrame: func(call int) {
			if call == 5 {
				m.Cancel()
			}
		},
	}
	var reported *Resolution
	m = NewRouteMap(clock, WithOnDone(func(res *Resolution) { reported = res }))
	m.Attach(canvas)

	long := Route{ID: "long"}
	for i := 0; i < 50; i++ {
		long.Waypoints = append(long.Waypoints, Coordinate{Lat: 36.1 + float64(i)*0.01, Lon: -122.9 + float64(i)*0.01})
	}
	opts := scenarioOptions()
	opts.AnimationDuration = time.Second

	res, err := m.Render(context.Background(), []Route{long, scenarioRoute()}, bayArea, opts)
	if !errors.Is(err, ErrCancelled) {
		t.Fatalf("err = %v, want ErrCancelled", err)
	}
	if res == nil || reported == nil || *res != *reported {
		t.Errorf("cancelled pass reported %v / %v, want the canvas resolution", res, reported)
	}

	// Four frames drew one batch each before the fifth was cancelled.
	if n := canvas.strokeCount(); n != 4 {
		t.Errorf("got %d strokes, want 4", n)
	}
	m.Cancel()
	m.Cancel()
	if n := canvas.strokeCount(); n != 4 {
		t.Errorf("strokes changed after cancel: %d", n)
	}
}

func TestCancelIdleIsSafe(t *testing.T) {
	m := NewRouteMap(&scriptedClock{step: time.Millisecond})
	m.Cancel()
	m.Attach(&recordCanvas{})
	m.Cancel()
	m.Cancel()
}

func TestNewPassCancelsPrevious(t *testing.T) {
	stroked := make(chan struct{}, 16)
	canvas := &recordCanvas{onStroke: func() { stroked <- struct{}{} }}
	clock := &chanClock{ticks: make(chan time.Duration)}
	m := NewRouteMap(clock)
	m.Attach(canvas)

	long := Route{ID: "long"}
	for i := 0; i < 20; i++ {
		long.Waypoints = append(long.Waypoints, Coordinate{Lat: 36.5 + float64(i)*0.05, Lon: -122.5 + float64(i)*0.05})
	}
	animated := scenarioOptions()
	animated.AnimationDuration = time.Minute

	type result struct {
		res *Resolution
		err error
	}
	first := make(chan result, 1)
	go func() {
		res, err := m.Render(context.Background(), []Route{long}, bayArea, animated)
		first <- result{res, err}
	}()

	clock.ticks <- time.Millisecond
	<-stroked

	// A second pass with a different size supersedes the first.
	second := scenarioOptions()
	second.MaxWidth = 500
	res, err := m.Render(context.Background(), []Route{scenarioRoute()}, bayArea, second)
	if err != nil {
		t.Fatalf("second Render: %v", err)
	}
	if res.Width != 500 {
		t.Errorf("second pass width = %d, want 500", res.Width)
	}

	select {
	case r := <-first:
		if !errors.Is(r.err, ErrCancelled) {
			t.Errorf("first pass err = %v, want ErrCancelled", r.err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("first pass did not stop")
	}

	if n := canvas.strokeCount(); n != 2 {
		t.Errorf("got %d strokes, want 1 from each pass", n)
	}
	if canvas.clears != 2 {
		t.Errorf("canvas cleared %d times, want 2", canvas.clears)
	}
}

func TestDetachDuringPass(t *testing.T) {
	stroked := make(chan struct{}, 16)
	canvas := &recordCanvas{onStroke: func() { stroked <- struct{}{} }}
	clock := &chanClock{ticks: make(chan time.Duration)}
	var reported []*Resolution
	m := NewRouteMap(clock, WithOnDone(func(res *Resolution) { reported = append(reported, res) }))
	m.Attach(canvas)

	opts := scenarioOptions()
	opts.AnimationDuration = time.Minute
	route := Route{ID: "r", Waypoints: []Coordinate{{Lat: 37, Lon: -122}, {Lat: 37.1, Lon: -122.1}, {Lat: 37.2, Lon: -122.2}}}

	done := make(chan error, 1)
	var res *Resolution
	go func() {
		var err error
		res, err = m.Render(context.Background(), []Route{route}, bayArea, opts)
		done <- err
	}()

	clock.ticks <- time.Millisecond
	<-stroked
	m.Detach()

	select {
	case err := <-done:
		if err != nil || res != nil {
			t.Errorf("detached pass = %v, %v; want nil, nil", res, err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("pass did not stop after Detach")
	}
	if len(reported) != 1 || reported[0] != nil {
		t.Errorf("OnDone reported %v, want a single nil", reported)
	}
}

func TestRenderEmitsFrames(t *testing.T) {
	var frames []image.Image
	m := NewRouteMap(newStepClock(60), WithOnFrame(func(img image.Image) { frames = append(frames, img) }))
	m.Attach(newGGCanvas(1, 1))

	opts := scenarioOptions()
	opts.MaxWidth = 200
	opts.AnimationDuration = 100 * time.Millisecond
	route := Route{ID: "r", Waypoints: []Coordinate{{Lat: 37, Lon: -122}, {Lat: 37.1, Lon: -122.1}, {Lat: 37.2, Lon: -122.2}, {Lat: 37.3, Lon: -122.3}}}
	if _, err := m.Render(context.Background(), []Route{route}, bayArea, opts); err != nil {
		t.Fatal(err)
	}
	if len(frames) == 0 {
		t.Fatal("no frames emitted")
	}
	if b := frames[0].Bounds(); b.Dx() != 200 || b.Dy() != 200 {
		t.Errorf("frame size %v, want 200x200", b)
	}
}

func TestRenderEmitsOneFramePerTick(t *testing.T) {
	canvas := &recordCanvas{}
	clock := &scriptedClock{step: time.Second / 60}
	frames := 0
	m := NewRouteMap(clock, WithOnFrame(func(image.Image) { frames++ }))
	m.Attach(canvas)

	route := Route{ID: "r"}
	for i := 0; i < 10; i++ {
		route.Waypoints = append(route.Waypoints, Coordinate{Lat: 36.5 + float64(i)*0.1, Lon: -122.5 + float64(i)*0.1})
	}
	opts := scenarioOptions()
	opts.AnimationDuration = time.Second
	if _, err := m.Render(context.Background(), []Route{route}, bayArea, opts); err != nil {
		t.Fatal(err)
	}

	strokes := canvas.strokeCount()
	if clock.calls <= strokes {
		t.Fatalf("expected idle ticks: %d ticks, %d strokes", clock.calls, strokes)
	}
	if frames != clock.calls {
		t.Errorf("got %d frames for %d ticks", frames, clock.calls)
	}
}

func TestRenderHonoursCallerContext(t *testing.T) {
	canvas := &recordCanvas{}
	m := NewRouteMap(&scriptedClock{step: time.Millisecond})
	m.Attach(canvas)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	opts := scenarioOptions()
	opts.AnimationDuration = time.Second
	if _, err := m.Render(ctx, []Route{scenarioRoute()}, bayArea, opts); !errors.Is(err, ErrCancelled) || !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want ErrCancelled wrapping context.Canceled", err)
	}
}
