package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"time"

	"github.com/golang/freetype/truetype"
	"github.com/schollz/progressbar/v3"
	"golang.org/x/image/font/gofont/goregular"
)

// Seconds the finished canvas stays on screen at the end of a video.
const videoHoldSeconds = 2

var ErrNoRoutes = errors.New("no routes to draw")

// --- Main Logic ---

func main() {
	args, err := parseArguments(os.Args[1:])
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		log.Fatalf("Error parsing arguments: %v", err)
	}
	if len(args.Inputs) == 0 {
		log.Fatal("No route files given.")
	}

	routes, err := loadRoutes(args.Inputs)
	if err != nil {
		log.Fatalf("Error loading routes: %v", err)
	}
	log.Printf("Loaded %d routes with %d waypoints", len(routes), countWaypoints(routes))

	routes = args.Filter.Apply(routes)
	log.Printf("%d routes match the filters", len(routes))

	bounds, err := resolveBounds(args.Bounds, routes)
	if err != nil {
		log.Fatalf("Error: %v", err)
	}
	opts := args.RenderOptions()

	if args.Selection != nil {
		if err := printSelection(args.Selection, bounds, opts); err != nil {
			log.Fatalf("Error converting selection: %v", err)
		}
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	// The encoder shows its own spinner; two bars would share one line.
	var barOut io.Writer = os.Stderr
	if args.VideoFile != "" {
		barOut = io.Discard
	}
	bar := newDrawingBar(len(routes), barOut)
	mapOpts := []MapOption{
		WithOnRouteDone(func(Route) { bar.Add(1) }),
		WithOnDone(func(res *Resolution) {
			if res != nil {
				log.Printf("Canvas resolution %s", res)
			}
		}),
	}

	var clock FrameClock = newTickerClock(args.Framerate)
	var video *videoPipeline
	if args.VideoFile != "" {
		video, err = startVideoPipeline(args)
		if err != nil {
			log.Fatalf("Error starting video pipeline: %v", err)
		}
		clock = newStepClock(args.Framerate)
		mapOpts = append(mapOpts, WithOnFrame(video.AddFrame))
		log.Printf("Recording video at %.0f fps to %s", args.Framerate, args.VideoFile)
	}

	canvas := newGGCanvas(1, 1)
	routeMap := NewRouteMap(clock, mapOpts...)
	routeMap.Attach(canvas)

	_, err = routeMap.Render(ctx, routes, bounds, opts)
	bar.Finish()
	switch {
	case errors.Is(err, ErrCancelled):
		log.Println("Drawing interrupted, saving the partial canvas.")
	case err != nil:
		log.Fatalf("Error rendering routes: %v", err)
	}

	if args.Caption != "" {
		font, err := truetype.Parse(goregular.TTF)
		if err != nil {
			log.Fatal(err)
		}
		canvas.drawCaption(args.Caption, font, args.CaptionColor)
	}

	if video != nil {
		final := canvas.Snapshot()
		for i := 0; i < int(args.Framerate*videoHoldSeconds); i++ {
			video.AddFrame(final)
		}
		if err := video.Close(); err != nil {
			log.Fatalf("Error encoding video: %v", err)
		}
		fmt.Printf("\nVideo saved to %s (%d frames)\n", args.VideoFile, video.Frames())
	}

	if err := canvas.SavePNG(args.OutputFile); err != nil {
		log.Fatalf("Error saving %s: %v", args.OutputFile, err)
	}
	fmt.Printf("\nCanvas saved to %s\n", args.OutputFile)
}

// resolveBounds picks the window to draw: explicit bounds if given,
// otherwise the padded extent of routes. Without any waypoint there is
// nothing sensible to size a canvas for.
func resolveBounds(explicit *GeoBounds, routes []Route) (GeoBounds, error) {
	if countWaypoints(routes) == 0 {
		return GeoBounds{}, ErrNoRoutes
	}
	if explicit != nil {
		return *explicit, nil
	}
	return *BoundsForRoutes(routes), nil
}

func newDrawingBar(routes int, out io.Writer) *progressbar.ProgressBar {
	return progressbar.NewOptions(routes,
		progressbar.OptionSetWriter(out),
		progressbar.OptionSetDescription("Drawing"),
		progressbar.OptionShowCount(),
		progressbar.OptionSetWidth(10),
		progressbar.OptionThrottle(65*time.Millisecond),
		progressbar.OptionFullWidth(),
		progressbar.OptionSetRenderBlankState(true),
		progressbar.OptionOnCompletion(func() { fmt.Fprint(out, "\n") }),
	)
}

// printSelection converts a pixel rectangle on the canvas that these
// options would produce into geographic bounds.
func printSelection(rect *[2]Pixel, bounds GeoBounds, opts RenderOptions) error {
	size, err := CanvasSize(bounds, opts.MapResolution, opts.MaxWidth)
	if err != nil {
		return err
	}

	var selected *GeoBounds
	sel := NewSelector(bounds, size, func(b GeoBounds) { selected = &b })
	sel.PointerDown(rect[0])
	sel.PointerMove(rect[1])
	sel.PointerUp(rect[1])

	if selected == nil {
		return fmt.Errorf("selection %v-%v has no area", rect[0], rect[1])
	}
	fmt.Printf("Canvas %s, selected %s\n", size, selected)
	fmt.Printf("-bounds %.4f,%.4f,%.4f,%.4f\n", selected.LeftLon, selected.RightLon, selected.UpperLat, selected.LowerLat)
	return nil
}
