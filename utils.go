package main

import (
	"errors"
	"flag"
	"fmt"
	"image/color"
	"io/fs"
	"math"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const envPrefix = "CANVAS"

// --- Structs ---

type Arguments struct {
	Inputs         []string
	OutputFile     string
	VideoFile      string
	ConfigFile     string
	Bitrate        string
	Workers        int
	Framerate      float64
	Thickness      float64
	PathColor      color.Color
	BgColor        color.Color
	MapResolution  float64
	PathResolution float64
	Animation      time.Duration
	MaxWidth       int
	Bounds         *GeoBounds
	Filter         RouteFilter
	Caption        string
	CaptionColor   color.Color
	Selection      *[2]Pixel
}

var mapResolutionPresets = map[string]float64{
	"low":    0.1,
	"medium": 0.25,
	"high":   1.0,
}

// --- Argument Parsing ---

func parseArguments(argv []string) (*Arguments, error) {
	args := &Arguments{}
	var pathColorStr, bgColorStr, captionColorStr, mapResolutionStr string
	var boundsStr, selectStr, afterStr, beforeStr, typesStr string

	flags := flag.NewFlagSet("athletes_canvas", flag.ContinueOnError)
	flags.Usage = func() {
		fmt.Fprintf(flags.Output(), "Usage: athletes_canvas [flags] <route files or directories...>\n")
		flags.PrintDefaults()
	}
	flags.StringVar(&args.OutputFile, "o", "canvas.png", "Output PNG file name.")
	flags.StringVar(&args.VideoFile, "video", "", "Also encode the drawing animation into this video file (requires ffmpeg).")
	flags.StringVar(&args.ConfigFile, "config", "", "Settings file (yaml, json or toml) providing defaults for these flags.")
	flags.StringVar(&args.Bitrate, "bitrate", "5M", "Video bitrate (e.g., 5M).")
	flags.IntVar(&args.Workers, "workers", runtime.NumCPU(), "Number of parallel workers for frame encoding.")
	flags.Float64Var(&args.Framerate, "framerate", defaultFrameRate, "Animation frame rate.")
	flags.Float64Var(&args.Thickness, "thickness", 0.5, "Path thickness multiplier.")
	flags.StringVar(&pathColorStr, "path-color", "rgba(0,0,0,0.2)", "Path color (#RRGGBB, #RRGGBBAA or rgba(r,g,b,a)).")
	flags.StringVar(&bgColorStr, "bg-color", "#FFFFFF", "Background color, or \"transparent\".")
	flags.StringVar(&mapResolutionStr, "map-resolution", "medium", "Pixels per degree factor, or one of low, medium, high.")
	flags.Float64Var(&args.PathResolution, "path-resolution", 1, "Fraction of waypoints to draw, in (0, 1].")
	flags.DurationVar(&args.Animation, "animation", 0, "Time to reveal each route (e.g. 300ms); 0 draws instantly.")
	flags.IntVar(&args.MaxWidth, "max-width", maxWidthPx, "Maximum canvas width in pixels.")
	flags.StringVar(&boundsStr, "bounds", "", "Custom bounds as leftLon,rightLon,upperLat,lowerLat. Only routes crossing them are drawn.")
	flags.StringVar(&afterStr, "after", "", "Only routes starting after this date (YYYY-MM-DD).")
	flags.StringVar(&beforeStr, "before", "", "Only routes starting before this date (YYYY-MM-DD).")
	flags.StringVar(&typesStr, "types", "", "Comma-separated activity types to draw (e.g. Run,Ride).")
	flags.StringVar(&args.Caption, "caption", "", "Text drawn in the bottom-left corner.")
	flags.StringVar(&captionColorStr, "caption-color", "#000000", "Caption color.")
	flags.StringVar(&selectStr, "select", "", "Pixel rectangle x0,y0,x1,y1 on the output canvas to convert into bounds.")

	if err := flags.Parse(argv); err != nil {
		return nil, err
	}
	if err := applySettings(flags, args.ConfigFile); err != nil {
		return nil, err
	}
	args.Inputs = flags.Args()

	var err error
	if args.PathColor, err = parseColor(pathColorStr); err != nil {
		return nil, fmt.Errorf("path-color: %w", err)
	}
	if args.PathColor == nil {
		return nil, errors.New("path-color: must not be transparent")
	}
	if args.BgColor, err = parseColor(bgColorStr); err != nil {
		return nil, fmt.Errorf("bg-color: %w", err)
	}
	if args.CaptionColor, err = parseColor(captionColorStr); err != nil {
		return nil, fmt.Errorf("caption-color: %w", err)
	}
	if args.MapResolution, err = parseMapResolution(mapResolutionStr); err != nil {
		return nil, fmt.Errorf("map-resolution: %w", err)
	}
	if boundsStr != "" {
		b, err := parseBounds(boundsStr)
		if err != nil {
			return nil, fmt.Errorf("bounds: %w", err)
		}
		args.Bounds = &b
		args.Filter.Within = &b
	}
	if selectStr != "" {
		nums, err := parseInts(selectStr, 4)
		if err != nil {
			return nil, fmt.Errorf("select: %w", err)
		}
		args.Selection = &[2]Pixel{
			{X: nums[0], Y: nums[1]},
			{X: nums[2], Y: nums[3]},
		}
	}
	if args.Filter.After, err = parseDate(afterStr); err != nil {
		return nil, fmt.Errorf("after: %w", err)
	}
	if args.Filter.Before, err = parseDate(beforeStr); err != nil {
		return nil, fmt.Errorf("before: %w", err)
	}
	if typesStr != "" {
		args.Filter.Types = strings.Split(typesStr, ",")
	}
	if args.Workers < 1 {
		args.Workers = 1
	}

	return args, nil
}

// applySettings fills every flag not given on the command line from
// CANVAS_* environment variables (a .env file counts as environment) or,
// failing that, the settings file.
func applySettings(flags *flag.FlagSet, configFile string) error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to load .env: %w", err)
	}

	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("failed to read settings file: %w", err)
		}
	}

	given := make(map[string]bool)
	flags.Visit(func(f *flag.Flag) { given[f.Name] = true })

	var errs []string
	flags.VisitAll(func(f *flag.Flag) {
		if given[f.Name] || f.Name == "config" || !v.IsSet(f.Name) {
			return
		}
		if err := f.Value.Set(v.GetString(f.Name)); err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", f.Name, err))
		}
	})
	if len(errs) > 0 {
		return fmt.Errorf("invalid settings:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

func (a *Arguments) RenderOptions() RenderOptions {
	return RenderOptions{
		Thickness:         a.Thickness,
		PathColor:         a.PathColor,
		BgColor:           a.BgColor,
		MapResolution:     a.MapResolution,
		PathResolution:    a.PathResolution,
		AnimationDuration: a.Animation,
		MaxWidth:          a.MaxWidth,
	}
}

// --- Value parsing ---

// parseColor understands #RRGGBB, #RRGGBBAA, rgb(r,g,b), rgba(r,g,b,a)
// with a in [0,1], and "transparent" (returned as nil).
func parseColor(s string) (color.Color, error) {
	s = strings.TrimSpace(strings.ToLower(s))
	switch s {
	case "", "transparent", "none":
		return nil, nil
	}

	if strings.HasPrefix(s, "#") {
		var r, g, b, a uint8
		switch len(s) {
		case 7:
			if _, err := fmt.Sscanf(s, "#%02x%02x%02x", &r, &g, &b); err != nil {
				return nil, fmt.Errorf("invalid hex color %q", s)
			}
			a = 255
		case 9:
			if _, err := fmt.Sscanf(s, "#%02x%02x%02x%02x", &r, &g, &b, &a); err != nil {
				return nil, fmt.Errorf("invalid hex color %q", s)
			}
		default:
			return nil, fmt.Errorf("invalid hex color %q", s)
		}
		return color.NRGBA{R: r, G: g, B: b, A: a}, nil
	}

	open := strings.IndexByte(s, '(')
	if open < 0 || !strings.HasSuffix(s, ")") {
		return nil, fmt.Errorf("unrecognized color %q", s)
	}
	fn := s[:open]
	if fn != "rgb" && fn != "rgba" {
		return nil, fmt.Errorf("unrecognized color function %q", fn)
	}
	parts := strings.Split(s[open+1:len(s)-1], ",")
	if len(parts) != 3 && len(parts) != 4 {
		return nil, fmt.Errorf("invalid color %q: want 3 or 4 components", s)
	}
	var c [3]uint8
	for i := 0; i < 3; i++ {
		v, err := strconv.Atoi(strings.TrimSpace(parts[i]))
		if err != nil || v < 0 || v > 255 {
			return nil, fmt.Errorf("invalid color component %q", parts[i])
		}
		c[i] = uint8(v)
	}
	alpha := 1.0
	if len(parts) == 4 {
		var err error
		alpha, err = strconv.ParseFloat(strings.TrimSpace(parts[3]), 64)
		if err != nil || alpha < 0 || alpha > 1 {
			return nil, fmt.Errorf("invalid alpha %q", parts[3])
		}
	}
	return color.NRGBA{R: c[0], G: c[1], B: c[2], A: uint8(math.Round(alpha * 255))}, nil
}

func parseMapResolution(s string) (float64, error) {
	if v, ok := mapResolutionPresets[strings.ToLower(strings.TrimSpace(s))]; ok {
		return v, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || v <= 0 {
		return 0, fmt.Errorf("invalid map resolution %q", s)
	}
	return v, nil
}

// parseBounds reads leftLon,rightLon,upperLat,lowerLat.
func parseBounds(s string) (GeoBounds, error) {
	nums, err := parseFloats(s, 4)
	if err != nil {
		return GeoBounds{}, err
	}
	b := GeoBounds{LeftLon: nums[0], RightLon: nums[1], UpperLat: nums[2], LowerLat: nums[3]}
	if err := b.Validate(); err != nil {
		return GeoBounds{}, err
	}
	return b, nil
}

func parseFloats(s string, n int) ([]float64, error) {
	parts := strings.Split(s, ",")
	if len(parts) != n {
		return nil, fmt.Errorf("want %d comma-separated numbers, got %q", n, s)
	}
	nums := make([]float64, n)
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return nil, fmt.Errorf("invalid number %q", p)
		}
		nums[i] = v
	}
	return nums, nil
}

// parseInts reads n comma-separated whole numbers, such as pixel positions.
func parseInts(s string, n int) ([]int, error) {
	parts := strings.Split(s, ",")
	if len(parts) != n {
		return nil, fmt.Errorf("want %d comma-separated integers, got %q", n, s)
	}
	nums := make([]int, n)
	for i, p := range parts {
		v, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return nil, fmt.Errorf("invalid integer %q", p)
		}
		nums[i] = v
	}
	return nums, nil
}
