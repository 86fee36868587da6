package main

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"math"

	"github.com/fogleman/gg"
	"github.com/golang/freetype/truetype"
)

var ErrInvalidPathResolution = errors.New("invalid path resolution")

// Canvas is the drawing surface a RouteMap paints on.
type Canvas interface {
	Resize(width, height int)
	Size() (width, height int)
	// Clear resets every pixel to transparent.
	Clear()
	Fill(c color.Color)
	// StrokePath draws pts as one contiguous polyline with round caps and joins.
	StrokePath(pts []Pixel, lineWidth float64, c color.Color)
	Snapshot() image.Image
}

// --- gg canvas ---

type ggCanvas struct {
	img *image.RGBA
	dc  *gg.Context
}

func newGGCanvas(width, height int) *ggCanvas {
	c := &ggCanvas{}
	c.Resize(width, height)
	return c
}

func (c *ggCanvas) Resize(width, height int) {
	if c.img != nil && c.img.Bounds().Dx() == width && c.img.Bounds().Dy() == height {
		return
	}
	c.img = image.NewRGBA(image.Rect(0, 0, width, height))
	c.dc = gg.NewContextForRGBA(c.img)
}

func (c *ggCanvas) Size() (int, int) {
	return c.img.Bounds().Dx(), c.img.Bounds().Dy()
}

func (c *ggCanvas) Clear() {
	draw.Draw(c.img, c.img.Bounds(), image.Transparent, image.Point{}, draw.Src)
}

func (c *ggCanvas) Fill(col color.Color) {
	w, h := c.Size()
	c.dc.SetColor(col)
	c.dc.DrawRectangle(0, 0, float64(w), float64(h))
	c.dc.Fill()
}

func (c *ggCanvas) StrokePath(pts []Pixel, lineWidth float64, col color.Color) {
	if len(pts) < 2 {
		return
	}
	c.dc.SetLineWidth(lineWidth)
	c.dc.SetLineCapRound()
	c.dc.SetLineJoinRound()
	c.dc.SetColor(col)

	c.dc.MoveTo(float64(pts[0].X), float64(pts[0].Y))
	for _, p := range pts[1:] {
		c.dc.LineTo(float64(p.X), float64(p.Y))
	}
	c.dc.Stroke()
}

func (c *ggCanvas) Snapshot() image.Image {
	cp := image.NewRGBA(c.img.Bounds())
	copy(cp.Pix, c.img.Pix)
	return cp
}

func (c *ggCanvas) SavePNG(path string) error {
	return gg.SavePNG(path, c.img)
}

// drawCaption writes text into the bottom-left corner, sized relative to
// the canvas width.
func (c *ggCanvas) drawCaption(text string, font *truetype.Font, col color.Color) {
	if text == "" {
		return
	}
	w, h := c.Size()
	fontSize := math.Max(float64(w)/60.0, 8)
	margin := fontSize

	c.dc.SetFontFace(truetype.NewFace(font, &truetype.Options{Size: fontSize}))
	c.dc.SetColor(col)
	c.dc.DrawStringAnchored(text, margin, float64(h)-margin, 0, 0)
}

// --- Path rendering ---

// strokeWidth keeps line weight independent of the output resolution.
func strokeWidth(canvasWidth int, thickness float64) float64 {
	return float64(canvasWidth) / 1000 * thickness
}

// filterWaypoints keeps the first and last waypoint and every Nth one,
// where N = ceil(1 / pathResolution).
func filterWaypoints(wps []Coordinate, pathResolution float64) ([]Coordinate, error) {
	if err := validatePathResolution(pathResolution); err != nil {
		return nil, err
	}
	return sampleWaypoints(wps, pathResolution), nil
}

// sampleWaypoints is filterWaypoints for a pathResolution already known to
// be in (0, 1].
func sampleWaypoints(wps []Coordinate, pathResolution float64) []Coordinate {
	every := int(math.Ceil(1 / pathResolution))

	kept := make([]Coordinate, 0, len(wps)/every+2)
	for i, wp := range wps {
		if i == 0 || i%every == 0 || i == len(wps)-1 {
			kept = append(kept, wp)
		}
	}
	return kept
}

func validatePathResolution(pathResolution float64) error {
	if math.IsNaN(pathResolution) || pathResolution <= 0 || pathResolution > 1 {
		return fmt.Errorf("%w: %v must be in the range (0, 1]", ErrInvalidPathResolution, pathResolution)
	}
	return nil
}
