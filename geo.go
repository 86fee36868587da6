package main

import (
	"errors"
	"fmt"
	"math"
)

// --- Structs ---

type Coordinate struct {
	Lat, Lon float64
}

// GeoBounds is the geographic window a canvas represents.
type GeoBounds struct {
	LeftLon  float64 `json:"leftLon"`
	RightLon float64 `json:"rightLon"`
	UpperLat float64 `json:"upperLat"`
	LowerLat float64 `json:"lowerLat"`
}

type Pixel struct {
	X, Y int
}

var ErrDegenerateBounds = errors.New("geo bounds have zero or negative extent")

func (b GeoBounds) String() string {
	return fmt.Sprintf("lon [%.4f, %.4f] lat [%.4f, %.4f]", b.LeftLon, b.RightLon, b.LowerLat, b.UpperLat)
}

// Validate rejects bounds whose aspect ratio would be undefined.
func (b GeoBounds) Validate() error {
	if !(b.LeftLon < b.RightLon) || !(b.LowerLat < b.UpperLat) {
		return fmt.Errorf("%w: %s", ErrDegenerateBounds, b)
	}
	return nil
}

func (b GeoBounds) Contains(c Coordinate) bool {
	return c.Lat > b.LowerLat && c.Lat < b.UpperLat && c.Lon > b.LeftLon && c.Lon < b.RightLon
}

// --- Projection ---

// Both axes grow left-to-right and top-to-bottom after normalization.
func normalizeLat(lat float64) float64 { return 90 - lat }
func normalizeLon(lon float64) float64 { return 180 + lon }

// relativePosition maps c into [0,1]x[0,1] relative to b (values outside
// that range are outside the window).
func relativePosition(c Coordinate, b GeoBounds) (float64, float64) {
	minX := normalizeLon(b.LeftLon)
	maxX := normalizeLon(b.RightLon)
	minY := normalizeLat(b.UpperLat)
	maxY := normalizeLat(b.LowerLat)

	rx := (normalizeLon(c.Lon) - minX) / (maxX - minX)
	ry := (normalizeLat(c.Lat) - minY) / (maxY - minY)
	return rx, ry
}

// Project determines where on a width x height canvas representing b the
// coordinate c lands.
func Project(c Coordinate, b GeoBounds, width, height int) Pixel {
	rx, ry := relativePosition(c, b)
	return Pixel{
		X: int(math.Round(rx * float64(width))),
		Y: int(math.Round(ry * float64(height))),
	}
}

// Unproject is the inverse of Project, rounded to 4 decimal places.
func Unproject(p Pixel, b GeoBounds, width, height int) Coordinate {
	minX := normalizeLon(b.LeftLon)
	maxX := normalizeLon(b.RightLon)
	minY := normalizeLat(b.UpperLat)
	maxY := normalizeLat(b.LowerLat)

	x := minX + float64(p.X)/float64(width)*(maxX-minX)
	y := minY + float64(p.Y)/float64(height)*(maxY-minY)

	return Coordinate{
		Lat: roundToPlaces(90-y, 4),
		Lon: roundToPlaces(x-180, 4),
	}
}

func projectAll(wps []Coordinate, b GeoBounds, width, height int) []Pixel {
	pts := make([]Pixel, len(wps))
	for i, wp := range wps {
		pts[i] = Project(wp, b, width, height)
	}
	return pts
}

func roundToPlaces(value float64, places int) float64 {
	scale := math.Pow(10, float64(places))
	return math.Round(value*scale) / scale
}
