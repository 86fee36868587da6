package main

import (
	"fmt"
	"math"
)

const (
	maxWidthPx             = 30000
	resolutionScaleFactor  = 20000
	boundsPaddingFraction  = 0.05
	boundsRoundingDecimals = 4
)

type Resolution struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

func (r Resolution) String() string {
	return fmt.Sprintf("%dx%d", r.Width, r.Height)
}

// BoundsForRoutes returns the bounds containing every waypoint of routes,
// padded by 5% of the observed range on each axis, or nil if there are no
// waypoints at all.
func BoundsForRoutes(routes []Route) *GeoBounds {
	minLat, maxLat := 90.0, -90.0
	minLon, maxLon := 180.0, -180.0

	found := false
	for _, route := range routes {
		for _, wp := range route.Waypoints {
			found = true
			minLat = math.Min(wp.Lat, minLat)
			maxLat = math.Max(wp.Lat, maxLat)
			minLon = math.Min(wp.Lon, minLon)
			maxLon = math.Max(wp.Lon, maxLon)
		}
	}
	if !found {
		return nil
	}

	latBuffer := boundsPaddingFraction * math.Abs(maxLat-minLat)
	lonBuffer := boundsPaddingFraction * math.Abs(maxLon-minLon)

	return &GeoBounds{
		LeftLon:  roundToPlaces(minLon-lonBuffer, boundsRoundingDecimals),
		RightLon: roundToPlaces(maxLon+lonBuffer, boundsRoundingDecimals),
		UpperLat: roundToPlaces(maxLat+latBuffer, boundsRoundingDecimals),
		LowerLat: roundToPlaces(minLat-latBuffer, boundsRoundingDecimals),
	}
}

// CanvasSize computes the pixel size of a canvas showing b. Width scales
// with the longitude extent and mapResolution and is clamped to maxWidth;
// height follows from the aspect ratio of b.
func CanvasSize(b GeoBounds, mapResolution float64, maxWidth int) (Resolution, error) {
	if err := b.Validate(); err != nil {
		return Resolution{}, err
	}
	if mapResolution <= 0 {
		return Resolution{}, fmt.Errorf("invalid map resolution %v: must be positive", mapResolution)
	}
	if maxWidth <= 0 {
		maxWidth = maxWidthPx
	}

	widthDeg := math.Abs(b.RightLon - b.LeftLon)
	heightDeg := math.Abs(b.UpperLat - b.LowerLat)
	aspect := widthDeg / heightDeg

	width := math.Min(widthDeg*mapResolution*resolutionScaleFactor, float64(maxWidth))
	height := width / aspect

	return Resolution{Width: max(int(width), 1), Height: max(int(height), 1)}, nil
}
