package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/tkrajina/gpxgo/gpx"
	"github.com/twpayne/go-polyline"
)

// --- Structs ---

type Route struct {
	ID        string
	Name      string
	StartDate time.Time
	Type      string
	Waypoints []Coordinate
}

// activity is the subset of an exported activity summary needed to build a route.
type activity struct {
	ID        json.Number `json:"id"`
	Name      string      `json:"name"`
	StartDate time.Time   `json:"start_date"`
	Type      string      `json:"type"`
	SportType string      `json:"sport_type"`
	Map       struct {
		SummaryPolyline string `json:"summary_polyline"`
	} `json:"map"`
}

// Strava writes numeric sport codes into the GPX track type.
var stravaTypeCodes = map[string]string{
	"1":  "Ride",
	"2":  "AlpineSki",
	"3":  "BackcountrySki",
	"4":  "Hike",
	"5":  "IceSkate",
	"6":  "InlineSkate",
	"7":  "NordicSki",
	"8":  "RollerSki",
	"9":  "Run",
	"10": "Walk",
	"11": "Workout",
	"12": "Snowboard",
	"13": "Snowshoe",
	"14": "Kitesurf",
	"15": "Windsurf",
	"16": "Swim",
	"17": "VirtualRide",
	"18": "EBikeRide",
	"21": "Canoeing",
	"22": "Kayaking",
	"23": "Rowing",
	"24": "StandUpPaddling",
	"25": "Surfing",
	"26": "Crossfit",
	"27": "Elliptical",
	"28": "RockClimbing",
	"29": "StairStepper",
	"30": "WeightTraining",
	"31": "Yoga",
}

// --- Loading ---

// loadRoutes reads routes from GPX files and activity JSON exports.
// Directories are walked recursively; unknown extensions are skipped.
func loadRoutes(paths []string) ([]Route, error) {
	var routes []Route
	for _, root := range paths {
		err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				return nil
			}

			var loaded []Route
			switch strings.ToLower(filepath.Ext(path)) {
			case ".gpx":
				loaded, err = loadGPXRoutes(path)
			case ".json":
				loaded, err = loadActivityRoutes(path)
			default:
				if path == root {
					return fmt.Errorf("unsupported route file %s", path)
				}
				return nil
			}
			if err != nil {
				return err
			}
			routes = append(routes, loaded...)
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	return routes, nil
}

func loadGPXRoutes(path string) ([]Route, error) {
	gpxFile, err := gpx.ParseFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to parse GPX file %s: %w", path, err)
	}
	return gpxToRoutes(gpxFile, filepath.Base(path)), nil
}

func gpxToRoutes(g *gpx.GPX, source string) []Route {
	routes := make([]Route, 0, len(g.Tracks))
	for i, track := range g.Tracks {
		route := Route{
			ID:   fmt.Sprintf("%s#%d", source, i),
			Name: track.Name,
			Type: track.Type,
		}
		if strings.Contains(g.Creator, "Strava") {
			if t, ok := stravaTypeCodes[track.Type]; ok {
				route.Type = t
			}
		}
		if route.Name == "" {
			route.Name = source
		}

		for _, segment := range track.Segments {
			for _, p := range segment.Points {
				if route.StartDate.IsZero() && !p.Timestamp.IsZero() {
					route.StartDate = p.Timestamp
				}
				route.Waypoints = append(route.Waypoints, Coordinate{Lat: p.Latitude, Lon: p.Longitude})
			}
		}
		if len(route.Waypoints) == 0 {
			continue
		}
		routes = append(routes, route)
	}
	return routes
}

func loadActivityRoutes(path string) ([]Route, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read activities file: %w", err)
	}
	activities, err := parseActivities(content)
	if err != nil {
		return nil, fmt.Errorf("failed to parse activities file %s: %w", path, err)
	}
	return activitiesToRoutes(activities), nil
}

// parseActivities accepts either a bare JSON array of activities or an
// object wrapping them under "activities".
func parseActivities(content []byte) ([]activity, error) {
	content = bytes.TrimSpace(content)
	var activities []activity
	if len(content) > 0 && content[0] == '[' {
		if err := json.Unmarshal(content, &activities); err != nil {
			return nil, err
		}
		return activities, nil
	}

	var wrapped struct {
		Activities []activity `json:"activities"`
	}
	if err := json.Unmarshal(content, &wrapped); err != nil {
		return nil, err
	}
	return wrapped.Activities, nil
}

func activitiesToRoutes(activities []activity) []Route {
	routes := make([]Route, 0, len(activities))
	for _, a := range activities {
		if a.Map.SummaryPolyline == "" {
			continue
		}
		waypoints, err := decodePolyline(a.Map.SummaryPolyline)
		if err != nil {
			log.Printf("Skipping activity %s: %v", a.ID, err)
			continue
		}
		activityType := a.Type
		if activityType == "" {
			activityType = a.SportType
		}
		routes = append(routes, Route{
			ID:        a.ID.String(),
			Name:      a.Name,
			StartDate: a.StartDate,
			Type:      activityType,
			Waypoints: waypoints,
		})
	}
	return routes
}

func decodePolyline(encoded string) ([]Coordinate, error) {
	coords, _, err := polyline.DecodeCoords([]byte(encoded))
	if err != nil {
		return nil, fmt.Errorf("invalid polyline: %w", err)
	}
	waypoints := make([]Coordinate, len(coords))
	for i, c := range coords {
		waypoints[i] = Coordinate{Lat: c[0], Lon: c[1]}
	}
	return waypoints, nil
}

// --- Filtering ---

// RouteFilter selects routes to render. Zero-valued fields do not filter.
type RouteFilter struct {
	After  time.Time
	Before time.Time
	Types  []string
	// Within keeps routes with at least one waypoint strictly inside it.
	Within *GeoBounds
}

func (f RouteFilter) Match(r Route) bool {
	if !f.After.IsZero() && !r.StartDate.After(f.After) {
		return false
	}
	if !f.Before.IsZero() && !r.StartDate.Before(f.Before) {
		return false
	}
	if len(f.Types) > 0 && !containsFold(f.Types, r.Type) {
		return false
	}
	if f.Within != nil {
		for _, wp := range r.Waypoints {
			if f.Within.Contains(wp) {
				return true
			}
		}
		return false
	}
	return true
}

func (f RouteFilter) Apply(routes []Route) []Route {
	kept := make([]Route, 0, len(routes))
	for _, r := range routes {
		if f.Match(r) {
			kept = append(kept, r)
		}
	}
	return kept
}

func containsFold(list []string, s string) bool {
	for _, item := range list {
		if strings.EqualFold(strings.TrimSpace(item), s) {
			return true
		}
	}
	return false
}

func countWaypoints(routes []Route) int {
	n := 0
	for _, r := range routes {
		n += len(r.Waypoints)
	}
	return n
}

func parseDate(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	if unix, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Unix(unix, 0).UTC(), nil
	}
	return time.Time{}, fmt.Errorf("invalid date %q: want YYYY-MM-DD, RFC 3339 or unix seconds", s)
}
