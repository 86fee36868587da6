package main

import "sync"

// Selector turns a pointer drag over a rendered canvas into GeoBounds.
// Corners are normalized, so dragging in any direction yields the same
// bounds.
type Selector struct {
	bounds        GeoBounds
	width, height int
	onSelect      func(GeoBounds)

	mu       sync.Mutex
	dragging bool
	start    Pixel
	current  Pixel
}

func NewSelector(bounds GeoBounds, res Resolution, onSelect func(GeoBounds)) *Selector {
	return &Selector{bounds: bounds, width: res.Width, height: res.Height, onSelect: onSelect}
}

func (s *Selector) PointerDown(p Pixel) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dragging = true
	s.start = p
	s.current = p
}

func (s *Selector) PointerMove(p Pixel) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dragging {
		s.current = p
	}
}

// PointerUp ends the drag and emits the selected bounds. A drag without
// area selects nothing.
func (s *Selector) PointerUp(p Pixel) {
	s.mu.Lock()
	if !s.dragging {
		s.mu.Unlock()
		return
	}
	s.dragging = false
	s.current = p
	start, end := s.start, s.current
	s.mu.Unlock()

	if start.X == end.X || start.Y == end.Y {
		return
	}
	b := selectionBounds(start, end, s.bounds, s.width, s.height)
	if s.onSelect != nil {
		s.onSelect(b)
	}
}

// Rect reports the rectangle currently being dragged.
func (s *Selector) Rect() (topLeft, bottomRight Pixel, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.dragging {
		return Pixel{}, Pixel{}, false
	}
	topLeft, bottomRight = normalizeRect(s.start, s.current)
	return topLeft, bottomRight, true
}

func normalizeRect(a, b Pixel) (Pixel, Pixel) {
	return Pixel{X: min(a.X, b.X), Y: min(a.Y, b.Y)}, Pixel{X: max(a.X, b.X), Y: max(a.Y, b.Y)}
}

func selectionBounds(a, b Pixel, bounds GeoBounds, width, height int) GeoBounds {
	topLeft, bottomRight := normalizeRect(a, b)
	nw := Unproject(topLeft, bounds, width, height)
	se := Unproject(bottomRight, bounds, width, height)
	return GeoBounds{
		LeftLon:  nw.Lon,
		RightLon: se.Lon,
		UpperLat: nw.Lat,
		LowerLat: se.Lat,
	}
}
