package feature

import "github.com/paulmach/orb"

// sketch tracks the vertices of an in-progress line or polygon gesture.
type sketch struct {
	drawing  bool
	vertices []orb.Point
	cursor   *orb.Point
}

func (s *sketch) start() {
	s.drawing = true
	s.vertices = nil
	s.cursor = nil
}

// add fixes a vertex. It reports false when p repeats the last fixed vertex,
// which finishes the gesture.
func (s *sketch) add(p orb.Point) bool {
	if n := len(s.vertices); n > 0 && s.vertices[n-1].Equal(p) {
		return false
	}
	s.vertices = append(s.vertices, p)
	c := p
	s.cursor = &c
	return true
}

// follow moves the pointer vertex. It reports whether anything changed.
func (s *sketch) follow(p orb.Point) bool {
	if !s.drawing || len(s.vertices) == 0 {
		return false
	}
	s.cursor = &p
	return true
}

func (s *sketch) finish() {
	s.drawing = false
	s.cursor = nil
}

func (s *sketch) points() []orb.Point {
	pts := make([]orb.Point, 0, len(s.vertices)+1)
	pts = append(pts, s.vertices...)
	if s.cursor != nil {
		pts = append(pts, *s.cursor)
	}
	return pts
}
