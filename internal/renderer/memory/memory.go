// Package memory is an in-process render host: named sources that keep the
// last collection pushed to them and a screen-space spatial query over them.
package memory

import (
	"sync"

	"github.com/OCAP2/draw/internal/geo"
	"github.com/OCAP2/draw/pkg/core"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// Source records every collection pushed to it.
type Source struct {
	mu      sync.Mutex
	name    string
	current *geojson.FeatureCollection
	pushes  int
}

// SetData replaces the source contents.
func (s *Source) SetData(fc *geojson.FeatureCollection) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = fc
	s.pushes++
	return nil
}

// Data returns the last collection pushed, or an empty one.
func (s *Source) Data() *geojson.FeatureCollection {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return geojson.NewFeatureCollection()
	}
	return s.current
}

// Pushes returns how many times SetData was called.
func (s *Source) Pushes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pushes
}

// Map implements core.Map over a Viewport. Layer names given to
// QueryRenderedFeatures are source names.
type Map struct {
	geo.Viewport

	mu            sync.RWMutex
	sources       map[string]*Source
	cursor        string
	dblClickZoom  bool
	deleteVisible bool
}

var (
	_ core.Map      = (*Map)(nil)
	_ core.Controls = (*Map)(nil)
)

// New creates a map showing vp with the given sources already added.
func New(vp geo.Viewport, sources ...string) *Map {
	m := &Map{
		Viewport:     vp,
		sources:      make(map[string]*Source),
		dblClickZoom: true,
	}
	for _, name := range sources {
		m.AddSource(name)
	}
	return m
}

// AddSource creates the named source if it does not exist and returns it.
func (m *Map) AddSource(name string) *Source {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sources[name]; ok {
		return s
	}
	s := &Source{name: name}
	m.sources[name] = s
	return s
}

// RemoveSource drops the named source, as a host does on teardown.
func (m *Map) RemoveSource(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sources, name)
}

// Source implements core.Renderer.
func (m *Map) Source(name string) (core.Source, bool) {
	s, ok := m.Lookup(name)
	if !ok {
		return nil, false
	}
	return s, true
}

// Lookup returns the concrete source.
func (m *Map) Lookup(name string) (*Source, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sources[name]
	return s, ok
}

// QueryRenderedFeatures returns copies of the features in layers whose
// screen-space parts intersect the box. Lines and polygons report one hit per
// segment that touches the box, so a feature can appear several times.
func (m *Map) QueryRenderedFeatures(min, max core.ScreenPoint, layers []string) []*geojson.Feature {
	box := orb.Bound{Min: orb.Point{min.X, min.Y}, Max: orb.Point{max.X, max.Y}}

	var out []*geojson.Feature
	for _, layer := range layers {
		src, ok := m.Lookup(layer)
		if !ok {
			continue
		}
		for _, f := range src.Data().Features {
			for i := 0; i < m.hits(f.Geometry, box); i++ {
				out = append(out, copyFeature(f))
			}
		}
	}
	return out
}

// hits counts the parts of g that intersect box in screen space.
func (m *Map) hits(g orb.Geometry, box orb.Bound) int {
	switch v := g.(type) {
	case orb.Point:
		if box.Contains(m.screen(v)) {
			return 1
		}
		return 0
	case orb.LineString:
		return m.segmentHits(v, box)
	case orb.Polygon:
		n := 0
		for _, r := range v {
			n += m.segmentHits(orb.LineString(r), box)
		}
		if n == 0 && len(v) > 0 && m.screenBound(v[0]).Intersects(box) {
			// box inside the fill
			n = 1
		}
		return n
	default:
		return 0
	}
}

func (m *Map) segmentHits(ls orb.LineString, box orb.Bound) int {
	if len(ls) == 1 {
		if box.Contains(m.screen(ls[0])) {
			return 1
		}
		return 0
	}
	n := 0
	for i := 0; i+1 < len(ls); i++ {
		if m.screenBound(orb.LineString{ls[i], ls[i+1]}).Intersects(box) {
			n++
		}
	}
	return n
}

func (m *Map) screen(p orb.Point) orb.Point {
	s := m.Project(p)
	return orb.Point{s.X, s.Y}
}

func (m *Map) screenBound(g orb.Geometry) orb.Bound {
	lo, hi := geo.ScreenBound(m, g)
	return orb.Bound{Min: orb.Point{lo.X, lo.Y}, Max: orb.Point{hi.X, hi.Y}}
}

// SetCursor implements core.Map.
func (m *Map) SetCursor(mode string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cursor = mode
}

// Cursor returns the current cursor mode.
func (m *Map) Cursor() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cursor
}

// SetDoubleClickZoom implements core.Map.
func (m *Map) SetDoubleClickZoom(enabled bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dblClickZoom = enabled
}

// DoubleClickZoom reports whether double-click zoom is on.
func (m *Map) DoubleClickZoom() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.dblClickZoom
}

// SetDeleteVisible implements core.Controls.
func (m *Map) SetDeleteVisible(visible bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deleteVisible = visible
}

// DeleteVisible reports the delete affordance state.
func (m *Map) DeleteVisible() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.deleteVisible
}

func copyFeature(f *geojson.Feature) *geojson.Feature {
	out := geojson.NewFeature(orb.Clone(f.Geometry))
	out.ID = f.ID
	out.Properties = f.Properties.Clone()
	return out
}
