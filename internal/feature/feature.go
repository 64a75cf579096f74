// Package feature holds the in-memory state of a single drawn feature: its
// geometry, properties and edit-session flags, and the per-variant handling
// of draw gestures.
package feature

import (
	"errors"
	"fmt"

	"github.com/OCAP2/draw/pkg/core"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// ErrGeometryMismatch is returned when coordinates of the wrong shape are set on a feature.
var ErrGeometryMismatch = errors.New("geometry does not match feature type")

// Step tells the draw session whether a gesture is finished.
type Step int

const (
	Continue Step = iota
	Done
)

// Translator moves a geometry by the geographic delta between two pointer positions.
type Translator interface {
	Translate(g orb.Geometry, from, to core.ScreenPoint) orb.Geometry
}

// Deps are the collaborators a feature talks to. Either may be nil.
type Deps struct {
	Map        core.Map
	Translator Translator
}

// Feature is the contract shared by Point, Line and Polygon.
type Feature interface {
	ID() string
	Type() core.GeometryType
	Options() core.Options

	Coordinates() orb.Geometry
	SetCoordinates(g orb.Geometry) error
	Properties() geojson.Properties
	SetProperties(props geojson.Properties)
	ToGeoJSON() *geojson.Feature

	Ready() bool
	Created() bool
	Committed() bool
	ToRemove() bool
	Selected() bool
	HasSnapshot() bool
	MarkReady()
	MarkCreated()
	MarkCommitted()

	Select()
	Deselect()
	Revert()
	Translate(init, curr core.ScreenPoint)
	ResetTranslate()

	StartDrawing()
	OnStopDrawing()
	OnClick(e core.InputEvent) Step
	OnDoubleClick(e core.InputEvent) Step
	OnMouseMove(e core.InputEvent) Step
	OnMouseDown(e core.InputEvent) Step
	OnMouseUp(e core.InputEvent) Step
}

// base carries everything the variants have in common. Variants embed it and
// override the hooks they need.
type base struct {
	id    string
	kind  core.GeometryType
	geom  orb.Geometry
	props geojson.Properties
	opts  core.Options
	deps  Deps

	ready     bool
	created   bool
	committed bool
	toRemove  bool
	selected  bool

	// lastCoords is the pre-edit snapshot, set while selected.
	lastCoords orb.Geometry
	// initGeom is the drag baseline, set while a translate gesture is running.
	initGeom orb.Geometry
}

func newBase(id string, kind core.GeometryType, g orb.Geometry, props geojson.Properties, opts core.Options, deps Deps) *base {
	return &base{
		id:    id,
		kind:  kind,
		geom:  orb.Clone(g),
		props: copyProperties(props),
		opts:  opts,
		deps:  deps,
	}
}

func (b *base) ID() string              { return b.id }
func (b *base) Type() core.GeometryType { return b.kind }
func (b *base) Options() core.Options   { return b.opts }

func (b *base) Ready() bool       { return b.ready }
func (b *base) Created() bool     { return b.created }
func (b *base) Committed() bool   { return b.committed }
func (b *base) ToRemove() bool    { return b.toRemove }
func (b *base) Selected() bool    { return b.selected }
func (b *base) HasSnapshot() bool { return b.lastCoords != nil }

func (b *base) MarkReady()     { b.ready = true }
func (b *base) MarkCreated()   { b.created = true }
func (b *base) MarkCommitted() { b.committed = true }

// Coordinates returns an independent copy of the geometry.
func (b *base) Coordinates() orb.Geometry {
	return orb.Clone(b.geom)
}

// SetCoordinates replaces the geometry wholesale.
func (b *base) SetCoordinates(g orb.Geometry) error {
	if err := checkKind(b.kind, g); err != nil {
		return err
	}
	b.geom = orb.Clone(g)
	return nil
}

// Properties returns a deep copy of the properties.
func (b *base) Properties() geojson.Properties {
	return copyProperties(b.props)
}

// SetProperties replaces the properties wholesale with a deep copy of props.
func (b *base) SetProperties(props geojson.Properties) {
	b.props = copyProperties(props)
}

// ToGeoJSON returns a feature that shares no memory with b.
func (b *base) ToGeoJSON() *geojson.Feature {
	f := geojson.NewFeature(orb.Clone(b.geom))
	f.ID = b.id
	f.Properties = copyProperties(b.props)
	return f
}

// Select marks the feature selected. The first call takes the snapshot used by
// Revert; later calls keep the original baseline.
func (b *base) Select() {
	b.selected = true
	if b.lastCoords == nil {
		b.lastCoords = orb.Clone(b.geom)
	}
}

// Deselect clears selection and the snapshot. Coordinates are untouched.
func (b *base) Deselect() {
	b.selected = false
	b.lastCoords = nil
}

// Revert restores the coordinates captured by Select. It does not deselect.
func (b *base) Revert() {
	if b.lastCoords == nil {
		return
	}
	b.geom = orb.Clone(b.lastCoords)
}

// Translate moves the feature by the pointer delta init -> curr, always
// relative to the geometry held when the gesture started.
func (b *base) Translate(init, curr core.ScreenPoint) {
	if b.deps.Translator == nil {
		return
	}
	if b.initGeom == nil {
		b.initGeom = orb.Clone(b.geom)
	}
	b.geom = b.deps.Translator.Translate(orb.Clone(b.initGeom), init, curr)
}

// ResetTranslate ends a drag gesture.
func (b *base) ResetTranslate() {
	b.initGeom = nil
}

// StartDrawing prepares the host for a draw gesture.
func (b *base) StartDrawing() {
	if b.deps.Map == nil {
		return
	}
	b.deps.Map.SetDoubleClickZoom(false)
	b.deps.Map.SetCursor(core.CursorCrosshair)
}

// OnStopDrawing restores the host and finalizes the created flag.
func (b *base) OnStopDrawing() {
	if b.deps.Map != nil {
		b.deps.Map.SetDoubleClickZoom(true)
		b.deps.Map.SetCursor(core.CursorDefault)
	}
	b.created = !b.toRemove
}

func (b *base) OnClick(core.InputEvent) Step       { return Continue }
func (b *base) OnDoubleClick(core.InputEvent) Step { return Continue }
func (b *base) OnMouseMove(core.InputEvent) Step   { return Continue }
func (b *base) OnMouseDown(core.InputEvent) Step   { return Continue }
func (b *base) OnMouseUp(core.InputEvent) Step     { return Continue }

func checkKind(kind core.GeometryType, g orb.Geometry) error {
	ok := false
	switch g.(type) {
	case orb.Point:
		ok = kind == core.TypePoint
	case orb.LineString:
		ok = kind == core.TypeLine
	case orb.Polygon:
		ok = kind == core.TypePolygon
	}
	if !ok {
		return fmt.Errorf("%w: %s feature got %T", ErrGeometryMismatch, kind, g)
	}
	return nil
}

// Blank returns an empty, not yet ready feature of the given type, ready to
// receive a draw gesture.
func Blank(id string, kind core.GeometryType, opts core.Options, deps Deps) Feature {
	switch kind {
	case core.TypeLine:
		return NewLine(id, nil, nil, opts, deps)
	case core.TypePolygon:
		return NewPolygon(id, nil, nil, opts, deps)
	default:
		return NewPoint(id, orb.Point{}, nil, opts, deps)
	}
}
