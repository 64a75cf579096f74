package feature

import (
	"errors"
	"testing"

	"github.com/OCAP2/draw/pkg/core"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// shiftTranslator moves geometries by the raw pointer delta in degrees.
type shiftTranslator struct {
	calls int
}

func (s *shiftTranslator) Translate(g orb.Geometry, from, to core.ScreenPoint) orb.Geometry {
	s.calls++
	dx, dy := to.X-from.X, to.Y-from.Y
	switch v := g.(type) {
	case orb.Point:
		return orb.Point{v[0] + dx, v[1] + dy}
	case orb.LineString:
		out := make(orb.LineString, len(v))
		for i, p := range v {
			out[i] = orb.Point{p[0] + dx, p[1] + dy}
		}
		return out
	}
	return g
}

// hostRecorder records cursor and double-click-zoom toggles.
type hostRecorder struct {
	core.Map
	cursor   string
	dblClick []bool
}

func (h *hostRecorder) SetCursor(mode string)           { h.cursor = mode }
func (h *hostRecorder) SetDoubleClickZoom(enabled bool) { h.dblClick = append(h.dblClick, enabled) }

func click(lng, lat float64) core.InputEvent {
	return core.InputEvent{Kind: core.InputClick, LngLat: orb.Point{lng, lat}}
}

func TestNewPoint_CopiesInput(t *testing.T) {
	props := geojson.Properties{"name": "a", "tags": []any{"x"}}
	f := NewPoint("p1", orb.Point{1, 2}, props, core.Options{}, Deps{})

	props["name"] = "changed"
	props["tags"].([]any)[0] = "y"

	got := f.Properties()
	assert.Equal(t, "a", got["name"])
	assert.Equal(t, []any{"x"}, got["tags"])
	assert.Equal(t, core.TypePoint, f.Type())
	assert.Equal(t, "p1", f.ID())
}

func TestToGeoJSON_IsIndependentCopy(t *testing.T) {
	f := NewLine("l1", orb.LineString{{0, 0}, {1, 1}}, geojson.Properties{"nested": map[string]any{"k": 1}}, core.Options{}, Deps{})

	gj := f.ToGeoJSON()
	gj.Geometry.(orb.LineString)[0] = orb.Point{9, 9}
	gj.Properties["nested"].(map[string]any)["k"] = 2

	assert.Equal(t, orb.Point{0, 0}, f.Coordinates().(orb.LineString)[0])
	assert.Equal(t, 1, f.Properties()["nested"].(map[string]any)["k"])
	assert.Equal(t, "l1", gj.ID)
}

func TestCloneGeoJSON(t *testing.T) {
	assert.Nil(t, CloneGeoJSON(nil))

	src := geojson.NewFeature(orb.Polygon{{{0, 0}, {1, 0}, {1, 1}, {0, 0}}})
	src.ID = "g1"
	src.Properties["list"] = []any{"a"}

	cp := CloneGeoJSON(src)
	cp.Geometry.(orb.Polygon)[0][0] = orb.Point{5, 5}
	cp.Properties["list"].([]any)[0] = "b"

	assert.Equal(t, orb.Point{0, 0}, src.Geometry.(orb.Polygon)[0][0])
	assert.Equal(t, []any{"a"}, src.Properties["list"])
	assert.Equal(t, "g1", cp.ID)
}

func TestSetCoordinates_RejectsMismatch(t *testing.T) {
	f := NewPoint("p1", orb.Point{1, 2}, nil, core.Options{}, Deps{})

	err := f.SetCoordinates(orb.LineString{{0, 0}, {1, 1}})

	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrGeometryMismatch))
	assert.Equal(t, orb.Point{1, 2}, f.Coordinates())
}

func TestSetProperties_ReplacesWholesale(t *testing.T) {
	f := NewPoint("p1", orb.Point{}, geojson.Properties{"a": 1}, core.Options{}, Deps{})

	f.SetProperties(geojson.Properties{"b": 2})

	assert.Equal(t, geojson.Properties{"b": 2}, f.Properties())
}

func TestSelect_SnapshotOnlyOnce(t *testing.T) {
	f := NewPoint("p1", orb.Point{1, 1}, nil, core.Options{}, Deps{})

	f.Select()
	require.NoError(t, f.SetCoordinates(orb.Point{2, 2}))
	f.Select()
	f.Revert()

	assert.True(t, f.Selected())
	assert.Equal(t, orb.Point{1, 1}, f.Coordinates())
}

func TestDeselect_ClearsSnapshot(t *testing.T) {
	f := NewPoint("p1", orb.Point{1, 1}, nil, core.Options{}, Deps{})

	f.Select()
	assert.True(t, f.HasSnapshot())
	require.NoError(t, f.SetCoordinates(orb.Point{2, 2}))
	f.Deselect()

	assert.False(t, f.Selected())
	assert.False(t, f.HasSnapshot())
	assert.Equal(t, orb.Point{2, 2}, f.Coordinates())

	f.Revert()
	assert.Equal(t, orb.Point{2, 2}, f.Coordinates(), "revert without snapshot is a no-op")
}

func TestTranslate_DependsOnlyOnPointers(t *testing.T) {
	tr := &shiftTranslator{}
	f := NewPoint("p1", orb.Point{0, 0}, nil, core.Options{}, Deps{Translator: tr})

	init := core.ScreenPoint{X: 0, Y: 0}
	f.Translate(init, core.ScreenPoint{X: 1, Y: 1})
	f.Translate(init, core.ScreenPoint{X: 3, Y: 2})
	f.Translate(init, core.ScreenPoint{X: 3, Y: 2})

	assert.Equal(t, orb.Point{3, 2}, f.Coordinates())
	assert.Equal(t, 3, tr.calls)

	f.ResetTranslate()
	f.Translate(init, core.ScreenPoint{X: 1, Y: 0})
	assert.Equal(t, orb.Point{4, 2}, f.Coordinates(), "a new gesture starts from the current geometry")
}

func TestTranslate_NoTranslator(t *testing.T) {
	f := NewPoint("p1", orb.Point{5, 5}, nil, core.Options{}, Deps{})

	f.Translate(core.ScreenPoint{}, core.ScreenPoint{X: 10})

	assert.Equal(t, orb.Point{5, 5}, f.Coordinates())
}

func TestPoint_DrawGesture(t *testing.T) {
	host := &hostRecorder{}
	f := Blank("p1", core.TypePoint, core.Options{}, Deps{Map: host})

	f.StartDrawing()
	assert.Equal(t, core.CursorCrosshair, host.cursor)
	assert.False(t, f.Ready())

	step := f.OnClick(click(4, 5))
	require.Equal(t, Done, step)
	assert.True(t, f.Ready())
	assert.Equal(t, orb.Point{4, 5}, f.Coordinates())

	f.OnStopDrawing()
	assert.True(t, f.Created())
	assert.Equal(t, core.CursorDefault, host.cursor)
	assert.Equal(t, []bool{false, true}, host.dblClick)
}

func TestPoint_UnplacedIsDiscarded(t *testing.T) {
	f := Blank("p1", core.TypePoint, core.Options{}, Deps{})
	f.StartDrawing()

	f.OnStopDrawing()

	assert.True(t, f.ToRemove())
	assert.False(t, f.Created())
}

func TestLine_DrawGesture(t *testing.T) {
	f := Blank("l1", core.TypeLine, core.Options{}, Deps{})
	f.StartDrawing()

	assert.Equal(t, Continue, f.OnClick(click(0, 0)))
	f.OnMouseMove(core.InputEvent{Kind: core.InputMouseMove, LngLat: orb.Point{0.5, 0.5}})
	assert.Equal(t, orb.LineString{{0, 0}, {0.5, 0.5}}, f.Coordinates())

	assert.Equal(t, Continue, f.OnClick(click(1, 1)))
	assert.Equal(t, Continue, f.OnClick(click(2, 0)))
	assert.Equal(t, Done, f.OnDoubleClick(click(2, 0)))

	f.OnStopDrawing()
	assert.False(t, f.ToRemove())
	assert.True(t, f.Created())
	assert.Equal(t, orb.LineString{{0, 0}, {1, 1}, {2, 0}}, f.Coordinates())
}

func TestLine_ClickOnLastVertexFinishes(t *testing.T) {
	f := Blank("l1", core.TypeLine, core.Options{}, Deps{})
	f.StartDrawing()

	f.OnClick(click(0, 0))
	f.OnClick(click(1, 1))

	assert.Equal(t, Done, f.OnClick(click(1, 1)))
}

func TestLine_TooShortIsDiscarded(t *testing.T) {
	f := Blank("l1", core.TypeLine, core.Options{}, Deps{})
	f.StartDrawing()
	f.OnClick(click(0, 0))

	f.OnStopDrawing()

	assert.True(t, f.ToRemove())
	assert.False(t, f.Created())
}

func TestPolygon_DrawGestureClosesRing(t *testing.T) {
	f := Blank("g1", core.TypePolygon, core.Options{}, Deps{})
	f.StartDrawing()

	f.OnClick(click(0, 0))
	f.OnClick(click(1, 0))
	f.OnClick(click(1, 1))
	f.OnMouseMove(core.InputEvent{Kind: core.InputMouseMove, LngLat: orb.Point{0, 1}})

	during := f.Coordinates().(orb.Polygon)
	assert.Equal(t, orb.Ring{{0, 0}, {1, 0}, {1, 1}, {0, 1}, {0, 0}}, during[0])

	assert.Equal(t, Done, f.OnDoubleClick(click(0, 1)))
	f.OnStopDrawing()

	assert.True(t, f.Created())
	assert.Equal(t, orb.Polygon{{{0, 0}, {1, 0}, {1, 1}, {0, 0}}}, f.Coordinates())
}

func TestPolygon_TooFewVerticesIsDiscarded(t *testing.T) {
	f := Blank("g1", core.TypePolygon, core.Options{}, Deps{})
	f.StartDrawing()
	f.OnClick(click(0, 0))
	f.OnClick(click(1, 0))

	f.OnStopDrawing()

	assert.True(t, f.ToRemove())
	assert.False(t, f.Created())
}

func TestHooksIgnoredOutsideDrawing(t *testing.T) {
	f := NewLine("l1", orb.LineString{{0, 0}, {1, 1}}, nil, core.Options{}, Deps{})

	assert.Equal(t, Continue, f.OnClick(click(5, 5)))
	assert.Equal(t, Continue, f.OnDoubleClick(click(5, 5)))
	assert.Equal(t, Continue, f.OnMouseDown(click(5, 5)))
	assert.Equal(t, Continue, f.OnMouseUp(click(5, 5)))
	f.OnMouseMove(click(6, 6))

	assert.Equal(t, orb.LineString{{0, 0}, {1, 1}}, f.Coordinates())
}

func TestFlags(t *testing.T) {
	f := NewPolygon("g1", orb.Polygon{{{0, 0}, {1, 0}, {1, 1}, {0, 0}}}, nil, core.Options{Permanent: true}, Deps{})

	assert.False(t, f.Ready())
	f.MarkReady()
	f.MarkCreated()
	f.MarkCommitted()

	assert.True(t, f.Ready())
	assert.True(t, f.Created())
	assert.True(t, f.Committed())
	assert.False(t, f.ToRemove())
	assert.True(t, f.Options().Permanent)
}
