// pkg/core/host.go
package core

import (
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// ScreenPoint is a pointer position in renderer pixels.
type ScreenPoint struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// InputKind is the event vocabulary shared by every geometry variant.
type InputKind int

const (
	InputClick InputKind = iota
	InputDoubleClick
	InputMouseMove
	InputMouseDown
	InputMouseUp
	InputKeyUp
)

// Keys understood by the draw session.
const (
	KeyEscape    = "Escape"
	KeyEnter     = "Enter"
	KeyDelete    = "Delete"
	KeyBackspace = "Backspace"
)

// InputEvent is one user-input event forwarded by the host.
type InputEvent struct {
	Kind   InputKind
	Point  ScreenPoint
	LngLat orb.Point
	Shift  bool
	Key    string
}

// Cursor modes requested from the host while drawing.
const (
	CursorDefault   = ""
	CursorCrosshair = "crosshair"
	CursorMove      = "move"
)

// Projector converts between geographic and screen coordinates.
type Projector interface {
	Project(p orb.Point) ScreenPoint
	Unproject(p ScreenPoint) orb.Point
}

// Source is a named vector data source owned by the renderer.
type Source interface {
	SetData(fc *geojson.FeatureCollection) error
}

// Renderer exposes the host's data sources and its spatial index.
type Renderer interface {
	// Source returns the named source, or false when it does not exist (yet, or any more).
	Source(name string) (Source, bool)
	// QueryRenderedFeatures returns rendered features intersecting the screen box,
	// restricted to layers. A feature may be reported more than once.
	QueryRenderedFeatures(min, max ScreenPoint, layers []string) []*geojson.Feature
}

// Controls is the surrounding UI.
type Controls interface {
	SetDeleteVisible(visible bool)
}

// Map is the host renderer as seen by drawn features and the store.
type Map interface {
	Projector
	Renderer
	SetCursor(mode string)
	SetDoubleClickZoom(enabled bool)
}
