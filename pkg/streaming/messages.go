// Package streaming defines the JSON protocol spoken with a remote render host.
package streaming

import (
	"encoding/json"

	"github.com/OCAP2/draw/pkg/core"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// Message types sent to the host.
const (
	TypeHello           = "hello"
	TypeSetData         = "set_data"
	TypeControls        = "controls"
	TypeCursor          = "cursor"
	TypeDoubleClickZoom = "double_click_zoom"
	TypeQuery           = "query"
	TypeNotify          = "notify"
)

// Message types received from the host.
const (
	TypeAck         = "ack"
	TypeSources     = "sources"
	TypeViewport    = "viewport"
	TypeQueryResult = "query_result"
	TypeInput       = "input"
)

// Envelope wraps all messages sent over the WebSocket.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// AckMessage is the host's acknowledgement response.
type AckMessage struct {
	Type string `json:"type"` // always "ack"
	For  string `json:"for"`  // the message type being acknowledged
}

// Inbound is any message from the host. Acks carry For, everything else a payload.
type Inbound struct {
	Type    string          `json:"type"`
	For     string          `json:"for,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// HelloPayload announces the sources and layers the overlay draws into. It is
// replayed after every reconnect.
type HelloPayload struct {
	Sources []string `json:"sources"`
	Layers  []string `json:"layers"`
}

// SetDataPayload replaces the contents of a source.
type SetDataPayload struct {
	Source string                     `json:"source"`
	Data   *geojson.FeatureCollection `json:"data"`
}

// ControlsPayload toggles the delete affordance.
type ControlsPayload struct {
	DeleteVisible bool `json:"deleteVisible"`
}

// CursorPayload sets the cursor mode.
type CursorPayload struct {
	Mode string `json:"mode"`
}

// DoubleClickZoomPayload toggles double-click zoom.
type DoubleClickZoomPayload struct {
	Enabled bool `json:"enabled"`
}

// QueryPayload asks for rendered features in a screen box.
type QueryPayload struct {
	RequestID string           `json:"requestId"`
	Min       core.ScreenPoint `json:"min"`
	Max       core.ScreenPoint `json:"max"`
	Layers    []string         `json:"layers"`
}

// QueryResultPayload answers a QueryPayload.
type QueryResultPayload struct {
	RequestID string             `json:"requestId"`
	Features  []*geojson.Feature `json:"features"`
}

// SourcesPayload lists the sources that currently exist on the host.
type SourcesPayload struct {
	Names []string `json:"names"`
}

// ViewportPayload describes the host camera.
type ViewportPayload struct {
	Center orb.Point `json:"center"`
	Zoom   float64   `json:"zoom"`
	Width  int       `json:"width"`
	Height int       `json:"height"`
}

// InputPayload is a user-input event forwarded by the host.
type InputPayload struct {
	Kind   string           `json:"kind"`
	Point  core.ScreenPoint `json:"point"`
	LngLat orb.Point        `json:"lngLat"`
	Shift  bool             `json:"shift,omitempty"`
	Key    string           `json:"key,omitempty"`
}

var inputKinds = map[string]core.InputKind{
	"click":     core.InputClick,
	"dblclick":  core.InputDoubleClick,
	"mousemove": core.InputMouseMove,
	"mousedown": core.InputMouseDown,
	"mouseup":   core.InputMouseUp,
	"keyup":     core.InputKeyUp,
}

// Event converts the payload. ok is false for unknown kinds.
func (p InputPayload) Event() (core.InputEvent, bool) {
	kind, ok := inputKinds[p.Kind]
	if !ok {
		return core.InputEvent{}, false
	}
	return core.InputEvent{
		Kind:   kind,
		Point:  p.Point,
		LngLat: p.LngLat,
		Shift:  p.Shift,
		Key:    p.Key,
	}, true
}

// Marshal wraps payload in an envelope of the given type.
func Marshal(msgType string, payload any) ([]byte, error) {
	env := Envelope{Type: msgType}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		env.Payload = raw
	}
	return json.Marshal(env)
}
