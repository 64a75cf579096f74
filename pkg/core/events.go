// pkg/core/events.go
package core

import "github.com/paulmach/orb/geojson"

// EventKind identifies a lifecycle notification.
type EventKind string

const (
	// EventDelete fires when a feature that had been created leaves the store.
	EventDelete EventKind = "draw.delete"
	// EventSelectionStart fires when an already committed, ready feature is selected.
	EventSelectionStart EventKind = "draw.select.start"
	// EventSelectionEnd fires on every commit except a feature's first.
	EventSelectionEnd EventKind = "draw.select.end"
	// EventSet fires on every commit.
	EventSet EventKind = "draw.set"
)

// EventKinds lists every notification kind in a stable order.
var EventKinds = []EventKind{EventDelete, EventSelectionStart, EventSelectionEnd, EventSet}

// Event is a lifecycle notification. GeoJSON is a copy owned by the receiver.
type Event struct {
	Kind    EventKind        `json:"type"`
	ID      string           `json:"id"`
	GeoJSON *geojson.Feature `json:"geojson"`
}
