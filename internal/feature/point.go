package feature

import (
	"github.com/OCAP2/draw/pkg/core"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// Point is a single-position feature. A draw gesture ends on the first click.
type Point struct {
	*base
}

// NewPoint builds a point feature from a position.
func NewPoint(id string, p orb.Point, props geojson.Properties, opts core.Options, deps Deps) *Point {
	return &Point{base: newBase(id, core.TypePoint, p, props, opts, deps)}
}

// OnClick places the point and finishes the gesture.
func (p *Point) OnClick(e core.InputEvent) Step {
	p.geom = e.LngLat
	p.ready = true
	return Done
}

// OnStopDrawing discards a point that was never placed.
func (p *Point) OnStopDrawing() {
	if !p.ready {
		p.toRemove = true
	}
	p.base.OnStopDrawing()
}
