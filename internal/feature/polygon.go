package feature

import (
	"github.com/OCAP2/draw/pkg/core"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// Polygon is a single- or multi-ring polygon feature. Drawing accumulates
// vertices of the outer ring until a double click closes it.
type Polygon struct {
	*base
	sketch
}

// NewPolygon builds a polygon feature.
func NewPolygon(id string, poly orb.Polygon, props geojson.Properties, opts core.Options, deps Deps) *Polygon {
	return &Polygon{base: newBase(id, core.TypePolygon, poly, props, opts, deps)}
}

// StartDrawing resets the polygon to an empty sketch.
func (p *Polygon) StartDrawing() {
	p.base.StartDrawing()
	p.sketch.start()
	p.geom = p.build()
}

func (p *Polygon) OnClick(e core.InputEvent) Step {
	if !p.drawing {
		return Continue
	}
	if !p.add(e.LngLat) {
		return Done
	}
	p.ready = true
	p.geom = p.build()
	return Continue
}

func (p *Polygon) OnMouseMove(e core.InputEvent) Step {
	if p.follow(e.LngLat) {
		p.geom = p.build()
	}
	return Continue
}

func (p *Polygon) OnDoubleClick(core.InputEvent) Step {
	if !p.drawing {
		return Continue
	}
	return Done
}

// OnStopDrawing closes the ring; fewer than three vertices discards the polygon.
func (p *Polygon) OnStopDrawing() {
	if p.drawing {
		p.finish()
		if len(p.vertices) < 3 {
			p.toRemove = true
		}
		p.geom = p.build()
	}
	p.base.OnStopDrawing()
}

func (p *Polygon) build() orb.Geometry {
	pts := p.points()
	if len(pts) == 0 {
		return orb.Polygon{}
	}
	ring := make(orb.Ring, 0, len(pts)+1)
	ring = append(ring, pts...)
	ring = append(ring, pts[0])
	return orb.Polygon{ring}
}
