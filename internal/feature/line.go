package feature

import (
	"github.com/OCAP2/draw/pkg/core"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// Line is a LineString feature. While drawing, each click fixes a vertex and a
// trailing vertex follows the pointer.
type Line struct {
	*base
	sketch
}

// NewLine builds a line feature from a LineString.
func NewLine(id string, ls orb.LineString, props geojson.Properties, opts core.Options, deps Deps) *Line {
	return &Line{base: newBase(id, core.TypeLine, ls, props, opts, deps)}
}

// StartDrawing resets the line to an empty sketch.
func (l *Line) StartDrawing() {
	l.base.StartDrawing()
	l.sketch.start()
	l.geom = l.build()
}

func (l *Line) OnClick(e core.InputEvent) Step {
	if !l.drawing {
		return Continue
	}
	if !l.add(e.LngLat) {
		return Done
	}
	l.ready = true
	l.geom = l.build()
	return Continue
}

func (l *Line) OnMouseMove(e core.InputEvent) Step {
	if l.follow(e.LngLat) {
		l.geom = l.build()
	}
	return Continue
}

func (l *Line) OnDoubleClick(core.InputEvent) Step {
	if !l.drawing {
		return Continue
	}
	return Done
}

// OnStopDrawing drops the pointer vertex; fewer than two vertices discards the line.
func (l *Line) OnStopDrawing() {
	if l.drawing {
		l.finish()
		if len(l.vertices) < 2 {
			l.toRemove = true
		}
		l.geom = l.build()
	}
	l.base.OnStopDrawing()
}

func (l *Line) build() orb.Geometry {
	return orb.LineString(l.points())
}
