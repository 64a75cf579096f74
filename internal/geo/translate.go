package geo

import (
	"github.com/OCAP2/draw/pkg/core"
	"github.com/paulmach/orb"
)

// MercatorTranslator moves geometries by the Web Mercator distance between two
// pointer positions, so shapes keep their projected size while dragged.
type MercatorTranslator struct {
	Projector core.Projector
}

// Translate returns g shifted by the pointer delta from -> to.
func (t MercatorTranslator) Translate(g orb.Geometry, from, to core.ScreenPoint) orb.Geometry {
	if t.Projector == nil || g == nil {
		return orb.Clone(g)
	}
	fx, fy := ToMercator(t.Projector.Unproject(from))
	tx, ty := ToMercator(t.Projector.Unproject(to))
	dx, dy := tx-fx, ty-fy
	if dx == 0 && dy == 0 {
		return orb.Clone(g)
	}
	return MapPoints(g, func(p orb.Point) orb.Point {
		x, y := ToMercator(p)
		return FromMercator(x+dx, y+dy)
	})
}
