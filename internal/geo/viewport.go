package geo

import (
	"math"

	"github.com/OCAP2/draw/pkg/core"
	"github.com/paulmach/orb"
)

// TileSize is the pixel size of a zoom-0 world.
const TileSize = 256

const earthCircumference = 2 * math.Pi * 6378137

// Viewport is a Web Mercator camera: a lng/lat centre, a zoom level and a
// pixel size. It implements core.Projector.
type Viewport struct {
	Center orb.Point
	Zoom   float64
	Width  int
	Height int
}

// resolution returns metres per pixel.
func (v Viewport) resolution() float64 {
	return earthCircumference / (TileSize * math.Pow(2, v.Zoom))
}

// Project converts a lng/lat into screen pixels, origin top-left.
func (v Viewport) Project(p orb.Point) core.ScreenPoint {
	res := v.resolution()
	cx, cy := ToMercator(v.Center)
	x, y := ToMercator(p)
	return core.ScreenPoint{
		X: float64(v.Width)/2 + (x-cx)/res,
		Y: float64(v.Height)/2 - (y-cy)/res,
	}
}

// Unproject converts screen pixels back into a lng/lat.
func (v Viewport) Unproject(s core.ScreenPoint) orb.Point {
	res := v.resolution()
	cx, cy := ToMercator(v.Center)
	x := cx + (s.X-float64(v.Width)/2)*res
	y := cy - (s.Y-float64(v.Height)/2)*res
	return FromMercator(x, y)
}

// ScreenBound projects the bounding box of g into screen space.
func ScreenBound(p core.Projector, g orb.Geometry) (min, max core.ScreenPoint) {
	b := g.Bound()
	a := p.Project(b.Min)
	c := p.Project(b.Max)
	return core.ScreenPoint{X: math.Min(a.X, c.X), Y: math.Min(a.Y, c.Y)},
		core.ScreenPoint{X: math.Max(a.X, c.X), Y: math.Max(a.Y, c.Y)}
}

// BoxFromCorners normalises two arbitrary corners into min/max screen points.
func BoxFromCorners(p1, p2 core.ScreenPoint) (min, max core.ScreenPoint) {
	return core.ScreenPoint{X: math.Min(p1.X, p2.X), Y: math.Min(p1.Y, p2.Y)},
		core.ScreenPoint{X: math.Max(p1.X, p2.X), Y: math.Max(p1.Y, p2.Y)}
}
