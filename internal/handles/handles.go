// Package handles builds the helper geometries drawn on top of a selected
// feature: one marker per vertex and one per segment midpoint.
package handles

import (
	"fmt"

	"github.com/OCAP2/draw/pkg/core"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// Generator produces handle features for the feature id with geometry g.
type Generator func(id string, g orb.Geometry) []*geojson.Feature

// Default is the handle set rendered for selected features, in draw order.
var Default = []Generator{Midpoints, Vertices}

// Vertices returns a marker for every vertex. The closing vertex of a polygon
// ring repeats the first one and is skipped.
func Vertices(id string, g orb.Geometry) []*geojson.Feature {
	var out []*geojson.Feature
	eachPath(g, func(path string, pts []orb.Point, closed bool) {
		n := len(pts)
		if closed && n > 1 {
			n--
		}
		for i := 0; i < n; i++ {
			out = append(out, marker(core.MetaVertex, id, coordPath(path, i), pts[i]))
		}
	})
	return out
}

// Midpoints returns a marker halfway along every segment.
func Midpoints(id string, g orb.Geometry) []*geojson.Feature {
	var out []*geojson.Feature
	eachPath(g, func(path string, pts []orb.Point, closed bool) {
		for i := 0; i+1 < len(pts); i++ {
			a, b := pts[i], pts[i+1]
			if a.Equal(b) {
				continue
			}
			mid := orb.Point{(a[0] + b[0]) / 2, (a[1] + b[1]) / 2}
			out = append(out, marker(core.MetaMidpoint, id, coordPath(path, i+1), mid))
		}
	})
	return out
}

// eachPath visits every vertex sequence of g. Points have none.
func eachPath(g orb.Geometry, fn func(path string, pts []orb.Point, closed bool)) {
	switch v := g.(type) {
	case orb.LineString:
		fn("", v, false)
	case orb.Polygon:
		for i, ring := range v {
			fn(fmt.Sprintf("%d", i), ring, true)
		}
	}
}

func coordPath(prefix string, i int) string {
	if prefix == "" {
		return fmt.Sprintf("%d", i)
	}
	return fmt.Sprintf("%s.%d", prefix, i)
}

func marker(meta, parent, path string, p orb.Point) *geojson.Feature {
	f := geojson.NewFeature(p)
	f.Properties[core.PropMeta] = meta
	f.Properties[core.PropParent] = parent
	f.Properties[core.PropCoordPath] = path
	return f
}
