// Package geo holds the coordinate math the drawing overlay delegates to:
// Web Mercator projection for a viewport, pointer-driven translation and
// strict geometry validation.
package geo

import (
	"errors"
	"fmt"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	geom "github.com/peterstace/simplefeatures/geom"
	"github.com/wroge/wgs84"
)

// ErrInvalidGeometry is returned by Validate for geometries that are not valid
// simple features (unclosed rings, too few points, self intersections).
var ErrInvalidGeometry = errors.New("invalid geometry")

// MaxLatitude is the Web Mercator latitude limit.
const MaxLatitude = 85.05112878

// Mercator projections are built once; wgs84 transforms are safe to reuse.
var (
	toMercator   = wgs84.EPSG().Transform(4326, 3857)
	fromMercator = wgs84.EPSG().Transform(3857, 4326)
)

// ToMercator converts a WGS84 lng/lat into EPSG:3857 metres.
func ToMercator(p orb.Point) (x, y float64) {
	lat := p.Lat()
	if lat > MaxLatitude {
		lat = MaxLatitude
	} else if lat < -MaxLatitude {
		lat = -MaxLatitude
	}
	x, y, _ = toMercator(p.Lon(), lat, 0)
	return x, y
}

// FromMercator converts EPSG:3857 metres back into a WGS84 lng/lat.
func FromMercator(x, y float64) orb.Point {
	lon, lat, _ := fromMercator(x, y, 0)
	return orb.Point{lon, lat}
}

// Validate checks g with the simple features rules, which simplefeatures
// applies while constructing the geometry.
func Validate(g orb.Geometry) error {
	if g == nil {
		return fmt.Errorf("%w: empty geometry", ErrInvalidGeometry)
	}
	raw, err := geojson.NewGeometry(g).MarshalJSON()
	if err != nil {
		return fmt.Errorf("failed to encode geometry: %w", err)
	}
	if _, err := geom.UnmarshalGeoJSON(raw); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidGeometry, err)
	}
	return nil
}

// MapPoints returns a copy of g with fn applied to every position.
func MapPoints(g orb.Geometry, fn func(orb.Point) orb.Point) orb.Geometry {
	switch v := g.(type) {
	case orb.Point:
		return fn(v)
	case orb.MultiPoint:
		out := make(orb.MultiPoint, len(v))
		for i, p := range v {
			out[i] = fn(p)
		}
		return out
	case orb.LineString:
		out := make(orb.LineString, len(v))
		for i, p := range v {
			out[i] = fn(p)
		}
		return out
	case orb.Ring:
		out := make(orb.Ring, len(v))
		for i, p := range v {
			out[i] = fn(p)
		}
		return out
	case orb.Polygon:
		out := make(orb.Polygon, len(v))
		for i, r := range v {
			out[i] = MapPoints(r, fn).(orb.Ring)
		}
		return out
	case orb.MultiLineString:
		out := make(orb.MultiLineString, len(v))
		for i, ls := range v {
			out[i] = MapPoints(ls, fn).(orb.LineString)
		}
		return out
	case orb.MultiPolygon:
		out := make(orb.MultiPolygon, len(v))
		for i, p := range v {
			out[i] = MapPoints(p, fn).(orb.Polygon)
		}
		return out
	default:
		return orb.Clone(g)
	}
}
