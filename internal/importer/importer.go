// Package importer reads ESRI shapefiles into GeoJSON features the draw
// facade can add.
package importer

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/OCAP2/draw/pkg/core"
	"github.com/jonas-p/go-shp"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// ErrNoFeatures is returned when a shapefile holds nothing drawable.
var ErrNoFeatures = errors.New("shapefile has no drawable features")

// Result is what one shapefile produced.
type Result struct {
	Features []*geojson.Feature
	// Skipped counts records whose shape type has no drawable counterpart.
	Skipped int
}

// LoadShapefile reads every record of path. Points become Point features,
// polylines one LineString per part and polygons one Polygon with a ring per
// part. DBF attributes are carried as properties.
func LoadShapefile(path string, logger *slog.Logger) (*Result, error) {
	if logger == nil {
		logger = slog.Default()
	}
	reader, err := shp.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open shapefile: %w", err)
	}
	defer reader.Close()

	fields := fieldNames(reader.Fields())
	res := &Result{}

	for reader.Next() {
		n, shape := reader.Shape()

		var geoms []orb.Geometry
		switch g := shape.(type) {
		case *shp.Point:
			geoms = append(geoms, orb.Point{g.X, g.Y})
		case *shp.PolyLine:
			for _, part := range splitParts(g.Parts, g.Points) {
				if len(part) > 1 {
					geoms = append(geoms, orb.LineString(part))
				}
			}
		case *shp.Polygon:
			if poly := polygon(g.Parts, g.Points); poly != nil {
				geoms = append(geoms, poly)
			}
		default:
			res.Skipped++
			logger.Debug("skipping shape", "path", path, "record", n, "type", fmt.Sprintf("%T", shape))
			continue
		}

		props := geojson.Properties{}
		for i, name := range fields {
			if v := cleanAttribute(reader.ReadAttribute(n, i)); v != "" {
				props[name] = v
			}
		}
		for _, g := range geoms {
			f := geojson.NewFeature(g)
			f.Properties = props.Clone()
			res.Features = append(res.Features, f)
		}
	}
	if err := reader.Err(); err != nil {
		return nil, fmt.Errorf("read shapefile: %w", err)
	}

	logger.Info("shapefile loaded", "path", path, "features", len(res.Features), "skipped", res.Skipped)
	if len(res.Features) == 0 {
		return res, ErrNoFeatures
	}
	return res, nil
}

// Collection wraps the imported features in a FeatureCollection.
func (r *Result) Collection() *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	fc.Features = append(fc.Features, r.Features...)
	return fc
}

// Types counts features per geometry type.
func (r *Result) Types() map[core.GeometryType]int {
	out := make(map[core.GeometryType]int)
	for _, f := range r.Features {
		if t, ok := core.ParseGeometryType(f.Geometry.GeoJSONType()); ok {
			out[t]++
		}
	}
	return out
}

func fieldNames(fields []shp.Field) []string {
	names := make([]string, len(fields))
	for i, f := range fields {
		names[i] = cleanAttribute(string(f.Name[:]))
	}
	return names
}

// cleanAttribute strips the NUL and space padding of fixed-width DBF cells.
func cleanAttribute(v string) string {
	return strings.Trim(v, "\x00 ")
}

// splitParts cuts the flat point list of a multi-part shape at part offsets.
func splitParts(parts []int32, points []shp.Point) [][]orb.Point {
	if len(parts) == 0 {
		parts = []int32{0}
	}
	out := make([][]orb.Point, 0, len(parts))
	for i, start := range parts {
		end := int32(len(points))
		if i+1 < len(parts) {
			end = parts[i+1]
		}
		if start < 0 || start > end || int(end) > len(points) {
			continue
		}
		seg := make([]orb.Point, 0, end-start)
		for _, p := range points[start:end] {
			seg = append(seg, orb.Point{p.X, p.Y})
		}
		out = append(out, seg)
	}
	return out
}

func polygon(parts []int32, points []shp.Point) orb.Polygon {
	var poly orb.Polygon
	for _, part := range splitParts(parts, points) {
		if len(part) < 3 {
			continue
		}
		ring := orb.Ring(part)
		if !ring.Closed() {
			ring = append(ring, ring[0])
		}
		poly = append(poly, ring)
	}
	return poly
}
