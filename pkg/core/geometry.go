// pkg/core/geometry.go
package core

// GeometryType is the closed set of geometries a drawn feature can carry.
type GeometryType int

const (
	TypePoint GeometryType = iota
	TypeLine
	TypePolygon
)

// GeoJSON geometry type names accepted on input.
const (
	GeoJSONPoint      = "Point"
	GeoJSONLineString = "LineString"
	GeoJSONPolygon    = "Polygon"
)

// String returns a short name for logs.
func (t GeometryType) String() string {
	switch t {
	case TypePoint:
		return "point"
	case TypeLine:
		return "line"
	case TypePolygon:
		return "polygon"
	default:
		return "unknown"
	}
}

// GeoJSONType returns the GeoJSON geometry type name for t.
func (t GeometryType) GeoJSONType() string {
	switch t {
	case TypePoint:
		return GeoJSONPoint
	case TypeLine:
		return GeoJSONLineString
	case TypePolygon:
		return GeoJSONPolygon
	default:
		return ""
	}
}

// ParseGeometryType maps a GeoJSON geometry type name onto a GeometryType.
// The second return value is false for anything outside Point, LineString and Polygon.
func ParseGeometryType(name string) (GeometryType, bool) {
	switch name {
	case GeoJSONPoint:
		return TypePoint, true
	case GeoJSONLineString:
		return TypeLine, true
	case GeoJSONPolygon:
		return TypePolygon, true
	default:
		return 0, false
	}
}

// Options is per-feature configuration fixed at construction.
type Options struct {
	// Permanent features can never enter the selected state.
	Permanent bool `json:"permanent"`
}

// Property keys written onto rendered features.
const (
	PropDrawID    = "drawId"
	PropMeta      = "meta"
	PropParent    = "parent"
	PropCoordPath = "coordPath"
)

// Values of PropMeta.
const (
	MetaFeature  = "feature"
	MetaVertex   = "vertex"
	MetaMidpoint = "midpoint"
)
