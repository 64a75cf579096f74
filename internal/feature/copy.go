package feature

import (
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// CloneGeoJSON returns a copy of f that shares no memory with it.
func CloneGeoJSON(f *geojson.Feature) *geojson.Feature {
	if f == nil {
		return nil
	}
	out := geojson.NewFeature(orb.Clone(f.Geometry))
	out.ID = f.ID
	out.Type = f.Type
	if f.BBox != nil {
		out.BBox = append(geojson.BBox(nil), f.BBox...)
	}
	out.Properties = copyProperties(f.Properties)
	return out
}

// copyProperties deep-copies a JSON-shaped property map. A nil input yields an
// empty map so rendered features always carry a properties object.
func copyProperties(props geojson.Properties) geojson.Properties {
	out := make(geojson.Properties, len(props))
	for k, v := range props {
		out[k] = copyValue(v)
	}
	return out
}

func copyValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		m := make(map[string]any, len(val))
		for k, inner := range val {
			m[k] = copyValue(inner)
		}
		return m
	case geojson.Properties:
		return copyProperties(val)
	case []any:
		s := make([]any, len(val))
		for i, inner := range val {
			s[i] = copyValue(inner)
		}
		return s
	case []string:
		return append([]string(nil), val...)
	case []float64:
		return append([]float64(nil), val...)
	default:
		return val
	}
}
