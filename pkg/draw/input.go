package draw

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/OCAP2/draw/pkg/core"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// features flattens every accepted input shape into GeoJSON features.
func features(input any) ([]*geojson.Feature, error) {
	switch v := input.(type) {
	case nil:
		return nil, fmt.Errorf("%w: nil input", ErrInvalidInput)
	case *geojson.Feature:
		if v == nil {
			return nil, fmt.Errorf("%w: nil feature", ErrInvalidInput)
		}
		return []*geojson.Feature{v}, nil
	case geojson.Feature:
		return []*geojson.Feature{&v}, nil
	case *geojson.FeatureCollection:
		if v == nil {
			return nil, fmt.Errorf("%w: nil collection", ErrInvalidInput)
		}
		return v.Features, nil
	case geojson.FeatureCollection:
		return v.Features, nil
	case *geojson.Geometry:
		if v == nil {
			return nil, fmt.Errorf("%w: nil geometry", ErrInvalidInput)
		}
		return []*geojson.Feature{geojson.NewFeature(v.Geometry())}, nil
	case orb.Geometry:
		return []*geojson.Feature{geojson.NewFeature(v)}, nil
	case json.RawMessage:
		return decodeFeatures(v)
	case []byte:
		return decodeFeatures(v)
	case string:
		return decodeFeatures([]byte(v))
	case map[string]any:
		raw, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
		}
		return decodeFeatures(raw)
	default:
		return nil, fmt.Errorf("%w: %T", ErrInvalidInput, input)
	}
}

type envelope struct {
	Type string `json:"type"`
}

func decodeFeatures(raw []byte) ([]*geojson.Feature, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	switch env.Type {
	case "FeatureCollection":
		fc, err := geojson.UnmarshalFeatureCollection(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
		}
		return fc.Features, nil
	case "Feature":
		f, err := geojson.UnmarshalFeature(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
		}
		return []*geojson.Feature{f}, nil
	case "":
		return nil, fmt.Errorf("%w: missing type", ErrInvalidInput)
	default:
		g, err := geojson.UnmarshalGeometry(raw)
		if err != nil {
			// well-formed but outside what orb decodes
			return nil, fmt.Errorf("%w: %s", ErrUnsupportedGeometry, env.Type)
		}
		return []*geojson.Feature{geojson.NewFeature(g.Geometry())}, nil
	}
}

// kindOf checks that f carries a drawable geometry.
func kindOf(f *geojson.Feature) (core.GeometryType, error) {
	if f == nil || f.Geometry == nil {
		return 0, fmt.Errorf("%w: feature without geometry", ErrInvalidInput)
	}
	kind, ok := core.ParseGeometryType(f.Geometry.GeoJSONType())
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrUnsupportedGeometry, f.Geometry.GeoJSONType())
	}
	return kind, nil
}

// update is what Update applies: a geometry and, when a full feature was
// given, its properties.
type update struct {
	geometry   orb.Geometry
	properties geojson.Properties
	hasProps   bool
}

// parseUpdate accepts a feature, a geometry, bare coordinates or an object
// carrying "coordinates" and optionally "properties". kind decides how bare
// coordinates are read.
func parseUpdate(kind core.GeometryType, input any) (update, error) {
	switch v := input.(type) {
	case *geojson.Feature:
		if v == nil {
			return update{}, fmt.Errorf("%w: nil feature", ErrInvalidInput)
		}
		return update{geometry: v.Geometry, properties: v.Properties, hasProps: v.Properties != nil}, nil
	case geojson.Feature:
		return update{geometry: v.Geometry, properties: v.Properties, hasProps: v.Properties != nil}, nil
	case *geojson.Geometry:
		if v == nil {
			return update{}, fmt.Errorf("%w: nil geometry", ErrInvalidInput)
		}
		return update{geometry: v.Geometry()}, nil
	case orb.Geometry:
		return update{geometry: v}, nil
	case json.RawMessage:
		return decodeUpdate(kind, v)
	case []byte:
		return decodeUpdate(kind, v)
	case string:
		return decodeUpdate(kind, []byte(v))
	case map[string]any, []any, []float64:
		raw, err := json.Marshal(v)
		if err != nil {
			return update{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
		}
		return decodeUpdate(kind, raw)
	default:
		return update{}, fmt.Errorf("%w: %T", ErrInvalidInput, input)
	}
}

type partial struct {
	Type        string             `json:"type"`
	Coordinates json.RawMessage    `json:"coordinates"`
	Properties  geojson.Properties `json:"properties"`
}

func decodeUpdate(kind core.GeometryType, raw []byte) (update, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) > 0 && raw[0] == '[' {
		g, err := decodeCoordinates(kind, raw)
		return update{geometry: g}, err
	}

	var p partial
	if err := json.Unmarshal(raw, &p); err != nil {
		return update{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	switch {
	case p.Type == "Feature":
		f, err := geojson.UnmarshalFeature(raw)
		if err != nil {
			return update{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
		}
		return update{geometry: f.Geometry, properties: f.Properties, hasProps: p.Properties != nil}, nil
	case p.Type != "":
		g, err := geojson.UnmarshalGeometry(raw)
		if err != nil {
			return update{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
		}
		return update{geometry: g.Geometry()}, nil
	case len(p.Coordinates) > 0:
		g, err := decodeCoordinates(kind, p.Coordinates)
		if err != nil {
			return update{}, err
		}
		return update{geometry: g, properties: p.Properties, hasProps: p.Properties != nil}, nil
	default:
		return update{}, fmt.Errorf("%w: no coordinates", ErrInvalidInput)
	}
}

// decodeCoordinates reads a bare coordinates array shaped for kind.
func decodeCoordinates(kind core.GeometryType, raw []byte) (orb.Geometry, error) {
	var (
		g   orb.Geometry
		err error
	)
	switch kind {
	case core.TypePoint:
		var p []float64
		if err = json.Unmarshal(raw, &p); err == nil {
			if len(p) < 2 {
				return nil, fmt.Errorf("%w: point needs two numbers", ErrInvalidInput)
			}
			g = orb.Point{p[0], p[1]}
		}
	case core.TypeLine:
		var ls orb.LineString
		err = json.Unmarshal(raw, &ls)
		g = ls
	case core.TypePolygon:
		var poly orb.Polygon
		err = json.Unmarshal(raw, &poly)
		g = poly
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedGeometry, kind)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	return g, nil
}
