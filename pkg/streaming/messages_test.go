package streaming

import (
	"encoding/json"
	"testing"

	"github.com/OCAP2/draw/pkg/core"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshal_SetData(t *testing.T) {
	fc := geojson.NewFeatureCollection()
	fc.Append(geojson.NewFeature(orb.Point{1, 2}))

	data, err := Marshal(TypeSetData, SetDataPayload{Source: "draw-cold", Data: fc})
	require.NoError(t, err)

	var env Envelope
	require.NoError(t, json.Unmarshal(data, &env))
	assert.Equal(t, TypeSetData, env.Type)

	var p SetDataPayload
	require.NoError(t, json.Unmarshal(env.Payload, &p))
	assert.Equal(t, "draw-cold", p.Source)
	require.Len(t, p.Data.Features, 1)
	assert.Equal(t, orb.Point{1, 2}, p.Data.Features[0].Geometry)
}

func TestMarshal_NoPayload(t *testing.T) {
	data, err := Marshal(TypeHello, nil)
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"hello"}`, string(data))
}

func TestInbound_Ack(t *testing.T) {
	var in Inbound
	require.NoError(t, json.Unmarshal([]byte(`{"type":"ack","for":"hello"}`), &in))
	assert.Equal(t, TypeAck, in.Type)
	assert.Equal(t, TypeHello, in.For)
}

func TestInputPayload_Event(t *testing.T) {
	var p InputPayload
	require.NoError(t, json.Unmarshal([]byte(`{
		"kind": "mousedown",
		"point": {"x": 10, "y": 20},
		"lngLat": [3, 4],
		"shift": true
	}`), &p))

	ev, ok := p.Event()
	require.True(t, ok)
	assert.Equal(t, core.InputEvent{
		Kind:   core.InputMouseDown,
		Point:  core.ScreenPoint{X: 10, Y: 20},
		LngLat: orb.Point{3, 4},
		Shift:  true,
	}, ev)

	_, ok = InputPayload{Kind: "wheel"}.Event()
	assert.False(t, ok)
}
