package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/OCAP2/draw/internal/geo"
	"github.com/OCAP2/draw/internal/renderer/memory"
	"github.com/OCAP2/draw/pkg/core"
	"github.com/OCAP2/draw/pkg/draw"
	"github.com/paulmach/orb"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newEditor(t *testing.T) (*draw.Draw, *memory.Map) {
	t.Helper()
	m := memory.New(geo.Viewport{Zoom: 2, Width: 512, Height: 512}, "draw-cold", "draw-hot")
	cfg := draw.DefaultConfig()
	cfg.Throttle = time.Hour
	d, err := draw.New(m, draw.WithConfig(cfg))
	require.NoError(t, err)
	t.Cleanup(d.Close)
	return d, m
}

const editScript = `
viewport:
  center: [10, 20]
  zoom: 4
steps:
  - add: {type: Point, coordinates: [0, 0]}
  - add:
      type: Feature
      properties: {name: fence}
      geometry: {type: LineString, coordinates: [[0, 0], [1, 1]]}
    permanent: true
  - update: {id: $1, with: {coordinates: [1, 1]}}
  - deselectAll: true
  - draw: polygon
  - input: {kind: click, at: [0, 0]}
  - input: {kind: click, at: [2, 0]}
  - input: {kind: click, at: [2, 2]}
  - input: {kind: dblclick, at: [2, 2]}
  - select: $1
  - destroy: $1
  - render: true
`

func TestParseScript(t *testing.T) {
	s, err := ParseScript([]byte(editScript))
	require.NoError(t, err)
	require.NotNil(t, s.Viewport)
	assert.Equal(t, []float64{10, 20}, s.Viewport.Center)
	assert.Len(t, s.Steps, 12)
	assert.True(t, s.Steps[1].Permanent)
	assert.Equal(t, "$1", s.Steps[2].Update.ID)

	vp := viewport(Options{Zoom: 2, Width: 100, Height: 50}, s)
	assert.Equal(t, orb.Point{10, 20}, vp.Center)
	assert.Equal(t, 4.0, vp.Zoom)
	assert.Equal(t, 100, vp.Width)
}

func TestParseScript_Invalid(t *testing.T) {
	_, err := ParseScript([]byte("steps: [oops"))
	assert.Error(t, err)
}

func TestRunner_Run(t *testing.T) {
	d, m := newEditor(t)
	var kinds []core.EventKind
	d.OnAll(func(e core.Event) error {
		kinds = append(kinds, e.Kind)
		return nil
	})

	s, err := ParseScript([]byte(editScript))
	require.NoError(t, err)
	r := NewRunner(d, m, zerolog.Nop())
	require.NoError(t, r.Run(s))

	ids := r.IDs()
	require.Len(t, ids, 3)

	all := d.GetAll()
	require.Len(t, all.Features, 2)
	fence, ok := d.Get(ids[1])
	require.True(t, ok)
	assert.Equal(t, "fence", fence.Properties["name"])

	poly, ok := d.Get(ids[2])
	require.True(t, ok)
	ring := poly.Geometry.(orb.Polygon)[0]
	assert.Len(t, ring, 4)

	assert.Contains(t, kinds, core.EventDelete)
	assert.Contains(t, kinds, core.EventSet)
	_, ok = d.Get(ids[0])
	assert.False(t, ok)
}

func TestRunner_Errors(t *testing.T) {
	tests := []struct {
		name   string
		script string
	}{
		{"empty step", "steps: [{}]"},
		{"bad reference", "steps: [{select: $4}]"},
		{"bad geometry", "steps: [{draw: circle}]"},
		{"bad input", "steps: [{input: {kind: wheel}}]"},
		{"unsupported add", "steps: [{add: {type: MultiPoint, coordinates: [[0, 0]]}}]"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, m := newEditor(t)
			s, err := ParseScript([]byte(tt.script))
			require.NoError(t, err)
			err = NewRunner(d, m, zerolog.Nop()).Run(s)
			assert.ErrorContains(t, err, "step 1")
		})
	}
}

func TestRunner_PixelInput(t *testing.T) {
	d, m := newEditor(t)
	s, err := ParseScript([]byte(`
steps:
  - draw: point
  - input: {kind: click, px: [256, 256]}
`))
	require.NoError(t, err)
	r := NewRunner(d, m, zerolog.Nop())
	require.NoError(t, r.Run(s))

	f, ok := d.Get(r.IDs()[0])
	require.True(t, ok)
	p := f.Geometry.(orb.Point)
	assert.InDelta(t, 0, p.Lon(), 1e-9)
	assert.InDelta(t, 0, p.Lat(), 1e-9)
}

func TestLoadScript_Missing(t *testing.T) {
	_, err := LoadScript(filepath.Join(t.TempDir(), "none.yaml"))
	assert.Error(t, err)
}

func TestLoadScript(t *testing.T) {
	path := filepath.Join(t.TempDir(), "s.yaml")
	require.NoError(t, os.WriteFile(path, []byte("steps:\n  - clear: true\n"), 0o644))
	s, err := LoadScript(path)
	require.NoError(t, err)
	require.Len(t, s.Steps, 1)
	assert.True(t, s.Steps[0].Clear)
}
