package journal

import (
	"path/filepath"
	"testing"

	"github.com/OCAP2/draw/internal/config"
	"github.com/OCAP2/draw/pkg/core"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTest(t *testing.T) *Journal {
	t.Helper()
	j, err := Open(config.JournalConfig{Enabled: true}, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = j.Close() })
	return j
}

func event(kind core.EventKind, id string, g orb.Geometry) core.Event {
	e := core.Event{Kind: kind, ID: id}
	if g != nil {
		e.GeoJSON = geojson.NewFeature(g)
		e.GeoJSON.ID = id
	}
	return e
}

func TestRecordAndHistory(t *testing.T) {
	j := openTest(t)

	require.NoError(t, j.Record(event(core.EventSet, "a", orb.Point{0, 0})))
	require.NoError(t, j.Record(event(core.EventSet, "b", orb.LineString{{0, 0}, {1, 1}})))
	require.NoError(t, j.Record(event(core.EventDelete, "a", orb.Point{1, 1})))

	hist, err := j.History("a")
	require.NoError(t, err)
	require.Len(t, hist, 2)
	assert.Equal(t, "draw.set", hist[0].Kind)
	assert.Equal(t, "draw.delete", hist[1].Kind)
	assert.Equal(t, "Point", hist[1].GeometryType)

	f, err := hist[1].Feature()
	require.NoError(t, err)
	assert.Equal(t, orb.Point{1, 1}, f.Geometry)

	all, err := j.All()
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestCounts(t *testing.T) {
	j := openTest(t)

	for _, e := range []core.Event{
		event(core.EventSet, "a", orb.Point{}),
		event(core.EventSelectionStart, "a", orb.Point{}),
		event(core.EventSelectionEnd, "a", orb.Point{}),
		event(core.EventSet, "a", orb.Point{}),
	} {
		require.NoError(t, j.Record(e))
	}

	counts, err := j.Counts()
	require.NoError(t, err)
	assert.Equal(t, map[core.EventKind]int64{
		core.EventSet:            2,
		core.EventSelectionStart: 1,
		core.EventSelectionEnd:   1,
	}, counts)
}

func TestLastGeometry(t *testing.T) {
	j := openTest(t)

	got, err := j.LastGeometry("missing")
	require.NoError(t, err)
	assert.Nil(t, got)

	require.NoError(t, j.Record(event(core.EventSet, "a", orb.Point{0, 0})))
	require.NoError(t, j.Record(event(core.EventSet, "a", orb.Point{2, 3})))
	require.NoError(t, j.Record(event(core.EventDelete, "a", nil)))

	got, err = j.LastGeometry("a")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, orb.Point{2, 3}, got.Geometry)
}

func TestJournalsAreIsolated(t *testing.T) {
	a := openTest(t)
	b := openTest(t)

	require.NoError(t, a.Record(event(core.EventSet, "x", orb.Point{})))

	all, err := b.All()
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestOpen_FilePath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.db")
	j, err := Open(config.JournalConfig{Enabled: true, Path: path}, zerolog.Nop())
	require.NoError(t, err)
	require.NoError(t, j.Record(event(core.EventSet, "a", orb.Point{})))
	require.NoError(t, j.Close())

	j, err = Open(config.JournalConfig{Enabled: true, Path: path}, zerolog.Nop())
	require.NoError(t, err)
	defer j.Close()
	all, err := j.All()
	require.NoError(t, err)
	assert.Len(t, all, 1)
}
