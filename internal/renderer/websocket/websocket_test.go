package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/OCAP2/draw/pkg/core"
	"github.com/OCAP2/draw/pkg/streaming"
	ws "github.com/gorilla/websocket"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type messageLog struct {
	mu       sync.Mutex
	messages []streaming.Envelope
}

func (m *messageLog) add(env streaming.Envelope) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = append(m.messages, env)
}

func (m *messageLog) ofType(t string) []streaming.Envelope {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []streaming.Envelope
	for _, e := range m.messages {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

func send(c *ws.Conn, msgType string, payload any) {
	data, err := streaming.Marshal(msgType, payload)
	if err != nil {
		return
	}
	_ = c.WriteMessage(ws.TextMessage, data)
}

// testServer acks hello, then announces sources, a viewport and one click.
// Queries are answered with a hit reported twice, except on the "silent" layer.
func testServer(t *testing.T) (*httptest.Server, *messageLog) {
	t.Helper()
	ml := &messageLog{}

	upgrader := ws.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("secret") != "s3cret" {
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}
		c, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer c.Close()

		for {
			_, msg, err := c.ReadMessage()
			if err != nil {
				return
			}
			var env streaming.Envelope
			if err := json.Unmarshal(msg, &env); err != nil {
				continue
			}
			ml.add(env)

			switch env.Type {
			case streaming.TypeHello:
				ack, _ := json.Marshal(streaming.AckMessage{Type: streaming.TypeAck, For: streaming.TypeHello})
				if err := c.WriteMessage(ws.TextMessage, ack); err != nil {
					return
				}
				var hello streaming.HelloPayload
				_ = json.Unmarshal(env.Payload, &hello)
				send(c, streaming.TypeSources, streaming.SourcesPayload{Names: hello.Sources})
				send(c, streaming.TypeViewport, streaming.ViewportPayload{Zoom: 2, Width: 512, Height: 512})
				send(c, streaming.TypeInput, streaming.InputPayload{Kind: "click", LngLat: orb.Point{1, 2}})
			case streaming.TypeQuery:
				var q streaming.QueryPayload
				_ = json.Unmarshal(env.Payload, &q)
				if len(q.Layers) > 0 && q.Layers[0] == "silent" {
					continue
				}
				hit := geojson.NewFeature(orb.Point{0, 0})
				hit.Properties[core.PropDrawID] = "a"
				send(c, streaming.TypeQueryResult, streaming.QueryResultPayload{
					RequestID: q.RequestID,
					Features:  []*geojson.Feature{hit, hit},
				})
			}
		}
	}))
	return srv, ml
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func connect(t *testing.T, srv *httptest.Server, inputs chan core.InputEvent) *Host {
	t.Helper()
	h := New(Config{
		URL:          wsURL(srv),
		Secret:       "s3cret",
		Sources:      []string{"draw-cold", "draw-hot"},
		Layers:       []string{"draw-cold", "draw-hot"},
		QueryTimeout: 200 * time.Millisecond,
	}, nil)
	if inputs != nil {
		h.OnInput(func(ev core.InputEvent) { inputs <- ev })
	}
	require.NoError(t, h.Connect(context.Background()))
	t.Cleanup(func() { _ = h.Close() })
	return h
}

func TestConnect_RejectsBadSecret(t *testing.T) {
	srv, _ := testServer(t)
	defer srv.Close()

	h := New(Config{URL: wsURL(srv), Secret: "wrong"}, nil)
	assert.Error(t, h.Connect(context.Background()))
}

func TestSourcesAppearAfterAnnouncement(t *testing.T) {
	srv, ml := testServer(t)
	defer srv.Close()

	h := connect(t, srv, nil)

	require.Eventually(t, func() bool {
		_, ok := h.Source("draw-cold")
		return ok
	}, time.Second, 5*time.Millisecond)
	_, ok := h.Source("other")
	assert.False(t, ok)

	hello := ml.ofType(streaming.TypeHello)
	require.Len(t, hello, 1)
	var p streaming.HelloPayload
	require.NoError(t, json.Unmarshal(hello[0].Payload, &p))
	assert.Equal(t, []string{"draw-cold", "draw-hot"}, p.Sources)
}

func TestSetDataAndControls(t *testing.T) {
	srv, ml := testServer(t)
	defer srv.Close()

	h := connect(t, srv, nil)
	require.Eventually(t, func() bool {
		_, ok := h.Source("draw-hot")
		return ok
	}, time.Second, 5*time.Millisecond)

	src, _ := h.Source("draw-hot")
	fc := geojson.NewFeatureCollection()
	fc.Append(geojson.NewFeature(orb.Point{5, 6}))
	require.NoError(t, src.SetData(fc))
	h.SetDeleteVisible(true)
	h.SetCursor(core.CursorCrosshair)
	h.SetDoubleClickZoom(false)
	require.NoError(t, h.Notify(core.Event{Kind: core.EventSet, ID: "a"}))

	require.Eventually(t, func() bool {
		return len(ml.ofType(streaming.TypeNotify)) == 1
	}, time.Second, 5*time.Millisecond)

	sets := ml.ofType(streaming.TypeSetData)
	require.Len(t, sets, 1)
	var sd streaming.SetDataPayload
	require.NoError(t, json.Unmarshal(sets[0].Payload, &sd))
	assert.Equal(t, "draw-hot", sd.Source)
	assert.Equal(t, orb.Point{5, 6}, sd.Data.Features[0].Geometry)

	var ctl streaming.ControlsPayload
	require.NoError(t, json.Unmarshal(ml.ofType(streaming.TypeControls)[0].Payload, &ctl))
	assert.True(t, ctl.DeleteVisible)
	assert.Len(t, ml.ofType(streaming.TypeCursor), 1)
	assert.Len(t, ml.ofType(streaming.TypeDoubleClickZoom), 1)
}

func TestQueryRenderedFeatures(t *testing.T) {
	srv, _ := testServer(t)
	defer srv.Close()

	h := connect(t, srv, nil)

	hits := h.QueryRenderedFeatures(core.ScreenPoint{}, core.ScreenPoint{X: 10, Y: 10}, []string{"draw-cold"})
	require.Len(t, hits, 2)
	assert.Equal(t, "a", hits[0].Properties[core.PropDrawID])

	start := time.Now()
	assert.Nil(t, h.QueryRenderedFeatures(core.ScreenPoint{}, core.ScreenPoint{X: 10, Y: 10}, []string{"silent"}))
	assert.GreaterOrEqual(t, time.Since(start), 200*time.Millisecond)
}

func TestViewportAndInput(t *testing.T) {
	srv, _ := testServer(t)
	defer srv.Close()

	inputs := make(chan core.InputEvent, 1)
	h := connect(t, srv, inputs)

	select {
	case ev := <-inputs:
		assert.Equal(t, core.InputClick, ev.Kind)
		assert.Equal(t, orb.Point{1, 2}, ev.LngLat)
	case <-time.After(time.Second):
		t.Fatal("no input forwarded")
	}

	// the viewport arrives before the input, so projection is live
	center := h.Project(orb.Point{0, 0})
	assert.InDelta(t, 256, center.X, 1e-6)
	assert.InDelta(t, 256, center.Y, 1e-6)
}

func TestClose_Idempotent(t *testing.T) {
	srv, _ := testServer(t)
	defer srv.Close()

	h := connect(t, srv, nil)
	assert.NoError(t, h.Close())
	assert.NoError(t, h.Close())
}
