// Package websocket renders into a remote host over a WebSocket: sources are
// updated with set_data messages, and spatial queries are request/response.
package websocket

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/OCAP2/draw/internal/geo"
	"github.com/OCAP2/draw/pkg/core"
	"github.com/OCAP2/draw/pkg/streaming"
	"github.com/google/uuid"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// Config holds connection settings.
type Config struct {
	URL    string
	Secret string
	// Sources and Layers are announced in the hello message.
	Sources []string
	Layers  []string
	// QueryTimeout bounds QueryRenderedFeatures. Zero means one second.
	QueryTimeout time.Duration
}

// Host is a core.Map and core.Controls backed by a remote renderer.
type Host struct {
	cfg    Config
	conn   *connection
	logger *slog.Logger

	mu       sync.RWMutex
	viewport geo.Viewport
	sources  map[string]struct{}
	pending  map[string]chan []*geojson.Feature
	onInput  func(core.InputEvent)

	// input is drained off the read loop, since input handlers may query.
	input chan core.InputEvent
}

var (
	_ core.Map      = (*Host)(nil)
	_ core.Controls = (*Host)(nil)
)

// New creates a host client. Call Connect before use.
func New(cfg Config, logger *slog.Logger) *Host {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.QueryTimeout <= 0 {
		cfg.QueryTimeout = time.Second
	}
	h := &Host{
		cfg:     cfg,
		logger:  logger.With("component", "ws-host"),
		sources: make(map[string]struct{}),
		pending: make(map[string]chan []*geojson.Feature),
		input:   make(chan core.InputEvent, 256),
	}
	h.conn = newConnection(h.logger, h.handle)
	return h
}

// Connect dials the host and waits for it to acknowledge hello.
func (h *Host) Connect(ctx context.Context) error {
	hello, err := streaming.Marshal(streaming.TypeHello, streaming.HelloPayload{
		Sources: h.cfg.Sources,
		Layers:  h.cfg.Layers,
	})
	if err != nil {
		return fmt.Errorf("encoding hello: %w", err)
	}
	h.conn.setHello(hello)

	if err := h.conn.dial(ctx, h.cfg.URL, h.cfg.Secret); err != nil {
		return err
	}
	go h.inputLoop()
	return h.conn.sendAndWait(hello, streaming.TypeHello, ackTimeout)
}

// Close shuts the connection down. Pending queries return empty.
func (h *Host) Close() error {
	return h.conn.close()
}

// OnInput registers the receiver of input events forwarded by the host.
func (h *Host) OnInput(fn func(core.InputEvent)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onInput = fn
}

func (h *Host) handle(in streaming.Inbound) {
	switch in.Type {
	case streaming.TypeSources:
		var p streaming.SourcesPayload
		if err := json.Unmarshal(in.Payload, &p); err != nil {
			h.logger.Warn("Bad sources message", "error", err)
			return
		}
		h.mu.Lock()
		h.sources = make(map[string]struct{}, len(p.Names))
		for _, n := range p.Names {
			h.sources[n] = struct{}{}
		}
		h.mu.Unlock()

	case streaming.TypeViewport:
		var p streaming.ViewportPayload
		if err := json.Unmarshal(in.Payload, &p); err != nil {
			h.logger.Warn("Bad viewport message", "error", err)
			return
		}
		h.mu.Lock()
		h.viewport = geo.Viewport{Center: p.Center, Zoom: p.Zoom, Width: p.Width, Height: p.Height}
		h.mu.Unlock()

	case streaming.TypeQueryResult:
		var p streaming.QueryResultPayload
		if err := json.Unmarshal(in.Payload, &p); err != nil {
			h.logger.Warn("Bad query result", "error", err)
			return
		}
		h.mu.Lock()
		ch, ok := h.pending[p.RequestID]
		delete(h.pending, p.RequestID)
		h.mu.Unlock()
		if ok {
			ch <- p.Features
		}

	case streaming.TypeInput:
		var p streaming.InputPayload
		if err := json.Unmarshal(in.Payload, &p); err != nil {
			h.logger.Warn("Bad input message", "error", err)
			return
		}
		ev, ok := p.Event()
		if !ok {
			h.logger.Debug("Unknown input kind", "kind", p.Kind)
			return
		}
		select {
		case h.input <- ev:
		default:
			h.logger.Warn("Input queue full, dropping event", "kind", p.Kind)
		}

	default:
		h.logger.Debug("Unhandled message", "type", in.Type)
	}
}

func (h *Host) inputLoop() {
	for {
		select {
		case <-h.conn.done:
			return
		case ev := <-h.input:
			h.mu.RLock()
			fn := h.onInput
			h.mu.RUnlock()
			if fn != nil {
				fn(ev)
			}
		}
	}
}

func (h *Host) post(msgType string, payload any) error {
	data, err := streaming.Marshal(msgType, payload)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", msgType, err)
	}
	h.conn.send(data)
	return nil
}

// Project implements core.Projector with the last viewport the host reported.
func (h *Host) Project(p orb.Point) core.ScreenPoint {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.viewport.Project(p)
}

// Unproject implements core.Projector.
func (h *Host) Unproject(p core.ScreenPoint) orb.Point {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.viewport.Unproject(p)
}

// Source returns a handle to name when the host has reported it exists.
func (h *Host) Source(name string) (core.Source, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if _, ok := h.sources[name]; !ok {
		return nil, false
	}
	return remoteSource{host: h, name: name}, true
}

// QueryRenderedFeatures asks the host and waits up to the query timeout.
// A timeout yields no hits.
func (h *Host) QueryRenderedFeatures(min, max core.ScreenPoint, layers []string) []*geojson.Feature {
	id := uuid.NewString()
	ch := make(chan []*geojson.Feature, 1)

	h.mu.Lock()
	h.pending[id] = ch
	h.mu.Unlock()

	err := h.post(streaming.TypeQuery, streaming.QueryPayload{RequestID: id, Min: min, Max: max, Layers: layers})
	if err == nil {
		timer := time.NewTimer(h.cfg.QueryTimeout)
		defer timer.Stop()
		select {
		case hits := <-ch:
			return hits
		case <-timer.C:
			h.logger.Warn("Query timed out", "requestId", id)
		case <-h.conn.done:
		}
	}

	h.mu.Lock()
	delete(h.pending, id)
	h.mu.Unlock()
	return nil
}

// SetCursor implements core.Map.
func (h *Host) SetCursor(mode string) {
	if err := h.post(streaming.TypeCursor, streaming.CursorPayload{Mode: mode}); err != nil {
		h.logger.Warn("SetCursor failed", "error", err)
	}
}

// SetDoubleClickZoom implements core.Map.
func (h *Host) SetDoubleClickZoom(enabled bool) {
	if err := h.post(streaming.TypeDoubleClickZoom, streaming.DoubleClickZoomPayload{Enabled: enabled}); err != nil {
		h.logger.Warn("SetDoubleClickZoom failed", "error", err)
	}
}

// SetDeleteVisible implements core.Controls.
func (h *Host) SetDeleteVisible(visible bool) {
	if err := h.post(streaming.TypeControls, streaming.ControlsPayload{DeleteVisible: visible}); err != nil {
		h.logger.Warn("SetDeleteVisible failed", "error", err)
	}
}

// Notify forwards a lifecycle notification to the host's event bus. Its
// signature matches the dispatcher handler type.
func (h *Host) Notify(e core.Event) error {
	return h.post(streaming.TypeNotify, e)
}

type remoteSource struct {
	host *Host
	name string
}

func (s remoteSource) SetData(fc *geojson.FeatureCollection) error {
	return s.host.post(streaming.TypeSetData, streaming.SetDataPayload{Source: s.name, Data: fc})
}
