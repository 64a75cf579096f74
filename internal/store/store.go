// Package store is the registry of live features. It owns selection and commit
// transitions, emits lifecycle notifications and drives the throttled render.
package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/OCAP2/draw/internal/feature"
	"github.com/OCAP2/draw/internal/geo"
	"github.com/OCAP2/draw/internal/handles"
	"github.com/OCAP2/draw/internal/scheduler"
	"github.com/OCAP2/draw/pkg/core"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "github.com/OCAP2/draw/internal/store"

// ErrNotFound is returned by operations that cannot treat a missing id as a no-op.
var ErrNotFound = errors.New("feature not found")

// Emitter receives lifecycle notifications.
type Emitter interface {
	Emit(e core.Event)
}

// EmitterFunc adapts a function to Emitter.
type EmitterFunc func(core.Event)

func (f EmitterFunc) Emit(e core.Event) { f(e) }

// Config controls where and how often the store renders.
type Config struct {
	ColdSource string
	HotSource  string
	// Layers restricts spatial queries to the layers drawing features live on.
	Layers   []string
	Throttle time.Duration
	Handles  []handles.Generator
}

// DefaultConfig returns the source names and frame window used when nothing is configured.
func DefaultConfig() Config {
	return Config{
		ColdSource: "draw-cold",
		HotSource:  "draw-hot",
		Layers:     []string{"draw-cold", "draw-hot"},
		Throttle:   scheduler.DefaultWindow,
		Handles:    handles.Default,
	}
}

// Stats is a point-in-time summary of the registry.
type Stats struct {
	Features int
	Selected int
	Renders  int64
	Skipped  int64
}

// Store holds features by id. All methods are safe for concurrent use: the
// render scheduler fires on its own goroutine. Notifications are emitted
// after the registry lock is released, so handlers may call back into the store.
type Store struct {
	cfg      Config
	renderer core.Renderer
	controls core.Controls
	emitter  Emitter
	logger   *slog.Logger

	mu       sync.Mutex
	features map[string]feature.Feature

	renderMu sync.Mutex
	renders  int64
	skipped  int64
	sched    *scheduler.Scheduler

	renderCount   metric.Int64Counter
	renderSkipped metric.Int64Counter
}

// New creates a store rendering into r. controls and emitter may be nil.
func New(r core.Renderer, controls core.Controls, emitter Emitter, cfg Config, logger *slog.Logger) (*Store, error) {
	if r == nil {
		return nil, errors.New("store: renderer is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.ColdSource == "" || cfg.HotSource == "" {
		def := DefaultConfig()
		cfg.ColdSource, cfg.HotSource = def.ColdSource, def.HotSource
	}
	if cfg.Handles == nil {
		cfg.Handles = handles.Default
	}

	s := &Store{
		cfg:      cfg,
		renderer: r,
		controls: controls,
		emitter:  emitter,
		logger:   logger.With("component", "store"),
		features: make(map[string]feature.Feature),
	}
	s.sched = scheduler.New(cfg.Throttle, s.Render)

	m := otel.Meter(instrumentationName)
	var err error
	s.renderCount, err = m.Int64Counter(
		"draw.render.count",
		metric.WithDescription("Render passes pushed to the renderer"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating render counter: %w", err)
	}
	s.renderSkipped, err = m.Int64Counter(
		"draw.render.skipped",
		metric.WithDescription("Render passes skipped because a source was unavailable"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating skipped counter: %w", err)
	}

	return s, nil
}

// Set inserts or overwrites f by id and schedules a render.
func (s *Store) Set(f feature.Feature) string {
	s.mu.Lock()
	s.features[f.ID()] = f
	s.mu.Unlock()

	s.RequestRender()
	return f.ID()
}

// Get returns the feature stored under id. Callers outside the store should
// change it only through Mutate.
func (s *Store) Get(id string) (feature.Feature, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.features[id]
	return f, ok
}

// View runs fn on the feature under the registry lock without scheduling a render.
func (s *Store) View(id string, fn func(feature.Feature)) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.features[id]
	if ok {
		fn(f)
	}
	return ok
}

// AllIDs returns every id, sorted.
func (s *Store) AllIDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.idsLocked(func(feature.Feature) bool { return true })
}

// SelectedIDs returns the ids of selected features, sorted.
func (s *Store) SelectedIDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.idsLocked(feature.Feature.Selected)
}

func (s *Store) idsLocked(keep func(feature.Feature) bool) []string {
	ids := make([]string, 0, len(s.features))
	for id, f := range s.features {
		if keep(f) {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

// Delete removes id. A feature that was ever created leaves with a deletion
// notification carrying its last geometry. Unknown ids are ignored.
func (s *Store) Delete(id string) {
	s.mu.Lock()
	f, ok := s.features[id]
	if !ok {
		s.mu.Unlock()
		return
	}
	delete(s.features, id)
	var events []core.Event
	if f.Created() {
		events = append(events, core.Event{Kind: core.EventDelete, ID: id, GeoJSON: f.ToGeoJSON()})
	}
	s.mu.Unlock()

	s.emit(events)
	s.RequestRender()
}

// DeleteAll deletes every feature through Delete.
func (s *Store) DeleteAll() {
	for _, id := range s.AllIDs() {
		s.Delete(id)
	}
}

// ClearSelected cancels in-progress draws: every selected feature that was
// never created runs its stop-drawing finalization and is then deleted. A
// sketch complete enough to survive finalization becomes created, so its
// deletion is notified.
func (s *Store) ClearSelected() {
	s.mu.Lock()
	var ids []string
	for _, id := range s.idsLocked(feature.Feature.Selected) {
		f := s.features[id]
		if f.Created() {
			continue
		}
		f.OnStopDrawing()
		ids = append(ids, id)
	}
	s.mu.Unlock()

	for _, id := range ids {
		s.Delete(id)
	}
}

// RevertSelected restores every selected feature to its pre-edit geometry,
// deselects it and renders immediately.
func (s *Store) RevertSelected() {
	s.mu.Lock()
	for _, f := range s.features {
		if !f.Selected() {
			continue
		}
		f.Revert()
		f.ResetTranslate()
		f.Deselect()
	}
	s.mu.Unlock()

	s.RenderNow()
}

// Select marks id selected. Unknown, already selected and permanent features
// are left alone. Re-selecting a committed, ready feature notifies selection start.
func (s *Store) Select(id string) {
	s.mu.Lock()
	f, ok := s.features[id]
	if !ok || f.Selected() || f.Options().Permanent {
		s.mu.Unlock()
		return
	}
	f.Select()
	var events []core.Event
	if f.Committed() && f.Ready() {
		events = append(events, core.Event{Kind: core.EventSelectionStart, ID: id, GeoJSON: f.ToGeoJSON()})
	}
	s.mu.Unlock()

	s.emit(events)
	s.RequestRender()
}

// Commit ends the edit session of a selected feature. Every commit notifies
// set; all but the first also notify selection end.
func (s *Store) Commit(id string) {
	s.mu.Lock()
	f, ok := s.features[id]
	if !ok || !f.Selected() {
		s.mu.Unlock()
		return
	}
	f.ResetTranslate()
	f.Deselect()
	var events []core.Event
	if f.Committed() {
		events = append(events, core.Event{Kind: core.EventSelectionEnd, ID: id, GeoJSON: f.ToGeoJSON()})
	} else {
		f.MarkCommitted()
	}
	events = append(events, core.Event{Kind: core.EventSet, ID: id, GeoJSON: f.ToGeoJSON()})
	s.mu.Unlock()

	s.emit(events)
	s.RequestRender()
}

// IsSelected reports whether any feature is selected.
func (s *Store) IsSelected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, f := range s.features {
		if f.Selected() {
			return true
		}
	}
	return false
}

// SelectFeaturesIn selects every distinct drawn feature the renderer reports
// inside the box spanned by two corners given in any order.
func (s *Store) SelectFeaturesIn(a, b core.ScreenPoint) {
	for _, id := range s.queryIDs(a, b) {
		s.Select(id)
	}
}

// FeaturesAt returns the ids of drawn features within tolerance pixels of p.
func (s *Store) FeaturesAt(p core.ScreenPoint, tolerance float64) []string {
	return s.queryIDs(
		core.ScreenPoint{X: p.X - tolerance, Y: p.Y - tolerance},
		core.ScreenPoint{X: p.X + tolerance, Y: p.Y + tolerance},
	)
}

// queryIDs asks the renderer for hits in the box and collapses them to
// distinct ids of known features, in first-hit order.
func (s *Store) queryIDs(a, b core.ScreenPoint) []string {
	lo, hi := geo.BoxFromCorners(a, b)
	hits := s.renderer.QueryRenderedFeatures(lo, hi, s.cfg.Layers)

	seen := make(map[string]struct{}, len(hits))
	var ids []string
	for _, h := range hits {
		id := hitID(h.Properties)
		if id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	known := ids[:0]
	for _, id := range ids {
		if _, ok := s.features[id]; ok {
			known = append(known, id)
		}
	}
	return known
}

// Mutate runs fn on the feature under the registry lock and schedules a render.
func (s *Store) Mutate(id string, fn func(feature.Feature) error) error {
	s.mu.Lock()
	f, ok := s.features[id]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	err := fn(f)
	s.mu.Unlock()

	s.RequestRender()
	return err
}

// TranslateSelected drags every selected feature by the pointer delta from -> to.
func (s *Store) TranslateSelected(from, to core.ScreenPoint) {
	s.mu.Lock()
	for _, f := range s.features {
		if f.Selected() {
			f.Translate(from, to)
		}
	}
	s.mu.Unlock()

	s.RequestRender()
}

// EndTranslate finishes the current drag gesture on every feature.
func (s *Store) EndTranslate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, f := range s.features {
		f.ResetTranslate()
	}
}

// Counts returns the number of features and how many are selected. It only
// takes the registry lock, so log handlers may call it during a render.
func (s *Store) Counts() (features, selected int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, f := range s.features {
		if f.Selected() {
			selected++
		}
	}
	return len(s.features), selected
}

// Stats returns counters for logs and diagnostics.
func (s *Store) Stats() Stats {
	var st Stats
	st.Features, st.Selected = s.Counts()

	s.renderMu.Lock()
	st.Renders, st.Skipped = s.renders, s.skipped
	s.renderMu.Unlock()
	return st
}

// RequestRender schedules a throttled render.
func (s *Store) RequestRender() {
	s.sched.Request()
}

// RenderNow renders synchronously, bypassing the throttle.
func (s *Store) RenderNow() {
	s.sched.Now()
}

// Close stops scheduled renders. The registry stays readable.
func (s *Store) Close() {
	s.sched.Stop()
}

func (s *Store) emit(events []core.Event) {
	if s.emitter == nil {
		return
	}
	for _, e := range events {
		s.logger.Debug("notify", "kind", e.Kind, "id", e.ID)
		s.emitter.Emit(e)
	}
}

func hitID(props map[string]any) string {
	if props == nil {
		return ""
	}
	for _, key := range []string{core.PropDrawID, core.PropParent} {
		if id, ok := props[key].(string); ok && id != "" {
			return id
		}
	}
	return ""
}

func (s *Store) countRender(skipped bool) {
	if skipped {
		s.skipped++
		s.renderSkipped.Add(context.Background(), 1)
		return
	}
	s.renders++
	s.renderCount.Add(context.Background(), 1)
}
