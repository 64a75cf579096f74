// Package draw is the public face of the geometry editor: add and update
// features from GeoJSON, drive selection, subscribe to lifecycle
// notifications and feed host input into draw gestures.
package draw

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/OCAP2/draw/internal/dispatcher"
	"github.com/OCAP2/draw/internal/feature"
	"github.com/OCAP2/draw/internal/geo"
	"github.com/OCAP2/draw/internal/session"
	"github.com/OCAP2/draw/internal/store"
	"github.com/OCAP2/draw/pkg/core"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

var (
	// ErrUnsupportedGeometry is returned for geometries other than Point, LineString and Polygon.
	ErrUnsupportedGeometry = errors.New("unsupported geometry type")
	// ErrInvalidInput is returned for input that is not GeoJSON in a shape Add or Update accepts.
	ErrInvalidInput = errors.New("invalid input")
	// ErrNotFound is returned by Update for an unknown id.
	ErrNotFound = store.ErrNotFound
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("draw is closed")
)

// Draw owns one editing session over a host map.
type Draw struct {
	cfg         Config
	m           core.Map
	renderer    core.Renderer
	controls    core.Controls
	translator  Translator
	handles     []HandleGenerator
	newID       func() string
	logger      *slog.Logger
	eventLogger EventLogger

	bus     *dispatcher.Dispatcher
	store   *store.Store
	session *session.Session

	closeOnce sync.Once
	mu        sync.RWMutex
	closed    bool
}

// New creates an editor drawing onto m. m may be nil when WithRenderer is
// given; draw gestures then run without cursor and projection support.
func New(m core.Map, opts ...Option) (*Draw, error) {
	d := &Draw{
		cfg:   DefaultConfig(),
		m:     m,
		newID: newUUID,
	}
	for _, opt := range opts {
		opt(d)
	}

	if d.logger == nil {
		d.logger = slog.Default()
	}
	if d.renderer == nil && m != nil {
		d.renderer = m
	}
	if d.renderer == nil {
		return nil, errors.New("draw: a map or renderer is required")
	}
	if d.controls == nil {
		if c, ok := d.renderer.(core.Controls); ok {
			d.controls = c
		}
	}
	if d.translator == nil && m != nil {
		d.translator = geo.MercatorTranslator{Projector: m}
	}

	if d.eventLogger == nil {
		d.eventLogger = d.logger.With("component", "dispatcher")
	}
	bus, err := dispatcher.New(d.eventLogger)
	if err != nil {
		return nil, fmt.Errorf("creating dispatcher: %w", err)
	}
	d.bus = bus

	d.store, err = store.New(d.renderer, d.controls, bus, store.Config{
		ColdSource: d.cfg.ColdSource,
		HotSource:  d.cfg.HotSource,
		Layers:     d.cfg.Layers,
		Throttle:   d.cfg.Throttle,
		Handles:    d.handles,
	}, d.logger)
	if err != nil {
		bus.Close()
		return nil, fmt.Errorf("creating store: %w", err)
	}

	var cursor func(string)
	if m != nil {
		cursor = m.SetCursor
	}
	d.session = session.New(d.store, d.blank, session.Options{Cursor: cursor}, d.logger)

	d.logger.Debug("draw ready",
		"cold", d.cfg.ColdSource,
		"hot", d.cfg.HotSource,
		"interactive", d.cfg.Interactive,
		"strict", d.cfg.StrictGeometry)
	return d, nil
}

func (d *Draw) deps() feature.Deps {
	deps := feature.Deps{Map: d.m}
	if d.translator != nil {
		deps.Translator = d.translator
	}
	return deps
}

func (d *Draw) blank(kind core.GeometryType) (feature.Feature, error) {
	return feature.Blank(d.newID(), kind, core.Options{}, d.deps()), nil
}

func (d *Draw) build(id string, kind core.GeometryType, g orb.Geometry, props geojson.Properties, opts core.Options) (feature.Feature, error) {
	var f feature.Feature
	switch kind {
	case core.TypePoint:
		p, ok := g.(orb.Point)
		if !ok {
			return nil, fmt.Errorf("%w: %T", ErrUnsupportedGeometry, g)
		}
		f = feature.NewPoint(id, p, props, opts, d.deps())
	case core.TypeLine:
		ls, ok := g.(orb.LineString)
		if !ok {
			return nil, fmt.Errorf("%w: %T", ErrUnsupportedGeometry, g)
		}
		f = feature.NewLine(id, ls, props, opts, d.deps())
	case core.TypePolygon:
		poly, ok := g.(orb.Polygon)
		if !ok {
			return nil, fmt.Errorf("%w: %T", ErrUnsupportedGeometry, g)
		}
		f = feature.NewPolygon(id, poly, props, opts, d.deps())
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedGeometry, kind)
	}
	return f, nil
}

func (d *Draw) check() error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return ErrClosed
	}
	return nil
}

// Add stores every feature in input and returns their ids in input order.
// input may be a Feature, a FeatureCollection, a bare Geometry, an orb
// geometry or raw GeoJSON. A collection is added only if every member is
// acceptable. Features carrying an id keep it.
func (d *Draw) Add(input any) ([]string, error) {
	return d.AddWithOptions(input, core.Options{})
}

// AddWithOptions is Add with per-feature options applied to every added feature.
func (d *Draw) AddWithOptions(input any, opts core.Options) ([]string, error) {
	if err := d.check(); err != nil {
		return nil, err
	}
	in, err := features(input)
	if err != nil {
		return nil, err
	}

	built := make([]feature.Feature, 0, len(in))
	for i, gf := range in {
		f, err := d.fromGeoJSON(gf, opts)
		if err != nil {
			if len(in) > 1 {
				return nil, fmt.Errorf("feature %d: %w", i, err)
			}
			return nil, err
		}
		built = append(built, f)
	}

	ids := make([]string, 0, len(built))
	for _, f := range built {
		f.MarkReady()
		f.MarkCreated()
		f.MarkCommitted()
		id := d.store.Set(f)
		if d.cfg.Interactive {
			d.store.Select(id)
		}
		ids = append(ids, id)
	}
	d.logger.Debug("features added", "count", len(ids))
	return ids, nil
}

func (d *Draw) fromGeoJSON(gf *geojson.Feature, opts core.Options) (feature.Feature, error) {
	if gf != nil {
		gf = feature.CloneGeoJSON(gf)
		gf.Geometry = normalize(gf.Geometry)
	}
	kind, err := kindOf(gf)
	if err != nil {
		return nil, err
	}
	if d.cfg.StrictGeometry {
		if err := geo.Validate(gf.Geometry); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
		}
	}
	id := featureID(gf.ID)
	if id == "" {
		id = d.newID()
	}
	return d.build(id, kind, gf.Geometry, gf.Properties, opts)
}

// Update replaces the coordinates of id and, when input carries them, its
// properties. input may be a Feature, a Geometry, bare coordinates or an
// object with "coordinates". Unknown ids return ErrNotFound.
func (d *Draw) Update(id string, input any) error {
	if err := d.check(); err != nil {
		return err
	}
	var kind core.GeometryType
	if !d.store.View(id, func(f feature.Feature) { kind = f.Type() }) {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	u, err := parseUpdate(kind, input)
	if err != nil {
		return err
	}
	u.geometry = normalize(u.geometry)
	if u.geometry == nil {
		return fmt.Errorf("%w: no geometry", ErrInvalidInput)
	}
	if d.cfg.StrictGeometry {
		if err := geo.Validate(u.geometry); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidInput, err)
		}
	}

	return d.store.Mutate(id, func(f feature.Feature) error {
		if err := f.SetCoordinates(u.geometry); err != nil {
			return fmt.Errorf("%w: %v", ErrUnsupportedGeometry, err)
		}
		if u.hasProps {
			f.SetProperties(u.properties)
		}
		return nil
	})
}

// Get returns a copy of the feature stored under id.
func (d *Draw) Get(id string) (*geojson.Feature, bool) {
	var out *geojson.Feature
	ok := d.store.View(id, func(f feature.Feature) { out = f.ToGeoJSON() })
	return out, ok
}

// GetAll returns every feature, ordered by id.
func (d *Draw) GetAll() *geojson.FeatureCollection {
	return d.collect(d.store.AllIDs())
}

// GetSelected returns the selected features, ordered by id.
func (d *Draw) GetSelected() *geojson.FeatureCollection {
	return d.collect(d.store.SelectedIDs())
}

func (d *Draw) collect(ids []string) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	for _, id := range ids {
		if f, ok := d.Get(id); ok {
			fc.Append(f)
		}
	}
	return fc
}

// Select starts an edit session on id.
func (d *Draw) Select(id string) {
	d.store.Select(id)
}

// SelectAll selects every feature that is not permanent.
func (d *Draw) SelectAll() {
	for _, id := range d.store.AllIDs() {
		d.store.Select(id)
	}
}

// Deselect commits the edit session of id. Permanent features are ignored.
func (d *Draw) Deselect(id string) {
	permanent := false
	if !d.store.View(id, func(f feature.Feature) { permanent = f.Options().Permanent }) || permanent {
		return
	}
	d.store.Commit(id)
}

// DeselectAll commits every selected feature, through Deselect unless
// DeselectAllViaCommit is set.
func (d *Draw) DeselectAll() {
	for _, id := range d.store.SelectedIDs() {
		if d.cfg.DeselectAllViaCommit {
			d.store.Commit(id)
			continue
		}
		d.Deselect(id)
	}
}

// Destroy removes id.
func (d *Draw) Destroy(id string) {
	d.store.Delete(id)
}

// Clear removes every feature.
func (d *Draw) Clear() {
	d.store.DeleteAll()
}

// On registers h for notifications of kind. Each handler gets its own copy
// of the event geometry.
func (d *Draw) On(kind core.EventKind, h HandlerFunc, opts ...SubscribeOption) {
	d.bus.Register(kind, isolate(h), opts...)
}

// OnAll registers h for every notification kind. With Buffered, h has a
// single queue and receives notifications in emission order.
func (d *Draw) OnAll(h HandlerFunc, opts ...SubscribeOption) {
	d.bus.RegisterAll(isolate(h), opts...)
}

func isolate(h HandlerFunc) HandlerFunc {
	return func(e core.Event) error {
		e.GeoJSON = feature.CloneGeoJSON(e.GeoJSON)
		return h(e)
	}
}

// StartDrawing begins a draw gesture for a new feature of kind and returns its id.
func (d *Draw) StartDrawing(kind core.GeometryType) (string, error) {
	if err := d.check(); err != nil {
		return "", err
	}
	return d.session.StartDrawing(kind)
}

// Handle feeds one host input event into the current gesture.
func (d *Draw) Handle(e core.InputEvent) {
	if d.check() != nil {
		return
	}
	d.session.Handle(e)
}

// Mode reports the current gesture.
func (d *Draw) Mode() session.Mode {
	return d.session.Mode()
}

// Render pushes the current state immediately.
func (d *Draw) Render() {
	d.store.RenderNow()
}

// Buckets returns what the next render would push.
func (d *Draw) Buckets() store.Buckets {
	return d.store.Snapshot()
}

// Stats returns registry and render counters.
func (d *Draw) Stats() store.Stats {
	return d.store.Stats()
}

// LogAttrs describes the session for log records. It is a
// logging.ContextProvider.
func (d *Draw) LogAttrs() []slog.Attr {
	n, sel := d.store.Counts()
	return []slog.Attr{slog.Int("features", n), slog.Int("selected", sel)}
}

// Close stops rendering and drains buffered handlers. Features stay readable.
func (d *Draw) Close() {
	d.closeOnce.Do(func() {
		d.mu.Lock()
		d.closed = true
		d.mu.Unlock()

		d.store.Close()
		d.bus.Close()
	})
}

func featureID(id any) string {
	switch v := id.(type) {
	case nil:
		return ""
	case string:
		return v
	case float64, int, int64:
		return fmt.Sprint(v)
	default:
		return ""
	}
}

func normalize(g orb.Geometry) orb.Geometry {
	switch v := g.(type) {
	case orb.Ring:
		return orb.Polygon{v}
	case orb.Bound:
		return v.ToPolygon()
	default:
		return g
	}
}
