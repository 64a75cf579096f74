// Package session turns a stream of host input events into store
// operations: draw gestures for new features and select, drag, box-select,
// delete, revert and commit for existing ones.
package session

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/OCAP2/draw/internal/feature"
	"github.com/OCAP2/draw/internal/store"
	"github.com/OCAP2/draw/pkg/core"
)

// DefaultTolerance is the hit-test radius around the pointer, in pixels.
const DefaultTolerance = 4.0

// ErrBusy is returned by StartDrawing while another draw gesture is running.
var ErrBusy = errors.New("a draw gesture is already in progress")

// Factory builds a blank feature of the requested type.
type Factory func(kind core.GeometryType) (feature.Feature, error)

// Mode is what the session is doing between events.
type Mode int

const (
	Idle Mode = iota
	Drawing
	Dragging
	BoxSelecting
)

func (m Mode) String() string {
	switch m {
	case Drawing:
		return "drawing"
	case Dragging:
		return "dragging"
	case BoxSelecting:
		return "box-selecting"
	default:
		return "idle"
	}
}

// Options tunes a Session. Cursor may be nil.
type Options struct {
	Tolerance float64
	Cursor    func(mode string)
}

// Session is safe for concurrent use; events are handled one at a time.
type Session struct {
	store   *store.Store
	factory Factory
	opts    Options
	logger  *slog.Logger

	mu      sync.Mutex
	mode    Mode
	active  string
	anchor  core.ScreenPoint
	dragged bool
}

// New creates an idle session over st.
func New(st *store.Store, factory Factory, opts Options, logger *slog.Logger) *Session {
	if opts.Tolerance <= 0 {
		opts.Tolerance = DefaultTolerance
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Session{
		store:   st,
		factory: factory,
		opts:    opts,
		logger:  logger.With("component", "session"),
	}
}

// Mode reports the current gesture.
func (s *Session) Mode() Mode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mode
}

// Active returns the id of the feature being drawn, if any.
func (s *Session) Active() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active, s.mode == Drawing
}

// StartDrawing commits the current selection, then stores, selects and
// arms a blank feature of kind. It returns the new feature's id.
func (s *Session) StartDrawing(kind core.GeometryType) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.mode == Drawing {
		return "", ErrBusy
	}

	f, err := s.factory(kind)
	if err != nil {
		return "", fmt.Errorf("new %s feature: %w", kind, err)
	}
	s.commitSelected()

	id := s.store.Set(f)
	s.store.Select(id)
	if err := s.store.Mutate(id, func(f feature.Feature) error {
		f.StartDrawing()
		return nil
	}); err != nil {
		return "", err
	}

	s.mode = Drawing
	s.active = id
	s.logger.Debug("draw started", "id", id, "type", kind)
	return id, nil
}

// Handle applies one input event.
func (s *Session) Handle(e core.InputEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.mode {
	case Drawing:
		s.handleDrawing(e)
	case Dragging:
		s.handleDragging(e)
	case BoxSelecting:
		s.handleBoxSelecting(e)
	default:
		s.handleIdle(e)
	}
}

func (s *Session) handleDrawing(e core.InputEvent) {
	if e.Kind == core.InputKeyUp {
		switch e.Key {
		case core.KeyEscape:
			s.store.ClearSelected()
			s.reset()
		case core.KeyEnter:
			s.finish()
		}
		return
	}

	var step feature.Step
	err := s.store.Mutate(s.active, func(f feature.Feature) error {
		step = dispatch(f, e)
		return nil
	})
	if err != nil {
		// removed underneath the gesture
		s.logger.Debug("draw target gone", "id", s.active)
		s.reset()
		return
	}
	if step == feature.Done {
		s.finish()
	}
}

// finish ends the draw gesture: the feature is committed, or dropped
// silently when it never became a valid geometry.
func (s *Session) finish() {
	id := s.active
	var discard bool
	err := s.store.Mutate(id, func(f feature.Feature) error {
		f.OnStopDrawing()
		discard = f.ToRemove()
		return nil
	})
	s.reset()
	if err != nil {
		return
	}
	if discard {
		s.logger.Debug("draw discarded", "id", id)
		s.store.Delete(id)
		return
	}
	s.store.Commit(id)
	s.logger.Debug("draw finished", "id", id)
}

func (s *Session) handleIdle(e core.InputEvent) {
	switch e.Kind {
	case core.InputMouseDown:
		hits := s.store.FeaturesAt(e.Point, s.opts.Tolerance)
		if len(hits) == 0 {
			if e.Shift {
				s.mode = BoxSelecting
				s.anchor = e.Point
				return
			}
			s.commitSelected()
			return
		}
		if !e.Shift && !s.isSelected(hits[0]) {
			s.commitSelected()
		}
		s.store.Select(hits[0])
		if s.isSelected(hits[0]) {
			s.mode = Dragging
			s.anchor = e.Point
			s.dragged = false
		}
	case core.InputKeyUp:
		switch e.Key {
		case core.KeyDelete, core.KeyBackspace:
			for _, id := range s.store.SelectedIDs() {
				s.store.Delete(id)
			}
		case core.KeyEscape:
			s.store.RevertSelected()
		case core.KeyEnter:
			s.commitSelected()
		}
	}
}

func (s *Session) handleDragging(e core.InputEvent) {
	switch e.Kind {
	case core.InputMouseMove:
		if !s.dragged {
			s.dragged = true
			s.cursor(core.CursorMove)
		}
		s.store.TranslateSelected(s.anchor, e.Point)
	case core.InputMouseUp:
		s.store.EndTranslate()
		if s.dragged {
			s.cursor(core.CursorDefault)
		}
		s.reset()
	case core.InputKeyUp:
		if e.Key == core.KeyEscape {
			s.store.RevertSelected()
			s.cursor(core.CursorDefault)
			s.reset()
		}
	}
}

func (s *Session) handleBoxSelecting(e core.InputEvent) {
	switch e.Kind {
	case core.InputMouseUp:
		s.store.SelectFeaturesIn(s.anchor, e.Point)
		s.reset()
	case core.InputKeyUp:
		if e.Key == core.KeyEscape {
			s.reset()
		}
	}
}

func (s *Session) commitSelected() {
	for _, id := range s.store.SelectedIDs() {
		s.store.Commit(id)
	}
}

func (s *Session) isSelected(id string) bool {
	var selected bool
	s.store.View(id, func(f feature.Feature) { selected = f.Selected() })
	return selected
}

func (s *Session) cursor(mode string) {
	if s.opts.Cursor != nil {
		s.opts.Cursor(mode)
	}
}

func (s *Session) reset() {
	s.mode = Idle
	s.active = ""
	s.dragged = false
}

func dispatch(f feature.Feature, e core.InputEvent) feature.Step {
	switch e.Kind {
	case core.InputClick:
		return f.OnClick(e)
	case core.InputDoubleClick:
		return f.OnDoubleClick(e)
	case core.InputMouseMove:
		return f.OnMouseMove(e)
	case core.InputMouseDown:
		return f.OnMouseDown(e)
	case core.InputMouseUp:
		return f.OnMouseUp(e)
	default:
		return feature.Continue
	}
}
