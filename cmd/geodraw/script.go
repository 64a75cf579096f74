package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/OCAP2/draw/pkg/core"
	"github.com/OCAP2/draw/pkg/draw"
	"github.com/OCAP2/draw/pkg/streaming"
	"github.com/paulmach/orb"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

// Script is an edit session replayed against the editor.
type Script struct {
	Viewport *ViewportSpec `yaml:"viewport"`
	Steps    []Step        `yaml:"steps"`
}

// ViewportSpec positions the in-memory map.
type ViewportSpec struct {
	Center []float64 `yaml:"center"`
	Zoom   float64   `yaml:"zoom"`
	Width  int       `yaml:"width"`
	Height int       `yaml:"height"`
}

// Step is one action. Exactly one action field is set. Ids may be given
// as "$n" to refer to the n-th id produced by earlier add and draw steps.
type Step struct {
	Add         any         `yaml:"add"`
	Permanent   bool        `yaml:"permanent"`
	Update      *UpdateStep `yaml:"update"`
	Select      string      `yaml:"select"`
	SelectAll   bool        `yaml:"selectAll"`
	Deselect    string      `yaml:"deselect"`
	DeselectAll bool        `yaml:"deselectAll"`
	Destroy     string      `yaml:"destroy"`
	Clear       bool        `yaml:"clear"`
	Draw        string      `yaml:"draw"`
	Input       *InputStep  `yaml:"input"`
	Render      bool        `yaml:"render"`
}

// UpdateStep replaces the geometry of a feature.
type UpdateStep struct {
	ID   string `yaml:"id"`
	With any    `yaml:"with"`
}

// InputStep is a synthetic pointer or key event. At is a lng/lat, Px a
// screen position; when both are missing the event carries no position.
type InputStep struct {
	Kind  string    `yaml:"kind"`
	At    []float64 `yaml:"at"`
	Px    []float64 `yaml:"px"`
	Shift bool      `yaml:"shift"`
	Key   string    `yaml:"key"`
}

// LoadScript reads a YAML script.
func LoadScript(path string) (*Script, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read script: %w", err)
	}
	return ParseScript(raw)
}

// ParseScript decodes a YAML script.
func ParseScript(raw []byte) (*Script, error) {
	var s Script
	if err := yaml.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("parse script: %w", err)
	}
	return &s, nil
}

// Runner replays scripts and remembers the ids they produce.
type Runner struct {
	d    *draw.Draw
	proj core.Projector
	log  zerolog.Logger
	ids  []string
}

// NewRunner drives d; proj converts between At and Px.
func NewRunner(d *draw.Draw, proj core.Projector, log zerolog.Logger) *Runner {
	return &Runner{d: d, proj: proj, log: log}
}

// IDs returns every id produced so far.
func (r *Runner) IDs() []string {
	return append([]string(nil), r.ids...)
}

// Run executes the steps in order and stops at the first failing one.
func (r *Runner) Run(s *Script) error {
	for i, st := range s.Steps {
		if err := r.step(st); err != nil {
			return fmt.Errorf("step %d: %w", i+1, err)
		}
	}
	return nil
}

func (r *Runner) step(st Step) error {
	switch {
	case st.Add != nil:
		raw, err := toJSON(st.Add)
		if err != nil {
			return err
		}
		ids, err := r.d.AddWithOptions(raw, core.Options{Permanent: st.Permanent})
		if err != nil {
			return err
		}
		r.ids = append(r.ids, ids...)
		r.log.Debug().Strs("ids", ids).Msg("added")
	case st.Update != nil:
		id, err := r.resolve(st.Update.ID)
		if err != nil {
			return err
		}
		raw, err := toJSON(st.Update.With)
		if err != nil {
			return err
		}
		return r.d.Update(id, raw)
	case st.Select != "":
		return r.withID(st.Select, r.d.Select)
	case st.SelectAll:
		r.d.SelectAll()
	case st.Deselect != "":
		return r.withID(st.Deselect, r.d.Deselect)
	case st.DeselectAll:
		r.d.DeselectAll()
	case st.Destroy != "":
		return r.withID(st.Destroy, r.d.Destroy)
	case st.Clear:
		r.d.Clear()
	case st.Draw != "":
		kind, ok := parseKind(st.Draw)
		if !ok {
			return fmt.Errorf("unknown geometry %q", st.Draw)
		}
		id, err := r.d.StartDrawing(kind)
		if err != nil {
			return err
		}
		r.ids = append(r.ids, id)
	case st.Input != nil:
		ev, err := r.event(st.Input)
		if err != nil {
			return err
		}
		r.d.Handle(ev)
	case st.Render:
		r.d.Render()
	default:
		return errors.New("empty step")
	}
	return nil
}

func (r *Runner) withID(ref string, fn func(string)) error {
	id, err := r.resolve(ref)
	if err != nil {
		return err
	}
	fn(id)
	return nil
}

// resolve maps "$n" onto the n-th produced id; anything else is taken literally.
func (r *Runner) resolve(ref string) (string, error) {
	if !strings.HasPrefix(ref, "$") {
		return ref, nil
	}
	n, err := strconv.Atoi(ref[1:])
	if err != nil || n < 1 || n > len(r.ids) {
		return "", fmt.Errorf("no id for reference %q", ref)
	}
	return r.ids[n-1], nil
}

func (r *Runner) event(in *InputStep) (core.InputEvent, error) {
	p := streaming.InputPayload{Kind: in.Kind, Shift: in.Shift, Key: in.Key}
	switch {
	case len(in.At) >= 2:
		p.LngLat = orb.Point{in.At[0], in.At[1]}
		p.Point = r.proj.Project(p.LngLat)
	case len(in.Px) >= 2:
		p.Point = core.ScreenPoint{X: in.Px[0], Y: in.Px[1]}
		p.LngLat = r.proj.Unproject(p.Point)
	}
	ev, ok := p.Event()
	if !ok {
		return core.InputEvent{}, fmt.Errorf("unknown input kind %q", in.Kind)
	}
	return ev, nil
}

func parseKind(s string) (core.GeometryType, bool) {
	switch strings.ToLower(s) {
	case "point":
		return core.TypePoint, true
	case "line", "linestring":
		return core.TypeLine, true
	case "polygon":
		return core.TypePolygon, true
	default:
		return 0, false
	}
}

// toJSON turns a YAML-decoded value into the GeoJSON text the facade reads.
func toJSON(v any) (json.RawMessage, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode step payload: %w", err)
	}
	return raw, nil
}
