package draw

import (
	"log/slog"
	"time"

	"github.com/OCAP2/draw/internal/config"
	"github.com/OCAP2/draw/internal/dispatcher"
	"github.com/OCAP2/draw/internal/handles"
	"github.com/OCAP2/draw/internal/scheduler"
	"github.com/OCAP2/draw/pkg/core"
	"github.com/google/uuid"
	"github.com/paulmach/orb"
)

// Config is the facade's behaviour. The zero value is not useful; start
// from DefaultConfig or ConfigFromSettings.
type Config struct {
	ColdSource string
	HotSource  string
	Layers     []string
	Throttle   time.Duration

	// Interactive selects every feature added through Add.
	Interactive bool
	// StrictGeometry validates added and updated geometries.
	StrictGeometry bool
	// DeselectAllViaCommit makes DeselectAll commit selected ids directly,
	// skipping the permanence guard in Deselect.
	DeselectAllViaCommit bool
}

// DefaultConfig mirrors the config file defaults.
func DefaultConfig() Config {
	return Config{
		ColdSource:  "draw-cold",
		HotSource:   "draw-hot",
		Layers:      []string{"draw-cold", "draw-hot"},
		Throttle:    scheduler.DefaultWindow,
		Interactive: true,
	}
}

// ConfigFromSettings builds a Config from the loaded config file.
func ConfigFromSettings() Config {
	r := config.GetRenderConfig()
	d := config.GetDrawConfig()
	return Config{
		ColdSource:           r.ColdSource,
		HotSource:            r.HotSource,
		Layers:               r.Layers,
		Throttle:             r.Throttle,
		Interactive:          d.Interactive,
		StrictGeometry:       d.StrictGeometry,
		DeselectAllViaCommit: d.DeselectAllViaCommit,
	}
}

// Translator moves a geometry by the geographic delta between two pointer positions.
type Translator interface {
	Translate(g orb.Geometry, from, to core.ScreenPoint) orb.Geometry
}

// HandleGenerator produces the edit handles drawn over a selected feature.
type HandleGenerator = handles.Generator

// HandlerFunc receives notifications registered with On.
type HandlerFunc = dispatcher.HandlerFunc

// EventLogger receives the notification bus's own log lines.
type EventLogger = dispatcher.Logger

// SubscribeOption tunes a handler registered with On.
type SubscribeOption = dispatcher.Option

// Subscription options.
var (
	Buffered = dispatcher.Buffered
	Blocking = dispatcher.Blocking
	Logged   = dispatcher.Logged
)

// Option configures New.
type Option func(*Draw)

// WithConfig replaces DefaultConfig.
func WithConfig(cfg Config) Option {
	return func(d *Draw) {
		d.cfg = cfg
	}
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(d *Draw) {
		d.logger = l
	}
}

// WithEventLogger logs notification delivery to l instead of the structured logger.
func WithEventLogger(l EventLogger) Option {
	return func(d *Draw) {
		d.eventLogger = l
	}
}

// WithIDGenerator replaces the random UUID ids given to new features.
func WithIDGenerator(fn func() string) Option {
	return func(d *Draw) {
		d.newID = fn
	}
}

// WithTranslator replaces the Web Mercator drag translation.
func WithTranslator(t Translator) Option {
	return func(d *Draw) {
		d.translator = t
	}
}

// WithRenderer renders into r instead of the map.
func WithRenderer(r core.Renderer) Option {
	return func(d *Draw) {
		d.renderer = r
	}
}

// WithControls sets the UI that shows the delete affordance.
func WithControls(c core.Controls) Option {
	return func(d *Draw) {
		d.controls = c
	}
}

// WithHandles replaces the vertex and midpoint handles.
func WithHandles(gens ...HandleGenerator) Option {
	return func(d *Draw) {
		d.handles = gens
	}
}

func newUUID() string {
	return uuid.NewString()
}
