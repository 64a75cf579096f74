// Command geodraw loads features, replays a YAML edit script against the
// editor and writes what the map would show.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/OCAP2/draw/internal/config"
	"github.com/OCAP2/draw/internal/geo"
	"github.com/OCAP2/draw/internal/importer"
	"github.com/OCAP2/draw/internal/influx"
	"github.com/OCAP2/draw/internal/journal"
	"github.com/OCAP2/draw/internal/logging"
	intOtel "github.com/OCAP2/draw/internal/otel"
	"github.com/OCAP2/draw/internal/renderer/memory"
	"github.com/OCAP2/draw/internal/renderer/websocket"
	"github.com/OCAP2/draw/pkg/core"
	"github.com/OCAP2/draw/pkg/draw"

	"github.com/jessevdk/go-flags"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/rs/zerolog"
)

// BuildVersion can be set at build time via ldflags.
var BuildVersion = "dev"

// Options are the command line flags.
type Options struct {
	ConfigDir string   `short:"c" long:"config-dir" env:"GEODRAW_CONFIG_DIR" description:"Directory holding draw.cfg.json" default:"."`
	Inputs    []string `short:"i" long:"input"      description:"GeoJSON or shapefile loaded before the script (repeatable)"`
	Script    string   `short:"s" long:"script"     description:"YAML edit script"`
	Out       string   `short:"o" long:"out"        description:"Output directory" default:"out"`
	Minify    bool     `short:"m" long:"minify"     description:"Minify written GeoJSON"`
	Preview   string   `short:"p" long:"preview"    description:"Raster preview file, .png or .webp"`
	Width     int      `long:"width"                description:"Viewport width in pixels" default:"1024"`
	Height    int      `long:"height"               description:"Viewport height in pixels" default:"768"`
	Zoom      float64  `long:"zoom"                 description:"Viewport zoom" default:"2"`
	Host      string   `long:"host"                 env:"GEODRAW_HOST" description:"WebSocket URL of a remote render host"`
	Secret    string   `long:"secret"               env:"GEODRAW_SECRET" description:"Shared secret for the render host"`
	LogLevel  string   `short:"l" long:"log-level"  description:"Overrides logLevel from the config file"`
	Version   bool     `short:"V" long:"version"    description:"Print version and exit"`
}

func main() {
	var opts Options
	parser := flags.NewParser(&opts, flags.Default)
	if _, err := parser.Parse(); err != nil {
		if flagsErr, ok := err.(*flags.Error); ok && flagsErr.Type == flags.ErrHelp {
			os.Exit(0)
		}
		os.Exit(1)
	}
	if opts.Version {
		fmt.Println("geodraw", BuildVersion)
		return
	}

	console := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}).
		With().Timestamp().Logger()

	if err := run(context.Background(), opts, console); err != nil {
		console.Fatal().Err(err).Msg("geodraw failed")
	}
}

func run(ctx context.Context, opts Options, console zerolog.Logger) error {
	start := time.Now()

	if err := config.Load(opts.ConfigDir); err != nil {
		console.Warn().Err(err).Msg("no config file, using defaults")
	}
	level := config.GetString("logLevel")
	if opts.LogLevel != "" {
		level = opts.LogLevel
	}
	console = console.Level(zerologLevel(level))

	// structured log
	logsDir := config.GetString("logsDir")
	if err := os.MkdirAll(logsDir, 0o755); err != nil {
		return fmt.Errorf("create logs dir: %w", err)
	}
	logFile, err := os.Create(logging.LogFilePath(logsDir, logging.ServiceName, start))
	if err != nil {
		return fmt.Errorf("create log file: %w", err)
	}
	defer logFile.Close()

	sinks := logging.Sinks{File: logFile}

	otelCfg := config.GetOTelConfig()
	var otelFile *os.File
	if otelCfg.Enabled {
		otelFile, err = os.Create(logging.LogFilePath(logsDir, logging.ServiceName+".otel", start))
		if err != nil {
			return fmt.Errorf("create otel log file: %w", err)
		}
		defer otelFile.Close()
	}
	provider, err := intOtel.New(intOtel.Config{
		Enabled:      otelCfg.Enabled,
		ServiceName:  otelCfg.ServiceName,
		BatchTimeout: otelCfg.BatchTimeout,
		LogWriter:    otelFile,
		Endpoint:     otelCfg.Endpoint,
		Insecure:     otelCfg.Insecure,
	})
	if err != nil {
		return fmt.Errorf("otel: %w", err)
	}
	defer provider.Shutdown(context.Background())
	sinks.Provider = provider.LoggerProvider()
	if provider.Enabled() {
		console.Info().Str("session", provider.SessionID()).Msg("otel export enabled")
	}

	if gl := config.GetGraylogConfig(); gl.Enabled {
		w, err := logging.DialGraylog(gl.Address)
		if err != nil {
			console.Warn().Err(err).Str("address", gl.Address).Msg("graylog unavailable")
		} else {
			defer w.Close()
			sinks.Graylog = w
		}
	}

	var current atomic.Pointer[draw.Draw]
	sinks.Context = func() []slog.Attr {
		if d := current.Load(); d != nil {
			return d.LogAttrs()
		}
		return nil
	}

	slogs := logging.NewSlogManager()
	slogs.Setup(level, sinks)
	logger := slogs.Logger()
	defer slogs.Flush(context.Background())

	// script and host
	var script *Script
	if opts.Script != "" {
		script, err = LoadScript(opts.Script)
		if err != nil {
			return err
		}
	}
	vp := viewport(opts, script)

	renderCfg := config.GetRenderConfig()
	var (
		m      core.Map
		remote *websocket.Host
	)
	if opts.Host != "" {
		remote = websocket.New(websocket.Config{
			URL:     opts.Host,
			Secret:  opts.Secret,
			Sources: []string{renderCfg.ColdSource, renderCfg.HotSource},
			Layers:  renderCfg.Layers,
		}, logger)
		connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		err := remote.Connect(connectCtx)
		cancel()
		if err != nil {
			return fmt.Errorf("connect render host: %w", err)
		}
		defer remote.Close()
		m = remote
		console.Info().Str("host", opts.Host).Msg("connected to render host")
	} else {
		m = memory.New(vp, renderCfg.ColdSource, renderCfg.HotSource)
	}

	d, err := draw.New(m,
		draw.WithConfig(draw.ConfigFromSettings()),
		draw.WithLogger(logger),
		draw.WithEventLogger(logging.NewDispatcherLogger(console)),
	)
	if err != nil {
		return err
	}
	current.Store(d)
	defer d.Close()

	// sinks for notifications
	d.OnAll(func(e core.Event) error {
		ev := console.Info().Str("kind", string(e.Kind)).Str("id", e.ID)
		if e.GeoJSON != nil && e.GeoJSON.Geometry != nil {
			ev = ev.Str("geometry", e.GeoJSON.Geometry.GeoJSONType())
		}
		ev.Msg("notification")
		return nil
	})

	var jrnl *journal.Journal
	if jc := config.GetJournalConfig(); jc.Enabled {
		jrnl, err = journal.Open(jc, console)
		if err != nil {
			return err
		}
		defer jrnl.Close()
		d.OnAll(jrnl.Record, draw.Buffered(256), draw.Blocking())
	}

	if ic := config.GetInfluxConfig(); ic.Enabled {
		mgr := influx.NewManager(ic, console)
		if err := mgr.Connect(ctx); err != nil {
			console.Warn().Err(err).Msg("influx unavailable")
		} else {
			defer mgr.Close()
			d.OnAll(mgr.Handle, draw.Buffered(1024))
		}
	}

	if remote != nil {
		d.OnAll(remote.Notify)
		remote.OnInput(d.Handle)
	}

	// inputs
	for _, path := range opts.Inputs {
		ids, err := load(d, path, logger)
		if err != nil {
			return fmt.Errorf("load %s: %w", path, err)
		}
		console.Info().Str("path", path).Int("features", len(ids)).Msg("input loaded")
	}

	if script != nil {
		runner := NewRunner(d, m, console)
		if err := runner.Run(script); err != nil {
			return err
		}
		console.Info().Int("steps", len(script.Steps)).Int("ids", len(runner.IDs())).Msg("script finished")
	}

	d.Render()
	// flush buffered sinks before reading the journal
	d.Close()

	// outputs
	w, err := NewWriter(opts.Out, opts.Minify)
	if err != nil {
		return err
	}
	b := d.Buckets()
	for name, fc := range map[string]*geojson.FeatureCollection{
		ColdFile: b.Cold,
		HotFile:  b.Hot,
		AllFile:  d.GetAll(),
	} {
		path, err := w.Collection(name, fc)
		if err != nil {
			return err
		}
		console.Debug().Str("path", path).Int("features", len(fc.Features)).Msg("written")
	}

	if opts.Preview != "" {
		if err := Preview(opts.Preview, m, vp.Width, vp.Height, b.Cold, b.Hot); err != nil {
			return err
		}
		console.Info().Str("path", opts.Preview).Msg("preview written")
	}

	st := d.Stats()
	console.Info().
		Int("features", st.Features).
		Int("selected", st.Selected).
		Int64("renders", st.Renders).
		Int64("skipped", st.Skipped).
		Dur("took", time.Since(start)).
		Msg("done")

	if jrnl != nil {
		sum, err := Summarize(jrnl)
		if err != nil {
			return err
		}
		ev := console.Info().Int("events", sum.Total)
		for _, kind := range core.EventKinds {
			ev = ev.Int64(string(kind), sum.Counts[kind])
		}
		ev.Msg("journal")
	}
	return nil
}

// load adds a GeoJSON file or shapefile.
func load(d *draw.Draw, path string, logger *slog.Logger) ([]string, error) {
	if strings.EqualFold(filepath.Ext(path), ".shp") {
		res, err := importer.LoadShapefile(path, logger)
		if err != nil && !errors.Is(err, importer.ErrNoFeatures) {
			return nil, err
		}
		if len(res.Features) == 0 {
			return nil, nil
		}
		return d.Add(res.Collection())
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return d.Add(raw)
}

func viewport(opts Options, s *Script) geo.Viewport {
	vp := geo.Viewport{Zoom: opts.Zoom, Width: opts.Width, Height: opts.Height}
	if s == nil || s.Viewport == nil {
		return vp
	}
	if len(s.Viewport.Center) >= 2 {
		vp.Center = orb.Point{s.Viewport.Center[0], s.Viewport.Center[1]}
	}
	if s.Viewport.Zoom > 0 {
		vp.Zoom = s.Viewport.Zoom
	}
	if s.Viewport.Width > 0 {
		vp.Width = s.Viewport.Width
	}
	if s.Viewport.Height > 0 {
		vp.Height = s.Viewport.Height
	}
	return vp
}

func zerologLevel(level string) zerolog.Level {
	switch logging.ParseLevel(level) {
	case slog.LevelDebug:
		return zerolog.DebugLevel
	case slog.LevelWarn:
		return zerolog.WarnLevel
	case slog.LevelError:
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}
