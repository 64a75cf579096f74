package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/Graylog2/go-gelf/gelf"
	"go.opentelemetry.io/contrib/bridges/otelslog"
	sdklog "go.opentelemetry.io/otel/sdk/log"
)

// ServiceName tags records sent to OTel and Graylog.
const ServiceName = "geodraw"

// Sinks selects where records go. Console is used only when no file is given;
// a nil Console then means stdout.
type Sinks struct {
	Console  io.Writer
	File     io.Writer
	Graylog  *gelf.Writer
	Provider *sdklog.LoggerProvider
	// Context adds live attributes (feature counts) to every record.
	Context ContextProvider
}

// SlogManager manages slog-based logging with optional OTel and Graylog output.
type SlogManager struct {
	logger *slog.Logger

	// OTel provider for flushing
	logProvider *sdklog.LoggerProvider
}

// NewSlogManager creates a new slog-based logging manager.
func NewSlogManager() *SlogManager {
	return &SlogManager{}
}

// ParseLevel converts a string log level to slog.Level. Unknown levels are INFO.
func ParseLevel(level string) slog.Level {
	switch strings.ToUpper(strings.TrimSpace(level)) {
	case "DEBUG":
		return slog.LevelDebug
	case "INFO":
		return slog.LevelInfo
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Setup builds the logger. Calling it again replaces the previous logger.
func (m *SlogManager) Setup(level string, sinks Sinks) {
	lvl := ParseLevel(level)
	m.logProvider = sinks.Provider

	// RFC3339 UTC timestamps everywhere
	handlerOpts := &slog.HandlerOptions{
		Level: lvl,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey {
				if t, ok := a.Value.Any().(time.Time); ok {
					a.Value = slog.StringValue(t.UTC().Format(time.RFC3339))
				}
			}
			return a
		},
	}

	var handlers []slog.Handler

	if sinks.File != nil {
		handlers = append(handlers, slog.NewTextHandler(sinks.File, handlerOpts))
	} else {
		console := sinks.Console
		if console == nil {
			console = os.Stdout
		}
		handlers = append(handlers, slog.NewTextHandler(console, handlerOpts))
	}

	if sinks.Graylog != nil {
		sinks.Graylog.Facility = ServiceName
		handlers = append(handlers, slog.NewJSONHandler(sinks.Graylog, handlerOpts))
	}

	if sinks.Provider != nil {
		handlers = append(handlers, otelslog.NewHandler(ServiceName, otelslog.WithLoggerProvider(sinks.Provider)))
	}

	m.logger = slog.New(withSession(NewFanout(handlers...), sinks.Context))
	m.logger.Info("Logging initialized", "level", lvl.String())
}

// Logger returns the configured slog.Logger.
func (m *SlogManager) Logger() *slog.Logger {
	if m.logger == nil {
		return slog.Default()
	}
	return m.logger
}

// Flush forces a flush of OTel logs if available.
func (m *SlogManager) Flush(ctx context.Context) error {
	if m.logProvider != nil {
		return m.logProvider.ForceFlush(ctx)
	}
	return nil
}

// DialGraylog opens a GELF UDP writer for addr.
func DialGraylog(addr string) (*gelf.Writer, error) {
	return gelf.NewWriter(addr)
}
