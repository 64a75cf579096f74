// Package dispatcher fans lifecycle notifications out to the handlers the
// owning application registered for each event kind.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/OCAP2/draw/pkg/core"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// ErrClosed is returned by a buffered handler that was reached after Close.
var ErrClosed = errors.New("dispatcher closed")

// HandlerFunc processes one notification.
type HandlerFunc func(core.Event) error

// Logger interface for pluggable logging.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// Option configures handler registration.
type Option func(*config)

type config struct {
	bufferSize int
	blocking   bool
	logged     bool
}

// Buffered makes the handler async with a queue of the given size.
func Buffered(size int) Option {
	return func(c *config) {
		c.bufferSize = size
	}
}

// Blocking makes a buffered handler block when the queue is full instead of dropping.
func Blocking() Option {
	return func(c *config) {
		c.blocking = true
	}
}

// Logged adds debug logging to the handler.
func Logged() Option {
	return func(c *config) {
		c.logged = true
	}
}

// buffer is the queue behind a Buffered registration. Senders hold mu for
// reading so Close cannot close ch under a send in flight.
type buffer struct {
	label string
	ch    chan core.Event

	mu     sync.RWMutex
	closed bool
}

func (b *buffer) shut() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	close(b.ch)
}

// Dispatcher routes events to every handler registered for their kind.
// Synchronous handlers run on the emitting goroutine in registration order.
type Dispatcher struct {
	logger Logger

	mu       sync.RWMutex
	handlers map[core.EventKind][]HandlerFunc
	buffers  []*buffer
	closed   bool
	wg       sync.WaitGroup

	queueSize metric.Int64ObservableGauge
	emitted   metric.Int64Counter
	failed    metric.Int64Counter
	dropped   metric.Int64Counter
}

// New creates a new Dispatcher with the given logger.
// Uses the global OTel meter for metrics (no-op if not configured).
func New(logger Logger) (*Dispatcher, error) {
	d := &Dispatcher{
		handlers: make(map[core.EventKind][]HandlerFunc),
		logger:   logger,
	}

	m := meter()

	var err error

	d.queueSize, err = m.Int64ObservableGauge(
		"draw.events.queue.size",
		metric.WithDescription("Current number of events waiting in buffered handlers"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating queue size gauge: %w", err)
	}

	_, err = m.RegisterCallback(
		func(ctx context.Context, o metric.Observer) error {
			d.mu.RLock()
			defer d.mu.RUnlock()
			for _, buf := range d.buffers {
				o.ObserveInt64(d.queueSize, int64(len(buf.ch)),
					metric.WithAttributes(attribute.String("kind", buf.label)))
			}
			return nil
		},
		d.queueSize,
	)
	if err != nil {
		return nil, fmt.Errorf("registering queue callback: %w", err)
	}

	d.emitted, err = m.Int64Counter(
		"draw.events.emitted",
		metric.WithDescription("Total notifications emitted"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating emitted counter: %w", err)
	}

	d.failed, err = m.Int64Counter(
		"draw.events.failed",
		metric.WithDescription("Total handler invocations that returned an error"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating failed counter: %w", err)
	}

	d.dropped, err = m.Int64Counter(
		"draw.events.dropped",
		metric.WithDescription("Total events dropped due to full queue"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating dropped counter: %w", err)
	}

	return d, nil
}

// Register adds a handler for the given kind with optional configuration.
// Registrations after Close are ignored.
func (d *Dispatcher) Register(kind core.EventKind, h HandlerFunc, opts ...Option) {
	d.register([]core.EventKind{kind}, string(kind), h, opts)
}

// RegisterAll adds h for every event kind. A buffered registration shares one
// queue across kinds, so h sees events in emission order.
func (d *Dispatcher) RegisterAll(h HandlerFunc, opts ...Option) {
	d.register(core.EventKinds, "all", h, opts)
}

func (d *Dispatcher) register(kinds []core.EventKind, label string, h HandlerFunc, opts []Option) {
	cfg := &config{}
	for _, opt := range opts {
		opt(cfg)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		d.logger.Debug("dispatcher closed, handler not registered", "kind", label)
		return
	}

	handler := h
	if cfg.logged {
		handler = d.withLogging(handler)
	}
	if cfg.bufferSize > 0 {
		handler = d.withBuffer(label, cfg.bufferSize, cfg.blocking, handler)
	}
	for _, kind := range kinds {
		d.handlers[kind] = append(d.handlers[kind], handler)
	}
}

// Emit delivers e to every handler registered for its kind. Handler errors are
// logged and do not stop delivery to the remaining handlers.
func (d *Dispatcher) Emit(e core.Event) {
	d.mu.RLock()
	if d.closed {
		d.mu.RUnlock()
		return
	}
	handlers := d.handlers[e.Kind]
	d.mu.RUnlock()

	kindAttr := metric.WithAttributes(attribute.String("kind", string(e.Kind)))
	d.emitted.Add(context.Background(), 1, kindAttr)

	for _, h := range handlers {
		if err := h(e); err != nil {
			if errors.Is(err, ErrClosed) {
				continue
			}
			d.failed.Add(context.Background(), 1, kindAttr)
			d.logger.Error("event handler failed", "kind", e.Kind, "id", e.ID, "error", err)
		}
	}
}

// HasHandler returns true if a handler is registered for the kind.
func (d *Dispatcher) HasHandler(kind core.EventKind) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.handlers[kind]) > 0
}

// Close stops accepting events and waits for buffered handlers to drain.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	buffers := d.buffers
	d.mu.Unlock()

	for _, buf := range buffers {
		buf.shut()
	}

	d.wg.Wait()
}

// withBuffer starts the queue consumer. Callers hold d.mu.
func (d *Dispatcher) withBuffer(label string, size int, blocking bool, h HandlerFunc) HandlerFunc {
	buf := &buffer{label: label, ch: make(chan core.Event, size)}
	d.buffers = append(d.buffers, buf)

	labelAttr := metric.WithAttributes(attribute.String("kind", label))

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		for e := range buf.ch {
			if err := h(e); err != nil {
				d.failed.Add(context.Background(), 1, labelAttr)
				d.logger.Error("buffered event handler failed", "kind", e.Kind, "id", e.ID, "error", err)
			}
		}
	}()

	return func(e core.Event) error {
		buf.mu.RLock()
		defer buf.mu.RUnlock()
		if buf.closed {
			return ErrClosed
		}
		if blocking {
			buf.ch <- e
			return nil
		}
		select {
		case buf.ch <- e:
			return nil
		default:
			d.dropped.Add(context.Background(), 1, labelAttr)
			return fmt.Errorf("queue full: %s", label)
		}
	}
}

func (d *Dispatcher) withLogging(h HandlerFunc) HandlerFunc {
	return func(e core.Event) error {
		start := time.Now()
		d.logger.Debug("handling event", "kind", e.Kind, "id", e.ID)

		err := h(e)

		if err != nil {
			d.logger.Error("event failed", "kind", e.Kind, "id", e.ID, "duration", time.Since(start), "error", err)
		} else {
			d.logger.Debug("event complete", "kind", e.Kind, "id", e.ID, "duration", time.Since(start))
		}

		return err
	}
}
