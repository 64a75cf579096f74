package websocket

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/OCAP2/draw/pkg/streaming"
	"github.com/cenkalti/backoff"
	ws "github.com/gorilla/websocket"
)

const (
	sendChSize   = 1024
	ackChSize    = 16
	maxReconnect = 10
	maxBackoff   = 30 * time.Second
	writeWait    = 10 * time.Second
	ackTimeout   = 10 * time.Second
)

// connection is the link to the render host. One goroutine writes, one
// reads; a lost link is redialled in the background and the hello is
// replayed so the host recreates its sources.
type connection struct {
	mu     sync.Mutex
	conn   *ws.Conn
	closed bool
	hello  []byte

	target string
	secret string

	sendCh chan []byte
	ackCh  chan streaming.AckMessage
	done   chan struct{}

	onMessage func(streaming.Inbound)
	logger    *slog.Logger
}

func newConnection(logger *slog.Logger, onMessage func(streaming.Inbound)) *connection {
	return &connection{
		sendCh:    make(chan []byte, sendChSize),
		ackCh:     make(chan streaming.AckMessage, ackChSize),
		done:      make(chan struct{}),
		onMessage: onMessage,
		logger:    logger,
	}
}

func (c *connection) setHello(hello []byte) {
	c.mu.Lock()
	c.hello = hello
	c.mu.Unlock()
}

func (c *connection) current() *ws.Conn {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn
}

func (c *connection) dial(ctx context.Context, target, secret string) error {
	c.target, c.secret = target, secret

	conn, err := c.open(ctx)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()

	c.start()
	return nil
}

func (c *connection) start() {
	go c.writeLoop()
	go c.readLoop()
}

// open dials once, passing the secret as a query parameter.
func (c *connection) open(ctx context.Context) (*ws.Conn, error) {
	u, err := url.Parse(c.target)
	if err != nil {
		return nil, fmt.Errorf("invalid render host URL: %w", err)
	}
	if c.secret != "" {
		q := u.Query()
		q.Set("secret", c.secret)
		u.RawQuery = q.Encode()
	}
	conn, _, err := ws.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("render host dial failed: %w", err)
	}
	return conn, nil
}

func writeFrame(conn *ws.Conn, data []byte) error {
	if err := conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return conn.WriteMessage(ws.TextMessage, data)
}

func (c *connection) writeLoop() {
	for {
		select {
		case <-c.done:
			return
		case data := <-c.sendCh:
			conn := c.current()
			if conn == nil {
				continue
			}
			if err := writeFrame(conn, data); err != nil {
				c.logger.Warn("Render host write failed", "error", err)
				go c.reconnect()
				return
			}
		}
	}
}

// readLoop hands acks to sendAndWait and everything else to onMessage.
func (c *connection) readLoop() {
	for {
		conn := c.current()
		if conn == nil {
			return
		}
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if c.isClosed() {
				return
			}
			c.logger.Warn("Render host read failed", "error", err)
			go c.reconnect()
			return
		}
		c.route(raw)
	}
}

func (c *connection) route(raw []byte) {
	var in streaming.Inbound
	if err := json.Unmarshal(raw, &in); err != nil {
		c.logger.Debug("Ignoring unreadable host message", "raw", string(raw))
		return
	}
	if in.Type != streaming.TypeAck {
		if c.onMessage != nil {
			c.onMessage(in)
		}
		return
	}
	select {
	case c.ackCh <- streaming.AckMessage{Type: in.Type, For: in.For}:
	default:
		c.logger.Debug("Dropping ack, nobody waiting", "for", in.For)
	}
}

func (c *connection) isClosed() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

func reconnectPolicy(ctx context.Context) backoff.BackOffContext {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = time.Second
	policy.MaxInterval = maxBackoff
	policy.MaxElapsedTime = 0
	return backoff.WithContext(backoff.WithMaxRetries(policy, maxReconnect), ctx)
}

// reconnect drops the broken link and redials until it succeeds, the retry
// budget is spent or the connection is closed.
func (c *connection) reconnect() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	if c.conn != nil {
		_ = c.conn.Close()
		c.conn = nil
	}
	c.mu.Unlock()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		select {
		case <-c.done:
			cancel()
		case <-ctx.Done():
		}
	}()

	attempt := 0
	redial := func() error {
		attempt++
		conn, err := c.open(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(ctx.Err())
			}
			return err
		}
		c.mu.Lock()
		c.conn = conn
		hello := c.hello
		c.mu.Unlock()

		if hello == nil {
			return nil
		}
		if err := writeFrame(conn, hello); err != nil {
			_ = conn.Close()
			return fmt.Errorf("replay hello: %w", err)
		}
		return nil
	}
	notify := func(err error, d time.Duration) {
		c.logger.Warn("Render host redial failed", "attempt", attempt, "backoff", d, "error", err)
	}

	if err := backoff.RetryNotify(redial, reconnectPolicy(ctx), notify); err != nil {
		c.logger.Error("Render host unreachable, giving up", "attempts", attempt, "error", err)
		return
	}
	c.logger.Info("Render host reconnected", "attempt", attempt)
	c.start()
}

// send queues data without blocking; a full queue drops it.
func (c *connection) send(data []byte) {
	select {
	case c.sendCh <- data:
	default:
		c.logger.Warn("Render host send queue full, dropping message")
	}
}

// sendAndWait queues data and blocks until the host acks ackFor.
func (c *connection) sendAndWait(data []byte, ackFor string, timeout time.Duration) error {
	c.send(data)

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	for {
		select {
		case ack := <-c.ackCh:
			if ack.For == ackFor {
				return nil
			}
		case <-timer.C:
			return fmt.Errorf("timeout waiting for ack of %q", ackFor)
		case <-c.done:
			return fmt.Errorf("connection closed while waiting for ack of %q", ackFor)
		}
	}
}

// close says goodbye to the host and stops both loops.
func (c *connection) close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	close(c.done)
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()

	if conn == nil {
		return nil
	}
	_ = conn.WriteMessage(ws.CloseMessage, ws.FormatCloseMessage(ws.CloseNormalClosure, ""))
	return conn.Close()
}
