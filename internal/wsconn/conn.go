// Package wsconn manages the WebSocket connection underneath a live voice
// transport: dialing with bounded retry, serialized writes, a single read
// loop, keepalive pings and graceful close. Message encoding is left to the
// caller.
package wsconn

import (
	"context"
	"crypto/rand"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"math/big"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	"github.com/AltairaLabs/livevoice/logger"
)

// Default connection constants.
const (
	DefaultDialTimeout      = 10 * time.Second
	DefaultWriteWait        = 10 * time.Second
	DefaultMaxMessageSize   = 16 * 1024 * 1024 // 16MB
	DefaultDialAttempts     = 1
	DefaultRetryBackoffBase = 500 * time.Millisecond
	DefaultRetryBackoffMax  = 10 * time.Second
	DefaultCloseGracePeriod = 2 * time.Second
)

// jitterFactor is the +-25% jitter applied to backoff delays.
const jitterFactor = 0.25

// jitterPrecision is the granularity for crypto/rand jitter generation.
const jitterPrecision = 1000

// jitterHalfPrecision normalizes jitter output to the range [-1, 1].
const jitterHalfPrecision = jitterPrecision / 2

var (
	// ErrClosed is returned by operations on a closed Conn.
	ErrClosed = errors.New("websocket connection is closed")
	// ErrNotConnected is returned by writes before Connect succeeds.
	ErrNotConnected = errors.New("websocket is not connected")
)

// Config configures the WebSocket connection behavior.
type Config struct {
	// URL is the WebSocket endpoint URL.
	URL string

	// Headers are sent during the WebSocket handshake. Trace context from
	// the Connect context is added to a copy of these.
	Headers http.Header

	// DialTimeout is the handshake timeout. Defaults to DefaultDialTimeout.
	DialTimeout time.Duration

	// WriteWait is the write deadline for each message. Defaults to DefaultWriteWait.
	WriteWait time.Duration

	// MaxMessageSize is the read limit. Defaults to DefaultMaxMessageSize.
	MaxMessageSize int64

	// DialAttempts is the number of dial attempts Connect makes before
	// giving up. Defaults to DefaultDialAttempts, i.e. no retry.
	DialAttempts int

	// RetryBackoffBase is the initial backoff delay. Defaults to DefaultRetryBackoffBase.
	RetryBackoffBase time.Duration

	// RetryBackoffMax caps the backoff delay. Defaults to DefaultRetryBackoffMax.
	RetryBackoffMax time.Duration

	// CloseGracePeriod is the deadline for writing the close frame.
	// Defaults to DefaultCloseGracePeriod.
	CloseGracePeriod time.Duration
}

func (c *Config) defaults() {
	if c.DialTimeout == 0 {
		c.DialTimeout = DefaultDialTimeout
	}
	if c.WriteWait == 0 {
		c.WriteWait = DefaultWriteWait
	}
	if c.MaxMessageSize == 0 {
		c.MaxMessageSize = DefaultMaxMessageSize
	}
	if c.DialAttempts <= 0 {
		c.DialAttempts = DefaultDialAttempts
	}
	if c.RetryBackoffBase == 0 {
		c.RetryBackoffBase = DefaultRetryBackoffBase
	}
	if c.RetryBackoffMax == 0 {
		c.RetryBackoffMax = DefaultRetryBackoffMax
	}
	if c.CloseGracePeriod == 0 {
		c.CloseGracePeriod = DefaultCloseGracePeriod
	}
}

// Conn is a single-use WebSocket connection. Close may be called at any
// time, including while Connect is still dialing, and aborts the dial.
type Conn struct {
	cfg Config

	conn    *websocket.Conn
	mu      sync.Mutex
	writeMu sync.Mutex // serializes writes (gorilla/websocket requirement)
	closed  bool
	closeCh chan struct{}
}

// New creates a Conn. Call Connect to establish the connection.
func New(cfg Config) *Conn {
	cfg.defaults()
	return &Conn{
		cfg:     cfg,
		closeCh: make(chan struct{}),
	}
}

// Connect dials the endpoint, retrying with exponential backoff and jitter
// up to DialAttempts times.
func (c *Conn) Connect(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-c.closeCh:
			cancel()
		case <-ctx.Done():
		}
	}()

	var lastErr error
	backoff := c.cfg.RetryBackoffBase

	for attempt := 1; attempt <= c.cfg.DialAttempts; attempt++ {
		if c.IsClosed() {
			return ErrClosed
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		// The handshake read does not observe ctx, so race it against Close.
		dialErr := make(chan error, 1)
		go func() { dialErr <- c.dial(ctx) }()

		var err error
		select {
		case err = <-dialErr:
		case <-c.closeCh:
			return ErrClosed
		}
		if err == nil {
			return nil
		}
		if c.IsClosed() {
			return ErrClosed
		}
		lastErr = err

		logger.Warn("wsconn: dial attempt failed",
			"attempt", attempt, "max_attempts", c.cfg.DialAttempts, "error", lastErr)

		if attempt < c.cfg.DialAttempts {
			delay := calculateBackoff(backoff, c.cfg.RetryBackoffMax)
			select {
			case <-ctx.Done():
				if c.IsClosed() {
					return ErrClosed
				}
				return ctx.Err()
			case <-time.After(delay):
			}
			backoff *= 2
			if backoff > c.cfg.RetryBackoffMax {
				backoff = c.cfg.RetryBackoffMax
			}
		}
	}

	if c.cfg.DialAttempts == 1 {
		return lastErr
	}
	return fmt.Errorf("failed to connect after %d attempts: %w", c.cfg.DialAttempts, lastErr)
}

func (c *Conn) dial(ctx context.Context) error {
	dialer := websocket.Dialer{
		HandshakeTimeout: c.cfg.DialTimeout,
		TLSClientConfig:  &tls.Config{MinVersion: tls.VersionTLS12},
	}

	headers := c.cfg.Headers.Clone()
	if headers == nil {
		headers = http.Header{}
	}
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(headers))

	logger.Debug("wsconn: connecting", "url", logger.RedactSensitiveData(c.cfg.URL))

	conn, resp, err := dialer.DialContext(ctx, c.cfg.URL, headers)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		if resp != nil {
			return fmt.Errorf("failed to connect (status %d): %w", resp.StatusCode, err)
		}
		return fmt.Errorf("failed to connect: %w", err)
	}

	conn.SetReadLimit(c.cfg.MaxMessageSize)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		_ = conn.Close()
		return ErrClosed
	}
	c.conn = conn
	logger.Debug("wsconn: connected")
	return nil
}

// Send JSON-encodes msg and writes it as a text frame.
func (c *Conn) Send(msg any) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}
	return c.SendRaw(data)
}

// SendRaw writes pre-encoded data as a text frame.
func (c *Conn) SendRaw(data []byte) error {
	conn, err := c.current()
	if err != nil {
		return err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if err := conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait)); err != nil {
		return fmt.Errorf("failed to set write deadline: %w", err)
	}
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("failed to write message: %w", err)
	}
	return nil
}

// ReadLoop delivers every inbound text or binary frame to handle, in
// arrival order, on the calling goroutine. It returns nil when the
// connection is closed locally, including before the loop starts. A close
// from the peer is returned as a *websocket.CloseError; use IsNormalClose
// to tell a clean one apart.
func (c *Conn) ReadLoop(handle func([]byte)) error {
	conn, err := c.current()
	if errors.Is(err, ErrClosed) {
		return nil
	}
	if err != nil {
		return err
	}

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			if c.IsClosed() {
				return nil
			}
			return err
		}
		if msgType != websocket.TextMessage && msgType != websocket.BinaryMessage {
			continue
		}
		handle(data)
	}
}

// IsNormalClose reports whether err is a clean close from the peer.
func IsNormalClose(err error) bool {
	return websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway)
}

// CloseReason extracts the peer's close text, or the error text otherwise.
func CloseReason(err error) string {
	var ce *websocket.CloseError
	if errors.As(err, &ce) {
		if ce.Text != "" {
			return ce.Text
		}
		return fmt.Sprintf("closed with code %d", ce.Code)
	}
	if err == nil {
		return ""
	}
	return err.Error()
}

// StartHeartbeat sends ping frames at the given interval until the
// connection closes or ctx is done.
func (c *Conn) StartHeartbeat(ctx context.Context, interval time.Duration) {
	go c.heartbeatLoop(ctx, interval)
}

func (c *Conn) heartbeatLoop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.closeCh:
			return
		case <-ticker.C:
			if !c.sendPing() {
				return
			}
		}
	}
}

func (c *Conn) sendPing() bool {
	conn, err := c.current()
	if err != nil {
		return false
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if err := conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait)); err != nil {
		logger.Warn("wsconn: failed to set write deadline for ping", "error", err)
		return true // non-fatal
	}
	if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
		logger.Warn("wsconn: ping failed", "error", err)
		return false
	}
	return true
}

func (c *Conn) current() (*websocket.Conn, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, ErrClosed
	}
	if c.conn == nil {
		return nil, ErrNotConnected
	}
	return c.conn, nil
}

// Close sends a normal close frame and releases the connection. It is
// idempotent and aborts an in-progress Connect.
func (c *Conn) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	close(c.closeCh)
	conn := c.conn
	c.mu.Unlock()

	if conn == nil {
		return nil
	}

	c.writeMu.Lock()
	closeMsg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = conn.SetWriteDeadline(time.Now().Add(c.cfg.CloseGracePeriod))
	_ = conn.WriteMessage(websocket.CloseMessage, closeMsg)
	c.writeMu.Unlock()

	return conn.Close()
}

// IsClosed returns whether Close has been called.
func (c *Conn) IsClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// IsConnected returns true if the connection is established and not closed.
func (c *Conn) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil && !c.closed
}

// calculateBackoff computes a backoff duration with +-25% jitter, capped at maxDelay.
func calculateBackoff(base, maxDelay time.Duration) time.Duration {
	delay := float64(base)
	if delay > float64(maxDelay) {
		delay = float64(maxDelay)
	}
	n, _ := rand.Int(rand.Reader, big.NewInt(jitterPrecision))
	jitter := delay * jitterFactor * (float64(n.Int64())/jitterHalfPrecision - 1)
	result := delay + jitter
	if result < 0 {
		result = float64(base)
	}
	if result > float64(maxDelay) {
		result = float64(maxDelay)
	}
	return time.Duration(math.Max(result, 0))
}
