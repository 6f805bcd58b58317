// Package gemini implements the live voice transport over the Gemini Live
// BidiGenerateContent WebSocket protocol.
package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/AltairaLabs/livevoice/audio"
	"github.com/AltairaLabs/livevoice/internal/wsconn"
	"github.com/AltairaLabs/livevoice/logger"
	"github.com/AltairaLabs/livevoice/transport"
)

// DefaultEndpoint is the Gemini Live API WebSocket endpoint.
const DefaultEndpoint = "wss://generativelanguage.googleapis.com/ws/" +
	"google.ai.generativelanguage.v1beta.GenerativeService.BidiGenerateContent"

const (
	heartbeatIntervalSec = 30
	apiKeyHeader         = "x-goog-api-key"
)

var (
	// ErrSetupTimeout is reported when setupComplete does not arrive in time.
	ErrSetupTimeout = errors.New("timed out waiting for setupComplete")
	// ErrUnexpectedSetupResponse is reported when the first server message
	// is not setupComplete.
	ErrUnexpectedSetupResponse = errors.New("invalid setup response: setupComplete not received")
)

// Transport opens Gemini Live sessions over a WebSocket.
type Transport struct {
	endpoint  string
	apiKey    string
	headers   http.Header
	heartbeat time.Duration
}

// Option configures a Transport.
type Option func(*Transport)

// WithEndpoint overrides the WebSocket endpoint.
func WithEndpoint(url string) Option {
	return func(t *Transport) { t.endpoint = url }
}

// WithHeader adds a handshake header.
func WithHeader(key, value string) Option {
	return func(t *Transport) { t.headers.Set(key, value) }
}

// WithHeartbeat sets the keepalive ping interval. Zero disables pings.
func WithHeartbeat(d time.Duration) Option {
	return func(t *Transport) { t.heartbeat = d }
}

// New creates a Transport authenticating with apiKey.
func New(apiKey string, opts ...Option) *Transport {
	t := &Transport{
		endpoint:  DefaultEndpoint,
		apiKey:    apiKey,
		headers:   http.Header{},
		heartbeat: heartbeatIntervalSec * time.Second,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Name implements transport.Transport.
func (t *Transport) Name() string {
	return "websocket"
}

// Open implements transport.Transport. Connecting, the setup handshake and
// the receive loop all run on a background goroutine.
func (t *Transport) Open(ctx context.Context, cfg transport.Config, cb transport.Callbacks) (transport.Handle, error) {
	cfg = cfg.WithDefaults()

	headers := t.headers.Clone()
	if t.apiKey != "" {
		headers.Set(apiKeyHeader, t.apiKey)
	}

	sessionCtx, cancel := context.WithCancel(ctx)
	s := &session{
		cfg:    cfg,
		cb:     cb,
		cancel: cancel,
		conn: wsconn.New(wsconn.Config{
			URL:          t.endpoint,
			Headers:      headers,
			DialAttempts: cfg.DialAttempts,
		}),
		heartbeat: t.heartbeat,
		finished:  make(chan struct{}),
	}
	s.queue = transport.NewSendQueue(cfg.SendQueueSize, s.write)

	go s.run(sessionCtx)
	return s, nil
}

type session struct {
	cfg       transport.Config
	cb        transport.Callbacks
	conn      *wsconn.Conn
	queue     *transport.SendQueue
	cancel    context.CancelFunc
	heartbeat time.Duration

	cbMu     sync.Mutex // serializes callbacks
	opened   atomic.Bool
	closed   atomic.Bool
	terminal atomic.Bool
	finished chan struct{}
}

func (s *session) run(ctx context.Context) {
	defer close(s.finished)

	if err := s.conn.Connect(ctx); err != nil {
		if !s.closed.Load() {
			s.fail("connect", err)
		}
		return
	}

	setupMsg := buildSetupMessage(&s.cfg)
	logSetupMessage(setupMsg)
	if err := s.conn.Send(setupMsg); err != nil {
		s.fail("setup", err)
		return
	}

	if s.cfg.SetupTimeout > 0 {
		timer := time.AfterFunc(s.cfg.SetupTimeout, func() {
			if !s.opened.Load() {
				s.fail("setup", ErrSetupTimeout)
			}
		})
		defer timer.Stop()
	}

	err := s.conn.ReadLoop(func(data []byte) { s.handle(ctx, data) })
	switch {
	case err == nil:
		// closed locally
	case wsconn.IsNormalClose(err):
		s.remoteClose(wsconn.CloseReason(err))
	default:
		s.fail("receive", errors.New(wsconn.CloseReason(err)))
	}
}

func (s *session) handle(ctx context.Context, data []byte) {
	var msg ServerMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		logger.Warn("gemini: dropping malformed server message", "error", err, "bytes", len(data))
		return
	}

	if !s.opened.Load() {
		if msg.SetupComplete == nil {
			s.fail("setup", ErrUnexpectedSetupResponse)
			return
		}
		s.opened.Store(true)
		if err := s.queue.Open(); err != nil {
			s.fail("send", err)
			return
		}
		if s.heartbeat > 0 {
			s.conn.StartHeartbeat(ctx, s.heartbeat)
		}
		logger.Debug("gemini: session open", "model", s.cfg.Model, "voice", s.cfg.Voice)
		s.emit(s.cb.OnOpen)
		return
	}

	if msg.GoAway != nil {
		logger.Warn("gemini: server is going away", "time_left", msg.GoAway.TimeLeft)
	}
	if msg.UsageMetadata != nil {
		logger.Debug("gemini: usage",
			"prompt_tokens", msg.UsageMetadata.PromptTokenCount,
			"response_tokens", msg.UsageMetadata.ResponseTokenCount)
	}

	if s.cb.OnEvent == nil {
		return
	}
	for _, ev := range Demux(&msg) {
		s.emit(func() { s.cb.OnEvent(ev) })
	}
}

func (s *session) write(b audio.Block) error {
	return s.conn.Send(buildAudioMessage(b.Format().MIMEType(), b.Encoded()))
}

// emit runs fn unless the session has been closed locally.
func (s *session) emit(fn func()) {
	if fn == nil {
		return
	}
	s.cbMu.Lock()
	defer s.cbMu.Unlock()
	if s.closed.Load() {
		return
	}
	fn()
}

func (s *session) fail(op string, err error) {
	if s.terminal.Swap(true) {
		return
	}
	logger.Warn("gemini: session failed", "op", op, "error", err)
	s.shutdown()
	if s.cb.OnError != nil {
		s.emit(func() { s.cb.OnError(&transport.Error{Op: op, Err: err}) })
	}
}

func (s *session) remoteClose(reason string) {
	if s.terminal.Swap(true) {
		return
	}
	logger.Info("gemini: session closed by server", "reason", reason)
	s.shutdown()
	if s.cb.OnClose != nil {
		s.emit(func() { s.cb.OnClose(reason) })
	}
}

func (s *session) shutdown() {
	s.queue.Close()
	s.cancel()
	_ = s.conn.Close()
}

// Send implements transport.Handle. Blocks sent before setupComplete are
// queued and flushed in order once the session opens.
func (s *session) Send(b audio.Block) error {
	if s.closed.Load() {
		return transport.ErrClosed
	}
	err := s.queue.Push(b)
	if err == nil || errors.Is(err, transport.ErrClosed) || errors.Is(err, transport.ErrSendQueueFull) {
		return err
	}
	return &transport.Error{Op: "send", Err: err}
}

// Close implements transport.Handle.
func (s *session) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	s.terminal.Store(true)
	s.shutdown()
	return nil
}

// logSetupMessage logs the setup message at debug level
func logSetupMessage(setupMsg map[string]interface{}) {
	if setupJSON, err := json.Marshal(setupMsg); err == nil {
		logger.Debug("gemini: setup message", "setup", string(setupJSON))
	}
}
