// Package transport defines the duplex session contract between a live
// voice controller and a remote model: open a session, stream captured
// audio up, and receive transcripts, audio and turn signals back as events.
//
// Backends live in subpackages. Each implementation guarantees that
//   - Open returns without waiting for the remote side; readiness is
//     signalled through Callbacks.OnOpen
//   - audio sent before readiness is queued and flushed in order
//   - callbacks for one session never run concurrently with each other
//   - Close is idempotent, and no callback starts after Close returns
package transport

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/AltairaLabs/livevoice/audio"
)

var (
	// ErrClosed is returned by Send after the handle is closed.
	ErrClosed = errors.New("transport: session closed")
	// ErrSendQueueFull is returned when too much audio is sent before the
	// session opens.
	ErrSendQueueFull = errors.New("transport: pre-open send queue full")
)

// Default session settings.
const (
	DefaultModel         = "gemini-2.5-flash-native-audio-preview-09-2025"
	DefaultVoice         = "Puck"
	DefaultSendQueueSize = 64
)

// Config describes the session requested from the remote model.
type Config struct {
	Model             string
	Voice             string
	SystemInstruction string

	InputTranscription  bool
	OutputTranscription bool

	// SendQueueSize bounds audio blocks held while the session is opening.
	SendQueueSize int
	// DialAttempts bounds connection attempts before the session opens.
	// One attempt, the default, means no retry.
	DialAttempts int
	// SetupTimeout bounds the wait for the remote setup acknowledgement.
	// Zero means wait until closed.
	SetupTimeout time.Duration
}

// WithDefaults returns a copy with unset fields filled in.
func (c Config) WithDefaults() Config {
	if c.Model == "" {
		c.Model = DefaultModel
	}
	if c.Voice == "" {
		c.Voice = DefaultVoice
	}
	if c.SendQueueSize <= 0 {
		c.SendQueueSize = DefaultSendQueueSize
	}
	if c.DialAttempts <= 0 {
		c.DialAttempts = 1
	}
	return c
}

// Callbacks receive session lifecycle notifications and inbound events.
// Any of them may be nil.
type Callbacks struct {
	// OnOpen fires once, when the remote side has accepted the session.
	OnOpen func()
	// OnEvent fires for each demultiplexed inbound event, in arrival order.
	OnEvent func(Event)
	// OnError fires once for a transport fault. No OnClose follows it.
	OnError func(error)
	// OnClose fires once when the remote side ends the session.
	OnClose func(reason string)
}

// Transport opens sessions with a remote model.
type Transport interface {
	// Open starts connecting and returns immediately.
	Open(ctx context.Context, cfg Config, cb Callbacks) (Handle, error)
	// Name identifies the backend in logs and metrics.
	Name() string
}

// Handle is a single open (or opening) session.
type Handle interface {
	// Send transmits one captured block. It does not wait for delivery.
	Send(block audio.Block) error
	// Close ends the session. It is safe to call more than once.
	Close() error
}

// Error is a transport-level fault: connection failure, handshake failure
// or a broken stream.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("transport %s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}
