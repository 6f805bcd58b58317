// Package capture turns a live microphone stream into fixed-size PCM16
// blocks for transmission.
package capture

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"sync/atomic"

	"github.com/AltairaLabs/livevoice/audio"
	"github.com/AltairaLabs/livevoice/logger"
)

var (
	// ErrPermissionDenied is wrapped by Microphone implementations when the
	// OS or user refuses access.
	ErrPermissionDenied = errors.New("microphone permission denied")
	// ErrAlreadyAcquired is returned by Acquire while a stream is held.
	ErrAlreadyAcquired = errors.New("capture: microphone already acquired")
	// ErrNotAcquired is returned by Start before Acquire succeeds.
	ErrNotAcquired = errors.New("capture: microphone not acquired")
	// ErrAlreadyStarted is returned by a second Start.
	ErrAlreadyStarted = errors.New("capture: already started")
)

// PermissionError reports that microphone access was refused. It is
// terminal for the attempt and never retried.
type PermissionError struct {
	Err error
}

func (e *PermissionError) Error() string {
	return fmt.Sprintf("microphone access denied: %v", e.Err)
}

func (e *PermissionError) Unwrap() error {
	return e.Err
}

// UnavailableError reports that no usable input device could be opened.
type UnavailableError struct {
	Err error
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("microphone unavailable: %v", e.Err)
}

func (e *UnavailableError) Unwrap() error {
	return e.Err
}

// Microphone opens input streams on an audio device.
type Microphone interface {
	// Open starts capturing in the given format. framesPerBlock is the
	// number of frames each Read fills.
	Open(ctx context.Context, format audio.Format, framesPerBlock int) (InputStream, error)
}

// InputStream is an open capture stream.
type InputStream interface {
	// Read blocks until len(dst) samples are available and copies them in.
	// It returns an error once the stream is closed.
	Read(dst []float32) error
	// Close stops capture and releases the device.
	Close() error
}

// Pipeline owns one microphone stream and emits captured blocks in order.
type Pipeline struct {
	mic       Microphone
	format    audio.Format
	blockSize int
	onError   func(error)

	mu       sync.Mutex
	stream   InputStream
	started  bool
	stopping atomic.Bool
	done     chan struct{}

	level  atomic.Uint64 // math.Float64bits of the last block's RMS
	blocks atomic.Uint64
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithBlockSize sets the number of frames per block. The default is 4096.
func WithBlockSize(n int) Option {
	return func(p *Pipeline) {
		if n > 0 {
			p.blockSize = n
		}
	}
}

// WithFormat overrides the capture format. The default is 16 kHz mono.
func WithFormat(f audio.Format) Option {
	return func(p *Pipeline) { p.format = f }
}

// WithErrorHandler sets the callback for a capture failure after Start.
// It is called at most once per Start, from the capture goroutine.
func WithErrorHandler(fn func(error)) Option {
	return func(p *Pipeline) { p.onError = fn }
}

// NewPipeline creates a pipeline reading from mic.
func NewPipeline(mic Microphone, opts ...Option) *Pipeline {
	p := &Pipeline{
		mic:       mic,
		format:    audio.CaptureFormat,
		blockSize: audio.BlockSize,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Acquire opens exactly one input stream. Refused access is returned as a
// *PermissionError; any other failure as an *UnavailableError.
func (p *Pipeline) Acquire(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.stream != nil {
		return ErrAlreadyAcquired
	}

	stream, err := p.mic.Open(ctx, p.format, p.blockSize)
	if err != nil {
		var permErr *PermissionError
		switch {
		case errors.As(err, &permErr):
			return err
		case errors.Is(err, ErrPermissionDenied):
			return &PermissionError{Err: err}
		default:
			return &UnavailableError{Err: err}
		}
	}

	p.stream = stream
	p.started = false
	p.stopping.Store(false)
	p.blocks.Store(0)
	p.level.Store(0)
	logger.DebugContext(ctx, "capture: microphone acquired",
		"sample_rate", p.format.SampleRate, "block_size", p.blockSize)
	return nil
}

// Start begins delivering blocks to sink on a dedicated goroutine. Blocks
// arrive in capture order with sequence numbers starting at 1.
func (p *Pipeline) Start(sink func(audio.Block)) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.stream == nil {
		return ErrNotAcquired
	}
	if p.started {
		return ErrAlreadyStarted
	}
	p.started = true
	p.done = make(chan struct{})

	go p.loop(p.stream, sink, p.done)
	return nil
}

func (p *Pipeline) loop(stream InputStream, sink func(audio.Block), done chan struct{}) {
	defer close(done)

	buf := make([]float32, p.blockSize*max(p.format.Channels, 1))
	var seq uint64
	for {
		if err := stream.Read(buf); err != nil {
			if !p.stopping.Load() {
				logger.Warn("capture: read failed", "error", err)
				if p.onError != nil {
					p.onError(err)
				}
			}
			return
		}
		if p.stopping.Load() {
			return
		}

		seq++
		p.level.Store(math.Float64bits(audio.RMS(buf)))
		p.blocks.Add(1)
		sink(audio.NewBlock(seq, p.format, audio.FloatToPCM16(buf)))
	}
}

// Stop ends capture and releases the device. After Stop returns the sink
// is not called again. It is safe to call at any time, any number of times.
func (p *Pipeline) Stop() error {
	p.mu.Lock()
	stream, done := p.stream, p.done
	if stream != nil {
		p.stopping.Store(true)
	}
	p.stream, p.done = nil, nil
	p.started = false
	p.mu.Unlock()

	if stream == nil {
		return nil
	}

	err := stream.Close()
	if done != nil {
		<-done
	}
	logger.Debug("capture: microphone released", "blocks", p.blocks.Load())
	return err
}

// Acquired reports whether a stream is currently held.
func (p *Pipeline) Acquired() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stream != nil
}

// Level returns the RMS level of the most recent block.
func (p *Pipeline) Level() float64 {
	return math.Float64frombits(p.level.Load())
}

// Blocks returns the number of blocks produced since Acquire.
func (p *Pipeline) Blocks() uint64 {
	return p.blocks.Load()
}
