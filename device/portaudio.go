//go:build portaudio

package device

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/gordonklaus/portaudio"

	"github.com/AltairaLabs/livevoice/audio"
	"github.com/AltairaLabs/livevoice/capture"
	"github.com/AltairaLabs/livevoice/logger"
	"github.com/AltairaLabs/livevoice/playback"
)

// Available reports whether hardware audio is compiled in.
const Available = true

// captureBacklog bounds blocks held between the device callback and Read.
const captureBacklog = 32

// Init initializes PortAudio. Call the returned function on exit.
func Init() (func(), error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("failed to initialize PortAudio: %w", err)
	}
	return func() { _ = portaudio.Terminate() }, nil
}

// Microphone opens the default input device.
type Microphone struct{}

// Open implements capture.Microphone.
func (Microphone) Open(ctx context.Context, format audio.Format, framesPerBlock int) (capture.InputStream, error) {
	s := &inputStream{
		blocks: make(chan []float32, captureBacklog),
		closed: make(chan struct{}),
	}
	stream, err := portaudio.OpenDefaultStream(format.Channels, 0, float64(format.SampleRate), framesPerBlock, s.callback)
	if err != nil {
		return nil, fmt.Errorf("failed to open input stream: %w", err)
	}
	if err := stream.Start(); err != nil {
		_ = stream.Close()
		return nil, fmt.Errorf("failed to start input stream: %w", err)
	}
	s.stream = stream
	logger.DebugContext(ctx, "device: input stream started",
		"sample_rate", format.SampleRate, "frames", framesPerBlock)
	return s, nil
}

type inputStream struct {
	stream  *portaudio.Stream
	blocks  chan []float32
	closed  chan struct{}
	once    sync.Once
	dropped atomic.Int64
}

// callback runs on the PortAudio thread and must not block.
func (s *inputStream) callback(in []float32) {
	block := make([]float32, len(in))
	copy(block, in)
	select {
	case s.blocks <- block:
	default:
		s.dropped.Add(1)
	}
}

func (s *inputStream) Read(dst []float32) error {
	select {
	case <-s.closed:
		return capture.ErrStreamClosed
	case block := <-s.blocks:
		copy(dst, block)
		return nil
	}
}

func (s *inputStream) Close() error {
	var err error
	s.once.Do(func() {
		close(s.closed)
		if stopErr := s.stream.Stop(); stopErr != nil {
			err = stopErr
		}
		if closeErr := s.stream.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
		if n := s.dropped.Load(); n > 0 {
			logger.Warn("device: input blocks dropped", "count", n)
		}
	})
	return err
}

// Speaker plays a playback.Mixer on the default output device. The device
// callback pulls frames with Render, so the mixer clock follows the
// hardware clock.
type Speaker struct {
	*playback.Mixer

	stream *portaudio.Stream
	once   sync.Once
}

// NewSpeaker opens the default output device at sampleRate, mono.
func NewSpeaker(sampleRate int) (*Speaker, error) {
	s := &Speaker{Mixer: playback.NewMixer(sampleRate)}
	stream, err := portaudio.OpenDefaultStream(0, 1, float64(sampleRate), 0, s.Render)
	if err != nil {
		return nil, fmt.Errorf("failed to open output stream: %w", err)
	}
	if err := stream.Start(); err != nil {
		_ = stream.Close()
		return nil, fmt.Errorf("failed to start output stream: %w", err)
	}
	s.stream = stream
	return s, nil
}

// Close stops the device and drops every voice.
func (s *Speaker) Close() error {
	var err error
	s.once.Do(func() {
		if stopErr := s.stream.Stop(); stopErr != nil {
			err = stopErr
		}
		if closeErr := s.stream.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
		_ = s.Mixer.Close()
	})
	return err
}

var (
	_ capture.Microphone = Microphone{}
	_ playback.Output    = (*Speaker)(nil)
)
