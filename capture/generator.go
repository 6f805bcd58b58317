package capture

import (
	"context"
	"errors"
	"math"
	"sync"
	"time"

	"github.com/AltairaLabs/livevoice/audio"
)

// ErrStreamClosed is returned by Read on a closed generated stream.
var ErrStreamClosed = errors.New("capture: stream closed")

// Generator is a Microphone that synthesizes a sine tone. With Realtime
// set, each Read waits for one block's worth of wall-clock time, so it can
// stand in for a device when none is available.
type Generator struct {
	Frequency float64
	Amplitude float64
	Realtime  bool
}

// Open implements Microphone.
func (g Generator) Open(_ context.Context, format audio.Format, framesPerBlock int) (InputStream, error) {
	s := &toneStream{
		gen:    g,
		format: format,
		closed: make(chan struct{}),
	}
	if g.Realtime {
		s.ticker = time.NewTicker(audio.FramesToDuration(framesPerBlock, format.SampleRate))
	}
	return s, nil
}

type toneStream struct {
	gen    Generator
	format audio.Format
	ticker *time.Ticker
	phase  float64

	once   sync.Once
	closed chan struct{}
}

func (s *toneStream) Read(dst []float32) error {
	if s.ticker != nil {
		select {
		case <-s.closed:
			return ErrStreamClosed
		case <-s.ticker.C:
		}
	} else {
		select {
		case <-s.closed:
			return ErrStreamClosed
		default:
		}
	}

	channels := max(s.format.Channels, 1)
	step := 2 * math.Pi * s.gen.Frequency / float64(s.format.SampleRate)
	for i := 0; i < len(dst)/channels; i++ {
		v := float32(s.gen.Amplitude * math.Sin(s.phase))
		for ch := 0; ch < channels; ch++ {
			dst[i*channels+ch] = v
		}
		s.phase += step
	}
	s.phase = math.Mod(s.phase, 2*math.Pi)
	return nil
}

func (s *toneStream) Close() error {
	s.once.Do(func() {
		close(s.closed)
		if s.ticker != nil {
			s.ticker.Stop()
		}
	})
	return nil
}
