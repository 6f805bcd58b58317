// Package device connects the capture pipeline and the playback mixer to
// real audio hardware through PortAudio. Hardware support is compiled in
// with the "portaudio" build tag; without it, Available is false and the
// constructors return ErrUnavailable.
package device

import (
	"errors"
	"sync"
	"time"

	"github.com/AltairaLabs/livevoice/playback"
)

// ErrUnavailable is returned when no audio backend is compiled in.
var ErrUnavailable = errors.New("device: audio hardware support not built (use -tags portaudio)")

// defaultPeriod is the render period of a VirtualSpeaker.
const defaultPeriod = 20 * time.Millisecond

// VirtualSpeaker is a playback.Output with no hardware behind it. A
// goroutine renders the mixer at wall-clock pace and discards the samples,
// so scheduled audio still starts, ends and reports completion on time.
type VirtualSpeaker struct {
	*playback.Mixer

	stop chan struct{}
	done chan struct{}
	once sync.Once
}

// NewVirtualSpeaker starts a virtual speaker at sampleRate, rendering every
// period. A non-positive period uses 20ms.
func NewVirtualSpeaker(sampleRate int, period time.Duration) *VirtualSpeaker {
	if period <= 0 {
		period = defaultPeriod
	}
	s := &VirtualSpeaker{
		Mixer: playback.NewMixer(sampleRate),
		stop:  make(chan struct{}),
		done:  make(chan struct{}),
	}
	go s.loop(period)
	return s
}

func (s *VirtualSpeaker) loop(period time.Duration) {
	defer close(s.done)

	frames := int(int64(s.SampleRate()) * int64(period) / int64(time.Second))
	buf := make([]float32, max(frames, 1))
	ticker := time.NewTicker(period)
	defer ticker.Stop()
	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			s.Render(buf)
		}
	}
}

// Close stops rendering and drops every voice.
func (s *VirtualSpeaker) Close() error {
	s.once.Do(func() { close(s.stop) })
	<-s.done
	return s.Mixer.Close()
}
