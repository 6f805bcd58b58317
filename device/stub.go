//go:build !portaudio

package device

import (
	"context"

	"github.com/AltairaLabs/livevoice/audio"
	"github.com/AltairaLabs/livevoice/capture"
	"github.com/AltairaLabs/livevoice/playback"
)

// Available reports whether hardware audio is compiled in.
const Available = false

// Init is a no-op without hardware support.
func Init() (func(), error) {
	return func() {}, nil
}

// Microphone reports ErrUnavailable without hardware support.
type Microphone struct{}

// Open implements capture.Microphone.
func (Microphone) Open(context.Context, audio.Format, int) (capture.InputStream, error) {
	return nil, ErrUnavailable
}

// Speaker is unavailable without hardware support.
type Speaker struct {
	*playback.Mixer
}

// NewSpeaker returns ErrUnavailable.
func NewSpeaker(int) (*Speaker, error) {
	return nil, ErrUnavailable
}
