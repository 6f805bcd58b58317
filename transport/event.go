package transport

import (
	"github.com/AltairaLabs/livevoice/audio"
)

// Event is one inbound occurrence on a session. The concrete types are
// InputTranscript, OutputTranscript, ModelAudio, TurnComplete, Interrupted
// and DecodeFailure.
type Event interface {
	Kind() string
	event()
}

// InputTranscript is a fragment of the user's transcribed speech.
type InputTranscript struct {
	Text string
}

// OutputTranscript is a fragment of the model's transcribed speech.
type OutputTranscript struct {
	Text string
}

// ModelAudio is one chunk of model speech as raw PCM16.
type ModelAudio struct {
	Data     []byte
	MIMEType string
}

// TurnComplete marks the end of the model's turn.
type TurnComplete struct{}

// Interrupted reports that the model stopped generating because the user
// started speaking. Audio already queued for playback is stale.
type Interrupted struct{}

// DecodeFailure reports an inbound payload that could not be decoded.
type DecodeFailure struct {
	Err error
}

func (InputTranscript) Kind() string  { return "input_transcript" }
func (OutputTranscript) Kind() string { return "output_transcript" }
func (ModelAudio) Kind() string       { return "model_audio" }
func (TurnComplete) Kind() string     { return "turn_complete" }
func (Interrupted) Kind() string      { return "interrupted" }
func (DecodeFailure) Kind() string    { return "decode_failure" }

func (InputTranscript) event()  {}
func (OutputTranscript) event() {}
func (ModelAudio) event()       {}
func (TurnComplete) event()     {}
func (Interrupted) event()      {}
func (DecodeFailure) event()    {}

// Content is the backend-neutral shape of one server content message.
type Content struct {
	InputTranscript  string
	OutputTranscript string
	TurnComplete     bool
	Interrupted      bool
	// Audio holds base64 payloads of inline audio parts, in part order.
	Audio []InlineAudio
}

// InlineAudio is one audio part. Backends whose SDK already decoded the
// payload set PCM; otherwise Data holds the base64 text.
type InlineAudio struct {
	MIMEType string
	Data     string
	PCM      []byte
}

// Events demultiplexes c into events. A single message may carry several
// fields; they are emitted as input transcript, output transcript, turn
// complete, interrupted, then audio. Interruption precedes audio so any
// audio bundled with it is scheduled after the stale queue is cleared.
// A payload that fails to decode becomes a DecodeFailure in its place.
func (c *Content) Events() []Event {
	var events []Event
	if c.InputTranscript != "" {
		events = append(events, InputTranscript{Text: c.InputTranscript})
	}
	if c.OutputTranscript != "" {
		events = append(events, OutputTranscript{Text: c.OutputTranscript})
	}
	if c.TurnComplete {
		events = append(events, TurnComplete{})
	}
	if c.Interrupted {
		events = append(events, Interrupted{})
	}
	for _, a := range c.Audio {
		if a.PCM != nil {
			if len(a.PCM) > 0 {
				events = append(events, ModelAudio{Data: a.PCM, MIMEType: a.MIMEType})
			}
			continue
		}
		if a.Data == "" {
			continue
		}
		pcm, err := audio.DecodeBytes(a.Data)
		if err != nil {
			events = append(events, DecodeFailure{Err: err})
			continue
		}
		events = append(events, ModelAudio{Data: pcm, MIMEType: a.MIMEType})
	}
	return events
}
