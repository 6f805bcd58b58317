package transport

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AltairaLabs/livevoice/audio"
)

func kinds(events []Event) []string {
	out := make([]string, len(events))
	for i, e := range events {
		out[i] = e.Kind()
	}
	return out
}

func TestContent_EventsOrder(t *testing.T) {
	c := &Content{
		InputTranscript:  "hi",
		OutputTranscript: "hello",
		TurnComplete:     true,
		Interrupted:      true,
		Audio: []InlineAudio{
			{MIMEType: "audio/pcm;rate=24000", Data: audio.EncodeBytes([]byte{1, 2})},
			{MIMEType: "audio/pcm;rate=24000", Data: audio.EncodeBytes([]byte{3, 4})},
		},
	}

	events := c.Events()
	assert.Equal(t, []string{
		"input_transcript", "output_transcript", "turn_complete", "interrupted", "model_audio", "model_audio",
	}, kinds(events))

	assert.Equal(t, InputTranscript{Text: "hi"}, events[0])
	assert.Equal(t, OutputTranscript{Text: "hello"}, events[1])
	assert.Equal(t, []byte{1, 2}, events[4].(ModelAudio).Data)
	assert.Equal(t, []byte{3, 4}, events[5].(ModelAudio).Data)
	assert.Equal(t, "audio/pcm;rate=24000", events[4].(ModelAudio).MIMEType)
}

func TestContent_EventsSingleFields(t *testing.T) {
	tests := []struct {
		name string
		c    Content
		want []string
	}{
		{"empty", Content{}, nil},
		{"input only", Content{InputTranscript: "a"}, []string{"input_transcript"}},
		{"output only", Content{OutputTranscript: "b"}, []string{"output_transcript"}},
		{"turn complete", Content{TurnComplete: true}, []string{"turn_complete"}},
		{"interrupted", Content{Interrupted: true}, []string{"interrupted"}},
		{"empty audio part skipped", Content{Audio: []InlineAudio{{Data: ""}}}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.c.Events()
			if tt.want == nil {
				assert.Empty(t, got)
				return
			}
			assert.Equal(t, tt.want, kinds(got))
		})
	}
}

func TestContent_MalformedAudio(t *testing.T) {
	c := &Content{
		TurnComplete: true,
		Audio:        []InlineAudio{{Data: "@@not base64@@"}},
	}

	events := c.Events()
	require.Equal(t, []string{"turn_complete", "decode_failure"}, kinds(events))

	var decErr *audio.DecodeError
	assert.True(t, errors.As(events[1].(DecodeFailure).Err, &decErr))
}

func TestConfig_WithDefaults(t *testing.T) {
	cfg := Config{}.WithDefaults()
	assert.Equal(t, DefaultModel, cfg.Model)
	assert.Equal(t, DefaultVoice, cfg.Voice)
	assert.Equal(t, DefaultSendQueueSize, cfg.SendQueueSize)
	assert.Equal(t, 1, cfg.DialAttempts)

	custom := Config{Model: "m", Voice: "Kore", SendQueueSize: 3, DialAttempts: 4}.WithDefaults()
	assert.Equal(t, "m", custom.Model)
	assert.Equal(t, "Kore", custom.Voice)
	assert.Equal(t, 3, custom.SendQueueSize)
	assert.Equal(t, 4, custom.DialAttempts)
}

func TestError(t *testing.T) {
	inner := errors.New("boom")
	err := &Error{Op: "connect", Err: inner}
	assert.Equal(t, "transport connect: boom", err.Error())
	assert.ErrorIs(t, err, inner)
}

func TestContent_PreDecodedAudio(t *testing.T) {
	c := &Content{Audio: []InlineAudio{
		{MIMEType: "audio/pcm", PCM: []byte{9, 9}},
		{MIMEType: "audio/pcm", PCM: []byte{}},
	}}
	events := c.Events()
	require.Len(t, events, 1)
	assert.Equal(t, []byte{9, 9}, events[0].(ModelAudio).Data)
}
