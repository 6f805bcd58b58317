package genailive

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"

	"github.com/AltairaLabs/livevoice/audio"
	"github.com/AltairaLabs/livevoice/transport"
)

func TestConnectConfig(t *testing.T) {
	cfg := transport.Config{
		Voice:               "Kore",
		SystemInstruction:   "be brief",
		InputTranscription:  true,
		OutputTranscription: true,
	}

	out := ConnectConfig(&cfg)
	assert.Equal(t, []genai.Modality{genai.ModalityAudio}, out.ResponseModalities)
	assert.Equal(t, "Kore", out.SpeechConfig.VoiceConfig.PrebuiltVoiceConfig.VoiceName)
	assert.NotNil(t, out.InputAudioTranscription)
	assert.NotNil(t, out.OutputAudioTranscription)
	require.NotNil(t, out.SystemInstruction)
	assert.Equal(t, "be brief", out.SystemInstruction.Parts[0].Text)

	bare := ConnectConfig(&transport.Config{Voice: "Puck"})
	assert.Nil(t, bare.InputAudioTranscription)
	assert.Nil(t, bare.OutputAudioTranscription)
	assert.Nil(t, bare.SystemInstruction)
}

func TestContent_Ordering(t *testing.T) {
	pcm := audio.Int16ToPCM([]int16{5, 6})
	c := &genai.LiveServerContent{
		InputTranscription:  &genai.Transcription{Text: "you"},
		OutputTranscription: &genai.Transcription{Text: "me"},
		Interrupted:         true,
		TurnComplete:        true,
		ModelTurn: &genai.Content{Parts: []*genai.Part{
			{Text: "not audio"},
			nil,
			{InlineData: &genai.Blob{MIMEType: "image/png", Data: []byte{1}}},
			{InlineData: &genai.Blob{MIMEType: "audio/pcm;rate=24000", Data: pcm}},
		}},
	}

	events := Content(c).Events()
	require.Len(t, events, 5)
	assert.Equal(t, transport.InputTranscript{Text: "you"}, events[0])
	assert.Equal(t, transport.OutputTranscript{Text: "me"}, events[1])
	assert.Equal(t, transport.TurnComplete{}, events[2])
	assert.Equal(t, transport.Interrupted{}, events[3])
	assert.Equal(t, pcm, events[4].(transport.ModelAudio).Data)
}

func TestContent_Empty(t *testing.T) {
	assert.Empty(t, Content(&genai.LiveServerContent{}).Events())
}

func TestOpen_ConnectFailureIsError(t *testing.T) {
	errCh := make(chan error, 1)
	tr := NewWithConfig(&genai.ClientConfig{
		APIKey:      "k",
		Backend:     genai.BackendGeminiAPI,
		HTTPOptions: genai.HTTPOptions{BaseURL: "http://127.0.0.1:1/"},
	})
	h, err := tr.Open(context.Background(), transport.Config{}, transport.Callbacks{
		OnError: func(err error) { errCh <- err },
	})
	require.NoError(t, err)
	defer h.Close()

	select {
	case err := <-errCh:
		var te *transport.Error
		require.ErrorAs(t, err, &te)
		assert.Equal(t, "connect", te.Op)
	case <-time.After(5 * time.Second):
		t.Fatal("expected connect error")
	}
}

func TestClose_Idempotent(t *testing.T) {
	tr := NewWithConfig(&genai.ClientConfig{
		APIKey:      "k",
		Backend:     genai.BackendGeminiAPI,
		HTTPOptions: genai.HTTPOptions{BaseURL: "http://127.0.0.1:1/"},
	})
	h, err := tr.Open(context.Background(), transport.Config{}, transport.Callbacks{})
	require.NoError(t, err)

	require.NoError(t, h.Close())
	require.NoError(t, h.Close())
	assert.ErrorIs(t, h.Send(audio.NewBlock(1, audio.CaptureFormat, []byte{0, 0})), transport.ErrClosed)
	assert.Equal(t, "genai", tr.Name())
}
