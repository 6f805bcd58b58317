package main

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AltairaLabs/livevoice/audio"
	"github.com/AltairaLabs/livevoice/config"
	"github.com/AltairaLabs/livevoice/device"
	"github.com/AltairaLabs/livevoice/session"
	"github.com/AltairaLabs/livevoice/transport"
)

func TestGetVersionInfo(t *testing.T) {
	origVersion, origCommit, origDate := version, gitCommit, buildDate
	defer func() { version, gitCommit, buildDate = origVersion, origCommit, origDate }()

	version, gitCommit, buildDate = "v1.2.3", "abc123", "2026-01-02"
	info := GetVersionInfo()
	assert.Contains(t, info, "livevoice version v1.2.3")
	assert.Contains(t, info, "commit: abc123")
	assert.Contains(t, info, "built: 2026-01-02")
}

func TestVersionCommand(t *testing.T) {
	var out bytes.Buffer
	versionCmd.SetOut(&out)
	versionCmd.Run(versionCmd, nil)
	assert.True(t, strings.HasPrefix(out.String(), "livevoice version "))
}

func TestBuildTransport(t *testing.T) {
	cfg := config.Defaults()
	cfg.APIKey = "k"

	tr, err := buildTransport(&cfg)
	require.NoError(t, err)
	assert.Equal(t, "websocket", tr.Name())

	cfg.Backend = config.BackendGenAI
	cfg.Endpoint = "http://127.0.0.1:1/"
	tr, err = buildTransport(&cfg)
	require.NoError(t, err)
	assert.Equal(t, "genai", tr.Name())

	cfg.Backend = "carrier-pigeon"
	_, err = buildTransport(&cfg)
	assert.Error(t, err)
}

func TestBuildAudio_Fallback(t *testing.T) {
	if device.Available {
		t.Skip("hardware audio compiled in")
	}
	cfg := config.Defaults()
	mic, newOutput, closeAudio, err := buildAudio(&cfg)
	require.NoError(t, err)
	defer closeAudio()

	assert.NotNil(t, mic)
	out, err := newOutput()
	require.NoError(t, err)
	require.NoError(t, out.Close())
}

// fakeTransport opens immediately and reports the session closed by the
// server after a short delay.
type fakeTransport struct{}

func (fakeTransport) Name() string { return "fake" }

func (fakeTransport) Open(_ context.Context, _ transport.Config, cb transport.Callbacks) (transport.Handle, error) {
	go func() {
		cb.OnOpen()
		cb.OnEvent(transport.InputTranscript{Text: "hello"})
		cb.OnEvent(transport.OutputTranscript{Text: "hi there"})
		cb.OnEvent(transport.TurnComplete{})
		time.Sleep(20 * time.Millisecond)
		cb.OnClose("done")
	}()
	return nopHandle{}, nil
}

type nopHandle struct{}

func (nopHandle) Send(audio.Block) error { return nil }
func (nopHandle) Close() error           { return nil }

func TestRunHeadless(t *testing.T) {
	cfg := config.Defaults()
	mic, newOutput, closeAudio, err := buildAudio(&cfg)
	if err != nil || device.Available {
		t.Skip("needs the fallback audio devices")
	}
	defer closeAudio()

	ctrl := session.New(fakeTransport{}, mic, newOutput, session.WithBlockSize(160))

	var out bytes.Buffer
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, runHeadless(ctx, &out, ctrl))

	text := out.String()
	assert.Contains(t, text, "You: hello")
	assert.Contains(t, text, "Gemini: hi there")
	assert.Contains(t, text, session.StatusServerClose)
	assert.Equal(t, session.Closed, ctrl.State())
}
