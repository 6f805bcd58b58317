// Package genailive implements the live voice transport on top of the
// Google Gen AI SDK's Live API client.
package genailive

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"

	"google.golang.org/genai"

	"github.com/AltairaLabs/livevoice/audio"
	"github.com/AltairaLabs/livevoice/internal/wsconn"
	"github.com/AltairaLabs/livevoice/logger"
	"github.com/AltairaLabs/livevoice/transport"
)

// Transport opens sessions through genai.Client.Live.
type Transport struct {
	cfg *genai.ClientConfig
}

// New creates a Transport for the Gemini API backend.
func New(apiKey string) *Transport {
	return &Transport{cfg: &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	}}
}

// NewWithConfig creates a Transport from a full SDK client configuration.
func NewWithConfig(cfg *genai.ClientConfig) *Transport {
	return &Transport{cfg: cfg}
}

// Name implements transport.Transport.
func (t *Transport) Name() string {
	return "genai"
}

// Open implements transport.Transport. The SDK dial runs in the background.
func (t *Transport) Open(ctx context.Context, cfg transport.Config, cb transport.Callbacks) (transport.Handle, error) {
	cfg = cfg.WithDefaults()

	sessionCtx, cancel := context.WithCancel(ctx)
	s := &session{
		cfg:      cfg,
		cb:       cb,
		cancel:   cancel,
		finished: make(chan struct{}),
	}
	s.queue = transport.NewSendQueue(cfg.SendQueueSize, s.write)

	go s.run(sessionCtx, t.cfg)
	return s, nil
}

type session struct {
	cfg    transport.Config
	cb     transport.Callbacks
	queue  *transport.SendQueue
	cancel context.CancelFunc

	mu   sync.Mutex
	live *genai.Session

	cbMu     sync.Mutex
	opened   atomic.Bool
	closed   atomic.Bool
	terminal atomic.Bool
	finished chan struct{}
}

func (s *session) run(ctx context.Context, clientCfg *genai.ClientConfig) {
	defer close(s.finished)

	client, err := genai.NewClient(ctx, clientCfg)
	if err != nil {
		s.fail("connect", err)
		return
	}

	live, err := client.Live.Connect(ctx, s.cfg.Model, ConnectConfig(&s.cfg))
	if err != nil {
		if !s.closed.Load() {
			s.fail("connect", err)
		}
		return
	}

	s.mu.Lock()
	if s.closed.Load() {
		s.mu.Unlock()
		_ = live.Close()
		return
	}
	s.live = live
	s.mu.Unlock()

	for {
		msg, err := live.Receive()
		if err != nil {
			switch {
			case s.closed.Load() || s.terminal.Load():
			case wsconn.IsNormalClose(err):
				s.remoteClose(wsconn.CloseReason(err))
			default:
				s.fail("receive", err)
			}
			return
		}
		s.handle(msg)
	}
}

func (s *session) handle(msg *genai.LiveServerMessage) {
	// The SDK may or may not surface setupComplete; any first message
	// proves the setup was accepted.
	if !s.opened.Load() {
		s.opened.Store(true)
		if err := s.queue.Open(); err != nil {
			s.fail("send", err)
			return
		}
		logger.Debug("genai: session open", "model", s.cfg.Model)
		s.emit(s.cb.OnOpen)
		if msg.SetupComplete != nil {
			return
		}
	}

	if msg.GoAway != nil {
		logger.Warn("genai: server is going away")
	}
	if s.cb.OnEvent == nil || msg.ServerContent == nil {
		return
	}
	for _, ev := range Content(msg.ServerContent).Events() {
		s.emit(func() { s.cb.OnEvent(ev) })
	}
}

// ConnectConfig maps session settings onto the SDK's live configuration.
func ConnectConfig(cfg *transport.Config) *genai.LiveConnectConfig {
	out := &genai.LiveConnectConfig{
		ResponseModalities: []genai.Modality{genai.ModalityAudio},
		SpeechConfig: &genai.SpeechConfig{
			VoiceConfig: &genai.VoiceConfig{
				PrebuiltVoiceConfig: &genai.PrebuiltVoiceConfig{VoiceName: cfg.Voice},
			},
		},
	}
	if cfg.InputTranscription {
		out.InputAudioTranscription = &genai.AudioTranscriptionConfig{}
	}
	if cfg.OutputTranscription {
		out.OutputAudioTranscription = &genai.AudioTranscriptionConfig{}
	}
	if cfg.SystemInstruction != "" {
		out.SystemInstruction = &genai.Content{
			Parts: []*genai.Part{{Text: cfg.SystemInstruction}},
		}
	}
	return out
}

// Content converts SDK server content into the backend-neutral shape.
func Content(c *genai.LiveServerContent) *transport.Content {
	out := &transport.Content{
		TurnComplete: c.TurnComplete,
		Interrupted:  c.Interrupted,
	}
	if c.InputTranscription != nil {
		out.InputTranscript = c.InputTranscription.Text
	}
	if c.OutputTranscription != nil {
		out.OutputTranscript = c.OutputTranscription.Text
	}
	if c.ModelTurn != nil {
		for _, p := range c.ModelTurn.Parts {
			if p == nil || p.InlineData == nil || !strings.HasPrefix(p.InlineData.MIMEType, "audio/") {
				continue
			}
			pcm := p.InlineData.Data
			if pcm == nil {
				pcm = []byte{}
			}
			out.Audio = append(out.Audio, transport.InlineAudio{
				MIMEType: p.InlineData.MIMEType,
				PCM:      pcm,
			})
		}
	}
	return out
}

func (s *session) write(b audio.Block) error {
	s.mu.Lock()
	live := s.live
	s.mu.Unlock()
	if live == nil {
		return transport.ErrClosed
	}
	return live.SendRealtimeInput(genai.LiveRealtimeInput{
		Audio: &genai.Blob{Data: b.Bytes(), MIMEType: b.Format().MIMEType()},
	})
}

func (s *session) emit(fn func()) {
	if fn == nil {
		return
	}
	s.cbMu.Lock()
	defer s.cbMu.Unlock()
	if s.closed.Load() {
		return
	}
	fn()
}

func (s *session) fail(op string, err error) {
	if s.terminal.Swap(true) {
		return
	}
	logger.Warn("genai: session failed", "op", op, "error", err)
	s.shutdown()
	if s.cb.OnError != nil {
		s.emit(func() { s.cb.OnError(&transport.Error{Op: op, Err: err}) })
	}
}

func (s *session) remoteClose(reason string) {
	if s.terminal.Swap(true) {
		return
	}
	logger.Info("genai: session closed by server", "reason", reason)
	s.shutdown()
	if s.cb.OnClose != nil {
		s.emit(func() { s.cb.OnClose(reason) })
	}
}

func (s *session) shutdown() {
	s.queue.Close()
	s.cancel()
	s.mu.Lock()
	live := s.live
	s.mu.Unlock()
	if live != nil {
		_ = live.Close()
	}
}

// Send implements transport.Handle.
func (s *session) Send(b audio.Block) error {
	if s.closed.Load() {
		return transport.ErrClosed
	}
	err := s.queue.Push(b)
	if err == nil || errors.Is(err, transport.ErrClosed) || errors.Is(err, transport.ErrSendQueueFull) {
		return err
	}
	return &transport.Error{Op: "send", Err: err}
}

// Close implements transport.Handle.
func (s *session) Close() error {
	s.mu.Lock()
	if s.closed.Swap(true) {
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()
	s.terminal.Store(true)
	s.shutdown()
	return nil
}
