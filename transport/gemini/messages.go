package gemini

import (
	"strings"

	"github.com/AltairaLabs/livevoice/transport"
)

// ServerMessage is one inbound frame of the BidiGenerateContent protocol.
type ServerMessage struct {
	SetupComplete *SetupComplete `json:"setupComplete,omitempty"`
	ServerContent *ServerContent `json:"serverContent,omitempty"`
	GoAway        *GoAway        `json:"goAway,omitempty"`
	UsageMetadata *UsageMetadata `json:"usageMetadata,omitempty"`
}

// SetupComplete acknowledges the setup message.
type SetupComplete struct{}

// GoAway warns that the server will close the connection soon.
type GoAway struct {
	TimeLeft string `json:"timeLeft,omitempty"`
}

// UsageMetadata reports token accounting for the session so far.
type UsageMetadata struct {
	PromptTokenCount   int `json:"promptTokenCount,omitempty"`
	ResponseTokenCount int `json:"responseTokenCount,omitempty"`
	TotalTokenCount    int `json:"totalTokenCount,omitempty"`
}

// ServerContent carries model output and turn signals.
type ServerContent struct {
	ModelTurn           *ModelTurn     `json:"modelTurn,omitempty"`
	TurnComplete        bool           `json:"turnComplete,omitempty"`
	GenerationComplete  bool           `json:"generationComplete,omitempty"`
	Interrupted         bool           `json:"interrupted,omitempty"`
	InputTranscription  *Transcription `json:"inputTranscription,omitempty"`  // User speech transcription
	OutputTranscription *Transcription `json:"outputTranscription,omitempty"` // Model speech transcription
}

// Transcription is a fragment of transcribed speech.
type Transcription struct {
	Text string `json:"text,omitempty"`
}

// ModelTurn is the model's content for the current turn.
type ModelTurn struct {
	Parts []Part `json:"parts,omitempty"`
}

// Part is a piece of model content.
type Part struct {
	Text       string      `json:"text,omitempty"`
	InlineData *InlineData `json:"inlineData,omitempty"` // camelCase!
}

// InlineData represents inline media data
type InlineData struct {
	MimeType string `json:"mimeType,omitempty"` // camelCase!
	Data     string `json:"data,omitempty"`     // Base64 encoded
}

// Content converts the protocol shape into the backend-neutral one. Only
// audio parts are kept; text parts are not spoken.
func (c *ServerContent) Content() *transport.Content {
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
			if p.InlineData == nil || !strings.HasPrefix(p.InlineData.MimeType, "audio/") {
				continue
			}
			out.Audio = append(out.Audio, transport.InlineAudio{
				MIMEType: p.InlineData.MimeType,
				Data:     p.InlineData.Data,
			})
		}
	}
	return out
}

// Demux splits one server message into session events, in the order
// defined by transport.Content.Events.
func Demux(msg *ServerMessage) []transport.Event {
	if msg == nil || msg.ServerContent == nil {
		return nil
	}
	return msg.ServerContent.Content().Events()
}

// buildSetupMessage constructs the initial setup message for the Live API.
func buildSetupMessage(cfg *transport.Config) map[string]interface{} {
	setupContent := map[string]interface{}{
		"model": getModelPath(cfg.Model),
		"generationConfig": map[string]interface{}{
			"responseModalities": []string{"AUDIO"},
			"speechConfig": map[string]interface{}{
				"voiceConfig": map[string]interface{}{
					"prebuiltVoiceConfig": map[string]interface{}{
						"voiceName": cfg.Voice,
					},
				},
			},
		},
	}

	if cfg.InputTranscription {
		setupContent["inputAudioTranscription"] = map[string]interface{}{}
	}
	if cfg.OutputTranscription {
		setupContent["outputAudioTranscription"] = map[string]interface{}{}
	}
	if cfg.SystemInstruction != "" {
		setupContent["systemInstruction"] = map[string]interface{}{
			"parts": []map[string]interface{}{
				{"text": cfg.SystemInstruction},
			},
		}
	}

	return map[string]interface{}{
		"setup": setupContent,
	}
}

// getModelPath ensures model is in correct format: models/{model}
func getModelPath(model string) string {
	if model == "" {
		model = transport.DefaultModel
	}
	if !strings.HasPrefix(model, "models/") {
		return "models/" + model
	}
	return model
}

// buildAudioMessage wraps one base64 PCM block as realtime input.
func buildAudioMessage(mimeType, data string) map[string]interface{} {
	return map[string]interface{}{
		"realtimeInput": map[string]interface{}{
			"audio": map[string]interface{}{
				"mimeType": mimeType,
				"data":     data,
			},
		},
	}
}
