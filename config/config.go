// Package config loads livevoice settings from a YAML file, LIVEVOICE_*
// environment variables, a .env file and command-line flags.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/AltairaLabs/livevoice/audio"
	"github.com/AltairaLabs/livevoice/transport"
)

// Backend names.
const (
	BackendWebSocket = "websocket"
	BackendGenAI     = "genai"
)

// EnvPrefix is the prefix for environment overrides, e.g. LIVEVOICE_VOICE.
const EnvPrefix = "LIVEVOICE"

// API key fallbacks, checked in order when api_key is unset.
var apiKeyEnvVars = []string{"GEMINI_API_KEY", "GOOGLE_API_KEY"}

// ErrMissingAPIKey is returned by Validate when no key is configured.
var ErrMissingAPIKey = errors.New("config: api key not set (api_key, GEMINI_API_KEY or GOOGLE_API_KEY)")

// Config is the full set of runtime settings.
type Config struct {
	Model             string `yaml:"model" mapstructure:"model"`
	Voice             string `yaml:"voice" mapstructure:"voice"`
	SystemInstruction string `yaml:"system_instruction" mapstructure:"system_instruction"`
	APIKey            string `yaml:"api_key" mapstructure:"api_key"`

	Backend  string `yaml:"backend" mapstructure:"backend"`
	Endpoint string `yaml:"endpoint,omitempty" mapstructure:"endpoint"`

	InputTranscription  bool `yaml:"input_transcription" mapstructure:"input_transcription"`
	OutputTranscription bool `yaml:"output_transcription" mapstructure:"output_transcription"`

	ConnectTimeout time.Duration `yaml:"connect_timeout" mapstructure:"connect_timeout"`
	DialAttempts   int           `yaml:"dial_attempts" mapstructure:"dial_attempts"`

	Capture   CaptureConfig   `yaml:"capture" mapstructure:"capture"`
	Playback  PlaybackConfig  `yaml:"playback" mapstructure:"playback"`
	Metrics   MetricsConfig   `yaml:"metrics" mapstructure:"metrics"`
	Telemetry TelemetryConfig `yaml:"telemetry" mapstructure:"telemetry"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// CaptureConfig controls microphone capture.
type CaptureConfig struct {
	BlockSize int `yaml:"block_size" mapstructure:"block_size"`
}

// PlaybackConfig controls speaker output.
type PlaybackConfig struct {
	SampleRate int `yaml:"sample_rate" mapstructure:"sample_rate"`
}

// MetricsConfig controls the Prometheus endpoint. An empty Addr disables it.
type MetricsConfig struct {
	Addr string `yaml:"addr" mapstructure:"addr"`
}

// TelemetryConfig controls OTLP trace export. An empty endpoint disables it.
type TelemetryConfig struct {
	OTLPEndpoint string  `yaml:"otlp_endpoint" mapstructure:"otlp_endpoint"`
	SampleRatio  float64 `yaml:"sample_ratio" mapstructure:"sample_ratio"`
}

// LogConfig controls logging. File, when set, receives log output.
type LogConfig struct {
	Level string `yaml:"level" mapstructure:"level"`
	File  string `yaml:"file" mapstructure:"file"`
}

// Defaults returns the built-in configuration.
func Defaults() Config {
	return Config{
		Model:               transport.DefaultModel,
		Voice:               transport.DefaultVoice,
		SystemInstruction:   "You are a friendly voice assistant. Keep answers short.",
		Backend:             BackendWebSocket,
		InputTranscription:  true,
		OutputTranscription: true,
		DialAttempts:        1,
		Capture:             CaptureConfig{BlockSize: audio.BlockSize},
		Playback:            PlaybackConfig{SampleRate: audio.PlaybackSampleRate},
		Telemetry:           TelemetryConfig{SampleRatio: 1},
		Log:                 LogConfig{Level: "info"},
	}
}

// SetDefaults registers every key with v so environment overrides are seen
// by Unmarshal.
func SetDefaults(v *viper.Viper) {
	d := Defaults()
	v.SetDefault("model", d.Model)
	v.SetDefault("voice", d.Voice)
	v.SetDefault("system_instruction", d.SystemInstruction)
	v.SetDefault("api_key", "")
	v.SetDefault("backend", d.Backend)
	v.SetDefault("endpoint", "")
	v.SetDefault("input_transcription", d.InputTranscription)
	v.SetDefault("output_transcription", d.OutputTranscription)
	v.SetDefault("connect_timeout", d.ConnectTimeout)
	v.SetDefault("dial_attempts", d.DialAttempts)
	v.SetDefault("capture.block_size", d.Capture.BlockSize)
	v.SetDefault("playback.sample_rate", d.Playback.SampleRate)
	v.SetDefault("metrics.addr", "")
	v.SetDefault("telemetry.otlp_endpoint", "")
	v.SetDefault("telemetry.sample_ratio", d.Telemetry.SampleRatio)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.file", "")
}

// Load reads configuration into a Config. path may be empty, in which case
// only defaults, environment and any flags already bound to v apply. A .env
// file in the working directory is loaded first when present.
func Load(v *viper.Viper, path string) (*Config, error) {
	if err := loadDotEnv(".env"); err != nil {
		return nil, err
	}

	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	cfg.applyAPIKeyFallback()
	return &cfg, nil
}

// LoadFile strictly decodes a YAML file on top of Defaults. Unknown keys are
// rejected.
func LoadFile(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	defer f.Close()

	cfg := Defaults()
	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	cfg.applyAPIKeyFallback()
	return &cfg, nil
}

func loadDotEnv(path string) error {
	if _, err := os.Stat(path); err != nil {
		return nil
	}
	// Existing environment wins over the file.
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyAPIKeyFallback() {
	if c.APIKey != "" {
		return
	}
	for _, name := range apiKeyEnvVars {
		if key := os.Getenv(name); key != "" {
			c.APIKey = key
			return
		}
	}
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	if c.APIKey == "" {
		return ErrMissingAPIKey
	}
	switch c.Backend {
	case BackendWebSocket, BackendGenAI:
	default:
		return fmt.Errorf("config: unknown backend %q (want %s or %s)", c.Backend, BackendWebSocket, BackendGenAI)
	}
	if c.Model == "" {
		return errors.New("config: model must not be empty")
	}
	if c.DialAttempts < 0 {
		return fmt.Errorf("config: dial_attempts must be >= 0, got %d", c.DialAttempts)
	}
	if c.ConnectTimeout < 0 {
		return fmt.Errorf("config: connect_timeout must be >= 0, got %s", c.ConnectTimeout)
	}
	if c.Capture.BlockSize <= 0 {
		return fmt.Errorf("config: capture.block_size must be > 0, got %d", c.Capture.BlockSize)
	}
	if c.Telemetry.SampleRatio < 0 || c.Telemetry.SampleRatio > 1 {
		return fmt.Errorf("config: telemetry.sample_ratio must be within [0,1], got %g", c.Telemetry.SampleRatio)
	}
	// The speaker mixes at its own rate and does not resample model audio.
	if c.Playback.SampleRate != audio.PlaybackSampleRate {
		return fmt.Errorf("config: playback.sample_rate must be %d, got %d",
			audio.PlaybackSampleRate, c.Playback.SampleRate)
	}
	return nil
}

// TransportConfig maps the session settings onto a transport.Config.
func (c *Config) TransportConfig() transport.Config {
	return transport.Config{
		Model:               c.Model,
		Voice:               c.Voice,
		SystemInstruction:   c.SystemInstruction,
		InputTranscription:  c.InputTranscription,
		OutputTranscription: c.OutputTranscription,
		DialAttempts:        c.DialAttempts,
	}.WithDefaults()
}

// Redacted returns a copy safe to log.
func (c Config) Redacted() Config {
	if c.APIKey != "" {
		c.APIKey = "[REDACTED]"
	}
	return c
}
