package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// ServerConfig stores the HTTP ingress / signaling listener settings.
type ServerConfig struct {
	ListenAddr        string        `yaml:"listen_addr"`
	ReadHeaderTimeout time.Duration `yaml:"read_header_timeout"`
	MaxChunkBytes     int64         `yaml:"max_chunk_bytes"`
}

// BridgeConfig stores the per-call pipeline settings.
type BridgeConfig struct {
	InboundQueueSize      int           `yaml:"inbound_queue_size"`
	OutboundQueueSize     int           `yaml:"outbound_queue_size"`
	MaxConcurrentSessions int           `yaml:"max_concurrent_sessions"`
	AGCTargetRMS          float64       `yaml:"agc_target_rms"`
	AGCMaxGain            float64       `yaml:"agc_max_gain"`
	TeardownTimeout       time.Duration `yaml:"teardown_timeout"`
	InactivityTimeout     time.Duration `yaml:"inactivity_timeout"`
}

// RTPConfig stores the outbound RTP settings.
type RTPConfig struct {
	LocalAddr     string        `yaml:"local_addr"`
	FrameInterval time.Duration `yaml:"frame_interval"`
	FrameBytes    int           `yaml:"frame_bytes"`
	PayloadType   uint8         `yaml:"payload_type"`
	SSRC          uint32        `yaml:"ssrc"`
}

// RealtimeConfig stores OpenAI Realtime specific configurations.
type RealtimeConfig struct {
	APIKey                  string `yaml:"api_key"`
	BaseURL                 string `yaml:"base_url"`
	Model                   string `yaml:"model"`
	Voice                   string `yaml:"voice"`
	Instructions            string `yaml:"instructions"`
	InputSampleRate         int    `yaml:"input_sample_rate"`
	OutputSampleRate        int    `yaml:"output_sample_rate"`
	InputAudioTranscription bool   `yaml:"input_audio_transcription"`
	TurnDetection           string `yaml:"turn_detection"` // "server_vad" or "none"
	GreetOnConnect          bool   `yaml:"greet_on_connect"`
	PricingFile             string `yaml:"pricing_file"`
	APIBaseURL              string `yaml:"api_base_url"` // REST endpoint for the startup model check
	VerifyModel             bool   `yaml:"verify_model"`
}

// Config stores the application configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Bridge   BridgeConfig   `yaml:"bridge"`
	RTP      RTPConfig      `yaml:"rtp"`
	Realtime RealtimeConfig `yaml:"realtime"`
	LogLevel string         `yaml:"log_level"`
}

// Defaults mirror the telephony side: 20 ms PCMU frames at 8 kHz.
const (
	DefaultListenAddr            = ":8000"
	DefaultReadHeaderTimeout     = 10 * time.Second
	DefaultMaxChunkBytes         = 1 << 20
	DefaultInboundQueueSize      = 800 // ~16 s of 20 ms chunks
	DefaultOutboundQueueSize     = 400 // ~8 s of 20 ms frames
	DefaultMaxConcurrentSessions = 64
	DefaultAGCTargetRMS          = 2500
	MaxAGCGain                   = 4.0
	DefaultTeardownTimeout       = 5 * time.Second
	DefaultFrameInterval         = 20 * time.Millisecond
	DefaultFrameBytes            = 160
	DefaultModel                 = "gpt-4o-realtime-preview-2025-06-03"
	DefaultVoice                 = "shimmer"
	DefaultInstructions          = "You are a helpful assistant in a call center. Respond clearly and concisely in English."
	DefaultRealtimeSampleRate    = 24000
	DefaultTurnDetection         = "server_vad"
)

// Environment overrides applied after the YAML file.
const (
	EnvAPIKey     = "OPENAI_API_KEY"
	EnvListenAddr = "BRIDGE_LISTEN_ADDR"
	EnvLogLevel   = "LOG_LEVEL"
)

// LoadConfig loads the configuration from the given file path. A .env file in
// the working directory, when present, is loaded into the environment first.
func LoadConfig(filePath string) (*Config, error) {
	_ = godotenv.Load()

	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, err
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("config %s: %w", filePath, err)
	}

	return cfg, nil
}

// Parse decodes YAML, applies environment overrides and defaults, then
// validates the result.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	cfg.applyEnv()
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv(EnvAPIKey); v != "" {
		c.Realtime.APIKey = v
	}
	if v := os.Getenv(EnvListenAddr); v != "" {
		c.Server.ListenAddr = v
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		c.LogLevel = v
	}
}

func (c *Config) applyDefaults() {
	if c.Server.ListenAddr == "" {
		c.Server.ListenAddr = DefaultListenAddr
	}
	if c.Server.ReadHeaderTimeout <= 0 {
		c.Server.ReadHeaderTimeout = DefaultReadHeaderTimeout
	}
	if c.Server.MaxChunkBytes <= 0 {
		c.Server.MaxChunkBytes = DefaultMaxChunkBytes
	}

	if c.Bridge.InboundQueueSize <= 0 {
		c.Bridge.InboundQueueSize = DefaultInboundQueueSize
	}
	if c.Bridge.OutboundQueueSize <= 0 {
		c.Bridge.OutboundQueueSize = DefaultOutboundQueueSize
	}
	if c.Bridge.MaxConcurrentSessions <= 0 {
		c.Bridge.MaxConcurrentSessions = DefaultMaxConcurrentSessions
	}
	if c.Bridge.AGCTargetRMS <= 0 {
		c.Bridge.AGCTargetRMS = DefaultAGCTargetRMS
	}
	// The ceiling may be lowered but never raised.
	if c.Bridge.AGCMaxGain <= 0 || c.Bridge.AGCMaxGain > MaxAGCGain {
		c.Bridge.AGCMaxGain = MaxAGCGain
	}
	if c.Bridge.TeardownTimeout <= 0 {
		c.Bridge.TeardownTimeout = DefaultTeardownTimeout
	}

	if c.RTP.FrameInterval <= 0 {
		c.RTP.FrameInterval = DefaultFrameInterval
	}
	if c.RTP.FrameBytes <= 0 {
		c.RTP.FrameBytes = DefaultFrameBytes
	}

	if c.Realtime.Model == "" {
		c.Realtime.Model = DefaultModel
	}
	if c.Realtime.Voice == "" {
		c.Realtime.Voice = DefaultVoice
	}
	if c.Realtime.Instructions == "" {
		c.Realtime.Instructions = DefaultInstructions
	}
	if c.Realtime.TurnDetection == "" {
		c.Realtime.TurnDetection = DefaultTurnDetection
	}
	if c.Realtime.InputSampleRate <= 0 {
		c.Realtime.InputSampleRate = DefaultRealtimeSampleRate
	}
	if c.Realtime.OutputSampleRate <= 0 {
		c.Realtime.OutputSampleRate = DefaultRealtimeSampleRate
	}

	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
}

// Validate reports configuration values that cannot be defaulted.
func (c *Config) Validate() error {
	var errs []error

	if c.Realtime.APIKey == "" {
		errs = append(errs, fmt.Errorf("realtime.api_key is not set (or export %s)", EnvAPIKey))
	}
	if c.RTP.PayloadType > 127 {
		errs = append(errs, fmt.Errorf("rtp.payload_type %d out of range", c.RTP.PayloadType))
	}
	if c.Bridge.TeardownTimeout < c.RTP.FrameInterval {
		errs = append(errs, errors.New("bridge.teardown_timeout must be at least one rtp.frame_interval"))
	}
	switch c.Realtime.TurnDetection {
	case "server_vad", "none":
	default:
		errs = append(errs, fmt.Errorf("unknown realtime.turn_detection %q", c.Realtime.TurnDetection))
	}

	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("unknown log_level %q", c.LogLevel))
	}

	return errors.Join(errs...)
}
