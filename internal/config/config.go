// Package config provides configuration loading from environment variables.
package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/sethvargo/go-envconfig"

	"github.com/speechkit/transcribe-api/internal/enhance"
)

// Static errors for configuration validation.
var (
	// ErrASRBaseURLRequired is returned when ASR_ENGINE is "remote" but
	// ASR_BASE_URL is not set.
	ErrASRBaseURLRequired = errors.New("config: ASR_BASE_URL is required for the remote ASR engine")
	// ErrUnknownASREngine is returned when ASR_ENGINE is not a known engine.
	ErrUnknownASREngine = errors.New("config: ASR_ENGINE must be \"local\" or \"remote\"")
)

// Config holds all process-level configuration for the service.
type Config struct {
	// Server settings
	Port int `env:"PORT, default=8080" json:"port"`

	// ASR engine settings
	ASREngine  string `env:"ASR_ENGINE, default=local" json:"asr_engine"` // "local" or "remote"
	ASRCommand string `env:"ASR_COMMAND" json:"asr_command,omitempty"`
	ASRModel   string `env:"ASR_MODEL, default=small" json:"asr_model"`
	ASRBaseURL string `env:"ASR_BASE_URL" json:"asr_base_url,omitempty"`
	ASRAPIKey  string `env:"ASR_API_KEY" json:"-"` // Masked in JSON

	// Storage settings
	TempDir string `env:"TEMP_DIR, default=/tmp/transcribe" json:"temp_dir"`

	// Enhancement process defaults, layered over the built-in defaults and
	// under any per-request override.
	EnhanceEnabled  bool   `env:"ENHANCE_ENABLED, default=true" json:"enhance_enabled"`
	EnhancePipeline string `env:"ENHANCE_PIPELINE, default=vad,refine,split" json:"enhance_pipeline"`
	SileroModelPath string `env:"SILERO_MODEL_PATH" json:"silero_model_path,omitempty"`

	VadEnabled              bool    `env:"VAD_ENABLED, default=true" json:"vad_enabled"`
	VadEngine               string  `env:"VAD_ENGINE, default=auto" json:"vad_engine"`
	VadSileroThreshold      float64 `env:"VAD_SILERO_THRESHOLD, default=0.5" json:"vad_silero_threshold"`
	VadSileroMinSilenceMs   int     `env:"VAD_SILERO_MIN_SILENCE_MS, default=100" json:"vad_silero_min_silence_ms"`
	VadWebRTCAggressiveness int     `env:"VAD_WEBRTC_AGGRESSIVENESS, default=2" json:"vad_webrtc_aggressiveness"`
	VadWebRTCMinSpeechMs    int     `env:"VAD_WEBRTC_MIN_SPEECH_MS, default=200" json:"vad_webrtc_min_speech_ms"`
	VadWebRTCMaxSilenceMs   int     `env:"VAD_WEBRTC_MAX_SILENCE_MS, default=300" json:"vad_webrtc_max_silence_ms"`
	VadMinSilenceDuration   float64 `env:"VAD_MIN_SILENCE_DURATION, default=0.5" json:"vad_min_silence_duration"`

	RefineEnabled        bool `env:"REFINE_ENABLED, default=true" json:"refine_enabled"`
	RefineSearchWindowMs int  `env:"REFINE_SEARCH_WINDOW_MS, default=250" json:"refine_search_window_ms"`

	SplitEnabled         bool    `env:"SPLIT_ENABLED, default=true" json:"split_enabled"`
	SplitMaxDuration     float64 `env:"SPLIT_MAX_DURATION, default=10.0" json:"split_max_duration"`
	SplitMaxChars        int     `env:"SPLIT_MAX_CHARS, default=42" json:"split_max_chars"`
	SplitCharDurationSec float64 `env:"SPLIT_CHAR_DURATION_SEC, default=0.25" json:"split_char_duration_sec"`

	// Optional S3 settings for export uploads
	S3Bucket           string `env:"S3_BUCKET" json:"s3_bucket,omitempty"`
	S3Region           string `env:"S3_REGION" json:"s3_region,omitempty"`
	AWSAccessKeyID     string `env:"AWS_ACCESS_KEY_ID" json:"-"`     // Masked in JSON
	AWSSecretAccessKey string `env:"AWS_SECRET_ACCESS_KEY" json:"-"` // Masked in JSON

	// Logging settings
	LogFormat string `env:"LOG_FORMAT, default=text" json:"log_format"` // "json" or "text"
	LogLevel  string `env:"LOG_LEVEL, default=info" json:"log_level"`   // "debug", "info", "warn", "error"
}

// S3Enabled returns true if S3 configuration is provided.
func (c *Config) S3Enabled() bool {
	return c.S3Bucket != "" && c.S3Region != ""
}

// Load reads configuration from environment variables using go-envconfig.
func Load() (*Config, error) {
	cfg := &Config{}

	if err := envconfig.Process(context.Background(), cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks cross-field constraints envconfig cannot express. The
// enhancement values get their own range validation when they are resolved
// into an enhance.ResolvedConfig.
func (c *Config) Validate() error {
	switch c.ASREngine {
	case "local":
		// ASR_COMMAND is optional; the adapter falls back to PATH lookup.
	case "remote":
		if c.ASRBaseURL == "" {
			return ErrASRBaseURLRequired
		}
	default:
		return fmt.Errorf("%w, got %q", ErrUnknownASREngine, c.ASREngine)
	}
	return nil
}

// EnhanceDefaults builds the process-level enhancement configuration: the
// built-in defaults with every environment-provided value layered on top.
// Per-request overrides are resolved against this baseline.
func (c *Config) EnhanceDefaults() enhance.ResolvedConfig {
	cfg := enhance.Defaults()

	cfg.Enabled = c.EnhanceEnabled
	cfg.Pipeline = c.EnhancePipeline
	cfg.SileroModelPath = c.SileroModelPath

	cfg.Vad.Enabled = c.VadEnabled
	cfg.Vad.Engine = c.VadEngine
	cfg.Vad.SileroThreshold = c.VadSileroThreshold
	cfg.Vad.SileroMinSilenceMs = c.VadSileroMinSilenceMs
	cfg.Vad.WebRTCAggressiveness = c.VadWebRTCAggressiveness
	cfg.Vad.WebRTCMinSpeechMs = c.VadWebRTCMinSpeechMs
	cfg.Vad.WebRTCMaxSilenceMs = c.VadWebRTCMaxSilenceMs
	cfg.Vad.MinSilenceDuration = c.VadMinSilenceDuration

	cfg.Refine.Enabled = c.RefineEnabled
	cfg.Refine.SearchWindowMs = c.RefineSearchWindowMs

	cfg.Split.Enabled = c.SplitEnabled
	cfg.Split.MaxDuration = c.SplitMaxDuration
	cfg.Split.MaxChars = c.SplitMaxChars
	cfg.Split.CharDurationSec = c.SplitCharDurationSec

	return cfg
}

// NewLogger creates a structured logger based on the configuration.
// When LogFormat is "json", it outputs JSON logs suitable for production.
// Otherwise, it outputs human-readable text logs.
func (c *Config) NewLogger() *slog.Logger {
	level := parseLogLevel(c.LogLevel)

	var handler slog.Handler
	if strings.ToLower(c.LogFormat) == "json" {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: level,
		})
	} else {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
			Level: level,
		})
	}

	return slog.New(handler)
}

// String returns a string representation of the config with sensitive values masked.
func (c *Config) String() string {
	return fmt.Sprintf(
		"Config{Port: %d, ASREngine: %s, ASRModel: %s, TempDir: %s, EnhanceEnabled: %t, EnhancePipeline: %s, VadEngine: %s, S3Bucket: %s, LogFormat: %s, LogLevel: %s}",
		c.Port,
		c.ASREngine,
		c.ASRModel,
		c.TempDir,
		c.EnhanceEnabled,
		c.EnhancePipeline,
		c.VadEngine,
		c.S3Bucket,
		c.LogFormat,
		c.LogLevel,
	)
}

// parseLogLevel converts a string log level to slog.Level.
func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
