package config

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, "local", cfg.ASREngine)
	assert.Equal(t, "small", cfg.ASRModel)
	assert.Equal(t, "/tmp/transcribe", cfg.TempDir)
	assert.True(t, cfg.EnhanceEnabled)
	assert.Equal(t, "vad,refine,split", cfg.EnhancePipeline)
	assert.Equal(t, "auto", cfg.VadEngine)
	assert.Equal(t, "text", cfg.LogFormat)
	assert.False(t, cfg.S3Enabled())
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("VAD_SILERO_THRESHOLD", "0.8")
	t.Setenv("SPLIT_MAX_CHARS", "30")
	t.Setenv("ENHANCE_PIPELINE", "split")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Port)
	assert.Equal(t, 0.8, cfg.VadSileroThreshold)
	assert.Equal(t, 30, cfg.SplitMaxChars)
	assert.Equal(t, "split", cfg.EnhancePipeline)
}

func TestLoad_RemoteEngineRequiresBaseURL(t *testing.T) {
	t.Setenv("ASR_ENGINE", "remote")

	_, err := Load()
	assert.ErrorIs(t, err, ErrASRBaseURLRequired)

	t.Setenv("ASR_BASE_URL", "http://asr.internal:9000")
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "http://asr.internal:9000", cfg.ASRBaseURL)
}

func TestLoad_UnknownASREngine(t *testing.T) {
	t.Setenv("ASR_ENGINE", "cloud")

	_, err := Load()
	assert.ErrorIs(t, err, ErrUnknownASREngine)
}

func TestEnhanceDefaults_LayersEnvOverBuiltins(t *testing.T) {
	t.Setenv("VAD_ENGINE", "webrtc")
	t.Setenv("SPLIT_MAX_DURATION", "6.5")
	t.Setenv("SILERO_MODEL_PATH", "/models/silero_vad.onnx")
	t.Setenv("REFINE_ENABLED", "false")

	cfg, err := Load()
	require.NoError(t, err)

	base := cfg.EnhanceDefaults()
	require.NoError(t, base.Validate())

	assert.Equal(t, "webrtc", base.Vad.Engine)
	assert.Equal(t, 6.5, base.Split.MaxDuration)
	assert.Equal(t, "/models/silero_vad.onnx", base.SileroModelPath)
	assert.False(t, base.Refine.Enabled)

	// Untouched values keep the built-in defaults.
	assert.Equal(t, 0.5, base.Vad.SileroThreshold)
	assert.Equal(t, 42, base.Split.MaxChars)
}

func TestString_MasksSecrets(t *testing.T) {
	cfg := &Config{
		Port:               8080,
		ASRAPIKey:          "secret-key",
		AWSAccessKeyID:     "AKIA123",
		AWSSecretAccessKey: "secret",
	}

	out := cfg.String()
	assert.NotContains(t, out, "secret-key")
	assert.NotContains(t, out, "AKIA123")
	assert.NotContains(t, out, "secret")
}

func TestNewLogger_Formats(t *testing.T) {
	tests := []struct {
		name   string
		format string
		level  string
	}{
		{"json handler", "json", "debug"},
		{"text handler", "text", "warn"},
		{"unknown level falls back to info", "text", "verbose"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{LogFormat: tt.format, LogLevel: tt.level}
			logger := cfg.NewLogger()
			require.NotNil(t, logger)
		})
	}
}

func TestParseLogLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, parseLogLevel("debug"))
	assert.Equal(t, slog.LevelWarn, parseLogLevel("WARNING"))
	assert.Equal(t, slog.LevelError, parseLogLevel("error"))
	assert.Equal(t, slog.LevelInfo, parseLogLevel("anything"))
}
