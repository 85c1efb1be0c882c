package enhance

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultsAreValid(t *testing.T) {
	require.NoError(t, Defaults().Validate())
}

func TestParsePipelineSpec(t *testing.T) {
	tests := []struct {
		name     string
		spec     string
		expected []StageName
		wantErr  error
	}{
		{
			name:     "full chain",
			spec:     "vad,refine,split",
			expected: []StageName{StageVad, StageRefine, StageSplit},
		},
		{
			name:     "reordered subset",
			spec:     "split,vad",
			expected: []StageName{StageSplit, StageVad},
		},
		{
			name:     "whitespace tolerated",
			spec:     " vad , split ",
			expected: []StageName{StageVad, StageSplit},
		},
		{
			name:    "unknown stage",
			spec:    "vad,denoise",
			wantErr: ErrUnknownStage,
		},
		{
			name:    "duplicate stage",
			spec:    "vad,vad",
			wantErr: ErrDuplicateStage,
		},
		{
			name:    "empty spec",
			spec:    "",
			wantErr: ErrEmptyPipeline,
		},
		{
			name:    "only separators",
			spec:    ", ,",
			wantErr: ErrEmptyPipeline,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stages, err := ParsePipelineSpec(tt.spec)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, stages)
		})
	}
}

func TestResolve_NoOverrideKeepsBase(t *testing.T) {
	base := Defaults()
	base.Vad.SileroThreshold = 0.7 // process-level default layered over built-ins

	resolved, err := Resolve(base, nil)
	require.NoError(t, err)
	assert.Equal(t, base, resolved)
}

func TestResolve_OverridePrecedence(t *testing.T) {
	base := Defaults()
	base.Vad.SileroThreshold = 0.7
	base.Split.MaxChars = 60

	override := []byte(`{"vad":{"silero_threshold":0.3},"split":{"enabled":false}}`)

	resolved, err := Resolve(base, override)
	require.NoError(t, err)

	// Overridden keys take the invocation value.
	assert.Equal(t, 0.3, resolved.Vad.SileroThreshold)
	assert.False(t, resolved.Split.Enabled)

	// Keys absent from the override keep the base value.
	assert.Equal(t, 60, resolved.Split.MaxChars)
	assert.Equal(t, base.Pipeline, resolved.Pipeline)
	assert.Equal(t, base.Vad.Engine, resolved.Vad.Engine)
}

func TestResolve_PipelineOverride(t *testing.T) {
	resolved, err := Resolve(Defaults(), []byte(`{"pipeline":"split"}`))
	require.NoError(t, err)
	assert.Equal(t, "split", resolved.Pipeline)
}

func TestResolve_RejectsUnknownKeys(t *testing.T) {
	tests := []struct {
		name     string
		override string
		key      string
	}{
		{
			name:     "unknown top-level key",
			override: `{"unknownOpt":1}`,
			key:      "unknownOpt",
		},
		{
			name:     "unknown nested key",
			override: `{"vad":{"unknownOpt":true}}`,
			key:      "vad.unknownOpt",
		},
		{
			name:     "known key in wrong section",
			override: `{"split":{"search_window_ms":100}}`,
			key:      "split.search_window_ms",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Resolve(Defaults(), []byte(tt.override))
			var cve *ConfigValidationError
			require.ErrorAs(t, err, &cve)
			assert.Equal(t, tt.key, cve.Key)
		})
	}
}

func TestResolve_RejectsOutOfRangeValues(t *testing.T) {
	tests := []struct {
		name     string
		override string
		key      string
	}{
		{
			name:     "threshold above one",
			override: `{"vad":{"silero_threshold":1.5}}`,
			key:      "vad.silero_threshold",
		},
		{
			name:     "negative aggressiveness",
			override: `{"vad":{"webrtc_aggressiveness":-1}}`,
			key:      "vad.webrtc_aggressiveness",
		},
		{
			name:     "zero max duration",
			override: `{"split":{"max_duration":0}}`,
			key:      "split.max_duration",
		},
		{
			name:     "unknown engine",
			override: `{"vad":{"engine":"whisper"}}`,
			key:      "vad.engine",
		},
		{
			name:     "unknown pipeline stage",
			override: `{"pipeline":"vad,magic"}`,
			key:      "pipeline",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Resolve(Defaults(), []byte(tt.override))
			var cve *ConfigValidationError
			require.ErrorAs(t, err, &cve)
			assert.Equal(t, tt.key, cve.Key)
		})
	}
}

func TestResolve_RejectsTypeMismatch(t *testing.T) {
	_, err := Resolve(Defaults(), []byte(`{"split":{"max_chars":"ten"}}`))
	var cve *ConfigValidationError
	require.ErrorAs(t, err, &cve)
	assert.Equal(t, "split.max_chars", cve.Key)
}

func TestResolve_RejectsMalformedJSON(t *testing.T) {
	_, err := Resolve(Defaults(), []byte(`{"vad":`))
	assert.True(t, IsConfigValidation(err))
}

func TestValidate_DisabledSkipsPipelineCheck(t *testing.T) {
	cfg := Defaults()
	cfg.Enabled = false
	cfg.Pipeline = ""
	assert.NoError(t, cfg.Validate())
}

func TestConfigValidationError_Message(t *testing.T) {
	err := &ConfigValidationError{Key: "vad.engine", Reason: "unrecognized option"}
	assert.Contains(t, err.Error(), `"vad.engine"`)

	var target *ConfigValidationError
	assert.True(t, errors.As(error(err), &target))
}
