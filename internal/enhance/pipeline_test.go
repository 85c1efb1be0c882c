package enhance

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/speechkit/transcribe-api/internal/segment"
)

func TestPipeline_DisabledIsIdentity(t *testing.T) {
	cfg := Defaults()
	cfg.Enabled = false

	p, err := NewFactory(discardLogger()).Build(cfg)
	require.NoError(t, err)

	in := []segment.Segment{
		{Start: 0, End: 30, Text: "a segment the splitter would normally break. twice over, in fact."},
	}

	out, meta, err := p.Run(context.Background(), in, nil)
	require.NoError(t, err)
	assert.Equal(t, in, out)
	assert.False(t, meta.Enabled)
	assert.Empty(t, meta.Stages)
}

func TestFactory_BuildRejectsBadSpec(t *testing.T) {
	cfg := Defaults()
	cfg.Pipeline = "vad,denoise"

	_, err := NewFactory(discardLogger()).Build(cfg)
	assert.ErrorIs(t, err, ErrUnknownStage)

	// The failure carries the typed validation error naming the key, like
	// every other configuration rejection.
	var cve *ConfigValidationError
	require.ErrorAs(t, err, &cve)
	assert.Equal(t, "pipeline", cve.Key)
}

func TestFactory_BuildRejectsEmptySpecWhileEnabled(t *testing.T) {
	cfg := Defaults()
	cfg.Pipeline = "  "

	_, err := NewFactory(discardLogger()).Build(cfg)
	assert.ErrorIs(t, err, ErrEmptyPipeline)

	var cve *ConfigValidationError
	require.ErrorAs(t, err, &cve)
	assert.Equal(t, "pipeline", cve.Key)
}

func TestPipeline_DegradesWhenEngineUnavailable(t *testing.T) {
	cfg := Defaults()
	cfg.Pipeline = "vad,refine"
	cfg.Vad.Engine = "silero"
	cfg.SileroModelPath = filepath.Join(t.TempDir(), "missing.onnx")

	p, err := NewFactory(discardLogger()).Build(cfg)
	require.NoError(t, err)

	in := []segment.Segment{
		{Start: 0, End: 2, Text: "hello"},
		{Start: 3, End: 5, Text: "world"},
	}

	ac := &AudioContext{Samples: make([]int16, 16000), SampleRate: 16000, Duration: 1}

	out, meta, err := p.Run(context.Background(), in, ac)
	require.NoError(t, err)

	// Both stages pass the input through untouched and flag the degradation.
	assert.Equal(t, in, out)
	require.Len(t, meta.Stages, 2)
	for _, run := range meta.Stages {
		assert.True(t, run.Degraded)
		assert.Contains(t, run.Reason, "voice activity detection unavailable")
	}
}

func TestPipeline_VadDropsAndClampsAgainstRealDetection(t *testing.T) {
	modelPath := filepath.Join(t.TempDir(), "silero_vad.onnx")
	require.NoError(t, os.WriteFile(modelPath, []byte("model"), 0644))

	cfg := Defaults()
	cfg.Pipeline = "vad"
	cfg.Vad.Engine = "silero"
	cfg.SileroModelPath = modelPath

	p, err := NewFactory(discardLogger()).Build(cfg)
	require.NoError(t, err)

	// One second of speech, two of silence, one of speech.
	const rate = 16000
	samples := synthAudio(rate,
		[2]float64{1.0, 9000},
		[2]float64{2.0, 0},
		[2]float64{1.0, 9000},
	)
	ac := &AudioContext{Samples: samples, SampleRate: rate, Duration: 4}

	in := []segment.Segment{
		{Start: 0.2, End: 0.9, Text: "hello there"},
		{Start: 1.6, End: 2.4, Text: "uh"},
		{Start: 2.6, End: 3.9, Text: "welcome back"},
	}

	out, meta, err := p.Run(context.Background(), in, ac)
	require.NoError(t, err)
	require.Len(t, meta.Stages, 1)
	assert.False(t, meta.Stages[0].Degraded)
	assert.Equal(t, "silero", meta.Stages[0].Detail)

	// The segment lying entirely in the silent middle is dropped.
	require.Len(t, out, 2)
	assert.Equal(t, "hello there", out[0].Text)
	assert.Equal(t, "welcome back", out[1].Text)

	// The first segment sits inside detected speech and keeps its bounds.
	assert.InDelta(t, 0.2, out[0].Start, segment.Epsilon)
	assert.InDelta(t, 0.9, out[0].End, segment.Epsilon)

	// The last segment started during silence; its start is pulled forward
	// to the detected speech onset. Smoothing delays the detected onset a
	// few windows past 3.0s, so the assertion is a range, not a point.
	assert.Greater(t, out[1].Start, 2.6)
	assert.InDelta(t, 3.2, out[1].Start, 0.3)
	assert.InDelta(t, 3.9, out[1].End, segment.Epsilon)
}

func TestPipeline_FullChainKeepsInvariants(t *testing.T) {
	modelPath := filepath.Join(t.TempDir(), "silero_vad.onnx")
	require.NoError(t, os.WriteFile(modelPath, []byte("model"), 0644))

	cfg := Defaults()
	cfg.Vad.Engine = "silero"
	cfg.SileroModelPath = modelPath
	cfg.Split.MaxChars = 12

	p, err := NewFactory(discardLogger()).Build(cfg)
	require.NoError(t, err)

	const rate = 16000
	samples := synthAudio(rate, [2]float64{4.0, 9000})
	ac := &AudioContext{Samples: samples, SampleRate: rate, Duration: 4}

	in := []segment.Segment{
		{Start: 0.1, End: 1.9, Text: "first part, then some more."},
		{Start: 2.0, End: 3.8, Text: "and a second stretch of text."},
	}

	out, meta, err := p.Run(context.Background(), in, ac)
	require.NoError(t, err)
	require.NoError(t, segment.ValidateSequence(out))
	assert.True(t, meta.Enabled)
	require.Len(t, meta.Stages, 3)

	for _, s := range out {
		assert.LessOrEqual(t, len([]rune(s.Text)), cfg.Split.MaxChars)
	}
}

func TestPipeline_RunLeavesInputIntact(t *testing.T) {
	cfg := Defaults()
	cfg.Pipeline = "split"
	cfg.Split.MaxChars = 10

	p, err := NewFactory(discardLogger()).Build(cfg)
	require.NoError(t, err)

	in := []segment.Segment{{Start: 0, End: 8, Text: "alpha beta gamma delta"}}
	orig := segment.Clone(in)

	out, _, err := p.Run(context.Background(), in, nil)
	require.NoError(t, err)
	assert.Greater(t, len(out), 1)
	assert.Equal(t, orig, in)
}

// brokenStage returns out-of-order segments to exercise the invariant check.
type brokenStage struct{}

func (brokenStage) Name() StageName { return StageVad }

func (brokenStage) Transform(_ context.Context, _ []segment.Segment, _ *AudioContext) (StageResult, error) {
	return StageResult{Segments: []segment.Segment{
		{Start: 2, End: 4, Text: "b"},
		{Start: 1, End: 3, Text: "a"},
	}}, nil
}

func TestPipeline_InvariantViolationIsFatal(t *testing.T) {
	p := &Pipeline{stages: []Stage{brokenStage{}}, logger: discardLogger()}

	in := []segment.Segment{{Start: 0, End: 1, Text: "x"}}
	_, _, err := p.Run(context.Background(), in, nil)
	assert.ErrorIs(t, err, ErrInvariantViolation)
}

func TestPipeline_CanceledContext(t *testing.T) {
	cfg := Defaults()
	cfg.Pipeline = "split"

	p, err := NewFactory(discardLogger()).Build(cfg)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err = p.Run(ctx, []segment.Segment{{Start: 0, End: 1, Text: "x"}}, nil)
	assert.ErrorIs(t, err, context.Canceled)
}

// synthAudio builds alternating-sign PCM blocks of (seconds, amplitude).
func synthAudio(rate int, blocks ...[2]float64) []int16 {
	var out []int16
	for _, b := range blocks {
		n := int(b[0] * float64(rate))
		amp := int16(b[1])
		for i := 0; i < n; i++ {
			s := amp
			if i%2 == 1 {
				s = -amp
			}
			out = append(out, s)
		}
	}
	return out
}
