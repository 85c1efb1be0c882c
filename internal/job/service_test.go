package job

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/speechkit/transcribe-api/internal/asr"
	"github.com/speechkit/transcribe-api/internal/audio"
	"github.com/speechkit/transcribe-api/internal/enhance"
	"github.com/speechkit/transcribe-api/internal/segment"
	"github.com/speechkit/transcribe-api/internal/storage"
)

// fakeConverter writes a valid 16 kHz mono WAV so the enhancement pipeline
// can load an audio context. Set corrupt to exercise the fallback path.
type fakeConverter struct {
	corrupt bool
}

func (c *fakeConverter) ToPCMWav(_ context.Context, _, outputPath string) error {
	if c.corrupt {
		return os.WriteFile(outputPath, []byte("not a wav"), 0644)
	}
	data, err := audio.EncodeWAV(make([]int16, audio.TargetSampleRate), audio.TargetSampleRate)
	if err != nil {
		return err
	}
	return os.WriteFile(outputPath, data, 0644)
}

func (c *fakeConverter) ProbeDuration(_ context.Context, _ string) (float64, error) {
	return 1.0, nil
}

// fakeEngine returns a canned recognition result.
type fakeEngine struct {
	result  asr.Result
	err     error
	gotOpts asr.Options
}

func (e *fakeEngine) Name() string { return "fake" }

func (e *fakeEngine) Transcribe(_ context.Context, _ string, opts asr.Options) (asr.Result, error) {
	e.gotOpts = opts
	if e.err != nil {
		return asr.Result{}, e.err
	}
	return e.result, nil
}

var _ asr.Engine = (*fakeEngine)(nil)
var _ audio.Converter = (*fakeConverter)(nil)

func newTestService(t *testing.T, engine asr.Engine, conv audio.Converter, baseline enhance.ResolvedConfig) *TranscribeService {
	t.Helper()

	store, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	logger := slog.New(slog.DiscardHandler)
	return NewTranscribeService(
		NewMemoryRepository(),
		conv,
		engine,
		enhance.NewFactory(logger),
		store,
		logger,
		WithEnhanceBaseline(baseline),
	)
}

func splitOnlyBaseline() enhance.ResolvedConfig {
	cfg := enhance.Defaults()
	cfg.Pipeline = "split"
	cfg.Split.MaxChars = 20
	return cfg
}

func testAudioB64() string {
	return base64.StdEncoding.EncodeToString([]byte("fake-compressed-audio"))
}

func TestTranscribeService_HappyPath(t *testing.T) {
	engine := &fakeEngine{result: asr.Result{
		Segments: []segment.Segment{
			{Start: 0, End: 12, Text: "one two three four five six seven"},
		},
		Language: "en",
		Duration: 12,
	}}

	svc := newTestService(t, engine, &fakeConverter{}, splitOnlyBaseline())
	ctx := context.Background()

	j, err := svc.CreateJob(ctx)
	require.NoError(t, err)
	assert.Equal(t, StatusInQueue, j.GetStatus())

	input := TranscribeInput{AudioBase64: testAudioB64(), Language: "en", WordTimestamps: true}
	require.NoError(t, svc.ProcessExistingJob(ctx, j.ID, input))

	done, err := svc.GetJob(ctx, j.ID)
	require.NoError(t, err)

	assert.Equal(t, StatusCompleted, done.Status)
	assert.Equal(t, "en", done.Result.Language)
	assert.Empty(t, done.Result.EnhancementError)
	assert.True(t, done.Result.Enhancement.Enabled)

	// The 33-char segment was split against the 20-char limit.
	require.Greater(t, len(done.Result.Segments), 1)
	require.NoError(t, segment.ValidateSequence(done.Result.Segments))

	// Engine options are forwarded.
	assert.Equal(t, "en", engine.gotOpts.Language)
	assert.True(t, engine.gotOpts.WordTimestamps)
}

func TestTranscribeService_EngineFailureFailsJob(t *testing.T) {
	engine := &fakeEngine{err: fmt.Errorf("%w: gpu on fire", asr.ErrEngineFailed)}
	svc := newTestService(t, engine, &fakeConverter{}, splitOnlyBaseline())
	ctx := context.Background()

	j, err := svc.CreateJob(ctx)
	require.NoError(t, err)

	input := TranscribeInput{AudioBase64: testAudioB64()}
	require.NoError(t, svc.ProcessExistingJob(ctx, j.ID, input))

	done, err := svc.GetJob(ctx, j.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, done.Status)
	assert.Contains(t, done.Error, "gpu on fire")
}

func TestTranscribeService_EnhancementFailureFallsBackToRaw(t *testing.T) {
	raw := []segment.Segment{{Start: 0, End: 5, Text: "raw output stays intact"}}
	engine := &fakeEngine{result: asr.Result{Segments: raw, Language: "en", Duration: 5}}

	// The corrupt WAV breaks the enhancement audio context, not the ASR fake.
	svc := newTestService(t, engine, &fakeConverter{corrupt: true}, splitOnlyBaseline())
	ctx := context.Background()

	j, err := svc.CreateJob(ctx)
	require.NoError(t, err)
	require.NoError(t, svc.ProcessExistingJob(ctx, j.ID, TranscribeInput{AudioBase64: testAudioB64()}))

	done, err := svc.GetJob(ctx, j.ID)
	require.NoError(t, err)

	assert.Equal(t, StatusCompleted, done.Status)
	assert.NotEmpty(t, done.Result.EnhancementError)
	require.Len(t, done.Result.Segments, 1)
	assert.Equal(t, "raw output stays intact", done.Result.Segments[0].Text)
}

func TestTranscribeService_InvalidAudioFailsJob(t *testing.T) {
	engine := &fakeEngine{}
	svc := newTestService(t, engine, &fakeConverter{}, splitOnlyBaseline())
	ctx := context.Background()

	j, err := svc.CreateJob(ctx)
	require.NoError(t, err)
	require.NoError(t, svc.ProcessExistingJob(ctx, j.ID, TranscribeInput{AudioBase64: "$not-base64$"}))

	done, err := svc.GetJob(ctx, j.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, done.Status)
	assert.Contains(t, done.Error, "decode audio")
}

func TestTranscribeService_ResolveOverride(t *testing.T) {
	svc := newTestService(t, &fakeEngine{}, &fakeConverter{}, splitOnlyBaseline())

	t.Run("valid override wins over baseline", func(t *testing.T) {
		cfg, err := svc.ResolveOverride([]byte(`{"split":{"max_chars":10}}`))
		require.NoError(t, err)
		assert.Equal(t, 10, cfg.Split.MaxChars)
		assert.Equal(t, "split", cfg.Pipeline)
	})

	t.Run("unknown key rejected", func(t *testing.T) {
		_, err := svc.ResolveOverride([]byte(`{"vad":{"unknownOpt":1}}`))
		assert.True(t, enhance.IsConfigValidation(err))
	})
}

func TestTranscribeService_ExportSRT(t *testing.T) {
	engine := &fakeEngine{result: asr.Result{
		Segments: []segment.Segment{{Start: 0, End: 2, Text: "hello."}},
		Language: "en",
		Duration: 2,
	}}
	svc := newTestService(t, engine, &fakeConverter{}, splitOnlyBaseline())
	ctx := context.Background()

	j, err := svc.CreateJob(ctx)
	require.NoError(t, err)

	input := TranscribeInput{AudioBase64: testAudioB64(), ExportFormat: "srt"}
	require.NoError(t, svc.ProcessExistingJob(ctx, j.ID, input))

	done, err := svc.GetJob(ctx, j.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, done.Status)
	require.NotEmpty(t, done.ExportPath)

	data, err := os.ReadFile(done.ExportPath)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), "1\n00:00:00,000 --> 00:00:02,000\nhello."))
}

func TestTranscribeService_ProcessUnknownJob(t *testing.T) {
	svc := newTestService(t, &fakeEngine{}, &fakeConverter{}, splitOnlyBaseline())
	err := svc.ProcessExistingJob(context.Background(), "missing", TranscribeInput{})
	assert.ErrorIs(t, err, ErrJobNotFound)
}
