package job

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/speechkit/transcribe-api/internal/asr"
	"github.com/speechkit/transcribe-api/internal/audio"
	"github.com/speechkit/transcribe-api/internal/enhance"
	"github.com/speechkit/transcribe-api/internal/export"
	"github.com/speechkit/transcribe-api/internal/segment"
	"github.com/speechkit/transcribe-api/internal/storage"
)

// TranscribeInput contains the input parameters for a transcription job.
type TranscribeInput struct {
	// AudioBase64 is the base64-encoded source audio in any format ffmpeg
	// understands.
	AudioBase64 string
	// Language forces a language code; empty means auto-detect.
	Language string
	// WordTimestamps requests word-level timing from the ASR engine.
	WordTimestamps bool
	// EnhanceOverride is the per-request enhancement configuration override,
	// a partial JSON document. Validated before the job is enqueued.
	EnhanceOverride json.RawMessage
	// ExportFormat optionally requests a subtitle rendering ("srt"/"vtt").
	ExportFormat string
	// PushToS3 uploads the export artifact to S3 when set.
	PushToS3 bool
}

// TranscribeService orchestrates the transcription workflow: store the
// upload, normalize the audio, run the ASR engine, run the enhancement
// pipeline over the raw output, and persist the result. Enhancement is
// best-effort; any pipeline failure falls back to the raw ASR segments and
// the job still completes.
type TranscribeService struct {
	repo      Repository
	converter audio.Converter
	engine    asr.Engine
	factory   *enhance.Factory
	store     storage.Storage
	baseline  enhance.ResolvedConfig
	logger    *slog.Logger
}

// ServiceOption configures a TranscribeService.
type ServiceOption func(*TranscribeService)

// WithEnhanceBaseline sets the process-level enhancement configuration used
// as the resolution base for per-request overrides.
func WithEnhanceBaseline(cfg enhance.ResolvedConfig) ServiceOption {
	return func(s *TranscribeService) {
		s.baseline = cfg
	}
}

// NewTranscribeService creates a new TranscribeService.
func NewTranscribeService(
	repo Repository,
	converter audio.Converter,
	engine asr.Engine,
	factory *enhance.Factory,
	store storage.Storage,
	logger *slog.Logger,
	opts ...ServiceOption,
) *TranscribeService {
	if logger == nil {
		logger = slog.Default()
	}
	s := &TranscribeService{
		repo:      repo,
		converter: converter,
		engine:    engine,
		factory:   factory,
		store:     store,
		baseline:  enhance.Defaults(),
		logger:    logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ResolveOverride merges a per-request override over the process baseline.
// It is called synchronously at request time so invalid configuration is
// rejected with a 4xx before any job exists.
func (s *TranscribeService) ResolveOverride(override json.RawMessage) (enhance.ResolvedConfig, error) {
	return enhance.Resolve(s.baseline, override)
}

// CreateJob creates a new job and persists it in IN_QUEUE status.
func (s *TranscribeService) CreateJob(ctx context.Context) (*Job, error) {
	j := New()

	s.logger.Info("creating transcription job",
		slog.String("job_id", j.ID),
	)

	if err := s.repo.Save(ctx, j); err != nil {
		s.logger.Error("failed to save job",
			slog.String("job_id", j.ID),
			slog.String("error", err.Error()),
		)
		return nil, err
	}

	return j, nil
}

// GetJob retrieves a job by ID.
func (s *TranscribeService) GetJob(ctx context.Context, id string) (*Job, error) {
	return s.repo.FindByID(ctx, id)
}

// ProcessExistingJob executes the transcription workflow for a previously
// created job. It is intended to run in the background after CreateJob; any
// error is also recorded on the job itself.
func (s *TranscribeService) ProcessExistingJob(ctx context.Context, jobID string, input TranscribeInput) error {
	j, err := s.repo.FindByID(ctx, jobID)
	if err != nil {
		return err
	}

	if err := j.Start(); err != nil {
		return fmt.Errorf("start job %s: %w", jobID, err)
	}
	if err := s.repo.Save(ctx, j); err != nil {
		return err
	}

	result, err := s.process(ctx, j, input)
	if err != nil {
		s.logger.Error("transcription failed",
			slog.String("job_id", jobID),
			slog.String("error", err.Error()),
		)
		_ = j.Fail(err.Error())
		return s.repo.Save(ctx, j)
	}

	j.SetResult(result)
	if err := j.Complete(); err != nil {
		return fmt.Errorf("complete job %s: %w", jobID, err)
	}

	s.logger.Info("transcription completed",
		slog.String("job_id", jobID),
		slog.Int("segments", len(result.Segments)),
		slog.String("language", result.Language),
		slog.Bool("enhanced", result.Enhancement.Enabled && result.EnhancementError == ""),
	)

	return s.repo.Save(ctx, j)
}

// process runs the workflow steps and returns the final result.
func (s *TranscribeService) process(ctx context.Context, j *Job, input TranscribeInput) (Result, error) {
	audioPath, wavPath, err := s.prepareAudio(ctx, j.ID, input.AudioBase64)
	if err != nil {
		return Result{}, err
	}
	j.SetInputPaths(audioPath, wavPath)
	_ = s.repo.Save(ctx, j)

	raw, err := s.engine.Transcribe(ctx, wavPath, asr.Options{
		Language:       input.Language,
		WordTimestamps: input.WordTimestamps,
	})
	if err != nil {
		return Result{}, fmt.Errorf("transcribe: %w", err)
	}

	result := Result{
		Segments: raw.Segments,
		Language: raw.Language,
		Duration: raw.Duration,
	}

	enhanced, meta, enhErr := s.enhanceSegments(ctx, wavPath, raw, input.EnhanceOverride)
	result.Enhancement = meta
	if enhErr != nil {
		// The raw ASR output is still a correct transcription; shipping it
		// beats failing the job.
		s.logger.Warn("enhancement abandoned, returning raw segments",
			slog.String("job_id", j.ID),
			slog.String("error", enhErr.Error()),
		)
		result.EnhancementError = enhErr.Error()
	} else {
		result.Segments = enhanced
	}

	if input.ExportFormat != "" {
		path, url, expErr := s.exportResult(ctx, j.ID, input, result.Segments)
		if expErr != nil {
			return Result{}, expErr
		}
		j.SetExport(path, url)
	}

	return result, nil
}

// prepareAudio decodes the upload, stores it, and normalizes it to 16 kHz
// mono PCM WAV for the ASR engine and the VAD engines.
func (s *TranscribeService) prepareAudio(ctx context.Context, jobID, audioB64 string) (audioPath, wavPath string, err error) {
	data, err := base64.StdEncoding.DecodeString(audioB64)
	if err != nil {
		return "", "", fmt.Errorf("decode audio: %w", err)
	}

	audioPath, err = s.store.SaveTemp(ctx, jobID+"_input", bytes.NewReader(data))
	if err != nil {
		return "", "", fmt.Errorf("store audio: %w", err)
	}

	wavPath = strings.TrimSuffix(audioPath, filepath.Ext(audioPath)) + "_16k.wav"
	if err := s.converter.ToPCMWav(ctx, audioPath, wavPath); err != nil {
		return "", "", fmt.Errorf("normalize audio: %w", err)
	}

	return audioPath, wavPath, nil
}

// enhanceSegments resolves the per-request configuration, builds the
// pipeline, and runs it over the raw segments. Every failure path returns
// the error for the caller to log; the caller decides the fallback.
func (s *TranscribeService) enhanceSegments(ctx context.Context, wavPath string, raw asr.Result, override json.RawMessage) ([]segment.Segment, enhance.RunMetadata, error) {
	resolved, err := s.ResolveOverride(override)
	if err != nil {
		return nil, enhance.RunMetadata{}, fmt.Errorf("resolve enhancement config: %w", err)
	}

	pipeline, err := s.factory.Build(resolved)
	if err != nil {
		return nil, enhance.RunMetadata{}, fmt.Errorf("build pipeline: %w", err)
	}

	ac, err := enhance.NewAudioContextFromWAV(wavPath)
	if err != nil {
		return nil, enhance.RunMetadata{}, fmt.Errorf("load audio for enhancement: %w", err)
	}

	segments, meta, err := pipeline.Run(ctx, raw.Segments, ac)
	if err != nil {
		return nil, meta, fmt.Errorf("run pipeline: %w", err)
	}

	return segments, meta, nil
}

// exportResult renders the subtitle file and optionally uploads it to S3.
func (s *TranscribeService) exportResult(ctx context.Context, jobID string, input TranscribeInput, segments []segment.Segment) (path, url string, err error) {
	format := export.Format(input.ExportFormat)

	var buf bytes.Buffer
	if err := export.Write(&buf, format, segments); err != nil {
		return "", "", err
	}

	name := fmt.Sprintf("%s.%s", jobID, format)
	path, err = s.store.SaveTemp(ctx, name, bytes.NewReader(buf.Bytes()))
	if err != nil {
		return "", "", fmt.Errorf("store export: %w", err)
	}

	if input.PushToS3 {
		url, err = s.store.UploadToS3(ctx, name, bytes.NewReader(buf.Bytes()))
		if err != nil {
			return "", "", fmt.Errorf("upload export: %w", err)
		}
		s.logger.Info("export uploaded",
			slog.String("job_id", jobID),
			slog.String("url", url),
		)
	}

	return path, url, nil
}
