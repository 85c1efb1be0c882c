// Package bootstrap provides dependency initialization for the transcription API.
package bootstrap

import (
	"fmt"
	"log/slog"

	"github.com/speechkit/transcribe-api/internal/asr"
	"github.com/speechkit/transcribe-api/internal/audio"
	"github.com/speechkit/transcribe-api/internal/config"
	"github.com/speechkit/transcribe-api/internal/enhance"
	"github.com/speechkit/transcribe-api/internal/job"
	"github.com/speechkit/transcribe-api/internal/storage"
)

// Dependencies holds all initialized dependencies for the HTTP server.
type Dependencies struct {
	TranscribeService *job.TranscribeService
}

// NewDependencies creates and initializes all dependencies for the application.
func NewDependencies(cfg *config.Config, logger *slog.Logger) (*Dependencies, error) {
	// Initialize storage
	store, err := initStorage(cfg, logger)
	if err != nil {
		return nil, err
	}

	// Initialize the ASR engine
	engine, err := initEngine(cfg, logger)
	if err != nil {
		return nil, err
	}

	// Initialize audio converter and enhancement factory
	converter := audio.NewFFmpegConverter("")
	factory := enhance.NewFactory(logger)

	// Initialize job repository
	repo := job.NewMemoryRepository()

	svc := job.NewTranscribeService(
		repo,
		converter,
		engine,
		factory,
		store,
		logger,
		job.WithEnhanceBaseline(cfg.EnhanceDefaults()),
	)

	return &Dependencies{
		TranscribeService: svc,
	}, nil
}

// initEngine creates the ASR engine selected by configuration.
func initEngine(cfg *config.Config, logger *slog.Logger) (asr.Engine, error) {
	switch cfg.ASREngine {
	case "remote":
		engine, err := asr.NewRemoteEngine(cfg.ASRBaseURL, asr.WithAPIKey(cfg.ASRAPIKey))
		if err != nil {
			return nil, fmt.Errorf("create remote ASR engine: %w", err)
		}
		logger.Info("remote ASR engine configured",
			slog.String("base_url", cfg.ASRBaseURL),
		)
		return engine, nil
	default:
		engine := asr.NewWhisperProcess(cfg.ASRCommand, asr.WithWhisperModel(cfg.ASRModel))
		logger.Info("local ASR engine configured",
			slog.String("model", cfg.ASRModel),
		)
		return engine, nil
	}
}

// initStorage creates the appropriate storage backend based on configuration.
func initStorage(cfg *config.Config, logger *slog.Logger) (storage.Storage, error) {
	if cfg.S3Enabled() {
		s3Cfg := storage.S3Config{
			Bucket:          cfg.S3Bucket,
			Region:          cfg.S3Region,
			AccessKeyID:     cfg.AWSAccessKeyID,
			SecretAccessKey: cfg.AWSSecretAccessKey,
		}
		s3Store, err := storage.NewS3Storage(cfg.TempDir, s3Cfg)
		if err != nil {
			return nil, fmt.Errorf("create S3 storage: %w", err)
		}
		logger.Info("S3 storage configured",
			slog.String("bucket", cfg.S3Bucket),
			slog.String("region", cfg.S3Region),
		)
		return s3Store, nil
	}

	localStore, err := storage.NewLocalStorage(cfg.TempDir)
	if err != nil {
		return nil, fmt.Errorf("create local storage: %w", err)
	}
	logger.Info("local storage configured",
		slog.String("temp_dir", cfg.TempDir),
	)
	return localStore, nil
}
