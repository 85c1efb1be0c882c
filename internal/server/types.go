// Package server provides the HTTP server for the transcription API.
// It includes handlers, middleware, routes, and DTOs separated from domain types.
package server

import (
	"encoding/json"

	"github.com/speechkit/transcribe-api/internal/enhance"
)

// CreateJobRequest is the HTTP request body for creating a transcription job.
type CreateJobRequest struct {
	// AudioBase64 is the base64-encoded source audio.
	AudioBase64 string `json:"audio_base64" validate:"required,base64"`
	// Language optionally forces a language code (e.g. "en", "zh").
	Language string `json:"language,omitempty" validate:"omitempty,max=8"`
	// WordTimestamps requests word-level timing from the ASR engine.
	WordTimestamps bool `json:"word_timestamps"`
	// Enhancement is a partial enhancement configuration override. Unknown
	// keys and out-of-range values are rejected before the job is created.
	Enhancement json.RawMessage `json:"enhancement,omitempty"`
	// ExportFormat optionally requests a subtitle rendering.
	ExportFormat string `json:"export_format,omitempty" validate:"omitempty,oneof=srt vtt"`
	// PushToS3 uploads the export artifact to S3 when set.
	PushToS3 bool `json:"push_to_s3"`
}

// CreateJobResponse is the HTTP response after creating a job.
type CreateJobResponse struct {
	// ID is the unique identifier for the created job.
	ID string `json:"id"`
	// Status is the initial job status.
	Status string `json:"status"`
}

// SegmentDTO is one timestamped span of the transcript.
type SegmentDTO struct {
	Start float64   `json:"start"`
	End   float64   `json:"end"`
	Text  string    `json:"text"`
	Words []WordDTO `json:"words,omitempty"`
}

// WordDTO is word-level timing nested in a segment.
type WordDTO struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

// EnhancementDTO summarizes the enhancement run for callers that asked for it.
type EnhancementDTO struct {
	// Enabled reports whether the pipeline ran at all.
	Enabled bool `json:"enabled"`
	// Error is set when the pipeline was abandoned and raw segments shipped.
	Error string `json:"error,omitempty"`
	// Stages lists per-stage outcomes in execution order.
	Stages []enhance.StageRun `json:"stages,omitempty"`
}

// JobResponse is the HTTP response for getting job details.
type JobResponse struct {
	// ID is the unique identifier for the job.
	ID string `json:"id"`
	// Status is the current job status.
	Status string `json:"status"`
	// Error contains any error message if the job failed.
	Error string `json:"error,omitempty"`
	// Language is the detected or forced language (when completed).
	Language string `json:"language,omitempty"`
	// Duration is the source audio duration in seconds (when completed).
	Duration float64 `json:"duration,omitempty"`
	// Segments is the final transcript (when completed).
	Segments []SegmentDTO `json:"segments,omitempty"`
	// Enhancement is included when include_enhanced_metadata is requested.
	Enhancement *EnhancementDTO `json:"enhancement,omitempty"`
	// ExportURL is the S3 URL of the exported subtitle file, if uploaded.
	ExportURL string `json:"export_url,omitempty"`
}

// ErrorResponse is the standard error response format.
type ErrorResponse struct {
	// Error is the human-readable error message.
	Error string `json:"error"`
	// Code is the error code for programmatic handling.
	Code string `json:"code"`
}

// HealthResponse is the HTTP response for the health check endpoint.
type HealthResponse struct {
	// Status is the health status of the service.
	Status string `json:"status"`
}
