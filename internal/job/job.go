// Package job provides the Job aggregate for managing transcription jobs.
// It includes the Job entity with state machine transitions, repository
// interfaces for persistence, and the TranscribeService use case.
package job

import (
	"errors"
	"sync"
	"time"

	"github.com/speechkit/transcribe-api/internal/enhance"
	"github.com/speechkit/transcribe-api/internal/job/id"
	"github.com/speechkit/transcribe-api/internal/segment"
)

// Status represents the current state of a Job.
type Status string

const (
	// StatusInQueue indicates the job is waiting for an available worker.
	StatusInQueue Status = "IN_QUEUE"
	// StatusRunning indicates the job is being processed.
	StatusRunning Status = "RUNNING"
	// StatusCompleted indicates the job finished successfully.
	StatusCompleted Status = "COMPLETED"
	// StatusFailed indicates the job encountered an error during execution.
	StatusFailed Status = "FAILED"
	// StatusCancelled indicates the job was manually cancelled.
	StatusCancelled Status = "CANCELLED"
	// StatusTimedOut indicates the job expired before pickup or the worker
	// did not respond in time.
	StatusTimedOut Status = "TIMED_OUT"
)

// ErrInvalidTransition is returned when an invalid state transition is attempted.
var ErrInvalidTransition = errors.New("invalid state transition")

// validTransitions defines which state transitions are allowed.
var validTransitions = map[Status][]Status{
	StatusInQueue:   {StatusRunning, StatusCancelled, StatusTimedOut},
	StatusRunning:   {StatusCompleted, StatusFailed, StatusCancelled, StatusTimedOut},
	StatusCompleted: {},
	StatusFailed:    {},
	StatusCancelled: {},
	StatusTimedOut:  {},
}

// canTransition checks if a transition from one status to another is valid.
func canTransition(from, to Status) bool {
	allowed, ok := validTransitions[from]
	if !ok {
		return false
	}
	for _, s := range allowed {
		if s == to {
			return true
		}
	}
	return false
}

// Result is the transcription outcome stored on a completed job.
type Result struct {
	// Segments is the final segment sequence: enhanced when the pipeline
	// succeeded, the raw ASR output otherwise.
	Segments []segment.Segment
	// Language is the detected or forced language code.
	Language string
	// Duration is the source audio duration in seconds.
	Duration float64
	// Enhancement summarizes the pipeline run: which stages executed and
	// whether any degraded.
	Enhancement enhance.RunMetadata
	// EnhancementError holds the reason the pipeline was abandoned and the
	// raw segments shipped instead. Empty on a clean run.
	EnhancementError string
}

// Job represents a transcription job aggregate. It carries the request
// parameters, the processing state, and the final result.
type Job struct {
	mu sync.RWMutex

	// ID is the unique identifier for this job.
	ID string
	// Status is the current job state.
	Status Status
	// Error contains any error message if the job failed.
	Error string
	// InputAudioPath is the path to the stored source audio.
	InputAudioPath string
	// WavPath is the path to the normalized 16 kHz mono WAV.
	WavPath string
	// Result holds the transcription outcome once completed.
	Result Result
	// ExportPath is the local path of the rendered subtitle file, if
	// export was requested.
	ExportPath string
	// ExportURL is the S3 URL of the exported file, if uploaded.
	ExportURL string
	// CreatedAt is when the job was created.
	CreatedAt time.Time
	// UpdatedAt is when the job was last updated.
	UpdatedAt time.Time
	// StartedAt is when processing started.
	StartedAt time.Time
	// CompletedAt is when processing finished.
	CompletedAt time.Time
}

// New creates a new Job with a generated ID and initial IN_QUEUE status.
func New() *Job {
	return NewWithID(id.Generate())
}

// NewWithID creates a new Job with the specified ID and initial IN_QUEUE
// status. Useful for testing or when the ID is externally generated.
func NewWithID(jobID string) *Job {
	now := time.Now()
	return &Job{
		ID:        jobID,
		Status:    StatusInQueue,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// TransitionTo attempts to change the job status to the specified state.
// Returns ErrInvalidTransition if the transition is not allowed.
func (j *Job) TransitionTo(status Status) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if !canTransition(j.Status, status) {
		return ErrInvalidTransition
	}

	j.Status = status
	j.UpdatedAt = time.Now()

	switch status {
	case StatusRunning:
		j.StartedAt = j.UpdatedAt
	case StatusCompleted, StatusFailed, StatusCancelled, StatusTimedOut:
		j.CompletedAt = j.UpdatedAt
	}

	return nil
}

// Start transitions the job from IN_QUEUE to RUNNING.
func (j *Job) Start() error {
	return j.TransitionTo(StatusRunning)
}

// Complete transitions the job to COMPLETED state.
func (j *Job) Complete() error {
	return j.TransitionTo(StatusCompleted)
}

// Fail transitions the job to FAILED state with an error message.
func (j *Job) Fail(errMsg string) error {
	j.mu.Lock()
	j.Error = errMsg
	j.mu.Unlock()
	return j.TransitionTo(StatusFailed)
}

// Cancel transitions the job to CANCELLED state.
func (j *Job) Cancel() error {
	return j.TransitionTo(StatusCancelled)
}

// Timeout transitions the job to TIMED_OUT state.
func (j *Job) Timeout() error {
	return j.TransitionTo(StatusTimedOut)
}

// GetStatus returns the current job status (thread-safe).
func (j *Job) GetStatus() Status {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.Status
}

// SetInputPaths records where the source audio and the normalized WAV live.
func (j *Job) SetInputPaths(audioPath, wavPath string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.InputAudioPath = audioPath
	j.WavPath = wavPath
	j.UpdatedAt = time.Now()
}

// SetResult stores the transcription outcome.
func (j *Job) SetResult(result Result) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.Result = result
	j.UpdatedAt = time.Now()
}

// SetExport records the rendered subtitle artifact.
func (j *Job) SetExport(path, url string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.ExportPath = path
	j.ExportURL = url
	j.UpdatedAt = time.Now()
}

// IsTerminal returns true if the job is in a terminal state.
func (j *Job) IsTerminal() bool {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.Status == StatusCompleted ||
		j.Status == StatusFailed ||
		j.Status == StatusCancelled ||
		j.Status == StatusTimedOut
}

// Clone creates a deep copy of the job for safe reads.
func (j *Job) Clone() *Job {
	j.mu.RLock()
	defer j.mu.RUnlock()

	result := j.Result
	result.Segments = segment.Clone(j.Result.Segments)
	if len(j.Result.Enhancement.Stages) > 0 {
		result.Enhancement.Stages = make([]enhance.StageRun, len(j.Result.Enhancement.Stages))
		copy(result.Enhancement.Stages, j.Result.Enhancement.Stages)
	}

	return &Job{
		ID:             j.ID,
		Status:         j.Status,
		Error:          j.Error,
		InputAudioPath: j.InputAudioPath,
		WavPath:        j.WavPath,
		Result:         result,
		ExportPath:     j.ExportPath,
		ExportURL:      j.ExportURL,
		CreatedAt:      j.CreatedAt,
		UpdatedAt:      j.UpdatedAt,
		StartedAt:      j.StartedAt,
		CompletedAt:    j.CompletedAt,
	}
}
