// Package asr provides the speech recognition port and its adapters. The
// engine consumes a 16 kHz mono PCM WAV file and produces timestamped
// segments, optionally with word-level timing.
package asr

import (
	"context"
	"errors"

	"github.com/speechkit/transcribe-api/internal/segment"
)

// Static errors for ASR operations.
var (
	// ErrEngineFailed is returned when the engine ran but produced no usable
	// output.
	ErrEngineFailed = errors.New("asr: engine failed")
	// ErrNoSpeech is returned when the engine completed but recognized
	// nothing.
	ErrNoSpeech = errors.New("asr: no speech recognized")
)

// Result is the raw recognition output before any enhancement.
type Result struct {
	// Segments is the ordered, non-overlapping segment sequence.
	Segments []segment.Segment
	// Language is the detected or forced language code.
	Language string
	// Duration is the audio duration in seconds as reported by the engine.
	Duration float64
}

// Options carries per-request recognition parameters.
type Options struct {
	// Language forces a language code; empty means auto-detect.
	Language string
	// WordTimestamps requests word-level timing in the result.
	WordTimestamps bool
}

// Engine transcribes a prepared WAV file. Implementations must be safe for
// concurrent use by multiple jobs.
type Engine interface {
	// Name returns the engine identifier for logging and job metadata.
	Name() string

	// Transcribe runs recognition over the WAV file at wavPath.
	Transcribe(ctx context.Context, wavPath string, opts Options) (Result, error)
}
