package enhance

import (
	"context"
	"sync"

	"github.com/speechkit/transcribe-api/internal/audio"
	"github.com/speechkit/transcribe-api/internal/segment"
	"github.com/speechkit/transcribe-api/internal/vad"
)

// AudioContext carries the decoded source audio shared read-only by all
// stages of one pipeline invocation.
type AudioContext struct {
	// Samples is the 16-bit mono PCM of the full source audio.
	Samples []int16
	// SampleRate is the sample rate of Samples.
	SampleRate int
	// Duration is the total audio duration in seconds.
	Duration float64
}

// NewAudioContextFromWAV decodes a PCM WAV file into an AudioContext.
func NewAudioContextFromWAV(path string) (*AudioContext, error) {
	samples, rate, err := audio.ReadWAVFile(path)
	if err != nil {
		return nil, err
	}
	return &AudioContext{
		Samples:    samples,
		SampleRate: rate,
		Duration:   float64(len(samples)) / float64(rate),
	}, nil
}

// StageResult is a stage's outcome. A stage that hits a recoverable problem
// (engine unavailable, unsupported audio) reports Degraded with the input
// passed through rather than failing; expected fallback paths are modeled as
// results, not errors. An error return from Transform is fatal to the whole
// invocation.
type StageResult struct {
	// Segments is the transformed sequence handed to the next stage.
	Segments []segment.Segment
	// Degraded reports that the stage fell back to a documented degraded
	// behavior instead of its full transform.
	Degraded bool
	// Reason explains a degradation, empty otherwise.
	Reason string
	// Detail carries stage-specific observability data, e.g. the resolved
	// VAD engine name.
	Detail string
}

// Stage is one enhancement transform. Stages are pure segment-sequence
// functions with read-only access to the shared audio context; they hold no
// state across invocations and do not communicate except through the
// sequence handoff.
type Stage interface {
	// Name returns the stage identifier.
	Name() StageName

	// Transform maps an ordered, non-overlapping segment sequence to another.
	Transform(ctx context.Context, segments []segment.Segment, audio *AudioContext) (StageResult, error)
}

// voiceSignal resolves the VAD detector and computes speech intervals once
// per invocation, shared by the vad and refine stages. The signal is owned by
// a single pipeline instance, so the memoization needs no external locking
// beyond guarding the one-shot computation.
type voiceSignal struct {
	cfg vad.Config

	once      sync.Once
	intervals []vad.SpeechInterval
	engine    string
	err       error
}

// newVoiceSignal builds the per-invocation signal from a resolved vad config.
func newVoiceSignal(cfg VadConfig, modelPath string) *voiceSignal {
	return &voiceSignal{
		cfg: vad.Config{
			Engine:               cfg.Engine,
			SileroModelPath:      modelPath,
			SileroThreshold:      cfg.SileroThreshold,
			SileroMinSilenceMs:   cfg.SileroMinSilenceMs,
			WebRTCAggressiveness: cfg.WebRTCAggressiveness,
			WebRTCMinSpeechMs:    cfg.WebRTCMinSpeechMs,
			WebRTCMaxSilenceMs:   cfg.WebRTCMaxSilenceMs,
		},
	}
}

// speechIntervals returns the detected intervals, the resolved engine name,
// and any detection failure. Detection runs once; later callers observe the
// memoized outcome.
func (s *voiceSignal) speechIntervals(ctx context.Context, ac *AudioContext) ([]vad.SpeechInterval, string, error) {
	s.once.Do(func() {
		detector, err := vad.Resolve(s.cfg)
		if err != nil {
			s.err = err
			return
		}
		s.engine = detector.Name()
		s.intervals, s.err = detector.DetectIntervals(ctx, ac.Samples, ac.SampleRate)
	})
	return s.intervals, s.engine, s.err
}
