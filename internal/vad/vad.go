// Package vad provides voice-activity detection over PCM audio. It produces
// ordered, non-overlapping speech intervals consumed by the enhancement
// pipeline's vad and refine stages.
//
// Two engines are supported: a windowed probability detector in the Silero
// style (requires a model file) and WebRTC VAD via go-webrtcvad. The "auto"
// engine probes availability in a fixed priority order so behavior is
// deterministic for a given environment.
package vad

import (
	"context"
	"errors"
	"fmt"
	"os"
)

// Static errors for engine resolution.
var (
	// ErrEngineUnavailable is returned when an engine's dependency is missing.
	ErrEngineUnavailable = errors.New("vad: engine unavailable")
	// ErrUnknownEngine is returned for an engine name outside the closed set.
	ErrUnknownEngine = errors.New("vad: unknown engine")
	// ErrNoEngineAvailable is returned when auto probing finds no usable engine.
	ErrNoEngineAvailable = errors.New("vad: no engine available")
)

// Engine names form a closed set; anything else is rejected at config
// resolution time.
const (
	EngineAuto   = "auto"
	EngineSilero = "silero"
	EngineWebRTC = "webrtc"
)

// SpeechInterval is a contiguous region of detected voice activity, in
// seconds from the start of the audio. Intervals are ordered and
// non-overlapping, generated fresh per job and never persisted.
type SpeechInterval struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

// Duration returns the interval length in seconds.
func (si SpeechInterval) Duration() float64 {
	return si.End - si.Start
}

// Detector produces speech intervals over raw PCM samples.
type Detector interface {
	// Name returns the engine name ("silero" or "webrtc").
	Name() string

	// DetectIntervals classifies the samples and returns ordered,
	// non-overlapping speech intervals.
	DetectIntervals(ctx context.Context, samples []int16, sampleRate int) ([]SpeechInterval, error)
}

// Config carries the resolved engine tunables. Zero values are filled by the
// enhancement config resolver before a Detector is built.
type Config struct {
	// Engine selects the detection engine: auto, silero, or webrtc.
	Engine string
	// SileroModelPath points at the silero model weights. The silero engine
	// is unavailable when the file is missing.
	SileroModelPath string
	// SileroThreshold is the speech probability threshold in [0,1].
	SileroThreshold float64
	// SileroMinSilenceMs closes silence gaps shorter than this many
	// milliseconds when the silero engine builds intervals.
	SileroMinSilenceMs int
	// WebRTCAggressiveness is the go-webrtcvad mode (0-3).
	WebRTCAggressiveness int
	// WebRTCMinSpeechMs drops speech runs shorter than this many milliseconds.
	WebRTCMinSpeechMs int
	// WebRTCMaxSilenceMs closes silence gaps shorter than this many
	// milliseconds when the webrtc engine builds intervals.
	WebRTCMaxSilenceMs int
}

// Resolve builds the Detector for cfg.Engine. For "auto" it probes engines in
// the fixed priority order silero, webrtc and returns the first available one.
// The returned detector's Name() records which engine actually resolved.
func Resolve(cfg Config) (Detector, error) {
	switch cfg.Engine {
	case EngineSilero:
		return newSilero(cfg)
	case EngineWebRTC:
		return newWebRTC(cfg)
	case EngineAuto:
		if d, err := newSilero(cfg); err == nil {
			return d, nil
		} else if !errors.Is(err, ErrEngineUnavailable) {
			return nil, err
		}
		if d, err := newWebRTC(cfg); err == nil {
			return d, nil
		} else if !errors.Is(err, ErrEngineUnavailable) {
			return nil, err
		}
		return nil, ErrNoEngineAvailable
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEngine, cfg.Engine)
	}
}

// MergeIntervals merges adjacent intervals separated by a silence gap shorter
// than minSilenceSec. Brief pauses within an utterance are treated as part of
// continuous speech rather than segment-worthy silence.
func MergeIntervals(intervals []SpeechInterval, minSilenceSec float64) []SpeechInterval {
	if len(intervals) == 0 {
		return nil
	}

	merged := make([]SpeechInterval, 0, len(intervals))
	current := intervals[0]
	for _, iv := range intervals[1:] {
		if iv.Start-current.End < minSilenceSec {
			if iv.End > current.End {
				current.End = iv.End
			}
			continue
		}
		merged = append(merged, current)
		current = iv
	}
	merged = append(merged, current)

	return merged
}

// fileExists reports whether path names an existing regular file.
func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
