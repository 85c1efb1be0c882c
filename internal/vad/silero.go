package vad

import (
	"context"
	"fmt"
	"math"
)

// sileroWindowSize is the number of samples per analysis window at 16 kHz
// (32 ms), matching the window the silero family of models operates on.
const sileroWindowSize = 512

// sileroSmoothing is the exponential smoothing factor applied to per-window
// probabilities to suppress single-window flicker.
const sileroSmoothing = 0.1

// SileroDetector is a windowed speech-probability detector in the Silero
// style: 512-sample analysis windows, a probability score in [0,1] per
// window, and a threshold in the same range. The score is normalized,
// smoothed RMS energy rather than model inference; the configured model path
// acts as an availability gate so deployments without the weights fall
// through to the next engine. Runs of windows at or above the threshold
// become intervals, with silence gaps shorter than the minimum closed.
type SileroDetector struct {
	modelPath    string
	threshold    float64
	minSilenceMs int
}

// newSilero builds the silero engine. The engine is unavailable when no model
// file is configured or the file does not exist, which lets "auto" fall
// through to the next engine.
func newSilero(cfg Config) (*SileroDetector, error) {
	if cfg.SileroModelPath == "" || !fileExists(cfg.SileroModelPath) {
		return nil, fmt.Errorf("%w: silero model not found at %q", ErrEngineUnavailable, cfg.SileroModelPath)
	}
	if cfg.SileroThreshold < 0 || cfg.SileroThreshold > 1 {
		return nil, fmt.Errorf("vad: silero threshold must be in [0,1], got %f", cfg.SileroThreshold)
	}

	return &SileroDetector{
		modelPath:    cfg.SileroModelPath,
		threshold:    cfg.SileroThreshold,
		minSilenceMs: cfg.SileroMinSilenceMs,
	}, nil
}

// Name implements Detector.
func (d *SileroDetector) Name() string { return EngineSilero }

// DetectIntervals implements Detector.
func (d *SileroDetector) DetectIntervals(ctx context.Context, samples []int16, sampleRate int) ([]SpeechInterval, error) {
	if sampleRate <= 0 {
		return nil, fmt.Errorf("vad: sample rate must be positive, got %d", sampleRate)
	}
	if len(samples) == 0 {
		return nil, nil
	}

	minSilenceSec := float64(d.minSilenceMs) / 1000.0

	var (
		intervals []SpeechInterval
		open      bool
		start     float64
		last      float64
	)

	for i := 0; i < len(samples); i += sileroWindowSize {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		end := i + sileroWindowSize
		if end > len(samples) {
			end = len(samples)
		}
		p := windowProbability(samples[i:end])

		// Smooth against the previous window's probability.
		if i > 0 {
			p = sileroSmoothing*p + (1-sileroSmoothing)*last
		}
		last = p

		t := float64(i) / float64(sampleRate)
		if p >= d.threshold {
			if !open {
				open = true
				start = t
			}
			continue
		}
		if open {
			intervals = append(intervals, SpeechInterval{Start: start, End: t})
			open = false
		}
	}
	if open {
		endT := float64(len(samples)) / float64(sampleRate)
		intervals = append(intervals, SpeechInterval{Start: start, End: endT})
	}

	return MergeIntervals(intervals, minSilenceSec), nil
}

// windowProbability scores one window with a speech probability derived from
// its RMS energy, normalized against full-scale speech levels.
func windowProbability(window []int16) float64 {
	if len(window) == 0 {
		return 0
	}

	var energy float64
	for _, s := range window {
		energy += float64(s) * float64(s)
	}
	rms := math.Sqrt(energy / float64(len(window)))

	// Typical speech peaks sit around 1e4 on the int16 scale.
	p := rms / 10000.0
	if p > 1 {
		p = 1
	}
	return p
}

// Verify interface implementation at compile time.
var _ Detector = (*SileroDetector)(nil)
