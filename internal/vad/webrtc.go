package vad

import (
	"context"
	"fmt"

	webrtcvad "github.com/maxhawkins/go-webrtcvad"
)

// webrtcFrameMs is the frame length fed to the WebRTC VAD. The engine accepts
// 10, 20 or 30 ms frames; 30 ms gives the most stable decisions on long-form
// audio.
const webrtcFrameMs = 30

// webrtcSampleRates are the sample rates the WebRTC VAD accepts.
var webrtcSampleRates = map[int]bool{8000: true, 16000: true, 32000: true, 48000: true}

// WebRTCDetector wraps go-webrtcvad with frame-level classification and
// run-length assembly into speech intervals.
type WebRTCDetector struct {
	vad            *webrtcvad.VAD
	aggressiveness int
	minSpeechMs    int
	maxSilenceMs   int
}

// newWebRTC builds the webrtc engine from the resolved configuration.
func newWebRTC(cfg Config) (*WebRTCDetector, error) {
	v, err := webrtcvad.New()
	if err != nil {
		return nil, fmt.Errorf("%w: create webrtc vad: %v", ErrEngineUnavailable, err)
	}

	mode := cfg.WebRTCAggressiveness
	if mode < 0 || mode > 3 {
		return nil, fmt.Errorf("vad: webrtc aggressiveness must be in [0,3], got %d", mode)
	}
	if err := v.SetMode(mode); err != nil {
		return nil, fmt.Errorf("vad: set webrtc mode: %w", err)
	}

	return &WebRTCDetector{
		vad:            v,
		aggressiveness: mode,
		minSpeechMs:    cfg.WebRTCMinSpeechMs,
		maxSilenceMs:   cfg.WebRTCMaxSilenceMs,
	}, nil
}

// Name implements Detector.
func (d *WebRTCDetector) Name() string { return EngineWebRTC }

// DetectIntervals implements Detector.
func (d *WebRTCDetector) DetectIntervals(ctx context.Context, samples []int16, sampleRate int) ([]SpeechInterval, error) {
	if !webrtcSampleRates[sampleRate] {
		return nil, fmt.Errorf("vad: webrtc does not support sample rate %d", sampleRate)
	}
	if len(samples) == 0 {
		return nil, nil
	}

	frameSize := sampleRate * webrtcFrameMs / 1000
	frameSec := float64(webrtcFrameMs) / 1000.0

	var (
		intervals []SpeechInterval
		open      bool
		start     float64
	)

	for i := 0; i+frameSize <= len(samples); i += frameSize {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		frame := int16ToBytes(samples[i : i+frameSize])
		active, err := d.vad.Process(sampleRate, frame)
		if err != nil {
			return nil, fmt.Errorf("vad: webrtc process frame: %w", err)
		}

		t := float64(i) / float64(sampleRate)
		if active {
			if !open {
				open = true
				start = t
			}
			continue
		}
		if open {
			intervals = append(intervals, SpeechInterval{Start: start, End: t + frameSec})
			open = false
		}
	}
	if open {
		intervals = append(intervals, SpeechInterval{Start: start, End: float64(len(samples)) / float64(sampleRate)})
	}

	intervals = MergeIntervals(intervals, float64(d.maxSilenceMs)/1000.0)

	return d.dropShortSpeech(intervals), nil
}

// dropShortSpeech removes intervals shorter than the configured minimum
// speech duration; isolated clicks and breaths are not speech.
func (d *WebRTCDetector) dropShortSpeech(intervals []SpeechInterval) []SpeechInterval {
	minSec := float64(d.minSpeechMs) / 1000.0
	if minSec <= 0 {
		return intervals
	}

	kept := intervals[:0]
	for _, iv := range intervals {
		if iv.Duration() >= minSec {
			kept = append(kept, iv)
		}
	}
	if len(kept) == 0 {
		return nil
	}
	return kept
}

// int16ToBytes converts samples to the little-endian byte layout the WebRTC
// VAD consumes.
func int16ToBytes(samples []int16) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		out[i*2] = byte(s)
		out[i*2+1] = byte(s >> 8)
	}
	return out
}

// Verify interface implementation at compile time.
var _ Detector = (*WebRTCDetector)(nil)
