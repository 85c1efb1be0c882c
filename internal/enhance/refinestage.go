package enhance

import (
	"context"
	"fmt"
	"log/slog"
	"math"

	"github.com/speechkit/transcribe-api/internal/segment"
	"github.com/speechkit/transcribe-api/internal/vad"
)

// RefinerStage snaps segment and word boundaries onto detected speech edges
// within a bounded local window, correcting the systematic drift ASR models
// show at utterance boundaries. Ordering always takes precedence over
// refinement: a move that would invert or cross an adjacent boundary is
// rejected and the original value retained.
type RefinerStage struct {
	cfg    RefineConfig
	signal *voiceSignal
	logger *slog.Logger
}

// newRefinerStage builds the refine stage for one invocation.
func newRefinerStage(cfg RefineConfig, signal *voiceSignal, logger *slog.Logger) *RefinerStage {
	return &RefinerStage{cfg: cfg, signal: signal, logger: logger}
}

// Name implements Stage.
func (s *RefinerStage) Name() StageName { return StageRefine }

// Transform implements Stage.
func (s *RefinerStage) Transform(ctx context.Context, segments []segment.Segment, ac *AudioContext) (StageResult, error) {
	if !s.cfg.Enabled || len(segments) == 0 {
		return StageResult{Segments: segments}, nil
	}

	intervals, engine, err := s.signal.speechIntervals(ctx, ac)
	if err != nil {
		s.logger.Warn("refine stage degraded to pass-through",
			slog.String("reason", err.Error()),
		)
		return StageResult{
			Segments: segments,
			Degraded: true,
			Reason:   fmt.Sprintf("voice activity detection unavailable: %v", err),
		}, nil
	}

	edges := speechEdges(intervals)
	if len(edges) == 0 {
		return StageResult{Segments: segments, Detail: engine}, nil
	}

	window := float64(s.cfg.SearchWindowMs) / 1000.0
	out := segment.Clone(segments)

	for i := range out {
		// Speech edges are never negative, so the first segment's lower
		// bound is effectively unbounded.
		prevLimit := math.Inf(-1)
		if i > 0 {
			prevLimit = out[i-1].End
		}
		nextLimit := math.Inf(1)
		if i+1 < len(out) {
			// The next segment has not been refined yet; its original start
			// is the hard bound.
			nextLimit = out[i+1].Start
		}

		if len(out[i].Words) > 0 {
			refineWords(&out[i], edges, window, prevLimit, nextLimit)
		} else {
			refineBounds(&out[i], edges, window, prevLimit, nextLimit)
		}
	}

	return StageResult{Segments: out, Detail: engine}, nil
}

// refineBounds snaps a segment's own boundaries.
func refineBounds(seg *segment.Segment, edges []float64, window, prevLimit, nextLimit float64) {
	if t, ok := snapBoundary(seg.Start, edges, window, prevLimit, seg.End); ok {
		seg.Start = t
	}
	if t, ok := snapBoundary(seg.End, edges, window, seg.Start, nextLimit); ok {
		seg.End = t
	}
}

// refineWords refines word boundaries first, then recomputes the segment
// bounds as the min/max of the refined words so the two representations stay
// consistent.
func refineWords(seg *segment.Segment, edges []float64, window, prevLimit, nextLimit float64) {
	words := seg.Words
	for i := range words {
		lo := prevLimit
		if i > 0 {
			lo = words[i-1].End
		}
		hi := nextLimit
		if i+1 < len(words) {
			hi = words[i+1].Start
		}

		if t, ok := snapBoundary(words[i].Start, edges, window, lo, words[i].End); ok {
			words[i].Start = t
		}
		if t, ok := snapBoundary(words[i].End, edges, window, words[i].Start, hi); ok {
			words[i].End = t
		}
	}

	start := words[0].Start
	end := words[len(words)-1].End
	if start > prevLimit && start < end && end < nextLimit {
		seg.Start = start
		seg.End = end
	}
}

// snapBoundary finds the nearest speech edge within the search window around
// t. The move is accepted only when the result stays strictly inside
// (lowerLimit, upperLimit); otherwise the original value is retained.
func snapBoundary(t float64, edges []float64, window, lowerLimit, upperLimit float64) (float64, bool) {
	best := math.Inf(1)
	snapped := t
	found := false

	for _, e := range edges {
		d := math.Abs(e - t)
		if d > window {
			continue
		}
		if d < best {
			best = d
			snapped = e
			found = true
		}
	}

	if !found || snapped <= lowerLimit || snapped >= upperLimit {
		return t, false
	}
	return snapped, true
}

// speechEdges flattens intervals into a sorted list of boundary times.
func speechEdges(intervals []vad.SpeechInterval) []float64 {
	edges := make([]float64, 0, len(intervals)*2)
	for _, iv := range intervals {
		edges = append(edges, iv.Start, iv.End)
	}
	return edges
}

// Verify interface implementation at compile time.
var _ Stage = (*RefinerStage)(nil)
