package enhance

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"unicode"

	"github.com/speechkit/transcribe-api/internal/segment"
	"github.com/speechkit/transcribe-api/internal/vad"
)

// VadStage suppresses segments that fall in detected non-speech regions and
// trims the edges of surviving segments to the nearest voice-activity
// boundary. A segment straddling a confirmed silence gap is divided at the
// gap; no output segment spans silence longer than the configured minimum.
type VadStage struct {
	cfg    VadConfig
	signal *voiceSignal
	logger *slog.Logger
}

// newVadStage builds the vad stage for one invocation.
func newVadStage(cfg VadConfig, signal *voiceSignal, logger *slog.Logger) *VadStage {
	return &VadStage{cfg: cfg, signal: signal, logger: logger}
}

// Name implements Stage.
func (s *VadStage) Name() StageName { return StageVad }

// Transform implements Stage. VAD engine failures degrade to an identity
// pass-through; enhancement is best-effort and must never block a
// transcription job that otherwise succeeded.
func (s *VadStage) Transform(ctx context.Context, segments []segment.Segment, ac *AudioContext) (StageResult, error) {
	if !s.cfg.Enabled {
		return StageResult{Segments: segments}, nil
	}

	raw, engine, err := s.signal.speechIntervals(ctx, ac)
	if err != nil {
		s.logger.Warn("vad stage degraded to pass-through",
			slog.String("reason", err.Error()),
		)
		return StageResult{
			Segments: segments,
			Degraded: true,
			Reason:   fmt.Sprintf("voice activity detection unavailable: %v", err),
		}, nil
	}

	merged := vad.MergeIntervals(raw, s.cfg.MinSilenceDuration)

	out := make([]segment.Segment, 0, len(segments))
	dropped := 0
	for _, seg := range segments {
		pieces := clampToSpeech(seg, merged)
		if len(pieces) == 0 {
			dropped++
			continue
		}
		out = append(out, pieces...)
	}

	if dropped > 0 {
		s.logger.Debug("vad stage dropped non-speech segments",
			slog.Int("dropped", dropped),
			slog.Int("kept", len(out)),
		)
	}

	return StageResult{Segments: out, Detail: engine}, nil
}

// clampToSpeech intersects a segment's time range against the merged speech
// intervals. Zero overlap drops the segment; partial overlap with a single
// interval clamps the bounds to the overlapping speech. A segment straddling
// the silence between two merged intervals is divided at the gap, so the
// output never spans confirmed silence. Segment text survives in full, split
// across the pieces.
func clampToSpeech(seg segment.Segment, intervals []vad.SpeechInterval) []segment.Segment {
	overlaps := overlappingSpeech(seg, intervals)
	if len(overlaps) == 0 {
		return nil
	}
	if len(overlaps) == 1 {
		clamped, keep := clampSegment(seg, overlaps[0])
		if !keep {
			return nil
		}
		return []segment.Segment{clamped}
	}
	return splitAcrossSpeech(seg, overlaps)
}

// overlappingSpeech returns the portions of the merged intervals that fall
// inside the segment's time range.
func overlappingSpeech(seg segment.Segment, intervals []vad.SpeechInterval) []vad.SpeechInterval {
	var overlaps []vad.SpeechInterval
	for _, iv := range intervals {
		if iv.End <= seg.Start {
			continue
		}
		if iv.Start >= seg.End {
			break // intervals are ordered
		}
		if iv.Start < seg.Start {
			iv.Start = seg.Start
		}
		if iv.End > seg.End {
			iv.End = seg.End
		}
		if iv.Start < iv.End {
			overlaps = append(overlaps, iv)
		}
	}
	return overlaps
}

// clampSegment narrows a segment onto one speech interval. Nested word
// timing is clamped into the new bounds; words squeezed to zero length lose
// their timing value and are removed.
func clampSegment(seg segment.Segment, iv vad.SpeechInterval) (segment.Segment, bool) {
	if iv.Start > seg.Start {
		seg.Start = iv.Start
	}
	if iv.End < seg.End {
		seg.End = iv.End
	}
	if len(seg.Words) > 0 {
		seg.Words = clampWords(seg.Words, seg.Start, seg.End)
	}
	return seg, seg.Start < seg.End
}

// clampWords clamps word timings into [start, end], dropping words squeezed
// to zero length.
func clampWords(words []segment.Word, start, end float64) []segment.Word {
	kept := make([]segment.Word, 0, len(words))
	for _, w := range words {
		if w.Start < start {
			w.Start = start
		}
		if w.End > end {
			w.End = end
		}
		if w.Start < w.End {
			kept = append(kept, w)
		}
	}
	return kept
}

// splitAcrossSpeech divides a segment that overlaps several speech intervals
// into one piece per interval. Text is partitioned at each silence gap, by
// word timing when present and at the whitespace nearest the proportional
// position otherwise. When the text has no admissible cut (a single
// unbreakable token) the segment clamps to the largest overlap instead.
func splitAcrossSpeech(seg segment.Segment, overlaps []vad.SpeechInterval) []segment.Segment {
	texts, ok := partitionText(seg, overlaps)
	if !ok {
		clamped, keep := clampSegment(seg, dominantInterval(overlaps))
		if !keep {
			return nil
		}
		return []segment.Segment{clamped}
	}

	groups := groupWordsByGap(seg.Words, overlaps)

	pieces := make([]segment.Segment, 0, len(overlaps))
	for i, ov := range overlaps {
		piece := segment.Segment{Start: ov.Start, End: ov.End, Text: texts[i]}
		if len(groups[i]) > 0 {
			piece.Words = clampWords(groups[i], ov.Start, ov.End)
		}
		pieces = append(pieces, piece)
	}
	return pieces
}

// partitionText divides the segment text into one piece per overlap, cutting
// at the silence gap between consecutive intervals. Every cut lands on a
// token boundary; ok=false when no such boundary exists for some gap.
func partitionText(seg segment.Segment, overlaps []vad.SpeechInterval) ([]string, bool) {
	runes := []rune(seg.Text)

	cuts := make([]int, 0, len(overlaps)-1)
	prev := 0
	for k := 0; k < len(overlaps)-1; k++ {
		gapMid := (overlaps[k].End + overlaps[k+1].Start) / 2

		cut := -1
		if len(seg.Words) > 0 {
			cut = cutAtWordBoundary(runes, seg.Words, gapMid)
		}
		if cut < 0 {
			cut = cutAtWhitespace(runes, overlaps, k)
		}
		if cut <= prev || cut >= len(runes) {
			return nil, false
		}
		cuts = append(cuts, cut)
		prev = cut
	}

	texts := make([]string, 0, len(overlaps))
	start := 0
	for _, cut := range cuts {
		texts = append(texts, strings.TrimSpace(string(runes[start:cut])))
		start = cut
	}
	texts = append(texts, strings.TrimSpace(string(runes[start:])))

	for _, text := range texts {
		if text == "" {
			return nil, false
		}
	}
	return texts, true
}

// cutAtWordBoundary maps the silence gap onto a text position via word
// timing: words whose midpoint lies before the gap midpoint belong left of
// the cut. Returns -1 when the word texts do not line up with the segment
// text or the cut would leave a side empty.
func cutAtWordBoundary(runes []rune, words []segment.Word, gapMid float64) int {
	target := 0
	for _, w := range words {
		if (w.Start+w.End)/2 <= gapMid {
			target += nonSpaceRuneCount(w.Text)
		}
	}
	if target == 0 {
		return -1
	}

	count := 0
	for i, r := range runes {
		if unicode.IsSpace(r) {
			continue
		}
		count++
		if count == target {
			return i + 1
		}
	}
	return -1
}

// cutAtWhitespace places the cut at the whitespace rune nearest the position
// proportional to cumulative speech time through overlap k.
func cutAtWhitespace(runes []rune, overlaps []vad.SpeechInterval, k int) int {
	var total, cum float64
	for i, ov := range overlaps {
		total += ov.Duration()
		if i <= k {
			cum += ov.Duration()
		}
	}
	if total <= 0 {
		return -1
	}
	ideal := int(float64(len(runes)) * cum / total)
	return nearestWhitespace(runes, ideal)
}

// groupWordsByGap assigns each word to the overlap on its side of the
// silence gap midpoints, matching the text cuts.
func groupWordsByGap(words []segment.Word, overlaps []vad.SpeechInterval) [][]segment.Word {
	groups := make([][]segment.Word, len(overlaps))
	idx := 0
	for _, w := range words {
		mid := (w.Start + w.End) / 2
		for idx < len(overlaps)-1 && mid > (overlaps[idx].End+overlaps[idx+1].Start)/2 {
			idx++
		}
		groups[idx] = append(groups[idx], w)
	}
	return groups
}

// dominantInterval returns the longest overlap, the fallback clamp target
// when the text cannot be divided.
func dominantInterval(overlaps []vad.SpeechInterval) vad.SpeechInterval {
	best := overlaps[0]
	for _, ov := range overlaps[1:] {
		if ov.Duration() > best.Duration() {
			best = ov
		}
	}
	return best
}

// Verify interface implementation at compile time.
var _ Stage = (*VadStage)(nil)
