package enhance

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"unicode"

	"github.com/speechkit/transcribe-api/internal/segment"
)

// maxSplitIterations caps how many times one original segment may be split.
// Pathological input (a single very long token with no punctuation or
// whitespace) terminates with an oversize sub-segment rather than looping or
// corrupting timestamps.
const maxSplitIterations = 32

// splitPunctuation is the set of sentence/clause terminators treated as
// preferred split boundaries. The character stays with the left sub-segment.
var splitPunctuation = map[rune]bool{
	'.': true, '!': true, '?': true, ';': true, ':': true, ',': true,
	'。': true, '！': true, '？': true, '；': true, '：': true, '，': true,
	'、': true, '…': true, '．': true,
}

// SplitterStage breaks segments that exceed the maximum display duration or
// character count into shorter sub-segments, because downstream cue formats
// impose per-cue limits. The measured total duration of a split segment is
// preserved exactly and its text is reconstructed exactly by concatenating
// the sub-segment texts.
type SplitterStage struct {
	cfg    SplitConfig
	logger *slog.Logger
}

// newSplitterStage builds the split stage for one invocation.
func newSplitterStage(cfg SplitConfig, logger *slog.Logger) *SplitterStage {
	return &SplitterStage{cfg: cfg, logger: logger}
}

// Name implements Stage.
func (s *SplitterStage) Name() StageName { return StageSplit }

// Transform implements Stage. Splitting is idempotent: compliant segments
// pass through untouched, so a second application is a no-op.
func (s *SplitterStage) Transform(ctx context.Context, segments []segment.Segment, _ *AudioContext) (StageResult, error) {
	if !s.cfg.Enabled {
		return StageResult{Segments: segments}, nil
	}

	out := make([]segment.Segment, 0, len(segments))
	for _, seg := range segments {
		if err := ctx.Err(); err != nil {
			return StageResult{}, err
		}

		if !s.violatesLimits(seg) {
			out = append(out, seg)
			continue
		}

		budget := maxSplitIterations
		parts := s.splitRecursive(seg, &budget)

		if err := verifyTextConservation(seg, parts); err != nil {
			return StageResult{}, err
		}
		if err := verifyDurationConservation(seg, parts); err != nil {
			return StageResult{}, err
		}

		out = append(out, parts...)
	}

	return StageResult{Segments: out}, nil
}

// violatesLimits reports whether the segment exceeds either display limit.
func (s *SplitterStage) violatesLimits(seg segment.Segment) bool {
	if runeCount(seg.Text) > s.cfg.MaxChars {
		return true
	}
	return seg.Duration() > s.cfg.MaxDuration+segment.Epsilon
}

// splitRecursive splits one segment and recurses on any sub-segment still
// violating a limit, within the iteration budget.
func (s *SplitterStage) splitRecursive(seg segment.Segment, budget *int) []segment.Segment {
	if *budget <= 0 || !s.violatesLimits(seg) {
		return []segment.Segment{seg}
	}
	*budget--

	left, right, ok := s.splitOnce(seg)
	if !ok {
		// No admissible boundary; the oversize segment is accepted as-is.
		s.logger.Debug("segment not splittable, keeping oversize",
			slog.Int("chars", runeCount(seg.Text)),
			slog.Float64("duration", seg.Duration()),
		)
		return []segment.Segment{seg}
	}

	parts := s.splitRecursive(left, budget)
	return append(parts, s.splitRecursive(right, budget)...)
}

// splitOnce performs a single binary split of the segment at the best
// available boundary. It returns ok=false when no boundary exists (a single
// unbreakable token).
func (s *SplitterStage) splitOnce(seg segment.Segment) (left, right segment.Segment, ok bool) {
	runes := []rune(seg.Text)
	n := len(runes)
	if n < 2 {
		return segment.Segment{}, segment.Segment{}, false
	}

	ideal := s.idealSplitIndex(seg, n)

	// Punctuation boundaries are preferred; the split lands immediately
	// after the terminator so it stays with the left half.
	idx := -1
	if p, dist := nearestPunctuation(runes, ideal); p > 0 {
		// A punctuation mark only counts when it is reasonably close to
		// the ideal point; a third of the span is the cutoff.
		tolerance := n / 3
		if tolerance < 1 {
			tolerance = 1
		}
		if dist <= tolerance {
			idx = p
		}
	}

	dropRune := false
	if idx < 0 {
		// Fall back to the whitespace boundary nearest the ideal point; a
		// segment is never split inside a word token.
		w := nearestWhitespace(runes, ideal)
		if w < 0 {
			return segment.Segment{}, segment.Segment{}, false
		}
		idx = w
		dropRune = true
	}

	leftText := string(runes[:idx])
	rightStart := idx
	if dropRune {
		rightStart = idx + 1
	}
	rightText := string(runes[rightStart:])

	leftText = strings.TrimSpace(leftText)
	rightText = strings.TrimSpace(rightText)
	if leftText == "" || rightText == "" {
		return segment.Segment{}, segment.Segment{}, false
	}

	boundary, leftWords, rightWords := s.splitTime(seg, leftText, rightText)

	left = segment.Segment{Start: seg.Start, End: boundary, Text: leftText, Words: leftWords}
	right = segment.Segment{Start: boundary, End: seg.End, Text: rightText, Words: rightWords}
	return left, right, true
}

// idealSplitIndex locates the target split position in runes. Per limit:
// character violations aim for the midpoint, duration violations for the
// position where accumulated estimated duration first reaches the maximum.
// When both limits are violated, the one reached first in character order
// wins.
func (s *SplitterStage) idealSplitIndex(seg segment.Segment, n int) int {
	ideal := n
	if runeCount(seg.Text) > s.cfg.MaxChars {
		ideal = n / 2
	}
	if seg.Duration() > s.cfg.MaxDuration+segment.Epsilon && s.cfg.CharDurationSec > 0 {
		byDuration := int(s.cfg.MaxDuration / s.cfg.CharDurationSec)
		if byDuration < ideal {
			ideal = byDuration
		}
	}

	if ideal < 1 {
		ideal = 1
	}
	if ideal > n-1 {
		ideal = n - 1
	}
	return ideal
}

// nearestPunctuation returns the split index just after the punctuation rune
// closest to ideal, and its distance. Returns -1 when the text has no
// interior punctuation.
func nearestPunctuation(runes []rune, ideal int) (idx, dist int) {
	idx, dist = -1, len(runes)
	for i := 0; i < len(runes)-1; i++ {
		if !splitPunctuation[runes[i]] {
			continue
		}
		candidate := i + 1
		d := abs(candidate - ideal)
		if d < dist {
			idx, dist = candidate, d
		}
	}
	return idx, dist
}

// nearestWhitespace returns the index of the whitespace rune closest to
// ideal, or -1 when the text is a single token.
func nearestWhitespace(runes []rune, ideal int) int {
	best, bestDist := -1, len(runes)
	for i := 1; i < len(runes)-1; i++ {
		if !unicode.IsSpace(runes[i]) {
			continue
		}
		d := abs(i - ideal)
		if d < bestDist {
			best, bestDist = i, d
		}
	}
	return best
}

// splitTime allocates the segment's time range across the two halves. With
// word-level timing the boundary is the midpoint of the inter-word gap at the
// split; otherwise time is reallocated proportionally to character counts,
// conserving the measured total duration exactly, and any word timings are
// partitioned at the resulting boundary.
func (s *SplitterStage) splitTime(seg segment.Segment, leftText, rightText string) (boundary float64, leftWords, rightWords []segment.Word) {
	if len(seg.Words) > 1 {
		if b, lw, rw, ok := splitAtWordGap(seg.Words, leftText); ok {
			return b, lw, rw
		}
	}

	nl := float64(nonSpaceRuneCount(leftText))
	nr := float64(nonSpaceRuneCount(rightText))
	boundary = seg.Start + seg.Duration()*nl/(nl+nr)
	leftWords, rightWords = partitionWordsAt(seg.Words, boundary)
	return boundary, leftWords, rightWords
}

// partitionWordsAt divides word timings at a time boundary. A word
// straddling the boundary is clamped onto the side holding the larger share
// of it; words squeezed to zero length are dropped.
func partitionWordsAt(words []segment.Word, boundary float64) (left, right []segment.Word) {
	for _, w := range words {
		switch {
		case w.End <= boundary:
			left = append(left, w)
		case w.Start >= boundary:
			right = append(right, w)
		case boundary-w.Start >= w.End-boundary:
			w.End = boundary
			if w.Start < w.End {
				left = append(left, w)
			}
		default:
			w.Start = boundary
			if w.Start < w.End {
				right = append(right, w)
			}
		}
	}
	return left, right
}

// splitAtWordGap finds the word boundary matching the text split and places
// the time boundary in the middle of the surrounding gap. ok=false when the
// text split does not land on a word boundary.
func splitAtWordGap(words []segment.Word, leftText string) (boundary float64, leftWords, rightWords []segment.Word, ok bool) {
	target := nonSpaceRuneCount(leftText)

	cum := 0
	for i, w := range words {
		cum += nonSpaceRuneCount(w.Text)
		if cum < target {
			continue
		}
		if cum > target || i == len(words)-1 {
			return 0, nil, nil, false
		}
		boundary = (words[i].End + words[i+1].Start) / 2
		return boundary, words[:i+1], words[i+1:], true
	}

	return 0, nil, nil, false
}

// verifyTextConservation checks that concatenating the sub-segment texts
// (ignoring whitespace) reproduces the original text exactly. A mismatch is
// fatal: shipping incorrect enhancement is worse than shipping none.
func verifyTextConservation(orig segment.Segment, parts []segment.Segment) error {
	var b strings.Builder
	for _, p := range parts {
		b.WriteString(p.Text)
	}
	if stripSpace(b.String()) != stripSpace(orig.Text) {
		return fmt.Errorf("%w: split text does not reconstruct the original", ErrInvariantViolation)
	}
	return nil
}

// verifyDurationConservation checks that sub-segment ranges are contiguous
// and their union equals the original range.
func verifyDurationConservation(orig segment.Segment, parts []segment.Segment) error {
	if len(parts) == 0 {
		return fmt.Errorf("%w: split produced no segments", ErrInvariantViolation)
	}
	if !segment.NearlyEqual(parts[0].Start, orig.Start) ||
		!segment.NearlyEqual(parts[len(parts)-1].End, orig.End) {
		return fmt.Errorf("%w: split range does not cover the original", ErrInvariantViolation)
	}
	for i := 1; i < len(parts); i++ {
		if !segment.NearlyEqual(parts[i-1].End, parts[i].Start) {
			return fmt.Errorf("%w: split sub-segments are not contiguous", ErrInvariantViolation)
		}
	}
	return nil
}

// stripSpace removes all whitespace runes.
func stripSpace(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)
}

// runeCount counts characters, not bytes; display limits apply per character
// for CJK text as much as for Latin.
func runeCount(s string) int {
	return len([]rune(s))
}

// nonSpaceRuneCount counts the characters that carry speech time.
func nonSpaceRuneCount(s string) int {
	n := 0
	for _, r := range s {
		if !unicode.IsSpace(r) {
			n++
		}
	}
	return n
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}

// Verify interface implementation at compile time.
var _ Stage = (*SplitterStage)(nil)
