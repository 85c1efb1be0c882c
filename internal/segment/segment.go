// Package segment provides the Segment and Word value types shared between
// the ASR engine output, the enhancement pipeline, and the export layer.
// A segment sequence is ordered by start time and non-overlapping; every
// pipeline stage must preserve that invariant.
package segment

import (
	"errors"
	"fmt"
	"math"
)

// Static errors for sequence invariant checks.
var (
	// ErrInvertedBounds is returned when a segment has start >= end.
	ErrInvertedBounds = errors.New("segment: start must be before end")
	// ErrNegativeStart is returned when a segment starts before zero.
	ErrNegativeStart = errors.New("segment: start must not be negative")
	// ErrOverlap is returned when two adjacent segments overlap.
	ErrOverlap = errors.New("segment: adjacent segments overlap")
)

// Epsilon is the tolerance used when comparing boundary times in seconds.
const Epsilon = 1e-6

// Segment is a timestamped span of recognized text. Times are in seconds
// from the start of the source audio.
type Segment struct {
	// Start is the segment start time in seconds.
	Start float64 `json:"start"`
	// End is the segment end time in seconds.
	End float64 `json:"end"`
	// Text is the recognized UTF-8 text.
	Text string `json:"text"`
	// Words holds optional word-level timing aligned to this segment.
	// Empty when the ASR engine did not produce word timestamps.
	Words []Word `json:"words,omitempty"`
}

// Word is a single word with its own timing, nested within a parent segment.
type Word struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

// Duration returns the segment length in seconds.
func (s Segment) Duration() float64 {
	return s.End - s.Start
}

// Validate checks the single-segment invariant 0 <= start < end.
func (s Segment) Validate() error {
	if s.Start < 0 {
		return fmt.Errorf("%w: start=%.6f", ErrNegativeStart, s.Start)
	}
	if s.Start >= s.End {
		return fmt.Errorf("%w: start=%.6f end=%.6f", ErrInvertedBounds, s.Start, s.End)
	}
	return nil
}

// ValidateSequence checks every segment and the pairwise non-overlap
// invariant segments[i].end <= segments[i+1].start. A small epsilon absorbs
// floating-point noise from time reallocation arithmetic.
func ValidateSequence(segments []Segment) error {
	for i, s := range segments {
		if err := s.Validate(); err != nil {
			return fmt.Errorf("segment %d: %w", i, err)
		}
		if i == 0 {
			continue
		}
		if segments[i-1].End > s.Start+Epsilon {
			return fmt.Errorf("%w: segment %d ends at %.6f, segment %d starts at %.6f",
				ErrOverlap, i-1, segments[i-1].End, i, s.Start)
		}
	}
	return nil
}

// Clone returns a deep copy of the segment sequence so a caller can hand it
// to a pipeline stage without sharing backing arrays.
func Clone(segments []Segment) []Segment {
	out := make([]Segment, len(segments))
	copy(out, segments)
	for i := range out {
		if len(segments[i].Words) > 0 {
			out[i].Words = make([]Word, len(segments[i].Words))
			copy(out[i].Words, segments[i].Words)
		}
	}
	return out
}

// TotalDuration sums the durations of all segments.
func TotalDuration(segments []Segment) float64 {
	var total float64
	for _, s := range segments {
		total += s.Duration()
	}
	return total
}

// NearlyEqual reports whether two times are equal within Epsilon.
func NearlyEqual(a, b float64) bool {
	return math.Abs(a-b) <= Epsilon
}
