package enhance

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/speechkit/transcribe-api/internal/segment"
	"github.com/speechkit/transcribe-api/internal/vad"
)

func TestSnapBoundary(t *testing.T) {
	edges := []float64{1.0, 2.5, 4.0}

	tests := []struct {
		name       string
		t          float64
		window     float64
		lowerLimit float64
		upperLimit float64
		expected   float64
		moved      bool
	}{
		{
			name:       "snaps to nearest edge in window",
			t:          1.1,
			window:     0.25,
			lowerLimit: math.Inf(-1),
			upperLimit: math.Inf(1),
			expected:   1.0,
			moved:      true,
		},
		{
			name:       "no edge within window",
			t:          1.8,
			window:     0.25,
			lowerLimit: math.Inf(-1),
			upperLimit: math.Inf(1),
			expected:   1.8,
			moved:      false,
		},
		{
			name:       "nearest of two candidates wins",
			t:          3.3,
			window:     1.0,
			lowerLimit: math.Inf(-1),
			upperLimit: math.Inf(1),
			expected:   4.0,
			moved:      true,
		},
		{
			name:       "move crossing the upper limit is rejected",
			t:          2.4,
			window:     0.25,
			lowerLimit: math.Inf(-1),
			upperLimit: 2.5,
			expected:   2.4,
			moved:      false,
		},
		{
			name:       "move crossing the lower limit is rejected",
			t:          1.05,
			window:     0.25,
			lowerLimit: 1.0,
			upperLimit: math.Inf(1),
			expected:   1.05,
			moved:      false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, moved := snapBoundary(tt.t, edges, tt.window, tt.lowerLimit, tt.upperLimit)
			assert.Equal(t, tt.moved, moved)
			assert.InDelta(t, tt.expected, got, segment.Epsilon)
		})
	}
}

func TestRefineBounds_OrderingBeatsRefinement(t *testing.T) {
	edges := []float64{0.95, 2.1}

	t.Run("both bounds snap when unconstrained", func(t *testing.T) {
		seg := segment.Segment{Start: 1.0, End: 2.0, Text: "a"}
		refineBounds(&seg, edges, 0.25, math.Inf(-1), math.Inf(1))
		assert.InDelta(t, 0.95, seg.Start, segment.Epsilon)
		assert.InDelta(t, 2.1, seg.End, segment.Epsilon)
	})

	t.Run("end refuses to cross the next segment", func(t *testing.T) {
		seg := segment.Segment{Start: 1.0, End: 2.0, Text: "a"}
		refineBounds(&seg, edges, 0.25, math.Inf(-1), 2.05)
		assert.InDelta(t, 2.0, seg.End, segment.Epsilon)
	})

	t.Run("start refuses to cross the previous segment", func(t *testing.T) {
		seg := segment.Segment{Start: 1.0, End: 2.0, Text: "a"}
		refineBounds(&seg, edges, 0.25, 0.98, math.Inf(1))
		assert.InDelta(t, 1.0, seg.Start, segment.Epsilon)
	})
}

func TestRefineWords_SegmentBoundsFollowWords(t *testing.T) {
	edges := []float64{0.9, 3.1}

	seg := segment.Segment{
		Start: 1.0,
		End:   3.0,
		Text:  "a b",
		Words: []segment.Word{
			{Start: 1.0, End: 1.9, Text: "a"},
			{Start: 2.0, End: 3.0, Text: "b"},
		},
	}

	refineWords(&seg, edges, 0.2, math.Inf(-1), math.Inf(1))

	assert.InDelta(t, 0.9, seg.Words[0].Start, segment.Epsilon)
	assert.InDelta(t, 1.9, seg.Words[0].End, segment.Epsilon)
	assert.InDelta(t, 3.1, seg.Words[1].End, segment.Epsilon)

	// Segment bounds are recomputed from the refined words.
	assert.InDelta(t, 0.9, seg.Start, segment.Epsilon)
	assert.InDelta(t, 3.1, seg.End, segment.Epsilon)
}

func TestSpeechEdges(t *testing.T) {
	edges := speechEdges([]vad.SpeechInterval{
		{Start: 0.5, End: 1.5},
		{Start: 3.0, End: 4.2},
	})
	assert.Equal(t, []float64{0.5, 1.5, 3.0, 4.2}, edges)
}
