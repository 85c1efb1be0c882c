// Package export renders a final segment sequence into subtitle formats.
package export

import (
	"fmt"
	"io"
	"strings"

	"github.com/speechkit/transcribe-api/internal/segment"
)

// Format identifies a subtitle output format.
type Format string

const (
	// FormatSRT is the SubRip format.
	FormatSRT Format = "srt"
	// FormatVTT is the WebVTT format.
	FormatVTT Format = "vtt"
)

// IsValid returns true when the format is supported.
func (f Format) IsValid() bool {
	return f == FormatSRT || f == FormatVTT
}

// Write renders segments in the given format.
func Write(w io.Writer, format Format, segments []segment.Segment) error {
	switch format {
	case FormatSRT:
		return WriteSRT(w, segments)
	case FormatVTT:
		return WriteVTT(w, segments)
	default:
		return fmt.Errorf("export: unsupported format %q", format)
	}
}

// WriteSRT renders segments as SubRip cues: 1-based index, comma decimal
// separator in timestamps, blank line between cues.
func WriteSRT(w io.Writer, segments []segment.Segment) error {
	for i, s := range segments {
		_, err := fmt.Fprintf(w, "%d\n%s --> %s\n%s\n\n",
			i+1,
			formatTimestamp(s.Start, ','),
			formatTimestamp(s.End, ','),
			strings.TrimSpace(s.Text),
		)
		if err != nil {
			return fmt.Errorf("export: write srt cue %d: %w", i+1, err)
		}
	}
	return nil
}

// WriteVTT renders segments as WebVTT cues: header line, dot decimal
// separator, no cue indices.
func WriteVTT(w io.Writer, segments []segment.Segment) error {
	if _, err := io.WriteString(w, "WEBVTT\n\n"); err != nil {
		return fmt.Errorf("export: write vtt header: %w", err)
	}
	for i, s := range segments {
		_, err := fmt.Fprintf(w, "%s --> %s\n%s\n\n",
			formatTimestamp(s.Start, '.'),
			formatTimestamp(s.End, '.'),
			strings.TrimSpace(s.Text),
		)
		if err != nil {
			return fmt.Errorf("export: write vtt cue %d: %w", i+1, err)
		}
	}
	return nil
}

// formatTimestamp renders seconds as HH:MM:SS<sep>mmm.
func formatTimestamp(seconds float64, sep rune) string {
	if seconds < 0 {
		seconds = 0
	}
	ms := int64(seconds*1000 + 0.5)
	h := ms / 3600000
	ms -= h * 3600000
	m := ms / 60000
	ms -= m * 60000
	s := ms / 1000
	ms -= s * 1000
	return fmt.Sprintf("%02d:%02d:%02d%c%03d", h, m, s, sep, ms)
}
