package audio

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDuration(t *testing.T) {
	tests := []struct {
		name     string
		output   string
		expected float64
		wantErr  bool
	}{
		{
			name:     "standard duration",
			output:   "Input #0, wav, from 'test.wav':\n  Duration: 00:01:30.50, bitrate: 256 kb/s",
			expected: 90.5,
		},
		{
			name:     "hours present",
			output:   "  Duration: 01:02:03.25, start: 0.000000",
			expected: 3723.25,
		},
		{
			name:     "three digit fraction",
			output:   "  Duration: 00:00:05.125",
			expected: 5.125,
		},
		{
			name:    "no duration in output",
			output:  "some unrelated ffmpeg banner",
			wantErr: true,
		},
		{
			name:    "empty output",
			output:  "",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := parseDuration(tt.output)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.InDelta(t, tt.expected, d, 1e-9)
		})
	}
}

func TestNewFFmpegConverter_DefaultPath(t *testing.T) {
	c := NewFFmpegConverter("")
	assert.Equal(t, "ffmpeg", c.ffmpegPath)

	c = NewFFmpegConverter("/usr/local/bin/ffmpeg")
	assert.Equal(t, "/usr/local/bin/ffmpeg", c.ffmpegPath)
}
