// Package audio provides ffmpeg-backed audio support for transcription jobs:
// transcoding arbitrary uploads to the PCM WAV layout the ASR and VAD engines
// expect, and probing source duration.
package audio

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strconv"
)

// TargetSampleRate is the sample rate all audio is normalized to before
// transcription and voice-activity detection. 16 kHz mono is what both the
// whisper family and the VAD engines operate on.
const TargetSampleRate = 16000

// Converter defines the interface for audio normalization and inspection.
type Converter interface {
	// ToPCMWav transcodes the input file to 16 kHz mono 16-bit PCM WAV.
	ToPCMWav(ctx context.Context, inputPath, outputPath string) error

	// ProbeDuration returns the duration of an audio file in seconds.
	ProbeDuration(ctx context.Context, inputPath string) (float64, error)
}

// FFmpegConverter implements Converter using the ffmpeg CLI.
type FFmpegConverter struct {
	ffmpegPath string
}

// NewFFmpegConverter creates a new FFmpegConverter.
// If ffmpegPath is empty, it defaults to "ffmpeg" (found in PATH).
func NewFFmpegConverter(ffmpegPath string) *FFmpegConverter {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	return &FFmpegConverter{ffmpegPath: ffmpegPath}
}

// ToPCMWav transcodes inputPath to 16 kHz mono s16le WAV at outputPath.
func (c *FFmpegConverter) ToPCMWav(ctx context.Context, inputPath, outputPath string) error {
	if _, err := os.Stat(inputPath); os.IsNotExist(err) {
		return fmt.Errorf("input file does not exist: %s", inputPath)
	}
	if err := os.MkdirAll(filepath.Dir(outputPath), 0755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}

	cmd := exec.CommandContext(ctx, c.ffmpegPath,
		"-y",
		"-i", inputPath,
		"-ac", "1",
		"-ar", strconv.Itoa(TargetSampleRate),
		"-c:a", "pcm_s16le",
		outputPath,
	)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("ffmpeg error: %w, stderr: %s", err, stderr.String())
	}

	return nil
}

// ProbeDuration returns the duration of an audio file in seconds.
func (c *FFmpegConverter) ProbeDuration(ctx context.Context, inputPath string) (float64, error) {
	cmd := exec.CommandContext(ctx, c.ffmpegPath,
		"-i", inputPath,
		"-hide_banner",
		"-f", "null", "-",
	)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	// ffmpeg writes duration info to stderr and exits non-zero with a null
	// output, so the exit status is ignored and the output parsed regardless.
	_ = cmd.Run()

	return parseDuration(stderr.String())
}

// parseDuration extracts "Duration: HH:MM:SS.ms" from ffmpeg stderr output.
func parseDuration(output string) (float64, error) {
	re := regexp.MustCompile(`Duration:\s*(\d+):(\d+):(\d+)\.(\d+)`)
	matches := re.FindStringSubmatch(output)
	if len(matches) < 5 {
		return 0, fmt.Errorf("could not parse duration from ffmpeg output: %s", output)
	}

	hours, _ := strconv.ParseFloat(matches[1], 64)
	minutes, _ := strconv.ParseFloat(matches[2], 64)
	seconds, _ := strconv.ParseFloat(matches[3], 64)
	frac, _ := strconv.ParseFloat(matches[4], 64)

	// The fractional part may carry different precision depending on the
	// ffmpeg build.
	fracDivisor := 1.0
	for i := 0; i < len(matches[4]); i++ {
		fracDivisor *= 10
	}

	return hours*3600 + minutes*60 + seconds + frac/fracDivisor, nil
}

// Verify interface implementation at compile time.
var _ Converter = (*FFmpegConverter)(nil)
