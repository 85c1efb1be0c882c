package asr

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strconv"

	"github.com/speechkit/transcribe-api/internal/segment"
)

// WhisperProcess runs recognition through a faster-whisper helper process
// that prints one JSON document on stdout. The helper owns the model and the
// GPU; this adapter owns the process lifecycle and the output contract.
type WhisperProcess struct {
	command string
	model   string
	args    []string
}

// WhisperOption configures a WhisperProcess.
type WhisperOption func(*WhisperProcess)

// WithWhisperModel selects the model size or path passed to the helper.
func WithWhisperModel(model string) WhisperOption {
	return func(w *WhisperProcess) {
		w.model = model
	}
}

// WithWhisperArgs appends extra arguments to every helper invocation.
func WithWhisperArgs(args ...string) WhisperOption {
	return func(w *WhisperProcess) {
		w.args = append(w.args, args...)
	}
}

// NewWhisperProcess creates the subprocess engine. command is the helper
// binary or script; empty selects "whisper-transcribe" from PATH.
func NewWhisperProcess(command string, opts ...WhisperOption) *WhisperProcess {
	if command == "" {
		command = "whisper-transcribe"
	}
	w := &WhisperProcess{
		command: command,
		model:   "small",
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Name implements Engine.
func (w *WhisperProcess) Name() string { return "faster-whisper" }

// whisperOutput is the helper's stdout contract.
type whisperOutput struct {
	Language string           `json:"language"`
	Duration float64          `json:"duration"`
	Segments []whisperSegment `json:"segments"`
	Error    string           `json:"error,omitempty"`
}

type whisperSegment struct {
	Start float64       `json:"start"`
	End   float64       `json:"end"`
	Text  string        `json:"text"`
	Words []whisperWord `json:"words,omitempty"`
}

type whisperWord struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Word  string  `json:"word"`
}

// Transcribe implements Engine.
func (w *WhisperProcess) Transcribe(ctx context.Context, wavPath string, opts Options) (Result, error) {
	args := make([]string, 0, len(w.args)+8)
	args = append(args,
		"--model", w.model,
		"--output-format", "json",
		"--word-timestamps", strconv.FormatBool(opts.WordTimestamps),
	)
	if opts.Language != "" {
		args = append(args, "--language", opts.Language)
	}
	args = append(args, w.args...)
	args = append(args, wavPath)

	cmd := exec.CommandContext(ctx, w.command, args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return Result{}, fmt.Errorf("asr: transcription cancelled: %w", ctx.Err())
		}
		return Result{}, fmt.Errorf("%w: %v: %s", ErrEngineFailed, err, truncate(stderr.String(), 512))
	}

	return parseWhisperOutput(stdout.Bytes())
}

// parseWhisperOutput decodes the helper's JSON document into a Result and
// checks the sequence invariant on the way in; downstream code trusts it.
func parseWhisperOutput(out []byte) (Result, error) {
	var doc whisperOutput
	if err := json.Unmarshal(out, &doc); err != nil {
		return Result{}, fmt.Errorf("%w: decode output: %v", ErrEngineFailed, err)
	}
	if doc.Error != "" {
		return Result{}, fmt.Errorf("%w: %s", ErrEngineFailed, doc.Error)
	}
	if len(doc.Segments) == 0 {
		return Result{}, ErrNoSpeech
	}

	segments := make([]segment.Segment, 0, len(doc.Segments))
	for _, s := range doc.Segments {
		seg := segment.Segment{Start: s.Start, End: s.End, Text: s.Text}
		for _, wd := range s.Words {
			seg.Words = append(seg.Words, segment.Word{Start: wd.Start, End: wd.End, Text: wd.Word})
		}
		segments = append(segments, seg)
	}

	if err := segment.ValidateSequence(segments); err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrEngineFailed, err)
	}

	return Result{
		Segments: segments,
		Language: doc.Language,
		Duration: doc.Duration,
	}, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// Verify interface implementation at compile time.
var _ Engine = (*WhisperProcess)(nil)
