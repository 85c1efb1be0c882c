package enhance

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/speechkit/transcribe-api/internal/segment"
)

// StageRun records the outcome of one executed stage for the job metadata.
type StageRun struct {
	Stage    StageName `json:"stage"`
	Degraded bool      `json:"degraded,omitempty"`
	Reason   string    `json:"reason,omitempty"`
	Detail   string    `json:"detail,omitempty"`
}

// RunMetadata summarizes a pipeline invocation. It is attached to the job so
// callers can tell full enhancement from degraded or disabled runs.
type RunMetadata struct {
	Enabled bool       `json:"enabled"`
	Stages  []StageRun `json:"stages,omitempty"`
}

// Pipeline is an ordered stage chain bound to one resolved configuration.
// Build one per invocation; stages share per-invocation state (the voice
// activity signal) and must not be reused across jobs.
type Pipeline struct {
	stages []Stage
	logger *slog.Logger
}

// Factory builds pipelines from resolved configurations. It carries only
// process-level wiring (the logger); all per-invocation state lives in the
// pipelines it produces.
type Factory struct {
	logger *slog.Logger
}

// NewFactory creates a pipeline factory.
func NewFactory(logger *slog.Logger) *Factory {
	return &Factory{logger: logger}
}

// Build assembles the stage chain named by cfg.Pipeline. The configuration
// must already be validated; Build re-checks the pipeline spec so a hand-constructed
// config cannot smuggle in an unknown stage.
func (f *Factory) Build(cfg ResolvedConfig) (*Pipeline, error) {
	if !cfg.Enabled {
		return &Pipeline{logger: f.logger}, nil
	}

	names, err := ParsePipelineSpec(cfg.Pipeline)
	if err != nil {
		return nil, &ConfigValidationError{Key: "pipeline", Reason: err.Error(), Err: err}
	}

	signal := newVoiceSignal(cfg.Vad, cfg.SileroModelPath)

	stages := make([]Stage, 0, len(names))
	for _, name := range names {
		switch name {
		case StageVad:
			stages = append(stages, newVadStage(cfg.Vad, signal, f.logger))
		case StageRefine:
			stages = append(stages, newRefinerStage(cfg.Refine, signal, f.logger))
		case StageSplit:
			stages = append(stages, newSplitterStage(cfg.Split, f.logger))
		default:
			return nil, &ConfigValidationError{
				Key:    "pipeline",
				Reason: fmt.Sprintf("no constructor for stage %q", name),
				Err:    ErrUnknownStage,
			}
		}
	}

	return &Pipeline{stages: stages, logger: f.logger}, nil
}

// Run executes the stage chain over a deep copy of the input, so the caller's
// raw ASR segments survive for fallback. The sequence invariant is checked
// after every stage; a violation aborts the run with ErrInvariantViolation
// and the caller keeps the raw output. With enhancement disabled Run is the
// identity transform.
func (p *Pipeline) Run(ctx context.Context, segments []segment.Segment, ac *AudioContext) ([]segment.Segment, RunMetadata, error) {
	if len(p.stages) == 0 {
		return segments, RunMetadata{Enabled: false}, nil
	}

	meta := RunMetadata{Enabled: true, Stages: make([]StageRun, 0, len(p.stages))}
	current := segment.Clone(segments)

	for _, stage := range p.stages {
		if err := ctx.Err(); err != nil {
			return nil, RunMetadata{}, err
		}

		result, err := stage.Transform(ctx, current, ac)
		if err != nil {
			return nil, RunMetadata{}, fmt.Errorf("stage %s: %w", stage.Name(), err)
		}

		if err := segment.ValidateSequence(result.Segments); err != nil {
			return nil, RunMetadata{}, fmt.Errorf("stage %s: %w: %v", stage.Name(), ErrInvariantViolation, err)
		}

		run := StageRun{
			Stage:    stage.Name(),
			Degraded: result.Degraded,
			Reason:   result.Reason,
			Detail:   result.Detail,
		}
		meta.Stages = append(meta.Stages, run)

		if result.Degraded {
			p.logger.Warn("enhancement stage degraded",
				slog.String("stage", string(stage.Name())),
				slog.String("reason", result.Reason),
			)
		} else {
			p.logger.Debug("enhancement stage completed",
				slog.String("stage", string(stage.Name())),
				slog.Int("segments_in", len(current)),
				slog.Int("segments_out", len(result.Segments)),
			)
		}

		current = result.Segments
	}

	return current, meta, nil
}
