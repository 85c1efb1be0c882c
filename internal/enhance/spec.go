package enhance

import (
	"fmt"
	"strings"
)

// StageName identifies one enhancement stage kind. The set is closed;
// pipeline specs naming anything else are rejected at resolution time.
type StageName string

const (
	// StageVad trims and drops segments against detected silence.
	StageVad StageName = "vad"
	// StageRefine snaps boundaries onto detected speech edges.
	StageRefine StageName = "refine"
	// StageSplit breaks over-long segments into compliant sub-segments.
	StageSplit StageName = "split"
)

// knownStages is the closed set of stage identifiers.
var knownStages = map[StageName]bool{
	StageVad:    true,
	StageRefine: true,
	StageSplit:  true,
}

// ParsePipelineSpec turns a comma-separated stage-name list (e.g.
// "vad,refine,split") into an ordered stage identifier list. Unknown tokens,
// duplicates, and an empty spec are errors, never silently ignored.
func ParsePipelineSpec(spec string) ([]StageName, error) {
	seen := make(map[StageName]bool, 3)
	var stages []StageName

	for _, token := range strings.Split(spec, ",") {
		token = strings.TrimSpace(token)
		if token == "" {
			continue
		}
		name := StageName(token)
		if !knownStages[name] {
			return nil, fmt.Errorf("%w: %q", ErrUnknownStage, token)
		}
		if seen[name] {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateStage, token)
		}
		seen[name] = true
		stages = append(stages, name)
	}

	if len(stages) == 0 {
		return nil, ErrEmptyPipeline
	}

	return stages, nil
}
