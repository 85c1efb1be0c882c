package enhance

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
)

// VadConfig holds the tunables for the vad stage. Values are resolved once
// per invocation and never mutated afterwards.
type VadConfig struct {
	// Enabled toggles the stage without removing it from the pipeline spec.
	Enabled bool `json:"enabled"`
	// Engine selects the detection engine: auto, silero, or webrtc.
	Engine string `json:"engine" validate:"oneof=auto silero webrtc"`
	// SileroThreshold is the speech probability threshold in [0,1].
	SileroThreshold float64 `json:"silero_threshold" validate:"gte=0,lte=1"`
	// SileroMinSilenceMs is the silero engine's frame-level silence minimum.
	SileroMinSilenceMs int `json:"silero_min_silence_ms" validate:"gte=0"`
	// WebRTCAggressiveness is the webrtc engine mode in [0,3].
	WebRTCAggressiveness int `json:"webrtc_aggressiveness" validate:"gte=0,lte=3"`
	// WebRTCMinSpeechMs drops webrtc speech runs shorter than this.
	WebRTCMinSpeechMs int `json:"webrtc_min_speech_ms" validate:"gte=0"`
	// WebRTCMaxSilenceMs closes webrtc silence gaps shorter than this.
	WebRTCMaxSilenceMs int `json:"webrtc_max_silence_ms" validate:"gte=0"`
	// MinSilenceDuration, in seconds, is the shortest silence gap the vad
	// stage treats as segment-worthy; shorter pauses are merged into speech.
	MinSilenceDuration float64 `json:"min_silence_duration" validate:"gte=0"`
}

// RefineConfig holds the tunables for the refine stage.
type RefineConfig struct {
	Enabled bool `json:"enabled"`
	// SearchWindowMs bounds how far a boundary may move to reach a detected
	// speech edge.
	SearchWindowMs int `json:"search_window_ms" validate:"gt=0"`
}

// SplitConfig holds the tunables for the split stage.
type SplitConfig struct {
	Enabled bool `json:"enabled"`
	// MaxDuration is the longest a segment may run, in seconds.
	MaxDuration float64 `json:"max_duration" validate:"gt=0"`
	// MaxChars is the longest a segment's text may be, in runes.
	MaxChars int `json:"max_chars" validate:"gt=0"`
	// CharDurationSec estimates seconds of speech per character; used only
	// to locate duration-based split points when word timing is absent.
	CharDurationSec float64 `json:"char_duration_sec" validate:"gt=0"`
}

// ResolvedConfig is the fully-populated configuration threaded through the
// pipeline factory. Its lifecycle is scoped to one transcription job.
type ResolvedConfig struct {
	// Enabled gates the whole subsystem; when false the pipeline is an
	// identity transform.
	Enabled bool `json:"enabled"`
	// Pipeline is the comma-separated stage-name list, e.g. "vad,refine,split".
	Pipeline string `json:"pipeline"`
	// SileroModelPath locates the silero model weights; process-wide, not
	// overridable per invocation.
	SileroModelPath string       `json:"-"`
	Vad             VadConfig    `json:"vad"`
	Refine          RefineConfig `json:"refine"`
	Split           SplitConfig  `json:"split"`
}

// Defaults returns the built-in hard defaults, the lowest of the three
// configuration layers.
func Defaults() ResolvedConfig {
	return ResolvedConfig{
		Enabled:  true,
		Pipeline: "vad,refine,split",
		Vad: VadConfig{
			Enabled:              true,
			Engine:               "auto",
			SileroThreshold:      0.5,
			SileroMinSilenceMs:   100,
			WebRTCAggressiveness: 2,
			WebRTCMinSpeechMs:    200,
			WebRTCMaxSilenceMs:   300,
			MinSilenceDuration:   0.5,
		},
		Refine: RefineConfig{
			Enabled:        true,
			SearchWindowMs: 250,
		},
		Split: SplitConfig{
			Enabled:         true,
			MaxDuration:     10.0,
			MaxChars:        42,
			CharDurationSec: 0.25,
		},
	}
}

// validate is shared across invocations; validator.Validate is safe for
// concurrent use.
var validate = validator.New()

// validationKeys maps validator struct namespaces to the external
// configuration key names used in error reports.
var validationKeys = map[string]string{
	"ResolvedConfig.Vad.Engine":               "vad.engine",
	"ResolvedConfig.Vad.SileroThreshold":      "vad.silero_threshold",
	"ResolvedConfig.Vad.SileroMinSilenceMs":   "vad.silero_min_silence_ms",
	"ResolvedConfig.Vad.WebRTCAggressiveness": "vad.webrtc_aggressiveness",
	"ResolvedConfig.Vad.WebRTCMinSpeechMs":    "vad.webrtc_min_speech_ms",
	"ResolvedConfig.Vad.WebRTCMaxSilenceMs":   "vad.webrtc_max_silence_ms",
	"ResolvedConfig.Vad.MinSilenceDuration":   "vad.min_silence_duration",
	"ResolvedConfig.Refine.SearchWindowMs":    "refine.search_window_ms",
	"ResolvedConfig.Split.MaxDuration":        "split.max_duration",
	"ResolvedConfig.Split.MaxChars":           "split.max_chars",
	"ResolvedConfig.Split.CharDurationSec":    "split.char_duration_sec",
}

// Validate range-checks every recognized option and validates the pipeline
// spec. Violations are reported as ConfigValidationError naming the key.
func (c ResolvedConfig) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			key := validationKeys[fe.StructNamespace()]
			if key == "" {
				key = fe.StructNamespace()
			}
			return &ConfigValidationError{
				Key:    key,
				Reason: fmt.Sprintf("value %v fails constraint %q", fe.Value(), fe.Tag()),
			}
		}
		return err
	}

	if _, err := ParsePipelineSpec(c.Pipeline); err != nil {
		if c.Enabled {
			return &ConfigValidationError{Key: "pipeline", Reason: err.Error(), Err: err}
		}
	}

	return nil
}

// Resolve merges an optional per-invocation override (a partial, possibly
// nested JSON document) over the base configuration. Resolution is
// field-by-field: an override value wins over the base value. Unrecognized
// keys and out-of-range values fail with a ConfigValidationError naming the
// offending key; silently ignoring them would mask caller typos and break the
// per-request control guarantee.
func Resolve(base ResolvedConfig, overrideJSON []byte) (ResolvedConfig, error) {
	resolved := base

	if len(overrideJSON) > 0 {
		if err := applyOverride(&resolved, overrideJSON); err != nil {
			return ResolvedConfig{}, err
		}
	}

	if err := resolved.Validate(); err != nil {
		return ResolvedConfig{}, err
	}

	return resolved, nil
}

// overrideSections enumerates the recognized nested override objects.
var overrideSections = map[string]bool{"vad": true, "refine": true, "split": true}

// applyOverride decodes the override document level by level so unknown keys
// can be reported with their full dotted path.
func applyOverride(cfg *ResolvedConfig, raw []byte) error {
	var top map[string]json.RawMessage
	if err := json.Unmarshal(raw, &top); err != nil {
		return &ConfigValidationError{Reason: fmt.Sprintf("malformed override JSON: %v", err)}
	}

	for key, val := range top {
		switch key {
		case "pipeline":
			if err := decodeValue(key, val, &cfg.Pipeline); err != nil {
				return err
			}
		case "vad", "refine", "split":
			if err := applySectionOverride(cfg, key, val); err != nil {
				return err
			}
		default:
			return &ConfigValidationError{Key: key, Reason: "unrecognized option"}
		}
	}

	return nil
}

// applySectionOverride applies one nested override object ("vad", "refine",
// or "split").
func applySectionOverride(cfg *ResolvedConfig, section string, raw []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return &ConfigValidationError{Key: section, Reason: fmt.Sprintf("expected an object: %v", err)}
	}

	for key, val := range fields {
		dotted := section + "." + key
		target, ok := overrideTarget(cfg, dotted)
		if !ok {
			return &ConfigValidationError{Key: dotted, Reason: "unrecognized option"}
		}
		if err := decodeValue(dotted, val, target); err != nil {
			return err
		}
	}

	return nil
}

// overrideTarget maps a dotted override key onto the config field it sets.
// The key set is closed; anything else is a validation failure.
func overrideTarget(cfg *ResolvedConfig, key string) (any, bool) {
	switch key {
	case "vad.enabled":
		return &cfg.Vad.Enabled, true
	case "vad.engine":
		return &cfg.Vad.Engine, true
	case "vad.silero_threshold":
		return &cfg.Vad.SileroThreshold, true
	case "vad.silero_min_silence_ms":
		return &cfg.Vad.SileroMinSilenceMs, true
	case "vad.webrtc_aggressiveness":
		return &cfg.Vad.WebRTCAggressiveness, true
	case "vad.webrtc_min_speech_ms":
		return &cfg.Vad.WebRTCMinSpeechMs, true
	case "vad.webrtc_max_silence_ms":
		return &cfg.Vad.WebRTCMaxSilenceMs, true
	case "vad.min_silence_duration":
		return &cfg.Vad.MinSilenceDuration, true
	case "refine.enabled":
		return &cfg.Refine.Enabled, true
	case "refine.search_window_ms":
		return &cfg.Refine.SearchWindowMs, true
	case "split.enabled":
		return &cfg.Split.Enabled, true
	case "split.max_duration":
		return &cfg.Split.MaxDuration, true
	case "split.max_chars":
		return &cfg.Split.MaxChars, true
	case "split.char_duration_sec":
		return &cfg.Split.CharDurationSec, true
	default:
		return nil, false
	}
}

// decodeValue unmarshals a single override value into its target field,
// reporting type mismatches against the dotted key.
func decodeValue(key string, raw []byte, target any) error {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(target); err != nil {
		return &ConfigValidationError{Key: key, Reason: fmt.Sprintf("invalid value: %v", err)}
	}
	return nil
}
