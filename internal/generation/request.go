package generation

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Tier is a quality/cost class of stage backend.
type Tier string

const (
	TierPro            Tier = "Pro"
	TierProIfAvailable Tier = "ProIfAvailable"
	TierFree           Tier = "Free"
	TierGuaranteed     Tier = "Guaranteed"
)

var allTiers = []Tier{TierPro, TierProIfAvailable, TierFree, TierGuaranteed}

// ParseTier converts a case-insensitive tier name into a Tier.
func ParseTier(value string) (Tier, bool) {
	trimmed := strings.TrimSpace(value)
	for _, tier := range allTiers {
		if strings.EqualFold(trimmed, string(tier)) {
			return tier, true
		}
	}
	return "", false
}

// Stage names one step of the generation pipeline. Each stage is served by
// exactly one capability class of backends, so the stage name doubles as the
// capability key in provider registries.
type Stage string

const (
	StageScript      Stage = "Script"
	StageNarration   Stage = "Narration"
	StageVisuals     Stage = "Visuals"
	StageComposition Stage = "Composition"
	StageExport      Stage = "Export"
)

var pipelineOrder = []Stage{StageScript, StageNarration, StageVisuals, StageComposition, StageExport}

// Stages returns the fixed pipeline order.
func Stages() []Stage {
	out := make([]Stage, len(pipelineOrder))
	copy(out, pipelineOrder)
	return out
}

// ParseStage converts a case-insensitive stage name into a Stage.
func ParseStage(value string) (Stage, bool) {
	trimmed := strings.TrimSpace(value)
	for _, stage := range pipelineOrder {
		if strings.EqualFold(trimmed, string(stage)) {
			return stage, true
		}
	}
	return "", false
}

// Request is the immutable input of one generation run.
type Request struct {
	Topic          string        `json:"topic" toml:"topic"`
	Audience       string        `json:"audience,omitempty" toml:"audience"`
	Tone           string        `json:"tone,omitempty" toml:"tone"`
	TargetDuration time.Duration `json:"target_duration" toml:"target_duration"`

	// Tier preferences per capability class. Each value is either a tier name
	// or an exact backend name. Empty means the configured default.
	ScriptTier    string `json:"script_tier,omitempty" toml:"script_tier"`
	NarrationTier string `json:"narration_tier,omitempty" toml:"narration_tier"`
	VisualTier    string `json:"visual_tier,omitempty" toml:"visual_tier"`

	OfflineOnly   bool   `json:"offline_only,omitempty" toml:"offline_only"`
	CorrelationID string `json:"correlation_id,omitempty" toml:"correlation_id"`
}

const (
	minTargetDuration = 5 * time.Second
	maxTargetDuration = 2 * time.Hour
)

// ErrInvalidRequest marks request validation failures.
var ErrInvalidRequest = errors.New("invalid generation request")

// Validate reports whether the request can be scheduled.
func (r Request) Validate() error {
	if strings.TrimSpace(r.Topic) == "" {
		return fmt.Errorf("%w: topic is required", ErrInvalidRequest)
	}
	if r.TargetDuration < minTargetDuration || r.TargetDuration > maxTargetDuration {
		return fmt.Errorf("%w: target duration %s outside [%s, %s]", ErrInvalidRequest, r.TargetDuration, minTargetDuration, maxTargetDuration)
	}
	return nil
}

// Preference returns the requested tier or backend name for a stage. Stages
// without a per-request preference return "".
func (r Request) Preference(stage Stage) string {
	switch stage {
	case StageScript:
		return strings.TrimSpace(r.ScriptTier)
	case StageNarration:
		return strings.TrimSpace(r.NarrationTier)
	case StageVisuals:
		return strings.TrimSpace(r.VisualTier)
	default:
		return ""
	}
}
