package generation

import "context"

// Backend identifies a stage provider implementation.
type Backend interface {
	Name() string
	Tier() Tier
}

// ScriptProvider generates a script from a brief.
type ScriptProvider interface {
	Backend
	Produce(ctx context.Context, in ScriptInput) (Script, error)
}

// NarrationProvider synthesizes narration audio for a script.
type NarrationProvider interface {
	Backend
	Produce(ctx context.Context, in NarrationInput) (Narration, error)
}

// VisualProvider generates one visual per scene.
type VisualProvider interface {
	Backend
	Produce(ctx context.Context, in VisualInput) (VisualSet, error)
}

// CompositionProvider renders narration and visuals into a media file.
type CompositionProvider interface {
	Backend
	Produce(ctx context.Context, in CompositionInput) (Composition, error)
}

// ExportProvider publishes a composed file to its final location.
type ExportProvider interface {
	Backend
	Produce(ctx context.Context, in ExportInput) (Export, error)
}

// Implements reports whether backend satisfies the provider contract of stage.
func Implements(stage Stage, backend Backend) bool {
	switch stage {
	case StageScript:
		_, ok := backend.(ScriptProvider)
		return ok
	case StageNarration:
		_, ok := backend.(NarrationProvider)
		return ok
	case StageVisuals:
		_, ok := backend.(VisualProvider)
		return ok
	case StageComposition:
		_, ok := backend.(CompositionProvider)
		return ok
	case StageExport:
		_, ok := backend.(ExportProvider)
		return ok
	default:
		return false
	}
}

// AvailabilityChecker is implemented by backends whose readiness depends on
// the host (credentials, binaries, reachable services). Backends without it
// are always available.
type AvailabilityChecker interface {
	Available(ctx context.Context) (bool, string)
}

// NetworkBound is implemented by backends that need network access.
type NetworkBound interface {
	RequiresNetwork() bool
}
