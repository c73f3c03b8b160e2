// Package builtin implements the guaranteed, dependency-free backend for every
// pipeline stage. None of them touch the network or need credentials; output
// quality is deliberately modest (template script, silent narration, flat
// colour slides, animated GIF) so a job can always finish.
package builtin

import (
	"fmt"
	"os"

	"reelforge/internal/generation"
)

// Backend names.
const (
	TemplateScriptName   = "template"
	SilentNarrationName  = "silence"
	SolidVisualsName     = "solid-color"
	GIFComposerName      = "gif"
	LocalExportName      = "local-copy"
	defaultSlideWidth    = 320
	defaultSlideHeight   = 180
	defaultSampleRate    = 8000
	defaultSecondsPerCue = 15
)

// Options configures the guaranteed backends.
type Options struct {
	// OutputDir receives exported files.
	OutputDir     string
	SlideWidth    int
	SlideHeight   int
	SampleRate    int
	SecondsPerCue int
}

func (o Options) withDefaults() Options {
	if o.SlideWidth <= 0 {
		o.SlideWidth = defaultSlideWidth
	}
	if o.SlideHeight <= 0 {
		o.SlideHeight = defaultSlideHeight
	}
	if o.SampleRate <= 0 {
		o.SampleRate = defaultSampleRate
	}
	if o.SecondsPerCue <= 0 {
		o.SecondsPerCue = defaultSecondsPerCue
	}
	return o
}

// New constructs the guaranteed backend for stage. An error here is a
// configuration problem and should stop startup.
func New(stage generation.Stage, opts Options) (generation.Backend, error) {
	opts = opts.withDefaults()
	switch stage {
	case generation.StageScript:
		return NewTemplateScript(opts), nil
	case generation.StageNarration:
		return NewSilentNarration(opts), nil
	case generation.StageVisuals:
		return NewSolidVisuals(opts), nil
	case generation.StageComposition:
		return NewGIFComposer(), nil
	case generation.StageExport:
		if opts.OutputDir == "" {
			return nil, fmt.Errorf("local export: output directory is required")
		}
		if err := os.MkdirAll(opts.OutputDir, 0o755); err != nil {
			return nil, fmt.Errorf("local export: %w", err)
		}
		return NewLocalExport(opts.OutputDir), nil
	default:
		return nil, fmt.Errorf("no guaranteed backend for stage %q", stage)
	}
}

// NewAll constructs the guaranteed backend for every stage.
func NewAll(opts Options) (map[generation.Stage]generation.Backend, error) {
	out := make(map[generation.Stage]generation.Backend, len(generation.Stages()))
	for _, stage := range generation.Stages() {
		backend, err := New(stage, opts)
		if err != nil {
			return nil, err
		}
		out[stage] = backend
	}
	return out, nil
}

func ensureWorkDir(dir string) error {
	if dir == "" {
		return fmt.Errorf("work directory is required")
	}
	return os.MkdirAll(dir, 0o755)
}
