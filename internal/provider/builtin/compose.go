package builtin

import (
	"context"
	"fmt"
	"image"
	"image/color/palette"
	"image/draw"
	"image/gif"
	"image/png"
	"os"
	"path/filepath"

	"reelforge/internal/generation"
	"reelforge/internal/services"
	"reelforge/internal/textutil"
)

// GIFComposer assembles the scene slides into an animated GIF, holding each
// frame for its scene's duration. Narration audio is not embedded; its path
// is reported alongside the output.
type GIFComposer struct{}

// NewGIFComposer returns the guaranteed composition backend.
func NewGIFComposer() *GIFComposer { return &GIFComposer{} }

func (c *GIFComposer) Name() string          { return GIFComposerName }
func (c *GIFComposer) Tier() generation.Tier { return generation.TierGuaranteed }

// maxFrameDelay is the largest per-frame delay GIF readers handle reliably,
// in hundredths of a second.
const maxFrameDelay = 65535

// Produce writes <slug>.gif into the job work directory.
func (c *GIFComposer) Produce(ctx context.Context, in generation.CompositionInput) (generation.Composition, error) {
	visuals := in.Visuals.Visuals
	if len(visuals) == 0 {
		return generation.Composition{}, services.Wrap(services.ErrValidation, string(generation.StageComposition), "gif", "no visuals to compose", nil)
	}
	if err := ensureWorkDir(in.WorkDir); err != nil {
		return generation.Composition{}, err
	}

	durations := make(map[int]int, len(in.Script.Scenes))
	for _, scene := range in.Script.Scenes {
		durations[scene.Index] = int(scene.Duration.Milliseconds() / 10)
	}

	anim := &gif.GIF{LoopCount: 0}
	for i, visual := range visuals {
		if err := ctx.Err(); err != nil {
			return generation.Composition{}, err
		}
		frame, err := loadFrame(visual.ImagePath)
		if err != nil {
			return generation.Composition{}, err
		}
		anim.Image = append(anim.Image, frame)
		anim.Delay = append(anim.Delay, min(max(durations[visual.SceneIndex], 1), maxFrameDelay))
		in.Report(float64(i+1)/float64(len(visuals))*90, "frame added")
	}

	name := textutil.Slug(in.Script.Title, 48) + ".gif"
	outputPath := filepath.Join(in.WorkDir, name)
	file, err := os.Create(outputPath)
	if err != nil {
		return generation.Composition{}, fmt.Errorf("create gif: %w", err)
	}
	if err := gif.EncodeAll(file, anim); err != nil {
		_ = file.Close()
		_ = os.Remove(outputPath)
		return generation.Composition{}, fmt.Errorf("encode gif: %w", err)
	}
	if err := file.Close(); err != nil {
		return generation.Composition{}, fmt.Errorf("close gif: %w", err)
	}
	in.Report(100, "gif written")

	comp := generation.Composition{
		OutputPath: outputPath,
		Format:     "gif",
		OutputDir:  in.WorkDir,
	}
	if in.Narration.AudioPath != "" {
		comp.Fields = map[string]string{"audio_path": in.Narration.AudioPath}
	}
	return comp, nil
}

func loadFrame(path string) (*image.Paletted, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open slide: %w", err)
	}
	defer file.Close()
	src, err := png.Decode(file)
	if err != nil {
		return nil, fmt.Errorf("decode slide %s: %w", filepath.Base(path), err)
	}
	bounds := src.Bounds()
	frame := image.NewPaletted(bounds, palette.Plan9)
	draw.FloydSteinberg.Draw(frame, bounds, src, bounds.Min)
	return frame, nil
}
