package builtin

import (
	"context"
	"fmt"
	"hash/fnv"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"os"
	"path/filepath"

	"reelforge/internal/generation"
	"reelforge/internal/services"
)

// SolidVisuals renders one flat-colour PNG slide per scene with a progress
// band along the bottom edge.
type SolidVisuals struct {
	width  int
	height int
}

// NewSolidVisuals returns the guaranteed visuals backend.
func NewSolidVisuals(opts Options) *SolidVisuals {
	opts = opts.withDefaults()
	return &SolidVisuals{width: opts.SlideWidth, height: opts.SlideHeight}
}

func (v *SolidVisuals) Name() string          { return SolidVisualsName }
func (v *SolidVisuals) Tier() generation.Tier { return generation.TierGuaranteed }

var slidePalette = []color.RGBA{
	{0x26, 0x46, 0x53, 0xff},
	{0x2a, 0x9d, 0x8f, 0xff},
	{0xe9, 0xc4, 0x6a, 0xff},
	{0xf4, 0xa2, 0x61, 0xff},
	{0xe7, 0x6f, 0x51, 0xff},
	{0x6d, 0x59, 0x7a, 0xff},
}

// Produce writes visuals/scene-NN.png under the job work directory.
func (v *SolidVisuals) Produce(ctx context.Context, in generation.VisualInput) (generation.VisualSet, error) {
	scenes := in.Script.Scenes
	if len(scenes) == 0 {
		return generation.VisualSet{}, services.Wrap(services.ErrValidation, string(generation.StageVisuals), "solid-color", "script has no scenes", nil)
	}
	dir := filepath.Join(in.WorkDir, "visuals")
	if err := ensureWorkDir(dir); err != nil {
		return generation.VisualSet{}, err
	}

	set := generation.VisualSet{Visuals: make([]generation.Visual, 0, len(scenes))}
	for i, scene := range scenes {
		if err := ctx.Err(); err != nil {
			return generation.VisualSet{}, err
		}
		path := filepath.Join(dir, fmt.Sprintf("scene-%02d.png", scene.Index))
		img := v.render(scene, i, len(scenes))
		if err := writePNG(path, img); err != nil {
			return generation.VisualSet{}, err
		}
		set.Visuals = append(set.Visuals, generation.Visual{
			SceneIndex: scene.Index,
			ImagePath:  path,
			Width:      v.width,
			Height:     v.height,
		})
		in.Report(float64(i+1)/float64(len(scenes))*100, "slide "+scene.Heading)
	}
	return set, nil
}

func (v *SolidVisuals) render(scene generation.Scene, position, total int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, v.width, v.height))
	bg := slidePalette[colourIndex(scene.Heading, position)]
	draw.Draw(img, img.Bounds(), &image.Uniform{C: bg}, image.Point{}, draw.Src)

	bandHeight := max(v.height/12, 2)
	bandWidth := v.width * (position + 1) / total
	band := image.Rect(0, v.height-bandHeight, bandWidth, v.height)
	draw.Draw(img, band, &image.Uniform{C: color.RGBA{0xf1, 0xfa, 0xee, 0xff}}, image.Point{}, draw.Src)
	return img
}

func colourIndex(heading string, position int) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(heading))
	return int((h.Sum32() + uint32(position)) % uint32(len(slidePalette)))
}

func writePNG(path string, img image.Image) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create slide: %w", err)
	}
	if err := png.Encode(file, img); err != nil {
		_ = file.Close()
		return fmt.Errorf("encode slide: %w", err)
	}
	return file.Close()
}
