// Package ffmpeg implements a Free-tier composition backend that renders the
// scene slides and narration into an H.264 MP4 with the ffmpeg binary.
package ffmpeg

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"reelforge/internal/fileutil"
	"reelforge/internal/generation"
	"reelforge/internal/services"
	"reelforge/internal/textutil"
)

// Name is the registry name of the composer.
const Name = "ffmpeg"

// CommandRunner executes name with args and returns its combined output.
type CommandRunner func(ctx context.Context, name string, args ...string) ([]byte, error)

// Composer renders slides plus narration into an MP4.
type Composer struct {
	binary   string
	run      CommandRunner
	lookPath func(string) (string, error)
}

// NewComposer returns a composer executing binary.
func NewComposer(binary string) *Composer {
	if strings.TrimSpace(binary) == "" {
		binary = "ffmpeg"
	}
	return &Composer{
		binary:   binary,
		run:      defaultCommandRunner,
		lookPath: exec.LookPath,
	}
}

// WithCommandRunner allows injecting a custom command runner for tests. The
// binary is then assumed present.
func (c *Composer) WithCommandRunner(r CommandRunner) {
	if c != nil && r != nil {
		c.run = r
		c.lookPath = func(name string) (string, error) { return name, nil }
	}
}

func (c *Composer) Name() string          { return Name }
func (c *Composer) Tier() generation.Tier { return generation.TierFree }

// RequiresNetwork reports false; rendering is local.
func (c *Composer) RequiresNetwork() bool { return false }

// Available reports whether the ffmpeg binary resolves.
func (c *Composer) Available(context.Context) (bool, string) {
	if _, err := c.lookPath(c.binary); err != nil {
		return false, fmt.Sprintf("%s not found on PATH", c.binary)
	}
	return true, ""
}

// Produce writes <slug>.mp4 into the job work directory.
func (c *Composer) Produce(ctx context.Context, in generation.CompositionInput) (generation.Composition, error) {
	visuals := in.Visuals.Visuals
	if len(visuals) == 0 {
		return generation.Composition{}, services.Wrap(services.ErrValidation, string(generation.StageComposition), Name, "no visuals to compose", nil)
	}
	if err := os.MkdirAll(in.WorkDir, 0o755); err != nil {
		return generation.Composition{}, fmt.Errorf("ensure work dir: %w", err)
	}

	listPath := filepath.Join(in.WorkDir, "slides.ffconcat")
	if err := os.WriteFile(listPath, []byte(concatList(in.Script, visuals)), 0o644); err != nil {
		return generation.Composition{}, fmt.Errorf("write concat list: %w", err)
	}
	defer os.Remove(listPath)

	outputPath := filepath.Join(in.WorkDir, textutil.Slug(in.Script.Title, 48)+".mp4")
	args := buildArgs(listPath, in.Narration.AudioPath, outputPath)

	in.Report(5, "rendering with ffmpeg")
	if output, err := c.run(ctx, c.binary, args...); err != nil {
		_ = os.Remove(outputPath)
		if errors.Is(err, exec.ErrNotFound) {
			return generation.Composition{}, services.Wrap(services.ErrDependencyNotFound, string(generation.StageComposition), Name, "ffmpeg binary missing", err)
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return generation.Composition{}, ctxErr
		}
		return generation.Composition{}, fmt.Errorf("ffmpeg compose: %w: %s", err, strings.TrimSpace(string(output)))
	}
	if _, err := fileutil.NonEmptyFile(outputPath); err != nil {
		return generation.Composition{}, fmt.Errorf("ffmpeg did not produce output: %w", err)
	}
	in.Report(100, "mp4 written")

	fields := map[string]string{"video_path": outputPath}
	if in.Narration.AudioPath != "" {
		fields["audio_path"] = in.Narration.AudioPath
	}
	return generation.Composition{
		OutputPath: outputPath,
		Format:     "mp4",
		OutputDir:  in.WorkDir,
		Fields:     fields,
	}, nil
}

// concatList builds an ffconcat script holding each slide for its scene's
// duration. The demuxer ignores the duration of the final entry, so the last
// slide is listed twice.
func concatList(script generation.Script, visuals []generation.Visual) string {
	durations := make(map[int]float64, len(script.Scenes))
	for _, scene := range script.Scenes {
		durations[scene.Index] = scene.Duration.Seconds()
	}
	var b strings.Builder
	b.WriteString("ffconcat version 1.0\n")
	for _, visual := range visuals {
		seconds := durations[visual.SceneIndex]
		if seconds <= 0 {
			seconds = 1
		}
		fmt.Fprintf(&b, "file %s\nduration %s\n", quote(visual.ImagePath), strconv.FormatFloat(seconds, 'f', 3, 64))
	}
	fmt.Fprintf(&b, "file %s\n", quote(visuals[len(visuals)-1].ImagePath))
	return b.String()
}

func quote(path string) string {
	return "'" + strings.ReplaceAll(path, "'", `'\''`) + "'"
}

func buildArgs(listPath, audioPath, outputPath string) []string {
	args := []string{"-y", "-hide_banner", "-loglevel", "error", "-f", "concat", "-safe", "0", "-i", listPath}
	if audioPath != "" {
		args = append(args, "-i", audioPath)
	}
	args = append(args, "-vf", "scale=trunc(iw/2)*2:trunc(ih/2)*2,fps=25", "-c:v", "libx264", "-pix_fmt", "yuv420p")
	if audioPath != "" {
		args = append(args, "-c:a", "aac", "-shortest")
	}
	return append(args, "-movflags", "+faststart", outputPath)
}

func defaultCommandRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	return cmd.CombinedOutput()
}
