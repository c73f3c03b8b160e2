package ffmpeg_test

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"time"

	"reelforge/internal/faults"
	"reelforge/internal/generation"
	"reelforge/internal/provider/ffmpeg"
)

func compositionInput(t *testing.T) generation.CompositionInput {
	t.Helper()
	dir := t.TempDir()
	return generation.CompositionInput{
		StageContext: generation.StageContext{JobID: "job-1", WorkDir: dir},
		Script: generation.Script{
			Title: "Deep Sea Vents",
			Scenes: []generation.Scene{
				{Index: 0, Duration: 4 * time.Second},
				{Index: 1, Duration: 6 * time.Second},
			},
		},
		Narration: generation.Narration{AudioPath: filepath.Join(dir, "narration.wav")},
		Visuals: generation.VisualSet{Visuals: []generation.Visual{
			{SceneIndex: 0, ImagePath: filepath.Join(dir, "scene-00.png")},
			{SceneIndex: 1, ImagePath: filepath.Join(dir, "scene-01.png")},
		}},
	}
}

func TestComposerProducesMP4(t *testing.T) {
	in := compositionInput(t)
	var gotArgs []string
	var concat string
	composer := ffmpeg.NewComposer("ffmpeg")
	composer.WithCommandRunner(func(_ context.Context, name string, args ...string) ([]byte, error) {
		if name != "ffmpeg" {
			t.Fatalf("unexpected binary %q", name)
		}
		gotArgs = args
		idx := slices.Index(args, "-i")
		content, err := os.ReadFile(args[idx+1])
		if err != nil {
			t.Fatalf("read concat list: %v", err)
		}
		concat = string(content)
		return nil, os.WriteFile(args[len(args)-1], []byte("mp4"), 0o644)
	})

	out, err := composer.Produce(context.Background(), in)
	if err != nil {
		t.Fatalf("Produce: %v", err)
	}
	if filepath.Base(out.OutputPath) != "deep-sea-vents.mp4" || out.Format != "mp4" {
		t.Fatalf("unexpected composition %+v", out)
	}
	if out.Fields["video_path"] != out.OutputPath || out.Fields["audio_path"] != in.Narration.AudioPath {
		t.Fatalf("unexpected fields %+v", out.Fields)
	}
	if !slices.Contains(gotArgs, "-shortest") || !slices.Contains(gotArgs, in.Narration.AudioPath) {
		t.Fatalf("expected narration mapped into ffmpeg args: %v", gotArgs)
	}
	if strings.Count(concat, "scene-01.png") != 2 || !strings.Contains(concat, "duration 4.000") {
		t.Fatalf("unexpected concat list:\n%s", concat)
	}
}

func TestComposerRejectsEmptyVisuals(t *testing.T) {
	in := compositionInput(t)
	in.Visuals = generation.VisualSet{}
	composer := ffmpeg.NewComposer("")
	composer.WithCommandRunner(func(context.Context, string, ...string) ([]byte, error) {
		t.Fatal("runner must not be called")
		return nil, nil
	})
	_, err := composer.Produce(context.Background(), in)
	if rec := faults.Classify(err, "Composition", ffmpeg.Name); rec.Kind != faults.KindInvalidInput {
		t.Fatalf("expected InvalidInput, got %+v", rec)
	}
}

func TestComposerMissingBinaryClassifies(t *testing.T) {
	in := compositionInput(t)
	composer := ffmpeg.NewComposer("ffmpeg")
	composer.WithCommandRunner(func(context.Context, string, ...string) ([]byte, error) {
		return nil, &exec.Error{Name: "ffmpeg", Err: exec.ErrNotFound}
	})
	_, err := composer.Produce(context.Background(), in)
	rec := faults.Classify(err, "Composition", ffmpeg.Name)
	if rec.Kind != faults.KindDependencyNotFound {
		t.Fatalf("expected DependencyNotFound, got %+v", rec)
	}
}

func TestComposerRunnerFailureIncludesOutput(t *testing.T) {
	in := compositionInput(t)
	composer := ffmpeg.NewComposer("ffmpeg")
	composer.WithCommandRunner(func(context.Context, string, ...string) ([]byte, error) {
		return []byte("Unknown encoder 'libx264'"), errors.New("exit status 1")
	})
	_, err := composer.Produce(context.Background(), in)
	if err == nil || !strings.Contains(err.Error(), "libx264") {
		t.Fatalf("expected ffmpeg output in error, got %v", err)
	}
}

func TestComposerAvailability(t *testing.T) {
	t.Setenv("PATH", "")
	composer := ffmpeg.NewComposer("ffmpeg")
	ok, reason := composer.Available(context.Background())
	if ok || reason == "" {
		t.Fatalf("expected unavailable with reason, got %v %q", ok, reason)
	}
	if composer.Tier() != generation.TierFree || composer.RequiresNetwork() {
		t.Fatal("ffmpeg composer must be an offline Free backend")
	}
}
