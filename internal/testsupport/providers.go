package testsupport

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"reelforge/internal/generation"
)

// FakeBackend carries the knobs shared by every fake stage provider.
type FakeBackend struct {
	BackendName string
	BackendTier generation.Tier

	// Unavailable makes Available report false with this reason.
	Unavailable string
	// Network marks the backend as network-bound.
	Network bool
	// ProbePanic makes Available panic.
	ProbePanic bool

	// Err is returned from Produce. With FailFirst > 0 only the first
	// FailFirst calls fail.
	Err       error
	FailFirst int
	// Panic makes Produce panic with this value.
	Panic any
	// Delay blocks Produce until it elapses or ctx is done.
	Delay time.Duration
	// Block blocks Produce until ctx is done or the channel is closed.
	Block chan struct{}

	calls atomic.Int32
}

func (f *FakeBackend) Name() string { return f.BackendName }

func (f *FakeBackend) Tier() generation.Tier { return f.BackendTier }

func (f *FakeBackend) Available(context.Context) (bool, string) {
	if f.ProbePanic {
		panic("probe exploded")
	}
	if f.Unavailable != "" {
		return false, f.Unavailable
	}
	return true, ""
}

func (f *FakeBackend) RequiresNetwork() bool { return f.Network }

// Calls reports how many times Produce ran.
func (f *FakeBackend) Calls() int { return int(f.calls.Load()) }

func (f *FakeBackend) run(ctx context.Context) error {
	n := f.calls.Add(1)
	if f.Panic != nil {
		panic(f.Panic)
	}
	if f.Delay > 0 {
		timer := time.NewTimer(f.Delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}
	}
	if f.Block != nil {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-f.Block:
		}
	}
	if f.Err != nil && (f.FailFirst == 0 || int(n) <= f.FailFirst) {
		return f.Err
	}
	return nil
}

// FakeScript returns a fixed three-scene script.
type FakeScript struct {
	FakeBackend
}

func NewFakeScript(name string, tier generation.Tier) *FakeScript {
	return &FakeScript{FakeBackend{BackendName: name, BackendTier: tier}}
}

func (f *FakeScript) Produce(ctx context.Context, in generation.ScriptInput) (generation.Script, error) {
	if err := f.run(ctx); err != nil {
		return generation.Script{}, err
	}
	in.Report(50, "drafting")
	per := in.Request.TargetDuration / 3
	script := generation.Script{Title: in.Request.Topic}
	for i := range 3 {
		script.Scenes = append(script.Scenes, generation.Scene{
			Index:        i,
			Heading:      fmt.Sprintf("Part %d", i+1),
			Narration:    fmt.Sprintf("%s part %d", in.Request.Topic, i+1),
			VisualPrompt: in.Request.Topic,
			Duration:     per,
		})
	}
	return script, nil
}

// FakeNarration reports an audio file without rendering one.
type FakeNarration struct {
	FakeBackend
}

func NewFakeNarration(name string, tier generation.Tier) *FakeNarration {
	return &FakeNarration{FakeBackend{BackendName: name, BackendTier: tier}}
}

func (f *FakeNarration) Produce(ctx context.Context, in generation.NarrationInput) (generation.Narration, error) {
	if err := f.run(ctx); err != nil {
		return generation.Narration{}, err
	}
	return generation.Narration{
		AudioPath:  filepath.Join(in.WorkDir, f.BackendName+".wav"),
		Duration:   in.Script.TotalDuration(),
		SampleRate: 8000,
	}, nil
}

// FakeVisuals reports one image per scene without rendering.
type FakeVisuals struct {
	FakeBackend
}

func NewFakeVisuals(name string, tier generation.Tier) *FakeVisuals {
	return &FakeVisuals{FakeBackend{BackendName: name, BackendTier: tier}}
}

func (f *FakeVisuals) Produce(ctx context.Context, in generation.VisualInput) (generation.VisualSet, error) {
	if err := f.run(ctx); err != nil {
		return generation.VisualSet{}, err
	}
	var set generation.VisualSet
	for _, scene := range in.Script.Scenes {
		set.Visuals = append(set.Visuals, generation.Visual{
			SceneIndex: scene.Index,
			ImagePath:  filepath.Join(in.WorkDir, fmt.Sprintf("scene-%02d.png", scene.Index)),
			Width:      16,
			Height:     9,
		})
	}
	return set, nil
}

// FakeComposition writes a small file into the job work dir and reports it
// the way the configured knobs describe.
type FakeComposition struct {
	FakeBackend

	// FileName is the rendered file name; defaults to "<name>.mp4".
	FileName string
	// OmitOutputPath leaves Composition.OutputPath empty.
	OmitOutputPath bool
	// FieldKey, when set, reports the path under this Fields key.
	FieldKey string
	// Size of the written file; zero writes an empty file, negative skips writing.
	Size int64

	mu       sync.Mutex
	lastPath string
}

func NewFakeComposition(name string, tier generation.Tier) *FakeComposition {
	return &FakeComposition{FakeBackend: FakeBackend{BackendName: name, BackendTier: tier}, Size: 64}
}

// LastPath returns the file written by the most recent Produce call.
func (f *FakeComposition) LastPath() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastPath
}

func (f *FakeComposition) Produce(ctx context.Context, in generation.CompositionInput) (generation.Composition, error) {
	if err := f.run(ctx); err != nil {
		return generation.Composition{}, err
	}
	name := f.FileName
	if name == "" {
		name = f.BackendName + ".mp4"
	}
	path := filepath.Join(in.WorkDir, name)
	if f.Size >= 0 {
		if err := os.MkdirAll(in.WorkDir, 0o755); err != nil {
			return generation.Composition{}, err
		}
		if err := os.WriteFile(path, make([]byte, f.Size), 0o644); err != nil {
			return generation.Composition{}, err
		}
	}
	f.mu.Lock()
	f.lastPath = path
	f.mu.Unlock()

	out := generation.Composition{Format: filepath.Ext(name), OutputDir: in.WorkDir}
	if !f.OmitOutputPath {
		out.OutputPath = path
	}
	if f.FieldKey != "" {
		out.Fields = map[string]string{f.FieldKey: path}
	}
	return out, nil
}

// FakeExport reports the source path as the final path without copying.
type FakeExport struct {
	FakeBackend

	// FinalName, when set, writes a file of that name into the work dir and
	// reports it instead of the source path.
	FinalName string
	// OmitFinalPath leaves Export.FinalPath empty.
	OmitFinalPath bool
}

func NewFakeExport(name string, tier generation.Tier) *FakeExport {
	return &FakeExport{FakeBackend: FakeBackend{BackendName: name, BackendTier: tier}}
}

func (f *FakeExport) Produce(ctx context.Context, in generation.ExportInput) (generation.Export, error) {
	if err := f.run(ctx); err != nil {
		return generation.Export{}, err
	}
	final := in.SourcePath
	if f.FinalName != "" {
		final = filepath.Join(in.WorkDir, f.FinalName)
		if err := os.MkdirAll(in.WorkDir, 0o755); err != nil {
			return generation.Export{}, err
		}
		if err := os.WriteFile(final, []byte("exported"), 0o644); err != nil {
			return generation.Export{}, err
		}
	}
	out := generation.Export{Format: filepath.Ext(final)}
	if !f.OmitFinalPath {
		out.FinalPath = final
	}
	return out, nil
}
