package stage_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"reelforge/internal/faults"
	"reelforge/internal/generation"
	"reelforge/internal/provider"
	"reelforge/internal/queue"
	"reelforge/internal/services"
	"reelforge/internal/stage"
)

func call(st generation.Stage, timeout time.Duration) stage.Call {
	return stage.Call{
		Stage:   st,
		Timeout: timeout,
		Selection: provider.Selection{
			Stage:        st,
			Backend:      "fake",
			Tier:         generation.TierFree,
			IsFallback:   true,
			FallbackFrom: "Pro",
		},
	}
}

func TestExecuteSuccessCarriesSelection(t *testing.T) {
	exec := stage.NewExecutor(nil)
	res, script := stage.Run(context.Background(), exec, call(generation.StageScript, time.Second),
		func(ctx context.Context) (generation.Script, error) {
			return generation.Script{Title: "Tides"}, nil
		})
	if res.Status != queue.StepSucceeded {
		t.Fatalf("status = %s", res.Status)
	}
	if script.Title != "Tides" {
		t.Fatalf("typed payload = %+v", script)
	}
	if res.Provider != "fake" || !res.IsFallback || res.FallbackFrom != "Pro" {
		t.Fatalf("selection not recorded: %+v", res)
	}
	if res.StartedAt == nil || res.EndedAt == nil || res.Error != nil {
		t.Fatalf("unexpected result %+v", res)
	}
}

func TestExecuteClassifiesProviderErrors(t *testing.T) {
	exec := stage.NewExecutor(nil)
	cases := []struct {
		name string
		err  error
		code string
		kind faults.Kind
	}{
		{"credential", services.Wrap(services.ErrMissingCredential, "narration", "synthesize", "API key not set", nil), "MissingCredential:fake", faults.KindMissingCredential},
		{"transient", services.Wrap(services.ErrTransient, "narration", "synthesize", "503 from upstream", nil), "TransientNetworkFailure", faults.KindTransientNetworkFailure},
		{"unknown", errors.New("bad state"), "InternalError", faults.KindInternalError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res := exec.Execute(context.Background(), call(generation.StageNarration, time.Second), func(context.Context) (any, error) {
				return nil, tc.err
			})
			if res.Status != queue.StepFailed || res.Error == nil {
				t.Fatalf("expected failure, got %+v", res)
			}
			if res.Error.Code != tc.code || res.Error.Kind != tc.kind {
				t.Fatalf("error = %+v, want %s", res.Error, tc.code)
			}
			if res.Error.Stage != string(generation.StageNarration) || res.Error.Remediation == "" {
				t.Fatalf("error lacks context: %+v", res.Error)
			}
		})
	}
}

func TestExecuteTimesOutUncooperativeProvider(t *testing.T) {
	exec := stage.NewExecutor(nil)
	release := make(chan struct{})
	defer close(release)

	start := time.Now()
	res := exec.Execute(context.Background(), call(generation.StageComposition, 20*time.Millisecond), func(context.Context) (any, error) {
		<-release
		return "late", nil
	})
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Fatalf("Execute waited %s for an uncooperative provider", elapsed)
	}
	if res.Status != queue.StepFailed || res.Error == nil || res.Error.Code != "Timeout:Composition" {
		t.Fatalf("expected Timeout:Composition, got %+v", res)
	}
	if res.Payload != nil {
		t.Fatal("timed out stage kept a payload")
	}
}

func TestExecuteCancellation(t *testing.T) {
	exec := stage.NewExecutor(nil)
	ctx, cancel := context.WithCancel(context.Background())
	started := make(chan struct{})
	go func() {
		<-started
		cancel()
	}()
	res := exec.Execute(ctx, call(generation.StageVisuals, time.Minute), func(ctx context.Context) (any, error) {
		close(started)
		<-ctx.Done()
		return "partial", nil
	})
	if res.Status != queue.StepCanceled {
		t.Fatalf("status = %s", res.Status)
	}
	if res.Payload != nil || res.Error != nil {
		t.Fatalf("canceled stage kept output: %+v", res)
	}
}

func TestExecuteRecoversPanics(t *testing.T) {
	exec := stage.NewExecutor(nil)
	res := exec.Execute(context.Background(), call(generation.StageExport, 0), func(context.Context) (any, error) {
		panic("index out of range")
	})
	if res.Status != queue.StepFailed || res.Error == nil || res.Error.Kind != faults.KindInternalError {
		t.Fatalf("expected InternalError failure, got %+v", res)
	}
}

func TestFromSelection(t *testing.T) {
	h := stage.FromSelection(provider.Selection{
		Stage:        generation.StageNarration,
		Backend:      "silence",
		Tier:         generation.TierGuaranteed,
		IsFallback:   true,
		FallbackFrom: "Pro",
	})
	if !h.Ready || h.Name != "Narration" || h.Detail != "silence (Guaranteed), fallback from Pro" {
		t.Fatalf("unexpected health %+v", h)
	}
}
