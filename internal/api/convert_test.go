package api_test

import (
	"testing"
	"time"

	"reelforge/internal/api"
	"reelforge/internal/faults"
	"reelforge/internal/generation"
	"reelforge/internal/provider"
	"reelforge/internal/queue"
)

func TestBriefRoundTripsRequest(t *testing.T) {
	req := generation.Request{
		Topic:          "Coral reefs",
		Tone:           "calm",
		TargetDuration: 90 * time.Second,
		NarrationTier:  "Pro",
		OfflineOnly:    true,
		CorrelationID:  "abc",
	}
	got := api.FromRequest(req).Request()
	if got != req {
		t.Fatalf("round trip = %+v, want %+v", got, req)
	}
}

func TestFromJobCarriesStagesAndErrors(t *testing.T) {
	created := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	job := queue.NewJob("job-1", generation.Request{Topic: "Comets", TargetDuration: time.Minute}, created)
	job.Status = queue.StatusFailed
	started := created.Add(time.Second)
	ended := started.Add(1500 * time.Millisecond)
	rec := faults.New(faults.KindTimeout, "Composition", "took too long")
	rec.Stage = "Composition"
	job.Stages[3] = queue.StageResult{
		Stage:        generation.StageComposition,
		Status:       queue.StepFailed,
		Provider:     "ffmpeg",
		Tier:         generation.TierFree,
		IsFallback:   true,
		FallbackFrom: "Pro",
		Error:        &rec,
		StartedAt:    &started,
		EndedAt:      &ended,
	}
	job.Errors = []faults.Record{rec}

	dto := api.FromJob(job)
	if dto.Status != "Failed" || dto.Topic != "Comets" {
		t.Fatalf("dto = %+v", dto)
	}
	if dto.CreatedAt != "2026-03-01T12:00:00.000Z" {
		t.Fatalf("createdAt = %q", dto.CreatedAt)
	}
	if len(dto.Stages) != len(generation.Stages()) {
		t.Fatalf("stages = %d", len(dto.Stages))
	}
	comp := dto.Stages[3]
	if comp.Error == nil || comp.Error.Code != "Timeout:Composition" || comp.DurationMs != 1500 {
		t.Fatalf("composition = %+v", comp)
	}
	if !comp.IsFallback || comp.FallbackFrom != "Pro" {
		t.Fatalf("fallback not carried: %+v", comp)
	}
	if len(dto.Errors) != 1 || dto.Errors[0].Kind != "Timeout" {
		t.Fatalf("errors = %+v", dto.Errors)
	}
	if dto.Stages[0].Error != nil {
		t.Fatalf("pending stage has error %+v", dto.Stages[0].Error)
	}
}

func TestFromEventMarksTerminal(t *testing.T) {
	evt := api.FromEvent(queue.Event{
		Type:     queue.EventCompleted,
		JobID:    "job-2",
		Artifact: &queue.Artifact{Path: "/out/a.mp4", SizeBytes: 10, Layer: "composition_output"},
	})
	if !evt.Terminal || evt.Artifact == nil || evt.Artifact.Path != "/out/a.mp4" {
		t.Fatalf("event = %+v", evt)
	}
	progress := api.FromEvent(queue.Event{Type: queue.EventStepProgress, Stage: generation.StageScript, Percent: 40})
	if progress.Terminal || progress.Stage != "Script" {
		t.Fatalf("progress event = %+v", progress)
	}
}

func TestFromSelectionKeepsSkips(t *testing.T) {
	sel := api.FromSelection(provider.Selection{
		Stage:   generation.StageNarration,
		Backend: "silence",
		Tier:    generation.TierGuaranteed,
		Skipped: []provider.Skip{{Backend: "elevenlabs", Reason: "not registered"}},
	})
	if len(sel.Skipped) != 1 || sel.Skipped[0].Backend != "elevenlabs" {
		t.Fatalf("skipped = %+v", sel.Skipped)
	}
}

func TestIsTerminalStatus(t *testing.T) {
	for status, want := range map[string]bool{"Succeeded": true, "canceled": true, "Running": false, "bogus": false} {
		if got := api.IsTerminalStatus(status); got != want {
			t.Fatalf("IsTerminalStatus(%q) = %v, want %v", status, got, want)
		}
	}
}
