package main

import (
	"encoding/json"
	"os"
	"testing"

	"reelforge/internal/api"
)

func TestRunGeneratesVideoWithBuiltins(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := env.run(t, "run", "--duration", "6s", "Tide", "pools")
	if err != nil {
		t.Fatalf("run: %v\n%s", err, out)
	}
	requireContains(t, out, `Generating "Tide pools"`)
	requireContains(t, out, "completed")
	requireContains(t, out, "Succeeded")
	requireContains(t, out, env.cfg.Paths.OutputDir)
}

func TestRunJSONReportsArtifact(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := env.run(t, "run", "--json", "--topic", "Comets", "-d", "6s")
	if err != nil {
		t.Fatalf("run --json: %v", err)
	}
	var job api.Job
	if err := json.Unmarshal([]byte(out), &job); err != nil {
		t.Fatalf("decode job: %v\n%s", err, out)
	}
	if job.Status != "Succeeded" || job.Artifact == nil {
		t.Fatalf("job = %+v, want Succeeded with artifact", job)
	}
	path := job.Artifact.ExportedPath
	if path == "" {
		path = job.Artifact.Path
	}
	if info, err := os.Stat(path); err != nil || info.Size() == 0 {
		t.Fatalf("artifact %s missing or empty: %v", path, err)
	}
}

func TestRunRejectsInvalidBrief(t *testing.T) {
	env := setupCLITestEnv(t)

	if _, _, err := env.run(t, "run", "--duration", "6s"); err == nil {
		t.Fatal("run without topic should fail")
	}
	if _, _, err := env.run(t, "run", "--duration", "1s", "Comets"); err == nil {
		t.Fatal("run with a too-short duration should fail")
	}
}

func TestJobOutcomeError(t *testing.T) {
	if err := jobOutcomeError(api.Job{ID: "abc", Status: "Succeeded"}); err != nil {
		t.Fatalf("succeeded job returned %v", err)
	}
	err := jobOutcomeError(api.Job{
		ID:     "abc",
		Status: "Failed",
		Errors: []api.ErrorRecord{{Code: "StageTimeout"}},
	})
	if err == nil {
		t.Fatal("failed job returned nil")
	}
	requireContains(t, err.Error(), "StageTimeout")
	err = jobOutcomeError(api.Job{ID: "abc", Status: "Canceled", CancelReason: "shutdown"})
	if err == nil {
		t.Fatal("canceled job returned nil")
	}
	requireContains(t, err.Error(), "shutdown")
}

func TestLogsLocalReadsJobLog(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := env.run(t, "run", "--json", "-d", "6s", "Glaciers")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	var job api.Job
	if err := json.Unmarshal([]byte(out), &job); err != nil {
		t.Fatalf("decode job: %v", err)
	}

	out, _, err = env.run(t, "logs", "--local", "--job", job.ID)
	if err != nil {
		t.Fatalf("logs --local: %v", err)
	}
	requireContains(t, out, "pipeline started")
}
