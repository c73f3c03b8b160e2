package queue_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"reelforge/internal/faults"
	"reelforge/internal/generation"
	"reelforge/internal/queue"
)

func testRequest(topic string) generation.Request {
	return generation.Request{Topic: topic, TargetDuration: 30 * time.Second}
}

func startQueue(t *testing.T, settings queue.Settings, runner queue.Runner, probe queue.LoadProbe) *queue.Queue {
	t.Helper()
	if settings.AdmissionPoll == 0 {
		settings.AdmissionPoll = 5 * time.Millisecond
	}
	q, err := queue.New(queue.Options{Settings: settings, Runner: runner, Probe: probe})
	if err != nil {
		t.Fatalf("queue.New: %v", err)
	}
	if err := q.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = q.Stop(ctx)
	})
	return q
}

func waitFor(t *testing.T, q *queue.Queue, id string, cond func(queue.Job) bool) queue.Job {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for {
		job, err := q.GetStatus(id)
		if err != nil {
			t.Fatalf("GetStatus(%s): %v", id, err)
		}
		if cond(job) {
			return job
		}
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for job %s; last status %s", id, job.Status)
		}
		time.Sleep(2 * time.Millisecond)
	}
}

func terminal(job queue.Job) bool { return job.Status.IsTerminal() }

func succeedRunner(ctx context.Context, tr *queue.Tracker) (*queue.Artifact, error) {
	for _, stage := range generation.Stages() {
		tr.StageStarted(queue.StageResult{Stage: stage, Provider: "fake"})
		tr.Progress(stage, 50, "halfway")
		tr.StageFinished(queue.StageResult{Stage: stage, Status: queue.StepSucceeded, Provider: "fake"})
	}
	return &queue.Artifact{Path: "/tmp/out.mp4", SizeBytes: 10, Layer: "composition_output"}, nil
}

func TestEnqueueRejectsInvalidRequest(t *testing.T) {
	q := startQueue(t, queue.Settings{}, queue.RunnerFunc(succeedRunner), nil)
	if _, err := q.Enqueue(generation.Request{TargetDuration: time.Minute}); !errors.Is(err, generation.ErrInvalidRequest) {
		t.Fatalf("expected invalid request error, got %v", err)
	}
}

func TestJobSucceedsAndStreamsEvents(t *testing.T) {
	q := startQueue(t, queue.Settings{}, queue.RunnerFunc(succeedRunner), nil)
	id, err := q.Enqueue(testRequest("volcanoes"))
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	job := waitFor(t, q, id, terminal)
	if job.Status != queue.StatusSucceeded {
		t.Fatalf("status = %s", job.Status)
	}
	if job.Artifact == nil || job.Artifact.Path != "/tmp/out.mp4" {
		t.Fatalf("unexpected artifact %+v", job.Artifact)
	}
	if job.CorrelationID == "" {
		t.Fatal("expected generated correlation id")
	}
	for i, res := range job.Stages {
		if res.Stage != generation.Stages()[i] || res.Status != queue.StepSucceeded {
			t.Fatalf("stage %d = %+v", i, res)
		}
	}

	sub, err := q.Subscribe(id)
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer sub.Close()
	var types []queue.EventType
	var statuses []queue.Status
	for evt := range sub.C {
		types = append(types, evt.Type)
		if evt.Type == queue.EventStatusChanged {
			statuses = append(statuses, evt.Status)
		}
	}
	if len(types) == 0 || types[len(types)-1] != queue.EventCompleted {
		t.Fatalf("expected replay ending in Completed, got %v", types)
	}
	want := []queue.Status{queue.StatusQueued, queue.StatusRunning, queue.StatusSucceeded}
	if len(statuses) != len(want) {
		t.Fatalf("status events = %v, want %v", statuses, want)
	}
	for i := range want {
		if statuses[i] != want[i] {
			t.Fatalf("status events = %v, want %v", statuses, want)
		}
	}
}

func TestBoundedConcurrency(t *testing.T) {
	var active, peak atomic.Int32
	runner := queue.RunnerFunc(func(ctx context.Context, tr *queue.Tracker) (*queue.Artifact, error) {
		n := active.Add(1)
		for {
			old := peak.Load()
			if n <= old || peak.CompareAndSwap(old, n) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		active.Add(-1)
		return succeedRunner(ctx, tr)
	})
	const k, n = 2, 7
	q := startQueue(t, queue.Settings{MaxConcurrentJobs: k}, runner, nil)

	ids := make([]string, 0, n)
	for i := range n {
		id, err := q.Enqueue(testRequest("job"))
		if err != nil {
			t.Fatalf("Enqueue %d: %v", i, err)
		}
		ids = append(ids, id)
	}
	for _, id := range ids {
		if job := waitFor(t, q, id, terminal); job.Status != queue.StatusSucceeded {
			t.Fatalf("job %s status %s", id, job.Status)
		}
	}
	if got := peak.Load(); got > k {
		t.Fatalf("peak concurrency %d exceeds %d", got, k)
	}
}

func TestCancelQueuedJobNeverRuns(t *testing.T) {
	release := make(chan struct{})
	var ran sync.Map
	runner := queue.RunnerFunc(func(ctx context.Context, tr *queue.Tracker) (*queue.Artifact, error) {
		ran.Store(tr.ID(), true)
		<-release
		return succeedRunner(ctx, tr)
	})
	q := startQueue(t, queue.Settings{MaxConcurrentJobs: 1}, runner, nil)

	first, _ := q.Enqueue(testRequest("first"))
	waitFor(t, q, first, func(j queue.Job) bool { return j.Status == queue.StatusRunning })
	second, _ := q.Enqueue(testRequest("second"))

	if err := q.Cancel(second); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	job, _ := q.GetStatus(second)
	if job.Status != queue.StatusCanceled || job.StartedAt != nil {
		t.Fatalf("queued job should be canceled without starting, got %+v", job)
	}
	for _, res := range job.Stages {
		if res.Status != queue.StepCanceled {
			t.Fatalf("stage %s status %s", res.Stage, res.Status)
		}
	}
	close(release)
	waitFor(t, q, first, terminal)
	if _, ok := ran.Load(second); ok {
		t.Fatal("canceled job reached the runner")
	}
	if err := q.Cancel(second); !errors.Is(err, queue.ErrJobFinished) {
		t.Fatalf("second cancel error = %v", err)
	}
}

func TestCancelRunningJob(t *testing.T) {
	runner := queue.RunnerFunc(func(ctx context.Context, tr *queue.Tracker) (*queue.Artifact, error) {
		tr.StageStarted(queue.StageResult{Stage: generation.StageScript, Provider: "slow"})
		<-ctx.Done()
		return nil, ctx.Err()
	})
	q := startQueue(t, queue.Settings{}, runner, nil)
	id, _ := q.Enqueue(testRequest("slow"))
	waitFor(t, q, id, func(j queue.Job) bool {
		res, _ := j.Stage(generation.StageScript)
		return res.Status == queue.StepRunning
	})
	if err := q.Cancel(id); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	job := waitFor(t, q, id, terminal)
	if job.Status != queue.StatusCanceled {
		t.Fatalf("status = %s", job.Status)
	}
	if job.CancelReason != queue.ErrCanceledByUser.Error() {
		t.Fatalf("cancel reason = %q", job.CancelReason)
	}
	if job.Artifact != nil {
		t.Fatal("canceled job must not carry an artifact")
	}
	if res, _ := job.Stage(generation.StageScript); res.Status != queue.StepCanceled {
		t.Fatalf("running stage status = %s", res.Status)
	}
}

func TestRunnerPanicBecomesInternalError(t *testing.T) {
	var calls atomic.Int32
	runner := queue.RunnerFunc(func(ctx context.Context, tr *queue.Tracker) (*queue.Artifact, error) {
		if calls.Add(1) == 1 {
			tr.StageStarted(queue.StageResult{Stage: generation.StageScript})
			panic("nil map write")
		}
		return succeedRunner(ctx, tr)
	})
	q := startQueue(t, queue.Settings{MaxConcurrentJobs: 1}, runner, nil)
	bad, _ := q.Enqueue(testRequest("bad"))
	good, _ := q.Enqueue(testRequest("good"))

	job := waitFor(t, q, bad, terminal)
	if job.Status != queue.StatusFailed {
		t.Fatalf("status = %s", job.Status)
	}
	rec, ok := job.LastError()
	if !ok || rec.Kind != faults.KindInternalError {
		t.Fatalf("expected InternalError, got %+v", job.Errors)
	}
	if res, _ := job.Stage(generation.StageScript); res.Status != queue.StepFailed {
		t.Fatalf("interrupted stage status = %s", res.Status)
	}
	if res, _ := job.Stage(generation.StageExport); res.Status != queue.StepSkipped {
		t.Fatalf("unreached stage status = %s", res.Status)
	}
	if next := waitFor(t, q, good, terminal); next.Status != queue.StatusSucceeded {
		t.Fatalf("worker pool did not recover: %s", next.Status)
	}
}

func TestMissingArtifactFailsJob(t *testing.T) {
	runner := queue.RunnerFunc(func(ctx context.Context, tr *queue.Tracker) (*queue.Artifact, error) {
		return nil, nil
	})
	q := startQueue(t, queue.Settings{}, runner, nil)
	id, _ := q.Enqueue(testRequest("empty"))
	job := waitFor(t, q, id, terminal)
	rec, _ := job.LastError()
	if job.Status != queue.StatusFailed || rec.Kind != faults.KindArtifactResolutionFailed {
		t.Fatalf("expected ArtifactResolutionFailed, got %s %+v", job.Status, rec)
	}
	if job.Artifact != nil {
		t.Fatal("failed job must not carry an artifact")
	}
}

func TestDuplicateCorrelationID(t *testing.T) {
	release := make(chan struct{})
	runner := queue.RunnerFunc(func(ctx context.Context, tr *queue.Tracker) (*queue.Artifact, error) {
		<-release
		return succeedRunner(ctx, tr)
	})
	q := startQueue(t, queue.Settings{}, runner, nil)
	req := testRequest("dup")
	req.CorrelationID = "req-1"
	first, err := q.Enqueue(req)
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	existing, err := q.Enqueue(req)
	if !errors.Is(err, queue.ErrDuplicateRequest) || existing != first {
		t.Fatalf("duplicate enqueue = %q, %v", existing, err)
	}
	close(release)
	waitFor(t, q, first, terminal)
	if _, err := q.Enqueue(req); err != nil {
		t.Fatalf("re-enqueue after completion: %v", err)
	}
}

func TestThrottlePausesAdmission(t *testing.T) {
	var busy atomic.Bool
	busy.Store(true)
	probe := queue.LoadProbeFunc(func() (queue.HostLoad, error) {
		if busy.Load() {
			return queue.HostLoad{LoadPerCPU: 4, FreeMemoryPercent: 50}, nil
		}
		return queue.HostLoad{LoadPerCPU: 0.1, FreeMemoryPercent: 50}, nil
	})
	q := startQueue(t, queue.Settings{MaxCPULoad: 0.9}, queue.RunnerFunc(succeedRunner), probe)
	id, _ := q.Enqueue(testRequest("throttled"))

	time.Sleep(30 * time.Millisecond)
	if job, _ := q.GetStatus(id); job.Status != queue.StatusQueued {
		t.Fatalf("job admitted under load: %s", job.Status)
	}
	if stats := q.Stats(); !stats.Throttled || stats.Queued != 1 {
		t.Fatalf("unexpected stats %+v", stats)
	}
	busy.Store(false)
	if job := waitFor(t, q, id, terminal); job.Status != queue.StatusSucceeded {
		t.Fatalf("status = %s", job.Status)
	}
}

func TestPurge(t *testing.T) {
	release := make(chan struct{})
	runner := queue.RunnerFunc(func(ctx context.Context, tr *queue.Tracker) (*queue.Artifact, error) {
		<-release
		return succeedRunner(ctx, tr)
	})
	q := startQueue(t, queue.Settings{}, runner, nil)
	id, _ := q.Enqueue(testRequest("purge"))
	if err := q.Purge(id); !errors.Is(err, queue.ErrJobActive) {
		t.Fatalf("purge active job error = %v", err)
	}
	close(release)
	waitFor(t, q, id, terminal)
	if err := q.Purge(id); err != nil {
		t.Fatalf("Purge: %v", err)
	}
	if _, err := q.GetStatus(id); !errors.Is(err, queue.ErrNotFound) {
		t.Fatalf("GetStatus after purge error = %v", err)
	}
	if err := q.Cancel("missing"); !errors.Is(err, queue.ErrNotFound) {
		t.Fatalf("Cancel unknown error = %v", err)
	}
}

func TestSubscribeAllSeesEveryJob(t *testing.T) {
	q := startQueue(t, queue.Settings{}, queue.RunnerFunc(succeedRunner), nil)
	sub := q.SubscribeAll()
	defer sub.Close()

	a, _ := q.Enqueue(testRequest("a"))
	b, _ := q.Enqueue(testRequest("b"))
	done := map[string]bool{}
	timeout := time.After(5 * time.Second)
	for len(done) < 2 {
		select {
		case evt := <-sub.C:
			if evt.Type == queue.EventCompleted {
				done[evt.JobID] = true
			}
		case <-timeout:
			t.Fatalf("completed events seen: %v", done)
		}
	}
	if !done[a] || !done[b] {
		t.Fatalf("completed events seen: %v", done)
	}
}

func TestStopCancelsQueuedAndRunningJobs(t *testing.T) {
	runner := queue.RunnerFunc(func(ctx context.Context, tr *queue.Tracker) (*queue.Artifact, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
	q, err := queue.New(queue.Options{Settings: queue.Settings{MaxConcurrentJobs: 1}, Runner: runner})
	if err != nil {
		t.Fatalf("queue.New: %v", err)
	}
	if err := q.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	running, _ := q.Enqueue(testRequest("running"))
	waitFor(t, q, running, func(j queue.Job) bool { return j.Status == queue.StatusRunning })
	queued, _ := q.Enqueue(testRequest("queued"))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := q.Stop(ctx); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	for _, id := range []string{running, queued} {
		job, _ := q.GetStatus(id)
		if job.Status != queue.StatusCanceled || job.CancelReason != queue.ErrStopped.Error() {
			t.Fatalf("job %s: status %s reason %q", id, job.Status, job.CancelReason)
		}
	}
	if _, err := q.Enqueue(testRequest("late")); !errors.Is(err, queue.ErrStopped) {
		t.Fatalf("enqueue after stop error = %v", err)
	}
}

func TestUpdateSettingsAppliesToAdmission(t *testing.T) {
	q := startQueue(t, queue.Settings{MaxConcurrentJobs: 1}, queue.RunnerFunc(succeedRunner), nil)
	q.UpdateSettings(queue.Settings{MaxConcurrentJobs: 3, RetryCount: 4})
	got := q.Settings()
	if got.MaxConcurrentJobs != 3 || got.RetryCount != 4 {
		t.Fatalf("settings = %+v", got)
	}
	if got.BackoffBase <= 0 || got.EventBuffer <= 0 {
		t.Fatalf("settings not normalized: %+v", got)
	}
}

func TestBackoffDoublesUntilCap(t *testing.T) {
	s := queue.Settings{BackoffBase: 100 * time.Millisecond, BackoffMax: time.Second}
	want := []time.Duration{100 * time.Millisecond, 200 * time.Millisecond, 400 * time.Millisecond, 800 * time.Millisecond, time.Second, time.Second}
	for i, w := range want {
		if got := s.Backoff(i + 1); got != w {
			t.Fatalf("Backoff(%d) = %s, want %s", i+1, got, w)
		}
	}
}
