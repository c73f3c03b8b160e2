package testsupport

import (
	"context"
	"testing"
	"time"

	"reelforge/internal/config"
	"reelforge/internal/queue"
)

// StaticProbe reports a fixed host load so admission never depends on the
// machine running the tests.
type StaticProbe queue.HostLoad

func (p StaticProbe) Sample() (queue.HostLoad, error) { return queue.HostLoad(p), nil }

// MustStartQueue builds a queue from cfg around runner, starts it, and stops
// it on cleanup.
func MustStartQueue(t testing.TB, cfg *config.Config, runner queue.Runner) *queue.Queue {
	t.Helper()

	q, err := queue.New(queue.Options{
		Settings: queue.SettingsFromConfig(cfg),
		Runner:   runner,
		Probe:    StaticProbe{FreeMemoryPercent: 100},
	})
	if err != nil {
		t.Fatalf("queue.New: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	if err := q.Start(ctx); err != nil {
		cancel()
		t.Fatalf("queue.Start: %v", err)
	}
	t.Cleanup(func() {
		stopCtx, stopCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer stopCancel()
		_ = q.Stop(stopCtx)
		cancel()
	})
	return q
}

// WaitTerminal blocks until job id reaches a terminal status.
func WaitTerminal(t testing.TB, q *queue.Queue, id string, timeout time.Duration) queue.Job {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for {
		job, err := q.GetStatus(id)
		if err != nil {
			t.Fatalf("GetStatus(%s): %v", id, err)
		}
		if job.Status.IsTerminal() {
			return job
		}
		if time.Now().After(deadline) {
			t.Fatalf("job %s still %s after %s", id, job.Status, timeout)
		}
		time.Sleep(5 * time.Millisecond)
	}
}
