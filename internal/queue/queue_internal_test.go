package queue

import (
	"context"
	"testing"
	"time"

	"reelforge/internal/generation"
)

func TestPruneEvictsExpiredTerminalJobs(t *testing.T) {
	q, err := New(Options{
		Settings: Settings{Retention: time.Minute},
		Runner: RunnerFunc(func(context.Context, *Tracker) (*Artifact, error) {
			return nil, nil
		}),
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	req := generation.Request{Topic: "old", TargetDuration: time.Minute}
	oldID, _ := q.Enqueue(req)
	req.Topic = "fresh"
	freshID, _ := q.Enqueue(req)
	if err := q.Cancel(oldID); err != nil {
		t.Fatalf("Cancel: %v", err)
	}

	if n := q.prune(time.Now()); n != 0 {
		t.Fatalf("pruned %d jobs inside the retention window", n)
	}
	if n := q.prune(time.Now().Add(2 * time.Minute)); n != 1 {
		t.Fatalf("pruned %d jobs, want 1", n)
	}
	if _, err := q.GetStatus(oldID); err != ErrNotFound {
		t.Fatalf("expired job still tracked: %v", err)
	}
	if _, err := q.GetStatus(freshID); err != nil {
		t.Fatalf("queued job evicted: %v", err)
	}
}

func TestAdmissionBlocked(t *testing.T) {
	cases := []struct {
		name     string
		settings Settings
		sample   HostLoad
		blocked  bool
	}{
		{"disabled", Settings{}, HostLoad{LoadPerCPU: 9, FreeMemoryPercent: 1}, false},
		{"cpu over", Settings{MaxCPULoad: 0.8}, HostLoad{LoadPerCPU: 0.9, FreeMemoryPercent: 50}, true},
		{"cpu under", Settings{MaxCPULoad: 0.8}, HostLoad{LoadPerCPU: 0.5, FreeMemoryPercent: 50}, false},
		{"memory low", Settings{MinFreeMemoryPercent: 10}, HostLoad{FreeMemoryPercent: 4}, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			blocked, reason := admissionBlocked(tc.settings, tc.sample)
			if blocked != tc.blocked {
				t.Fatalf("blocked = %v (%s), want %v", blocked, reason, tc.blocked)
			}
			if blocked && reason == "" {
				t.Fatal("blocked without a reason")
			}
		})
	}
}
