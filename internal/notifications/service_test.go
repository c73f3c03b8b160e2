package notifications_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"reelforge/internal/config"
	"reelforge/internal/faults"
	"reelforge/internal/generation"
	"reelforge/internal/logging"
	"reelforge/internal/notifications"
	"reelforge/internal/queue"
)

func TestNewServiceReturnsNoopWhenTopicMissing(t *testing.T) {
	cfg := config.Default()
	cfg.Notifications.NtfyTopic = ""
	svc := notifications.NewService(&cfg)
	if err := svc.Publish(context.Background(), notifications.EventJobCompleted, notifications.Payload{"topic": "Example"}); err != nil {
		t.Fatalf("expected noop notifier to return nil, got %v", err)
	}
}

type captured struct {
	title    string
	tags     string
	priority string
	body     string
}

func newNtfyServer(t *testing.T, got chan<- captured) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("unexpected method: %s", r.Method)
		}
		body, err := io.ReadAll(r.Body)
		if err != nil {
			t.Errorf("read body: %v", err)
		}
		_ = r.Body.Close()
		got <- captured{
			title:    r.Header.Get("Title"),
			tags:     r.Header.Get("Tags"),
			priority: r.Header.Get("Priority"),
			body:     string(body),
		}
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(server.Close)
	return server
}

func TestNtfyServiceFormatsPayloads(t *testing.T) {
	tests := []struct {
		name           string
		event          notifications.Event
		payload        notifications.Payload
		expectTitle    string
		expectMessage  string
		expectTags     string
		expectPriority string
	}{
		{
			name:  "job completed",
			event: notifications.EventJobCompleted,
			payload: notifications.Payload{
				"topic":    "Tide pools",
				"artifact": "/videos/tide-pools.mp4",
				"duration": 95 * time.Second,
			},
			expectTitle:   "Reelforge - Video Ready",
			expectMessage: "✅ Ready: Tide pools\nFile: /videos/tide-pools.mp4\nTook 1m35s",
			expectTags:    "reelforge,job,completed",
		},
		{
			name:  "job failed",
			event: notifications.EventJobFailed,
			payload: notifications.Payload{
				"topic": "Volcanoes",
				"stage": "Composition",
				"error": "Timeout:Composition: stage exceeded its 15m0s timeout",
				"hint":  "raise the timeout",
			},
			expectTitle:    "Reelforge - Job Failed",
			expectMessage:  "❌ Volcanoes failed at Composition: Timeout:Composition: stage exceeded its 15m0s timeout\nHint: raise the timeout",
			expectTags:     "reelforge,job,failed",
			expectPriority: "high",
		},
		{
			name:           "test",
			event:          notifications.EventTest,
			expectTitle:    "Reelforge - Test",
			expectMessage:  "🧪 Notification system test",
			expectTags:     "reelforge,test",
			expectPriority: "low",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := make(chan captured, 1)
			server := newNtfyServer(t, got)

			cfg := config.Default()
			cfg.Notifications.NtfyTopic = server.URL
			cfg.Notifications.RequestTimeout = 5

			svc := notifications.NewService(&cfg)
			if err := svc.Publish(context.Background(), tc.event, tc.payload); err != nil {
				t.Fatalf("notification returned error: %v", err)
			}

			msg := <-got
			if msg.title != tc.expectTitle {
				t.Fatalf("expected title %q, got %q", tc.expectTitle, msg.title)
			}
			if msg.body != tc.expectMessage {
				t.Fatalf("expected message %q, got %q", tc.expectMessage, msg.body)
			}
			if msg.tags != tc.expectTags {
				t.Fatalf("expected tags %q, got %q", tc.expectTags, msg.tags)
			}
			if msg.priority != tc.expectPriority {
				t.Fatalf("expected priority %q, got %q", tc.expectPriority, msg.priority)
			}
		})
	}
}

func TestNtfyServiceIgnoresDisabledEvents(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("unexpected call for suppressed event: %s", r.URL.String())
	}))
	defer server.Close()

	cfg := config.Default()
	cfg.Notifications.NtfyTopic = server.URL
	cfg.Notifications.JobCompleted = false

	svc := notifications.NewService(&cfg)
	for _, event := range []notifications.Event{notifications.EventJobCompleted, notifications.Event("unknown")} {
		if err := svc.Publish(context.Background(), event, notifications.Payload{"topic": "ignored"}); err != nil {
			t.Fatalf("expected no error for suppressed event %s, got %v", event, err)
		}
	}
}

func TestNtfyServiceReportsHTTPErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "topic muted", http.StatusForbidden)
	}))
	defer server.Close()

	cfg := config.Default()
	cfg.Notifications.NtfyTopic = server.URL

	err := notifications.NewService(&cfg).Publish(context.Background(), notifications.EventTest, nil)
	if err == nil {
		t.Fatal("expected an error for a 403 response")
	}
}

type recordingService struct {
	mu     sync.Mutex
	events []notifications.Event
	topics []string
	fail   bool
	seen   chan struct{}
}

func (r *recordingService) Publish(_ context.Context, event notifications.Event, payload notifications.Payload) error {
	r.mu.Lock()
	r.events = append(r.events, event)
	topic, _ := payload["topic"].(string)
	r.topics = append(r.topics, topic)
	r.mu.Unlock()
	r.seen <- struct{}{}
	if r.fail {
		return errors.New("offline")
	}
	return nil
}

func TestForwardPublishesTerminalEvents(t *testing.T) {
	events := make(chan queue.Event, 4)
	svc := &recordingService{seen: make(chan struct{}, 4), fail: true}
	jobs := map[string]queue.Job{
		"a": queue.NewJob("a", generation.Request{Topic: "Glaciers"}, time.Now()),
		"b": queue.NewJob("b", generation.Request{Topic: "Deserts"}, time.Now()),
	}
	lookup := func(id string) (queue.Job, error) {
		job, ok := jobs[id]
		if !ok {
			return queue.Job{}, queue.ErrNotFound
		}
		return job, nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		notifications.Forward(ctx, events, lookup, svc, logging.NewNop())
		close(done)
	}()

	rec := faults.New(faults.KindInternalError, "", "boom")
	events <- queue.Event{Type: queue.EventStepProgress, JobID: "a"}
	events <- queue.Event{Type: queue.EventCompleted, JobID: "a", Artifact: &queue.Artifact{Path: "/tmp/a.mp4"}}
	events <- queue.Event{Type: queue.EventFailed, JobID: "b", Error: &rec}
	close(events)

	for range 2 {
		select {
		case <-svc.seen:
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for notifications")
		}
	}
	<-done

	svc.mu.Lock()
	defer svc.mu.Unlock()
	if len(svc.events) != 2 {
		t.Fatalf("published %v, want two notifications", svc.events)
	}
	if svc.events[0] != notifications.EventJobCompleted || svc.topics[0] != "Glaciers" {
		t.Fatalf("first = %s/%s", svc.events[0], svc.topics[0])
	}
	if svc.events[1] != notifications.EventJobFailed || svc.topics[1] != "Deserts" {
		t.Fatalf("second = %s/%s", svc.events[1], svc.topics[1])
	}
}

func TestOutcomeDescribesFinishedJobs(t *testing.T) {
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	end := start.Add(90 * time.Second)

	done := queue.NewJob("ok", generation.Request{Topic: "Volcanoes"}, start)
	done.Status = queue.StatusSucceeded
	done.StartedAt, done.EndedAt = &start, &end
	done.Artifact = &queue.Artifact{Path: "/out/volcanoes.mp4"}
	event, payload, ok := notifications.Outcome(done)
	if !ok || event != notifications.EventJobCompleted {
		t.Fatalf("Outcome(succeeded) = %s, %v", event, ok)
	}
	if payload["artifact"] != "/out/volcanoes.mp4" || payload["duration"] != 90*time.Second {
		t.Fatalf("payload = %v", payload)
	}

	failed := queue.NewJob("bad", generation.Request{Topic: "Volcanoes"}, start)
	failed.Status = queue.StatusFailed
	rec := faults.New(faults.KindTimeout, "Composition", "render took too long")
	rec.Stage = "Composition"
	failed.Errors = []faults.Record{rec}
	event, payload, ok = notifications.Outcome(failed)
	if !ok || event != notifications.EventJobFailed {
		t.Fatalf("Outcome(failed) = %s, %v", event, ok)
	}
	if payload["stage"] != "Composition" || payload["hint"] == "" {
		t.Fatalf("payload = %v", payload)
	}

	canceled := queue.NewJob("stop", generation.Request{Topic: "Volcanoes"}, start)
	canceled.Status = queue.StatusCanceled
	if _, _, ok := notifications.Outcome(canceled); ok {
		t.Fatal("canceled jobs should not notify")
	}
}
