package logging

import (
	"context"
	"log/slog"
	"testing"
	"time"
)

func TestStreamHandlerCapturesLoggerAttrs(t *testing.T) {
	hub := NewStreamHub(100)
	handler := newStreamHandler(slog.NewTextHandler(discardWriter{}, nil), hub)

	logger := slog.New(handler).
		With(slog.String(FieldComponent, "workflow")).
		With(slog.String(FieldJobID, "job-1"), slog.String(FieldStage, "Script"))
	logger.Info("stage started", slog.String(FieldProvider, "template"), slog.String("extra", "value"))

	events, _ := hub.Tail(10)
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	evt := events[0]
	if evt.JobID != "job-1" || evt.Stage != "Script" || evt.Provider != "template" || evt.Component != "workflow" {
		t.Fatalf("unexpected event fields: %+v", evt)
	}
	if evt.Fields["extra"] != "value" {
		t.Fatalf("expected extra field, got %+v", evt.Fields)
	}
}

func TestStreamHandlerCallSiteOverrides(t *testing.T) {
	hub := NewStreamHub(10)
	handler := newStreamHandler(slog.NewTextHandler(discardWriter{}, nil), hub)
	logger := slog.New(handler).With(slog.String(FieldStage, "original"))

	logger.Info("message", slog.String(FieldStage, "overridden"))

	events, _ := hub.Tail(10)
	if len(events) != 1 || events[0].Stage != "overridden" {
		t.Fatalf("expected call-site stage, got %+v", events)
	}
}

func TestStreamHandlerNilHub(t *testing.T) {
	base := slog.NewTextHandler(discardWriter{}, nil)
	if handler := newStreamHandler(base, nil); handler != base {
		t.Fatal("expected base handler when hub is nil")
	}
}

func TestStreamHubCapacityAndFetch(t *testing.T) {
	hub := NewStreamHub(3)
	for i := 0; i < 5; i++ {
		hub.Publish(LogEvent{Message: "m"})
	}
	events, next := hub.Tail(10)
	if len(events) != 3 || next != 5 {
		t.Fatalf("expected 3 buffered events and seq 5, got %d %d", len(events), next)
	}
	if events[0].Sequence != 3 {
		t.Fatalf("expected oldest buffered seq 3, got %d", events[0].Sequence)
	}

	fetched, _, err := hub.Fetch(context.Background(), 4, 10, false)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(fetched) != 1 || fetched[0].Sequence != 5 {
		t.Fatalf("expected only seq 5, got %+v", fetched)
	}
	none, _, _ := hub.Fetch(context.Background(), 5, 10, false)
	if len(none) != 0 {
		t.Fatalf("expected no events past head, got %d", len(none))
	}
}

func TestStreamHubFetchWaits(t *testing.T) {
	hub := NewStreamHub(10)
	done := make(chan []LogEvent, 1)
	go func() {
		events, _, _ := hub.Fetch(context.Background(), 0, 10, true)
		done <- events
	}()
	time.Sleep(20 * time.Millisecond)
	hub.Publish(LogEvent{Message: "late"})

	select {
	case events := <-done:
		if len(events) != 1 || events[0].Message != "late" {
			t.Fatalf("unexpected events: %+v", events)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Fetch did not wake on publish")
	}
}

func TestStreamHubFetchHonorsContext(t *testing.T) {
	hub := NewStreamHub(10)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, _, err := hub.Fetch(ctx, 0, 10, true)
	if err == nil {
		t.Fatal("expected context error")
	}
}

type discardWriter struct{}

func (discardWriter) Write(p []byte) (int, error) { return len(p), nil }
