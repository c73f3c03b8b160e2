package services_test

import (
	"errors"
	"strings"
	"testing"

	"reelforge/internal/services"
)

func TestWrapIncludesContext(t *testing.T) {
	base := errors.New("boom")
	err := services.Wrap(services.ErrDependencyNotFound, "composition", "render", "ffmpeg missing", base)
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, services.ErrDependencyNotFound) {
		t.Fatalf("expected marker to be retained, got %v", err)
	}
	if !errors.Is(err, base) {
		t.Fatalf("expected wrapped error to contain base error, got %v", err)
	}
	msg := err.Error()
	for _, fragment := range []string{"composition", "render", "ffmpeg missing"} {
		if !strings.Contains(msg, fragment) {
			t.Fatalf("expected %q in error string %q", fragment, msg)
		}
	}
}

func TestWrapDefaultsToTransient(t *testing.T) {
	err := services.Wrap(nil, "", "", "", nil)
	if !errors.Is(err, services.ErrTransient) {
		t.Fatalf("expected transient marker, got %v", err)
	}
	if !strings.Contains(err.Error(), "service failure") {
		t.Fatalf("expected placeholder detail, got %q", err.Error())
	}
}

func TestMarkerFindsFirstSentinel(t *testing.T) {
	err := services.Wrap(services.ErrMissingCredential, "narration", "synthesize", "no api key", nil)
	if marker := services.Marker(err); marker != services.ErrMissingCredential {
		t.Fatalf("expected missing credential marker, got %v", marker)
	}
	if marker := services.Marker(errors.New("plain")); marker != nil {
		t.Fatalf("expected no marker, got %v", marker)
	}
	if marker := services.Marker(nil); marker != nil {
		t.Fatalf("expected nil marker for nil error, got %v", marker)
	}
}
