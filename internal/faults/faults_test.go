package faults_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os/exec"
	"syscall"
	"testing"

	"reelforge/internal/faults"
	"reelforge/internal/generation"
	"reelforge/internal/services"
)

func TestClassifyMarkers(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode string
		retry    bool
	}{
		{
			name:     "missing credential names provider",
			err:      services.Wrap(services.ErrMissingCredential, "Narration", "synthesize", "ELEVENLABS_API_KEY unset", nil),
			wantCode: "MissingCredential:elevenlabs",
		},
		{
			name:     "timeout names stage",
			err:      services.Wrap(services.ErrTimeout, "Composition", "render", "took too long", nil),
			wantCode: "Timeout:Composition",
		},
		{
			name:     "transient is retryable",
			err:      services.Wrap(services.ErrTransient, "Script", "generate", "503", nil),
			wantCode: "TransientNetworkFailure",
			retry:    true,
		},
		{
			name:     "validation maps to invalid input",
			err:      services.Wrap(services.ErrValidation, "Script", "parse", "empty scenes", nil),
			wantCode: "InvalidInput",
		},
		{
			name:     "unsupported environment names provider",
			err:      services.Wrap(services.ErrUnsupportedEnvironment, "Composition", "probe", "no nvenc", nil),
			wantCode: "UnsupportedEnvironment:elevenlabs",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stage := "Composition"
			if tt.wantCode == "MissingCredential:elevenlabs" {
				stage = "Narration"
			}
			rec := faults.Classify(tt.err, stage, "elevenlabs")
			if rec.Code != tt.wantCode {
				t.Fatalf("expected code %q, got %q", tt.wantCode, rec.Code)
			}
			if rec.Retryable != tt.retry {
				t.Fatalf("expected retryable=%v, got %v", tt.retry, rec.Retryable)
			}
			if rec.Remediation == "" {
				t.Fatal("expected remediation hint")
			}
		})
	}
}

func TestClassifyStdlibConditions(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantKind faults.Kind
		wantCode string
	}{
		{"deadline", fmt.Errorf("call: %w", context.DeadlineExceeded), faults.KindTimeout, "Timeout:Visuals"},
		{"exec not found", &exec.Error{Name: "ffmpeg", Err: exec.ErrNotFound}, faults.KindDependencyNotFound, "DependencyNotFound:ffmpeg"},
		{"disk full", fmt.Errorf("write: %w", syscall.ENOSPC), faults.KindResourceExhausted, "ResourceExhausted:disk"},
		{"connection reset", fmt.Errorf("read: %w", syscall.ECONNRESET), faults.KindTransientNetworkFailure, "TransientNetworkFailure"},
		{"unexpected eof", io.ErrUnexpectedEOF, faults.KindTransientNetworkFailure, "TransientNetworkFailure"},
		{"dns", &net.DNSError{Err: "server misbehaving", Name: "api.example", IsTemporary: true}, faults.KindTransientNetworkFailure, "TransientNetworkFailure"},
		{"invalid request", fmt.Errorf("%w: topic is required", generation.ErrInvalidRequest), faults.KindInvalidInput, "InvalidInput"},
		{"unknown", errors.New("boom"), faults.KindInternalError, "InternalError"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := faults.Classify(tt.err, "Visuals", "stability")
			if rec.Kind != tt.wantKind {
				t.Fatalf("expected kind %s, got %s", tt.wantKind, rec.Kind)
			}
			if rec.Code != tt.wantCode {
				t.Fatalf("expected code %q, got %q", tt.wantCode, rec.Code)
			}
			if rec.Stage != "Visuals" || rec.Provider != "stability" {
				t.Fatalf("expected stage/provider to be recorded, got %+v", rec)
			}
		})
	}
}

func TestClassifyPassesRecordThrough(t *testing.T) {
	original := faults.New(faults.KindArtifactResolutionFailed, "", "no layer produced a file")
	wrapped := fmt.Errorf("pipeline: %w", original)

	rec := faults.Classify(wrapped, "Export", "local-copy")
	if rec.Kind != faults.KindArtifactResolutionFailed {
		t.Fatalf("expected record to pass through, got %s", rec.Kind)
	}
	if rec.Stage != "Export" {
		t.Fatalf("expected stage to be filled in, got %q", rec.Stage)
	}
}

func TestClassifyNil(t *testing.T) {
	if rec := faults.Classify(nil, "Script", ""); !rec.IsZero() {
		t.Fatalf("expected zero record, got %+v", rec)
	}
}

func TestOnlyTransientKindIsRetryable(t *testing.T) {
	for _, kind := range faults.Kinds() {
		want := kind == faults.KindTransientNetworkFailure
		if kind.Retryable() != want {
			t.Fatalf("kind %s: expected retryable=%v", kind, want)
		}
		if faults.Remediation(kind) == "" {
			t.Fatalf("kind %s: missing remediation", kind)
		}
	}
}

func TestCodeRoundTrip(t *testing.T) {
	code := faults.Code(faults.KindMissingCredential, "openai")
	kind, detail := faults.ParseCode(code)
	if kind != faults.KindMissingCredential || detail != "openai" {
		t.Fatalf("unexpected parse of %q: %s %s", code, kind, detail)
	}
	if faults.Code(faults.KindInternalError, " ") != "InternalError" {
		t.Fatal("expected blank detail to be dropped")
	}
}

func TestInternalRecord(t *testing.T) {
	rec := faults.Internal("Composition", "nil map write")
	if rec.Kind != faults.KindInternalError || rec.Stage != "Composition" {
		t.Fatalf("unexpected internal record: %+v", rec)
	}
	var err error = rec
	got, ok := faults.As(err)
	if !ok || got.Code != "InternalError" {
		t.Fatalf("expected record via As, got %+v %v", got, ok)
	}
}
