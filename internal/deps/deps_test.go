package deps

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"
)

func TestCheckAllResolvesPaths(t *testing.T) {
	binDir := t.TempDir()
	stub := filepath.Join(binDir, executableName("render-stub"))
	if err := os.WriteFile(stub, []byte("#!/bin/sh\nexit 0\n"), 0o755); err != nil {
		t.Fatalf("write stub: %v", err)
	}
	t.Setenv("PATH", binDir)

	results := CheckAll(
		Requirement{Name: "Stub", Command: "render-stub"},
		Requirement{Name: "Missing", Command: "clearly-not-present-binary", Optional: true},
		Requirement{Name: "Blank", Command: "  "},
	)
	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}
	if !results[0].Available || results[0].Command != stub || results[0].Detail != "" {
		t.Fatalf("stub status = %#v", results[0])
	}
	if results[1].Available || results[1].Command != "clearly-not-present-binary" || !results[1].Optional {
		t.Fatalf("missing status = %#v", results[1])
	}
	if results[2].Available || results[2].Detail != "command not configured" {
		t.Fatalf("blank status = %#v", results[2])
	}
}

func TestResolveFFmpegPathPrefersConfiguredPath(t *testing.T) {
	if got := ResolveFFmpegPath("/opt/ffmpeg/bin/ffmpeg"); got != "/opt/ffmpeg/bin/ffmpeg" {
		t.Fatalf("expected configured path, got %q", got)
	}
	if got := ResolveFFmpegPath(""); got == "" {
		t.Fatal("expected a default binary name")
	}
}

func TestCheckFFmpegUsesPath(t *testing.T) {
	binDir := t.TempDir()
	ffmpegPath := filepath.Join(binDir, executableName("ffmpeg"))
	if err := os.WriteFile(ffmpegPath, []byte("#!/bin/sh\nexit 0\n"), 0o755); err != nil {
		t.Fatalf("write ffmpeg stub: %v", err)
	}
	t.Setenv("PATH", binDir)

	status := CheckFFmpeg("")
	if !status.Available {
		t.Fatalf("expected ffmpeg to be available, got detail %q", status.Detail)
	}
	if status.Command != ffmpegPath {
		t.Fatalf("expected ffmpeg command %q, got %q", ffmpegPath, status.Command)
	}
	if !status.Optional {
		t.Fatal("ffmpeg should be reported as optional")
	}
}

func TestCheckFFmpegNotFound(t *testing.T) {
	t.Setenv("PATH", "")
	status := CheckFFmpeg("")
	if status.Available {
		t.Fatal("expected ffmpeg resolution to fail")
	}
	if status.Detail == "" {
		t.Fatal("expected detail message when ffmpeg is unavailable")
	}
}

func executableName(base string) string {
	if runtime.GOOS == "windows" {
		return base + ".exe"
	}
	return base
}
