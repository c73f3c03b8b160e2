package preflight

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"reelforge/internal/config"
)

func TestCheckDirectoryAccess_OK(t *testing.T) {
	dir := t.TempDir()
	result := CheckDirectoryAccess("test", dir)
	if !result.Passed {
		t.Fatalf("expected pass for temp dir, got: %s", result.Detail)
	}
}

func TestCheckDirectoryAccess_NotExist(t *testing.T) {
	result := CheckDirectoryAccess("test", filepath.Join(t.TempDir(), "nope"))
	if result.Passed {
		t.Fatal("expected failure for missing dir")
	}
	if result.Detail == "" {
		t.Fatal("expected non-empty detail")
	}
}

func TestCheckDirectoryAccess_NotDir(t *testing.T) {
	f := filepath.Join(t.TempDir(), "file.txt")
	if err := os.WriteFile(f, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	result := CheckDirectoryAccess("test", f)
	if result.Passed {
		t.Fatal("expected failure for file path")
	}
}

func TestFreeSpaceMB(t *testing.T) {
	free, err := FreeSpaceMB(t.TempDir())
	if err != nil {
		t.Fatalf("FreeSpaceMB: %v", err)
	}
	if free == 0 {
		t.Fatal("expected some free space in the temp dir")
	}
	if _, err := FreeSpaceMB(filepath.Join(t.TempDir(), "missing")); err == nil {
		t.Fatal("expected error for missing path")
	}
}

func TestCheckFreeSpace(t *testing.T) {
	dir := t.TempDir()
	if result := CheckFreeSpace("disk", dir, 0); !result.Passed {
		t.Fatalf("expected pass without a minimum, got %s", result.Detail)
	}
	if result := CheckFreeSpace("disk", dir, 1<<40); result.Passed {
		t.Fatalf("expected failure for an impossible minimum, got %s", result.Detail)
	}
}

func TestCheckDaemon_OK(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/status" || r.Header.Get("Authorization") != "Bearer good" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	result := CheckDaemon(context.Background(), srv.URL, "good")
	if !result.Passed {
		t.Fatalf("expected pass, got: %s", result.Detail)
	}
}

func TestCheckDaemon_BadToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	result := CheckDaemon(context.Background(), srv.URL, "bad")
	if result.Passed {
		t.Fatal("expected failure for bad token")
	}
}

func TestCheckDaemon_MissingURL(t *testing.T) {
	result := CheckDaemon(context.Background(), "", "")
	if result.Passed {
		t.Fatal("expected failure for missing URL")
	}
}

func TestRunAll_NilConfig(t *testing.T) {
	results := RunAll(context.Background(), nil)
	if results != nil {
		t.Fatal("expected nil results for nil config")
	}
}

func TestRunAll_MinimalConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Paths.WorkDir = t.TempDir()
	cfg.Paths.OutputDir = t.TempDir()
	cfg.Paths.LogDir = ""
	cfg.Queue.MinFreeDiskMB = 0

	results := RunAll(context.Background(), &cfg)
	// work + output directory checks plus disk space
	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}
	for _, r := range results {
		if !r.Passed {
			t.Errorf("check %q failed: %s", r.Name, r.Detail)
		}
	}
}

func TestCheckSystemDepsReportsFFmpeg(t *testing.T) {
	cfg := config.Default()
	statuses := CheckSystemDeps(context.Background(), &cfg)
	if len(statuses) != 1 || statuses[0].Name != "FFmpeg" {
		t.Fatalf("unexpected dependency list: %+v", statuses)
	}
}
