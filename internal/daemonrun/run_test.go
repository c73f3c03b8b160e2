package daemonrun

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"reelforge/internal/generation"
	"reelforge/internal/logging"
	"reelforge/internal/testsupport"
)

func TestWritePIDFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reelforge.pid")
	if err := writePIDFile(path); err != nil {
		t.Fatalf("writePIDFile: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read pid: %v", err)
	}
	if strings.TrimSpace(string(data)) != strconv.Itoa(os.Getpid()) {
		t.Fatalf("pid file = %q", data)
	}
}

func TestEnsureCurrentLogPointerReplacesLink(t *testing.T) {
	dir := t.TempDir()
	first := testsupport.WriteFile(t, filepath.Join(dir, "reelforge-a.log"), 1)
	second := testsupport.WriteFile(t, filepath.Join(dir, "reelforge-b.log"), 2)

	if err := ensureCurrentLogPointer(dir, first); err != nil {
		t.Fatalf("first pointer: %v", err)
	}
	if err := ensureCurrentLogPointer(dir, second); err != nil {
		t.Fatalf("second pointer: %v", err)
	}
	info, err := os.Stat(filepath.Join(dir, logging.LogFileName))
	if err != nil {
		t.Fatalf("stat pointer: %v", err)
	}
	if info.Size() != 2 {
		t.Fatalf("pointer resolves to %d bytes, want the newest log", info.Size())
	}
}

func TestNewCoordinatorPreviewsEveryStage(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithOfflineOnly())
	coord, err := NewCoordinator(cfg, logging.NewNop())
	if err != nil {
		t.Fatalf("NewCoordinator: %v", err)
	}
	sels := coord.Preview(t.Context(), generation.Request{Topic: "x", TargetDuration: 10 * time.Second})
	if len(sels) != len(generation.Stages()) {
		t.Fatalf("got %d selections", len(sels))
	}
	for _, sel := range sels {
		if sel.Backend == "" {
			t.Fatalf("stage %s has no backend", sel.Stage)
		}
	}
}
