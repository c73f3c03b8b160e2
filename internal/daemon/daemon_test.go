package daemon_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"reelforge/internal/config"
	"reelforge/internal/daemon"
	"reelforge/internal/generation"
	"reelforge/internal/logging"
	"reelforge/internal/provider"
	"reelforge/internal/queue"
	"reelforge/internal/testsupport"
	"reelforge/internal/workflow"
)

type fixture struct {
	cfg    *config.Config
	reg    *provider.Registry
	daemon *daemon.Daemon
}

func newFixture(t *testing.T, cfg *config.Config, hub *logging.StreamHub) *fixture {
	t.Helper()
	logger := logging.NewNop()
	if hub != nil {
		var err error
		logger, err = logging.New(logging.Options{
			Level:       "debug",
			Format:      "json",
			OutputPaths: []string{filepath.Join(cfg.Paths.LogDir, "test.log")},
			Hub:         hub,
		})
		if err != nil {
			t.Fatalf("logging.New: %v", err)
		}
	}

	sel, err := provider.NewSelector(provider.OptionsFromConfig(cfg, logger))
	if err != nil {
		t.Fatalf("NewSelector: %v", err)
	}
	reg := provider.NewRegistry()
	coord, err := workflow.NewCoordinator(workflow.Options{
		Config:   cfg,
		Selector: sel,
		Registry: reg,
		Logger:   logger,
	})
	if err != nil {
		t.Fatalf("NewCoordinator: %v", err)
	}
	q, err := queue.New(queue.Options{
		Settings: queue.SettingsFromConfig(cfg),
		Runner:   coord,
		Logger:   logger,
		Probe:    testsupport.StaticProbe{FreeMemoryPercent: 100},
	})
	if err != nil {
		t.Fatalf("queue.New: %v", err)
	}
	d, err := daemon.New(daemon.Options{
		Config:      cfg,
		Queue:       q,
		Coordinator: coord,
		Logger:      logger,
		LogHub:      hub,
		LogPath:     filepath.Join(cfg.Paths.LogDir, "test.log"),
	})
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	t.Cleanup(func() { _ = d.Close() })
	return &fixture{cfg: cfg, reg: reg, daemon: d}
}

func brief() generation.Request {
	return generation.Request{Topic: "Tide pools", TargetDuration: 6 * time.Second}
}

func TestDaemonStartStop(t *testing.T) {
	f := newFixture(t, testsupport.NewConfig(t), nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := f.daemon.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	status := f.daemon.Status(ctx)
	if !status.Running {
		t.Fatal("expected daemon to report running")
	}
	if status.LockFilePath != f.cfg.DaemonLockPath() {
		t.Fatalf("lock path = %q, want %q", status.LockFilePath, f.cfg.DaemonLockPath())
	}
	if f.daemon.APIAddress() == "" {
		t.Fatal("expected api server to listen")
	}

	if err := f.daemon.Start(ctx); err == nil {
		t.Fatal("expected second start to fail")
	}

	f.daemon.Stop()
	if f.daemon.Status(ctx).Running {
		t.Fatal("expected daemon to be stopped")
	}
	if f.daemon.APIAddress() != "" {
		t.Fatal("expected api server to be closed")
	}
}

func TestSecondInstanceIsLockedOut(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	first := newFixture(t, cfg, nil)
	ctx := context.Background()
	if err := first.daemon.Start(ctx); err != nil {
		t.Fatalf("first Start: %v", err)
	}

	second := newFixture(t, cfg, nil)
	if err := second.daemon.Start(ctx); err == nil {
		t.Fatal("expected lock contention error")
	}

	first.daemon.Stop()
	if _, err := first.daemon.Queue().Enqueue(brief()); err == nil {
		t.Fatal("expected stopped queue to refuse work")
	}
}

func TestDaemonNewRequiresCollaborators(t *testing.T) {
	if _, err := daemon.New(daemon.Options{Config: testsupport.NewConfig(t)}); err == nil {
		t.Fatal("expected error without queue and coordinator")
	}
}

func TestTestNotificationWithoutTopicIsNoop(t *testing.T) {
	f := newFixture(t, testsupport.NewConfig(t), nil)
	if err := f.daemon.TestNotification(context.Background()); err != nil {
		t.Fatalf("TestNotification: %v", err)
	}
}
