package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pelletier/go-toml/v2"

	"reelforge/internal/config"
	"reelforge/internal/daemon"
	"reelforge/internal/generation"
	"reelforge/internal/logging"
	"reelforge/internal/provider"
	"reelforge/internal/queue"
	"reelforge/internal/testsupport"
	"reelforge/internal/workflow"
)

type cliTestEnv struct {
	cfg        *config.Config
	daemon     *daemon.Daemon
	configPath string
	address    string
}

// setupCLITestEnv writes a config into a temp HOME. The composition stage is
// pinned to the built-in renderer so results do not depend on a host ffmpeg.
func setupCLITestEnv(t *testing.T) *cliTestEnv {
	t.Helper()

	home := t.TempDir()
	t.Setenv("HOME", home)
	cfg := testsupport.NewConfig(t,
		testsupport.WithOfflineOnly(),
		testsupport.WithProviderTier(generation.StageComposition, generation.TierGuaranteed),
	)
	configPath := filepath.Join(home, ".config", "reelforge", "config.toml")
	writeTestConfig(t, configPath, cfg)
	return &cliTestEnv{cfg: cfg, configPath: configPath}
}

// startDaemon runs an in-process daemon for the env and points the CLI at it.
func (env *cliTestEnv) startDaemon(t *testing.T) {
	t.Helper()
	logger := logging.NewNop()
	sel, err := provider.NewSelector(provider.OptionsFromConfig(env.cfg, logger))
	if err != nil {
		t.Fatalf("NewSelector: %v", err)
	}
	coord, err := workflow.NewCoordinator(workflow.Options{Config: env.cfg, Selector: sel, Logger: logger})
	if err != nil {
		t.Fatalf("NewCoordinator: %v", err)
	}
	q, err := queue.New(queue.Options{
		Settings: queue.SettingsFromConfig(env.cfg),
		Runner:   coord,
		Logger:   logger,
		Probe:    testsupport.StaticProbe{FreeMemoryPercent: 100},
	})
	if err != nil {
		t.Fatalf("queue.New: %v", err)
	}
	d, err := daemon.New(daemon.Options{Config: env.cfg, Queue: q, Coordinator: coord, Logger: logger})
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	if err := d.Start(ctx); err != nil {
		cancel()
		t.Fatalf("daemon start: %v", err)
	}
	t.Cleanup(func() {
		_ = d.Close()
		cancel()
	})
	env.daemon = d
	env.address = d.APIAddress()
}

func (env *cliTestEnv) run(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	flags := []string{"--config", env.configPath}
	if env.address != "" {
		flags = append(flags, "--api", env.address)
	}
	return runCLI(t, append(flags, args...))
}

func runCLI(t *testing.T, args []string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(t.Context())
	return stdout.String(), stderr.String(), err
}

func writeTestConfig(t *testing.T, path string, cfg *config.Config) {
	t.Helper()
	data, err := toml.Marshal(cfg)
	if err != nil {
		t.Fatalf("encode config: %v", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir config dir: %v", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func requireContains(t *testing.T, output, substr string) {
	t.Helper()
	if !strings.Contains(output, substr) {
		t.Fatalf("expected %q to contain %q", output, substr)
	}
}
