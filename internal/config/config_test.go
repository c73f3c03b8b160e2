package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pelletier/go-toml/v2"

	"reelforge/internal/config"
	"reelforge/internal/generation"
)

func TestLoadDefaultConfigExpandsPaths(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)
	t.Setenv("REELFORGE_API_TOKEN", "secret-token")
	t.Chdir(t.TempDir())

	cfg, resolved, exists, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if resolved == "" {
		t.Fatal("expected resolved path")
	}
	if exists {
		t.Fatal("expected config file to be absent in temp HOME")
	}

	wantWork := filepath.Join(tempHome, ".local", "share", "reelforge", "work")
	if cfg.Paths.WorkDir != wantWork {
		t.Fatalf("unexpected work dir: got %q want %q", cfg.Paths.WorkDir, wantWork)
	}
	if cfg.Paths.OutputDir != filepath.Join(tempHome, "Videos", "reelforge") {
		t.Fatalf("unexpected output dir: %q", cfg.Paths.OutputDir)
	}
	if cfg.Paths.APIBind != "127.0.0.1:7489" {
		t.Fatalf("unexpected api bind: %q", cfg.Paths.APIBind)
	}
	if cfg.Paths.APIToken != "secret-token" {
		t.Fatalf("expected API token from env, got %q", cfg.Paths.APIToken)
	}
	if cfg.Queue.MaxConcurrentJobs != 2 || cfg.Queue.RetryCount != 2 {
		t.Fatalf("unexpected queue defaults: %+v", cfg.Queue)
	}
	if got := cfg.Stages.For(generation.StageComposition); got.Timeout().Seconds() != 900 || !got.Required {
		t.Fatalf("unexpected composition stage defaults: %+v", got)
	}
	if got := cfg.Artifacts.AlternateFields; len(got) != 6 || got[0] != "output_path" {
		t.Fatalf("unexpected alternate fields: %v", got)
	}
}

func TestLoadCustomConfigOverridesDefaults(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)

	configPath := filepath.Join(t.TempDir(), "config.toml")
	content := `
[paths]
work_dir = "~/scratch"
output_dir = "/srv/videos"

[queue]
max_concurrent_jobs = 4
retry_count = 0

[stages.export]
required = false

[providers.narration]
tier = "piper"
pro = [" ElevenLabs ", "elevenlabs", ""]

[artifacts]
extensions = ["MP4", ".webm"]

[logging]
format = "JSON"
level = "DEBUG"
`
	if err := os.WriteFile(configPath, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, resolved, exists, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists || resolved != configPath {
		t.Fatalf("expected custom config to be used, got %q exists=%v", resolved, exists)
	}
	if cfg.Paths.WorkDir != filepath.Join(tempHome, "scratch") {
		t.Fatalf("unexpected work dir: %q", cfg.Paths.WorkDir)
	}
	if cfg.Queue.MaxConcurrentJobs != 4 || cfg.Queue.RetryCount != 0 {
		t.Fatalf("unexpected queue values: %+v", cfg.Queue)
	}
	if cfg.Stages.Export.Required {
		t.Fatal("expected export stage to be optional")
	}
	if cfg.Stages.Export.TimeoutSeconds != 120 {
		t.Fatalf("expected untouched timeout default, got %d", cfg.Stages.Export.TimeoutSeconds)
	}
	if cfg.Providers.Narration.Tier != "piper" {
		t.Fatalf("unexpected narration tier: %q", cfg.Providers.Narration.Tier)
	}
	if got := cfg.Providers.Narration.Pro; len(got) != 1 || got[0] != "elevenlabs" {
		t.Fatalf("expected cleaned pro list, got %v", got)
	}
	if got := cfg.Providers.Narration.Free; len(got) != 2 {
		t.Fatalf("expected default free list retained, got %v", got)
	}
	if got := cfg.Artifacts.Extensions; len(got) != 2 || got[0] != ".mp4" {
		t.Fatalf("unexpected extensions: %v", got)
	}
	if cfg.Logging.Format != "json" || cfg.Logging.Level != "debug" {
		t.Fatalf("unexpected logging: %+v", cfg.Logging)
	}
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	configPath := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(configPath, []byte("[queue]\nmax_jobs = 3\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, _, _, err := config.Load(configPath); err == nil {
		t.Fatal("expected unknown key to be rejected")
	}
}

func TestValidateFailures(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.Config)
		want   string
	}{
		{"zero concurrency", func(c *config.Config) { c.Queue.MaxConcurrentJobs = 0 }, "queue.max_concurrent_jobs"},
		{"negative retries", func(c *config.Config) { c.Queue.RetryCount = -1 }, "queue.retry_count"},
		{"backoff order", func(c *config.Config) { c.Queue.BackoffMaxMs = 10; c.Queue.BackoffBaseMs = 100 }, "queue.backoff_max_ms"},
		{"memory percent", func(c *config.Config) { c.Queue.MinFreeMemoryPercent = 100 }, "queue.min_free_memory_percent"},
		{"stage timeout", func(c *config.Config) { c.Stages.Visuals.TimeoutSeconds = 0 }, "stages.visuals.timeout_seconds"},
		{"empty tier", func(c *config.Config) { c.Providers.Script.Tier = "" }, "providers.script.tier"},
		{"log format", func(c *config.Config) { c.Logging.Format = "xml" }, "logging.format"},
		{"notify timeout", func(c *config.Config) { c.Notifications.RequestTimeout = 0 }, "notifications.request_timeout"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Default()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected %q in error, got %v", tt.want, err)
			}
		})
	}
}

func TestSampleConfigMatchesDefaults(t *testing.T) {
	var cfg config.Config
	if err := toml.Unmarshal([]byte(config.SampleConfig()), &cfg); err != nil {
		t.Fatalf("sample config does not parse: %v", err)
	}
	def := config.Default()
	if cfg.Queue != def.Queue {
		t.Fatalf("sample queue section drifted from defaults: %+v vs %+v", cfg.Queue, def.Queue)
	}
	if cfg.Stages != def.Stages {
		t.Fatalf("sample stages drifted from defaults")
	}
	if cfg.Providers.Narration.Tier != def.Providers.Narration.Tier {
		t.Fatalf("sample narration tier drifted: %q", cfg.Providers.Narration.Tier)
	}
}

func TestCreateSampleAndEnsureDirectories(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "config.toml")
	if err := config.CreateSample(path); err != nil {
		t.Fatalf("CreateSample: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected sample written: %v", err)
	}

	cfg := config.Default()
	cfg.Paths.WorkDir = filepath.Join(dir, "work")
	cfg.Paths.OutputDir = filepath.Join(dir, "out")
	cfg.Paths.LogDir = filepath.Join(dir, "logs")
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}
	for _, p := range []string{cfg.Paths.WorkDir, cfg.Paths.OutputDir, cfg.Paths.LogDir} {
		if info, err := os.Stat(p); err != nil || !info.IsDir() {
			t.Fatalf("expected directory %s", p)
		}
	}
	if got := cfg.JobWorkDir("abc"); got != filepath.Join(cfg.Paths.WorkDir, "abc") {
		t.Fatalf("unexpected job work dir %q", got)
	}
}
