package testsupport

import (
	"path/filepath"
	"testing"

	"reelforge/internal/config"
	"reelforge/internal/generation"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// Admission throttling is disabled and retry backoff is shortened so tests
// do not depend on host load or wall-clock waits.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.WorkDir = filepath.Join(base, "work")
	cfgVal.Paths.OutputDir = filepath.Join(base, "output")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Paths.APIBind = "127.0.0.1:0"
	cfgVal.Queue.MaxCPULoad = 0
	cfgVal.Queue.MinFreeMemoryPercent = 0
	cfgVal.Queue.MinFreeDiskMB = 0
	cfgVal.Queue.BackoffBaseMs = 1
	cfgVal.Queue.BackoffMaxMs = 5
	cfgVal.Queue.AdmissionPollMs = 10
	cfgVal.Notifications.NtfyTopic = ""

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	if err := builder.cfg.EnsureDirectories(); err != nil {
		t.Fatalf("ensure directories: %v", err)
	}
	return builder.cfg
}

// WithRetryCount overrides how many times retryable stage failures are retried.
func WithRetryCount(n int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Queue.RetryCount = n
	}
}

// WithMaxConcurrentJobs overrides the worker count.
func WithMaxConcurrentJobs(n int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Queue.MaxConcurrentJobs = n
	}
}

// WithStageTimeout sets the timeout of one stage in seconds.
func WithStageTimeout(stage generation.Stage, seconds int) ConfigOption {
	return func(b *configBuilder) {
		settings := b.stage(stage)
		settings.TimeoutSeconds = seconds
	}
}

// WithStageOptional marks a stage as not required.
func WithStageOptional(stage generation.Stage) ConfigOption {
	return func(b *configBuilder) {
		b.stage(stage).Required = false
	}
}

// WithProviderTier overrides the default tier of one stage.
func WithProviderTier(stage generation.Stage, tier generation.Tier) ConfigOption {
	return func(b *configBuilder) {
		b.chain(stage).Tier = string(tier)
	}
}

// WithAPIToken sets the bearer token required by the HTTP API.
func WithAPIToken(token string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Paths.APIToken = token
	}
}

// WithOfflineOnly forces selection to skip network-bound backends.
func WithOfflineOnly() ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Providers.OfflineOnly = true
	}
}

// WithNtfyTopic enables notifications against the given topic URL.
func WithNtfyTopic(topic string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Notifications.NtfyTopic = topic
	}
}

func (b *configBuilder) stage(stage generation.Stage) *config.StageSettings {
	switch stage {
	case generation.StageScript:
		return &b.cfg.Stages.Script
	case generation.StageNarration:
		return &b.cfg.Stages.Narration
	case generation.StageVisuals:
		return &b.cfg.Stages.Visuals
	case generation.StageComposition:
		return &b.cfg.Stages.Composition
	default:
		return &b.cfg.Stages.Export
	}
}

func (b *configBuilder) chain(stage generation.Stage) *config.ProviderChain {
	switch stage {
	case generation.StageScript:
		return &b.cfg.Providers.Script
	case generation.StageNarration:
		return &b.cfg.Providers.Narration
	case generation.StageVisuals:
		return &b.cfg.Providers.Visuals
	case generation.StageComposition:
		return &b.cfg.Providers.Composition
	default:
		return &b.cfg.Providers.Export
	}
}
