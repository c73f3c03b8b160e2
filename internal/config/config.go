package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"

	"reelforge/internal/generation"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory and bind address configuration.
type Paths struct {
	WorkDir   string `toml:"work_dir"`
	OutputDir string `toml:"output_dir"`
	LogDir    string `toml:"log_dir"`
	APIBind   string `toml:"api_bind"`
	APIToken  string `toml:"api_token"`
}

// Queue contains scheduler limits, retry policy, and resource thresholds.
type Queue struct {
	MaxConcurrentJobs int `toml:"max_concurrent_jobs"`
	RetryCount        int `toml:"retry_count"`
	BackoffBaseMs     int `toml:"backoff_base_ms"`
	BackoffMaxMs      int `toml:"backoff_max_ms"`
	// MaxCPULoad is the 1-minute load average per core above which new jobs
	// wait. Zero disables the check.
	MaxCPULoad float64 `toml:"max_cpu_load"`
	// MinFreeMemoryPercent pauses admission while free RAM is below this share.
	MinFreeMemoryPercent float64 `toml:"min_free_memory_percent"`
	MinFreeDiskMB        int     `toml:"min_free_disk_mb"`
	AdmissionPollMs      int     `toml:"admission_poll_ms"`
	RetentionMinutes     int     `toml:"retention_minutes"`
	EventBuffer          int     `toml:"event_buffer"`
	// WorkDirRetentionHours is how long an unleased job work directory is
	// kept before daemon startup removes it. Zero keeps them forever.
	WorkDirRetentionHours int `toml:"work_dir_retention_hours"`
}

// StageSettings tunes one pipeline stage.
type StageSettings struct {
	TimeoutSeconds int  `toml:"timeout_seconds"`
	Required       bool `toml:"required"`
}

// Timeout returns the stage timeout as a duration.
func (s StageSettings) Timeout() time.Duration {
	return time.Duration(s.TimeoutSeconds) * time.Second
}

// Stages holds per-stage settings.
type Stages struct {
	Script      StageSettings `toml:"script"`
	Narration   StageSettings `toml:"narration"`
	Visuals     StageSettings `toml:"visuals"`
	Composition StageSettings `toml:"composition"`
	Export      StageSettings `toml:"export"`
}

// For returns the settings of stage.
func (s Stages) For(stage generation.Stage) StageSettings {
	switch stage {
	case generation.StageScript:
		return s.Script
	case generation.StageNarration:
		return s.Narration
	case generation.StageVisuals:
		return s.Visuals
	case generation.StageComposition:
		return s.Composition
	default:
		return s.Export
	}
}

func (s *Stages) all() map[string]*StageSettings {
	return map[string]*StageSettings{
		"script":      &s.Script,
		"narration":   &s.Narration,
		"visuals":     &s.Visuals,
		"composition": &s.Composition,
		"export":      &s.Export,
	}
}

// ProviderChain lists the default tier and the ordered premium and free
// backends tried for one stage.
type ProviderChain struct {
	Tier string   `toml:"tier"`
	Pro  []string `toml:"pro"`
	Free []string `toml:"free"`
}

// Providers contains backend selection defaults.
type Providers struct {
	OfflineOnly bool          `toml:"offline_only"`
	Script      ProviderChain `toml:"script"`
	Narration   ProviderChain `toml:"narration"`
	Visuals     ProviderChain `toml:"visuals"`
	Composition ProviderChain `toml:"composition"`
	Export      ProviderChain `toml:"export"`
}

// For returns the chain configured for stage.
func (p Providers) For(stage generation.Stage) ProviderChain {
	switch stage {
	case generation.StageScript:
		return p.Script
	case generation.StageNarration:
		return p.Narration
	case generation.StageVisuals:
		return p.Visuals
	case generation.StageComposition:
		return p.Composition
	default:
		return p.Export
	}
}

func (p *Providers) all() map[string]*ProviderChain {
	return map[string]*ProviderChain{
		"script":      &p.Script,
		"narration":   &p.Narration,
		"visuals":     &p.Visuals,
		"composition": &p.Composition,
		"export":      &p.Export,
	}
}

// Artifacts configures final artifact resolution.
type Artifacts struct {
	AlternateFields []string `toml:"alternate_fields"`
	Extensions      []string `toml:"extensions"`
}

// Notifications contains configuration for ntfy push notifications.
type Notifications struct {
	NtfyTopic      string `toml:"ntfy_topic"`
	RequestTimeout int    `toml:"request_timeout"`
	JobCompleted   bool   `toml:"job_completed"`
	JobFailed      bool   `toml:"job_failed"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format        string `toml:"format"`
	Level         string `toml:"level"`
	RetentionDays int    `toml:"retention_days"`
}

// Config encapsulates all configuration values for reelforge.
//
// Configuration sections by subsystem:
//   - Paths: work/output/log directories and API bind address
//   - Queue: concurrency, retry backoff, and admission throttling
//   - Stages: per-stage timeout and required flag
//   - Providers: default tiers and backend fallback order per stage
//   - Artifacts: field names and extensions used to locate the final file
//   - Notifications: ntfy push notification settings
//   - Logging: log format, level, and retention
type Config struct {
	Paths         Paths         `toml:"paths"`
	Queue         Queue         `toml:"queue"`
	Stages        Stages        `toml:"stages"`
	Providers     Providers     `toml:"providers"`
	Artifacts     Artifacts     `toml:"artifacts"`
	Notifications Notifications `toml:"notifications"`
	Logging       Logging       `toml:"logging"`
}

const defaultConfigPath = "~/.config/reelforge/config.toml"

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file).DisallowUnknownFields()
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("reelforge.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates the work, output, and log directories.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.WorkDir, c.Paths.OutputDir, c.Paths.LogDir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// JobWorkDir returns the scratch directory owned by one job.
func (c *Config) JobWorkDir(jobID string) string {
	return filepath.Join(c.Paths.WorkDir, jobID)
}

// DaemonLockPath returns the single-instance lock file used by the daemon.
func (c *Config) DaemonLockPath() string {
	return filepath.Join(c.Paths.WorkDir, "reelforge.lock")
}

// FFmpegBinary returns the ffmpeg executable name used by rendering backends.
func (c *Config) FFmpegBinary() string {
	return "ffmpeg"
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// SampleConfig returns the embedded sample configuration.
func SampleConfig() string {
	return sampleConfig
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
