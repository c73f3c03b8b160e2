package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeQueue()
	c.normalizeProviders()
	c.normalizeArtifacts()
	c.Notifications.NtfyTopic = strings.TrimSpace(c.Notifications.NtfyTopic)
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if c.Paths.WorkDir, err = expandPath(c.Paths.WorkDir); err != nil {
		return fmt.Errorf("paths.work_dir: %w", err)
	}
	if c.Paths.OutputDir, err = expandPath(c.Paths.OutputDir); err != nil {
		return fmt.Errorf("paths.output_dir: %w", err)
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	c.Paths.APIBind = strings.TrimSpace(c.Paths.APIBind)
	if c.Paths.APIBind == "" {
		c.Paths.APIBind = defaultAPIBind
	}
	c.Paths.APIToken = strings.TrimSpace(c.Paths.APIToken)
	if c.Paths.APIToken == "" {
		if value, ok := os.LookupEnv("REELFORGE_API_TOKEN"); ok {
			c.Paths.APIToken = strings.TrimSpace(value)
		}
	}
	return nil
}

func (c *Config) normalizeQueue() {
	if c.Queue.AdmissionPollMs <= 0 {
		c.Queue.AdmissionPollMs = defaultAdmissionPollMs
	}
	if c.Queue.EventBuffer <= 0 {
		c.Queue.EventBuffer = defaultEventBuffer
	}
	if c.Queue.RetentionMinutes < 0 {
		c.Queue.RetentionMinutes = 0
	}
	if c.Queue.WorkDirRetentionHours < 0 {
		c.Queue.WorkDirRetentionHours = 0
	}
	if c.Queue.MinFreeDiskMB < 0 {
		c.Queue.MinFreeDiskMB = 0
	}
}

func (c *Config) normalizeProviders() {
	for _, chain := range c.Providers.all() {
		chain.Tier = strings.TrimSpace(chain.Tier)
		chain.Pro = cleanNames(chain.Pro)
		chain.Free = cleanNames(chain.Free)
	}
}

func (c *Config) normalizeArtifacts() {
	c.Artifacts.AlternateFields = cleanNames(c.Artifacts.AlternateFields)
	if len(c.Artifacts.AlternateFields) == 0 {
		c.Artifacts.AlternateFields = append([]string(nil), defaultAlternateFields...)
	}
	exts := make([]string, 0, len(c.Artifacts.Extensions))
	for _, ext := range cleanNames(c.Artifacts.Extensions) {
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		exts = append(exts, ext)
	}
	if len(exts) == 0 {
		exts = append(exts, defaultExtensions...)
	}
	c.Artifacts.Extensions = exts
}

// cleanNames lowercases, trims, and deduplicates while keeping order.
func cleanNames(values []string) []string {
	out := make([]string, 0, len(values))
	seen := make(map[string]struct{}, len(values))
	for _, value := range values {
		normalized := strings.ToLower(strings.TrimSpace(value))
		if normalized == "" {
			continue
		}
		if _, exists := seen[normalized]; exists {
			continue
		}
		seen[normalized] = struct{}{}
		out = append(out, normalized)
	}
	return out
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	if c.Logging.RetentionDays < 0 {
		c.Logging.RetentionDays = 0
	}
}
