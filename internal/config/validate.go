package config

import (
	"errors"
	"fmt"
	"sort"
)

const maxRetryCount = 10

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateQueue(); err != nil {
		return err
	}
	if err := c.validateStages(); err != nil {
		return err
	}
	if err := c.validateProviders(); err != nil {
		return err
	}
	if err := c.validateNotifications(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validatePaths() error {
	if c.Paths.WorkDir == "" {
		return errors.New("paths.work_dir must be set")
	}
	if c.Paths.OutputDir == "" {
		return errors.New("paths.output_dir must be set")
	}
	return nil
}

func (c *Config) validateQueue() error {
	if err := ensurePositiveMap(map[string]int{
		"queue.max_concurrent_jobs": c.Queue.MaxConcurrentJobs,
		"queue.backoff_base_ms":     c.Queue.BackoffBaseMs,
		"queue.backoff_max_ms":      c.Queue.BackoffMaxMs,
	}); err != nil {
		return err
	}
	if c.Queue.RetryCount < 0 || c.Queue.RetryCount > maxRetryCount {
		return fmt.Errorf("queue.retry_count must be between 0 and %d", maxRetryCount)
	}
	if c.Queue.BackoffMaxMs < c.Queue.BackoffBaseMs {
		return errors.New("queue.backoff_max_ms must be greater than or equal to queue.backoff_base_ms")
	}
	if c.Queue.MaxCPULoad < 0 {
		return errors.New("queue.max_cpu_load must not be negative")
	}
	if c.Queue.MinFreeMemoryPercent < 0 || c.Queue.MinFreeMemoryPercent >= 100 {
		return errors.New("queue.min_free_memory_percent must be between 0 and 100")
	}
	return nil
}

func (c *Config) validateStages() error {
	stages := c.Stages.all()
	values := make(map[string]int, len(stages))
	for name, settings := range stages {
		values["stages."+name+".timeout_seconds"] = settings.TimeoutSeconds
	}
	return ensurePositiveMap(values)
}

// validateProviders only requires a tier value; anything that is not a tier
// name is treated as an exact backend name.
func (c *Config) validateProviders() error {
	chains := c.Providers.all()
	for _, name := range sortedKeys(chains) {
		if chains[name].Tier == "" {
			return fmt.Errorf("providers.%s.tier must be set", name)
		}
	}
	return nil
}

func (c *Config) validateNotifications() error {
	if c.Notifications.RequestTimeout <= 0 {
		return errors.New("notifications.request_timeout must be positive")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format must be console or json, got %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be debug, info, warn, or error, got %q", c.Logging.Level)
	}
	return nil
}

func ensurePositiveMap(values map[string]int) error {
	for _, key := range sortedKeys(values) {
		if values[key] <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}

func sortedKeys[V any](values map[string]V) []string {
	keys := make([]string, 0, len(values))
	for key := range values {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
