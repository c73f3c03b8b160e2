package logging

import (
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"
)

// RetentionTarget names a directory and the file glob pruned inside it.
// Exclude lists files that survive regardless of age, such as the log the
// current process writes.
type RetentionTarget struct {
	Dir     string
	Pattern string
	Exclude []string
}

// CleanupOldLogs deletes target files last modified more than retentionDays
// ago and returns how many were removed. Zero or negative days keeps
// everything.
func CleanupOldLogs(logger *slog.Logger, retentionDays int, targets ...RetentionTarget) int {
	if retentionDays <= 0 {
		return 0
	}
	if logger == nil {
		logger = NewNop()
	}
	cutoff := time.Now().AddDate(0, 0, -retentionDays)
	removed := 0
	for _, target := range targets {
		removed += target.prune(logger, cutoff)
	}
	return removed
}

func (t RetentionTarget) prune(logger *slog.Logger, cutoff time.Time) int {
	dir := strings.TrimSpace(t.Dir)
	if dir == "" {
		return 0
	}
	pattern := strings.TrimSpace(t.Pattern)
	if pattern == "" {
		pattern = "*"
	}
	matches, err := filepath.Glob(filepath.Join(dir, pattern))
	if err != nil {
		return 0
	}
	keep := make([]string, 0, len(t.Exclude))
	for _, path := range t.Exclude {
		keep = append(keep, filepath.Clean(strings.TrimSpace(path)))
	}

	removed := 0
	for _, path := range matches {
		if slices.Contains(keep, filepath.Clean(path)) {
			continue
		}
		info, err := os.Lstat(path)
		if err != nil || !info.Mode().IsRegular() || !info.ModTime().Before(cutoff) {
			continue
		}
		if err := os.Remove(path); err != nil {
			WarnWithContext(logger, "log retention remove failed; file remains", "log_retention_failed",
				String("path", path),
				Error(err),
				String(FieldErrorHint, "check file permissions and paths.log_dir ownership"),
				String(FieldImpact, "old log file remains on disk"),
			)
			continue
		}
		removed++
		logger.Debug("log pruned",
			String("path", path),
			String(FieldEventType, "log_pruned"),
		)
	}
	return removed
}
