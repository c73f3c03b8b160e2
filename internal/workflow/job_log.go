package workflow

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"reelforge/internal/config"
	"reelforge/internal/logging"
	"reelforge/internal/queue"
	"reelforge/internal/textutil"
)

// JobLogDir is the log_dir subdirectory holding per-job log files.
const JobLogDir = "jobs"

// JobLogs manages dedicated JSON log files for individual jobs.
type JobLogs struct {
	baseDir string
	level   string
	now     func() time.Time
}

// NewJobLogs returns a JobLogs writing under <log_dir>/jobs. Without a log
// directory no files are written.
func NewJobLogs(cfg *config.Config) *JobLogs {
	dir := ""
	level := "info"
	if cfg != nil {
		if cfg.Paths.LogDir != "" {
			dir = filepath.Join(cfg.Paths.LogDir, JobLogDir)
		}
		if strings.TrimSpace(cfg.Logging.Level) != "" {
			level = cfg.Logging.Level
		}
	}
	return &JobLogs{baseDir: dir, level: level, now: time.Now}
}

// Dir returns the directory job logs are written to.
func (j *JobLogs) Dir() string {
	return j.baseDir
}

// Open returns a logger writing to both base and the job's own file, the
// file path, and a func closing the file. When the file cannot be opened
// base is returned and the failure logged.
func (j *JobLogs) Open(job queue.Job, base *slog.Logger) (*slog.Logger, string, func()) {
	if base == nil {
		base = logging.NewNop()
	}
	if j == nil || strings.TrimSpace(j.baseDir) == "" {
		return base, "", func() {}
	}
	path := filepath.Join(j.baseDir, j.filename(job))
	handler, closer, err := logging.OpenJSONFile(path, j.level)
	if err != nil {
		logging.WarnWithContext(base, "job log unavailable", "job_log_open_failed",
			logging.String(logging.FieldJobID, job.ID),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check paths.log_dir permissions"),
			logging.String(logging.FieldImpact, "job logs only reach the daemon log"),
		)
		return base, "", func() {}
	}
	logger := slog.New(logging.Tee(base.Handler(), handler))
	return logger, path, func() { _ = closer.Close() }
}

func (j *JobLogs) filename(job queue.Job) string {
	timestamp := j.now().UTC().Format("20060102T150405")
	id := textutil.SanitizeToken(job.ID)
	id = id[:min(len(id), 8)]
	return fmt.Sprintf("%s-%s-%s.log", timestamp, id, textutil.Slug(job.Request.Topic, 40))
}
