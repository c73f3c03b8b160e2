package daemonrun

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"reelforge/internal/config"
	"reelforge/internal/daemon"
	"reelforge/internal/logging"
	"reelforge/internal/preflight"
	"reelforge/internal/provider"
	"reelforge/internal/queue"
	"reelforge/internal/workdir"
	"reelforge/internal/workflow"
)

// Options configures daemon process runtime behavior.
type Options struct {
	LogLevel    string
	Development bool
}

// Run starts the reelforge daemon and blocks until SIGINT/SIGTERM or
// cmdCtx is done.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return err
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	runID := time.Now().UTC().Format("20060102T150405.000Z")
	logPath := filepath.Join(cfg.Paths.LogDir, fmt.Sprintf("reelforge-%s.log", runID))
	logHub := logging.NewStreamHub(4096)

	level := opts.LogLevel
	if level == "" {
		level = cfg.Logging.Level
	}
	logger, err := logging.New(logging.Options{
		Level:       level,
		Format:      cfg.Logging.Format,
		OutputPaths: []string{"stdout"},
		FilePath:    logPath,
		Development: opts.Development,
		Hub:         logHub,
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	logDependencySnapshot(signalCtx, logger, cfg)
	if err := ensureCurrentLogPointer(cfg.Paths.LogDir, logPath); err != nil {
		fmt.Fprintf(os.Stderr, "warn: unable to update %s link: %v\n", logging.LogFileName, err)
	}
	prunedLogs := logging.CleanupOldLogs(logger, cfg.Logging.RetentionDays,
		logging.RetentionTarget{Dir: cfg.Paths.LogDir, Pattern: "reelforge-*.log", Exclude: []string{logPath}},
		logging.RetentionTarget{Dir: filepath.Join(cfg.Paths.LogDir, workflow.JobLogDir), Pattern: "*.log"},
	)
	cleaned := workdir.CleanStale(signalCtx, cfg.Paths.WorkDir, time.Duration(cfg.Queue.WorkDirRetentionHours)*time.Hour, logger)
	if prunedLogs > 0 || len(cleaned.Removed) > 0 || len(cleaned.Errors) > 0 {
		logger.Info("startup housekeeping finished",
			logging.String(logging.FieldEventType, "housekeeping"),
			logging.Int("logs_pruned", prunedLogs),
			logging.Int("removed", len(cleaned.Removed)),
			logging.Int("in_use", len(cleaned.InUse)),
			logging.Int("errors", len(cleaned.Errors)),
		)
	}
	pidPath := filepath.Join(cfg.Paths.LogDir, "reelforge.pid")
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer os.Remove(pidPath)

	coord, err := NewCoordinator(cfg, logger)
	if err != nil {
		return err
	}
	q, err := queue.New(queue.Options{
		Settings: queue.SettingsFromConfig(cfg),
		Runner:   coord,
		Logger:   logger,
	})
	if err != nil {
		return fmt.Errorf("create queue: %w", err)
	}

	d, err := daemon.New(daemon.Options{
		Config:      cfg,
		Queue:       q,
		Coordinator: coord,
		Logger:      logger,
		LogHub:      logHub,
		LogPath:     logPath,
	})
	if err != nil {
		return fmt.Errorf("create daemon: %w", err)
	}
	defer d.Close()

	if err := d.Start(signalCtx); err != nil {
		logging.ErrorWithContext(logger, "daemon start failed", "daemon_start_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check paths.api_bind and that no other daemon owns paths.work_dir"),
			logging.String(logging.FieldImpact, "no jobs will be processed"),
		)
		return err
	}

	<-signalCtx.Done()
	logger.Info("reelforge daemon shutting down", logging.String(logging.FieldEventType, "daemon_shutdown"))
	return nil
}

// NewCoordinator wires the default backend registry and selector into a
// workflow coordinator.
func NewCoordinator(cfg *config.Config, logger *slog.Logger) (*workflow.Coordinator, error) {
	registry, err := provider.DefaultRegistry(cfg)
	if err != nil {
		return nil, fmt.Errorf("build provider registry: %w", err)
	}
	selector, err := provider.NewSelector(provider.OptionsFromConfig(cfg, logger))
	if err != nil {
		return nil, fmt.Errorf("build provider selector: %w", err)
	}
	coord, err := workflow.NewCoordinator(workflow.Options{
		Config:   cfg,
		Selector: selector,
		Registry: registry,
		Logger:   logger,
	})
	if err != nil {
		return nil, fmt.Errorf("build coordinator: %w", err)
	}
	return coord, nil
}

func ensureCurrentLogPointer(logDir, target string) error {
	if logDir == "" || target == "" {
		return nil
	}
	current := filepath.Join(logDir, logging.LogFileName)
	if err := os.Remove(current); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove existing log pointer: %w", err)
	}
	if err := os.Symlink(target, current); err == nil {
		return nil
	}
	if err := os.Link(target, current); err != nil {
		return fmt.Errorf("link log pointer: %w", err)
	}
	return nil
}

func writePIDFile(path string) error {
	if path == "" {
		return nil
	}
	value := strconv.Itoa(os.Getpid()) + "\n"
	return os.WriteFile(path, []byte(value), 0o644)
}

func logDependencySnapshot(ctx context.Context, logger *slog.Logger, cfg *config.Config) {
	attrs := []logging.Attr{
		logging.String(logging.FieldEventType, "dependency_snapshot"),
		logging.Bool("offline_only", cfg.Providers.OfflineOnly),
		logging.Bool("notifications_enabled", cfg.Notifications.NtfyTopic != ""),
	}
	for _, status := range preflight.CheckSystemDeps(ctx, cfg) {
		attrs = append(attrs,
			logging.Bool(status.Command+"_available", status.Available),
			logging.String(status.Command+"_detail", status.Detail),
		)
	}
	logger.Info("dependency snapshot", logging.Args(attrs...)...)
}
