package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"

	"reelforge/internal/config"
	"reelforge/internal/deps"
	"reelforge/internal/logging"
	"reelforge/internal/notifications"
	"reelforge/internal/preflight"
	"reelforge/internal/queue"
	"reelforge/internal/workflow"
)

// Options wires the daemon's collaborators.
type Options struct {
	Config      *config.Config
	Queue       *queue.Queue
	Coordinator *workflow.Coordinator
	Logger      *slog.Logger
	// Notifier defaults to notifications.NewService(Config).
	Notifier notifications.Service
	LogHub   *logging.StreamHub
	LogPath  string
}

// Daemon coordinates the background services and enforces single-instance
// execution.
type Daemon struct {
	cfg      *config.Config
	logger   *slog.Logger
	queue    *queue.Queue
	coord    *workflow.Coordinator
	notifier notifications.Service
	logHub   *logging.StreamHub
	logPath  string

	lockPath string
	lock     *flock.Flock
	api      *apiServer

	mu      sync.Mutex
	running atomic.Bool
	cancel  context.CancelFunc
	forward sync.WaitGroup
}

// Status represents daemon runtime information.
type Status struct {
	Running      bool
	PID          int
	LockFilePath string
	LogPath      string
	Queue        queue.Stats
	Workflow     workflow.StatusSummary
	Dependencies []deps.Status
}

// New constructs a daemon with initialized dependencies.
func New(opts Options) (*Daemon, error) {
	if opts.Config == nil || opts.Queue == nil || opts.Coordinator == nil {
		return nil, errors.New("daemon requires config, queue, and coordinator")
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	notifier := opts.Notifier
	if notifier == nil {
		notifier = notifications.NewService(opts.Config)
	}
	lockPath := opts.Config.DaemonLockPath()
	d := &Daemon{
		cfg:      opts.Config,
		logger:   logging.NewComponentLogger(logger, "daemon"),
		queue:    opts.Queue,
		coord:    opts.Coordinator,
		notifier: notifier,
		logHub:   opts.LogHub,
		logPath:  opts.LogPath,
		lockPath: lockPath,
		lock:     flock.New(lockPath),
	}
	d.api = newAPIServer(opts.Config, d, logger)
	return d, nil
}

// Start acquires the daemon lock, starts the queue, the notification
// forwarder, and the API server.
func (d *Daemon) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another reelforge daemon instance is already running")
	}

	runCtx, cancel := context.WithCancel(ctx)
	if err := d.queue.Start(runCtx); err != nil {
		cancel()
		_ = d.lock.Unlock()
		return fmt.Errorf("start queue: %w", err)
	}
	if err := d.api.start(runCtx); err != nil {
		cancel()
		d.stopQueue()
		_ = d.lock.Unlock()
		return err
	}

	sub := d.queue.SubscribeAll()
	d.forward.Add(1)
	go func() {
		defer d.forward.Done()
		defer sub.Close()
		notifications.Forward(runCtx, sub.C, d.queue.GetStatus, d.notifier, d.logger)
	}()

	d.cancel = cancel
	d.running.Store(true)
	d.logger.Info("reelforge daemon started",
		logging.String(logging.FieldEventType, "daemon_started"),
		logging.String("lock", d.lockPath),
		logging.String("api", d.APIAddress()),
	)
	return nil
}

// Stop stops background processing and releases the daemon lock. Running
// jobs are canceled.
func (d *Daemon) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.running.Load() {
		return
	}

	d.api.stop()
	d.stopQueue()
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.forward.Wait()
	if err := d.lock.Unlock(); err != nil {
		logging.WarnWithContext(d.logger, "failed to release daemon lock", "daemon_lock_release_failed",
			logging.Error(err),
			logging.String("lock", d.lockPath),
			logging.String(logging.FieldErrorHint, "remove the lock file if no daemon is running"),
		)
	}
	d.running.Store(false)
	d.logger.Info("reelforge daemon stopped", logging.String(logging.FieldEventType, "daemon_stopped"))
}

func (d *Daemon) stopQueue() {
	stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := d.queue.Stop(stopCtx); err != nil {
		logging.WarnWithContext(d.logger, "queue did not stop cleanly", "queue_stop_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "some stage backends may still be running"),
		)
	}
}

// Close releases resources held by the daemon.
func (d *Daemon) Close() error {
	d.Stop()
	return nil
}

// Queue exposes the job queue.
func (d *Daemon) Queue() *queue.Queue {
	return d.queue
}

// Coordinator exposes the workflow coordinator.
func (d *Daemon) Coordinator() *workflow.Coordinator {
	return d.coord
}

// LogStream exposes the in-memory log hub, nil when not configured.
func (d *Daemon) LogStream() *logging.StreamHub {
	return d.logHub
}

// LogPath returns the path to the daemon log file.
func (d *Daemon) LogPath() string {
	return d.logPath
}

// APIAddress reports the address the API server listens on, empty when it is
// not running.
func (d *Daemon) APIAddress() string {
	return d.api.address()
}

// TestNotification sends a test notification using the current configuration.
func (d *Daemon) TestNotification(ctx context.Context) error {
	return d.notifier.Publish(ctx, notifications.EventTest, nil)
}

// Status returns the current daemon status.
func (d *Daemon) Status(ctx context.Context) Status {
	return Status{
		Running:      d.running.Load(),
		PID:          os.Getpid(),
		LockFilePath: d.lockPath,
		LogPath:      d.logPath,
		Queue:        d.queue.Stats(),
		Workflow:     d.coord.Status(ctx),
		Dependencies: preflight.CheckSystemDeps(ctx, d.cfg),
	}
}
