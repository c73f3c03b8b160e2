package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"reelforge/internal/config"
	"reelforge/internal/faults"
	"reelforge/internal/generation"
	"reelforge/internal/logging"
	"reelforge/internal/preflight"
	"reelforge/internal/provider"
	"reelforge/internal/queue"
	"reelforge/internal/services"
	"reelforge/internal/stage"
)

// Options configures a Coordinator.
type Options struct {
	Config   *config.Config
	Selector *provider.Selector
	// Registry holds the optional backends; nil means none.
	Registry *provider.Registry
	// Executor runs stage bodies; nil builds one from Logger.
	Executor *stage.Executor
	Logger   *slog.Logger
	// FreeSpace reports free MiB under a path; nil uses preflight.FreeSpaceMB.
	FreeSpace func(path string) (uint64, error)
}

// Coordinator runs jobs through the pipeline. It is safe for concurrent use
// by several queue workers; per-job state lives in the Tracker.
type Coordinator struct {
	cfg       *config.Config
	selector  *provider.Selector
	registry  *provider.Registry
	executor  *stage.Executor
	logger    *slog.Logger
	resolver  *Resolver
	jobLogs   *JobLogs
	freeSpace func(string) (uint64, error)

	mu      sync.RWMutex
	lastErr error
	lastJob *queue.Job
}

// NewCoordinator validates opts and returns a Coordinator.
func NewCoordinator(opts Options) (*Coordinator, error) {
	if opts.Config == nil {
		return nil, errors.New("workflow: config is required")
	}
	if opts.Selector == nil {
		return nil, errors.New("workflow: selector is required")
	}
	registry := opts.Registry
	if registry == nil {
		registry = provider.NewRegistry()
	}
	executor := opts.Executor
	if executor == nil {
		executor = stage.NewExecutor(opts.Logger)
	}
	freeSpace := opts.FreeSpace
	if freeSpace == nil {
		freeSpace = preflight.FreeSpaceMB
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Coordinator{
		cfg:       opts.Config,
		selector:  opts.Selector,
		registry:  registry,
		executor:  executor,
		logger:    logger,
		resolver:  NewResolver(opts.Config.Artifacts),
		jobLogs:   NewJobLogs(opts.Config),
		freeSpace: freeSpace,
	}, nil
}

// Run executes the pipeline for the tracked job and returns the resolved
// artifact. A returned error fails the job; a cancelled ctx cancels it.
func (c *Coordinator) Run(ctx context.Context, t *queue.Tracker) (*queue.Artifact, error) {
	job := t.Snapshot()
	ctx = services.WithJobID(ctx, job.ID)
	ctx = services.WithRequestID(ctx, job.CorrelationID)

	base, logPath, closeLog := c.jobLogs.Open(job, c.logger)
	defer closeLog()

	run := newPipelineRun(c, t, base, c.cfg.JobWorkDir(job.ID))
	run.logger.Info("pipeline started",
		logging.String(logging.FieldEventType, "pipeline_start"),
		logging.String("topic", job.Request.Topic),
		logging.Duration("target_duration", job.Request.TargetDuration),
		logging.String("work_dir", run.workDir),
		logging.String("job_log", logPath),
	)

	artifact, err := run.execute(ctx)
	c.remember(t.Snapshot(), err)
	return artifact, err
}

// RunRequest runs req to completion outside any queue and returns the
// settled job. A defect inside the pipeline fails the job with InternalError
// instead of escaping.
func (c *Coordinator) RunRequest(ctx context.Context, req generation.Request, publish func(queue.Event)) (queue.Job, error) {
	if err := req.Validate(); err != nil {
		return queue.Job{}, err
	}
	if req.CorrelationID == "" {
		req.CorrelationID = uuid.NewString()
	}
	var sink func(queue.Event) queue.Event
	if publish != nil {
		sink = func(evt queue.Event) queue.Event {
			publish(evt)
			return evt
		}
	}
	t := queue.NewTracker(queue.NewJob(uuid.NewString(), req, time.Now()), queue.SettingsFromConfig(c.cfg), sink)
	t.Start()

	artifact, err := c.runGuarded(ctx, t)
	return t.Finish(ctx, artifact, err), nil
}

func (c *Coordinator) runGuarded(ctx context.Context, t *queue.Tracker) (artifact *queue.Artifact, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = faults.Internal("", r)
			logging.ErrorWithContext(c.logger, "pipeline panicked", "job_panic",
				logging.String(logging.FieldJobID, t.ID()),
				logging.Alert("internal_error"),
				logging.String("panic", fmt.Sprint(r)),
			)
		}
	}()
	return c.Run(ctx, t)
}

// Preview reports the backend each stage would use for req without running
// anything.
func (c *Coordinator) Preview(ctx context.Context, req generation.Request) []provider.Selection {
	if c.cfg.Providers.OfflineOnly {
		req.OfflineOnly = true
	}
	return c.selector.Preview(ctx, req, c.registry)
}

// PreviewStage reports the backend one stage would use for preference.
func (c *Coordinator) PreviewStage(ctx context.Context, st generation.Stage, preference string, offlineOnly bool) provider.Selection {
	return c.selector.Pick(ctx, provider.Query{
		Stage:       st,
		Preference:  preference,
		OfflineOnly: offlineOnly || c.cfg.Providers.OfflineOnly,
		Quiet:       true,
	}, c.registry)
}
