package queue

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"reelforge/internal/generation"
	"reelforge/internal/logging"
)

// Runner executes the pipeline of one admitted job. It returns the resolved
// artifact on success. Runners must honour ctx cancellation at stage
// boundaries.
type Runner interface {
	Run(ctx context.Context, t *Tracker) (*Artifact, error)
}

// RunnerFunc adapts a function to Runner.
type RunnerFunc func(ctx context.Context, t *Tracker) (*Artifact, error)

func (f RunnerFunc) Run(ctx context.Context, t *Tracker) (*Artifact, error) { return f(ctx, t) }

// Options configures a Queue.
type Options struct {
	Settings Settings
	Runner   Runner
	Logger   *slog.Logger
	// Probe samples host load; nil uses SystemProbe.
	Probe LoadProbe
}

type entry struct {
	tracker *Tracker
	cancel  context.CancelCauseFunc
}

// Queue is the in-process job scheduler.
type Queue struct {
	runner   Runner
	probe    LoadProbe
	logger   *slog.Logger
	settings atomic.Pointer[Settings]
	hub      *eventHub

	mu          sync.Mutex
	jobs        map[string]*entry
	order       []string
	pending     []*entry
	correlation map[string]string
	running     int
	started     bool
	stopped     bool

	wake      chan struct{}
	throttled atomic.Pointer[string]
	cancel    context.CancelCauseFunc
	wg        sync.WaitGroup
	stopOnce  sync.Once
}

// New constructs a Queue. Call Start to begin admitting jobs.
func New(opts Options) (*Queue, error) {
	if opts.Runner == nil {
		return nil, fmt.Errorf("queue: runner is required")
	}
	settings := opts.Settings.normalized()
	probe := opts.Probe
	if probe == nil {
		probe = SystemProbe{}
	}
	q := &Queue{
		runner:      opts.Runner,
		probe:       probe,
		logger:      logging.NewComponentLogger(opts.Logger, "queue"),
		hub:         newEventHub(settings.EventBuffer),
		jobs:        make(map[string]*entry),
		correlation: make(map[string]string),
		wake:        make(chan struct{}, 1),
	}
	q.settings.Store(&settings)
	return q, nil
}

// Settings returns the current scheduling settings.
func (q *Queue) Settings() Settings {
	return *q.settings.Load()
}

// UpdateSettings swaps the scheduling settings. Running jobs keep the
// snapshot they were admitted with.
func (q *Queue) UpdateSettings(s Settings) {
	s = s.normalized()
	q.settings.Store(&s)
	q.logger.Info("queue settings updated",
		logging.String(logging.FieldEventType, "queue_settings_updated"),
		logging.Int("max_concurrent_jobs", s.MaxConcurrentJobs),
		logging.Int("retry_count", s.RetryCount),
		logging.Float64("max_cpu_load", s.MaxCPULoad),
		logging.Float64("min_free_memory_percent", s.MinFreeMemoryPercent),
	)
	q.signal()
}

// Start launches the dispatcher and the retention janitor. The queue stops
// when ctx is cancelled or Stop is called.
func (q *Queue) Start(ctx context.Context) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.stopped {
		return ErrStopped
	}
	if q.started {
		return fmt.Errorf("queue already started")
	}
	runCtx, cancel := context.WithCancelCause(ctx)
	q.cancel = cancel
	q.started = true
	q.wg.Add(2)
	go q.dispatch(runCtx)
	go q.janitor(runCtx)
	return nil
}

// Stop cancels running jobs, stops admission and waits for workers to
// return or ctx to expire. Queued jobs are canceled.
func (q *Queue) Stop(ctx context.Context) error {
	q.stopOnce.Do(func() {
		q.mu.Lock()
		q.stopped = true
		pending := q.pending
		q.pending = nil
		cancel := q.cancel
		q.mu.Unlock()

		for _, e := range pending {
			if e.tracker.Cancel(ErrStopped.Error()) {
				q.release(e)
			}
		}
		if cancel != nil {
			cancel(ErrStopped)
		}
	})

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		q.hub.closeAll()
		return nil
	case <-ctx.Done():
		q.logger.Warn("queue stop deadline reached; workers may still be running",
			logging.String(logging.FieldEventType, "queue_stop_timeout"),
		)
		return ctx.Err()
	}
}

// Enqueue validates req, records a Queued job and returns its id without
// waiting for it to run. A correlation id already owned by a queued or
// running job yields ErrDuplicateRequest together with that job's id.
func (q *Queue) Enqueue(req generation.Request) (string, error) {
	if err := req.Validate(); err != nil {
		return "", err
	}
	req.CorrelationID = strings.TrimSpace(req.CorrelationID)
	if req.CorrelationID == "" {
		req.CorrelationID = uuid.NewString()
	}

	q.mu.Lock()
	if q.stopped {
		q.mu.Unlock()
		return "", ErrStopped
	}
	if existing, ok := q.correlation[req.CorrelationID]; ok {
		q.mu.Unlock()
		return existing, fmt.Errorf("%w: correlation id %s owned by job %s", ErrDuplicateRequest, req.CorrelationID, existing)
	}
	id := uuid.NewString()
	e := &entry{}
	e.tracker = NewTracker(NewJob(id, req, time.Now()), q.Settings(), q.hub.publish)
	q.jobs[id] = e
	q.order = append(q.order, id)
	q.pending = append(q.pending, e)
	q.correlation[req.CorrelationID] = id
	q.hub.publish(Event{Type: EventStatusChanged, JobID: id, Status: StatusQueued, Time: time.Now().UTC(), Message: "enqueued"})
	q.mu.Unlock()

	q.logger.Info("job enqueued",
		logging.String(logging.FieldEventType, "job_enqueued"),
		logging.String(logging.FieldJobID, id),
		logging.String(logging.FieldCorrelationID, req.CorrelationID),
		logging.String("topic", req.Topic),
	)
	q.signal()
	return id, nil
}

// Cancel cancels a job. A queued job becomes Canceled immediately; a running
// job is signalled and becomes Canceled when its pipeline observes the
// cancellation at the next stage boundary.
func (q *Queue) Cancel(id string) error {
	q.mu.Lock()
	e, ok := q.jobs[id]
	if !ok {
		q.mu.Unlock()
		return ErrNotFound
	}
	status := e.tracker.Status()
	if status == StatusQueued {
		q.pending = slices.DeleteFunc(q.pending, func(p *entry) bool { return p == e })
	}
	cancel := e.cancel
	q.mu.Unlock()

	switch status {
	case StatusQueued:
		if e.tracker.Cancel(ErrCanceledByUser.Error()) {
			q.release(e)
			q.logger.Info("queued job canceled",
				logging.String(logging.FieldEventType, "job_canceled"),
				logging.String(logging.FieldJobID, id),
			)
			q.signal()
			return nil
		}
		// Admitted between the status read and the cancel.
		return q.Cancel(id)
	case StatusRunning:
		if cancel != nil {
			cancel(ErrCanceledByUser)
		}
		q.logger.Info("cancellation requested for running job",
			logging.String(logging.FieldEventType, "job_cancel_requested"),
			logging.String(logging.FieldJobID, id),
		)
		return nil
	default:
		return ErrJobFinished
	}
}

// GetStatus returns a snapshot of the job.
func (q *Queue) GetStatus(id string) (Job, error) {
	q.mu.Lock()
	e, ok := q.jobs[id]
	q.mu.Unlock()
	if !ok {
		return Job{}, ErrNotFound
	}
	return e.tracker.Snapshot(), nil
}

// List returns snapshots of every tracked job in enqueue order.
func (q *Queue) List() []Job {
	q.mu.Lock()
	entries := make([]*entry, 0, len(q.order))
	for _, id := range q.order {
		if e, ok := q.jobs[id]; ok {
			entries = append(entries, e)
		}
	}
	q.mu.Unlock()
	out := make([]Job, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.tracker.Snapshot())
	}
	return out
}

// Stats counts tracked jobs per status.
func (q *Queue) Stats() Stats {
	var stats Stats
	for _, job := range q.List() {
		stats.add(job.Status)
	}
	if reason := q.throttled.Load(); reason != nil && *reason != "" {
		stats.Throttled = true
		stats.Reason = *reason
	}
	return stats
}

// Subscribe streams the events of one job, starting with those already
// published. The channel closes after the job's terminal event.
func (q *Queue) Subscribe(id string) (*Subscription, error) {
	q.mu.Lock()
	_, ok := q.jobs[id]
	q.mu.Unlock()
	if !ok {
		return nil, ErrNotFound
	}
	return q.hub.subscribeJob(id), nil
}

// SubscribeAll streams events of every job until Close or Stop.
func (q *Queue) SubscribeAll() *Subscription {
	return q.hub.subscribeAll()
}

// Purge evicts a terminal job immediately.
func (q *Queue) Purge(id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	e, ok := q.jobs[id]
	if !ok {
		return ErrNotFound
	}
	if !e.tracker.Status().IsTerminal() {
		return ErrJobActive
	}
	q.evictLocked(id)
	return nil
}

func (q *Queue) evictLocked(id string) {
	delete(q.jobs, id)
	q.order = slices.DeleteFunc(q.order, func(v string) bool { return v == id })
	q.hub.forget(id)
}

// release drops the correlation claim of a job that reached a terminal status.
func (q *Queue) release(e *entry) {
	job := e.tracker.Snapshot()
	q.mu.Lock()
	if q.correlation[job.CorrelationID] == job.ID {
		delete(q.correlation, job.CorrelationID)
	}
	q.mu.Unlock()
}

func (q *Queue) signal() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}
