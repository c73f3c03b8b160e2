package queue

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"reelforge/internal/faults"
	"reelforge/internal/logging"
)

// dispatch admits queued jobs in FIFO order while a worker slot is free and
// the host is not under pressure.
func (q *Queue) dispatch(ctx context.Context) {
	defer q.wg.Done()
	for {
		if !q.waitForSlot(ctx) {
			return
		}
		settings := q.Settings()
		if blocked, _ := q.checkThrottle(settings); blocked {
			timer := time.NewTimer(settings.AdmissionPoll)
			select {
			case <-ctx.Done():
				timer.Stop()
				return
			case <-timer.C:
			}
			continue
		}
		e, jobCtx := q.admitNext(ctx, settings)
		if e == nil {
			continue
		}
		q.wg.Add(1)
		go q.runJob(jobCtx, e)
	}
}

// waitForSlot blocks until a queued job and a free slot exist.
func (q *Queue) waitForSlot(ctx context.Context) bool {
	for {
		q.mu.Lock()
		ready := len(q.pending) > 0 && q.running < q.Settings().MaxConcurrentJobs
		q.mu.Unlock()
		if ready {
			return true
		}
		select {
		case <-ctx.Done():
			return false
		case <-q.wake:
		}
	}
}

func (q *Queue) checkThrottle(settings Settings) (bool, string) {
	if !thresholdsEnabled(settings) {
		q.setThrottled("")
		return false, ""
	}
	sample, err := q.probe.Sample()
	if err != nil {
		q.logger.Debug("load probe failed; admitting without throttle", logging.Error(err))
		q.setThrottled("")
		return false, ""
	}
	blocked, reason := admissionBlocked(settings, sample)
	q.setThrottled(reason)
	return blocked, reason
}

// setThrottled records the throttle state and logs transitions only.
func (q *Queue) setThrottled(reason string) {
	prev := q.throttled.Swap(&reason)
	was := prev != nil && *prev != ""
	switch {
	case reason != "" && !was:
		logging.WarnWithContext(q.logger, "admission paused", "queue_throttled",
			logging.String("reason", reason),
			logging.String(logging.FieldErrorHint, "new jobs wait until host load drops; running jobs continue"),
			logging.String(logging.FieldImpact, "job starts delayed"),
		)
	case reason == "" && was:
		q.logger.Info("admission resumed", logging.String(logging.FieldEventType, "queue_throttle_cleared"))
	}
}

// admitNext pops the oldest queued job and moves it to Running.
func (q *Queue) admitNext(parent context.Context, settings Settings) (*entry, context.Context) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.pending) == 0 || q.running >= settings.MaxConcurrentJobs {
		return nil, nil
	}
	e := q.pending[0]
	q.pending = q.pending[1:]
	e.tracker.settings = settings
	if !e.tracker.Start() {
		return nil, nil
	}
	jobCtx, cancel := context.WithCancelCause(parent)
	e.cancel = cancel
	q.running++
	return e, jobCtx
}

// runJob is the worker boundary: a panic in the runner becomes an
// InternalError failure of this job only.
func (q *Queue) runJob(ctx context.Context, e *entry) {
	defer q.wg.Done()
	id := e.tracker.ID()
	req := e.tracker.Request()
	logger := q.logger.With(
		logging.String(logging.FieldJobID, id),
		logging.String(logging.FieldCorrelationID, req.CorrelationID),
	)
	logger.Info("job started", logging.String(logging.FieldEventType, "job_start"))
	start := time.Now()

	var (
		artifact *Artifact
		err      error
	)
	func() {
		defer func() {
			if r := recover(); r != nil {
				err = faults.Internal("", r)
				logger.Error("job runner panicked",
					logging.String(logging.FieldEventType, "job_panic"),
					logging.Alert("internal_error"),
					logging.String("panic", fmt.Sprint(r)),
					logging.String("stack", string(debug.Stack())),
				)
			}
		}()
		artifact, err = q.runner.Run(ctx, e.tracker)
	}()

	job := e.tracker.Finish(ctx, artifact, err)
	e.cancel(nil)

	attrs := []logging.Attr{
		logging.String("status", string(job.Status)),
		logging.Duration("duration", time.Since(start)),
	}
	switch job.Status {
	case StatusSucceeded:
		attrs = append(attrs, logging.String(logging.FieldEventType, "job_complete"), logging.String("artifact", job.Artifact.Path))
		logger.Info("job completed", logging.Args(attrs...)...)
	case StatusFailed:
		if rec, ok := job.LastError(); ok {
			attrs = append(attrs,
				logging.String(logging.FieldErrorKind, string(rec.Kind)),
				logging.String(logging.FieldErrorCode, rec.Code),
				logging.String(logging.FieldErrorHint, rec.Remediation),
			)
		}
		logging.ErrorWithContext(logger, "job failed", "job_failed", attrs...)
	default:
		attrs = append(attrs, logging.String(logging.FieldEventType, "job_canceled"), logging.String("reason", job.CancelReason))
		logger.Info("job canceled", logging.Args(attrs...)...)
	}

	q.release(e)
	q.mu.Lock()
	q.running--
	q.mu.Unlock()
	q.signal()
}

// janitor evicts terminal jobs older than the retention window.
func (q *Queue) janitor(ctx context.Context) {
	defer q.wg.Done()
	for {
		interval := min(max(q.Settings().Retention/4, time.Second), time.Minute)
		timer := time.NewTimer(interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
		if n := q.prune(time.Now()); n > 0 {
			q.logger.Debug("evicted finished jobs", logging.Int("count", n))
		}
	}
}

// prune evicts terminal jobs that ended before now minus the retention window.
func (q *Queue) prune(now time.Time) int {
	cutoff := now.Add(-q.Settings().Retention)
	q.mu.Lock()
	defer q.mu.Unlock()
	evicted := 0
	for id, e := range q.jobs {
		job := e.tracker.Snapshot()
		if job.Status.IsTerminal() && job.EndedAt != nil && job.EndedAt.Before(cutoff) {
			q.evictLocked(id)
			evicted++
		}
	}
	return evicted
}
