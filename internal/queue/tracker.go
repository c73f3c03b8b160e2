package queue

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"reelforge/internal/faults"
	"reelforge/internal/generation"
)

// Tracker owns the mutable state of one job. Runners record stage progress
// through it; every accepted change is published as an Event. Changes that
// would move the job out of a terminal status, or rewrite a terminal stage
// result, are ignored.
type Tracker struct {
	mu       sync.Mutex
	job      Job
	settings Settings
	publish  func(Event) Event
	now      func() time.Time
}

// NewTracker wraps job. publish may be nil when nobody observes the job.
func NewTracker(job Job, settings Settings, publish func(Event) Event) *Tracker {
	if publish == nil {
		publish = func(evt Event) Event { return evt }
	}
	return &Tracker{
		job:      job,
		settings: settings.normalized(),
		publish:  publish,
		now:      time.Now,
	}
}

// ID returns the job id.
func (t *Tracker) ID() string {
	return t.job.ID
}

// Request returns the immutable request of the job.
func (t *Tracker) Request() generation.Request {
	return t.job.Request
}

// Settings returns the scheduling snapshot the job was admitted with.
func (t *Tracker) Settings() Settings {
	return t.settings
}

// Snapshot returns a deep copy of the job.
func (t *Tracker) Snapshot() Job {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.job.Clone()
}

// Status returns the current job status.
func (t *Tracker) Status() Status {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.job.Status
}

// Start moves a queued job to Running.
func (t *Tracker) Start() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.transitionLocked(StatusRunning, "") {
		return false
	}
	now := t.now().UTC()
	t.job.StartedAt = &now
	return true
}

// StageStarted marks a stage Running with its selected backend.
func (t *Tracker) StageStarted(res StageResult) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.job.Status != StatusRunning {
		return
	}
	idx := t.job.stageIndex(res.Stage)
	if idx < 0 || t.job.Stages[idx].Status.IsTerminal() {
		return
	}
	res.Status = StepRunning
	if res.StartedAt == nil {
		now := t.now().UTC()
		res.StartedAt = &now
	}
	t.job.Stages[idx] = res.clone()
	t.job.CurrentStage = res.Stage
	t.job.ProgressPercent = 0
	t.job.ProgressMessage = fmt.Sprintf("%s started", res.Stage)
	t.emitLocked(Event{
		Type:       EventStepProgress,
		Stage:      res.Stage,
		StepStatus: StepRunning,
		Provider:   res.Provider,
		Percent:    0,
		Message:    t.job.ProgressMessage,
	})
}

// Progress records provider-reported progress for the running stage.
func (t *Tracker) Progress(stage generation.Stage, percent float64, message string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.job.Status != StatusRunning {
		return
	}
	idx := t.job.stageIndex(stage)
	if idx < 0 || t.job.Stages[idx].Status != StepRunning {
		return
	}
	percent = min(max(percent, 0), 100)
	t.job.ProgressPercent = percent
	if msg := strings.TrimSpace(message); msg != "" {
		t.job.ProgressMessage = msg
	}
	t.emitLocked(Event{
		Type:       EventStepProgress,
		Stage:      stage,
		StepStatus: StepRunning,
		Provider:   t.job.Stages[idx].Provider,
		Percent:    percent,
		Message:    t.job.ProgressMessage,
	})
}

// StepError publishes a stage failure. retrying marks attempts that will be
// retried; those leave no trace on the stage result besides a warning.
func (t *Tracker) StepError(stage generation.Stage, rec faults.Record, attempt int, retrying bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.job.Status.IsTerminal() {
		return
	}
	r := rec
	t.emitLocked(Event{
		Type:     EventStepError,
		Stage:    stage,
		Provider: rec.Provider,
		Message:  rec.Message,
		Attempt:  attempt,
		Retrying: retrying,
		Error:    &r,
	})
}

// StageFinished records the final result of a stage. A result that is not
// terminal, or a stage that already has a terminal result, is ignored.
func (t *Tracker) StageFinished(res StageResult) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.job.Status != StatusRunning || !res.Status.IsTerminal() {
		return
	}
	idx := t.job.stageIndex(res.Stage)
	if idx < 0 || t.job.Stages[idx].Status.IsTerminal() {
		return
	}
	prev := t.job.Stages[idx]
	if res.StartedAt == nil {
		res.StartedAt = prev.StartedAt
	}
	if res.Provider == "" {
		res.Provider = prev.Provider
		res.Tier = prev.Tier
		res.IsFallback = prev.IsFallback
		res.FallbackFrom = prev.FallbackFrom
		res.SelectionReason = prev.SelectionReason
	}
	if res.EndedAt == nil {
		now := t.now().UTC()
		res.EndedAt = &now
	}
	t.job.Stages[idx] = res.clone()
	evt := Event{
		Type:       EventStepProgress,
		Stage:      res.Stage,
		StepStatus: res.Status,
		Provider:   res.Provider,
		Message:    fmt.Sprintf("%s %s", res.Stage, strings.ToLower(string(res.Status))),
	}
	if res.Status == StepSucceeded {
		evt.Percent = 100
		t.job.ProgressPercent = 100
	}
	t.job.ProgressMessage = evt.Message
	t.emitLocked(evt)
}

// StageSkipped marks a pending stage Skipped.
func (t *Tracker) StageSkipped(stage generation.Stage, reason string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.job.Status != StatusRunning {
		return
	}
	idx := t.job.stageIndex(stage)
	if idx < 0 || t.job.Stages[idx].Status != StepPending {
		return
	}
	t.job.Stages[idx].Status = StepSkipped
	if reason != "" {
		t.job.Stages[idx].Warnings = append(t.job.Stages[idx].Warnings, reason)
	}
}

// Cancel moves a queued job straight to Canceled.
func (t *Tracker) Cancel(reason string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.job.Status != StatusQueued {
		return false
	}
	t.closeStagesLocked(StepCanceled, nil)
	return t.finishLocked(StatusCanceled, nil, nil, reason)
}

// Finish settles the job after its runner returned. A cancelled ctx yields
// Canceled; a non-nil err yields Failed with the classified error; a nil
// artifact without an error is an artifact resolution failure. Only a
// non-nil artifact with a nil error yields Succeeded.
func (t *Tracker) Finish(ctx context.Context, artifact *Artifact, err error) Job {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.job.Status.IsTerminal() {
		return t.job.Clone()
	}

	switch {
	case ctx != nil && ctx.Err() != nil && !isDeadline(ctx):
		reason := "canceled"
		if cause := context.Cause(ctx); cause != nil && !errors.Is(cause, context.Canceled) {
			reason = cause.Error()
		}
		t.closeStagesLocked(StepCanceled, nil)
		t.finishLocked(StatusCanceled, nil, nil, reason)
	case t.job.Status != StatusRunning:
		// Only a cancellation can settle a job that never started.
	case err != nil:
		rec := faults.Classify(err, "", "")
		internal := faults.Internal("", "stage left running when the pipeline returned")
		t.closeStagesLocked(StepSkipped, &internal)
		t.finishLocked(StatusFailed, nil, &rec, "")
	case artifact == nil:
		rec := faults.New(faults.KindArtifactResolutionFailed, "", "pipeline finished without an artifact")
		internal := faults.Internal("", "stage left running when the pipeline returned")
		t.closeStagesLocked(StepSkipped, &internal)
		t.finishLocked(StatusFailed, nil, &rec, "")
	default:
		t.finishLocked(StatusSucceeded, artifact, nil, "")
	}
	return t.job.Clone()
}

func isDeadline(ctx context.Context) bool {
	return errors.Is(ctx.Err(), context.DeadlineExceeded)
}

// closeStagesLocked settles non-terminal stages: Pending ones get pending,
// Running ones are Canceled or, with running set, Failed with that error.
func (t *Tracker) closeStagesLocked(pending StepStatus, running *faults.Record) {
	now := t.now().UTC()
	for i := range t.job.Stages {
		res := &t.job.Stages[i]
		switch res.Status {
		case StepPending:
			res.Status = pending
		case StepRunning:
			if running != nil && pending != StepCanceled {
				rec := *running
				rec.Stage = string(res.Stage)
				res.Status = StepFailed
				res.Error = &rec
			} else {
				res.Status = StepCanceled
			}
			res.EndedAt = &now
		}
	}
}

func (t *Tracker) finishLocked(status Status, artifact *Artifact, rec *faults.Record, reason string) bool {
	prev := t.job.Status
	if !t.transitionLocked(status, reason) {
		return false
	}
	now := t.now().UTC()
	t.job.EndedAt = &now
	t.job.CurrentStage = ""
	switch status {
	case StatusSucceeded:
		art := *artifact
		t.job.Artifact = &art
		t.job.ProgressPercent = 100
		t.job.ProgressMessage = "completed"
		t.emitLocked(Event{Type: EventCompleted, Status: status, Previous: prev, Artifact: &art, Message: art.Path})
	case StatusFailed:
		t.job.Artifact = nil
		if rec != nil {
			t.job.Errors = append(t.job.Errors, *rec)
			r := *rec
			t.job.ProgressMessage = r.Error()
			t.emitLocked(Event{Type: EventFailed, Status: status, Previous: prev, Error: &r, Stage: generation.Stage(r.Stage), Message: r.Message})
		} else {
			t.emitLocked(Event{Type: EventFailed, Status: status, Previous: prev})
		}
	case StatusCanceled:
		t.job.CancelReason = reason
		t.job.ProgressMessage = "canceled"
	}
	return true
}

func (t *Tracker) transitionLocked(to Status, message string) bool {
	from := t.job.Status
	if !canTransition(from, to) {
		return false
	}
	t.job.Status = to
	t.emitLocked(Event{Type: EventStatusChanged, Status: to, Previous: from, Message: message})
	return true
}

func (t *Tracker) emitLocked(evt Event) {
	evt.JobID = t.job.ID
	if evt.Time.IsZero() {
		evt.Time = t.now().UTC()
	}
	t.publish(evt)
}
