package api

import (
	"strings"
	"time"

	"reelforge/internal/deps"
	"reelforge/internal/faults"
	"reelforge/internal/generation"
	"reelforge/internal/logging"
	"reelforge/internal/provider"
	"reelforge/internal/queue"
	"reelforge/internal/workflow"
)

// Request converts the brief into a generation request.
func (b Brief) Request() generation.Request {
	return generation.Request{
		Topic:          strings.TrimSpace(b.Topic),
		Audience:       strings.TrimSpace(b.Audience),
		Tone:           strings.TrimSpace(b.Tone),
		TargetDuration: time.Duration(b.TargetDurationMs) * time.Millisecond,
		ScriptTier:     strings.TrimSpace(b.ScriptTier),
		NarrationTier:  strings.TrimSpace(b.NarrationTier),
		VisualTier:     strings.TrimSpace(b.VisualTier),
		OfflineOnly:    b.OfflineOnly,
		CorrelationID:  strings.TrimSpace(b.CorrelationID),
	}
}

// FromRequest converts a generation request into a brief.
func FromRequest(req generation.Request) Brief {
	return Brief{
		Topic:            req.Topic,
		Audience:         req.Audience,
		Tone:             req.Tone,
		TargetDurationMs: req.TargetDuration.Milliseconds(),
		ScriptTier:       req.ScriptTier,
		NarrationTier:    req.NarrationTier,
		VisualTier:       req.VisualTier,
		OfflineOnly:      req.OfflineOnly,
		CorrelationID:    req.CorrelationID,
	}
}

// FromJob converts a job snapshot into its transport representation.
func FromJob(job queue.Job) Job {
	out := Job{
		ID:            job.ID,
		CorrelationID: job.CorrelationID,
		Topic:         job.Request.Topic,
		Brief:         FromRequest(job.Request),
		Status:        string(job.Status),
		Progress: JobProgress{
			Stage:   string(job.CurrentStage),
			Percent: job.ProgressPercent,
			Message: strings.TrimSpace(job.ProgressMessage),
		},
		Stages:       make([]StageResult, 0, len(job.Stages)),
		Artifact:     fromArtifact(job.Artifact),
		CancelReason: job.CancelReason,
		CreatedAt:    formatTime(&job.CreatedAt),
		StartedAt:    formatTime(job.StartedAt),
		EndedAt:      formatTime(job.EndedAt),
	}
	for _, res := range job.Stages {
		out.Stages = append(out.Stages, fromStageResult(res))
	}
	for _, rec := range job.Errors {
		out.Errors = append(out.Errors, *fromRecord(&rec))
	}
	return out
}

// FromJobs converts a slice of jobs, preserving order.
func FromJobs(jobs []queue.Job) []Job {
	out := make([]Job, 0, len(jobs))
	for _, job := range jobs {
		out = append(out, FromJob(job))
	}
	return out
}

func fromStageResult(res queue.StageResult) StageResult {
	out := StageResult{
		Stage:           string(res.Stage),
		Status:          string(res.Status),
		Provider:        res.Provider,
		Tier:            string(res.Tier),
		IsFallback:      res.IsFallback,
		FallbackFrom:    res.FallbackFrom,
		SelectionReason: res.SelectionReason,
		Attempts:        res.Attempts,
		Warnings:        append([]string(nil), res.Warnings...),
		Error:           fromRecord(res.Error),
		StartedAt:       formatTime(res.StartedAt),
		EndedAt:         formatTime(res.EndedAt),
	}
	if d := res.Duration(); d > 0 {
		out.DurationMs = d.Milliseconds()
	}
	return out
}

// FromEvent converts a queue event.
func FromEvent(evt queue.Event) Event {
	return Event{
		Sequence:   evt.Sequence,
		Type:       string(evt.Type),
		JobID:      evt.JobID,
		Time:       formatTime(&evt.Time),
		Status:     string(evt.Status),
		Previous:   string(evt.Previous),
		Stage:      string(evt.Stage),
		StepStatus: string(evt.StepStatus),
		Provider:   evt.Provider,
		Percent:    evt.Percent,
		Message:    evt.Message,
		Attempt:    evt.Attempt,
		Retrying:   evt.Retrying,
		Error:      fromRecord(evt.Error),
		Artifact:   fromArtifact(evt.Artifact),
		Terminal:   evt.Terminal(),
	}
}

// FromSelection converts a provider selection.
func FromSelection(sel provider.Selection) Selection {
	out := Selection{
		Stage:        string(sel.Stage),
		Backend:      sel.Backend,
		Tier:         string(sel.Tier),
		Requested:    sel.Requested,
		IsFallback:   sel.IsFallback,
		FallbackFrom: sel.FallbackFrom,
		Reason:       sel.Reason,
	}
	for _, skip := range sel.Skipped {
		out.Skipped = append(out.Skipped, SkippedReason{Backend: skip.Backend, Reason: skip.Reason})
	}
	return out
}

// FromSelections converts selections, preserving order.
func FromSelections(sels []provider.Selection) []Selection {
	out := make([]Selection, 0, len(sels))
	for _, sel := range sels {
		out = append(out, FromSelection(sel))
	}
	return out
}

// FromStatusSummary converts coordinator diagnostics.
func FromStatusSummary(summary workflow.StatusSummary) WorkflowStatus {
	out := WorkflowStatus{
		LastError:   summary.LastError,
		StageHealth: make([]StageHealth, 0, len(summary.StageHealth)),
	}
	for _, h := range summary.StageHealth {
		out.StageHealth = append(out.StageHealth, StageHealth{Name: h.Name, Ready: h.Ready, Detail: h.Detail})
	}
	if summary.LastJob != nil {
		job := FromJob(*summary.LastJob)
		out.LastJob = &job
	}
	return out
}

// FromStats converts queue stats.
func FromStats(stats queue.Stats) QueueStats {
	return QueueStats{
		Total:          stats.Total,
		Queued:         stats.Queued,
		Running:        stats.Running,
		Succeeded:      stats.Succeeded,
		Failed:         stats.Failed,
		Canceled:       stats.Canceled,
		Throttled:      stats.Throttled,
		ThrottleReason: stats.Reason,
	}
}

// FromDependencies converts dependency checks.
func FromDependencies(statuses []deps.Status) []DependencyStatus {
	out := make([]DependencyStatus, 0, len(statuses))
	for _, dep := range statuses {
		out = append(out, DependencyStatus{
			Name:        dep.Name,
			Command:     dep.Command,
			Description: dep.Description,
			Optional:    dep.Optional,
			Available:   dep.Available,
			Detail:      dep.Detail,
		})
	}
	return out
}

// FromLogEvents converts streamed log events.
func FromLogEvents(events []logging.LogEvent) []LogEvent {
	if len(events) == 0 {
		return nil
	}
	out := make([]LogEvent, 0, len(events))
	for _, evt := range events {
		out = append(out, LogEvent{
			Sequence:  evt.Sequence,
			Timestamp: formatTime(&evt.Timestamp),
			Level:     evt.Level,
			Message:   evt.Message,
			Component: evt.Component,
			JobID:     evt.JobID,
			Stage:     evt.Stage,
			Provider:  evt.Provider,
			Fields:    evt.Fields,
		})
	}
	return out
}

func fromRecord(rec *faults.Record) *ErrorRecord {
	if rec == nil || rec.IsZero() {
		return nil
	}
	return &ErrorRecord{
		Kind:        string(rec.Kind),
		Code:        rec.Code,
		Message:     rec.Message,
		Remediation: rec.Remediation,
		Stage:       rec.Stage,
		Provider:    rec.Provider,
		Retryable:   rec.Retryable,
	}
}

func fromArtifact(a *queue.Artifact) *Artifact {
	if a == nil {
		return nil
	}
	return &Artifact{
		Path:         a.Path,
		SizeBytes:    a.SizeBytes,
		Layer:        a.Layer,
		Field:        a.Field,
		ExportedPath: a.ExportedPath,
	}
}

func formatTime(t *time.Time) string {
	if t == nil || t.IsZero() {
		return ""
	}
	return t.UTC().Format(dateTimeFormat)
}

// IsTerminalStatus reports whether a job status string is final.
func IsTerminalStatus(status string) bool {
	parsed, ok := queue.ParseStatus(status)
	return ok && parsed.IsTerminal()
}
