package workflow

import (
	"context"
	"fmt"
	"time"

	"reelforge/internal/faults"
	"reelforge/internal/generation"
	"reelforge/internal/logging"
	"reelforge/internal/provider"
	"reelforge/internal/queue"
	"reelforge/internal/stage"
)

// runStage starts st on the tracker and runs the selected backend with the
// stage's typed input, storing the typed payload on success.
func (r *pipelineRun) runStage(ctx context.Context, st generation.Stage, sel provider.Selection, timeout time.Duration) queue.StageResult {
	r.tracker.StageStarted(queue.StageResult{
		Stage:           st,
		Provider:        sel.Backend,
		Tier:            sel.Tier,
		IsFallback:      sel.IsFallback,
		FallbackFrom:    sel.FallbackFrom,
		SelectionReason: sel.Reason,
	})

	sc := r.stageContext(st)
	switch backend := sel.Instance().(type) {
	case generation.ScriptProvider:
		res, out := withRetry(ctx, r, st, sel, timeout, func(ctx context.Context) (generation.Script, error) {
			return backend.Produce(ctx, generation.ScriptInput{StageContext: sc, Request: r.req})
		})
		r.script = out
		return res
	case generation.NarrationProvider:
		res, out := withRetry(ctx, r, st, sel, timeout, func(ctx context.Context) (generation.Narration, error) {
			return backend.Produce(ctx, generation.NarrationInput{StageContext: sc, Request: r.req, Script: r.script})
		})
		r.narration = out
		return res
	case generation.VisualProvider:
		res, out := withRetry(ctx, r, st, sel, timeout, func(ctx context.Context) (generation.VisualSet, error) {
			return backend.Produce(ctx, generation.VisualInput{StageContext: sc, Request: r.req, Script: r.script})
		})
		r.visuals = out
		return res
	case generation.CompositionProvider:
		res, out := withRetry(ctx, r, st, sel, timeout, func(ctx context.Context) (generation.Composition, error) {
			return backend.Produce(ctx, generation.CompositionInput{
				StageContext: sc,
				Request:      r.req,
				Script:       r.script,
				Narration:    r.narration,
				Visuals:      r.visuals,
			})
		})
		r.composition = out
		r.compositionOK = res.Status == queue.StepSucceeded
		return res
	case generation.ExportProvider:
		res, out := withRetry(ctx, r, st, sel, timeout, func(ctx context.Context) (generation.Export, error) {
			return backend.Produce(ctx, generation.ExportInput{
				StageContext: sc,
				Request:      r.req,
				Composition:  r.composition,
				SourcePath:   r.sourcePath,
				Title:        title(r.script, r.req),
			})
		})
		r.export = out
		r.exportOK = res.Status == queue.StepSucceeded
		return res
	default:
		rec := faults.Internal(string(st), fmt.Sprintf("backend %q does not implement a provider contract", sel.Backend))
		now := time.Now().UTC()
		return queue.StageResult{
			Stage:           st,
			Status:          queue.StepFailed,
			Provider:        sel.Backend,
			Tier:            sel.Tier,
			IsFallback:      sel.IsFallback,
			FallbackFrom:    sel.FallbackFrom,
			SelectionReason: sel.Reason,
			Error:           &rec,
			Attempts:        1,
			StartedAt:       &now,
			EndedAt:         &now,
		}
	}
}

// withRetry runs fn through the executor, retrying retryable failures up to
// the job's retry count with exponential backoff. Earlier attempts survive
// only as warnings on the returned result.
func withRetry[Out any](ctx context.Context, r *pipelineRun, st generation.Stage, sel provider.Selection, timeout time.Duration, fn func(context.Context) (Out, error)) (queue.StageResult, Out) {
	settings := r.tracker.Settings()
	var (
		warnings  []string
		startedAt *time.Time
		zero      Out
	)
	for attempt := 1; ; attempt++ {
		res, out := stage.Run(ctx, r.c.executor, stage.Call{
			Stage:     st,
			Selection: sel,
			Timeout:   timeout,
			Attempt:   attempt,
			Logger:    r.base,
		}, fn)
		if startedAt == nil {
			startedAt = res.StartedAt
		}
		res.StartedAt = startedAt
		res.Attempts = attempt

		if res.Status != queue.StepFailed || res.Error == nil {
			res.Warnings = append(warnings, res.Warnings...)
			return res, out
		}
		rec := *res.Error
		retrying := rec.Retryable && attempt <= settings.RetryCount
		r.tracker.StepError(st, rec, attempt, retrying)
		if !retrying {
			res.Warnings = append(warnings, res.Warnings...)
			return res, out
		}

		delay := settings.Backoff(attempt)
		warnings = append(warnings, fmt.Sprintf("attempt %d failed with %s; retried after %s", attempt, rec.Code, delay))
		r.logger.Info("retrying stage after transient failure",
			logging.String(logging.FieldEventType, "stage_retry"),
			logging.String(logging.FieldStage, string(st)),
			logging.String(logging.FieldProvider, sel.Backend),
			logging.Int("attempt", attempt),
			logging.Int("max_retries", settings.RetryCount),
			logging.Duration("backoff", delay),
			logging.String(logging.FieldErrorCode, rec.Code),
		)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			ended := time.Now().UTC()
			res.Status = queue.StepCanceled
			res.Error = nil
			res.Payload = nil
			res.EndedAt = &ended
			res.Warnings = warnings
			return res, zero
		case <-timer.C:
		}
	}
}
