package stage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"reelforge/internal/faults"
	"reelforge/internal/generation"
	"reelforge/internal/logging"
	"reelforge/internal/provider"
	"reelforge/internal/queue"
	"reelforge/internal/services"
)

// Call describes one stage invocation.
type Call struct {
	Stage     generation.Stage
	Selection provider.Selection
	// Timeout bounds the stage body. Zero means no stage deadline.
	Timeout time.Duration
	Attempt int
	// Logger overrides the executor logger for this call, e.g. to reach a
	// per-job log file.
	Logger *slog.Logger
}

// Body is the stage work. It must return a typed payload on success.
type Body func(ctx context.Context) (any, error)

// Executor runs stage bodies under timeout and cancellation.
type Executor struct {
	logger *slog.Logger
	now    func() time.Time
}

// NewExecutor returns an Executor that logs through logger.
func NewExecutor(logger *slog.Logger) *Executor {
	return &Executor{
		logger: logging.NewComponentLogger(logger, "stage"),
		now:    time.Now,
	}
}

type outcome struct {
	payload any
	err     error
}

// Execute runs body and returns a terminal StageResult: Succeeded with the
// payload, Failed with a classified error (timeouts and panics included), or
// Canceled when ctx was cancelled before a result was accepted.
func (e *Executor) Execute(ctx context.Context, call Call, body Body) queue.StageResult {
	started := e.now().UTC()
	res := queue.StageResult{
		Stage:           call.Stage,
		Status:          queue.StepRunning,
		Provider:        call.Selection.Backend,
		Tier:            call.Selection.Tier,
		IsFallback:      call.Selection.IsFallback,
		FallbackFrom:    call.Selection.FallbackFrom,
		SelectionReason: call.Selection.Reason,
		Attempts:        max(call.Attempt, 1),
		StartedAt:       &started,
	}

	stageCtx := services.WithStage(ctx, string(call.Stage))
	stageCtx = services.WithProvider(stageCtx, call.Selection.Backend)
	base := e.logger
	if call.Logger != nil {
		base = logging.NewComponentLogger(call.Logger, "stage")
	}
	logger := logging.WithContext(stageCtx, base)

	var cancel context.CancelFunc
	if call.Timeout > 0 {
		stageCtx, cancel = context.WithTimeout(stageCtx, call.Timeout)
	} else {
		stageCtx, cancel = context.WithCancel(stageCtx)
	}
	defer cancel()

	logger.Info("stage started",
		logging.String(logging.FieldEventType, "stage_start"),
		logging.String("tier", string(call.Selection.Tier)),
		logging.Int("attempt", res.Attempts),
		logging.Duration("timeout", call.Timeout),
	)

	done := make(chan outcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- outcome{err: faults.Internal(string(call.Stage), r)}
			}
		}()
		payload, err := body(stageCtx)
		done <- outcome{payload: payload, err: err}
	}()

	var out outcome
	select {
	case out = <-done:
	case <-stageCtx.Done():
	}

	timedOut := errors.Is(stageCtx.Err(), context.DeadlineExceeded)
	switch {
	case ctx.Err() != nil:
		e.cancelled(logger, &res)
	case timedOut && (out.err != nil || out.payload == nil):
		rec := faults.New(faults.KindTimeout, string(call.Stage),
			fmt.Sprintf("%s stage exceeded its %s timeout", call.Stage, call.Timeout))
		e.failed(logger, &res, rec, call)
	case out.err != nil:
		e.failed(logger, &res, faults.Classify(out.err, string(call.Stage), call.Selection.Backend), call)
	case out.payload == nil:
		rec := faults.Internal(string(call.Stage), "provider returned no payload")
		e.failed(logger, &res, rec, call)
	default:
		res.Status = queue.StepSucceeded
		res.Payload = out.payload
		ended := e.now().UTC()
		res.EndedAt = &ended
		logger.Info("stage completed",
			logging.String(logging.FieldEventType, "stage_complete"),
			logging.Duration("duration", res.Duration()),
		)
	}
	return res
}

func (e *Executor) failed(logger *slog.Logger, res *queue.StageResult, rec faults.Record, call Call) {
	rec.Stage = string(call.Stage)
	if rec.Provider == "" {
		rec.Provider = call.Selection.Backend
	}
	ended := e.now().UTC()
	res.Status = queue.StepFailed
	res.Error = &rec
	res.EndedAt = &ended
	logger.Warn("stage failed",
		logging.String(logging.FieldEventType, "stage_failure"),
		logging.String(logging.FieldErrorKind, string(rec.Kind)),
		logging.String(logging.FieldErrorCode, rec.Code),
		logging.String(logging.FieldErrorHint, rec.Remediation),
		logging.String(logging.FieldImpact, "stage result recorded as failed"),
		logging.Bool("retryable", rec.Retryable),
		logging.String("error_message", rec.Message),
	)
}

func (e *Executor) cancelled(logger *slog.Logger, res *queue.StageResult) {
	ended := e.now().UTC()
	res.Status = queue.StepCanceled
	res.Payload = nil
	res.EndedAt = &ended
	logger.Info("stage canceled", logging.String(logging.FieldEventType, "stage_canceled"))
}

// Run executes a typed stage body and returns the StageResult together with
// the typed payload, which is the zero value unless the stage succeeded.
func Run[Out any](ctx context.Context, e *Executor, call Call, fn func(context.Context) (Out, error)) (queue.StageResult, Out) {
	res := e.Execute(ctx, call, func(ctx context.Context) (any, error) {
		out, err := fn(ctx)
		if err != nil {
			return nil, err
		}
		return out, nil
	})
	var zero Out
	if res.Status != queue.StepSucceeded {
		return res, zero
	}
	out, ok := res.Payload.(Out)
	if !ok {
		return res, zero
	}
	return res, out
}
