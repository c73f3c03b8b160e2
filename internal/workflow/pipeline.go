package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"golang.org/x/sys/unix"

	"reelforge/internal/faults"
	"reelforge/internal/generation"
	"reelforge/internal/logging"
	"reelforge/internal/provider"
	"reelforge/internal/queue"
	"reelforge/internal/services"
	"reelforge/internal/workdir"
)

// pipelineRun holds the state of one Coordinator.Run call.
type pipelineRun struct {
	c       *Coordinator
	tracker *queue.Tracker
	req     generation.Request
	jobID   string
	workDir string
	// base is the undecorated job logger handed to the executor.
	base   *slog.Logger
	logger *slog.Logger

	samplerMu sync.Mutex
	sampler   *logging.ProgressSampler

	script      generation.Script
	narration   generation.Narration
	visuals     generation.VisualSet
	composition generation.Composition
	export      generation.Export

	compositionOK bool
	exportOK      bool
	sourcePath    string
}

func newPipelineRun(c *Coordinator, t *queue.Tracker, base *slog.Logger, workDir string) *pipelineRun {
	job := t.Snapshot()
	logger := base.With(
		logging.String(logging.FieldComponent, "workflow"),
		logging.String(logging.FieldJobID, job.ID),
	)
	if job.CorrelationID != "" {
		logger = logger.With(logging.String(logging.FieldCorrelationID, job.CorrelationID))
	}
	return &pipelineRun{
		c:       c,
		tracker: t,
		req:     job.Request,
		jobID:   job.ID,
		workDir: workDir,
		base:    base,
		logger:  logger,
		sampler: logging.NewProgressSampler(25),
	}
}

func (r *pipelineRun) execute(ctx context.Context) (*queue.Artifact, error) {
	lease, err := workdir.Acquire(r.workDir)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := lease.Release(); err != nil {
			logging.WarnWithContext(r.logger, "failed to release work dir lease", "workdir_release_failed",
				logging.String("path", r.workDir),
				logging.Error(err),
			)
		}
	}()
	if err := r.checkDisk(); err != nil {
		return nil, err
	}

	stages := generation.Stages()
	for i, st := range stages {
		if err := ctx.Err(); err != nil {
			r.logger.Info("pipeline canceled at stage boundary",
				logging.String(logging.FieldEventType, "pipeline_canceled"),
				logging.String("next_stage", string(st)),
			)
			return nil, err
		}
		if st == generation.StageExport {
			r.locateSource(ctx)
		}

		settings := r.c.cfg.Stages.For(st)
		sel := r.c.selector.Pick(ctx, provider.Query{
			Stage:       st,
			Preference:  r.req.Preference(st),
			OfflineOnly: r.req.OfflineOnly || r.c.cfg.Providers.OfflineOnly,
		}, r.c.registry)

		res := r.runStage(ctx, st, sel, settings.Timeout())
		r.tracker.StageFinished(res)

		switch res.Status {
		case queue.StepCanceled:
			return nil, contextError(ctx)
		case queue.StepFailed:
			rec := failureRecord(res)
			if !settings.Required {
				logging.WarnWithContext(r.logger, "optional stage failed; continuing", "optional_stage_failed",
					logging.String(logging.FieldStage, string(st)),
					logging.String(logging.FieldErrorCode, rec.Code),
					logging.String(logging.FieldErrorHint, rec.Remediation),
					logging.String(logging.FieldImpact, "later stages receive an empty payload"),
				)
				continue
			}
			reason := fmt.Sprintf("required stage %s failed", st)
			for _, rest := range stages[i+1:] {
				r.tracker.StageSkipped(rest, reason)
			}
			return nil, r.stageFailure(st, rec)
		}
	}

	artifact, err := r.c.resolver.Resolve(r.logger, r.resolveInput())
	if err != nil {
		return nil, err
	}
	r.logger.Info("artifact resolved",
		logging.String(logging.FieldEventType, "artifact_resolved"),
		logging.String("path", artifact.Path),
		logging.String("layer", artifact.Layer),
		logging.Int64("size_bytes", artifact.SizeBytes),
	)
	return artifact, nil
}

// stageFailure returns the error that fails the job after a required stage
// failed. An Export failure without a located source is reported as an
// artifact resolution failure: the composed file was never found.
func (r *pipelineRun) stageFailure(st generation.Stage, rec faults.Record) error {
	if st == generation.StageExport && r.sourcePath == "" {
		wrapped := faults.New(faults.KindArtifactResolutionFailed, "",
			"no composed file could be located for export; export reported: "+rec.Message)
		wrapped.Stage = string(st)
		wrapped.Provider = rec.Provider
		return wrapped
	}
	return rec
}

func (r *pipelineRun) checkDisk() error {
	minMB := r.c.cfg.Queue.MinFreeDiskMB
	if minMB <= 0 {
		return nil
	}
	free, err := r.c.freeSpace(r.workDir)
	if err != nil {
		r.logger.Debug("disk precheck skipped", logging.Error(err))
		return nil
	}
	if free >= uint64(minMB) {
		return nil
	}
	msg := fmt.Sprintf("%d MiB free under %s, %d MiB required", free, r.workDir, minMB)
	logging.WarnWithContext(r.logger, "disk precheck failed", "disk_precheck_failed",
		logging.String("detail", msg),
		logging.String(logging.FieldErrorHint, faults.Remediation(faults.KindResourceExhausted)),
		logging.String(logging.FieldImpact, "job fails before any stage runs"),
	)
	return services.Wrap(services.ErrResourceExhausted, "pipeline", "disk precheck", msg, unix.ENOSPC)
}

// locateSource finds the composed file Export should publish.
func (r *pipelineRun) locateSource(ctx context.Context) {
	if src, ok := r.c.resolver.Source(r.logger, r.resolveInput()); ok {
		r.sourcePath = src.Path
		return
	}
	if ctx.Err() == nil {
		logging.WarnWithContext(r.logger, "no composed file located before export", "export_source_missing",
			logging.String(logging.FieldErrorHint, "check the composition backend output"),
			logging.String(logging.FieldImpact, "export runs without a source file"),
		)
	}
}

func (r *pipelineRun) resolveInput() ResolveInput {
	return ResolveInput{
		Composition:   r.composition,
		CompositionOK: r.compositionOK,
		Export:        r.export,
		ExportOK:      r.exportOK,
		WorkDir:       r.workDir,
	}
}

func (r *pipelineRun) stageContext(st generation.Stage) generation.StageContext {
	return generation.StageContext{
		JobID:   r.jobID,
		WorkDir: r.workDir,
		Progress: func(percent float64, message string) {
			r.tracker.Progress(st, percent, message)
			r.samplerMu.Lock()
			emit := r.sampler.ShouldLog(percent, string(st))
			r.samplerMu.Unlock()
			if emit {
				r.logger.Debug("stage progress",
					logging.String(logging.FieldStage, string(st)),
					logging.Float64(logging.FieldProgressPercent, percent),
					logging.String(logging.FieldProgressMessage, strings.TrimSpace(message)),
				)
			}
		},
	}
}

func failureRecord(res queue.StageResult) faults.Record {
	if res.Error != nil {
		return *res.Error
	}
	return faults.Internal(string(res.Stage), "stage failed without an error record")
}

func contextError(ctx context.Context) error {
	if cause := context.Cause(ctx); cause != nil {
		return cause
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return errors.New("stage canceled")
}

func title(script generation.Script, req generation.Request) string {
	if t := strings.TrimSpace(script.Title); t != "" {
		return t
	}
	return req.Topic
}
