package workflow

import (
	"context"
	"time"

	"reelforge/internal/generation"
	"reelforge/internal/provider"
	"reelforge/internal/queue"
	"reelforge/internal/stage"
)

// StatusSummary represents lightweight coordinator diagnostics.
type StatusSummary struct {
	LastError   string               `json:"last_error,omitempty"`
	LastJob     *queue.Job           `json:"last_job,omitempty"`
	StageHealth []stage.Health       `json:"stage_health"`
	Selections  []provider.Selection `json:"selections"`
}

// previewRequest is a placeholder request used to preview the configured
// defaults; selection only reads its tier preferences.
var previewRequest = generation.Request{Topic: "preview", TargetDuration: time.Minute}

// Status returns the latest run information and the backend every stage
// would use with the configured defaults.
func (c *Coordinator) Status(ctx context.Context) StatusSummary {
	c.mu.RLock()
	lastErr := c.lastErr
	lastJob := c.lastJob
	c.mu.RUnlock()

	selections := c.Preview(ctx, previewRequest)
	health := make([]stage.Health, 0, len(selections))
	for _, sel := range selections {
		health = append(health, stage.FromSelection(sel))
	}

	summary := StatusSummary{StageHealth: health, Selections: selections}
	if lastErr != nil {
		summary.LastError = lastErr.Error()
	}
	if lastJob != nil {
		job := lastJob.Clone()
		summary.LastJob = &job
	}
	return summary
}

func (c *Coordinator) remember(job queue.Job, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastErr = err
	c.lastJob = &job
}
