package queue

import (
	"slices"
	"strings"
	"time"

	"reelforge/internal/faults"
	"reelforge/internal/generation"
)

// Status is the lifecycle of a job.
type Status string

const (
	StatusQueued    Status = "Queued"
	StatusRunning   Status = "Running"
	StatusSucceeded Status = "Succeeded"
	StatusFailed    Status = "Failed"
	StatusCanceled  Status = "Canceled"
)

var allStatuses = []Status{StatusQueued, StatusRunning, StatusSucceeded, StatusFailed, StatusCanceled}

// AllStatuses returns the ordered list of job statuses.
func AllStatuses() []Status {
	return slices.Clone(allStatuses)
}

// ParseStatus converts a case-insensitive string into a Status.
func ParseStatus(value string) (Status, bool) {
	trimmed := strings.TrimSpace(value)
	for _, status := range allStatuses {
		if strings.EqualFold(trimmed, string(status)) {
			return status, true
		}
	}
	return "", false
}

// IsTerminal reports whether no further transition is allowed.
func (s Status) IsTerminal() bool {
	return s == StatusSucceeded || s == StatusFailed || s == StatusCanceled
}

// canTransition encodes the job state machine.
func canTransition(from, to Status) bool {
	switch from {
	case StatusQueued:
		return to == StatusRunning || to == StatusCanceled
	case StatusRunning:
		return to.IsTerminal()
	default:
		return false
	}
}

// StepStatus is the lifecycle of one stage within a job.
type StepStatus string

const (
	StepPending   StepStatus = "Pending"
	StepRunning   StepStatus = "Running"
	StepSucceeded StepStatus = "Succeeded"
	StepFailed    StepStatus = "Failed"
	StepSkipped   StepStatus = "Skipped"
	StepCanceled  StepStatus = "Canceled"
)

// IsTerminal reports whether the stage result is final.
func (s StepStatus) IsTerminal() bool {
	switch s {
	case StepSucceeded, StepFailed, StepSkipped, StepCanceled:
		return true
	default:
		return false
	}
}

// StageResult records one stage of a job: the backend that served it, its
// typed payload on success, and the classified error on failure.
type StageResult struct {
	Stage           generation.Stage `json:"stage"`
	Status          StepStatus       `json:"status"`
	Provider        string           `json:"provider,omitempty"`
	Tier            generation.Tier  `json:"tier,omitempty"`
	IsFallback      bool             `json:"is_fallback,omitempty"`
	FallbackFrom    string           `json:"fallback_from,omitempty"`
	SelectionReason string           `json:"selection_reason,omitempty"`
	Payload         any              `json:"payload,omitempty"`
	Warnings        []string         `json:"warnings,omitempty"`
	Error           *faults.Record   `json:"error,omitempty"`
	Attempts        int              `json:"attempts,omitempty"`
	StartedAt       *time.Time       `json:"started_at,omitempty"`
	EndedAt         *time.Time       `json:"ended_at,omitempty"`
}

// Duration returns the elapsed stage time, zero until the stage ends.
func (r StageResult) Duration() time.Duration {
	if r.StartedAt == nil || r.EndedAt == nil {
		return 0
	}
	return r.EndedAt.Sub(*r.StartedAt)
}

func (r StageResult) clone() StageResult {
	r.Warnings = slices.Clone(r.Warnings)
	if r.Error != nil {
		rec := *r.Error
		r.Error = &rec
	}
	r.StartedAt = cloneTime(r.StartedAt)
	r.EndedAt = cloneTime(r.EndedAt)
	return r
}

// Artifact describes the final output file of a succeeded job.
type Artifact struct {
	Path      string `json:"path"`
	SizeBytes int64  `json:"size_bytes"`
	// Layer names the resolution strategy that located the file.
	Layer string `json:"layer"`
	// Field is the payload key the path came from, when there was one.
	Field string `json:"field,omitempty"`
	// ExportedPath is the file the Export stage published, when it differs
	// from Path.
	ExportedPath string `json:"exported_path,omitempty"`
}

// Job is the aggregate root of one generation run.
type Job struct {
	ID              string             `json:"id"`
	CorrelationID   string             `json:"correlation_id"`
	Request         generation.Request `json:"request"`
	Status          Status             `json:"status"`
	Stages          []StageResult      `json:"stages"`
	Artifact        *Artifact          `json:"artifact,omitempty"`
	Errors          []faults.Record    `json:"errors,omitempty"`
	CurrentStage    generation.Stage   `json:"current_stage,omitempty"`
	ProgressPercent float64            `json:"progress_percent"`
	ProgressMessage string             `json:"progress_message,omitempty"`
	CancelReason    string             `json:"cancel_reason,omitempty"`
	CreatedAt       time.Time          `json:"created_at"`
	StartedAt       *time.Time         `json:"started_at,omitempty"`
	EndedAt         *time.Time         `json:"ended_at,omitempty"`
}

// NewJob builds a Queued job with one Pending result per pipeline stage.
func NewJob(id string, req generation.Request, now time.Time) Job {
	stages := generation.Stages()
	results := make([]StageResult, 0, len(stages))
	for _, stage := range stages {
		results = append(results, StageResult{Stage: stage, Status: StepPending})
	}
	return Job{
		ID:            id,
		CorrelationID: req.CorrelationID,
		Request:       req,
		Status:        StatusQueued,
		Stages:        results,
		CreatedAt:     now.UTC(),
	}
}

// Stage returns the result recorded for stage.
func (j Job) Stage(stage generation.Stage) (StageResult, bool) {
	for _, res := range j.Stages {
		if res.Stage == stage {
			return res, true
		}
	}
	return StageResult{}, false
}

// LastError returns the most recent job-level error.
func (j Job) LastError() (faults.Record, bool) {
	if len(j.Errors) == 0 {
		return faults.Record{}, false
	}
	return j.Errors[len(j.Errors)-1], true
}

// Clone returns a deep copy safe to hand to other goroutines.
func (j Job) Clone() Job {
	out := j
	out.Stages = make([]StageResult, len(j.Stages))
	for i, res := range j.Stages {
		out.Stages[i] = res.clone()
	}
	out.Errors = slices.Clone(j.Errors)
	if j.Artifact != nil {
		art := *j.Artifact
		out.Artifact = &art
	}
	out.StartedAt = cloneTime(j.StartedAt)
	out.EndedAt = cloneTime(j.EndedAt)
	return out
}

func (j *Job) stageIndex(stage generation.Stage) int {
	for i := range j.Stages {
		if j.Stages[i].Stage == stage {
			return i
		}
	}
	return -1
}

// Stats summarizes jobs per status.
type Stats struct {
	Total     int    `json:"total"`
	Queued    int    `json:"queued"`
	Running   int    `json:"running"`
	Succeeded int    `json:"succeeded"`
	Failed    int    `json:"failed"`
	Canceled  int    `json:"canceled"`
	Throttled bool   `json:"throttled"`
	Reason    string `json:"throttle_reason,omitempty"`
}

func (s *Stats) add(status Status) {
	s.Total++
	switch status {
	case StatusQueued:
		s.Queued++
	case StatusRunning:
		s.Running++
	case StatusSucceeded:
		s.Succeeded++
	case StatusFailed:
		s.Failed++
	case StatusCanceled:
		s.Canceled++
	}
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
