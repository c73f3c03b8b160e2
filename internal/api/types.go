package api

// dateTimeFormat is used for RFC3339 timestamps in API payloads.
const dateTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// Brief is the submit payload: one generation request.
type Brief struct {
	Topic            string `json:"topic"`
	Audience         string `json:"audience,omitempty"`
	Tone             string `json:"tone,omitempty"`
	TargetDurationMs int64  `json:"targetDurationMs"`
	ScriptTier       string `json:"scriptTier,omitempty"`
	NarrationTier    string `json:"narrationTier,omitempty"`
	VisualTier       string `json:"visualTier,omitempty"`
	OfflineOnly      bool   `json:"offlineOnly,omitempty"`
	CorrelationID    string `json:"correlationId,omitempty"`
}

// SubmitResponse returns the id of the enqueued job. Duplicate is set when
// the correlation id already belonged to an active job.
type SubmitResponse struct {
	JobID     string `json:"jobId"`
	Duplicate bool   `json:"duplicate,omitempty"`
}

// ErrorRecord is a classified failure.
type ErrorRecord struct {
	Kind        string `json:"kind"`
	Code        string `json:"code"`
	Message     string `json:"message"`
	Remediation string `json:"remediation,omitempty"`
	Stage       string `json:"stage,omitempty"`
	Provider    string `json:"provider,omitempty"`
	Retryable   bool   `json:"retryable"`
}

// StageResult describes one stage of a job.
type StageResult struct {
	Stage           string       `json:"stage"`
	Status          string       `json:"status"`
	Provider        string       `json:"provider,omitempty"`
	Tier            string       `json:"tier,omitempty"`
	IsFallback      bool         `json:"isFallback"`
	FallbackFrom    string       `json:"fallbackFrom,omitempty"`
	SelectionReason string       `json:"selectionReason,omitempty"`
	Attempts        int          `json:"attempts,omitempty"`
	Warnings        []string     `json:"warnings,omitempty"`
	Error           *ErrorRecord `json:"error,omitempty"`
	StartedAt       string       `json:"startedAt,omitempty"`
	EndedAt         string       `json:"endedAt,omitempty"`
	DurationMs      int64        `json:"durationMs,omitempty"`
}

// Artifact describes the final output of a succeeded job.
type Artifact struct {
	Path         string `json:"path"`
	SizeBytes    int64  `json:"sizeBytes"`
	Layer        string `json:"layer"`
	Field        string `json:"field,omitempty"`
	ExportedPath string `json:"exportedPath,omitempty"`
}

// JobProgress captures current stage progress.
type JobProgress struct {
	Stage   string  `json:"stage,omitempty"`
	Percent float64 `json:"percent"`
	Message string  `json:"message,omitempty"`
}

// Job describes a job in a transport-friendly format.
type Job struct {
	ID            string        `json:"id"`
	CorrelationID string        `json:"correlationId"`
	Topic         string        `json:"topic"`
	Brief         Brief         `json:"brief"`
	Status        string        `json:"status"`
	Progress      JobProgress   `json:"progress"`
	Stages        []StageResult `json:"stages"`
	Artifact      *Artifact     `json:"artifact,omitempty"`
	Errors        []ErrorRecord `json:"errors,omitempty"`
	CancelReason  string        `json:"cancelReason,omitempty"`
	CreatedAt     string        `json:"createdAt,omitempty"`
	StartedAt     string        `json:"startedAt,omitempty"`
	EndedAt       string        `json:"endedAt,omitempty"`
}

// Event is one job event.
type Event struct {
	Sequence   uint64       `json:"sequence"`
	Type       string       `json:"type"`
	JobID      string       `json:"jobId"`
	Time       string       `json:"time"`
	Status     string       `json:"status,omitempty"`
	Previous   string       `json:"previous,omitempty"`
	Stage      string       `json:"stage,omitempty"`
	StepStatus string       `json:"stepStatus,omitempty"`
	Provider   string       `json:"provider,omitempty"`
	Percent    float64      `json:"percent,omitempty"`
	Message    string       `json:"message,omitempty"`
	Attempt    int          `json:"attempt,omitempty"`
	Retrying   bool         `json:"retrying,omitempty"`
	Error      *ErrorRecord `json:"error,omitempty"`
	Artifact   *Artifact    `json:"artifact,omitempty"`
	Terminal   bool         `json:"terminal,omitempty"`
}

// Selection reports the backend chosen for a stage.
type Selection struct {
	Stage        string          `json:"stage"`
	Backend      string          `json:"backend"`
	Tier         string          `json:"tier"`
	Requested    string          `json:"requested"`
	IsFallback   bool            `json:"isFallback"`
	FallbackFrom string          `json:"fallbackFrom,omitempty"`
	Reason       string          `json:"reason"`
	Skipped      []SkippedReason `json:"skipped,omitempty"`
}

// SkippedReason records a candidate backend that was passed over.
type SkippedReason struct {
	Backend string `json:"backend"`
	Reason  string `json:"reason"`
}

// PreviewResponse lists selections, one per requested stage.
type PreviewResponse struct {
	Selections []Selection `json:"selections"`
}

// StageHealth mirrors readiness reporting for pipeline stages.
type StageHealth struct {
	Name   string `json:"name"`
	Ready  bool   `json:"ready"`
	Detail string `json:"detail,omitempty"`
}

// DependencyStatus captures availability of an external dependency.
type DependencyStatus struct {
	Name        string `json:"name"`
	Command     string `json:"command"`
	Description string `json:"description"`
	Optional    bool   `json:"optional"`
	Available   bool   `json:"available"`
	Detail      string `json:"detail,omitempty"`
}

// QueueStats summarizes jobs per status.
type QueueStats struct {
	Total          int    `json:"total"`
	Queued         int    `json:"queued"`
	Running        int    `json:"running"`
	Succeeded      int    `json:"succeeded"`
	Failed         int    `json:"failed"`
	Canceled       int    `json:"canceled"`
	Throttled      bool   `json:"throttled"`
	ThrottleReason string `json:"throttleReason,omitempty"`
}

// WorkflowStatus summarizes coordinator state.
type WorkflowStatus struct {
	LastError   string        `json:"lastError,omitempty"`
	LastJob     *Job          `json:"lastJob,omitempty"`
	StageHealth []StageHealth `json:"stageHealth"`
}

// DaemonStatus aggregates daemon runtime information for API consumers.
type DaemonStatus struct {
	Running      bool               `json:"running"`
	PID          int                `json:"pid"`
	LockFilePath string             `json:"lockFilePath"`
	LogPath      string             `json:"logPath,omitempty"`
	Queue        QueueStats         `json:"queue"`
	Workflow     WorkflowStatus     `json:"workflow"`
	Dependencies []DependencyStatus `json:"dependencies"`
}

// JobListResponse wraps a collection of jobs.
type JobListResponse struct {
	Jobs []Job `json:"jobs"`
}

// JobResponse wraps a single job.
type JobResponse struct {
	Job Job `json:"job"`
}

// LogEvent is one structured daemon log line.
type LogEvent struct {
	Sequence  uint64            `json:"seq"`
	Timestamp string            `json:"ts"`
	Level     string            `json:"level"`
	Message   string            `json:"msg"`
	Component string            `json:"component,omitempty"`
	JobID     string            `json:"jobId,omitempty"`
	Stage     string            `json:"stage,omitempty"`
	Provider  string            `json:"provider,omitempty"`
	Fields    map[string]string `json:"fields,omitempty"`
}

// LogStreamResponse carries log events and the cursor for the next fetch.
type LogStreamResponse struct {
	Events []LogEvent `json:"events"`
	Next   uint64     `json:"next"`
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error string `json:"error"`
	JobID string `json:"jobId,omitempty"`
}
