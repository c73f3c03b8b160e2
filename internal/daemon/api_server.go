package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"reelforge/internal/api"
	"reelforge/internal/config"
	"reelforge/internal/generation"
	"reelforge/internal/logging"
	"reelforge/internal/provider"
	"reelforge/internal/queue"
)

const (
	maxBriefBytes  = 64 << 10
	logFollowLimit = 20 * time.Second
)

type apiServer struct {
	bind   string
	logger *slog.Logger
	daemon *Daemon
	events *eventStreamer

	mu       sync.Mutex
	listener net.Listener
	server   *http.Server
}

func newAPIServer(cfg *config.Config, d *Daemon, logger *slog.Logger) *apiServer {
	srv := &apiServer{
		bind:   strings.TrimSpace(cfg.Paths.APIBind),
		logger: logging.NewComponentLogger(logger, "api-server"),
		daemon: d,
	}
	srv.events = newEventStreamer(srv.logger)

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/jobs", srv.handleSubmit)
	mux.HandleFunc("GET /api/jobs", srv.handleList)
	mux.HandleFunc("GET /api/jobs/{id}", srv.handleGet)
	mux.HandleFunc("DELETE /api/jobs/{id}", srv.handlePurge)
	mux.HandleFunc("POST /api/jobs/{id}/cancel", srv.handleCancel)
	mux.HandleFunc("GET /api/jobs/{id}/events", srv.handleEvents)
	mux.HandleFunc("GET /api/providers/preview", srv.handlePreview)
	mux.HandleFunc("GET /api/status", srv.handleStatus)
	mux.HandleFunc("GET /api/logs", srv.handleLogs)

	srv.server = &http.Server{
		Handler:           authMiddleware(strings.TrimSpace(cfg.Paths.APIToken), mux),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return srv
}

func (s *apiServer) start(ctx context.Context) error {
	if s.bind == "" {
		return nil
	}
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	s.mu.Lock()
	s.listener = listener
	s.mu.Unlock()

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.ErrorWithContext(s.logger, "api server error", "api_server_failed", logging.Error(err))
		}
	}()

	s.logger.Info("api server listening",
		logging.String(logging.FieldEventType, "api_listening"),
		logging.String("address", listener.Addr().String()),
	)
	return nil
}

func (s *apiServer) stop() {
	s.mu.Lock()
	listener := s.listener
	s.listener = nil
	s.mu.Unlock()
	if listener == nil {
		return
	}
	s.events.closeAll()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = s.server.Shutdown(shutdownCtx)
	_ = listener.Close()
}

func (s *apiServer) address() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

func (s *apiServer) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var brief api.Brief
	decoder := json.NewDecoder(io.LimitReader(r.Body, maxBriefBytes))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&brief); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid brief: "+err.Error())
		return
	}
	id, err := s.daemon.queue.Enqueue(brief.Request())
	if err != nil {
		s.writeQueueError(w, id, err)
		return
	}
	s.writeJSON(w, http.StatusAccepted, api.SubmitResponse{JobID: id})
}

func (s *apiServer) handleList(w http.ResponseWriter, r *http.Request) {
	var filter []queue.Status
	for _, value := range r.URL.Query()["status"] {
		for part := range strings.SplitSeq(value, ",") {
			if strings.TrimSpace(part) == "" {
				continue
			}
			status, ok := queue.ParseStatus(part)
			if !ok {
				s.writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown status %q", part))
				return
			}
			filter = append(filter, status)
		}
	}

	jobs := s.daemon.queue.List()
	if len(filter) > 0 {
		kept := jobs[:0]
		for _, job := range jobs {
			for _, status := range filter {
				if job.Status == status {
					kept = append(kept, job)
					break
				}
			}
		}
		jobs = kept
	}
	s.writeJSON(w, http.StatusOK, api.JobListResponse{Jobs: api.FromJobs(jobs)})
}

func (s *apiServer) handleGet(w http.ResponseWriter, r *http.Request) {
	job, err := s.daemon.queue.GetStatus(r.PathValue("id"))
	if err != nil {
		s.writeQueueError(w, "", err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.JobResponse{Job: api.FromJob(job)})
}

func (s *apiServer) handleCancel(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.daemon.queue.Cancel(id); err != nil {
		s.writeQueueError(w, id, err)
		return
	}
	job, err := s.daemon.queue.GetStatus(id)
	if err != nil {
		s.writeQueueError(w, id, err)
		return
	}
	s.writeJSON(w, http.StatusAccepted, api.JobResponse{Job: api.FromJob(job)})
}

func (s *apiServer) handlePurge(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.daemon.queue.Purge(id); err != nil {
		s.writeQueueError(w, id, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *apiServer) handleEvents(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	sub, err := s.daemon.queue.Subscribe(id)
	if err != nil {
		s.writeQueueError(w, id, err)
		return
	}
	defer sub.Close()
	s.events.stream(w, r, id, sub)
}

func (s *apiServer) handlePreview(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	tier := strings.TrimSpace(query.Get("tier"))
	offline := parseFlag(query.Get("offline"))

	stages := generation.Stages()
	if value := strings.TrimSpace(query.Get("stage")); value != "" {
		st, ok := generation.ParseStage(value)
		if !ok {
			s.writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown stage %q", value))
			return
		}
		stages = []generation.Stage{st}
	}

	selections := make([]provider.Selection, 0, len(stages))
	for _, st := range stages {
		selections = append(selections, s.daemon.coord.PreviewStage(r.Context(), st, tier, offline))
	}
	s.writeJSON(w, http.StatusOK, api.PreviewResponse{Selections: api.FromSelections(selections)})
}

func (s *apiServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	status := s.daemon.Status(r.Context())
	s.writeJSON(w, http.StatusOK, api.DaemonStatus{
		Running:      status.Running,
		PID:          status.PID,
		LockFilePath: status.LockFilePath,
		LogPath:      status.LogPath,
		Queue:        api.FromStats(status.Queue),
		Workflow:     api.FromStatusSummary(status.Workflow),
		Dependencies: api.FromDependencies(status.Dependencies),
	})
}

func (s *apiServer) handleLogs(w http.ResponseWriter, r *http.Request) {
	hub := s.daemon.LogStream()
	if hub == nil {
		s.writeJSON(w, http.StatusOK, api.LogStreamResponse{})
		return
	}

	query := r.URL.Query()
	since, _ := strconv.ParseUint(query.Get("since"), 10, 64)
	limit, _ := strconv.Atoi(query.Get("limit"))
	if limit <= 0 {
		limit = 200
	}
	follow := parseFlag(query.Get("follow"))
	jobID := strings.TrimSpace(query.Get("job"))

	var (
		raw  []logging.LogEvent
		next uint64
	)
	if parseFlag(query.Get("tail")) && since == 0 && !follow {
		raw, next = hub.Tail(limit)
	} else {
		ctx := r.Context()
		if follow {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, logFollowLimit)
			defer cancel()
		}
		var err error
		raw, next, err = hub.Fetch(ctx, since, limit, follow)
		if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
			s.writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
	}

	events := api.FromLogEvents(raw)
	if jobID != "" {
		kept := events[:0]
		for _, evt := range events {
			if evt.JobID == jobID {
				kept = append(kept, evt)
			}
		}
		events = kept
	}
	s.writeJSON(w, http.StatusOK, api.LogStreamResponse{Events: events, Next: next})
}

// writeQueueError maps queue and request errors onto HTTP statuses. id names
// the job the conflict refers to, when known.
func (s *apiServer) writeQueueError(w http.ResponseWriter, id string, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, generation.ErrInvalidRequest):
		status = http.StatusBadRequest
	case errors.Is(err, queue.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, queue.ErrDuplicateRequest),
		errors.Is(err, queue.ErrJobFinished),
		errors.Is(err, queue.ErrJobActive):
		status = http.StatusConflict
	case errors.Is(err, queue.ErrStopped):
		status = http.StatusServiceUnavailable
	}
	if status == http.StatusInternalServerError {
		logging.ErrorWithContext(s.logger, "api request failed", "api_request_failed", logging.Error(err))
	}
	s.writeJSON(w, status, api.ErrorResponse{Error: err.Error(), JobID: id})
}

func (s *apiServer) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("failed to encode response", logging.Error(err))
	}
}

func (s *apiServer) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, api.ErrorResponse{Error: message})
}

func parseFlag(value string) bool {
	value = strings.TrimSpace(value)
	return value == "1" || strings.EqualFold(value, "true")
}
