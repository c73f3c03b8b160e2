package notifications

import (
	"context"
	"log/slog"

	"reelforge/internal/logging"
	"reelforge/internal/queue"
)

// JobLookup returns a snapshot of a job by id.
type JobLookup func(id string) (queue.Job, error)

// Forward publishes a notification for every terminal Completed or Failed
// event until ctx is done or events closes. Delivery failures are logged and
// never stop the loop.
func Forward(ctx context.Context, events <-chan queue.Event, lookup JobLookup, svc Service, logger *slog.Logger) {
	logger = logging.NewComponentLogger(logger, "notifications")
	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-events:
			if !ok {
				return
			}
			event, payload, ok := translate(evt, lookup)
			if !ok {
				continue
			}
			if err := svc.Publish(ctx, event, payload); err != nil {
				logging.WarnWithContext(logger, "notification failed", "notification_failed",
					logging.String(logging.FieldJobID, evt.JobID),
					logging.String("notification", string(event)),
					logging.Error(err),
					logging.String(logging.FieldErrorHint, "check notifications.ntfy_topic and network access"),
					logging.String(logging.FieldImpact, "job outcome was not announced"),
				)
			}
		}
	}
}

func translate(evt queue.Event, lookup JobLookup) (Event, Payload, bool) {
	var (
		event   Event
		payload = Payload{"job_id": evt.JobID}
	)
	switch evt.Type {
	case queue.EventCompleted:
		event = EventJobCompleted
		if evt.Artifact != nil {
			payload["artifact"] = evt.Artifact.Path
		}
	case queue.EventFailed:
		event = EventJobFailed
		if evt.Error != nil {
			payload["error"] = evt.Error.Error()
			payload["hint"] = evt.Error.Remediation
			payload["stage"] = evt.Error.Stage
		}
	default:
		return "", nil, false
	}
	if lookup != nil {
		if job, err := lookup(evt.JobID); err == nil {
			payload["topic"] = job.Request.Topic
			if job.StartedAt != nil && job.EndedAt != nil {
				payload["duration"] = job.EndedAt.Sub(*job.StartedAt)
			}
		}
	}
	return event, payload, true
}

// Outcome builds the notification for a finished job. Canceled and active
// jobs yield false.
func Outcome(job queue.Job) (Event, Payload, bool) {
	payload := Payload{"job_id": job.ID, "topic": job.Request.Topic}
	if job.StartedAt != nil && job.EndedAt != nil {
		payload["duration"] = job.EndedAt.Sub(*job.StartedAt)
	}
	switch job.Status {
	case queue.StatusSucceeded:
		if job.Artifact != nil {
			payload["artifact"] = job.Artifact.Path
		}
		return EventJobCompleted, payload, true
	case queue.StatusFailed:
		if rec, ok := job.LastError(); ok {
			payload["error"] = rec.Error()
			payload["hint"] = rec.Remediation
			payload["stage"] = rec.Stage
		}
		return EventJobFailed, payload, true
	default:
		return "", nil, false
	}
}
