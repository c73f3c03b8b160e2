package queue

import (
	"sync"
	"time"

	"reelforge/internal/faults"
	"reelforge/internal/generation"
)

// EventType names one kind of job event.
type EventType string

const (
	EventStatusChanged EventType = "StatusChanged"
	EventStepProgress  EventType = "StepProgress"
	EventStepError     EventType = "StepError"
	EventCompleted     EventType = "Completed"
	EventFailed        EventType = "Failed"
)

// Event is one observable change to a job.
type Event struct {
	Sequence   uint64           `json:"sequence"`
	Type       EventType        `json:"type"`
	JobID      string           `json:"job_id"`
	Time       time.Time        `json:"time"`
	Status     Status           `json:"status,omitempty"`
	Previous   Status           `json:"previous,omitempty"`
	Stage      generation.Stage `json:"stage,omitempty"`
	StepStatus StepStatus       `json:"step_status,omitempty"`
	Provider   string           `json:"provider,omitempty"`
	Percent    float64          `json:"percent,omitempty"`
	Message    string           `json:"message,omitempty"`
	Attempt    int              `json:"attempt,omitempty"`
	Retrying   bool             `json:"retrying,omitempty"`
	Error      *faults.Record   `json:"error,omitempty"`
	Artifact   *Artifact        `json:"artifact,omitempty"`
}

// Terminal reports whether the event ends the job's stream.
func (e Event) Terminal() bool {
	return e.Type == EventCompleted || e.Type == EventFailed ||
		(e.Type == EventStatusChanged && e.Status == StatusCanceled)
}

// Subscription delivers events until Close is called or, for a per-job
// subscription, until the job reaches a terminal status.
type Subscription struct {
	C <-chan Event

	once  sync.Once
	close func()
}

// Close stops delivery and releases the subscription.
func (s *Subscription) Close() {
	if s == nil {
		return
	}
	s.once.Do(func() {
		if s.close != nil {
			s.close()
		}
	})
}

type subscriber struct {
	ch     chan Event
	closed bool
}

// send never blocks: a full buffer drops its oldest event.
func (s *subscriber) send(evt Event) {
	if s.closed {
		return
	}
	select {
	case s.ch <- evt:
		return
	default:
	}
	select {
	case <-s.ch:
	default:
	}
	select {
	case s.ch <- evt:
	default:
	}
}

func (s *subscriber) shutdown() {
	if !s.closed {
		s.closed = true
		close(s.ch)
	}
}

// eventHub fans events out to subscribers and keeps a bounded per-job
// history so late subscribers see what already happened.
type eventHub struct {
	mu       sync.Mutex
	seq      uint64
	buffer   int
	history  map[string][]Event
	finished map[string]bool
	byJob    map[string]map[*subscriber]struct{}
	all      map[*subscriber]struct{}
}

func newEventHub(buffer int) *eventHub {
	return &eventHub{
		buffer:   max(buffer, 1),
		history:  make(map[string][]Event),
		finished: make(map[string]bool),
		byJob:    make(map[string]map[*subscriber]struct{}),
		all:      make(map[*subscriber]struct{}),
	}
}

func (h *eventHub) publish(evt Event) Event {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.seq++
	evt.Sequence = h.seq
	if h.finished[evt.JobID] {
		return evt
	}
	hist := append(h.history[evt.JobID], evt)
	if len(hist) > h.buffer {
		hist = hist[len(hist)-h.buffer:]
	}
	h.history[evt.JobID] = hist
	for sub := range h.byJob[evt.JobID] {
		sub.send(evt)
	}
	for sub := range h.all {
		sub.send(evt)
	}
	if evt.Terminal() {
		h.finished[evt.JobID] = true
		for sub := range h.byJob[evt.JobID] {
			sub.shutdown()
		}
		delete(h.byJob, evt.JobID)
	}
	return evt
}

func (h *eventHub) subscribeJob(jobID string) *Subscription {
	h.mu.Lock()
	defer h.mu.Unlock()
	hist := h.history[jobID]
	sub := &subscriber{ch: make(chan Event, h.buffer+len(hist))}
	for _, evt := range hist {
		sub.ch <- evt
	}
	if h.finished[jobID] {
		sub.shutdown()
		return &Subscription{C: sub.ch}
	}
	subs, ok := h.byJob[jobID]
	if !ok {
		subs = make(map[*subscriber]struct{})
		h.byJob[jobID] = subs
	}
	subs[sub] = struct{}{}
	return &Subscription{C: sub.ch, close: func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		if set, ok := h.byJob[jobID]; ok {
			delete(set, sub)
		}
		sub.shutdown()
	}}
}

func (h *eventHub) subscribeAll() *Subscription {
	h.mu.Lock()
	defer h.mu.Unlock()
	sub := &subscriber{ch: make(chan Event, h.buffer)}
	h.all[sub] = struct{}{}
	return &Subscription{C: sub.ch, close: func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		delete(h.all, sub)
		sub.shutdown()
	}}
}

func (h *eventHub) forget(jobID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.history, jobID)
	delete(h.finished, jobID)
	for sub := range h.byJob[jobID] {
		sub.shutdown()
	}
	delete(h.byJob, jobID)
}

func (h *eventHub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for jobID, subs := range h.byJob {
		for sub := range subs {
			sub.shutdown()
		}
		delete(h.byJob, jobID)
	}
	for sub := range h.all {
		sub.shutdown()
	}
	clear(h.all)
}
