package queue

import (
	"time"

	"reelforge/internal/config"
)

const (
	defaultMaxConcurrentJobs = 1
	defaultBackoffBase       = 500 * time.Millisecond
	defaultBackoffMax        = 30 * time.Second
	defaultAdmissionPoll     = time.Second
	defaultRetention         = time.Hour
	defaultEventBuffer       = 256
)

// Settings is the process-wide scheduling configuration. Running jobs keep
// the snapshot they were admitted with; admission re-reads the latest value.
type Settings struct {
	MaxConcurrentJobs int
	RetryCount        int
	BackoffBase       time.Duration
	BackoffMax        time.Duration
	// MaxCPULoad is the 1-minute load average per CPU above which admission
	// pauses. Zero disables the check.
	MaxCPULoad float64
	// MinFreeMemoryPercent pauses admission while available memory is below
	// this share of total. Zero disables the check.
	MinFreeMemoryPercent float64
	AdmissionPoll        time.Duration
	Retention            time.Duration
	EventBuffer          int
}

// SettingsFromConfig derives scheduling settings from the [queue] section.
func SettingsFromConfig(cfg *config.Config) Settings {
	q := cfg.Queue
	return Settings{
		MaxConcurrentJobs:    q.MaxConcurrentJobs,
		RetryCount:           q.RetryCount,
		BackoffBase:          time.Duration(q.BackoffBaseMs) * time.Millisecond,
		BackoffMax:           time.Duration(q.BackoffMaxMs) * time.Millisecond,
		MaxCPULoad:           q.MaxCPULoad,
		MinFreeMemoryPercent: q.MinFreeMemoryPercent,
		AdmissionPoll:        time.Duration(q.AdmissionPollMs) * time.Millisecond,
		Retention:            time.Duration(q.RetentionMinutes) * time.Minute,
		EventBuffer:          q.EventBuffer,
	}.normalized()
}

func (s Settings) normalized() Settings {
	if s.MaxConcurrentJobs <= 0 {
		s.MaxConcurrentJobs = defaultMaxConcurrentJobs
	}
	if s.RetryCount < 0 {
		s.RetryCount = 0
	}
	if s.BackoffBase <= 0 {
		s.BackoffBase = defaultBackoffBase
	}
	if s.BackoffMax < s.BackoffBase {
		s.BackoffMax = max(s.BackoffBase, defaultBackoffMax)
	}
	if s.AdmissionPoll <= 0 {
		s.AdmissionPoll = defaultAdmissionPoll
	}
	if s.Retention <= 0 {
		s.Retention = defaultRetention
	}
	if s.EventBuffer <= 0 {
		s.EventBuffer = defaultEventBuffer
	}
	return s
}

// Backoff returns the delay before retry attempt n (1-based): base doubled
// per attempt and capped at BackoffMax.
func (s Settings) Backoff(attempt int) time.Duration {
	delay := s.BackoffBase
	for i := 1; i < attempt; i++ {
		if delay >= s.BackoffMax/2 {
			return s.BackoffMax
		}
		delay *= 2
	}
	return min(delay, s.BackoffMax)
}
