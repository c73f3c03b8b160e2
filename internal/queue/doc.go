// Package queue schedules generation jobs on a bounded pool of workers and
// tracks each job from enqueue to a terminal status.
//
// The Queue keeps a volatile in-memory index of jobs, admits Queued jobs in
// FIFO order while fewer than Settings.MaxConcurrentJobs are running and the
// host load probe allows it, and hands each admitted job to a Runner together
// with a Tracker. The Tracker is the only way a Runner mutates its job: it
// enforces the status state machine (Queued → Running → Succeeded, Failed or
// Canceled, never out of a terminal status) and publishes every change as an
// Event to per-job and global subscribers.
//
// Panics escaping a Runner are recovered at the worker boundary and recorded
// as an InternalError failure so one defective job cannot take down the pool.
package queue
