// Package daemon hosts the long-running reelforge process.
//
// It wires configuration, the job queue, the workflow coordinator, and
// notifications into a single lifecycle guarded by a flock lock so only one
// instance owns a work directory. The HTTP API in this package is the only
// remote surface: job submission, status, cancellation, provider previews,
// log tailing, and a websocket stream of job events.
//
// Keep orchestration here. Pipeline behavior belongs to the workflow package
// and scheduling to the queue package.
package daemon
