// Package logging assembles structured slog loggers and formatting helpers used
// across reelforge services.
//
// It owns the configurable console/JSON handlers, centralizes level and output
// plumbing, and exposes context-aware helpers so pipeline code can automatically
// tag log lines with job IDs, stages, selected providers, and correlation IDs.
// The package also provides a no-op logger for tests and an in-memory stream
// hub the daemon exposes over its API.
//
// Prefer these constructors over hand-rolled slog setup so new components emit
// data with the same shape and routing as the rest of the system.
package logging
