// Package api defines wire-format types, converters and the HTTP client for
// the daemon API. It translates internal queue models into transport-friendly
// DTOs so the CLI and other consumers can render jobs without coupling to
// internal types.
//
// # Key Types
//
// Job: transport representation of a job with per-stage results, the final
// artifact and classified errors.
//
// Event: one job event as delivered over the websocket feed.
//
// DaemonStatus: queue stats, stage health, dependency availability and the
// last finished job.
//
// # Converters
//
// FromJob, FromEvent, FromSelection and FromStatusSummary map internal models
// onto DTOs.
//
// # Design Notes
//
// DTOs use camelCase JSON tags for JavaScript/TypeScript consumers. Enums are
// exposed as their string values. Timestamps use RFC3339 with milliseconds.
// Durations travel as milliseconds.
package api
