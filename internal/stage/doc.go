// Package stage runs a single pipeline stage against its selected backend.
//
// Executor.Execute is the one place stage timeouts are enforced. The stage
// body runs on its own goroutine so a provider that ignores cancellation
// cannot hold the pipeline past its deadline; its late result is dropped.
// Every failure, including panics, leaves Execute as a classified
// queue.StageResult and never as a raw error.
package stage
