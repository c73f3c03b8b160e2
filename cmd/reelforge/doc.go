// Package main hosts the reelforge CLI entrypoint and command graph.
//
// The Cobra command tree covers three modes: `run` executes one brief
// in-process and streams its events to the terminal, the job commands talk to
// a running daemon over its HTTP API, and `daemon` hosts that API. Provider
// previews, diagnostics, and configuration scaffolding work without a daemon.
//
// Keep this package lean: new behavior belongs in the internal packages and
// is surfaced here through commands or flags.
package main
