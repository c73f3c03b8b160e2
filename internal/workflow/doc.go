// Package workflow drives one job through the fixed generation pipeline:
// Script, Narration, Visuals, Composition, Export.
//
// The Coordinator implements queue.Runner. For each stage it asks the
// provider.Selector for a backend, runs it through the stage.Executor with
// transient-failure retry, and records the StageResult on the job's
// queue.Tracker. A failed required stage short-circuits the remaining stages
// as Skipped; optional stages may fail without stopping the run.
//
// After the last stage the Resolver locates the final artifact through an
// ordered list of extraction layers, logging every layer that misses. A job
// whose artifact cannot be located fails with ArtifactResolutionFailed.
package workflow
