// Package preflight provides readiness checks for the filesystem paths,
// external tools, and daemon endpoint reelforge depends on.
//
// These checks run in two contexts:
//   - The pipeline coordinator calls FreeSpaceMB before each job so a run
//     that cannot fit on disk fails before any stage starts.
//   - The CLI "reelforge doctor" command calls RunAll, CheckSystemDeps and
//     CheckDaemon to display host health.
package preflight
