// Package services defines shared utilities consumed by pipeline stages and
// provider backends.
//
// Key responsibilities:
//   - Context helpers that stamp job IDs, stage names, selected providers, and
//     correlation identifiers for logging and tracing.
//   - Structured error markers plus the Wrap helper so backends can tag a
//     failure (missing credential, missing tool, transient network fault)
//     without depending on the classification package.
//
// Use these helpers when writing new backends so failures surface with the
// same error kinds and remediation hints as the built-in ones.
package services
