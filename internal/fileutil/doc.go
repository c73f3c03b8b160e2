// Package fileutil holds file helpers shared by the built-in backends and
// artifact resolution: atomic copies, non-empty checks, and newest-file scans.
package fileutil
