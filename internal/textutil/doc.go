// Package textutil provides small text helpers shared by the built-in
// backends and the CLI: filename sanitization, slugs for output names, and
// title casing for script headings and stage labels.
package textutil
