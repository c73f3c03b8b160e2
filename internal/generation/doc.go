// Package generation defines the data that flows through a media generation
// run: the immutable request built from a content brief, the typed payloads
// each stage produces, and the provider contracts stage backends implement.
//
// The package has no behaviour beyond validation and small accessors. Provider
// selection lives in internal/provider, stage execution in internal/stage and
// sequencing in internal/workflow.
package generation
