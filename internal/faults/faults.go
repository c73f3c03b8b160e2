// Package faults maps raised failures onto the closed set of error kinds every
// surfaced error in the system uses, each with a stable code and a
// remediation hint.
//
// Classification happens at two boundaries only: the stage executor (per-stage
// provider errors) and the queue worker (job-level defects). Everywhere else
// errors travel as Record values.
package faults

import (
	"errors"
	"fmt"
	"strings"
)

// Kind is one member of the closed error taxonomy.
type Kind string

const (
	KindMissingCredential        Kind = "MissingCredential"
	KindUnsupportedEnvironment   Kind = "UnsupportedEnvironment"
	KindDependencyNotFound       Kind = "DependencyNotFound"
	KindResourceExhausted        Kind = "ResourceExhausted"
	KindInvalidInput             Kind = "InvalidInput"
	KindTimeout                  Kind = "Timeout"
	KindTransientNetworkFailure  Kind = "TransientNetworkFailure"
	KindArtifactResolutionFailed Kind = "ArtifactResolutionFailed"
	KindInternalError            Kind = "InternalError"
)

// Kinds lists the taxonomy in declaration order.
func Kinds() []Kind {
	return []Kind{
		KindMissingCredential,
		KindUnsupportedEnvironment,
		KindDependencyNotFound,
		KindResourceExhausted,
		KindInvalidInput,
		KindTimeout,
		KindTransientNetworkFailure,
		KindArtifactResolutionFailed,
		KindInternalError,
	}
}

// Retryable reports whether failures of this kind may be retried.
func (k Kind) Retryable() bool {
	return k == KindTransientNetworkFailure
}

var remediations = map[Kind]string{
	KindMissingCredential:        "set the provider API key in the environment or config, or request a lower tier",
	KindUnsupportedEnvironment:   "the host lacks required hardware or OS support; pick another backend or tier",
	KindDependencyNotFound:       "install the missing tool and ensure it is on PATH (see `reelforge doctor`)",
	KindResourceExhausted:        "free disk space or memory, or lower queue.max_concurrent_jobs",
	KindInvalidInput:             "fix the brief or request fields and resubmit",
	KindTimeout:                  "raise stages.<stage>.timeout_seconds or choose a faster backend",
	KindTransientNetworkFailure:  "retry later; check network connectivity and provider status",
	KindArtifactResolutionFailed: "check the composition backend output and work directory; no final file could be located",
	KindInternalError:            "this is a defect; report it with the job id and daemon log",
}

// Remediation returns the operator hint for a kind.
func Remediation(kind Kind) string {
	if hint, ok := remediations[kind]; ok {
		return hint
	}
	return remediations[KindInternalError]
}

// Record is a classified failure. It implements error so it can travel
// through ordinary error returns without losing structure.
type Record struct {
	Kind        Kind   `json:"kind"`
	Code        string `json:"code"`
	Message     string `json:"message"`
	Remediation string `json:"remediation"`
	Stage       string `json:"stage,omitempty"`
	Provider    string `json:"provider,omitempty"`
	Retryable   bool   `json:"retryable"`
}

func (r Record) Error() string {
	if r.Message == "" {
		return r.Code
	}
	return fmt.Sprintf("%s: %s", r.Code, r.Message)
}

// IsZero reports whether the record is unset.
func (r Record) IsZero() bool {
	return r.Kind == ""
}

// New builds a record for kind with an optional code detail.
func New(kind Kind, detail, message string) Record {
	return Record{
		Kind:        kind,
		Code:        Code(kind, detail),
		Message:     strings.TrimSpace(message),
		Remediation: Remediation(kind),
		Retryable:   kind.Retryable(),
	}
}

// Code formats a stable error code as Kind or Kind:detail.
func Code(kind Kind, detail string) string {
	detail = strings.TrimSpace(detail)
	if detail == "" {
		return string(kind)
	}
	return string(kind) + ":" + detail
}

// ParseCode splits a code back into kind and detail.
func ParseCode(code string) (Kind, string) {
	kind, detail, _ := strings.Cut(strings.TrimSpace(code), ":")
	return Kind(kind), detail
}

// Internal builds an InternalError record for a recovered panic or an
// unexpected defect.
func Internal(stage string, cause any) Record {
	rec := New(KindInternalError, "", fmt.Sprintf("unexpected failure: %v", cause))
	rec.Stage = stage
	return rec
}

// As extracts a Record from err's chain.
func As(err error) (Record, bool) {
	var rec Record
	if errors.As(err, &rec) {
		return rec, true
	}
	var ptr *Record
	if errors.As(err, &ptr) && ptr != nil {
		return *ptr, true
	}
	return Record{}, false
}
