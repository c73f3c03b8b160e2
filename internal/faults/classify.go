package faults

import (
	"context"
	"errors"
	"io"
	"net"
	"os"
	"os/exec"

	"golang.org/x/sys/unix"

	"reelforge/internal/generation"
	"reelforge/internal/services"
)

// Classify maps err onto the taxonomy. stage and provider fill in the code
// detail where the kind calls for one (Timeout:<stage>,
// MissingCredential:<provider>). A nil error yields a zero Record.
func Classify(err error, stage, provider string) Record {
	if err == nil {
		return Record{}
	}
	if rec, ok := As(err); ok {
		if rec.Stage == "" {
			rec.Stage = stage
		}
		if rec.Provider == "" {
			rec.Provider = provider
		}
		return rec
	}

	kind, detail := kindOf(err, stage, provider)
	rec := New(kind, detail, err.Error())
	rec.Stage = stage
	rec.Provider = provider
	return rec
}

func kindOf(err error, stage, provider string) (Kind, string) {
	switch services.Marker(err) {
	case services.ErrMissingCredential:
		return KindMissingCredential, provider
	case services.ErrUnsupportedEnvironment:
		return KindUnsupportedEnvironment, provider
	case services.ErrDependencyNotFound:
		return KindDependencyNotFound, toolName(err, provider)
	case services.ErrResourceExhausted:
		return KindResourceExhausted, resourceName(err)
	case services.ErrValidation, services.ErrConfiguration:
		return KindInvalidInput, ""
	case services.ErrTimeout:
		return KindTimeout, stage
	case services.ErrTransient:
		return KindTransientNetworkFailure, ""
	}

	switch {
	case errors.Is(err, generation.ErrInvalidRequest):
		return KindInvalidInput, ""
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, os.ErrDeadlineExceeded):
		return KindTimeout, stage
	case errors.Is(err, exec.ErrNotFound), isExecError(err):
		return KindDependencyNotFound, toolName(err, provider)
	case errors.Is(err, unix.ENOSPC), errors.Is(err, unix.EDQUOT), errors.Is(err, unix.ENOMEM):
		return KindResourceExhausted, resourceName(err)
	case errors.Is(err, unix.ECONNRESET),
		errors.Is(err, unix.ECONNREFUSED),
		errors.Is(err, unix.ECONNABORTED),
		errors.Is(err, unix.EPIPE),
		errors.Is(err, unix.ETIMEDOUT),
		errors.Is(err, unix.EHOSTUNREACH),
		errors.Is(err, unix.ENETUNREACH),
		errors.Is(err, io.ErrUnexpectedEOF):
		return KindTransientNetworkFailure, ""
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return KindTransientNetworkFailure, ""
	}
	return KindInternalError, ""
}

func isExecError(err error) bool {
	var execErr *exec.Error
	return errors.As(err, &execErr)
}

func toolName(err error, fallback string) string {
	var execErr *exec.Error
	if errors.As(err, &execErr) && execErr.Name != "" {
		return execErr.Name
	}
	return fallback
}

func resourceName(err error) string {
	switch {
	case errors.Is(err, unix.ENOMEM):
		return "memory"
	case errors.Is(err, unix.ENOSPC), errors.Is(err, unix.EDQUOT):
		return "disk"
	default:
		return ""
	}
}
