package services

import (
	"errors"
	"fmt"
	"strings"
)

// Markers tag provider and stage failures so internal/faults can classify
// them without inspecting message text.
var (
	ErrMissingCredential      = errors.New("missing credential")
	ErrUnsupportedEnvironment = errors.New("unsupported environment")
	ErrDependencyNotFound     = errors.New("dependency not found")
	ErrResourceExhausted      = errors.New("resource exhausted")
	ErrValidation             = errors.New("validation error")
	ErrConfiguration          = errors.New("configuration error")
	ErrNotFound               = errors.New("not found")
	ErrTimeout                = errors.New("timeout")
	ErrTransient              = errors.New("transient failure")
)

// Wrap builds an error message that includes stage context while tagging it with
// the provided marker for later classification. The marker should be one of the
// exported sentinel errors above.
func Wrap(marker error, stage, operation, message string, err error) error {
	detail := buildDetail(stage, operation, message)
	if marker == nil {
		marker = ErrTransient
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// Marker returns the first sentinel marker found in err's chain.
func Marker(err error) error {
	if err == nil {
		return nil
	}
	for _, marker := range []error{
		ErrMissingCredential,
		ErrUnsupportedEnvironment,
		ErrDependencyNotFound,
		ErrResourceExhausted,
		ErrValidation,
		ErrConfiguration,
		ErrNotFound,
		ErrTimeout,
		ErrTransient,
	} {
		if errors.Is(err, marker) {
			return marker
		}
	}
	return nil
}

func buildDetail(stage, operation, message string) string {
	parts := make([]string, 0, 3)
	if stage = strings.TrimSpace(stage); stage != "" {
		parts = append(parts, stage)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
