package stage

import (
	"fmt"

	"reelforge/internal/provider"
)

// Health summarizes which backend a stage would use right now.
type Health struct {
	Name   string `json:"name"`
	Ready  bool   `json:"ready"`
	Detail string `json:"detail,omitempty"`
}

// Healthy constructs a ready Health record.
func Healthy(name string) Health {
	return Health{Name: name, Ready: true}
}

// FromSelection reports a stage as ready on its selected backend. A stage is
// never unhealthy because of selection: the guaranteed backend always serves.
func FromSelection(sel provider.Selection) Health {
	h := Healthy(string(sel.Stage))
	h.Detail = fmt.Sprintf("%s (%s)", sel.Backend, sel.Tier)
	if sel.IsFallback {
		h.Detail += fmt.Sprintf(", fallback from %s", sel.FallbackFrom)
	}
	return h
}
