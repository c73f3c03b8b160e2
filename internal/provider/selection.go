package provider

import (
	"fmt"
	"strings"

	"reelforge/internal/generation"
)

// Skip records a candidate that was passed over and why.
type Skip struct {
	Backend string `json:"backend"`
	Reason  string `json:"reason"`
}

// Selection is the immutable result of one Pick call.
type Selection struct {
	Stage        generation.Stage `json:"stage"`
	Backend      string           `json:"backend"`
	Tier         generation.Tier  `json:"tier"`
	Requested    string           `json:"requested"`
	IsFallback   bool             `json:"is_fallback"`
	FallbackFrom string           `json:"fallback_from,omitempty"`
	Reason       string           `json:"reason"`
	Skipped      []Skip           `json:"skipped,omitempty"`

	instance generation.Backend
}

// Instance returns the selected backend.
func (s Selection) Instance() generation.Backend {
	return s.instance
}

// String renders a one-line summary for logs and CLI output.
func (s Selection) String() string {
	if s.IsFallback {
		return fmt.Sprintf("%s: %s (%s, fallback from %s)", s.Stage, s.Backend, s.Tier, s.FallbackFrom)
	}
	return fmt.Sprintf("%s: %s (%s)", s.Stage, s.Backend, s.Tier)
}

func summarizeSkips(skips []Skip, limit int) string {
	if len(skips) == 0 {
		return "none registered"
	}
	parts := make([]string, 0, min(len(skips), limit)+1)
	for i, skip := range skips {
		if i == limit {
			parts = append(parts, fmt.Sprintf("+%d more", len(skips)-limit))
			break
		}
		parts = append(parts, skip.Backend+": "+skip.Reason)
	}
	return strings.Join(parts, "; ")
}
