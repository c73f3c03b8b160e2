package textutil

import "strings"

// SanitizeToken lowercases value into [a-z0-9_-], mapping anything else to
// an underscore. Empty results become "unknown".
func SanitizeToken(value string) string {
	mapped := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		case r >= 'A' && r <= 'Z':
			return r + ('a' - 'A')
		default:
			return '_'
		}
	}, strings.TrimSpace(value))
	if out := strings.Trim(mapped, "_-"); out != "" {
		return out
	}
	return "unknown"
}

// Slug converts value into a lowercase, hyphen-separated token suitable for
// output file names. Runs of unsafe characters collapse to one hyphen and the
// result is capped at maxLen bytes (no cap when maxLen <= 0).
func Slug(value string, maxLen int) string {
	var b strings.Builder
	pendingDash := false
	for _, r := range strings.ToLower(strings.TrimSpace(value)) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			if pendingDash && b.Len() > 0 {
				b.WriteByte('-')
			}
			pendingDash = false
			b.WriteRune(r)
		default:
			pendingDash = true
		}
	}
	out := b.String()
	if maxLen > 0 && len(out) > maxLen {
		out = strings.TrimRight(out[:maxLen], "-")
	}
	if out == "" {
		return "untitled"
	}
	return out
}
