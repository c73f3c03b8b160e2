package deps

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
)

// FFmpegRequirement describes the ffmpeg binary used by rendering backends.
func FFmpegRequirement(configured string) Requirement {
	return Requirement{
		Name:        "FFmpeg",
		Command:     ResolveFFmpegPath(configured),
		Description: "Used by the ffmpeg composition backend",
		Optional:    true,
	}
}

// ResolveFFmpegPath returns the ffmpeg binary to execute. A configured value
// that is a path or resolvable name wins; otherwise an ffmpeg sitting next to
// the running executable is preferred over PATH lookup.
func ResolveFFmpegPath(configured string) string {
	configured = strings.TrimSpace(configured)
	if configured != "" && configured != "ffmpeg" {
		return configured
	}
	if self, err := os.Executable(); err == nil {
		if candidate, ok := sidecarCandidate(self, "ffmpeg"); ok {
			if info, statErr := os.Stat(candidate); statErr == nil && isExecutable(info) {
				return candidate
			}
		}
	}
	return "ffmpeg"
}

// CheckFFmpeg reports whether the resolved ffmpeg binary can be executed.
func CheckFFmpeg(configured string) Status {
	return Check(FFmpegRequirement(configured))
}

func sidecarCandidate(executable, name string) (string, bool) {
	if executable == "" {
		return "", false
	}
	if runtime.GOOS == "windows" {
		name += ".exe"
	}
	return filepath.Join(filepath.Dir(executable), name), true
}

func isExecutable(info os.FileInfo) bool {
	if info == nil || info.IsDir() {
		return false
	}
	if runtime.GOOS == "windows" {
		return true
	}
	return info.Mode().Perm()&0o111 != 0
}
