package preflight

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"golang.org/x/sys/unix"

	"reelforge/internal/config"
	"reelforge/internal/deps"
)

// CheckDirectoryAccess verifies that the directory exists and is readable/writable.
func CheckDirectoryAccess(name, path string) Result {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", path)}
}

// FreeSpaceMB returns the space available to unprivileged users on the
// filesystem holding path, in MiB.
func FreeSpaceMB(path string) (uint64, error) {
	var stat unix.Statfs_t
	if err := unix.Statfs(path, &stat); err != nil {
		return 0, fmt.Errorf("statfs %s: %w", path, err)
	}
	return stat.Bavail * uint64(stat.Bsize) / (1 << 20), nil
}

// CheckFreeSpace compares free space under path with minMB. A minMB of zero
// or less only reports the free space.
func CheckFreeSpace(name, path string, minMB int) Result {
	free, err := FreeSpaceMB(path)
	if err != nil {
		return Result{Name: name, Detail: err.Error()}
	}
	if minMB > 0 && free < uint64(minMB) {
		return Result{Name: name, Detail: fmt.Sprintf("%d MiB free, %d MiB required", free, minMB)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%d MiB free", free)}
}

// CheckSystemDeps evaluates the external tools optional backends use. Every
// pipeline stage has a dependency-free built-in backend, so none of these is
// required for a job to finish.
func CheckSystemDeps(_ context.Context, cfg *config.Config) []deps.Status {
	configured := ""
	if cfg != nil {
		configured = cfg.FFmpegBinary()
	}
	return []deps.Status{deps.CheckFFmpeg(configured)}
}

// CheckDaemon verifies that a reelforge daemon answers on baseURL and accepts
// the token.
func CheckDaemon(ctx context.Context, baseURL, token string) Result {
	const name = "Daemon"

	base := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if base == "" {
		return Result{Name: name, Detail: "missing url"}
	}

	checkCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	client := &http.Client{Timeout: 5 * time.Second}
	req, err := http.NewRequestWithContext(checkCtx, http.MethodGet, base+"/api/status", nil)
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("status check failed (%v)", err)}
	}
	if token = strings.TrimSpace(token); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := client.Do(req)
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("not reachable (%v)", err)}
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		return Result{Name: name, Passed: true, Detail: "Reachable at " + base}
	case http.StatusUnauthorized, http.StatusForbidden:
		return Result{Name: name, Detail: "auth failed (check paths.api_token)"}
	default:
		return Result{Name: name, Detail: fmt.Sprintf("status check failed (%d)", resp.StatusCode)}
	}
}
