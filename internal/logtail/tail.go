// Package logtail reads log files on disk for `reelforge logs --local`, which
// works when no daemon is reachable.
package logtail

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"reelforge/internal/textutil"
)

// Options controls one Tail call. A negative Offset means "the last Limit
// lines"; otherwise reading starts at Offset bytes.
type Options struct {
	Offset int64
	Limit  int
	// Wait bounds how long Tail polls for new lines when none are available.
	Wait time.Duration
}

// Result carries lines read and the offset to resume from.
type Result struct {
	Lines  []string
	Offset int64
}

const pollInterval = 250 * time.Millisecond

// Tail reads lines from path. A missing file yields no lines and offset 0.
func Tail(ctx context.Context, path string, opts Options) (Result, error) {
	info, err := os.Stat(path)
	if errors.Is(err, os.ErrNotExist) {
		return Result{}, nil
	}
	if err != nil {
		return Result{Offset: opts.Offset}, fmt.Errorf("stat log file: %w", err)
	}
	if info.IsDir() {
		return Result{Offset: opts.Offset}, fmt.Errorf("log path %q is a directory", path)
	}

	var res Result
	if opts.Offset < 0 {
		res, err = lastLines(path, opts.Limit)
	} else {
		res, err = readFrom(path, min(opts.Offset, info.Size()))
	}
	if err != nil || len(res.Lines) > 0 || opts.Wait <= 0 {
		return res, err
	}
	return poll(ctx, path, res.Offset, opts.Wait)
}

func lastLines(path string, limit int) (Result, error) {
	file, err := os.Open(path)
	if err != nil {
		return Result{}, fmt.Errorf("open log file: %w", err)
	}
	defer file.Close()

	var ring []string
	if limit > 0 {
		scanner := newScanner(file)
		for scanner.Scan() {
			if len(ring) == limit {
				ring = ring[1:]
			}
			ring = append(ring, scanner.Text())
		}
		if err := scanner.Err(); err != nil {
			return Result{}, fmt.Errorf("read log file: %w", err)
		}
	}
	end, err := file.Seek(0, io.SeekEnd)
	if err != nil {
		return Result{}, fmt.Errorf("seek log file: %w", err)
	}
	return Result{Lines: ring, Offset: end}, nil
}

func readFrom(path string, offset int64) (Result, error) {
	file, err := os.Open(path)
	if err != nil {
		return Result{Offset: offset}, fmt.Errorf("open log file: %w", err)
	}
	defer file.Close()

	if _, err := file.Seek(offset, io.SeekStart); err != nil {
		return Result{Offset: offset}, fmt.Errorf("seek log file: %w", err)
	}
	var lines []string
	scanner := newScanner(file)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return Result{Offset: offset}, fmt.Errorf("read log file: %w", err)
	}
	end, err := file.Seek(0, io.SeekCurrent)
	if err != nil {
		return Result{Offset: offset}, fmt.Errorf("determine log offset: %w", err)
	}
	return Result{Lines: lines, Offset: end}, nil
}

func poll(ctx context.Context, path string, offset int64, wait time.Duration) (Result, error) {
	deadline := time.Now().Add(wait)
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return Result{Offset: offset}, ctx.Err()
		case <-ticker.C:
		}
		res, err := readFrom(path, offset)
		if err != nil || len(res.Lines) > 0 || time.Now().After(deadline) {
			return res, err
		}
		offset = res.Offset
	}
}

func newScanner(r io.Reader) *bufio.Scanner {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	return scanner
}

// FindJobLog returns the newest per-job log file in dir for jobID. Job log
// names embed the first eight characters of the sanitized id.
func FindJobLog(dir, jobID string) (string, error) {
	if strings.TrimSpace(jobID) == "" {
		return "", errors.New("job id is required")
	}
	id := textutil.SanitizeToken(jobID)
	id = id[:min(len(id), 8)]
	matches, err := filepath.Glob(filepath.Join(dir, "*-"+id+"-*.log"))
	if err != nil {
		return "", fmt.Errorf("search job logs: %w", err)
	}
	if len(matches) == 0 {
		return "", fmt.Errorf("no log file for job %s in %s", jobID, dir)
	}
	// Names start with a UTC timestamp, so lexical order is chronological.
	slices.Sort(matches)
	return matches[len(matches)-1], nil
}
