package fileutil

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// CopyFile copies src to dst through a temporary sibling file and renames it
// into place, so readers never observe a partially written dst.
func CopyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	tmp, err := os.CreateTemp(filepath.Dir(dst), "."+filepath.Base(dst)+".*.part")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	defer func() {
		_ = os.Remove(tmpPath)
	}()

	if _, err := io.Copy(tmp, in); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Chmod(0o644); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpPath, dst)
}

// CopyFileVerified copies src to dst and confirms the destination size
// matches. Removes dst on mismatch.
func CopyFileVerified(src, dst string) error {
	srcInfo, err := os.Stat(src)
	if err != nil {
		return fmt.Errorf("stat source: %w", err)
	}
	if err := CopyFile(src, dst); err != nil {
		return err
	}
	dstInfo, err := os.Stat(dst)
	if err != nil {
		return fmt.Errorf("stat destination: %w", err)
	}
	if dstInfo.Size() != srcInfo.Size() {
		_ = os.Remove(dst)
		return fmt.Errorf("copy size mismatch: source %d bytes, copied %d bytes", srcInfo.Size(), dstInfo.Size())
	}
	return nil
}

// ErrEmptyFile is returned by NonEmptyFile for zero-length files.
var ErrEmptyFile = errors.New("file is empty")

// NonEmptyFile reports the size of path, failing when it is missing, a
// directory, or zero bytes long.
func NonEmptyFile(path string) (int64, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, err
	}
	if info.IsDir() {
		return 0, fmt.Errorf("%s is a directory", path)
	}
	if info.Size() == 0 {
		return 0, fmt.Errorf("%s: %w", path, ErrEmptyFile)
	}
	return info.Size(), nil
}

// NewestMatching returns the most recently modified non-empty regular file
// directly under dir whose extension is in exts (case-insensitive). Returns
// fs.ErrNotExist when nothing matches.
func NewestMatching(dir string, exts []string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", err
	}
	allowed := make(map[string]struct{}, len(exts))
	for _, ext := range exts {
		allowed[strings.ToLower(ext)] = struct{}{}
	}

	var (
		bestPath string
		bestTime time.Time
	)
	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}
		if _, ok := allowed[strings.ToLower(filepath.Ext(entry.Name()))]; !ok {
			continue
		}
		info, err := entry.Info()
		if err != nil || info.Size() == 0 {
			continue
		}
		if bestPath == "" || info.ModTime().After(bestTime) {
			bestPath = filepath.Join(dir, entry.Name())
			bestTime = info.ModTime()
		}
	}
	if bestPath == "" {
		return "", fs.ErrNotExist
	}
	return bestPath, nil
}
