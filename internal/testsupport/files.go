package testsupport

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
)

// WriteFile writes size filler bytes to path, creating parent directories,
// and returns path. size <= 0 leaves an empty file, which artifact checks
// treat as missing output.
func WriteFile(t testing.TB, path string, size int64) string {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	if err := os.WriteFile(path, bytes.Repeat([]byte{'B'}, int(max(size, 0))), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	return path
}
