package testsupport

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// WriteFile writes an artifact of size bytes (at least one) at path,
// creating parent directories, and returns path.
func WriteFile(t testing.TB, path string, size int64) string {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("testsupport: %v", err)
	}
	content := strings.Repeat("z", int(max(size, 1)))
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("testsupport: %v", err)
	}
	return path
}
