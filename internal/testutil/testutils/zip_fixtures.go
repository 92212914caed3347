package helpers

import (
	"bytes"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/klauspost/compress/zip"
)

// ZipBytes builds an in-memory zip with the given entries (name -> body).
// Names ending in "/" become directory entries.
func ZipBytes(t *testing.T, entries map[string]string) []byte {
	t.Helper()
	names := make([]string, 0, len(entries))
	for name := range entries {
		names = append(names, name)
	}
	sort.Strings(names)

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, name := range names {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatalf("zip create %s: %v", name, err)
		}
		if _, err := w.Write([]byte(entries[name])); err != nil {
			t.Fatalf("zip write %s: %v", name, err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("zip close: %v", err)
	}
	return buf.Bytes()
}

// WriteZip writes a zip with entries into dir and returns its path.
func WriteZip(t *testing.T, dir, name string, entries map[string]string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, ZipBytes(t, entries), 0o600); err != nil {
		t.Fatalf("write zip: %v", err)
	}
	return path
}

// ContentZip returns a zip whose www/ directory holds an index.html marked with version.
func ContentZip(t *testing.T, version string) []byte {
	t.Helper()
	return ZipBytes(t, map[string]string{
		"www/index.html": "<html>" + version + "</html>",
		"www/js/app.js":  "var version = '" + version + "';",
	})
}
