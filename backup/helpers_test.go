package backup

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

// writeFiles lays out slash-relative paths with content under root
func writeFiles(t *testing.T, root string, files map[string]string) {
	t.Helper()

	for path, content := range files {
		full := filepath.Join(root, filepath.FromSlash(path))
		assert.Nil(t, os.MkdirAll(filepath.Dir(full), 0755), "No error creating parent of "+path)
		assert.Nil(t, os.WriteFile(full, []byte(content), 0644), "No error writing "+path)
	}
}

// readFile returns the content at a slash-relative path under root
func readFile(t *testing.T, root, path string) string {
	t.Helper()

	data, err := os.ReadFile(filepath.Join(root, filepath.FromSlash(path)))
	assert.Nil(t, err, "No error reading "+path)
	return string(data)
}

func newTestEngine(t *testing.T, root string) *Engine {
	t.Helper()

	engine, err := New(root, Options{Workers: 2, Logger: zerolog.Nop()})
	assert.Nil(t, err, "No error constructing engine")
	return engine
}
