package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	cfg := "store:\n" +
		"  backend: local\n" +
		"  path: " + filepath.Join(dir, "store") + "\n" +
		"logging:\n" +
		"  file: " + filepath.Join(dir, "blobnav.log") + "\n" +
		"  level: debug\n"
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(cfg), 0644))
	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		configFlag, backendFlag, urlFlag = "", "", ""
		rootCmd.SetArgs(nil)
	})
	err := rootCmd.Execute()
	return out.String(), err
}

func TestVersion(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Equal(t, "blobnav dev\n", out)
}

func TestUploadThenResolve(t *testing.T) {
	config := writeConfig(t)
	file := filepath.Join(t.TempDir(), "note.txt")
	require.NoError(t, os.WriteFile(file, []byte("hello"), 0644))

	out, err := execute(t, "--config", config, "upload", file)
	require.NoError(t, err)
	assert.Contains(t, out, "✓ note.txt -> sha224-")

	out, err = execute(t, "--config", config, "resolve", "http://localhost:3179/ui/")
	require.NoError(t, err)
	assert.Contains(t, out, "* Search")
}

func TestUploadMissingFile(t *testing.T) {
	_, err := execute(t, "--config", writeConfig(t), "upload", "/does/not/exist")
	assert.Error(t, err)
}

func TestResolveOutsideRoot(t *testing.T) {
	_, err := execute(t, "--config", writeConfig(t), "resolve", "http://localhost:3179/status/")
	assert.Error(t, err)
}

func TestUnknownBackend(t *testing.T) {
	_, err := execute(t, "--config", writeConfig(t), "--backend", "ftp", "resolve", "http://localhost:3179/ui/")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown store backend")
}
