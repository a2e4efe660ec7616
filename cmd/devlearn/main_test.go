package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func emptyConfig(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "devlearn.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  port: 9090\n"), 0o644))
	return path
}

func TestVersionCmd(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "devlearn "))
}

func TestCatalogList(t *testing.T) {
	cfg := emptyConfig(t)

	out, err := execute(t, "catalog", "list", "-c", cfg)
	require.NoError(t, err)
	for _, want := range []string{"KIND", "landing-page", "python-analyzer", "challenge"} {
		assert.Contains(t, out, want)
	}

	out, err = execute(t, "catalog", "list", "-c", cfg, "--kind", "template")
	require.NoError(t, err)
	assert.Contains(t, out, "mobile-ui")
	assert.NotContains(t, out, "python-analyzer")
}

func TestCatalogShow(t *testing.T) {
	cfg := emptyConfig(t)

	out, err := execute(t, "catalog", "show", "python-analyzer", "--tab", "python", "--plain", "-c", cfg)
	require.NoError(t, err)
	assert.Contains(t, out, "print(")

	out, err = execute(t, "catalog", "show", "landing-page", "--tab", "css", "-c", cfg)
	require.NoError(t, err)
	assert.Contains(t, out, "\x1b[", "highlighted output carries terminal escapes")

	out, err = execute(t, "catalog", "show", "landing-page", "--tab", "python", "-c", cfg)
	require.NoError(t, err)
	assert.Contains(t, out, "(no python)")

	_, err = execute(t, "catalog", "show", "nope", "-c", cfg)
	assert.Error(t, err)

	_, err = execute(t, "catalog", "show", "landing-page", "--tab", "ruby", "-c", cfg)
	assert.Error(t, err)
}

func TestComposeCmd(t *testing.T) {
	cfg := emptyConfig(t)

	out, err := execute(t, "compose", "landing-page", "-c", cfg)
	require.NoError(t, err)
	assert.Contains(t, out, "<!DOCTYPE html>")
	assert.Contains(t, out, "Welcome to the Future")

	out, err = execute(t, "compose", "python-analyzer", "--tab", "python", "-c", cfg)
	require.NoError(t, err)
	assert.Contains(t, out, "Run Python Code")

	file := filepath.Join(t.TempDir(), "preview.html")
	_, err = execute(t, "compose", "mobile-ui", "-o", file, "-c", cfg)
	require.NoError(t, err)
	data, err := os.ReadFile(file)
	require.NoError(t, err)
	assert.Contains(t, string(data), "<style>")
}

func TestRunWithoutRuntime(t *testing.T) {
	cfg := emptyConfig(t)
	src := filepath.Join(t.TempDir(), "hello.py")
	require.NoError(t, os.WriteFile(src, []byte(`print("hi")`), 0o644))

	_, err := execute(t, "run", src, "-c", cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to load Python environment")
}

func TestMissingConfigFile(t *testing.T) {
	_, err := execute(t, "catalog", "list", "-c", filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
