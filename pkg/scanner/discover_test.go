// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package scanner

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kraklabs/usagebeam/internal/debuglog"
)

// makeRoot creates a log root with a projects/ subtree containing files.
func makeRoot(t *testing.T, files ...string) string {
	t.Helper()
	root := t.TempDir()
	for _, f := range files {
		path := filepath.Join(root, projectsDir, f)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o750))
		require.NoError(t, os.WriteFile(path, nil, 0o600))
	}
	return root
}

func TestRoots_EnvOverride(t *testing.T) {
	a := makeRoot(t, "p1/s.jsonl")
	b := t.TempDir() // no projects/ subdir
	t.Setenv(RootsEnvVar, a+" , "+b)

	roots := Roots()
	assert.Equal(t, []string{a}, roots, "roots without projects/ are dropped")
}

func TestRoots_FallbackToWellKnown(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv(RootsEnvVar, "")
	t.Setenv("XDG_CONFIG_HOME", "")

	require.NoError(t, os.MkdirAll(filepath.Join(home, ".claude", projectsDir), 0o750))
	roots := Roots()
	assert.Equal(t, []string{filepath.Join(home, ".claude")}, roots)
}

func TestRoots_XDGConfigHome(t *testing.T) {
	xdg := t.TempDir()
	t.Setenv("HOME", t.TempDir())
	t.Setenv(RootsEnvVar, "")
	t.Setenv("XDG_CONFIG_HOME", xdg)

	require.NoError(t, os.MkdirAll(filepath.Join(xdg, "claude", projectsDir), 0o750))
	roots := Roots()
	assert.Contains(t, roots, filepath.Join(xdg, "claude"))
}

func TestDiscover_FindsOnlySessionLogs(t *testing.T) {
	root := makeRoot(t,
		"proj-a/one.jsonl",
		"proj-a/nested/two.jsonl",
		"proj-b/three.jsonl",
		"proj-b/notes.txt",
		"proj-b/data.json",
	)
	// Files outside projects/ are invisible.
	require.NoError(t, os.WriteFile(filepath.Join(root, "stray.jsonl"), nil, 0o600))

	files := Discover([]string{root}, debuglog.Discard())
	require.Len(t, files, 3)
	for _, f := range files {
		assert.True(t, filepath.IsAbs(f))
		assert.Contains(t, f, projectsDir)
	}
	assert.IsIncreasing(t, files, "scan order is deterministic")
}

func TestDiscover_EmptyRoots(t *testing.T) {
	assert.Empty(t, Discover(nil, debuglog.Discard()))
}
