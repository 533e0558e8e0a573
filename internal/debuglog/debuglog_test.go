// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package debuglog

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnabled(t *testing.T) {
	for env, want := range map[string]bool{
		"": false, "0": false, "false": false, "off": false,
		"1": true, "true": true, "yes": true,
	} {
		t.Setenv(EnvVar, env)
		assert.Equal(t, want, Enabled(), "env %q", env)
	}
}

func TestNew_WritesToFile(t *testing.T) {
	dir := t.TempDir()
	logger, closeFn, err := New(dir)
	require.NoError(t, err)

	logger.Info("run.complete", "outcome", "sent", "records", 3)
	closeFn()

	data, err := os.ReadFile(filepath.Join(dir, FileName))
	require.NoError(t, err)
	assert.Contains(t, string(data), "run.complete")
	assert.Contains(t, string(data), "outcome=sent")
}

func TestNew_AppendsAcrossOpens(t *testing.T) {
	dir := t.TempDir()

	logger, closeFn, err := New(dir)
	require.NoError(t, err)
	logger.Info("first")
	closeFn()

	logger, closeFn, err = New(dir)
	require.NoError(t, err)
	logger.Info("second")
	closeFn()

	data, err := os.ReadFile(filepath.Join(dir, FileName))
	require.NoError(t, err)
	assert.Contains(t, string(data), "first")
	assert.Contains(t, string(data), "second")
}

func TestNew_RotatesOversizedLog(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, FileName)
	big := strings.Repeat("x", maxLogBytes+1)
	require.NoError(t, os.WriteFile(path, []byte(big), 0o640))

	_, closeFn, err := New(dir)
	require.NoError(t, err)
	closeFn()

	old, err := os.Stat(path + ".old")
	require.NoError(t, err)
	assert.Equal(t, int64(maxLogBytes+1), old.Size())

	fresh, err := os.Stat(path)
	require.NoError(t, err)
	assert.Zero(t, fresh.Size(), "new log starts empty")
}

func TestDiscard(t *testing.T) {
	// Must not panic and must not create files anywhere.
	Discard().Info("dropped", "k", "v")
}
