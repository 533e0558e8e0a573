// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package main

import (
	"os"
	"path/filepath"

	"github.com/kraklabs/usagebeam/internal/errors"
	"github.com/kraklabs/usagebeam/pkg/state"
)

// stateDirEnvVar overrides the state directory, mainly for tests and
// sandboxed installs.
const stateDirEnvVar = "USAGEBEAM_STATE_DIR"

// stateDir resolves the directory holding the config, state, buffer, lock,
// and debug log files: USAGEBEAM_STATE_DIR > ~/.claude.
func stateDir() (string, error) {
	if envDir := os.Getenv(stateDirEnvVar); envDir != "" {
		return absPath(envDir)
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", errors.NewInternalError(
			"Cannot determine home directory",
			"Operating system did not provide user home directory path",
			"Check your system configuration or set HOME environment variable",
			err,
		)
	}
	return filepath.Join(home, ".claude"), nil
}

// statePath returns the scan-state file path inside dir.
func statePath(dir string) string {
	return filepath.Join(dir, state.StateFileName)
}

// bufferPath returns the pending-buffer file path inside dir.
func bufferPath(dir string) string {
	return filepath.Join(dir, state.BufferFileName)
}

func absPath(path string) (string, error) {
	if filepath.IsAbs(path) {
		return filepath.Clean(path), nil
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	return filepath.Clean(abs), nil
}
