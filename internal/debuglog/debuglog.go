// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package debuglog wires slog to the on-disk diagnostic log.
//
// The agent never writes to the host terminal at runtime, so the diagnostic
// file is its only channel. Logging is off unless USAGEBEAM_DEBUG is set;
// the file rotates once it passes 10 MB, keeping a single .old generation.
package debuglog

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

const (
	// EnvVar enables the diagnostic log when set to a truthy value.
	EnvVar = "USAGEBEAM_DEBUG"

	// FileName is the diagnostic log file inside the state directory.
	FileName = "stats-debug.log"

	maxLogBytes = 10 * 1024 * 1024
)

// Enabled reports whether diagnostic logging was requested via environment.
func Enabled() bool {
	switch strings.ToLower(os.Getenv(EnvVar)) {
	case "", "0", "false", "off":
		return false
	}
	return true
}

// Discard returns a logger that drops everything.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// New opens the diagnostic log in dir and returns a logger writing to it,
// plus a close function. Rotation happens at open time: a file already past
// the size cap is renamed to <name>.old, replacing any previous generation.
func New(dir string) (*slog.Logger, func(), error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, nil, fmt.Errorf("create log dir: %w", err)
	}

	path := filepath.Join(dir, FileName)
	rotate(path)

	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o640)
	if err != nil {
		return nil, nil, fmt.Errorf("open debug log: %w", err)
	}

	logger := slog.New(slog.NewTextHandler(f, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
	closeFn := func() { _ = f.Close() }
	return logger, closeFn, nil
}

// rotate renames path to path.old when it exceeds the size cap.
func rotate(path string) {
	info, err := os.Stat(path)
	if err != nil || info.Size() < maxLogBytes {
		return
	}
	_ = os.Rename(path, path+".old")
}
