// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package main

import (
	"os"

	"github.com/schollz/progressbar/v3"
)

// ProgressConfig controls progress-bar rendering for interactive commands.
type ProgressConfig struct {
	Enabled bool
}

// NewProgressConfig derives progress settings from the global flags.
// Bars are suppressed in quiet and JSON modes so machine output stays clean.
func NewProgressConfig(globals GlobalFlags) ProgressConfig {
	return ProgressConfig{Enabled: !globals.Quiet && !globals.JSON}
}

// NewProgressBar creates a progress bar, or nil when disabled. Callers must
// tolerate the nil.
func NewProgressBar(cfg ProgressConfig, total int64, description string) *progressbar.ProgressBar {
	if !cfg.Enabled {
		return nil
	}
	return progressbar.NewOptions64(total,
		progressbar.OptionSetDescription(description),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionShowCount(),
		progressbar.OptionClearOnFinish(),
	)
}
