// Copyright 2025 KrakLabs
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <https://www.gnu.org/licenses/>.
//
// For commercial licensing, contact: licensing@kraklabs.com
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/natefinch/atomic"
	flag "github.com/spf13/pflag"

	"github.com/kraklabs/usagebeam/internal/errors"
	"github.com/kraklabs/usagebeam/internal/ui"
)

// hookEvent is the host hook the agent attaches to: fired when a session
// ends.
const hookEvent = "Stop"

// runInstallHook executes the 'install-hook' CLI command.
//
// Installation is two plain file operations: copy the running binary into
// ~/.claude/bin/, and add a Stop-hook entry to ~/.claude/settings.json that
// invokes 'usagebeam collect'. Both steps are idempotent.
func runInstallHook(args []string, globals GlobalFlags) {
	fs := flag.NewFlagSet("install-hook", flag.ExitOnError)
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: usagebeam install-hook

Description:
  Copy this binary to ~/.claude/bin/usagebeam and register a session-end
  hook in ~/.claude/settings.json that runs 'usagebeam collect'.

  Running install-hook again after upgrading the binary refreshes the
  installed copy.

`)
	}
	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	dir, err := stateDir()
	if err != nil {
		errors.FatalError(err, globals.JSON)
	}

	installed, err := installBinary(dir)
	if err != nil {
		errors.FatalError(errors.NewPermissionError(
			"Cannot install binary",
			fmt.Sprintf("Failed to copy the agent into %s", filepath.Join(dir, "bin")),
			"Check permissions on ~/.claude",
			err,
		), globals.JSON)
	}

	changed, err := registerHook(dir, installed)
	if err != nil {
		errors.FatalError(errors.NewPermissionError(
			"Cannot update settings",
			fmt.Sprintf("Failed to edit %s", filepath.Join(dir, "settings.json")),
			"Check that settings.json is valid JSON and writable",
			err,
		), globals.JSON)
	}

	ui.Successf("Installed %s", installed)
	if changed {
		ui.Successf("Registered %s hook in %s", hookEvent, filepath.Join(dir, "settings.json"))
	} else {
		ui.Info("Hook already registered.")
	}
}

// installBinary copies the currently running executable into dir/bin and
// returns the installed path.
func installBinary(dir string) (string, error) {
	self, err := os.Executable()
	if err != nil {
		return "", fmt.Errorf("locate executable: %w", err)
	}

	binDir := filepath.Join(dir, "bin")
	if err := os.MkdirAll(binDir, 0o750); err != nil {
		return "", fmt.Errorf("create bin dir: %w", err)
	}

	target := filepath.Join(binDir, "usagebeam")
	if same, err := filepath.Abs(self); err == nil && same == target {
		return target, nil
	}

	src, err := os.Open(self)
	if err != nil {
		return "", fmt.Errorf("open source binary: %w", err)
	}
	defer func() { _ = src.Close() }()

	data, err := io.ReadAll(src)
	if err != nil {
		return "", fmt.Errorf("read source binary: %w", err)
	}
	if err := atomic.WriteFile(target, bytes.NewReader(data)); err != nil {
		return "", fmt.Errorf("write binary: %w", err)
	}
	if err := os.Chmod(target, 0o755); err != nil {
		return "", fmt.Errorf("chmod binary: %w", err)
	}
	return target, nil
}

// registerHook adds the collect hook to settings.json unless an entry
// invoking usagebeam is already present. Returns whether the file changed.
func registerHook(dir, binary string) (bool, error) {
	settingsPath := filepath.Join(dir, "settings.json")
	command := binary + " collect"

	settings := make(map[string]any)
	if data, err := os.ReadFile(settingsPath); err == nil {
		if err := json.Unmarshal(data, &settings); err != nil {
			return false, fmt.Errorf("parse settings: %w", err)
		}
	} else if !os.IsNotExist(err) {
		return false, fmt.Errorf("read settings: %w", err)
	}

	hooks, _ := settings["hooks"].(map[string]any)
	if hooks == nil {
		hooks = make(map[string]any)
	}
	entries, _ := hooks[hookEvent].([]any)

	for _, entry := range entries {
		if strings.Contains(fmt.Sprint(entry), "usagebeam") {
			return false, nil
		}
	}

	entries = append(entries, map[string]any{
		"hooks": []any{
			map[string]any{"type": "command", "command": command},
		},
	})
	hooks[hookEvent] = entries
	settings["hooks"] = hooks

	data, err := json.MarshalIndent(settings, "", "  ")
	if err != nil {
		return false, fmt.Errorf("encode settings: %w", err)
	}
	if err := atomic.WriteFile(settingsPath, bytes.NewReader(data)); err != nil {
		return false, fmt.Errorf("write settings: %w", err)
	}
	return true, nil
}
