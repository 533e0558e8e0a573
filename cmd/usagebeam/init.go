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
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	flag "github.com/spf13/pflag"

	"github.com/kraklabs/usagebeam/internal/errors"
	"github.com/kraklabs/usagebeam/internal/ui"
	"github.com/kraklabs/usagebeam/pkg/state"
)

// runInit executes the 'init' CLI command, creating the agent configuration.
//
// Flags:
//   - --username: leaderboard username
//   - --server: aggregation server base URL
//   - --force: overwrite an existing configuration
//   - -y: non-interactive mode; fails if username or server is missing
//
// Examples:
//
//	usagebeam init                                      Interactive setup
//	usagebeam init --username alice --server URL -y     Scripted setup
func runInit(args []string, globals GlobalFlags) {
	fs := flag.NewFlagSet("init", flag.ExitOnError)
	username := fs.String("username", "", "Leaderboard username")
	server := fs.String("server", "", "Aggregation server base URL")
	force := fs.Bool("force", false, "Overwrite existing configuration")
	nonInteractive := fs.BoolP("yes", "y", false, "Non-interactive mode, no prompts")
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: usagebeam init [options]

Description:
  Create the agent configuration file (~/.claude/stats-config.json) with
  collection enabled. Prompts for missing values unless -y is given.

Options:
`)
		fs.PrintDefaults()
		fmt.Fprintf(os.Stderr, `
Examples:
  # Interactive setup
  usagebeam init

  # Scripted setup
  usagebeam init --username alice --server https://usage.example.com -y

`)
	}
	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	dir, err := stateDir()
	if err != nil {
		errors.FatalError(err, globals.JSON)
	}

	configPath := filepath.Join(dir, state.ConfigFileName)
	if _, err := os.Stat(configPath); err == nil && !*force {
		errors.FatalError(errors.NewInputError(
			"Configuration already exists",
			fmt.Sprintf("%s already exists", configPath),
			"Use 'usagebeam init --force' to overwrite it",
		), globals.JSON)
	}

	cfg := &HostConfig{
		Username:  *username,
		ServerURL: strings.TrimRight(*server, "/"),
		Enabled:   true,
	}

	if !*nonInteractive {
		reader := bufio.NewReader(os.Stdin)
		if cfg.Username == "" {
			cfg.Username = prompt(reader, "Leaderboard username")
		}
		if cfg.ServerURL == "" {
			cfg.ServerURL = strings.TrimRight(prompt(reader, "Server URL"), "/")
		}
	}

	if cfg.Username == "" || cfg.ServerURL == "" {
		errors.FatalError(errors.NewInputError(
			"Incomplete configuration",
			"Both a username and a server URL are required",
			"Provide --username and --server, or run without -y to be prompted",
		), globals.JSON)
	}

	if err := SaveHostConfig(dir, cfg); err != nil {
		errors.FatalError(err, globals.JSON)
	}

	if globals.JSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(cfg)
		return
	}
	ui.Successf("Configuration written to %s", configPath)
	ui.Info("Run 'usagebeam install-hook' to wire the agent into Claude Code.")
}

// prompt reads one line of input with a label.
func prompt(reader *bufio.Reader, label string) string {
	fmt.Printf("%s: ", label)
	line, err := reader.ReadString('\n')
	if err != nil {
		return ""
	}
	return strings.TrimSpace(line)
}

// runSetEnabled flips the enabled flag for the 'enable' and 'disable'
// commands.
func runSetEnabled(enabled bool, globals GlobalFlags) {
	dir, err := stateDir()
	if err != nil {
		errors.FatalError(err, globals.JSON)
	}

	cfg, err := LoadHostConfig(dir)
	if err != nil {
		errors.FatalError(err, globals.JSON)
	}
	if cfg == nil {
		errors.FatalError(errors.NewConfigError(
			"Not configured",
			"No configuration file found",
			"Run 'usagebeam init' first",
			nil,
		), globals.JSON)
	}

	cfg.Enabled = enabled
	if err := SaveHostConfig(dir, cfg); err != nil {
		errors.FatalError(err, globals.JSON)
	}

	if enabled {
		ui.Success("Collection enabled.")
	} else {
		ui.Success("Collection disabled.")
	}
}

// runConfig executes the 'config' CLI command, printing the effective
// configuration including tuning overrides.
func runConfig(args []string, globals GlobalFlags) {
	fs := flag.NewFlagSet("config", flag.ExitOnError)
	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	dir, err := stateDir()
	if err != nil {
		errors.FatalError(err, globals.JSON)
	}

	cfg, err := LoadHostConfig(dir)
	if err != nil {
		errors.FatalError(err, globals.JSON)
	}
	tuning := LoadTuning(dir)

	if globals.JSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(map[string]any{
			"config": cfg,
			"tuning": map[string]any{
				"logLevel":       tuning.LogLevel,
				"batchSize":      tuning.BatchSize,
				"sendBudget":     tuning.SendBudget.String(),
				"requestTimeout": tuning.RequestTimeout.String(),
				"throttle":       tuning.Throttle.String(),
				"retentionDays":  tuning.RetentionDays,
				"logRoots":       tuning.LogRoots,
			},
		})
		return
	}

	ui.Header("usagebeam Configuration")
	if cfg == nil {
		ui.Warning("Not configured.")
		ui.Info("Run 'usagebeam init' to set up the agent.")
		return
	}
	fmt.Printf("%s   %s\n", ui.Label("Username:"), cfg.Username)
	fmt.Printf("%s     %s\n", ui.Label("Server:"), cfg.ServerURL)
	fmt.Printf("%s    %v\n", ui.Label("Enabled:"), cfg.Enabled)
	if tuning.hasOverrides() {
		fmt.Println()
		ui.SubHeader("Tuning overrides:")
		printTuning(tuning)
	}
}

// printTuning prints only the tuning fields that deviate from defaults.
func printTuning(t Tuning) {
	if t.BatchSize > 0 {
		fmt.Printf("  batchSize:      %d\n", t.BatchSize)
	}
	if t.SendBudget.Duration > 0 {
		fmt.Printf("  sendBudget:     %s\n", t.SendBudget)
	}
	if t.RequestTimeout.Duration > 0 {
		fmt.Printf("  requestTimeout: %s\n", t.RequestTimeout)
	}
	if t.Throttle.Duration > 0 {
		fmt.Printf("  throttle:       %s\n", t.Throttle)
	}
	if t.RetentionDays > 0 {
		fmt.Printf("  retentionDays:  %d\n", t.RetentionDays)
	}
	for _, root := range t.LogRoots {
		fmt.Printf("  logRoot:        %s\n", root)
	}
	if t.LogLevel != "" {
		fmt.Printf("  logLevel:       %s\n", t.LogLevel)
	}
}
