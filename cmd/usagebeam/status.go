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
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	flag "github.com/spf13/pflag"

	"github.com/kraklabs/usagebeam/internal/debuglog"
	"github.com/kraklabs/usagebeam/internal/errors"
	"github.com/kraklabs/usagebeam/internal/ui"
	"github.com/kraklabs/usagebeam/pkg/scanner"
	"github.com/kraklabs/usagebeam/pkg/state"
)

// StatusResult represents the agent status for JSON output.
type StatusResult struct {
	Configured   bool      `json:"configured"`
	Enabled      bool      `json:"enabled"`
	Username     string    `json:"username,omitempty"`
	ServerURL    string    `json:"server_url,omitempty"`
	StateDir     string    `json:"state_dir"`
	LogRoots     []string  `json:"log_roots"`
	TrackedFiles int       `json:"tracked_files"`
	DedupDays    int       `json:"dedup_days"`
	Fingerprints int       `json:"fingerprints"`
	LastRun      time.Time `json:"last_run,omitempty"`
	PendingCount int       `json:"pending_records"`
	Timestamp    time.Time `json:"timestamp"`
}

// runStatus executes the 'status' CLI command, displaying the agent's
// configuration, scan state, and pending-buffer summary.
//
// Examples:
//
//	usagebeam status           Display formatted status
//	usagebeam status --json    Output as JSON for programmatic use
func runStatus(args []string, globals GlobalFlags) {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: usagebeam status [options]

Description:
  Display the current status of the telemetry agent: configuration,
  tracked session-log files, dedup index size, last run, and the number
  of records waiting in the pending buffer.

Options:
`)
		fs.PrintDefaults()
		fmt.Fprintf(os.Stderr, `
Examples:
  # Show human-readable status
  usagebeam status

  # Output as JSON for programmatic use
  usagebeam status --json

  # Pipe to jq for specific field extraction
  usagebeam status --json | jq '.pending_records'

`)
	}
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

	logger := debuglog.Discard()
	st := state.NewStore(statePath(dir), logger).Load()
	pending := state.NewBuffer(bufferPath(dir), logger).Load()

	result := &StatusResult{
		Configured:   cfg != nil,
		StateDir:     dir,
		LogRoots:     scanner.Roots(),
		TrackedFiles: len(st.FileOffsets),
		DedupDays:    len(st.RecentHashes),
		PendingCount: len(pending),
		Timestamp:    time.Now(),
	}
	if cfg != nil {
		result.Enabled = cfg.Enabled
		result.Username = cfg.Username
		result.ServerURL = cfg.ServerURL
	}
	for _, hashes := range st.RecentHashes {
		result.Fingerprints += len(hashes)
	}
	if st.LastRunTimestamp > 0 {
		result.LastRun = time.UnixMilli(st.LastRunTimestamp)
	}

	if globals.JSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(result)
		return
	}
	printStatus(result)
}

// printStatus prints the status result as formatted text to stdout.
func printStatus(result *StatusResult) {
	ui.Header("usagebeam Status")

	if !result.Configured {
		ui.Warning("Not configured.")
		ui.Info("Run 'usagebeam init' to set up the agent.")
		return
	}

	enabledText := ui.DimText("disabled")
	if result.Enabled {
		enabledText = ui.Label("enabled")
	}
	fmt.Printf("%s     %s\n", ui.Label("Collection:"), enabledText)
	fmt.Printf("%s       %s\n", ui.Label("Username:"), result.Username)
	fmt.Printf("%s         %s\n", ui.Label("Server:"), ui.DimText(result.ServerURL))
	fmt.Printf("%s      %s\n", ui.Label("State dir:"), ui.DimText(result.StateDir))
	fmt.Println()

	ui.SubHeader("Scan state:")
	fmt.Printf("  Log roots:      %s\n", ui.CountText(len(result.LogRoots)))
	fmt.Printf("  Tracked files:  %s\n", ui.CountText(result.TrackedFiles))
	fmt.Printf("  Dedup days:     %s\n", ui.CountText(result.DedupDays))
	fmt.Printf("  Fingerprints:   %s\n", ui.CountText(result.Fingerprints))
	if result.LastRun.IsZero() {
		fmt.Printf("  Last run:       %s\n", ui.DimText("never"))
	} else {
		fmt.Printf("  Last run:       %s\n", ui.DimText(humanize.Time(result.LastRun)))
	}
	fmt.Println()

	if result.PendingCount > 0 {
		ui.Warningf("%d records pending delivery (will retry next run).", result.PendingCount)
	} else {
		ui.Success("No records pending delivery.")
	}
}
