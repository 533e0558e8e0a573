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
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/schollz/progressbar/v3"
	flag "github.com/spf13/pflag"

	"github.com/kraklabs/usagebeam/internal/debuglog"
	"github.com/kraklabs/usagebeam/internal/errors"
	"github.com/kraklabs/usagebeam/internal/ui"
	"github.com/kraklabs/usagebeam/pkg/engine"
)

// runBackfill executes the 'backfill' CLI command: a full re-scan of every
// session log from offset zero.
//
// The dedup index is kept, so records already shipped within the retention
// window are not re-sent; older history is re-sent and deduplicated
// server-side on interaction hash. Useful after moving machines or after
// deleting the state file.
//
// Flags:
//   - --yes: skip the confirmation prompt
func runBackfill(args []string, globals GlobalFlags) {
	fs := flag.NewFlagSet("backfill", flag.ExitOnError)
	yes := fs.BoolP("yes", "y", false, "Skip confirmation prompt")
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: usagebeam backfill [options]

Description:
  Re-scan every discovered session log from the beginning, ignoring
  committed file offsets. Recent records are suppressed by the local dedup
  index; anything older than the retention window is re-sent and left to
  the server to deduplicate by interaction hash.

  Unlike collect, backfill is interactive: it shows progress and reports
  errors.

Options:
`)
		fs.PrintDefaults()
		fmt.Fprintf(os.Stderr, `
Examples:
  # Re-scan with confirmation
  usagebeam backfill

  # Non-interactive
  usagebeam backfill --yes

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
	if !cfg.Active() {
		errors.FatalError(errors.NewConfigError(
			"Collection is not active",
			"The agent is unconfigured or disabled",
			"Run 'usagebeam init' and 'usagebeam enable' first",
			nil,
		), globals.JSON)
	}

	if !*yes && !globals.JSON {
		fmt.Print("Re-scan all session logs from the beginning? [y/N]: ")
		line, _ := bufio.NewReader(os.Stdin).ReadString('\n')
		if answer := strings.ToLower(strings.TrimSpace(line)); answer != "y" && answer != "yes" {
			ui.Info("Aborted.")
			return
		}
	}

	logger := debuglog.Discard()
	if debuglog.Enabled() {
		if l, closeFn, err := debuglog.New(dir); err == nil {
			logger = l
			defer closeFn()
		}
	}

	progressCfg := NewProgressConfig(globals)
	var bar *progressbar.ProgressBar

	opts := engineOptions(cfg, dir, logger)
	opts.FullScan = true
	opts.OnFile = func(_ string, index, total int) {
		if bar == nil {
			bar = NewProgressBar(progressCfg, int64(total), "Scanning session logs")
		}
		if bar != nil {
			_ = bar.Set(index)
		}
	}

	result, err := engine.Run(context.Background(), opts)
	if bar != nil {
		_ = bar.Finish()
	}
	if err != nil {
		errors.FatalError(errors.NewStateError(
			"Backfill failed",
			"The run could not commit its state; unsent records were buffered where possible",
			"Check disk space and permissions on ~/.claude, then retry",
			err,
		), globals.JSON)
	}

	if globals.JSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(result)
		return
	}

	fmt.Println()
	ui.Header("Backfill Complete")
	fmt.Printf("Files scanned:   %s\n", ui.CountText(result.FilesScanned))
	fmt.Printf("Records parsed:  %s\n", ui.CountText(result.RecordsParsed))
	fmt.Printf("Duplicates:      %s\n", ui.CountText(result.Duplicates))
	fmt.Printf("Records sent:    %s\n", ui.CountText(result.RecordsSent))
	if result.RecordsBuffered > 0 {
		ui.Warningf("%d records deferred to the next run.", result.RecordsBuffered)
	}
	if result.FilesSkipped > 0 {
		ui.Warningf("%d files were unreadable and will be retried.", result.FilesSkipped)
	}
	fmt.Printf("Duration:        %s\n", ui.DimText(result.Duration.String()))
}
