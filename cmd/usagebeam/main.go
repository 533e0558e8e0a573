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

// Package main implements the usagebeam CLI for collecting token-usage
// telemetry from Claude Code session logs and shipping it to a leaderboard
// server.
//
// Usage:
//
//	usagebeam init                 Create ~/.claude/stats-config.json
//	usagebeam collect              Run one collection (hook entry point)
//	usagebeam status [--json]      Show agent state
//	usagebeam install-hook         Wire the agent into the host's Stop hook
package main

import (
	"fmt"
	"os"

	flag "github.com/spf13/pflag"

	"github.com/kraklabs/usagebeam/internal/ui"
)

// Version information (set via ldflags during build)
var (
	version = "dev"     // Version string
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// GlobalFlags holds the global CLI flags that apply to all commands.
type GlobalFlags struct {
	JSON    bool // Output in JSON format (for applicable commands)
	NoColor bool // Disable color output
	Verbose int  // Verbosity level: 0=normal, 1=-v (info), 2=-vv (debug)
	Quiet   bool // Suppress non-essential output
}

func main() {
	var (
		showVersion = flag.BoolP("version", "V", false, "Show version and exit")
		jsonOutput  = flag.Bool("json", false, "Output in JSON format (for applicable commands)")
		noColor     = flag.Bool("no-color", false, "Disable color output")
		verbose     = flag.CountP("verbose", "v", "Increase verbosity (-v for info, -vv for debug)")
		quiet       = flag.BoolP("quiet", "q", false, "Suppress non-essential output")
	)

	// Stop parsing at the first non-flag argument (the command name) so
	// subcommand-specific flags like "init --force" reach the subcommand
	// handlers instead of being rejected by the global parser.
	flag.SetInterspersed(false)

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, `usagebeam - Claude Code token-usage telemetry agent

usagebeam harvests token-usage records from Claude Code session logs,
deduplicates them, and ships them to a leaderboard server. It is designed
to run from the host's session-end hook: fast, silent, and always exiting
zero so the interactive session is never disturbed.

Usage:
  usagebeam <command> [options]

Commands:
  init          Create the agent configuration (~/.claude/stats-config.json)
  collect       Run one collection pass (the hook entry point)
  status        Show configuration, scan state, and pending-buffer summary
  config        Print the effective configuration
  enable        Turn collection on
  disable       Turn collection off
  backfill      Re-scan all session logs from the beginning
  install-hook  Copy the binary into place and register the session hook

Global Options:
  --json            Output in JSON format (for applicable commands)
  --no-color        Disable color output (respects NO_COLOR env var)
  -v, --verbose     Increase verbosity (-v for info, -vv for debug)
  -q, --quiet       Suppress non-essential output
  -V, --version     Show version and exit

Examples:
  usagebeam init --username alice --server https://usage.example.com
  usagebeam collect
  usagebeam status --json
  usagebeam backfill --yes

Data Storage:
  State lives in ~/.claude/ (stats-state.json, stats-state.buffer.json).
  Set USAGEBEAM_DEBUG=1 to write diagnostics to ~/.claude/stats-debug.log.

Environment Variables:
  CLAUDE_CONFIG_DIR    Comma-separated session-log roots (default:
                       $XDG_CONFIG_HOME/claude and ~/.claude)
  USAGEBEAM_STATE_DIR  Override the state directory (default: ~/.claude)
  USAGEBEAM_DEBUG      Enable the diagnostic log

For detailed command help: usagebeam <command> --help

`)
	}

	flag.Parse()

	if *showVersion {
		fmt.Printf("usagebeam version %s\n", version)
		fmt.Printf("commit: %s\n", commit)
		fmt.Printf("built: %s\n", date)
		os.Exit(0)
	}

	if os.Getenv("NO_COLOR") != "" {
		*noColor = true
	}

	if *quiet && *verbose > 0 {
		fmt.Fprintf(os.Stderr, "Error: cannot use --quiet and --verbose together\n")
		os.Exit(1)
	}

	// JSON mode auto-enables quiet to keep stdout parseable
	if *jsonOutput {
		*quiet = true
	}

	globals := GlobalFlags{
		JSON:    *jsonOutput,
		NoColor: *noColor,
		Verbose: *verbose,
		Quiet:   *quiet,
	}

	ui.InitColors(globals.NoColor)

	args := flag.Args()
	if len(args) == 0 {
		flag.Usage()
		os.Exit(1)
	}

	command := args[0]
	cmdArgs := args[1:]

	switch command {
	case "init":
		runInit(cmdArgs, globals)
	case "collect":
		runCollect(cmdArgs, globals)
	case "status":
		runStatus(cmdArgs, globals)
	case "config":
		runConfig(cmdArgs, globals)
	case "enable":
		runSetEnabled(true, globals)
	case "disable":
		runSetEnabled(false, globals)
	case "backfill":
		runBackfill(cmdArgs, globals)
	case "install-hook":
		runInstallHook(cmdArgs, globals)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", command)
		flag.Usage()
		os.Exit(1)
	}
}
