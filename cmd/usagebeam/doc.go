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

// Package main implements the usagebeam CLI.
//
// usagebeam is a client-side telemetry agent for Claude Code. At the end of
// each session the host invokes it via a Stop hook; the agent scans the
// session logs under ~/.claude/projects/ for new token-usage records,
// deduplicates them against a 30-day fingerprint index, and posts them to a
// leaderboard server. Records that cannot be delivered in one run are
// buffered on disk and retried on the next trigger.
//
// # Quick Start
//
// Configure the agent:
//
//	usagebeam init --username alice --server https://usage.example.com
//
// Wire it into Claude Code:
//
//	usagebeam install-hook
//
// Check what it is doing:
//
//	usagebeam status
//
// # Commands
//
//	init           Create ~/.claude/stats-config.json
//	collect        Run one collection pass (the hook entry point)
//	status         Show scan state and pending-buffer summary
//	config         Print the effective configuration
//	enable         Turn collection on
//	disable        Turn collection off
//	backfill       Re-scan all session logs from the beginning
//	install-hook   Copy the binary into place and register the hook
//
// # Design
//
// The collect path is deliberately quiet: it prints nothing and always
// exits 0, whatever happens, so the interactive session is never disturbed.
// Concurrent triggers are coordinated with a 30-second throttle and an
// exclusive lock file; delivery runs under a 10-second wall-clock budget
// and defers the remainder to the next run rather than retrying.
//
// # Data Storage
//
// All agent files live in ~/.claude/:
//
//	stats-config.json         Username, server URL, enabled flag
//	stats-state.json          File offsets, dedup index, last run
//	stats-state.buffer.json   Records awaiting delivery
//	stats.lock                Run lock
//	stats-debug.log           Diagnostics (USAGEBEAM_DEBUG=1), 10 MB rotation
//	usagebeam.yaml            Optional tuning overrides
//
// See usagebeam --help for complete usage information.
package main
