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
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	flag "github.com/spf13/pflag"

	"github.com/kraklabs/usagebeam/internal/debuglog"
	"github.com/kraklabs/usagebeam/pkg/engine"
	"github.com/kraklabs/usagebeam/pkg/scanner"
)

// runCollect executes the 'collect' CLI command: one collection run.
//
// This is the hook entry point. It must never disturb the host session:
// no terminal output, and exit code 0 on every path — unconfigured,
// disabled, throttled, locked out, or crashed. Diagnostics go only to the
// debug log when USAGEBEAM_DEBUG is set.
//
// Flags:
//   - --metrics-addr: expose Prometheus metrics on this address for the
//     duration of the run (default: disabled)
func runCollect(args []string, _ GlobalFlags) {
	fs := flag.NewFlagSet("collect", flag.ContinueOnError)
	metricsAddr := fs.String("metrics-addr", "", "HTTP listen address for Prometheus metrics (empty to disable)")
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: usagebeam collect [options]

Description:
  Run one collection pass: scan session logs for new usage records,
  deduplicate them, and ship them to the configured server. Intended to be
  invoked by the host's session-end hook.

  collect is silent and always exits 0. When the agent is not configured,
  collection is disabled, a run finished within the last 30 seconds, or
  another collect holds the run lock, it simply does nothing.

Options:
`)
		fs.PrintDefaults()
		fmt.Fprintf(os.Stderr, `
Examples:
  # Normal hook invocation
  usagebeam collect

  # Watch a run with diagnostics
  USAGEBEAM_DEBUG=1 usagebeam collect
  tail ~/.claude/stats-debug.log

`)
	}
	if err := fs.Parse(args); err != nil {
		return
	}

	// Nothing below may take the process down nonzero; returning from here
	// lands back in main, which exits 0.
	defer func() {
		_ = recover()
	}()

	dir, err := stateDir()
	if err != nil {
		return
	}

	logger := debuglog.Discard()
	if debuglog.Enabled() {
		if l, closeFn, err := debuglog.New(dir); err == nil {
			logger = l
			defer closeFn()
		}
	}

	cfg, err := LoadHostConfig(dir)
	if err != nil {
		logger.Warn("config.load.failed", "err", err)
		return
	}
	if !cfg.Active() {
		logger.Debug("config.inactive")
		return
	}

	if *metricsAddr != "" {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.Handler())
			srv := &http.Server{Addr: *metricsAddr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}
			logger.Info("metrics.http.start", "addr", *metricsAddr, "path", "/metrics")
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Warn("metrics.http.error", "err", err)
			}
		}()
	}

	opts := engineOptions(cfg, dir, logger)
	if _, err := engine.Run(context.Background(), opts); err != nil {
		// Already salvaged what could be salvaged; the next run retries.
		logger.Error("run.failed", "err", err)
	}
}

// engineOptions builds the engine configuration from the host config and
// the optional tuning file. One point of truth for collect and backfill.
func engineOptions(cfg *HostConfig, dir string, logger *slog.Logger) engine.Options {
	tuning := LoadTuning(dir)
	// CLAUDE_CONFIG_DIR takes precedence over the tuning file's logRoots.
	logRoots := tuning.LogRoots
	if os.Getenv(scanner.RootsEnvVar) != "" {
		logRoots = nil
	}
	return engine.Options{
		Username:       cfg.Username,
		ServerURL:      cfg.ServerURL,
		StateDir:       dir,
		LogRoots:       logRoots,
		BatchSize:      tuning.BatchSize,
		SendBudget:     tuning.SendBudget.Duration,
		RequestTimeout: tuning.RequestTimeout.Duration,
		Cooldown:       tuning.Throttle.Duration,
		RetentionDays:  tuning.RetentionDays,
		Logger:         logger,
	}
}
