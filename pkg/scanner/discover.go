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

// Package scanner discovers session log files and reads their appended
// tails incrementally, tracking per-file byte offsets.
package scanner

import (
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// RootsEnvVar names one or more comma-separated root directories holding
// session logs. When unset, discovery falls back to the well-known host
// locations.
const RootsEnvVar = "CLAUDE_CONFIG_DIR"

// projectsDir is the subdirectory of each root that holds session logs.
const projectsDir = "projects"

// logSuffix is the session-log file extension.
const logSuffix = ".jsonl"

// Roots resolves the log root directories. Only roots whose projects/
// subdirectory exists are returned, so a freshly installed host with no
// sessions yields an empty slice rather than errors downstream.
func Roots() []string {
	var candidates []string
	if env := os.Getenv(RootsEnvVar); env != "" {
		for _, part := range strings.Split(env, ",") {
			if p := strings.TrimSpace(part); p != "" {
				candidates = append(candidates, p)
			}
		}
	} else {
		if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
			candidates = append(candidates, filepath.Join(xdg, "claude"))
		}
		if home, err := os.UserHomeDir(); err == nil {
			candidates = append(candidates, filepath.Join(home, ".claude"))
		}
	}

	var roots []string
	for _, c := range candidates {
		info, err := os.Stat(filepath.Join(c, projectsDir))
		if err != nil || !info.IsDir() {
			continue
		}
		roots = append(roots, c)
	}
	return roots
}

// Discover walks the projects/ subdirectory of each root and returns the
// absolute paths of all session log files, sorted for a deterministic scan
// order. Unreadable subtrees are skipped, not fatal.
func Discover(roots []string, logger *slog.Logger) []string {
	if logger == nil {
		logger = slog.Default()
	}

	seen := make(map[string]struct{})
	for _, root := range roots {
		base := filepath.Join(root, projectsDir)
		err := filepath.WalkDir(base, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				logger.Debug("scan.discover.skip", "path", path, "err", err)
				if d != nil && d.IsDir() {
					return fs.SkipDir
				}
				return nil
			}
			if d.IsDir() || !strings.HasSuffix(d.Name(), logSuffix) {
				return nil
			}
			abs, err := filepath.Abs(path)
			if err != nil {
				abs = path
			}
			seen[abs] = struct{}{}
			return nil
		})
		if err != nil {
			logger.Debug("scan.discover.root_failed", "root", base, "err", err)
		}
	}

	files := make([]string, 0, len(seen))
	for f := range seen {
		files = append(files, f)
	}
	sort.Strings(files)
	return files
}
