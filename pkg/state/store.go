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

package state

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/natefinch/atomic"
)

// Store reads and commits the scan state.
type Store struct {
	path   string
	logger *slog.Logger
}

// NewStore creates a store for the state file at path.
func NewStore(path string, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{path: path, logger: logger}
}

// Path returns the canonical state file path.
func (s *Store) Path() string {
	return s.path
}

// Load reads the persisted scan state, migrating older schemas.
//
// Load never fails: an absent file yields the default state (first run),
// and a corrupt file is logged and replaced by the default state. The
// resulting one-time full re-scan is bounded by the dedup index, or by the
// server's idempotency on interaction hash if that is gone too.
func (s *Store) Load() *ScanState {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			s.logger.Warn("state.load.unreadable", "path", s.path, "err", err)
		}
		return DefaultScanState()
	}

	var st ScanState
	if err := json.Unmarshal(data, &st); err != nil {
		s.logger.Warn("state.load.corrupt", "path", s.path, "err", err)
		return DefaultScanState()
	}

	st.migrate()
	return &st
}

// Commit atomically replaces the state file with st.
//
// The document is serialized to a sibling temp file and renamed over the
// canonical path; the rename is the commit point, so an interrupted commit
// leaves the previous version intact.
func (s *Store) Commit(st *ScanState) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o750); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}

	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}

	if err := atomic.WriteFile(s.path, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("commit state: %w", err)
	}

	s.logger.Debug("state.commit",
		"path", s.path,
		"files", len(st.FileOffsets),
		"dedup_days", len(st.RecentHashes),
	)
	return nil
}
