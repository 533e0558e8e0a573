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

// Package state persists the agent's scan state and pending buffer.
//
// Both documents live under the host state directory and are committed with
// a write-temp-then-rename protocol; a reader either sees the previous
// version in full or the next one in full. Readers tolerate absence and
// corruption by falling back to defaults.
package state

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// SchemaVersion is the current major version of the scan-state schema.
const SchemaVersion = 4

// Canonical file names inside the state directory.
const (
	StateFileName  = "stats-state.json"
	BufferFileName = "stats-state.buffer.json"
	LockFileName   = "stats.lock"
	ConfigFileName = "stats-config.json"
)

// FileOffset is the committed read position for one tracked log file.
// After a successful run Offset equals Size and both match the file's stat
// at commit time; a later stat with a smaller size signals truncation.
type FileOffset struct {
	Offset  int64 `json:"offset"`
	Size    int64 `json:"size"`
	MTimeMs int64 `json:"mtime"`
}

// SchemaVersionField decodes the persisted schema version.
//
// Early agent builds wrote the version as a display string ("3.0.1");
// comparison must be numeric on the major component so that 10 > 4. The
// field accepts a JSON number or a string and keeps only the major.
type SchemaVersionField int

// UnmarshalJSON implements json.Unmarshaler.
func (v *SchemaVersionField) UnmarshalJSON(data []byte) error {
	var n int
	if err := json.Unmarshal(data, &n); err == nil {
		*v = SchemaVersionField(n)
		return nil
	}

	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("schema version is neither number nor string: %s", data)
	}
	major, _, _ := strings.Cut(s, ".")
	n, err := strconv.Atoi(strings.TrimSpace(major))
	if err != nil {
		return fmt.Errorf("schema version %q has no numeric major", s)
	}
	*v = SchemaVersionField(n)
	return nil
}

// MarshalJSON implements json.Marshaler. The version is always written back
// as a bare number.
func (v SchemaVersionField) MarshalJSON() ([]byte, error) {
	return json.Marshal(int(v))
}

// ScanState is the canonical persisted document: schema version, last
// retention prune, last successful run, per-file offsets, and the dedup
// index in serialized form.
type ScanState struct {
	Version          SchemaVersionField    `json:"version"`
	LastCleanup      string                `json:"lastCleanup"`
	LastRunTimestamp int64                 `json:"lastRunTimestamp"`
	FileOffsets      map[string]FileOffset `json:"fileOffsets"`
	RecentHashes     map[string][]string   `json:"recentHashes"`
}

// DefaultScanState returns the state a first run starts from.
func DefaultScanState() *ScanState {
	return &ScanState{
		Version:      SchemaVersion,
		FileOffsets:  make(map[string]FileOffset),
		RecentHashes: make(map[string][]string),
	}
}

// migrate upgrades a loaded state to the current schema in place. Older
// versions gain defaulted sub-fields; the version is rewritten on the next
// commit. States from a newer major are left untouched apart from map
// initialization, on the assumption that fields are only ever added.
func (s *ScanState) migrate() {
	if s.FileOffsets == nil {
		s.FileOffsets = make(map[string]FileOffset)
	}
	if s.RecentHashes == nil {
		s.RecentHashes = make(map[string][]string)
	}
	if int(s.Version) < SchemaVersion {
		s.Version = SchemaVersion
	}
}
