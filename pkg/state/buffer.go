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
	"time"

	"github.com/kraklabs/usagebeam/pkg/usage"
	"github.com/natefinch/atomic"
)

// Buffer is the durable queue of records collected but not yet delivered.
// At most one buffer file exists per host; the engine reads it once per run,
// clears it immediately, and writes a new one only after delivery settles.
type Buffer struct {
	path   string
	logger *slog.Logger
}

// bufferDoc is the on-disk shape of the pending buffer.
type bufferDoc struct {
	LastAttempt string         `json:"lastAttempt"`
	Records     []usage.Record `json:"records"`
}

// NewBuffer creates a buffer store at path.
func NewBuffer(path string, logger *slog.Logger) *Buffer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Buffer{path: path, logger: logger}
}

// Path returns the buffer file path.
func (b *Buffer) Path() string {
	return b.path
}

// Load returns the buffered records, oldest first.
//
// An absent buffer is an empty queue. A corrupt buffer is discarded with a
// warning; the loss is bounded by one run's worth of records.
func (b *Buffer) Load() []usage.Record {
	data, err := os.ReadFile(b.path)
	if err != nil {
		if !os.IsNotExist(err) {
			b.logger.Warn("buffer.load.unreadable", "path", b.path, "err", err)
		}
		return nil
	}

	var doc bufferDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		b.logger.Warn("buffer.load.corrupt", "path", b.path, "err", err, "discarded", true)
		return nil
	}
	return doc.Records
}

// Replace atomically rewrites the buffer with records. An empty slice
// removes the file entirely, keeping "no pending work" and "no buffer file"
// the same observable condition.
func (b *Buffer) Replace(records []usage.Record, now time.Time) error {
	if len(records) == 0 {
		return b.Clear()
	}

	if err := os.MkdirAll(filepath.Dir(b.path), 0o750); err != nil {
		return fmt.Errorf("create buffer dir: %w", err)
	}

	doc := bufferDoc{
		LastAttempt: now.UTC().Format(time.RFC3339Nano),
		Records:     records,
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal buffer: %w", err)
	}

	if err := atomic.WriteFile(b.path, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("commit buffer: %w", err)
	}

	b.logger.Debug("buffer.replace", "path", b.path, "records", len(records))
	return nil
}

// Clear removes the buffer file. A missing file is not an error.
func (b *Buffer) Clear() error {
	if err := os.Remove(b.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("clear buffer: %w", err)
	}
	return nil
}
