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

package scanner

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/kraklabs/usagebeam/pkg/state"
	"github.com/kraklabs/usagebeam/pkg/usage"
)

// maxLineBytes bounds a single log line. Session lines carrying full tool
// transcripts can run well past bufio's 64 KB default.
const maxLineBytes = 4 * 1024 * 1024

// TailReader reads the newly appended region of session log files.
type TailReader struct {
	logger *slog.Logger
}

// NewTailReader creates a reader.
func NewTailReader(logger *slog.Logger) *TailReader {
	if logger == nil {
		logger = slog.Default()
	}
	return &TailReader{logger: logger}
}

// TailResult summarizes one file read.
type TailResult struct {
	// Entry is the offset entry to commit on success.
	Entry state.FileOffset

	// Records and Skipped count emitted records and rejected lines in the
	// region read this run.
	Records int
	Skipped int

	// Truncated is set when the file shrank since the prior run and the
	// read restarted from offset zero.
	Truncated bool
}

// ReadNew streams usage records parsed from the region of path appended
// since prior, invoking emit for each. With a nil prior the whole file is
// read. The returned entry reflects the file's stat at open time; commit it
// only after the run succeeds.
//
// A stat or read failure returns an error and no entry: the caller must
// leave the prior offset untouched so the region is retried next run (or
// drop the entry entirely if the file vanished, which the error reports as
// errors.Is(err, fs.ErrNotExist)).
//
// A line still being written when the read reaches end of region is seen
// incomplete, rejected by the parser, and then skipped forever once the
// offset advances past it. The host writer appends whole lines and flushes
// per line, so in practice only a crash mid-write loses a line.
func (r *TailReader) ReadNew(path string, prior *state.FileOffset, emit func(*usage.Record)) (*TailResult, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}

	entry := state.FileOffset{
		Offset:  info.Size(),
		Size:    info.Size(),
		MTimeMs: info.ModTime().UnixMilli(),
	}

	if prior != nil && prior.Size == entry.Size && prior.MTimeMs == entry.MTimeMs {
		// Nothing appended since the last run.
		return &TailResult{Entry: *prior}, nil
	}

	res := &TailResult{Entry: entry}
	var start int64
	if prior != nil {
		if entry.Size < prior.Size {
			res.Truncated = true
			r.logger.Info("scan.file.truncated",
				"path", path,
				"prior_size", prior.Size,
				"size", entry.Size,
			)
		} else {
			start = prior.Offset
		}
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	// Read exactly [start, size) so the committed offset matches the bytes
	// consumed even if the writer appends during the scan; anything newer
	// is picked up next run.
	section := io.NewSectionReader(f, start, entry.Size-start)
	sc := bufio.NewScanner(section)
	sc.Buffer(make([]byte, 64*1024), maxLineBytes)

	for sc.Scan() {
		rec, err := usage.ParseLine(sc.Text())
		if err != nil {
			res.Skipped++
			r.logger.Debug("scan.line.rejected", "path", path, "reason", err)
			continue
		}
		res.Records++
		emit(rec)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	linesParsed.Add(float64(res.Records))
	linesRejected.Add(float64(res.Skipped))
	bytesRead.Add(float64(entry.Size - start))
	if res.Truncated {
		truncations.Inc()
	}

	r.logger.Debug("scan.file.read",
		"path", path,
		"from", start,
		"to", entry.Size,
		"records", res.Records,
		"skipped", res.Skipped,
	)
	return res, nil
}
