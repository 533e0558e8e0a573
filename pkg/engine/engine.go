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

// Package engine orchestrates one collection run: throttle and lock gates,
// incremental scan, dedup, merge with the pending buffer, budgeted
// delivery, and the atomic state commit.
package engine

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/kraklabs/usagebeam/pkg/dedup"
	"github.com/kraklabs/usagebeam/pkg/delivery"
	"github.com/kraklabs/usagebeam/pkg/runlock"
	"github.com/kraklabs/usagebeam/pkg/scanner"
	"github.com/kraklabs/usagebeam/pkg/state"
	"github.com/kraklabs/usagebeam/pkg/usage"
)

// Outcome classifies how a run ended. Every outcome is a success from the
// host's point of view; the process exits 0 regardless.
type Outcome string

const (
	// OutcomeThrottled: a recent run already collected; nothing was done.
	OutcomeThrottled Outcome = "throttled"
	// OutcomeLockBusy: another process holds the run lock.
	OutcomeLockBusy Outcome = "lock_busy"
	// OutcomeNoop: nothing new to deliver.
	OutcomeNoop Outcome = "noop"
	// OutcomeSent: everything outgoing was delivered.
	OutcomeSent Outcome = "sent"
	// OutcomeDeferred: some records survived delivery and were buffered
	// for the next run.
	OutcomeDeferred Outcome = "deferred"
)

// Options configures one run.
type Options struct {
	// Username and ServerURL come from the host config file.
	Username  string
	ServerURL string

	// StateDir holds the state, buffer, and lock files.
	StateDir string

	// LogRoots overrides automatic root discovery when non-empty.
	LogRoots []string

	// Tuning. Zero values use the package defaults.
	BatchSize      int
	SendBudget     time.Duration
	RequestTimeout time.Duration
	Cooldown       time.Duration
	RetentionDays  int

	// FullScan ignores committed offsets (and the throttle gate) and
	// re-reads every discovered file from the start. Dedup still applies,
	// so a full scan re-sends nothing the index remembers.
	FullScan bool

	// Submitter replaces the HTTP client when set; used by tests.
	Submitter delivery.Submitter

	// OnFile, when set, is called before each file scan. The backfill
	// command hangs its progress bar on it.
	OnFile func(path string, index, total int)

	Logger *slog.Logger
}

// Result summarizes one run for diagnostics.
type Result struct {
	RunID   string
	Outcome Outcome

	FilesScanned    int
	FilesSkipped    int
	LinesRejected   int
	RecordsParsed   int
	Duplicates      int
	RecordsNew      int
	RecordsPending  int // loaded from the buffer at run start
	RecordsSent     int
	RecordsBuffered int // written back for the next run

	Duration time.Duration
}

// Run executes one collection run.
//
// It returns an error only for commit-path failures the caller may want to
// log; by then the pending buffer has already been re-persisted best-effort,
// and the caller is expected to exit 0 regardless.
func Run(ctx context.Context, opts Options) (*Result, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	runID := uuid.NewString()
	logger = logger.With("run_id", runID)

	started := time.Now()
	res := &Result{RunID: runID}
	defer func() { res.Duration = time.Since(started) }()

	store := state.NewStore(filepath.Join(opts.StateDir, state.StateFileName), logger)
	buffer := state.NewBuffer(filepath.Join(opts.StateDir, state.BufferFileName), logger)
	lock := runlock.New(filepath.Join(opts.StateDir, state.LockFileName), logger)

	// Throttle gate. Reads the state without the lock: a stale read here
	// only costs an extra no-op run, never correctness.
	if !opts.FullScan {
		st := store.Load()
		if runlock.Throttled(st.LastRunTimestamp, time.Now(), opts.Cooldown) {
			logger.Debug("run.throttled", "last_run_ms", st.LastRunTimestamp)
			res.Outcome = OutcomeThrottled
			return res, nil
		}
	}

	// Lock gate.
	if !lock.Acquire() {
		logger.Debug("run.lock_busy")
		res.Outcome = OutcomeLockBusy
		return res, nil
	}
	defer lock.Release()

	st := store.Load()
	index := dedup.FromSnapshot(st.RecentHashes)

	// Scan the newly appended region of every discovered file.
	roots := opts.LogRoots
	if len(roots) == 0 {
		roots = scanner.Roots()
	}
	files := scanner.Discover(roots, logger)

	reader := scanner.NewTailReader(logger)
	newOffsets := make(map[string]state.FileOffset, len(files))
	var collected []usage.Record

	for i, path := range files {
		if opts.OnFile != nil {
			opts.OnFile(path, i, len(files))
		}

		var prior *state.FileOffset
		if entry, ok := st.FileOffsets[path]; ok && !opts.FullScan {
			e := entry
			prior = &e
		}

		tail, err := reader.ReadNew(path, prior, func(rec *usage.Record) {
			day := rec.DayKey()
			if index.Contains(day, rec.InteractionHash) {
				res.Duplicates++
				return
			}
			index.Insert(day, rec.InteractionHash)
			collected = append(collected, *rec)
		})
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				// File vanished between discovery and read; its offset
				// entry is garbage-collected below by omission.
				logger.Debug("scan.file.vanished", "path", path)
			} else {
				// Unreadable this run: keep the committed offset so the
				// unread region is retried next time.
				logger.Warn("scan.file.unreadable", "path", path, "err", err)
				res.FilesSkipped++
				if prior != nil {
					newOffsets[path] = *prior
				}
			}
			continue
		}

		newOffsets[path] = tail.Entry
		res.FilesScanned++
		res.RecordsParsed += tail.Records
		res.LinesRejected += tail.Skipped
	}
	res.RecordsNew = len(collected)

	// Offsets for files no longer on disk were never added to newOffsets;
	// replacing the map is the garbage collection.
	st.FileOffsets = newOffsets

	// Read the pending buffer exactly once and clear it before delivery, so
	// a concurrent later run can never merge against records this run has
	// already taken ownership of.
	buffered := buffer.Load()
	res.RecordsPending = len(buffered)
	if err := buffer.Clear(); err != nil {
		logger.Warn("buffer.clear.failed", "err", err)
	}

	// Buffered first: older records ship before this run's.
	outgoing := make([]usage.Record, 0, len(buffered)+len(collected))
	outgoing = append(outgoing, buffered...)
	outgoing = append(outgoing, collected...)

	if len(outgoing) == 0 {
		res.Outcome = OutcomeNoop
		if err := commit(store, st, index, opts.RetentionDays); err != nil {
			logger.Error("state.commit.failed", "err", err)
			return res, err
		}
		logger.Info("run.complete", "outcome", res.Outcome, "files", res.FilesScanned)
		return res, nil
	}

	// From here until the survivors are written back, the outgoing records
	// exist only in memory. Any exit — error or panic — must re-persist
	// them, or they are gone for good.
	unsettled := outgoing
	settled := false
	defer func() {
		if !settled {
			if err := buffer.Replace(unsettled, time.Now()); err != nil {
				logger.Error("buffer.salvage.failed", "records", len(unsettled), "err", err)
			} else {
				logger.Warn("buffer.salvaged", "records", len(unsettled))
			}
		}
	}()

	submitter := opts.Submitter
	if submitter == nil {
		submitter = delivery.NewClient(opts.ServerURL, opts.Username, opts.RequestTimeout, logger)
	}
	sched := delivery.NewScheduler(submitter, logger)
	sched.BatchSize = opts.BatchSize
	sched.SendBudget = opts.SendBudget

	sent, unsent := sched.Deliver(ctx, outgoing)
	res.RecordsSent = sent
	res.RecordsBuffered = len(unsent)
	unsettled = unsent

	if err := buffer.Replace(unsent, time.Now()); err != nil {
		logger.Error("buffer.persist.failed", "records", len(unsent), "err", err)
		return res, err
	}
	settled = true

	if len(unsent) == 0 {
		res.Outcome = OutcomeSent
	} else {
		res.Outcome = OutcomeDeferred
	}

	if err := commit(store, st, index, opts.RetentionDays); err != nil {
		logger.Error("state.commit.failed", "err", err)
		return res, err
	}

	logger.Info("run.complete",
		"outcome", res.Outcome,
		"files", res.FilesScanned,
		"new", res.RecordsNew,
		"dups", res.Duplicates,
		"sent", res.RecordsSent,
		"deferred", res.RecordsBuffered,
	)
	return res, nil
}

// commit prunes dedup retention, stamps the run, and atomically persists
// the scan state. This is the single place lastRunTimestamp advances, so
// throttling only ever keys off normally terminated runs.
func commit(store *state.Store, st *state.ScanState, index *dedup.Index, retentionDays int) error {
	now := time.Now()
	index.Prune(now, retentionDays)
	st.RecentHashes = index.Snapshot()
	st.LastCleanup = now.UTC().Format(time.RFC3339Nano)
	st.LastRunTimestamp = now.UnixMilli()
	st.Version = state.SchemaVersion
	return store.Commit(st)
}
