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

// Package runlock coordinates concurrent agent triggers on one host with a
// throttle gate and an exclusive lock file. Failing either gate is a normal
// outcome, not an error: the losing process simply exits quietly.
package runlock

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"time"
)

// Coordination constants. Contending processes exit fast rather than queue,
// and a crashed holder's lock is reclaimable after StaleAfter.
const (
	DefaultAcquireBudget = 1 * time.Second
	DefaultRetryInterval = 50 * time.Millisecond
	DefaultStaleAfter    = 10 * time.Second
)

// lockDoc is the lock file payload. Presence of the file is the claim; the
// timestamp exists only for staleness detection.
type lockDoc struct {
	PID       int   `json:"pid"`
	Timestamp int64 `json:"timestamp"`
}

// Lock is an exclusive-create lock file.
type Lock struct {
	path   string
	logger *slog.Logger

	// Overridable in tests; zero values fall back to the defaults above.
	AcquireBudget time.Duration
	RetryInterval time.Duration
	StaleAfter    time.Duration

	held bool
}

// New creates a lock at path.
func New(path string, logger *slog.Logger) *Lock {
	if logger == nil {
		logger = slog.Default()
	}
	return &Lock{path: path, logger: logger}
}

// Acquire attempts to claim the lock, retrying within the acquisition
// budget and reclaiming stale locks. It returns true when the lock is held.
// Returning false is the coordination semantic, not a failure: another
// process owns the run.
func (l *Lock) Acquire() bool {
	budget := l.AcquireBudget
	if budget == 0 {
		budget = DefaultAcquireBudget
	}
	interval := l.RetryInterval
	if interval == 0 {
		interval = DefaultRetryInterval
	}

	deadline := time.Now().Add(budget)
	for {
		if l.tryCreate() {
			l.held = true
			return true
		}
		l.reclaimStale()
		if time.Now().After(deadline) {
			l.logger.Debug("lock.busy", "path", l.path)
			return false
		}
		time.Sleep(interval)
	}
}

// Release removes the lock file. Safe to call on every exit path; it does
// nothing when the lock is not held.
func (l *Lock) Release() {
	if !l.held {
		return
	}
	l.held = false
	if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
		l.logger.Warn("lock.release.failed", "path", l.path, "err", err)
	}
}

// tryCreate exclusive-creates the lock file with this process's claim.
func (l *Lock) tryCreate() bool {
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o640)
	if err != nil {
		return false
	}
	doc := lockDoc{PID: os.Getpid(), Timestamp: time.Now().UnixMilli()}
	data, _ := json.Marshal(doc)
	_, werr := f.Write(data)
	cerr := f.Close()
	if werr != nil || cerr != nil {
		// A claim we could not record is a claim we do not trust others to
		// judge stale correctly; give it up.
		_ = os.Remove(l.path)
		return false
	}
	return true
}

// reclaimStale deletes the lock file when its embedded timestamp is older
// than the staleness threshold, or when its content is unreadable garbage
// (a crashed writer). The next Acquire iteration races for the fresh claim.
func (l *Lock) reclaimStale() {
	staleAfter := l.StaleAfter
	if staleAfter == 0 {
		staleAfter = DefaultStaleAfter
	}

	data, err := os.ReadFile(l.path)
	if err != nil {
		return
	}

	var doc lockDoc
	stale := false
	if err := json.Unmarshal(data, &doc); err != nil {
		stale = true
	} else {
		age := time.Since(time.UnixMilli(doc.Timestamp))
		stale = age > staleAfter
	}
	if !stale {
		return
	}

	l.logger.Info("lock.stale.reclaimed", "path", l.path, "holder_pid", doc.PID)
	_ = os.Remove(l.path)
}

// String describes the lock for diagnostics.
func (l *Lock) String() string {
	return fmt.Sprintf("runlock(%s)", l.path)
}
