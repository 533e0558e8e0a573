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

package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kraklabs/usagebeam/internal/debuglog"
	"github.com/kraklabs/usagebeam/pkg/runlock"
	"github.com/kraklabs/usagebeam/pkg/state"
	"github.com/kraklabs/usagebeam/pkg/usage"
)

// harness wires a temp state dir, a temp log root, and a stub server for
// one engine under test.
type harness struct {
	t        *testing.T
	stateDir string
	logRoot  string
	logFile  string

	mu       sync.Mutex
	status   int
	requests [][]string // interaction hashes per POST, in arrival order
	server   *httptest.Server
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		t:        t,
		stateDir: t.TempDir(),
		logRoot:  t.TempDir(),
		status:   http.StatusOK,
	}
	h.logFile = filepath.Join(h.logRoot, "projects", "demo", "session.jsonl")
	require.NoError(t, os.MkdirAll(filepath.Dir(h.logFile), 0o750))

	h.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var payload struct {
			Username string         `json:"username"`
			Usage    []usage.Record `json:"usage"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		assert.Equal(t, "alice", payload.Username)

		h.mu.Lock()
		defer h.mu.Unlock()
		if h.status != http.StatusOK {
			w.WriteHeader(h.status)
			return
		}
		hashes := make([]string, len(payload.Usage))
		for i, rec := range payload.Usage {
			hashes[i] = rec.InteractionHash
		}
		h.requests = append(h.requests, hashes)
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(h.server.Close)
	return h
}

func (h *harness) setStatus(code int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.status = code
}

func (h *harness) posts() [][]string {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([][]string, len(h.requests))
	copy(out, h.requests)
	return out
}

func (h *harness) sentHashes() []string {
	var all []string
	for _, batch := range h.posts() {
		all = append(all, batch...)
	}
	return all
}

func (h *harness) options() Options {
	return Options{
		Username:  "alice",
		ServerURL: h.server.URL,
		StateDir:  h.stateDir,
		LogRoots:  []string{h.logRoot},
		Cooldown:  time.Nanosecond, // effectively disabled unless a test opts in
		Logger:    debuglog.Discard(),
	}
}

func (h *harness) run(opts Options) *Result {
	h.t.Helper()
	res, err := Run(context.Background(), opts)
	require.NoError(h.t, err)
	return res
}

// logDay is the UTC date stamped on generated log lines. It follows the
// clock so the fixtures stay inside the dedup retention window that every
// commit prunes to.
var logDay = time.Now().UTC().Format("2006-01-02")

// appendLines writes numbered log lines and bumps mtime so appends within
// one test are always visible to the stat check.
func (h *harness) appendLines(nums ...int) {
	h.t.Helper()
	f, err := os.OpenFile(h.logFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	require.NoError(h.t, err)
	for _, n := range nums {
		_, err := fmt.Fprintf(f, `{"timestamp":"%sT10:%02d:00Z","requestId":"req-%d",`+
			`"message":{"id":"msg-%d","usage":{"input_tokens":%d,"output_tokens":1}}}`+"\n", logDay, n%60, n, n, n)
		require.NoError(h.t, err)
	}
	require.NoError(h.t, f.Close())
	future := time.Now().Add(time.Duration(nums[len(nums)-1]) * time.Second)
	require.NoError(h.t, os.Chtimes(h.logFile, future, future))
}

func (h *harness) loadState() *state.ScanState {
	return state.NewStore(filepath.Join(h.stateDir, state.StateFileName), debuglog.Discard()).Load()
}

func (h *harness) loadBuffer() []usage.Record {
	return state.NewBuffer(filepath.Join(h.stateDir, state.BufferFileName), debuglog.Discard()).Load()
}

func (h *harness) bufferExists() bool {
	_, err := os.Stat(filepath.Join(h.stateDir, state.BufferFileName))
	return err == nil
}

func TestRun_ColdStart(t *testing.T) {
	h := newHarness(t)
	h.appendLines(1, 2, 3)

	res := h.run(h.options())

	assert.Equal(t, OutcomeSent, res.Outcome)
	assert.Equal(t, 3, res.RecordsNew)
	assert.Equal(t, 3, res.RecordsSent)
	require.Len(t, h.posts(), 1, "three records fit one batch")

	st := h.loadState()
	info, err := os.Stat(h.logFile)
	require.NoError(t, err)
	entry, ok := st.FileOffsets[h.logFile]
	require.True(t, ok)
	assert.Equal(t, info.Size(), entry.Offset)
	assert.Equal(t, info.Size(), entry.Size)

	fingerprints := 0
	for _, hashes := range st.RecentHashes {
		fingerprints += len(hashes)
	}
	assert.Equal(t, 3, fingerprints)
	assert.False(t, h.bufferExists(), "nothing pending")
	assert.Positive(t, st.LastRunTimestamp)
}

func TestRun_SecondRunReadsOnlyAppendedLine(t *testing.T) {
	h := newHarness(t)
	h.appendLines(1, 2, 3)
	h.run(h.options())

	h.appendLines(4)
	res := h.run(h.options())

	assert.Equal(t, 1, res.RecordsNew)
	assert.Equal(t, 1, res.RecordsSent)
	posts := h.posts()
	require.Len(t, posts, 2)
	assert.Len(t, posts[1], 1, "second run ships only the appended record")

	fingerprints := 0
	for _, hashes := range h.loadState().RecentHashes {
		fingerprints += len(hashes)
	}
	assert.Equal(t, 4, fingerprints, "dedup grows by one")
}

func TestRun_TruncationRescan(t *testing.T) {
	h := newHarness(t)
	h.appendLines(1, 2, 3)
	h.run(h.options())

	require.NoError(t, os.Truncate(h.logFile, 0))
	h.appendLines(5, 6)
	res := h.run(h.options())

	assert.Equal(t, 2, res.RecordsNew)
	assert.Equal(t, 2, res.RecordsSent)
	assert.Len(t, h.sentHashes(), 5, "old three plus new two, each exactly once")
}

func TestRun_DedupAcrossRescan(t *testing.T) {
	h := newHarness(t)
	h.appendLines(1, 2)
	h.run(h.options())

	// Same content rescanned from zero must not ship again.
	opts := h.options()
	opts.FullScan = true
	res := h.run(opts)

	assert.Equal(t, 2, res.Duplicates)
	assert.Zero(t, res.RecordsNew)
	assert.Len(t, h.posts(), 1, "no second POST")
}

func TestRun_ServerDownThenUp(t *testing.T) {
	h := newHarness(t)
	h.appendLines(1, 2)
	h.setStatus(http.StatusInternalServerError)

	res := h.run(h.options())
	assert.Equal(t, OutcomeDeferred, res.Outcome)
	assert.Zero(t, res.RecordsSent)
	assert.Equal(t, 2, res.RecordsBuffered)
	require.Len(t, h.loadBuffer(), 2)
	assert.Empty(t, h.posts())

	// State still committed: offsets advanced, fingerprints recorded, so
	// the next run does not re-collect — it drains the buffer.
	h.setStatus(http.StatusOK)
	res = h.run(h.options())
	assert.Equal(t, OutcomeSent, res.Outcome)
	assert.Equal(t, 2, res.RecordsPending)
	assert.Equal(t, 2, res.RecordsSent)
	assert.Zero(t, res.RecordsNew)
	assert.False(t, h.bufferExists(), "buffer cleared after drain")
	assert.Len(t, h.sentHashes(), 2, "each record delivered exactly once")
}

func TestRun_BufferedRecordsShipFirst(t *testing.T) {
	h := newHarness(t)
	h.appendLines(1, 2)
	h.setStatus(http.StatusInternalServerError)
	h.run(h.options())

	h.setStatus(http.StatusOK)
	h.appendLines(3)
	res := h.run(h.options())

	assert.Equal(t, 3, res.RecordsSent)
	sent := h.sentHashes()
	require.Len(t, sent, 3)
	// Buffered (older) records precede the freshly collected one.
	buffered := usage.Fingerprint(logDay+"T10:01:00Z", "msg-1", "req-1")
	fresh := usage.Fingerprint(logDay+"T10:03:00Z", "msg-3", "req-3")
	assert.Equal(t, buffered, sent[0])
	assert.Equal(t, fresh, sent[2])
}

// slowSubmitter delays every batch and counts what it accepted.
type slowSubmitter struct {
	delay time.Duration
	mu    sync.Mutex
	sent  int
}

func (s *slowSubmitter) Submit(_ context.Context, records []usage.Record) error {
	time.Sleep(s.delay)
	s.mu.Lock()
	s.sent += len(records)
	s.mu.Unlock()
	return nil
}

func TestRun_BudgetExhaustionDefersRemainder(t *testing.T) {
	h := newHarness(t)
	nums := make([]int, 200)
	for i := range nums {
		nums[i] = i
	}
	h.appendLines(nums...)

	slow := &slowSubmitter{delay: 40 * time.Millisecond}
	opts := h.options()
	opts.Submitter = slow
	opts.BatchSize = 20
	opts.SendBudget = 100 * time.Millisecond

	res := h.run(opts)
	assert.Equal(t, OutcomeDeferred, res.Outcome)
	assert.Greater(t, res.RecordsSent, 0)
	assert.Less(t, res.RecordsSent, 200, "budget caps the batches sent")
	assert.Equal(t, 200-res.RecordsSent, res.RecordsBuffered)
	assert.Len(t, h.loadBuffer(), res.RecordsBuffered)
	assert.Positive(t, h.loadState().LastRunTimestamp, "budget exhaustion still stamps the run")

	// Next run drains the deferred tail without re-collecting.
	opts.Submitter = nil // real client against the stub server
	opts.BatchSize = 0
	opts.SendBudget = 0
	res = h.run(opts)
	assert.Equal(t, OutcomeSent, res.Outcome)
	assert.Zero(t, res.RecordsNew)
	assert.False(t, h.bufferExists())
}

func TestRun_Throttled(t *testing.T) {
	h := newHarness(t)
	h.appendLines(1)

	opts := h.options()
	opts.Cooldown = 30 * time.Second
	first := h.run(opts)
	assert.Equal(t, OutcomeSent, first.Outcome)

	h.appendLines(2)
	second := h.run(opts)
	assert.Equal(t, OutcomeThrottled, second.Outcome)
	assert.Zero(t, second.RecordsNew)
	assert.Len(t, h.posts(), 1, "throttled run touches nothing")
}

func TestRun_LockBusy(t *testing.T) {
	h := newHarness(t)
	h.appendLines(1)

	// A fresh foreign lock keeps the engine out.
	holder := runlock.New(filepath.Join(h.stateDir, state.LockFileName), debuglog.Discard())
	require.True(t, holder.Acquire())
	defer holder.Release()

	res := h.run(h.options())
	assert.Equal(t, OutcomeLockBusy, res.Outcome)
	assert.Empty(t, h.posts())
	assert.Zero(t, h.loadState().LastRunTimestamp, "state not committed by the loser")
}

func TestRun_LockReleasedAfterRun(t *testing.T) {
	h := newHarness(t)
	h.appendLines(1)
	h.run(h.options())

	_, err := os.Stat(filepath.Join(h.stateDir, state.LockFileName))
	assert.True(t, os.IsNotExist(err))
}

func TestRun_NoopStillStampsRun(t *testing.T) {
	h := newHarness(t)

	res := h.run(h.options())
	assert.Equal(t, OutcomeNoop, res.Outcome)
	assert.Positive(t, h.loadState().LastRunTimestamp)
	assert.False(t, h.bufferExists())
}

func TestRun_VanishedFileOffsetGarbageCollected(t *testing.T) {
	h := newHarness(t)
	h.appendLines(1)
	h.run(h.options())
	require.Len(t, h.loadState().FileOffsets, 1)

	require.NoError(t, os.Remove(h.logFile))
	h.run(h.options())
	assert.Empty(t, h.loadState().FileOffsets, "offset entry dropped with the file")
}

// panicSubmitter blows up mid-delivery to exercise the salvage path.
type panicSubmitter struct{ calls int }

func (p *panicSubmitter) Submit(context.Context, []usage.Record) error {
	p.calls++
	panic("connection state corrupted")
}

func TestRun_PanicDuringDeliverySalvagesBuffer(t *testing.T) {
	h := newHarness(t)
	h.appendLines(1, 2, 3)

	opts := h.options()
	opts.Submitter = &panicSubmitter{}

	require.Panics(t, func() { _, _ = Run(context.Background(), opts) })

	// No record may be lost: everything outgoing landed in the buffer, and
	// the lock was released on the way out.
	assert.Len(t, h.loadBuffer(), 3)
	_, err := os.Stat(filepath.Join(h.stateDir, state.LockFileName))
	assert.True(t, os.IsNotExist(err))

	// The interrupted run never committed state, so the next run re-scans
	// the file and also drains the salvaged buffer. The same three hashes
	// go out twice — at-least-once, resolved by the server's idempotency on
	// interaction hash.
	res := h.run(h.options())
	assert.Equal(t, OutcomeSent, res.Outcome)
	sent := h.sentHashes()
	assert.Len(t, sent, 6)
	unique := make(map[string]struct{})
	for _, hash := range sent {
		unique[hash] = struct{}{}
	}
	assert.Len(t, unique, 3, "no hash beyond the original three")
}
