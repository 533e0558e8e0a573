// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package state

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kraklabs/usagebeam/internal/debuglog"
	"github.com/kraklabs/usagebeam/pkg/usage"
)

func newTestBuffer(t *testing.T) *Buffer {
	t.Helper()
	return NewBuffer(filepath.Join(t.TempDir(), BufferFileName), debuglog.Discard())
}

func testRecords(n int) []usage.Record {
	recs := make([]usage.Record, n)
	for i := range recs {
		ts := time.Date(2025, 6, 1, 10, 0, i, 0, time.UTC).Format(time.RFC3339)
		recs[i] = usage.Record{
			Timestamp:       ts,
			Model:           "claude-sonnet-4",
			InputTokens:     int64(i),
			OutputTokens:    int64(i * 2),
			InteractionHash: usage.Fingerprint(ts, "msg", "req"),
		}
	}
	return recs
}

func TestBuffer_LoadAbsent(t *testing.T) {
	assert.Nil(t, newTestBuffer(t).Load())
}

func TestBuffer_ReplaceLoadRoundTrip(t *testing.T) {
	buf := newTestBuffer(t)
	recs := testRecords(3)
	require.NoError(t, buf.Replace(recs, time.Now()))

	got := buf.Load()
	require.Len(t, got, 3)
	assert.Equal(t, recs[0].InteractionHash, got[0].InteractionHash)
	assert.Equal(t, recs[2].OutputTokens, got[2].OutputTokens)
}

func TestBuffer_ReplaceEmptyRemovesFile(t *testing.T) {
	buf := newTestBuffer(t)
	require.NoError(t, buf.Replace(testRecords(1), time.Now()))
	require.NoError(t, buf.Replace(nil, time.Now()))

	_, err := os.Stat(buf.Path())
	assert.True(t, os.IsNotExist(err))
}

func TestBuffer_Clear(t *testing.T) {
	buf := newTestBuffer(t)
	require.NoError(t, buf.Replace(testRecords(2), time.Now()))
	require.NoError(t, buf.Clear())
	assert.Nil(t, buf.Load())

	// Clearing an already-absent buffer is fine.
	require.NoError(t, buf.Clear())
}

func TestBuffer_LoadCorruptDiscards(t *testing.T) {
	buf := newTestBuffer(t)
	require.NoError(t, os.MkdirAll(filepath.Dir(buf.Path()), 0o750))
	require.NoError(t, os.WriteFile(buf.Path(), []byte(`{"records":[{`), 0o600))
	assert.Nil(t, buf.Load())
}
