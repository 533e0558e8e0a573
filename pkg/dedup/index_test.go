// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package dedup

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestIndex_InsertContains(t *testing.T) {
	idx := New()
	assert.False(t, idx.Contains("2025-06-01", "aaa"))

	idx.Insert("2025-06-01", "aaa")
	assert.True(t, idx.Contains("2025-06-01", "aaa"))
	assert.False(t, idx.Contains("2025-06-02", "aaa"))
	assert.False(t, idx.Contains("2025-06-01", "bbb"))

	// Re-insert is a no-op.
	idx.Insert("2025-06-01", "aaa")
	assert.Equal(t, 1, idx.Size())
}

func TestIndex_SnapshotRoundTrip(t *testing.T) {
	idx := New()
	idx.Insert("2025-06-01", "bbb")
	idx.Insert("2025-06-01", "aaa")
	idx.Insert("2025-06-02", "ccc")

	snap := idx.Snapshot()
	assert.Equal(t, []string{"aaa", "bbb"}, snap["2025-06-01"], "fingerprints are sorted per day")

	reloaded := FromSnapshot(snap)
	assert.True(t, reloaded.Contains("2025-06-01", "aaa"))
	assert.True(t, reloaded.Contains("2025-06-01", "bbb"))
	assert.True(t, reloaded.Contains("2025-06-02", "ccc"))
	assert.Equal(t, 2, reloaded.Days())
	assert.Equal(t, 3, reloaded.Size())
}

func TestIndex_PruneRetention(t *testing.T) {
	now := time.Date(2025, 7, 1, 12, 0, 0, 0, time.UTC)

	idx := New()
	idx.Insert("2025-05-31", "old")    // 31 days back: pruned
	idx.Insert("2025-06-01", "edge")   // exactly 30 days back: kept
	idx.Insert("2025-06-30", "recent") // kept
	idx.Insert("2025-07-01", "today")  // kept

	dropped := idx.Prune(now, 30)
	assert.Equal(t, 1, dropped)
	assert.False(t, idx.Contains("2025-05-31", "old"))
	assert.True(t, idx.Contains("2025-06-01", "edge"))
	assert.True(t, idx.Contains("2025-06-30", "recent"))
	assert.True(t, idx.Contains("2025-07-01", "today"))
}

func TestIndex_PruneDefaultRetention(t *testing.T) {
	now := time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC)
	idx := New()
	idx.Insert("2025-01-01", "ancient")
	idx.Prune(now, 0)
	assert.Equal(t, 0, idx.Days())
}
