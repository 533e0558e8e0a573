// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package delivery

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kraklabs/usagebeam/internal/debuglog"
	"github.com/kraklabs/usagebeam/pkg/usage"
)

// stubSubmitter records batches and fails or delays on demand.
type stubSubmitter struct {
	batches   [][]usage.Record
	failAfter int // fail the Nth call (0-based); -1 never fails
	delay     time.Duration
}

func (s *stubSubmitter) Submit(_ context.Context, records []usage.Record) error {
	if s.delay > 0 {
		time.Sleep(s.delay)
	}
	if s.failAfter >= 0 && len(s.batches) == s.failAfter {
		return errors.New("server returned 500")
	}
	batch := make([]usage.Record, len(records))
	copy(batch, records)
	s.batches = append(s.batches, batch)
	return nil
}

func records(n int) []usage.Record {
	recs := make([]usage.Record, n)
	for i := range recs {
		recs[i] = usage.Record{
			Timestamp:       fmt.Sprintf("2025-06-01T10:00:00.%03dZ", i%1000),
			InteractionHash: fmt.Sprintf("hash-%04d", i),
		}
	}
	return recs
}

func TestDeliver_AllInOneBatch(t *testing.T) {
	stub := &stubSubmitter{failAfter: -1}
	s := NewScheduler(stub, debuglog.Discard())

	sent, unsent := s.Deliver(context.Background(), records(3))
	assert.Equal(t, 3, sent)
	assert.Empty(t, unsent)
	require.Len(t, stub.batches, 1)
	assert.Len(t, stub.batches[0], 3)
}

func TestDeliver_BatchesInOrder(t *testing.T) {
	stub := &stubSubmitter{failAfter: -1}
	s := NewScheduler(stub, debuglog.Discard())
	s.BatchSize = 10

	sent, unsent := s.Deliver(context.Background(), records(25))
	assert.Equal(t, 25, sent)
	assert.Empty(t, unsent)
	require.Len(t, stub.batches, 3)
	assert.Len(t, stub.batches[0], 10)
	assert.Len(t, stub.batches[1], 10)
	assert.Len(t, stub.batches[2], 5)
	assert.Equal(t, "hash-0000", stub.batches[0][0].InteractionHash)
	assert.Equal(t, "hash-0010", stub.batches[1][0].InteractionHash)
	assert.Equal(t, "hash-0024", stub.batches[2][4].InteractionHash)
}

func TestDeliver_StopsOnFirstFailure(t *testing.T) {
	stub := &stubSubmitter{failAfter: 1}
	s := NewScheduler(stub, debuglog.Discard())
	s.BatchSize = 10

	sent, unsent := s.Deliver(context.Background(), records(30))
	assert.Equal(t, 10, sent, "only the batch before the failure is sent")
	require.Len(t, unsent, 20, "tail includes the failed batch, contiguous")
	assert.Equal(t, "hash-0010", unsent[0].InteractionHash)
	assert.Equal(t, "hash-0029", unsent[19].InteractionHash)
	require.Len(t, stub.batches, 1, "no retry after a failure")
}

func TestDeliver_EmptyInput(t *testing.T) {
	stub := &stubSubmitter{failAfter: -1}
	s := NewScheduler(stub, debuglog.Discard())

	sent, unsent := s.Deliver(context.Background(), nil)
	assert.Zero(t, sent)
	assert.Empty(t, unsent)
	assert.Empty(t, stub.batches)
}

func TestDeliver_BudgetExhaustion(t *testing.T) {
	// Each batch takes ~30ms against a 100ms budget: at most a handful of
	// batches fit, and the remainder must come back as a contiguous tail.
	stub := &stubSubmitter{failAfter: -1, delay: 30 * time.Millisecond}
	s := NewScheduler(stub, debuglog.Discard())
	s.BatchSize = 10
	s.SendBudget = 100 * time.Millisecond

	sent, unsent := s.Deliver(context.Background(), records(1000))
	assert.Greater(t, sent, 0, "budget admits at least one batch")
	assert.Less(t, sent, 1000, "budget stops the run early")
	assert.Equal(t, 1000-sent, len(unsent))
	assert.Equal(t, stub.batches[len(stub.batches)-1][s.BatchSize-1].InteractionHash,
		records(1000)[sent-1].InteractionHash, "tail starts exactly where sending stopped")
}

func TestDeliver_BudgetCheckedBeforeFirstBatch(t *testing.T) {
	stub := &stubSubmitter{failAfter: -1}
	s := NewScheduler(stub, debuglog.Discard())
	s.SendBudget = time.Nanosecond

	time.Sleep(time.Millisecond)
	sent, unsent := s.Deliver(context.Background(), records(5))
	// The first elapsed check may or may not admit one batch depending on
	// timer resolution; what matters is the tail stays contiguous.
	assert.Equal(t, 5, sent+len(unsent))
}
