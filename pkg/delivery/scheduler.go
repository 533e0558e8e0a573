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

package delivery

import (
	"context"
	"log/slog"
	"time"

	"github.com/kraklabs/usagebeam/pkg/usage"
)

// Scheduler defaults. The agent runs at session end, in the user's
// terminal-exit path: the budget keeps the worst case short, and failed
// batches defer to the next run instead of retrying.
const (
	DefaultBatchSize  = 200
	DefaultSendBudget = 10 * time.Second
)

// Submitter posts one batch of records.
type Submitter interface {
	Submit(ctx context.Context, records []usage.Record) error
}

// Scheduler slices records into fixed batches and submits them in order
// until the wall-clock budget runs out or a batch fails.
type Scheduler struct {
	submitter Submitter
	logger    *slog.Logger

	// Zero values fall back to the defaults above.
	BatchSize  int
	SendBudget time.Duration
}

// NewScheduler creates a scheduler delivering through submitter.
func NewScheduler(submitter Submitter, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{submitter: submitter, logger: logger}
}

// Deliver sends records in input order and returns the count sent plus the
// contiguous unsent tail.
//
// Per batch: if the budget has elapsed, stop. Otherwise submit once — no
// retry. The first failure stops delivery immediately, so the tail always
// starts at the failed batch. The budget is checked before each request,
// not enforced mid-request; one in-flight request may overrun it by at most
// the per-request timeout.
func (s *Scheduler) Deliver(ctx context.Context, records []usage.Record) (int, []usage.Record) {
	batchSize := s.BatchSize
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	budget := s.SendBudget
	if budget <= 0 {
		budget = DefaultSendBudget
	}

	start := time.Now()
	sent := 0
	for sent < len(records) {
		if elapsed := time.Since(start); elapsed >= budget {
			s.logger.Info("deliver.budget.exhausted",
				"sent", sent,
				"remaining", len(records)-sent,
				"elapsed", elapsed,
			)
			budgetExhaustions.Inc()
			break
		}

		end := sent + batchSize
		if end > len(records) {
			end = len(records)
		}
		batch := records[sent:end]

		if err := s.submitter.Submit(ctx, batch); err != nil {
			s.logger.Warn("deliver.batch.failed",
				"sent", sent,
				"batch_size", len(batch),
				"err", err,
			)
			sendFailures.Inc()
			break
		}

		sent = end
		batchesSent.Inc()
		recordsSent.Add(float64(len(batch)))
	}

	return sent, records[sent:]
}
