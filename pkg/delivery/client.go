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

// Package delivery ships usage records to the aggregation server in fixed
// batches under a strict wall-clock budget.
package delivery

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/kraklabs/usagebeam/pkg/usage"
)

// DefaultRequestTimeout bounds one submit request.
const DefaultRequestTimeout = 5 * time.Second

// submitPath is the server endpoint receiving usage batches.
const submitPath = "/api/usage/submit"

// Client posts usage batches to the aggregation server. The server is
// idempotent on interaction hash, so re-sending after a state loss is safe.
type Client struct {
	serverURL string
	username  string
	http      *http.Client
	logger    *slog.Logger
}

// NewClient creates a client for serverURL submitting on behalf of
// username. A zero timeout uses the default.
func NewClient(serverURL, username string, timeout time.Duration, logger *slog.Logger) *Client {
	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		serverURL: strings.TrimRight(serverURL, "/"),
		username:  username,
		http:      &http.Client{Timeout: timeout},
		logger:    logger,
	}
}

// submitPayload is the request body for one batch.
type submitPayload struct {
	Username string         `json:"username"`
	Usage    []usage.Record `json:"usage"`
}

// Submit posts one batch. Anything other than HTTP 200 is a failure; the
// response body is drained but otherwise ignored.
func (c *Client) Submit(ctx context.Context, records []usage.Record) error {
	body, err := json.Marshal(submitPayload{Username: c.username, Usage: records})
	if err != nil {
		return fmt.Errorf("encode batch: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.serverURL+submitPath, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("submit batch: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("submit batch: server returned %d", resp.StatusCode)
	}

	c.logger.Debug("deliver.batch.sent", "records", len(records))
	return nil
}
