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

package usage

import (
	"encoding/json"
	"errors"
	"strings"
	"time"
)

// Rejection reasons returned by ParseLine. Rejections are expected and
// silent: session logs interleave usage lines with other event kinds, and
// the reader simply advances past anything that is not a usage record.
var (
	ErrEmptyLine        = errors.New("empty line")
	ErrMalformed        = errors.New("malformed line")
	ErrMissingTimestamp = errors.New("missing timestamp")
	ErrBadTimestamp     = errors.New("unparseable timestamp")
	ErrMissingUsage     = errors.New("missing message.usage")
	ErrBadTokenCount    = errors.New("invalid token count")
)

// logLine mirrors the subset of the session-log line the agent consumes.
// Unknown fields are ignored by json.Unmarshal.
type logLine struct {
	Timestamp string `json:"timestamp"`
	SessionID string `json:"sessionId"`
	RequestID string `json:"requestId"`
	Message   *struct {
		ID    string `json:"id"`
		Model string `json:"model"`
		Usage *struct {
			InputTokens              *int64 `json:"input_tokens"`
			OutputTokens             *int64 `json:"output_tokens"`
			CacheCreationInputTokens int64  `json:"cache_creation_input_tokens"`
			CacheReadInputTokens     int64  `json:"cache_read_input_tokens"`
		} `json:"usage"`
	} `json:"message"`
}

// ParseLine decodes one session-log line into a Record.
//
// It performs no I/O. The returned error is one of the rejection reasons
// above; callers count rejections but never fail on them. Token counts must
// be integers (1.5 or "12" are malformed), input and output counts must be
// present, and all four counts must be non-negative.
func ParseLine(line string) (*Record, error) {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" {
		return nil, ErrEmptyLine
	}

	var raw logLine
	if err := json.Unmarshal([]byte(trimmed), &raw); err != nil {
		return nil, ErrMalformed
	}

	if raw.Timestamp == "" {
		return nil, ErrMissingTimestamp
	}
	ts, err := time.Parse(time.RFC3339, raw.Timestamp)
	if err != nil {
		return nil, ErrBadTimestamp
	}

	if raw.Message == nil || raw.Message.Usage == nil {
		return nil, ErrMissingUsage
	}
	u := raw.Message.Usage
	if u.InputTokens == nil || u.OutputTokens == nil {
		return nil, ErrBadTokenCount
	}
	if *u.InputTokens < 0 || *u.OutputTokens < 0 ||
		u.CacheCreationInputTokens < 0 || u.CacheReadInputTokens < 0 {
		return nil, ErrBadTokenCount
	}

	model := raw.Message.Model
	if model == "" {
		model = DefaultModel
	}

	return &Record{
		Timestamp:           raw.Timestamp,
		Model:               model,
		SessionID:           raw.SessionID,
		InputTokens:         *u.InputTokens,
		OutputTokens:        *u.OutputTokens,
		CacheCreationTokens: u.CacheCreationInputTokens,
		CacheReadTokens:     u.CacheReadInputTokens,
		InteractionHash:     Fingerprint(raw.Timestamp, raw.Message.ID, raw.RequestID),
		parsedTime:          ts,
	}, nil
}
