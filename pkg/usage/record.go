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

// Package usage defines the token-usage record harvested from session logs
// and the parser that produces it.
package usage

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// DefaultModel is used when a log line carries no model name.
const DefaultModel = "unknown"

// Record is one observation of a host-model interaction.
//
// Records are immutable once parsed; identity is the InteractionHash. The
// JSON shape below is shared by the pending buffer on disk and the upload
// payload, so changing a tag is a wire-format change.
type Record struct {
	// Timestamp is the raw ISO-8601 timestamp from the log line. It takes
	// part in the interaction hash, so it is kept verbatim rather than
	// re-rendered from the parsed time.
	Timestamp string `json:"timestamp"`

	Model     string `json:"model"`
	SessionID string `json:"session_id,omitempty"`

	InputTokens         int64 `json:"input_tokens"`
	OutputTokens        int64 `json:"output_tokens"`
	CacheCreationTokens int64 `json:"cache_creation_input_tokens"`
	CacheReadTokens     int64 `json:"cache_read_input_tokens"`

	// InteractionHash is the SHA-256 hex digest identifying this record
	// for deduplication. See Fingerprint.
	InteractionHash string `json:"interaction_hash"`

	parsedTime time.Time
}

// Fingerprint derives the dedup identity of a record from its raw timestamp,
// message ID, and request ID. Missing fields contribute the empty string.
// The derivation is part of the persisted-state contract: changing it orphans
// every fingerprint already committed to the dedup index.
func Fingerprint(timestamp, messageID, requestID string) string {
	h := sha256.New()
	h.Write([]byte(timestamp))
	h.Write([]byte(messageID))
	h.Write([]byte(requestID))
	return hex.EncodeToString(h.Sum(nil))
}

// DayKey returns the UTC calendar date of the record in YYYY-MM-DD form,
// the bucket key for the dedup index.
func (r *Record) DayKey() string {
	return DayKeyFor(r.Time())
}

// Time returns the parsed record timestamp. Records produced by ParseLine
// carry it pre-parsed; records reloaded from the pending buffer re-parse the
// raw string. Unparseable timestamps yield the zero time.
func (r *Record) Time() time.Time {
	if !r.parsedTime.IsZero() {
		return r.parsedTime
	}
	t, err := time.Parse(time.RFC3339, r.Timestamp)
	if err != nil {
		return time.Time{}
	}
	return t
}

// DayKeyFor formats t's UTC calendar date as a day key.
func DayKeyFor(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}
