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

// Package errors provides user-facing error types for the usagebeam CLI.
//
// A CLIError carries a short title, a detail line explaining what went wrong,
// and a suggestion telling the user what to do about it. Operator-facing
// commands (init, status, backfill) surface these via FatalError; the collect
// trigger never does — it swallows everything and exits 0.
package errors

import (
	"encoding/json"
	"fmt"
	"os"
)

// Kind classifies a CLIError for JSON output and exit reporting.
type Kind string

const (
	KindConfig     Kind = "config"
	KindState      Kind = "state"
	KindNetwork    Kind = "network"
	KindPermission Kind = "permission"
	KindInput      Kind = "input"
	KindInternal   Kind = "internal"
)

// CLIError is an error with enough context to be shown to a human.
type CLIError struct {
	Kind       Kind   `json:"kind"`
	Title      string `json:"title"`
	Detail     string `json:"detail"`
	Suggestion string `json:"suggestion,omitempty"`
	Err        error  `json:"-"`
}

// Error implements the error interface.
func (e *CLIError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Title, e.Detail, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Title, e.Detail)
}

// Unwrap exposes the underlying cause.
func (e *CLIError) Unwrap() error {
	return e.Err
}

// NewConfigError reports a problem with the agent configuration.
func NewConfigError(title, detail, suggestion string, err error) *CLIError {
	return &CLIError{Kind: KindConfig, Title: title, Detail: detail, Suggestion: suggestion, Err: err}
}

// NewStateError reports a problem with the persisted scan state or buffer.
func NewStateError(title, detail, suggestion string, err error) *CLIError {
	return &CLIError{Kind: KindState, Title: title, Detail: detail, Suggestion: suggestion, Err: err}
}

// NewNetworkError reports a problem reaching the aggregation server.
func NewNetworkError(title, detail, suggestion string, err error) *CLIError {
	return &CLIError{Kind: KindNetwork, Title: title, Detail: detail, Suggestion: suggestion, Err: err}
}

// NewPermissionError reports a filesystem permission problem.
func NewPermissionError(title, detail, suggestion string, err error) *CLIError {
	return &CLIError{Kind: KindPermission, Title: title, Detail: detail, Suggestion: suggestion, Err: err}
}

// NewInputError reports invalid user input to a command.
func NewInputError(title, detail, suggestion string) *CLIError {
	return &CLIError{Kind: KindInput, Title: title, Detail: detail, Suggestion: suggestion}
}

// NewInternalError reports an unexpected failure inside the agent.
func NewInternalError(title, detail, suggestion string, err error) *CLIError {
	return &CLIError{Kind: KindInternal, Title: title, Detail: detail, Suggestion: suggestion, Err: err}
}

// FatalError prints err to stderr and exits with status 1.
//
// In JSON mode the error is emitted as a single JSON object so callers can
// parse failures programmatically. Plain errors that are not CLIErrors are
// wrapped as internal errors first.
func FatalError(err error, jsonMode bool) {
	cliErr, ok := err.(*CLIError)
	if !ok {
		cliErr = NewInternalError("Unexpected error", err.Error(), "", err)
	}

	if jsonMode {
		enc := json.NewEncoder(os.Stderr)
		enc.SetIndent("", "  ")
		_ = enc.Encode(map[string]any{
			"error":      cliErr.Title,
			"kind":       cliErr.Kind,
			"detail":     cliErr.Detail,
			"suggestion": cliErr.Suggestion,
		})
	} else {
		fmt.Fprintf(os.Stderr, "Error: %s\n", cliErr.Title)
		if cliErr.Detail != "" {
			fmt.Fprintf(os.Stderr, "  %s\n", cliErr.Detail)
		}
		if cliErr.Err != nil {
			fmt.Fprintf(os.Stderr, "  cause: %v\n", cliErr.Err)
		}
		if cliErr.Suggestion != "" {
			fmt.Fprintf(os.Stderr, "\n%s\n", cliErr.Suggestion)
		}
	}
	os.Exit(1)
}
