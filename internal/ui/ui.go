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

// Package ui provides terminal output helpers for the usagebeam CLI.
//
// Color output is enabled only when stdout is a terminal and neither the
// --no-color flag nor the NO_COLOR environment variable is set. All helpers
// degrade to plain text otherwise.
package ui

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
)

// Shared color styles. Initialized by InitColors; usable before that with
// the fatih/color package defaults.
var (
	Green  = color.New(color.FgGreen)
	Yellow = color.New(color.FgYellow)
	Cyan   = color.New(color.FgCyan)
	Dim    = color.New(color.Faint)

	bold = color.New(color.Bold)
)

// InitColors configures global color output.
//
// Colors are disabled when noColor is true, when stdout is not a terminal,
// or when NO_COLOR is set in the environment.
func InitColors(noColor bool) {
	if noColor || os.Getenv("NO_COLOR") != "" {
		color.NoColor = true
		return
	}
	if !isatty.IsTerminal(os.Stdout.Fd()) && !isatty.IsCygwinTerminal(os.Stdout.Fd()) {
		color.NoColor = true
	}
}

// Header prints a bold top-level section header.
func Header(text string) {
	_, _ = bold.Println(text)
	fmt.Println()
}

// SubHeader prints a bold sub-section header.
func SubHeader(text string) {
	_, _ = bold.Println(text)
}

// Label renders a field label in cyan.
func Label(text string) string {
	return Cyan.Sprint(text)
}

// DimText renders secondary text dimmed.
func DimText(text string) string {
	return Dim.Sprint(text)
}

// CountText renders a numeric count in green.
func CountText(n int) string {
	return Green.Sprintf("%d", n)
}

// Info prints an informational line.
func Info(msg string) {
	fmt.Println(msg)
}

// Infof prints a formatted informational line.
func Infof(format string, args ...interface{}) {
	fmt.Printf(format+"\n", args...)
}

// Success prints a success line in green.
func Success(msg string) {
	_, _ = Green.Println(msg)
}

// Successf prints a formatted success line in green.
func Successf(format string, args ...interface{}) {
	_, _ = Green.Printf(format+"\n", args...)
}

// Warning prints a warning line in yellow to stderr.
func Warning(msg string) {
	_, _ = Yellow.Fprintln(os.Stderr, msg)
}

// Warningf prints a formatted warning line in yellow to stderr.
func Warningf(format string, args ...interface{}) {
	_, _ = Yellow.Fprintf(os.Stderr, format+"\n", args...)
}
