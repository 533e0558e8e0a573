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

package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/natefinch/atomic"
	"gopkg.in/yaml.v3"

	"github.com/kraklabs/usagebeam/internal/errors"
	"github.com/kraklabs/usagebeam/pkg/state"
)

// tuningFileName is the optional agent tuning file inside the state dir.
const tuningFileName = "usagebeam.yaml"

// HostConfig is the host-facing configuration contract. The interactive
// setup writes it; the collect trigger only reads it. Its JSON shape is
// shared with other tooling on the host and must not change.
type HostConfig struct {
	Username  string `json:"username"`
	ServerURL string `json:"serverUrl"`
	Enabled   bool   `json:"enabled"`
}

// Active reports whether the agent should collect at all.
func (c *HostConfig) Active() bool {
	return c != nil && c.Enabled && c.ServerURL != "" && c.Username != ""
}

// LoadHostConfig reads the config file from dir. An absent file returns
// (nil, nil): not configured is a normal condition, not an error.
func LoadHostConfig(dir string) (*HostConfig, error) {
	path := filepath.Join(dir, state.ConfigFileName)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.NewConfigError(
			"Cannot read configuration file",
			fmt.Sprintf("Failed to read %s", path),
			"Check file permissions",
			err,
		)
	}

	var cfg HostConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, errors.NewConfigError(
			"Invalid configuration format",
			fmt.Sprintf("%s is not valid JSON", path),
			"Run 'usagebeam init --force' to recreate it",
			err,
		)
	}
	return &cfg, nil
}

// SaveHostConfig atomically writes the config file into dir.
func SaveHostConfig(dir string, cfg *HostConfig) error {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return errors.NewPermissionError(
			"Cannot create configuration directory",
			fmt.Sprintf("Failed to create %s", dir),
			"Check directory permissions",
			err,
		)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return errors.NewInternalError(
			"Cannot encode configuration",
			"JSON marshaling failed unexpectedly",
			"This is a bug. Please report it",
			err,
		)
	}

	path := filepath.Join(dir, state.ConfigFileName)
	if err := atomic.WriteFile(path, bytes.NewReader(data)); err != nil {
		return errors.NewPermissionError(
			"Cannot write configuration file",
			fmt.Sprintf("Failed to write %s", path),
			"Check file permissions and disk space",
			err,
		)
	}
	return nil
}

// Duration wraps time.Duration for YAML "10s"/"500ms" strings.
type Duration struct{ time.Duration }

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return fmt.Errorf("duration must be a string (e.g., \"10s\"): %w", err)
	}
	if s == "" {
		d.Duration = 0
		return nil
	}
	dd, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	d.Duration = dd
	return nil
}

// Tuning is the optional operator tuning file. Every field is optional;
// zero values keep the engine defaults. It exists for debugging and staging
// servers, not for everyday use.
type Tuning struct {
	LogLevel       string   `yaml:"logLevel"`
	BatchSize      int      `yaml:"batchSize"`
	SendBudget     Duration `yaml:"sendBudget"`
	RequestTimeout Duration `yaml:"requestTimeout"`
	Throttle       Duration `yaml:"throttle"`
	RetentionDays  int      `yaml:"retentionDays"`
	LogRoots       []string `yaml:"logRoots"`
}

// hasOverrides reports whether any tuning field deviates from defaults.
func (t Tuning) hasOverrides() bool {
	return t.LogLevel != "" || t.BatchSize > 0 || t.SendBudget.Duration > 0 ||
		t.RequestTimeout.Duration > 0 || t.Throttle.Duration > 0 ||
		t.RetentionDays > 0 || len(t.LogRoots) > 0
}

// LoadTuning reads the tuning file from dir. Absent or unparseable files
// yield the zero Tuning: tuning must never be able to break collection.
func LoadTuning(dir string) Tuning {
	var t Tuning
	data, err := os.ReadFile(filepath.Join(dir, tuningFileName))
	if err != nil {
		return t
	}
	if err := yaml.Unmarshal(data, &t); err != nil {
		return Tuning{}
	}
	return t
}
