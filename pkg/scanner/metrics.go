// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package scanner

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	linesParsed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "usagebeam_scan_lines_parsed_total",
		Help: "Log lines parsed into usage records.",
	})
	linesRejected = promauto.NewCounter(prometheus.CounterOpts{
		Name: "usagebeam_scan_lines_rejected_total",
		Help: "Log lines rejected by the parser.",
	})
	bytesRead = promauto.NewCounter(prometheus.CounterOpts{
		Name: "usagebeam_scan_bytes_read_total",
		Help: "Bytes read from session log tails.",
	})
	truncations = promauto.NewCounter(prometheus.CounterOpts{
		Name: "usagebeam_scan_truncations_total",
		Help: "Tracked files observed smaller than their committed offset.",
	})
)
