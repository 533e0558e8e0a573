// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package delivery

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	batchesSent = promauto.NewCounter(prometheus.CounterOpts{
		Name: "usagebeam_deliver_batches_sent_total",
		Help: "Batches accepted by the aggregation server.",
	})
	recordsSent = promauto.NewCounter(prometheus.CounterOpts{
		Name: "usagebeam_deliver_records_sent_total",
		Help: "Usage records accepted by the aggregation server.",
	})
	sendFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "usagebeam_deliver_failures_total",
		Help: "Batch submissions that failed and stopped the run's delivery.",
	})
	budgetExhaustions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "usagebeam_deliver_budget_exhausted_total",
		Help: "Runs that stopped delivering because the wall-clock budget ran out.",
	})
)
