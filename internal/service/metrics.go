package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	campaignRunsCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "campaigns",
			Name:      "runs_total",
			Help:      "Total campaign runs by result.",
		},
		[]string{"result"}, // completed, endpoint_failure, aborted
	)

	groupSendsCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "campaigns",
			Name:      "group_sends_total",
			Help:      "Total per-group sends by outcome.",
		},
		[]string{"outcome"},
	)

	campaignRunDurationHist = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "campaigns",
			Name:      "run_duration_seconds",
			Help:      "Duration of a full campaign run across its groups.",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
		},
	)
)
