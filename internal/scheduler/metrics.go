package scheduler

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	loopTicksCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "campaigns",
			Name:      "loop_ticks_total",
			Help:      "Total maintenance loop ticks.",
		},
		[]string{"loop", "result"},
	)

	scheduledCampaignsGauge = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "campaigns",
			Name:      "scheduled",
			Help:      "Number of campaigns with a live timer.",
		},
	)

	timerFiresCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "campaigns",
			Name:      "timer_fires_total",
			Help:      "Total campaign timer fires by result.",
		},
		[]string{"result"}, // executed, skipped_busy, removed, store_error, panic
	)
)
