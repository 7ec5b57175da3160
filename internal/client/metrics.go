package client

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	gatewayRequestDurationHist = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "campaigns",
			Subsystem: "gateway",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests to the messaging gateway.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	gatewayRequestsCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "campaigns",
			Subsystem: "gateway",
			Name:      "requests_total",
			Help:      "Total HTTP requests to the messaging gateway.",
		},
		[]string{"operation", "result"},
	)
)
