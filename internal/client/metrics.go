package client

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	apiRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storefront_api_requests_total",
			Help: "Total number of API requests sent by the storefront client",
		},
		[]string{"method", "resource", "status"},
	)

	apiRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "storefront_api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "resource"},
	)

	tokenRefreshTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storefront_token_refresh_total",
			Help: "Token refresh attempts by result",
		},
		[]string{"result"},
	)
)

// Refresh results recorded in storefront_token_refresh_total.
const (
	refreshSuccess = "success"
	refreshFailure = "failure"
	refreshMissing = "missing"
	refreshRotated = "rotated"
)
