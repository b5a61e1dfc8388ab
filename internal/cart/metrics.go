package cart

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	opLoad    = "load"
	opAdd     = "add"
	opUpdate  = "update"
	opRemove  = "remove"
	opClear   = "clear"
	opMigrate = "migrate"
)

var (
	cartOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storefront_cart_operations_total",
			Help: "Total number of cart operations by mode and result.",
		},
		[]string{"operation", "mode", "result"},
	)

	cartOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "storefront_cart_operation_duration_seconds",
			Help:    "Duration of cart operations in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation", "mode"},
	)
)

func observe(op string, mode Mode, err error, start time.Time) {
	result := "success"
	if err != nil {
		result = "error"
	}
	cartOperationsTotal.WithLabelValues(op, string(mode), result).Inc()
	cartOperationDuration.WithLabelValues(op, string(mode)).Observe(time.Since(start).Seconds())
}
