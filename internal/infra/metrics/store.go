package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

func init() { register(storeOpsLatencyMs) }

var storeOpsLatencyMs = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "store_ops_latency_ms",
		Help:    "Durable conversation store operation latency in milliseconds.",
		Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500},
	},
	[]string{"op", "success"},
)

func ObserveStoreOp(op string, latencyMs int, success bool) {
	storeOpsLatencyMs.WithLabelValues(norm(op), strconv.FormatBool(success)).Observe(float64(latencyMs))
}
