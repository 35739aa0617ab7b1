package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

func init() {
	register(
		aiTokensIn,
		aiTokensOut,
		aiTokensTotal,
		aiCallsLatencyMs,
	)
}

var (
	aiTokensIn = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ai_tokens_in",
			Help: "Sum of prompt (input) tokens per provider/model.",
		},
		[]string{"provider", "model"},
	)

	aiTokensOut = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ai_tokens_out",
			Help: "Sum of completion (output) tokens per provider/model.",
		},
		[]string{"provider", "model"},
	)

	aiTokensTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ai_tokens_total",
			Help: "Sum of total tokens per provider/model.",
		},
		[]string{"provider", "model"},
	)

	aiCallsLatencyMs = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ai_calls_latency_ms",
			Help:    "Model backend call latency distribution in milliseconds.",
			Buckets: []float64{10, 25, 50, 100, 200, 400, 800, 1600, 3000, 5000},
		},
		[]string{"provider", "model", "success"},
	)
)

// ObserveChatUsage records tokens and latency for one backend exchange.
func ObserveChatUsage(provider, model string, tokensIn, tokensOut, tokensTotal, latencyMs int, success bool) {
	p, m := norm(provider), norm(model)
	aiTokensIn.WithLabelValues(p, m).Add(float64(tokensIn))
	aiTokensOut.WithLabelValues(p, m).Add(float64(tokensOut))
	aiTokensTotal.WithLabelValues(p, m).Add(float64(tokensTotal))
	aiCallsLatencyMs.WithLabelValues(p, m, strconv.FormatBool(success)).Observe(float64(latencyMs))
}
