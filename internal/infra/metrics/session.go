package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(
		sessionSendsTotal,
		sessionStaleDropsTotal,
		sessionsActive,
	)
}

var (
	sessionSendsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "session_sends_total",
			Help: "Send attempts per outcome (ok, rejected, backend_error, stale).",
		},
		[]string{"outcome"},
	)

	sessionStaleDropsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "session_stale_drops_total",
			Help: "Backend responses discarded because the session epoch moved.",
		},
	)

	sessionsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "sessions_active",
			Help: "Live session controllers held by the registry.",
		},
	)
)

func IncSessionSend(outcome string) { sessionSendsTotal.WithLabelValues(norm(outcome)).Inc() }

func IncStaleDrop() { sessionStaleDropsTotal.Inc() }

func SetActiveSessions(n int) { sessionsActive.Set(float64(n)) }
