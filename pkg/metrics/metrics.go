package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	RateLimitAllowed = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "docsync", Name: "rate_limit_allowed_total", Help: "Number of allowed requests by limiter type."},
		[]string{"limiter"},
	)
	RateLimitRejected = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "docsync", Name: "rate_limit_rejected_total", Help: "Number of rejected requests by limiter type."},
		[]string{"limiter"},
	)

	LocalEdits = prometheus.NewCounter(
		prometheus.CounterOpts{Namespace: "docsync", Name: "local_edits_total", Help: "Optimistic local mutations applied to the cache."},
	)
	RemoteWrites = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "docsync", Name: "remote_writes_total", Help: "Whole-set writes issued to the remote store by result."},
		[]string{"result"},
	)
	StaleSnapshots = prometheus.NewCounter(
		prometheus.CounterOpts{Namespace: "docsync", Name: "stale_snapshots_dropped_total", Help: "Inbound snapshots dropped because they were not newer than the cache."},
	)
	Renders = prometheus.NewCounter(
		prometheus.CounterOpts{Namespace: "docsync", Name: "renders_total", Help: "Remote-driven content replacements pushed to editors."},
	)
	DegradedSubscriptions = prometheus.NewCounter(
		prometheus.CounterOpts{Namespace: "docsync", Name: "degraded_subscriptions_total", Help: "Documents moved to Unsubscribed after a feed failure or revocation."},
	)
	ActiveSubscriptions = prometheus.NewGauge(
		prometheus.GaugeOpts{Namespace: "docsync", Name: "active_subscriptions", Help: "Open owner-record subscriptions across all sessions."},
	)
	ActiveSessions = prometheus.NewGauge(
		prometheus.GaugeOpts{Namespace: "docsync", Name: "active_sessions", Help: "Open sync sessions."},
	)
)

func RegisterCollectors(reg prometheus.Registerer) {
	reg.MustRegister(RateLimitAllowed)
	reg.MustRegister(RateLimitRejected)
	reg.MustRegister(LocalEdits, RemoteWrites, StaleSnapshots, Renders)
	reg.MustRegister(DegradedSubscriptions, ActiveSubscriptions, ActiveSessions)
}
