// Package metrics holds the Prometheus collectors of the service.
package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics to track
var (
	RosterActions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "openmic_roster_actions_total",
			Help: "Mic and roster operations handled, by action and outcome",
		},
		[]string{"action", "outcome"}, // outcome: ok, rejected, error
	)
	LiveSubscribers = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "openmic_live_subscribers",
			Help: "Open live-channel websocket connections",
		},
	)
	SnapshotsDropped = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "openmic_snapshots_dropped_total",
			Help: "Snapshots not queued because a live connection was lagging",
		},
	)
	RelayMessages = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "openmic_relay_messages_total",
			Help: "Snapshots exchanged with other instances over NATS",
		},
		[]string{"direction"}, // in, out
	)
)

var once sync.Once

// InitMetrics registers the collectors with the default registry.  It is
// safe to call more than once.
func InitMetrics() {
	once.Do(func() {
		prometheus.MustRegister(RosterActions, LiveSubscribers, SnapshotsDropped, RelayMessages)
	})
}

// Handler exposes the default registry for scraping.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Outcome labels.
const (
	OutcomeOK       = "ok"
	OutcomeRejected = "rejected"
	OutcomeError    = "error"
)

// ObserveAction counts one handled operation.
func ObserveAction(action, outcome string) {
	RosterActions.WithLabelValues(action, outcome).Inc()
}
