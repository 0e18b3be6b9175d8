package session

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/repressales/salescart/internal/cart"
)

var (
	sessionsOpen = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "cart_sessions_open",
		Help: "Number of live cart sessions",
	})

	sessionsClosedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cart_sessions_closed_total",
		Help: "Total number of closed cart sessions by reason",
	}, []string{"reason"})

	cartChangesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cart_changes_total",
		Help: "Total number of applied cart transitions by kind",
	}, []string{"kind"})
)

func recordChange(c cart.Change) {
	cartChangesTotal.WithLabelValues(string(c.Kind)).Inc()
}
