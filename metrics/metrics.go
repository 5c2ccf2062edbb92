// Package metrics declares the dashboard's prometheus collectors.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// GatewayCalls counts calls to the gateway by operation and outcome
	// ("ok", "not_found", "error").
	GatewayCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "apidash",
			Subsystem: "gateway",
			Name:      "calls_total",
			Help:      "Total number of gateway calls",
		},
		[]string{"op", "outcome"},
	)

	// LoaderResults counts session loader runs by the state they settled in.
	LoaderResults = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "apidash",
			Subsystem: "loader",
			Name:      "results_total",
			Help:      "Session loader runs by final state",
		},
		[]string{"state"},
	)

	HTTPRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "apidash",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)
)

func Handler() http.Handler {
	return promhttp.Handler()
}
