// Package metrics exposes the Prometheus collectors for marketd.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Registry holds the application-specific Prometheus collectors.
	Registry = prometheus.NewRegistry()

	httpInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "asset_layer",
			Subsystem: "http",
			Name:      "inflight_requests",
			Help:      "Current number of in-flight HTTP requests.",
		},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "asset_layer",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		},
		[]string{"method", "path", "status"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "asset_layer",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10), // 5ms to ~5s
		},
		[]string{"method", "path"},
	)

	tokenizations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "asset_layer",
			Subsystem: "assets",
			Name:      "tokenizations_total",
			Help:      "Total number of tokenization attempts.",
		},
		[]string{"outcome"},
	)

	transactionTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "asset_layer",
			Subsystem: "transactions",
			Name:      "transitions_total",
			Help:      "Total number of transaction status transitions.",
		},
		[]string{"to_status"},
	)

	bids = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "asset_layer",
			Subsystem: "auctions",
			Name:      "bids_total",
			Help:      "Total number of bid attempts.",
		},
		[]string{"outcome"},
	)

	settlements = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "asset_layer",
			Subsystem: "auctions",
			Name:      "settlements_total",
			Help:      "Total number of auction settlements.",
		},
		[]string{"outcome"},
	)

	auctionTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "asset_layer",
			Subsystem: "auctions",
			Name:      "transitions_total",
			Help:      "Total number of auction status transitions.",
		},
		[]string{"to_status"},
	)

	collaboratorCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "asset_layer",
			Subsystem: "collaborators",
			Name:      "calls_total",
			Help:      "Total number of external collaborator calls.",
		},
		[]string{"system", "outcome"},
	)

	collaboratorDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "asset_layer",
			Subsystem: "collaborators",
			Name:      "call_duration_seconds",
			Help:      "Duration of external collaborator calls.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 10),
		},
		[]string{"system"},
	)
)

func init() {
	Registry.MustRegister(
		httpInFlight,
		httpRequests,
		httpDuration,
		tokenizations,
		transactionTransitions,
		bids,
		settlements,
		auctionTransitions,
		collaboratorCalls,
		collaboratorDuration,
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		prometheus.NewGoCollector(),
	)
}

// Handler returns an HTTP handler exposing the registered Prometheus metrics.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// HTTPInFlightInc marks a request as started.
func HTTPInFlightInc() { httpInFlight.Inc() }

// HTTPInFlightDec marks a request as finished.
func HTTPInFlightDec() { httpInFlight.Dec() }

// RecordHTTPRequest records one handled HTTP request against its route
// template.
func RecordHTTPRequest(method, path, status string, duration time.Duration) {
	httpRequests.WithLabelValues(method, path, status).Inc()
	httpDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordTokenization records a tokenization attempt outcome.
func RecordTokenization(outcome string) {
	tokenizations.WithLabelValues(outcome).Inc()
}

// RecordTransactionTransition records a transaction entering a status.
func RecordTransactionTransition(toStatus string) {
	transactionTransitions.WithLabelValues(toStatus).Inc()
}

// RecordBid records a bid attempt outcome (accepted, rejected, cancelled).
func RecordBid(outcome string) {
	bids.WithLabelValues(outcome).Inc()
}

// RecordSettlement records an auction settlement outcome.
func RecordSettlement(outcome string) {
	settlements.WithLabelValues(outcome).Inc()
}

// RecordAuctionTransition records an auction entering a status.
func RecordAuctionTransition(toStatus string) {
	auctionTransitions.WithLabelValues(toStatus).Inc()
}

// RecordCollaboratorCall records one external collaborator call.
func RecordCollaboratorCall(system string, duration time.Duration, err error) {
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	collaboratorCalls.WithLabelValues(system, outcome).Inc()
	collaboratorDuration.WithLabelValues(system).Observe(duration.Seconds())
}
