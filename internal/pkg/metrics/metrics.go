package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	// ProviderRequests counts gateway requests by method and outcome (ok, rpc_error, transport_error).
	ProviderRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "walletsync",
		Name:      "provider_requests_total",
		Help:      "Wallet provider requests by method and outcome.",
	}, []string{"method", "outcome"})

	// ProviderLatency observes forwarded RPC latency by method.
	ProviderLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "walletsync",
		Name:      "provider_request_duration_seconds",
		Help:      "Latency of RPC calls forwarded to chain endpoints.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method"})

	// ClaimAttempts counts claim attempts by outcome.
	ClaimAttempts = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "walletsync",
		Name:      "claim_attempts_total",
		Help:      "Play token claim attempts by outcome.",
	}, []string{"outcome"})

	// ClaimConfirmations counts terminal statuses of monitored claim transactions.
	ClaimConfirmations = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "walletsync",
		Name:      "claim_transactions_total",
		Help:      "Monitored claim transactions by terminal status.",
	}, []string{"status"})

	// Refreshes counts balance and portfolio refreshes by kind and outcome.
	Refreshes = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "walletsync",
		Name:      "refreshes_total",
		Help:      "Balance and portfolio refreshes by kind and outcome.",
	}, []string{"kind", "outcome"})

	// StaleResponses counts refresh responses dropped because a newer refresh was issued.
	StaleResponses = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "walletsync",
		Name:      "stale_responses_total",
		Help:      "Refresh responses discarded because a newer request superseded them.",
	}, []string{"kind"})

	// ConnectionState is 1 while a wallet is connected.
	ConnectionState = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "walletsync",
		Name:      "wallet_connected",
		Help:      "1 while a wallet is connected, 0 otherwise.",
	})

	registerOnce sync.Once
)

// MustRegisterMetrics registers all collectors with the default registry. Safe to call more than once.
func MustRegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			ProviderRequests,
			ProviderLatency,
			ClaimAttempts,
			ClaimConfirmations,
			Refreshes,
			StaleResponses,
			ConnectionState,
		)
	})
}

// ObserveSince records the elapsed time since start for method.
func ObserveSince(method string, start time.Time) {
	ProviderLatency.WithLabelValues(method).Observe(time.Since(start).Seconds())
}

// SetConnected updates the connection gauge.
func SetConnected(connected bool) {
	if connected {
		ConnectionState.Set(1)
		return
	}
	ConnectionState.Set(0)
}
