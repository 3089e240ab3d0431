// Package metrics exposes Prometheus collectors for the contact-crawler.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	claimsTotal           *prometheus.CounterVec
	itemsProcessedTotal   *prometheus.CounterVec
	challengesTotal       *prometheus.CounterVec
	retryResolutionsTotal *prometheus.CounterVec
	searchQueriesTotal    prometheus.Counter
	searchCostToday       prometheus.Gauge
	activeWorkers         prometheus.Gauge
	itemDurationSeconds   prometheus.Histogram

	once sync.Once
)

// Init registers the Prometheus collectors. Safe to call multiple times.
func Init() {
	once.Do(func() {
		claimsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kontakt_claims_total",
				Help: "Work unit claim attempts, labeled by result (claimed, empty, error).",
			},
			[]string{"result"},
		)

		itemsProcessedTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kontakt_items_processed_total",
				Help: "Processed work units, labeled by navigation outcome.",
			},
			[]string{"status"},
		)

		challengesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kontakt_challenges_total",
				Help: "Challenge solve attempts, labeled by result (solved, timeout, rejected).",
			},
			[]string{"result"},
		)

		retryResolutionsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kontakt_retry_resolutions_total",
				Help: "Domain retry resolutions, labeled by outcome (completed, requeued).",
			},
			[]string{"outcome"},
		)

		searchQueriesTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "kontakt_search_queries_total",
				Help: "Metered search queries issued.",
			},
		)

		searchCostToday = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "kontakt_search_cost_today",
				Help: "Estimated spend against the metered search API today.",
			},
		)

		activeWorkers = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "kontakt_active_workers",
				Help: "Worker loops currently running.",
			},
		)

		itemDurationSeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "kontakt_item_duration_seconds",
				Help:    "Wall time spent processing one work unit.",
				Buckets: prometheus.ExponentialBuckets(0.5, 2, 10),
			},
		)
	})
}

// RecordClaim counts one claim attempt by result.
func RecordClaim(result string) {
	if claimsTotal != nil {
		claimsTotal.WithLabelValues(result).Inc()
	}
}

// RecordItem counts one processed work unit by outcome status.
func RecordItem(status string) {
	if itemsProcessedTotal != nil {
		itemsProcessedTotal.WithLabelValues(status).Inc()
	}
}

// RecordChallenge counts one challenge solve attempt by result.
func RecordChallenge(result string) {
	if challengesTotal != nil {
		challengesTotal.WithLabelValues(result).Inc()
	}
}

// RecordRetryResolution counts one retry queue resolution by outcome.
func RecordRetryResolution(outcome string) {
	if retryResolutionsTotal != nil {
		retryResolutionsTotal.WithLabelValues(outcome).Inc()
	}
}

// RecordSearchQuery counts one issued search query.
func RecordSearchQuery() {
	if searchQueriesTotal != nil {
		searchQueriesTotal.Inc()
	}
}

// SetSearchCost publishes today's estimated search spend.
func SetSearchCost(cost float64) {
	if searchCostToday != nil {
		searchCostToday.Set(cost)
	}
}

// WorkerStarted increments the active worker gauge.
func WorkerStarted() {
	if activeWorkers != nil {
		activeWorkers.Inc()
	}
}

// WorkerStopped decrements the active worker gauge.
func WorkerStopped() {
	if activeWorkers != nil {
		activeWorkers.Dec()
	}
}

// ObserveItemDuration records the wall time for one processed unit.
func ObserveItemDuration(seconds float64) {
	if itemDurationSeconds != nil {
		itemDurationSeconds.Observe(seconds)
	}
}
