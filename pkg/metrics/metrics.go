package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	mapPoster = "map_poster"

	// Job metrics
	jobsTotal           = "jobs_total"
	generationDurations = "generation_duration_seconds"

	// Cache metrics
	cacheLookupsTotal = "cache_lookups_total"

	// Payment metrics
	paymentsTotal = "payments_total"

	// Labels
	jobStatusLabel     = "status"
	cacheResultLabel   = "result"
	paymentStageLabel  = "stage"
	paymentResultLabel = "result"
)

// Cache lookup results.
const (
	CacheHit       = "hit"
	CacheMiss      = "miss"
	CacheReuse     = "reuse"
	CacheSaveError = "save_error"
)

/**
* Metrics definition
**/
var jobsTotalMetric = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Subsystem: mapPoster,
		Name:      jobsTotal,
		Help:      "number of poster jobs that reached a terminal status",
	},
	[]string{jobStatusLabel},
)

var generationDurationMetric = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Subsystem: mapPoster,
		Name:      generationDurations,
		Help:      "time spent generating a poster, from processing to a terminal status",
		Buckets:   []float64{1, 5, 15, 30, 60, 120, 300},
	},
	[]string{jobStatusLabel},
)

var cacheLookupsTotalMetric = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Subsystem: mapPoster,
		Name:      cacheLookupsTotal,
		Help:      "number of map cache lookups partitioned by result",
	},
	[]string{cacheResultLabel},
)

var paymentsTotalMetric = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Subsystem: mapPoster,
		Name:      paymentsTotal,
		Help:      "number of x402 payment verifications and settlements partitioned by result",
	},
	[]string{paymentStageLabel, paymentResultLabel},
)

func IncreaseJobsTotalMetric(status string) {
	jobsTotalMetric.With(prometheus.Labels{jobStatusLabel: status}).Inc()
}

func ObserveGenerationDuration(status string, d time.Duration) {
	generationDurationMetric.With(prometheus.Labels{jobStatusLabel: status}).Observe(d.Seconds())
}

func IncreaseCacheLookupMetric(result string) {
	cacheLookupsTotalMetric.With(prometheus.Labels{cacheResultLabel: result}).Inc()
}

func IncreasePaymentMetric(stage, result string) {
	paymentsTotalMetric.With(prometheus.Labels{
		paymentStageLabel:  stage,
		paymentResultLabel: result,
	}).Inc()
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

func init() {
	registerMetrics()
}

func registerMetrics() {
	prometheus.MustRegister(jobsTotalMetric)
	prometheus.MustRegister(generationDurationMetric)
	prometheus.MustRegister(cacheLookupsTotalMetric)
	prometheus.MustRegister(paymentsTotalMetric)
	prometheus.MustRegister(totalUniquePayersPerWeekMetric)
}
