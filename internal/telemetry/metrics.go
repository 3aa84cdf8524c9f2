package telemetry

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	once sync.Once

	EnqueueCounter    = prometheus.NewCounter(prometheus.CounterOpts{Name: "weather_jobs_enqueued_total", Help: "Total enqueued fetch jobs"})
	JobSuccess        = prometheus.NewCounter(prometheus.CounterOpts{Name: "weather_jobs_succeeded_total", Help: "Jobs where every city fetch succeeded"})
	JobFailures       = prometheus.NewCounter(prometheus.CounterOpts{Name: "weather_jobs_failed_total", Help: "Jobs where at least one city fetch failed"})
	CityFetchFailures = prometheus.NewCounter(prometheus.CounterOpts{Name: "weather_city_fetch_failures_total", Help: "Per-city fetch or persistence failures"})
	MalformedPayloads = prometheus.NewCounter(prometheus.CounterOpts{Name: "weather_malformed_payloads_total", Help: "Queue messages discarded as undecodable"})
	RateLimitRejects  = prometheus.NewCounter(prometheus.CounterOpts{Name: "weather_rate_limit_rejects_total", Help: "On-demand requests rejected by rate limiter"})
	QueueDepthGauge   = prometheus.NewGauge(prometheus.GaugeOpts{Name: "weather_queue_depth", Help: "Payloads waiting in the queue"})
	SnapshotFailures  = prometheus.NewCounter(prometheus.CounterOpts{Name: "weather_snapshot_failures_total", Help: "Observation snapshot exports that failed"})
)

// Handler exposes /metrics HTTP handler with a singleton registry.
func Handler() http.Handler {
	once.Do(func() {
		prometheus.MustRegister(
			EnqueueCounter,
			JobSuccess,
			JobFailures,
			CityFetchFailures,
			MalformedPayloads,
			RateLimitRejects,
			QueueDepthGauge,
			SnapshotFailures,
		)
	})
	return promhttp.Handler()
}
