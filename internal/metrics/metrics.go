// Package metrics provides Prometheus metrics for monitoring captchagate.
package metrics

import (
	"net/http"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// InterceptionsTotal counts interception outcomes by action and reason.
	InterceptionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "captchagate_interceptions_total",
			Help: "Total responses processed by the interception stage",
		},
		[]string{"action", "reason"},
	)

	// InterceptionDuration tracks how long a cycle takes by action.
	InterceptionDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "captchagate_interception_duration_seconds",
			Help:    "Interception cycle duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 4, 10), // 1ms to ~260s
		},
		[]string{"action"},
	)

	// ChallengesDetected counts pages recognized as challenges.
	ChallengesDetected = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "captchagate_challenges_detected_total",
			Help: "Total challenge pages detected",
		},
	)

	// ResolvesTotal counts solver calls by provider and result.
	ResolvesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "captchagate_resolves_total",
			Help: "Total captcha solve attempts by provider and result",
		},
		[]string{"provider", "result"},
	)

	// ResolveDuration tracks solver latency by provider.
	ResolveDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "captchagate_resolve_duration_seconds",
			Help:    "Captcha solve duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 10), // 0.5s to ~256s
		},
		[]string{"provider"},
	)

	// SolvesInFlight shows how many solves hold a concurrency slot.
	SolvesInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "captchagate_solves_in_flight",
			Help: "Captcha solves currently in progress",
		},
	)

	// HTTPRequestsTotal counts API requests by path and status.
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "captchagate_http_requests_total",
			Help: "Total API requests processed",
		},
		[]string{"path", "status"},
	)

	// MemoryUsageBytes shows current memory usage.
	MemoryUsageBytes = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "captchagate_memory_usage_bytes",
			Help: "Current memory usage in bytes (alloc)",
		},
	)

	// GoroutineCount shows current goroutine count.
	GoroutineCount = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "captchagate_goroutines",
			Help: "Current number of goroutines",
		},
	)

	// BuildInfo provides build information as labels.
	BuildInfo = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "captchagate_build_info",
			Help: "Build information",
		},
		[]string{"version", "go_version"},
	)
)

func init() {
	prometheus.MustRegister(
		InterceptionsTotal,
		InterceptionDuration,
		ChallengesDetected,
		ResolvesTotal,
		ResolveDuration,
		SolvesInFlight,
		HTTPRequestsTotal,
		MemoryUsageBytes,
		GoroutineCount,
		BuildInfo,
	)
}

// Handler returns the Prometheus HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// SetBuildInfo sets the build info metric.
func SetBuildInfo(version, goVersion string) {
	BuildInfo.WithLabelValues(version, goVersion).Set(1)
}

// StartMemoryCollector updates memory metrics every interval until stopCh closes.
func StartMemoryCollector(interval time.Duration, stopCh <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			updateMemoryMetrics()
		case <-stopCh:
			return
		}
	}
}

func updateMemoryMetrics() {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	MemoryUsageBytes.Set(float64(m.Alloc))
	GoroutineCount.Set(float64(runtime.NumGoroutine()))
}

// RecordInterception records the outcome of one interception cycle.
// reason is empty for pass and retry outcomes.
func RecordInterception(action, reason string, duration time.Duration) {
	InterceptionsTotal.WithLabelValues(action, reason).Inc()
	InterceptionDuration.WithLabelValues(action).Observe(duration.Seconds())
}

// RecordChallengeDetected records a detected challenge page.
func RecordChallengeDetected() {
	ChallengesDetected.Inc()
}

// RecordResolve records one provider call.
// result is one of "solved", "unsolvable" or "error".
func RecordResolve(provider, result string, duration time.Duration) {
	ResolvesTotal.WithLabelValues(provider, result).Inc()
	ResolveDuration.WithLabelValues(provider).Observe(duration.Seconds())
}

// RecordHTTPRequest records a completed API request.
func RecordHTTPRequest(path, status string) {
	HTTPRequestsTotal.WithLabelValues(path, status).Inc()
}
