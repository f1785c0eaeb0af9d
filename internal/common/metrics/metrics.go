// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "codearena"

var (
	judgeRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "judge_requests_total",
		Help:      "Calls made to the external judge by outcome",
	}, []string{"outcome"})

	judgeLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "judge_request_duration_seconds",
		Help:      "Latency of external judge calls, retries included",
		Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 20, 30},
	}, []string{"outcome"})

	submissionVerdicts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "submission_verdicts_total",
		Help:      "Aggregate verdicts by mode",
	}, []string{"mode", "verdict"})

	contestConflicts = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "contest_version_conflicts_total",
		Help:      "Optimistic lock conflicts while mutating contests",
	})

	httpRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "http_requests_total",
		Help:      "Total number of HTTP requests received",
	}, []string{"method", "path", "status"})

	httpLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "http_request_duration_seconds",
		Help:      "Duration of HTTP requests in seconds",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "path", "status"})
)

// ObserveJudgeCall records one judge call.
func ObserveJudgeCall(outcome string, elapsed time.Duration) {
	judgeRequests.WithLabelValues(outcome).Inc()
	judgeLatency.WithLabelValues(outcome).Observe(elapsed.Seconds())
}

// ObserveVerdict records the aggregate verdict of a run or submit.
func ObserveVerdict(mode, verdict string) {
	submissionVerdicts.WithLabelValues(mode, verdict).Inc()
}

// ObserveContestConflict counts one optimistic lock retry.
func ObserveContestConflict() {
	contestConflicts.Inc()
}

// ObserveHTTP records one served request.
func ObserveHTTP(method, path, status string, elapsed time.Duration) {
	httpRequests.WithLabelValues(method, path, status).Inc()
	httpLatency.WithLabelValues(method, path, status).Observe(elapsed.Seconds())
}

// Handler exposes the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
