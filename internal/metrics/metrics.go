// Package metrics exposes Prometheus counters for the API and the
// archive pipeline.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pmt_http_requests_total",
		Help: "HTTP requests by method, route pattern and status code.",
	}, []string{"method", "path", "status"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "pmt_http_request_duration_seconds",
		Help:    "HTTP request latency by route pattern.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path"})

	RecordsWritten = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pmt_records_written_total",
		Help: "Ledger rows written by operation type.",
	}, []string{"operation"})

	RecordsDeleted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pmt_records_deleted_total",
		Help: "Ledger rows removed by delete operations.",
	})

	RecordsArchived = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pmt_records_archived_total",
		Help: "Record snapshots written to the blob archive.",
	})

	ArchiveErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pmt_archive_errors_total",
		Help: "Failed archive attempts.",
	})
)

// Handler serves the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Middleware records request counts and latency per route pattern.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		path := r.Pattern
		if path == "" {
			path = "unmatched"
		}
		httpRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(rec.status)).Inc()
		httpRequestDuration.WithLabelValues(r.Method, path).Observe(time.Since(start).Seconds())
	})
}
