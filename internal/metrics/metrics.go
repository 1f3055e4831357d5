// Package metrics holds the service's prometheus collectors.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mediaproxy_http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "route", "status"},
	)

	httpRequestDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mediaproxy_http_request_duration_seconds",
			Help:    "HTTP request latency by route.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route", "status"},
	)

	// UploadsTotal counts uploads by media class (image, video, other) and
	// outcome (stored, rejected, failed).
	UploadsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mediaproxy_uploads_total",
			Help: "Uploads by media class and outcome.",
		},
		[]string{"class", "outcome"},
	)

	// TranscodeDurationSeconds observes transcode latency by media class.
	TranscodeDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mediaproxy_transcode_duration_seconds",
			Help:    "Time spent transcoding uploads.",
			Buckets: []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"class"},
	)

	// ProxyResponsesTotal counts proxy responses by method and status.
	ProxyResponsesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mediaproxy_proxy_responses_total",
			Help: "Media proxy responses by method and status.",
		},
		[]string{"method", "status"},
	)

	// ProxyBytesTotal counts body bytes relayed from the object store.
	ProxyBytesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "mediaproxy_proxy_bytes_total",
			Help: "Body bytes relayed from the object store to clients.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		httpRequestsTotal,
		httpRequestDurationSeconds,
		UploadsTotal,
		TranscodeDurationSeconds,
		ProxyResponsesTotal,
		ProxyBytesTotal,
	)
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware records request counts and latency per chi route pattern, so
// /media/* stays one series regardless of key.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				route = pattern
			}
		}
		status := strconv.Itoa(rec.status)
		httpRequestsTotal.WithLabelValues(r.Method, route, status).Inc()
		httpRequestDurationSeconds.WithLabelValues(r.Method, route, status).Observe(time.Since(start).Seconds())
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}
