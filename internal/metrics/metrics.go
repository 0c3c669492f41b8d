// Package metrics exposes storefront activity as Prometheus metrics.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/stonewallbooks/storefront/internal/docstore"
)

const namespace = "storefront"

// Metrics holds the collectors registered on its own registry.
type Metrics struct {
	registry *prometheus.Registry

	documentWrites  *prometheus.CounterVec
	snapshotPushes  *prometheus.CounterVec
	snapshotVersion prometheus.Gauge
	catalogBooks    prometheus.Gauge
	streamClients   prometheus.Gauge
	requests        *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	imageUploads    *prometheus.CounterVec
}

// New creates the metrics and registers them, along with the Go and process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		documentWrites: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "document_writes_total",
			Help:      "Whole-document writes by path and outcome.",
		}, []string{"path", "outcome"}),
		snapshotPushes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "snapshot_pushes_total",
			Help:      "Document states delivered to subscribers.",
		}, []string{"path"}),
		snapshotVersion: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "store_version",
			Help:      "Version of the store document currently applied.",
		}),
		catalogBooks: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "catalog_books",
			Help:      "Books in the current catalog.",
		}),
		streamClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "stream_clients",
			Help:      "Connected store event stream clients.",
		}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by method and status.",
		}, []string{"method", "status"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
		imageUploads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "image_uploads_total",
			Help:      "Book image uploads by result.",
		}, []string{"result"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.documentWrites,
		m.snapshotPushes,
		m.snapshotVersion,
		m.catalogBooks,
		m.streamClients,
		m.requests,
		m.requestDuration,
		m.imageUploads,
	)
	return m
}

// Registry returns the registry the metrics are registered on.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// DocumentWritten implements docstore.Observer.
func (m *Metrics) DocumentWritten(path docstore.Path, outcome string) {
	m.documentWrites.WithLabelValues(string(path), outcome).Inc()
}

// SnapshotDelivered implements docstore.Observer.
func (m *Metrics) SnapshotDelivered(path docstore.Path) {
	m.snapshotPushes.WithLabelValues(string(path)).Inc()
}

// SnapshotApplied records the store version and catalog size after a push.
func (m *Metrics) SnapshotApplied(version uint64, catalogSize int) {
	m.snapshotVersion.Set(float64(version))
	m.catalogBooks.Set(float64(catalogSize))
}

// ClientConnected counts a new event stream client.
func (m *Metrics) ClientConnected() {
	m.streamClients.Inc()
}

// ClientDisconnected counts a closed event stream client.
func (m *Metrics) ClientDisconnected() {
	m.streamClients.Dec()
}

// ImageUploaded counts an image upload attempt.
func (m *Metrics) ImageUploaded(ok bool) {
	result := "ok"
	if !ok {
		result = "error"
	}
	m.imageUploads.WithLabelValues(result).Inc()
}

// Middleware records request counts and latency.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		m.requests.WithLabelValues(r.Method, strconv.Itoa(rec.status)).Inc()
		m.requestDuration.WithLabelValues(r.Method).Observe(time.Since(start).Seconds())
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

// Flush lets event streams flush through the recorder.
func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Unwrap exposes the underlying writer to http.ResponseController.
func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}
