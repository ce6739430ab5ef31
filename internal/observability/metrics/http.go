package metrics

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type HTTPServerMetrics struct {
	registry *prometheus.Registry

	requestTotal    *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	requestInFlight prometheus.Gauge

	statementMergesTotal *prometheus.CounterVec
	statementBankSize    *prometheus.HistogramVec
	reconcileRunsTotal   *prometheus.CounterVec
	reconcileRecords     *prometheus.HistogramVec
	exportDownloadsTotal *prometheus.CounterVec
	guidesRemovedTotal   *prometheus.CounterVec
}

func NewHTTPServerMetrics(service string) *HTTPServerMetrics {
	registry := prometheus.NewRegistry()

	requestTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tiss",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests processed.",
		},
		[]string{"service", "method", "path", "status"},
	)
	requestDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "tiss",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "method", "path"},
	)
	requestInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "tiss",
			Subsystem: "http",
			Name:      "in_flight_requests",
			Help:      "Number of in-flight HTTP requests.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	statementMergesTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tiss",
			Subsystem: "statement",
			Name:      "merges_total",
			Help:      "Total payment statements merged into the in-memory bank.",
		},
		[]string{"service"},
	)
	statementBankSize := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "tiss",
			Subsystem: "statement",
			Name:      "bank_aggregates",
			Help:      "Lot/period aggregate buckets held by the bank after each merge.",
			Buckets:   []float64{1, 2, 5, 10, 20, 50, 100, 250},
		},
		[]string{"service"},
	)
	reconcileRunsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tiss",
			Subsystem: "reconciliation",
			Name:      "runs_total",
			Help:      "Total reconciliation report builds.",
		},
		[]string{"service"},
	)
	reconcileRecords := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "tiss",
			Subsystem: "reconciliation",
			Name:      "records_per_run",
			Help:      "Distribution of reconciliation records produced per run.",
			Buckets:   []float64{1, 2, 5, 10, 20, 50, 100, 250},
		},
		[]string{"service"},
	)
	exportDownloadsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tiss",
			Subsystem: "export",
			Name:      "downloads_total",
			Help:      "Total report downloads by format.",
		},
		[]string{"service", "format"},
	)
	guidesRemovedTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tiss",
			Subsystem: "rewrite",
			Name:      "guides_removed_total",
			Help:      "Total duplicate guides removed from rewritten claim files.",
		},
		[]string{"service"},
	)

	registry.MustRegister(
		requestTotal,
		requestDuration,
		requestInFlight,
		statementMergesTotal,
		statementBankSize,
		reconcileRunsTotal,
		reconcileRecords,
		exportDownloadsTotal,
		guidesRemovedTotal,
	)

	return &HTTPServerMetrics{
		registry:             registry,
		requestTotal:         requestTotal,
		requestDuration:      requestDuration,
		requestInFlight:      requestInFlight,
		statementMergesTotal: statementMergesTotal,
		statementBankSize:    statementBankSize,
		reconcileRunsTotal:   reconcileRunsTotal,
		reconcileRecords:     reconcileRecords,
		exportDownloadsTotal: exportDownloadsTotal,
		guidesRemovedTotal:   guidesRemovedTotal,
	}
}

func (m *HTTPServerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *HTTPServerMetrics) Middleware(service string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		path := normalizePath(r.URL.Path)
		recorder := &statusRecorder{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
		}

		m.requestInFlight.Inc()
		defer m.requestInFlight.Dec()

		next.ServeHTTP(recorder, r)

		m.requestTotal.WithLabelValues(
			service,
			r.Method,
			path,
			strconv.Itoa(recorder.statusCode),
		).Inc()
		m.requestDuration.WithLabelValues(service, r.Method, path).Observe(time.Since(start).Seconds())
	})
}

func normalizePath(path string) string {
	switch {
	case path == "/v1/claims/preview":
		return path
	case strings.HasPrefix(path, "/v1/claims/") && strings.HasSuffix(path, "/rewrite"):
		return "/v1/claims/{claim_id}/rewrite"
	case strings.HasPrefix(path, "/v1/claims/"):
		return "/v1/claims/{claim_id}"
	default:
		return path
	}
}

func (m *HTTPServerMetrics) RecordStatementMerge(service string, bankAggregates int) {
	m.statementMergesTotal.WithLabelValues(service).Inc()
	m.statementBankSize.WithLabelValues(service).Observe(float64(bankAggregates))
}

func (m *HTTPServerMetrics) RecordReconcileRun(service string, records int) {
	m.reconcileRunsTotal.WithLabelValues(service).Inc()
	m.reconcileRecords.WithLabelValues(service).Observe(float64(records))
}

func (m *HTTPServerMetrics) RecordExportDownload(service, format string) {
	if format == "" {
		format = "unknown"
	}
	m.exportDownloadsTotal.WithLabelValues(service, format).Inc()
}

func (m *HTTPServerMetrics) RecordGuideRemoval(service string, removed int) {
	if removed <= 0 {
		return
	}
	m.guidesRemovedTotal.WithLabelValues(service).Add(float64(removed))
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (w *statusRecorder) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}

func (w *statusRecorder) Flush() {
	flusher, ok := w.ResponseWriter.(http.Flusher)
	if ok {
		flusher.Flush()
	}
}

func (w *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hijacker, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not implement http.Hijacker")
	}
	return hijacker.Hijack()
}

func (w *statusRecorder) Push(target string, opts *http.PushOptions) error {
	pusher, ok := w.ResponseWriter.(http.Pusher)
	if !ok {
		return http.ErrNotSupported
	}
	return pusher.Push(target, opts)
}
