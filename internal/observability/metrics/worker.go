package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type WorkerMetrics struct {
	registry *prometheus.Registry

	processTotal    *prometheus.CounterVec
	processDuration *prometheus.HistogramVec
	processInFlight prometheus.Gauge
	guidesPerFile   *prometheus.HistogramVec
	queueLag        *prometheus.HistogramVec
}

func NewWorkerMetrics(service string) *WorkerMetrics {
	registry := prometheus.NewRegistry()

	processTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tiss",
			Subsystem: "worker",
			Name:      "file_process_total",
			Help:      "Total processed claim files by guide kind and status.",
		},
		[]string{"service", "kind", "status"},
	)
	processDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "tiss",
			Subsystem: "worker",
			Name:      "file_process_duration_seconds",
			Help:      "Claim file processing duration in seconds by status.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "status"},
	)
	processInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "tiss",
			Subsystem: "worker",
			Name:      "file_process_in_flight",
			Help:      "Number of in-flight claim file processing tasks.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	guidesPerFile := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "tiss",
			Subsystem: "worker",
			Name:      "guides_per_file",
			Help:      "Distribution of guides found per processed claim file.",
			Buckets:   []float64{1, 2, 5, 10, 20, 50, 100, 250, 500},
		},
		[]string{"service", "kind"},
	)
	queueLag := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "tiss",
			Subsystem: "worker",
			Name:      "queue_lag_seconds",
			Help:      "Delay between claim upload and processing start.",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300, 600},
		},
		[]string{"service"},
	)

	registry.MustRegister(processTotal, processDuration, processInFlight, guidesPerFile, queueLag)

	return &WorkerMetrics{
		registry:        registry,
		processTotal:    processTotal,
		processDuration: processDuration,
		processInFlight: processInFlight,
		guidesPerFile:   guidesPerFile,
		queueLag:        queueLag,
	}
}

func (m *WorkerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *WorkerMetrics) StartFile() {
	m.processInFlight.Inc()
}

func (m *WorkerMetrics) FinishFile(service, kind string, duration time.Duration, guides int, err error) {
	m.processInFlight.Dec()

	if kind == "" {
		kind = "unknown"
	}
	status := "success"
	if err != nil {
		status = "error"
	}

	m.processTotal.WithLabelValues(service, kind, status).Inc()
	m.processDuration.WithLabelValues(service, status).Observe(duration.Seconds())
	if err == nil {
		m.guidesPerFile.WithLabelValues(service, kind).Observe(float64(guides))
	}
}

func (m *WorkerMetrics) ObserveQueueLag(service string, lag time.Duration) {
	if lag < 0 {
		return
	}
	m.queueLag.WithLabelValues(service).Observe(lag.Seconds())
}
