package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// WorkerMetrics observes ticket extractions. It satisfies ports.ExtractionObserver.
type WorkerMetrics struct {
	registry *prometheus.Registry
	service  string

	extractionTotal    *prometheus.CounterVec
	extractionDuration *prometheus.HistogramVec
	extractionInFlight prometheus.Gauge
	queueLag           *prometheus.HistogramVec
}

func NewWorkerMetrics(service string) *WorkerMetrics {
	registry := prometheus.NewRegistry()

	extractionTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sts",
			Subsystem: "worker",
			Name:      "extractions_total",
			Help:      "Finished ticket extractions by outcome.",
		},
		[]string{"service", "outcome"},
	)
	extractionDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "sts",
			Subsystem: "worker",
			Name:      "extraction_duration_seconds",
			Help:      "Ticket extraction duration in seconds by outcome.",
			Buckets:   []float64{0.25, 0.5, 1, 2, 5, 10, 20, 30, 60, 120},
		},
		[]string{"service", "outcome"},
	)
	extractionInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "sts",
			Subsystem: "worker",
			Name:      "extractions_in_flight",
			Help:      "Number of ticket extractions currently running.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	queueLag := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "sts",
			Subsystem: "worker",
			Name:      "queue_lag_seconds",
			Help:      "Delay between ticket submission and extraction start.",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300, 600},
		},
		[]string{"service"},
	)

	registry.MustRegister(extractionTotal, extractionDuration, extractionInFlight, queueLag)

	return &WorkerMetrics{
		registry:           registry,
		service:            service,
		extractionTotal:    extractionTotal,
		extractionDuration: extractionDuration,
		extractionInFlight: extractionInFlight,
		queueLag:           queueLag,
	}
}

func (m *WorkerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *WorkerMetrics) StartExtraction() {
	m.extractionInFlight.Inc()
}

func (m *WorkerMetrics) FinishExtraction(outcome string, duration time.Duration) {
	m.extractionInFlight.Dec()
	if outcome == "" {
		outcome = "unknown"
	}
	m.extractionTotal.WithLabelValues(m.service, outcome).Inc()
	m.extractionDuration.WithLabelValues(m.service, outcome).Observe(duration.Seconds())
}

func (m *WorkerMetrics) ObserveQueueLag(lag time.Duration) {
	if lag < 0 {
		return
	}
	m.queueLag.WithLabelValues(m.service).Observe(lag.Seconds())
}
