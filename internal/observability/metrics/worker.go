package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kirillkom/filings-rag-assistant/internal/core/domain"
)

// WorkerMetrics covers the turn-event consumer process.
type WorkerMetrics struct {
	registry *prometheus.Registry
	service  string

	turnsTotal    *prometheus.CounterVec
	handleLatency *prometheus.HistogramVec
	inFlight      prometheus.Gauge
	eventLag      *prometheus.HistogramVec
}

func NewWorkerMetrics(service string) *WorkerMetrics {
	registry := prometheus.NewRegistry()

	turnsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "worker",
			Name:      "turn_events_total",
			Help:      "Total consumed turn events by answering source and status.",
		},
		[]string{"service", "source", "status"},
	)
	handleLatency := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "worker",
			Name:      "turn_event_handle_seconds",
			Help:      "Turn event handling duration in seconds by status.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "status"},
	)
	inFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace:   namespace,
			Subsystem:   "worker",
			Name:        "turn_events_in_flight",
			Help:        "Number of turn events being handled.",
			ConstLabels: prometheus.Labels{"service": service},
		},
	)
	eventLag := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "worker",
			Name:      "turn_event_lag_seconds",
			Help:      "Delay between a turn being recorded and its event being consumed.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"service"},
	)

	registry.MustRegister(turnsTotal, handleLatency, inFlight, eventLag)

	return &WorkerMetrics{
		registry:      registry,
		service:       service,
		turnsTotal:    turnsTotal,
		handleLatency: handleLatency,
		inFlight:      inFlight,
		eventLag:      eventLag,
	}
}

func (m *WorkerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *WorkerMetrics) StartEvent() {
	m.inFlight.Inc()
}

func (m *WorkerMetrics) FinishEvent(source domain.DataSource, duration time.Duration, err error) {
	m.inFlight.Dec()

	status := "success"
	if err != nil {
		status = "error"
	}
	m.turnsTotal.WithLabelValues(m.service, sourceLabel(source), status).Inc()
	m.handleLatency.WithLabelValues(m.service, status).Observe(duration.Seconds())
}

func (m *WorkerMetrics) ObserveEventLag(lag time.Duration) {
	if lag < 0 {
		return
	}
	m.eventLag.WithLabelValues(m.service).Observe(lag.Seconds())
}
