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
	"github.com/sony/gobreaker/v2"

	"github.com/kirillkom/filings-rag-assistant/internal/core/domain"
)

const namespace = "filings"

// HTTPServerMetrics holds the api process registry. It also implements the
// pipeline, agent and token-usage observers consumed by the core.
type HTTPServerMetrics struct {
	registry *prometheus.Registry
	service  string

	requestTotal    *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	requestInFlight prometheus.Gauge

	stageDuration        *prometheus.HistogramVec
	routingOutcomesTotal *prometheus.CounterVec
	routingResults       *prometheus.HistogramVec
	gradedTotal          *prometheus.CounterVec
	answersTotal         *prometheus.CounterVec
	noContextTotal       *prometheus.CounterVec
	llmTokensTotal       *prometheus.CounterVec
	agentRunsTotal       *prometheus.CounterVec
	agentIterations      *prometheus.HistogramVec
	agentToolCallsTotal  *prometheus.CounterVec
	breakerState         *prometheus.GaugeVec
}

func NewHTTPServerMetrics(service string) *HTTPServerMetrics {
	registry := prometheus.NewRegistry()

	m := &HTTPServerMetrics{
		registry: registry,
		service:  service,
		requestTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "requests_total",
				Help:      "Total HTTP requests processed.",
			},
			[]string{"service", "method", "path", "status"},
		),
		requestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "request_duration_seconds",
				Help:      "HTTP request duration in seconds.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"service", "method", "path"},
		),
		requestInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace:   namespace,
				Subsystem:   "http",
				Name:        "in_flight_requests",
				Help:        "Number of in-flight HTTP requests.",
				ConstLabels: prometheus.Labels{"service": service},
			},
		),
		stageDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "pipeline",
				Name:      "stage_duration_seconds",
				Help:      "Duration of routing and generation stages in seconds.",
				Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 20, 40, 80},
			},
			[]string{"service", "stage"},
		),
		routingOutcomesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "rag",
				Name:      "routing_outcomes_total",
				Help:      "Total routed queries by the data source that answered them.",
			},
			[]string{"service", "source"},
		),
		routingResults: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "rag",
				Name:      "outcome_results",
				Help:      "Distribution of evidence items per routed query.",
				Buckets:   []float64{0, 1, 2, 3, 5, 8, 13, 21},
			},
			[]string{"service", "source"},
		),
		gradedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "rag",
				Name:      "graded_documents_total",
				Help:      "Total graded candidates by verdict.",
			},
			[]string{"service", "verdict"},
		),
		answersTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "rag",
				Name:      "answers_total",
				Help:      "Total generated answers by source.",
			},
			[]string{"service", "source"},
		),
		noContextTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "rag",
				Name:      "no_context_total",
				Help:      "Total answers that fell back to the clarification message.",
			},
			[]string{"service", "source"},
		),
		llmTokensTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "llm",
				Name:      "tokens_total",
				Help:      "Token usage reported by the model server, by direction.",
			},
			[]string{"service", "direction", "model"},
		),
		agentRunsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "agent",
				Name:      "runs_total",
				Help:      "Total completed agent runs by status.",
			},
			[]string{"service", "status"},
		),
		agentIterations: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "agent",
				Name:      "iterations",
				Help:      "Distribution of agent loop iterations per run.",
				Buckets:   []float64{1, 2, 3, 4, 5, 6, 8, 10},
			},
			[]string{"service"},
		),
		agentToolCallsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "agent",
				Name:      "tool_calls_total",
				Help:      "Total tool calls performed by the agent.",
			},
			[]string{"service", "tool", "status"},
		),
		breakerState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "resilience",
				Name:      "breaker_state",
				Help:      "Circuit breaker state per operation: 0 closed, 1 half-open, 2 open.",
			},
			[]string{"service", "operation"},
		),
	}

	registry.MustRegister(
		m.requestTotal,
		m.requestDuration,
		m.requestInFlight,
		m.stageDuration,
		m.routingOutcomesTotal,
		m.routingResults,
		m.gradedTotal,
		m.answersTotal,
		m.noContextTotal,
		m.llmTokensTotal,
		m.agentRunsTotal,
		m.agentIterations,
		m.agentToolCallsTotal,
		m.breakerState,
	)
	return m
}

func (m *HTTPServerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *HTTPServerMetrics) Middleware(next http.Handler) http.Handler {
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
			m.service,
			r.Method,
			path,
			strconv.Itoa(recorder.statusCode),
		).Inc()
		m.requestDuration.WithLabelValues(m.service, r.Method, path).Observe(time.Since(start).Seconds())
	})
}

func normalizePath(path string) string {
	const historyPrefix = "/api/v1/query/chat-history/"
	switch {
	case strings.HasPrefix(path, historyPrefix) && len(path) > len(historyPrefix):
		return historyPrefix + "{session_id}"
	default:
		return path
	}
}

func (m *HTTPServerMetrics) ObserveStage(stage string, duration time.Duration) {
	m.stageDuration.WithLabelValues(m.service, stage).Observe(duration.Seconds())
}

func (m *HTTPServerMetrics) RecordRoutingOutcome(source domain.DataSource, resultCount int) {
	label := sourceLabel(source)
	m.routingOutcomesTotal.WithLabelValues(m.service, label).Inc()
	m.routingResults.WithLabelValues(m.service, label).Observe(float64(resultCount))
}

func (m *HTTPServerMetrics) RecordGrading(total, relevant int) {
	if relevant > 0 {
		m.gradedTotal.WithLabelValues(m.service, "relevant").Add(float64(relevant))
	}
	if dropped := total - relevant; dropped > 0 {
		m.gradedTotal.WithLabelValues(m.service, "dropped").Add(float64(dropped))
	}
}

func (m *HTTPServerMetrics) RecordAnswer(source domain.DataSource, clarification bool) {
	label := sourceLabel(source)
	m.answersTotal.WithLabelValues(m.service, label).Inc()
	if clarification {
		m.noContextTotal.WithLabelValues(m.service, label).Inc()
	}
}

func (m *HTTPServerMetrics) RecordTokenUsage(model string, promptTokens, completionTokens int) {
	if model == "" {
		model = "unknown"
	}
	if promptTokens > 0 {
		m.llmTokensTotal.WithLabelValues(m.service, "in", model).Add(float64(promptTokens))
	}
	if completionTokens > 0 {
		m.llmTokensTotal.WithLabelValues(m.service, "out", model).Add(float64(completionTokens))
	}
}

func (m *HTTPServerMetrics) RecordAgentRun(status string, iterations int) {
	if status == "" {
		status = "unknown"
	}
	m.agentRunsTotal.WithLabelValues(m.service, status).Inc()
	if iterations > 0 {
		m.agentIterations.WithLabelValues(m.service).Observe(float64(iterations))
	}
}

func (m *HTTPServerMetrics) RecordAgentToolCall(tool, status string) {
	if tool == "" {
		tool = "unknown"
	}
	if status == "" {
		status = "unknown"
	}
	m.agentToolCallsTotal.WithLabelValues(m.service, tool, status).Inc()
}

// RecordBreakerState matches resilience.StateListener.
func (m *HTTPServerMetrics) RecordBreakerState(operation string, _, to gobreaker.State) {
	var value float64
	switch to {
	case gobreaker.StateHalfOpen:
		value = 1
	case gobreaker.StateOpen:
		value = 2
	}
	m.breakerState.WithLabelValues(m.service, operation).Set(value)
}

func sourceLabel(source domain.DataSource) string {
	if source == "" {
		return "unknown"
	}
	return string(source)
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
