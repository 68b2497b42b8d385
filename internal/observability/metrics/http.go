package metrics

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type HTTPServerMetrics struct {
	registry *prometheus.Registry

	requestTotal    *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	requestInFlight prometheus.Gauge

	chatOutcomesTotal      *prometheus.CounterVec
	chatDuration           *prometheus.HistogramVec
	injectionDetectedTotal *prometheus.CounterVec
	parseRepairsTotal      *prometheus.CounterVec
	parseFallbacksTotal    *prometheus.CounterVec
	retrievalHitTotal      *prometheus.CounterVec
	retrievalNoContext     *prometheus.CounterVec
	retrievedPassages      *prometheus.HistogramVec
	citationBindingsTotal  *prometheus.CounterVec
}

func NewHTTPServerMetrics(service string) *HTTPServerMetrics {
	registry := prometheus.NewRegistry()

	requestTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fa",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests processed.",
		},
		[]string{"service", "method", "path", "status"},
	)
	requestDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "fa",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "method", "path"},
	)
	requestInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "fa",
			Subsystem: "http",
			Name:      "in_flight_requests",
			Help:      "Number of in-flight HTTP requests.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	chatOutcomesTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fa",
			Subsystem: "chat",
			Name:      "outcomes_total",
			Help:      "Total chat turns by outcome.",
		},
		[]string{"service", "outcome"},
	)
	chatDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "fa",
			Subsystem: "chat",
			Name:      "duration_seconds",
			Help:      "End-to-end chat turn duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service"},
	)
	injectionDetectedTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fa",
			Subsystem: "sanitizer",
			Name:      "injections_detected_total",
			Help:      "Total injection patterns detected by origin.",
		},
		[]string{"service", "origin"},
	)
	parseRepairsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fa",
			Subsystem: "reconciler",
			Name:      "parse_repairs_total",
			Help:      "Total answers re-requested after a malformed model response.",
		},
		[]string{"service"},
	)
	parseFallbacksTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fa",
			Subsystem: "reconciler",
			Name:      "parse_fallbacks_total",
			Help:      "Total answers replaced by the safe fallback response.",
		},
		[]string{"service"},
	)
	retrievalHitTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fa",
			Subsystem: "retrieval",
			Name:      "hit_total",
			Help:      "Total retrievals with at least one passage.",
		},
		[]string{"service"},
	)
	retrievalNoContext := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fa",
			Subsystem: "retrieval",
			Name:      "no_context_total",
			Help:      "Total retrievals without any usable passage.",
		},
		[]string{"service"},
	)
	retrievedPassages := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "fa",
			Subsystem: "retrieval",
			Name:      "passages",
			Help:      "Distribution of fused passages per retrieval.",
			Buckets:   []float64{0, 1, 2, 3, 5, 8, 13},
		},
		[]string{"service"},
	)
	citationBindingsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fa",
			Subsystem: "reconciler",
			Name:      "citation_bindings_total",
			Help:      "Total citation bindings by result.",
		},
		[]string{"service", "result"},
	)

	registry.MustRegister(
		requestTotal,
		requestDuration,
		requestInFlight,
		chatOutcomesTotal,
		chatDuration,
		injectionDetectedTotal,
		parseRepairsTotal,
		parseFallbacksTotal,
		retrievalHitTotal,
		retrievalNoContext,
		retrievedPassages,
		citationBindingsTotal,
	)

	return &HTTPServerMetrics{
		registry:               registry,
		requestTotal:           requestTotal,
		requestDuration:        requestDuration,
		requestInFlight:        requestInFlight,
		chatOutcomesTotal:      chatOutcomesTotal,
		chatDuration:           chatDuration,
		injectionDetectedTotal: injectionDetectedTotal,
		parseRepairsTotal:      parseRepairsTotal,
		parseFallbacksTotal:    parseFallbacksTotal,
		retrievalHitTotal:      retrievalHitTotal,
		retrievalNoContext:     retrievalNoContext,
		retrievedPassages:      retrievedPassages,
		citationBindingsTotal:  citationBindingsTotal,
	}
}

func (m *HTTPServerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *HTTPServerMetrics) Middleware(service string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
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
			r.URL.Path,
			strconv.Itoa(recorder.statusCode),
		).Inc()
		m.requestDuration.WithLabelValues(service, r.Method, r.URL.Path).Observe(time.Since(start).Seconds())
	})
}

func (m *HTTPServerMetrics) RecordChatOutcome(service, outcome string, duration time.Duration) {
	if outcome == "" {
		outcome = "unknown"
	}
	m.chatOutcomesTotal.WithLabelValues(service, outcome).Inc()
	m.chatDuration.WithLabelValues(service).Observe(duration.Seconds())
}

func (m *HTTPServerMetrics) RecordInjectionDetected(service, origin string) {
	if origin == "" {
		origin = "unknown"
	}
	m.injectionDetectedTotal.WithLabelValues(service, origin).Inc()
}

func (m *HTTPServerMetrics) RecordParseRepair(service string) {
	m.parseRepairsTotal.WithLabelValues(service).Inc()
}

func (m *HTTPServerMetrics) RecordParseFallback(service string) {
	m.parseFallbacksTotal.WithLabelValues(service).Inc()
}

func (m *HTTPServerMetrics) RecordRetrieval(service string, passageCount int) {
	m.retrievedPassages.WithLabelValues(service).Observe(float64(passageCount))
	if passageCount > 0 {
		m.retrievalHitTotal.WithLabelValues(service).Inc()
		return
	}
	m.retrievalNoContext.WithLabelValues(service).Inc()
}

func (m *HTTPServerMetrics) RecordCitationBinding(service, result string) {
	if result == "" {
		result = "unknown"
	}
	m.citationBindingsTotal.WithLabelValues(service, result).Inc()
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
