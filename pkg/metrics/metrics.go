// Package metrics provides Prometheus metrics collection for the client's HTTP
// surface, the realtime channel and the tutor chat flow.
package metrics

import (
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/edumate-io/edumate_client/pkg/logger"
)

const (
	subsystem = "edumate_client"
)

// Metrics owns a private Prometheus registry and the collectors registered on it.
type Metrics struct {
	reg *prometheus.Registry

	TotalHTTPRequestsCounter prometheus.Counter
	HTTPRequestsCounters     map[int]prometheus.Counter
	httpCountersMu           *sync.Mutex // guards HTTPRequestsCounters; pointer so copies share it
	HTTPDurationHistogram    prometheus.Histogram

	RealtimeEventsReceived *prometheus.CounterVec
	RealtimeReconnects     prometheus.Counter
	RealtimeDroppedEmits   prometheus.Counter

	ChatMessagesSent      prometheus.Counter
	ChatSendFailures      prometheus.Counter
	ChatSendDurationHisto prometheus.Histogram

	customMetrics []prometheus.Collector

	log logger.Logger
}

// NewMetrics creates a new Metrics instance with the specified collector groups enabled.
func NewMetrics(httpCounters, realtimeCounters, chatCounters bool, l logger.Logger) Metrics {
	m := Metrics{
		reg: prometheus.NewRegistry(),
		log: l,
	}
	if httpCounters {
		m.TotalHTTPRequestsCounter = prometheus.NewCounter(prometheus.CounterOpts{
			Subsystem: subsystem,
			Name:      "total_http_requests",
			Help:      "Total HTTP requests",
		})
		m.reg.MustRegister(m.TotalHTTPRequestsCounter)
		m.HTTPRequestsCounters = make(map[int]prometheus.Counter)
		m.httpCountersMu = &sync.Mutex{}

		m.HTTPDurationHistogram = prometheus.NewHistogram(prometheus.HistogramOpts{
			Subsystem: subsystem,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   []float64{0.1, 0.3, 0.5, 0.7, 1.0, 3.0, 5.0, 7.0, 10.0},
		})
		m.reg.MustRegister(m.HTTPDurationHistogram)
	}
	if realtimeCounters {
		m.RealtimeEventsReceived = prometheus.NewCounterVec(prometheus.CounterOpts{
			Subsystem: subsystem,
			Name:      "realtime_events_received_total",
			Help:      "Server-pushed realtime events received, by event name",
		}, []string{"event"})
		m.RealtimeReconnects = prometheus.NewCounter(prometheus.CounterOpts{
			Subsystem: subsystem,
			Name:      "realtime_reconnects_total",
			Help:      "Realtime reconnection attempts",
		})
		m.RealtimeDroppedEmits = prometheus.NewCounter(prometheus.CounterOpts{
			Subsystem: subsystem,
			Name:      "realtime_dropped_emits_total",
			Help:      "Emits dropped because the connection was down",
		})
		m.reg.MustRegister(m.RealtimeEventsReceived, m.RealtimeReconnects, m.RealtimeDroppedEmits)
	}
	if chatCounters {
		m.ChatMessagesSent = prometheus.NewCounter(prometheus.CounterOpts{
			Subsystem: subsystem,
			Name:      "chat_messages_sent_total",
			Help:      "Tutor chat messages sent successfully",
		})
		m.ChatSendFailures = prometheus.NewCounter(prometheus.CounterOpts{
			Subsystem: subsystem,
			Name:      "chat_send_failures_total",
			Help:      "Tutor chat sends that surfaced an error",
		})
		m.ChatSendDurationHisto = prometheus.NewHistogram(prometheus.HistogramOpts{
			Subsystem: subsystem,
			Name:      "chat_send_duration_seconds",
			Help:      "Round-trip duration of tutor chat sends",
			Buckets:   []float64{0.1, 0.5, 1.0, 2.0, 5.0, 10.0, 30.0},
		})
		m.reg.MustRegister(m.ChatMessagesSent, m.ChatSendFailures, m.ChatSendDurationHisto)
	}
	return m
}

// Handler returns the Prometheus exposition handler backed by the private registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
}

// AddCustomMetric registers a custom Prometheus collector.
func (m *Metrics) AddCustomMetric(c prometheus.Collector) {
	m.customMetrics = append(m.customMetrics, c)
	m.reg.MustRegister(m.customMetrics[len(m.customMetrics)-1])
}

// IncrementHTTPResponseCounter increments the counter for the given HTTP status code.
func (m *Metrics) IncrementHTTPResponseCounter(code int) {
	m.httpCountersMu.Lock()
	counter, ok := m.HTTPRequestsCounters[code]
	if !ok {
		counter = newTotalHTTPReqMetric(code)
		m.HTTPRequestsCounters[code] = counter
		m.reg.MustRegister(counter)
	}
	m.httpCountersMu.Unlock()
	counter.Inc()
}

func newTotalHTTPReqMetric(code int) prometheus.Counter {
	return prometheus.NewCounter(prometheus.CounterOpts{
		Subsystem: subsystem,
		Name:      fmt.Sprintf("total_%d_http_responses", code),
		Help:      fmt.Sprintf("Total %s HTTP responses returned", http.StatusText(code)),
	})
}

// ObserveRealtimeEvent records one received realtime event.
func (m *Metrics) ObserveRealtimeEvent(event string) {
	if m.RealtimeEventsReceived != nil {
		m.RealtimeEventsReceived.WithLabelValues(event).Inc()
	}
}

// ObserveChatSend records the outcome of one tutor chat send.
func (m *Metrics) ObserveChatSend(duration time.Duration, err error) {
	if m.ChatSendDurationHisto != nil {
		m.ChatSendDurationHisto.Observe(duration.Seconds())
	}
	if err != nil {
		if m.ChatSendFailures != nil {
			m.ChatSendFailures.Inc()
		}
		return
	}
	if m.ChatMessagesSent != nil {
		m.ChatMessagesSent.Inc()
	}
}

// HTTPMiddleware returns a chi-compatible middleware that tracks HTTP metrics.
func (m *Metrics) HTTPMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			m.TotalHTTPRequestsCounter.Inc()

			rw := &responseWriter{ResponseWriter: w, statusCode: 200}
			next.ServeHTTP(rw, r)

			m.HTTPDurationHistogram.Observe(time.Since(start).Seconds())
			m.IncrementHTTPResponseCounter(rw.statusCode)
		})
	}
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}
