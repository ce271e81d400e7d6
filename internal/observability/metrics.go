package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce            sync.Once
	httpRequestsTotal       *prometheus.CounterVec
	httpLatencySeconds      *prometheus.HistogramVec
	httpErrorsTotal         *prometheus.CounterVec
	realtimeConnections     prometheus.Gauge
	messagesSentTotal       prometheus.Counter
	realtimeDeliveredTotal  prometheus.Counter
	realtimeDroppedTotal    prometheus.Counter
)

// RegisterMetrics initialises the Prometheus collectors for the chat API.
func RegisterMetrics() {
	registerOnce.Do(func() {
		httpRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chatwave_http_requests_total",
			Help: "Total number of HTTP requests served.",
		}, []string{"method", "route", "status"})

		httpLatencySeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "chatwave_http_latency_seconds",
			Help:    "Latency distribution for HTTP requests.",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.0},
		}, []string{"method", "route"})

		httpErrorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chatwave_http_errors_total",
			Help: "Total number of HTTP error responses.",
		}, []string{"method", "route", "status"})

		realtimeConnections = prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "chatwave_realtime_connections_active",
			Help: "Number of live websocket connections.",
		})

		messagesSentTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chatwave_messages_sent_total",
			Help: "Total number of chat messages persisted.",
		})

		realtimeDeliveredTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chatwave_realtime_events_delivered_total",
			Help: "Total number of realtime events delivered to connections.",
		})

		realtimeDroppedTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chatwave_realtime_events_dropped_total",
			Help: "Total number of realtime events dropped for slow or closed connections.",
		})

		prometheus.MustRegister(
			httpRequestsTotal,
			httpLatencySeconds,
			httpErrorsTotal,
			realtimeConnections,
			messagesSentTotal,
			realtimeDeliveredTotal,
			realtimeDroppedTotal,
		)
	})
}

// HTTPRequests exposes the counter for HTTP requests.
func HTTPRequests() *prometheus.CounterVec {
	RegisterMetrics()
	return httpRequestsTotal
}

// HTTPLatency exposes the latency histogram for HTTP requests.
func HTTPLatency() *prometheus.HistogramVec {
	RegisterMetrics()
	return httpLatencySeconds
}

// HTTPErrors exposes the counter for HTTP error responses.
func HTTPErrors() *prometheus.CounterVec {
	RegisterMetrics()
	return httpErrorsTotal
}

// RealtimeConnectionsActive exposes the live websocket connection gauge.
func RealtimeConnectionsActive() prometheus.Gauge {
	RegisterMetrics()
	return realtimeConnections
}

// MessagesSentTotal exposes the persisted-message counter.
func MessagesSentTotal() prometheus.Counter {
	RegisterMetrics()
	return messagesSentTotal
}

// RealtimeEventsDeliveredTotal exposes the delivered-event counter.
func RealtimeEventsDeliveredTotal() prometheus.Counter {
	RegisterMetrics()
	return realtimeDeliveredTotal
}

// RealtimeEventsDroppedTotal exposes the dropped-event counter.
func RealtimeEventsDroppedTotal() prometheus.Counter {
	RegisterMetrics()
	return realtimeDroppedTotal
}
