package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Drop reasons.
const (
	DropBufferFull  = "buffer_full"
	DropRateLimited = "rate_limited"
	DropInvalid     = "invalid"
	DropRejected    = "rejected"
)

// Metrics holds the hub collectors. A nil *Metrics is valid and records
// nothing.
type Metrics struct {
	registry *prometheus.Registry

	connections prometheus.Gauge
	rooms       prometheus.Gauge
	received    *prometheus.CounterVec
	delivered   *prometheus.CounterVec
	dropped     *prometheus.CounterVec
}

// New creates and registers the collectors on a private registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "pixelhub",
			Name:      "connections",
			Help:      "Live connections.",
		}),
		rooms: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "pixelhub",
			Name:      "rooms",
			Help:      "Known rooms, including empty rooms not yet evicted.",
		}),
		received: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pixelhub",
			Name:      "events_received_total",
			Help:      "Inbound events routed, by event name.",
		}, []string{"event"}),
		delivered: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pixelhub",
			Name:      "events_delivered_total",
			Help:      "Outbound events queued to connections, by event name.",
		}, []string{"event"}),
		dropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pixelhub",
			Name:      "events_dropped_total",
			Help:      "Events dropped, by reason.",
		}, []string{"reason"}),
	}

	m.registry.MustRegister(
		m.connections,
		m.rooms,
		m.received,
		m.delivered,
		m.dropped,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// SetConnections records the live connection count.
func (m *Metrics) SetConnections(n int) {
	if m == nil {
		return
	}
	m.connections.Set(float64(n))
}

// SetRooms records the known room count.
func (m *Metrics) SetRooms(n int) {
	if m == nil {
		return
	}
	m.rooms.Set(float64(n))
}

// Received counts one routed inbound event.
func (m *Metrics) Received(event string) {
	if m == nil {
		return
	}
	m.received.WithLabelValues(event).Inc()
}

// Delivered counts n queued outbound copies of event.
func (m *Metrics) Delivered(event string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.delivered.WithLabelValues(event).Add(float64(n))
}

// Dropped counts one dropped event.
func (m *Metrics) Dropped(reason string) {
	if m == nil {
		return
	}
	m.dropped.WithLabelValues(reason).Inc()
}
