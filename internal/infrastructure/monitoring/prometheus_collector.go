package monitoring

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "bore"

// PrometheusCollector implements the metric sinks of the relay, the
// permission resolver, the Discord client and the HTTP layer.
type PrometheusCollector struct {
	// Relay
	peersConnected  prometheus.Gauge
	handshakesTotal *prometheus.CounterVec
	inboundTotal    *prometheus.CounterVec
	broadcastsTotal *prometheus.CounterVec
	fanoutPeers     prometheus.Histogram
	evictionsTotal  prometheus.Counter

	// Permissions
	permissionLookups *prometheus.CounterVec
	identityLatency   *prometheus.HistogramVec

	// HTTP
	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec
}

// NewPrometheusCollector registers every metric on reg. Passing a fresh
// prometheus.NewRegistry() keeps tests isolated from the global registry.
func NewPrometheusCollector(reg prometheus.Registerer) *PrometheusCollector {
	factory := promauto.With(reg)
	return &PrometheusCollector{
		peersConnected: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "relay_peers_connected",
			Help:      "Number of authenticated relay peers",
		}),

		handshakesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "relay_handshakes_total",
			Help:      "Relay handshakes by outcome",
		}, []string{"outcome"}),

		inboundTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "relay_inbound_events_total",
			Help:      "Inbound relay frames by event and outcome",
		}, []string{"event", "outcome"}),

		broadcastsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "relay_broadcasts_total",
			Help:      "Commands broadcast to relay peers",
		}, []string{"event"}),

		fanoutPeers: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "relay_broadcast_fanout_peers",
			Help:      "Number of peers a broadcast was queued for",
			Buckets:   []float64{0, 1, 2, 4, 8, 16, 32},
		}),

		evictionsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "relay_slow_peer_evictions_total",
			Help:      "Peers disconnected because their send queue was full",
		}),

		permissionLookups: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "permission_lookups_total",
			Help:      "Permission resolutions by cache outcome",
		}, []string{"outcome"}),

		identityLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "identity_lookup_duration_seconds",
			Help:      "Discord guild member lookups by outcome",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		}, []string{"outcome"}),

		httpRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by method, route and status",
		}, []string{"method", "route", "status"}),

		httpDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}
}

func (p *PrometheusCollector) SetConnectedPeers(n int) {
	p.peersConnected.Set(float64(n))
}

func (p *PrometheusCollector) RecordHandshake(outcome string) {
	p.handshakesTotal.WithLabelValues(outcome).Inc()
}

func (p *PrometheusCollector) RecordInboundEvent(event, outcome string) {
	p.inboundTotal.WithLabelValues(event, outcome).Inc()
}

func (p *PrometheusCollector) RecordBroadcast(event string, peers int) {
	p.broadcastsTotal.WithLabelValues(event).Inc()
	p.fanoutPeers.Observe(float64(peers))
}

func (p *PrometheusCollector) RecordEviction() {
	p.evictionsTotal.Inc()
}

func (p *PrometheusCollector) RecordPermissionLookup(outcome string) {
	p.permissionLookups.WithLabelValues(outcome).Inc()
}

func (p *PrometheusCollector) ObserveIdentityLookup(outcome string, d time.Duration) {
	p.identityLatency.WithLabelValues(outcome).Observe(d.Seconds())
}

func (p *PrometheusCollector) RecordHTTPRequest(method, route string, status int, d time.Duration) {
	p.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	p.httpDuration.WithLabelValues(method, route).Observe(d.Seconds())
}
