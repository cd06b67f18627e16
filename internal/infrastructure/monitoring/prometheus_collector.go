package monitoring

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type PrometheusCollector struct {
	// Gauges
	usersConnected prometheus.Gauge
	callsActive    prometheus.Gauge

	// Counters
	connectionsTotal    prometheus.Counter
	messagesRelayed     *prometheus.CounterVec
	callsInitiatedTotal prometheus.Counter
	callOutcomes        *prometheus.CounterVec
	tokensMintedTotal   *prometheus.CounterVec

	// Histograms
	callDuration prometheus.Histogram
	ringDuration prometheus.Histogram
}

func NewPrometheusCollector() *PrometheusCollector {
	return NewPrometheusCollectorWith(prometheus.DefaultRegisterer)
}

// NewPrometheusCollectorWith registers the metrics on the given registerer.
// Tests use a private registry to avoid duplicate-registration panics.
func NewPrometheusCollectorWith(reg prometheus.Registerer) *PrometheusCollector {
	factory := promauto.With(reg)
	return &PrometheusCollector{
		usersConnected: factory.NewGauge(prometheus.GaugeOpts{
			Name: "carelink_users_connected",
			Help: "Number of users currently connected to the signaling hub",
		}),

		callsActive: factory.NewGauge(prometheus.GaugeOpts{
			Name: "carelink_calls_active",
			Help: "Number of call sessions currently ringing or accepted",
		}),

		connectionsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "carelink_connections_total",
			Help: "Total number of hub connections established",
		}),

		messagesRelayed: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "carelink_messages_relayed_total",
			Help: "Total number of events relayed between users",
		}, []string{"event"}),

		callsInitiatedTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "carelink_calls_initiated_total",
			Help: "Total number of call initiations",
		}),

		callOutcomes: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "carelink_call_outcomes_total",
			Help: "Total number of completed calls by outcome",
		}, []string{"outcome"}),

		tokensMintedTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "carelink_rtc_tokens_minted_total",
			Help: "Total number of media-relay tokens issued",
		}, []string{"source"}),

		callDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "carelink_call_duration_seconds",
			Help:    "Duration of calls from initiation to teardown",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12),
		}),

		ringDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "carelink_call_ring_duration_seconds",
			Help:    "Time a call spent ringing before it was answered or abandoned",
			Buckets: []float64{1, 2, 5, 10, 15, 30, 45, 60},
		}),
	}
}

func (p *PrometheusCollector) RecordUserConnected() {
	p.connectionsTotal.Inc()
	p.usersConnected.Inc()
}

func (p *PrometheusCollector) RecordUserDisconnected() {
	p.usersConnected.Dec()
}

func (p *PrometheusCollector) RecordMessageRelayed(event string) {
	p.messagesRelayed.WithLabelValues(event).Inc()
}

func (p *PrometheusCollector) RecordCallInitiated() {
	p.callsInitiatedTotal.Inc()
	p.callsActive.Inc()
}

// RecordCallEnded records one finished call. outcome is one of "accepted",
// "rejected", "timeout", "failed", "disconnected" or "ended".
func (p *PrometheusCollector) RecordCallEnded(outcome string, startTime time.Time) {
	p.callsActive.Dec()
	p.callOutcomes.WithLabelValues(outcome).Inc()
	p.callDuration.Observe(time.Since(startTime).Seconds())
}

func (p *PrometheusCollector) RecordRingDuration(startTime time.Time) {
	p.ringDuration.Observe(time.Since(startTime).Seconds())
}

// RecordTokenMinted records one issued token; source is "minted" or "cache".
func (p *PrometheusCollector) RecordTokenMinted(source string) {
	p.tokensMintedTotal.WithLabelValues(source).Inc()
}
