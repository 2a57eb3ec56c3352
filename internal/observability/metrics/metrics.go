package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "fretebot"

// Metrics exposes counters/histograms for the messaging core. A nil *Metrics is a no-op.
type Metrics struct {
	webhookTotal     *prometheus.CounterVec
	webhookLatency   *prometheus.HistogramVec
	outboundTotal    *prometheus.CounterVec
	providerSkipped  *prometheus.CounterVec
	oracleTotal      *prometheus.CounterVec
	oracleLatency    *prometheus.HistogramVec
	transitionsTotal *prometheus.CounterVec
	opportunityTotal *prometheus.CounterVec
	droppedTotal     *prometheus.CounterVec
}

// New registers the collectors on reg, or the default registerer when nil.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		webhookTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "messaging",
			Name:      "inbound_webhook_total",
			Help:      "Total inbound webhook deliveries",
		}, []string{"provider", "status"}),
		webhookLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "messaging",
			Name:      "webhook_latency_seconds",
			Help:      "Latency of webhook handling up to dispatch",
			Buckets:   prometheus.DefBuckets,
		}, []string{"provider"}),
		outboundTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "messaging",
			Name:      "outbound_total",
			Help:      "Total outbound gateway operations per backend",
		}, []string{"provider", "operation", "status"}),
		providerSkipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "messaging",
			Name:      "provider_fallthrough_total",
			Help:      "Backends skipped or failed before the next one was tried",
		}, []string{"provider", "reason"}),
		oracleTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "oracle",
			Name:      "calls_total",
			Help:      "Extraction oracle calls",
		}, []string{"mode", "status"}),
		oracleLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "oracle",
			Name:      "latency_seconds",
			Help:      "Extraction oracle latency",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 40, 60, 120},
		}, []string{"mode"}),
		transitionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "conversation",
			Name:      "transitions_total",
			Help:      "Conversation state transitions",
		}, []string{"from", "to"}),
		opportunityTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "opportunity",
			Name:      "created_total",
			Help:      "Opportunities recorded from group traffic",
		}, []string{"priority"}),
		droppedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "inbound",
			Name:      "dropped_total",
			Help:      "Inbound messages dropped before processing",
		}, []string{"reason"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(
		m.webhookTotal,
		m.webhookLatency,
		m.outboundTotal,
		m.providerSkipped,
		m.oracleTotal,
		m.oracleLatency,
		m.transitionsTotal,
		m.opportunityTotal,
		m.droppedTotal,
	)
	return m
}

func (m *Metrics) ObserveWebhook(provider, status string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.webhookTotal.WithLabelValues(provider, status).Inc()
	m.webhookLatency.WithLabelValues(provider).Observe(elapsed.Seconds())
}

func (m *Metrics) ObserveOutbound(provider, operation, status string) {
	if m == nil {
		return
	}
	m.outboundTotal.WithLabelValues(provider, operation, status).Inc()
}

func (m *Metrics) ObserveFallthrough(provider, reason string) {
	if m == nil {
		return
	}
	m.providerSkipped.WithLabelValues(provider, reason).Inc()
}

func (m *Metrics) ObserveOracle(mode, status string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.oracleTotal.WithLabelValues(mode, status).Inc()
	m.oracleLatency.WithLabelValues(mode).Observe(elapsed.Seconds())
}

func (m *Metrics) ObserveTransition(from, to string) {
	if m == nil {
		return
	}
	m.transitionsTotal.WithLabelValues(from, to).Inc()
}

func (m *Metrics) ObserveOpportunity(priority string) {
	if m == nil {
		return
	}
	m.opportunityTotal.WithLabelValues(priority).Inc()
}

func (m *Metrics) ObserveDropped(reason string) {
	if m == nil {
		return
	}
	m.droppedTotal.WithLabelValues(reason).Inc()
}
