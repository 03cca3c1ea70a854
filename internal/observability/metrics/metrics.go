// Package metrics exposes the Prometheus instrumentation for the
// concierge service.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "concierge"

// Metrics holds the service counters and histograms. The zero value is
// safe to use; every method is a no-op on a nil receiver so callers can
// run without instrumentation in tests.
type Metrics struct {
	inboundMessages *prometheus.CounterVec
	debounceFlushes prometheus.Counter
	outboundReplies *prometheus.CounterVec
	handoffs        prometheus.Counter
	llmLatency      *prometheus.HistogramVec
	queueDepthGauge prometheus.Gauge
}

// New registers the concierge metrics on the given registerer.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		inboundMessages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "inbound_messages_total",
			Help:      "Guest messages received from the messaging channel.",
		}, []string{"channel"}),
		debounceFlushes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "debounce_flushes_total",
			Help:      "Merged message batches released after the quiet period.",
		}),
		outboundReplies: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "outbound_replies_total",
			Help:      "Replies sent to guests, labelled by intent.",
		}, []string{"intent"}),
		handoffs: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "handoffs_total",
			Help:      "Conversations escalated to a human agent.",
		}),
		llmLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "llm_request_seconds",
			Help:      "Latency of LLM completions.",
			Buckets:   []float64{0.25, 0.5, 1, 2, 4, 8, 16, 30},
		}, []string{"model"}),
		queueDepthGauge: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "worker_inflight_jobs",
			Help:      "Jobs currently being processed by the worker pool.",
		}),
	}

	reg.MustRegister(
		m.inboundMessages,
		m.debounceFlushes,
		m.outboundReplies,
		m.handoffs,
		m.llmLatency,
		m.queueDepthGauge,
	)
	return m
}

func (m *Metrics) InboundMessage(channel string) {
	if m == nil {
		return
	}
	m.inboundMessages.WithLabelValues(channel).Inc()
}

func (m *Metrics) DebounceFlush() {
	if m == nil {
		return
	}
	m.debounceFlushes.Inc()
}

func (m *Metrics) OutboundReply(intent string) {
	if m == nil {
		return
	}
	m.outboundReplies.WithLabelValues(intent).Inc()
}

func (m *Metrics) Handoff() {
	if m == nil {
		return
	}
	m.handoffs.Inc()
}

func (m *Metrics) ObserveLLMLatency(model string, d time.Duration) {
	if m == nil {
		return
	}
	m.llmLatency.WithLabelValues(model).Observe(d.Seconds())
}

func (m *Metrics) JobStarted() {
	if m == nil {
		return
	}
	m.queueDepthGauge.Inc()
}

func (m *Metrics) JobFinished() {
	if m == nil {
		return
	}
	m.queueDepthGauge.Dec()
}
