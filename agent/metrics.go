package agent

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/AkitaEngineering/asnip/metric"
)

// Metrics holds the agent's prometheus instruments. A nil *Metrics (no
// metrics registry configured) disables collection; every method is
// nil-receiver safe.
type Metrics struct {
	ticksTotal     prometheus.Counter
	payloadsQueued prometheus.Counter
	payloadsSent   prometheus.Counter
	sendErrors     prometheus.Counter
	remoteReceived prometheus.Counter
	decodeErrors   prometheus.Counter
	queueDepth     prometheus.Gauge
}

// newMetrics registers the agent's instruments with the given registry.
// A nil registry yields nil metrics.
func newMetrics(registry *metric.Registry) *Metrics {
	if registry == nil {
		return nil
	}

	m := &Metrics{
		ticksTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "asnip",
			Subsystem: "agent",
			Name:      "broadcast_ticks_total",
			Help:      "Total broadcast cycles executed",
		}),
		payloadsQueued: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "asnip",
			Subsystem: "agent",
			Name:      "payloads_queued_total",
			Help:      "Total payloads placed on the outbound queue",
		}),
		payloadsSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "asnip",
			Subsystem: "agent",
			Name:      "payloads_sent_total",
			Help:      "Total payloads handed to the transport",
		}),
		sendErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "asnip",
			Subsystem: "agent",
			Name:      "send_errors_total",
			Help:      "Total payloads dropped because the transport send failed",
		}),
		remoteReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "asnip",
			Subsystem: "agent",
			Name:      "remote_payloads_total",
			Help:      "Total telemetry payloads received from remote nodes",
		}),
		decodeErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "asnip",
			Subsystem: "agent",
			Name:      "decode_errors_total",
			Help:      "Total received payloads that failed to decode",
		}),
		queueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "asnip",
			Subsystem: "agent",
			Name:      "queue_depth",
			Help:      "Payloads currently awaiting transmission",
		}),
	}

	_ = registry.RegisterCounter("agent", "broadcast_ticks", m.ticksTotal)
	_ = registry.RegisterCounter("agent", "payloads_queued", m.payloadsQueued)
	_ = registry.RegisterCounter("agent", "payloads_sent", m.payloadsSent)
	_ = registry.RegisterCounter("agent", "send_errors", m.sendErrors)
	_ = registry.RegisterCounter("agent", "remote_payloads", m.remoteReceived)
	_ = registry.RegisterCounter("agent", "decode_errors", m.decodeErrors)
	_ = registry.RegisterGauge("agent", "queue_depth", m.queueDepth)

	return m
}

func (m *Metrics) tick() {
	if m == nil {
		return
	}
	m.ticksTotal.Inc()
}

func (m *Metrics) queued(depth int) {
	if m == nil {
		return
	}
	m.payloadsQueued.Inc()
	m.queueDepth.Set(float64(depth))
}

func (m *Metrics) sent(depth int) {
	if m == nil {
		return
	}
	m.payloadsSent.Inc()
	m.queueDepth.Set(float64(depth))
}

func (m *Metrics) sendError() {
	if m == nil {
		return
	}
	m.sendErrors.Inc()
}

func (m *Metrics) remote() {
	if m == nil {
		return
	}
	m.remoteReceived.Inc()
}

func (m *Metrics) decodeError() {
	if m == nil {
		return
	}
	m.decodeErrors.Inc()
}
