// Package metrics exposes Prometheus collectors for a client session.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "maxclient"

// Metrics holds the session collectors.
type Metrics struct {
	FramesSent      *prometheus.CounterVec
	FramesReceived  *prometheus.CounterVec
	ParseErrors     prometheus.Counter
	PendingRequests prometheus.Gauge
	QueueDepth      prometheus.Gauge
	BreakerOpen     prometheus.Gauge
	SendFailures    *prometheus.CounterVec
	MessagesDropped *prometheus.CounterVec
	HandlerErrors   *prometheus.CounterVec
	IncomingDropped prometheus.Counter
}

// New registers the session collectors on reg. A nil reg uses
// prometheus.DefaultRegisterer.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	return &Metrics{
		FramesSent: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_sent_total",
			Help:      "Frames written to the transport, by opcode.",
		}, []string{"opcode"}),
		FramesReceived: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_received_total",
			Help:      "Frames read from the transport, by opcode and kind (reply or notification).",
		}, []string{"opcode", "kind"}),
		ParseErrors: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frame_parse_errors_total",
			Help:      "Inbound frames dropped because they could not be parsed.",
		}),
		PendingRequests: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pending_requests",
			Help:      "Requests waiting for a reply.",
		}),
		QueueDepth: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "outgoing",
			Name:      "queue_depth",
			Help:      "Messages waiting in the outgoing queue.",
		}),
		BreakerOpen: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "outgoing",
			Name:      "breaker_open",
			Help:      "1 while the outgoing circuit breaker is open.",
		}),
		SendFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "outgoing",
			Name:      "send_failures_total",
			Help:      "Failed send attempts from the outgoing queue, by error class.",
		}, []string{"class"}),
		MessagesDropped: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "outgoing",
			Name:      "messages_dropped_total",
			Help:      "Messages removed from the outgoing path without being delivered, by reason.",
		}, []string{"reason"}),
		HandlerErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "handler_errors_total",
			Help:      "Errors and panics raised by notification handlers, by category.",
		}, []string{"category"}),
		IncomingDropped: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "incoming_dropped_total",
			Help:      "Notifications dropped because the incoming queue was full.",
		}),
	}
}

func (m *Metrics) FrameSent(opcode string) {
	if m == nil {
		return
	}
	m.FramesSent.WithLabelValues(opcode).Inc()
}

func (m *Metrics) FrameReceived(opcode string, reply bool) {
	if m == nil {
		return
	}
	kind := "notification"
	if reply {
		kind = "reply"
	}
	m.FramesReceived.WithLabelValues(opcode, kind).Inc()
}

func (m *Metrics) ParseError() {
	if m == nil {
		return
	}
	m.ParseErrors.Inc()
}

func (m *Metrics) SetPending(n int) {
	if m == nil {
		return
	}
	m.PendingRequests.Set(float64(n))
}

func (m *Metrics) SetQueueDepth(n int) {
	if m == nil {
		return
	}
	m.QueueDepth.Set(float64(n))
}

func (m *Metrics) SetBreakerOpen(open bool) {
	if m == nil {
		return
	}
	v := 0.0
	if open {
		v = 1
	}
	m.BreakerOpen.Set(v)
}

func (m *Metrics) SendFailure(class string) {
	if m == nil {
		return
	}
	m.SendFailures.WithLabelValues(class).Inc()
}

func (m *Metrics) Dropped(reason string) {
	if m == nil {
		return
	}
	m.MessagesDropped.WithLabelValues(reason).Inc()
}

func (m *Metrics) HandlerError(category string) {
	if m == nil {
		return
	}
	m.HandlerErrors.WithLabelValues(category).Inc()
}

func (m *Metrics) IncomingDrop() {
	if m == nil {
		return
	}
	m.IncomingDropped.Inc()
}
