package metrics_test

import (
	"testing"

	"github.com/lightforgemedia/go-maxclient/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetricsRecord(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	m.FrameSent("PING")
	m.FrameSent("PING")
	m.FrameReceived("PING", true)
	m.FrameReceived("NOTIF_MESSAGE", false)
	m.SetQueueDepth(3)
	m.SetBreakerOpen(true)
	m.Dropped("retries_exhausted")
	m.HandlerError("message")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.FramesSent.WithLabelValues("PING")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.FramesReceived.WithLabelValues("PING", "reply")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.FramesReceived.WithLabelValues("NOTIF_MESSAGE", "notification")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.QueueDepth))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.BreakerOpen))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.MessagesDropped.WithLabelValues("retries_exhausted")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.HandlerErrors.WithLabelValues("message")))
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *metrics.Metrics
	assert.NotPanics(t, func() {
		m.FrameSent("PING")
		m.FrameReceived("PING", false)
		m.ParseError()
		m.SetPending(1)
		m.SetQueueDepth(1)
		m.SetBreakerOpen(false)
		m.SendFailure("timeout")
		m.Dropped("overflow")
		m.HandlerError("raw")
		m.IncomingDrop()
	})
}
