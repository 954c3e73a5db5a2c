// Package metrics exports client activity as Prometheus metrics.
package metrics

import (
	"context"
	"errors"
	"time"

	"github.com/codefionn/vtsclient/internal/clienterr"
	"github.com/codefionn/vtsclient/internal/data"
	"github.com/codefionn/vtsclient/internal/mux"
	"github.com/codefionn/vtsclient/internal/retry"
	"github.com/codefionn/vtsclient/internal/service"
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "vtsclient"

var allStates = []retry.State{
	retry.StateDisconnected,
	retry.StateConnecting,
	retry.StateConnected,
	retry.StateReconnecting,
	retry.StateFailed,
	retry.StateClosed,
}

// Collector holds the client metrics. It implements mux.Observer and
// provides hooks for the other layers.
type Collector struct {
	requests        *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	sent            *prometheus.CounterVec
	frames          *prometheus.CounterVec
	malformed       prometheus.Counter
	pending         prometheus.Gauge
	handshakes      *prometheus.CounterVec
	state           *prometheus.GaugeVec
}

var _ mux.Observer = (*Collector)(nil)

// New creates the collector and registers it with reg. A nil reg registers
// with the default registry.
func New(reg prometheus.Registerer) (*Collector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	c := &Collector{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "Calls made through the client by message type and outcome.",
		}, []string{"message_type", "outcome"}),

		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "request_duration_seconds",
			Help:      "Call latency including authentication and reconnect retries.",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10},
		}, []string{"message_type"}),

		sent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "mux",
			Name:      "requests_sent_total",
			Help:      "Request frames queued for writing, including retries and handshakes.",
		}, []string{"message_type"}),

		frames: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "mux",
			Name:      "frames_total",
			Help:      "Inbound frames by route.",
		}, []string{"route"}),

		malformed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "mux",
			Name:      "malformed_frames_total",
			Help:      "Inbound frames that could not be decoded.",
		}),

		pending: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "mux",
			Name:      "pending_requests",
			Help:      "Calls waiting for their response on the current connection.",
		}),

		handshakes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "auth",
			Name:      "handshakes_total",
			Help:      "Authentication handshakes by outcome.",
		}, []string{"outcome"}),

		state: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connection_state",
			Help:      "Current connection state (1 for the active state label, 0 for others).",
		}, []string{"state"}),
	}

	for _, col := range []prometheus.Collector{
		c.requests, c.requestDuration, c.sent, c.frames,
		c.malformed, c.pending, c.handshakes, c.state,
	} {
		if err := reg.Register(col); err != nil {
			return nil, err
		}
	}

	c.StateChanged(retry.StateDisconnected)
	return c, nil
}

// Layer records the outcome and latency of every call passing through it
func (c *Collector) Layer() service.Layer {
	return func(next service.Service) service.Service {
		return service.Func(func(ctx context.Context, req *data.RequestEnvelope) (*data.ResponseEnvelope, error) {
			start := time.Now()
			resp, err := next.Call(ctx, req)
			c.requestDuration.WithLabelValues(req.MessageType).Observe(time.Since(start).Seconds())
			c.requests.WithLabelValues(req.MessageType, Outcome(resp, err)).Inc()
			return resp, err
		})
	}
}

func (c *Collector) RequestSent(messageType string) {
	c.sent.WithLabelValues(messageType).Inc()
}

func (c *Collector) FrameRouted(route mux.Route) {
	c.frames.WithLabelValues(route.String()).Inc()
}

func (c *Collector) FrameMalformed() {
	c.malformed.Inc()
}

func (c *Collector) PendingCount(n int) {
	c.pending.Set(float64(n))
}

// HandshakeDone counts a finished handshake
func (c *Collector) HandshakeDone(err error) {
	c.handshakes.WithLabelValues(Outcome(nil, err)).Inc()
}

// StateChanged marks s as the active connection state
func (c *Collector) StateChanged(s retry.State) {
	for _, state := range allStates {
		v := 0.0
		if state == s {
			v = 1
		}
		c.state.WithLabelValues(state.String()).Set(v)
	}
}

// Outcome names the result of a call for metric labels
func Outcome(resp *data.ResponseEnvelope, err error) string {
	switch {
	case err == nil && resp != nil && resp.IsAPIError():
		return "api_error"
	case err == nil:
		return "ok"
	case errors.Is(err, context.Canceled):
		return "canceled"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	}

	switch clienterr.KindOf(err) {
	case clienterr.KindConnectionLost:
		return "connection_lost"
	case clienterr.KindAuthentication:
		return "auth_error"
	case clienterr.KindProtocol:
		return "protocol_error"
	case clienterr.KindApplication:
		return "api_error"
	case clienterr.KindFailed:
		return "failed"
	case clienterr.KindClosed:
		return "closed"
	default:
		return "error"
	}
}
