package busclient

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// metrics are created once per Client against the registerer it was
// handed and served at GET /metrics alongside the rest of the process.
// Handing each Client its own registerer (cmd/server passes a fresh
// prometheus.NewRegistry()) avoids a duplicate registration panic against
// the global default registerer when more than one Client is built.
type metrics struct {
	callsTotal   *prometheus.CounterVec
	callDuration *prometheus.HistogramVec
}

func newMetrics(reg prometheus.Registerer) *metrics {
	factory := promauto.With(reg)
	return &metrics{
		callsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "gateway_bus_calls_total",
			Help: "Bus RPC calls by outcome.",
		}, []string{"outcome"}),
		callDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "gateway_bus_call_duration_seconds",
			Help:    "Bus RPC call latency in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"outcome"}),
	}
}

// Outcome labels recorded against both instruments.
const (
	outcomeOK                = "ok"
	outcomeCancelled         = "cancelled"
	outcomeTimeout           = "timeout"
	outcomeBrokerUnavailable = "broker_unavailable"
	outcomePublishError      = "publish_error"
)
