// Package metrics exports connection-manager measurements in Prometheus format.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/actual-software/chat-bridge/internal/realtime"
	common "github.com/actual-software/chat-bridge/pkg/common/metrics"
)

// Registry holds the bridge metrics and implements realtime.Observer.
type Registry struct {
	reg *prometheus.Registry

	ConnectionState   prometheus.Gauge
	ReconnectAttempts prometheus.Counter
	ReconnectDelay    prometheus.Histogram
	RefreshTotal      *prometheus.CounterVec
	MessagesTotal     *prometheus.CounterVec
	OutboundBuffered  prometheus.Gauge
	OutboundDropped   prometheus.Counter
	ErrorsTotal       *prometheus.CounterVec
}

// createConnectionMetrics creates socket lifecycle metrics.
// nolint:ireturn // Prometheus interfaces
func createConnectionMetrics(
	factory promauto.Factory,
) (prometheus.Gauge, prometheus.Counter, prometheus.Histogram) {
	state := factory.NewGauge(prometheus.GaugeOpts{
		Name: common.BridgeMetric(common.MetricConnectionState),
		Help: "Connection state (0 idle, 1 connecting, 2 open, 3 closing, 4 closed)",
	})
	attempts := factory.NewCounter(prometheus.CounterOpts{
		Name: common.BridgeMetric(common.MetricReconnectAttempts),
		Help: "Total number of scheduled reconnect attempts",
	})
	delay := factory.NewHistogram(prometheus.HistogramOpts{
		Name:    common.BridgeMetric("reconnect_delay_seconds"),
		Help:    "Delay before each scheduled reconnect in seconds",
		Buckets: []float64{0.5, 1, 2, 4, 8, 16, 30},
	})

	return state, attempts, delay
}

// createTrafficMetrics creates message and buffer metrics.
// nolint:ireturn // Prometheus interfaces
func createTrafficMetrics(
	factory promauto.Factory,
) (*prometheus.CounterVec, prometheus.Gauge, prometheus.Counter) {
	messages := factory.NewCounterVec(prometheus.CounterOpts{
		Name: common.BridgeMetric(common.MetricMessagesTotal),
		Help: "Total chat messages by direction",
	}, []string{common.LabelDirection})
	buffered := factory.NewGauge(prometheus.GaugeOpts{
		Name: common.BridgeMetric(common.MetricOutboundBuffered),
		Help: "Outbound messages waiting for an open socket",
	})
	dropped := factory.NewCounter(prometheus.CounterOpts{
		Name: common.BridgeMetric(common.MetricOutboundDropped),
		Help: "Outbound messages dropped because the buffer was full",
	})

	return messages, buffered, dropped
}

// NewRegistry creates the bridge metrics on a fresh Prometheus registry.
func NewRegistry() *Registry {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	state, attempts, delay := createConnectionMetrics(factory)
	messages, buffered, dropped := createTrafficMetrics(factory)

	return &Registry{
		reg:               reg,
		ConnectionState:   state,
		ReconnectAttempts: attempts,
		ReconnectDelay:    delay,
		RefreshTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: common.BridgeMetric(common.MetricRefreshTotal),
			Help: "Credential refreshes by result",
		}, []string{common.LabelResult}),
		MessagesTotal:    messages,
		OutboundBuffered: buffered,
		OutboundDropped:  dropped,
		ErrorsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: common.BridgeMetric(common.MetricErrorsTotal),
			Help: "Errors surfaced to the host by code",
		}, []string{common.LabelCode}),
	}
}

// Gatherer exposes the underlying registry.
func (r *Registry) Gatherer() prometheus.Gatherer {
	return r.reg
}

// StateChanged records the new connection state.
func (r *Registry) StateChanged(state realtime.ConnectionState) {
	r.ConnectionState.Set(float64(state))
}

// ReconnectScheduled records one scheduled reconnect.
func (r *Registry) ReconnectScheduled(_ int, delay time.Duration) {
	r.ReconnectAttempts.Inc()
	r.ReconnectDelay.Observe(delay.Seconds())
}

// RefreshCompleted records a refresh outcome.
func (r *Registry) RefreshCompleted(success bool) {
	result := common.ResultFailure
	if success {
		result = common.ResultSuccess
	}

	r.RefreshTotal.WithLabelValues(result).Inc()
}

// MessageReceived counts a forwarded inbound message.
func (r *Registry) MessageReceived() {
	r.MessagesTotal.WithLabelValues(common.DirectionIn).Inc()
}

// MessageSent counts a frame written to the socket.
func (r *Registry) MessageSent() {
	r.MessagesTotal.WithLabelValues(common.DirectionOut).Inc()
}

// BufferChanged records the outbound buffer depth.
func (r *Registry) BufferChanged(size int) {
	r.OutboundBuffered.Set(float64(size))
}

// BufferOverflow counts a dropped outbound frame.
func (r *Registry) BufferOverflow() {
	r.OutboundDropped.Inc()
}

// ErrorRaised counts an error by code.
func (r *Registry) ErrorRaised(code string) {
	r.ErrorsTotal.WithLabelValues(code).Inc()
}
