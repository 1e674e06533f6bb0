// Package metrics defines standardized metrics names, labels, and helper functions for chat bridge components.
package metrics

// StandardMetrics defines common metrics names and labels.
const (
	// Namespace for all chat bridge metrics.
	Namespace = "chat"

	// Subsystems.
	SubsystemBridge = "bridge"

	// Metric names.
	MetricConnectionState   = "connection_state"
	MetricReconnectAttempts = "reconnect_attempts_total"
	MetricRefreshTotal      = "refresh_total"
	MetricMessagesTotal     = "messages_total"
	MetricOutboundBuffered  = "outbound_buffered"
	MetricOutboundDropped   = "outbound_dropped_total"
	MetricErrorsTotal       = "errors_total"

	// Labels.
	LabelResult    = "result"
	LabelDirection = "direction"
	LabelCode      = "code"

	// Result values.
	ResultSuccess = "success"
	ResultFailure = "failure"

	// Direction values.
	DirectionIn  = "in"
	DirectionOut = "out"
)

// MetricName generates a fully qualified metric name.
func MetricName(subsystem, metric string) string {
	return Namespace + "_" + subsystem + "_" + metric
}

// BridgeMetric generates a bridge metric name.
func BridgeMetric(metric string) string {
	return MetricName(SubsystemBridge, metric)
}
