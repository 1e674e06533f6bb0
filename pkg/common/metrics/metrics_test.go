package metrics

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMetricName(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		subsystem string
		metric    string
		expected  string
	}{
		{
			name:      "bridge metric",
			subsystem: SubsystemBridge,
			metric:    MetricConnectionState,
			expected:  "chat_bridge_connection_state",
		},
		{
			name:      "custom subsystem and metric",
			subsystem: "custom",
			metric:    "custom_metric",
			expected:  "chat_custom_custom_metric",
		},
		{
			name:      "empty metric",
			subsystem: "test",
			metric:    "",
			expected:  "chat_test_",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.expected, MetricName(tt.subsystem, tt.metric))
		})
	}
}

func TestBridgeMetric(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "chat_bridge_reconnect_attempts_total", BridgeMetric(MetricReconnectAttempts))
	assert.Equal(t, "chat_bridge_refresh_total", BridgeMetric(MetricRefreshTotal))
	assert.Equal(t, "chat_bridge_messages_total", BridgeMetric(MetricMessagesTotal))
	assert.Equal(t, "chat_bridge_outbound_buffered", BridgeMetric(MetricOutboundBuffered))
	assert.Equal(t, "chat_bridge_errors_total", BridgeMetric(MetricErrorsTotal))
}
