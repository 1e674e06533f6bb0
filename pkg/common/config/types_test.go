package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestConnectionConfig_Durations(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		config    ConnectionConfig
		handshake time.Duration
		write     time.Duration
		ping      time.Duration
	}{
		{
			name:   "zero values",
			config: ConnectionConfig{},
		},
		{
			name: "typical values",
			config: ConnectionConfig{
				HandshakeTimeoutMs: 10000,
				WriteTimeoutMs:     5000,
				PingIntervalMs:     30000,
			},
			handshake: 10 * time.Second,
			write:     5 * time.Second,
			ping:      30 * time.Second,
		},
		{
			name: "sub-second values",
			config: ConnectionConfig{
				HandshakeTimeoutMs: 250,
				WriteTimeoutMs:     100,
				PingIntervalMs:     500,
			},
			handshake: 250 * time.Millisecond,
			write:     100 * time.Millisecond,
			ping:      500 * time.Millisecond,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, tt.handshake, tt.config.GetHandshakeTimeout())
			assert.Equal(t, tt.write, tt.config.GetWriteTimeout())
			assert.Equal(t, tt.ping, tt.config.GetPingInterval())
		})
	}
}

func TestReconnectConfig_Delays(t *testing.T) {
	t.Parallel()

	cfg := ReconnectConfig{InitialDelayMs: 500, MaxDelayMs: 30000, Multiplier: 2, MaxAttempts: 5}

	assert.Equal(t, 500*time.Millisecond, cfg.GetInitialDelay())
	assert.Equal(t, 30*time.Second, cfg.GetMaxDelay())
}

func TestRefreshConfig_Durations(t *testing.T) {
	t.Parallel()

	cfg := RefreshConfig{SafetyMarginMs: 30000, RequestTimeoutMs: 10000}

	assert.Equal(t, 30*time.Second, cfg.GetSafetyMargin())
	assert.Equal(t, 10*time.Second, cfg.GetRequestTimeout())
}
