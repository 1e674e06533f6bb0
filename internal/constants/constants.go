// Package constants defines shared constants for the chat bridge.
package constants

import "time"

// File permissions.
const (
	// DirPermissions is the standard directory permission (rwx------).
	DirPermissions = 0o700
	// FilePermissions is the standard file permission (rw-------).
	FilePermissions = 0o600
)

// Reconnect policy.
const (
	// ReconnectBaseDelay is the first reconnect delay.
	ReconnectBaseDelay = 500 * time.Millisecond
	// ReconnectMaxDelay caps every reconnect delay.
	ReconnectMaxDelay = 30 * time.Second
	// ReconnectMultiplier grows the delay per attempt.
	ReconnectMultiplier = 2.0
	// MaxReconnectAttempts is the reconnect budget between successful opens.
	MaxReconnectAttempts = 5
)

// Credential refresh.
const (
	// RefreshSafetyMargin is how long before expiry the refresh fires.
	RefreshSafetyMargin = 30 * time.Second
	// RefreshRequestTimeout bounds one refresh call.
	RefreshRequestTimeout = 10 * time.Second
	// MaxRefreshResponseSize caps the token endpoint response body (64KB).
	MaxRefreshResponseSize = 64 << 10
)

// Socket limits and timeouts.
const (
	// HandshakeTimeout bounds the WebSocket upgrade.
	HandshakeTimeout = 10 * time.Second
	// WriteTimeout is the per-frame write deadline.
	WriteTimeout = 10 * time.Second
	// PingInterval is the keepalive period.
	PingInterval = 30 * time.Second
	// DefaultMaxMessageSize is the default inbound frame limit (1MB).
	DefaultMaxMessageSize = 1 << 20
	// DefaultOutboundBuffer is the default outbound buffer capacity.
	DefaultOutboundBuffer = 1024
	// CommandQueueSize is the manager event queue depth.
	CommandQueueSize = 256
)

// Service endpoints.
const (
	// DefaultWebSocketURL is the socket base when none is configured.
	DefaultWebSocketURL = "ws://localhost:8000/ws"
	// DefaultAPIURL is the REST base when none is configured.
	DefaultAPIURL = "http://localhost:8000/api"
	// DefaultMetricsEndpoint is the metrics listen address.
	DefaultMetricsEndpoint = "localhost:9091"
	// DefaultRedisChannel is the pub/sub channel for alerts.
	DefaultRedisChannel = "chat-bridge:alerts"
	// GracefulShutdownTimeout bounds HTTP server shutdown.
	GracefulShutdownTimeout = 5 * time.Second
)

// Metrics server.
const (
	// MetricsServerReadTimeout bounds reading a metrics request.
	MetricsServerReadTimeout = 5 * time.Second
	// MetricsServerWriteTimeout bounds writing a metrics response.
	MetricsServerWriteTimeout = 10 * time.Second
)
