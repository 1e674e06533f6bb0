// Package config provides configuration types shared by chat bridge components.
package config

import "time"

// ConnectionConfig represents WebSocket connection settings.
type ConnectionConfig struct {
	HandshakeTimeoutMs int   `mapstructure:"handshake_timeout_ms" yaml:"handshake_timeout_ms"`
	WriteTimeoutMs     int   `mapstructure:"write_timeout_ms"     yaml:"write_timeout_ms"`
	PingIntervalMs     int   `mapstructure:"ping_interval_ms"     yaml:"ping_interval_ms"`
	MaxMessageSize     int64 `mapstructure:"max_message_size"     yaml:"max_message_size"`
	OutboundBuffer     int   `mapstructure:"outbound_buffer"      yaml:"outbound_buffer"` // 0 means unbounded
}

// ReconnectConfig represents reconnect backoff configuration.
type ReconnectConfig struct {
	InitialDelayMs int     `mapstructure:"initial_delay_ms" yaml:"initial_delay_ms"`
	MaxDelayMs     int     `mapstructure:"max_delay_ms"     yaml:"max_delay_ms"`
	Multiplier     float64 `mapstructure:"multiplier"       yaml:"multiplier"`
	MaxAttempts    int     `mapstructure:"max_attempts"     yaml:"max_attempts"`
}

// RefreshConfig represents credential refresh configuration.
type RefreshConfig struct {
	SafetyMarginMs   int `mapstructure:"safety_margin_ms"   yaml:"safety_margin_ms"`
	RequestTimeoutMs int `mapstructure:"request_timeout_ms" yaml:"request_timeout_ms"`
}

// MetricsConfig represents standardized metrics configuration.
type MetricsConfig struct {
	Enabled  bool   `mapstructure:"enabled"  yaml:"enabled"`
	Endpoint string `mapstructure:"endpoint" yaml:"endpoint"` // Host:port for metrics endpoint
}

// LoggingConfig represents standardized logging configuration.
type LoggingConfig struct {
	Level         string         `mapstructure:"level"          yaml:"level"`  // debug, info, warn, error
	Format        string         `mapstructure:"format"         yaml:"format"` // json, console
	Output        string         `mapstructure:"output"         yaml:"output"` // stdout, stderr, file path
	IncludeCaller bool           `mapstructure:"include_caller" yaml:"include_caller"`
	Sampling      SamplingConfig `mapstructure:"sampling"       yaml:"sampling"`
}

// SamplingConfig represents standardized log sampling configuration.
type SamplingConfig struct {
	Enabled    bool `mapstructure:"enabled"    yaml:"enabled"`
	Initial    int  `mapstructure:"initial"    yaml:"initial"`
	Thereafter int  `mapstructure:"thereafter" yaml:"thereafter"`
}

// TracingConfig represents standardized distributed tracing configuration.
type TracingConfig struct {
	Enabled        bool    `mapstructure:"enabled"         yaml:"enabled"`
	ServiceName    string  `mapstructure:"service_name"    yaml:"service_name"`
	ServiceVersion string  `mapstructure:"service_version" yaml:"service_version"`
	Environment    string  `mapstructure:"environment"     yaml:"environment"`
	SamplerType    string  `mapstructure:"sampler_type"    yaml:"sampler_type"`  // "always_on", "always_off", "traceidratio"
	SamplerParam   float64 `mapstructure:"sampler_param"   yaml:"sampler_param"` // For traceidratio sampler
	ExporterType   string  `mapstructure:"exporter_type"   yaml:"exporter_type"` // "otlp", "stdout"
	OTLPEndpoint   string  `mapstructure:"otlp_endpoint"   yaml:"otlp_endpoint"`
	OTLPInsecure   bool    `mapstructure:"otlp_insecure"   yaml:"otlp_insecure"`
}

// GetHandshakeTimeout returns the WebSocket handshake timeout.
func (c *ConnectionConfig) GetHandshakeTimeout() time.Duration {
	return time.Duration(c.HandshakeTimeoutMs) * time.Millisecond
}

// GetWriteTimeout returns the per-frame write deadline.
func (c *ConnectionConfig) GetWriteTimeout() time.Duration {
	return time.Duration(c.WriteTimeoutMs) * time.Millisecond
}

// GetPingInterval returns the keepalive ping period.
func (c *ConnectionConfig) GetPingInterval() time.Duration {
	return time.Duration(c.PingIntervalMs) * time.Millisecond
}

// GetInitialDelay returns the first reconnect delay.
func (c *ReconnectConfig) GetInitialDelay() time.Duration {
	return time.Duration(c.InitialDelayMs) * time.Millisecond
}

// GetMaxDelay returns the reconnect delay cap.
func (c *ReconnectConfig) GetMaxDelay() time.Duration {
	return time.Duration(c.MaxDelayMs) * time.Millisecond
}

// GetSafetyMargin returns how long before expiry a refresh fires.
func (c *RefreshConfig) GetSafetyMargin() time.Duration {
	return time.Duration(c.SafetyMarginMs) * time.Millisecond
}

// GetRequestTimeout returns the refresh request timeout.
func (c *RefreshConfig) GetRequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutMs) * time.Millisecond
}
