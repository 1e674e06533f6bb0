package config

import (
	"errors"
	"fmt"
	"net/url"
	"slices"
)

var (
	validLogLevels  = []string{"debug", "info", "warn", "error"}
	validLogFormats = []string{"json", "console"}
	validSamplers   = []string{"always_on", "always_off", "traceidratio"}
	validExporters  = []string{"otlp", "stdout"}
)

func validate(cfg *Config) error {
	var errs []error

	errs = append(errs, validateServer(&cfg.Server)...)
	errs = append(errs, validateTiming(cfg)...)
	errs = append(errs, validateLogging(cfg)...)
	errs = append(errs, validateOptional(cfg)...)

	return errors.Join(errs...)
}

func validateServer(s *ServerConfig) []error {
	var errs []error

	if err := validateURL("server.websocket_url", s.WebSocketURL, "ws", "wss"); err != nil {
		errs = append(errs, err)
	}

	if err := validateURL("server.api_url", s.APIURL, "http", "https"); err != nil {
		errs = append(errs, err)
	}

	return errs
}

func validateURL(field, raw string, schemes ...string) error {
	if raw == "" {
		return fmt.Errorf("%s is required", field)
	}

	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%s is invalid: %w", field, err)
	}

	if !slices.Contains(schemes, u.Scheme) {
		return fmt.Errorf("%s must use one of %v, got %q", field, schemes, u.Scheme)
	}

	if u.Host == "" {
		return fmt.Errorf("%s has no host", field)
	}

	return nil
}

func validateTiming(cfg *Config) []error {
	var errs []error

	if cfg.Connection.HandshakeTimeoutMs <= 0 {
		errs = append(errs, errors.New("connection.handshake_timeout_ms must be positive"))
	}

	if cfg.Connection.WriteTimeoutMs <= 0 {
		errs = append(errs, errors.New("connection.write_timeout_ms must be positive"))
	}

	if cfg.Connection.PingIntervalMs < 0 {
		errs = append(errs, errors.New("connection.ping_interval_ms must not be negative"))
	}

	if cfg.Connection.OutboundBuffer < 0 {
		errs = append(errs, errors.New("connection.outbound_buffer must not be negative"))
	}

	r := cfg.Reconnect
	if r.InitialDelayMs <= 0 {
		errs = append(errs, errors.New("reconnect.initial_delay_ms must be positive"))
	}

	if r.MaxDelayMs < r.InitialDelayMs {
		errs = append(errs, errors.New("reconnect.max_delay_ms must be at least initial_delay_ms"))
	}

	if r.Multiplier < 1 {
		errs = append(errs, errors.New("reconnect.multiplier must be at least 1"))
	}

	if r.MaxAttempts < 0 {
		errs = append(errs, errors.New("reconnect.max_attempts must not be negative"))
	}

	if cfg.Refresh.SafetyMarginMs < 0 {
		errs = append(errs, errors.New("refresh.safety_margin_ms must not be negative"))
	}

	if cfg.Refresh.RequestTimeoutMs <= 0 {
		errs = append(errs, errors.New("refresh.request_timeout_ms must be positive"))
	}

	return errs
}

func validateLogging(cfg *Config) []error {
	var errs []error

	if !slices.Contains(validLogLevels, cfg.Logging.Level) {
		errs = append(errs, fmt.Errorf("logging.level must be one of %v", validLogLevels))
	}

	if !slices.Contains(validLogFormats, cfg.Logging.Format) {
		errs = append(errs, fmt.Errorf("logging.format must be one of %v", validLogFormats))
	}

	return errs
}

func validateOptional(cfg *Config) []error {
	var errs []error

	if cfg.Notify.Redis.Enabled && cfg.Notify.Redis.URL == "" {
		errs = append(errs, errors.New("notify.redis.url is required when redis is enabled"))
	}

	if cfg.Metrics.Enabled && cfg.Metrics.Endpoint == "" {
		errs = append(errs, errors.New("metrics.endpoint is required when metrics are enabled"))
	}

	if cfg.Tracing.Enabled {
		if !slices.Contains(validSamplers, cfg.Tracing.SamplerType) {
			errs = append(errs, fmt.Errorf("tracing.sampler_type must be one of %v", validSamplers))
		}

		if !slices.Contains(validExporters, cfg.Tracing.ExporterType) {
			errs = append(errs, fmt.Errorf("tracing.exporter_type must be one of %v", validExporters))
		}
	}

	return errs
}
