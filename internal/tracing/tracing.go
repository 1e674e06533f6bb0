// Package tracing provides OpenTelemetry distributed tracing for the chat bridge.
package tracing

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/actual-software/chat-bridge/pkg/common/config"
)

const shutdownTimeout = 10 * time.Second

// Config is defined in the common config package.
type Config = config.TracingConfig

// Tracer wraps the OpenTelemetry tracer provider. A nil *Tracer is valid and records nothing.
type Tracer struct {
	provider   *sdktrace.TracerProvider
	tracer     trace.Tracer
	config     config.TracingConfig
	logger     *zap.Logger
	shutdownFn func(context.Context) error
}

// Init initializes OpenTelemetry distributed tracing.
func Init(cfg config.TracingConfig, logger *zap.Logger) (*Tracer, error) {
	if !cfg.Enabled {
		logger.Debug("OpenTelemetry tracing disabled")

		return &Tracer{
			config:     cfg,
			logger:     logger,
			shutdownFn: func(context.Context) error { return nil },
		}, nil
	}

	res, err := resource.New(context.Background(),
		resource.WithAttributes(
			semconv.ServiceNameKey.String(cfg.ServiceName),
			semconv.ServiceVersionKey.String(cfg.ServiceVersion),
			semconv.DeploymentEnvironmentKey.String(cfg.Environment),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	exporter, err := createExporter(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create exporter: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(createSampler(cfg)),
	)

	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagator())

	logger.Info("OpenTelemetry tracing initialized",
		zap.String("service", cfg.ServiceName),
		zap.String("version", cfg.ServiceVersion),
		zap.String("exporter", cfg.ExporterType),
		zap.String("sampler", cfg.SamplerType),
	)

	return NewWithProvider(tp, cfg, logger), nil
}

// NewWithProvider wraps an existing tracer provider.
func NewWithProvider(tp *sdktrace.TracerProvider, cfg config.TracingConfig, logger *zap.Logger) *Tracer {
	name := cfg.ServiceName
	if name == "" {
		name = "chat-bridge"
	}

	return &Tracer{
		provider:   tp,
		tracer:     tp.Tracer(name),
		config:     cfg,
		logger:     logger,
		shutdownFn: tp.Shutdown,
	}
}

func createExporter(cfg config.TracingConfig, logger *zap.Logger) (sdktrace.SpanExporter, error) {
	switch cfg.ExporterType {
	case "otlp", "":
		opts := []otlptracegrpc.Option{
			otlptracegrpc.WithEndpoint(cfg.OTLPEndpoint),
		}
		if cfg.OTLPInsecure {
			opts = append(opts, otlptracegrpc.WithInsecure())
		}

		return otlptracegrpc.New(context.Background(), opts...)

	case "stdout":
		return stdouttrace.New(stdouttrace.WithPrettyPrint())

	default:
		logger.Warn("Unknown exporter type, falling back to stdout", zap.String("type", cfg.ExporterType))

		return stdouttrace.New(stdouttrace.WithPrettyPrint())
	}
}

func createSampler(cfg config.TracingConfig) sdktrace.Sampler {
	switch cfg.SamplerType {
	case "always_off":
		return sdktrace.NeverSample()
	case "traceidratio":
		return sdktrace.TraceIDRatioBased(cfg.SamplerParam)
	default:
		return sdktrace.AlwaysSample()
	}
}

// StartSpan starts a new span.
func (t *Tracer) StartSpan(ctx context.Context, name string,
	opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	if t == nil || t.tracer == nil {
		return ctx, trace.SpanFromContext(ctx)
	}

	return t.tracer.Start(ctx, name, opts...)
}

// SetSpanAttributes sets attributes on the current span.
func (t *Tracer) SetSpanAttributes(ctx context.Context, attrs ...attribute.KeyValue) {
	span := trace.SpanFromContext(ctx)
	if !span.IsRecording() {
		return
	}

	span.SetAttributes(attrs...)
}

// RecordError records an error in the current span.
func (t *Tracer) RecordError(ctx context.Context, err error, opts ...trace.EventOption) {
	span := trace.SpanFromContext(ctx)
	if err == nil || !span.IsRecording() {
		return
	}

	span.RecordError(err, opts...)
	span.SetStatus(codes.Error, err.Error())
}

// HTTPClient instruments client's transport so each request gets a client span and carries the
// trace context to the server. Without a provider the client is returned unchanged.
func (t *Tracer) HTTPClient(client *http.Client) *http.Client {
	if t == nil || t.provider == nil || client == nil {
		return client
	}

	if client.Transport == nil {
		client.Transport = http.DefaultTransport
	}

	client.Transport = otelhttp.NewTransport(client.Transport,
		otelhttp.WithTracerProvider(t.provider),
		otelhttp.WithPropagators(propagator()),
		otelhttp.WithSpanNameFormatter(spanName),
	)

	return client
}

// HTTPMiddleware wraps next with server spans named after the request method and path.
func (t *Tracer) HTTPMiddleware(next http.Handler, operation string) http.Handler {
	if t == nil || t.provider == nil {
		return next
	}

	return otelhttp.NewHandler(next, operation,
		otelhttp.WithTracerProvider(t.provider),
		otelhttp.WithPropagators(propagator()),
		otelhttp.WithSpanNameFormatter(spanName),
	)
}

func spanName(_ string, r *http.Request) string {
	return fmt.Sprintf("%s %s", r.Method, r.URL.Path)
}

func propagator() propagation.TextMapPropagator {
	return propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	)
}

// IsEnabled returns whether tracing is enabled.
func (t *Tracer) IsEnabled() bool {
	return t != nil && t.config.Enabled && t.tracer != nil
}

// Shutdown flushes and stops the tracer provider.
func (t *Tracer) Shutdown(ctx context.Context) error {
	if t == nil || t.shutdownFn == nil {
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, shutdownTimeout)
	defer cancel()

	t.logger.Debug("Shutting down OpenTelemetry tracer")

	return t.shutdownFn(shutdownCtx)
}

// DefaultConfig returns a default OpenTelemetry configuration.
func DefaultConfig() config.TracingConfig {
	return config.TracingConfig{
		Enabled:        false,
		ServiceName:    "chat-bridge",
		ServiceVersion: "1.0.0",
		Environment:    "development",
		SamplerType:    "always_on",
		SamplerParam:   1.0,
		ExporterType:   "stdout",
		OTLPEndpoint:   "localhost:4317",
		OTLPInsecure:   true,
	}
}
