package metrics

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/actual-software/chat-bridge/internal/constants"
	"github.com/actual-software/chat-bridge/internal/tracing"
	"github.com/actual-software/chat-bridge/pkg/common/logging"
)

// Exporter serves /metrics and /health.
type Exporter struct {
	logger *zap.Logger
	server *http.Server

	mu       sync.RWMutex
	listener net.Listener
}

// ExporterOption configures an Exporter.
type ExporterOption func(*exporterOptions)

type exporterOptions struct {
	tracer *tracing.Tracer
}

// WithTracer records a server span for every scrape and health check.
func WithTracer(t *tracing.Tracer) ExporterOption {
	return func(o *exporterOptions) {
		o.tracer = t
	}
}

// NewExporter creates an exporter for gatherer on endpoint.
func NewExporter(endpoint string, gatherer prometheus.Gatherer, logger *zap.Logger, opts ...ExporterOption) *Exporter {
	var options exporterOptions
	for _, opt := range opts {
		opt(&options)
	}

	mux := http.NewServeMux()

	e := &Exporter{
		logger: logger.With(zap.String(logging.FieldComponent, "metrics_exporter")),
		server: &http.Server{
			Addr:         endpoint,
			Handler:      options.tracer.HTTPMiddleware(mux, "metrics-exporter"),
			ReadTimeout:  constants.MetricsServerReadTimeout,
			WriteTimeout: constants.MetricsServerWriteTimeout,
		},
	}

	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	mux.HandleFunc("/health", e.healthHandler)

	return e
}

// GetEndpoint returns the bound address once started, or the configured one.
func (e *Exporter) GetEndpoint() string {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if e.listener != nil {
		return e.listener.Addr().String()
	}

	return e.server.Addr
}

// Start serves until ctx is canceled, then shuts the server down gracefully.
func (e *Exporter) Start(ctx context.Context) error {
	lc := &net.ListenConfig{}

	listener, err := lc.Listen(ctx, "tcp", e.server.Addr)
	if err != nil {
		return fmt.Errorf("failed to create listener: %w", err)
	}

	e.mu.Lock()
	e.listener = listener
	e.mu.Unlock()

	e.logger.Info("Starting Prometheus metrics exporter", zap.String(logging.FieldEndpoint, listener.Addr().String()))

	go func() {
		<-ctx.Done()

		shutdownCtx, cancel := context.WithTimeout(
			context.Background(), //nolint:contextcheck // Need fresh context for graceful shutdown
			constants.GracefulShutdownTimeout,
		)
		defer cancel()

		if err := e.server.Shutdown(shutdownCtx); err != nil { //nolint:contextcheck // shutdownCtx is intentionally fresh
			e.logger.Error("Failed to shutdown metrics server", zap.Error(err))
		}
	}()

	if err := e.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("metrics server error: %w", err)
	}

	return nil
}

func (e *Exporter) healthHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)

	if _, err := w.Write([]byte(`{"status":"ok"}`)); err != nil {
		e.logger.Debug("Failed to write health response", zap.Error(err))
	}
}
