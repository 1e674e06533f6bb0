// Package tracing provides common span attribute helpers for chat bridge components.
package tracing

import (
	"context"
	"fmt"
	"net/url"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// DialAttributes creates attributes for a channel socket dial. The query string is dropped
// because it carries the access token.
func DialAttributes(channelID string, target *url.URL) []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		attribute.String("net.transport", "websocket"),
		attribute.String("chat.channel", channelID),
	}

	if target != nil {
		attrs = append(attrs,
			attribute.String("url.scheme", target.Scheme),
			attribute.String("server.address", target.Host),
			attribute.String("url.path", target.Path),
		)
	}

	return attrs
}

// MessageEvent records a chat message event in the current span.
func MessageEvent(ctx context.Context, direction, msgType string, size int) {
	span := trace.SpanFromContext(ctx)
	if !span.IsRecording() {
		return
	}

	span.AddEvent("chat.message."+direction,
		trace.WithAttributes(
			attribute.String("chat.message.type", msgType),
			attribute.Int("chat.message.size", size),
		),
	)
}

// AuthenticationAttributes creates attributes for credential refresh operations.
func AuthenticationAttributes(success bool, statusCode int) []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		attribute.Bool("auth.success", success),
	}

	if statusCode != 0 {
		attrs = append(attrs, attribute.Int("http.response.status_code", statusCode))
	}

	return attrs
}

// ErrorAttributes creates attributes from an error.
func ErrorAttributes(err error) []attribute.KeyValue {
	if err == nil {
		return nil
	}

	return []attribute.KeyValue{
		attribute.Bool("error", true),
		attribute.String("error.type", fmt.Sprintf("%T", err)),
		attribute.String("error.message", err.Error()),
	}
}
