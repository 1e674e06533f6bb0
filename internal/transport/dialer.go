// Package transport opens chat-group sockets over gorilla/websocket.
package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/actual-software/chat-bridge/internal/constants"
	"github.com/actual-software/chat-bridge/internal/realtime"
	"github.com/actual-software/chat-bridge/internal/tracing"
	"github.com/actual-software/chat-bridge/pkg/common/logging"
	common "github.com/actual-software/chat-bridge/pkg/common/tracing"
)

// Close codes reported for failures that never produced a close frame.
const (
	CloseAbnormal = websocket.CloseAbnormalClosure
	CloseNormal   = websocket.CloseNormalClosure
)

const bufferSize = 4096

var (
	// ErrEmptyChannel is returned when a dial names no channel.
	ErrEmptyChannel = errors.New("channel id is empty")
	// ErrEmptyToken is returned when a dial carries no token.
	ErrEmptyToken = errors.New("access token is empty")
	// ErrNotOpen is returned by Send before the handshake completes or after Close.
	ErrNotOpen = errors.New("socket is not open")
)

// Config configures a Dialer.
type Config struct {
	BaseURL          string
	HandshakeTimeout time.Duration
	WriteTimeout     time.Duration
	PingInterval     time.Duration
	MaxMessageSize   int64
	Header           http.Header
}

// Dialer opens sockets to <base>/chat/<channel>/?token=<token>.
type Dialer struct {
	base   *url.URL
	config Config
	ws     websocket.Dialer
	tracer *tracing.Tracer
	logger *zap.Logger
	nextID atomic.Uint64
}

// Option customizes a Dialer.
type Option func(*Dialer)

// WithTracer records a span per socket lifetime.
func WithTracer(t *tracing.Tracer) Option {
	return func(d *Dialer) {
		d.tracer = t
	}
}

// NewDialer validates the base URL and builds a Dialer.
func NewDialer(cfg Config, logger *zap.Logger, opts ...Option) (*Dialer, error) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = constants.DefaultWebSocketURL
	}

	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid websocket url: %w", err)
	}

	if base.Scheme != "ws" && base.Scheme != "wss" {
		return nil, fmt.Errorf("invalid websocket url scheme %q", base.Scheme)
	}

	applyDefaults(&cfg)

	d := &Dialer{
		base:   base,
		config: cfg,
		ws: websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: cfg.HandshakeTimeout,
			ReadBufferSize:   bufferSize,
			WriteBufferSize:  bufferSize,
			NetDialContext: (&net.Dialer{
				Timeout: cfg.HandshakeTimeout,
			}).DialContext,
		},
		logger: logger.With(zap.String(logging.FieldComponent, "transport")),
	}

	for _, opt := range opts {
		opt(d)
	}

	return d, nil
}

func applyDefaults(cfg *Config) {
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = constants.HandshakeTimeout
	}

	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = constants.WriteTimeout
	}

	if cfg.MaxMessageSize <= 0 {
		cfg.MaxMessageSize = constants.DefaultMaxMessageSize
	}
}

// URL builds the socket URL for a channel.
func (d *Dialer) URL(channelID, token string) (*url.URL, error) {
	if strings.TrimSpace(channelID) == "" {
		return nil, ErrEmptyChannel
	}

	if token == "" {
		return nil, ErrEmptyToken
	}

	u := *d.base
	u.Path = d.base.Path + "/chat/" + channelID + "/"
	u.RawPath = d.base.EscapedPath() + "/chat/" + url.PathEscape(channelID) + "/"
	u.RawQuery = url.Values{"token": {token}}.Encode()

	return &u, nil
}

// Dial validates the request and starts the handshake in the background. A returned error
// means no socket was constructed and no listener callback will fire. Otherwise the listener
// receives OnOpen followed by messages, or OnClose if the handshake fails.
//
//nolint:ireturn // satisfies realtime.Dialer
func (d *Dialer) Dial(ctx context.Context, channelID, token string, l realtime.Listener) (realtime.Socket, error) {
	target, err := d.URL(channelID, token)
	if err != nil {
		return nil, err
	}

	id := d.nextID.Add(1)

	sessionCtx, span := d.tracer.StartSpan(ctx, "chat.socket",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(common.DialAttributes(channelID, target)...))

	sessionCtx, cancel := context.WithCancel(sessionCtx)

	s := &Socket{
		id:       id,
		channel:  channelID,
		config:   d.config,
		listener: l,
		ctx:      sessionCtx,
		cancel:   cancel,
		span:     span,
		tracer:   d.tracer,
		logger:   d.logger.With(zap.String(logging.FieldChannel, channelID), zap.Uint64("socket", id)),
	}

	go s.run(d.ws, target.String(), d.config.Header)

	return s, nil
}
