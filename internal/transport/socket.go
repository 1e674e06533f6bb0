package transport

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/actual-software/chat-bridge/internal/realtime"
	"github.com/actual-software/chat-bridge/internal/tracing"
	"github.com/actual-software/chat-bridge/pkg/common/logging"
	common "github.com/actual-software/chat-bridge/pkg/common/tracing"
)

const closedByClient = "closed by client"

// Socket is one chat-group WebSocket. Send and Close are safe for concurrent use.
type Socket struct {
	id       uint64
	channel  string
	config   Config
	listener realtime.Listener

	ctx    context.Context
	cancel context.CancelFunc
	span   trace.Span
	tracer *tracing.Tracer
	logger *zap.Logger

	mu     sync.Mutex
	conn   *websocket.Conn
	closed bool

	writeMu sync.Mutex
}

func (s *Socket) run(dialer websocket.Dialer, target string, header http.Header) {
	defer s.span.End()

	conn, resp, err := dialer.DialContext(s.ctx, target, header)
	if resp != nil && resp.Body != nil {
		defer func() {
			if err := resp.Body.Close(); err != nil {
				s.logger.Debug("Failed to close response body", zap.Error(err))
			}
		}()
	}

	if err != nil {
		s.handshakeFailed(resp, err)

		return
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()

		_ = conn.Close()
		s.finish(CloseNormal, closedByClient)

		return
	}

	s.conn = conn
	s.mu.Unlock()

	conn.SetReadLimit(s.config.MaxMessageSize)
	conn.SetPongHandler(func(string) error {
		s.logger.Debug("Received pong")

		return nil
	})

	s.span.AddEvent("socket.open")
	s.logger.Debug("Socket open")
	s.listener.OnOpen()

	go s.keepalive()

	s.readPump(conn)
}

func (s *Socket) handshakeFailed(resp *http.Response, err error) {
	if s.isClosed() {
		s.finish(CloseNormal, closedByClient)

		return
	}

	s.tracer.RecordError(s.ctx, err)

	if resp != nil && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
		s.logger.Warn("Handshake rejected", zap.Int(logging.FieldStatusCode, resp.StatusCode))
		s.finish(resp.StatusCode, http.StatusText(resp.StatusCode))

		return
	}

	s.logger.Debug("Handshake failed", zap.Error(err))
	s.listener.OnError(err)
	s.finish(CloseAbnormal, err.Error())
}

func (s *Socket) readPump(conn *websocket.Conn) {
	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			code, reason := s.closeStatus(err)
			s.finish(code, reason)

			return
		}

		if msgType != websocket.TextMessage && msgType != websocket.BinaryMessage {
			continue
		}

		common.MessageEvent(s.ctx, "in", frameType(msgType), len(data))
		s.listener.OnMessage(data)
	}
}

// closeStatus maps a read error to the close code reported to the listener.
func (s *Socket) closeStatus(err error) (int, string) {
	var closeErr *websocket.CloseError
	if errors.As(err, &closeErr) {
		return closeErr.Code, closeErr.Text
	}

	if s.isClosed() {
		return CloseNormal, closedByClient
	}

	s.logger.Debug("Read failed", zap.Error(err))

	return CloseAbnormal, err.Error()
}

func (s *Socket) finish(code int, reason string) {
	s.cancel()
	s.span.SetAttributes(attribute.Int("websocket.close.code", code))
	s.logger.Debug("Socket closed", zap.Int(logging.FieldCloseCode, code), zap.String(logging.FieldReason, reason))
	s.listener.OnClose(code, reason)
}

func (s *Socket) keepalive() {
	var tick <-chan time.Time

	if s.config.PingInterval > 0 {
		ticker := time.NewTicker(s.config.PingInterval)
		defer ticker.Stop()

		tick = ticker.C
	}

	for {
		select {
		case <-s.ctx.Done():
			_ = s.Close()

			return
		case <-tick:
			if err := s.ping(); err != nil {
				s.logger.Debug("Ping failed", zap.Error(err))

				return
			}
		}
	}
}

func (s *Socket) ping() error {
	conn, err := s.openConn()
	if err != nil {
		return err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	return conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(s.config.WriteTimeout))
}

// Send writes one text frame.
func (s *Socket) Send(data []byte) error {
	conn, err := s.openConn()
	if err != nil {
		return err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if err := conn.SetWriteDeadline(time.Now().Add(s.config.WriteTimeout)); err != nil {
		s.logger.Debug("Failed to set write deadline", zap.Error(err))
	}

	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return err
	}

	common.MessageEvent(s.ctx, "out", "text", len(data))

	return nil
}

// Close aborts a pending handshake, or sends a normal close frame and closes the connection.
// It is idempotent.
func (s *Socket) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()

		return nil
	}

	s.closed = true
	conn := s.conn
	s.mu.Unlock()

	s.cancel()

	if conn == nil {
		return nil
	}

	s.writeMu.Lock()
	_ = conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(s.config.WriteTimeout),
	)
	s.writeMu.Unlock()

	return conn.Close()
}

func (s *Socket) openConn() (*websocket.Conn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed || s.conn == nil {
		return nil, ErrNotOpen
	}

	return s.conn, nil
}

func (s *Socket) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.closed
}

func frameType(msgType int) string {
	if msgType == websocket.BinaryMessage {
		return "binary"
	}

	return "text"
}
