package realtime

import (
	"sync"

	"go.uber.org/zap"

	"github.com/actual-software/chat-bridge/pkg/wire"
)

// SignalKind identifies a host-facing signal.
type SignalKind int

const (
	// SignalLoading reports that a connect attempt started (Loading true) or settled (false).
	SignalLoading SignalKind = iota

	// SignalConnected reports that the socket opened.
	SignalConnected

	// SignalDisconnected reports that the current socket closed.
	SignalDisconnected

	// SignalMessage carries an inbound message from another member.
	SignalMessage

	// SignalError carries a *errors.BridgeError.
	SignalError

	// SignalNeedsAuthentication asks the host to send the user through login again.
	SignalNeedsAuthentication
)

// String returns the string representation of the signal kind.
func (k SignalKind) String() string {
	switch k {
	case SignalLoading:
		return "LOADING"
	case SignalConnected:
		return "CONNECTED"
	case SignalDisconnected:
		return "DISCONNECTED"
	case SignalMessage:
		return "MESSAGE"
	case SignalError:
		return "ERROR"
	case SignalNeedsAuthentication:
		return "NEEDS_AUTHENTICATION"
	default:
		return "UNKNOWN"
	}
}

// Signal is one notification to the host.
type Signal struct {
	Kind    SignalKind
	Channel string

	// Loading is set for SignalLoading.
	Loading bool
	// Message is set for SignalMessage.
	Message *wire.InboundMessage
	// Err is set for SignalError and, when a cause is known, SignalNeedsAuthentication.
	Err error
	// CloseCode and Reason are set for SignalDisconnected.
	CloseCode int
	Reason    string
}

func loadingSignal(channel string, on bool) Signal {
	return Signal{Kind: SignalLoading, Channel: channel, Loading: on}
}

func connectedSignal(channel string) Signal {
	return Signal{Kind: SignalConnected, Channel: channel}
}

func disconnectedSignal(channel string, code int, reason string) Signal {
	return Signal{Kind: SignalDisconnected, Channel: channel, CloseCode: code, Reason: reason}
}

func messageSignal(channel string, msg *wire.InboundMessage) Signal {
	return Signal{Kind: SignalMessage, Channel: channel, Message: msg}
}

func errorSignal(channel string, err error) Signal {
	return Signal{Kind: SignalError, Channel: channel, Err: err}
}

func needsAuthSignal(channel string, cause error) Signal {
	return Signal{Kind: SignalNeedsAuthentication, Channel: channel, Err: cause}
}

// forwardable reports whether a decoded frame should reach the host: it must be a typed
// message authored by someone other than selfID.
func forwardable(msg *wire.InboundMessage, selfID string) bool {
	return !msg.IsControl() && msg.SenderID != selfID
}

// ChannelNotifier delivers signals on a buffered channel. When the buffer is full the
// signal is dropped with a warning rather than stalling the manager.
type ChannelNotifier struct {
	logger *zap.Logger

	mu     sync.Mutex
	ch     chan Signal
	closed bool
}

// NewChannelNotifier creates a notifier with the given buffer size.
func NewChannelNotifier(size int, logger *zap.Logger) *ChannelNotifier {
	return &ChannelNotifier{
		logger: logger,
		ch:     make(chan Signal, size),
	}
}

// Notify enqueues sig without blocking.
func (n *ChannelNotifier) Notify(sig Signal) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.closed {
		return
	}

	select {
	case n.ch <- sig:
	default:
		n.logger.Warn("Signal channel full, dropping signal", zap.Stringer("signal", sig.Kind))
	}
}

// Signals returns the receive side of the notifier.
func (n *ChannelNotifier) Signals() <-chan Signal {
	return n.ch
}

// Close closes the signal channel. Later signals are discarded.
func (n *ChannelNotifier) Close() {
	n.mu.Lock()
	defer n.mu.Unlock()

	if !n.closed {
		n.closed = true
		close(n.ch)
	}
}
