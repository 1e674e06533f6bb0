// Package realtime implements the chat connection manager: one live socket to a chat-group
// channel, kept authenticated across credential expiry, recovered with bounded backoff after
// involuntary closes, with outbound messages buffered while disconnected.
//
// All manager state is owned by the goroutine running Manager.Run. Public methods, socket
// callbacks and timers post events to that goroutine; nothing else touches the state.
package realtime

import (
	"context"
	"time"

	"github.com/actual-software/chat-bridge/internal/auth"
	"github.com/actual-software/chat-bridge/pkg/wire"
)

// Listener receives socket lifecycle events. Calls may come from any goroutine.
type Listener interface {
	OnOpen()
	OnMessage(data []byte)
	OnClose(code int, reason string)
	OnError(err error)
}

// Socket is a live transport handle.
type Socket interface {
	Send(data []byte) error
	Close() error
}

// Dialer opens sockets. A returned error means construction failed and the listener will
// never be called; otherwise the listener eventually receives OnOpen or OnClose.
type Dialer interface {
	Dial(ctx context.Context, channelID string, token string, l Listener) (Socket, error)
}

// CredentialStore holds the host's current credential.
type CredentialStore interface {
	Current() (auth.Credential, bool)
	Update(cred auth.Credential)
}

// Refresher obtains a new credential.
type Refresher interface {
	Refresh(ctx context.Context) (auth.Credential, error)
}

// Notifier receives host-facing signals. Notify is called from the manager goroutine and
// must not block.
type Notifier interface {
	Notify(sig Signal)
}

// Alerter performs the host's "message arrived" side effect, such as a sound or a fan-out.
type Alerter interface {
	Alert(ctx context.Context, msg *wire.InboundMessage) error
}

// Observer receives internal measurements. Implementations must not block.
type Observer interface {
	StateChanged(state ConnectionState)
	ReconnectScheduled(attempt int, delay time.Duration)
	RefreshCompleted(success bool)
	MessageReceived()
	MessageSent()
	BufferChanged(size int)
	BufferOverflow()
	ErrorRaised(code string)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(Signal)

// Notify calls f(sig).
func (f NotifierFunc) Notify(sig Signal) {
	f(sig)
}

type nopObserver struct{}

func (nopObserver) StateChanged(ConnectionState)          {}
func (nopObserver) ReconnectScheduled(int, time.Duration) {}
func (nopObserver) RefreshCompleted(bool)                 {}
func (nopObserver) MessageReceived()                      {}
func (nopObserver) MessageSent()                          {}
func (nopObserver) BufferChanged(int)                     {}
func (nopObserver) BufferOverflow()                       {}
func (nopObserver) ErrorRaised(string)                    {}
