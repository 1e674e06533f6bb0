package realtime

import "github.com/actual-software/chat-bridge/internal/auth"

type connectEvent struct {
	channel string
}

type disconnectEvent struct{}

type sendEvent struct {
	data []byte
}

type socketOpenEvent struct {
	gen uint64
}

type socketMessageEvent struct {
	gen  uint64
	data []byte
}

type socketCloseEvent struct {
	gen    uint64
	code   int
	reason string
}

type socketErrorEvent struct {
	gen uint64
	err error
}

type reconnectTimerEvent struct {
	seq uint64
}

type refreshTimerEvent struct {
	seq uint64
}

type refreshDoneEvent struct {
	cred auth.Credential
	err  error
}

// socketListener tags socket callbacks with the generation they were dialed under.
type socketListener struct {
	m   *Manager
	gen uint64
}

func (l *socketListener) OnOpen() {
	_ = l.m.post(socketOpenEvent{gen: l.gen})
}

func (l *socketListener) OnMessage(data []byte) {
	_ = l.m.post(socketMessageEvent{gen: l.gen, data: data})
}

func (l *socketListener) OnClose(code int, reason string) {
	_ = l.m.post(socketCloseEvent{gen: l.gen, code: code, reason: reason})
}

func (l *socketListener) OnError(err error) {
	_ = l.m.post(socketErrorEvent{gen: l.gen, err: err})
}
