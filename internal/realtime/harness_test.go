package realtime

import (
	"context"
	"errors"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/actual-software/chat-bridge/internal/auth"
	"github.com/actual-software/chat-bridge/pkg/wire"
)

var epoch = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

// fakeClock fires AfterFunc callbacks when Advance moves past their deadline.
type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*fakeTimer
}

type fakeTimer struct {
	clock   *fakeClock
	at      time.Time
	delay   time.Duration
	f       func()
	stopped bool
	fired   bool
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: epoch}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.now
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()

	t := &fakeTimer{clock: c, at: c.now.Add(d), delay: d, f: f}
	c.timers = append(c.timers, t)

	return t
}

func (t *fakeTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()

	active := !t.stopped && !t.fired
	t.stopped = true

	return active
}

// Advance moves the clock forward and runs every timer that became due, in deadline order.
func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)

	var due []*fakeTimer

	for _, t := range c.timers {
		if !t.stopped && !t.fired && !t.at.After(c.now) {
			t.fired = true
			due = append(due, t)
		}
	}
	c.mu.Unlock()

	sort.Slice(due, func(i, j int) bool { return due[i].at.Before(due[j].at) })

	for _, t := range due {
		t.f()
	}
}

// Pending returns the delays of timers that have neither fired nor been stopped.
func (c *fakeClock) Pending() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()

	var out []time.Duration

	for _, t := range c.timers {
		if !t.stopped && !t.fired {
			out = append(out, t.delay)
		}
	}

	return out
}

// Delays returns the delay of every timer ever armed.
func (c *fakeClock) Delays() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]time.Duration, 0, len(c.timers))
	for _, t := range c.timers {
		out = append(out, t.delay)
	}

	return out
}

type fakeSocket struct {
	channel  string
	token    string
	listener Listener

	mu      sync.Mutex
	sent    [][]byte
	closed  bool
	sendErr error
}

func (s *fakeSocket) Send(data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.sendErr != nil {
		return s.sendErr
	}

	s.sent = append(s.sent, data)

	return nil
}

func (s *fakeSocket) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()

	return nil
}

func (s *fakeSocket) Sent() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]string, 0, len(s.sent))
	for _, b := range s.sent {
		out = append(out, string(b))
	}

	return out
}

func (s *fakeSocket) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.closed
}

type fakeDialer struct {
	mu      sync.Mutex
	sockets []*fakeSocket
	err     error
}

func (d *fakeDialer) Dial(_ context.Context, channelID, token string, l Listener) (Socket, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.err != nil {
		return nil, d.err
	}

	s := &fakeSocket{channel: channelID, token: token, listener: l}
	d.sockets = append(d.sockets, s)

	return s, nil
}

func (d *fakeDialer) Count() int {
	d.mu.Lock()
	defer d.mu.Unlock()

	return len(d.sockets)
}

func (d *fakeDialer) Last() *fakeSocket {
	d.mu.Lock()
	defer d.mu.Unlock()

	if len(d.sockets) == 0 {
		return nil
	}

	return d.sockets[len(d.sockets)-1]
}

func (d *fakeDialer) At(i int) *fakeSocket {
	d.mu.Lock()
	defer d.mu.Unlock()

	return d.sockets[i]
}

type recordingNotifier struct {
	mu      sync.Mutex
	signals []Signal
}

func (n *recordingNotifier) Notify(sig Signal) {
	n.mu.Lock()
	n.signals = append(n.signals, sig)
	n.mu.Unlock()
}

func (n *recordingNotifier) Of(kind SignalKind) []Signal {
	n.mu.Lock()
	defer n.mu.Unlock()

	var out []Signal

	for _, s := range n.signals {
		if s.Kind == kind {
			out = append(out, s)
		}
	}

	return out
}

func (n *recordingNotifier) Reset() {
	n.mu.Lock()
	n.signals = nil
	n.mu.Unlock()
}

type fakeRefresher struct {
	calls atomic.Int32
	gate  chan struct{}

	mu   sync.Mutex
	cred auth.Credential
	err  error
}

func (r *fakeRefresher) Refresh(ctx context.Context) (auth.Credential, error) {
	r.calls.Add(1)

	if r.gate != nil {
		select {
		case <-r.gate:
		case <-ctx.Done():
			return auth.Credential{}, ctx.Err()
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	return r.cred, r.err
}

type recordingAlerter struct {
	alerts chan *wire.InboundMessage
}

func (a *recordingAlerter) Alert(_ context.Context, msg *wire.InboundMessage) error {
	a.alerts <- msg

	return nil
}

// harness drives a Manager's event handlers on the test goroutine instead of through Run.
type harness struct {
	t         *testing.T
	m         *Manager
	clock     *fakeClock
	dialer    *fakeDialer
	store     *auth.MemoryStore
	refresher *fakeRefresher
	notifier  *recordingNotifier
	alerter   *recordingAlerter
}

func newHarness(t *testing.T, cred auth.Credential, mutate ...func(*Config)) *harness {
	t.Helper()

	clock := newFakeClock()
	h := &harness{
		t:        t,
		clock:    clock,
		dialer:   &fakeDialer{},
		store:    auth.NewMemoryStore(cred),
		notifier: &recordingNotifier{},
		alerter:  &recordingAlerter{alerts: make(chan *wire.InboundMessage, 16)},
		refresher: &fakeRefresher{
			cred: auth.Credential{Token: "tok-2", ExpiresAt: epoch.Add(2 * time.Hour)},
		},
	}

	cfg := DefaultConfig()
	cfg.UserID = "me"

	for _, fn := range mutate {
		fn(&cfg)
	}

	m, err := NewManager(cfg, Deps{
		Dialer:    h.dialer,
		Store:     h.store,
		Refresher: h.refresher,
		Notifier:  h.notifier,
		Alerter:   h.alerter,
		Clock:     clock,
	}, zaptest.NewLogger(t))
	require.NoError(t, err)

	h.m = m

	return h
}

func validCred() auth.Credential {
	return auth.Credential{Token: "tok-1", ExpiresAt: epoch.Add(time.Hour)}
}

// drain handles every queued event.
func (h *harness) drain() {
	for {
		select {
		case ev := <-h.m.events:
			h.m.handle(ev)
			h.m.publish()
		default:
			return
		}
	}
}

// settle handles events until no refresh is in flight and the queue is empty.
func (h *harness) settle() {
	h.t.Helper()

	deadline := time.After(2 * time.Second)

	for {
		h.drain()

		if !h.m.refreshing {
			return
		}

		select {
		case ev := <-h.m.events:
			h.m.handle(ev)
			h.m.publish()
		case <-deadline:
			h.t.Fatal("timed out waiting for refresh")
		}
	}
}

func (h *harness) connect(channel string) {
	h.t.Helper()
	require.NoError(h.t, h.m.Connect(channel))
	h.drain()
}

func (h *harness) open(s *fakeSocket) {
	s.listener.OnOpen()
	h.drain()
}

func (h *harness) closeSocket(s *fakeSocket, code int) {
	s.listener.OnClose(code, "")
	h.drain()
}

var errBoom = errors.New("boom")
