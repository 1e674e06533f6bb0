package realtime

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"

	"github.com/actual-software/chat-bridge/internal/constants"
	customerrors "github.com/actual-software/chat-bridge/pkg/common/errors"
	"github.com/actual-software/chat-bridge/pkg/common/logging"
	"github.com/actual-software/chat-bridge/pkg/wire"
)

var (
	// ErrEmptyChannel is returned by Connect for a blank channel id.
	ErrEmptyChannel = errors.New("channel id is empty")
	// ErrAlreadyRunning is returned when Run is called twice.
	ErrAlreadyRunning = errors.New("manager is already running")
)

// Config tunes the manager's recovery policy.
type Config struct {
	// UserID is the local identity. Inbound messages from it are not forwarded.
	UserID string

	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
	MaxAttempts  int

	// RefreshMargin is how long before expiry the credential is refreshed.
	RefreshMargin  time.Duration
	RefreshTimeout time.Duration

	// OutboundLimit bounds the outbound buffer. Zero means unbounded.
	OutboundLimit int
	QueueSize     int
}

// DefaultConfig returns the standard recovery policy.
func DefaultConfig() Config {
	return Config{
		InitialDelay:   constants.ReconnectBaseDelay,
		MaxDelay:       constants.ReconnectMaxDelay,
		Multiplier:     constants.ReconnectMultiplier,
		MaxAttempts:    constants.MaxReconnectAttempts,
		RefreshMargin:  constants.RefreshSafetyMargin,
		RefreshTimeout: constants.RefreshRequestTimeout,
		OutboundLimit:  constants.DefaultOutboundBuffer,
		QueueSize:      constants.CommandQueueSize,
	}
}

// Deps are the manager's collaborators. Dialer, Store, Refresher and Notifier are required.
type Deps struct {
	Dialer    Dialer
	Store     CredentialStore
	Refresher Refresher
	Notifier  Notifier
	Alerter   Alerter
	Observer  Observer
	Clock     Clock
}

// Manager owns one chat-group socket. Create it with NewManager and drive it with Run.
type Manager struct {
	config    Config
	dialer    Dialer
	store     CredentialStore
	refresher Refresher
	notifier  Notifier
	alerter   Alerter
	observer  Observer
	clock     Clock
	logger    *zap.Logger

	events  chan any
	done    chan struct{}
	running atomic.Bool

	// Snapshot published for other goroutines.
	snapMu       sync.RWMutex
	snapState    ConnectionState
	snapChannel  string
	snapAttempts int
	snapBuffered int

	// Everything below is owned by the Run goroutine.
	ctx            context.Context
	state          ConnectionState
	channel        string
	generation     uint64
	socket         Socket
	manualClose    bool
	attempts       int
	backoff        *backoff.ExponentialBackOff
	buffer         *outboundBuffer
	reconnectTimer Timer
	reconnectSeq   uint64
	refreshTimer   Timer
	refreshSeq     uint64
	refreshing     bool
	pendingConnect string
}

// NewManager creates a manager. It does nothing until Run is called.
func NewManager(cfg Config, deps Deps, logger *zap.Logger) (*Manager, error) {
	if deps.Dialer == nil || deps.Store == nil || deps.Refresher == nil || deps.Notifier == nil {
		return nil, errors.New("dialer, credential store, refresher and notifier are required")
	}

	applyDefaults(&cfg)

	if deps.Observer == nil {
		deps.Observer = nopObserver{}
	}

	if deps.Clock == nil {
		deps.Clock = SystemClock()
	}

	bo := &backoff.ExponentialBackOff{
		InitialInterval:     cfg.InitialDelay,
		RandomizationFactor: 0,
		Multiplier:          cfg.Multiplier,
		MaxInterval:         cfg.MaxDelay,
	}
	bo.Reset()

	return &Manager{
		config:    cfg,
		dialer:    deps.Dialer,
		store:     deps.Store,
		refresher: deps.Refresher,
		notifier:  deps.Notifier,
		alerter:   deps.Alerter,
		observer:  deps.Observer,
		clock:     deps.Clock,
		logger:    logger.With(zap.String(logging.FieldComponent, "connection_manager")),
		events:    make(chan any, cfg.QueueSize),
		done:      make(chan struct{}),
		ctx:       context.Background(),
		backoff:   bo,
		buffer:    newOutboundBuffer(cfg.OutboundLimit),
	}, nil
}

func applyDefaults(cfg *Config) {
	def := DefaultConfig()

	if cfg.InitialDelay <= 0 {
		cfg.InitialDelay = def.InitialDelay
	}

	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = def.MaxDelay
	}

	if cfg.Multiplier < 1 {
		cfg.Multiplier = def.Multiplier
	}

	if cfg.MaxAttempts < 0 {
		cfg.MaxAttempts = def.MaxAttempts
	}

	if cfg.RefreshMargin < 0 {
		cfg.RefreshMargin = def.RefreshMargin
	}

	if cfg.RefreshTimeout <= 0 {
		cfg.RefreshTimeout = def.RefreshTimeout
	}

	if cfg.OutboundLimit < 0 {
		cfg.OutboundLimit = 0
	}

	if cfg.QueueSize <= 0 {
		cfg.QueueSize = def.QueueSize
	}
}

// Run processes events until ctx is canceled, then closes any socket and returns.
func (m *Manager) Run(ctx context.Context) error {
	if !m.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}

	defer close(m.done)

	m.ctx = ctx
	m.logger.Debug("Connection manager started")

	for {
		select {
		case <-ctx.Done():
			m.shutdown()

			return nil
		case ev := <-m.events:
			m.handle(ev)
			m.publish()
		}
	}
}

// Done is closed when Run returns.
func (m *Manager) Done() <-chan struct{} {
	return m.done
}

// Connect asks the manager to join a channel. Repeating the current channel while it is open
// or connecting is a no-op; a different channel supersedes the current socket.
func (m *Manager) Connect(channelID string) error {
	channelID = strings.TrimSpace(channelID)
	if channelID == "" {
		return ErrEmptyChannel
	}

	return m.post(connectEvent{channel: channelID})
}

// Disconnect closes the socket and suppresses all recovery until the next Connect.
func (m *Manager) Disconnect() error {
	return m.post(disconnectEvent{})
}

// Send transmits payload as JSON when the socket is open, and buffers it otherwise.
// Only an encoding failure is reported.
func (m *Manager) Send(payload any) error {
	data, err := wire.Encode(payload)
	if err != nil {
		return customerrors.New(customerrors.CHT_PROTO_MARSHAL, err)
	}

	return m.post(sendEvent{data: data})
}

// GetState returns the last published connection state.
func (m *Manager) GetState() ConnectionState {
	m.snapMu.RLock()
	defer m.snapMu.RUnlock()

	return m.snapState
}

// GetChannel returns the last requested channel.
func (m *Manager) GetChannel() string {
	m.snapMu.RLock()
	defer m.snapMu.RUnlock()

	return m.snapChannel
}

// GetReconnectAttempts returns the reconnect attempts made since the last successful open.
func (m *Manager) GetReconnectAttempts() int {
	m.snapMu.RLock()
	defer m.snapMu.RUnlock()

	return m.snapAttempts
}

// GetBuffered returns the number of outbound frames waiting for an open socket.
func (m *Manager) GetBuffered() int {
	m.snapMu.RLock()
	defer m.snapMu.RUnlock()

	return m.snapBuffered
}

func (m *Manager) post(ev any) error {
	select {
	case <-m.done:
		return customerrors.Error(customerrors.CHT_INT_STOPPED)
	default:
	}

	select {
	case m.events <- ev:
		return nil
	case <-m.done:
		return customerrors.Error(customerrors.CHT_INT_STOPPED)
	}
}

func (m *Manager) publish() {
	m.snapMu.Lock()
	m.snapState = m.state
	m.snapChannel = m.channel
	m.snapAttempts = m.attempts
	m.snapBuffered = m.buffer.len()
	m.snapMu.Unlock()
}

func (m *Manager) handle(ev any) {
	switch e := ev.(type) {
	case connectEvent:
		m.handleConnect(e.channel)
	case disconnectEvent:
		m.handleDisconnect()
	case sendEvent:
		m.handleSend(e.data)
	case socketOpenEvent:
		m.handleOpen(e.gen)
	case socketMessageEvent:
		m.handleMessage(e.gen, e.data)
	case socketCloseEvent:
		m.handleClose(e.gen, e.code, e.reason)
	case socketErrorEvent:
		m.handleSocketError(e.gen, e.err)
	case reconnectTimerEvent:
		m.handleReconnectTimer(e.seq)
	case refreshTimerEvent:
		m.handleRefreshTimer(e.seq)
	case refreshDoneEvent:
		m.handleRefreshDone(e.cred, e.err)
	default:
		m.logger.Error("Unknown event", zap.String("type", fmt.Sprintf("%T", ev)))
	}
}

func (m *Manager) handleConnect(channel string) {
	if m.socket != nil && m.channel == channel && (m.state == StateOpen || m.state == StateConnecting) {
		m.logger.Debug("Already connected to channel", zap.String(logging.FieldChannel, channel),
			zap.Stringer(logging.FieldState, m.state))

		return
	}

	m.cancelReconnect()
	m.resetReconnect()

	if m.channel != "" && m.channel != channel {
		m.logger.Info("Switching channel", zap.String("from", m.channel), zap.String("to", channel))
		m.buffer.reset()
		m.observer.BufferChanged(0)
	}

	m.pendingConnect = ""
	m.teardown()
	m.channel = channel
	m.dial()
}

// dial starts a connect attempt for the remembered channel with the current credential.
func (m *Manager) dial() {
	channel := m.channel

	cred, ok := m.store.Current()
	if !ok {
		m.logger.Warn("No credential available, connect aborted", zap.String(logging.FieldChannel, channel))
		m.setState(StateClosed)
		m.observer.ErrorRaised(string(customerrors.CHT_AUTH_REQUIRED))
		m.notify(needsAuthSignal(channel, customerrors.Error(customerrors.CHT_AUTH_REQUIRED)))

		return
	}

	if cred.Expired(m.clock.Now()) {
		m.logger.Info("Credential expired, refreshing before connect", zap.String(logging.FieldChannel, channel))
		m.pendingConnect = channel
		m.setState(StateClosed)
		m.notify(loadingSignal(channel, true))
		m.refreshNow()

		return
	}

	m.manualClose = false
	m.generation++
	gen := m.generation

	m.setState(StateConnecting)

	sock, err := m.dialer.Dial(m.ctx, channel, cred.Token, &socketListener{m: m, gen: gen})
	if err != nil {
		m.setState(StateClosed)
		m.raise(channel, customerrors.New(customerrors.CHT_CONN_CONSTRUCT, err))

		return
	}

	m.socket = sock
	m.logger.Debug("Socket dialing", zap.String(logging.FieldChannel, channel), zap.Uint64(logging.FieldGeneration, gen))
	m.scheduleRefresh()
	m.notify(loadingSignal(channel, true))
}

// teardown closes the current socket as a manual close and retires its generation.
func (m *Manager) teardown() {
	m.cancelRefreshTimer()

	if m.socket == nil {
		return
	}

	sock := m.socket
	m.manualClose = true
	m.setState(StateClosing)
	m.socket = nil
	m.generation++

	if err := sock.Close(); err != nil {
		m.logger.Debug("Error closing socket", zap.Error(err))
	}

	m.setState(StateClosed)
}

func (m *Manager) handleDisconnect() {
	active := m.socket != nil || m.reconnectTimer != nil || m.pendingConnect != ""

	m.manualClose = true
	m.cancelRefreshTimer()
	m.cancelReconnect()
	m.resetReconnect()
	m.pendingConnect = ""
	m.buffer.reset()
	m.observer.BufferChanged(0)

	if !active {
		m.logger.Debug("Disconnect requested with no active socket")

		return
	}

	m.teardown()
	m.setState(StateClosed)
	m.logger.Info("Disconnected", zap.String(logging.FieldChannel, m.channel))
	m.notify(disconnectedSignal(m.channel, CloseNormal, "disconnected by host"))
}

func (m *Manager) handleSend(data []byte) {
	if m.state == StateOpen && m.socket != nil {
		if err := m.socket.Send(data); err != nil {
			m.raise(m.channel, customerrors.New(customerrors.CHT_CONN_SEND, err))
			m.bufferFrame(data)

			return
		}

		m.observer.MessageSent()

		return
	}

	m.bufferFrame(data)
}

func (m *Manager) bufferFrame(data []byte) {
	if m.buffer.push(data) {
		m.logger.Warn("Outbound buffer full, dropped oldest message", zap.Int("limit", m.config.OutboundLimit))
		m.observer.BufferOverflow()
	}

	m.observer.BufferChanged(m.buffer.len())
}

func (m *Manager) handleOpen(gen uint64) {
	if m.stale(gen) {
		return
	}

	m.resetReconnect()
	m.manualClose = false
	m.setState(StateOpen)
	m.logger.Info("Connected", zap.String(logging.FieldChannel, m.channel))
	m.notify(connectedSignal(m.channel))
	m.notify(loadingSignal(m.channel, false))
	m.flush()
}

// flush sends buffered frames in order. Frames that fail stay buffered for the next open.
func (m *Manager) flush() {
	frames := m.buffer.drain()

	for i, data := range frames {
		if err := m.socket.Send(data); err != nil {
			m.buffer.requeue(frames[i:])
			m.raise(m.channel, customerrors.New(customerrors.CHT_CONN_SEND, err))

			break
		}

		m.observer.MessageSent()
	}

	m.observer.BufferChanged(m.buffer.len())
}

func (m *Manager) handleMessage(gen uint64, data []byte) {
	if m.stale(gen) {
		return
	}

	msg, err := wire.Decode(data)
	if err != nil {
		m.raise(m.channel, customerrors.New(customerrors.CHT_PROTO_PARSE, err))

		return
	}

	if !forwardable(msg, m.config.UserID) {
		return
	}

	m.observer.MessageReceived()
	m.notify(messageSignal(m.channel, msg))

	if m.alerter != nil {
		ctx := m.ctx

		go func() {
			if err := m.alerter.Alert(ctx, msg); err != nil {
				m.logger.Warn("Message alert failed", zap.Error(err))
			}
		}()
	}
}

func (m *Manager) handleSocketError(gen uint64, err error) {
	if m.stale(gen) {
		return
	}

	m.raise(m.channel, customerrors.New(customerrors.CHT_CONN_TRANSPORT, err))
}

func (m *Manager) handleClose(gen uint64, code int, reason string) {
	if m.stale(gen) {
		return
	}

	channel := m.channel

	m.cancelRefreshTimer()
	m.socket = nil
	m.setState(StateClosed)
	m.logger.Info("Socket closed", zap.String(logging.FieldChannel, channel), zap.Int(logging.FieldCloseCode, code),
		zap.String(logging.FieldReason, reason))
	m.notify(disconnectedSignal(channel, code, reason))

	switch {
	case m.manualClose:
		return
	case IsAuthFailure(code):
		m.pendingConnect = channel
		m.refreshNow()
	case code == CloseNormal:
		m.logger.Info("Server closed the session normally, not reconnecting")
	default:
		m.scheduleReconnect()
	}
}

func (m *Manager) scheduleReconnect() {
	if m.attempts >= m.config.MaxAttempts {
		m.logger.Error("Max reconnect attempts reached", zap.Int(logging.FieldAttempt, m.attempts))
		m.raise(m.channel, customerrors.New(customerrors.CHT_CONN_MAX_RECONNECT, nil,
			fmt.Sprintf("%d attempts", m.attempts)))

		return
	}

	delay := m.backoff.NextBackOff()
	m.attempts++

	m.observer.ReconnectScheduled(m.attempts, delay)
	m.logger.Info("Scheduling reconnect", zap.Int(logging.FieldAttempt, m.attempts), zap.Duration(logging.FieldDelay, delay))

	m.reconnectSeq++
	seq := m.reconnectSeq
	m.reconnectTimer = m.clock.AfterFunc(delay, func() {
		_ = m.post(reconnectTimerEvent{seq: seq})
	})
}

func (m *Manager) handleReconnectTimer(seq uint64) {
	if seq != m.reconnectSeq || m.reconnectTimer == nil {
		return
	}

	m.reconnectTimer = nil

	if m.manualClose || m.socket != nil {
		return
	}

	m.logger.Info("Reconnecting", zap.String(logging.FieldChannel, m.channel), zap.Int(logging.FieldAttempt, m.attempts))
	m.dial()
}

func (m *Manager) cancelReconnect() {
	m.reconnectSeq++

	if m.reconnectTimer != nil {
		m.reconnectTimer.Stop()
		m.reconnectTimer = nil
	}
}

func (m *Manager) resetReconnect() {
	m.attempts = 0
	m.backoff.Reset()
}

func (m *Manager) shutdown() {
	m.cancelReconnect()
	m.pendingConnect = ""
	m.teardown()

	if m.state != StateIdle {
		m.setState(StateClosed)
	}

	m.publish()
	m.logger.Debug("Connection manager stopped")
}

// stale reports whether an event belongs to a retired socket.
func (m *Manager) stale(gen uint64) bool {
	if gen != m.generation || m.socket == nil {
		m.logger.Debug("Ignoring event from retired socket", zap.Uint64(logging.FieldGeneration, gen),
			zap.Uint64("current", m.generation))

		return true
	}

	return false
}

func (m *Manager) setState(state ConnectionState) {
	if m.state == state {
		return
	}

	m.logger.Debug("Connection state changed", zap.Stringer("from", m.state), zap.Stringer("to", state))
	m.state = state
	m.observer.StateChanged(state)
}

func (m *Manager) notify(sig Signal) {
	m.notifier.Notify(sig)
}

func (m *Manager) raise(channel string, err *customerrors.BridgeError) {
	m.observer.ErrorRaised(string(err.Code))
	m.logger.Warn("Connection error", zap.String(logging.FieldErrorCode, string(err.Code)), zap.Error(err))
	m.notify(errorSignal(channel, err))
}
