package realtime

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/actual-software/chat-bridge/internal/auth"
	customerrors "github.com/actual-software/chat-bridge/pkg/common/errors"
)

func TestNewManager_RequiresDeps(t *testing.T) {
	_, err := NewManager(DefaultConfig(), Deps{}, zaptest.NewLogger(t))
	require.Error(t, err)
}

func TestConnect_EmptyChannel(t *testing.T) {
	h := newHarness(t, validCred())

	require.ErrorIs(t, h.m.Connect("  "), ErrEmptyChannel)
	assert.Equal(t, 0, h.dialer.Count())
}

func TestConnect_WithoutCredentialNeedsAuthentication(t *testing.T) {
	h := newHarness(t, auth.Credential{})

	h.connect("group-1")

	assert.Equal(t, 0, h.dialer.Count())
	assert.Equal(t, StateClosed, h.m.GetState())

	sigs := h.notifier.Of(SignalNeedsAuthentication)
	require.Len(t, sigs, 1)
	assert.Equal(t, "group-1", sigs[0].Channel)
	assert.True(t, customerrors.IsErrorCode(sigs[0].Err, customerrors.CHT_AUTH_REQUIRED))
}

func TestConnect_OpensAndSignals(t *testing.T) {
	h := newHarness(t, validCred())

	h.connect("group-1")

	require.Equal(t, 1, h.dialer.Count())
	s := h.dialer.Last()
	assert.Equal(t, "group-1", s.channel)
	assert.Equal(t, "tok-1", s.token)
	assert.Equal(t, StateConnecting, h.m.GetState())
	assert.Equal(t, "group-1", h.m.GetChannel())

	h.open(s)

	assert.Equal(t, StateOpen, h.m.GetState())
	assert.Len(t, h.notifier.Of(SignalConnected), 1)

	loading := h.notifier.Of(SignalLoading)
	require.Len(t, loading, 2)
	assert.True(t, loading[0].Loading)
	assert.False(t, loading[1].Loading)
}

func TestConnect_SameChannelIsNoop(t *testing.T) {
	h := newHarness(t, validCred())

	h.connect("group-1")
	h.connect("group-1")
	h.open(h.dialer.Last())
	h.connect("group-1")

	assert.Equal(t, 1, h.dialer.Count())
	assert.False(t, h.dialer.Last().Closed())
	assert.Equal(t, StateOpen, h.m.GetState())
}

func TestConnect_RapidSwitchingKeepsOnlyLastChannel(t *testing.T) {
	h := newHarness(t, validCred())

	require.NoError(t, h.m.Connect("a"))
	require.NoError(t, h.m.Connect("b"))
	require.NoError(t, h.m.Connect("c"))
	h.drain()

	require.Equal(t, 3, h.dialer.Count())
	assert.True(t, h.dialer.At(0).Closed())
	assert.True(t, h.dialer.At(1).Closed())
	assert.False(t, h.dialer.At(2).Closed())
	assert.Equal(t, "c", h.m.GetChannel())

	// A late open from a superseded socket changes nothing.
	h.open(h.dialer.At(0))
	assert.Equal(t, StateConnecting, h.m.GetState())
	assert.Empty(t, h.notifier.Of(SignalConnected))

	h.open(h.dialer.At(2))
	assert.Equal(t, StateOpen, h.m.GetState())

	connected := h.notifier.Of(SignalConnected)
	require.Len(t, connected, 1)
	assert.Equal(t, "c", connected[0].Channel)
}

func TestStaleSocketEventsAreIgnored(t *testing.T) {
	h := newHarness(t, validCred())

	h.connect("a")
	old := h.dialer.Last()
	h.open(old)
	h.connect("b")
	h.open(h.dialer.Last())
	h.notifier.Reset()

	old.listener.OnMessage([]byte(`{"type":"text","message":"late","sender_id":"u2"}`))
	old.listener.OnError(errBoom)
	old.listener.OnClose(1006, "gone")
	h.drain()

	assert.Empty(t, h.notifier.Of(SignalMessage))
	assert.Empty(t, h.notifier.Of(SignalError))
	assert.Empty(t, h.notifier.Of(SignalDisconnected))
	assert.Equal(t, StateOpen, h.m.GetState())
	assert.Equal(t, 0, h.m.GetReconnectAttempts())
}

func TestSend_BufferedUntilOpenInOrder(t *testing.T) {
	h := newHarness(t, validCred())

	require.NoError(t, h.m.Send(json.RawMessage(`{"n":1}`)))
	h.connect("group-1")
	require.NoError(t, h.m.Send(json.RawMessage(`{"n":2}`)))
	require.NoError(t, h.m.Send(json.RawMessage(`{"n":3}`)))
	h.drain()

	assert.Equal(t, 3, h.m.GetBuffered())
	assert.Empty(t, h.dialer.Last().Sent())

	h.open(h.dialer.Last())

	assert.Equal(t, []string{`{"n":1}`, `{"n":2}`, `{"n":3}`}, h.dialer.Last().Sent())
	assert.Equal(t, 0, h.m.GetBuffered())
}

func TestSend_OpenGoesStraightToSocket(t *testing.T) {
	h := newHarness(t, validCred())

	h.connect("group-1")
	h.open(h.dialer.Last())

	require.NoError(t, h.m.Send(map[string]string{"message": "hi"}))
	h.drain()

	assert.Equal(t, []string{`{"message":"hi"}`}, h.dialer.Last().Sent())
	assert.Equal(t, 0, h.m.GetBuffered())
}

func TestSend_EncodingFailure(t *testing.T) {
	h := newHarness(t, validCred())

	err := h.m.Send(make(chan int))
	require.Error(t, err)
	assert.True(t, customerrors.IsErrorCode(err, customerrors.CHT_PROTO_MARSHAL))
}

func TestSend_WriteFailureKeepsFrame(t *testing.T) {
	h := newHarness(t, validCred())

	h.connect("group-1")
	s := h.dialer.Last()
	h.open(s)
	s.sendErr = errBoom

	require.NoError(t, h.m.Send(json.RawMessage(`{"n":1}`)))
	h.drain()

	errs := h.notifier.Of(SignalError)
	require.Len(t, errs, 1)
	assert.True(t, customerrors.IsErrorCode(errs[0].Err, customerrors.CHT_CONN_SEND))
	assert.Equal(t, 1, h.m.GetBuffered())
}

func TestSend_BufferDropsOldestWhenFull(t *testing.T) {
	h := newHarness(t, validCred(), func(c *Config) { c.OutboundLimit = 2 })

	for _, n := range []string{"1", "2", "3"} {
		require.NoError(t, h.m.Send(json.RawMessage(n)))
	}

	h.connect("group-1")
	h.open(h.dialer.Last())

	assert.Equal(t, []string{"2", "3"}, h.dialer.Last().Sent())
}

func TestBuffer_KeptAcrossReconnectToSameChannel(t *testing.T) {
	h := newHarness(t, validCred())

	h.connect("group-1")
	h.open(h.dialer.Last())
	h.closeSocket(h.dialer.Last(), 1006)

	require.NoError(t, h.m.Send(json.RawMessage(`{"n":1}`)))
	h.drain()

	h.clock.Advance(500 * time.Millisecond)
	h.drain()
	require.Equal(t, 2, h.dialer.Count())

	h.open(h.dialer.Last())
	assert.Equal(t, []string{`{"n":1}`}, h.dialer.Last().Sent())
}

func TestBuffer_ClearedOnChannelSwitch(t *testing.T) {
	h := newHarness(t, validCred())

	h.connect("a")
	require.NoError(t, h.m.Send(json.RawMessage(`{"n":1}`)))
	h.drain()
	require.Equal(t, 1, h.m.GetBuffered())

	h.connect("b")
	assert.Equal(t, 0, h.m.GetBuffered())

	h.open(h.dialer.Last())
	assert.Empty(t, h.dialer.Last().Sent())
}

func TestBuffer_ClearedOnDisconnect(t *testing.T) {
	h := newHarness(t, validCred())

	h.connect("a")
	require.NoError(t, h.m.Send(json.RawMessage(`{"n":1}`)))
	require.NoError(t, h.m.Disconnect())
	h.drain()

	assert.Equal(t, 0, h.m.GetBuffered())

	h.connect("a")
	h.open(h.dialer.Last())
	assert.Empty(t, h.dialer.Last().Sent())
}

func TestRefresh_ScheduledAheadOfExpiry(t *testing.T) {
	h := newHarness(t, validCred())

	h.connect("group-1")
	h.open(h.dialer.Last())

	assert.Equal(t, []time.Duration{59*time.Minute + 30*time.Second}, h.clock.Pending())

	h.clock.Advance(59*time.Minute + 29*time.Second)
	h.drain()
	assert.Equal(t, int32(0), h.refresher.calls.Load())

	h.clock.Advance(time.Second)
	h.settle()

	assert.Equal(t, int32(1), h.refresher.calls.Load())

	cred, ok := h.store.Current()
	require.True(t, ok)
	assert.Equal(t, "tok-2", cred.Token)

	// The live socket is replaced by one carrying the new token.
	require.Equal(t, 2, h.dialer.Count())
	assert.True(t, h.dialer.At(0).Closed())
	assert.Equal(t, "tok-2", h.dialer.Last().token)
	assert.Equal(t, []time.Duration{time.Hour}, h.clock.Pending())
}

func TestRefresh_InsideMarginRefreshesImmediately(t *testing.T) {
	h := newHarness(t, auth.Credential{Token: "tok-1", ExpiresAt: epoch.Add(10 * time.Second)})

	h.connect("group-1")
	h.settle()

	assert.Equal(t, int32(1), h.refresher.calls.Load())
	require.Equal(t, 2, h.dialer.Count())
	assert.Equal(t, "tok-2", h.dialer.Last().token)
}

func TestRefresh_NoExpiryArmsNothing(t *testing.T) {
	h := newHarness(t, auth.Credential{Token: "opaque"})

	h.connect("group-1")
	h.open(h.dialer.Last())

	assert.Empty(t, h.clock.Pending())
	assert.Equal(t, int32(0), h.refresher.calls.Load())
}

func TestRefresh_ExpiredCredentialRefreshesBeforeDial(t *testing.T) {
	h := newHarness(t, auth.Credential{Token: "tok-1", ExpiresAt: epoch.Add(-time.Second)})

	h.connect("group-1")
	assert.Equal(t, 0, h.dialer.Count())

	h.settle()

	require.Equal(t, 1, h.dialer.Count())
	assert.Equal(t, "tok-2", h.dialer.Last().token)
	assert.Equal(t, "group-1", h.dialer.Last().channel)
}

func TestRefresh_FailureNeedsAuthentication(t *testing.T) {
	h := newHarness(t, auth.Credential{Token: "tok-1", ExpiresAt: epoch.Add(-time.Second)})
	h.refresher.err = errBoom

	h.connect("group-1")
	h.settle()

	assert.Equal(t, 0, h.dialer.Count())

	sigs := h.notifier.Of(SignalNeedsAuthentication)
	require.Len(t, sigs, 1)
	assert.True(t, customerrors.IsErrorCode(sigs[0].Err, customerrors.CHT_AUTH_REFRESH_FAILED))
	require.ErrorIs(t, sigs[0].Err, errBoom)

	loading := h.notifier.Of(SignalLoading)
	require.Len(t, loading, 2)
	assert.True(t, loading[0].Loading)
	assert.False(t, loading[1].Loading)
}

func TestRefresh_ExpiredResultTreatedAsFailure(t *testing.T) {
	h := newHarness(t, auth.Credential{Token: "tok-1", ExpiresAt: epoch.Add(-time.Second)})
	h.refresher.cred = auth.Credential{Token: "tok-2", ExpiresAt: epoch.Add(-time.Minute)}

	h.connect("group-1")
	h.settle()

	assert.Equal(t, 0, h.dialer.Count())
	assert.Len(t, h.notifier.Of(SignalNeedsAuthentication), 1)
}

func TestAuthClose_RefreshesOnceThenReconnects(t *testing.T) {
	h := newHarness(t, validCred())

	h.connect("group-1")
	h.open(h.dialer.Last())
	h.closeSocket(h.dialer.Last(), 4001)

	disc := h.notifier.Of(SignalDisconnected)
	require.Len(t, disc, 1)
	assert.Equal(t, 4001, disc[0].CloseCode)

	h.settle()

	assert.Equal(t, int32(1), h.refresher.calls.Load())
	require.Equal(t, 2, h.dialer.Count())
	assert.Equal(t, "tok-2", h.dialer.Last().token)
	assert.Equal(t, 0, h.m.GetReconnectAttempts())
	assert.Equal(t, []time.Duration{time.Hour + 59*time.Minute + 30*time.Second}, h.clock.Pending())

	h.open(h.dialer.Last())
	assert.Equal(t, StateOpen, h.m.GetState())
}

func TestAuthClose_UpgradeRejection(t *testing.T) {
	for _, code := range []int{401, 403, 4003, 4401} {
		h := newHarness(t, validCred())

		h.connect("group-1")
		h.closeSocket(h.dialer.Last(), code)
		h.settle()

		assert.Equal(t, int32(1), h.refresher.calls.Load(), "code %d", code)
		assert.Equal(t, 2, h.dialer.Count(), "code %d", code)
	}
}

func TestRefresh_OverlappingRequestsShareOneCall(t *testing.T) {
	h := newHarness(t, auth.Credential{Token: "tok-1", ExpiresAt: epoch.Add(10 * time.Second)})
	h.refresher.gate = make(chan struct{})

	h.connect("group-1")
	require.Eventually(t, func() bool { return h.refresher.calls.Load() == 1 }, time.Second, 5*time.Millisecond)

	h.closeSocket(h.dialer.Last(), 4001)

	close(h.refresher.gate)
	h.settle()

	assert.Equal(t, int32(1), h.refresher.calls.Load())
	require.Equal(t, 2, h.dialer.Count())
	assert.Equal(t, "tok-2", h.dialer.Last().token)
}

func TestAbnormalClose_BackoffThenTerminal(t *testing.T) {
	h := newHarness(t, validCred())

	h.connect("group-1")
	h.open(h.dialer.Last())

	want := []time.Duration{
		500 * time.Millisecond,
		time.Second,
		2 * time.Second,
		4 * time.Second,
		8 * time.Second,
	}

	for i, delay := range want {
		h.closeSocket(h.dialer.Last(), 1006)

		assert.Equal(t, []time.Duration{delay}, h.clock.Pending(), "attempt %d", i+1)
		assert.Equal(t, i+1, h.m.GetReconnectAttempts())
		assert.Equal(t, StateClosed, h.m.GetState())

		h.clock.Advance(delay)
		h.drain()
		require.Equal(t, i+2, h.dialer.Count())
	}

	h.closeSocket(h.dialer.Last(), 1006)

	assert.Empty(t, h.clock.Pending())
	assert.Equal(t, 6, h.dialer.Count())

	errs := h.notifier.Of(SignalError)
	require.Len(t, errs, 1)
	assert.True(t, customerrors.IsErrorCode(errs[0].Err, customerrors.CHT_CONN_MAX_RECONNECT))
	assert.True(t, customerrors.IsTerminal(errs[0].Err))
}

func TestAbnormalClose_OpenResetsAttempts(t *testing.T) {
	h := newHarness(t, validCred())

	h.connect("group-1")
	h.open(h.dialer.Last())
	h.closeSocket(h.dialer.Last(), 1006)
	h.clock.Advance(500 * time.Millisecond)
	h.drain()
	h.closeSocket(h.dialer.Last(), 1006)
	require.Equal(t, []time.Duration{time.Second}, h.clock.Pending())

	h.clock.Advance(time.Second)
	h.drain()
	h.open(h.dialer.Last())
	assert.Equal(t, 0, h.m.GetReconnectAttempts())

	h.closeSocket(h.dialer.Last(), 1006)
	assert.Equal(t, []time.Duration{500 * time.Millisecond}, h.clock.Pending())
}

func TestConnect_SameChannelWhileReconnectingKeepsBudget(t *testing.T) {
	h := newHarness(t, validCred())

	h.connect("group-1")
	h.open(h.dialer.Last())
	h.closeSocket(h.dialer.Last(), 1006)
	h.clock.Advance(500 * time.Millisecond)
	h.drain()
	h.closeSocket(h.dialer.Last(), 1006)
	h.clock.Advance(time.Second)
	h.drain()

	require.Equal(t, StateConnecting, h.m.GetState())
	require.Equal(t, 2, h.m.GetReconnectAttempts())

	h.connect("group-1")

	assert.Equal(t, 3, h.dialer.Count())
	assert.Equal(t, 2, h.m.GetReconnectAttempts())

	h.closeSocket(h.dialer.Last(), 1006)

	assert.Equal(t, []time.Duration{2 * time.Second}, h.clock.Pending())
	assert.Equal(t, 3, h.m.GetReconnectAttempts())
}

func TestNormalClose_NoReconnect(t *testing.T) {
	h := newHarness(t, validCred())

	h.connect("group-1")
	h.open(h.dialer.Last())
	h.closeSocket(h.dialer.Last(), CloseNormal)

	assert.Empty(t, h.clock.Pending())
	assert.Equal(t, StateClosed, h.m.GetState())

	disc := h.notifier.Of(SignalDisconnected)
	require.Len(t, disc, 1)
	assert.Equal(t, CloseNormal, disc[0].CloseCode)

	h.clock.Advance(time.Minute)
	h.drain()
	assert.Equal(t, 1, h.dialer.Count())
}

func TestDisconnect_ClosesSocketWithoutRecovery(t *testing.T) {
	h := newHarness(t, validCred())

	h.connect("group-1")
	s := h.dialer.Last()
	h.open(s)

	require.NoError(t, h.m.Disconnect())
	h.drain()

	assert.True(t, s.Closed())
	assert.Equal(t, StateClosed, h.m.GetState())
	assert.Empty(t, h.clock.Pending())

	// The transport's own close report for the retired socket is dropped.
	h.closeSocket(s, CloseNormal)

	disc := h.notifier.Of(SignalDisconnected)
	require.Len(t, disc, 1)
	assert.Equal(t, "disconnected by host", disc[0].Reason)
}

func TestDisconnect_CancelsPendingReconnect(t *testing.T) {
	h := newHarness(t, validCred())

	h.connect("group-1")
	h.open(h.dialer.Last())
	h.closeSocket(h.dialer.Last(), 1006)
	require.Len(t, h.clock.Pending(), 1)

	require.NoError(t, h.m.Disconnect())
	h.drain()

	assert.Empty(t, h.clock.Pending())

	h.clock.Advance(time.Minute)
	h.drain()
	assert.Equal(t, 1, h.dialer.Count())
	assert.Equal(t, 0, h.m.GetReconnectAttempts())
}

func TestDisconnect_IdleIsNoop(t *testing.T) {
	h := newHarness(t, validCred())

	require.NoError(t, h.m.Disconnect())
	h.drain()

	assert.Empty(t, h.notifier.Of(SignalDisconnected))
	assert.Equal(t, StateIdle, h.m.GetState())
}

func TestDial_ConstructionFailure(t *testing.T) {
	h := newHarness(t, validCred())
	h.dialer.err = errBoom

	h.connect("group-1")

	assert.Equal(t, StateClosed, h.m.GetState())
	assert.Empty(t, h.clock.Pending())

	errs := h.notifier.Of(SignalError)
	require.Len(t, errs, 1)
	assert.True(t, customerrors.IsErrorCode(errs[0].Err, customerrors.CHT_CONN_CONSTRUCT))
}

func TestMessage_ParseErrorKeepsSocket(t *testing.T) {
	h := newHarness(t, validCred())

	h.connect("group-1")
	s := h.dialer.Last()
	h.open(s)

	s.listener.OnMessage([]byte("not json"))
	h.drain()

	errs := h.notifier.Of(SignalError)
	require.Len(t, errs, 1)
	assert.True(t, customerrors.IsErrorCode(errs[0].Err, customerrors.CHT_PROTO_PARSE))
	assert.Equal(t, StateOpen, h.m.GetState())
	assert.False(t, s.Closed())
}

func TestMessage_ForwardsOthersOnly(t *testing.T) {
	h := newHarness(t, validCred())

	h.connect("group-1")
	s := h.dialer.Last()
	h.open(s)

	s.listener.OnMessage([]byte(`{"type":"text","message":"echo","sender_id":"me"}`))
	s.listener.OnMessage([]byte(`{"status":"ok"}`))
	s.listener.OnMessage([]byte(`{"message_type":"text","text_message":"hello","sender":"u2"}`))
	h.drain()

	msgs := h.notifier.Of(SignalMessage)
	require.Len(t, msgs, 1)
	assert.Equal(t, "hello", msgs[0].Message.Message)
	assert.Equal(t, "u2", msgs[0].Message.SenderID)
	assert.Equal(t, "group-1", msgs[0].Channel)

	select {
	case alerted := <-h.alerter.alerts:
		assert.Equal(t, "hello", alerted.Message)
	case <-time.After(time.Second):
		t.Fatal("alerter was not called")
	}
}

func TestSocketError_Signalled(t *testing.T) {
	h := newHarness(t, validCred())

	h.connect("group-1")
	s := h.dialer.Last()
	h.open(s)

	s.listener.OnError(errBoom)
	h.drain()

	errs := h.notifier.Of(SignalError)
	require.Len(t, errs, 1)
	assert.True(t, customerrors.IsErrorCode(errs[0].Err, customerrors.CHT_CONN_TRANSPORT))
	require.ErrorIs(t, errs[0].Err, errBoom)
}

func TestRun_LifecycleAndShutdown(t *testing.T) {
	h := newHarness(t, validCred())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errCh := make(chan error, 1)

	go func() { errCh <- h.m.Run(ctx) }()

	require.NoError(t, h.m.Connect("group-1"))
	require.Eventually(t, func() bool { return h.dialer.Count() == 1 }, time.Second, 5*time.Millisecond)

	h.dialer.Last().listener.OnOpen()
	require.Eventually(t, func() bool { return h.m.GetState() == StateOpen }, time.Second, 5*time.Millisecond)

	require.ErrorIs(t, h.m.Run(ctx), ErrAlreadyRunning)

	cancel()

	select {
	case err := <-errCh:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not return")
	}

	<-h.m.Done()
	assert.True(t, h.dialer.Last().Closed())
	assert.Equal(t, StateClosed, h.m.GetState())

	err := h.m.Disconnect()
	assert.True(t, customerrors.IsErrorCode(err, customerrors.CHT_INT_STOPPED))
}
