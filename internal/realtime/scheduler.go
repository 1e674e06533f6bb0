package realtime

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/actual-software/chat-bridge/internal/auth"
	customerrors "github.com/actual-software/chat-bridge/pkg/common/errors"
	"github.com/actual-software/chat-bridge/pkg/common/logging"
)

var errAlreadyExpired = errors.New("refreshed credential is already expired")

// scheduleRefresh arms the proactive refresh timer for the current credential. A credential
// without an expiry arms nothing; one inside the safety margin is refreshed immediately.
func (m *Manager) scheduleRefresh() {
	m.cancelRefreshTimer()

	cred, ok := m.store.Current()
	if !ok || !cred.HasExpiry() {
		return
	}

	wait := cred.ExpiresAt.Sub(m.clock.Now()) - m.config.RefreshMargin
	if wait <= 0 {
		m.logger.Debug("Credential inside refresh margin, refreshing now",
			zap.Time(logging.FieldExpiresAt, cred.ExpiresAt))
		m.refreshNow()

		return
	}

	m.refreshSeq++
	seq := m.refreshSeq
	m.refreshTimer = m.clock.AfterFunc(wait, func() {
		_ = m.post(refreshTimerEvent{seq: seq})
	})

	m.logger.Debug("Refresh scheduled", zap.Duration(logging.FieldDelay, wait), zap.Time(logging.FieldExpiresAt, cred.ExpiresAt))
}

func (m *Manager) cancelRefreshTimer() {
	m.refreshSeq++

	if m.refreshTimer != nil {
		m.refreshTimer.Stop()
		m.refreshTimer = nil
	}
}

func (m *Manager) handleRefreshTimer(seq uint64) {
	if seq != m.refreshSeq || m.refreshTimer == nil {
		return
	}

	m.refreshTimer = nil
	m.refreshNow()
}

// refreshNow starts a refresh unless one is already in flight.
func (m *Manager) refreshNow() {
	if m.refreshing {
		m.logger.Debug("Refresh already in flight")

		return
	}

	m.refreshing = true
	m.cancelRefreshTimer()

	ctx := m.ctx
	timeout := m.config.RefreshTimeout

	go func() {
		cred, err := m.callRefresher(ctx, timeout)
		_ = m.post(refreshDoneEvent{cred: cred, err: err})
	}()
}

func (m *Manager) callRefresher(parent context.Context, timeout time.Duration) (cred auth.Credential, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("refresher panicked: %v", r)
		}
	}()

	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	return m.refresher.Refresh(ctx)
}

func (m *Manager) handleRefreshDone(cred auth.Credential, err error) {
	m.refreshing = false

	if err == nil && cred.IsZero() {
		err = auth.ErrNoCredential
	}

	if err == nil && cred.Expired(m.clock.Now()) {
		err = errAlreadyExpired
	}

	if err != nil {
		m.observer.RefreshCompleted(false)
		m.logger.Warn("Credential refresh failed", zap.Error(err))

		if m.manualClose && m.pendingConnect == "" && m.socket == nil {
			return
		}

		channel := m.channel
		if m.pendingConnect != "" {
			channel = m.pendingConnect
			m.notify(loadingSignal(channel, false))
		}

		m.pendingConnect = ""
		m.observer.ErrorRaised(string(customerrors.CHT_AUTH_REFRESH_FAILED))
		m.notify(needsAuthSignal(channel, customerrors.New(customerrors.CHT_AUTH_REFRESH_FAILED, err)))

		return
	}

	m.observer.RefreshCompleted(true)
	m.store.Update(cred)
	m.logger.Info("Credential refreshed", zap.Time(logging.FieldExpiresAt, cred.ExpiresAt))

	target := m.pendingConnect
	if m.socket != nil {
		target = m.channel
	}

	m.pendingConnect = ""

	if target == "" {
		if !m.manualClose {
			m.scheduleRefresh()
		}

		return
	}

	m.teardown()
	m.channel = target
	m.dial()
}
