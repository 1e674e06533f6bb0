package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/actual-software/chat-bridge/internal/auth"
	"github.com/actual-software/chat-bridge/internal/metrics"
	"github.com/actual-software/chat-bridge/internal/notify"
	"github.com/actual-software/chat-bridge/internal/realtime"
	"github.com/actual-software/chat-bridge/internal/tracing"
	"github.com/actual-software/chat-bridge/internal/transport"
	"github.com/actual-software/chat-bridge/pkg/common/logging"
)

const (
	signalBuffer      = 256
	drainPollInterval = 50 * time.Millisecond
)

// joinCmd creates the join command.
func joinCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "join <channel>",
		Short: "Join a chat channel and relay messages between it and the terminal",
		Long: `Join opens a socket to the channel, prints messages from other members and
sends each line read from stdin. Type /file <url> [caption] to share a link and
/quit to leave.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := initializeApplication(cmd)
			if err != nil {
				return err
			}
			defer app.close()

			return app.join(args[0], cmd.InOrStdin())
		},
	}
}

// session wires one manager to the terminal.
type session struct {
	app      *application
	manager  *realtime.Manager
	notifier *realtime.ChannelNotifier
	console  *console
	userID   string
	cleanup  []func()
}

func (a *application) join(channel string, in io.Reader) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	s, err := a.newSession(ctx)
	if err != nil {
		return err
	}
	defer s.close()

	return s.run(ctx, channel, in)
}

func (a *application) newSession(ctx context.Context) (*session, error) {
	s := &session{
		app:      a,
		notifier: realtime.NewChannelNotifier(signalBuffer, a.logger),
		console:  newConsole(a.stdout()),
	}

	tracer, err := tracing.Init(a.cfg.Tracing, a.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize tracing: %w", err)
	}

	s.cleanup = append(s.cleanup, a.closer("tracing", tracer.Shutdown))

	store, refreshToken, err := a.credentialStore()
	if err != nil {
		s.close()

		return nil, err
	}

	s.userID = a.resolveUserID(store)

	refresher, err := auth.NewHTTPRefresher(auth.RefresherConfig{
		APIURL:         a.cfg.Server.APIURL,
		RefreshCookie:  &http.Cookie{Name: a.cfg.Auth.RefreshCookieName, Value: refreshToken},
		RequestTimeout: a.cfg.Refresh.GetRequestTimeout(),
	}, a.logger,
		auth.WithTracer(tracer),
		auth.WithBearer(func() string {
			cred, _ := store.Current()

			return cred.Token
		}))
	if err != nil {
		s.close()

		return nil, fmt.Errorf("failed to create refresher: %w", err)
	}

	dialer, err := transport.NewDialer(transport.Config{
		BaseURL:          a.cfg.Server.WebSocketURL,
		HandshakeTimeout: a.cfg.Connection.GetHandshakeTimeout(),
		WriteTimeout:     a.cfg.Connection.GetWriteTimeout(),
		PingInterval:     a.cfg.Connection.GetPingInterval(),
		MaxMessageSize:   a.cfg.Connection.MaxMessageSize,
	}, a.logger, transport.WithTracer(tracer))
	if err != nil {
		s.close()

		return nil, fmt.Errorf("failed to create dialer: %w", err)
	}

	alerter, err := a.alerters(ctx, s)
	if err != nil {
		s.close()

		return nil, err
	}

	s.manager, err = realtime.NewManager(a.managerConfig(s.userID), realtime.Deps{
		Dialer:    dialer,
		Store:     store,
		Refresher: refresher,
		Notifier:  s.notifier,
		Alerter:   alerter,
		Observer:  a.observer(ctx, s, tracer),
	}, a.logger)
	if err != nil {
		s.close()

		return nil, fmt.Errorf("failed to create connection manager: %w", err)
	}

	return s, nil
}

func (a *application) managerConfig(userID string) realtime.Config {
	return realtime.Config{
		UserID:         userID,
		InitialDelay:   a.cfg.Reconnect.GetInitialDelay(),
		MaxDelay:       a.cfg.Reconnect.GetMaxDelay(),
		Multiplier:     a.cfg.Reconnect.Multiplier,
		MaxAttempts:    a.cfg.Reconnect.MaxAttempts,
		RefreshMargin:  a.cfg.Refresh.GetSafetyMargin(),
		RefreshTimeout: a.cfg.Refresh.GetRequestTimeout(),
		OutboundLimit:  a.cfg.Connection.OutboundBuffer,
	}
}

// credentialStore seeds the credential store from configuration and the vault. It also returns
// the refresh token.
func (a *application) credentialStore() (realtime.CredentialStore, string, error) {
	vault, err := a.openVault()
	if err != nil {
		return nil, "", err
	}

	refreshToken := a.cfg.Auth.RefreshToken

	if vault == nil {
		return auth.NewMemoryStore(auth.NewCredential(a.cfg.Auth.Token)), refreshToken, nil
	}

	if refreshToken == "" {
		if saved, err := vault.Retrieve(refreshVaultKey); err == nil {
			refreshToken = saved
		}
	}

	store := auth.NewPersistentStore(vault, a.cfg.Auth.SecureKey, a.logger)
	if a.cfg.Auth.Token != "" {
		store.Update(auth.NewCredential(a.cfg.Auth.Token))
	}

	return store, refreshToken, nil
}

// resolveUserID prefers the configured id and falls back to the token's claims.
func (a *application) resolveUserID(store realtime.CredentialStore) string {
	if a.cfg.Auth.UserID != "" {
		return a.cfg.Auth.UserID
	}

	cred, ok := store.Current()
	if !ok {
		return ""
	}

	userID, err := auth.UserIDFromToken(cred.Token)
	if err != nil {
		a.logger.Debug("No user id in token", zap.Error(err))

		return ""
	}

	return userID
}

//nolint:ireturn // returns the composed alerter or nil
func (a *application) alerters(ctx context.Context, s *session) (realtime.Alerter, error) {
	var list notify.Multi

	if a.cfg.Notify.Bell {
		list = append(list, notify.NewBell(a.stdout()))
	}

	if a.cfg.Notify.Redis.Enabled {
		pub, err := notify.NewRedisPublisher(ctx, notify.RedisConfig{
			URL:      a.cfg.Notify.Redis.URL,
			Password: a.cfg.Notify.Redis.Password,
			DB:       a.cfg.Notify.Redis.DB,
			Channel:  a.cfg.Notify.Redis.Channel,
		}, a.logger)
		if err != nil {
			return nil, fmt.Errorf("failed to start redis notifications: %w", err)
		}

		s.cleanup = append(s.cleanup, a.closer("redis", func(context.Context) error { return pub.Close() }))
		list = append(list, pub)
	}

	if len(list) == 0 {
		return nil, nil
	}

	return list, nil
}

//nolint:ireturn // nil disables observation
func (a *application) observer(ctx context.Context, s *session, tracer *tracing.Tracer) realtime.Observer {
	if !a.cfg.Metrics.Enabled {
		return nil
	}

	registry := metrics.NewRegistry()
	exporter := metrics.NewExporter(a.cfg.Metrics.Endpoint, registry.Gatherer(), a.logger,
		metrics.WithTracer(tracer))

	metricsCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	go func() {
		defer close(done)

		if err := exporter.Start(metricsCtx); err != nil {
			a.logger.Error("Metrics server failed", zap.Error(err))
		}
	}()

	s.cleanup = append(s.cleanup, func() {
		cancel()
		<-done
	})

	return registry
}

// run connects, relays stdin and signals, and returns when the user quits, the process is
// interrupted, or the session can no longer recover.
func (s *session) run(ctx context.Context, channel string, in io.Reader) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	runErr := make(chan error, 1)

	go func() { runErr <- s.manager.Run(ctx) }()

	if err := s.manager.Connect(channel); err != nil {
		return err
	}

	s.app.logger.Info("Joining channel", zap.String(logging.FieldChannel, channel),
		zap.String(logging.FieldUserID, s.userID))

	inputDone := make(chan error, 1)

	go func() { inputDone <- s.readInput(in) }()

	// After stdin ends the session stays up until everything typed has been written.
	drain := time.NewTicker(drainPollInterval)
	drain.Stop()

	defer drain.Stop()

	var (
		drainTick <-chan time.Time
		result    error
	)

loop:
	for {
		select {
		case <-ctx.Done():
			break loop
		case err := <-inputDone:
			if errors.Is(err, errQuit) {
				break loop
			}

			if err != nil {
				result = err

				break loop
			}

			inputDone = nil

			drain.Reset(drainPollInterval)
			drainTick = drain.C
		case <-drainTick:
			if s.flushed() && len(s.notifier.Signals()) == 0 {
				break loop
			}
		case sig := <-s.notifier.Signals():
			if err := s.console.render(sig); err != nil {
				result = err

				break loop
			}
		}
	}

	if err := s.manager.Disconnect(); err != nil {
		s.app.logger.Debug("Disconnect after stop", zap.Error(err))
	}

	cancel()

	if err := <-runErr; err != nil && result == nil {
		result = err
	}

	return result
}

// flushed reports whether the socket is open with nothing left in the outbound buffer.
func (s *session) flushed() bool {
	return s.manager.GetState() == realtime.StateOpen && s.manager.GetBuffered() == 0
}

// readInput sends each line until EOF or /quit.
func (s *session) readInput(in io.Reader) error {
	scanner := bufio.NewScanner(in)

	for scanner.Scan() {
		msg, err := parseInput(scanner.Text(), s.userID)
		if errors.Is(err, errQuit) {
			return errQuit
		}

		if err != nil {
			s.console.println(s.console.warn(err.Error()))

			continue
		}

		if msg == nil {
			continue
		}

		if err := s.manager.Send(msg); err != nil {
			return err
		}
	}

	return scanner.Err()
}

func (s *session) close() {
	for i := len(s.cleanup) - 1; i >= 0; i-- {
		s.cleanup[i]()
	}

	s.notifier.Close()
}
