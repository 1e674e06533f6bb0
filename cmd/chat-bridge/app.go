package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/actual-software/chat-bridge/internal/config"
	"github.com/actual-software/chat-bridge/internal/secure"
	"github.com/actual-software/chat-bridge/pkg/common/logging"
)

const (
	appName         = "chat-bridge"
	refreshVaultKey = "refresh_token"
)

// application holds what every command needs: configuration, a logger and the token vault.
type application struct {
	cmd    *cobra.Command
	cfg    *config.Config
	logger *zap.Logger
}

// initializeApplication loads configuration and builds the logger from the global flags.
func initializeApplication(cmd *cobra.Command) (*application, error) {
	app := &application{cmd: cmd}

	if err := app.initializeConfiguration(); err != nil {
		return nil, err
	}

	if err := app.initializeLogging(); err != nil {
		return nil, err
	}

	return app, nil
}

func (a *application) initializeConfiguration() error {
	configPath, err := a.cmd.Flags().GetString("config")
	if err != nil {
		return fmt.Errorf("failed to get config flag: %w", err)
	}

	a.cfg, err = config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	return nil
}

func (a *application) initializeLogging() error {
	quiet, err := a.cmd.Flags().GetBool("quiet")
	if err != nil {
		return fmt.Errorf("failed to get quiet flag: %w", err)
	}

	level, err := a.cmd.Flags().GetString("log-level")
	if err != nil {
		return fmt.Errorf("failed to get log-level flag: %w", err)
	}

	a.logger, err = logging.NewLogger(level, quiet, &a.cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	a.logger = a.logger.With(zap.String(logging.FieldVersion, Version))

	return nil
}

// openVault returns the token vault, or nil when secure storage is disabled.
func (a *application) openVault() (*secure.FileVault, error) {
	if !a.cfg.Auth.SecureStore {
		return nil, nil //nolint:nilnil // storage disabled
	}

	vault, err := secure.NewFileVault(appName)
	if err != nil {
		return nil, fmt.Errorf("failed to open token vault: %w", err)
	}

	return vault, nil
}

func (a *application) close() {
	if err := a.logger.Sync(); err != nil {
		// Logger sync errors are typically not critical at shutdown.
		_, _ = fmt.Fprintf(os.Stderr, "Failed to sync logger: %v\n", err)
	}
}

// closer runs fn at shutdown and logs its error.
func (a *application) closer(name string, fn func(context.Context) error) func() {
	return func() {
		if err := fn(context.Background()); err != nil {
			a.logger.Warn("Shutdown step failed", zap.String(logging.FieldComponent, name), zap.Error(err))
		}
	}
}

func (a *application) stdout() io.Writer {
	return a.cmd.OutOrStdout()
}
