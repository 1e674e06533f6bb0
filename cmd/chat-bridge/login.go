package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/actual-software/chat-bridge/internal/auth"
	"github.com/actual-software/chat-bridge/internal/config"
	"github.com/actual-software/chat-bridge/internal/secure"
)

var errSecureStoreDisabled = errors.New("secure storage is disabled: set auth.secure_store to true")

func loginCmd() *cobra.Command {
	var token, refreshToken string

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Save an access token (and optionally a refresh token) to the local vault",
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := initializeApplication(cmd)
			if err != nil {
				return err
			}
			defer app.close()

			vault, err := app.requireVault()
			if err != nil {
				return err
			}

			if token == "" {
				token, err = promptSecret(cmd.InOrStdin(), cmd.ErrOrStderr(), "Access token: ")
				if err != nil {
					return err
				}
			}

			return app.login(vault, token, refreshToken)
		},
	}

	cmd.Flags().StringVar(&token, "token", "", "Access token (prompted for when omitted)")
	cmd.Flags().StringVar(&refreshToken, "refresh-token", "", "Refresh token sent as a cookie on renewal")

	return cmd
}

func (a *application) login(vault *secure.FileVault, token, refreshToken string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return errors.New("no token given")
	}

	cred := auth.NewCredential(token)

	if err := vault.Store(a.cfg.Auth.SecureKey, cred.Token); err != nil {
		return fmt.Errorf("failed to save access token: %w", err)
	}

	if refreshToken != "" {
		if err := vault.Store(refreshVaultKey, refreshToken); err != nil {
			return fmt.Errorf("failed to save refresh token: %w", err)
		}
	}

	out := a.stdout()
	_, _ = fmt.Fprintf(out, "Saved credentials to %s\n", vault.Path())

	if userID, err := auth.UserIDFromToken(cred.Token); err == nil {
		_, _ = fmt.Fprintf(out, "User: %s\n", userID)
	}

	if cred.HasExpiry() {
		_, _ = fmt.Fprintf(out, "Expires: %s\n", cred.ExpiresAt.Local().Format("2006-01-02 15:04:05 MST"))
	}

	return nil
}

func logoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Remove saved tokens from the local vault",
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := initializeApplication(cmd)
			if err != nil {
				return err
			}
			defer app.close()

			vault, err := app.requireVault()
			if err != nil {
				return err
			}

			for _, key := range []string{app.cfg.Auth.SecureKey, refreshVaultKey} {
				if err := vault.Delete(key); err != nil && !errors.Is(err, secure.ErrTokenNotFound) {
					return fmt.Errorf("failed to remove %s: %w", key, err)
				}
			}

			_, _ = fmt.Fprintln(app.stdout(), "Logged out")

			return nil
		},
	}
}

func initCmd() *cobra.Command {
	var path string

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a configuration file with the current settings",
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := initializeApplication(cmd)
			if err != nil {
				return err
			}
			defer app.close()

			if path == "" {
				if path, err = config.DefaultPath(); err != nil {
					return err
				}
			}

			if err := config.Save(app.cfg, path); err != nil {
				return err
			}

			_, _ = fmt.Fprintf(app.stdout(), "Wrote %s\n", path)

			return nil
		},
	}

	cmd.Flags().StringVar(&path, "path", "", "Destination file (defaults to the user config directory)")

	return cmd
}

func (a *application) requireVault() (*secure.FileVault, error) {
	vault, err := a.openVault()
	if err != nil {
		return nil, err
	}

	if vault == nil {
		return nil, errSecureStoreDisabled
	}

	return vault, nil
}

// promptSecret reads one line, without echo when in is a terminal.
func promptSecret(in io.Reader, prompt io.Writer, label string) (string, error) {
	_, _ = fmt.Fprint(prompt, label)

	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		secret, err := term.ReadPassword(int(f.Fd()))
		_, _ = fmt.Fprintln(prompt)

		if err != nil {
			return "", fmt.Errorf("failed to read token: %w", err)
		}

		return string(secret), nil
	}

	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("failed to read token: %w", err)
	}

	return strings.TrimSpace(line), nil
}
