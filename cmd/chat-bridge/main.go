// Package main provides the chat-bridge CLI: it joins a chat-group channel, prints what other
// members say and sends what you type.
package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
)

var (
	// Version is the application version, set at build time.
	Version = "v0.1.0"
	// BuildTime is the build timestamp, set at build time.
	BuildTime = "unknown"
	// GitCommit is the git commit hash, set at build time.
	GitCommit = "unknown"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		// Ignoring error: writing to stderr in error path.
		_, _ = fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "chat-bridge",
		Short: "chat-bridge - terminal client for group chat channels",
		Long: `chat-bridge keeps one live socket to a chat-group channel, refreshes the
access token before it expires and reconnects after network drops.`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringP("config", "c", "", "Path to configuration file")
	rootCmd.PersistentFlags().String("log-level", "", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolP("quiet", "q", false, "Suppress all logging output")

	rootCmd.AddCommand(joinCmd())
	rootCmd.AddCommand(loginCmd())
	rootCmd.AddCommand(logoutCmd())
	rootCmd.AddCommand(initCmd())
	rootCmd.AddCommand(versionCmd())

	return rootCmd
}

// versionCmd creates the version command.
func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			printVersion(cmd.OutOrStdout())
		},
	}
}

func printVersion(w io.Writer) {
	_, _ = fmt.Fprintf(w, "chat-bridge\n")
	_, _ = fmt.Fprintf(w, "Version: %s\n", Version)
	_, _ = fmt.Fprintf(w, "Build Time: %s\n", BuildTime)
	_, _ = fmt.Fprintf(w, "Git Commit: %s\n", GitCommit)
}
