package main

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/sakif/xrauth/internal/config"
	"github.com/sakif/xrauth/internal/server"
)

// NewRootCmd creates the root command. Running it without a subcommand
// starts the server, same as "xrauth serve".
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "xrauth",
		Short: "xrauth - account sign-up and sign-in service",
		Long: `xrauth registers accounts, verifies email/password logins and issues
signed JWTs. Storage is selected with AUTH_BACKEND (memory, sqlite,
sqlite-linked or postgres).`,
		SilenceUsage: true,
		RunE:         runServe,
	}

	cmd.AddCommand(NewServeCmd())
	cmd.AddCommand(NewMigrateCmd())

	return cmd
}

// NewServeCmd creates the serve subcommand.
func NewServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server",
		Long: `Start the HTTP server on PORT. The server runs until SIGINT or SIGTERM,
then drains in-flight requests for up to SHUTDOWN_TIMEOUT.`,
		RunE: runServe,
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := cfg.NewLogger(os.Stderr)
	slog.SetDefault(logger)

	srv, err := server.New(cmd.Context(), cfg, logger)
	if err != nil {
		logger.Error("failed to create server", slog.String("error", err.Error()))
		return err
	}

	// Start() blocks until the server is shut down (via Ctrl+C or SIGTERM)
	if err := srv.Start(); err != nil {
		logger.Error("server error", slog.String("error", err.Error()))
		return err
	}
	return nil
}
