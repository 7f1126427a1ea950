package main

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/surveillance-cli/internal/server"
)

var (
	servePort    int
	serveOrigins []string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the historical tables over HTTP",
	Long:  "Starts a read-only API exposing the merged history and COVID-19 tables as JSON and CSV, plus the run ledger.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := cfg.Validate("serve"); err != nil {
			return err
		}
		hs, err := initHistory()
		if err != nil {
			return err
		}

		// The ledger is optional for serving; /runs is disabled without it.
		var runs server.RunSource
		ledger, err := initLedger(ctx)
		if err != nil {
			zap.L().Warn("serve: ledger unavailable, /runs disabled", zap.Error(err))
		} else {
			defer ledger.Close() //nolint:errcheck
			runs = ledger
			if cfg.Monitor.WebhookURL != "" {
				go newChecker(ledger).Run(ctx)
			}
		}

		handler := buildHandler(hs, runs, serveOrigins)
		return startServer(ctx, handler, resolvePort(servePort, cfg.Server.Port))
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	serveCmd.Flags().StringSliceVar(&serveOrigins, "cors-origin", nil, "allowed CORS origins (default any)")
	rootCmd.AddCommand(serveCmd)
}

// resolvePort prefers the flag over the configured port.
func resolvePort(flagPort, cfgPort int) int {
	if flagPort != 0 {
		return flagPort
	}
	return cfgPort
}

// buildHandler assembles the API router. runs may be nil.
func buildHandler(records server.RecordSource, runs server.RunSource, origins []string) http.Handler {
	return server.New(records, server.Options{AllowedOrigins: origins, Runs: runs})
}

// startServer blocks until ctx is cancelled and the server has shut down.
func startServer(ctx context.Context, handler http.Handler, port int) error {
	return server.Run(ctx, handler, port)
}
