package commands

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/dyluth/tuplespace/internal/host"
	"github.com/dyluth/tuplespace/internal/printer"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Host a tuple space until interrupted",
	Long: `Host a configured tuple space with its Redis bridge, SQLite journal,
harvester and HTTP endpoints, as enabled in tuplespace.yml.

The process runs until SIGINT or SIGTERM, then drains queued events and exits.

Examples:
  # Serve with ./tuplespace.yml
  tuplespace serve

  # Serve with an explicit config and Redis
  REDIS_URL=redis://localhost:6379 tuplespace serve -c prod.yml`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	h, err := host.Start(ctx, cfg)
	if err != nil {
		return printer.ErrorWithContext(
			"failed to start tuple space",
			err.Error(),
			map[string]string{"Instance": cfg.Instance},
			nil,
		)
	}

	printer.Success("Tuple space '%s' is running (origin %s)\n", cfg.Instance, h.Space().Origin())
	if addr := h.HTTPAddr(); addr != "" {
		printer.Info("  HTTP endpoints on %s: /healthz /stats /metrics\n", addr)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	defer signal.Stop(sigCh)

	sig := <-sigCh
	printer.Step("Received signal %v, shutting down...\n", sig)

	if err := h.Close(); err != nil {
		printer.Warning("Shutdown completed with errors: %v\n", err)
		return err
	}
	printer.Success("Shutdown complete\n")
	return nil
}
