package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/burrowgate/burrowgate/internal/config"
	"github.com/burrowgate/burrowgate/internal/gateway"
	"github.com/burrowgate/burrowgate/internal/version"

	"github.com/spf13/cobra"
)

var gatewayCmd = &cobra.Command{
	Use:   "gateway",
	Short: "Run the tunnel gateway",
	Long: `Run the gateway: the tunnel listener agents dial into and the HTTP API
callers use to reach them. All settings come from the environment (or a
.env file); see the README for the full list.`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := config.Load()
		if err != nil {
			// Logger is not up yet; print and bail.
			cmd.PrintErrf("Failed to load configuration: %v\n", err)
			os.Exit(1)
		}

		initLogger(cfg.LogFile)
		defer logger.Close()

		logger.Info("Starting burrowgate gateway %s (%s mode)", version.Info(), cfg.Environment)

		gw, err := gateway.New(cfg)
		if err != nil {
			logger.Error("Failed to assemble gateway: %v", err)
			os.Exit(1)
		}

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := gw.Run(ctx); err != nil {
			logger.Error("Gateway failed: %v", err)
			os.Exit(1)
		}
	},
}
