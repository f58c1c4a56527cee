package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/burrowgate/burrowgate/internal/agent"

	"github.com/briandowns/spinner"
	"github.com/spf13/cobra"
)

var agentFlags struct {
	name        string
	host        string
	port        int
	token       string
	insecureTLS bool
	logFile     string
}

var agentCmd = &cobra.Command{
	Use:   "agent",
	Short: "Run a tunnel agent",
	Long: `Run an agent inside a LAN: it dials out to the gateway, registers under
a name, and performs forwarded HTTP requests against services it can reach.

Example:
  burrowgate agent --name cam1 --host gateway.example.com --port 5000 --token $TOKEN`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		initLogger(agentFlags.logFile)
		defer logger.Close()

		a := agent.New(agent.Config{
			Name:        agentFlags.name,
			Host:        agentFlags.host,
			Port:        agentFlags.port,
			Token:       agentFlags.token,
			InsecureTLS: agentFlags.insecureTLS,
		})

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		s := spinner.New(spinner.CharSets[14], 100*time.Millisecond)
		s.Suffix = " Connecting to " + agentFlags.host + "..."
		s.Start()

		// First attempt under the spinner so a typo'd host fails visibly;
		// after that the reconnect loop owns the connection.
		err := a.RunOnce(ctx)
		s.Stop()

		if errors.Is(err, agent.ErrAuthRejected) {
			logger.Error("Gateway rejected the auth token")
			os.Exit(1)
		}
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			logger.Warn("Initial connection failed: %v (will keep retrying)", err)
		}

		if err := a.Run(ctx); err != nil {
			logger.Error("Agent stopped: %v", err)
			os.Exit(1)
		}
	},
}

func init() {
	agentCmd.Flags().StringVar(&agentFlags.name, "name", "", "Agent name to register with the gateway")
	agentCmd.Flags().StringVar(&agentFlags.host, "host", "", "Gateway host")
	agentCmd.Flags().IntVar(&agentFlags.port, "port", 5000, "Gateway tunnel port")
	agentCmd.Flags().StringVar(&agentFlags.token, "token", "", "Auth token")
	agentCmd.Flags().BoolVar(&agentFlags.insecureTLS, "insecure-tls", false, "Skip TLS verification on LAN fetches")
	agentCmd.Flags().StringVar(&agentFlags.logFile, "log-file", "./logs/agent.log", "Log file path")
	agentCmd.MarkFlagRequired("name")
	agentCmd.MarkFlagRequired("host")
	agentCmd.MarkFlagRequired("token")
}
