package main

import (
	"fmt"
	"os"

	"github.com/burrowgate/burrowgate/internal/logging"

	"github.com/spf13/cobra"
)

var logger *logging.Logger

func initLogger(file string) {
	logConfig := &logging.LogConfig{
		File:       file,
		MaxSize:    100,
		MaxBackups: 3,
		MaxAge:     7,
	}

	if err := logging.InitLogger(logConfig); err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	logger = logging.GetGlobalLogger()
}

var rootCmd = &cobra.Command{
	Use:   "burrowgate",
	Short: "Burrowgate - reverse HTTP tunnel gateway",
	Long: `Burrowgate lets agents behind NAT or firewalls expose LAN services
through a public gateway. Agents dial out and register by name; callers
address them through the gateway's HTTP API.`,
}

func main() {
	rootCmd.AddCommand(gatewayCmd)
	rootCmd.AddCommand(agentCmd)
	rootCmd.AddCommand(versionCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
