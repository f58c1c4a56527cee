// Package gateway wires the gateway's services together: the security
// ledger, the connection log, the agent registry, the tunnel listener, the
// health sweeper and the HTTP API, all owned by one Gateway value with an
// explicit lifecycle.
package gateway

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/burrowgate/burrowgate/internal/api"
	"github.com/burrowgate/burrowgate/internal/config"
	"github.com/burrowgate/burrowgate/internal/connlog"
	"github.com/burrowgate/burrowgate/internal/logging"
	"github.com/burrowgate/burrowgate/internal/metrics"
	"github.com/burrowgate/burrowgate/internal/security"
	"github.com/burrowgate/burrowgate/internal/tunnel"
)

const shutdownGrace = 10 * time.Second

// Gateway owns every service of the running gateway. Construct one per
// process (or per test); there is no global state.
type Gateway struct {
	cfg    *config.Config
	logger *logging.Logger

	Metrics  *metrics.Metrics
	Ledger   *security.Ledger
	ConnLog  *connlog.Log
	Registry *tunnel.Registry
	Listener *tunnel.Listener
	Sweeper  *tunnel.Sweeper
	API      *api.Server
}

// New assembles a gateway from its configuration. Nothing is bound or
// started yet; Run does that.
func New(cfg *config.Config) (*Gateway, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	tunnelPort, err := strconv.Atoi(cfg.TunnelPort)
	if err != nil {
		return nil, fmt.Errorf("invalid TUNNEL_PORT %q: %w", cfg.TunnelPort, err)
	}
	httpPort, err := strconv.Atoi(cfg.HTTPPort)
	if err != nil {
		return nil, fmt.Errorf("invalid HTTP_PORT %q: %w", cfg.HTTPPort, err)
	}

	logger := logging.GetGlobalLogger()
	m := metrics.New()

	ledger := security.NewLedger(security.Thresholds{
		MaxAttempts:   cfg.BanMaxAttempts,
		AuthTolerance: cfg.BanAuthTolerance,
		Window:        cfg.BanWindow,
		Permanent:     cfg.BanPermanent,
		Grace:         cfg.BanGrace,
		GC:            cfg.BanGC,
	})
	connLog := connlog.NewLog(cfg.MaxLogEntries)
	registry := tunnel.NewRegistry(cfg.DuplicatePolicy == config.DuplicateReject, logger, m)

	tunnelCfg := tunnel.Config{
		TunnelPort:       tunnelPort,
		HTTPPort:         httpPort,
		AuthToken:        cfg.AuthToken,
		HandshakeTimeout: cfg.HandshakeTimeout,
		DispatchTimeout:  cfg.DispatchTimeout,
		HeartbeatTimeout: cfg.HeartbeatTimeout,
		IdleReadTimeout:  cfg.IdleReadTimeout,
		RejectDuplicates: cfg.DuplicatePolicy == config.DuplicateReject,
		AcceptRPS:        float64(cfg.TunnelAcceptRPS),
		AcceptBurst:      cfg.TunnelAcceptBurst,
	}
	deps := tunnel.Deps{
		Registry: registry,
		Ledger:   ledger,
		ConnLog:  connLog,
		Metrics:  m,
		Logger:   logger,
	}

	return &Gateway{
		cfg:      cfg,
		logger:   logger,
		Metrics:  m,
		Ledger:   ledger,
		ConnLog:  connLog,
		Registry: registry,
		Listener: tunnel.NewListener(tunnelCfg, deps),
		Sweeper:  tunnel.NewSweeper(registry, cfg.SweepInterval, logger),
		API: api.NewServer(cfg, api.Deps{
			Registry: registry,
			Ledger:   ledger,
			ConnLog:  connLog,
			Metrics:  m,
		}),
	}, nil
}

// Run starts the tunnel listener, the sweeper and the HTTP API, then blocks
// until the context is cancelled or a server fails. Bind failures on either
// port are returned as fatal errors.
func (g *Gateway) Run(ctx context.Context) error {
	if err := g.Listener.Start(); err != nil {
		return err
	}
	g.Sweeper.Start()

	apiErr := g.API.Start()

	select {
	case <-ctx.Done():
		g.logger.Info("Shutdown requested")
		g.shutdown()
		return nil
	case err := <-apiErr:
		g.shutdown()
		if err == nil {
			return fmt.Errorf("HTTP server stopped unexpectedly")
		}
		return err
	}
}

// shutdown tears the services down in dependency order: stop accepting, stop
// probing, close agent tunnels, then drain the HTTP side.
func (g *Gateway) shutdown() {
	g.Sweeper.Stop()
	if err := g.Listener.Close(); err != nil {
		g.logger.Warn("Tunnel listener close: %v", err)
	}
	g.Registry.CloseAll("gateway shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if err := g.API.Shutdown(ctx); err != nil {
		g.logger.Warn("HTTP server shutdown: %v", err)
	}
	g.logger.Info("Gateway stopped")
}
