// Package tunnel implements the gateway side of the reverse tunnel: the
// listener that accepts agent sockets, the per-socket session with its
// handshake and request/response dispatch, the name registry, and the
// periodic health sweeper.
package tunnel

import (
	"time"

	"github.com/burrowgate/burrowgate/internal/connlog"
	"github.com/burrowgate/burrowgate/internal/logging"
	"github.com/burrowgate/burrowgate/internal/metrics"
	"github.com/burrowgate/burrowgate/internal/security"
)

// Config carries the tunnel-plane settings. Values come from the gateway
// configuration; the zero value is not usable.
type Config struct {
	// TunnelPort is the TCP port agents dial. HTTPPort only appears in the
	// advisory text served to HTTP clients that hit the tunnel port by
	// mistake.
	TunnelPort int
	HTTPPort   int

	// AuthToken is the shared secret agents present as their first frame.
	AuthToken string

	HandshakeTimeout time.Duration
	DispatchTimeout  time.Duration
	HeartbeatTimeout time.Duration

	// IdleReadTimeout is surfaced as the TCP keepalive period. Between
	// dispatches no read is pending on the socket, so dead peers are found
	// by keepalive and the heartbeat sweep rather than by a read deadline.
	IdleReadTimeout time.Duration

	// RejectDuplicates makes a second handshake with an in-use name fail
	// instead of evicting the prior session.
	RejectDuplicates bool

	// AcceptRPS and AcceptBurst bound the accept rate on the tunnel port.
	AcceptRPS   float64
	AcceptBurst int
}

// Deps bundles the shared collaborators sessions work against.
type Deps struct {
	Registry *Registry
	Ledger   *security.Ledger
	ConnLog  *connlog.Log
	Metrics  *metrics.Metrics
	Logger   *logging.Logger
}
