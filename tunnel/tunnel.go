// Package tunnel carries executor traffic over SSH: dialing the
// executor from behind a bastion, or exposing a local executor on a
// gateway with a remote port forward.
package tunnel

import (
	"context"
	"net"
)

// Tunnel abstracts an encrypted channel to a gateway.
type Tunnel interface {
	// Connect establishes the tunnel to the gateway.
	Connect(ctx context.Context) error

	// Dial opens a connection to address from the gateway's side.
	Dial(ctx context.Context, network, address string) (net.Conn, error)

	// Listen asks the gateway to listen on bindAddr:port and returns a
	// listener that yields the forwarded connections.
	Listen(bindAddr string, port int) (net.Listener, error)

	// Close tears down the tunnel and frees resources.
	Close() error

	// IsAlive reports whether the underlying connection is still up.
	IsAlive() bool
}
