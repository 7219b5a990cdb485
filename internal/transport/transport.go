// Package transport carries command lines to the executor and replies
// back.  The bottom layer is a [Dialer] that produces raw connections
// (plain TCP or through an SSH tunnel); on top of it [WebSocket] runs
// the text-frame session with its Connecting → Open → Closed lifecycle.
package transport

import (
	"context"
	"net"
)

// Dialer opens outbound network connections.  Implementations include
// a plain TCP dialer and an SSH-tunnelled dialer that routes traffic
// through a bastion.
type Dialer interface {
	// Dial establishes a connection to the given network address.
	Dial(ctx context.Context, network, address string) (net.Conn, error)

	// Close releases any long-lived resources held by the dialer
	// (e.g. an SSH session).  Stateless dialers return nil.
	Close() error
}

// State is the lifecycle position of a transport session.
type State int32

const (
	// StateConnecting is the initial state: the dial is in progress or
	// has not started.  Sends are dropped.
	StateConnecting State = iota
	// StateOpen means the connection is established.
	StateOpen
	// StateClosed is terminal.  Sends are dropped.
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}
