package util

import (
	"errors"
	"io"
	"net"

	"github.com/gorilla/websocket"
)

// DefaultBufSize is the standard buffer size for terminal and network
// reads (32 KiB).
const DefaultBufSize = 32 * 1024

// IsHarmless returns true for errors that are expected during shutdown:
// EOF, closed sockets, and WebSocket normal/going-away closures.
func IsHarmless(err error) bool {
	if err == nil {
		return true
	}
	if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) || errors.Is(err, io.ErrClosedPipe) {
		return true
	}
	if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		return true
	}
	// net.OpError wrapping "use of closed network connection"
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return errors.Is(opErr.Err, net.ErrClosed)
	}
	return false
}
