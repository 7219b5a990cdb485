package tunnel

import (
	"fmt"
	"io"
	"net"
	"strconv"
	"sync"
	"time"

	"golang.org/x/crypto/ssh"
)

// Remote forwards are set up by hand instead of with ssh.Client.Listen:
// the library matches forwarded-tcpip channels against the exact bind
// address it sent, and gateways that report a different one ("0.0.0.0"
// for "") would have every connection rejected.

// forwardRequest is the payload of "tcpip-forward" and
// "cancel-tcpip-forward" (RFC 4254 §7.1).
type forwardRequest struct {
	Addr string
	Port uint32
}

// forwardReply is the optional reply to a "tcpip-forward" request for
// port 0, carrying the port the gateway picked.
type forwardReply struct {
	Port uint32
}

// forwardedChannel is the channel-open payload of "forwarded-tcpip"
// (RFC 4254 §7.2).
type forwardedChannel struct {
	Addr       string
	Port       uint32
	OriginAddr string
	OriginPort uint32
}

// remoteListener is a [net.Listener] fed by forwarded-tcpip channels.
type remoteListener struct {
	client   *ssh.Client
	bindAddr string
	bindPort uint32
	incoming <-chan ssh.NewChannel
	done     chan struct{}
	once     sync.Once
}

func listenRemote(client *ssh.Client, bindAddr string, port int) (net.Listener, error) {
	incoming := client.HandleChannelOpen("forwarded-tcpip")
	if incoming == nil {
		return nil, fmt.Errorf("a remote forward is already active on this connection")
	}

	req := forwardRequest{Addr: bindAddr, Port: uint32(port)}
	ok, payload, err := client.SendRequest("tcpip-forward", true, ssh.Marshal(&req))
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("tcpip-forward %s denied by gateway",
			net.JoinHostPort(bindAddr, strconv.Itoa(port)))
	}

	bound := req.Port
	if bound == 0 {
		var reply forwardReply
		if err := ssh.Unmarshal(payload, &reply); err == nil {
			bound = reply.Port
		}
	}

	return &remoteListener{
		client:   client,
		bindAddr: bindAddr,
		bindPort: bound,
		incoming: incoming,
		done:     make(chan struct{}),
	}, nil
}

// Accept waits for the next forwarded connection.
func (l *remoteListener) Accept() (net.Conn, error) {
	select {
	case <-l.done:
		return nil, net.ErrClosed
	case nc, ok := <-l.incoming:
		if !ok {
			return nil, io.EOF
		}
		ch, reqs, err := nc.Accept()
		if err != nil {
			return nil, fmt.Errorf("accept forwarded channel: %w", err)
		}
		go ssh.DiscardRequests(reqs)

		var origin forwardedChannel
		raddr := &net.TCPAddr{}
		if err := ssh.Unmarshal(nc.ExtraData(), &origin); err == nil {
			raddr = &net.TCPAddr{IP: net.ParseIP(origin.OriginAddr), Port: int(origin.OriginPort)}
		}
		return &channelConn{Channel: ch, laddr: l.Addr(), raddr: raddr}, nil
	}
}

// Close cancels the forward on the gateway and unblocks Accept.
func (l *remoteListener) Close() error {
	l.once.Do(func() {
		close(l.done)
		req := forwardRequest{Addr: l.bindAddr, Port: l.bindPort}
		l.client.SendRequest("cancel-tcpip-forward", true, ssh.Marshal(&req)) //nolint:errcheck
	})
	return nil
}

// Addr reports the address bound on the gateway.
func (l *remoteListener) Addr() net.Addr {
	return &net.TCPAddr{IP: net.ParseIP(l.bindAddr), Port: int(l.bindPort)}
}

// channelConn adapts an ssh.Channel to net.Conn.  Deadlines are not
// supported by SSH channels and are accepted as no-ops.
type channelConn struct {
	ssh.Channel
	laddr, raddr net.Addr
}

func (c *channelConn) LocalAddr() net.Addr              { return c.laddr }
func (c *channelConn) RemoteAddr() net.Addr             { return c.raddr }
func (c *channelConn) SetDeadline(time.Time) error      { return nil }
func (c *channelConn) SetReadDeadline(time.Time) error  { return nil }
func (c *channelConn) SetWriteDeadline(time.Time) error { return nil }
