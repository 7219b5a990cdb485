package transport

import (
	"context"
	"fmt"
	"net"
	"sync"

	"webterm/tunnel"
	"webterm/util"
)

// SSHDialer routes the executor connection through an SSH bastion.  The
// tunnel is connected on the first Dial and torn down on Close.
type SSHDialer struct {
	tun    tunnel.Tunnel
	label  string
	logger *util.Logger

	mu        sync.Mutex
	connected bool
}

// NewSSHDialer creates a dialer backed by an [tunnel.SSHTunnel] for cfg.
func NewSSHDialer(cfg *tunnel.SSHConfig, logger *util.Logger) *SSHDialer {
	return NewTunnelDialer(tunnel.NewSSHTunnel(cfg, logger), cfg.String(), logger)
}

// NewTunnelDialer wraps any [tunnel.Tunnel].  label names the gateway
// in log output.
func NewTunnelDialer(tun tunnel.Tunnel, label string, logger *util.Logger) *SSHDialer {
	return &SSHDialer{tun: tun, label: label, logger: logger}
}

func (d *SSHDialer) connect(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.connected && d.tun.IsAlive() {
		return nil
	}

	d.logger.Verbose("establishing SSH tunnel to %s", d.label)
	if err := d.tun.Connect(ctx); err != nil {
		return fmt.Errorf("tunnel: %w", err)
	}
	d.connected = true
	d.logger.Verbose("SSH tunnel to %s established", d.label)
	return nil
}

// Dial opens address on the far side of the tunnel.
func (d *SSHDialer) Dial(ctx context.Context, network, address string) (net.Conn, error) {
	if err := d.connect(ctx); err != nil {
		return nil, err
	}
	return d.tun.Dial(ctx, network, address)
}

// Close tears down the tunnel if it was connected.
func (d *SSHDialer) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.connected {
		return nil
	}
	d.connected = false
	return d.tun.Close()
}
