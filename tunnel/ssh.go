package tunnel

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	"golang.org/x/crypto/ssh"

	wterr "webterm/internal/errors"
	"webterm/util"
)

const (
	defaultSSHPort     = 22
	defaultConnTimeout = 30 * time.Second
)

// SSHConfig holds everything needed to reach an SSH gateway.
type SSHConfig struct {
	User          string
	Host          string
	Port          int
	KeyPath       string
	PromptPass    bool
	UseAgent      bool
	StrictHostKey bool
	KnownHosts    string
	ConnTimeout   time.Duration

	// KeepAlive, when positive, sends keepalive@openssh.com at this
	// interval and closes the tunnel when the gateway stops answering.
	KeepAlive time.Duration
}

// String renders the gateway as user@host:port.
func (c *SSHConfig) String() string {
	addr := net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
	if c.User == "" {
		return addr
	}
	return c.User + "@" + addr
}

// SSHTunnel implements [Tunnel] over golang.org/x/crypto/ssh.
type SSHTunnel struct {
	config *SSHConfig
	logger *util.Logger

	mu     sync.RWMutex
	client *ssh.Client
	alive  bool
	stop   chan struct{}
}

// NewSSHTunnel creates a tunnel that is ready to [SSHTunnel.Connect].
func NewSSHTunnel(cfg *SSHConfig, logger *util.Logger) *SSHTunnel {
	if cfg.Port == 0 {
		cfg.Port = defaultSSHPort
	}
	if cfg.ConnTimeout == 0 {
		cfg.ConnTimeout = defaultConnTimeout
	}
	return &SSHTunnel{config: cfg, logger: logger}
}

// Connect dials the gateway and completes the SSH handshake.
func (t *SSHTunnel) Connect(ctx context.Context) error {
	authMethods, err := BuildAuthMethods(t.config)
	if err != nil {
		return wterr.WrapSSH("auth", t.config.Host, t.config.Port, err)
	}

	hkCallback, err := hostKeyCallback(t.config)
	if err != nil {
		return wterr.WrapSSH("hostkey", t.config.Host, t.config.Port, err)
	}

	sshCfg := &ssh.ClientConfig{
		User:            t.config.User,
		Auth:            authMethods,
		HostKeyCallback: hkCallback,
		Timeout:         t.config.ConnTimeout,
	}

	addr := net.JoinHostPort(t.config.Host, strconv.Itoa(t.config.Port))
	t.logger.Debug("SSH: dialing %s as %s", addr, t.config.User)

	dialer := net.Dialer{Timeout: t.config.ConnTimeout}
	tcpConn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return wterr.Wrap("dial", addr, err)
	}

	sshConn, chans, reqs, err := ssh.NewClientConn(tcpConn, addr, sshCfg)
	if err != nil {
		tcpConn.Close()
		return wterr.WrapSSH("handshake", t.config.Host, t.config.Port, err)
	}

	client := ssh.NewClient(sshConn, chans, reqs)
	stop := make(chan struct{})

	t.mu.Lock()
	t.client = client
	t.alive = true
	t.stop = stop
	t.mu.Unlock()

	go t.monitor(client)
	if t.config.KeepAlive > 0 {
		go t.keepalive(client, stop)
	}
	return nil
}

func (t *SSHTunnel) current() (*ssh.Client, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if !t.alive || t.client == nil {
		return nil, wterr.ErrNotConnected
	}
	return t.client, nil
}

// Dial opens a direct-tcpip channel to address.
func (t *SSHTunnel) Dial(ctx context.Context, network, address string) (net.Conn, error) {
	client, err := t.current()
	if err != nil {
		return nil, err
	}

	t.logger.Debug("tunnel: dialing %s %s", network, address)
	conn, err := client.DialContext(ctx, network, address)
	if err != nil {
		return nil, fmt.Errorf("tunnel dial %s: %w", address, err)
	}
	return conn, nil
}

// Listen requests a remote port forward on the gateway.
func (t *SSHTunnel) Listen(bindAddr string, port int) (net.Listener, error) {
	client, err := t.current()
	if err != nil {
		return nil, err
	}

	ln, err := listenRemote(client, bindAddr, port)
	if err != nil {
		return nil, wterr.WrapSSH("forward", t.config.Host, t.config.Port, err)
	}
	t.logger.Verbose("gateway %s forwarding %s to this executor",
		t.config.Host, net.JoinHostPort(bindAddr, strconv.Itoa(port)))
	return ln, nil
}

// Close shuts down the SSH connection.
func (t *SSHTunnel) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.alive = false
	if t.stop != nil {
		close(t.stop)
		t.stop = nil
	}
	if t.client != nil {
		err := t.client.Close()
		t.client = nil
		return err
	}
	return nil
}

// IsAlive reports whether the tunnel is still connected.
func (t *SSHTunnel) IsAlive() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.alive
}

// monitor blocks until the SSH connection closes and flips the alive flag.
func (t *SSHTunnel) monitor(client *ssh.Client) {
	err := client.Wait()

	t.mu.Lock()
	if t.client == client {
		t.alive = false
	}
	t.mu.Unlock()

	if err != nil {
		t.logger.Debug("SSH tunnel closed: %v", err)
	} else {
		t.logger.Debug("SSH tunnel closed")
	}
}

// keepalive pings the gateway until stop is closed.  A failed ping
// closes the client, which ends monitor and every forwarded channel.
func (t *SSHTunnel) keepalive(client *ssh.Client, stop <-chan struct{}) {
	ticker := time.NewTicker(t.config.KeepAlive)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if _, _, err := client.SendRequest("keepalive@openssh.com", true, nil); err != nil {
				t.logger.Warn("SSH keepalive to %s failed: %v", t.config.Host, err)
				client.Close()
				return
			}
			t.logger.Debug("SSH keepalive OK")
		}
	}
}
