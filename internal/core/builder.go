package core

import (
	"webterm/config"
	"webterm/internal/capability"
	"webterm/internal/metrics"
	"webterm/internal/retry"
	"webterm/internal/transport"
	"webterm/tunnel"
	"webterm/util"
)

// Build constructs the appropriate Mode from the given configuration.
// cfg is expected to have passed Validate.
func Build(cfg *config.Config, logger *util.Logger) (Mode, error) {
	if cfg.Listen {
		return buildListen(cfg, logger), nil
	}
	return buildConnect(cfg, logger), nil
}

// ── mode builders ────────────────────────────────────────────────────

func buildConnect(cfg *config.Config, logger *util.Logger) *ConnectMode {
	return &ConnectMode{
		Dialer:       buildDialer(cfg, logger),
		URL:          cfg.TargetURL(),
		Backoff:      buildBackoff(cfg),
		Timeout:      cfg.Timeout,
		ReplyTimeout: cfg.ReplyTimeout,
		Greeting:     cfg.Greeting,
		Stats:        cfg.Stats,
		Logger:       logger,
		Metrics:      metrics.New(),
	}
}

func buildListen(cfg *config.Config, logger *util.Logger) *ListenMode {
	m := &ListenMode{
		Address:  util.FormatAddr(cfg.BindAddress, cfg.LocalPort),
		Path:     cfg.Path,
		KeepOpen: cfg.KeepOpen,
		Executor: buildExecutor(cfg),
		Logger:   logger,
		Metrics:  metrics.New(),
	}
	if cfg.ReverseEnabled {
		m.Tunnel = tunnel.NewSSHTunnel(sshConfig(cfg, cfg.ReverseUser, cfg.ReverseHost, cfg.ReversePort), logger)
		m.RemoteBindAddress = cfg.RemoteBindAddress
		m.RemotePort = cfg.RemotePort
	}
	return m
}

// ── shared helpers ───────────────────────────────────────────────────

// buildDialer creates the transport.Dialer that carries the WebSocket
// connection: through the SSH gateway with -T, plain TCP otherwise.
func buildDialer(cfg *config.Config, logger *util.Logger) transport.Dialer {
	if cfg.TunnelEnabled {
		return transport.NewSSHDialer(sshConfig(cfg, cfg.TunnelUser, cfg.TunnelHost, cfg.TunnelPort), logger)
	}
	return &transport.TCPDialer{Timeout: cfg.Timeout}
}

func sshConfig(cfg *config.Config, user, host string, port int) *tunnel.SSHConfig {
	return &tunnel.SSHConfig{
		User:          user,
		Host:          host,
		Port:          port,
		KeyPath:       cfg.SSHKeyPath,
		PromptPass:    cfg.SSHPassword,
		UseAgent:      cfg.UseSSHAgent,
		StrictHostKey: cfg.StrictHostKey,
		KnownHosts:    cfg.KnownHostsPath,
		ConnTimeout:   cfg.Timeout,
		KeepAlive:     cfg.KeepAliveInterval,
	}
}

// buildBackoff limits dialling to cfg.Retries attempts while the
// session is connecting.
func buildBackoff(cfg *config.Config) *retry.Backoff {
	bo := retry.DefaultBackoff()
	bo.InitialDelay = config.DefaultRetryDelay
	bo.MaxDelay = config.DefaultMaxRetryDelay
	if cfg.Retries > 0 {
		bo.MaxAttempts = cfg.Retries
	}
	return bo
}

// buildExecutor selects what the listen side does with each line.
func buildExecutor(cfg *config.Config) capability.Executor {
	if cfg.Echo {
		return capability.Echo{}
	}
	return &capability.Shell{Path: cfg.Shell, Timeout: cfg.CommandTimeout}
}
