// Package config defines the runtime configuration for webterm and
// the helpers that parse connect targets and SSH gateway specs.
package config

import (
	"fmt"
	"net"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	wterr "webterm/internal/errors"
)

// Config holds every tuneable for a webterm run, in either mode.
type Config struct {
	// ── Connect target ───────────────────────────────────────────────
	URL    string // full ws:// or wss:// URL; wins over Host/Port/Path
	Host   string
	Port   int
	Path   string
	Secure bool // wss:// when building from Host/Port/Path

	// ── Listen mode ──────────────────────────────────────────────────
	Listen      bool
	LocalPort   int    // -p: executor listen port
	BindAddress string // executor listen address (empty = all)
	KeepOpen    bool

	// ── Session ──────────────────────────────────────────────────────
	Timeout      time.Duration // dial + handshake
	Retries      int           // dial attempts while connecting
	ReplyTimeout time.Duration // 0 = wait for replies forever
	Greeting     string
	Stats        bool

	// ── Executor ─────────────────────────────────────────────────────
	Shell          string // shell binary; empty = platform default
	Echo           bool   // reply with the line instead of running it
	CommandTimeout time.Duration

	// ── SSH tunnel (-T, connect mode) ────────────────────────────────
	TunnelSpec    string // raw [user@]host[:port]
	TunnelEnabled bool
	TunnelUser    string
	TunnelHost    string
	TunnelPort    int

	// ── Reverse exposure (-R, listen mode) ───────────────────────────
	ReverseSpec       string
	ReverseEnabled    bool
	ReverseUser       string
	ReverseHost       string
	ReversePort       int
	RemotePort        int
	RemoteBindAddress string

	// ── SSH credentials (shared by -T and -R) ────────────────────────
	SSHKeyPath        string
	SSHPassword       bool // true → prompt interactively
	UseSSHAgent       bool
	StrictHostKey     bool
	KnownHostsPath    string
	KeepAliveInterval time.Duration

	// ── Output ───────────────────────────────────────────────────────
	Verbose    int
	DryRun     bool
	ConfigFile string
}

// New returns a Config populated with the defaults.
func New() *Config {
	return &Config{
		Host:              DefaultHost,
		Port:              DefaultPort,
		Path:              DefaultPath,
		Timeout:           DefaultConnTimeout,
		Retries:           DefaultRetries,
		Greeting:          DefaultGreeting,
		CommandTimeout:    DefaultCommandTimeout,
		KeepAliveInterval: DefaultKeepAliveInterval,
	}
}

// ── Connect target ───────────────────────────────────────────────────

// TargetURL returns the executor URL, built from Host/Port/Path when
// URL is unset.
func (c *Config) TargetURL() string {
	if c.URL != "" {
		return c.URL
	}
	scheme := "ws"
	if c.Secure {
		scheme = "wss"
	}
	path := c.Path
	if path == "" {
		path = DefaultPath
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	u := url.URL{
		Scheme: scheme,
		Host:   net.JoinHostPort(c.Host, strconv.Itoa(c.Port)),
		Path:   path,
	}
	return u.String()
}

// ParseTarget applies the positional arguments of connect mode:
// nothing (defaults), a ws:// or wss:// URL, a host, or host and port.
func (c *Config) ParseTarget(args []string) error {
	switch len(args) {
	case 0:
		return nil
	case 1:
		if strings.Contains(args[0], "://") {
			if _, err := parseWebSocketURL(args[0]); err != nil {
				return err
			}
			c.URL = args[0]
			return nil
		}
		c.Host = args[0]
		return nil
	case 2:
		port, err := strconv.Atoi(args[1])
		if err != nil || port < 1 || port > 65535 {
			return &wterr.ConfigError{
				Field:   "port",
				Value:   args[1],
				Message: "not a valid port",
				Hint:    "use a port between 1 and 65535",
			}
		}
		c.Host = args[0]
		c.Port = port
		return nil
	default:
		return fmt.Errorf("too many arguments: expected [url | host [port]]")
	}
}

func parseWebSocketURL(raw string) (*url.URL, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, &wterr.ConfigError{Field: "url", Value: raw, Message: err.Error()}
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return nil, &wterr.ConfigError{
			Field:   "url",
			Value:   raw,
			Message: fmt.Sprintf("unsupported scheme %q", u.Scheme),
			Hint:    "use ws://host:port/path or wss://host:port/path",
		}
	}
	if u.Hostname() == "" {
		return nil, &wterr.ConfigError{Field: "url", Value: raw, Message: "missing host"}
	}
	return u, nil
}

// ── Gateway specs ────────────────────────────────────────────────────

// tunnelRe matches [user@]host[:port].
var tunnelRe = regexp.MustCompile(`^(?:([^@]+)@)?([^:@]+)(?::(\d+))?$`)

// ParseTunnelSpec extracts user, host and port from a string such as
// "admin@bastion.example.com:2222".  Port defaults to 22.
func ParseTunnelSpec(spec string) (user, host string, port int, err error) {
	m := tunnelRe.FindStringSubmatch(spec)
	if m == nil {
		return "", "", 0, fmt.Errorf("invalid gateway %q: expected [user@]host[:port]", spec)
	}
	user, host, port = m[1], m[2], DefaultSSHPort
	if m[3] != "" {
		port, err = strconv.Atoi(m[3])
		if err != nil || port < 1 || port > 65535 {
			return "", "", 0, fmt.Errorf("invalid gateway port %q", m[3])
		}
	}
	return user, host, port, nil
}

// ResolveSpecs parses TunnelSpec and ReverseSpec into their fields.
func (c *Config) ResolveSpecs() error {
	if c.TunnelSpec != "" {
		user, host, port, err := ParseTunnelSpec(c.TunnelSpec)
		if err != nil {
			return &wterr.ConfigError{Field: "tunnel", Value: c.TunnelSpec, Message: err.Error()}
		}
		c.TunnelEnabled = true
		c.TunnelUser, c.TunnelHost, c.TunnelPort = user, host, port
	}
	if c.ReverseSpec != "" {
		user, host, port, err := ParseTunnelSpec(c.ReverseSpec)
		if err != nil {
			return &wterr.ConfigError{Field: "reverse-tunnel", Value: c.ReverseSpec, Message: err.Error()}
		}
		c.ReverseEnabled = true
		c.ReverseUser, c.ReverseHost, c.ReversePort = user, host, port
	}
	return nil
}

// ── Validation ───────────────────────────────────────────────────────

// Validate checks that the configuration is internally consistent.
// Errors are *errors.ConfigError with a hint where one helps.
func (c *Config) Validate() error {
	if c.Listen {
		if err := c.validateListen(); err != nil {
			return err
		}
	} else if err := c.validateConnect(); err != nil {
		return err
	}

	if c.Retries < 1 {
		return &wterr.ConfigError{Field: "retries", Value: c.Retries,
			Message: "must be at least 1", Hint: "1 means a single attempt with no retry"}
	}
	if c.Timeout < 0 {
		return &wterr.ConfigError{Field: "timeout", Value: c.Timeout, Message: "must not be negative"}
	}
	if c.ReplyTimeout < 0 {
		return &wterr.ConfigError{Field: "reply-timeout", Value: c.ReplyTimeout,
			Message: "must not be negative", Hint: "0 disables the reply timeout"}
	}
	if c.CommandTimeout < 0 {
		return &wterr.ConfigError{Field: "command-timeout", Value: c.CommandTimeout, Message: "must not be negative"}
	}
	return nil
}

func (c *Config) validateListen() error {
	if c.LocalPort < 1 || c.LocalPort > 65535 {
		var v interface{}
		if c.LocalPort != 0 {
			v = c.LocalPort
		}
		return &wterr.ConfigError{Field: "port", Value: v,
			Message: "listen mode needs a port between 1 and 65535",
			Hint:    "webterm -l -p 8080"}
	}
	if c.Echo && c.Shell != "" {
		return &wterr.ConfigError{Field: "echo",
			Message: "--echo and --shell are mutually exclusive"}
	}
	if c.TunnelEnabled {
		return &wterr.ConfigError{Field: "tunnel", Value: c.TunnelSpec,
			Message: "-T dials out and cannot be used in listen mode",
			Hint:    "use -R user@gateway --remote-port N to expose the executor"}
	}
	if c.ReverseEnabled {
		if c.ReverseHost == "" {
			return &wterr.ConfigError{Field: "reverse-tunnel", Message: "gateway host is required"}
		}
		if c.RemotePort < 1 || c.RemotePort > 65535 {
			var v interface{}
			if c.RemotePort != 0 {
				v = c.RemotePort
			}
			return &wterr.ConfigError{Field: "remote-port", Value: v,
				Message: "required with -R",
				Hint:    "the port the gateway listens on, e.g. --remote-port 9000"}
		}
	}
	return nil
}

func (c *Config) validateConnect() error {
	if c.ReverseEnabled {
		return &wterr.ConfigError{Field: "reverse-tunnel", Value: c.ReverseSpec,
			Message: "-R only applies to listen mode", Hint: "add -l -p PORT"}
	}
	if c.Echo || c.Shell != "" {
		return &wterr.ConfigError{Field: "shell",
			Message: "--shell and --echo only apply to listen mode"}
	}
	if c.URL == "" && c.Host == "" {
		return &wterr.ConfigError{Field: "host", Message: "executor host is required"}
	}
	if c.URL == "" && (c.Port < 1 || c.Port > 65535) {
		return &wterr.ConfigError{Field: "port", Value: c.Port, Message: "out of range 1-65535"}
	}
	if _, err := parseWebSocketURL(c.TargetURL()); err != nil {
		return err
	}
	if c.TunnelEnabled && c.TunnelHost == "" {
		return &wterr.ConfigError{Field: "tunnel", Message: "gateway host is required"}
	}
	return nil
}
