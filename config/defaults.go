package config

import (
	"time"

	"webterm/internal/terminal"
)

// ── Default values ───────────────────────────────────────────────────
//
// All tuneable defaults live here so they are easy to audit and reuse
// across CLI flags, the config file and environment variable loading.

const (
	// DefaultHost is the executor host when none is given.
	DefaultHost = "localhost"

	// DefaultPort is the executor's HTTP port.
	DefaultPort = 8080

	// DefaultPath is the WebSocket endpoint on the executor.
	DefaultPath = "/websocket"

	// DefaultGreeting is written before the first prompt.
	DefaultGreeting = terminal.DefaultGreeting

	// DefaultConnTimeout bounds the TCP dial and the WebSocket handshake.
	DefaultConnTimeout = 10 * time.Second

	// DefaultRetries is the number of dial attempts while connecting.
	// One attempt means no retry.
	DefaultRetries = 1

	// DefaultRetryDelay is the first backoff delay between dial attempts.
	DefaultRetryDelay = 500 * time.Millisecond

	// DefaultMaxRetryDelay caps the dial backoff.
	DefaultMaxRetryDelay = 30 * time.Second

	// DefaultCommandTimeout bounds one command on the executor.
	DefaultCommandTimeout = 30 * time.Second

	// DefaultQueueSize is how many submitted lines may wait for the
	// write pump before new ones are dropped.
	DefaultQueueSize = 64

	// DefaultSSHPort is the standard SSH port.
	DefaultSSHPort = 22

	// DefaultKeepAliveInterval is the SSH keepalive interval for -T and -R.
	DefaultKeepAliveInterval = 30 * time.Second

	// DefaultGracePeriod is how long the executor waits for open
	// sessions when shutting down.
	DefaultGracePeriod = 5 * time.Second
)
