package core

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"golang.org/x/term"

	"webterm/internal/metrics"
	"webterm/internal/retry"
	"webterm/internal/session"
	"webterm/internal/terminal"
	"webterm/internal/transport"
	"webterm/util"
)

// ConnectMode opens a WebSocket session to the executor and runs the
// interactive line editor on the local terminal: the default client
// mode.
type ConnectMode struct {
	Dialer       transport.Dialer
	URL          string
	Backoff      *retry.Backoff
	Timeout      time.Duration // dial + handshake
	ReplyTimeout time.Duration
	Greeting     string
	Stats        bool
	Logger       *util.Logger
	Metrics      *metrics.Collector

	// Stdin/Stdout/Stderr default to the process streams when nil.
	// Override in tests for deterministic I/O.
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
}

func (m *ConnectMode) stdin() io.Reader {
	if m.Stdin != nil {
		return m.Stdin
	}
	return os.Stdin
}

func (m *ConnectMode) stdout() io.Writer {
	if m.Stdout != nil {
		return m.Stdout
	}
	return os.Stdout
}

func (m *ConnectMode) stderr() io.Writer {
	if m.Stderr != nil {
		return m.Stderr
	}
	return os.Stderr
}

// Run draws the greeting, connects in the background, and edits lines
// until input ends, the exit sequence is typed or ctx is cancelled.
// The dialer is closed when Run returns.
func (m *ConnectMode) Run(ctx context.Context) error {
	defer m.Dialer.Close()

	keys := terminal.NewKeyReader(m.stdin(), m.Logger)
	opts := terminal.DefaultOptions()
	display := terminal.NewDisplay(m.stdout(), opts)
	if isTerminal(m.stdout()) {
		if err := display.Setup(); err != nil {
			return fmt.Errorf("display: %w", err)
		}
		defer display.Reset() //nolint:errcheck
	}
	m.Logger.Debug("display: font %dpx %s, bell=%v", opts.FontSize, opts.FontFamily, opts.Bell)

	ws := transport.NewWebSocket(transport.WebSocketOptions{
		URL:              m.URL,
		Dialer:           m.Dialer,
		Backoff:          m.Backoff,
		HandshakeTimeout: m.Timeout,
		Logger:           m.Logger,
		Metrics:          m.Metrics,
	})

	sess := session.New(session.Options{
		Transport:    ws,
		Keys:         keys,
		Display:      display,
		Greeting:     m.Greeting,
		ReplyTimeout: m.ReplyTimeout,
		Logger:       m.Logger,
		Metrics:      m.Metrics,
	})
	m.Logger.Verbose("session %s connecting to %s", sess.ID(), m.URL)
	if keys.IsTerminal() {
		m.Logger.Info("press Ctrl+] then q to quit")
	}

	err := sess.Run(ctx)

	if m.Stats {
		fmt.Fprintln(m.stderr(), m.Metrics.JSON())
	}
	return err
}

// isTerminal reports whether w is a character device we can send
// escape sequences to.
func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}
