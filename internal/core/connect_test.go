package core

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"webterm/internal/capability"
	"webterm/internal/metrics"
	"webterm/internal/retry"
	"webterm/internal/transport"
	"webterm/util"
)

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func newConnectMode(url string, in io.Reader, out, errOut io.Writer) *ConnectMode {
	return &ConnectMode{
		Dialer:  &transport.TCPDialer{Timeout: 2 * time.Second},
		URL:     url,
		Backoff: &retry.Backoff{MaxAttempts: 1},
		Timeout: 2 * time.Second,
		Logger:  util.NewLogger(0),
		Metrics: metrics.New(),
		Stdin:   in,
		Stdout:  out,
		Stderr:  errOut,
	}
}

// TestConnectMode_RoundTrip drives a full session against a real
// executor: greeting, local echo, submit, rendered reply.
func TestConnectMode_RoundTrip(t *testing.T) {
	exec := funcExecutor(func(line string) (string, error) {
		return "ran " + line + "\nok\n", nil
	})
	addr, listenDone := startListen(t, &ListenMode{Executor: exec})

	stdin, keys := io.Pipe()
	out := &syncBuffer{}
	m := newConnectMode("ws://"+addr+"/websocket", stdin, out, io.Discard)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	runErr := make(chan error, 1)
	go func() { runErr <- m.Run(ctx) }()

	waitFor(t, "connection", func() bool { return m.Metrics.ActiveConnections() == 1 })

	io.WriteString(keys, "lsx\x7f\r") //nolint:errcheck
	want := "Hello from react-xtermjs!\r\n$ lsx\b \b\r\nran ls\r\nok\r\n$ "
	waitFor(t, "reply", func() bool { return out.String() == want })

	// Ctrl+] q ends the session.
	io.WriteString(keys, "\x1dq") //nolint:errcheck
	if err := <-runErr; err != nil {
		t.Fatalf("Run: %v", err)
	}
	if err := waitRun(t, listenDone); err != nil {
		t.Fatalf("listen Run: %v", err)
	}

	if got := m.Metrics.LinesSubmitted(); got != 1 {
		t.Errorf("LinesSubmitted() = %d, want 1", got)
	}
	if got := m.Metrics.Replies(); got != 1 {
		t.Errorf("Replies() = %d, want 1", got)
	}
}

// TestConnectMode_Stats verifies --stats prints the JSON snapshot.
func TestConnectMode_Stats(t *testing.T) {
	addr, _ := startListen(t, &ListenMode{KeepOpen: true, Executor: capability.Echo{}})

	stderr := &syncBuffer{}
	m := newConnectMode("ws://"+addr+"/websocket", strings.NewReader(""), io.Discard, stderr)
	m.Stats = true

	if err := m.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !strings.Contains(stderr.String(), `"lines_submitted"`) {
		t.Errorf("stderr = %q, want metrics JSON", stderr.String())
	}
}

// TestConnectMode_UnreachableKeepsEditing verifies a failed open is
// not fatal: keys are still echoed and submits are dropped.
func TestConnectMode_UnreachableKeepsEditing(t *testing.T) {
	port, err := util.FindFreePort()
	if err != nil {
		t.Fatal(err)
	}
	stdin, keys := io.Pipe()
	out := &syncBuffer{}
	m := newConnectMode("ws://"+util.FormatAddr("127.0.0.1", port)+"/websocket", stdin, out, io.Discard)

	runErr := make(chan error, 1)
	go func() { runErr <- m.Run(context.Background()) }()

	waitFor(t, "open failure", func() bool { return m.Metrics.ErrorCount() > 0 })
	io.WriteString(keys, "a\r") //nolint:errcheck
	waitFor(t, "local echo", func() bool {
		return strings.HasSuffix(out.String(), "$ a\r\n")
	})
	keys.Close()

	if err := <-runErr; err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got := m.Metrics.LinesDropped(); got != 1 {
		t.Errorf("LinesDropped() = %d, want 1", got)
	}
}

// TestConnectMode_InputError verifies a broken stdin is reported.
func TestConnectMode_InputError(t *testing.T) {
	addr, _ := startListen(t, &ListenMode{KeepOpen: true, Executor: capability.Echo{}})

	stdin, keys := io.Pipe()
	keys.CloseWithError(errors.New("tty gone"))
	m := newConnectMode("ws://"+addr+"/websocket", stdin, io.Discard, io.Discard)

	err := m.Run(context.Background())
	if err == nil || !strings.Contains(err.Error(), "tty gone") {
		t.Fatalf("err = %v, want input error", err)
	}
}
