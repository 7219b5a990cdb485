package transport

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	wterr "webterm/internal/errors"
	"webterm/internal/metrics"
	"webterm/internal/retry"
	"webterm/util"
)

var testUpgrader = websocket.Upgrader{
	CheckOrigin: func(*http.Request) bool { return true },
}

// newServer starts an HTTP server whose only route upgrades and hands
// the connection to handle.  It returns the ws:// URL.
func newServer(t *testing.T, handle func(*websocket.Conn)) string {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		handle(conn)
	}))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/websocket"
}

// echoHandler replies "out:" + line to every frame.
func echoHandler(conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		if err := conn.WriteMessage(websocket.TextMessage, append([]byte("out:"), data...)); err != nil {
			return
		}
	}
}

func waitReply(t *testing.T, ws *WebSocket) string {
	t.Helper()
	select {
	case r := <-ws.Replies():
		return r
	case <-time.After(2 * time.Second):
		t.Fatal("no reply")
		return ""
	}
}

func waitDone(t *testing.T, ws *WebSocket) {
	t.Helper()
	select {
	case <-ws.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("transport did not close")
	}
}

func TestWebSocket_SendWhileConnectingIsDropped(t *testing.T) {
	received := make(chan string, 4)
	url := newServer(t, func(conn *websocket.Conn) {
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			received <- string(data)
		}
	})

	m := metrics.New()
	ws := NewWebSocket(WebSocketOptions{URL: url, Logger: util.NewLogger(0), Metrics: m})
	defer ws.Close()

	if ws.State() != StateConnecting {
		t.Fatalf("initial state = %s", ws.State())
	}
	if ws.Send("pwd") {
		t.Fatal("Send before Open should report false")
	}

	if err := ws.Open(context.Background()); err != nil {
		t.Fatalf("Open: %v", err)
	}
	if !ws.Send("whoami") {
		t.Fatal("Send after Open should succeed")
	}

	select {
	case got := <-received:
		if got != "whoami" {
			t.Errorf("first frame = %q, the dropped line must never be sent", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("server got nothing")
	}
}

func TestWebSocket_RoundTrip(t *testing.T) {
	url := newServer(t, echoHandler)
	m := metrics.New()
	ws := NewWebSocket(WebSocketOptions{URL: url, Logger: util.NewLogger(0), Metrics: m})
	defer ws.Close()

	if err := ws.Open(context.Background()); err != nil {
		t.Fatalf("Open: %v", err)
	}
	if ws.State() != StateOpen {
		t.Fatalf("state = %s, want open", ws.State())
	}

	for _, line := range []string{"ls", "", "echo hi"} {
		ws.Send(line)
		if got, want := waitReply(t, ws), "out:"+line; got != want {
			t.Errorf("reply = %q, want %q", got, want)
		}
	}

	if m.ActiveConnections() != 1 {
		t.Errorf("active = %d, want 1", m.ActiveConnections())
	}

	ws.Close() //nolint:errcheck
	if m.TotalBytesOut() != int64(len("ls")+len("echo hi")) {
		t.Errorf("bytes out = %d", m.TotalBytesOut())
	}
	if m.ActiveConnections() != 0 {
		t.Errorf("active after close = %d, want 0", m.ActiveConnections())
	}
}

func TestWebSocket_FrameIsTheLineVerbatim(t *testing.T) {
	type frame struct {
		kind int
		data string
	}
	got := make(chan frame, 1)
	url := newServer(t, func(conn *websocket.Conn) {
		mt, data, err := conn.ReadMessage()
		if err == nil {
			got <- frame{mt, string(data)}
		}
	})

	ws := NewWebSocket(WebSocketOptions{URL: url, Logger: util.NewLogger(0)})
	defer ws.Close()
	if err := ws.Open(context.Background()); err != nil {
		t.Fatal(err)
	}
	ws.Send("cat /etc/hostname")

	select {
	case f := <-got:
		if f.kind != websocket.TextMessage {
			t.Errorf("frame type = %d, want text", f.kind)
		}
		if f.data != "cat /etc/hostname" {
			t.Errorf("frame = %q, want no terminator", f.data)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no frame")
	}
}

func TestWebSocket_OpenFailureCloses(t *testing.T) {
	port, err := util.FindFreePort()
	if err != nil {
		t.Fatal(err)
	}
	url := "ws://" + util.FormatAddr("127.0.0.1", port) + "/websocket"

	m := metrics.New()
	ws := NewWebSocket(WebSocketOptions{URL: url, Logger: util.NewLogger(0), Metrics: m})
	err = ws.Open(context.Background())
	if err == nil {
		t.Fatal("expected dial error")
	}
	if ws.State() != StateClosed {
		t.Errorf("state = %s, want closed", ws.State())
	}
	waitDone(t, ws)
	if ws.Send("ls") {
		t.Error("Send after failed open should report false")
	}
	if ws.Err() == nil {
		t.Error("Err should carry the dial failure")
	}
	if m.ErrorCount() != 1 {
		t.Errorf("errors = %d, want 1", m.ErrorCount())
	}
	if err := ws.Open(context.Background()); !errors.Is(err, wterr.ErrTransportClosed) {
		t.Errorf("reopen = %v, want ErrTransportClosed", err)
	}
}

func TestWebSocket_HandshakeRejectedIsNotRetried(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		http.NotFound(w, nil)
	}))
	defer srv.Close()

	ws := NewWebSocket(WebSocketOptions{
		URL:     "ws" + strings.TrimPrefix(srv.URL, "http") + "/nope",
		Backoff: &retry.Backoff{InitialDelay: time.Millisecond, MaxAttempts: 5},
		Logger:  util.NewLogger(0),
	})
	err := ws.Open(context.Background())

	var he *wterr.HandshakeError
	if !errors.As(err, &he) {
		t.Fatalf("err = %v, want HandshakeError", err)
	}
	if !strings.HasPrefix(he.Status, "404") {
		t.Errorf("status = %q", he.Status)
	}
	if hits.Load() != 1 {
		t.Errorf("server hit %d times, want 1", hits.Load())
	}
}

// flakyDialer refuses the first n dials.
type flakyDialer struct {
	mu    sync.Mutex
	fails int
	calls int
	inner TCPDialer
}

func (d *flakyDialer) Dial(ctx context.Context, network, address string) (net.Conn, error) {
	d.mu.Lock()
	d.calls++
	fail := d.calls <= d.fails
	d.mu.Unlock()
	if fail {
		return nil, &net.OpError{Op: "dial", Net: network, Err: errors.New("connection refused")}
	}
	return d.inner.Dial(ctx, network, address)
}

func (d *flakyDialer) Close() error { return nil }

func TestWebSocket_RetriesInitialDial(t *testing.T) {
	url := newServer(t, echoHandler)
	fd := &flakyDialer{fails: 2}

	ws := NewWebSocket(WebSocketOptions{
		URL:     url,
		Dialer:  fd,
		Backoff: &retry.Backoff{InitialDelay: time.Millisecond, MaxAttempts: 3},
		Logger:  util.NewLogger(0),
	})
	defer ws.Close()

	if err := ws.Open(context.Background()); err != nil {
		t.Fatalf("Open: %v", err)
	}
	if fd.calls != 3 {
		t.Errorf("dial calls = %d, want 3", fd.calls)
	}
}

func TestWebSocket_PeerCloseIsTerminal(t *testing.T) {
	url := newServer(t, func(conn *websocket.Conn) {
		conn.ReadMessage() //nolint:errcheck
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye")
		conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second)) //nolint:errcheck
	})

	m := metrics.New()
	ws := NewWebSocket(WebSocketOptions{URL: url, Logger: util.NewLogger(0), Metrics: m})
	defer ws.Close()
	if err := ws.Open(context.Background()); err != nil {
		t.Fatal(err)
	}
	ws.Send("exit")

	waitDone(t, ws)
	if ws.State() != StateClosed {
		t.Errorf("state = %s", ws.State())
	}
	if ws.Err() != nil {
		t.Errorf("normal closure should not be an error, got %v", ws.Err())
	}
	if ws.Send("ls") {
		t.Error("Send after close should report false")
	}
	if m.ActiveConnections() != 0 {
		t.Errorf("active = %d, want 0", m.ActiveConnections())
	}
}

func TestWebSocket_CloseSendsCloseFrameOnce(t *testing.T) {
	codes := make(chan int, 2)
	url := newServer(t, func(conn *websocket.Conn) {
		_, _, err := conn.ReadMessage()
		var ce *websocket.CloseError
		if errors.As(err, &ce) {
			codes <- ce.Code
		}
	})

	ws := NewWebSocket(WebSocketOptions{URL: url, Logger: util.NewLogger(0)})
	if err := ws.Open(context.Background()); err != nil {
		t.Fatal(err)
	}

	ws.Close() //nolint:errcheck
	ws.Close() //nolint:errcheck

	select {
	case code := <-codes:
		if code != websocket.CloseNormalClosure {
			t.Errorf("close code = %d, want %d", code, websocket.CloseNormalClosure)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("server never saw a close frame")
	}
	if ws.State() != StateClosed {
		t.Errorf("state = %s", ws.State())
	}
	if ws.Err() != nil {
		t.Errorf("local close should leave Err nil, got %v", ws.Err())
	}
}

func TestWebSocket_CloseWhileConnecting(t *testing.T) {
	ws := NewWebSocket(WebSocketOptions{URL: "ws://127.0.0.1:1/websocket", Logger: util.NewLogger(0)})
	ws.Close() //nolint:errcheck

	waitDone(t, ws)
	if err := ws.Open(context.Background()); !errors.Is(err, wterr.ErrTransportClosed) {
		t.Errorf("Open after Close = %v, want ErrTransportClosed", err)
	}
}
