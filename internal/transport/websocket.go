package transport

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	wterr "webterm/internal/errors"
	"webterm/internal/metrics"
	"webterm/internal/retry"
	"webterm/util"
)

const (
	defaultQueueSize        = 64
	defaultHandshakeTimeout = 10 * time.Second
	defaultWriteTimeout     = 10 * time.Second
	closeGrace              = time.Second
)

// WebSocketOptions configures a [WebSocket] session.
type WebSocketOptions struct {
	URL              string
	Dialer           Dialer         // nil uses a plain TCPDialer
	Backoff          *retry.Backoff // nil means a single attempt
	HandshakeTimeout time.Duration
	WriteTimeout     time.Duration
	QueueSize        int // pending outbound lines before Send drops
	Logger           *util.Logger
	Metrics          *metrics.Collector
}

// WebSocket is one full-duplex session with the executor.  Every
// command line is sent as a single text frame with no terminator; every
// inbound text or binary frame is one reply.
//
// All methods are safe for concurrent use.  Send never blocks.
type WebSocket struct {
	opts    WebSocketOptions
	state   atomic.Int32
	writeCh chan string
	replies chan string
	done    chan struct{}
	wg      sync.WaitGroup
	once    sync.Once

	mu         sync.Mutex
	conn       *websocket.Conn
	cancelDial context.CancelFunc
	err        error
}

// NewWebSocket returns a session in [StateConnecting].  Nothing is
// dialled until [WebSocket.Open].
func NewWebSocket(opts WebSocketOptions) *WebSocket {
	if opts.Dialer == nil {
		opts.Dialer = &TCPDialer{}
	}
	if opts.Backoff == nil {
		opts.Backoff = &retry.Backoff{MaxAttempts: 1}
	}
	if opts.HandshakeTimeout == 0 {
		opts.HandshakeTimeout = defaultHandshakeTimeout
	}
	if opts.WriteTimeout == 0 {
		opts.WriteTimeout = defaultWriteTimeout
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = defaultQueueSize
	}
	if opts.Logger == nil {
		opts.Logger = util.NewLogger(0)
	}
	return &WebSocket{
		opts:    opts,
		writeCh: make(chan string, opts.QueueSize),
		replies: make(chan string, opts.QueueSize),
		done:    make(chan struct{}),
	}
}

// URL returns the executor URL.
func (w *WebSocket) URL() string { return w.opts.URL }

// State reports the lifecycle position.
func (w *WebSocket) State() State { return State(w.state.Load()) }

// Replies delivers inbound frames in arrival order.  It is never
// closed; select on [WebSocket.Done] as well.
func (w *WebSocket) Replies() <-chan string { return w.replies }

// Done is closed when the session reaches [StateClosed].
func (w *WebSocket) Done() <-chan struct{} { return w.done }

// Err returns the error that closed the session, or nil after a local
// Close.
func (w *WebSocket) Err() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.err
}

// Open dials the executor, retrying per the configured backoff while
// still connecting.  On success the session is Open and the read and
// write pumps are running.  On failure the session is Closed.
func (w *WebSocket) Open(ctx context.Context) error {
	w.mu.Lock()
	switch w.State() {
	case StateOpen:
		w.mu.Unlock()
		return nil
	case StateClosed:
		w.mu.Unlock()
		return wterr.ErrTransportClosed
	}
	if w.cancelDial != nil {
		w.mu.Unlock()
		return fmt.Errorf("open %s: already dialling", w.opts.URL)
	}
	ctx, cancel := context.WithCancel(ctx)
	w.cancelDial = cancel
	w.mu.Unlock()
	defer cancel()

	bo := *w.opts.Backoff
	if bo.Retryable == nil {
		bo.Retryable = wterr.IsRetryable
	}
	if bo.OnRetry == nil {
		bo.OnRetry = func(attempt int, err error, wait time.Duration) {
			w.opts.Logger.Verbose("dial attempt %d failed: %v (retrying in %s)",
				attempt, err, wait.Truncate(time.Millisecond))
		}
	}

	var conn *websocket.Conn
	attempts := 0
	err := bo.Do(ctx, func(attempt int) error {
		attempts = attempt
		c, err := w.dial(ctx)
		if err != nil {
			return err
		}
		conn = c
		return nil
	})
	if err != nil {
		w.shutdown(err, false)
		w.opts.Metrics.RecordError(err.Error())
		return err
	}

	w.mu.Lock()
	if w.State() == StateClosed {
		// Close won the race while the handshake was in flight.
		w.mu.Unlock()
		conn.Close()
		return wterr.ErrTransportClosed
	}
	w.conn = conn
	w.state.Store(int32(StateOpen))
	w.wg.Add(2)
	w.mu.Unlock()

	w.opts.Metrics.ConnectionOpened()
	if attempts > 1 {
		w.opts.Logger.Info("connected to %s after %d attempts", w.opts.URL, attempts)
	} else {
		w.opts.Logger.Verbose("connected to %s", w.opts.URL)
	}

	go w.readPump(conn)
	go w.writePump(conn)
	return nil
}

// dial performs one WebSocket handshake through the configured Dialer.
// gorilla/websocket layers TLS on top for wss:// URLs.
func (w *WebSocket) dial(ctx context.Context) (*websocket.Conn, error) {
	d := websocket.Dialer{
		NetDialContext:   w.opts.Dialer.Dial,
		HandshakeTimeout: w.opts.HandshakeTimeout,
		Proxy:            http.ProxyFromEnvironment,
	}

	w.opts.Logger.Debug("dialing %s", w.opts.URL)
	conn, resp, err := d.DialContext(ctx, w.opts.URL, nil)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		if resp != nil {
			return nil, &wterr.HandshakeError{URL: w.opts.URL, Status: resp.Status, Err: err}
		}
		if err == websocket.ErrBadHandshake {
			return nil, &wterr.HandshakeError{URL: w.opts.URL, Err: err}
		}
		return nil, wterr.Wrap("dial", w.opts.URL, err)
	}
	return conn, nil
}

// Send queues line for transmission.  It reports false, without error,
// when the session is not Open or the queue is full.
func (w *WebSocket) Send(line string) bool {
	if w.State() != StateOpen {
		return false
	}
	select {
	case <-w.done:
		return false
	default:
	}
	select {
	case w.writeCh <- line:
		return true
	default:
		w.opts.Logger.Warn("write queue full, dropping line (%d bytes)", len(line))
		return false
	}
}

// Close sends a close frame and releases the connection.  Only the
// first call has any effect; it waits for the pumps to exit.
func (w *WebSocket) Close() error {
	w.shutdown(nil, true)
	w.wg.Wait()
	return nil
}

func (w *WebSocket) readPump(conn *websocket.Conn) {
	defer w.wg.Done()
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			w.shutdown(err, false)
			return
		}
		w.opts.Metrics.BytesReceived(int64(len(data)))
		select {
		case w.replies <- string(data):
		case <-w.done:
			return
		}
	}
}

func (w *WebSocket) writePump(conn *websocket.Conn) {
	defer w.wg.Done()
	for {
		select {
		case line := <-w.writeCh:
			conn.SetWriteDeadline(time.Now().Add(w.opts.WriteTimeout)) //nolint:errcheck
			if err := conn.WriteMessage(websocket.TextMessage, []byte(line)); err != nil {
				w.shutdown(wterr.Wrap("write", w.opts.URL, err), false)
				return
			}
			w.opts.Metrics.BytesSent(int64(len(line)))
		case <-w.done:
			return
		}
	}
}

// shutdown moves the session to Closed exactly once.  graceful sends a
// normal-closure frame before the socket is released.
func (w *WebSocket) shutdown(cause error, graceful bool) {
	w.once.Do(func() {
		w.mu.Lock()
		prev := w.State()
		w.state.Store(int32(StateClosed))
		conn := w.conn
		if w.cancelDial != nil {
			w.cancelDial()
		}
		if cause != nil && !(prev == StateOpen && util.IsHarmless(cause)) {
			w.err = cause
		}
		w.mu.Unlock()
		defer close(w.done)

		if conn == nil {
			w.opts.Logger.Debug("transport %s: %s -> closed", w.opts.URL, prev)
			return
		}

		if graceful {
			msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "session closed")
			conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(closeGrace)) //nolint:errcheck
		}
		conn.Close()
		w.opts.Metrics.ConnectionClosed()

		switch {
		case cause == nil:
			w.opts.Logger.Verbose("connection to %s closed", w.opts.URL)
		case util.IsHarmless(cause):
			w.opts.Logger.Verbose("connection to %s closed by peer", w.opts.URL)
		default:
			w.opts.Logger.Verbose("connection to %s lost: %v", w.opts.URL, cause)
			w.opts.Metrics.RecordError(cause.Error())
		}
	})
}
