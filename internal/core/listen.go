package core

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"webterm/config"
	"webterm/internal/capability"
	"webterm/internal/metrics"
	"webterm/tunnel"
	"webterm/util"
)

const (
	listenWriteTimeout = 10 * time.Second
	readHeaderTimeout  = 10 * time.Second
)

// ListenMode is the executor side: it serves WebSocket sessions and
// answers every received line with one reply frame produced by
// Executor.  With KeepOpen=false it shuts down after the first session
// ends.
//
// When Tunnel is set the listener is requested on the SSH gateway
// (RemoteBindAddress:RemotePort) instead of bound locally.
type ListenMode struct {
	Address  string // local "host:port"
	Path     string // WebSocket route, default /websocket
	KeepOpen bool
	Executor capability.Executor
	Logger   *util.Logger
	Metrics  *metrics.Collector

	Tunnel            tunnel.Tunnel
	RemoteBindAddress string
	RemotePort        int

	// GracePeriod bounds the HTTP shutdown (default 5s).
	GracePeriod time.Duration

	// Listener, when set, is served instead of listening on Address.
	Listener net.Listener

	mu    sync.Mutex
	conns map[string]*websocket.Conn
}

// Run listens and serves until ctx is cancelled or, without KeepOpen,
// the first session ends.
func (m *ListenMode) Run(ctx context.Context) error {
	ln, err := m.listen(ctx)
	if err != nil {
		return err
	}
	if m.Tunnel != nil {
		defer m.Tunnel.Close()
	}

	finished := make(chan struct{}, 1)
	srv := &http.Server{
		Handler:           m.Router(ctx, finished),
		ReadHeaderTimeout: readHeaderTimeout,
	}

	serveErr := make(chan error, 1)
	go func() { serveErr <- srv.Serve(ln) }()

	m.Logger.Info("executor listening on %s%s", ln.Addr(), m.path())

	var runErr error
	select {
	case <-ctx.Done():
		m.Logger.Verbose("shutting down: %v", context.Cause(ctx))
	case <-finished:
		m.Logger.Verbose("session ended, shutting down")
	case err := <-serveErr:
		if !errors.Is(err, http.ErrServerClosed) {
			runErr = fmt.Errorf("serve: %w", err)
		}
	}

	grace := m.GracePeriod
	if grace <= 0 {
		grace = config.DefaultGracePeriod
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), grace)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		srv.Close() //nolint:errcheck
	}
	m.closeSessions()
	return runErr
}

func (m *ListenMode) listen(ctx context.Context) (net.Listener, error) {
	if m.Listener != nil {
		return m.Listener, nil
	}
	if m.Tunnel == nil {
		ln, err := net.Listen("tcp", m.Address)
		if err != nil {
			return nil, fmt.Errorf("listen on %s: %w", m.Address, err)
		}
		return ln, nil
	}

	m.Logger.Verbose("requesting %s on the SSH gateway",
		util.FormatAddr(m.RemoteBindAddress, m.RemotePort))
	if err := m.Tunnel.Connect(ctx); err != nil {
		return nil, fmt.Errorf("reverse tunnel: %w", err)
	}
	ln, err := m.Tunnel.Listen(m.RemoteBindAddress, m.RemotePort)
	if err != nil {
		m.Tunnel.Close()
		return nil, fmt.Errorf("reverse tunnel: %w", err)
	}
	return ln, nil
}

func (m *ListenMode) path() string {
	if m.Path == "" {
		return config.DefaultPath
	}
	return m.Path
}

// Router returns the executor's HTTP routes.  Without KeepOpen,
// finished receives a value (non-blocking) when a session ends.
func (m *ListenMode) Router(ctx context.Context, finished chan<- struct{}) http.Handler {
	r := mux.NewRouter()

	upgrader := websocket.Upgrader{
		CheckOrigin: func(*http.Request) bool { return true },
	}

	r.HandleFunc(m.path(), func(w http.ResponseWriter, req *http.Request) {
		conn, err := upgrader.Upgrade(w, req, nil)
		if err != nil {
			// Upgrade has already written the HTTP error.
			m.Logger.Verbose("upgrade from %s: %v", req.RemoteAddr, err)
			m.Metrics.RecordError(err.Error())
			return
		}
		m.serve(ctx, conn)
		if m.KeepOpen {
			return
		}
		select {
		case finished <- struct{}{}:
		default:
		}
	}).Methods("GET")

	r.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		m.Metrics.RecordHealthCheck()
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]interface{}{ //nolint:errcheck
			"status":   "healthy",
			"service":  "webterm",
			"sessions": m.Metrics.ActiveConnections(),
		})
	}).Methods("GET")

	r.HandleFunc("/metrics", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(m.Metrics.JSON())) //nolint:errcheck
	}).Methods("GET")

	return r
}

// serve answers lines on conn in arrival order until the peer goes
// away or the mode shuts down.
func (m *ListenMode) serve(ctx context.Context, conn *websocket.Conn) {
	id := uuid.NewString()
	log := m.Logger.With("conn", id[:8])

	m.track(id, conn)
	defer m.untrack(id)
	defer conn.Close()

	m.Metrics.ConnectionOpened()
	defer m.Metrics.ConnectionClosed()
	log.Verbose("session from %s", conn.RemoteAddr())

	for {
		kind, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) ||
				util.IsHarmless(err) {
				log.Verbose("session closed")
			} else {
				log.Warn("read: %v", err)
				m.Metrics.RecordError(err.Error())
			}
			return
		}
		if kind != websocket.TextMessage && kind != websocket.BinaryMessage {
			continue
		}
		m.Metrics.BytesReceived(int64(len(data)))

		line := string(data)
		log.Debug("exec %q", line)
		reply, err := capability.Reply(ctx, m.Executor, line)
		if err != nil {
			log.Verbose("command %q: %v", line, err)
		}
		m.Metrics.CommandExecuted()

		conn.SetWriteDeadline(time.Now().Add(listenWriteTimeout)) //nolint:errcheck
		if err := conn.WriteMessage(websocket.TextMessage, []byte(reply)); err != nil {
			log.Warn("write: %v", err)
			m.Metrics.RecordError(err.Error())
			return
		}
		m.Metrics.BytesSent(int64(len(reply)))
	}
}

func (m *ListenMode) track(id string, conn *websocket.Conn) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.conns == nil {
		m.conns = make(map[string]*websocket.Conn)
	}
	m.conns[id] = conn
}

func (m *ListenMode) untrack(id string) {
	m.mu.Lock()
	delete(m.conns, id)
	m.mu.Unlock()
}

// closeSessions ends hijacked connections that http.Server.Shutdown
// does not track.
func (m *ListenMode) closeSessions() {
	m.mu.Lock()
	defer m.mu.Unlock()
	msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "executor shutting down")
	for _, conn := range m.conns {
		conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second)) //nolint:errcheck
		conn.Close()
	}
}
