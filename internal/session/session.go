// Package session runs one interactive command session: keystrokes are
// accumulated into lines, each line is sent to the executor, and each
// reply is rendered followed by a fresh prompt.
//
// All session state lives on [Session] and is touched only by the event
// loop in [Session.Run].  Keystroke reading and transport I/O happen on
// pump goroutines that post events to a single channel.
package session

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/google/uuid"

	"webterm/internal/metrics"
	"webterm/internal/terminal"
	"webterm/internal/transport"
	"webterm/util"
)

// inputReleaseTimeout bounds how long a cancelled Run waits for the key
// source to return.
const inputReleaseTimeout = 2 * time.Second

// Transport is the connection a session drives.  *transport.WebSocket
// satisfies it.
type Transport interface {
	Open(ctx context.Context) error
	Send(line string) bool
	Replies() <-chan string
	Done() <-chan struct{}
	Err() error
	State() transport.State
	Close() error
}

// KeySource produces keystroke payloads until the input ends.
// *terminal.KeyReader satisfies it.
type KeySource interface {
	Run(ctx context.Context, out chan<- string) error
}

// Options configures a [Session].
type Options struct {
	Transport Transport
	Keys      KeySource
	Display   io.Writer
	Greeting  string

	// ReplyTimeout, when positive, re-issues the prompt if a submitted
	// line has had no reply for this long.  Zero waits forever.
	ReplyTimeout time.Duration

	Logger  *util.Logger
	Metrics *metrics.Collector
}

// Session is one interactive command session.
type Session struct {
	id        string
	transport Transport
	keys      KeySource
	acc       *terminal.Accumulator
	renderer  *terminal.Renderer
	logger    *util.Logger
	metrics   *metrics.Collector

	replyTimeout time.Duration
	events       chan Event
	runCtx       context.Context

	lastReply string
	pending   int // submitted lines still waiting for a reply
	timerSeq  uint64
	timer     *time.Timer
}

// New builds a session.  Nothing runs until [Session.Run].
func New(opts Options) *Session {
	logger := opts.Logger
	if logger == nil {
		logger = util.NewLogger(0)
	}
	id := uuid.NewString()
	return &Session{
		id:           id,
		transport:    opts.Transport,
		keys:         opts.Keys,
		acc:          terminal.NewAccumulator(),
		renderer:     terminal.NewRenderer(opts.Display, opts.Greeting),
		logger:       logger.With("session", id[:8]),
		metrics:      opts.Metrics,
		replyTimeout: opts.ReplyTimeout,
		events:       make(chan Event, 64),
		runCtx:       context.Background(),
	}
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// LastReply returns the most recently rendered reply.
func (s *Session) LastReply() string { return s.lastReply }

// Buffer returns the pending, unsubmitted line.
func (s *Session) Buffer() string { return s.acc.Buffer() }

// Run writes the greeting, starts connecting, and processes events one
// at a time until the input ends, the exit sequence is typed, or ctx is
// cancelled.  The transport is closed exactly once before Run returns.
//
// Connection failures never end the session; only a failure to draw the
// greeting or to read local input is returned.
func (s *Session) Run(ctx context.Context) error {
	defer s.transport.Close() //nolint:errcheck
	defer s.stopTimer()

	if err := s.renderer.Start(); err != nil {
		return err
	}
	s.logger.Debug("session started")

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	s.runCtx = ctx

	go s.connect(ctx)

	inputErr := make(chan error, 1)
	go s.readKeys(ctx, inputErr)

	for {
		select {
		case <-ctx.Done():
			s.logger.Debug("session cancelled")
			// The key source owns the terminal mode; let it restore
			// before returning.
			select {
			case <-inputErr:
			case <-time.After(inputReleaseTimeout):
				s.logger.Debug("key source did not stop within %s", inputReleaseTimeout)
			}
			return nil
		case ev := <-s.events:
			if s.Handle(ev) {
				err := <-inputErr
				if err != nil && !errors.Is(err, terminal.ErrExitSequence) {
					return err
				}
				return nil
			}
		}
	}
}

// Handle applies one event to the session and reports whether the
// session is over.  It is the whole state machine; Run only feeds it.
func (s *Session) Handle(ev Event) (done bool) {
	switch e := ev.(type) {
	case KeyEvent:
		s.handleKey(e.Data)

	case ReplyEvent:
		s.lastReply = e.Text
		if s.pending > 0 {
			s.pending--
		}
		if s.pending == 0 {
			s.stopTimer()
		}
		s.metrics.ReplyReceived()
		s.draw(s.renderer.OnRemoteReply(e.Text))

	case OpenedEvent:
		s.logger.Verbose("connection open")

	case OpenFailedEvent:
		s.logger.Warn("could not connect: %v", e.Err)

	case ClosedEvent:
		if e.Err != nil {
			s.logger.Warn("connection closed: %v", e.Err)
		} else {
			s.logger.Verbose("connection closed")
		}

	case ReplyTimeoutEvent:
		if e.Seq != s.timerSeq || s.pending == 0 {
			return false
		}
		s.logger.Warn("no reply after %s", s.replyTimeout)
		s.pending = 0
		s.draw(s.renderer.Prompt())

	case InputClosedEvent:
		s.logger.Debug("input closed")
		return true
	}
	return false
}

func (s *Session) handleKey(data string) {
	action := s.acc.Handle(data)
	s.draw(s.renderer.OnLocalEdit(action))
	if action.Kind != terminal.ActionSubmitLine {
		return
	}

	s.metrics.LineSubmitted()
	if !s.transport.Send(action.Text) {
		s.metrics.LineDropped()
		s.logger.Debug("line dropped, transport %s", s.transport.State())
		return
	}
	s.pending++
	s.armTimer()
}

// draw logs display write failures.  The display is the user's own
// terminal, so there is nowhere else to report them.
func (s *Session) draw(err error) {
	if err != nil {
		s.logger.Debug("display write: %v", err)
	}
}

func (s *Session) armTimer() {
	if s.replyTimeout <= 0 {
		return
	}
	s.stopTimer()
	s.timerSeq++
	seq := s.timerSeq
	s.timer = time.AfterFunc(s.replyTimeout, func() {
		s.post(s.runCtx, ReplyTimeoutEvent{Seq: seq})
	})
}

func (s *Session) stopTimer() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

// post delivers ev to the loop unless ctx ends first.
func (s *Session) post(ctx context.Context, ev Event) bool {
	select {
	case s.events <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}

// connect opens the transport and forwards its output as events.
// Replies still buffered when the connection drops are delivered before
// the ClosedEvent.
func (s *Session) connect(ctx context.Context) {
	if err := s.transport.Open(ctx); err != nil {
		s.post(ctx, OpenFailedEvent{Err: err})
		return
	}
	if !s.post(ctx, OpenedEvent{}) {
		return
	}

	replies := s.transport.Replies()
	for {
		select {
		case text := <-replies:
			if !s.post(ctx, ReplyEvent{Text: text}) {
				return
			}
		case <-s.transport.Done():
			for {
				select {
				case text := <-replies:
					if !s.post(ctx, ReplyEvent{Text: text}) {
						return
					}
				default:
					s.post(ctx, ClosedEvent{Err: s.transport.Err()})
					return
				}
			}
		case <-ctx.Done():
			return
		}
	}
}

// readKeys forwards keystrokes as events and posts InputClosedEvent
// when the source ends.  The source's result is sent on result first so
// Run can pick it up after handling the InputClosedEvent.
func (s *Session) readKeys(ctx context.Context, result chan<- error) {
	keys := make(chan string, 16)
	errc := make(chan error, 1)
	go func() {
		errc <- s.keys.Run(ctx, keys)
		close(keys)
	}()

	for k := range keys {
		if !s.post(ctx, KeyEvent{Data: k}) {
			break
		}
	}
	result <- <-errc
	s.post(ctx, InputClosedEvent{})
}
