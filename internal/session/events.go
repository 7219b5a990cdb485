package session

// Event is anything the session loop reacts to.
type Event interface {
	isEvent()
}

// KeyEvent carries one keystroke payload.
type KeyEvent struct{ Data string }

// OpenedEvent reports that the transport reached the Open state.
type OpenedEvent struct{}

// OpenFailedEvent reports that the dial failed; the transport is Closed.
type OpenFailedEvent struct{ Err error }

// ReplyEvent carries one reply frame.
type ReplyEvent struct{ Text string }

// ClosedEvent reports that an open transport closed.  Err is nil for a
// normal closure.
type ClosedEvent struct{ Err error }

// InputClosedEvent reports that the keystroke source ended.
type InputClosedEvent struct{}

// ReplyTimeoutEvent fires when a submitted line has waited too long.
// Seq identifies the timer so a stale one is ignored.
type ReplyTimeoutEvent struct{ Seq uint64 }

func (KeyEvent) isEvent()          {}
func (OpenedEvent) isEvent()       {}
func (OpenFailedEvent) isEvent()   {}
func (ReplyEvent) isEvent()        {}
func (ClosedEvent) isEvent()       {}
func (InputClosedEvent) isEvent()  {}
func (ReplyTimeoutEvent) isEvent() {}
