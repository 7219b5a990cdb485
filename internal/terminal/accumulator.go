// Package terminal holds the client-side line discipline: the input
// accumulator that turns keystrokes into command lines, the renderer
// that writes local edits and remote replies to the display, and the
// local terminal plumbing (raw keystroke reader, display options).
//
// Nothing in this package touches the network.  The session package
// feeds it events and hands submitted lines to the transport.
package terminal

// ActionKind identifies what the accumulator decided for one keystroke.
type ActionKind int

const (
	// ActionEcho means the payload was appended and must be echoed.
	ActionEcho ActionKind = iota
	// ActionEraseOne means one unit was (or would have been) erased.
	ActionEraseOne
	// ActionSubmitLine means the buffer was completed and reset.
	ActionSubmitLine
)

func (k ActionKind) String() string {
	switch k {
	case ActionEcho:
		return "echo"
	case ActionEraseOne:
		return "erase"
	case ActionSubmitLine:
		return "submit"
	default:
		return "unknown"
	}
}

// Action is the result of feeding one keystroke payload to an
// [Accumulator].  Text is the echoed payload for ActionEcho and the
// completed line for ActionSubmitLine; it is empty for ActionEraseOne.
type Action struct {
	Kind ActionKind
	Text string
}

// Keystroke payloads with special meaning.  Anything else is opaque.
const (
	keyDelete    = "\x7f"
	keyBackspace = "\b"
	keyReturn    = "\r"
	keyNewline   = "\n"
)

// Accumulator collects keystroke payloads into the pending command
// line.  The buffer is kept as the sequence of appended payloads so a
// backspace removes the last payload as a whole, even when that payload
// was a multi-byte escape sequence or a pasted chunk.
//
// An Accumulator is not safe for concurrent use; the session event loop
// is its only caller.
type Accumulator struct {
	units []string
}

// NewAccumulator returns an accumulator with an empty buffer.
func NewAccumulator() *Accumulator {
	return &Accumulator{}
}

// Handle classifies data and updates the buffer accordingly.
//
//   - DEL or BS: drop the last unit if any, yield EraseOne.
//   - CR or LF: yield SubmitLine with the buffer, then clear it.
//   - anything else: append verbatim and yield Echo.
//
// The comparison is against the whole payload: "\r" inside a longer
// chunk is not a submit.
func (a *Accumulator) Handle(data string) Action {
	switch data {
	case keyDelete, keyBackspace:
		if n := len(a.units); n > 0 {
			a.units = a.units[:n-1]
		}
		return Action{Kind: ActionEraseOne}

	case keyReturn, keyNewline:
		line := a.Buffer()
		a.units = a.units[:0]
		return Action{Kind: ActionSubmitLine, Text: line}

	default:
		a.units = append(a.units, data)
		return Action{Kind: ActionEcho, Text: data}
	}
}

// Buffer returns the pending line.
func (a *Accumulator) Buffer() string {
	switch len(a.units) {
	case 0:
		return ""
	case 1:
		return a.units[0]
	}
	n := 0
	for _, u := range a.units {
		n += len(u)
	}
	b := make([]byte, 0, n)
	for _, u := range a.units {
		b = append(b, u...)
	}
	return string(b)
}

// Len returns the number of buffered units.
func (a *Accumulator) Len() int { return len(a.units) }
