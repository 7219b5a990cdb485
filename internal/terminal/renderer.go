package terminal

import (
	"io"
	"strings"
)

const (
	// DefaultGreeting is written once when a session starts.
	DefaultGreeting = "Hello from react-xtermjs!"

	// Prompt is re-issued after the greeting and after every reply.
	Prompt = "$ "

	// EraseSequence moves the cursor back one cell, blanks it, and moves
	// back again.
	EraseSequence = "\b \b"

	// LineBreak is the display line break.  The display surface does
	// not translate a bare LF into CR LF.
	LineBreak = "\r\n"
)

// Renderer turns session events into display writes.  Writes happen in
// call order; nothing is buffered or coalesced.
type Renderer struct {
	out      io.Writer
	greeting string
}

// NewRenderer returns a renderer writing to out.  An empty greeting
// selects [DefaultGreeting].
func NewRenderer(out io.Writer, greeting string) *Renderer {
	if greeting == "" {
		greeting = DefaultGreeting
	}
	return &Renderer{out: out, greeting: greeting}
}

// Start writes the greeting, a line break and the first prompt.
func (r *Renderer) Start() error {
	return r.write(r.greeting + LineBreak + Prompt)
}

// OnLocalEdit reflects an accumulator action on the display.
func (r *Renderer) OnLocalEdit(a Action) error {
	switch a.Kind {
	case ActionEcho:
		return r.write(a.Text)
	case ActionEraseOne:
		return r.write(EraseSequence)
	case ActionSubmitLine:
		return r.write(LineBreak)
	}
	return nil
}

// OnRemoteReply writes the reply with every LF turned into CR LF,
// followed by exactly one prompt.  An empty reply yields just the
// prompt.
func (r *Renderer) OnRemoteReply(text string) error {
	return r.write(Normalize(text) + Prompt)
}

// Prompt writes a fresh prompt on its own line.  Used when a reply is
// given up on.
func (r *Renderer) Prompt() error {
	return r.write(LineBreak + Prompt)
}

func (r *Renderer) write(s string) error {
	if s == "" {
		return nil
	}
	_, err := io.WriteString(r.out, s)
	return err
}

// Normalize replaces every "\n" in text with "\r\n".  No other byte is
// altered, so an existing "\r\n" becomes "\r\r\n".
func Normalize(text string) string {
	return strings.ReplaceAll(text, "\n", LineBreak)
}
