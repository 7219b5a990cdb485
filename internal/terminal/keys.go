package terminal

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"unicode/utf8"

	"golang.org/x/term"

	"webterm/util"
)

// Exit sequence: Ctrl+] followed by q.
const (
	exitPrefix = "\x1d"
	exitKey    = "q"
)

// ErrExitSequence is returned by [KeyReader.Run] when the user typed
// the exit sequence.
var ErrExitSequence = errors.New("exit sequence received")

// KeyReader turns local input into keystroke payloads.
//
// On a terminal the input is switched to raw mode for the duration of
// Run and every read chunk is one payload, which keeps escape sequences
// and pastes intact.  On anything else (pipes, files, tests) the input
// is split into one payload per UTF-8 rune.
type KeyReader struct {
	in     io.Reader
	fd     int
	tty    bool
	logger *util.Logger
}

// NewKeyReader wraps in.  Raw mode is only used when in is an *os.File
// attached to a terminal.
func NewKeyReader(in io.Reader, logger *util.Logger) *KeyReader {
	k := &KeyReader{in: in, fd: -1, logger: logger}
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		k.fd = int(f.Fd())
		k.tty = true
	}
	return k
}

// IsTerminal reports whether the input is an interactive terminal.
func (k *KeyReader) IsTerminal() bool { return k.tty }

// Run reads until EOF, the exit sequence, a read error, or ctx
// cancellation, sending each payload on out.  EOF and cancellation
// return nil; the exit sequence returns [ErrExitSequence].  The
// terminal mode is restored before Run returns, even when the
// underlying Read is still blocked.
func (k *KeyReader) Run(ctx context.Context, out chan<- string) error {
	if k.tty {
		state, err := term.MakeRaw(k.fd)
		if err != nil {
			return fmt.Errorf("raw mode: %w", err)
		}
		defer term.Restore(k.fd, state) //nolint:errcheck
		k.logger.Debug("terminal: raw mode on fd %d", k.fd)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	reads := make(chan readResult)
	go k.pump(ctx, reads)

	var (
		pending   []byte // incomplete UTF-8 tail (non-TTY only)
		sawPrefix bool
	)

	for {
		var r readResult
		select {
		case <-ctx.Done():
			return nil
		case r = <-reads:
		}

		if len(r.data) > 0 {
			var chunk string
			if k.tty {
				chunk = string(r.data)
			} else {
				data := append(pending, r.data...)
				cut := completeRunes(data)
				chunk = string(data[:cut])
				pending = append([]byte(nil), data[cut:]...)
			}

			units, exit := k.split(chunk, &sawPrefix)
			for _, u := range units {
				select {
				case out <- u:
				case <-ctx.Done():
					return nil
				}
			}
			if exit {
				k.logger.Debug("terminal: exit sequence")
				return ErrExitSequence
			}
		}
		if r.err != nil {
			if util.IsHarmless(r.err) {
				return nil
			}
			return fmt.Errorf("read input: %w", r.err)
		}
	}
}

type readResult struct {
	data []byte
	err  error
}

// pump performs the blocking reads.  It may outlive Run while a Read
// is pending; it exits at the next read once ctx is done.
func (k *KeyReader) pump(ctx context.Context, reads chan<- readResult) {
	bufp := util.GetBuf()
	defer util.PutBuf(bufp)
	buf := *bufp

	for {
		n, err := k.in.Read(buf)
		r := readResult{data: append([]byte(nil), buf[:n]...), err: err}
		select {
		case reads <- r:
		case <-ctx.Done():
			return
		}
		if err != nil {
			return
		}
	}
}

// split cuts chunk into payloads and watches for the exit sequence,
// which may arrive as one chunk or across two.  *sawPrefix carries a
// trailing Ctrl+] between calls.
func (k *KeyReader) split(chunk string, sawPrefix *bool) (units []string, exit bool) {
	if *sawPrefix {
		*sawPrefix = false
		if strings.HasPrefix(chunk, exitKey) {
			return nil, true
		}
		units = append(units, exitPrefix)
	}

	if i := strings.Index(chunk, exitPrefix+exitKey); i >= 0 {
		return append(units, k.units(chunk[:i])...), true
	}
	if strings.HasSuffix(chunk, exitPrefix) {
		*sawPrefix = true
		chunk = strings.TrimSuffix(chunk, exitPrefix)
	}
	return append(units, k.units(chunk)...), false
}

// units splits s into keystroke payloads: the whole chunk on a
// terminal, one rune each otherwise.
func (k *KeyReader) units(s string) []string {
	if s == "" {
		return nil
	}
	if k.tty {
		return []string{s}
	}
	out := make([]string, 0, utf8.RuneCountInString(s))
	for len(s) > 0 {
		_, size := utf8.DecodeRuneInString(s)
		out = append(out, s[:size])
		s = s[size:]
	}
	return out
}

// completeRunes returns the length of the longest prefix of p that does
// not end in a truncated UTF-8 sequence.
func completeRunes(p []byte) int {
	end := len(p)
	// A rune is at most 4 bytes, so only the last 3 can be a partial one.
	for i := end - 1; i >= 0 && i >= end-3; i-- {
		if utf8.RuneStart(p[i]) {
			if !utf8.FullRune(p[i:end]) {
				return i
			}
			break
		}
	}
	return end
}
