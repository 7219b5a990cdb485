package terminal

import (
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Options are the fixed presentation settings of the display surface.
type Options struct {
	Bell        bool
	CursorBlink bool
	FontSize    int
	FontFamily  string
	Foreground  string // #rgb or #rrggbb
	Background  string
}

// DefaultOptions returns the settings every session uses.
func DefaultOptions() Options {
	return Options{
		Bell:        false,
		CursorBlink: true,
		FontSize:    12,
		FontFamily:  "monospace",
		Foreground:  "#fff",
		Background:  "#000",
	}
}

const (
	bel            = 0x07
	esc            = 0x1b
	seqBlinkOn     = "\x1b[?12h"
	seqBlinkOff    = "\x1b[?12l"
	seqResetColors = "\x1b[0m"
)

// oscState tracks whether output is inside an operating system command
// (ESC ] ... BEL or ESC \), where BEL is the terminator and not a bell.
type oscState uint8

const (
	oscGround       oscState = iota
	oscEscape                // ESC seen outside an OSC
	oscString                // inside ESC ]
	oscStringEscape          // ESC seen inside an OSC, maybe ST
)

// Display is the write side of the local terminal.  With the bell
// disabled a BEL byte outside an OSC string is dropped; every other
// byte passes through untouched.  The state survives across writes so
// a sequence split over two writes is still recognised.
type Display struct {
	out   io.Writer
	opts  Options
	state oscState
}

// NewDisplay wraps out with the given options.
func NewDisplay(out io.Writer, opts Options) *Display {
	return &Display{out: out, opts: opts}
}

// Options returns the display settings.
func (d *Display) Options() Options { return d.opts }

// Write implements io.Writer.  The returned count refers to p, not to
// the filtered bytes.
func (d *Display) Write(p []byte) (int, error) {
	if d.opts.Bell {
		return d.out.Write(p)
	}
	var filtered []byte
	dropped := false
	for i, b := range p {
		keep := d.step(b)
		switch {
		case !keep && !dropped:
			dropped = true
			filtered = append(make([]byte, 0, len(p)), p[:i]...)
		case keep && dropped:
			filtered = append(filtered, b)
		}
	}
	if !dropped {
		return d.out.Write(p)
	}
	if _, err := d.out.Write(filtered); err != nil {
		return 0, err
	}
	return len(p), nil
}

// step advances the OSC state by b and reports whether b is written.
func (d *Display) step(b byte) bool {
	switch d.state {
	case oscEscape:
		switch b {
		case ']':
			d.state = oscString
		case esc:
		case bel:
			d.state = oscGround
			return false
		default:
			d.state = oscGround
		}
	case oscString:
		switch b {
		case bel:
			d.state = oscGround
		case esc:
			d.state = oscStringEscape
		}
	case oscStringEscape:
		switch b {
		case '\\', bel:
			d.state = oscGround
		case esc:
		default:
			d.state = oscString
		}
	default:
		switch b {
		case esc:
			d.state = oscEscape
		case bel:
			return false
		}
	}
	return true
}

// Setup emits the escape sequences for cursor blink and colours.  Call
// it only when out is a real terminal.
func (d *Display) Setup() error {
	var sb strings.Builder
	if d.opts.CursorBlink {
		sb.WriteString(seqBlinkOn)
	}
	sb.WriteString(colorSGR(d.opts.Foreground, d.opts.Background))
	_, err := io.WriteString(d.out, sb.String())
	return err
}

// Reset restores default colours and cursor behaviour.
func (d *Display) Reset() error {
	s := seqResetColors
	if d.opts.CursorBlink {
		s += seqBlinkOff
	}
	_, err := io.WriteString(d.out, s)
	return err
}

// colorSGR builds the SGR sequence for the given colours.  Pure white
// and pure black map to the basic palette (97, 40); other values use
// 24-bit colour.  Unparseable values are skipped.
func colorSGR(fg, bg string) string {
	var params []string
	if r, g, b, ok := parseHexColor(fg); ok {
		switch {
		case r == 0xff && g == 0xff && b == 0xff:
			params = append(params, "97")
		default:
			params = append(params, fmt.Sprintf("38;2;%d;%d;%d", r, g, b))
		}
	}
	if r, g, b, ok := parseHexColor(bg); ok {
		switch {
		case r == 0 && g == 0 && b == 0:
			params = append(params, "40")
		default:
			params = append(params, fmt.Sprintf("48;2;%d;%d;%d", r, g, b))
		}
	}
	if len(params) == 0 {
		return ""
	}
	return "\x1b[" + strings.Join(params, ";") + "m"
}

// parseHexColor accepts "#rgb" and "#rrggbb".
func parseHexColor(s string) (r, g, b uint8, ok bool) {
	s = strings.TrimPrefix(s, "#")
	switch len(s) {
	case 3:
		s = string([]byte{s[0], s[0], s[1], s[1], s[2], s[2]})
	case 6:
	default:
		return 0, 0, 0, false
	}
	v, err := strconv.ParseUint(s, 16, 32)
	if err != nil {
		return 0, 0, 0, false
	}
	return uint8(v >> 16), uint8(v >> 8), uint8(v), true
}
