package terminal

import (
	"bytes"
	"strings"
	"testing"
)

func TestDisplay_StripsBell(t *testing.T) {
	var buf bytes.Buffer
	d := NewDisplay(&buf, DefaultOptions())

	n, err := d.Write([]byte("a\x07b\x07"))
	if err != nil {
		t.Fatal(err)
	}
	if n != 4 {
		t.Errorf("n = %d, want 4", n)
	}
	if got := buf.String(); got != "ab" {
		t.Errorf("got %q, want %q", got, "ab")
	}
}

func TestDisplay_BellEnabledPassesThrough(t *testing.T) {
	var buf bytes.Buffer
	opts := DefaultOptions()
	opts.Bell = true
	d := NewDisplay(&buf, opts)

	d.Write([]byte("\x07")) //nolint:errcheck
	if buf.String() != "\x07" {
		t.Errorf("got %q", buf.String())
	}
}

func TestDisplay_SetupReset(t *testing.T) {
	var buf bytes.Buffer
	d := NewDisplay(&buf, DefaultOptions())

	if err := d.Setup(); err != nil {
		t.Fatal(err)
	}
	setup := buf.String()
	if !strings.Contains(setup, "\x1b[?12h") {
		t.Errorf("setup should enable cursor blink: %q", setup)
	}
	if !strings.Contains(setup, "\x1b[97;40m") {
		t.Errorf("setup should set white on black: %q", setup)
	}

	buf.Reset()
	if err := d.Reset(); err != nil {
		t.Fatal(err)
	}
	if got := buf.String(); got != "\x1b[0m\x1b[?12l" {
		t.Errorf("reset = %q", got)
	}
}

func TestDefaultOptions(t *testing.T) {
	o := DefaultOptions()
	if o.Bell || !o.CursorBlink || o.FontSize != 12 || o.FontFamily != "monospace" {
		t.Errorf("unexpected defaults: %+v", o)
	}
}

func TestColorSGR(t *testing.T) {
	tests := []struct {
		fg, bg string
		want   string
	}{
		{"#fff", "#000", "\x1b[97;40m"},
		{"#ffffff", "#000000", "\x1b[97;40m"},
		{"#ff8000", "#000", "\x1b[38;2;255;128;0;40m"},
		{"#fff", "#102030", "\x1b[97;48;2;16;32;48m"},
		{"bogus", "", ""},
	}
	for _, tt := range tests {
		if got := colorSGR(tt.fg, tt.bg); got != tt.want {
			t.Errorf("colorSGR(%q, %q) = %q, want %q", tt.fg, tt.bg, got, tt.want)
		}
	}
}

func TestDisplay_KeepsOSCTerminator(t *testing.T) {
	tests := []struct {
		name   string
		writes []string
		want   string
	}{
		{"bel terminated", []string{"\x1b]0;title\x07a.txt\n"}, "\x1b]0;title\x07a.txt\n"},
		{"st terminated", []string{"\x1b]0;t\x1b\\x\x07"}, "\x1b]0;t\x1b\\x"},
		{"split across writes", []string{"\x1b", "]2;t", "\x07", "\x07"}, "\x1b]2;t\x07"},
		{"bare bell after osc", []string{"\x1b]0;t\x07\x07ok"}, "\x1b]0;t\x07ok"},
		{"csi is not osc", []string{"\x1b[1m\x07b"}, "\x1b[1mb"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			d := NewDisplay(&buf, DefaultOptions())
			for _, w := range tt.writes {
				if _, err := d.Write([]byte(w)); err != nil {
					t.Fatal(err)
				}
			}
			if got := buf.String(); got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestDisplay_ReplyThroughRenderer(t *testing.T) {
	var buf bytes.Buffer
	r := NewRenderer(NewDisplay(&buf, DefaultOptions()), "")

	if err := r.OnRemoteReply("\x1b]0;title\x07a.txt\n"); err != nil {
		t.Fatal(err)
	}
	if got, want := buf.String(), "\x1b]0;title\x07a.txt\r\n$ "; got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}
