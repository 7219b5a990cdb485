package terminal

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"webterm/util"
)

func collect(t *testing.T, r io.Reader) ([]string, error) {
	t.Helper()
	k := NewKeyReader(r, util.NewLogger(0))
	out := make(chan string, 64)

	errc := make(chan error, 1)
	go func() {
		errc <- k.Run(context.Background(), out)
		close(out)
	}()

	var units []string
	for u := range out {
		units = append(units, u)
	}
	select {
	case err := <-errc:
		return units, err
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return")
		return nil, nil
	}
}

func TestKeyReader_SplitsRunes(t *testing.T) {
	units, err := collect(t, strings.NewReader("lé\n"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []string{"l", "é", "\n"}
	if strings.Join(units, "|") != strings.Join(want, "|") {
		t.Errorf("units = %q, want %q", units, want)
	}
}

func TestKeyReader_ExitSequence(t *testing.T) {
	units, err := collect(t, strings.NewReader("ab\x1dqcd"))
	if !errors.Is(err, ErrExitSequence) {
		t.Fatalf("err = %v, want ErrExitSequence", err)
	}
	if strings.Join(units, "") != "ab" {
		t.Errorf("units = %q, want a, b", units)
	}
}

func TestKeyReader_ExitSequenceAcrossReads(t *testing.T) {
	pr, pw := io.Pipe()
	go func() {
		pw.Write([]byte("x\x1d")) //nolint:errcheck
		pw.Write([]byte("q"))     //nolint:errcheck
		pw.Close()
	}()

	units, err := collect(t, pr)
	if !errors.Is(err, ErrExitSequence) {
		t.Fatalf("err = %v, want ErrExitSequence", err)
	}
	if len(units) != 1 || units[0] != "x" {
		t.Errorf("units = %q, want [x]", units)
	}
}

func TestKeyReader_LonePrefixIsForwarded(t *testing.T) {
	pr, pw := io.Pipe()
	go func() {
		pw.Write([]byte("\x1d")) //nolint:errcheck
		pw.Write([]byte("z"))    //nolint:errcheck
		pw.Close()
	}()

	units, err := collect(t, pr)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if strings.Join(units, "|") != "\x1d|z" {
		t.Errorf("units = %q", units)
	}
}

func TestKeyReader_RuneSplitAcrossReads(t *testing.T) {
	pr, pw := io.Pipe()
	e := []byte("é")
	go func() {
		pw.Write(e[:1]) //nolint:errcheck
		pw.Write(e[1:]) //nolint:errcheck
		pw.Close()
	}()

	units, err := collect(t, pr)
	if err != nil {
		t.Fatal(err)
	}
	if len(units) != 1 || units[0] != "é" {
		t.Errorf("units = %q, want [é]", units)
	}
}

func TestKeyReader_NotTerminal(t *testing.T) {
	k := NewKeyReader(strings.NewReader(""), util.NewLogger(0))
	if k.IsTerminal() {
		t.Error("strings.Reader is not a terminal")
	}
}

func TestCompleteRunes(t *testing.T) {
	smile := []byte("🙂")
	tests := []struct {
		in   []byte
		want int
	}{
		{[]byte("abc"), 3},
		{append([]byte("a"), smile[:2]...), 1},
		{append([]byte("a"), smile...), 5},
		{nil, 0},
	}
	for _, tt := range tests {
		if got := completeRunes(tt.in); got != tt.want {
			t.Errorf("completeRunes(%q) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestKeyReader_CancelWhileReadBlocked(t *testing.T) {
	pr, pw := io.Pipe()
	defer pw.Close()

	k := NewKeyReader(pr, util.NewLogger(0))
	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- k.Run(ctx, make(chan string)) }()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-errc:
		if err != nil {
			t.Fatalf("err = %v, want nil", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run stayed blocked in Read after cancel")
	}
}
