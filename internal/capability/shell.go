package capability

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"runtime"
	"strings"
	"time"

	wterr "webterm/internal/errors"
)

const waitDelay = 500 * time.Millisecond

// Shell runs each line through the system shell: /bin/sh -c on Unix,
// cmd.exe /C on Windows.  Stdout and stderr are combined in the order
// they were written.
type Shell struct {
	// Path overrides the shell binary.  Empty selects the platform
	// default.
	Path string
	// Timeout bounds a single command.  Zero means no limit beyond ctx.
	Timeout time.Duration
	// Dir is the working directory; empty inherits the executor's.
	Dir string
}

// Execute runs line.  A blank line is not run and yields no output.
func (s *Shell) Execute(ctx context.Context, line string) (string, error) {
	if strings.TrimSpace(line) == "" {
		return "", nil
	}

	if s.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.Timeout)
		defer cancel()
	}

	name, args := s.command(line)
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = s.Dir
	// Background children can hold the output pipe open after the
	// shell is killed.
	cmd.WaitDelay = waitDelay

	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out

	err := cmd.Run()
	if err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
		err = fmt.Errorf("%w after %s", wterr.ErrTimeout, s.Timeout)
	}
	return out.String(), err
}

func (s *Shell) command(line string) (string, []string) {
	if runtime.GOOS == "windows" {
		name := s.Path
		if name == "" {
			name = "cmd.exe"
		}
		return name, []string{"/C", line}
	}
	name := s.Path
	if name == "" {
		name = "/bin/sh"
	}
	return name, []string{"-c", line}
}

// String describes the shell for logs.
func (s *Shell) String() string {
	name, args := s.command("")
	return name + " " + args[0]
}
