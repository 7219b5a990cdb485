// Package capability defines what the executor does with a received
// command line.  An [Executor] turns one line into reply text; the
// listen mode sends that text back as a single frame.
package capability

import (
	"context"
	"fmt"
	"strings"
)

// Executor runs one command line.  The returned output is sent back to
// the client even when err is non-nil.
type Executor interface {
	Execute(ctx context.Context, line string) (output string, err error)
}

// Reply runs line through ex and builds the reply frame.  A failure is
// reported in-band after whatever output was produced, so the client
// always gets exactly one reply per line.
func Reply(ctx context.Context, ex Executor, line string) (string, error) {
	out, err := ex.Execute(ctx, line)
	if err == nil {
		return out, nil
	}
	var sb strings.Builder
	sb.WriteString(out)
	if out != "" && !strings.HasSuffix(out, "\n") {
		sb.WriteByte('\n')
	}
	fmt.Fprintf(&sb, "command failed: %v\n", err)
	return sb.String(), err
}

// Echo returns every line unchanged.  Useful for checking the
// transport without running anything.
type Echo struct{}

// Execute returns line.
func (Echo) Execute(_ context.Context, line string) (string, error) {
	return line, nil
}
