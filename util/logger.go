// Package util provides low-level helpers shared by all other packages.
package util

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/rs/zerolog"
)

// LogLevel controls output verbosity.
type LogLevel int

const (
	LogQuiet   LogLevel = 0
	LogNormal  LogLevel = 1
	LogVerbose LogLevel = 2
	LogDebug   LogLevel = 3
)

// timestampFormat is used when timestamps are enabled.
const timestampFormat = "15:04:05.000"

type logField struct {
	key   string
	value interface{}
}

// Logger writes levelled messages to stderr through a zerolog console
// writer.  Records carry a short level tag ([INF], [VRB] …) and any
// fields attached with [Logger.With].
type Logger struct {
	level      LogLevel
	output     io.Writer
	mu         *sync.Mutex
	timestamps bool // if true, prepend HH:MM:SS.mmm timestamps
	fields     []logField
	zl         zerolog.Logger
}

// NewLogger returns a Logger that prints messages at or below the given
// verbosity (0 = quiet, 1 = normal, 2 = verbose, 3 = debug).
func NewLogger(verbosity int) *Logger {
	l := &Logger{
		level:      LogLevel(verbosity),
		output:     os.Stderr,
		mu:         &sync.Mutex{},
		timestamps: verbosity >= 3, // auto-enable timestamps in debug mode
	}
	l.rebuild()
	return l
}

// With returns a child logger that appends key=value to every record.
// The child shares the parent's output and level.
func (l *Logger) With(key string, value interface{}) *Logger {
	l.mu.Lock()
	defer l.mu.Unlock()

	child := &Logger{
		level:      l.level,
		output:     l.output,
		mu:         l.mu,
		timestamps: l.timestamps,
		fields:     append(append([]logField(nil), l.fields...), logField{key, value}),
	}
	child.rebuild()
	return child
}

// SetTimestamps enables or disables timestamp prefixes.
func (l *Logger) SetTimestamps(on bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.timestamps = on
	l.rebuild()
}

// SetOutput overrides the output writer (default: os.Stderr).
func (l *Logger) SetOutput(w io.Writer) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.output = w
	l.rebuild()
}

// Level returns the current log level.
func (l *Logger) Level() LogLevel { return l.level }

// Info prints when verbosity ≥ 1.  Prefixed with [INF].
func (l *Logger) Info(format string, args ...interface{}) {
	if l.level >= LogNormal {
		l.write("INF", format, args...)
	}
}

// Warn prints when verbosity ≥ 1.  Prefixed with [WRN].
func (l *Logger) Warn(format string, args ...interface{}) {
	if l.level >= LogNormal {
		l.write("WRN", format, args...)
	}
}

// Verbose prints when verbosity ≥ 2.  Prefixed with [VRB].
func (l *Logger) Verbose(format string, args ...interface{}) {
	if l.level >= LogVerbose {
		l.write("VRB", format, args...)
	}
}

// Debug prints when verbosity ≥ 3.  Prefixed with [DBG].
func (l *Logger) Debug(format string, args ...interface{}) {
	if l.level >= LogDebug {
		l.write("DBG", format, args...)
	}
}

// Error always prints regardless of verbosity.  Prefixed with [ERR].
func (l *Logger) Error(format string, args ...interface{}) {
	l.write("ERR", format, args...)
}

func (l *Logger) write(tag, format string, args ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()

	// Level gating happens above, so records are emitted without a
	// zerolog level and tagged explicitly.
	ev := l.zl.Log().Str(zerolog.LevelFieldName, tag)
	if l.timestamps {
		ev = ev.Timestamp()
	}
	ev.Msg(fmt.Sprintf(format, args...))
}

// rebuild recreates the zerolog logger.  Caller holds l.mu (or owns l
// exclusively during construction).
func (l *Logger) rebuild() {
	parts := []string{zerolog.LevelFieldName, zerolog.MessageFieldName}
	if l.timestamps {
		parts = append([]string{zerolog.TimestampFieldName}, parts...)
	}

	cw := zerolog.ConsoleWriter{
		Out:        l.output,
		NoColor:    true,
		TimeFormat: timestampFormat,
		PartsOrder: parts,
		FormatLevel: func(i interface{}) string {
			return fmt.Sprintf("[%v]", i)
		},
	}

	zctx := zerolog.New(cw).With()
	for _, f := range l.fields {
		zctx = zctx.Interface(f.key, f.value)
	}
	l.zl = zctx.Logger()
}
