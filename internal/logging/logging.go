// Package logging builds the per-component loggers used across diffsync.
//
// Every component logs through a stdlib *log.Logger with a "[component] "
// prefix. When a log file is configured, output goes to stderr and to the file,
// which is rotated by size.
package logging

import (
	"io"
	"log"
	"os"
	"path/filepath"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Options configures log output.
type Options struct {
	// File receives a copy of all log output (empty = stderr only)
	File string

	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool

	// Verbose enables debug output through Debugf
	Verbose bool

	// Stderr overrides the console writer (default: os.Stderr)
	Stderr io.Writer
}

// Output is the shared destination of all component loggers.
type Output struct {
	w       io.Writer
	file    *lumberjack.Logger
	verbose bool
}

// Open returns the log destination described by opts.
func Open(opts Options) (*Output, error) {
	console := opts.Stderr
	if console == nil {
		console = os.Stderr
	}

	out := &Output{w: console, verbose: opts.Verbose}
	if opts.File == "" {
		return out, nil
	}

	if err := os.MkdirAll(filepath.Dir(opts.File), 0755); err != nil {
		return nil, err
	}
	out.file = &lumberjack.Logger{
		Filename:   opts.File,
		MaxSize:    opts.MaxSizeMB,
		MaxBackups: opts.MaxBackups,
		MaxAge:     opts.MaxAgeDays,
		Compress:   opts.Compress,
	}
	out.w = io.MultiWriter(console, out.file)
	return out, nil
}

// Discard returns an Output that drops everything.
func Discard() *Output {
	return &Output{w: io.Discard}
}

// Writer returns the underlying writer.
func (o *Output) Writer() io.Writer {
	return o.w
}

// Verbose reports whether debug output is enabled.
func (o *Output) Verbose() bool {
	return o.verbose
}

// Logger returns a logger for component, prefixed "[component] ".
func (o *Output) Logger(component string) *log.Logger {
	return log.New(o.w, "["+component+"] ", log.LstdFlags)
}

// Debugf logs through l only in verbose mode.
func (o *Output) Debugf(l *log.Logger, format string, args ...interface{}) {
	if o.verbose {
		l.Printf(format, args...)
	}
}

// Rotate closes the current log file and starts a new one.
func (o *Output) Rotate() error {
	if o.file == nil {
		return nil
	}
	return o.file.Rotate()
}

// Close closes the log file, if any.
func (o *Output) Close() error {
	if o.file == nil {
		return nil
	}
	return o.file.Close()
}
