// Package cpmlog implements the pluggable logging sink the core consumes:
// Log, LogFail, and an accumulated context string, with a default
// implementation over log/slog built by New.
package cpmlog

import (
	"fmt"
	"log/slog"
	"os"
	"time"
)

// Result is the outcome classification attached to every per-job log record.
type Result string

const (
	Done Result = "DONE"
	Fail Result = "FAIL"
	Warn Result = "WARN"
)

// Sink is the logger interface the Master and its collaborators depend on.
type Sink interface {
	Log(msg string)
	LogFail(msg string)
	WithContext(ctx string) Sink
}

// SlogSink adapts a *slog.Logger to Sink, prefixing every message with an
// accumulated context string (e.g. a distfile or package name).
type SlogSink struct {
	logger  *slog.Logger
	context string
}

var _ Sink = (*SlogSink)(nil)

// New creates a SlogSink. verbose toggles slog.LevelDebug vs slog.LevelWarn.
func New(verbose bool) *SlogSink {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}

	return &SlogSink{
		logger: slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})),
	}
}

// Log records an informational message.
func (s *SlogSink) Log(msg string) {
	s.logger.Info(s.decorate(msg))
}

// LogFail records a failure message.
func (s *SlogSink) LogFail(msg string) {
	s.logger.Warn(s.decorate(msg))
}

// WithContext returns a Sink that prefixes subsequent messages with ctx.
func (s *SlogSink) WithContext(ctx string) Sink {
	next := ctx
	if s.context != "" {
		next = s.context + "/" + ctx
	}

	return &SlogSink{logger: s.logger, context: next}
}

func (s *SlogSink) decorate(msg string) string {
	if s.context == "" {
		return msg
	}

	return s.context + ": " + msg
}

// FormatJobResult renders one log record per job result: result, type,
// elapsed time, pid, message, and an optional annotation such as "using
// cache" or "using prebuilt".
func FormatJobResult(result Result, jobType string, elapsed time.Duration, pid int, msg, annotation string) string {
	out := fmt.Sprintf("%s %s (%.2fs, pid %d): %s", result, jobType, elapsed.Seconds(), pid, msg)
	if annotation != "" {
		out += " [" + annotation + "]"
	}

	return out
}
