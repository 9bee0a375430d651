package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/pterm/pterm"
)

type logMode int

const (
	logConsole logMode = iota // pterm output for one-shot commands
	logFile                   // the TUI owns the terminal
	logJSON                   // headless server
)

func parseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("unknown log level %q", s)
}

func ptermLevel(l slog.Level) pterm.LogLevel {
	switch {
	case l <= slog.LevelDebug:
		return pterm.LogLevelDebug
	case l <= slog.LevelInfo:
		return pterm.LogLevelInfo
	case l <= slog.LevelWarn:
		return pterm.LogLevelWarn
	default:
		return pterm.LogLevelError
	}
}

// newLogger builds the process logger. The returned closer releases the log
// file, if any.
func newLogger(mode logMode, level slog.Level, out io.Writer, logPath string) (*slog.Logger, func(), error) {
	noop := func() {}
	switch mode {
	case logJSON:
		return slog.New(slog.NewJSONHandler(out, &slog.HandlerOptions{Level: level})), noop, nil
	case logFile:
		f, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return nil, noop, err
		}
		h := slog.NewTextHandler(f, &slog.HandlerOptions{Level: level})
		return slog.New(h), func() { _ = f.Close() }, nil
	default:
		logger := pterm.DefaultLogger.WithLevel(ptermLevel(level)).WithWriter(out)
		return slog.New(pterm.NewSlogHandler(logger)), noop, nil
	}
}
