// Package logger builds the root slog logger for the process.
package logger

import (
	"io"
	"log/slog"
	"os"

	slogmulti "github.com/samber/slog-multi"
)

// New returns a JSON logger on stdout. When logFile is set the same records
// fan out to the file as well.
func New(logFile string) *slog.Logger {
	stdout := slog.NewJSONHandler(os.Stdout, nil)
	if logFile == "" {
		return slog.New(stdout)
	}

	f, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		log := slog.New(stdout)
		log.Warn("log file unavailable, logging to stdout only", "path", logFile, "error", err)
		return log
	}

	return slog.New(slogmulti.Fanout(
		stdout,
		slog.NewJSONHandler(io.Writer(f), nil),
	))
}
