// Package log wraps a process-wide slog logger used by every uvmgen package.
package log

import (
	"io"
	"log/slog"
	"os"
)

var logger *slog.Logger

func init() {
	logger = newLogger(os.Stderr, slog.LevelInfo)
}

// Init sets up logging with the given level and optional file writer.
func Init(level string, fileWriter io.Writer) {
	var w io.Writer = os.Stderr
	if fileWriter != nil {
		w = io.MultiWriter(os.Stderr, fileWriter)
	}
	logger = newLogger(w, ParseLevel(level))
}

// SetOutput redirects log output, mostly for tests.
func SetOutput(w io.Writer, level string) {
	logger = newLogger(w, ParseLevel(level))
}

// Discard silences all logging.
func Discard() {
	logger = newLogger(io.Discard, slog.LevelError)
}

// ParseLevel maps a config level name to a slog level. Unknown names mean info.
func ParseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func newLogger(w io.Writer, lvl slog.Level) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{
		Level: lvl,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == "error" {
				a.Key = "err"
			}
			return a
		},
	}))
}

// Logger returns the underlying logger.
func Logger() *slog.Logger { return logger }

func Debug(msg string, args ...any) { logger.Debug(msg, args...) }
func Info(msg string, args ...any)  { logger.Info(msg, args...) }
func Warn(msg string, args ...any)  { logger.Warn(msg, args...) }
func Error(msg string, args ...any) { logger.Error(msg, args...) }
