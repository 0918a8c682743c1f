package main

import (
	"log/slog"
	"os"

	"github.com/mattn/go-isatty"
)

// logLevel is shared by every handler so commands can adjust verbosity
// after the logger is installed.
var logLevel = new(slog.LevelVar)

// newLogger writes human-readable text when w is a terminal and JSON when it
// is piped or redirected.
func newLogger(w *os.File) *slog.Logger {
	options := &slog.HandlerOptions{Level: logLevel}
	if isatty.IsTerminal(w.Fd()) || isatty.IsCygwinTerminal(w.Fd()) {
		return slog.New(slog.NewTextHandler(w, options))
	}
	return slog.New(slog.NewJSONHandler(w, options))
}

// quietWhileRecording raises the level to warn while a shell owns the
// terminal, unless debug output was asked for. The returned func restores it.
func quietWhileRecording() func() {
	prev := logLevel.Level()
	if prev < slog.LevelWarn && prev > slog.LevelDebug {
		logLevel.Set(slog.LevelWarn)
	}
	return func() { logLevel.Set(prev) }
}
