package backup

import (
	"io"
	"os"

	"github.com/rs/zerolog"
)

// NewLogger builds a zerolog.Logger writing to w (os.Stderr in
// production). The logger is always constructed and threaded explicitly
// by the caller rather than installed as a package-level global, so every
// collaborator's log lines carry the fields the caller chose to attach
// (e.g. archive path, command).
func NewLogger(w io.Writer, verbose bool) zerolog.Logger {
	level := zerolog.InfoLevel
	if verbose {
		level = zerolog.DebugLevel
	}
	console := zerolog.ConsoleWriter{Out: w, TimeFormat: "15:04:05"}
	return zerolog.New(console).Level(level).With().Timestamp().Logger()
}

// DefaultLogger is a convenience constructor writing to stderr.
func DefaultLogger(verbose bool) zerolog.Logger {
	return NewLogger(os.Stderr, verbose)
}
