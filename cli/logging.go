package cli

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"golang.org/x/term"

	"github.com/georgepadayatti/pdfstamp/config"
)

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// NewLogger builds a slog logger from cfg. The returned closer releases a
// log file; it is a no-op for stdout and stderr.
func NewLogger(cfg config.LoggingConfig) (*slog.Logger, io.Closer, error) {
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}

	var (
		out    io.Writer
		closer io.Closer = nopCloser{}
	)
	fd := -1
	switch cfg.Output {
	case "stdout":
		out, fd = stdout, int(os.Stdout.Fd())
	case "stderr":
		out, fd = stderr, int(os.Stderr.Fd())
	default:
		f, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open log file: %w", err)
		}
		out, closer = f, f
	}

	opts := &slog.HandlerOptions{Level: parseLevel(cfg.Level)}
	var handler slog.Handler
	switch strings.ToLower(cfg.Format) {
	case "json":
		handler = slog.NewJSONHandler(out, opts)
	case "text":
		handler = slog.NewTextHandler(out, opts)
	default:
		if isTerminal(out, fd) {
			handler = slog.NewTextHandler(out, opts)
		} else {
			handler = slog.NewJSONHandler(out, opts)
		}
	}
	return slog.New(handler), closer, nil
}

// isTerminal reports whether out is the process stream fd and that
// stream is a terminal.
func isTerminal(out io.Writer, fd int) bool {
	f, ok := out.(*os.File)
	if !ok || fd < 0 || int(f.Fd()) != fd {
		return false
	}
	return term.IsTerminal(fd)
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
