// package shared holds the config, database, logging and error helpers used by every plsync package.
package shared

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
)

// NewLogger returns a [log.Logger] writing to w (stderr when nil) with timestamps and callers.
func NewLogger(w io.Writer) *log.Logger {
	if w == nil {
		w = os.Stderr
	}
	return log.NewWithOptions(w, log.Options{
		ReportTimestamp: true,
		ReportCaller:    true,
		Prefix:          "plsync",
	})
}

// ConfigureLogger applies the [log] section of the config to l.
//
// An empty level or format leaves the current setting untouched.
func ConfigureLogger(l *log.Logger, c LogConfig) error {
	if c.Level != "" {
		level, err := log.ParseLevel(strings.ToLower(c.Level))
		if err != nil {
			return fmt.Errorf("%w: log level %q", ErrInvalidConfig, c.Level)
		}
		l.SetLevel(level)
	}

	switch strings.ToLower(c.Format) {
	case "":
	case "text":
		l.SetFormatter(log.TextFormatter)
	case "json":
		l.SetFormatter(log.JSONFormatter)
	case "logfmt":
		l.SetFormatter(log.LogfmtFormatter)
	default:
		return fmt.Errorf("%w: log format must be text, json or logfmt, got %q", ErrInvalidConfig, c.Format)
	}
	return nil
}

// WithLogger returns a child of l that adds kv to every entry.
func WithLogger(l *log.Logger, kv ...any) *log.Logger {
	return l.With(kv...)
}

// SetLogLevel sets the level of l.
func SetLogLevel(l *log.Logger, ll log.Level) {
	l.SetLevel(ll)
}

// GenerateID returns a random v4 UUID. Used for snapshot, server and OAuth state ids.
func GenerateID() string {
	return uuid.New().String()
}
