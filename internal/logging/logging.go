package logging

import (
	"io"
	"os"
	"time"

	"github.com/phuslu/log"
)

// New returns a JSON-lines logger writing one object per line with the
// timestamp under "ts" rendered in loc.
func New(w io.Writer, level string, loc *time.Location) *log.Logger {
	if w == nil {
		w = os.Stdout
	}
	if loc == nil {
		loc = time.UTC
	}
	return &log.Logger{
		Level:        log.ParseLevel(level),
		TimeField:    "ts",
		TimeFormat:   time.RFC3339Nano,
		TimeLocation: loc,
		Writer:       &log.IOWriter{Writer: w},
	}
}

// Location resolves an IANA zone name, falling back to UTC.
func Location(name string) *time.Location {
	if name == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return time.UTC
	}
	return loc
}

// Nop returns a logger that discards everything. Useful in tests.
func Nop() *log.Logger {
	return New(io.Discard, "error", time.UTC)
}
