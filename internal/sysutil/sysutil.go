// Package sysutil holds process-level helpers: logger setup and the loose
// boolean and fallback parsing shared by config and main.
package sysutil

import (
	"io"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// ParseLevel maps LOG_LEVEL values onto zerolog levels. Unknown or empty
// values mean info.
func ParseLevel(lvl string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(lvl)) {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "fatal":
		return zerolog.FatalLevel
	case "panic":
		return zerolog.PanicLevel
	case "off", "disabled":
		return zerolog.Disabled
	default:
		return zerolog.InfoLevel
	}
}

// SetLogLevel sets the global zerolog level from a LOG_LEVEL value.
func SetLogLevel(lvl string) {
	zerolog.SetGlobalLevel(ParseLevel(lvl))
}

// NewLogger builds the process logger. Pretty selects the human console
// format for local runs; otherwise lines are JSON with RFC3339 timestamps in
// UTC. Every line carries the service name and version.
func NewLogger(w io.Writer, pretty bool, service, version string) zerolog.Logger {
	zerolog.TimeFieldFormat = time.RFC3339Nano
	zerolog.TimestampFunc = func() time.Time { return time.Now().UTC() }

	out := w
	if pretty {
		out = zerolog.ConsoleWriter{Out: w, TimeFormat: time.Kitchen}
	}
	ctx := zerolog.New(out).With().Timestamp()
	if service != "" {
		ctx = ctx.Str("service", service)
	}
	if version != "" {
		ctx = ctx.Str("version", version)
	}
	return ctx.Logger()
}

// ParseBool reads the usual spellings of an env flag. ok is false for
// anything it does not recognise.
func ParseBool(v string) (val, ok bool) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "y", "on":
		return true, true
	case "0", "false", "no", "n", "off":
		return false, true
	}
	return false, false
}

// IsTruthy reports whether v is a recognised true value.
func IsTruthy(v string) bool {
	b, ok := ParseBool(v)
	return ok && b
}

// FirstNonEmpty returns the first value that is not blank.
func FirstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
