package core

import (
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

type Log interface {
	Info() *zerolog.Event
	Debug() *zerolog.Event
	Warn() *zerolog.Event
	Error() *zerolog.Event
}

func init() {
	zerolog.TimeFieldFormat = time.RFC3339Nano
}

// NewLogger returns a structured JSON logger tagged with the component name.
// Level comes from TENOR_LOG_LEVEL and defaults to info.
func NewLogger(component string) zerolog.Logger {
	return zerolog.New(os.Stdout).
		Level(parseLogLevel(os.Getenv("TENOR_LOG_LEVEL"))).
		With().
		Timestamp().
		Str("component", component).
		Logger()
}

func parseLogLevel(s string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "":
		return zerolog.InfoLevel
	default:
		return zerolog.InfoLevel
	}
}
