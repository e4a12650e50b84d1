// Package logging builds the zerolog loggers the binaries and tests inject
// into the protocol client and supervisor. Library code never logs through
// a global; everything receives its logger explicitly.
package logging

import (
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

const (
	EnvLogLevel     = "STKCTL_LOG_LEVEL"
	EnvLogTimestamp = "STKCTL_LOG_TIMESTAMP"
	EnvLogNoColor   = "STKCTL_LOG_NOCOLOR"
)

type Profile int

const (
	ProfileRuntime Profile = iota
	ProfileTest
)

var (
	configureOnce sync.Once
	configured    zerolog.Logger
)

// Configure builds the process logger once and returns it on every call.
func Configure(profile Profile) zerolog.Logger {
	configureOnce.Do(func() {
		configured = build(profile)
	})
	return configured
}

func build(profile Profile) zerolog.Logger {
	level := zerolog.InfoLevel
	timestamp := true
	noColor := false
	if profile == ProfileTest {
		level = zerolog.DebugLevel
		timestamp = false
	}

	if lvl, ok := parseLevel(os.Getenv(EnvLogLevel)); ok {
		level = lvl
	}
	if v, ok := parseBool(os.Getenv(EnvLogTimestamp)); ok {
		timestamp = v
	}
	if v, ok := parseBool(os.Getenv(EnvLogNoColor)); ok {
		noColor = v
	}

	output := zerolog.ConsoleWriter{
		Out:        os.Stderr,
		TimeFormat: time.RFC3339,
		NoColor:    noColor,
	}
	ctx := zerolog.New(output).Level(level).With().Str("app", "stkctl")
	if timestamp {
		ctx = ctx.Timestamp()
	}
	return ctx.Logger()
}

func parseLevel(raw string) (zerolog.Level, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "":
		return zerolog.InfoLevel, false
	case "trace":
		return zerolog.TraceLevel, true
	case "debug":
		return zerolog.DebugLevel, true
	case "info":
		return zerolog.InfoLevel, true
	case "warn", "warning":
		return zerolog.WarnLevel, true
	case "error":
		return zerolog.ErrorLevel, true
	case "disabled", "disable", "off", "none":
		return zerolog.Disabled, true
	default:
		return zerolog.InfoLevel, false
	}
}

func parseBool(raw string) (bool, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return false, false
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, false
	}
	return v, true
}
