// Package sysutil holds process bootstrap helpers shared by the CLI
// commands: logger setup and small env-string utilities.
package sysutil

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// SetLogLevel configures the global zerolog level based on a string value
// and returns the level applied. Supported values (case-insensitive): debug,
// info, warn, error, fatal, panic. Anything else means info.
func SetLogLevel(lvl string) zerolog.Level {
	level := zerolog.InfoLevel
	switch strings.ToLower(strings.TrimSpace(lvl)) {
	case "debug":
		level = zerolog.DebugLevel
	case "warn", "warning":
		level = zerolog.WarnLevel
	case "error":
		level = zerolog.ErrorLevel
	case "fatal":
		level = zerolog.FatalLevel
	case "panic":
		level = zerolog.PanicLevel
	}
	zerolog.SetGlobalLevel(level)
	return level
}

// LoggerOptions selects the output format of SetupLogger.
type LoggerOptions struct {
	Level   string
	Pretty  bool
	Service string
	Version string
	// Out defaults to os.Stderr.
	Out io.Writer
}

// SetupLogger builds the process logger, installs it as the zerolog global
// and returns it. Pretty output uses the console writer; colors are disabled
// when NO_COLOR is set.
func SetupLogger(opts LoggerOptions) zerolog.Logger {
	SetLogLevel(opts.Level)
	zerolog.TimeFieldFormat = time.RFC3339Nano

	out := opts.Out
	if out == nil {
		out = os.Stderr
	}
	if opts.Pretty {
		out = zerolog.ConsoleWriter{
			Out:        out,
			TimeFormat: time.Kitchen,
			NoColor:    IsTruthy(os.Getenv("NO_COLOR")),
		}
	}

	ctx := zerolog.New(out).With().Timestamp()
	if opts.Service != "" {
		ctx = ctx.Str("service", opts.Service)
	}
	if opts.Version != "" {
		ctx = ctx.Str("version", opts.Version)
	}
	logger := ctx.Logger()
	log.Logger = logger
	return logger
}

// IsTruthy reports whether an environment variable string should be considered true.
// Accepted values (case-insensitive): "1", "true", "yes", "y", "on".
func IsTruthy(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "y", "on":
		return true
	default:
		return false
	}
}

// FirstNonEmpty returns the first non-blank string from a variadic list.
// If all values are blank, it returns "".
func FirstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
