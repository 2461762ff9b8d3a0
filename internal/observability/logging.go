package observability

import (
	"io"
	"os"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

// LogOptions selects the log sink. Zero value is JSON to stderr at info.
type LogOptions struct {
	Level      string
	Pretty     bool
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// LogOptionsFromEnv reads LOG_LEVEL, LOG_PRETTY, LOG_FILE, LOG_MAX_SIZE_MB,
// LOG_MAX_BACKUPS and LOG_MAX_AGE_DAYS.
func LogOptionsFromEnv() LogOptions {
	return LogOptions{
		Level:      os.Getenv("LOG_LEVEL"),
		Pretty:     os.Getenv("LOG_PRETTY") == "1",
		File:       os.Getenv("LOG_FILE"),
		MaxSizeMB:  atoiOr(os.Getenv("LOG_MAX_SIZE_MB"), 100),
		MaxBackups: atoiOr(os.Getenv("LOG_MAX_BACKUPS"), 5),
		MaxAgeDays: atoiOr(os.Getenv("LOG_MAX_AGE_DAYS"), 14),
	}
}

var base = NewBaseLogger(LogOptionsFromEnv())

// SetBase replaces the root logger component loggers derive from.
func SetBase(l zerolog.Logger) {
	base = l
}

// NewBaseLogger builds the root logger from opts.
func NewBaseLogger(opts LogOptions) zerolog.Logger {
	return zerolog.New(logWriter(opts)).
		Level(parseLogLevel(opts.Level)).
		With().
		Timestamp().
		Logger()
}

func logWriter(opts LogOptions) io.Writer {
	var out io.Writer = os.Stderr
	if opts.File != "" {
		out = &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    opts.MaxSizeMB,
			MaxBackups: opts.MaxBackups,
			MaxAge:     opts.MaxAgeDays,
			Compress:   true,
		}
	}
	if opts.Pretty {
		return zerolog.ConsoleWriter{Out: out, TimeFormat: "2006-01-02 15:04:05"}
	}
	return out
}

// NewLogger returns the root logger tagged with component.
func NewLogger(component string) zerolog.Logger {
	return base.With().Str("component", component).Logger()
}

// NewLoggerWithLevel creates a logger with an explicit level.
func NewLoggerWithLevel(component string, level zerolog.Level) zerolog.Logger {
	return NewLogger(component).Level(level)
}

func parseLogLevel(s string) zerolog.Level {
	switch s {
	case "debug":
		return zerolog.DebugLevel
	case "info", "":
		return zerolog.InfoLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

func atoiOr(s string, def int) int {
	if n, err := strconv.Atoi(s); err == nil && n > 0 {
		return n
	}
	return def
}

func init() {
	zerolog.TimeFieldFormat = time.RFC3339Nano
}
