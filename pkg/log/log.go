package log

import (
	"context"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

var (
	// Logger is the global logger instance
	Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
)

func init() {
	// zerolog.Ctx falls back to the global logger, even after Init replaces it
	zerolog.DefaultContextLogger = &Logger
}

// Level represents log level
type Level string

const (
	DebugLevel Level = "debug"
	InfoLevel  Level = "info"
	WarnLevel  Level = "warn"
	ErrorLevel Level = "error"
)

var zerologLevels = map[Level]zerolog.Level{
	DebugLevel: zerolog.DebugLevel,
	InfoLevel:  zerolog.InfoLevel,
	WarnLevel:  zerolog.WarnLevel,
	ErrorLevel: zerolog.ErrorLevel,
}

// ParseLevel maps a case-insensitive level name onto a Level, defaulting to
// InfoLevel.
func ParseLevel(s string) Level {
	l := Level(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := zerologLevels[l]; ok {
		return l
	}
	return InfoLevel
}

// Config holds logging configuration
type Config struct {
	Level      Level
	JSONOutput bool
	Output     io.Writer
}

// Init configures the global logger. Console output is meant for local
// runs; services in production log JSON.
func Init(cfg Config) {
	level, ok := zerologLevels[cfg.Level]
	if !ok {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	output := cfg.Output
	if output == nil {
		output = os.Stdout
	}
	if !cfg.JSONOutput {
		output = zerolog.ConsoleWriter{Out: output, TimeFormat: time.RFC3339}
	}
	Logger = zerolog.New(output).With().Timestamp().Logger()
}

// WithComponent creates a child logger with component field
func WithComponent(component string) zerolog.Logger {
	return Logger.With().Str("component", component).Logger()
}

// WithPostID creates a child logger with post_id field
func WithPostID(postID string) zerolog.Logger {
	return Logger.With().Str("post_id", postID).Logger()
}

// WithSubscriberID creates a child logger with subscriber_id field
func WithSubscriberID(subID string) zerolog.Logger {
	return Logger.With().Str("subscriber_id", subID).Logger()
}

// WithRequest creates the logger for one API request. It carries the
// request id and the client address.
func WithRequest(requestID, client string) zerolog.Logger {
	return Logger.With().
		Str("component", "api").
		Str("request_id", requestID).
		Str("client", client).
		Logger()
}

// NewContext returns a copy of ctx carrying logger
func NewContext(ctx context.Context, logger zerolog.Logger) context.Context {
	return logger.WithContext(ctx)
}

// FromContext returns the logger stored by NewContext, or the global
// Logger when ctx has none
func FromContext(ctx context.Context) *zerolog.Logger {
	return zerolog.Ctx(ctx)
}
