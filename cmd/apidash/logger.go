package main

import (
	"io"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

func newLogger(w io.Writer, level, style string) zerolog.Logger {
	if style != "json" {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	}
	return zerolog.New(w).
		With().
		Timestamp().
		Str("service", "apidash").
		Logger().
		Level(parseLevel(level))
}

func parseLevel(raw string) zerolog.Level {
	if raw == "" {
		return zerolog.InfoLevel
	}
	level, err := zerolog.ParseLevel(strings.ToLower(raw))
	if err != nil {
		return zerolog.InfoLevel
	}
	return level
}

// logfAt adapts l to the Logf fields the packages take.
func logfAt(l zerolog.Logger, level zerolog.Level) func(string, ...any) {
	return func(format string, args ...any) {
		l.WithLevel(level).Msgf(format, args...)
	}
}
