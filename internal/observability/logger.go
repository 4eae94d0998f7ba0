// Package observability builds the structured logger used across the pipeline.
package observability

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/dkoval/paperfetch/internal/model"
)

// NewLogger creates a zerolog logger from configuration. Format "console"
// gives human-readable output; anything else emits JSON.
func NewLogger(cfg model.LoggingConfig) zerolog.Logger {
	var out io.Writer = os.Stderr
	if strings.EqualFold(cfg.Format, "console") {
		out = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}
	}

	logger := zerolog.New(out).With().Timestamp().Logger()
	return logger.Level(parseLevel(cfg.Level))
}

func parseLevel(level string) zerolog.Level {
	switch strings.ToLower(level) {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// WithRecord adds record-identifying fields to a logger.
func WithRecord(logger zerolog.Logger, signature, title string) zerolog.Logger {
	if len(title) > 60 {
		title = title[:57] + "..."
	}
	return logger.With().Str("signature", signature).Str("title", title).Logger()
}
