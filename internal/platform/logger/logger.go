// Package logger builds the process-wide structured logger. Output is JSON
// on stdout; the level comes from HEARTH_LOG_LEVEL and defaults to info.
package logger

import (
	"log/slog"
	"os"
	"strings"
)

func New() *slog.Logger {
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: LevelFromEnv(),
	})
	return slog.New(handler)
}

// LevelFromEnv maps HEARTH_LOG_LEVEL to a slog level. Unknown or empty
// values resolve to info so a typo never silences the log.
func LevelFromEnv() slog.Level {
	switch strings.ToLower(strings.TrimSpace(os.Getenv("HEARTH_LOG_LEVEL"))) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
