package log

import (
	"log/slog"
	"os"
	"strings"
)

// ParseLevel maps a level name to a slog level, defaulting to info.
func ParseLevel(logLevel string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(logLevel)) {
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

func Setup(logLevel string) {
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: ParseLevel(logLevel),
	})))
}

func WithModule(module string) *slog.Logger {
	return slog.With("module", module)
}

// WithSession scopes logger to one conversation. An empty flow id is omitted.
func WithSession(logger *slog.Logger, sessionID, flowID string) *slog.Logger {
	if flowID == "" {
		return logger.With("session_id", sessionID)
	}

	return logger.With("session_id", sessionID, "flow_id", flowID)
}
